package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/zkballot/zkballot-node/types"
)

// ErrElectionNotFound is returned when the requested election does not
// exist in the db
var ErrElectionNotFound = errors.New("election does not exist in the db")

// ErrCandidateNotFound is returned when the requested candidate does not
// exist in the db
var ErrCandidateNotFound = errors.New("candidate does not exist in the db")

// NextElectionID returns the id that the next stored election will get
func (r *SQLite) NextElectionID() (uint64, error) {
	row := r.db.QueryRow("SELECT COALESCE(MAX(id), 0) + 1 FROM elections")

	var id uint64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// StoreElection stores a new election with its candidates, in one
// transaction. Candidates are appended at creation only; the election
// record is immutable afterwards except for totalVotes.
func (r *SQLite) StoreElection(e types.Election) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	sqlQuery := `
	INSERT INTO elections(
		id,
		title,
		description,
		startTime,
		endTime,
		totalVotes,
		eligibilityRoot,
		insertedDatetime
	) values(?, ?, ?, ?, ?, 0, ?, CURRENT_TIMESTAMP)
	`
	_, err = tx.Exec(sqlQuery, e.ID, e.Title, e.Description, e.StartTime,
		e.EndTime, []byte(e.EligibilityRoot))
	if err != nil {
		return err
	}

	sqlQuery = `
	INSERT INTO candidates(
		electionID,
		indx,
		name,
		externalID,
		party,
		voteCount
	) values(?, ?, ?, ?, ?, 0)
	`
	for i := 0; i < len(e.Candidates); i++ {
		_, err = tx.Exec(sqlQuery, e.ID, uint64(i), e.Candidates[i].Name,
			e.Candidates[i].ExternalID, e.Candidates[i].Party)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReadElectionByID reads the types.Election with the given id, including
// its candidates sorted by index
func (r *SQLite) ReadElectionByID(id uint64) (*types.Election, error) {
	row := r.db.QueryRow(`
	SELECT id, title, description, startTime, endTime, totalVotes,
	eligibilityRoot, insertedDatetime FROM elections WHERE id = ?`, id)

	var e types.Election
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartTime,
		&e.EndTime, &e.TotalVotes, &e.EligibilityRoot, &e.InsertedDatetime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("electionID: %d, %w", id, ErrElectionNotFound)
		}
		return nil, err
	}

	e.Candidates, err = r.ReadCandidates(id)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ReadElections reads all the stored types.Election, without their
// candidates
func (r *SQLite) ReadElections() ([]types.Election, error) {
	sqlQuery := `
	SELECT id, title, description, startTime, endTime, totalVotes,
	eligibilityRoot, insertedDatetime FROM elections
	ORDER BY id ASC
	`

	rows, err := r.db.Query(sqlQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var elections []types.Election
	for rows.Next() {
		var e types.Election
		err = rows.Scan(&e.ID, &e.Title, &e.Description, &e.StartTime,
			&e.EndTime, &e.TotalVotes, &e.EligibilityRoot,
			&e.InsertedDatetime)
		if err != nil {
			return nil, err
		}
		elections = append(elections, e)
	}
	return elections, nil
}

// ReadCandidates reads the candidates of the given electionID, sorted by
// index
func (r *SQLite) ReadCandidates(electionID uint64) ([]types.Candidate, error) {
	sqlQuery := `
	SELECT indx, name, externalID, party, voteCount FROM candidates
	WHERE electionID = ?
	ORDER BY indx ASC
	`

	rows, err := r.db.Query(sqlQuery, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var candidates []types.Candidate
	for rows.Next() {
		var cand types.Candidate
		err = rows.Scan(&cand.Index, &cand.Name, &cand.ExternalID,
			&cand.Party, &cand.VoteCount)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// ReadCandidate reads the candidate with the given index of the given
// electionID
func (r *SQLite) ReadCandidate(electionID, index uint64) (*types.Candidate, error) {
	row := r.db.QueryRow(`
	SELECT indx, name, externalID, party, voteCount FROM candidates
	WHERE electionID = ? AND indx = ?`, electionID, index)

	var cand types.Candidate
	err := row.Scan(&cand.Index, &cand.Name, &cand.ExternalID, &cand.Party,
		&cand.VoteCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("electionID: %d, candidate: %d, %w",
				electionID, index, ErrCandidateNotFound)
		}
		return nil, err
	}
	return &cand, nil
}
