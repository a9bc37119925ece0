package db

import (
	"database/sql"
	"errors"

	"github.com/zkballot/zkballot-node/types"
)

// ErrNullifierUsed is returned when trying to store a nullifier that is
// already present in the election's nullifier set
var ErrNullifierUsed = errors.New("nullifier already used")

// IsNullifierUsed returns true if the given nullifier is already present
// in the nullifier set of the given electionID
func (r *SQLite) IsNullifierUsed(electionID uint64, nullifier []byte) (bool, error) {
	row := r.db.QueryRow(
		"SELECT COUNT(1) FROM nullifiers WHERE electionID = ? AND nullifier = ?",
		electionID, nullifier)

	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetCommitmentCount returns the use count of the given commitment for
// the given electionID
func (r *SQLite) GetCommitmentCount(electionID uint64, commitment []byte) (uint64, error) {
	row := r.db.QueryRow(
		"SELECT count FROM commitments WHERE electionID = ? AND commitment = ?",
		electionID, commitment)

	var count uint64
	err := row.Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// RecordVote performs, in one transaction, every state mutation of an
// accepted vote: marks the nullifier used, increments the chosen
// candidate's voteCount and the election's totalVotes, increments the
// commitment use counter, and appends the public votecast record
// (commitment and nullifier only, never the candidate index). If the
// nullifier is already used the whole transaction fails with
// ErrNullifierUsed and nothing is mutated.
func (r *SQLite) RecordVote(electionID, candidateIndex uint64, commitment,
	nullifier []byte) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
	INSERT OR IGNORE INTO nullifiers(electionID, nullifier, insertedDatetime)
	values(?, ?, CURRENT_TIMESTAMP)`, electionID, nullifier)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNullifierUsed
	}

	res, err = tx.Exec(`
	UPDATE candidates SET voteCount = voteCount + 1
	WHERE electionID = ? AND indx = ?`, electionID, candidateIndex)
	if err != nil {
		return err
	}
	n, err = res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCandidateNotFound
	}

	_, err = tx.Exec(`
	UPDATE elections SET totalVotes = totalVotes + 1 WHERE id = ?`, electionID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
	INSERT INTO commitments(electionID, commitment, count) VALUES(?, ?, 1)
	ON CONFLICT(electionID, commitment) DO UPDATE SET count = count + 1`,
		electionID, commitment)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
	INSERT INTO votecast(electionID, commitment, nullifier, insertedDatetime)
	values(?, ?, ?, CURRENT_TIMESTAMP)`, electionID, commitment, nullifier)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ReadVoteCastByElectionID reads the public votecast records of the
// given electionID, in insertion order
func (r *SQLite) ReadVoteCastByElectionID(electionID uint64) ([]types.VoteCastRecord, error) {
	sqlQuery := `
	SELECT electionID, commitment, nullifier, insertedDatetime FROM votecast
	WHERE electionID = ?
	ORDER BY datetime(insertedDatetime) ASC
	`

	rows, err := r.db.Query(sqlQuery, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var records []types.VoteCastRecord
	for rows.Next() {
		var rec types.VoteCastRecord
		err = rows.Scan(&rec.ElectionID, &rec.Commitment, &rec.Nullifier,
			&rec.InsertedDatetime)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
