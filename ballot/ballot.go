// Package ballot implements the private ballot engine: elections with a
// published eligibility MerkleTree root, proof-gated anonymous vote
// recording, and the per-election nullifier set that makes double
// voting impossible.
package ballot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkballot/zkballot-node/db"
	"github.com/zkballot/zkballot-node/eligibility"
	"github.com/zkballot/zkballot-node/types"
	"github.com/zkballot/zkballot-node/zkverifier"
	"go.vocdoni.io/dvote/log"
)

var (
	// ErrNotAdmin is returned when the caller of CreateElection is not
	// the election administrator
	ErrNotAdmin = errors.New("caller is not the election administrator")
	// ErrAccessDenied is returned when the session account has no valid
	// delegation for the identity, or the identity does not own the
	// claimed account
	ErrAccessDenied = errors.New("access denied")
	// ErrElectionNotOpen is returned when the current time is outside
	// the election window
	ErrElectionNotOpen = errors.New("election is not open")
	// ErrCandidateOutOfRange is returned when the candidate index does
	// not exist in the election
	ErrCandidateOutOfRange = errors.New("candidate index out of range")
	// ErrDoubleVote is returned when the supplied nullifier is already
	// present in the election's nullifier set
	ErrDoubleVote = errors.New("nullifier already used")
	// ErrInvalidEligibility is returned when the Merkle membership proof
	// does not verify against the election's eligibility root
	ErrInvalidEligibility = errors.New("merkleproof verification failed")
	// ErrInvalidProof is returned when the zero-knowledge proof does not
	// verify
	ErrInvalidProof = errors.New("zkproof verification failed")
)

// AccessChecker validates that a session account acts for a registered
// identity. Implemented by registry.Registry.
type AccessChecker interface {
	HasValidAccess(nic string, session common.Address) (bool, error)
	GetWalletByIdentity(nic string) (common.Address, error)
}

// Engine implements the private ballot engine
type Engine struct {
	mu       sync.Mutex
	db       *db.SQLite
	registry AccessChecker
	verifier zkverifier.Verifier
	// admin is the only account allowed to create elections
	admin common.Address
}

// Options is used to pass the parameters to load a new Engine
type Options struct {
	DB       *db.SQLite
	Registry AccessChecker
	Verifier zkverifier.Verifier
	Admin    common.Address
}

// New loads a new Engine
func New(opts Options) (*Engine, error) {
	if opts.DB == nil || opts.Registry == nil || opts.Verifier == nil {
		return nil, errors.New("ballot engine needs a db, a registry and a verifier")
	}
	if opts.Admin == (common.Address{}) {
		return nil, errors.New("ballot engine needs an admin account")
	}
	return &Engine{
		db:       opts.DB,
		registry: opts.Registry,
		verifier: opts.Verifier,
		admin:    opts.Admin,
	}, nil
}

// CreateElection stores a new election with its candidates and the
// published eligibility root, and returns the allocated election id.
// Only the admin account can create elections. Candidates can only be
// set here; the election record is immutable afterwards except for the
// vote counters.
func (e *Engine) CreateElection(caller common.Address, title, description string,
	start, end int64, candidates []types.Candidate,
	eligibilityRoot []byte) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.admin {
		return 0, ErrNotAdmin
	}
	if title == "" {
		return 0, fmt.Errorf("title is empty")
	}
	if start >= end {
		return 0, fmt.Errorf("startTime (%d) must be before endTime (%d)", start, end)
	}
	if len(candidates) == 0 {
		return 0, fmt.Errorf("candidate list is empty")
	}
	if len(eligibilityRoot) == 0 ||
		string(eligibilityRoot) == string(types.EmptyRoot) {
		return 0, fmt.Errorf("eligibility root is empty")
	}

	id, err := e.db.NextElectionID()
	if err != nil {
		return 0, err
	}
	err = e.db.StoreElection(types.Election{
		ID:              id,
		Title:           title,
		Description:     description,
		StartTime:       start,
		EndTime:         end,
		EligibilityRoot: eligibilityRoot,
		Candidates:      candidates,
	})
	if err != nil {
		return 0, err
	}
	log.Debugf("election created: id=%d title=%q root=%x", id, title, eligibilityRoot)
	return id, nil
}

// CastVote records a vote where the voter account submits (through the
// relay or directly) on its own behalf
func (e *Engine) CastVote(voter common.Address, electionID, candidateIndex uint64,
	nullifier, commitment []byte, eligProof types.EligibilityProof,
	proof *types.Proof) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordVote(voter, electionID, candidateIndex, nullifier,
		commitment, eligProof, proof)
}

// CastVoteWithNIC records a vote submitted by a session account on
// behalf of the identity's registered account. The session must hold a
// valid delegation for the identity, and the claimed original account
// must be the one bound to the identity. The eligibility leaf is always
// built from the registered account, so a delegation can not forge
// eligibility for an unregistered identity.
func (e *Engine) CastVoteWithNIC(electionID uint64, nic string, original,
	session common.Address, candidateIndex uint64, nullifier, commitment []byte,
	eligProof types.EligibilityProof, proof *types.Proof) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.registry.HasValidAccess(nic, session)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	registered, err := e.registry.GetWalletByIdentity(nic)
	if err != nil {
		return err
	}
	if registered != original {
		return ErrAccessDenied
	}

	return e.recordVote(registered, electionID, candidateIndex, nullifier,
		commitment, eligProof, proof)
}

// recordVote is the single internal vote-recording routine. Expects
// e.mu to be held. Every check aborts the whole operation with no
// partial mutation.
func (e *Engine) recordVote(voter common.Address, electionID, candidateIndex uint64,
	nullifier, commitment []byte, eligProof types.EligibilityProof,
	proof *types.Proof) error {
	election, err := e.db.ReadElectionByID(electionID)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	if now < election.StartTime || now > election.EndTime {
		return ErrElectionNotOpen
	}
	if candidateIndex >= uint64(len(election.Candidates)) {
		return ErrCandidateOutOfRange
	}

	used, err := e.db.IsNullifierUsed(electionID, nullifier)
	if err != nil {
		return err
	}
	if used {
		return ErrDoubleVote
	}

	ok, err := eligibility.CheckProof(election.EligibilityRoot,
		eligProof.MerkleProof, eligProof.Index, voter, electionID)
	if err != nil || !ok {
		return ErrInvalidEligibility
	}

	if err := proof.CheckPublicInputs(commitment, nullifier, candidateIndex,
		electionID); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	ok, err = e.verifier.Verify(proof)
	if err != nil || !ok {
		return ErrInvalidProof
	}

	if err := e.db.RecordVote(electionID, candidateIndex, commitment,
		nullifier); err != nil {
		if errors.Is(err, db.ErrNullifierUsed) {
			return ErrDoubleVote
		}
		return err
	}

	// the public record carries only the commitment and the nullifier
	log.Debugf("vote cast: electionID=%d commitment=%x nullifier=%x",
		electionID, commitment, nullifier)
	return nil
}

// GetElection returns the election record with its candidates
func (e *Engine) GetElection(electionID uint64) (*types.Election, error) {
	return e.db.ReadElectionByID(electionID)
}

// CheckResult returns the candidates of the given election with their
// current vote counts
func (e *Engine) CheckResult(electionID uint64) ([]types.Candidate, error) {
	if _, err := e.db.ReadElectionByID(electionID); err != nil {
		return nil, err
	}
	return e.db.ReadCandidates(electionID)
}

// GetCandidateInfo returns the candidate with the given index of the
// given election
func (e *Engine) GetCandidateInfo(electionID, candidateIndex uint64) (*types.Candidate, error) {
	if _, err := e.db.ReadElectionByID(electionID); err != nil {
		return nil, err
	}
	return e.db.ReadCandidate(electionID, candidateIndex)
}

// IsNullifierUsed returns true if the given nullifier is already present
// in the election's nullifier set
func (e *Engine) IsNullifierUsed(electionID uint64, nullifier []byte) (bool, error) {
	if _, err := e.db.ReadElectionByID(electionID); err != nil {
		return false, err
	}
	return e.db.IsNullifierUsed(electionID, nullifier)
}

// GetTotalVotes returns the total number of accepted votes of the given
// election
func (e *Engine) GetTotalVotes(electionID uint64) (uint64, error) {
	election, err := e.db.ReadElectionByID(electionID)
	if err != nil {
		return 0, err
	}
	return election.TotalVotes, nil
}

// GetVoteCastRecords returns the public vote records of the given
// election (commitments and nullifiers only)
func (e *Engine) GetVoteCastRecords(electionID uint64) ([]types.VoteCastRecord, error) {
	if _, err := e.db.ReadElectionByID(electionID); err != nil {
		return nil, err
	}
	return e.db.ReadVoteCastByElectionID(electionID)
}
