// Package treebuilder manages the eligibility MerkleTrees of multiple
// elections, one sub-database per election.
package treebuilder

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkballot/zkballot-node/eligibility"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
	"go.vocdoni.io/dvote/log"
)

// TreeBuilder manages multiple eligibility MerkleTrees
type TreeBuilder struct {
	subDBsPath string
	db         db.Database

	mu sync.Mutex
	// trees contains the loaded eligibility trees, by electionID
	trees map[uint64]*eligibility.Tree
}

// New loads the TreeBuilder
func New(database db.Database, subDBsPath string) (*TreeBuilder, error) {
	return &TreeBuilder{
		subDBsPath: subDBsPath,
		db:         database,
		trees:      make(map[uint64]*eligibility.Tree),
	}, nil
}

// loadTreeIfNotYet will load the eligibility tree in memory if it is not
// loaded yet
func (tb *TreeBuilder) loadTreeIfNotYet(electionID uint64) (*eligibility.Tree, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if t, ok := tb.trees[electionID]; ok {
		return t, nil
	}
	optsDB := db.Options{Path: tb.subDBsPath + "/" + strconv.FormatUint(electionID, 10)}
	database, err := pebbledb.New(optsDB)
	if err != nil {
		return nil, err
	}
	t, err := eligibility.New(eligibility.Options{DB: database, ElectionID: electionID})
	if err != nil {
		return nil, err
	}
	tb.trees[electionID] = t
	return t, nil
}

// AddAccounts adds the batch of given accounts to the eligibility tree
// of the given electionID, creating the tree if it does not exist yet
func (tb *TreeBuilder) AddAccounts(electionID uint64, accounts []common.Address) error {
	t, err := tb.loadTreeIfNotYet(electionID)
	if err != nil {
		return err
	}
	invalids, err := t.AddAccounts(accounts)
	if err != nil {
		return err
	}
	if len(invalids) != 0 {
		return fmt.Errorf("can not add %d accounts", len(invalids))
	}
	return nil
}

// AddAccountsAndStoreError adds the accounts to the tree of the given
// electionID, and in case of error, stores it into the tree db. Intended
// to be called from a goroutine.
func (tb *TreeBuilder) AddAccountsAndStoreError(electionID uint64,
	accounts []common.Address) {
	t, err := tb.loadTreeIfNotYet(electionID)
	if err != nil {
		log.Warnw("can not load eligibility tree", "electionID", electionID, "err", err)
		return
	}
	if err := tb.AddAccounts(electionID, accounts); err != nil {
		log.Warnw("can not add accounts", "electionID", electionID, "err", err)
		if err := t.SetErrMsg(err.Error()); err != nil {
			log.Warnw("can not store the error message", "err", err)
		}
	}
}

// CloseTree closes the eligibility tree of the given electionID
func (tb *TreeBuilder) CloseTree(electionID uint64) error {
	t, err := tb.loadTreeIfNotYet(electionID)
	if err != nil {
		return err
	}
	return t.Close()
}

// Root returns the root of the eligibility tree of the given electionID,
// if the tree is closed
func (tb *TreeBuilder) Root(electionID uint64) ([]byte, error) {
	t, err := tb.loadTreeIfNotYet(electionID)
	if err != nil {
		return nil, err
	}
	root, err := t.Root()
	if err != nil {
		return nil, fmt.Errorf("can not get the eligibility root, %w", err)
	}
	return root, nil
}

// TreeInfo returns metadata about the eligibility tree of the given
// electionID
func (tb *TreeBuilder) TreeInfo(electionID uint64) (*eligibility.Info, error) {
	t, err := tb.loadTreeIfNotYet(electionID)
	if err != nil {
		return nil, err
	}
	return t.Info()
}

// GetProof returns the leaf index and MerkleProof of the given account
// in the eligibility tree of the given electionID
func (tb *TreeBuilder) GetProof(electionID uint64,
	account common.Address) (uint64, []byte, error) {
	t, err := tb.loadTreeIfNotYet(electionID)
	if err != nil {
		return 0, nil, err
	}
	return t.GenProof(account)
}
