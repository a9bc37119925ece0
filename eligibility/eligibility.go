// Package eligibility implements the MerkleTree of eligible voter
// accounts for one election. The tree is built off-ledger; only its root
// is published at election creation.
package eligibility

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/arbo"
	"github.com/zkballot/zkballot-node/types"
	"go.vocdoni.io/dvote/db"
)

var (
	dbKeyNextIndex  = []byte("nextIndex")
	dbKeyTreeClosed = []byte("treeClosed")
)

var (
	// ErrTreeNotClosed is used when trying to do some action that needs
	// the eligibility tree to be closed
	ErrTreeNotClosed = errors.New("eligibility tree not closed yet")
	// ErrTreeClosed is used when trying to add accounts to a tree that
	// is already closed
	ErrTreeClosed = errors.New("eligibility tree closed, can not add more accounts")
	// ErrMaxNLeafsReached is used when trying to add a number of new
	// accounts which would exceed the maximum number of leaves in the tree
	ErrMaxNLeafsReached = fmt.Errorf("MaxNLeafs (%d) reached", types.MaxNLeafs)
)

// Info contains metadata about an eligibility tree
type Info struct {
	// ErrMsg contains the stored error message for the last operation
	// that gave error
	ErrMsg     string `json:"errMsg,omitempty"`
	ElectionID uint64 `json:"electionID"`
	Size       uint64 `json:"size"`
	Closed     bool   `json:"closed"`
	Root       []byte `json:"root,omitempty"`
}

// Tree contains the MerkleTree with the eligible accounts of one election
type Tree struct {
	electionID uint64
	tree       *arbo.Tree
	db         db.Database
}

// Options is used to pass the parameters to load a new Tree
type Options struct {
	// DB defines the database that will be used for the tree
	DB db.Database
	// ElectionID is the election whose eligible accounts the tree holds.
	// Each leaf value binds this id, so proofs are not transferable
	// between elections.
	ElectionID uint64
}

// New loads the eligibility tree
func New(opts Options) (*Tree, error) {
	arboConfig := arbo.Config{
		Database:     opts.DB,
		MaxLevels:    types.MaxLevels,
		HashFunction: arbo.HashFunctionPoseidon,
	}

	wTx := opts.DB.WriteTx()
	defer wTx.Discard()

	tree, err := arbo.NewTreeWithTx(wTx, arboConfig)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		electionID: opts.ElectionID,
		tree:       tree,
		db:         opts.DB,
	}

	// if nextIndex is not set in the db, initialize it to 0
	_, err = t.getNextIndex(wTx)
	if err != nil {
		err = t.setNextIndex(wTx, 0)
		if err != nil {
			return nil, err
		}
	}

	if _, err := wTx.Get(dbKeyTreeClosed); err == db.ErrKeyNotFound {
		if err := wTx.Set(dbKeyTreeClosed, []byte{0}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := wTx.Commit(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Tree) setNextIndex(wTx db.WriteTx, nextIndex uint64) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, nextIndex)
	return wTx.Set(dbKeyNextIndex, b)
}

func (t *Tree) getNextIndex(rTx db.ReadTx) (uint64, error) {
	b, err := rTx.Get(dbKeyNextIndex)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ElectionID returns the election id that the tree is bound to
func (t *Tree) ElectionID() uint64 {
	return t.electionID
}

// Size returns the number of accounts added to the tree
func (t *Tree) Size() (uint64, error) {
	rTx := t.db.ReadTx()
	defer rTx.Discard()
	return t.getNextIndex(rTx)
}

var dbKeyErrMsg = []byte("errmsg")

// SetErrMsg stores the given error message into the tree db
func (t *Tree) SetErrMsg(status string) error {
	wTx := t.db.WriteTx()
	defer wTx.Discard()

	if err := wTx.Set(dbKeyErrMsg, []byte(status)); err != nil {
		return err
	}
	return wTx.Commit()
}

// GetErrMsg returns the error message of the tree
func (t *Tree) GetErrMsg() (string, error) {
	rTx := t.db.ReadTx()
	defer rTx.Discard()

	b, err := rTx.Get(dbKeyErrMsg)
	if err == db.ErrKeyNotFound {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return string(b), nil
}

// Close closes the tree. Once closed no more accounts can be added and
// the root is final.
func (t *Tree) Close() error {
	isClosed, err := t.IsClosed()
	if err != nil {
		return err
	}
	if isClosed {
		return fmt.Errorf("eligibility tree already closed")
	}
	wTx := t.db.WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(dbKeyTreeClosed, []byte{1}); err != nil {
		return err
	}
	return wTx.Commit()
}

// IsClosed returns true if the tree is closed, and false if the tree is
// still open
func (t *Tree) IsClosed() (bool, error) {
	rTx := t.db.ReadTx()
	defer rTx.Discard()

	b, err := rTx.Get(dbKeyTreeClosed)
	if err != nil {
		return false, err
	}

	return bytes.Equal(b, []byte{1}), nil
}

// Root returns the tree root if the tree is closed
func (t *Tree) Root() ([]byte, error) {
	isClosed, err := t.IsClosed()
	if err != nil {
		return nil, err
	}

	if !isClosed {
		return nil, ErrTreeNotClosed
	}
	return t.tree.Root()
}

// IntermediateRoot returns the tree root even if the tree is not closed.
// WARNING: It should be used only for testing purposes.
func (t *Tree) IntermediateRoot() ([]byte, error) {
	return t.tree.Root()
}

// Info returns metadata about the tree
func (t *Tree) Info() (*Info, error) {
	size, err := t.Size()
	if err != nil {
		return nil, err
	}

	errMsg, err := t.GetErrMsg()
	if err != nil {
		return nil, err
	}

	isClosed, err := t.IsClosed()
	if err != nil {
		return nil, err
	}

	root := types.EmptyRoot
	if isClosed {
		root, err = t.Root()
		if err != nil {
			return nil, err
		}
	}

	return &Info{
		ErrMsg:     errMsg,
		ElectionID: t.electionID,
		Size:       size,
		Closed:     isClosed,
		Root:       root,
	}, nil
}

// AddAccounts adds the batch of given accounts, assigning incremental
// indexes to each one
func (t *Tree) AddAccounts(accounts []common.Address) ([]arbo.Invalid, error) {
	isClosed, err := t.IsClosed()
	if err != nil {
		return nil, err
	}
	if isClosed {
		return nil, ErrTreeClosed
	}
	wTx := t.db.WriteTx()
	defer wTx.Discard()

	nextIndex, err := t.getNextIndex(wTx)
	if err != nil {
		return nil, err
	}

	if nextIndex+uint64(len(accounts)) > types.MaxNLeafs {
		return nil, fmt.Errorf("%s, current index: %d, trying to add %d accounts",
			ErrMaxNLeafsReached, nextIndex, len(accounts))
	}
	var indexes [][]byte
	var leaves [][]byte
	for i := 0; i < len(accounts); i++ {
		index := nextIndex + uint64(i)
		indexBytes := types.Uint64ToIndex(index)
		indexes = append(indexes, indexBytes)

		// store the mapping between Account->Index
		if err := wTx.Set(accounts[i].Bytes(), indexBytes); err != nil {
			return nil, err
		}

		leaf, err := types.HashEligibilityLeaf(accounts[i], t.electionID)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}

	invalids, err := t.tree.AddBatchWithTx(wTx, indexes, leaves)
	if err != nil {
		return invalids, err
	}
	if len(invalids) != 0 {
		return invalids, fmt.Errorf("can not add %d accounts", len(invalids))
	}

	if err = t.setNextIndex(wTx, nextIndex+uint64(len(accounts))); err != nil {
		return nil, err
	}

	return nil, wTx.Commit()
}

// GenProof returns the leaf index and the MerkleProof compressed for the
// given account
func (t *Tree) GenProof(account common.Address) (uint64, []byte, error) {
	isClosed, err := t.IsClosed()
	if err != nil {
		return 0, nil, err
	}
	if !isClosed {
		// if the tree is not closed, it is still being updated.
		// MerkleProofs will be generated once the tree is closed for
		// the final root
		return 0, nil, ErrTreeNotClosed
	}

	rTx := t.db.ReadTx()
	defer rTx.Discard()

	// get index of the account
	indexBytes, err := rTx.Get(account.Bytes())
	if err != nil {
		return 0, nil, err
	}
	_, leafV, s, existence, err := t.tree.GenProof(indexBytes)
	if err != nil {
		return 0, nil, err
	}
	if !existence {
		// proof of non-existence currently not needed in the current use case
		return 0, nil,
			fmt.Errorf("account does not exist in the eligibility tree (%s)",
				account.Hex())
	}
	leaf, err := types.HashEligibilityLeaf(account, t.electionID)
	if err != nil {
		return 0, nil, err
	}
	if !bytes.Equal(leafV, leaf) {
		return 0, nil, fmt.Errorf("leafV!=leaf: %x!=%x", leafV, leaf)
	}
	index := arbo.BytesToBigInt(indexBytes).Uint64()
	return index, s, nil
}

// CheckProof checks a given MerkleProof of the given account (& index)
// for the given root and electionID
func CheckProof(root, proof []byte, index uint64, account common.Address,
	electionID uint64) (bool, error) {
	indexBytes := types.Uint64ToIndex(index)
	leaf, err := types.HashEligibilityLeaf(account, electionID)
	if err != nil {
		return false, err
	}

	return arbo.CheckProof(arbo.HashFunctionPoseidon, indexBytes, leaf, root, proof)
}
