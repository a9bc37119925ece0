package eligibility

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
)

// NOTE: most of the methods of Tree are wrappers over
// https://github.com/vocdoni/arbo. The proper tests are in arbo's repo,
// here there are tests that check the specific code of this package.

func newTestDB(c *qt.C) db.Database {
	database, err := pebbledb.New(db.Options{Path: c.TempDir()})
	c.Assert(err, qt.IsNil)
	return database
}

func newTestTree(c *qt.C, electionID uint64) *Tree {
	tree, err := New(Options{DB: newTestDB(c), ElectionID: electionID})
	c.Assert(err, qt.IsNil)
	return tree
}

func testAccounts(c *qt.C, n int) []common.Address {
	var accounts []common.Address
	for i := 0; i < n; i++ {
		k, err := crypto.GenerateKey()
		c.Assert(err, qt.IsNil)
		accounts = append(accounts, crypto.PubkeyToAddress(k.PublicKey))
	}
	return accounts
}

func TestAddAccounts(t *testing.T) {
	c := qt.New(t)
	tree := newTestTree(c, 1)

	accounts := testAccounts(c, 10)
	invalids, err := tree.AddAccounts(accounts)
	c.Assert(err, qt.IsNil)
	c.Assert(len(invalids), qt.Equals, 0)

	size, err := tree.Size()
	c.Assert(err, qt.IsNil)
	c.Assert(size, qt.Equals, uint64(10))

	// proofs are only available once the tree is closed
	_, _, err = tree.GenProof(accounts[0])
	c.Assert(err, qt.Equals, ErrTreeNotClosed)
	_, err = tree.Root()
	c.Assert(err, qt.Equals, ErrTreeNotClosed)

	err = tree.Close()
	c.Assert(err, qt.IsNil)

	// once closed, no more accounts can be added
	_, err = tree.AddAccounts(testAccounts(c, 1))
	c.Assert(err, qt.Equals, ErrTreeClosed)
	err = tree.Close()
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestProofRoundTrip(t *testing.T) {
	c := qt.New(t)
	electionID := uint64(42)
	tree := newTestTree(c, electionID)

	accounts := testAccounts(c, 5)
	_, err := tree.AddAccounts(accounts)
	c.Assert(err, qt.IsNil)
	err = tree.Close()
	c.Assert(err, qt.IsNil)

	root, err := tree.Root()
	c.Assert(err, qt.IsNil)

	for i := 0; i < len(accounts); i++ {
		index, proof, err := tree.GenProof(accounts[i])
		c.Assert(err, qt.IsNil)
		c.Assert(index, qt.Equals, uint64(i))

		ok, err := CheckProof(root, proof, index, accounts[i], electionID)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsTrue)

		// a proof is not valid for another account at the same index
		other := (accounts[(i+1)%len(accounts)])
		ok, err = CheckProof(root, proof, index, other, electionID)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)

		// nor for another electionID
		ok, err = CheckProof(root, proof, index, accounts[i], electionID+1)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)
	}

	// an account that is not in the tree has no proof
	_, _, err = tree.GenProof(testAccounts(c, 1)[0])
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestRootChangesWithSet(t *testing.T) {
	c := qt.New(t)
	electionID := uint64(7)
	accounts := testAccounts(c, 4)

	treeA := newTestTree(c, electionID)
	_, err := treeA.AddAccounts(accounts)
	c.Assert(err, qt.IsNil)
	c.Assert(treeA.Close(), qt.IsNil)
	rootA, err := treeA.Root()
	c.Assert(err, qt.IsNil)

	index, proof, err := treeA.GenProof(accounts[0])
	c.Assert(err, qt.IsNil)

	// mutate one account of the set and rebuild: the root changes and
	// proofs built against the old root stop verifying
	mutated := append([]common.Address{}, accounts...)
	mutated[3] = testAccounts(c, 1)[0]

	treeB := newTestTree(c, electionID)
	_, err = treeB.AddAccounts(mutated)
	c.Assert(err, qt.IsNil)
	c.Assert(treeB.Close(), qt.IsNil)
	rootB, err := treeB.Root()
	c.Assert(err, qt.IsNil)

	c.Assert(rootB, qt.Not(qt.DeepEquals), rootA)

	ok, err := CheckProof(rootB, proof, index, accounts[0], electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestInfo(t *testing.T) {
	c := qt.New(t)
	tree := newTestTree(c, 3)

	_, err := tree.AddAccounts(testAccounts(c, 2))
	c.Assert(err, qt.IsNil)

	info, err := tree.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.ElectionID, qt.Equals, uint64(3))
	c.Assert(info.Size, qt.Equals, uint64(2))
	c.Assert(info.Closed, qt.IsFalse)

	c.Assert(tree.Close(), qt.IsNil)
	root, err := tree.Root()
	c.Assert(err, qt.IsNil)

	info, err = tree.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.Closed, qt.IsTrue)
	c.Assert(info.Root, qt.DeepEquals, root)
}
