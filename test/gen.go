// Package test provides shared generators used by the tests of the
// other packages: user keys, eligibility trees and well-formed vote
// proofs.
package test

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/zkballot/zkballot-node/eligibility"
	"github.com/zkballot/zkballot-node/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
)

// Keys contains the test private keys and their account addresses
type Keys struct {
	PrivateKeys []*ecdsa.PrivateKey
	Addresses   []common.Address
}

// GenUserKeys returns n Keys
func GenUserKeys(c *qt.C, nUsers int) Keys {
	var keys Keys
	for i := 0; i < nUsers; i++ {
		sk, err := crypto.GenerateKey()
		c.Assert(err, qt.IsNil)
		keys.PrivateKeys = append(keys.PrivateKeys, sk)
		keys.Addresses = append(keys.Addresses, crypto.PubkeyToAddress(sk.PublicKey))
	}
	return keys
}

// GenEligibilityTree returns a closed eligibility tree for the given
// electionID containing the given accounts
func GenEligibilityTree(c *qt.C, electionID uint64,
	accounts []common.Address) *eligibility.Tree {
	database, err := pebbledb.New(db.Options{Path: c.TempDir()})
	c.Assert(err, qt.IsNil)

	tree, err := eligibility.New(eligibility.Options{
		DB:         database,
		ElectionID: electionID,
	})
	c.Assert(err, qt.IsNil)

	invalids, err := tree.AddAccounts(accounts)
	c.Assert(err, qt.IsNil)
	c.Assert(len(invalids), qt.Equals, 0)

	err = tree.Close()
	c.Assert(err, qt.IsNil)
	return tree
}

// SignDigest signs the given digest with the standard personal-message
// prefix, the way relay signers do
func SignDigest(c *qt.C, sk *ecdsa.PrivateKey, digest []byte) []byte {
	sig, err := crypto.Sign(accounts.TextHash(digest), sk)
	c.Assert(err, qt.IsNil)
	return sig
}

// HashToField hashes the given data into the BN254 field and returns the
// field element bytes. Used to derive test commitments and nullifiers
// that fit the proof public inputs.
func HashToField(data ...[]byte) []byte {
	h := new(big.Int).SetBytes(crypto.Keccak256(data...))
	return h.Mod(h, constants.Q).Bytes()
}

// GenVoteSecrets derives a test (commitment, nullifier) pair for the
// given voter secret and electionID
func GenVoteSecrets(secret []byte, candidateIndex, electionID uint64) (
	commitment, nullifier []byte) {
	election := new(big.Int).SetUint64(electionID).Bytes()
	candidate := new(big.Int).SetUint64(candidateIndex).Bytes()
	commitment = HashToField([]byte("commitment"), secret, candidate, election)
	nullifier = HashToField([]byte("nullifier"), secret, election)
	return commitment, nullifier
}

// GenProof returns a well-formed (placeholder-acceptable) proof with the
// given public inputs
func GenProof(commitment, nullifier []byte, candidateIndex,
	electionID uint64) *types.Proof {
	p := &types.Proof{Protocol: "groth16"}
	for i := 0; i < 3; i++ {
		p.A[i] = big.NewInt(int64(2*i + 1))
		p.C[i] = big.NewInt(int64(3*i + 1))
		for j := 0; j < 2; j++ {
			p.B[i][j] = big.NewInt(int64(5*i + j + 1))
		}
	}
	p.PublicInputs[0] = new(big.Int).SetBytes(commitment)
	p.PublicInputs[1] = new(big.Int).SetBytes(nullifier)
	p.PublicInputs[2] = new(big.Int).SetUint64(candidateIndex)
	p.PublicInputs[3] = new(big.Int).SetUint64(electionID)
	return p
}
