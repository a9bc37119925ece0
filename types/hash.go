package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/arbo"
)

// HashNIC returns the keccak256 hash of the given identity string. Only
// this hash is ever stored, the plaintext identity does not reach the
// state store.
func HashNIC(nic string) []byte {
	return crypto.Keccak256([]byte(nic))
}

// Uint64ToIndex returns the index bytes to be used as a leaf key in the
// eligibility MerkleTree
func Uint64ToIndex(u uint64) []byte {
	return arbo.BigIntToBytes(MaxKeyLen, new(big.Int).SetUint64(u))
}

// HashEligibilityLeaf computes the leaf value of the eligibility
// MerkleTree for the given account and electionID. The leaf is always
// built from the registered account, never from a session account.
func HashEligibilityLeaf(account common.Address, electionID uint64) ([]byte, error) {
	h, err := poseidon.Hash([]*big.Int{
		new(big.Int).SetBytes(account.Bytes()),
		new(big.Int).SetUint64(electionID),
	})
	if err != nil {
		return nil, err
	}
	return arbo.BigIntToBytes(arbo.HashFunctionPoseidon.Len(), h), nil
}

// RelayCallDigest computes the message digest signed by a session
// account for the session-delegated relay path. The digest commits to
// the ordered tuple (originalAccount, sessionAccount, target, value,
// callData, nonce, relayID), so a signature is valid for exactly one
// nonce value at one relay.
func RelayCallDigest(original, session, target common.Address, value *big.Int,
	callData []byte, nonce uint64, relayID common.Address) []byte {
	if value == nil {
		value = big.NewInt(0)
	}
	return crypto.Keccak256(
		original.Bytes(),
		session.Bytes(),
		target.Bytes(),
		common.LeftPadBytes(value.Bytes(), 32), //nolint:gomnd
		crypto.Keccak256(callData),
		common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32), //nolint:gomnd
		relayID.Bytes(),
	)
}

// MetaCallDigest computes the message digest signed by a registered
// account for the direct (non-delegated) relay path
func MetaCallDigest(account, target common.Address, value *big.Int,
	callData []byte, nonce uint64, relayID common.Address) []byte {
	if value == nil {
		value = big.NewInt(0)
	}
	return crypto.Keccak256(
		account.Bytes(),
		target.Bytes(),
		common.LeftPadBytes(value.Bytes(), 32), //nolint:gomnd
		crypto.Keccak256(callData),
		common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32), //nolint:gomnd
		relayID.Bytes(),
	)
}
