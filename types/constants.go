package types

import (
	"math"
	"time"

	"github.com/vocdoni/arbo"
)

var (
	// MaxLevels indicates the maximum number of levels in the
	// eligibility MerkleTree
	MaxLevels int = 64
	// MaxNLeafs indicates the maximum number of leaves in the
	// eligibility MerkleTree
	MaxNLeafs uint64 = uint64(math.MaxUint64)
	// MaxKeyLen indicates the maximum key (index) length in the
	// eligibility MerkleTree
	MaxKeyLen int = int(math.Ceil(float64(MaxLevels) / float64(8))) //nolint:gomnd
	// EmptyRoot is a byte array of 0s, with the length of the hash
	// function output length used in the eligibility MerkleTree
	EmptyRoot = make([]byte, arbo.HashFunctionPoseidon.Len())
)

const (
	// MaxSessionDuration is the upper bound for a session delegation
	// window
	MaxSessionDuration = 7 * 24 * time.Hour
	// DefaultSessionDuration is used when createSession is called with
	// duration=0
	DefaultSessionDuration = time.Hour
	// SignatureSize is the length of a [R || S || V] secp256k1 signature
	SignatureSize = 65
)
