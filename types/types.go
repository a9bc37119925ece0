package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ByteArray is a byte slice that marshals to/from a JSON hex string
type ByteArray []byte

// MarshalJSON implements the json.Marshaler interface for ByteArray
func (b ByteArray) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON implements the json.Unmarshaler interface for ByteArray
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	d, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = d
	return nil
}

// WalletRecord represents the registered wallet of an identity. The
// identity itself is stored only through its hash (see HashNIC).
type WalletRecord struct {
	NICHash          ByteArray      `json:"nicHash"`
	Address          common.Address `json:"address"`
	Active           bool           `json:"active"`
	InsertedDatetime time.Time      `json:"createdAt"`
}

// Candidate contains the data of an election candidate. The Index is the
// candidate identifier inside its election.
type Candidate struct {
	Index      uint64 `json:"index"`
	Name       string `json:"name"`
	ExternalID string `json:"externalID"`
	Party      string `json:"party,omitempty"`
	VoteCount  uint64 `json:"voteCount"`
}

// Election represents an election record with its published eligibility
// MerkleTree root
type Election struct {
	ID               uint64      `json:"id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	StartTime        int64       `json:"startTime"`
	EndTime          int64       `json:"endTime"`
	TotalVotes       uint64      `json:"totalVotes"`
	EligibilityRoot  ByteArray   `json:"eligibilityRoot"`
	Candidates       []Candidate `json:"candidates,omitempty"`
	InsertedDatetime time.Time   `json:"-"`
}

// EligibilityProof contains the proof of an account in the eligibility
// MerkleTree of an election
type EligibilityProof struct {
	Index       uint64    `json:"index"`
	MerkleProof ByteArray `json:"merkleProof"`
}

// VoteCastRecord is the public record emitted for each accepted vote. It
// carries only the commitment and the nullifier, never the chosen
// candidate.
type VoteCastRecord struct {
	ElectionID       uint64    `json:"electionID"`
	Commitment       ByteArray `json:"commitment"`
	Nullifier        ByteArray `json:"nullifier"`
	InsertedDatetime time.Time `json:"insertedDatetime"`
}

// RelayedCall is the record of a call forwarded by the relay, including
// the result of the inner call
type RelayedCall struct {
	ID               uint64         `json:"id"`
	Signer           common.Address `json:"signer"`
	Target           common.Address `json:"target"`
	Nonce            uint64         `json:"nonce"`
	Success          bool           `json:"success"`
	ReturnData       ByteArray      `json:"returnData"`
	InsertedDatetime time.Time      `json:"insertedDatetime"`
}

// Proof represents a Groth16 zkSNARK proof together with its public
// inputs: [commitment, nullifierHash, candidateIndex, electionID]
type Proof struct {
	A            [3]*big.Int    `json:"pi_a"`
	B            [3][2]*big.Int `json:"pi_b"`
	C            [3]*big.Int    `json:"pi_c"`
	PublicInputs [4]*big.Int    `json:"publicInputs"`
	Protocol     string         `json:"protocol"`
}

// CheckPublicInputs returns an error if the proof's embedded public
// inputs do not match the given values. It prevents mixing a proof
// generated for one (candidate, election) pair with different call
// arguments.
func (p *Proof) CheckPublicInputs(commitment, nullifier []byte,
	candidateIndex, electionID uint64) error {
	for i := 0; i < len(p.PublicInputs); i++ {
		if p.PublicInputs[i] == nil {
			return fmt.Errorf("publicInputs[%d] is empty", i)
		}
	}
	if p.PublicInputs[0].Cmp(new(big.Int).SetBytes(commitment)) != 0 {
		return fmt.Errorf("publicInputs[0] != commitment")
	}
	if p.PublicInputs[1].Cmp(new(big.Int).SetBytes(nullifier)) != 0 {
		return fmt.Errorf("publicInputs[1] != nullifierHash")
	}
	if p.PublicInputs[2].Cmp(new(big.Int).SetUint64(candidateIndex)) != 0 {
		return fmt.Errorf("publicInputs[2] != candidateIndex")
	}
	if p.PublicInputs[3].Cmp(new(big.Int).SetUint64(electionID)) != 0 {
		return fmt.Errorf("publicInputs[3] != electionID")
	}
	return nil
}
