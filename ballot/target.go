package ballot

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkballot/zkballot-node/types"
)

// The engine is also a relay target: a relayed callData payload is a
// JSON envelope selecting one of the vote methods. The relay performs no
// validation on the payload, so every method revalidates authorization
// on its own.

type callEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// CastVoteParams are the callData parameters of the direct vote method
type CastVoteParams struct {
	ElectionID       uint64                 `json:"electionID"`
	CandidateIndex   uint64                 `json:"candidateIndex"`
	Nullifier        types.ByteArray        `json:"nullifierHash"`
	Commitment       types.ByteArray        `json:"commitment"`
	EligibilityProof types.EligibilityProof `json:"eligibilityProof"`
	Proof            *types.Proof           `json:"proof"`
}

// CastVoteWithNICParams are the callData parameters of the delegated
// vote method
type CastVoteWithNICParams struct {
	ElectionID       uint64                 `json:"electionID"`
	NIC              string                 `json:"nic"`
	OriginalAccount  common.Address         `json:"originalAccount"`
	SessionAccount   common.Address         `json:"sessionAccount"`
	CandidateIndex   uint64                 `json:"candidateIndex"`
	Nullifier        types.ByteArray        `json:"nullifierHash"`
	Commitment       types.ByteArray        `json:"commitment"`
	EligibilityProof types.EligibilityProof `json:"eligibilityProof"`
	Proof            *types.Proof           `json:"proof"`
}

// EncodeCastVoteCall returns the callData payload of a direct vote
func EncodeCastVoteCall(p CastVoteParams) ([]byte, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(callEnvelope{Method: "castVote", Params: params})
}

// EncodeCastVoteWithNICCall returns the callData payload of a delegated
// vote
func EncodeCastVoteWithNICCall(p CastVoteWithNICParams) ([]byte, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(callEnvelope{Method: "castVoteWithNIC", Params: params})
}

// Call implements the relay Target interface. The caller is the
// authenticated signer of the relayed instruction.
func (e *Engine) Call(caller common.Address, value *big.Int, data []byte) ([]byte, error) {
	_ = value // votes carry no funds

	var env callEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("can not decode callData: %s", err)
	}

	switch env.Method {
	case "castVote":
		var p CastVoteParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, fmt.Errorf("can not decode castVote params: %s", err)
		}
		if err := e.CastVote(caller, p.ElectionID, p.CandidateIndex,
			p.Nullifier, p.Commitment, p.EligibilityProof, p.Proof); err != nil {
			return nil, err
		}
	case "castVoteWithNIC":
		var p CastVoteWithNICParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, fmt.Errorf("can not decode castVoteWithNIC params: %s", err)
		}
		// the claimed session account must be the authenticated signer
		if p.SessionAccount != caller {
			return nil, ErrAccessDenied
		}
		if err := e.CastVoteWithNIC(p.ElectionID, p.NIC, p.OriginalAccount,
			p.SessionAccount, p.CandidateIndex, p.Nullifier, p.Commitment,
			p.EligibilityProof, p.Proof); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown method %q", env.Method)
	}
	return []byte(`"ok"`), nil
}
