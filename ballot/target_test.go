package ballot

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	_ "github.com/mattn/go-sqlite3"
	"github.com/zkballot/zkballot-node/types"
)

func TestCallEnvelope(t *testing.T) {
	c := qt.New(t)
	e, reg := newTestEngine(c)
	v := setupVote(c, e, reg)

	callData, err := EncodeCastVoteWithNICCall(CastVoteWithNICParams{
		ElectionID:       v.electionID,
		NIC:              v.nic,
		OriginalAccount:  v.original,
		SessionAccount:   v.session,
		CandidateIndex:   v.candidate,
		Nullifier:        v.nullifier,
		Commitment:       v.commitment,
		EligibilityProof: v.eligProof,
		Proof:            v.proof,
	})
	c.Assert(err, qt.IsNil)

	// the claimed session must be the authenticated caller
	_, err = e.Call(v.original, nil, callData)
	c.Assert(err, qt.Equals, ErrAccessDenied)

	ret, err := e.Call(v.session, nil, callData)
	c.Assert(err, qt.IsNil)
	c.Assert(string(ret), qt.Equals, `"ok"`)

	total, err := e.GetTotalVotes(v.electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(total, qt.Equals, uint64(1))

	// malformed payloads are rejected
	_, err = e.Call(v.session, nil, []byte("not json"))
	c.Assert(err, qt.Not(qt.IsNil))
	_, err = e.Call(v.session, nil, []byte(`{"method":"unknown","params":{}}`))
	c.Assert(err, qt.Not(qt.IsNil))

	// direct method uses the caller as the voter account
	directData, err := EncodeCastVoteCall(CastVoteParams{
		ElectionID:       v.electionID,
		CandidateIndex:   v.candidate,
		Nullifier:        types.ByteArray("fresh nullifier"),
		Commitment:       v.commitment,
		EligibilityProof: v.eligProof,
		Proof:            v.proof,
	})
	c.Assert(err, qt.IsNil)
	// the session account is not an eligibility leaf, so the direct vote
	// from it fails
	_, err = e.Call(common.HexToAddress("0x9999999999999999999999999999999999999999"),
		nil, directData)
	c.Assert(err, qt.Not(qt.IsNil))
}
