package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/zkballot/zkballot-node/ballot"
	"github.com/zkballot/zkballot-node/types"
)

type registerWalletReq struct {
	NIC     string         `json:"nic"`
	Account common.Address `json:"account"`
}

type createSessionReq struct {
	// Caller is the authenticated account performing the operation
	Caller          common.Address `json:"caller"`
	NIC             string         `json:"nic"`
	SessionAccount  common.Address `json:"sessionAccount"`
	DurationSeconds uint64         `json:"durationSeconds"`
}

type revokeAccessReq struct {
	Caller         common.Address `json:"caller"`
	NIC            string         `json:"nic"`
	SessionAccount common.Address `json:"sessionAccount"`
}

type relayCallReq struct {
	OriginalAccount common.Address  `json:"originalAccount"`
	SessionAccount  common.Address  `json:"sessionAccount"`
	Target          common.Address  `json:"target"`
	Value           uint64          `json:"value"`
	CallData        types.ByteArray `json:"callData"`
	Signature       types.ByteArray `json:"signature"`
}

type metaCallReq struct {
	Account   common.Address  `json:"account"`
	Target    common.Address  `json:"target"`
	Value     uint64          `json:"value"`
	CallData  types.ByteArray `json:"callData"`
	Signature types.ByteArray `json:"signature"`
}

type relayCallResp struct {
	Success    bool            `json:"success"`
	ReturnData types.ByteArray `json:"returnData"`
}

type createElectionReq struct {
	Caller          common.Address    `json:"caller"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	StartTime       int64             `json:"startTime"`
	EndTime         int64             `json:"endTime"`
	Candidates      []types.Candidate `json:"candidates"`
	EligibilityRoot types.ByteArray   `json:"eligibilityRoot"`
}

type castVoteReq struct {
	Caller common.Address `json:"caller"`
	ballot.CastVoteParams
}

type castVoteWithNICReq struct {
	ballot.CastVoteWithNICParams
}

type addAccountsReq struct {
	Accounts []common.Address `json:"accounts"`
}
