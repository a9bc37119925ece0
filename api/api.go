// Package api exposes the node operations over HTTP: wallet
// registration, session delegation, relayed execution, election
// management and vote casting.
package api

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/zkballot/zkballot-node/ballot"
	"github.com/zkballot/zkballot-node/prover"
	"github.com/zkballot/zkballot-node/registry"
	"github.com/zkballot/zkballot-node/relay"
	"github.com/zkballot/zkballot-node/treebuilder"
	"github.com/zkballot/zkballot-node/types"
	"go.vocdoni.io/dvote/log"
)

// API allows external requests to the Node
type API struct {
	r  *gin.Engine
	tb *treebuilder.TreeBuilder
	rg *registry.Registry
	rl *relay.Relay
	be *ballot.Engine
	pc *prover.Client
}

// New returns a new API with the endpoints, without starting to listen
func New(tb *treebuilder.TreeBuilder, rg *registry.Registry, rl *relay.Relay,
	be *ballot.Engine, pc *prover.Client) (*API, error) {
	if tb == nil && rg == nil {
		return nil, fmt.Errorf("can not create the API, at least" +
			" treebuilder or the node components should be active." +
			" Use --help to see the list of available flags.")
	}

	a := API{}

	r := gin.Default()

	if tb != nil {
		a.tb = tb

		r.POST("/eligibility/:electionid", a.postAddAccounts)
		r.GET("/eligibility/:electionid", a.getTreeInfo)
		r.POST("/eligibility/:electionid/close", a.postCloseTree)
		r.GET("/eligibility/:electionid/merkleproof/:account", a.getMerkleProof)
	}

	if rg != nil {
		a.rg = rg
		a.rl = rl
		a.be = be

		r.POST("/wallet", a.postRegisterWallet)
		r.GET("/wallet/:nic", a.getWallet)
		r.POST("/session", a.postCreateSession)
		r.POST("/session/revoke", a.postRevokeAccess)
		r.GET("/session/:nic/:session", a.getSessionValid)

		r.GET("/relay/nonce/:account", a.getNonce)
		r.POST("/relay/execute", a.postRelayExecute)
		r.POST("/relay/executedirect", a.postRelayExecuteDirect)

		r.POST("/election", a.postCreateElection)
		r.GET("/election/:electionid", a.getElection)
		r.GET("/election/:electionid/results", a.getResults)
		r.GET("/election/:electionid/nullifier/:nullifier", a.getNullifierUsed)
		r.GET("/election/:electionid/votes", a.getVoteCastRecords)
		r.POST("/vote", a.postCastVote)
		r.POST("/vote/nic", a.postCastVoteWithNIC)
	}

	if pc != nil {
		a.pc = pc

		r.POST("/proof", a.postGenProof)
		r.GET("/proof/:proofid", a.getProof)
	}

	a.r = r

	return &a, nil
}

// Serve serves the API at the given port
func (a *API) Serve(port string) error {
	return a.r.Run(":" + port)
}

type errorMsg struct {
	Message string `json:"message"`
}

func returnErr(c *gin.Context, err error) {
	log.Warnw("HTTP API Bad request error", "err", err)
	c.JSON(http.StatusBadRequest, errorMsg{
		Message: err.Error(),
	})
}

func electionIDFromParam(c *gin.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("electionid"), 10, 64)
}

//
// eligibility treebuilder handlers
//

func (a *API) postAddAccounts(c *gin.Context) {
	electionID, err := electionIDFromParam(c)
	if err != nil {
		returnErr(c, err)
		return
	}

	var d addAccountsReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}

	go a.tb.AddAccountsAndStoreError(electionID, d.Accounts)

	c.JSON(http.StatusOK, electionID)
}

func (a *API) getTreeInfo(c *gin.Context) {
	electionID, err := electionIDFromParam(c)
	if err != nil {
		returnErr(c, err)
		return
	}
	info, err := a.tb.TreeInfo(electionID)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (a *API) postCloseTree(c *gin.Context) {
	electionID, err := electionIDFromParam(c)
	if err != nil {
		returnErr(c, err)
		return
	}

	if err = a.tb.CloseTree(electionID); err != nil {
		returnErr(c, err)
		return
	}
	root, err := a.tb.Root(electionID)
	if err != nil {
		returnErr(c, err)
		return
	}
	log.Debugf("[electionID=%d] eligibility tree closed. Root: %x", electionID, root)
	c.JSON(http.StatusOK, hex.EncodeToString(root))
}

func (a *API) getMerkleProof(c *gin.Context) {
	electionID, err := electionIDFromParam(c)
	if err != nil {
		returnErr(c, err)
		return
	}
	if !common.IsHexAddress(c.Param("account")) {
		returnErr(c, fmt.Errorf("invalid account"))
		return
	}
	account := common.HexToAddress(c.Param("account"))

	index, proof, err := a.tb.GetProof(electionID, account)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, types.EligibilityProof{
		Index:       index,
		MerkleProof: proof,
	})
}

//
// registry handlers
//

func (a *API) postRegisterWallet(c *gin.Context) {
	var d registerWalletReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}
	if err := a.rg.RegisterWallet(d.NIC, d.Account); err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d.Account)
}

func (a *API) getWallet(c *gin.Context) {
	addr, err := a.rg.GetWalletByIdentity(c.Param("nic"))
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, addr)
}

func (a *API) postCreateSession(c *gin.Context) {
	var d createSessionReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}
	duration := time.Duration(d.DurationSeconds) * time.Second
	err := a.rg.CreateSession(d.Caller, d.NIC, d.SessionAccount, duration)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d.SessionAccount)
}

func (a *API) postRevokeAccess(c *gin.Context) {
	var d revokeAccessReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}
	if err := a.rg.RevokeAccess(d.Caller, d.NIC, d.SessionAccount); err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d.SessionAccount)
}

func (a *API) getSessionValid(c *gin.Context) {
	if !common.IsHexAddress(c.Param("session")) {
		returnErr(c, fmt.Errorf("invalid session account"))
		return
	}
	session := common.HexToAddress(c.Param("session"))
	ok, err := a.rg.HasValidAccess(c.Param("nic"), session)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ok)
}

//
// relay handlers
//

func (a *API) getNonce(c *gin.Context) {
	if !common.IsHexAddress(c.Param("account")) {
		returnErr(c, fmt.Errorf("invalid account"))
		return
	}
	nonce, err := a.rl.GetNonce(common.HexToAddress(c.Param("account")))
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, nonce)
}

func (a *API) postRelayExecute(c *gin.Context) {
	var d relayCallReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}
	success, ret, err := a.rl.ExecuteGaslessTemporaryTransaction(
		d.OriginalAccount, d.SessionAccount, d.Target,
		new(big.Int).SetUint64(d.Value), d.CallData, d.Signature)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, relayCallResp{Success: success, ReturnData: ret})
}

func (a *API) postRelayExecuteDirect(c *gin.Context) {
	var d metaCallReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}
	success, ret, err := a.rl.ExecuteMetaTransaction(d.Account, d.Target,
		new(big.Int).SetUint64(d.Value), d.CallData, d.Signature)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, relayCallResp{Success: success, ReturnData: ret})
}

//
// ballot handlers
//

func (a *API) postCreateElection(c *gin.Context) {
	var d createElectionReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}
	id, err := a.be.CreateElection(d.Caller, d.Title, d.Description,
		d.StartTime, d.EndTime, d.Candidates, d.EligibilityRoot)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

func (a *API) getElection(c *gin.Context) {
	electionID, err := electionIDFromParam(c)
	if err != nil {
		returnErr(c, err)
		return
	}
	election, err := a.be.GetElection(electionID)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, election)
}

func (a *API) getResults(c *gin.Context) {
	electionID, err := electionIDFromParam(c)
	if err != nil {
		returnErr(c, err)
		return
	}
	candidates, err := a.be.CheckResult(electionID)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, candidates)
}

func (a *API) getNullifierUsed(c *gin.Context) {
	electionID, err := electionIDFromParam(c)
	if err != nil {
		returnErr(c, err)
		return
	}
	nullifier, err := hex.DecodeString(c.Param("nullifier"))
	if err != nil {
		returnErr(c, err)
		return
	}
	used, err := a.be.IsNullifierUsed(electionID, nullifier)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, used)
}

func (a *API) getVoteCastRecords(c *gin.Context) {
	electionID, err := electionIDFromParam(c)
	if err != nil {
		returnErr(c, err)
		return
	}
	records, err := a.be.GetVoteCastRecords(electionID)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (a *API) postCastVote(c *gin.Context) {
	var d castVoteReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}
	err := a.be.CastVote(d.Caller, d.ElectionID, d.CandidateIndex,
		d.Nullifier, d.Commitment, d.EligibilityProof, d.Proof)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, true)
}

//
// prover proxy handlers
//

func (a *API) postGenProof(c *gin.Context) {
	var inputs prover.ProofInputs
	if err := c.ShouldBindJSON(&inputs); err != nil {
		returnErr(c, err)
		return
	}
	id, err := a.pc.GenProof(&inputs)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (a *API) getProof(c *gin.Context) {
	proofID, err := strconv.ParseUint(c.Param("proofid"), 10, 64)
	if err != nil {
		returnErr(c, err)
		return
	}
	proof, err := a.pc.GetProof(proofID)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, proof)
}

func (a *API) postCastVoteWithNIC(c *gin.Context) {
	var d castVoteWithNICReq
	if err := c.ShouldBindJSON(&d); err != nil {
		returnErr(c, err)
		return
	}
	err := a.be.CastVoteWithNIC(d.ElectionID, d.NIC, d.OriginalAccount,
		d.SessionAccount, d.CandidateIndex, d.Nullifier, d.Commitment,
		d.EligibilityProof, d.Proof)
	if err != nil {
		returnErr(c, err)
		return
	}
	c.JSON(http.StatusOK, true)
}
