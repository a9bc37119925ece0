package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/zkballot/zkballot-node/ballot"
	"github.com/zkballot/zkballot-node/db"
	"github.com/zkballot/zkballot-node/registry"
	"github.com/zkballot/zkballot-node/relay"
	"github.com/zkballot/zkballot-node/test"
	"github.com/zkballot/zkballot-node/treebuilder"
	"github.com/zkballot/zkballot-node/types"
	"github.com/zkballot/zkballot-node/zkverifier"
	kvdb "go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/pebbledb"
)

var (
	adminAddr  = common.HexToAddress("0xadadadadadadadadadadadadadadadadadadadad")
	relayAddr  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	ballotAddr = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func newTestAPI(c *qt.C) *API {
	gin.SetMode(gin.TestMode)

	// create the TreeBuilder
	database, err := pebbledb.New(kvdb.Options{Path: c.TempDir()})
	c.Assert(err, qt.IsNil)
	tb, err := treebuilder.New(database, c.TempDir())
	c.Assert(err, qt.IsNil)

	// create the node components around one SQLite state store
	sqlDB, err := sql.Open("sqlite3", filepath.Join(c.TempDir(), "testdb.sqlite3"))
	c.Assert(err, qt.IsNil)
	sqlite := db.NewSQLite(sqlDB)
	err = sqlite.Migrate()
	c.Assert(err, qt.IsNil)

	dispatcher := relay.NewDispatcher()

	rg, err := registry.New(registry.Options{DB: sqlite, Forwarder: dispatcher})
	c.Assert(err, qt.IsNil)

	rl, err := relay.New(relay.Options{
		DB:            sqlite,
		AccessChecker: rg,
		Dispatcher:    dispatcher,
		Address:       relayAddr,
	})
	c.Assert(err, qt.IsNil)

	be, err := ballot.New(ballot.Options{
		DB:       sqlite,
		Registry: rg,
		Verifier: zkverifier.NewPlaceholder(),
		Admin:    adminAddr,
	})
	c.Assert(err, qt.IsNil)
	dispatcher.RegisterTarget(ballotAddr, be)

	a, err := New(tb, rg, rl, be, nil)
	c.Assert(err, qt.IsNil)
	return a
}

func doPost(c *qt.C, a *API, path string, reqData, respData interface{}) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if reqData != nil {
		jsonReqData, err := json.Marshal(reqData)
		c.Assert(err, qt.IsNil)
		body = bytes.NewBuffer(jsonReqData)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest("POST", path, body)
	c.Assert(err, qt.IsNil)
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	if respData != nil && w.Code == http.StatusOK {
		respBody, err := ioutil.ReadAll(w.Body)
		c.Assert(err, qt.IsNil)
		err = json.Unmarshal(respBody, respData)
		c.Assert(err, qt.IsNil)
	}
	return w
}

func doGet(c *qt.C, a *API, path string, respData interface{}) *httptest.ResponseRecorder {
	req, err := http.NewRequest("GET", path, nil)
	c.Assert(err, qt.IsNil)
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	if respData != nil && w.Code == http.StatusOK {
		respBody, err := ioutil.ReadAll(w.Body)
		c.Assert(err, qt.IsNil)
		err = json.Unmarshal(respBody, respData)
		c.Assert(err, qt.IsNil)
	}
	return w
}

func TestWalletAndSessionFlow(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	keys := test.GenUserKeys(c, 2)
	account, session := keys.Addresses[0], keys.Addresses[1]

	w := doPost(c, a, "/wallet", registerWalletReq{NIC: "V001", Account: account}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	// repeated registration is rejected
	w = doPost(c, a, "/wallet", registerWalletReq{NIC: "V001", Account: session}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)

	var addr common.Address
	w = doGet(c, a, "/wallet/V001", &addr)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(addr, qt.Equals, account)

	w = doPost(c, a, "/session", createSessionReq{
		Caller:          account,
		NIC:             "V001",
		SessionAccount:  session,
		DurationSeconds: 3600,
	}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	var valid bool
	w = doGet(c, a, "/session/V001/"+session.Hex(), &valid)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(valid, qt.IsTrue)

	w = doPost(c, a, "/session/revoke", revokeAccessReq{
		Caller:         account,
		NIC:            "V001",
		SessionAccount: session,
	}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	w = doGet(c, a, "/session/V001/"+session.Hex(), &valid)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(valid, qt.IsFalse)
}

func TestElectionIDParam(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	// negative ids are rejected instead of wrapping to huge uints
	w := doGet(c, a, "/election/-1", nil)
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)

	w = doGet(c, a, "/eligibility/-1", nil)
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)
}

func TestGaslessVoteFlow(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	keys := test.GenUserKeys(c, 2)
	original, session := keys.Addresses[0], keys.Addresses[1]
	sessionKey := keys.PrivateKeys[1]

	// register the wallet, create the session
	w := doPost(c, a, "/wallet", registerWalletReq{NIC: "V001", Account: original}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	w = doPost(c, a, "/session", createSessionReq{
		Caller:         original,
		NIC:            "V001",
		SessionAccount: session,
	}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	// build and close the eligibility tree for the upcoming election
	electionID := uint64(1)
	electionIDStr := strconv.Itoa(int(electionID))
	w = doPost(c, a, "/eligibility/"+electionIDStr,
		addAccountsReq{Accounts: []common.Address{original}}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	// accounts are added in background, wait until the tree has them
	for i := 0; ; i++ {
		var info struct {
			Size uint64 `json:"size"`
		}
		doGet(c, a, "/eligibility/"+electionIDStr, &info)
		if info.Size == 1 {
			break
		}
		c.Assert(i < 100, qt.IsTrue, qt.Commentf("timeout waiting for the tree"))
		time.Sleep(10 * time.Millisecond)
	}

	var rootHex string
	w = doPost(c, a, "/eligibility/"+electionIDStr+"/close", nil, &rootHex)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	var root types.ByteArray
	err := json.Unmarshal([]byte(`"`+rootHex+`"`), &root)
	c.Assert(err, qt.IsNil)

	// create the election with the published root
	now := time.Now().Unix()
	var id uint64
	w = doPost(c, a, "/election", createElectionReq{
		Caller:      adminAddr,
		Title:       "test election",
		Description: "d",
		StartTime:   now - 10,
		EndTime:     now + 3600,
		Candidates: []types.Candidate{
			{Name: "candidate0", ExternalID: "c0"},
			{Name: "candidate1", ExternalID: "c1"},
		},
		EligibilityRoot: root,
	}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	respBody, err := ioutil.ReadAll(w.Body)
	c.Assert(err, qt.IsNil)
	c.Assert(json.Unmarshal(respBody, &id), qt.IsNil)
	c.Assert(id, qt.Equals, electionID)

	// fetch the merkleproof of the voter account
	var eligProof types.EligibilityProof
	w = doGet(c, a, "/eligibility/"+electionIDStr+"/merkleproof/"+original.Hex(),
		&eligProof)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	// build the vote and the relayed callData
	candidate := uint64(0)
	commitment, nullifier := test.GenVoteSecrets([]byte("secret"), candidate, electionID)
	callData, err := ballot.EncodeCastVoteWithNICCall(ballot.CastVoteWithNICParams{
		ElectionID:       electionID,
		NIC:              "V001",
		OriginalAccount:  original,
		SessionAccount:   session,
		CandidateIndex:   candidate,
		Nullifier:        nullifier,
		Commitment:       commitment,
		EligibilityProof: eligProof,
		Proof:            test.GenProof(commitment, nullifier, candidate, electionID),
	})
	c.Assert(err, qt.IsNil)

	// sign the relay instruction with the session key over nonce 0
	digest := types.RelayCallDigest(original, session, ballotAddr, nil,
		callData, 0, relayAddr)
	sig := test.SignDigest(c, sessionKey, digest)

	var resp relayCallResp
	w = doPost(c, a, "/relay/execute", relayCallReq{
		OriginalAccount: original,
		SessionAccount:  session,
		Target:          ballotAddr,
		CallData:        callData,
		Signature:       sig,
	}, &resp)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(resp.Success, qt.IsTrue)

	// the vote is recorded
	var election types.Election
	w = doGet(c, a, "/election/"+electionIDStr, &election)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(election.TotalVotes, qt.Equals, uint64(1))
	c.Assert(election.Candidates[0].VoteCount, qt.Equals, uint64(1))

	var used bool
	w = doGet(c, a, "/election/"+electionIDStr+"/nullifier/"+
		common.Bytes2Hex(nullifier), &used)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(used, qt.IsTrue)

	// the relay nonce is consumed
	var nonce uint64
	w = doGet(c, a, "/relay/nonce/"+session.Hex(), &nonce)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(nonce, qt.Equals, uint64(1))

	// replaying the same relayed call fails
	w = doPost(c, a, "/relay/execute", relayCallReq{
		OriginalAccount: original,
		SessionAccount:  session,
		Target:          ballotAddr,
		CallData:        callData,
		Signature:       sig,
	}, nil)
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)

	// a second vote with the same nullifier (fresh signature over the
	// new nonce) is soft-rejected: the relay succeeds, the inner vote
	// fails the double-vote check
	digest = types.RelayCallDigest(original, session, ballotAddr, nil,
		callData, 1, relayAddr)
	sig = test.SignDigest(c, sessionKey, digest)
	w = doPost(c, a, "/relay/execute", relayCallReq{
		OriginalAccount: original,
		SessionAccount:  session,
		Target:          ballotAddr,
		CallData:        callData,
		Signature:       sig,
	}, &resp)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(resp.Success, qt.IsFalse)

	w = doGet(c, a, "/election/"+electionIDStr, &election)
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(election.TotalVotes, qt.Equals, uint64(1))
}
