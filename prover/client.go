// Package prover implements the http client to interact with the
// external proving service that produces the ballot zkProofs. The
// proving system itself is an off-ledger collaborator; the node only
// submits witness inputs and retrieves the resulting proof.
package prover

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zkballot/zkballot-node/types"
)

// ProofInputs contains the witness inputs sent to the proving service to
// generate a ballot proof
type ProofInputs struct {
	ElectionID     uint64          `json:"electionID"`
	Account        common.Address  `json:"account"`
	CandidateIndex uint64          `json:"candidateIndex"`
	Secret         types.ByteArray `json:"secret"`
	// LeafIndex and Siblings are the account's position and MerkleProof
	// in the eligibility tree
	LeafIndex uint64          `json:"leafIndex"`
	Siblings  types.ByteArray `json:"siblings"`
}

// Client implements the prover http client, used to make requests to the
// proving service
type Client struct {
	url string
	c   *http.Client
}

// NewClient returns a new Client for the given proverURL
func NewClient(proverURL string) *Client {
	return &Client{
		url: proverURL,
		c:   &http.Client{},
	}
}

type errorMsg struct {
	Message string `json:"message"`
}

// GenProof sends the given ProofInputs to the proving service to trigger
// the proof generation, and returns the id to use to retrieve the proof
// later
func (c *Client) GenProof(inputs *ProofInputs) (uint64, error) {
	jsonInputs, err := json.Marshal(inputs)
	if err != nil {
		return 0, err
	}
	resp, err := c.c.Post(c.url+"/proof", "application/json",
		bytes.NewBuffer(jsonInputs))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	if resp.StatusCode == http.StatusBadRequest {
		var errMsg errorMsg
		if err = json.Unmarshal(body, &errMsg); err != nil {
			return 0, err
		}
		return 0, errors.New(errMsg.Message)
	}

	// resp.body.id contains the id to use to retrieve the proof later
	var m map[string]uint64
	err = json.Unmarshal(body, &m)
	if err != nil {
		return 0, err
	}

	return m["id"], nil
}

// GetProof retrieves the generated proof for the given id. While the
// proof is not ready the proving service answers with NotFound.
func (c *Client) GetProof(id uint64) (*types.Proof, error) {
	resp, err := c.c.Get(fmt.Sprintf("%s/proof/%d", c.url, id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var errMsg errorMsg
		if err = json.Unmarshal(body, &errMsg); err != nil {
			return nil, err
		}
		return nil, errors.New(errMsg.Message)
	}

	var proof types.Proof
	if err = json.Unmarshal(body, &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}
