package prover

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gin-gonic/gin"
	"github.com/zkballot/zkballot-node/types"
)

func TestGenProof(t *testing.T) {
	c := qt.New(t)

	r := gin.Default()
	r.POST("/proof", mockGenProof)

	ts := httptest.NewServer(r)
	defer ts.Close()

	p := NewClient(ts.URL)
	inputs := &ProofInputs{ElectionID: 1, CandidateIndex: 0}
	pID, err := p.GenProof(inputs)
	c.Assert(err, qt.IsNil)
	c.Assert(pID, qt.Equals, uint64(42))

	// now with handler that returns error
	r = gin.Default()
	r.POST("/proof", mockGenProofErr)
	ts = httptest.NewServer(r)
	defer ts.Close()

	p = NewClient(ts.URL)
	_, err = p.GenProof(inputs)
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(err.Error(), qt.Equals, "expected error msg")
}

func TestGetProof(t *testing.T) {
	c := qt.New(t)

	r := gin.Default()
	r.GET("/proof/:id", mockGetProof)

	ts := httptest.NewServer(r)
	defer ts.Close()

	p := NewClient(ts.URL)
	proof, err := p.GetProof(42)
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Protocol, qt.Equals, "groth16")
	c.Assert(proof.PublicInputs[3].Uint64(), qt.Equals, uint64(7))
}

func mockGenProof(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"id": 42,
	})
}

func mockGenProofErr(c *gin.Context) {
	c.JSON(http.StatusBadRequest, errorMsg{
		Message: "expected error msg",
	})
}

func mockGetProof(c *gin.Context) {
	p := types.Proof{Protocol: "groth16"}
	for i := 0; i < 3; i++ {
		p.A[i] = big.NewInt(1)
		p.C[i] = big.NewInt(1)
		for j := 0; j < 2; j++ {
			p.B[i][j] = big.NewInt(1)
		}
	}
	for i := 0; i < 4; i++ {
		p.PublicInputs[i] = big.NewInt(7)
	}
	c.JSON(http.StatusOK, p)
}
