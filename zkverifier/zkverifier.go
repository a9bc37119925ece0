// Package zkverifier defines the zero-knowledge proof verifier
// capability used by the ballot engine, and ships a placeholder
// implementation that checks only the well-formedness of the proof
// points. The placeholder performs NO pairing check and gives no
// soundness guarantee; it must be replaced by a real proving-system
// backend before the node can be trusted with a binding election.
package zkverifier

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/constants"
	"github.com/zkballot/zkballot-node/types"
)

// Verifier verifies a zero-knowledge proof together with its embedded
// public inputs. One implementation per proving-system backend.
type Verifier interface {
	Verify(proof *types.Proof) (bool, error)
}

// Placeholder is a non-sound Verifier: it accepts any proof whose points
// are non-zero and inside the BN254 field. It only catches malformed or
// trivially empty proofs.
type Placeholder struct{}

// NewPlaceholder returns a new Placeholder verifier
func NewPlaceholder() *Placeholder {
	return &Placeholder{}
}

func checkFieldElem(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%s is empty", name)
	}
	if v.Sign() < 0 || v.Cmp(constants.Q) >= 0 {
		return fmt.Errorf("%s is out of the field range", name)
	}
	return nil
}

// Verify implements the Verifier interface. It returns false when any
// proof point is zero or out of the field range. It never attests
// soundness.
func (v *Placeholder) Verify(proof *types.Proof) (bool, error) {
	if proof == nil {
		return false, fmt.Errorf("proof is empty")
	}
	if proof.Protocol != "groth16" {
		return false, fmt.Errorf("unsupported protocol: %q", proof.Protocol)
	}

	zero := true
	for i := 0; i < 2; i++ {
		if err := checkFieldElem(fmt.Sprintf("pi_a[%d]", i), proof.A[i]); err != nil {
			return false, err
		}
		if err := checkFieldElem(fmt.Sprintf("pi_c[%d]", i), proof.C[i]); err != nil {
			return false, err
		}
		if proof.A[i].Sign() != 0 || proof.C[i].Sign() != 0 {
			zero = false
		}
		for j := 0; j < 2; j++ {
			if err := checkFieldElem(fmt.Sprintf("pi_b[%d][%d]", i, j),
				proof.B[i][j]); err != nil {
				return false, err
			}
			if proof.B[i][j].Sign() != 0 {
				zero = false
			}
		}
	}
	if zero {
		return false, nil
	}

	for i := 0; i < len(proof.PublicInputs); i++ {
		if err := checkFieldElem(fmt.Sprintf("publicInputs[%d]", i),
			proof.PublicInputs[i]); err != nil {
			return false, err
		}
	}

	return true, nil
}
