package attestation

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

var ErrInvalidAttestation = errors.New("invalid attestation")

// Verifier checks that an attestation is a concatenation of signatures over
// keccak256(message) by known attesters, ordered by increasing signer address.
type Verifier struct {
	attesters map[common.Address]bool
}

func NewVerifier(attesters []common.Address) *Verifier {
	set := make(map[common.Address]bool, len(attesters))
	for _, a := range attesters {
		set[a] = true
	}
	return &Verifier{attesters: set}
}

func (v *Verifier) Verify(message, attestation []byte) error {
	if len(attestation) == 0 || len(attestation)%signatureLength != 0 {
		return fmt.Errorf("attestation length %d is not a multiple of %d: %w", len(attestation), signatureLength, ErrInvalidAttestation)
	}
	digest := crypto.Keccak256(message)
	var prev common.Address
	for i := 0; i < len(attestation); i += signatureLength {
		signer, err := RestoreSignerAddress(digest, attestation[i:i+signatureLength])
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidAttestation)
		}
		if i > 0 && bytes.Compare(prev.Bytes(), signer.Bytes()) >= 0 {
			return fmt.Errorf("signers are not in increasing order: %w", ErrInvalidAttestation)
		}
		if !v.attesters[signer] {
			return fmt.Errorf("unknown attester %s: %w", signer, ErrInvalidAttestation)
		}
		prev = signer
	}
	return nil
}

func RestoreSignerAddress(digest, sig []byte) (common.Address, error) {
	sig = common.CopyBytes(sig)
	if len(sig) >= signatureLength && sig[64] >= 27 {
		sig[64] -= 27
	}
	pk, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("can't recover ecdsa signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pk), nil
}
