package bridge

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/attestation"
	"github.com/omni/bridge-orchestrator/contract"
	"github.com/omni/bridge-orchestrator/retry"
)

type Attestation struct {
	Message     []byte             `json:"message"`
	Attestation []byte             `json:"attestation"`
	Status      attestation.Status `json:"status"`
}

// CheckAttestation makes a single oracle query. It returns nil, nil until the
// first message of the burn transaction is attested.
func (o *Orchestrator) CheckAttestation(ctx context.Context, burnTxHash common.Hash, sourceDomain uint32) (*Attestation, error) {
	msgs, err := o.attestations.GetMessages(ctx, sourceDomain, burnTxHash)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 || msgs[0].Status != attestation.StatusComplete {
		return nil, nil
	}
	if err = o.verifyBurnMessage(ctx, burnTxHash, sourceDomain, msgs[0].Message); err != nil {
		return nil, err
	}
	return &Attestation{
		Message:     msgs[0].Message,
		Attestation: msgs[0].Attestation,
		Status:      msgs[0].Status,
	}, nil
}

// verifyBurnMessage matches the attested message against the MessageSent events
// of the burn. The check is skipped when the source chain can't be read.
func (o *Orchestrator) verifyBurnMessage(ctx context.Context, burnTxHash common.Hash, sourceDomain uint32, message []byte) error {
	if o.chains == nil {
		return nil
	}
	src, err := o.registry.ByDomain(sourceDomain)
	if err != nil {
		return err
	}
	sent, err := o.chains.SentMessages(ctx, src.Name, burnTxHash)
	if err != nil {
		o.logger.WithError(err).WithField("burn_tx_hash", burnTxHash.Hex()).Debug("can't read burn receipt, skipping message check")
		return nil
	}
	for _, m := range sent {
		if contract.SameBurn(message, m) {
			return nil
		}
	}
	if len(sent) == 0 {
		return nil
	}
	return fmt.Errorf("attested message doesn't match burn transaction %s: %w", burnTxHash, apperr.ErrExternalService)
}

// WaitForAttestation polls CheckAttestation within the attestation poll budget.
// Oracle errors are retried. It never touches the transfer record.
func (o *Orchestrator) WaitForAttestation(ctx context.Context, burnTxHash common.Hash, sourceDomain uint32) (*Attestation, error) {
	logger := o.logger.WithFields(logrus.Fields{
		"burn_tx_hash":  burnTxHash.Hex(),
		"source_domain": sourceDomain,
	})
	var res *Attestation
	var lastErr error
	err := retry.Poll(ctx, o.policy.AttestationPoll, o.clock, func(ctx context.Context, attempt int) (bool, error) {
		att, err := o.CheckAttestation(ctx, burnTxHash, sourceDomain)
		if err != nil {
			if isContextError(err) && ctx.Err() != nil {
				return false, ctx.Err()
			}
			lastErr = err
			logger.WithError(err).WithField("attempt", attempt).Warn("can't check attestation, retrying")
			return false, nil
		}
		if att == nil {
			logger.WithField("attempt", attempt).Debug("attestation is not ready yet")
			return false, nil
		}
		res = att
		return true, nil
	})
	if err != nil {
		o.observeError("wait_for_attestation", err)
		if lastErr != nil {
			return nil, fmt.Errorf("attestation for %s not available (last error: %v): %w", burnTxHash, lastErr, err)
		}
		return nil, fmt.Errorf("attestation for %s not available: %w", burnTxHash, err)
	}
	logger.Info("attestation is complete")
	return res, nil
}
