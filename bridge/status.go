package bridge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/entity"
)

// GetBridgeStatus returns the stored transfer. A transfer waiting for attestation
// is moved to ready_to_mint first when the oracle has attested its burn.
func (o *Orchestrator) GetBridgeStatus(ctx context.Context, transferID uuid.UUID) (*entity.Transfer, error) {
	t, err := o.getBridgeStatus(ctx, transferID, o.observers(nil))
	o.observeError("get_bridge_status", err)
	return t, err
}

func (o *Orchestrator) getBridgeStatus(ctx context.Context, transferID uuid.UUID, observers []Observer) (*entity.Transfer, error) {
	t, err := o.getTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if t.Status != entity.TransferStatusWaitingAttestation || t.BurnTxHash == nil {
		return t, nil
	}
	src, err := o.registry.Get(t.SourceChain)
	if err != nil {
		return nil, err
	}
	att, err := o.CheckAttestation(ctx, *t.BurnTxHash, src.DomainID)
	if err != nil {
		return nil, err
	}
	if att == nil {
		return t, nil
	}
	return o.markReadyToMint(ctx, t, att, observers)
}

// markReadyToMint stores the attestation. When another caller got there first
// the current record is returned instead.
func (o *Orchestrator) markReadyToMint(ctx context.Context, t *entity.Transfer, att *Attestation, observers []Observer) (*entity.Transfer, error) {
	res, err := o.tryTransition(ctx, t, entity.TransferStatusReadyToMint, &entity.TransferPatch{
		Message:     att.Message,
		Attestation: att.Attestation,
	}, observers)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return o.getTransfer(ctx, t.ID)
	}
	return res, nil
}

func (o *Orchestrator) ListTransfers(ctx context.Context, userID string, statuses []entity.TransferStatus) ([]*entity.Transfer, error) {
	for _, s := range statuses {
		if !s.IsValid() {
			return nil, fmt.Errorf("unknown status %q: %w", s, apperr.ErrValidation)
		}
	}
	res, err := o.transfers.ListByUser(ctx, userID, statuses)
	if err != nil {
		return nil, fmt.Errorf("can't list transfers: %w", err)
	}
	return res, nil
}

// GetBalance returns the token balance of the user's wallet on chain. Lookup
// failures degrade to a zero balance.
func (o *Orchestrator) GetBalance(ctx context.Context, userID, chain string) (string, error) {
	desc, err := o.registry.Get(chain)
	if err != nil {
		return "", err
	}
	const zero = "0.000000"
	logger := o.logger.WithField("user_id", userID).WithField("chain", desc.Name)
	wallet, err := o.wallets.FindByUserAndChain(ctx, userID, desc.Name)
	if err != nil {
		logger.WithError(err).Warn("can't find wallet for balance lookup, reporting zero")
		return zero, nil
	}
	if wallet == nil {
		logger.Debug("user has no wallet, reporting zero")
		return zero, nil
	}
	if o.chains == nil {
		return zero, nil
	}
	balance, err := o.chains.TokenBalance(ctx, desc.Name, wallet.Address)
	if err != nil {
		logger.WithError(err).Warn("can't get token balance, reporting zero")
		return zero, nil
	}
	return FormatUnits(balance), nil
}
