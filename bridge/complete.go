package bridge

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/contract"
	"github.com/omni/bridge-orchestrator/entity"
)

// consumedMessageMarkers are revert reasons of a receiveMessage call for a nonce that was already used.
var consumedMessageMarkers = []string{
	"nonce already used",
	"already received",
	"message already processed",
}

type CompleteResult struct {
	TransferID uuid.UUID             `json:"transferId"`
	MintTxHash common.Hash           `json:"mintTxHash"`
	Status     entity.TransferStatus `json:"status"`
}

// CompleteBridge receives the attested message on the destination chain. A transfer
// that is already completed returns its recorded mint without another call.
// Empty message and attestation fall back to the ones stored on the transfer.
func (o *Orchestrator) CompleteBridge(ctx context.Context, transferID uuid.UUID, userID string, message, attestation []byte) (*CompleteResult, error) {
	res, err := o.completeBridge(ctx, transferID, userID, message, attestation, o.observers(nil))
	o.observeError("complete_bridge", err)
	return res, err
}

func (o *Orchestrator) completeBridge(ctx context.Context, transferID uuid.UUID, userID string, message, attestation []byte, observers []Observer) (*CompleteResult, error) {
	t, err := o.getTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, fmt.Errorf("transfer %s: %w", transferID, apperr.ErrNotFound)
	}
	if res := completedResult(t); res != nil {
		return res, nil
	}
	if len(message) > 0 && len(t.Message) > 0 && !bytes.Equal(message, t.Message) {
		return nil, fmt.Errorf("message differs from the attested message of transfer %s: %w", t.ID, apperr.ErrValidation)
	}
	if len(message) == 0 || len(attestation) == 0 {
		message, attestation = t.Message, t.Attestation
	}
	if len(message) == 0 || len(attestation) == 0 {
		return nil, fmt.Errorf("transfer %s has no attested message yet: %w", t.ID, apperr.ErrValidation)
	}
	dst, err := o.registry.Get(t.DestinationChain)
	if err != nil {
		return nil, err
	}
	wallet, err := o.wallets.FindByUserAndChain(ctx, userID, dst.Name)
	if err != nil {
		return nil, fmt.Errorf("can't find destination wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("user %s has no wallet on %s: %w", userID, dst.Name, apperr.ErrNotFound)
	}

	if t.Status == entity.TransferStatusWaitingAttestation {
		res, err := o.tryTransition(ctx, t, entity.TransferStatusReadyToMint, &entity.TransferPatch{Message: message, Attestation: attestation}, observers)
		if err != nil {
			return nil, err
		}
		if res == nil {
			if res, err = o.getTransfer(ctx, transferID); err != nil {
				return nil, err
			}
		}
		t = res
	}
	if t.Status != entity.TransferStatusReadyToMint {
		return o.resolveLostMintRace(ctx, transferID)
	}
	minting, err := o.tryTransition(ctx, t, entity.TransferStatusMinting, &entity.TransferPatch{Message: message, Attestation: attestation}, observers)
	if err != nil {
		return nil, err
	}
	if minting == nil {
		return o.resolveLostMintRace(ctx, transferID)
	}
	t = minting

	call, err := contract.ReceiveMessageCall(dst.ReceiverAddress, message, attestation)
	if err != nil {
		return nil, o.fail(ctx, t, err, observers)
	}
	tx, err := o.executor.Execute(ctx, wallet.WalletID, call)
	if err != nil {
		return nil, o.failMint(ctx, t, message, err, observers)
	}
	t = o.recordMintTransaction(ctx, t, tx.ID)
	return o.finishMint(ctx, t, tx.ID, message, observers)
}

// ResumeMint waits for the recorded mint transaction of a minting transfer and
// completes or fails the transfer accordingly. A completed transfer returns its
// recorded mint.
func (o *Orchestrator) ResumeMint(ctx context.Context, transferID uuid.UUID) (*CompleteResult, error) {
	res, err := o.resumeMint(ctx, transferID, o.observers(nil))
	o.observeError("resume_mint", err)
	return res, err
}

func (o *Orchestrator) resumeMint(ctx context.Context, transferID uuid.UUID, observers []Observer) (*CompleteResult, error) {
	t, err := o.getTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if res := completedResult(t); res != nil {
		return res, nil
	}
	if t.Status != entity.TransferStatusMinting || t.MintTransactionID == nil {
		return nil, fmt.Errorf("transfer %s is %s without a submitted mint: %w", t.ID, t.Status, apperr.ErrValidation)
	}
	return o.finishMint(ctx, t, *t.MintTransactionID, t.Message, observers)
}

// recordMintTransaction stores the submitted mint transaction id. The transaction
// is already on its way, so a failed write is logged and does not abort the mint.
func (o *Orchestrator) recordMintTransaction(ctx context.Context, t *entity.Transfer, txID string) *entity.Transfer {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	res, err := o.transfers.Update(ctx, t.ID, &entity.TransferPatch{MintTransactionID: &txID})
	if err != nil || res == nil {
		o.transferLogger(t).WithError(err).WithField("mint_transaction_id", txID).Error("can't record mint transaction")
		return t
	}
	return res
}

// finishMint waits for a submitted mint. When the caller stops waiting the
// transfer stays minting so that ResumeMint can pick it up later.
func (o *Orchestrator) finishMint(ctx context.Context, t *entity.Transfer, txID string, message []byte, observers []Observer) (*CompleteResult, error) {
	tx, err := o.executor.WaitForTransaction(ctx, txID)
	if err == nil && tx.TxHash == nil {
		err = fmt.Errorf("transaction %s is %s but has no hash: %w", tx.ID, tx.State, apperr.ErrExternalService)
	}
	if err != nil {
		if ctx.Err() != nil {
			o.transferLogger(t).WithError(err).WithField("mint_transaction_id", txID).
				Warn("stopped waiting for submitted mint, transfer stays minting")
			return nil, fmt.Errorf("mint transaction %s of transfer %s is still pending: %w: %w", txID, t.ID, apperr.ErrTimeout, err)
		}
		return nil, o.failMint(ctx, t, message, err, observers)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	res, err := o.tryTransition(pctx, t, entity.TransferStatusCompleted, &entity.TransferPatch{MintTxHash: tx.TxHash}, observers)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return o.resolveLostMintRace(pctx, t.ID)
	}
	o.transferLogger(res).WithField("mint_tx_hash", tx.TxHash.Hex()).Info("transfer completed")
	return completedResult(res), nil
}

// resolveLostMintRace decides the outcome after another caller moved the transfer
// out of ready_to_mint first.
func (o *Orchestrator) resolveLostMintRace(ctx context.Context, transferID uuid.UUID) (*CompleteResult, error) {
	t, err := o.getTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if res := completedResult(t); res != nil {
		return res, nil
	}
	if t.Status == entity.TransferStatusMinting {
		return nil, fmt.Errorf("transfer %s is already being minted: %w", t.ID, apperr.ErrConflict)
	}
	return nil, fmt.Errorf("transfer %s is %s, not ready to mint: %w", t.ID, t.Status, apperr.ErrValidation)
}

// failMint marks the transfer failed. When the destination chain already consumed
// the message the cause is additionally wrapped with apperr.ErrMessageConsumed.
func (o *Orchestrator) failMint(ctx context.Context, t *entity.Transfer, message []byte, cause error, observers []Observer) error {
	if o.messageConsumed(ctx, t, message, cause) {
		DuplicateMints.Inc()
		o.transferLogger(t).WithError(cause).Warn("message was already received on destination chain")
		cause = fmt.Errorf("%w: %w", apperr.ErrMessageConsumed, cause)
	}
	return o.fail(ctx, t, cause, observers)
}

func (o *Orchestrator) messageConsumed(ctx context.Context, t *entity.Transfer, message []byte, cause error) bool {
	reason := strings.ToLower(cause.Error())
	for _, marker := range consumedMessageMarkers {
		if strings.Contains(reason, marker) {
			return true
		}
	}
	if o.chains == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	used, err := o.chains.MessageReceived(ctx, t.DestinationChain, message)
	if err != nil {
		o.transferLogger(t).WithError(err).Warn("can't check whether message was already received")
		return false
	}
	return used
}

func completedResult(t *entity.Transfer) *CompleteResult {
	if t.Status != entity.TransferStatusCompleted || t.MintTxHash == nil {
		return nil
	}
	return &CompleteResult{
		TransferID: t.ID,
		MintTxHash: *t.MintTxHash,
		Status:     t.Status,
	}
}
