package bridge

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/logging"
)

// ProgressEvent is emitted whenever a transfer reaches a new status.
type ProgressEvent struct {
	TransferID       uuid.UUID             `json:"transferId"`
	UserID           string                `json:"userId"`
	SourceChain      string                `json:"sourceChain"`
	DestinationChain string                `json:"destinationChain"`
	Amount           string                `json:"amount"`
	Status           entity.TransferStatus `json:"status"`
	BurnTxHash       *common.Hash          `json:"burnTxHash,omitempty"`
	MintTxHash       *common.Hash          `json:"mintTxHash,omitempty"`
	Error            string                `json:"error,omitempty"`
	Time             time.Time             `json:"time"`
}

// Observer receives progress events. Observers run on their own goroutine
// and can't slow down or fail the transfer.
type Observer func(ctx context.Context, event *ProgressEvent)

func newProgressEvent(t *entity.Transfer) *ProgressEvent {
	e := &ProgressEvent{
		TransferID:       t.ID,
		UserID:           t.UserID,
		SourceChain:      t.SourceChain,
		DestinationChain: t.DestinationChain,
		Amount:           t.Amount,
		Status:           t.Status,
		BurnTxHash:       t.BurnTxHash,
		MintTxHash:       t.MintTxHash,
		Time:             t.UpdatedAt,
	}
	if t.ErrorMessage != nil {
		e.Error = *t.ErrorMessage
	}
	return e
}

func notify(ctx context.Context, observers []Observer, t *entity.Transfer) {
	if t == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, obs := range observers {
		if obs == nil {
			continue
		}
		go func(obs Observer, event *ProgressEvent) {
			defer func() {
				if r := recover(); r != nil {
					logging.LoggerFromContext(ctx).WithField("panic", r).Error("progress observer panicked")
				}
			}()
			obs(ctx, event)
		}(obs, newProgressEvent(t))
	}
}
