package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type TransferStatus string

const (
	TransferStatusPending            TransferStatus = "pending"
	TransferStatusBurning            TransferStatus = "burning"
	TransferStatusWaitingAttestation TransferStatus = "waiting_attestation"
	TransferStatusReadyToMint        TransferStatus = "ready_to_mint"
	TransferStatusMinting            TransferStatus = "minting"
	TransferStatusCompleted          TransferStatus = "completed"
	TransferStatusFailed             TransferStatus = "failed"
)

var transitions = map[TransferStatus]TransferStatus{
	TransferStatusPending:            TransferStatusBurning,
	TransferStatusBurning:            TransferStatusWaitingAttestation,
	TransferStatusWaitingAttestation: TransferStatusReadyToMint,
	TransferStatusReadyToMint:        TransferStatusMinting,
	TransferStatusMinting:            TransferStatusCompleted,
}

func AllTransferStatuses() []TransferStatus {
	return []TransferStatus{
		TransferStatusPending,
		TransferStatusBurning,
		TransferStatusWaitingAttestation,
		TransferStatusReadyToMint,
		TransferStatusMinting,
		TransferStatusCompleted,
		TransferStatusFailed,
	}
}

func (s TransferStatus) IsValid() bool {
	switch s {
	case TransferStatusPending, TransferStatusBurning, TransferStatusWaitingAttestation,
		TransferStatusReadyToMint, TransferStatusMinting, TransferStatusCompleted, TransferStatusFailed:
		return true
	}
	return false
}

func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusFailed
}

// CanTransition reports whether to is the single forward step from s,
// or failed from any non-terminal status.
func (s TransferStatus) CanTransition(to TransferStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if to == TransferStatusFailed {
		return true
	}
	return transitions[s] == to
}

type Transfer struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	UserID            string         `db:"user_id" json:"userId"`
	SourceChain       string         `db:"source_chain" json:"sourceChain"`
	DestinationChain  string         `db:"destination_chain" json:"destinationChain"`
	Amount            string         `db:"amount" json:"amount"`
	RecipientAddress  common.Address `db:"recipient_address" json:"recipientAddress"`
	FeeUnits          int64          `db:"fee_units" json:"feeUnits"`
	Status            TransferStatus `db:"status" json:"status"`
	BurnTransactionID *string        `db:"burn_transaction_id" json:"burnTransactionId,omitempty"`
	BurnTxHash        *common.Hash   `db:"burn_tx_hash" json:"burnTxHash,omitempty"`
	MintTransactionID *string        `db:"mint_transaction_id" json:"mintTransactionId,omitempty"`
	MintTxHash        *common.Hash   `db:"mint_tx_hash" json:"mintTxHash,omitempty"`
	Message           []byte         `db:"message" json:"message,omitempty"`
	Attestation       []byte         `db:"attestation" json:"attestation,omitempty"`
	ErrorMessage      *string        `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
}

// TransferPatch lists the fields to change. Nil fields are left untouched,
// tx hashes and transaction ids are only written when not yet set.
type TransferPatch struct {
	Status            *TransferStatus
	FeeUnits          *int64
	BurnTransactionID *string
	BurnTxHash        *common.Hash
	MintTransactionID *string
	MintTxHash        *common.Hash
	Message           []byte
	Attestation       []byte
	ErrorMessage      *string
}

// Apply mutates t in place following the patch semantics and bumps UpdatedAt.
func (p *TransferPatch) Apply(t *Transfer, now time.Time) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.FeeUnits != nil {
		t.FeeUnits = *p.FeeUnits
	}
	if p.BurnTransactionID != nil && t.BurnTransactionID == nil {
		t.BurnTransactionID = stringPtr(*p.BurnTransactionID)
	}
	if p.BurnTxHash != nil && t.BurnTxHash == nil {
		t.BurnTxHash = hashPtr(*p.BurnTxHash)
	}
	if p.MintTransactionID != nil && t.MintTransactionID == nil {
		t.MintTransactionID = stringPtr(*p.MintTransactionID)
	}
	if p.MintTxHash != nil && t.MintTxHash == nil {
		t.MintTxHash = hashPtr(*p.MintTxHash)
	}
	if p.Message != nil {
		t.Message = append([]byte(nil), p.Message...)
	}
	if p.Attestation != nil {
		t.Attestation = append([]byte(nil), p.Attestation...)
	}
	if p.ErrorMessage != nil {
		t.ErrorMessage = stringPtr(*p.ErrorMessage)
	}
	t.UpdatedAt = now
}

func StatusPatch(status TransferStatus) *TransferPatch {
	return &TransferPatch{Status: &status}
}

type TransfersRepo interface {
	// Create stores a new pending transfer, assigning an id when t.ID is zero.
	// A duplicate id yields apperr.ErrConflict.
	Create(ctx context.Context, t *Transfer) (*Transfer, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transfer, error)
	Update(ctx context.Context, id uuid.UUID, patch *TransferPatch) (*Transfer, error)
	// TransitionStatus applies patch only while the stored status equals from.
	// It returns nil, nil when the guard does not hold.
	TransitionStatus(ctx context.Context, id uuid.UUID, from TransferStatus, patch *TransferPatch) (*Transfer, error)
	ListByUser(ctx context.Context, userID string, statuses []TransferStatus) ([]*Transfer, error)
	ListByStatus(ctx context.Context, statuses []TransferStatus, updatedBefore time.Time, limit uint64) ([]*Transfer, error)
	CountByStatus(ctx context.Context) (map[TransferStatus]uint, error)
}

func stringPtr(v string) *string {
	return &v
}

func hashPtr(v common.Hash) *common.Hash {
	return &v
}
