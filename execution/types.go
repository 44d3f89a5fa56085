package execution

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/omni/bridge-orchestrator/apperr"
)

type TransactionState string

const (
	StateInitiated TransactionState = "INITIATED"
	StateQueued    TransactionState = "QUEUED"
	StateSent      TransactionState = "SENT"
	StateCleared   TransactionState = "CLEARED"
	StateStuck     TransactionState = "STUCK"
	StateCancelled TransactionState = "CANCELLED"
	StateConfirmed TransactionState = "CONFIRMED"
	StateComplete  TransactionState = "COMPLETE"
	StateFailed    TransactionState = "FAILED"
	StateDenied    TransactionState = "DENIED"
)

func (s TransactionState) IsSuccess() bool {
	return s == StateConfirmed || s == StateComplete
}

func (s TransactionState) IsFailure() bool {
	return s == StateFailed || s == StateDenied
}

// Transaction is the canonical record of a transaction submitted through the signing service.
// TxHash stays nil until the transaction is broadcast.
type Transaction struct {
	ID          string
	State       TransactionState
	TxHash      *common.Hash
	ErrorReason string
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type publicKeyResponse struct {
	Data struct {
		PublicKey string `json:"publicKey"`
	} `json:"data"`
}

type contractExecutionRequest struct {
	IdempotencyKey         string        `json:"idempotencyKey"`
	WalletID               string        `json:"walletId"`
	ContractAddress        string        `json:"contractAddress"`
	AbiFunctionSignature   string        `json:"abiFunctionSignature"`
	AbiParameters          []interface{} `json:"abiParameters"`
	FeeLevel               string        `json:"feeLevel"`
	EntitySecretCiphertext string        `json:"entitySecretCiphertext"`
}

// submissionResponse is returned when a transaction is accepted.
type submissionResponse struct {
	Data *struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"data"`
}

// lookupResponse is returned by the transaction lookup endpoint.
type lookupResponse struct {
	Data *struct {
		Transaction *struct {
			ID          string `json:"id"`
			State       string `json:"state"`
			TxHash      string `json:"txHash"`
			ErrorReason string `json:"errorReason"`
		} `json:"transaction"`
	} `json:"data"`
}

func (r *submissionResponse) toTransaction() (*Transaction, error) {
	if r.Data == nil || r.Data.ID == "" || r.Data.State == "" {
		return nil, fmt.Errorf("unrecognized contract execution response: %w", apperr.ErrExternalService)
	}
	return &Transaction{
		ID:    r.Data.ID,
		State: TransactionState(r.Data.State),
	}, nil
}

func (r *lookupResponse) toTransaction() (*Transaction, error) {
	if r.Data == nil || r.Data.Transaction == nil || r.Data.Transaction.ID == "" || r.Data.Transaction.State == "" {
		return nil, fmt.Errorf("unrecognized transaction lookup response: %w", apperr.ErrExternalService)
	}
	tx := r.Data.Transaction
	res := &Transaction{
		ID:          tx.ID,
		State:       TransactionState(tx.State),
		ErrorReason: tx.ErrorReason,
	}
	if tx.TxHash != "" {
		raw, err := hexutil.Decode(tx.TxHash)
		if err != nil || len(raw) != common.HashLength {
			return nil, fmt.Errorf("invalid tx hash %q in transaction %s: %w", tx.TxHash, tx.ID, apperr.ErrExternalService)
		}
		hash := common.BytesToHash(raw)
		res.TxHash = &hash
	}
	return res, nil
}
