package presenter

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/omni/bridge-orchestrator/entity"
)

type InitiateTransferRequest struct {
	UserID           string          `json:"userId"`
	SourceChain      string          `json:"sourceChain"`
	DestinationChain string          `json:"destinationChain"`
	Amount           string          `json:"amount"`
	Recipient        *common.Address `json:"recipient,omitempty"`
}

type CompleteTransferRequest struct {
	UserID      string        `json:"userId"`
	Message     hexutil.Bytes `json:"message,omitempty"`
	Attestation hexutil.Bytes `json:"attestation,omitempty"`
}

type RegisterWalletRequest struct {
	WalletID string         `json:"walletId"`
	Address  common.Address `json:"address"`
}

type AutoTransferResponse struct {
	TransferID uuid.UUID             `json:"transferId"`
	Status     entity.TransferStatus `json:"status"`
}

type TransferInfo struct {
	ID               uuid.UUID             `json:"id"`
	UserID           string                `json:"userId"`
	SourceChain      string                `json:"sourceChain"`
	DestinationChain string                `json:"destinationChain"`
	Amount           string                `json:"amount"`
	Fee              string                `json:"fee"`
	Recipient        common.Address        `json:"recipient"`
	Status           entity.TransferStatus `json:"status"`
	BurnTxHash       *common.Hash          `json:"burnTxHash,omitempty"`
	BurnTxLink       string                `json:"burnTxLink,omitempty"`
	MintTxHash       *common.Hash          `json:"mintTxHash,omitempty"`
	MintTxLink       string                `json:"mintTxLink,omitempty"`
	Message          hexutil.Bytes         `json:"message,omitempty"`
	Attestation      hexutil.Bytes         `json:"attestation,omitempty"`
	Error            string                `json:"error,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

type BalanceInfo struct {
	UserID  string `json:"userId"`
	Chain   string `json:"chain"`
	Balance string `json:"balance"`
}

type ChainInfo struct {
	Name            string         `json:"name"`
	DomainID        uint32         `json:"domainId"`
	ChainID         string         `json:"chainId"`
	Blockchain      string         `json:"blockchain"`
	TokenAddress    common.Address `json:"tokenAddress"`
	ProtocolVersion uint8          `json:"protocolVersion"`
}

type WalletInfo struct {
	UserID   string         `json:"userId"`
	Chain    string         `json:"chain"`
	WalletID string         `json:"walletId"`
	Address  common.Address `json:"address"`
}
