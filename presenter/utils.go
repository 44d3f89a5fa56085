package presenter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-orchestrator/bridge"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/registry"
)

var formats = map[string]string{
	"1":        "https://etherscan.io/tx/%s",
	"11155111": "https://sepolia.etherscan.io/tx/%s",
	"10":       "https://optimistic.etherscan.io/tx/%s",
	"11155420": "https://sepolia-optimism.etherscan.io/tx/%s",
	"137":      "https://polygonscan.com/tx/%s",
	"80002":    "https://amoy.polygonscan.com/tx/%s",
	"8453":     "https://basescan.org/tx/%s",
	"84532":    "https://sepolia.basescan.org/tx/%s",
	"42161":    "https://arbiscan.io/tx/%s",
	"421614":   "https://sepolia.arbiscan.io/tx/%s",
	"43114":    "https://snowtrace.io/tx/%s",
	"43113":    "https://testnet.snowtrace.io/tx/%s",
}

func txLink(reg *registry.Registry, chain string, hash *common.Hash) string {
	if hash == nil {
		return ""
	}
	desc, err := reg.Get(chain)
	if err != nil {
		return ""
	}
	if format, ok := formats[desc.ChainID]; ok {
		return fmt.Sprintf(format, hash.Hex())
	}
	return ""
}

func transferToInfo(reg *registry.Registry, t *entity.Transfer) *TransferInfo {
	info := &TransferInfo{
		ID:               t.ID,
		UserID:           t.UserID,
		SourceChain:      t.SourceChain,
		DestinationChain: t.DestinationChain,
		Amount:           t.Amount,
		Fee:              bridge.FormatUnits(big.NewInt(t.FeeUnits)),
		Recipient:        t.RecipientAddress,
		Status:           t.Status,
		BurnTxHash:       t.BurnTxHash,
		BurnTxLink:       txLink(reg, t.SourceChain, t.BurnTxHash),
		MintTxHash:       t.MintTxHash,
		MintTxLink:       txLink(reg, t.DestinationChain, t.MintTxHash),
		Message:          t.Message,
		Attestation:      t.Attestation,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	if t.ErrorMessage != nil {
		info.Error = *t.ErrorMessage
	}
	return info
}

func chainToInfo(desc *registry.ChainDescriptor) *ChainInfo {
	return &ChainInfo{
		Name:            desc.Name,
		DomainID:        desc.DomainID,
		ChainID:         desc.ChainID,
		Blockchain:      desc.Blockchain,
		TokenAddress:    desc.TokenAddress,
		ProtocolVersion: desc.ProtocolVersion,
	}
}
