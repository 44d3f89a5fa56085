package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/bridge-orchestrator/apperr"
	bridgeabi "github.com/omni/bridge-orchestrator/contract/abi"
	"github.com/omni/bridge-orchestrator/ethclient"
)

// ChainReader performs the read-only contract calls of a single chain.
type ChainReader struct {
	client      ethclient.Client
	token       *Contract
	transmitter *Contract
}

func NewChainReader(client ethclient.Client, token, transmitter common.Address) *ChainReader {
	return &ChainReader{
		client:      client,
		token:       NewContract(client, token, bridgeabi.ERC20ABI),
		transmitter: NewContract(client, transmitter, bridgeabi.MessageTransmitterABI),
	}
}

func (r *ChainReader) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	res, err := r.token.Call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return toBigInt(res)
}

// MessageReceived reports whether the transmitter already consumed the message nonce.
func (r *ChainReader) MessageReceived(ctx context.Context, message []byte) (bool, error) {
	header, err := ParseMessageHeader(message)
	if err != nil {
		return false, err
	}
	res, err := r.transmitter.Call(ctx, "usedNonces", header.NonceKey())
	if err != nil {
		return false, err
	}
	used, err := toBigInt(res)
	if err != nil {
		return false, err
	}
	return used.Sign() != 0, nil
}

// SentMessages decodes the MessageSent events the transmitter emitted in txHash.
// An unknown or pending transaction yields no messages.
func (r *ChainReader) SentMessages(ctx context.Context, txHash common.Hash) ([][]byte, error) {
	receipt, err := r.client.TransactionReceiptByHash(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't get receipt of %s: %w", txHash, err)
	}
	var res [][]byte
	for _, log := range receipt.Logs {
		if log.Address != r.transmitter.Address() || len(log.Topics) == 0 || log.Topics[0] != bridgeabi.MessageSentEventSignature {
			continue
		}
		values, err := bridgeabi.MessageTransmitterABI.Unpack("MessageSent", log.Data)
		if err != nil {
			return nil, fmt.Errorf("can't decode MessageSent event: %w", err)
		}
		if len(values) != 1 {
			return nil, fmt.Errorf("expected single MessageSent field, got %d", len(values))
		}
		msg, ok := values[0].([]byte)
		if !ok {
			return nil, fmt.Errorf("expected bytes MessageSent field, got %T", values[0])
		}
		res = append(res, msg)
	}
	return res, nil
}

// ChainReaders dispatches reads to the reader of the requested chain.
type ChainReaders struct {
	readers map[string]*ChainReader
}

func NewChainReaders(readers map[string]*ChainReader) *ChainReaders {
	return &ChainReaders{readers: readers}
}

func (r *ChainReaders) get(chain string) (*ChainReader, error) {
	reader, ok := r.readers[chain]
	if !ok {
		return nil, fmt.Errorf("no rpc configured for chain %q: %w", chain, apperr.ErrValidation)
	}
	return reader, nil
}

func (r *ChainReaders) TokenBalance(ctx context.Context, chain string, owner common.Address) (*big.Int, error) {
	reader, err := r.get(chain)
	if err != nil {
		return nil, err
	}
	return reader.TokenBalance(ctx, owner)
}

func (r *ChainReaders) MessageReceived(ctx context.Context, chain string, message []byte) (bool, error) {
	reader, err := r.get(chain)
	if err != nil {
		return false, err
	}
	return reader.MessageReceived(ctx, message)
}

func (r *ChainReaders) SentMessages(ctx context.Context, chain string, txHash common.Hash) ([][]byte, error) {
	reader, err := r.get(chain)
	if err != nil {
		return nil, err
	}
	return reader.SentMessages(ctx, txHash)
}

// HeadBlocks returns the latest block number of every configured chain.
func (r *ChainReaders) HeadBlocks(ctx context.Context) (map[string]uint, error) {
	res := make(map[string]uint, len(r.readers))
	for chain, reader := range r.readers {
		n, err := reader.client.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("can't get head block of %s: %w", chain, err)
		}
		res[chain] = n
	}
	return res, nil
}

func toBigInt(values []interface{}) (*big.Int, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("expected single return value, got %d", len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected uint256 return value, got %T", values[0])
	}
	return v, nil
}
