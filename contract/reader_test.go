package contract_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/contract"
	"github.com/omni/bridge-orchestrator/contract/abi"
)

type fakeClient struct {
	calls   []ethereum.CallMsg
	result  []byte
	err     error
	receipt *types.Receipt
	head    uint
}

func (c *fakeClient) Chain() string { return "ETH-SEPOLIA" }

func (c *fakeClient) BlockNumber(context.Context) (uint, error) { return c.head, nil }

func (c *fakeClient) TransactionReceiptByHash(context.Context, common.Hash) (*types.Receipt, error) {
	if c.receipt == nil {
		return nil, ethereum.NotFound
	}
	return c.receipt, nil
}

func (c *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	c.calls = append(c.calls, msg)
	return c.result, c.err
}

func (c *fakeClient) Close() {}

func uint256Result(t *testing.T, v int64) []byte {
	t.Helper()

	res, err := abi.ERC20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(v))
	require.NoError(t, err)
	return res
}

func TestChainReader_TokenBalance(t *testing.T) {
	t.Parallel()

	client := &fakeClient{result: uint256Result(t, 2500000)}
	reader := contract.NewChainReader(client, tokenAddr, messengerAddr)

	balance, err := reader.TokenBalance(context.Background(), recipientAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(2500000), balance)
	require.Len(t, client.calls, 1)
	require.Equal(t, tokenAddr, *client.calls[0].To)
	require.Equal(t, abi.ERC20ABI.Methods["balanceOf"].ID, client.calls[0].Data[:4])
}

func TestChainReader_MessageReceived(t *testing.T) {
	t.Parallel()

	nonce := common.HexToHash("0x01")
	msg := buildV2Message(0, 6, nonce, nil)

	client := &fakeClient{result: uint256Result(t, 1)}
	reader := contract.NewChainReader(client, tokenAddr, messengerAddr)
	used, err := reader.MessageReceived(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, used)
	require.Equal(t, messengerAddr, *client.calls[0].To)
	require.Equal(t, nonce.Bytes(), client.calls[0].Data[4:36])

	client.result = uint256Result(t, 0)
	used, err = reader.MessageReceived(context.Background(), msg)
	require.NoError(t, err)
	require.False(t, used)

	_, err = reader.MessageReceived(context.Background(), []byte{0x01})
	require.ErrorIs(t, err, contract.ErrMalformedMessage)
}

func TestChainReaders(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: errors.New("connection refused")}
	readers := contract.NewChainReaders(map[string]*contract.ChainReader{
		"ETH-SEPOLIA": contract.NewChainReader(client, tokenAddr, messengerAddr),
	})

	_, err := readers.TokenBalance(context.Background(), "ETH-SEPOLIA", recipientAddr)
	require.ErrorContains(t, err, "connection refused")

	_, err = readers.TokenBalance(context.Background(), "UNKNOWN", recipientAddr)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestChainReader_SentMessages(t *testing.T) {
	t.Parallel()

	msg := buildV2Message(0, 6, common.HexToHash("0x07"), []byte{0xaa})
	data, err := abi.MessageTransmitterABI.Events["MessageSent"].Inputs.NonIndexed().Pack(msg)
	require.NoError(t, err)

	client := new(fakeClient)
	reader := contract.NewChainReader(client, tokenAddr, messengerAddr)
	txHash := common.HexToHash("0x1234")

	res, err := reader.SentMessages(context.Background(), txHash)
	require.NoError(t, err)
	require.Empty(t, res)

	client.receipt = &types.Receipt{Logs: []*types.Log{
		{Address: tokenAddr, Topics: []common.Hash{abi.MessageSentEventSignature}, Data: data},
		{Address: messengerAddr, Topics: []common.Hash{common.HexToHash("0x01")}, Data: data},
		{Address: messengerAddr, Topics: []common.Hash{abi.MessageSentEventSignature}, Data: data},
	}}
	res, err = reader.SentMessages(context.Background(), txHash)
	require.NoError(t, err)
	require.Equal(t, [][]byte{msg}, res)
}

func TestChainReaders_HeadBlocks(t *testing.T) {
	t.Parallel()

	readers := contract.NewChainReaders(map[string]*contract.ChainReader{
		"ETH-SEPOLIA":  contract.NewChainReader(&fakeClient{head: 100}, tokenAddr, messengerAddr),
		"BASE-SEPOLIA": contract.NewChainReader(&fakeClient{head: 200}, tokenAddr, messengerAddr),
	})
	heads, err := readers.HeadBlocks(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]uint{"ETH-SEPOLIA": 100, "BASE-SEPOLIA": 200}, heads)
}
