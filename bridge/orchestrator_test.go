package bridge_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/bridge"
	bridgeabi "github.com/omni/bridge-orchestrator/contract/abi"
	"github.com/omni/bridge-orchestrator/entity"
)

func TestOrchestrator_Initiate(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	res := e.initiate(t)

	require.Equal(t, entity.TransferStatusWaitingAttestation, res.Status)
	require.Equal(t, "tx-2", res.TransactionID)

	calls := e.executor.Calls()
	require.Len(t, calls, 2)

	approve := calls[0]
	require.Equal(t, "wallet-src", approve.WalletID)
	require.Equal(t, sepoliaToken, approve.Call.Contract)
	require.Equal(t, bridgeabi.Approve, approve.Call.Signature)
	require.Equal(t, []interface{}{sepoliaMessenger.Hex(), "100000000"}, approve.Call.Params)

	burn := calls[1]
	recipient := bridge.EncodeRecipient(aliceDest)
	require.Equal(t, sepoliaMessenger, burn.Call.Contract)
	require.Equal(t, bridgeabi.DepositForBurnV2, burn.Call.Signature)
	require.Equal(t, []interface{}{
		"100000000",
		"6",
		hexutil.Encode(recipient[:]),
		sepoliaToken.Hex(),
		hexutil.Encode(make([]byte, 32)),
		"1000000",
		"1000",
	}, burn.Call.Params)

	tr := e.transfer(t, res.TransferID)
	require.Equal(t, entity.TransferStatusWaitingAttestation, tr.Status)
	require.Equal(t, txHash("tx-2"), *tr.BurnTxHash)
	require.Equal(t, "tx-2", *tr.BurnTransactionID)
	require.Equal(t, "100.000000", tr.Amount)
	require.Equal(t, int64(1000000), tr.FeeUnits)
	require.Equal(t, aliceDest, tr.RecipientAddress)
	require.Nil(t, tr.MintTxHash)
	require.Nil(t, tr.Message)

	require.Equal(t, []entity.TransferStatus{
		entity.TransferStatusPending,
		entity.TransferStatusBurning,
		entity.TransferStatusWaitingAttestation,
	}, e.transfers.Path(res.TransferID))

	require.Eventually(t, func() bool {
		s := e.progress.Statuses()
		return s[entity.TransferStatusBurning] && s[entity.TransferStatusWaitingAttestation]
	}, time.Second, 10*time.Millisecond)
}

func TestOrchestrator_InitiateExplicitRecipient(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")
	id := uuid.New()
	res, err := e.orchestrator.Initiate(context.Background(), &bridge.InitiateRequest{
		ID:               id,
		UserID:           userID,
		SourceChain:      sourceChain,
		DestinationChain: destChain,
		Amount:           "1.5",
		Recipient:        &recipient,
	})
	require.NoError(t, err)
	require.Equal(t, id, res.TransferID)

	encoded := bridge.EncodeRecipient(recipient)
	require.Equal(t, hexutil.Encode(encoded[:]), e.executor.Calls()[1].Call.Params[2])
	require.Equal(t, "1.5", e.transfer(t, id).Amount)

	_, err = e.orchestrator.Initiate(context.Background(), &bridge.InitiateRequest{
		ID:               id,
		UserID:           userID,
		SourceChain:      sourceChain,
		DestinationChain: destChain,
		Amount:           "1.5",
	})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestOrchestrator_InitiateValidation(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		req *bridge.InitiateRequest
		err error
	}{
		"unknown source": {
			req: &bridge.InitiateRequest{UserID: userID, SourceChain: "SOL-DEVNET", DestinationChain: destChain, Amount: "1"},
			err: apperr.ErrValidation,
		},
		"unknown destination": {
			req: &bridge.InitiateRequest{UserID: userID, SourceChain: sourceChain, DestinationChain: "SOL-DEVNET", Amount: "1"},
			err: apperr.ErrValidation,
		},
		"same chain": {
			req: &bridge.InitiateRequest{UserID: userID, SourceChain: sourceChain, DestinationChain: sourceChain, Amount: "1"},
			err: apperr.ErrValidation,
		},
		"bad amount": {
			req: &bridge.InitiateRequest{UserID: userID, SourceChain: sourceChain, DestinationChain: destChain, Amount: "1.1234567"},
			err: apperr.ErrValidation,
		},
		"fee exceeds amount": {
			req: &bridge.InitiateRequest{UserID: userID, SourceChain: sourceChain, DestinationChain: destChain, Amount: "0.000500"},
			err: apperr.ErrValidation,
		},
		"missing user": {
			req: &bridge.InitiateRequest{SourceChain: sourceChain, DestinationChain: destChain, Amount: "1"},
			err: apperr.ErrValidation,
		},
		"no source wallet": {
			req: &bridge.InitiateRequest{UserID: "bob", SourceChain: sourceChain, DestinationChain: destChain, Amount: "1"},
			err: apperr.ErrNotFound,
		},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			_, err := e.orchestrator.Initiate(context.Background(), tc.req)
			require.ErrorIs(t, err, tc.err)
			require.Empty(t, e.executor.Calls())

			list, err := e.orchestrator.ListTransfers(context.Background(), tc.req.UserID, nil)
			require.NoError(t, err)
			require.Empty(t, list)
		})
	}
}

func TestOrchestrator_InitiateNoDestinationAddress(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.wallets.Ensure(ctx, &entity.Wallet{UserID: "bob", Chain: sourceChain, WalletID: "bob-src", Address: aliceSource}))

	_, err := e.orchestrator.Initiate(ctx, &bridge.InitiateRequest{UserID: "bob", SourceChain: sourceChain, DestinationChain: destChain, Amount: "1"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.Empty(t, e.executor.Calls())
}

func TestOrchestrator_InitiateFailures(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		setup      func(e *fakeExecutor)
		err        error
		burnTxID   bool
		executions int
	}{
		"approval fails": {
			setup: func(e *fakeExecutor) {
				e.waitErr[bridgeabi.Approve] = fmt.Errorf("transaction tx-1 ended in state FAILED: %w", apperr.ErrExternalService)
			},
			err:        apperr.ErrExternalService,
			executions: 1,
		},
		"burn submission fails": {
			setup: func(e *fakeExecutor) {
				e.executeErr[bridgeabi.DepositForBurnV2] = fmt.Errorf("status 400: %w", apperr.ErrExternalService)
			},
			err:        apperr.ErrExternalService,
			executions: 1,
		},
		"burn times out": {
			setup: func(e *fakeExecutor) {
				e.waitErr[bridgeabi.DepositForBurnV2] = fmt.Errorf("gave up after 60 attempts: %w", apperr.ErrTimeout)
			},
			err:        apperr.ErrTimeout,
			burnTxID:   true,
			executions: 2,
		},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t)
			tc.setup(e.executor)

			_, err := e.orchestrator.Initiate(context.Background(), &bridge.InitiateRequest{
				UserID:           userID,
				SourceChain:      sourceChain,
				DestinationChain: destChain,
				Amount:           "10",
			})
			require.ErrorIs(t, err, tc.err)
			require.Len(t, e.executor.Calls(), tc.executions)

			list, err := e.orchestrator.ListTransfers(context.Background(), userID, nil)
			require.NoError(t, err)
			require.Len(t, list, 1)
			tr := list[0]
			require.Equal(t, entity.TransferStatusFailed, tr.Status)
			require.Nil(t, tr.BurnTxHash)
			require.NotNil(t, tr.ErrorMessage)
			require.Equal(t, tc.burnTxID, tr.BurnTransactionID != nil)
			requireValidPath(t, e.transfers.Path(tr.ID))
		})
	}
}

func TestOrchestrator_InitiateCancelledMarksFailed(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.executor.waitGate = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.orchestrator.Initiate(ctx, &bridge.InitiateRequest{
		UserID:           userID,
		SourceChain:      sourceChain,
		DestinationChain: destChain,
		Amount:           "10",
	})
	require.ErrorIs(t, err, context.Canceled)

	list, err := e.orchestrator.ListTransfers(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, entity.TransferStatusFailed, list[0].Status)
}

func TestOrchestrator_ListTransfers(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	first := e.initiate(t)
	second := e.initiate(t)

	list, err := e.orchestrator.ListTransfers(context.Background(), userID, []entity.TransferStatus{entity.TransferStatusWaitingAttestation})
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []uuid.UUID{list[0].ID, list[1].ID}
	require.ElementsMatch(t, []uuid.UUID{first.TransferID, second.TransferID}, ids)

	list, err = e.orchestrator.ListTransfers(context.Background(), userID, []entity.TransferStatus{entity.TransferStatusCompleted})
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = e.orchestrator.ListTransfers(context.Background(), userID, []entity.TransferStatus{"done"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOrchestrator_GetBalance(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()

	e.chains.balance = big.NewInt(2500000)
	balance, err := e.orchestrator.GetBalance(ctx, userID, sourceChain)
	require.NoError(t, err)
	require.Equal(t, "2.500000", balance)

	balance, err = e.orchestrator.GetBalance(ctx, "bob", sourceChain)
	require.NoError(t, err)
	require.Equal(t, "0.000000", balance)

	_, err = e.orchestrator.GetBalance(ctx, userID, "SOL-DEVNET")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOrchestrator_GetBalanceDegradesToZero(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.chains.balanceErr = errBoom

	balance, err := e.orchestrator.GetBalance(context.Background(), userID, destChain)
	require.NoError(t, err)
	require.Equal(t, "0.000000", balance)
}
