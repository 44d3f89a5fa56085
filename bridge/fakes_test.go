package bridge_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-orchestrator/attestation"
	"github.com/omni/bridge-orchestrator/bridge"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/contract"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/execution"
	"github.com/omni/bridge-orchestrator/registry"
	"github.com/omni/bridge-orchestrator/repository"
	"github.com/omni/bridge-orchestrator/repository/memory"
	"github.com/omni/bridge-orchestrator/retry"
)

const (
	sourceChain = "ETH-SEPOLIA"
	destChain   = "BASE-SEPOLIA"
	userID      = "alice"
)

var (
	sepoliaToken       = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	sepoliaMessenger   = common.HexToAddress("0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA")
	sepoliaTransmitter = common.HexToAddress("0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275")
	baseToken          = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	baseMessenger      = common.HexToAddress("0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAB")
	baseTransmitter    = common.HexToAddress("0xE737e5cEBEEBa77EFE34D4aa090756590b1CE276")
	aliceSource        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	aliceDest          = common.HexToAddress("0x2222222222222222222222222222222222222222")

	attestedMessage = []byte{0x00, 0x00, 0x00, 0x01, 0xde, 0xad}
	attestationBlob = []byte{0xbe, 0xef}
)

type executedCall struct {
	WalletID string
	Call     *contract.Call
	TxID     string
}

type fakeExecutor struct {
	mu         sync.Mutex
	calls      []executedCall
	signatures map[string]string
	executeErr map[string]error
	waitErr    map[string]error
	waitGate   chan struct{}
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		signatures: make(map[string]string),
		executeErr: make(map[string]error),
		waitErr:    make(map[string]error),
	}
}

func (e *fakeExecutor) Execute(_ context.Context, walletID string, call *contract.Call) (*execution.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.executeErr[call.Signature]; err != nil {
		return nil, err
	}
	id := fmt.Sprintf("tx-%d", len(e.calls)+1)
	e.calls = append(e.calls, executedCall{WalletID: walletID, Call: call, TxID: id})
	e.signatures[id] = call.Signature
	return &execution.Transaction{ID: id, State: execution.StateInitiated}, nil
}

func (e *fakeExecutor) WaitForTransaction(ctx context.Context, id string) (*execution.Transaction, error) {
	if e.waitGate != nil {
		select {
		case <-e.waitGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.waitErr[e.signatures[id]]; err != nil {
		return nil, err
	}
	hash := txHash(id)
	return &execution.Transaction{ID: id, State: execution.StateComplete, TxHash: &hash}, nil
}

func (e *fakeExecutor) Calls() []executedCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]executedCall(nil), e.calls...)
}

func (e *fakeExecutor) CallsTo(signature string) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Call.Signature == signature {
			n++
		}
	}
	return n
}

func txHash(id string) common.Hash {
	return crypto.Keccak256Hash([]byte(id))
}

type fakeAttestations struct {
	mu        sync.Mutex
	responses [][]*attestation.Message
	errs      []error
	calls     int
}

func (a *fakeAttestations) GetMessages(_ context.Context, _ uint32, _ common.Hash) ([]*attestation.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.calls
	a.calls++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if len(a.responses) == 0 {
		return nil, nil
	}
	if i >= len(a.responses) {
		i = len(a.responses) - 1
	}
	return a.responses[i], nil
}

func (a *fakeAttestations) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func completeMessages() []*attestation.Message {
	return []*attestation.Message{{
		Message:     attestedMessage,
		Attestation: attestationBlob,
		Status:      attestation.StatusComplete,
	}}
}

func pendingMessages() []*attestation.Message {
	return []*attestation.Message{{Status: attestation.StatusPending}}
}

type fakeChains struct {
	balance     *big.Int
	balanceErr  error
	received    bool
	receivedErr error
	sent        [][]byte
	sentErr     error
}

func (c *fakeChains) TokenBalance(context.Context, string, common.Address) (*big.Int, error) {
	return c.balance, c.balanceErr
}

func (c *fakeChains) MessageReceived(context.Context, string, []byte) (bool, error) {
	return c.received, c.receivedErr
}

func (c *fakeChains) SentMessages(context.Context, string, common.Hash) ([][]byte, error) {
	return c.sent, c.sentErr
}

// recordingRepo records every applied status transition.
type recordingRepo struct {
	entity.TransfersRepo
	mu          sync.Mutex
	transitions map[uuid.UUID][]entity.TransferStatus
}

func (r *recordingRepo) Create(ctx context.Context, t *entity.Transfer) (*entity.Transfer, error) {
	res, err := r.TransfersRepo.Create(ctx, t)
	if res != nil {
		r.mu.Lock()
		r.transitions[res.ID] = []entity.TransferStatus{res.Status}
		r.mu.Unlock()
	}
	return res, err
}

func (r *recordingRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from entity.TransferStatus, patch *entity.TransferPatch) (*entity.Transfer, error) {
	res, err := r.TransfersRepo.TransitionStatus(ctx, id, from, patch)
	if res != nil {
		r.mu.Lock()
		r.transitions[id] = append(r.transitions[id], res.Status)
		r.mu.Unlock()
	}
	return res, err
}

func (r *recordingRepo) Path(id uuid.UUID) []entity.TransferStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.TransferStatus(nil), r.transitions[id]...)
}

type progressRecorder struct {
	mu     sync.Mutex
	events []*bridge.ProgressEvent
}

func (p *progressRecorder) Observe(_ context.Context, event *bridge.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *progressRecorder) Statuses() map[entity.TransferStatus]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make(map[entity.TransferStatus]bool)
	for _, e := range p.events {
		res[e.Status] = true
	}
	return res
}

type env struct {
	orchestrator *bridge.Orchestrator
	executor     *fakeExecutor
	attestations *fakeAttestations
	chains       *fakeChains
	transfers    *recordingRepo
	wallets      entity.WalletsRepo
	clock        *retry.FakeClock
	progress     *progressRecorder
}

func newEnv(t *testing.T) *env {
	t.Helper()

	reg, err := registry.New(map[string]*config.ChainConfig{
		sourceChain: {
			DomainID:         0,
			ChainID:          "11155111",
			Blockchain:       sourceChain,
			TokenAddress:     sepoliaToken,
			MessengerAddress: sepoliaMessenger,
			ReceiverAddress:  sepoliaTransmitter,
			ProtocolVersion:  2,
		},
		destChain: {
			DomainID:         6,
			ChainID:          "84532",
			Blockchain:       destChain,
			TokenAddress:     baseToken,
			MessengerAddress: baseMessenger,
			ReceiverAddress:  baseTransmitter,
			ProtocolVersion:  2,
		},
	})
	require.NoError(t, err)

	transfers := &recordingRepo{
		TransfersRepo: memory.NewTransfersRepo(),
		transitions:   make(map[uuid.UUID][]entity.TransferStatus),
	}
	wallets := memory.NewWalletsRepo()
	ctx := context.Background()
	require.NoError(t, wallets.Ensure(ctx, &entity.Wallet{UserID: userID, Chain: sourceChain, WalletID: "wallet-src", Address: aliceSource}))
	require.NoError(t, wallets.Ensure(ctx, &entity.Wallet{UserID: userID, Chain: destChain, WalletID: "wallet-dst", Address: aliceDest}))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	e := &env{
		executor:     newFakeExecutor(),
		attestations: &fakeAttestations{responses: [][]*attestation.Message{completeMessages()}},
		chains:       &fakeChains{balance: big.NewInt(0)},
		transfers:    transfers,
		wallets:      wallets,
		clock:        &retry.FakeClock{},
		progress:     &progressRecorder{},
	}
	policy := bridge.Policy{
		FeeBasisPoints:    config.DefaultFeeBasisPoints,
		MinimumFeeUnits:   config.DefaultMinimumFeeUnits,
		FinalityThreshold: config.DefaultFinalityThreshold,
		AttestationPoll:   retry.Policy{Attempts: 4, Interval: 30 * time.Second},
	}
	repo := &repository.Repo{Transfers: transfers, Wallets: wallets}
	e.orchestrator = bridge.NewOrchestrator(reg, repo, e.executor, e.attestations, e.chains, policy, logger).
		WithClock(e.clock).
		WithObserver(e.progress.Observe)
	return e
}

func (e *env) initiate(t *testing.T) *bridge.InitiateResult {
	t.Helper()

	res, err := e.orchestrator.Initiate(context.Background(), &bridge.InitiateRequest{
		UserID:           userID,
		SourceChain:      sourceChain,
		DestinationChain: destChain,
		Amount:           "100.000000",
	})
	require.NoError(t, err)
	return res
}

func (e *env) transfer(t *testing.T, id uuid.UUID) *entity.Transfer {
	t.Helper()

	tr, err := e.transfers.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tr)
	return tr
}

// requireValidPath checks that every recorded status follows the transfer state graph.
func requireValidPath(t *testing.T, path []entity.TransferStatus) {
	t.Helper()

	require.NotEmpty(t, path)
	require.Equal(t, entity.TransferStatusPending, path[0])
	for i := 1; i < len(path); i++ {
		require.True(t, path[i-1].CanTransition(path[i]), "invalid transition %s -> %s", path[i-1], path[i])
	}
}

var errBoom = errors.New("boom")
