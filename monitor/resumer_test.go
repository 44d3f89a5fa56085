package monitor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/bridge"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/monitor"
	"github.com/omni/bridge-orchestrator/repository/memory"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeOrchestrator moves transfers through the shared repo the same way the
// real orchestrator would.
type fakeOrchestrator struct {
	mu          sync.Mutex
	repo        entity.TransfersRepo
	attested    map[uuid.UUID]bool
	statusErr   map[uuid.UUID]error
	completeErr map[uuid.UUID]error
	resumeErr   map[uuid.UUID]error
	completed   []uuid.UUID
	resumed     []uuid.UUID
}

func newFakeOrchestrator(repo entity.TransfersRepo) *fakeOrchestrator {
	return &fakeOrchestrator{
		repo:        repo,
		attested:    make(map[uuid.UUID]bool),
		statusErr:   make(map[uuid.UUID]error),
		completeErr: make(map[uuid.UUID]error),
		resumeErr:   make(map[uuid.UUID]error),
	}
}

func (o *fakeOrchestrator) GetBridgeStatus(ctx context.Context, id uuid.UUID) (*entity.Transfer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.statusErr[id]; err != nil {
		return nil, err
	}
	if o.attested[id] {
		return o.repo.TransitionStatus(ctx, id, entity.TransferStatusWaitingAttestation, &entity.TransferPatch{
			Status:      statusPtr(entity.TransferStatusReadyToMint),
			Message:     []byte{0x01},
			Attestation: []byte{0x02},
		})
	}
	return o.repo.GetByID(ctx, id)
}

func (o *fakeOrchestrator) CompleteBridge(ctx context.Context, id uuid.UUID, userID string, message, attestation []byte) (*bridge.CompleteResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if message != nil || attestation != nil {
		return nil, errors.New("resumer must rely on stored attestation")
	}
	if err := o.completeErr[id]; err != nil {
		return nil, err
	}
	t, err := o.repo.TransitionStatus(ctx, id, entity.TransferStatusReadyToMint, entity.StatusPatch(entity.TransferStatusCompleted))
	if err != nil {
		return nil, err
	}
	if t == nil || t.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	o.completed = append(o.completed, id)
	return &bridge.CompleteResult{TransferID: id, Status: t.Status}, nil
}

func (o *fakeOrchestrator) ResumeMint(ctx context.Context, id uuid.UUID) (*bridge.CompleteResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.resumed = append(o.resumed, id)
	if err := o.resumeErr[id]; err != nil {
		return nil, err
	}
	t, err := o.repo.TransitionStatus(ctx, id, entity.TransferStatusMinting, entity.StatusPatch(entity.TransferStatusCompleted))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.ErrConflict
	}
	return &bridge.CompleteResult{TransferID: id, Status: t.Status}, nil
}

func statusPtr(s entity.TransferStatus) *entity.TransferStatus {
	return &s
}

type env struct {
	repo         entity.TransfersRepo
	orchestrator *fakeOrchestrator
	clock        *time.Time
}

func newEnv() *env {
	clock := t0
	repo := memory.NewTransfersRepoWithClock(func() time.Time { return clock })
	return &env{
		repo:         repo,
		orchestrator: newFakeOrchestrator(repo),
		clock:        &clock,
	}
}

func (e *env) addTransfer(t *testing.T, status entity.TransferStatus) *entity.Transfer {
	t.Helper()

	tr, err := e.repo.Create(context.Background(), &entity.Transfer{
		UserID:           "alice",
		SourceChain:      "ETH-SEPOLIA",
		DestinationChain: "BASE-SEPOLIA",
		Amount:           "1",
		RecipientAddress: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	})
	require.NoError(t, err)
	if status != entity.TransferStatusPending {
		tr, err = e.repo.Update(context.Background(), tr.ID, entity.StatusPatch(status))
		require.NoError(t, err)
	}
	return tr
}

func (e *env) resumer(autoComplete bool) *monitor.Resumer {
	cfg := &config.ResumerConfig{
		Interval:     time.Minute,
		Timeout:      time.Minute,
		AutoComplete: autoComplete,
		StuckAfter:   time.Hour,
		BatchSize:    10,
	}
	now := t0.Add(10 * time.Minute)
	return monitor.NewResumer(cfg, e.repo, e.orchestrator, logrus.New()).
		WithClock(func() time.Time { return now })
}

func TestResumerChecksAttestations(t *testing.T) {
	t.Parallel()

	e := newEnv()
	attested := e.addTransfer(t, entity.TransferStatusWaitingAttestation)
	pending := e.addTransfer(t, entity.TransferStatusWaitingAttestation)
	e.addTransfer(t, entity.TransferStatusCompleted)
	e.orchestrator.attested[attested.ID] = true

	report, err := e.resumer(false).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Checked)
	require.Equal(t, 1, report.Attested)
	require.Zero(t, report.Completed)

	res, err := e.repo.GetByID(context.Background(), attested.ID)
	require.NoError(t, err)
	require.Equal(t, entity.TransferStatusReadyToMint, res.Status)

	res, err = e.repo.GetByID(context.Background(), pending.ID)
	require.NoError(t, err)
	require.Equal(t, entity.TransferStatusWaitingAttestation, res.Status)
	require.Empty(t, e.orchestrator.completed)
}

func TestResumerAutoComplete(t *testing.T) {
	t.Parallel()

	e := newEnv()
	attested := e.addTransfer(t, entity.TransferStatusWaitingAttestation)
	ready := e.addTransfer(t, entity.TransferStatusReadyToMint)
	broken := e.addTransfer(t, entity.TransferStatusReadyToMint)
	busy := e.addTransfer(t, entity.TransferStatusReadyToMint)
	e.orchestrator.attested[attested.ID] = true
	e.orchestrator.completeErr[broken.ID] = errors.New("mint reverted")
	e.orchestrator.completeErr[busy.ID] = apperr.ErrConflict

	report, err := e.resumer(true).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Attested)
	require.Equal(t, 2, report.Completed)
	require.Equal(t, 1, report.Failed)
	require.ElementsMatch(t, []uuid.UUID{attested.ID, ready.ID}, e.orchestrator.completed)
}

func TestResumerResumesSubmittedMints(t *testing.T) {
	t.Parallel()

	e := newEnv()
	submitted := e.addTransfer(t, entity.TransferStatusMinting)
	pending := e.addTransfer(t, entity.TransferStatusMinting)
	reverted := e.addTransfer(t, entity.TransferStatusMinting)
	unsubmitted := e.addTransfer(t, entity.TransferStatusMinting)
	for i, tr := range []*entity.Transfer{submitted, pending, reverted} {
		txID := fmt.Sprintf("tx-%d", i)
		_, err := e.repo.Update(context.Background(), tr.ID, &entity.TransferPatch{MintTransactionID: &txID})
		require.NoError(t, err)
	}
	e.orchestrator.resumeErr[pending.ID] = fmt.Errorf("mint tx-1 is still pending: %w", apperr.ErrTimeout)
	e.orchestrator.resumeErr[reverted.ID] = fmt.Errorf("mint tx-2 ended in state FAILED: %w", apperr.ErrExternalService)

	report, err := e.resumer(false).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Completed)
	require.Equal(t, 1, report.Failed)
	require.ElementsMatch(t, []uuid.UUID{submitted.ID, pending.ID, reverted.ID}, e.orchestrator.resumed)
	require.NotContains(t, e.orchestrator.resumed, unsubmitted.ID)

	res, err := e.repo.GetByID(context.Background(), submitted.ID)
	require.NoError(t, err)
	require.Equal(t, entity.TransferStatusCompleted, res.Status)
}

func TestResumerToleratesOracleErrors(t *testing.T) {
	t.Parallel()

	e := newEnv()
	failing := e.addTransfer(t, entity.TransferStatusWaitingAttestation)
	ok := e.addTransfer(t, entity.TransferStatusWaitingAttestation)
	e.orchestrator.statusErr[failing.ID] = apperr.ErrExternalService
	e.orchestrator.attested[ok.ID] = true

	report, err := e.resumer(false).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Checked)
	require.Equal(t, 1, report.Attested)
}

func TestResumerStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	e := newEnv()
	tr := e.addTransfer(t, entity.TransferStatusWaitingAttestation)
	e.orchestrator.statusErr[tr.ID] = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.resumer(false).RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// Not parallel: the gauges are process-wide.
func TestResumerGauges(t *testing.T) {
	e := newEnv()
	old := e.addTransfer(t, entity.TransferStatusMinting)
	e.addTransfer(t, entity.TransferStatusCompleted)
	e.addTransfer(t, entity.TransferStatusFailed)
	*e.clock = t0.Add(2 * time.Hour)
	e.addTransfer(t, entity.TransferStatusBurning)

	cfg := &config.ResumerConfig{Interval: time.Minute, Timeout: time.Minute, StuckAfter: time.Hour, BatchSize: 10}
	now := t0.Add(3 * time.Hour)
	r := monitor.NewResumer(cfg, e.repo, e.orchestrator, logrus.New()).WithClock(func() time.Time { return now })

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Stuck)

	require.Equal(t, 1.0, testutil.ToFloat64(monitor.TransfersByStatus.WithLabelValues("minting")))
	require.Equal(t, 1.0, testutil.ToFloat64(monitor.TransfersByStatus.WithLabelValues("burning")))
	require.Equal(t, 0.0, testutil.ToFloat64(monitor.TransfersByStatus.WithLabelValues("pending")))
	require.Equal(t, 1, testutil.CollectAndCount(monitor.StuckTransfers))
	age := testutil.ToFloat64(monitor.StuckTransfers.WithLabelValues(old.ID.String(), "minting", "ETH-SEPOLIA", "BASE-SEPOLIA"))
	require.Equal(t, (3 * time.Hour).Seconds(), age)
}
