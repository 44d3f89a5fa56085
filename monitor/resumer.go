package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/bridge"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/logging"
)

type Orchestrator interface {
	GetBridgeStatus(ctx context.Context, transferID uuid.UUID) (*entity.Transfer, error)
	CompleteBridge(ctx context.Context, transferID uuid.UUID, userID string, message, attestation []byte) (*bridge.CompleteResult, error)
	ResumeMint(ctx context.Context, transferID uuid.UUID) (*bridge.CompleteResult, error)
}

// Resumer drives transfers that were left behind by callers. It polls the
// attestation of waiting transfers, waits for mints whose caller gave up and
// optionally mints attested transfers.
type Resumer struct {
	cfg          *config.ResumerConfig
	logger       logging.Logger
	transfers    entity.TransfersRepo
	orchestrator Orchestrator
	now          func() time.Time
}

type Report struct {
	Checked   int
	Attested  int
	Completed int
	Failed    int
	Stuck     int
}

func NewResumer(cfg *config.ResumerConfig, transfers entity.TransfersRepo, orchestrator Orchestrator, logger logging.Logger) *Resumer {
	return &Resumer{
		cfg:          cfg,
		logger:       logger.WithField("component", "resumer"),
		transfers:    transfers,
		orchestrator: orchestrator,
		now:          time.Now,
	}
}

// WithClock replaces the time source used for age calculations.
func (r *Resumer) WithClock(now func() time.Time) *Resumer {
	r.now = now
	return r
}

func (r *Resumer) Start(ctx context.Context) {
	r.logger.WithFields(logrus.Fields{
		"interval":      r.cfg.Interval,
		"auto_complete": r.cfg.AutoComplete,
	}).Info("starting transfer resumer")
	job := &Job{
		logger:   r.logger,
		Interval: r.cfg.Interval,
		Timeout:  r.cfg.Timeout,
		Func: func(ctx context.Context) error {
			report, err := r.RunOnce(ctx)
			if err != nil {
				return err
			}
			r.logger.WithFields(logrus.Fields{
				"checked":   report.Checked,
				"attested":  report.Attested,
				"completed": report.Completed,
				"failed":    report.Failed,
				"stuck":     report.Stuck,
			}).Info("resumer iteration finished")
			return nil
		},
	}
	job.Start(ctx)
}

func (r *Resumer) RunOnce(ctx context.Context) (*Report, error) {
	report := new(Report)
	now := r.now()

	if err := r.checkAttestations(ctx, now, report); err != nil {
		return report, err
	}
	if err := r.resumeMints(ctx, now, report); err != nil {
		return report, err
	}
	if r.cfg.AutoComplete {
		if err := r.completeAttested(ctx, r.now(), report); err != nil {
			return report, err
		}
	}
	if err := r.refreshGauges(ctx, now, report); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Resumer) checkAttestations(ctx context.Context, now time.Time, report *Report) error {
	waiting, err := r.transfers.ListByStatus(ctx, []entity.TransferStatus{entity.TransferStatusWaitingAttestation}, now, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("can't list waiting transfers: %w", err)
	}
	for _, t := range waiting {
		report.Checked++
		res, err := r.orchestrator.GetBridgeStatus(ctx, t.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ResumedTransfers.WithLabelValues("check_attestation", "error").Inc()
			r.logger.WithError(err).WithField("transfer_id", t.ID).Warn("can't check transfer attestation")
			continue
		}
		if res.Status == entity.TransferStatusReadyToMint {
			report.Attested++
			ResumedTransfers.WithLabelValues("check_attestation", "attested").Inc()
		}
	}
	return nil
}

func (r *Resumer) resumeMints(ctx context.Context, now time.Time, report *Report) error {
	minting, err := r.transfers.ListByStatus(ctx, []entity.TransferStatus{entity.TransferStatusMinting}, now, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("can't list minting transfers: %w", err)
	}
	for _, t := range minting {
		if t.MintTransactionID == nil {
			continue
		}
		logger := r.logger.WithFields(logrus.Fields{
			"transfer_id":         t.ID,
			"mint_transaction_id": *t.MintTransactionID,
		})
		_, err = r.orchestrator.ResumeMint(ctx, t.ID)
		switch {
		case err == nil:
			report.Completed++
			ResumedTransfers.WithLabelValues("resume_mint", "ok").Inc()
			logger.Info("completed submitted mint")
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, apperr.ErrTimeout):
			logger.WithError(err).Debug("mint is still pending")
		default:
			report.Failed++
			ResumedTransfers.WithLabelValues("resume_mint", "error").Inc()
			logger.WithError(err).Error("can't resume submitted mint")
		}
	}
	return nil
}

func (r *Resumer) completeAttested(ctx context.Context, now time.Time, report *Report) error {
	ready, err := r.transfers.ListByStatus(ctx, []entity.TransferStatus{entity.TransferStatusReadyToMint}, now, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("can't list attested transfers: %w", err)
	}
	for _, t := range ready {
		logger := r.logger.WithField("transfer_id", t.ID)
		_, err = r.orchestrator.CompleteBridge(ctx, t.ID, t.UserID, nil, nil)
		switch {
		case err == nil:
			report.Completed++
			ResumedTransfers.WithLabelValues("complete", "ok").Inc()
			logger.Info("completed attested transfer")
		case errors.Is(err, apperr.ErrConflict):
			logger.Debug("transfer is already being minted")
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.Failed++
			ResumedTransfers.WithLabelValues("complete", "error").Inc()
			logger.WithError(err).Error("can't complete attested transfer")
		}
	}
	return nil
}

func (r *Resumer) refreshGauges(ctx context.Context, now time.Time, report *Report) error {
	counts, err := r.transfers.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("can't count transfers: %w", err)
	}
	for _, status := range entity.AllTransferStatuses() {
		TransfersByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	unfinished := make([]entity.TransferStatus, 0, 5)
	for _, status := range entity.AllTransferStatuses() {
		if !status.IsTerminal() {
			unfinished = append(unfinished, status)
		}
	}
	stuck, err := r.transfers.ListByStatus(ctx, unfinished, now.Add(-r.cfg.StuckAfter), 0)
	if err != nil {
		return fmt.Errorf("can't list stuck transfers: %w", err)
	}
	StuckTransfers.Reset()
	for _, t := range stuck {
		StuckTransfers.WithLabelValues(t.ID.String(), string(t.Status), t.SourceChain, t.DestinationChain).
			Set(now.Sub(t.UpdatedAt).Seconds())
	}
	report.Stuck = len(stuck)
	if len(stuck) > 0 {
		r.logger.WithField("count", len(stuck)).Warn("found stuck transfers")
	}
	return nil
}
