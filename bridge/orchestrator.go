// Package bridge drives cross-chain transfers through burn, attestation and mint.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/attestation"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/contract"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/execution"
	"github.com/omni/bridge-orchestrator/logging"
	"github.com/omni/bridge-orchestrator/registry"
	"github.com/omni/bridge-orchestrator/repository"
	"github.com/omni/bridge-orchestrator/retry"
)

const persistTimeout = 10 * time.Second

type Executor interface {
	Execute(ctx context.Context, walletID string, call *contract.Call) (*execution.Transaction, error)
	WaitForTransaction(ctx context.Context, id string) (*execution.Transaction, error)
}

type AttestationSource interface {
	GetMessages(ctx context.Context, sourceDomain uint32, txHash common.Hash) ([]*attestation.Message, error)
}

type ChainReader interface {
	TokenBalance(ctx context.Context, chain string, owner common.Address) (*big.Int, error)
	MessageReceived(ctx context.Context, chain string, message []byte) (bool, error)
	SentMessages(ctx context.Context, chain string, txHash common.Hash) ([][]byte, error)
}

type Policy struct {
	FeeBasisPoints    int64
	MinimumFeeUnits   int64
	FinalityThreshold uint32
	AttestationPoll   retry.Policy
}

func NewPolicy(cfg *config.Config) Policy {
	return Policy{
		FeeBasisPoints:    cfg.Policy.FeeBasisPoints,
		MinimumFeeUnits:   cfg.Policy.MinimumFeeUnits,
		FinalityThreshold: cfg.Policy.FinalityThreshold,
		AttestationPoll:   cfg.Attestation.Poll,
	}
}

type Orchestrator struct {
	registry     *registry.Registry
	transfers    entity.TransfersRepo
	wallets      entity.WalletsRepo
	executor     Executor
	attestations AttestationSource
	chains       ChainReader
	policy       Policy
	clock        retry.Clock
	observer     Observer
	logger       logging.Logger
}

// NewOrchestrator wires the collaborators. chains may be nil, in which case
// balances degrade to zero and duplicate mints are detected from errors only.
func NewOrchestrator(reg *registry.Registry, repo *repository.Repo, executor Executor, attestations AttestationSource, chains ChainReader, policy Policy, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		registry:     reg,
		transfers:    repo.Transfers,
		wallets:      repo.Wallets,
		executor:     executor,
		attestations: attestations,
		chains:       chains,
		policy:       policy,
		clock:        retry.RealClock,
		logger:       logger.WithField("service", "orchestrator"),
	}
}

func (o *Orchestrator) WithClock(clock retry.Clock) *Orchestrator {
	o.clock = clock
	return o
}

// WithObserver registers an observer notified of every transition made by this orchestrator.
func (o *Orchestrator) WithObserver(observer Observer) *Orchestrator {
	o.observer = observer
	return o
}

type InitiateRequest struct {
	// ID is optional, a random id is assigned when zero.
	ID               uuid.UUID
	UserID           string
	SourceChain      string
	DestinationChain string
	Amount           string
	Recipient        *common.Address
}

type InitiateResult struct {
	TransferID    uuid.UUID             `json:"transferId"`
	TransactionID string                `json:"transactionId"`
	Status        entity.TransferStatus `json:"status"`
}

// Initiate creates the transfer, approves and burns the amount on the source chain
// and leaves the transfer waiting for attestation.
func (o *Orchestrator) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	res, _, err := o.initiate(ctx, req, o.observers(nil))
	o.observeError("initiate", err)
	return res, err
}

type burnPlan struct {
	source      *registry.ChainDescriptor
	destination *registry.ChainDescriptor
	wallet      *entity.Wallet
	recipient   common.Address
	amountUnits *big.Int
	fee         *big.Int
}

func (o *Orchestrator) prepareBurn(ctx context.Context, req *InitiateRequest) (*burnPlan, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required: %w", apperr.ErrValidation)
	}
	src, err := o.registry.Get(req.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := o.registry.Get(req.DestinationChain)
	if err != nil {
		return nil, err
	}
	if src.DomainID == dst.DomainID {
		return nil, fmt.Errorf("source and destination chain are both %s: %w", src.Name, apperr.ErrValidation)
	}
	amountUnits, err := ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	fee := ComputeFee(amountUnits, o.policy.FeeBasisPoints, o.policy.MinimumFeeUnits)
	if fee.Cmp(amountUnits) >= 0 {
		return nil, fmt.Errorf("amount %s does not cover fee %s: %w", req.Amount, FormatUnits(fee), apperr.ErrValidation)
	}

	wallet, err := o.wallets.FindByUserAndChain(ctx, req.UserID, src.Name)
	if err != nil {
		return nil, fmt.Errorf("can't find source wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("user %s has no wallet on %s: %w", req.UserID, src.Name, apperr.ErrNotFound)
	}
	var recipient common.Address
	if req.Recipient != nil {
		recipient = *req.Recipient
	} else {
		dstWallet, err := o.wallets.FindByUserAndChain(ctx, req.UserID, dst.Name)
		if err != nil {
			return nil, fmt.Errorf("can't find destination wallet: %w", err)
		}
		if dstWallet == nil {
			return nil, fmt.Errorf("user %s has no wallet on %s and no recipient was given: %w", req.UserID, dst.Name, apperr.ErrNotFound)
		}
		recipient = dstWallet.Address
	}
	return &burnPlan{
		source:      src,
		destination: dst,
		wallet:      wallet,
		recipient:   recipient,
		amountUnits: amountUnits,
		fee:         fee,
	}, nil
}

func (o *Orchestrator) initiate(ctx context.Context, req *InitiateRequest, observers []Observer) (*InitiateResult, *entity.Transfer, error) {
	plan, err := o.prepareBurn(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	t, err := o.transfers.Create(ctx, &entity.Transfer{
		ID:               req.ID,
		UserID:           req.UserID,
		SourceChain:      plan.source.Name,
		DestinationChain: plan.destination.Name,
		Amount:           req.Amount,
		RecipientAddress: plan.recipient,
		FeeUnits:         plan.fee.Int64(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("can't create transfer: %w", err)
	}
	logger := o.transferLogger(t)
	logger.WithFields(logrus.Fields{
		"amount":    t.Amount,
		"fee_units": t.FeeUnits,
		"recipient": t.RecipientAddress.Hex(),
	}).Info("created transfer")

	t, err = o.transition(ctx, t, entity.TransferStatusBurning, nil, observers)
	if err != nil {
		return nil, nil, err
	}

	approve, err := contract.ApproveCall(plan.source.TokenAddress, plan.source.MessengerAddress, plan.amountUnits)
	if err != nil {
		return nil, t, o.fail(ctx, t, err, observers)
	}
	if _, err = o.executeAndWait(ctx, plan.wallet.WalletID, approve, nil); err != nil {
		return nil, t, o.fail(ctx, t, fmt.Errorf("approval failed: %w", err), observers)
	}
	logger.Info("approval confirmed")

	burn, err := contract.DepositForBurnCall(&contract.BurnArgs{
		Messenger:            plan.source.MessengerAddress,
		Token:                plan.source.TokenAddress,
		Amount:               plan.amountUnits,
		DestinationDomain:    plan.destination.DomainID,
		MintRecipient:        EncodeRecipient(plan.recipient),
		DestinationCaller:    AnyCaller,
		MaxFee:               plan.fee,
		MinFinalityThreshold: o.policy.FinalityThreshold,
		ProtocolVersion:      plan.source.ProtocolVersion,
	})
	if err != nil {
		return nil, t, o.fail(ctx, t, err, observers)
	}
	burnTx, err := o.executeAndWait(ctx, plan.wallet.WalletID, burn, func(tx *execution.Transaction) error {
		patch := &entity.TransferPatch{BurnTransactionID: &tx.ID}
		res, err := o.transfers.Update(ctx, t.ID, patch)
		if err != nil {
			return fmt.Errorf("can't record burn transaction: %w", err)
		}
		if res != nil {
			t = res
		}
		return nil
	})
	if err != nil {
		return nil, t, o.fail(ctx, t, fmt.Errorf("burn failed: %w", err), observers)
	}

	t, err = o.transition(ctx, t, entity.TransferStatusWaitingAttestation, &entity.TransferPatch{BurnTxHash: burnTx.TxHash}, observers)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("burn_tx_hash", burnTx.TxHash.Hex()).Info("burn confirmed, waiting for attestation")
	return &InitiateResult{
		TransferID:    t.ID,
		TransactionID: burnTx.ID,
		Status:        t.Status,
	}, t, nil
}

// executeAndWait submits the call and waits until it is final. submitted runs
// right after the signing service accepts the call.
func (o *Orchestrator) executeAndWait(ctx context.Context, walletID string, call *contract.Call, submitted func(tx *execution.Transaction) error) (*execution.Transaction, error) {
	tx, err := o.executor.Execute(ctx, walletID, call)
	if err != nil {
		return nil, err
	}
	if submitted != nil {
		if err = submitted(tx); err != nil {
			return nil, err
		}
	}
	tx, err = o.executor.WaitForTransaction(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if tx.TxHash == nil {
		return nil, fmt.Errorf("transaction %s is %s but has no hash: %w", tx.ID, tx.State, apperr.ErrExternalService)
	}
	return tx, nil
}

// transition moves t to status with a guarded update. It fails with apperr.ErrConflict
// when the stored status is no longer t.Status.
func (o *Orchestrator) transition(ctx context.Context, t *entity.Transfer, to entity.TransferStatus, patch *entity.TransferPatch, observers []Observer) (*entity.Transfer, error) {
	res, err := o.tryTransition(ctx, t, to, patch, observers)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("transfer %s is no longer %s: %w", t.ID, t.Status, apperr.ErrConflict)
	}
	return res, nil
}

// tryTransition is transition that returns nil, nil when the guard does not hold.
func (o *Orchestrator) tryTransition(ctx context.Context, t *entity.Transfer, to entity.TransferStatus, patch *entity.TransferPatch, observers []Observer) (*entity.Transfer, error) {
	if !t.Status.CanTransition(to) {
		return nil, fmt.Errorf("transfer %s can't move from %s to %s: %w", t.ID, t.Status, to, apperr.ErrValidation)
	}
	if patch == nil {
		patch = new(entity.TransferPatch)
	}
	patch.Status = &to
	res, err := o.transfers.TransitionStatus(ctx, t.ID, t.Status, patch)
	if err != nil {
		return nil, fmt.Errorf("can't update transfer status: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	StatusTransitions.WithLabelValues(string(t.Status), string(to)).Inc()
	o.transferLogger(res).WithField("from", t.Status).Info("transfer status changed")
	notify(ctx, observers, res)
	return res, nil
}

// fail marks t as failed and returns cause. The update outlives ctx cancellation
// so aborted flows still leave a terminal record.
func (o *Orchestrator) fail(ctx context.Context, t *entity.Transfer, cause error, observers []Observer) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	msg := cause.Error()
	res, err := o.tryTransition(ctx, t, entity.TransferStatusFailed, &entity.TransferPatch{ErrorMessage: &msg}, observers)
	logger := o.transferLogger(t).WithError(cause)
	switch {
	case err != nil:
		logger.WithField("update_error", err.Error()).Error("can't mark transfer as failed")
	case res == nil:
		logger.Warn("transfer changed concurrently, not marking it as failed")
	default:
		logger.Error("transfer failed")
	}
	return cause
}

func (o *Orchestrator) observers(extra Observer) []Observer {
	return []Observer{o.observer, extra}
}

func (o *Orchestrator) transferLogger(t *entity.Transfer) logging.Logger {
	return o.logger.WithFields(logrus.Fields{
		"transfer_id":       t.ID,
		"user_id":           t.UserID,
		"source_chain":      t.SourceChain,
		"destination_chain": t.DestinationChain,
		"status":            t.Status,
	})
}

func (o *Orchestrator) observeError(operation string, err error) {
	if err != nil {
		OperationErrors.WithLabelValues(operation, apperr.Kind(err)).Inc()
	}
}

func (o *Orchestrator) getTransfer(ctx context.Context, id uuid.UUID) (*entity.Transfer, error) {
	t, err := o.transfers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't get transfer: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("transfer %s: %w", id, apperr.ErrNotFound)
	}
	return t, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
