package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/bridge"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/logging"
	"github.com/omni/bridge-orchestrator/presenter/http/middleware"
	"github.com/omni/bridge-orchestrator/presenter/http/render"
	"github.com/omni/bridge-orchestrator/registry"
)

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Service is the part of the orchestrator exposed over HTTP.
type Service interface {
	Initiate(ctx context.Context, req *bridge.InitiateRequest) (*bridge.InitiateResult, error)
	ExecuteBridgeFlow(ctx context.Context, req *bridge.InitiateRequest, onProgress bridge.Observer) (*entity.Transfer, error)
	GetBridgeStatus(ctx context.Context, transferID uuid.UUID) (*entity.Transfer, error)
	CompleteBridge(ctx context.Context, transferID uuid.UUID, userID string, message, attestation []byte) (*bridge.CompleteResult, error)
	ListTransfers(ctx context.Context, userID string, statuses []entity.TransferStatus) ([]*entity.Transfer, error)
	GetBalance(ctx context.Context, userID, chain string) (string, error)
}

type Presenter struct {
	logger   logging.Logger
	service  Service
	registry *registry.Registry
	wallets  entity.WalletsRepo
	root     chi.Router

	// flowCtx outlives single requests, background flows are bound to it.
	flowCtx context.Context
	flows   sync.WaitGroup
}

func NewPresenter(ctx context.Context, logger logging.Logger, service Service, reg *registry.Registry, wallets entity.WalletsRepo) *Presenter {
	p := &Presenter{
		logger:   logger,
		service:  service,
		registry: reg,
		wallets:  wallets,
		root:     chi.NewMux(),
		flowCtx:  logging.WithLogger(ctx, logger.WithField("component", "auto_flow")),
	}
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(p.logger))
	p.root.Use(middleware.Recoverer)

	p.root.Get("/chains", p.wrapJSONHandler(http.StatusOK, p.GetChains))
	p.root.Route("/transfers", func(r chi.Router) {
		r.Post("/", p.wrapJSONHandler(http.StatusCreated, p.InitiateTransfer))
		r.Post("/auto", p.wrapJSONHandler(http.StatusAccepted, p.StartAutoTransfer))
		r.Route("/{transferID}", func(r chi.Router) {
			r.Use(middleware.GetTransferIDMiddleware)
			r.Get("/", p.wrapJSONHandler(http.StatusOK, p.GetTransfer))
			r.Post("/complete", p.wrapJSONHandler(http.StatusOK, p.CompleteTransfer))
		})
	})
	p.root.Route("/users/{userID}", func(r chi.Router) {
		r.With(middleware.GetStatusFilterMiddleware).Get("/transfers", p.wrapJSONHandler(http.StatusOK, p.ListUserTransfers))
		r.Get("/balance/{chain}", p.wrapJSONHandler(http.StatusOK, p.GetBalance))
		r.Put("/wallets/{chain}", p.wrapJSONHandler(http.StatusOK, p.RegisterWallet))
	})
	return p
}

func (p *Presenter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.root.ServeHTTP(w, r)
}

// Serve blocks until ctx is done or the listener fails.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	srv := &http.Server{
		Addr:              addr,
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("can't shutdown presenter: %w", err)
	}
	return nil
}

// Wait blocks until all background flows started by the presenter return.
func (p *Presenter) Wait() {
	p.flows.Wait()
}

func (p *Presenter) wrapJSONHandler(status int, handler func(r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			render.Error(w, r, err)
			return
		}
		render.JSON(w, r, status, res)
	}
}

func decodeBody(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("can't decode request body: %v: %w", err, apperr.ErrValidation)
	}
	return nil
}

func (p *Presenter) GetChains(_ *http.Request) (interface{}, error) {
	descs := p.registry.All()
	res := make([]*ChainInfo, len(descs))
	for i, desc := range descs {
		res[i] = chainToInfo(desc)
	}
	return res, nil
}

func (p *Presenter) InitiateTransfer(r *http.Request) (interface{}, error) {
	var req InitiateTransferRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return p.service.Initiate(r.Context(), &bridge.InitiateRequest{
		UserID:           req.UserID,
		SourceChain:      req.SourceChain,
		DestinationChain: req.DestinationChain,
		Amount:           req.Amount,
		Recipient:        req.Recipient,
	})
}

// StartAutoTransfer runs the whole flow in the background and answers right away.
// Cheap input checks run first so obviously bad requests never get a transfer id.
func (p *Presenter) StartAutoTransfer(r *http.Request) (interface{}, error) {
	var req InitiateTransferRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required: %w", apperr.ErrValidation)
	}
	if _, err := p.registry.Get(req.SourceChain); err != nil {
		return nil, err
	}
	if _, err := p.registry.Get(req.DestinationChain); err != nil {
		return nil, err
	}
	if _, err := bridge.ParseAmount(req.Amount); err != nil {
		return nil, err
	}

	flowReq := &bridge.InitiateRequest{
		ID:               uuid.New(),
		UserID:           req.UserID,
		SourceChain:      req.SourceChain,
		DestinationChain: req.DestinationChain,
		Amount:           req.Amount,
		Recipient:        req.Recipient,
	}
	logger := logging.LoggerFromContext(p.flowCtx).WithField("transfer_id", flowReq.ID)
	p.flows.Add(1)
	go func() {
		defer p.flows.Done()
		t, err := p.service.ExecuteBridgeFlow(p.flowCtx, flowReq, nil)
		flowLogger := logger
		if t != nil {
			flowLogger = flowLogger.WithField("status", t.Status)
		}
		switch {
		case errors.Is(err, apperr.ErrTimeout):
			flowLogger.WithError(err).Warn("bridge flow timed out")
		case err != nil:
			flowLogger.WithError(err).Error("bridge flow failed")
		default:
			flowLogger.Info("bridge flow finished")
		}
	}()
	return &AutoTransferResponse{
		TransferID: flowReq.ID,
		Status:     entity.TransferStatusPending,
	}, nil
}

func (p *Presenter) GetTransfer(r *http.Request) (interface{}, error) {
	t, err := p.service.GetBridgeStatus(r.Context(), middleware.TransferID(r.Context()))
	if err != nil {
		return nil, err
	}
	return transferToInfo(p.registry, t), nil
}

func (p *Presenter) CompleteTransfer(r *http.Request) (interface{}, error) {
	var req CompleteTransferRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return p.service.CompleteBridge(r.Context(), middleware.TransferID(r.Context()), req.UserID, req.Message, req.Attestation)
}

func (p *Presenter) ListUserTransfers(r *http.Request) (interface{}, error) {
	ctx := r.Context()
	transfers, err := p.service.ListTransfers(ctx, chi.URLParam(r, "userID"), middleware.StatusFilter(ctx))
	if err != nil {
		return nil, err
	}
	res := make([]*TransferInfo, len(transfers))
	for i, t := range transfers {
		res[i] = transferToInfo(p.registry, t)
	}
	return res, nil
}

func (p *Presenter) GetBalance(r *http.Request) (interface{}, error) {
	userID := chi.URLParam(r, "userID")
	chain := chi.URLParam(r, "chain")
	balance, err := p.service.GetBalance(r.Context(), userID, chain)
	if err != nil {
		return nil, err
	}
	return &BalanceInfo{UserID: userID, Chain: chain, Balance: balance}, nil
}

func (p *Presenter) RegisterWallet(r *http.Request) (interface{}, error) {
	var req RegisterWalletRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	desc, err := p.registry.Get(chi.URLParam(r, "chain"))
	if err != nil {
		return nil, err
	}
	if req.WalletID == "" || req.Address == (common.Address{}) {
		return nil, fmt.Errorf("wallet id and address are required: %w", apperr.ErrValidation)
	}
	wallet := &entity.Wallet{
		UserID:   chi.URLParam(r, "userID"),
		Chain:    desc.Name,
		WalletID: req.WalletID,
		Address:  req.Address,
	}
	if err = p.wallets.Ensure(r.Context(), wallet); err != nil {
		return nil, fmt.Errorf("can't register wallet: %w", err)
	}
	return &WalletInfo{
		UserID:   wallet.UserID,
		Chain:    wallet.Chain,
		WalletID: wallet.WalletID,
		Address:  wallet.Address,
	}, nil
}
