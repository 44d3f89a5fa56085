// Package app wires the orchestrator and its collaborators from config.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/attestation"
	"github.com/omni/bridge-orchestrator/bridge"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/contract"
	"github.com/omni/bridge-orchestrator/db"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/ethclient"
	"github.com/omni/bridge-orchestrator/execution"
	"github.com/omni/bridge-orchestrator/logging"
	"github.com/omni/bridge-orchestrator/notifier"
	"github.com/omni/bridge-orchestrator/registry"
	"github.com/omni/bridge-orchestrator/repository"
)

type App struct {
	Registry     *registry.Registry
	Repo         *repository.Repo
	Chains       *contract.ChainReaders
	Orchestrator *bridge.Orchestrator

	logger    logging.Logger
	dbConn    *db.DB
	clients   []ethclient.Client
	publisher notifier.Publisher
}

func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	a := &App{logger: logger}
	if err := a.init(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg *config.Config) error {
	reg, err := registry.New(cfg.Chains)
	if err != nil {
		return fmt.Errorf("can't build chain registry: %w", err)
	}
	a.Registry = reg

	if cfg.DBConfig != nil {
		a.dbConn, err = db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
		if err != nil {
			return fmt.Errorf("can't connect to database and apply migrations: %w", err)
		}
		a.Repo = repository.NewRepo(a.dbConn)
	} else {
		a.logger.Warn("postgres is not configured, transfers are kept in memory")
		a.Repo = repository.NewMemoryRepo()
	}
	for _, w := range cfg.Wallets {
		err = a.Repo.Wallets.Ensure(ctx, &entity.Wallet{
			UserID:   w.UserID,
			Chain:    w.Chain,
			WalletID: w.WalletID,
			Address:  w.Address,
		})
		if err != nil {
			return fmt.Errorf("can't register wallet of %s on %s: %w", w.UserID, w.Chain, err)
		}
	}

	readers := make(map[string]*contract.ChainReader, len(cfg.Chains))
	for _, desc := range reg.All() {
		if desc.RPCEndpoint == "" {
			a.logger.WithField("chain", desc.Name).Warn("rpc is not configured, balances and receipts are unavailable")
			continue
		}
		client, err2 := ethclient.NewClient(desc.Name, desc.RPCEndpoint, desc.RPCTimeout, desc.ChainID)
		if err2 != nil {
			return fmt.Errorf("can't dial %s rpc client: %w", desc.Name, err2)
		}
		a.clients = append(a.clients, client)
		readers[desc.Name] = contract.NewChainReader(client, desc.TokenAddress, desc.ReceiverAddress)
	}
	a.Chains = contract.NewChainReaders(readers)
	heads, err := a.Chains.HeadBlocks(ctx)
	if err != nil {
		return err
	}
	for chain, head := range heads {
		a.logger.WithFields(logrus.Fields{
			"chain":      chain,
			"head_block": head,
		}).Info("connected to chain rpc")
	}

	executor, err := execution.NewClient(cfg.SigningService, a.logger)
	if err != nil {
		return fmt.Errorf("can't create signing service client: %w", err)
	}
	attestations := attestation.NewClient(cfg.Attestation, a.logger)

	a.publisher = a.newPublisher(cfg.RabbitMQ)
	exchange := notifier.DefaultExchange
	if cfg.RabbitMQ != nil {
		exchange = cfg.RabbitMQ.Exchange
	}

	a.Orchestrator = bridge.NewOrchestrator(reg, a.Repo, executor, attestations, a.Chains, bridge.NewPolicy(cfg), a.logger.WithField("service", "orchestrator")).
		WithObserver(notifier.NewProgressObserver(a.publisher, exchange, a.logger.WithField("service", "notifier")))
	return nil
}

// newPublisher falls back to logging when the broker is not configured or unreachable.
func (a *App) newPublisher(cfg *config.RabbitMQConfig) notifier.Publisher {
	if cfg == nil || cfg.URL == "" {
		return notifier.NewLogPublisher(a.logger)
	}
	producer, err := notifier.NewEventProducer(cfg.URL, a.logger)
	if err != nil {
		a.logger.WithError(err).Warn("can't connect to rabbitmq, progress events will only be logged")
		return notifier.NewLogPublisher(a.logger)
	}
	return producer
}

func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	for _, client := range a.clients {
		client.Close()
	}
	if a.dbConn != nil {
		if err := a.dbConn.Close(); err != nil {
			a.logger.WithError(err).Warn("can't close database connection")
		}
	}
}
