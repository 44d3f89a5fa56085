package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/app"
	"github.com/omni/bridge-orchestrator/bridge"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/logging"
)

var (
	configPath = flag.String("config", "config.yml", "path to the config file")
	userID     = flag.String("user", "", "user owning the custodial wallets")
	from       = flag.String("from", "", "source chain name")
	to         = flag.String("to", "", "destination chain name")
	amount     = flag.String("amount", "", "amount to bridge, e.g. 10.5")
	recipient  = flag.String("recipient", "", "destination address, defaults to the user's destination wallet")
)

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	if *userID == "" || *from == "" || *to == "" || *amount == "" {
		logger.Fatal("-user, -from, -to and -amount are required")
	}
	req := &bridge.InitiateRequest{
		UserID:           *userID,
		SourceChain:      *from,
		DestinationChain: *to,
		Amount:           *amount,
	}
	if *recipient != "" {
		if !common.IsHexAddress(*recipient) {
			logger.WithField("recipient", *recipient).Fatal("recipient is not a valid address")
		}
		addr := common.HexToAddress(*recipient)
		req.Recipient = &addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize bridge orchestrator")
	}
	defer a.Close()

	onProgress := func(_ context.Context, event *bridge.ProgressEvent) {
		logger.WithFields(logrus.Fields{
			"transfer_id":  event.TransferID,
			"status":       event.Status,
			"burn_tx_hash": event.BurnTxHash,
			"mint_tx_hash": event.MintTxHash,
		}).Info("transfer progress")
	}
	t, err := a.Orchestrator.ExecuteBridgeFlow(ctx, req, onProgress)
	if t != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err2 := enc.Encode(t); err2 != nil {
			logger.WithError(err2).Error("can't print transfer")
		}
	}
	if err != nil {
		logger.WithError(err).Error("bridge transfer failed")
		a.Close()
		os.Exit(1)
	}
}
