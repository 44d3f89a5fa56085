package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omni/bridge-orchestrator/app"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/logging"
	"github.com/omni/bridge-orchestrator/monitor"
	"github.com/omni/bridge-orchestrator/presenter"
)

var configPath = flag.String("config", "config.yml", "path to the config file")

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(":2112", nil)
		if err != nil {
			logger.WithError(err).Fatal("can't start listener for prometheus metrics")
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize bridge orchestrator")
	}
	defer a.Close()

	if cfg.Resumer != nil {
		resumer := monitor.NewResumer(cfg.Resumer, a.Repo.Transfers, a.Orchestrator, logger.WithField("service", "resumer"))
		go resumer.Start(ctx)
	}

	var pr *presenter.Presenter
	if cfg.Presenter != nil {
		pr = presenter.NewPresenter(ctx, logger.WithField("service", "presenter"), a.Orchestrator, a.Registry, a.Repo.Wallets)
		go func() {
			err := pr.Serve(ctx, cfg.Presenter.Host)
			if err != nil {
				logger.WithError(err).Fatal("can't serve presenter")
			}
		}()
	}

	<-ctx.Done()
	logger.Warn("caught termination signal, gracefully terminating")
	if pr != nil {
		pr.Wait()
	}
}
