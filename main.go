package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bullionwatch/scraper/runner"
	"github.com/bullionwatch/scraper/runner/installer"
	"github.com/bullionwatch/scraper/runner/scrapeworker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := runner.ParseConfig()

	runner.SetupLogging(cfg.Debug)
	runner.Banner()

	r, err := newRunner(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		closeRunner(r)
		log.Fatal().Err(err).Msg("worker exited with error")
	}

	closeRunner(r)
	log.Info().Msg("shutdown complete")
}

func newRunner(ctx context.Context, cfg *runner.Config) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeInstallPlaywright:
		return installer.New(cfg)
	case runner.RunModeWorker:
		return scrapeworker.New(ctx, cfg)
	default:
		return nil, runner.ErrInvalidRunMode
	}
}

func closeRunner(r runner.Runner) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("runner close failed")
	}
}
