// Package scrapeworker is the long-running worker: one browser session,
// one scrape cycle at a time, resource supervision between cycles and a
// few background jobs on the side.
package scrapeworker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
	"github.com/bullionwatch/scraper/diagnostics"
	"github.com/bullionwatch/scraper/notify"
	"github.com/bullionwatch/scraper/postgres"
	"github.com/bullionwatch/scraper/runner"
	"github.com/bullionwatch/scraper/scheduler"
	"github.com/bullionwatch/scraper/scrape"
	"github.com/bullionwatch/scraper/sites"
)

type worker struct {
	cfg       *runner.Config
	db        *sql.DB
	session   *browser.Manager
	orch      *scrape.Orchestrator
	super     *scrape.Supervisor
	collector *diagnostics.Collector
	sched     *scheduler.Scheduler
	sink      notify.Sink
	dealers   []catalog.DealerCatalogEntry
}

// noopPersister backs dry runs: extraction happens, nothing is written.
type noopPersister struct{}

func (noopPersister) Upsert(context.Context, string, string, float64, string, bool) error {
	return nil
}

func New(ctx context.Context, cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeWorker {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	dealers := catalog.Dealers()
	if err := catalog.Validate(dealers); err != nil {
		return nil, fmt.Errorf("dealer catalog invalid: %w", err)
	}

	ans := &worker{
		cfg:     cfg,
		dealers: dealers,
	}

	var persist scrape.Persister = noopPersister{}

	if !cfg.DryRun {
		db, err := postgres.Open(cfg.Dsn)
		if err != nil {
			return nil, err
		}

		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()

			return nil, err
		}

		if err := postgres.SeedCatalog(ctx, db, dealers); err != nil {
			db.Close()

			return nil, err
		}

		ans.db = db
		persist = postgres.NewListingRepository(db)
	}

	ans.sink = notify.NewLogged(notify.NewFromEnv(cfg.PostHogKey, cfg.PostHogEndpoint, cfg.WebhookURL))

	ans.session = browser.NewManager(browser.Config{
		Headless: !cfg.Headful,
	})

	ans.orch = scrape.NewOrchestrator(scrape.Config{
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, ans.session, dealers, sites.Registry(), persist)

	ans.super = scrape.NewSupervisor(scrape.SupervisorConfig{}, ans.session, ans.orch)

	ans.collector = diagnostics.NewCollector(diagnostics.Config{}, ans.session, ans.sink)

	ans.sched = scheduler.New()
	ans.registerJobs()

	return ans, nil
}

func (w *worker) registerJobs() {
	w.sched.Register("heartbeat", time.Hour, func(ctx context.Context) error {
		return w.sink.SendStructured(ctx, "worker.heartbeat", map[string]any{
			"cycles": w.orch.Cycles(),
		})
	})

	w.sched.Register("daily-digest", 24*time.Hour, func(ctx context.Context) error {
		analysis := w.collector.Analysis(ctx)

		return w.sink.SendText(ctx, fmt.Sprintf("daily digest: %d cycles completed, %s",
			w.orch.Cycles(), analysis.Text))
	})
}

// Run launches the browser and loops cycles until the context is
// cancelled. A browser launch failure is fatal; everything after it is
// contained per cycle.
func (w *worker) Run(ctx context.Context) error {
	if err := w.session.Launch(ctx); err != nil {
		return fmt.Errorf("browser launch failed: %w", err)
	}

	page, err := w.session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("initial page failed: %w", err)
	}

	w.orch.BindSharedPage(page)

	w.sched.Start(ctx)
	defer w.sched.Stop()

	log.Info().
		Int("dealers", len(w.dealers)).
		Int("products", catalog.TotalProducts(w.dealers)).
		Dur("interval", w.cfg.CycleInterval).
		Msg("scrape worker started")

	egroup, ctx := errgroup.WithContext(ctx)

	egroup.Go(func() error {
		return w.cycleLoop(ctx)
	})

	return egroup.Wait()
}

func (w *worker) cycleLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.runOneCycle(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.CycleInterval):
		}
	}
}

// runOneCycle contains all per-cycle work, including the recover that
// keeps a single bad cycle from taking down the worker.
func (w *worker) runOneCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("cycle panicked, continuing with next cycle")
		}
	}()

	report := w.orch.RunCycle(ctx)

	_ = w.sink.SendStructured(ctx, "cycle.report", report)
	_ = w.sink.SendText(ctx, report.Summary())

	w.super.AfterCycle(ctx)

	w.collector.TakeSnapshot(report.CycleIndex, "post-cycle")

	if w.cfg.AnalysisEveryCycles > 0 && report.CycleIndex%w.cfg.AnalysisEveryCycles == 0 {
		w.collector.Analysis(ctx)
	}
}

func (w *worker) Close(ctx context.Context) error {
	w.session.Close(ctx)

	if w.db != nil {
		if err := w.db.Close(); err != nil {
			log.Warn().Err(err).Msg("database close failed")
		}
	}

	return w.sink.Close()
}
