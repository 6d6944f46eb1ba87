package scrape

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
	"github.com/bullionwatch/scraper/retry"
)

const blankURL = "about:blank"

type Config struct {
	// Randomized delay between consecutive product visits for the same
	// dealer. Fixed-interval visits are themselves a bot signal.
	MinVisitDelay time.Duration
	MaxVisitDelay time.Duration
	// Fixed pause after finishing a dealer, before the next one.
	DealerPause time.Duration

	RetryAttempts int
	RetryDelay    time.Duration
}

func (c *Config) defaults() {
	if c.MinVisitDelay <= 0 {
		c.MinVisitDelay = time.Second
	}

	if c.MaxVisitDelay <= c.MinVisitDelay {
		c.MaxVisitDelay = c.MinVisitDelay + 2*time.Second
	}

	if c.DealerPause <= 0 {
		c.DealerPause = 2 * time.Second
	}

	if c.RetryAttempts <= 0 {
		c.RetryAttempts = retry.DefaultAttempts
	}

	if c.RetryDelay <= 0 {
		c.RetryDelay = retry.DefaultDelay
	}
}

// Orchestrator runs one catalog pass at a time: every dealer in declared
// order, every product in declared order, one page visit at a time. It
// borrows pages from the session and always gives them back.
type Orchestrator struct {
	cfg        Config
	session    browser.Session
	dealers    []catalog.DealerCatalogEntry
	strategies map[string]Strategy
	persist    Persister

	sharedPage browser.Page
	report     *CycleReport
	cycles     int
	rng        *rand.Rand
}

func NewOrchestrator(
	cfg Config,
	session browser.Session,
	dealers []catalog.DealerCatalogEntry,
	strategies map[string]Strategy,
	persist Persister,
) *Orchestrator {
	cfg.defaults()

	return &Orchestrator{
		cfg:        cfg,
		session:    session,
		dealers:    dealers,
		strategies: strategies,
		persist:    persist,
		report:     newCycleReport(0),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// BindSharedPage rebinds the shared default page. The supervisor calls
// this after every recycle action; working on a stale page handle after a
// recycle is the bug class this guards against.
func (o *Orchestrator) BindSharedPage(page browser.Page) {
	o.sharedPage = page
}

// SharedPage returns the page currently used for non-isolated visits.
func (o *Orchestrator) SharedPage() browser.Page {
	return o.sharedPage
}

// Cycles returns how many cycles have completed.
func (o *Orchestrator) Cycles() int {
	return o.cycles
}

// RunCycle visits every dealer and product in the catalog once and
// returns the cycle's report. Every product gets exactly one outcome; a
// failing dealer or product never aborts the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) *CycleReport {
	o.cycles++

	o.report = newCycleReport(o.cycles)
	o.report.reset()

	start := time.Now()

	log.Info().Int("cycle", o.cycles).Msg("cycle started")

	for _, dealer := range o.dealers {
		o.visitDealer(ctx, dealer)

		if ctx.Err() != nil {
			break
		}
	}

	o.report.Duration = time.Since(start)

	// Hand the caller a detached copy and clear the working report
	// before emission returns, so no entries can leak into the next
	// cycle.
	ans := *o.report
	o.report.reset()

	log.Info().
		Int("cycle", ans.CycleIndex).
		Int("successes", len(ans.Successes)).
		Int("failures", len(ans.Failures)).
		Dur("duration", ans.Duration).
		Msg("cycle complete")

	return &ans
}

func (o *Orchestrator) visitDealer(ctx context.Context, dealer catalog.DealerCatalogEntry) {
	strategy, ok := o.strategies[dealer.DealerID]
	if !ok {
		log.Warn().Str("dealer", dealer.DealerID).Msg("no strategy registered")

		for _, product := range dealer.Products {
			o.report.addFailure(dealer.DealerID, product.ProductName, ErrNoStrategy)
		}

		return
	}

	for i, product := range dealer.Products {
		o.visitProduct(ctx, dealer, product, strategy)

		if i < len(dealer.Products)-1 {
			o.pause(ctx, o.randomVisitDelay())
		}
	}

	o.pause(ctx, o.cfg.DealerPause)

	// Park the shared page on a blank location so the next dealer sees
	// none of this dealer's navigation history. Isolated visits get a
	// fresh context anyway.
	if !dealer.Protected() && o.sharedPage != nil {
		if err := o.sharedPage.Goto(blankURL); err != nil {
			log.Warn().Err(err).Str("dealer", dealer.DealerID).Msg("blank navigation failed")
		}
	}
}

func (o *Orchestrator) visitProduct(
	ctx context.Context,
	dealer catalog.DealerCatalogEntry,
	product catalog.ProductTarget,
	strategy Strategy,
) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("dealer", dealer.DealerID).
				Str("product", product.ProductName).
				Interface("panic", r).
				Msg("strategy panicked")

			o.report.addFailure(dealer.DealerID, product.ProductName, fmt.Errorf("strategy panic: %v", r))
		}
	}()

	page := o.sharedPage
	isolated := false

	if dealer.Protected() {
		isolatedPage, err := o.session.IsolatedPage(ctx)
		if err != nil {
			log.Warn().Err(err).Str("dealer", dealer.DealerID).Msg("isolated page acquisition failed")

			o.report.addFailure(dealer.DealerID, product.ProductName, err)

			return
		}

		page = isolatedPage
		isolated = true
	}

	// Release on every exit path, including strategy panics.
	defer func() {
		if isolated {
			o.session.ClosePage(page)
		}
	}()

	if page == nil {
		o.report.addFailure(dealer.DealerID, product.ProductName, fmt.Errorf("no shared page bound"))

		return
	}

	result, err := retry.Do(ctx, o.cfg.RetryAttempts, o.cfg.RetryDelay, func() (Result, error) {
		res, err := strategy(ctx, product, dealer.BaseURL, page)
		if err != nil {
			return Result{}, err
		}

		// A strategy must never report a negative or non-finite
		// price; such a value is a failure even without an error.
		if !validPrice(res.Price) {
			return Result{}, &InvalidPriceError{Price: res.Price}
		}

		return res, nil
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("dealer", dealer.DealerID).
			Str("product", product.ProductName).
			Bool("timeout", browser.IsTimeout(err)).
			Msg("extraction failed")

		o.report.addFailure(dealer.DealerID, product.ProductName, err)

		return
	}

	// Persistence retries independently of extraction. A configuration
	// fault (unknown dealer/product) is surfaced immediately. If the
	// write exhausts its retries the visit as a whole is a failure even
	// though extraction succeeded.
	err = retry.DoVoidWhen(ctx, o.cfg.RetryAttempts, o.cfg.RetryDelay, func() error {
		return o.persist.Upsert(ctx, dealer.DealerID, product.ProductName, result.Price, result.CanonicalURL, result.InStock)
	}, func(err error) bool {
		return !IsConfigError(err)
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("dealer", dealer.DealerID).
			Str("product", product.ProductName).
			Msg("persistence failed")

		o.report.addFailure(dealer.DealerID, product.ProductName, err)

		return
	}

	log.Debug().
		Str("dealer", dealer.DealerID).
		Str("product", product.ProductName).
		Float64("price", result.Price).
		Bool("in_stock", result.InStock).
		Msg("listing updated")

	o.report.addSuccess(dealer.DealerID, product.ProductName, result.Price)
}

func (o *Orchestrator) randomVisitDelay() time.Duration {
	spread := o.cfg.MaxVisitDelay - o.cfg.MinVisitDelay

	return o.cfg.MinVisitDelay + time.Duration(o.rng.Int63n(int64(spread)))
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
