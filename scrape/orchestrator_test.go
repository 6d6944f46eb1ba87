package scrape

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
)

type fakePage struct {
	name  string
	gotos []string
}

func (p *fakePage) Goto(url string) error { p.gotos = append(p.gotos, url); return nil }

func (p *fakePage) WaitVisible(string, float64) error { return nil }

func (p *fakePage) Content() (string, error) { return "<html></html>", nil }

func (p *fakePage) Evaluate(string) (any, error) { return nil, nil }

func (p *fakePage) URL() string { return "https://fake.example/" + p.name }

type fakeSession struct {
	shared *fakePage

	isolatedOpened int
	isolatedClosed int
	failIsolated   bool

	storageClears  int
	cacheClears    int
	filterInstalls int
	pageRecreates  int
	ctxRecreates   int

	counts browser.Counts
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		shared: &fakePage{name: "shared"},
		counts: browser.Counts{Contexts: 1, Pages: 1, PagesPerContext: []int{1}},
	}
}

func (s *fakeSession) NewPage(context.Context) (browser.Page, error) {
	return s.shared, nil
}

func (s *fakeSession) IsolatedPage(context.Context) (browser.Page, error) {
	if s.failIsolated {
		return nil, errors.New("isolated page unavailable")
	}

	s.isolatedOpened++

	return &fakePage{name: fmt.Sprintf("isolated-%d", s.isolatedOpened)}, nil
}

func (s *fakeSession) ClosePage(page browser.Page) {
	if page != browser.Page(s.shared) {
		s.isolatedClosed++
	}
}

func (s *fakeSession) ClearStorage(context.Context, browser.Page) { s.storageClears++ }

func (s *fakeSession) ClearCaches(context.Context, browser.Page) { s.cacheClears++ }

func (s *fakeSession) RecreateDefaultPage(context.Context, browser.Page) (browser.Page, error) {
	s.pageRecreates++
	s.shared = &fakePage{name: fmt.Sprintf("shared-page-%d", s.pageRecreates)}

	return s.shared, nil
}

func (s *fakeSession) RecreateContext(context.Context, browser.Page) (browser.Page, error) {
	s.ctxRecreates++
	s.shared = &fakePage{name: fmt.Sprintf("shared-ctx-%d", s.ctxRecreates)}

	return s.shared, nil
}

func (s *fakeSession) InstallRequestFilter(browser.Page) error {
	s.filterInstalls++

	return nil
}

func (s *fakeSession) Counts() (browser.Counts, error) { return s.counts, nil }

func (s *fakeSession) Close(context.Context) {}

type fakePersister struct {
	calls       int
	failAlways  bool
	configFault bool
}

func (p *fakePersister) Upsert(_ context.Context, _, _ string, _ float64, _ string, _ bool) error {
	p.calls++

	if p.configFault {
		return &ConfigError{Reason: "unknown dealer"}
	}

	if p.failAlways {
		return errors.New("database unavailable")
	}

	return nil
}

func fastConfig() Config {
	return Config{
		MinVisitDelay: time.Millisecond,
		MaxVisitDelay: 2 * time.Millisecond,
		DealerPause:   time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func twoDealerCatalog() []catalog.DealerCatalogEntry {
	return []catalog.DealerCatalogEntry{
		{
			DealerID:      "dealer-a",
			BaseURL:       "https://a.example",
			BotMitigation: catalog.MitigationNone,
			Products: []catalog.ProductTarget{
				{ProductName: "gold eagle", RelativePath: "gold"},
				{ProductName: "silver eagle", RelativePath: "silver"},
			},
		},
		{
			DealerID:      "dealer-b",
			BaseURL:       "https://b.example",
			BotMitigation: catalog.MitigationNone,
			Products: []catalog.ProductTarget{
				{ProductName: "gold bar", RelativePath: "gold-bar"},
				{ProductName: "silver bar", RelativePath: "silver-bar"},
			},
		},
	}
}

func succeedWith(price float64) Strategy {
	return func(_ context.Context, _ catalog.ProductTarget, baseURL string, _ browser.Page) (Result, error) {
		return Result{Price: price, CanonicalURL: baseURL, InStock: true}, nil
	}
}

func TestRunCycleMissingStrategyFailsFast(t *testing.T) {
	session := newFakeSession()
	persist := &fakePersister{}
	dealers := twoDealerCatalog()

	strategies := map[string]Strategy{
		"dealer-a": succeedWith(100.00),
		// dealer-b deliberately unregistered
	}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, persist)
	orch.BindSharedPage(session.shared)

	report := orch.RunCycle(context.Background())

	require.Len(t, report.Successes, 2)
	require.Len(t, report.Failures, 2)

	for _, s := range report.Successes {
		assert.Equal(t, "dealer-a", s.DealerID)
		assert.Equal(t, 100.00, s.Price)
	}

	for _, f := range report.Failures {
		assert.Equal(t, "dealer-b", f.DealerID)
		assert.Equal(t, "no strategy registered", f.ErrorSummary)
	}

	// No visit is spent on an unregistered dealer.
	assert.Equal(t, 2, persist.calls)
}

func TestRunCycleEveryProductGetsExactlyOneOutcome(t *testing.T) {
	session := newFakeSession()
	dealers := twoDealerCatalog()

	flaky := 0
	strategies := map[string]Strategy{
		"dealer-a": succeedWith(42.5),
		"dealer-b": func(_ context.Context, _ catalog.ProductTarget, _ string, _ browser.Page) (Result, error) {
			flaky++
			return Result{}, errors.New("selector not found")
		},
	}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, &fakePersister{})
	orch.BindSharedPage(session.shared)

	report := orch.RunCycle(context.Background())

	assert.Equal(t, catalog.TotalProducts(dealers), report.Total())
}

func TestRunCycleNegativePriceIsAFailure(t *testing.T) {
	session := newFakeSession()
	persist := &fakePersister{}

	dealers := []catalog.DealerCatalogEntry{{
		DealerID:      "dealer-a",
		BaseURL:       "https://a.example",
		BotMitigation: catalog.MitigationNone,
		Products:      []catalog.ProductTarget{{ProductName: "gold eagle", RelativePath: "gold"}},
	}}

	strategies := map[string]Strategy{"dealer-a": succeedWith(-5)}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, persist)
	orch.BindSharedPage(session.shared)

	report := orch.RunCycle(context.Background())

	require.Empty(t, report.Successes)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].ErrorSummary, "invalid price")
	assert.Zero(t, persist.calls)
}

func TestRunCycleIsolatedPagesAlwaysClosed(t *testing.T) {
	session := newFakeSession()

	dealers := []catalog.DealerCatalogEntry{{
		DealerID:      "hostile",
		BaseURL:       "https://hostile.example",
		BotMitigation: catalog.MitigationProtected,
		Products: []catalog.ProductTarget{
			{ProductName: "gold eagle", RelativePath: "gold"},
			{ProductName: "silver eagle", RelativePath: "silver"},
			{ProductName: "gold bar", RelativePath: "bar"},
		},
	}}

	calls := 0
	strategies := map[string]Strategy{
		"hostile": func(_ context.Context, _ catalog.ProductTarget, _ string, _ browser.Page) (Result, error) {
			calls++
			if calls%2 == 0 {
				panic("renderer crashed")
			}

			return Result{}, errors.New("blocked by challenge page")
		},
	}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, &fakePersister{})
	orch.BindSharedPage(session.shared)

	report := orch.RunCycle(context.Background())

	require.Len(t, report.Failures, 3)
	assert.Equal(t, session.isolatedOpened, session.isolatedClosed)
	assert.Greater(t, session.isolatedOpened, 0)
}

func TestRunCyclePersistenceExhaustionDowngradesSuccess(t *testing.T) {
	session := newFakeSession()
	persist := &fakePersister{failAlways: true}

	dealers := []catalog.DealerCatalogEntry{{
		DealerID:      "dealer-a",
		BaseURL:       "https://a.example",
		BotMitigation: catalog.MitigationNone,
		Products:      []catalog.ProductTarget{{ProductName: "gold eagle", RelativePath: "gold"}},
	}}

	strategies := map[string]Strategy{"dealer-a": succeedWith(1999.99)}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, persist)
	orch.BindSharedPage(session.shared)

	report := orch.RunCycle(context.Background())

	require.Empty(t, report.Successes)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].ErrorSummary, "database unavailable")
	// The write was retried up to the policy limit.
	assert.Equal(t, 3, persist.calls)
}

func TestRunCycleConfigFaultIsNotRetried(t *testing.T) {
	session := newFakeSession()
	persist := &fakePersister{configFault: true}

	dealers := []catalog.DealerCatalogEntry{{
		DealerID:      "ghost",
		BaseURL:       "https://ghost.example",
		BotMitigation: catalog.MitigationNone,
		Products:      []catalog.ProductTarget{{ProductName: "gold eagle", RelativePath: "gold"}},
	}}

	strategies := map[string]Strategy{"ghost": succeedWith(100)}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, persist)
	orch.BindSharedPage(session.shared)

	report := orch.RunCycle(context.Background())

	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, persist.calls)
}

func TestRunCycleIsolatedAcquisitionFailureIsRecorded(t *testing.T) {
	session := newFakeSession()
	session.failIsolated = true

	dealers := []catalog.DealerCatalogEntry{{
		DealerID:      "hostile",
		BaseURL:       "https://hostile.example",
		BotMitigation: catalog.MitigationProtected,
		Products:      []catalog.ProductTarget{{ProductName: "gold eagle", RelativePath: "gold"}},
	}}

	strategies := map[string]Strategy{"hostile": succeedWith(100)}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, &fakePersister{})
	orch.BindSharedPage(session.shared)

	report := orch.RunCycle(context.Background())

	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].ErrorSummary, "isolated page unavailable")
	assert.Zero(t, session.isolatedClosed)
}

func TestRunCycleNavigatesSharedPageToBlankBetweenDealers(t *testing.T) {
	session := newFakeSession()
	dealers := twoDealerCatalog()

	strategies := map[string]Strategy{
		"dealer-a": succeedWith(1),
		"dealer-b": succeedWith(2),
	}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, &fakePersister{})
	orch.BindSharedPage(session.shared)

	orch.RunCycle(context.Background())

	blanks := 0
	for _, url := range session.shared.gotos {
		if url == "about:blank" {
			blanks++
		}
	}

	assert.Equal(t, 2, blanks)
}

func TestRunCycleReportStateDoesNotAccumulate(t *testing.T) {
	session := newFakeSession()
	dealers := twoDealerCatalog()

	strategies := map[string]Strategy{
		"dealer-a": succeedWith(1),
		"dealer-b": succeedWith(2),
	}

	orch := NewOrchestrator(fastConfig(), session, dealers, strategies, &fakePersister{})
	orch.BindSharedPage(session.shared)

	first := orch.RunCycle(context.Background())
	second := orch.RunCycle(context.Background())

	assert.Equal(t, 4, first.Total())
	assert.Equal(t, 4, second.Total())
	assert.NotEqual(t, first.CycleID, second.CycleID)
	assert.Equal(t, 1, first.CycleIndex)
	assert.Equal(t, 2, second.CycleIndex)
}
