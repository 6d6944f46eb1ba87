package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog/log"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// launch flags shared by headless scraping setups; trimmed down from the
// usual Chromium hardening set.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-extensions",
	"--disable-background-networking",
	"--no-first-run",
	"--no-default-browser-check",
	"--mute-audio",
}

// stealthScript hides the most common automation tells before any site
// script runs.
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined,
	});

	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
	delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;
`

// resource types the route filter drops. Pricing pages render fine without
// them and every skipped download is renderer memory not spent.
var blockedResourceTypes = map[string]bool{
	"image": true,
	"media": true,
	"font":  true,
}

var blockedHostFragments = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"facebook.net",
	"hotjar.com",
	"clarity.ms",
}

type Config struct {
	Headless            bool
	UserAgent           string
	LaunchTimeout       time.Duration
	PageTimeout         time.Duration
	CloseTimeout        time.Duration
	NavigationTimeoutMs float64
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}

	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = 60 * time.Second
	}

	if c.PageTimeout <= 0 {
		c.PageTimeout = 15 * time.Second
	}

	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 20 * time.Second
	}

	if c.NavigationTimeoutMs <= 0 {
		c.NavigationTimeoutMs = 30000
	}
}

// Manager implements Session on top of a single playwright-driven
// Chromium process. It exclusively owns the browser handle and every
// context and page derived from it.
type Manager struct {
	cfg Config

	mu         sync.Mutex
	pw         *playwright.Playwright
	browser    playwright.Browser
	defaultCtx playwright.BrowserContext
}

func NewManager(cfg Config) *Manager {
	cfg.defaults()

	return &Manager{cfg: cfg}
}

// Install downloads the Chromium build playwright drives. Run once per
// host, usually via the PLAYWRIGHT_INSTALL_ONLY run mode.
func Install() error {
	return playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	})
}

// Launch starts the browser process and the default browsing context. A
// launch that exceeds its bound is an environment fault: the error is
// returned for the caller to treat as fatal, never retried here.
func (m *Manager) Launch(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return fmt.Errorf("browser: session already launched")
	}

	err := raceVoid("launch", m.cfg.LaunchTimeout, func() error {
		pw, err := playwright.Run()
		if err != nil {
			return fmt.Errorf("playwright run: %w", err)
		}

		browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(m.cfg.Headless),
			Args:     launchArgs,
		})
		if err != nil {
			_ = pw.Stop()

			return fmt.Errorf("chromium launch: %w", err)
		}

		bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
			UserAgent: playwright.String(m.cfg.UserAgent),
		})
		if err != nil {
			_ = browser.Close()
			_ = pw.Stop()

			return fmt.Errorf("new context: %w", err)
		}

		m.pw = pw
		m.browser = browser
		m.defaultCtx = bctx

		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Bool("headless", m.cfg.Headless).Msg("browser session launched")

	return nil
}

// NewPage creates a page in the default context, with the stealth script
// and the resource filter installed.
func (m *Manager) NewPage(_ context.Context) (Page, error) {
	m.mu.Lock()
	bctx := m.defaultCtx
	m.mu.Unlock()

	if bctx == nil {
		return nil, fmt.Errorf("browser: session not launched")
	}

	return race("new page", m.cfg.PageTimeout, func() (Page, error) {
		return m.setupPage(bctx)
	})
}

// IsolatedPage creates a page inside a brand-new browsing context so the
// visit shares no cookies, storage or navigation history with anything
// else. Used for dealers that correlate repeat visitors.
func (m *Manager) IsolatedPage(_ context.Context) (Page, error) {
	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()

	if browser == nil {
		return nil, fmt.Errorf("browser: session not launched")
	}

	return race("isolated page", m.cfg.PageTimeout, func() (Page, error) {
		bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
			UserAgent: playwright.String(m.cfg.UserAgent),
		})
		if err != nil {
			return nil, fmt.Errorf("isolated context: %w", err)
		}

		page, err := m.setupPage(bctx)
		if err != nil {
			_ = bctx.Close()

			return nil, err
		}

		return page, nil
	})
}

func (m *Manager) setupPage(bctx playwright.BrowserContext) (Page, error) {
	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}

	if err := page.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		log.Warn().Err(err).Msg("stealth script install failed")
	}

	ans := &pwPage{page: page, navTimeoutMs: m.cfg.NavigationTimeoutMs}

	if err := m.InstallRequestFilter(ans); err != nil {
		log.Warn().Err(err).Msg("request filter install failed")
	}

	return ans, nil
}

// InstallRequestFilter attaches the resource-blocking route handler to the
// page. Clearing route handlers (page recreation, storage resets) removes
// previously installed ones, so this is safe to call repeatedly.
func (m *Manager) InstallRequestFilter(page Page) error {
	pw, ok := page.(*pwPage)
	if !ok {
		return fmt.Errorf("browser: not a managed page")
	}

	return pw.page.Route("**/*", func(route playwright.Route) {
		req := route.Request()

		if blockedResourceTypes[req.ResourceType()] || isBlockedHost(req.URL()) {
			_ = route.Abort()

			return
		}

		_ = route.Continue()
	})
}

func isBlockedHost(url string) bool {
	for _, fragment := range blockedHostFragments {
		if strings.Contains(url, fragment) {
			return true
		}
	}

	return false
}

// ClosePage tears down a page; when the page lives outside the default
// context (an isolated page) its whole context goes with it. All errors
// are swallowed: "already closed" is normal here and anything else is only
// worth a warning.
func (m *Manager) ClosePage(page Page) {
	pw, ok := page.(*pwPage)
	if !ok || pw.page == nil {
		return
	}

	m.mu.Lock()
	defaultCtx := m.defaultCtx
	m.mu.Unlock()

	err := raceVoid("close page", m.cfg.PageTimeout, func() error {
		owner := pw.page.Context()

		if err := pw.page.Close(); err != nil && !isAlreadyClosed(err) {
			log.Warn().Err(err).Msg("page close failed")
		}

		if owner != nil && owner != defaultCtx {
			for _, p := range owner.Pages() {
				if err := p.Close(); err != nil && !isAlreadyClosed(err) {
					log.Warn().Err(err).Msg("isolated sibling page close failed")
				}
			}

			if err := owner.Close(); err != nil && !isAlreadyClosed(err) {
				log.Warn().Err(err).Msg("isolated context close failed")
			}
		}

		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("page close timed out")
	}
}

func isAlreadyClosed(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "has been closed") ||
		strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "context or browser has been closed")
}

// storage clear scripts, evaluated per page. Each kind is its own
// best-effort step.
var storageClearSteps = map[string]string{
	"web storage": `(() => {
		localStorage.clear();
		sessionStorage.clear();
	})()`,
	"service workers": `(async () => {
		if (!navigator.serviceWorker) return 0;
		const regs = await navigator.serviceWorker.getRegistrations();
		await Promise.all(regs.map(r => r.unregister()));
		return regs.length;
	})()`,
	"indexeddb": `(async () => {
		if (!indexedDB || !indexedDB.databases) return 0;
		const dbs = await indexedDB.databases();
		dbs.forEach(db => { if (db.name) indexedDB.deleteDatabase(db.name); });
		return dbs.length;
	})()`,
}

// evaluator is the page slice storage clearing needs.
type evaluator interface {
	Evaluate(expression string, options ...any) (any, error)
}

func runStorageClearSteps(pages []evaluator) {
	for _, pg := range pages {
		for name, script := range storageClearSteps {
			if _, err := pg.Evaluate(script); err != nil {
				log.Warn().Err(err).Str("kind", name).Msg("storage clear step failed")
			}
		}
	}
}

// ClearStorage wipes cookies, web storage, service workers and IndexedDB
// for the page's owning context. The script-based clears run on every
// page of the context, since each page may sit on a different origin and
// web storage is origin-scoped.
func (m *Manager) ClearStorage(_ context.Context, page Page) {
	pw, ok := page.(*pwPage)
	if !ok {
		return
	}

	_ = raceVoid("clear storage", m.cfg.PageTimeout, func() error {
		pages := []evaluator{pw.page}

		if bctx := pw.page.Context(); bctx != nil {
			if err := bctx.ClearCookies(); err != nil {
				log.Warn().Err(err).Msg("cookie clear failed")
			}

			pages = pages[:0]
			for _, p := range bctx.Pages() {
				pages = append(pages, p)
			}
		}

		runStorageClearSteps(pages)

		return nil
	})
}

// ClearCaches issues low-level cache and storage clears over the Chrome
// debugging protocol. Absence of CDP support is not an error.
func (m *Manager) ClearCaches(_ context.Context, page Page) {
	pw, ok := page.(*pwPage)
	if !ok {
		return
	}

	_ = raceVoid("clear caches", m.cfg.PageTimeout, func() error {
		bctx := pw.page.Context()
		if bctx == nil {
			return nil
		}

		cdp, err := bctx.NewCDPSession(pw.page)
		if err != nil {
			log.Debug().Err(err).Msg("cdp session unavailable, skipping cache clear")

			return nil
		}

		defer func() {
			_ = cdp.Detach()
		}()

		commands := []struct {
			method string
			params map[string]any
		}{
			{method: "Network.clearBrowserCache"},
			{method: "Network.clearBrowserCookies"},
			{method: "Storage.clearDataForOrigin", params: map[string]any{
				"origin":       "*",
				"storageTypes": "all",
			}},
		}

		for _, cmd := range commands {
			if _, err := cdp.Send(cmd.method, cmd.params); err != nil {
				log.Debug().Err(err).Str("method", cmd.method).Msg("cdp clear command failed")
			}
		}

		return nil
	})
}

// RecreateDefaultPage fully closes the old shared page and hands back a
// fresh one. The caller must rebind its reference to the returned page.
func (m *Manager) RecreateDefaultPage(ctx context.Context, old Page) (Page, error) {
	m.ClosePage(old)

	return m.NewPage(ctx)
}

// RecreateContext tears down the whole default browsing context (every
// page in it) and builds a new context with a fresh default page. Strictly
// more aggressive than RecreateDefaultPage.
func (m *Manager) RecreateContext(_ context.Context, _ Page) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil, fmt.Errorf("browser: session not launched")
	}

	return race("recreate context", m.cfg.PageTimeout*2, func() (Page, error) {
		if m.defaultCtx != nil {
			for _, p := range m.defaultCtx.Pages() {
				if err := p.Close(); err != nil && !isAlreadyClosed(err) {
					log.Warn().Err(err).Msg("page close during context recreate failed")
				}
			}

			if err := m.defaultCtx.Close(); err != nil && !isAlreadyClosed(err) {
				log.Warn().Err(err).Msg("context close during recreate failed")
			}
		}

		bctx, err := m.browser.NewContext(playwright.BrowserNewContextOptions{
			UserAgent: playwright.String(m.cfg.UserAgent),
		})
		if err != nil {
			return nil, fmt.Errorf("recreate context: %w", err)
		}

		m.defaultCtx = bctx

		return m.setupPage(bctx)
	})
}

// Counts reports how many contexts the session holds and how many pages
// each context holds.
func (m *Manager) Counts() (Counts, error) {
	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()

	if browser == nil {
		return Counts{}, fmt.Errorf("browser: session not launched")
	}

	return race("counts", m.cfg.PageTimeout, func() (Counts, error) {
		var ans Counts

		for _, bctx := range browser.Contexts() {
			pages := len(bctx.Pages())

			ans.Contexts++
			ans.Pages += pages
			ans.PagesPerContext = append(ans.PagesPerContext, pages)
		}

		return ans, nil
	})
}

// Close shuts the session down: every page first, each under its own short
// timeout, then the browser under the overall close timeout. A stuck
// request inside one page must never block process shutdown. Errors are
// logged, never returned.
func (m *Manager) Close(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return
	}

	for _, bctx := range m.browser.Contexts() {
		for _, p := range bctx.Pages() {
			page := p

			err := raceVoid("close page", 5*time.Second, func() error {
				return page.Close()
			})
			if err != nil && !isAlreadyClosed(err) {
				log.Warn().Err(err).Msg("page close during shutdown failed")
			}
		}
	}

	err := raceVoid("close browser", m.cfg.CloseTimeout, func() error {
		return m.browser.Close()
	})
	if err != nil {
		log.Warn().Err(err).Msg("browser close failed")
	}

	if err := m.pw.Stop(); err != nil {
		log.Warn().Err(err).Msg("playwright stop failed")
	}

	m.browser = nil
	m.defaultCtx = nil
	m.pw = nil

	log.Info().Msg("browser session closed")
}

// pwPage adapts a playwright page to the Page interface.
type pwPage struct {
	page         playwright.Page
	navTimeoutMs float64
}

func (p *pwPage) Goto(url string) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(p.navTimeoutMs),
	})

	return err
}

func (p *pwPage) WaitVisible(selector string, timeoutMs float64) error {
	return p.page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(timeoutMs),
	})
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) Evaluate(expression string) (any, error) {
	return p.page.Evaluate(expression)
}

func (p *pwPage) URL() string {
	return p.page.URL()
}
