package scrape

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/bullionwatch/scraper/browser"
)

type SupervisorConfig struct {
	// SoftEvery cycles: clear storage + debug-protocol caches on the
	// shared page, then re-attach the resource filter.
	SoftEvery int
	// PageEvery cycles: recreate the shared default page.
	PageEvery int
	// ContextEvery cycles: recreate the whole default browsing context.
	// Supersedes the page recreate on shared multiples.
	ContextEvery int
	// MaxPagesPerContext is the leak-monitor threshold for pages held by
	// any single context.
	MaxPagesPerContext int
}

func (c *SupervisorConfig) defaults() {
	if c.SoftEvery <= 0 {
		c.SoftEvery = 3
	}

	if c.PageEvery <= 0 {
		c.PageEvery = 10
	}

	if c.ContextEvery <= 0 {
		c.ContextEvery = 30
	}

	if c.MaxPagesPerContext <= 0 {
		c.MaxPagesPerContext = 2
	}
}

// Supervisor recycles browser resources on cycle-count boundaries so
// memory accumulated over thousands of navigations is reclaimed before it
// matters. It is the only component besides the resource manager that
// mutates shared browser state.
type Supervisor struct {
	cfg     SupervisorConfig
	session browser.Session
	orch    *Orchestrator
	cycles  int
}

func NewSupervisor(cfg SupervisorConfig, session browser.Session, orch *Orchestrator) *Supervisor {
	cfg.defaults()

	return &Supervisor{cfg: cfg, session: session, orch: orch}
}

// AfterCycle runs once per completed cycle. It checks the three recycle
// thresholds (smallest first) and the context/page leak monitor. Any
// recycle action rebinds the orchestrator's shared page to the fresh
// handle the session returns.
func (s *Supervisor) AfterCycle(ctx context.Context) {
	s.cycles++

	if s.cycles%s.cfg.SoftEvery == 0 {
		s.softCleanup(ctx)
	}

	switch {
	case s.cycles%s.cfg.ContextEvery == 0:
		s.recreateContext(ctx)
	case s.cycles%s.cfg.PageEvery == 0:
		s.recreatePage(ctx)
	}

	s.checkLeaks()
}

func (s *Supervisor) softCleanup(ctx context.Context) {
	page := s.orch.SharedPage()
	if page == nil {
		return
	}

	log.Info().Int("cycle", s.cycles).Msg("soft cleanup: clearing storage and caches")

	s.session.ClearStorage(ctx, page)
	s.session.ClearCaches(ctx, page)

	// Storage clears drop route handlers; the blocking filter must come
	// back before the next navigation.
	if err := s.session.InstallRequestFilter(page); err != nil {
		log.Warn().Err(err).Msg("request filter re-install failed")
	}
}

func (s *Supervisor) recreatePage(ctx context.Context) {
	log.Info().Int("cycle", s.cycles).Msg("recycling shared page")

	page, err := s.session.RecreateDefaultPage(ctx, s.orch.SharedPage())
	if err != nil {
		log.Error().Err(err).Msg("page recreate failed, keeping old page")

		return
	}

	s.orch.BindSharedPage(page)
}

func (s *Supervisor) recreateContext(ctx context.Context) {
	log.Info().Int("cycle", s.cycles).Msg("recycling browsing context")

	page, err := s.session.RecreateContext(ctx, s.orch.SharedPage())
	if err != nil {
		log.Error().Err(err).Msg("context recreate failed, keeping old page")

		return
	}

	s.orch.BindSharedPage(page)
}

// checkLeaks is a cheap drift detector: it reclaims nothing, it only tells
// operators when the session holds more contexts or pages than this
// design ever creates on purpose.
func (s *Supervisor) checkLeaks() {
	counts, err := s.session.Counts()
	if err != nil {
		log.Warn().Err(err).Msg("leak check failed")

		return
	}

	if counts.Contexts > 1 {
		log.Warn().
			Int("contexts", counts.Contexts).
			Msg("leak warning: more than one browsing context alive")
	}

	for i, pages := range counts.PagesPerContext {
		if pages > s.cfg.MaxPagesPerContext {
			log.Warn().
				Int("context", i).
				Int("pages", pages).
				Int("max", s.cfg.MaxPagesPerContext).
				Msg("leak warning: context holds too many pages")
		}
	}
}
