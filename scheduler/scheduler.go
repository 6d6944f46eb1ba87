// Package scheduler runs named background jobs on fixed intervals
// alongside the scrape loop. Jobs are independent tickers; a slow
// handler skips its own next firing instead of queueing behind it.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler is one job execution. The context is the scheduler's run
// context and is cancelled on Stop.
type Handler func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	handler  Handler

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// tryRun executes the handler unless a previous firing is still in
// flight, in which case this firing is skipped.
func (j *job) tryRun(ctx context.Context) {
	j.mu.Lock()

	if j.running {
		j.mu.Unlock()

		log.Warn().Str("job", j.name).Msg("previous run still in flight, skipping")

		return
	}

	j.running = true
	j.lastRun = time.Now().UTC()
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := time.Now()
	err := j.handler(ctx)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Str("job", j.name).Dur("elapsed", elapsed).Msg("job failed")

		return
	}

	log.Debug().Str("job", j.name).Dur("elapsed", elapsed).Msg("job completed")
}

// Scheduler owns a set of named interval jobs.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*job)}
}

// Register adds a job under a unique name. Registering the same name
// twice is a no-op with a warning. When the scheduler is already
// running the job begins firing on its own interval immediately.
func (s *Scheduler) Register(name string, interval time.Duration, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		log.Warn().Str("job", name).Msg("job already registered, ignoring duplicate")

		return
	}

	j := &job{name: name, interval: interval, handler: handler}

	s.jobs[name] = j
	s.order = append(s.order, name)

	if s.started {
		s.launchLocked(j)
	}
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.jobs)
}

// Start launches one ticker goroutine per registered job. It returns
// immediately; jobs fire until Stop or until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.started = true
	s.runCtx, s.cancel = context.WithCancel(ctx)

	for _, name := range s.order {
		s.launchLocked(s.jobs[name])
	}
}

// launchLocked starts one job's ticker goroutine. Caller holds s.mu.
func (s *Scheduler) launchLocked(j *job) {
	runCtx := s.runCtx

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		log.Info().Str("job", j.name).Dur("interval", j.interval).Msg("job scheduled")

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				// Fire in its own goroutine so a slow handler delays
				// nothing; the in-flight flag turns the pile-up into
				// skips.
				s.wg.Add(1)

				go func() {
					defer s.wg.Done()
					j.tryRun(runCtx)
				}()
			}
		}
	}()
}

// Stop cancels all job tickers, waits for in-flight handlers and leaves
// the scheduler ready to be started again.
func (s *Scheduler) Stop() {
	s.mu.Lock()

	if !s.started || s.cancel == nil {
		s.mu.Unlock()

		return
	}

	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.started = false
	s.runCtx = nil
	s.cancel = nil
	s.mu.Unlock()

	log.Info().Msg("scheduler stopped")
}
