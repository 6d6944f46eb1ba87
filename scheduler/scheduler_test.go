package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateRegistrationIgnored(t *testing.T) {
	s := New()

	var first, second atomic.Int32

	s.Register("digest", time.Hour, func(context.Context) error {
		first.Add(1)

		return nil
	})
	s.Register("digest", time.Millisecond, func(context.Context) error {
		second.Add(1)

		return nil
	})

	require.Equal(t, 1, s.Len())

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, first.Load(), "hour interval must not have fired")
	assert.Zero(t, second.Load(), "duplicate must not have been registered")
}

func TestJobFiresOnInterval(t *testing.T) {
	s := New()

	var fired atomic.Int32

	s.Register("heartbeat", 10*time.Millisecond, func(context.Context) error {
		fired.Add(1)

		return nil
	})

	s.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, fired.Load(), int32(3))
}

func TestOverlappingFiringIsSkipped(t *testing.T) {
	s := New()

	var inFlight, peak atomic.Int32

	release := make(chan struct{})

	s.Register("slow", 10*time.Millisecond, func(context.Context) error {
		n := inFlight.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}

		<-release
		inFlight.Add(-1)

		return nil
	})

	s.Start(context.Background())

	time.Sleep(80 * time.Millisecond)
	close(release)
	s.Stop()

	assert.Equal(t, int32(1), peak.Load(), "only one execution may run at a time")
}

func TestStopCancelsJobContext(t *testing.T) {
	s := New()

	cancelled := make(chan struct{})

	s.Register("watch", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)

		return ctx.Err()
	})

	s.Start(context.Background())

	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})

	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
}

func TestRegistrationAfterStartFiresImmediately(t *testing.T) {
	s := New()

	s.Register("a", time.Hour, func(context.Context) error { return nil })
	s.Start(context.Background())
	defer s.Stop()

	var fired atomic.Int32

	s.Register("late", 10*time.Millisecond, func(context.Context) error {
		fired.Add(1)

		return nil
	})

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 2, s.Len())
	assert.GreaterOrEqual(t, fired.Load(), int32(1), "job added after start must begin firing")
}

func TestStopThenStartRunsJobsAgain(t *testing.T) {
	s := New()

	var fired atomic.Int32

	s.Register("pulse", 10*time.Millisecond, func(context.Context) error {
		fired.Add(1)

		return nil
	})

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	afterFirstRun := fired.Load()
	require.GreaterOrEqual(t, afterFirstRun, int32(1))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, afterFirstRun, fired.Load(), "no firings while stopped")

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Greater(t, fired.Load(), afterFirstRun, "restart must resume firings")
}
