// Package browser owns the single long-lived browser-automation session.
// Every operation that talks to the browser process is raced against a
// timer so a wedged renderer can never hang the worker for good.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Page is the narrow surface a site strategy and the orchestrator need.
// The production implementation wraps a playwright page; tests substitute
// in-memory fakes.
type Page interface {
	// Goto navigates to url and waits for DOM content to load.
	Goto(url string) error
	// WaitVisible blocks until selector is visible or timeoutMs elapses.
	WaitVisible(selector string, timeoutMs float64) error
	// Content returns the rendered HTML of the page.
	Content() (string, error)
	// Evaluate runs a JavaScript expression in the page.
	Evaluate(expression string) (any, error)
	// URL returns the page's current URL.
	URL() string
}

// Counts is a point-in-time view of the session's browsing contexts and
// the pages each holds. Used by the leak monitor and diagnostics.
type Counts struct {
	Contexts        int
	Pages           int
	PagesPerContext []int
}

// Session is what the orchestrator, supervisor and diagnostics see of the
// browser. All mutation of shared browser state happens behind it.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	// IsolatedPage creates a page in a fresh browsing context with no
	// shared cookies or navigation history.
	IsolatedPage(ctx context.Context) (Page, error)
	// ClosePage tears a page down, including its context when the page
	// was isolated. Best-effort: errors are logged, never returned.
	ClosePage(page Page)
	// ClearStorage clears cookies, web storage, service workers and
	// IndexedDB for the page's context. Each kind is cleared
	// independently; one failing must not stop the rest.
	ClearStorage(ctx context.Context, page Page)
	// ClearCaches issues cache-clear commands over the debugging
	// protocol. Entirely best-effort.
	ClearCaches(ctx context.Context, page Page)
	RecreateDefaultPage(ctx context.Context, old Page) (Page, error)
	RecreateContext(ctx context.Context, old Page) (Page, error)
	// InstallRequestFilter (re-)attaches the resource-blocking route
	// filter. Storage clears drop route handlers, so the supervisor
	// re-installs it after a soft cleanup.
	InstallRequestFilter(page Page) error
	Counts() (Counts, error)
	Close(ctx context.Context)
}

// TimeoutError reports a browser operation that exceeded its internal
// bound. It is distinct from navigation and extraction errors so the
// orchestrator can tell a wedged browser from a broken page.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("browser: %s timed out after %s", e.Op, e.Timeout)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError

	return errors.As(err, &te)
}

// race runs fn in a goroutine and waits at most timeout for it. On
// timeout the operation keeps running in the background but its result is
// discarded; the caller gets a TimeoutError. The playwright bindings have
// no cancellable variants, so abandoning the goroutine is the only way to
// keep the control loop moving.
func race[T any](op string, timeout time.Duration, fn func() (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}

	ch := make(chan outcome, 1)

	go func() {
		val, err := fn()
		ch <- outcome{val: val, err: err}
	}()

	select {
	case out := <-ch:
		return out.val, out.err
	case <-time.After(timeout):
		var zero T

		return zero, &TimeoutError{Op: op, Timeout: timeout}
	}
}

func raceVoid(op string, timeout time.Duration, fn func() error) error {
	_, err := race(op, timeout, func() (struct{}, error) {
		return struct{}{}, fn()
	})

	return err
}
