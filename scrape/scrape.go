// Package scrape holds the cycle orchestrator: the control loop that
// walks the dealer catalog, drives the per-site extraction strategies over
// the shared browser session, and turns every product visit into exactly
// one success or failure entry per cycle.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/catalog"
)

// Result is what a strategy must produce for one product page.
type Result struct {
	Price        float64
	CanonicalURL string
	InStock      bool
}

// Strategy extracts a price from one product page of one dealer. It
// signals failure by returning an error and must never report a negative
// or non-finite price. A strategy only navigates and reads the page it is
// given; session-level state (cookies, storage) belongs to the resource
// manager.
type Strategy func(ctx context.Context, target catalog.ProductTarget, baseURL string, page browser.Page) (Result, error)

// Persister writes one extracted listing. Upsert is keyed by
// dealer+product and idempotent under repeated identical calls. An
// unknown dealer or product is a configuration fault, reported via
// ConfigError and never retried.
type Persister interface {
	Upsert(ctx context.Context, dealerID, productName string, price float64, canonicalURL string, inStock bool) error
}

// ErrNoStrategy is recorded for every product of a dealer that has no
// registered strategy. No visit is attempted and no retry is spent.
var ErrNoStrategy = errors.New("no strategy registered")

// InvalidPriceError marks a strategy that returned without error but with
// a price the contract forbids.
type InvalidPriceError struct {
	Price float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("strategy returned invalid price %v", e.Price)
}

// ConfigError is a configuration fault: wrong credentials, unknown dealer
// or product at persistence time. It is surfaced immediately, never
// retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration fault: " + e.Reason
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError

	return errors.As(err, &ce)
}

func validPrice(price float64) bool {
	return price >= 0 && !math.IsNaN(price) && !math.IsInf(price, 0)
}
