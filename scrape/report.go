package scrape

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SuccessEntry struct {
	DealerID    string  `json:"dealer_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
}

type FailureEntry struct {
	DealerID     string `json:"dealer_id"`
	ProductName  string `json:"product_name"`
	ErrorSummary string `json:"error_summary"`
}

// CycleReport aggregates the outcome of one full catalog pass. It is
// built fresh each cycle and discarded after being emitted; nothing in it
// may survive into the next cycle.
type CycleReport struct {
	CycleID    string         `json:"cycle_id"`
	CycleIndex int            `json:"cycle_index"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
	Successes  []SuccessEntry `json:"successes"`
	Failures   []FailureEntry `json:"failures"`
}

func newCycleReport(index int) *CycleReport {
	return &CycleReport{
		CycleID:    uuid.New().String(),
		CycleIndex: index,
		StartedAt:  time.Now().UTC(),
	}
}

func (r *CycleReport) addSuccess(dealerID, productName string, price float64) {
	r.Successes = append(r.Successes, SuccessEntry{
		DealerID:    dealerID,
		ProductName: productName,
		Price:       price,
	})
}

func (r *CycleReport) addFailure(dealerID, productName string, err error) {
	summary := "unknown error"
	if err != nil {
		summary = err.Error()
	}

	r.Failures = append(r.Failures, FailureEntry{
		DealerID:     dealerID,
		ProductName:  productName,
		ErrorSummary: summary,
	})
}

// Total is the number of product outcomes recorded this cycle.
func (r *CycleReport) Total() int {
	return len(r.Successes) + len(r.Failures)
}

// Summary renders a short single-line digest for logs and text sinks.
func (r *CycleReport) Summary() string {
	return fmt.Sprintf("cycle %d: %d ok, %d failed, took %s",
		r.CycleIndex, len(r.Successes), len(r.Failures), r.Duration.Round(time.Second))
}

// reset empties both entry slices so no report state outlives the cycle.
func (r *CycleReport) reset() {
	r.Successes = nil
	r.Failures = nil
}
