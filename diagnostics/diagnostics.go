// Package diagnostics samples process and browser-session resource
// indicators so a slow leak shows up in a trend line days before it
// shows up as an OOM kill. The collector keeps a bounded rolling buffer
// of snapshots; the bound is enforced inside every append, because the
// diagnostics machinery must not become its own leak source.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/notify"
)

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

type ProcessMemory struct {
	HeapUsed  uint64 `json:"heap_used"`
	HeapTotal uint64 `json:"heap_total"`
	Resident  uint64 `json:"resident"`
	External  uint64 `json:"external"`
}

type SessionMemory struct {
	PageCount    int `json:"page_count"`
	ContextCount int `json:"context_count"`
}

type Snapshot struct {
	CycleIndex int           `json:"cycle_index"`
	Label      string        `json:"label"`
	Timestamp  time.Time     `json:"timestamp"`
	Process    ProcessMemory `json:"process"`
	Session    SessionMemory `json:"session"`
}

// Trend compares the first and last snapshot of a window.
type Trend struct {
	Direction         string        `json:"direction"`
	HeapUsedDelta     int64         `json:"heap_used_delta"`
	HeapTotalDelta    int64         `json:"heap_total_delta"`
	ResidentDelta     int64         `json:"resident_delta"`
	ExternalDelta     int64         `json:"external_delta"`
	PageCountDelta    int           `json:"page_count_delta"`
	ContextCountDelta int           `json:"context_count_delta"`
	Window            int           `json:"window"`
	Span              time.Duration `json:"span"`
}

// Analysis is the human-readable verdict over recent snapshots.
type Analysis struct {
	Sufficient bool     `json:"sufficient"`
	Trend      *Trend   `json:"trend,omitempty"`
	Issues     []string `json:"issues,omitempty"`
	Text       string   `json:"text"`
}

// SessionInfo is the slice of the browser session diagnostics needs.
type SessionInfo interface {
	Counts() (browser.Counts, error)
}

type Config struct {
	// MaxRetained bounds the rolling snapshot buffer.
	MaxRetained int
	// TrendThreshold is the heap-used delta (bytes) beyond which a
	// window counts as increasing/decreasing rather than stable.
	TrendThreshold int64
	// Growth limits (bytes) that raise a potential-issue entry.
	HeapGrowthLimit     int64
	ExternalGrowthLimit int64
	ResidentGrowthLimit int64
}

func (c *Config) defaults() {
	if c.MaxRetained <= 0 {
		c.MaxRetained = 60
	}

	if c.TrendThreshold <= 0 {
		c.TrendThreshold = 16 << 20 // 16 MiB
	}

	if c.HeapGrowthLimit <= 0 {
		c.HeapGrowthLimit = 64 << 20
	}

	if c.ExternalGrowthLimit <= 0 {
		c.ExternalGrowthLimit = 64 << 20
	}

	if c.ResidentGrowthLimit <= 0 {
		c.ResidentGrowthLimit = 256 << 20
	}
}

// Collector samples resource indicators and keeps the bounded history.
type Collector struct {
	cfg     Config
	session SessionInfo
	sink    notify.Sink
	proc    *process.Process

	mu        sync.Mutex
	snapshots []Snapshot
}

// NewCollector builds a collector. session may be nil (no session-level
// counters yet); sink may be nil (no forwarding).
func NewCollector(cfg Config, session SessionInfo, sink notify.Sink) *Collector {
	cfg.defaults()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("process handle unavailable, resident memory will read zero")

		proc = nil
	}

	return &Collector{cfg: cfg, session: session, sink: sink, proc: proc}
}

// TakeSnapshot records one sample and trims the buffer to its retained
// maximum in the same call, never deferred.
func (c *Collector) TakeSnapshot(cycleIndex int, label string) Snapshot {
	snap := Snapshot{
		CycleIndex: cycleIndex,
		Label:      label,
		Timestamp:  time.Now().UTC(),
		Process:    c.processMemory(),
	}

	if c.session != nil {
		counts, err := c.session.Counts()
		if err != nil {
			log.Debug().Err(err).Msg("session counts unavailable for snapshot")
		} else {
			snap.Session = SessionMemory{
				PageCount:    counts.Pages,
				ContextCount: counts.Contexts,
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots = append(c.snapshots, snap)
	if excess := len(c.snapshots) - c.cfg.MaxRetained; excess > 0 {
		c.snapshots = append(c.snapshots[:0], c.snapshots[excess:]...)
	}

	log.Debug().
		Str("label", label).
		Uint64("heap_used", snap.Process.HeapUsed).
		Uint64("resident", snap.Process.Resident).
		Int("pages", snap.Session.PageCount).
		Int("contexts", snap.Session.ContextCount).
		Msg("resource snapshot")

	return snap
}

func (c *Collector) processMemory() ProcessMemory {
	var ms runtime.MemStats

	runtime.ReadMemStats(&ms)

	ans := ProcessMemory{
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
		External:  ms.Sys - ms.HeapSys,
	}

	if c.proc != nil {
		if info, err := c.proc.MemoryInfo(); err == nil {
			ans.Resident = info.RSS
		}
	}

	return ans
}

// Len returns how many snapshots are retained.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.snapshots)
}

// Trend compares the first and last snapshot within the most recent
// window snapshots. It returns nil when fewer than 2 snapshots exist;
// callers must treat nil as "no opinion", not as stable.
func (c *Collector) Trend(window int) *Trend {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.trendLocked(window)
}

func (c *Collector) trendLocked(window int) *Trend {
	if len(c.snapshots) < 2 {
		return nil
	}

	if window < 2 || window > len(c.snapshots) {
		window = len(c.snapshots)
	}

	recent := c.snapshots[len(c.snapshots)-window:]
	first, last := recent[0], recent[len(recent)-1]

	ans := &Trend{
		HeapUsedDelta:     int64(last.Process.HeapUsed) - int64(first.Process.HeapUsed),
		HeapTotalDelta:    int64(last.Process.HeapTotal) - int64(first.Process.HeapTotal),
		ResidentDelta:     int64(last.Process.Resident) - int64(first.Process.Resident),
		ExternalDelta:     int64(last.Process.External) - int64(first.Process.External),
		PageCountDelta:    last.Session.PageCount - first.Session.PageCount,
		ContextCountDelta: last.Session.ContextCount - first.Session.ContextCount,
		Window:            len(recent),
		Span:              last.Timestamp.Sub(first.Timestamp),
	}

	switch {
	case ans.HeapUsedDelta > c.cfg.TrendThreshold:
		ans.Direction = TrendIncreasing
	case ans.HeapUsedDelta < -c.cfg.TrendThreshold:
		ans.Direction = TrendDecreasing
	default:
		ans.Direction = TrendStable
	}

	return ans
}

// Analysis combines the trend with a small rule set into a list of
// potential issues. It needs at least 3 snapshots; with fewer it returns
// an explicit insufficient-data result instead of guessing. Producing the
// analysis also forwards the trend and the most recent snapshots to the
// notification sink.
func (c *Collector) Analysis(ctx context.Context) Analysis {
	c.mu.Lock()

	if len(c.snapshots) < 3 {
		n := len(c.snapshots)
		c.mu.Unlock()

		return Analysis{
			Sufficient: false,
			Text:       fmt.Sprintf("insufficient data: %d snapshots, need at least 3", n),
		}
	}

	trend := c.trendLocked(len(c.snapshots))
	recent := make([]Snapshot, 0, 3)
	recent = append(recent, c.snapshots[len(c.snapshots)-3:]...)

	c.mu.Unlock()

	var issues []string

	if trend.HeapUsedDelta > c.cfg.HeapGrowthLimit {
		issues = append(issues, fmt.Sprintf("heap used grew by %s", formatBytes(trend.HeapUsedDelta)))
	}

	if trend.ExternalDelta > c.cfg.ExternalGrowthLimit {
		issues = append(issues, fmt.Sprintf("external memory grew by %s", formatBytes(trend.ExternalDelta)))
	}

	if trend.ResidentDelta > c.cfg.ResidentGrowthLimit {
		issues = append(issues, fmt.Sprintf("resident memory grew by %s", formatBytes(trend.ResidentDelta)))
	}

	if trend.PageCountDelta > 0 {
		issues = append(issues, fmt.Sprintf("page count increased by %d", trend.PageCountDelta))
	}

	if trend.ContextCountDelta > 0 {
		issues = append(issues, fmt.Sprintf("context count increased by %d", trend.ContextCountDelta))
	}

	text := "no obvious leak"
	if len(issues) > 0 {
		text = "potential issues: " + strings.Join(issues, "; ")
	}

	ans := Analysis{
		Sufficient: true,
		Trend:      trend,
		Issues:     issues,
		Text:       fmt.Sprintf("memory trend %s over %d snapshots: %s", trend.Direction, trend.Window, text),
	}

	if c.sink != nil {
		_ = c.sink.SendStructured(ctx, "diagnostics.analysis", map[string]any{
			"trend":     trend,
			"issues":    issues,
			"snapshots": recent,
		})
	}

	log.Info().
		Str("direction", trend.Direction).
		Int("issues", len(issues)).
		Msg(ans.Text)

	return ans
}

func formatBytes(n int64) string {
	const mib = 1 << 20

	return fmt.Sprintf("%.1f MiB", float64(n)/float64(mib))
}
