// Package results consumes decoded detections: it keeps the most recent
// box/pose for the overlay (last-value-wins), meters the observed result
// rate over a sliding one-second window, and appends to the in-memory
// session log while tracking is active.
package results

import (
	"sync"
	"time"

	"posetrack-client-go/internal/types"
)

// windowSpan is the sliding interval the result rate is measured over.
const windowSpan = time.Second

// Consumer implements telemetry.Sink and session.ResultSink.
type Consumer struct {
	mu       sync.Mutex
	now      func() time.Time
	tracking func() bool

	latest    *types.Result
	arrivals  []time.Time
	rate      int
	log       []types.LogEntry
	runID     string
	startedAt time.Time
}

// New builds a consumer. tracking gates session-log appends and may be nil
// (never tracking).
func New(tracking func() bool) *Consumer {
	return &Consumer{now: time.Now, tracking: tracking}
}

// Consume replaces the latest result unconditionally, updates the rate
// window and, while tracking, appends a log entry.
func (c *Consumer) Consume(res types.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := res
	c.latest = &r

	now := c.now()
	c.evict(now)
	c.arrivals = append(c.arrivals, now)
	c.rate = len(c.arrivals)

	if c.tracking != nil && c.tracking() {
		c.log = append(c.log, types.LogEntry{
			Seq:       len(c.log) + 1,
			Timestamp: res.Timestamp,
			Pose:      res.Pose,
		})
	}
}

// evict drops arrivals older than now minus the window span. Caller holds mu.
func (c *Consumer) evict(now time.Time) {
	cutoff := now.Add(-windowSpan)
	i := 0
	for i < len(c.arrivals) && c.arrivals[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.arrivals = append(c.arrivals[:0], c.arrivals[i:]...)
	}
}

// Latest returns the most recent result, if any.
func (c *Consumer) Latest() (types.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return types.Result{}, false
	}
	return *c.latest, true
}

// Rate returns the integer results-per-second metric as of the last arrival.
func (c *Consumer) Rate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Reset starts a new tracking run: the session log and rate window restart
// from empty.
func (c *Consumer) Reset(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
	c.arrivals = nil
	c.rate = 0
	c.runID = runID
	c.startedAt = c.now()
}

// ClearLatest drops the latest box/pose so no stale overlay survives a stop.
// The session log keeps the finished run until the next Reset.
func (c *Consumer) ClearLatest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = nil
}

// Log returns a copy of the session log with its run identifier.
func (c *Consumer) Log() (string, []types.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID, append([]types.LogEntry(nil), c.log...)
}
