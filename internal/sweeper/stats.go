package sweeper

import (
	"sync/atomic"
	"time"
)

// Stats counts sweep runs since the last reset.
type Stats struct {
	runs            int64
	failures        int64
	expired         int64
	totalDurationNs int64
	lastResetNs     int64
}

func NewStats() *Stats {
	return &Stats{
		lastResetNs: time.Now().UnixNano(),
	}
}

func (m *Stats) RecordRun(expired int64, duration time.Duration) {
	atomic.AddInt64(&m.runs, 1)
	atomic.AddInt64(&m.expired, expired)
	atomic.AddInt64(&m.totalDurationNs, int64(duration))
}

func (m *Stats) RecordFailure() {
	atomic.AddInt64(&m.failures, 1)
}

func (m *Stats) Snapshot() map[string]interface{} {
	runs := atomic.LoadInt64(&m.runs)
	failures := atomic.LoadInt64(&m.failures)
	expired := atomic.LoadInt64(&m.expired)
	durationNs := atomic.LoadInt64(&m.totalDurationNs)
	lastResetNs := atomic.LoadInt64(&m.lastResetNs)

	avg := time.Duration(0)
	if runs > 0 {
		avg = time.Duration(durationNs / runs)
	}

	return map[string]interface{}{
		"runs":            runs,
		"failures":        failures,
		"expired_tokens":  expired,
		"avg_duration_ms": avg.Milliseconds(),
		"uptime_seconds":  time.Since(time.Unix(0, lastResetNs)).Seconds(),
	}
}

func (m *Stats) Reset() {
	atomic.StoreInt64(&m.runs, 0)
	atomic.StoreInt64(&m.failures, 0)
	atomic.StoreInt64(&m.expired, 0)
	atomic.StoreInt64(&m.totalDurationNs, 0)
	atomic.StoreInt64(&m.lastResetNs, time.Now().UnixNano())
}
