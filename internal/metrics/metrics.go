package metrics

import (
	"sync"
	"sync/atomic"
)

// engineStats holds process-local counters for the automation engine.
// Kept simple/thread-safe for use from the orchestrator and exposition.
type engineStats struct {
	started     uint64
	completed   uint64
	failed      uint64
	skipped     uint64
	rateLimited uint64

	mu      sync.Mutex
	byEvent map[string]uint64
}

var eng engineStats

// IncExecutionStarted increments the started counter.
func IncExecutionStarted() { atomic.AddUint64(&eng.started, 1) }

// IncExecutionCompleted increments the completed counter.
func IncExecutionCompleted() { atomic.AddUint64(&eng.completed, 1) }

// IncExecutionFailed increments the failed counter.
func IncExecutionFailed() { atomic.AddUint64(&eng.failed, 1) }

// IncExecutionSkipped increments the conditions-not-met counter.
func IncExecutionSkipped() { atomic.AddUint64(&eng.skipped, 1) }

// IncRateLimited increments the quota-rejection counter.
func IncRateLimited() { atomic.AddUint64(&eng.rateLimited, 1) }

// IncEventDispatch counts dispatches per event type.
func IncEventDispatch(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	eng.mu.Lock()
	if eng.byEvent == nil {
		eng.byEvent = make(map[string]uint64)
	}
	eng.byEvent[eventType]++
	eng.mu.Unlock()
}

// EngineSnapshot returns a copy of the current counters.
func EngineSnapshot() (started, completed, failed, skipped, rateLimited uint64, byEvent map[string]uint64) {
	started = atomic.LoadUint64(&eng.started)
	completed = atomic.LoadUint64(&eng.completed)
	failed = atomic.LoadUint64(&eng.failed)
	skipped = atomic.LoadUint64(&eng.skipped)
	rateLimited = atomic.LoadUint64(&eng.rateLimited)
	eng.mu.Lock()
	defer eng.mu.Unlock()
	byEvent = make(map[string]uint64, len(eng.byEvent))
	for k, v := range eng.byEvent {
		byEvent[k] = v
	}
	return
}

// rateLimitStats holds counters for HTTP rate limit drops (429).
type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop increments drop counters for the given path prefix.
// Use prefix "global" for global limiter rejections.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the current counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}
