package notify

import (
	"sync"
	"time"
)

// Category buckets user-facing notifications. Each category has its own
// suppression window, so a connect notification never masks a disconnect.
type Category string

const (
	CategoryConnect    Category = "connect"
	CategoryDisconnect Category = "disconnect"
	CategoryError      Category = "error"
	CategoryUpdate     Category = "update"
)

// Sink receives the notifications that pass the throttle.
type Sink func(category Category, message string)

// Throttle rate-limits user-facing notifications per category, so a
// flapping channel or a burst of updates emits one notification per window
// instead of a storm.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[Category]time.Time
	sink     Sink
	now      func() time.Time
}

// New creates a throttle emitting through sink at most once per interval
// and per category.
func New(interval time.Duration, sink Sink) *Throttle {
	return &Throttle{
		interval: interval,
		last:     make(map[Category]time.Time),
		sink:     sink,
		now:      time.Now,
	}
}

// TryNotify emits message through the sink unless a notification of the
// same category fired within the suppression window. It reports whether
// the notification was emitted.
func (t *Throttle) TryNotify(category Category, message string) bool {
	t.mu.Lock()
	now := t.now()
	if last, ok := t.last[category]; ok && now.Sub(last) <= t.interval {
		t.mu.Unlock()
		return false
	}
	t.last[category] = now
	sink := t.sink
	t.mu.Unlock()

	if sink != nil {
		sink(category, message)
	}
	return true
}
