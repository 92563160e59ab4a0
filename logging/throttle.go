package logging

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultThrottleInterval is how often a throttled message may be repeated.
const DefaultThrottleInterval = 5 * time.Second

// Throttle suppresses repeats of the same message for an interval. Each distinct key gets its own
// window, so a burst of one warning does not hide a different one.
type Throttle struct {
	logger   Logger
	interval time.Duration

	mu    sync.Mutex
	slots map[string]*rate.Sometimes
}

// NewThrottle returns a Throttle writing to logger. A non-positive interval uses
// DefaultThrottleInterval.
func NewThrottle(logger Logger, interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &Throttle{logger: logger, interval: interval, slots: map[string]*rate.Sometimes{}}
}

func (t *Throttle) slot(key string) *rate.Sometimes {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[key]
	if !ok {
		s = &rate.Sometimes{Interval: t.interval}
		t.slots[key] = s
	}
	return s
}

// Do runs f at most once per interval for key.
func (t *Throttle) Do(key string, f func(Logger)) {
	t.slot(key).Do(func() { f(t.logger) })
}

// Warnw logs at WARN, keyed by msg.
func (t *Throttle) Warnw(msg string, keysAndValues ...interface{}) {
	t.Do(msg, func(l Logger) { l.Warnw(msg, keysAndValues...) })
}

// Infow logs at INFO, keyed by msg.
func (t *Throttle) Infow(msg string, keysAndValues ...interface{}) {
	t.Do(msg, func(l Logger) { l.Infow(msg, keysAndValues...) })
}

// Errorw logs at ERROR, keyed by msg.
func (t *Throttle) Errorw(msg string, keysAndValues ...interface{}) {
	t.Do(msg, func(l Logger) { l.Errorw(msg, keysAndValues...) })
}
