package telemetry

import (
	"sync"

	"golang.org/x/time/rate"
)

// DefaultPublishRate is how many samples per second reach subscribers by default.
const DefaultPublishRate = 100.0

// Fanout rate limits samples and hands each one that passes to every registered publisher. The
// sample is cloned once so publishers may keep it.
type Fanout struct {
	limiter *rate.Limiter

	mu   sync.RWMutex
	subs []Publisher
}

// NewFanout publishes at most perSecond samples per second. A non-positive rate means
// DefaultPublishRate.
func NewFanout(perSecond float64, subs ...Publisher) *Fanout {
	if perSecond <= 0 {
		perSecond = DefaultPublishRate
	}
	return &Fanout{
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		subs:    subs,
	}
}

// Add registers another publisher.
func (f *Fanout) Add(p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, p)
}

// Publish implements Publisher.
func (f *Fanout) Publish(s Sample) {
	if !f.limiter.Allow() {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.subs) == 0 {
		return
	}
	c := s.Clone()
	for _, p := range f.subs {
		p.Publish(c)
	}
}
