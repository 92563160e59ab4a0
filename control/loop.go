// Package control drives a fixed rate control cycle and provides the per-joint motion profiles
// used by the controllers it drives.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"go.viam.com/impedance/logging"
)

// DefaultFrequency is the cycle rate used when none is configured.
const DefaultFrequency = 100.0

// MaxFrequency is the highest accepted cycle rate.
const MaxFrequency = 1000.0

// timingWindow is how many recent cycle durations are kept for statistics.
const timingWindow = 1024

// CycleFunc runs one control cycle. dt is the nominal period.
type CycleFunc func(ctx context.Context, dt time.Duration)

// Config describes a control loop.
type Config struct {
	Frequency float64 `json:"frequency"`
}

// Loop runs a CycleFunc at a fixed frequency until stopped.
type Loop struct {
	cfg    Config
	dt     time.Duration
	clk    clock.Clock
	cycle  CycleFunc
	logger logging.Logger

	mu      sync.Mutex
	workers *utils.StoppableWorkers
	running atomic.Bool

	cycles   atomic.Uint64
	panics   atomic.Uint64
	overruns atomic.Uint64

	timingMu  sync.Mutex
	durations []float64
	next      int
}

// NewLoop constructs a loop. A nil clock uses the wall clock.
func NewLoop(logger logging.Logger, cfg Config, clk clock.Clock, cycle CycleFunc) (*Loop, error) {
	if cfg.Frequency <= 0 || cfg.Frequency > MaxFrequency {
		return nil, errors.Errorf("loop frequency shouldn't be 0 or above %vHz, got %v", MaxFrequency, cfg.Frequency)
	}
	if cycle == nil {
		return nil, errors.New("loop needs a cycle function")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		cfg:       cfg,
		dt:        time.Duration(float64(time.Second) * (1.0 / cfg.Frequency)),
		clk:       clk,
		cycle:     cycle,
		logger:    logger,
		durations: make([]float64, 0, timingWindow),
	}, nil
}

// Frequency returns the loop's frequency.
func (l *Loop) Frequency() float64 {
	return l.cfg.Frequency
}

// Period returns the nominal cycle period.
func (l *Loop) Period() time.Duration {
	return l.dt
}

// Running reports whether the loop has been started and not stopped.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Start starts the loop.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running.Load() {
		return errors.New("control loop already running")
	}
	l.logger.Infof("running loop at %1.4f Hz, period %v", l.cfg.Frequency, l.dt)

	ticker := l.clk.Ticker(l.dt)
	l.workers = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			l.runOnce(ctx)
		}
	})
	l.running.Store(true)
	return nil
}

// Stop stops the loop and waits for the cycle in flight to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running.Load() {
		return
	}
	l.logger.Debug("closing loop")
	l.workers.Stop()
	l.workers = nil
	l.running.Store(false)
}

func (l *Loop) runOnce(ctx context.Context) {
	start := l.clk.Now()
	defer func() {
		if r := recover(); r != nil {
			// the actuator keeps whatever was last written to it
			l.logger.Errorw("control cycle panicked, rest of cycle skipped", "panic", r)
			l.panics.Inc()
		}
		elapsed := l.clk.Since(start)
		l.cycles.Inc()
		if elapsed > l.dt {
			l.overruns.Inc()
		}
		l.record(elapsed)
	}()
	l.cycle(ctx, l.dt)
}

func (l *Loop) record(elapsed time.Duration) {
	l.timingMu.Lock()
	defer l.timingMu.Unlock()
	us := float64(elapsed) / float64(time.Microsecond)
	if len(l.durations) < timingWindow {
		l.durations = append(l.durations, us)
		return
	}
	l.durations[l.next] = us
	l.next = (l.next + 1) % timingWindow
}

// Stats summarizes loop health. Durations are in microseconds over the most recent cycles.
type Stats struct {
	Cycles   uint64  `json:"cycles"`
	Panics   uint64  `json:"panics"`
	Overruns uint64  `json:"overruns"`
	MeanUs   float64 `json:"mean_us"`
	P99Us    float64 `json:"p99_us"`
	MaxUs    float64 `json:"max_us"`
}

// Stats returns the current counters and timing summary.
func (l *Loop) Stats() Stats {
	out := Stats{
		Cycles:   l.cycles.Load(),
		Panics:   l.panics.Load(),
		Overruns: l.overruns.Load(),
	}

	l.timingMu.Lock()
	data := stats.Float64Data(append([]float64(nil), l.durations...))
	l.timingMu.Unlock()
	if data.Len() == 0 {
		return out
	}
	// only empty input errors
	out.MeanUs, _ = data.Mean()
	out.P99Us, _ = data.Percentile(99)
	out.MaxUs, _ = data.Max()
	return out
}
