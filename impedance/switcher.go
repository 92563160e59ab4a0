package impedance

import (
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/impedance/logging"
)

// DefaultSettleCycles is how many full cycles a switch dwells in gravity compensation.
const DefaultSettleCycles = 1

// ModeSwitcher owns the strategies and decides which one governs each cycle. Any change of the
// requested mode first settles in GravityCompensation; the new mode only takes over once the
// request has stayed the same for SettleCycles full cycles of gravity compensation.
//
// Request, Requested, ActiveMode and IsSwitching are safe from any goroutine. Resolve and Settle
// belong to the control cycle.
type ModeSwitcher struct {
	logger       logging.Logger
	settleCycles int
	strategies   map[ControlMode]Strategy

	requested atomic.Int32
	active    atomic.Int32

	// cycle owned
	settling bool
	pending  ControlMode
	dwell    int
}

// NewModeSwitcher registers one strategy per mode. Active starts at None and GravityCompensation
// is requested, so the first cycle settles into it.
func NewModeSwitcher(logger logging.Logger, settleCycles int, strategies ...Strategy) (*ModeSwitcher, error) {
	if settleCycles < 1 {
		return nil, errors.Errorf("settle cycles must be at least 1, got %d", settleCycles)
	}
	ms := &ModeSwitcher{
		logger:       logger,
		settleCycles: settleCycles,
		strategies:   map[ControlMode]Strategy{None: holdStrategy{}},
		pending:      None,
	}
	for _, s := range strategies {
		m := s.Mode()
		if !m.Requestable() {
			return nil, errors.Errorf("strategy for %v can't be registered", m)
		}
		if _, ok := ms.strategies[m]; ok {
			return nil, errors.Errorf("duplicate strategy for %v", m)
		}
		ms.strategies[m] = s
	}
	if _, ok := ms.strategies[GravityCompensation]; !ok {
		return nil, errors.New("a gravity compensation strategy is required")
	}
	ms.requested.Store(int32(GravityCompensation))
	ms.active.Store(int32(None))
	return ms, nil
}

// Request records the mode to switch to. It never changes the active mode directly.
func (ms *ModeSwitcher) Request(mode ControlMode) error {
	if !mode.Requestable() {
		ms.logger.Warnw("ignoring request for unknown control mode", "mode", mode.String())
		return errors.Wrapf(ErrUnknownMode, "%v", mode)
	}
	if _, ok := ms.strategies[mode]; !ok {
		ms.logger.Warnw("ignoring request for unregistered control mode", "mode", mode.String())
		return errors.Wrapf(ErrUnknownMode, "%v has no strategy", mode)
	}
	if old := ControlMode(ms.requested.Swap(int32(mode))); old != mode {
		ms.logger.Infow("control mode requested", "from", old.String(), "to", mode.String())
	}
	return nil
}

// Requested returns the most recently requested mode.
func (ms *ModeSwitcher) Requested() ControlMode {
	return ControlMode(ms.requested.Load())
}

// ActiveMode returns the mode the current cycle executes.
func (ms *ModeSwitcher) ActiveMode() ControlMode {
	return ControlMode(ms.active.Load())
}

// IsSwitching reports whether the requested mode is not yet active.
func (ms *ModeSwitcher) IsSwitching() bool {
	return ms.Requested() != ms.ActiveMode()
}

// Settle forces GravityCompensation for this cycle and counts it toward the dwell of the
// currently requested mode. A request that changed since the last settle restarts the dwell.
func (ms *ModeSwitcher) Settle() {
	req := ms.Requested()
	if !ms.settling || req != ms.pending {
		ms.logger.Infow("settling in gravity compensation", "from", ms.ActiveMode().String(), "to", req.String())
		ms.settling = true
		ms.pending = req
		ms.dwell = 0
	}
	ms.active.Store(int32(GravityCompensation))
	ms.dwell++
}

// Resolve runs once at the top of every cycle and returns the mode that governs it.
func (ms *ModeSwitcher) Resolve() ControlMode {
	req := ms.Requested()
	if ms.settling && req == ms.pending && ms.dwell >= ms.settleCycles {
		ms.settling = false
		ms.active.Store(int32(req))
		ms.logger.Infow("control mode switched", "mode", req.String(), "settled_cycles", ms.dwell)
		return req
	}
	if ms.settling || ms.IsSwitching() {
		ms.Settle()
		return GravityCompensation
	}
	return ms.ActiveMode()
}

// Strategy returns the strategy registered for mode, falling back to the hold strategy used
// for None.
func (ms *ModeSwitcher) Strategy(mode ControlMode) Strategy {
	if s, ok := ms.strategies[mode]; ok {
		return s
	}
	return ms.strategies[None]
}
