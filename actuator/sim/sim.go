// Package sim implements a simulated joint impedance actuator. Each joint is a rigid inertia with
// viscous friction, loaded by the chain's gravity and driven by the commanded torque plus the
// actuator's own joint spring and damper. It offers an API to advance time in a completely
// deterministic manner for testing.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"go.viam.com/impedance/actuator"
	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/kinematics"
	"go.viam.com/impedance/logging"
)

const (
	// DefaultInertia is the rotor plus link inertia seen by each joint, in kg*m^2.
	DefaultInertia = 0.5
	// DefaultFriction is the viscous friction of each joint, in N*m*s/rad.
	DefaultFriction = 1.0
	// DefaultStep is the integration step and the time simulation tick.
	DefaultStep = time.Millisecond
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("simulated arm is closed")

// Config describes the simulated arm.
type Config struct {
	Inertia  []float64 `json:"inertia,omitempty"`
	Friction []float64 `json:"friction,omitempty"`
	InitialQ []float64 `json:"initial_q,omitempty"`

	// StepSeconds is the integration step, 0 means DefaultStep.
	StepSeconds float64 `json:"step_seconds,omitempty"`

	// SimulateTime controls whether the arm spins up a background goroutine that keeps it moving
	// with the clock. When off, the owner calls Advance.
	SimulateTime bool `json:"simulate_time,omitempty"`
}

func perJoint(name string, values []float64, n int, def float64) (joint.Vector, error) {
	if values == nil {
		return joint.Uniform(n, def), nil
	}
	v := joint.Vector(values)
	if err := v.Check(n); err != nil {
		return nil, errors.Wrap(err, name)
	}
	for i, x := range v {
		if x < 0 || (name == "inertia" && x == 0) {
			return nil, errors.Errorf("%s of joint %d must be positive, got %v", name, i, x)
		}
	}
	return v.Clone(), nil
}

// Arm is a simulated actuator. It implements actuator.Interface.
type Arm struct {
	chain    *kinematics.Chain
	inertia  joint.Vector
	friction joint.Vector
	step     time.Duration
	clk      clock.Clock
	logger   logging.Logger

	closed atomic.Bool
	writes atomic.Uint64

	mu          sync.Mutex
	state       joint.State
	cmd         actuator.Command
	lastUpdated time.Time
	readFaults  int
	readErr     error

	// timeSimulation advances the arm with the clock every step. It is nil unless
	// Config.SimulateTime is set.
	timeSimulation *utils.StoppableWorkers
}

// NewArm returns a simulated arm for chain, at rest at InitialQ (or all zeros). The first command
// is passive: no torque, no stiffness, no damping, position at the initial state. A nil clock
// uses the wall clock.
func NewArm(logger logging.Logger, chain *kinematics.Chain, cfg Config, clk clock.Clock) (*Arm, error) {
	n := chain.DOF()
	inertia, err := perJoint("inertia", cfg.Inertia, n, DefaultInertia)
	if err != nil {
		return nil, err
	}
	friction, err := perJoint("friction", cfg.Friction, n, DefaultFriction)
	if err != nil {
		return nil, err
	}
	step := DefaultStep
	if cfg.StepSeconds < 0 {
		return nil, errors.Errorf("step_seconds can't be negative, got %v", cfg.StepSeconds)
	} else if cfg.StepSeconds > 0 {
		step = time.Duration(cfg.StepSeconds * float64(time.Second))
	}
	if clk == nil {
		clk = clock.New()
	}

	a := &Arm{
		chain:    chain,
		inertia:  inertia,
		friction: friction,
		step:     step,
		clk:      clk,
		logger:   logger,
		state:    joint.NewState(n),
		cmd:      actuator.NewCommand(n),
	}
	if cfg.InitialQ != nil {
		if err := joint.Vector(cfg.InitialQ).Check(n); err != nil {
			return nil, errors.Wrap(err, "initial_q")
		}
		a.state.Q.CopyFrom(cfg.InitialQ)
	}
	a.cmd.Pos.CopyFrom(a.state.Q)

	if cfg.SimulateTime {
		// never let the zero time be visible, lest the first update jump
		a.lastUpdated = clk.Now()
		ticker := clk.Ticker(step)
		a.timeSimulation = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					a.updateForTime(now)
				}
			}
		})
	}
	return a, nil
}

// NumJoints implements actuator.Interface.
func (a *Arm) NumJoints() int {
	return a.chain.DOF()
}

// Read implements actuator.Interface.
func (a *Arm) Read(ctx context.Context, dst joint.State) error {
	if a.closed.Load() {
		return ErrClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.readFaults > 0 {
		a.readFaults--
		return a.readErr
	}
	if n := len(a.state.Q); len(dst.Q) != n || len(dst.Qdot) != n {
		return errors.Wrapf(joint.ErrLengthMismatch, "read buffer for %d joints", n)
	}
	dst.CopyFrom(a.state)
	return nil
}

// Write implements actuator.Interface.
func (a *Arm) Write(ctx context.Context, cmd actuator.Command) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if err := cmd.Check(a.NumJoints()); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cmd.CopyFrom(cmd)
	a.writes.Inc()
	return nil
}

// Close stops time simulation. Further calls fail with ErrClosed.
func (a *Arm) Close(ctx context.Context) error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.timeSimulation != nil {
		a.timeSimulation.Stop()
	}
	return nil
}

// Writes returns how many commands were accepted.
func (a *Arm) Writes() uint64 {
	return a.writes.Load()
}

// Command returns a copy of the command being applied.
func (a *Arm) Command() actuator.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cmd.Clone()
}

// State returns a copy of the true joint state.
func (a *Arm) State() joint.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// SetState teleports the arm, e.g. to model someone pushing it.
func (a *Arm) SetState(s joint.State) error {
	if err := s.Check(a.NumJoints()); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.CopyFrom(s)
	return nil
}

// InjectReadFaults makes the next count reads fail with err.
func (a *Arm) InjectReadFaults(count int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readFaults = count
	a.readErr = err
}

// Advance integrates the arm forward by dt in fixed steps. Any remainder shorter than a step is
// integrated as one short step.
func (a *Arm) Advance(dt time.Duration) error {
	if a.closed.Load() {
		return ErrClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.advance(dt)
}

// updateForTime is how the time simulation moves the arm. Tests call Advance instead.
func (a *Arm) updateForTime(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	elapsed := now.Sub(a.lastUpdated)
	a.lastUpdated = now
	if elapsed <= 0 {
		return
	}
	if err := a.advance(elapsed); err != nil {
		a.logger.Errorw("simulated arm failed to advance", "error", err)
	}
}

func (a *Arm) advance(dt time.Duration) error {
	for dt > 0 {
		h := a.step
		if dt < h {
			h = dt
		}
		if err := a.integrate(h.Seconds()); err != nil {
			return err
		}
		dt -= h
	}
	return nil
}

// integrate takes one semi-implicit Euler step of length h seconds.
func (a *Arm) integrate(h float64) error {
	gravity, err := a.chain.GravityTorque(a.state.Q)
	if err != nil {
		return err
	}
	for i := range a.state.Q {
		torque := a.cmd.Tau[i] +
			a.cmd.K[i]*(a.cmd.Pos[i]-a.state.Q[i]) -
			a.cmd.D[i]*a.state.Qdot[i] -
			a.friction[i]*a.state.Qdot[i] -
			gravity[i]
		a.state.Qdot[i] += torque / a.inertia[i] * h
		a.state.Q[i] += a.state.Qdot[i] * h

		link := a.chain.Links[i]
		if link.Min < link.Max {
			if q := math.Max(link.Min, math.Min(link.Max, a.state.Q[i])); q != a.state.Q[i] {
				a.state.Q[i] = q
				a.state.Qdot[i] = 0
			}
		}
	}
	return nil
}
