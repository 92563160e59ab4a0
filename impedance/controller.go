// Package impedance is a joint impedance controller for a torque controlled arm. Every cycle it
// reads the measured joint state, lets the ModeSwitcher pick the governing control law, computes
// torque or position setpoints, neutralizes the channels that law does not own, applies the
// joint velocity interlock and writes all four channels to the actuator.
package impedance

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/impedance/actuator"
	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/kinematics"
	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/telemetry"
)

// Controller runs the impedance control cycle. Cycle must only be called from one goroutine;
// every other method is safe to call concurrently with it.
type Controller struct {
	logger   logging.Logger
	throttle *logging.Throttle
	cfg      Config
	n        int
	kin      Kinematics
	act      actuator.Interface
	pub      telemetry.Publisher
	clk      clock.Clock

	gains    *GainStore
	switcher *ModeSwitcher
	safety   SafetyMonitor

	cartVel  *CartesianVelocityStrategy
	fffb     *FeedforwardFeedbackCartesianStrategy
	jointPos *JointPositionStrategy
	gravComp *GravityCompensationStrategy

	// cycle owned, allocated once
	measured joint.State
	desired  joint.State
	in       CycleInput
	out      Output
	cmd      actuator.Command
	prev     actuator.Command
	lastMode ControlMode
	started  bool
	cycles   uint64

	statusMu sync.Mutex
	status   Status
}

// NewController builds a controller for the joints of kin driving act. Samples go to pub, which
// may be nil. A nil clock uses the wall clock.
func NewController(
	logger logging.Logger,
	cfg Config,
	kin Kinematics,
	act actuator.Interface,
	pub telemetry.Publisher,
	clk clock.Clock,
) (*Controller, error) {
	n := kin.DOF()
	if act.NumJoints() != n {
		return nil, errors.Errorf("actuator has %d joints but the kinematic chain has %d", act.NumJoints(), n)
	}
	cfg = cfg.WithDefaults(n, logger)
	if pub == nil {
		pub = telemetry.Nop
	}
	if clk == nil {
		clk = clock.New()
	}

	c := &Controller{
		logger:   logger,
		throttle: logging.NewThrottle(logger, time.Duration(cfg.ThrottleSeconds*float64(time.Second))),
		cfg:      cfg,
		n:        n,
		kin:      kin,
		act:      act,
		pub:      pub,
		clk:      clk,
		gains:    NewGainStore(n, logger.Sublogger("gains")),
		safety:   SafetyMonitor{Threshold: cfg.MaxJointVelocity, Damping: cfg.SafetyDamping},
		cartVel:  NewCartesianVelocityStrategy(cfg.PassiveDSDamping),
		gravComp: NewGravityCompensationStrategy(),
		measured: joint.NewState(n),
		desired:  joint.NewState(n),
		out: Output{
			Tau:    joint.NewVector(n),
			Pos:    joint.NewVector(n),
			Wrench: make([]float64, telemetry.WrenchSize),
		},
		cmd:      actuator.NewCommand(n),
		prev:     actuator.NewCommand(n),
		lastMode: None,
		status:   newStatus(n),
	}
	c.in = CycleInput{Measured: c.measured, Gains: joint.NewGains(n), Gravity: joint.NewVector(n), Kin: kin}

	var err error
	if c.fffb, err = NewFeedforwardFeedbackCartesianStrategy(cfg.CartesianStiffness); err != nil {
		return nil, err
	}
	if c.jointPos, err = NewJointPositionStrategy(n, cfg.JointProfile); err != nil {
		return nil, err
	}
	if cfg.CartesianSubMode == commandVelocityPS {
		c.cartVel.SetSubMode(PassiveDS)
	}
	if c.switcher, err = NewModeSwitcher(logger.Sublogger("switcher"), cfg.SettleCycles,
		c.cartVel, c.fffb, c.jointPos, c.gravComp); err != nil {
		return nil, err
	}

	// invalid initial gains were already logged by the store and stay zero
	if cfg.Stiffness != nil {
		//nolint:errcheck
		c.gains.SetStiffness(cfg.Stiffness)
	}
	if cfg.Damping != nil {
		//nolint:errcheck
		c.gains.SetDamping(cfg.Damping)
	}
	return c, nil
}

// NumJoints returns the number of controlled joints.
func (c *Controller) NumJoints() int {
	return c.n
}

// Config returns the effective configuration, defaults applied.
func (c *Controller) Config() Config {
	return c.cfg
}

// Gains returns the target gain store.
func (c *Controller) Gains() *GainStore {
	return c.gains
}

// Switcher returns the mode switcher.
func (c *Controller) Switcher() *ModeSwitcher {
	return c.switcher
}

// RequestMode asks for a mode switch. It takes effect through the gravity compensation settle.
func (c *Controller) RequestMode(mode ControlMode) error {
	return c.switcher.Request(mode)
}

// SetTwist sets the commanded twist of the cartesian velocity mode.
func (c *Controller) SetTwist(twist []float64) error {
	return c.cartVel.SetTwist(twist)
}

// SetWrench sets the feedforward wrench of the feedforward/feedback cartesian mode.
func (c *Controller) SetWrench(wrench []float64) error {
	return c.fffb.SetWrench(wrench)
}

// SetCartesianTarget sets the target pose of the feedforward/feedback cartesian mode.
func (c *Controller) SetCartesianTarget(pose kinematics.Pose) error {
	return c.fffb.SetTarget(pose)
}

// SetJointTarget sets the target positions of the joint position mode.
func (c *Controller) SetJointTarget(q joint.Vector) error {
	return c.jointPos.SetTarget(q)
}

// Start reads the arm once and writes a passive starting command: position at measured, no
// torque, no stiffness, StartDamping damping. Cycle calls it if it has not run.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.act.Read(ctx, c.measured); err != nil {
		return errors.Wrap(err, "reading initial joint state")
	}
	if err := c.measured.Check(c.n); err != nil {
		return errors.Wrap(err, "initial joint state")
	}
	c.desired.Track(c.measured)
	c.cmd.Pos.CopyFrom(c.measured.Q)
	c.cmd.Tau.Zero()
	c.cmd.K.Zero()
	c.cmd.D.Fill(c.cfg.StartDamping)
	if err := c.act.Write(ctx, c.cmd); err != nil {
		return errors.Wrap(err, "writing starting command")
	}
	c.prev.CopyFrom(c.cmd)
	c.started = true
	c.logger.Infow("controller starting", "joints", c.n, "max_qdot", c.cfg.MaxJointVelocity)
	return nil
}

// Cycle runs one control period. It never returns an error and never panics on bad input:
// failures hold the previous command and are logged.
func (c *Controller) Cycle(ctx context.Context, dt time.Duration) {
	if !c.started {
		if err := c.Start(ctx); err != nil {
			c.throttle.Errorw("controller failed to start", "error", err)
		}
		return
	}
	c.cycles++

	if err := c.act.Read(ctx, c.measured); err != nil {
		c.hold(ctx, "reading joint state failed, holding previous command", err, false)
		return
	}
	if err := c.measured.Check(c.n); err != nil {
		c.hold(ctx, "invalid joint state, holding previous command", err, false)
		return
	}
	if err := c.refreshKinematics(); err != nil {
		c.hold(ctx, "kinematics failed, holding previous command", err, true)
		return
	}

	mode := c.switcher.Resolve()
	strategy := c.switcher.Strategy(mode)
	c.gains.SnapshotInto(c.in.Gains)
	c.in.DT = dt
	if mode != c.lastMode {
		strategy.Enter(&c.in, c.desired)
		c.lastMode = mode
	}
	for i := range c.out.Wrench {
		c.out.Wrench[i] = 0
	}
	if err := strategy.Compute(&c.in, c.desired, &c.out); err != nil {
		c.hold(ctx, "control law failed, holding previous command", err, true)
		return
	}

	family := mode.Family()
	c.throttle.Infow("control mode active", "mode", mode.String(), "family", family.String())
	switch family {
	case TorqueImpedance:
		c.cmd.K.Zero()
		c.cmd.D.Zero()
		c.cmd.Pos.CopyFrom(c.measured.Q)
		c.cmd.Tau.CopyFrom(c.out.Tau)
	case PositionImpedance:
		c.cmd.K.CopyFrom(c.in.Gains.K)
		c.cmd.D.CopyFrom(c.in.Gains.D)
		c.cmd.Pos.CopyFrom(c.out.Pos)
		c.cmd.Tau.Zero()
	}

	tripped := c.safety.Apply(c.measured, c.desired, c.cmd)
	if tripped {
		for i := range c.out.Wrench {
			c.out.Wrench[i] = 0
		}
		c.throttle.Warnw("joint velocity above limit, braking",
			"max_qdot", c.safety.Threshold, "fastest", c.measured.Qdot.MaxAbs())
	}

	if err := c.act.Write(ctx, c.cmd); err != nil {
		c.throttle.Errorw("writing command failed", "error", err)
	}
	c.prev.CopyFrom(c.cmd)
	c.report(mode, family, tripped, false)
}

func (c *Controller) refreshKinematics() error {
	pose, err := c.kin.ForwardPosition(c.measured.Q)
	if err != nil {
		return err
	}
	jac, err := c.kin.Jacobian(c.measured.Q)
	if err != nil {
		return err
	}
	gravity, err := c.kin.GravityTorque(c.measured.Q)
	if err != nil {
		return err
	}
	if err := gravity.Check(c.n); err != nil {
		return errors.Wrap(err, "gravity torque")
	}
	c.in.Pose = pose
	c.in.Jacobian = jac
	c.in.Gravity.CopyFrom(gravity)
	return nil
}

// hold rewrites the previous command. When measuredValid is set the velocity interlock still
// applies to it; prev keeps the last command computed by a control law.
func (c *Controller) hold(ctx context.Context, msg string, err error, measuredValid bool) {
	c.throttle.Errorw(msg, "error", err)
	c.cmd.CopyFrom(c.prev)
	tripped := measuredValid && c.safety.Apply(c.measured, c.desired, c.cmd)
	if tripped {
		for i := range c.out.Wrench {
			c.out.Wrench[i] = 0
		}
		c.throttle.Warnw("joint velocity above limit, braking",
			"max_qdot", c.safety.Threshold, "fastest", c.measured.Qdot.MaxAbs())
	}
	if werr := c.act.Write(ctx, c.cmd); werr != nil {
		c.throttle.Errorw("writing command failed", "error", werr)
	}
	mode := c.switcher.ActiveMode()
	c.report(mode, mode.Family(), tripped, true)
}

func (c *Controller) report(mode ControlMode, family RobotCommandFamily, tripped, held bool) {
	c.pub.Publish(telemetry.Sample{
		Time:          c.clk.Now(),
		Cycle:         c.cycles,
		Mode:          mode.String(),
		Family:        family.String(),
		SafetyTripped: tripped,
		Held:          held,
		Qdot:          c.measured.Qdot,
		Wrench:        c.out.Wrench,
		Tau:           c.cmd.Tau,
	})

	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.status.Cycle = c.cycles
	c.status.ActiveMode = mode.String()
	c.status.Family = family.String()
	c.status.SafetyTripped = tripped
	c.status.Held = held
	c.status.Measured.CopyFrom(c.measured)
	c.status.DesiredQ.CopyFrom(c.desired.Q)
	c.status.Command.CopyFrom(c.cmd)
	copy(c.status.Wrench, c.out.Wrench)
	c.status.Pose = c.in.Pose
}

// Status is a snapshot of the controller for observers.
type Status struct {
	Cycle            uint64           `json:"cycle"`
	ActiveMode       string           `json:"active_mode"`
	RequestedMode    string           `json:"requested_mode"`
	Switching        bool             `json:"switching"`
	Family           string           `json:"family"`
	SafetyTripped    bool             `json:"safety_tripped"`
	Held             bool             `json:"held"`
	CartesianSubMode string           `json:"cartesian_sub_mode"`
	Measured         joint.State      `json:"measured"`
	DesiredQ         joint.Vector     `json:"desired_q"`
	Command          actuator.Command `json:"command"`
	Gains            joint.Gains      `json:"gains"`
	Wrench           []float64        `json:"wrench"`
	Pose             kinematics.Pose  `json:"pose"`
}

func newStatus(n int) Status {
	return Status{
		ActiveMode: None.String(),
		Family:     TorqueImpedance.String(),
		Measured:   joint.NewState(n),
		DesiredQ:   joint.NewVector(n),
		Command:    actuator.NewCommand(n),
		Wrench:     make([]float64, telemetry.WrenchSize),
	}
}

// Status returns a copy of the state after the most recent cycle.
func (c *Controller) Status() Status {
	c.statusMu.Lock()
	out := c.status
	out.Measured = c.status.Measured.Clone()
	out.DesiredQ = c.status.DesiredQ.Clone()
	out.Command = c.status.Command.Clone()
	out.Wrench = append([]float64(nil), c.status.Wrench...)
	c.statusMu.Unlock()

	out.RequestedMode = c.switcher.Requested().String()
	out.Switching = c.switcher.IsSwitching()
	out.CartesianSubMode = c.cartVel.SubMode().String()
	out.Gains = c.gains.Snapshot()
	return out
}
