package impedance

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/telemetry"
)

// DefaultPassiveDSDamping is the cartesian damping of the passive velocity field, in N*s/m.
const DefaultPassiveDSDamping = 20.0

// CartesianVelocityStrategy follows a commanded end effector twist. In OpenLoop the twist is turned into
// joint velocities by the inverse velocity solver and integrated into the desired joint state,
// which the joint impedance law then tracks. In PassiveDS the twist is a velocity field rendered
// as the wrench D_ds*(twist - J*qdot).
type CartesianVelocityStrategy struct {
	mu        sync.Mutex
	twist     [telemetry.WrenchSize]float64
	armed     bool
	sub       CartesianSubMode
	dsDamping float64

	// cycle buffers
	xdot   [telemetry.WrenchSize]float64
	spring joint.Vector
	wrench wrenchSolver
}

// NewCartesianVelocityStrategy returns a strategy at rest in OpenLoop.
func NewCartesianVelocityStrategy(dsDamping float64) *CartesianVelocityStrategy {
	if dsDamping <= 0 {
		dsDamping = DefaultPassiveDSDamping
	}
	return &CartesianVelocityStrategy{dsDamping: dsDamping}
}

// Mode implements Strategy.
func (c *CartesianVelocityStrategy) Mode() ControlMode {
	return CartesianVelocity
}

// SetTwist sets the commanded twist (vx, vy, vz, wx, wy, wz). A twist set while another mode is
// active is kept for the next entry; one set while this mode runs is used until it leaves.
func (c *CartesianVelocityStrategy) SetTwist(twist []float64) error {
	if err := joint.Vector(twist).Check(telemetry.WrenchSize); err != nil {
		return errors.Wrap(err, "twist")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.twist[:], twist)
	c.armed = true
	return nil
}

// Twist returns the commanded twist.
func (c *CartesianVelocityStrategy) Twist() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.twist[:]...)
}

// SetSubMode selects the law.
func (c *CartesianVelocityStrategy) SetSubMode(sub CartesianSubMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sub = sub
}

// SubMode returns the selected law.
func (c *CartesianVelocityStrategy) SubMode() CartesianSubMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// Enter implements Strategy. Without a twist set since the last entry the arm is held still.
func (c *CartesianVelocityStrategy) Enter(in *CycleInput, desired joint.State) {
	desired.Track(in.Measured)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		c.twist = [telemetry.WrenchSize]float64{}
	}
	c.armed = false
}

// Compute implements Strategy.
func (c *CartesianVelocityStrategy) Compute(in *CycleInput, desired joint.State, out *Output) error {
	c.mu.Lock()
	twist, sub := c.twist, c.sub
	c.armed = false
	c.mu.Unlock()

	if sub == PassiveDS {
		endEffectorVelocity(c.xdot[:], in.Jacobian, in.Measured.Qdot)
		for i := range out.Wrench {
			out.Wrench[i] = c.dsDamping * (twist[i] - c.xdot[i])
		}
		for i := range out.Tau {
			out.Tau[i] = in.Gains.D[i]*in.Measured.Qdot[i] + in.Gravity[i]
		}
		addJacobianTranspose(out.Tau, in.Jacobian, out.Wrench)
		desired.Track(in.Measured)
		out.Pos.CopyFrom(in.Measured.Q)
		return nil
	}

	qdot, err := in.Kin.JointVelocity(in.Measured.Q, twist[:])
	if err != nil {
		return errors.Wrap(err, "cartesian velocity")
	}
	dt := in.DT.Seconds()
	for i := range desired.Q {
		desired.Qdot[i] = qdot[i]
		desired.Q[i] += qdot[i] * dt
	}
	impedanceTorque(out.Tau, in, desired)

	if len(c.spring) != len(out.Tau) {
		c.spring = joint.NewVector(len(out.Tau))
	}
	for i := range c.spring {
		c.spring[i] = in.Gains.K[i] * (desired.Q[i] - in.Measured.Q[i])
	}
	c.wrench.solve(out.Wrench, in.Jacobian, c.spring)
	out.Pos.CopyFrom(desired.Q)
	return nil
}
