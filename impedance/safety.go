package impedance

import (
	"math"

	"go.viam.com/impedance/actuator"
	"go.viam.com/impedance/joint"
)

const (
	// DefaultMaxJointVelocity is the interlock threshold in rad/s when none is configured.
	DefaultMaxJointVelocity = 1.0
	// DefaultSafetyDamping is the braking damping applied while the interlock is tripped.
	DefaultSafetyDamping = 0.01
)

// TooFast reports whether any joint moves faster than threshold.
func TooFast(qdot joint.Vector, threshold float64) bool {
	for _, v := range qdot {
		if math.Abs(v) > threshold {
			return true
		}
	}
	return false
}

// SafetyMonitor is the joint velocity interlock. While tripped it replaces the command with a
// passive brake: no stiffness, a little damping, no torque, position pinned to measured.
type SafetyMonitor struct {
	Threshold float64
	Damping   float64
}

// Apply overrides cmd and resets desired when measured is too fast. It reports whether it tripped.
func (s SafetyMonitor) Apply(measured, desired joint.State, cmd actuator.Command) bool {
	if !TooFast(measured.Qdot, s.Threshold) {
		return false
	}
	cmd.K.Zero()
	cmd.D.Fill(s.Damping)
	cmd.Tau.Zero()
	cmd.Pos.CopyFrom(measured.Q)
	desired.Track(measured)
	return true
}
