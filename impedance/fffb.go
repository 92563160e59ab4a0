package impedance

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/kinematics"
	"go.viam.com/impedance/telemetry"
)

// DefaultCartesianStiffness is the feedback stiffness for translation (N/m) then rotation (N*m/rad).
var DefaultCartesianStiffness = []float64{300, 300, 300, 30, 30, 30}

// FeedforwardFeedbackCartesianStrategy holds a target pose with a cartesian spring and adds a
// feedforward wrench: F = F_ff + Kx*(target - pose), tau = J^T*F + D*qdot + gravity(q).
type FeedforwardFeedbackCartesianStrategy struct {
	mu          sync.Mutex
	stiffness   [telemetry.WrenchSize]float64
	feedforward [telemetry.WrenchSize]float64
	target      kinematics.Pose
	targetArmed bool
	ffArmed     bool
}

// NewFeedforwardFeedbackCartesianStrategy returns the strategy. A nil stiffness uses
// DefaultCartesianStiffness.
func NewFeedforwardFeedbackCartesianStrategy(stiffness []float64) (*FeedforwardFeedbackCartesianStrategy, error) {
	if stiffness == nil {
		stiffness = DefaultCartesianStiffness
	}
	if err := joint.Vector(stiffness).Check(telemetry.WrenchSize); err != nil {
		return nil, errors.Wrap(err, "cartesian stiffness")
	}
	f := &FeedforwardFeedbackCartesianStrategy{}
	copy(f.stiffness[:], stiffness)
	return f, nil
}

// Mode implements Strategy.
func (f *FeedforwardFeedbackCartesianStrategy) Mode() ControlMode {
	return FeedforwardFeedbackCartesian
}

// SetTarget sets the pose the feedback spring pulls toward.
func (f *FeedforwardFeedbackCartesianStrategy) SetTarget(pose kinematics.Pose) error {
	if err := joint.Vector(pose.Translation[:]).Check(3); err != nil {
		return errors.Wrap(err, "target translation")
	}
	if l := pose.Orientation.Len(); l < 1e-9 || math.IsNaN(l) {
		return errors.New("target orientation must be a non-zero quaternion")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = kinematics.Pose{Translation: pose.Translation, Orientation: pose.Orientation.Normalize()}
	f.targetArmed = true
	return nil
}

// Target returns the current target pose.
func (f *FeedforwardFeedbackCartesianStrategy) Target() kinematics.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target
}

// SetWrench sets the feedforward wrench (fx, fy, fz, tx, ty, tz).
func (f *FeedforwardFeedbackCartesianStrategy) SetWrench(wrench []float64) error {
	if err := joint.Vector(wrench).Check(telemetry.WrenchSize); err != nil {
		return errors.Wrap(err, "wrench")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.feedforward[:], wrench)
	f.ffArmed = true
	return nil
}

// Enter implements Strategy. Without a target set since the last entry the current pose is held,
// and without a new feedforward wrench none is applied.
func (f *FeedforwardFeedbackCartesianStrategy) Enter(in *CycleInput, desired joint.State) {
	desired.Track(in.Measured)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.targetArmed {
		f.target = in.Pose
	}
	if !f.ffArmed {
		f.feedforward = [telemetry.WrenchSize]float64{}
	}
	f.targetArmed, f.ffArmed = false, false
}

// Compute implements Strategy.
func (f *FeedforwardFeedbackCartesianStrategy) Compute(in *CycleInput, desired joint.State, out *Output) error {
	f.mu.Lock()
	target, ff, k := f.target, f.feedforward, f.stiffness
	f.targetArmed, f.ffArmed = false, false
	f.mu.Unlock()

	delta := kinematics.PoseDelta(in.Pose, target)
	for i := range out.Wrench {
		out.Wrench[i] = ff[i] + k[i]*delta[i]
	}
	for i := range out.Tau {
		out.Tau[i] = in.Gains.D[i]*in.Measured.Qdot[i] + in.Gravity[i]
	}
	addJacobianTranspose(out.Tau, in.Jacobian, out.Wrench)
	desired.Track(in.Measured)
	out.Pos.CopyFrom(in.Measured.Q)
	return nil
}
