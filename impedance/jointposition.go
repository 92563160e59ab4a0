package impedance

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/impedance/control"
	"go.viam.com/impedance/joint"
)

// DefaultJointProfile bounds the joint position trajectory.
var DefaultJointProfile = control.TrapezoidConfig{MaxAcc: 1.0, MaxVel: 0.5, PosWindow: 1e-4}

// JointPositionStrategy moves the desired joint positions toward a target along per-joint trapezoidal
// velocity profiles. It commands position, never torque.
type JointPositionStrategy struct {
	mu       sync.Mutex
	target   joint.Vector
	armed    bool
	profiles []*control.TrapezoidProfile

	// cycle owned copy of target
	goal joint.Vector
}

// NewJointPositionStrategy returns the strategy for n joints.
func NewJointPositionStrategy(n int, cfg control.TrapezoidConfig) (*JointPositionStrategy, error) {
	profiles := make([]*control.TrapezoidProfile, n)
	for i := range profiles {
		p, err := control.NewTrapezoidProfile(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "joint position profile")
		}
		profiles[i] = p
	}
	return &JointPositionStrategy{
		target:   joint.NewVector(n),
		goal:     joint.NewVector(n),
		profiles: profiles,
	}, nil
}

// Mode implements Strategy.
func (j *JointPositionStrategy) Mode() ControlMode {
	return JointPosition
}

// SetTarget sets the joint positions to move to.
func (j *JointPositionStrategy) SetTarget(q joint.Vector) error {
	if err := q.Check(len(j.profiles)); err != nil {
		return errors.Wrap(err, "joint target")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.target.CopyFrom(q)
	j.armed = true
	return nil
}

// Target returns the joint positions being moved to.
func (j *JointPositionStrategy) Target() joint.Vector {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.target.Clone()
}

// Moving reports whether any joint profile is still active.
func (j *JointPositionStrategy) Moving() bool {
	for _, p := range j.profiles {
		if p.Active() {
			return true
		}
	}
	return false
}

// Enter implements Strategy. Without a target set since the last entry the arm holds where it is.
func (j *JointPositionStrategy) Enter(in *CycleInput, desired joint.State) {
	desired.Track(in.Measured)
	for _, p := range j.profiles {
		p.Reset()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.armed {
		j.target.CopyFrom(in.Measured.Q)
	}
	j.armed = false
}

// Compute implements Strategy.
func (j *JointPositionStrategy) Compute(in *CycleInput, desired joint.State, out *Output) error {
	j.mu.Lock()
	j.goal.CopyFrom(j.target)
	j.armed = false
	j.mu.Unlock()

	dt := in.DT.Seconds()
	for i, p := range j.profiles {
		v := p.Next(j.goal[i], desired.Q[i], in.DT)
		desired.Qdot[i] = v
		desired.Q[i] += v * dt
	}
	out.Tau.Zero()
	out.Pos.CopyFrom(desired.Q)
	return nil
}
