package impedance

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/logging"
)

// GainKind names one of the two gain vectors.
type GainKind int

const (
	// Stiffness is the joint spring constant K.
	Stiffness GainKind = iota
	// Damping is the joint damper constant D.
	Damping
)

func (k GainKind) String() string {
	if k == Damping {
		return "damping"
	}
	return "stiffness"
}

// GainStore holds the target stiffness and damping. Every setter replaces whole vectors under
// the lock so the control cycle never sees a half applied update. Rejected updates are logged,
// leave the stored gains unchanged and return the reason to the caller.
type GainStore struct {
	logger logging.Logger
	n      int

	mu     sync.RWMutex
	target joint.Gains
}

// NewGainStore returns a store for n joints with all gains zero.
func NewGainStore(n int, logger logging.Logger) *GainStore {
	return &GainStore{logger: logger, n: n, target: joint.NewGains(n)}
}

// NumJoints returns the joint count the store validates against.
func (gs *GainStore) NumJoints() int {
	return gs.n
}

// Snapshot returns a copy of the target gains.
func (gs *GainStore) Snapshot() joint.Gains {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.target.Clone()
}

// SnapshotInto copies the target gains into dst without allocating.
func (gs *GainStore) SnapshotInto(dst joint.Gains) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	dst.K.CopyFrom(gs.target.K)
	dst.D.CopyFrom(gs.target.D)
}

func (gs *GainStore) vector(kind GainKind) joint.Vector {
	if kind == Damping {
		return gs.target.D
	}
	return gs.target.K
}

func (gs *GainStore) reject(err error, kind GainKind) error {
	gs.logger.Warnw("rejected gain update", "gain", kind.String(), "error", err)
	return err
}

// Set replaces every joint's gain of the given kind.
func (gs *GainStore) Set(kind GainKind, values []float64) error {
	if err := joint.Vector(values).Check(gs.n); err != nil {
		return gs.reject(errors.Wrapf(err, "set %s", kind), kind)
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.vector(kind).CopyFrom(values)
	return nil
}

// SetUniform sets every joint's gain of the given kind to value.
func (gs *GainStore) SetUniform(kind GainKind, value float64) error {
	if err := joint.CheckFinite(value); err != nil {
		return gs.reject(errors.Wrapf(err, "set all %s", kind), kind)
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.vector(kind).Fill(value)
	return nil
}

// SetJoint sets one joint's gain of the given kind.
func (gs *GainStore) SetJoint(kind GainKind, index int, value float64) error {
	if err := joint.CheckIndex(index, gs.n); err != nil {
		return gs.reject(errors.Wrapf(err, "set %s", kind), kind)
	}
	if err := joint.CheckFinite(value); err != nil {
		return gs.reject(errors.Wrapf(err, "set %s of joint %d", kind, index), kind)
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.vector(kind)[index] = value
	return nil
}

// SetStiffness replaces all joint stiffnesses.
func (gs *GainStore) SetStiffness(values []float64) error {
	return gs.Set(Stiffness, values)
}

// SetDamping replaces all joint dampings.
func (gs *GainStore) SetDamping(values []float64) error {
	return gs.Set(Damping, values)
}

// SetStiffnessUniform sets every joint's stiffness to value.
func (gs *GainStore) SetStiffnessUniform(value float64) error {
	return gs.SetUniform(Stiffness, value)
}

// SetDampingUniform sets every joint's damping to value.
func (gs *GainStore) SetDampingUniform(value float64) error {
	return gs.SetUniform(Damping, value)
}

// SetStiffnessPerJoint sets one joint's stiffness.
func (gs *GainStore) SetStiffnessPerJoint(index int, value float64) error {
	return gs.SetJoint(Stiffness, index, value)
}

// SetDampingPerJoint sets one joint's damping.
func (gs *GainStore) SetDampingPerJoint(index int, value float64) error {
	return gs.SetJoint(Damping, index, value)
}
