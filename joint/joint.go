// Package joint holds the fixed length per-joint buffers shared by the controller, the actuator
// and the kinematics.
package joint

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrLengthMismatch is returned when a vector does not have one entry per joint.
	ErrLengthMismatch = errors.New("joint vector length mismatch")
	// ErrNonFinite is returned when a vector holds NaN or an infinity.
	ErrNonFinite = errors.New("joint vector has a non-finite entry")
	// ErrIndex is returned for a joint index outside [0, n).
	ErrIndex = errors.New("joint index out of range")
)

// Vector is one value per joint: positions, velocities, torques, stiffness or damping.
type Vector []float64

// NewVector returns a zeroed vector of length n.
func NewVector(n int) Vector {
	return make(Vector, n)
}

// Uniform returns a vector of length n with every entry set to v.
func Uniform(n int, v float64) Vector {
	out := NewVector(n)
	out.Fill(v)
	return out
}

// Clone returns a copy that shares no memory with v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// CopyFrom overwrites v in place with src. Both must be the same length.
func (v Vector) CopyFrom(src Vector) {
	copy(v, src)
}

// Fill sets every entry to x.
func (v Vector) Fill(x float64) {
	for i := range v {
		v[i] = x
	}
}

// Zero sets every entry to 0.
func (v Vector) Zero() {
	v.Fill(0)
}

// MaxAbs returns the largest absolute entry, 0 for an empty vector.
func (v Vector) MaxAbs() float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, math.Inf(1))
}

// Equal reports whether both vectors have the same length and entries.
func (v Vector) Equal(other Vector) bool {
	return len(v) == len(other) && floats.Equal(v, other)
}

// Check returns an error if v does not have n finite entries.
func (v Vector) Check(n int) error {
	if len(v) != n {
		return errors.Wrapf(ErrLengthMismatch, "got %d values, expected %d", len(v), n)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Wrapf(ErrNonFinite, "joint %d is %v", i, x)
		}
	}
	return nil
}

// CheckIndex returns an error if i is not a valid joint index for n joints.
func CheckIndex(i, n int) error {
	if i < 0 || i >= n {
		return errors.Wrapf(ErrIndex, "joint %d, have %d joints", i, n)
	}
	return nil
}

// CheckFinite returns an error if x is NaN or infinite.
func CheckFinite(x float64) error {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return errors.Wrapf(ErrNonFinite, "value is %v", x)
	}
	return nil
}

// State is a joint position and velocity snapshot.
type State struct {
	Q    Vector `json:"q"`
	Qdot Vector `json:"qdot"`
}

// NewState returns a zeroed state for n joints.
func NewState(n int) State {
	return State{Q: NewVector(n), Qdot: NewVector(n)}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{Q: s.Q.Clone(), Qdot: s.Qdot.Clone()}
}

// CopyFrom overwrites s in place with src.
func (s State) CopyFrom(src State) {
	s.Q.CopyFrom(src.Q)
	s.Qdot.CopyFrom(src.Qdot)
}

// Track makes s follow measured: same position, zero velocity.
func (s State) Track(measured State) {
	s.Q.CopyFrom(measured.Q)
	s.Qdot.Zero()
}

// Check validates both vectors against n joints.
func (s State) Check(n int) error {
	if err := s.Q.Check(n); err != nil {
		return errors.Wrap(err, "position")
	}
	if err := s.Qdot.Check(n); err != nil {
		return errors.Wrap(err, "velocity")
	}
	return nil
}

// Gains is a per-joint stiffness and damping pair.
type Gains struct {
	K Vector `json:"stiffness"`
	D Vector `json:"damping"`
}

// NewGains returns zero gains for n joints.
func NewGains(n int) Gains {
	return Gains{K: NewVector(n), D: NewVector(n)}
}

// Clone returns a deep copy.
func (g Gains) Clone() Gains {
	return Gains{K: g.K.Clone(), D: g.D.Clone()}
}
