package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/impedance/joint"
)

// DefaultDamping is the damped least squares factor used by JointVelocity.
const DefaultDamping = 1e-3

// ErrSolve is returned when the Jacobian could not be factorized.
var ErrSolve = errors.New("jacobian factorization failed")

// JointVelocity maps an end effector twist (vx, vy, vz, wx, wy, wz) to joint velocities with a
// damped SVD pseudo-inverse of the Jacobian at q.
func (c *Chain) JointVelocity(q joint.Vector, twist []float64) (joint.Vector, error) {
	if len(twist) != 6 {
		return nil, errors.Errorf("twist must have 6 elements, got %d", len(twist))
	}
	if err := joint.Vector(twist).Check(6); err != nil {
		return nil, errors.Wrap(err, "twist")
	}
	jac, err := c.Jacobian(q)
	if err != nil {
		return nil, err
	}

	var svd mat.SVD
	if ok := svd.Factorize(jac, mat.SVDThin); !ok {
		return nil, ErrSolve
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	// qdot = V * diag(s / (s^2 + l^2)) * U^T * twist
	var utx mat.VecDense
	utx.MulVec(u.T(), mat.NewVecDense(6, append([]float64(nil), twist...)))
	for i, s := range sigma {
		utx.SetVec(i, utx.AtVec(i)*s/(s*s+DefaultDamping*DefaultDamping))
	}
	var qdot mat.VecDense
	qdot.MulVec(&v, &utx)

	out := joint.Vector(qdot.RawVector().Data)
	if err := out.Check(c.DOF()); err != nil {
		return nil, errors.Wrap(err, "joint velocity")
	}
	return out, nil
}

// PoseDelta returns the 6 element error that takes `from` to `to`: translation difference
// followed by the axis-angle vector of the relative rotation, both in the base frame.
func PoseDelta(from, to Pose) []float64 {
	ret := make([]float64, 6)
	d := to.Translation.Sub(from.Translation)
	ret[0], ret[1], ret[2] = d[0], d[1], d[2]

	rel := to.Orientation.Mul(from.Orientation.Inverse()).Normalize()
	rot := rotationVector(rel)
	ret[3], ret[4], ret[5] = rot[0], rot[1], rot[2]
	return ret
}

// rotationVector returns angle*axis of a unit quaternion, taking the short way around. Near the
// identity the axis is ill conditioned, so 2*V is used directly.
func rotationVector(quat mgl64.Quat) mgl64.Vec3 {
	if quat.V.Len() < 1e-6 {
		if quat.W < 0 {
			return quat.V.Mul(-2)
		}
		return quat.V.Mul(2)
	}
	axisAngle := QuatToAxisAngle(quat)
	return mgl64.Vec3{axisAngle[1], axisAngle[2], axisAngle[3]}.Mul(axisAngle[0])
}

// QuatToAxisAngle converts a unit quaternion to {angle, x, y, z}, taking the short way around.
func QuatToAxisAngle(quat mgl64.Quat) []float64 {
	denom := quat.V.Len()

	angle := 2 * math.Atan2(denom, math.Abs(quat.W))
	if quat.W < 0 {
		angle *= -1
	}

	axisAngle := []float64{angle}
	if denom == 0 {
		return append(axisAngle, 1, 0, 0)
	}
	x, y, z := quat.V.Mul(1 / denom).Elem()
	return append(axisAngle, x, y, z)
}
