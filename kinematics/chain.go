// Package kinematics computes forward position, the geometric Jacobian, gravity torques and
// inverse velocity solutions for a serial chain described by Denavit-Hartenberg parameters.
package kinematics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/impedance/joint"
)

// StandardGravity is the magnitude of gravitational acceleration in m/s^2.
const StandardGravity = 9.81

// Link is one revolute joint and the rigid body it moves, using standard DH parameters.
type Link struct {
	A      float64 `json:"a"`
	Alpha  float64 `json:"alpha"`
	D      float64 `json:"d"`
	Offset float64 `json:"offset"`

	Min float64 `json:"min"`
	Max float64 `json:"max"`

	Mass float64 `json:"mass"`
	// CenterOfMass is expressed in the link frame, after this joint's DH transform.
	CenterOfMass mgl64.Vec3 `json:"com"`
}

func (l Link) transform(q float64) mgl64.Mat4 {
	return mgl64.HomogRotate3DZ(q + l.Offset).
		Mul4(mgl64.Translate3D(l.A, 0, l.D)).
		Mul4(mgl64.HomogRotate3DX(l.Alpha))
}

// Chain is a serial manipulator rooted at Base.
type Chain struct {
	Name    string
	Base    mgl64.Mat4
	Links   []Link
	Gravity mgl64.Vec3
}

// NewChain returns a chain with an identity base and gravity along -Z.
func NewChain(name string, links ...Link) *Chain {
	return &Chain{
		Name:    name,
		Base:    mgl64.Ident4(),
		Links:   links,
		Gravity: mgl64.Vec3{0, 0, -StandardGravity},
	}
}

// DOF returns the number of joints.
func (c *Chain) DOF() int {
	return len(c.Links)
}

func (c *Chain) check(q joint.Vector) error {
	return errors.Wrap(q.Check(c.DOF()), "joint positions")
}

// frames returns the base frame followed by one frame per link.
func (c *Chain) frames(q joint.Vector) []mgl64.Mat4 {
	out := make([]mgl64.Mat4, 0, len(c.Links)+1)
	cur := c.Base
	out = append(out, cur)
	for i, l := range c.Links {
		cur = cur.Mul4(l.transform(q[i]))
		out = append(out, cur)
	}
	return out
}

// Pose is a position in meters and an orientation.
type Pose struct {
	Translation mgl64.Vec3 `json:"translation"`
	Orientation mgl64.Quat `json:"orientation"`
}

// ForwardPosition returns the end effector pose for joint positions q.
func (c *Chain) ForwardPosition(q joint.Vector) (Pose, error) {
	if err := c.check(q); err != nil {
		return Pose{}, err
	}
	ee := c.frames(q)[len(c.Links)]
	return Pose{
		Translation: ee.Col(3).Vec3(),
		Orientation: mgl64.Mat4ToQuat(ee).Normalize(),
	}, nil
}

// pointJacobian fills a 6xN geometric Jacobian for a point rigidly attached to link `upto`
// (1-based, frames index). Columns past `upto` stay zero.
func pointJacobian(frames []mgl64.Mat4, point mgl64.Vec3, upto int) *mat.Dense {
	n := len(frames) - 1
	jac := mat.NewDense(6, n, nil)
	for i := 0; i < upto; i++ {
		z := frames[i].Col(2).Vec3()
		p := frames[i].Col(3).Vec3()
		lin := z.Cross(point.Sub(p))
		for r := 0; r < 3; r++ {
			jac.Set(r, i, lin[r])
			jac.Set(r+3, i, z[r])
		}
	}
	return jac
}

// Jacobian returns the 6xN geometric Jacobian of the end effector: rows are linear then angular
// velocity in the base frame.
func (c *Chain) Jacobian(q joint.Vector) (*mat.Dense, error) {
	if err := c.check(q); err != nil {
		return nil, err
	}
	frames := c.frames(q)
	return pointJacobian(frames, frames[len(c.Links)].Col(3).Vec3(), len(c.Links)), nil
}

func (c *Chain) centersOfMass(frames []mgl64.Mat4) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(c.Links))
	for i, l := range c.Links {
		out[i] = frames[i+1].Mul4x1(l.CenterOfMass.Vec4(1)).Vec3()
	}
	return out
}

// GravityTorque returns the joint torques that hold the chain static against gravity at q.
func (c *Chain) GravityTorque(q joint.Vector) (joint.Vector, error) {
	if err := c.check(q); err != nil {
		return nil, err
	}
	frames := c.frames(q)
	tau := mat.NewVecDense(c.DOF(), nil)
	var contrib mat.VecDense
	for i, com := range c.centersOfMass(frames) {
		m := c.Links[i].Mass
		if m == 0 {
			continue
		}
		jv := pointJacobian(frames, com, i+1).Slice(0, 3, 0, c.DOF())
		force := mat.NewVecDense(3, []float64{-m * c.Gravity[0], -m * c.Gravity[1], -m * c.Gravity[2]})
		contrib.MulVec(jv.T(), force)
		tau.AddVec(tau, &contrib)
	}
	return joint.Vector(tau.RawVector().Data), nil
}

// InLimits reports whether every joint of q is inside its configured range.
func (c *Chain) InLimits(q joint.Vector) bool {
	for i, l := range c.Links {
		if l.Min == 0 && l.Max == 0 {
			continue
		}
		if q[i] < l.Min || q[i] > l.Max {
			return false
		}
	}
	return true
}

func deg(d float64) float64 {
	return d * math.Pi / 180
}
