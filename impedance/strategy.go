package impedance

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/kinematics"
)

// Kinematics is what the controller needs from the arm model. *kinematics.Chain implements it.
type Kinematics interface {
	DOF() int
	ForwardPosition(q joint.Vector) (kinematics.Pose, error)
	Jacobian(q joint.Vector) (*mat.Dense, error)
	GravityTorque(q joint.Vector) (joint.Vector, error)
	JointVelocity(q joint.Vector, twist []float64) (joint.Vector, error)
}

// CycleInput is the read-only view a strategy gets of one cycle. The kinematic caches are
// computed from Measured.Q before dispatch.
type CycleInput struct {
	DT       time.Duration
	Measured joint.State
	// Gains are the target gains, copied once at the top of the cycle.
	Gains    joint.Gains
	Pose     kinematics.Pose
	Jacobian *mat.Dense
	Gravity  joint.Vector
	Kin      Kinematics
}

// Output is what a strategy writes. Tau and Pos are fully overwritten by Compute; Wrench is
// zeroed by the controller before dispatch.
type Output struct {
	Tau    joint.Vector
	Pos    joint.Vector
	Wrench []float64
}

// Strategy is one control law. Strategies are built once and registered with the ModeSwitcher;
// Enter and Compute only run on the control cycle.
type Strategy interface {
	Mode() ControlMode
	// Enter runs on the first cycle the strategy governs after any other mode did.
	Enter(in *CycleInput, desired joint.State)
	// Compute fills out and may advance desired. An error holds the previous command.
	Compute(in *CycleInput, desired joint.State, out *Output) error
}

// impedanceTorque writes tau = K*(q_des - q) + D*qdot + gravity(q).
func impedanceTorque(tau joint.Vector, in *CycleInput, desired joint.State) {
	for i := range tau {
		tau[i] = in.Gains.K[i]*(desired.Q[i]-in.Measured.Q[i]) +
			in.Gains.D[i]*in.Measured.Qdot[i] +
			in.Gravity[i]
	}
}

// addJacobianTranspose adds J^T * wrench to tau.
func addJacobianTranspose(tau joint.Vector, jac *mat.Dense, wrench []float64) {
	for i := range tau {
		for j, w := range wrench {
			tau[i] += jac.At(j, i) * w
		}
	}
}

// endEffectorVelocity writes J * qdot into dst.
func endEffectorVelocity(dst []float64, jac *mat.Dense, qdot joint.Vector) {
	for i := range dst {
		dst[i] = 0
		for j, v := range qdot {
			dst[i] += jac.At(i, j) * v
		}
	}
}

// wrenchSolver maps joint torques to the end effector wrench that would produce them,
// F = (J J^T + l^2 I)^-1 J tau. Its buffers are reused across cycles.
type wrenchSolver struct {
	jjt  mat.Dense
	jtau mat.VecDense
	f    mat.VecDense
}

func (ws *wrenchSolver) solve(dst []float64, jac *mat.Dense, tau joint.Vector) {
	ws.jjt.Reset()
	ws.jjt.Mul(jac, jac.T())
	r, _ := ws.jjt.Dims()
	for i := 0; i < r; i++ {
		ws.jjt.Set(i, i, ws.jjt.At(i, i)+kinematics.DefaultDamping*kinematics.DefaultDamping)
	}
	ws.jtau.Reset()
	ws.jtau.MulVec(jac, mat.NewVecDense(len(tau), tau))
	ws.f.Reset()
	if err := ws.f.SolveVec(&ws.jjt, &ws.jtau); err != nil {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	for i := range dst {
		dst[i] = ws.f.AtVec(i)
	}
}

// holdStrategy is used for None: zero torque, desired tracks measured.
type holdStrategy struct{}

func (holdStrategy) Mode() ControlMode { return None }

func (holdStrategy) Enter(in *CycleInput, desired joint.State) {
	desired.Track(in.Measured)
}

func (holdStrategy) Compute(in *CycleInput, desired joint.State, out *Output) error {
	out.Tau.Zero()
	desired.Track(in.Measured)
	out.Pos.CopyFrom(in.Measured.Q)
	return nil
}
