package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/impedance/actuator"
	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/kinematics"
	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/testutils"
)

var bent = []float64{0, 0.5, 0, -1.2, 0, 0.6, 0}

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}

func newTestArm(t *testing.T, cfg Config) *Arm {
	t.Helper()
	a, err := NewArm(logging.NewTestLogger(t), kinematics.NewKukaLWR4(), cfg, nil)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, a.Close(context.Background()), test.ShouldBeNil)
	})
	return a
}

func gravityHold(t *testing.T, q []float64) actuator.Command {
	t.Helper()
	gravity, err := kinematics.NewKukaLWR4().GravityTorque(q)
	test.That(t, err, test.ShouldBeNil)
	cmd := actuator.NewCommand(len(q))
	cmd.Pos.CopyFrom(q)
	cmd.Tau.CopyFrom(gravity)
	return cmd
}

func TestNewArmValidation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	chain := kinematics.NewKukaLWR4()
	for _, cfg := range []Config{
		{Inertia: []float64{1, 1, 1, 1, 1, 1, 0}},
		{Inertia: []float64{1, 1}},
		{Friction: []float64{1, 1, 1, 1, 1, 1, -1}},
		{InitialQ: []float64{0, math.NaN(), 0, 0, 0, 0, 0}},
		{StepSeconds: -1},
	} {
		_, err := NewArm(logger, chain, cfg, nil)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestArmStartsAtRest(t *testing.T) {
	a := newTestArm(t, Config{InitialQ: bent})
	test.That(t, a.NumJoints(), test.ShouldEqual, 7)

	dst := joint.NewState(7)
	test.That(t, a.Read(context.Background(), dst), test.ShouldBeNil)
	test.That(t, dst.Q, test.ShouldResemble, joint.Vector(bent))
	test.That(t, dst.Qdot, test.ShouldResemble, joint.NewVector(7))
	test.That(t, a.Command().Pos, test.ShouldResemble, joint.Vector(bent))

	test.That(t, a.Read(context.Background(), joint.NewState(3)), test.ShouldNotBeNil)
}

func TestArmGravityCompensationHolds(t *testing.T) {
	a := newTestArm(t, Config{InitialQ: bent})
	test.That(t, a.Write(context.Background(), gravityHold(t, bent)), test.ShouldBeNil)
	test.That(t, a.Advance(time.Second), test.ShouldBeNil)
	s := a.State()
	for i := range bent {
		test.That(t, s.Q[i], test.ShouldAlmostEqual, bent[i], 1e-9)
	}
	test.That(t, a.Writes(), test.ShouldEqual, uint64(1))
}

func TestArmFallsWithoutTorque(t *testing.T) {
	a := newTestArm(t, Config{InitialQ: bent})
	test.That(t, a.Advance(100*time.Millisecond), test.ShouldBeNil)
	s := a.State()
	test.That(t, s.Q[1], test.ShouldNotAlmostEqual, bent[1], 1e-3)
	test.That(t, s.Qdot.MaxAbs(), test.ShouldBeGreaterThan, 0)
}

func TestArmJointSpring(t *testing.T) {
	a := newTestArm(t, Config{InitialQ: bent})
	cmd := gravityHold(t, bent)
	cmd.Pos[0] = 0.1
	cmd.K[0] = 100
	cmd.D[0] = 10
	test.That(t, a.Write(context.Background(), cmd), test.ShouldBeNil)
	test.That(t, a.Advance(3*time.Second+300*time.Microsecond), test.ShouldBeNil)

	s := a.State()
	test.That(t, s.Q[0], test.ShouldAlmostEqual, 0.1, 1e-4)
	test.That(t, s.Qdot[0], test.ShouldAlmostEqual, 0, 1e-4)
	for i := 1; i < 7; i++ {
		test.That(t, s.Q[i], test.ShouldAlmostEqual, bent[i], 1e-6)
	}
}

func TestArmJointLimits(t *testing.T) {
	chain := kinematics.NewKukaLWR4()
	a := newTestArm(t, Config{})
	cmd := actuator.NewCommand(7)
	cmd.Tau[0] = 50
	test.That(t, a.Write(context.Background(), cmd), test.ShouldBeNil)
	test.That(t, a.Advance(5*time.Second), test.ShouldBeNil)
	s := a.State()
	test.That(t, s.Q[0], test.ShouldAlmostEqual, chain.Links[0].Max)
	test.That(t, s.Qdot[0], test.ShouldEqual, 0)
}

func TestArmWriteValidation(t *testing.T) {
	a := newTestArm(t, Config{})
	test.That(t, a.Write(context.Background(), actuator.NewCommand(6)), test.ShouldNotBeNil)
	cmd := actuator.NewCommand(7)
	cmd.Tau[2] = math.Inf(-1)
	err := a.Write(context.Background(), cmd)
	test.That(t, errors.Is(err, joint.ErrNonFinite), test.ShouldBeTrue)
	test.That(t, a.Writes(), test.ShouldEqual, uint64(0))
}

func TestArmReadFaults(t *testing.T) {
	a := newTestArm(t, Config{})
	boom := errors.New("bus timeout")
	a.InjectReadFaults(2, boom)
	dst := joint.NewState(7)
	test.That(t, a.Read(context.Background(), dst), test.ShouldEqual, boom)
	test.That(t, a.Read(context.Background(), dst), test.ShouldEqual, boom)
	test.That(t, a.Read(context.Background(), dst), test.ShouldBeNil)
}

func TestArmSetState(t *testing.T) {
	a := newTestArm(t, Config{})
	pushed := joint.State{Q: joint.Vector(bent).Clone(), Qdot: joint.Uniform(7, 0.2)}
	test.That(t, a.SetState(pushed), test.ShouldBeNil)
	test.That(t, a.State(), test.ShouldResemble, pushed)
	test.That(t, a.SetState(joint.NewState(2)), test.ShouldNotBeNil)
}

func TestArmClose(t *testing.T) {
	a, err := NewArm(logging.NewTestLogger(t), kinematics.NewKukaLWR4(), Config{}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.Close(context.Background()), test.ShouldBeNil)
	test.That(t, a.Close(context.Background()), test.ShouldBeNil)
	test.That(t, a.Read(context.Background(), joint.NewState(7)), test.ShouldEqual, ErrClosed)
	test.That(t, a.Write(context.Background(), actuator.NewCommand(7)), test.ShouldEqual, ErrClosed)
	test.That(t, a.Advance(time.Millisecond), test.ShouldEqual, ErrClosed)
}

func TestArmSimulatesTime(t *testing.T) {
	mock := clock.NewMock()
	a, err := NewArm(logging.NewTestLogger(t), kinematics.NewKukaLWR4(), Config{InitialQ: bent, SimulateTime: true}, mock)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, a.Close(context.Background()), test.ShouldBeNil)
	}()

	cmd := gravityHold(t, bent)
	cmd.Pos[0] = 0.5
	cmd.K[0] = 100
	test.That(t, a.Write(context.Background(), cmd), test.ShouldBeNil)

	testutils.Eventually(t, func() bool {
		mock.Add(DefaultStep)
		return a.State().Q[0] > 0
	})
}
