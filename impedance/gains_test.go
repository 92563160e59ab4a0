package impedance

import (
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/impedance/actuator"
	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/logging"
)

func TestGainStoreSetters(t *testing.T) {
	gs := NewGainStore(7, logging.NewTestLogger(t))
	test.That(t, gs.NumJoints(), test.ShouldEqual, 7)
	test.That(t, gs.Snapshot(), test.ShouldResemble, joint.NewGains(7))

	test.That(t, gs.SetStiffness([]float64{1, 2, 3, 4, 5, 6, 7}), test.ShouldBeNil)
	test.That(t, gs.SetDampingUniform(0.5), test.ShouldBeNil)
	test.That(t, gs.SetStiffnessPerJoint(2, 30), test.ShouldBeNil)
	test.That(t, gs.SetDampingPerJoint(0, 0.1), test.ShouldBeNil)

	g := gs.Snapshot()
	test.That(t, g.K, test.ShouldResemble, joint.Vector{1, 2, 30, 4, 5, 6, 7})
	test.That(t, g.D, test.ShouldResemble, joint.Vector{0.1, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5})

	test.That(t, gs.SetStiffnessUniform(50), test.ShouldBeNil)
	test.That(t, gs.SetDamping(joint.Uniform(7, 2)), test.ShouldBeNil)
	g = gs.Snapshot()
	test.That(t, g.K, test.ShouldResemble, joint.Uniform(7, 50))
	test.That(t, g.D, test.ShouldResemble, joint.Uniform(7, 2))
}

func TestGainStoreRejections(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	gs := NewGainStore(7, logger)
	test.That(t, gs.SetStiffnessUniform(50), test.ShouldBeNil)
	want := gs.Snapshot()

	err := gs.SetStiffness([]float64{1, 2, 3})
	test.That(t, errors.Is(err, joint.ErrLengthMismatch), test.ShouldBeTrue)
	err = gs.SetDamping(make([]float64, 8))
	test.That(t, errors.Is(err, joint.ErrLengthMismatch), test.ShouldBeTrue)
	err = gs.SetStiffnessPerJoint(7, 1)
	test.That(t, errors.Is(err, joint.ErrIndex), test.ShouldBeTrue)
	err = gs.SetDampingPerJoint(-1, 1)
	test.That(t, errors.Is(err, joint.ErrIndex), test.ShouldBeTrue)
	err = gs.SetStiffnessUniform(math.Inf(1))
	test.That(t, errors.Is(err, joint.ErrNonFinite), test.ShouldBeTrue)
	err = gs.SetDampingPerJoint(3, math.NaN())
	test.That(t, errors.Is(err, joint.ErrNonFinite), test.ShouldBeTrue)
	err = gs.SetStiffness([]float64{1, 2, 3, math.NaN(), 5, 6, 7})
	test.That(t, errors.Is(err, joint.ErrNonFinite), test.ShouldBeTrue)

	test.That(t, gs.Snapshot(), test.ShouldResemble, want)
	test.That(t, logs.FilterMessage("rejected gain update").Len(), test.ShouldEqual, 7)
}

func TestGainStoreSnapshotIsACopy(t *testing.T) {
	gs := NewGainStore(3, logging.NewTestLogger(t))
	test.That(t, gs.SetStiffnessUniform(1), test.ShouldBeNil)
	g := gs.Snapshot()
	g.K[0] = 99

	dst := joint.NewGains(3)
	gs.SnapshotInto(dst)
	test.That(t, dst.K, test.ShouldResemble, joint.Vector{1, 1, 1})

	values := []float64{4, 5, 6}
	test.That(t, gs.SetDamping(values), test.ShouldBeNil)
	values[0] = 99
	test.That(t, gs.Snapshot().D, test.ShouldResemble, joint.Vector{4, 5, 6})
}

func TestGainStoreNeverTorn(t *testing.T) {
	gs := NewGainStore(7, logging.NewTestLogger(t))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			//nolint:errcheck
			gs.SetStiffnessUniform(float64(i))
		}
	}()
	dst := joint.NewGains(7)
	for i := 0; i < 500; i++ {
		gs.SnapshotInto(dst)
		for _, k := range dst.K {
			test.That(t, k, test.ShouldEqual, dst.K[0])
		}
	}
	wg.Wait()
}

func TestTooFast(t *testing.T) {
	test.That(t, TooFast(joint.Vector{0, 0, 0, 0, 0, 0, 1.5}, 1), test.ShouldBeTrue)
	test.That(t, TooFast(joint.Vector{-1.01, 0}, 1), test.ShouldBeTrue)
	test.That(t, TooFast(joint.Vector{1, -1}, 1), test.ShouldBeFalse)
	test.That(t, TooFast(joint.NewVector(7), 1), test.ShouldBeFalse)
	test.That(t, TooFast(nil, 1), test.ShouldBeFalse)
}

func TestSafetyMonitorApply(t *testing.T) {
	s := SafetyMonitor{Threshold: DefaultMaxJointVelocity, Damping: DefaultSafetyDamping}
	measured := joint.State{Q: joint.Vector{0.1, 0.2, 0.3}, Qdot: joint.Vector{0, 0, 0.5}}
	desired := joint.State{Q: joint.Vector{1, 1, 1}, Qdot: joint.Vector{1, 1, 1}}
	cmd := actuator.Command{
		Pos: joint.Vector{1, 1, 1},
		K:   joint.Uniform(3, 50),
		D:   joint.Uniform(3, 2),
		Tau: joint.Uniform(3, 4),
	}
	want := cmd.Clone()

	test.That(t, s.Apply(measured, desired, cmd), test.ShouldBeFalse)
	test.That(t, cmd, test.ShouldResemble, want)

	measured.Qdot[2] = -1.5
	test.That(t, s.Apply(measured, desired, cmd), test.ShouldBeTrue)
	test.That(t, cmd.K, test.ShouldResemble, joint.NewVector(3))
	test.That(t, cmd.D, test.ShouldResemble, joint.Uniform(3, DefaultSafetyDamping))
	test.That(t, cmd.Tau, test.ShouldResemble, joint.NewVector(3))
	test.That(t, cmd.Pos, test.ShouldResemble, measured.Q)
	test.That(t, desired.Q, test.ShouldResemble, measured.Q)
	test.That(t, desired.Qdot, test.ShouldResemble, joint.NewVector(3))
}
