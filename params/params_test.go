package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/impedance/impedance"
	"go.viam.com/impedance/joint"
	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}

func TestParse(t *testing.T) {
	values, err := Parse([]byte("K: 50\nD: 0.7\nK_0_joint: 100\ndamp_6_joint: 1\n"), 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values, test.ShouldResemble, Values{
		{impedance.Stiffness, AllJoints}: 50,
		{impedance.Damping, AllJoints}:   0.7,
		{impedance.Stiffness, 0}:         100,
		{impedance.Damping, 6}:           1,
	})

	values, err = Parse([]byte("K_2_joint: \"3.5\"\n"), 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values, test.ShouldResemble, Values{{impedance.Stiffness, 2}: 3.5})

	values, err = Parse(nil, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values, test.ShouldBeEmpty)

	for _, bad := range []string{
		"K: [1, 2",
		"stiffness: 3",
		"K_7_joint: 1",
		"damp_x_joint: 1",
		"K: .inf",
		"D: soft",
		"damp_1_joint: soft",
	} {
		_, err := Parse([]byte(bad), 7)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestKeyString(t *testing.T) {
	test.That(t, Key{impedance.Stiffness, AllJoints}.String(), test.ShouldEqual, "K")
	test.That(t, Key{impedance.Damping, AllJoints}.String(), test.ShouldEqual, "D")
	test.That(t, Key{impedance.Stiffness, 3}.String(), test.ShouldEqual, "K_3_joint")
	test.That(t, Key{impedance.Damping, 0}.String(), test.ShouldEqual, "damp_0_joint")
}

func TestDiff(t *testing.T) {
	prev := Values{
		{impedance.Stiffness, AllJoints}: 50,
		{impedance.Stiffness, 2}:         10,
		{impedance.Damping, 1}:           1,
	}
	next := Values{
		{impedance.Stiffness, AllJoints}: 50,
		{impedance.Stiffness, 2}:         10,
		{impedance.Damping, 1}:           2,
		{impedance.Damping, 0}:           3,
	}
	test.That(t, next.Diff(prev), test.ShouldResemble, []Change{
		{Key{impedance.Damping, 0}, 3},
		{Key{impedance.Damping, 1}, 2},
	})
	test.That(t, next.Diff(next), test.ShouldBeEmpty)

	// a new all joint stiffness comes first and is followed by the per joint stiffness it would
	// otherwise overwrite
	next[Key{impedance.Stiffness, AllJoints}] = 60
	test.That(t, next.Diff(prev), test.ShouldResemble, []Change{
		{Key{impedance.Stiffness, AllJoints}, 60},
		{Key{impedance.Damping, 0}, 3},
		{Key{impedance.Damping, 1}, 2},
		{Key{impedance.Stiffness, 2}, 10},
	})
}

func TestApply(t *testing.T) {
	gs := impedance.NewGainStore(7, logging.NewTestLogger(t))
	err := Apply(gs, []Change{
		{Key{impedance.Stiffness, AllJoints}, 60},
		{Key{impedance.Stiffness, 2}, 10},
		{Key{impedance.Damping, 9}, 1},
		{Key{impedance.Damping, 6}, 0.5},
	})
	test.That(t, errors.Is(err, joint.ErrIndex), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "damp_9_joint")

	g := gs.Snapshot()
	test.That(t, g.K, test.ShouldResemble, joint.Vector{60, 60, 10, 60, 60, 60, 60})
	test.That(t, g.D, test.ShouldResemble, joint.Vector{0, 0, 0, 0, 0, 0, 0.5})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
}

func TestWatcherAppliesInitialFile(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "gains.yaml")
	writeFile(t, path, "K: 50\ndamp_3_joint: 0.4\n")

	gs := impedance.NewGainStore(7, logger)
	w, err := NewWatcher(logger, path, 7, gs, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	test.That(t, w.Reloads(), test.ShouldEqual, uint64(1))
	test.That(t, gs.Snapshot().K, test.ShouldResemble, joint.Uniform(7, 50))
	test.That(t, gs.Snapshot().D, test.ShouldResemble, joint.Vector{0, 0, 0, 0.4, 0, 0, 0})
	test.That(t, w.Path(), test.ShouldEqual, path)
}

func TestWatcherFollowsEdits(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	path := filepath.Join(t.TempDir(), "gains.yaml")

	gs := impedance.NewGainStore(7, logger)
	w, err := NewWatcher(logger, path, 7, gs, 10*time.Millisecond)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
		test.That(t, w.Close(), test.ShouldBeNil)
	}()
	test.That(t, w.Reloads(), test.ShouldEqual, uint64(0))

	writeFile(t, path, "K: 20\n")
	testutils.Eventually(t, func() bool {
		return gs.Snapshot().K.Equal(joint.Uniform(7, 20))
	})

	// a broken file leaves the gains alone
	writeFile(t, path, "K: [")
	testutils.Eventually(t, func() bool {
		return logs.FilterMessage("parameter file not applied").Len() > 0
	})
	test.That(t, gs.Snapshot().K, test.ShouldResemble, joint.Uniform(7, 20))

	writeFile(t, path, "K: 20\nK_1_joint: 5\n")
	testutils.Eventually(t, func() bool {
		return gs.Snapshot().K.Equal(joint.Vector{20, 5, 20, 20, 20, 20, 20})
	})
}

func TestWatcherRetriesRejectedValues(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "gains.yaml")
	writeFile(t, path, "D: 1\n")

	rejecting := &flakySetter{GainStore: impedance.NewGainStore(7, logger), fail: true}
	w, err := NewWatcher(logger, path, 7, rejecting, time.Hour)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()
	test.That(t, rejecting.Snapshot().D, test.ShouldResemble, joint.NewVector(7))

	rejecting.fail = false
	test.That(t, w.Reload(), test.ShouldBeNil)
	test.That(t, rejecting.Snapshot().D, test.ShouldResemble, joint.Uniform(7, 1))
}

type flakySetter struct {
	*impedance.GainStore
	fail bool
}

func (f *flakySetter) SetUniform(kind impedance.GainKind, value float64) error {
	if f.fail {
		return errors.New("busy")
	}
	return f.GainStore.SetUniform(kind, value)
}

func TestNewWatcherMissingDirectory(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewWatcher(logger, filepath.Join(t.TempDir(), "nope", "gains.yaml"), 7,
		impedance.NewGainStore(7, logger), 0)
	test.That(t, err, test.ShouldNotBeNil)
}
