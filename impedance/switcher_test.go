package impedance

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/impedance/logging"
)

func newTestSwitcher(t *testing.T, settle int) *ModeSwitcher {
	t.Helper()
	jp, err := NewJointPositionStrategy(7, DefaultJointProfile)
	test.That(t, err, test.ShouldBeNil)
	fffb, err := NewFeedforwardFeedbackCartesianStrategy(nil)
	test.That(t, err, test.ShouldBeNil)
	ms, err := NewModeSwitcher(logging.NewTestLogger(t), settle,
		NewCartesianVelocityStrategy(0), fffb, jp, NewGravityCompensationStrategy())
	test.That(t, err, test.ShouldBeNil)
	return ms
}

func TestNewModeSwitcherValidation(t *testing.T) {
	logger := logging.NewTestLogger(t)

	_, err := NewModeSwitcher(logger, 0, NewGravityCompensationStrategy())
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewModeSwitcher(logger, 1, NewCartesianVelocityStrategy(0))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "gravity compensation")

	_, err = NewModeSwitcher(logger, 1, NewGravityCompensationStrategy(), NewGravityCompensationStrategy())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "duplicate")

	_, err = NewModeSwitcher(logger, 1, holdStrategy{}, NewGravityCompensationStrategy())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestModeSwitcherInitialState(t *testing.T) {
	ms := newTestSwitcher(t, 1)
	test.That(t, ms.ActiveMode(), test.ShouldEqual, None)
	test.That(t, ms.Requested(), test.ShouldEqual, GravityCompensation)
	test.That(t, ms.IsSwitching(), test.ShouldBeTrue)

	test.That(t, ms.Resolve(), test.ShouldEqual, GravityCompensation)
	test.That(t, ms.IsSwitching(), test.ShouldBeFalse)
	test.That(t, ms.Resolve(), test.ShouldEqual, GravityCompensation)
	test.That(t, ms.Resolve(), test.ShouldEqual, GravityCompensation)
}

func TestModeSwitcherRequestIsIdempotent(t *testing.T) {
	ms := newTestSwitcher(t, 1)
	ms.Resolve()
	ms.Resolve()

	test.That(t, ms.Request(JointPosition), test.ShouldBeNil)
	test.That(t, ms.Request(JointPosition), test.ShouldBeNil)
	test.That(t, ms.ActiveMode(), test.ShouldEqual, GravityCompensation)
	test.That(t, ms.IsSwitching(), test.ShouldBeTrue)

	test.That(t, ms.Resolve(), test.ShouldEqual, GravityCompensation)
	test.That(t, ms.Resolve(), test.ShouldEqual, JointPosition)
	test.That(t, ms.IsSwitching(), test.ShouldBeFalse)

	test.That(t, ms.Request(JointPosition), test.ShouldBeNil)
	test.That(t, ms.Resolve(), test.ShouldEqual, JointPosition)
}

func TestModeSwitcherSettleCycles(t *testing.T) {
	ms := newTestSwitcher(t, 3)
	for i := 0; i < 4; i++ {
		test.That(t, ms.Resolve(), test.ShouldEqual, GravityCompensation)
	}

	test.That(t, ms.Request(CartesianVelocity), test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		test.That(t, ms.Resolve(), test.ShouldEqual, GravityCompensation)
	}
	test.That(t, ms.Resolve(), test.ShouldEqual, CartesianVelocity)
}

func TestModeSwitcherRequestBackDuringSettle(t *testing.T) {
	ms := newTestSwitcher(t, 1)
	ms.Resolve()
	ms.Resolve()
	test.That(t, ms.Request(CartesianVelocity), test.ShouldBeNil)
	ms.Resolve()
	test.That(t, ms.Resolve(), test.ShouldEqual, CartesianVelocity)

	// asking for a different mode and back again still settles
	test.That(t, ms.Request(JointPosition), test.ShouldBeNil)
	test.That(t, ms.Resolve(), test.ShouldEqual, GravityCompensation)
	test.That(t, ms.Request(CartesianVelocity), test.ShouldBeNil)
	test.That(t, ms.Resolve(), test.ShouldEqual, GravityCompensation)
	test.That(t, ms.Resolve(), test.ShouldEqual, CartesianVelocity)
}

func TestModeSwitcherRejectsUnknown(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	ms, err := NewModeSwitcher(logger, 1, NewGravityCompensationStrategy())
	test.That(t, err, test.ShouldBeNil)

	for _, m := range []ControlMode{None, ControlMode(4), ControlMode(-7)} {
		err := ms.Request(m)
		test.That(t, errors.Is(err, ErrUnknownMode), test.ShouldBeTrue)
	}
	test.That(t, logs.FilterMessage("ignoring request for unknown control mode").Len(), test.ShouldEqual, 3)

	err = ms.Request(JointPosition)
	test.That(t, errors.Is(err, ErrUnknownMode), test.ShouldBeTrue)
	test.That(t, logs.FilterMessage("ignoring request for unregistered control mode").Len(), test.ShouldEqual, 1)
	test.That(t, ms.Requested(), test.ShouldEqual, GravityCompensation)
}

func TestModeSwitcherStrategy(t *testing.T) {
	ms := newTestSwitcher(t, 1)
	test.That(t, ms.Strategy(JointPosition).Mode(), test.ShouldEqual, JointPosition)
	test.That(t, ms.Strategy(None).Mode(), test.ShouldEqual, None)
	test.That(t, ms.Strategy(ControlMode(12)).Mode(), test.ShouldEqual, None)
}
