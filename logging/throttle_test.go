package logging

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestThrottle(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	throttle := NewThrottle(logger, time.Hour)

	for i := 0; i < 10; i++ {
		throttle.Warnw("safety tripped", "cycle", i)
		throttle.Infow("mode active", "cycle", i)
	}
	test.That(t, logs.FilterMessage("safety tripped").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("mode active").Len(), test.ShouldEqual, 1)

	throttle.Errorw("kinematics failed")
	test.That(t, logs.FilterMessage("kinematics failed").Len(), test.ShouldEqual, 1)

	test.That(t, NewThrottle(logger, 0).interval, test.ShouldEqual, DefaultThrottleInterval)
}
