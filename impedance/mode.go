package impedance

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ControlMode selects the control law that governs a cycle.
type ControlMode int32

// The wire values of the requestable modes are 0 through 3.
const (
	None ControlMode = iota - 1
	CartesianVelocity
	FeedforwardFeedbackCartesian
	JointPosition
	GravityCompensation
)

// ErrUnknownMode is returned when a mode request names no requestable mode.
var ErrUnknownMode = errors.New("unknown control mode")

var modeNames = map[ControlMode]string{
	None:                         "none",
	CartesianVelocity:            "cartesian_velocity",
	FeedforwardFeedbackCartesian: "ff_fb_cartesian",
	JointPosition:                "joint_position",
	GravityCompensation:          "gravity_compensation",
}

func (m ControlMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Requestable reports whether m may be requested from outside.
func (m ControlMode) Requestable() bool {
	return m >= CartesianVelocity && m <= GravityCompensation
}

// Family returns the robot command family the mode drives.
func (m ControlMode) Family() RobotCommandFamily {
	if m == JointPosition {
		return PositionImpedance
	}
	return TorqueImpedance
}

// ParseControlMode accepts a mode name or its wire integer.
func ParseControlMode(s string) (ControlMode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		m := ControlMode(n)
		if !m.Requestable() {
			return None, errors.Wrapf(ErrUnknownMode, "%d", n)
		}
		return m, nil
	}
	for m, name := range modeNames {
		if name == s && m.Requestable() {
			return m, nil
		}
	}
	return None, errors.Wrapf(ErrUnknownMode, "%q", s)
}

// RobotCommandFamily is which actuator channel is authoritative for a cycle.
type RobotCommandFamily int

const (
	// TorqueImpedance commands torque with zero joint stiffness and damping.
	TorqueImpedance RobotCommandFamily = iota
	// PositionImpedance commands a position with the target stiffness and damping.
	PositionImpedance
)

func (f RobotCommandFamily) String() string {
	if f == PositionImpedance {
		return "position_impedance"
	}
	return "torque_impedance"
}

// CartesianSubMode picks the law used by the cartesian velocity strategy.
type CartesianSubMode int

const (
	// OpenLoop integrates the commanded twist through the inverse velocity solver.
	OpenLoop CartesianSubMode = iota
	// PassiveDS renders the commanded twist as a passive velocity field.
	PassiveDS
)

func (s CartesianSubMode) String() string {
	if s == PassiveDS {
		return "passive_ds"
	}
	return "open_loop"
}
