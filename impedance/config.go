package impedance

import (
	"math"

	"go.viam.com/impedance/control"
	"go.viam.com/impedance/logging"
)

// DefaultStartDamping is the damping written before the first cycle.
const DefaultStartDamping = 0.7

// Config is the controller's startup configuration. Zero values mean "use the default".
type Config struct {
	// MaxJointVelocity is the safety interlock threshold in rad/s.
	MaxJointVelocity float64 `json:"max_qdot"`
	SafetyDamping    float64 `json:"safety_damping"`
	StartDamping     float64 `json:"start_damping"`
	SettleCycles     int     `json:"settle_cycles"`

	Stiffness []float64 `json:"stiffness"`
	Damping   []float64 `json:"damping"`

	CartesianStiffness []float64 `json:"cartesian_stiffness"`
	PassiveDSDamping   float64   `json:"passive_ds_damping"`
	CartesianSubMode   string    `json:"cartesian_sub_mode"`

	JointProfile control.TrapezoidConfig `json:"joint_profile"`

	// ThrottleSeconds spaces out the repeated per-cycle log lines.
	ThrottleSeconds float64 `json:"throttle_seconds"`
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// WithDefaults returns a copy of cfg in which every missing or invalid field is replaced by its
// default. Each replaced invalid value is logged as a warning; none is fatal.
func (cfg Config) WithDefaults(n int, logger logging.Logger) Config {
	out := cfg
	warn := func(field string, got, used interface{}) {
		logger.Warnw("invalid controller configuration, using default", "field", field, "got", got, "default", used)
	}

	switch {
	case cfg.MaxJointVelocity == 0:
		logger.Warnw("maximum allowed joint velocity not set, using default", "default", DefaultMaxJointVelocity)
		out.MaxJointVelocity = DefaultMaxJointVelocity
	case !positiveFinite(cfg.MaxJointVelocity):
		warn("max_qdot", cfg.MaxJointVelocity, DefaultMaxJointVelocity)
		out.MaxJointVelocity = DefaultMaxJointVelocity
	}
	if !positiveFinite(cfg.SafetyDamping) {
		if cfg.SafetyDamping != 0 {
			warn("safety_damping", cfg.SafetyDamping, DefaultSafetyDamping)
		}
		out.SafetyDamping = DefaultSafetyDamping
	}
	if !positiveFinite(cfg.StartDamping) {
		if cfg.StartDamping != 0 {
			warn("start_damping", cfg.StartDamping, DefaultStartDamping)
		}
		out.StartDamping = DefaultStartDamping
	}
	if cfg.SettleCycles < 1 {
		if cfg.SettleCycles != 0 {
			warn("settle_cycles", cfg.SettleCycles, DefaultSettleCycles)
		}
		out.SettleCycles = DefaultSettleCycles
	}
	if cfg.Stiffness != nil && len(cfg.Stiffness) != n {
		warn("stiffness", len(cfg.Stiffness), "zeros")
		out.Stiffness = nil
	}
	if cfg.Damping != nil && len(cfg.Damping) != n {
		warn("damping", len(cfg.Damping), "zeros")
		out.Damping = nil
	}
	if cfg.CartesianStiffness != nil && len(cfg.CartesianStiffness) != len(DefaultCartesianStiffness) {
		warn("cartesian_stiffness", len(cfg.CartesianStiffness), DefaultCartesianStiffness)
		out.CartesianStiffness = nil
	}
	if !positiveFinite(cfg.PassiveDSDamping) {
		if cfg.PassiveDSDamping != 0 {
			warn("passive_ds_damping", cfg.PassiveDSDamping, DefaultPassiveDSDamping)
		}
		out.PassiveDSDamping = DefaultPassiveDSDamping
	}
	switch cfg.CartesianSubMode {
	case "", commandVelocityOpen, commandVelocityPS:
	default:
		warn("cartesian_sub_mode", cfg.CartesianSubMode, commandVelocityOpen)
		out.CartesianSubMode = ""
	}
	if cfg.JointProfile == (control.TrapezoidConfig{}) {
		out.JointProfile = DefaultJointProfile
	} else if err := cfg.JointProfile.Validate(); err != nil {
		warn("joint_profile", err.Error(), DefaultJointProfile)
		out.JointProfile = DefaultJointProfile
	}
	if !positiveFinite(cfg.ThrottleSeconds) {
		if cfg.ThrottleSeconds != 0 {
			warn("throttle_seconds", cfg.ThrottleSeconds, logging.DefaultThrottleInterval.Seconds())
		}
		out.ThrottleSeconds = logging.DefaultThrottleInterval.Seconds()
	}
	return out
}
