package control

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

const (
	rest = iota
	active
)

// TrapezoidConfig bounds a trapezoidal velocity profile.
type TrapezoidConfig struct {
	MaxAcc    float64 `json:"max_acc"`
	MaxVel    float64 `json:"max_vel"`
	PosWindow float64 `json:"pos_window"`
	// KppGain scales the linear approach gain near the target; 0 means 1.
	KppGain float64 `json:"kpp_gain"`
}

// Validate returns an error for a profile that could never move.
func (cfg TrapezoidConfig) Validate() error {
	if cfg.MaxAcc <= 0 {
		return errors.Errorf("trapezoidal velocity profile needs a positive max_acc, got %v", cfg.MaxAcc)
	}
	if cfg.MaxVel <= 0 {
		return errors.Errorf("trapezoidal velocity profile needs a positive max_vel, got %v", cfg.MaxVel)
	}
	if cfg.PosWindow < 0 {
		return errors.Errorf("pos_window can't be negative, got %v", cfg.PosWindow)
	}
	return nil
}

// TrapezoidProfile generates a velocity command for one joint that accelerates at MaxAcc, cruises at
// MaxVel and brakes so that it arrives at the set point with zero velocity. It is not safe for
// concurrent use.
type TrapezoidProfile struct {
	cfg          TrapezoidConfig
	kPP          float64
	lastVelCmd   float64
	currentPhase int
}

// NewTrapezoidProfile returns a profile at rest.
func NewTrapezoidProfile(cfg TrapezoidConfig) (*TrapezoidProfile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.KppGain == 0 {
		cfg.KppGain = 1
	}
	return &TrapezoidProfile{
		cfg: cfg,
		kPP: cfg.KppGain * 2.0 * cfg.MaxAcc / cfg.MaxVel,
	}, nil
}

// Next returns the velocity to command this cycle to move pos toward setPoint.
func (s *TrapezoidProfile) Next(setPoint, pos float64, dt time.Duration) float64 {
	posErr := setPoint - pos
	step := s.cfg.MaxAcc * dt.Seconds()
	if math.Abs(posErr) <= s.cfg.PosWindow && math.Abs(s.lastVelCmd) <= step {
		s.lastVelCmd = 0
		s.currentPhase = rest
		return 0
	}
	s.currentPhase = active

	// braking curve, capped by cruise speed and a linear approach near the target
	vel := math.Min(s.cfg.MaxVel, math.Sqrt(2*s.cfg.MaxAcc*math.Abs(posErr)))
	vel = math.Min(vel, s.kPP*math.Abs(posErr))
	vel = math.Copysign(vel, posErr)

	velUp := math.Min(s.lastVelCmd+step, s.cfg.MaxVel)
	velDown := math.Max(s.lastVelCmd-step, -s.cfg.MaxVel)
	if vel > velUp {
		vel = velUp
	} else if vel < velDown {
		vel = velDown
	}
	s.lastVelCmd = vel
	return vel
}

// Active reports whether the last Next call was still moving.
func (s *TrapezoidProfile) Active() bool {
	return s.currentPhase == active
}

// Reset forgets the last commanded velocity.
func (s *TrapezoidProfile) Reset() {
	s.lastVelCmd = 0
	s.currentPhase = rest
}
