package impedance

import (
	"go.viam.com/impedance/joint"
)

// GravityCompensationStrategy cancels the arm's weight and nothing else, leaving it free to be pushed
// around. Every mode switch passes through it.
type GravityCompensationStrategy struct{}

// NewGravityCompensationStrategy returns the strategy.
func NewGravityCompensationStrategy() *GravityCompensationStrategy {
	return &GravityCompensationStrategy{}
}

// Mode implements Strategy.
func (g *GravityCompensationStrategy) Mode() ControlMode {
	return GravityCompensation
}

// Enter implements Strategy.
func (g *GravityCompensationStrategy) Enter(in *CycleInput, desired joint.State) {
	desired.Track(in.Measured)
}

// Compute implements Strategy.
func (g *GravityCompensationStrategy) Compute(in *CycleInput, desired joint.State, out *Output) error {
	out.Tau.CopyFrom(in.Gravity)
	desired.Track(in.Measured)
	out.Pos.CopyFrom(in.Measured.Q)
	return nil
}
