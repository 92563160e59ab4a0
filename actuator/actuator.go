// Package actuator defines the four channel joint impedance interface the controller commands.
package actuator

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/impedance/joint"
)

// Command is one cycle's setpoints. Each joint applies
// tau + K*(pos - q) - D*qdot on top of its own dynamics.
type Command struct {
	Pos joint.Vector `json:"position"`
	K   joint.Vector `json:"stiffness"`
	D   joint.Vector `json:"damping"`
	Tau joint.Vector `json:"torque"`
}

// NewCommand returns a zero command for n joints.
func NewCommand(n int) Command {
	return Command{
		Pos: joint.NewVector(n),
		K:   joint.NewVector(n),
		D:   joint.NewVector(n),
		Tau: joint.NewVector(n),
	}
}

// Clone returns a deep copy.
func (c Command) Clone() Command {
	return Command{Pos: c.Pos.Clone(), K: c.K.Clone(), D: c.D.Clone(), Tau: c.Tau.Clone()}
}

// CopyFrom overwrites c in place with src.
func (c Command) CopyFrom(src Command) {
	c.Pos.CopyFrom(src.Pos)
	c.K.CopyFrom(src.K)
	c.D.CopyFrom(src.D)
	c.Tau.CopyFrom(src.Tau)
}

// Check validates every channel against n joints.
func (c Command) Check(n int) error {
	for name, v := range map[string]joint.Vector{"position": c.Pos, "stiffness": c.K, "damping": c.D, "torque": c.Tau} {
		if err := v.Check(n); err != nil {
			return errors.Wrap(err, name)
		}
	}
	return nil
}

// Interface is a joint impedance actuator. Read and Write are called from the control cycle and
// must not block on slow I/O.
type Interface interface {
	NumJoints() int
	// Read fills dst with the measured joint state.
	Read(ctx context.Context, dst joint.State) error
	Write(ctx context.Context, cmd Command) error
	Close(ctx context.Context) error
}
