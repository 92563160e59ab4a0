package impedance

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	commandVelocityOpen = "velocity_open"
	commandVelocityPS   = "velocity_ps"
)

// ErrUnknownCommand is returned for a string command that is not recognized.
var ErrUnknownCommand = errors.New("no such string command")

// CommandString handles a free text command. The only recognized commands select the law of the
// cartesian velocity strategy; they change neither the mode nor the gains. Anything else is
// logged and ignored.
func (c *Controller) CommandString(text string) error {
	switch strings.TrimSpace(text) {
	case commandVelocityOpen:
		c.cartVel.SetSubMode(OpenLoop)
		c.logger.Infow("cartesian velocity [open loop]", "command", text)
		return nil
	case commandVelocityPS:
		c.cartVel.SetSubMode(PassiveDS)
		c.logger.Infow("cartesian velocity [passive ds]", "command", text)
		return nil
	default:
		c.logger.Warnw("no such string command", "command", text)
		return errors.Wrapf(ErrUnknownCommand, "%q", text)
	}
}
