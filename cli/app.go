// Package cli contains the impedancectl command line client for a running impedance server.
package cli

import (
	"io"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	addressFlag     = "address"
	noColorFlag     = "no-color"
	debugFlag       = "debug"
	jointFlag       = "joint"
	countFlag       = "count"
	translationFlag = "translation"
	orientationFlag = "orientation"

	// DefaultAddress is where impedancectl looks for the server.
	DefaultAddress = "localhost:8080"
)

var jointFlagDef = &cli.IntFlag{
	Name:  jointFlag,
	Value: -1,
	Usage: "set only this joint (0 based) to the single value given",
}

var app = &cli.App{
	Name:            "impedancectl",
	Usage:           "drive a running impedance controller",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    addressFlag,
			Aliases: []string{"a"},
			Value:   DefaultAddress,
			Usage:   "host:port of the impedance server",
		},
		&cli.BoolFlag{
			Name:  noColorFlag,
			Usage: "disable colored output",
		},
		&cli.StringFlag{
			Name:  debugFlag,
			Usage: "have the server log these requests at debug level, tagged with this value",
		},
	},
	Before: func(c *cli.Context) error {
		if c.Bool(noColorFlag) {
			color.NoColor = true
		}
		return nil
	},
	Commands: []*cli.Command{
		{
			Name:   "status",
			Usage:  "print the controller status",
			Action: StatusAction,
		},
		{
			Name:   "joints",
			Usage:  "print a per joint table of state, command and gains",
			Action: JointsAction,
		},
		{
			Name:   "loop",
			Usage:  "print control loop timing",
			Action: LoopAction,
		},
		{
			Name:      "mode",
			Usage:     "request a control mode",
			ArgsUsage: "<cartesian_velocity|ff_fb_cartesian|joint_position|gravity_compensation|0-3>",
			Action:    ModeAction,
		},
		{
			Name:      "stiffness",
			Usage:     "set joint stiffness: one value for every joint, or one value per joint",
			ArgsUsage: "<value...>",
			Flags:     []cli.Flag{jointFlagDef},
			Action:    StiffnessAction,
		},
		{
			Name:      "damping",
			Usage:     "set joint damping: one value for every joint, or one value per joint",
			ArgsUsage: "<value...>",
			Flags:     []cli.Flag{jointFlagDef},
			Action:    DampingAction,
		},
		{
			Name:      "command",
			Usage:     "send a string command, e.g. velocity_open or velocity_ps",
			ArgsUsage: "<command>",
			Action:    CommandAction,
		},
		{
			Name:      "twist",
			Usage:     "set the cartesian velocity mode's twist",
			ArgsUsage: "<vx> <vy> <vz> <wx> <wy> <wz>",
			Action:    TwistAction,
		},
		{
			Name:      "wrench",
			Usage:     "set the feedforward wrench",
			ArgsUsage: "<fx> <fy> <fz> <tx> <ty> <tz>",
			Action:    WrenchAction,
		},
		{
			Name:  "target",
			Usage: "set the cartesian target pose",
			Flags: []cli.Flag{
				&cli.Float64SliceFlag{
					Name:     translationFlag,
					Usage:    "x,y,z in meters",
					Required: true,
				},
				&cli.Float64SliceFlag{
					Name:  orientationFlag,
					Usage: "unit quaternion w,x,y,z",
					Value: cli.NewFloat64Slice(1, 0, 0, 0),
				},
			},
			Action: TargetAction,
		},
		{
			Name:      "joint-target",
			Usage:     "set the joint position mode's target",
			ArgsUsage: "<q...>",
			Action:    JointTargetAction,
		},
		{
			Name:  "tail",
			Usage: "stream telemetry samples",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  countFlag,
					Usage: "stop after this many samples, 0 streams until interrupted",
				},
			},
			Action: TailAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
