// Package main renders a telemetry recording to a PNG image.
package main

import (
	"bufio"
	"context"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/plot"

	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/telemetry"
	"go.viam.com/impedance/telemetry/chart"
)

var logger = logging.NewLogger("plot")

// Arguments for the command.
type Arguments struct {
	Recording string `flag:"0,required,usage=JSON lines telemetry recording"`
	Output    string `flag:"out,default=telemetry.png,usage=png file to write"`
	Wrench    bool   `flag:"wrench,usage=also plot the cartesian wrench"`
}

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	//nolint:gosec
	in, err := os.Open(argsParsed.Recording)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(in.Close)
	samples, err := telemetry.ReadRecording(bufio.NewReader(in))
	if err != nil {
		return errors.Wrap(err, "reading recording")
	}

	series := []chart.Series{chart.Torque, chart.Velocity}
	if argsParsed.Wrench {
		series = append(series, chart.Wrench)
	}
	plots := make([]*plot.Plot, 0, len(series))
	for _, s := range series {
		p, err := chart.Plot(samples, s)
		if err != nil {
			return err
		}
		plots = append(plots, p)
	}

	out, err := os.Create(argsParsed.Output)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, out.Close())
	}()
	if err := chart.WritePNG(out, plots, 10, 4*float64(len(plots))); err != nil {
		return err
	}
	logger.Infow("wrote plot", "samples", len(samples), "path", argsParsed.Output)
	return nil
}
