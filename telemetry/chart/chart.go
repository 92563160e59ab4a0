// Package chart renders telemetry recordings as per joint line plots.
package chart

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"go.viam.com/impedance/telemetry"
)

// Series picks which per joint channel of a sample is plotted.
type Series int

const (
	// Torque plots the commanded joint torque.
	Torque Series = iota
	// Velocity plots the measured joint velocity.
	Velocity
	// Wrench plots the reported cartesian wrench.
	Wrench
)

func (s Series) String() string {
	switch s {
	case Velocity:
		return "joint velocity"
	case Wrench:
		return "wrench"
	default:
		return "joint torque"
	}
}

func (s Series) unit() string {
	switch s {
	case Velocity:
		return "qdot (rad/s)"
	case Wrench:
		return "F (N), T (N*m)"
	default:
		return "tau (N*m)"
	}
}

func (s Series) values(sample telemetry.Sample) []float64 {
	switch s {
	case Velocity:
		return sample.Qdot
	case Wrench:
		return sample.Wrench
	default:
		return sample.Tau
	}
}

// Plot draws one line per channel of series over time. Samples without a timestamp are placed by
// cycle number instead.
func Plot(samples []telemetry.Sample, series Series) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to plot")
	}
	channels := 0
	for _, s := range samples {
		if n := len(series.values(s)); n > channels {
			channels = n
		}
	}
	if channels == 0 {
		return nil, errors.Errorf("recording has no %s", series)
	}

	p := plot.New()
	p.Title.Text = series.String()
	p.Y.Label.Text = series.unit()
	byCycle := samples[0].Time.IsZero()
	if byCycle {
		p.X.Label.Text = "cycle"
	} else {
		p.X.Label.Text = "time (s)"
	}
	p.Add(plotter.NewGrid())

	start := samples[0].Time
	for ch := 0; ch < channels; ch++ {
		pts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			values := series.values(s)
			if ch >= len(values) {
				continue
			}
			x := float64(s.Cycle)
			if !byCycle {
				x = s.Time.Sub(start).Seconds()
			}
			pts = append(pts, plotter.XY{X: x, Y: values[ch]})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %d", ch)
		}
		line.LineStyle.Width = vg.Points(1)
		line.LineStyle.Color = plotutil.Color(ch)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%d", ch), line)
	}
	p.Legend.Top = true
	return p, nil
}

// WritePNG stacks plots vertically in one PNG image of the given size in inches.
func WritePNG(w io.Writer, plots []*plot.Plot, widthIn, heightIn float64) error {
	if len(plots) == 0 {
		return errors.New("nothing to draw")
	}
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(96),
	)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter * 4,
	}
	grid := make([][]*plot.Plot, len(plots))
	for i, p := range plots {
		grid[i] = []*plot.Plot{p}
	}
	canvases := plot.Align(grid, tiles, draw.New(c))
	for i, p := range plots {
		p.Draw(canvases[i][0])
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return errors.Wrap(err, "writing png")
	}
	return nil
}
