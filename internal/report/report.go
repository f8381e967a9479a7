// Package report renders simulation traces as PNG charts.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/Agrid-Dev/cracfuzzy/internal/fuzzy"
	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
)

var ErrEmptyTrace = errors.New("report: empty trace")

// MembershipFilePrefix names the per-variable membership charts: mf_<variable>.png.
const MembershipFilePrefix = "mf_"

const (
	TemperatureFile = "temperatures.png"
	EffortFile      = "crac_power.png"

	width  = 10 * vg.Inch
	height = 5 * vg.Inch
	dpi    = 150
)

var (
	colorInternal = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorExternal = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorSetpoint = color.RGBA{A: 255}
	colorAlert    = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorRaw      = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	colorControl  = color.RGBA{R: 44, G: 160, B: 44, A: 255}

	termColors = []color.Color{colorExternal, colorControl, colorInternal, colorAlert, colorRaw}
)

// TemperaturePlot draws internal and external temperature against the setpoint and
// the alert threshold.
func TemperaturePlot(trace simulation.Trace, limits simulation.Limits) (*plot.Plot, error) {
	if len(trace) == 0 {
		return nil, ErrEmptyTrace
	}
	p := plot.New()
	p.Title.Text = "Room temperature"
	p.X.Label.Text = "time (h)"
	p.Y.Label.Text = "temperature (°C)"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	hours := trace.Column(simulation.Sample.Hours)
	series := []struct {
		name  string
		ys    []float64
		color color.Color
		dash  bool
	}{
		{"internal", trace.Column(func(s simulation.Sample) float64 { return s.Temperature }), colorInternal, false},
		{"external", trace.Column(func(s simulation.Sample) float64 { return s.ExternalTemperature }), colorExternal, false},
		{"setpoint", trace.Column(func(s simulation.Sample) float64 { return s.Setpoint }), colorSetpoint, true},
		{"alert", constant(len(trace), limits.AlertAbove), colorAlert, true},
	}
	for _, s := range series {
		if err := addLine(p, s.name, hours, s.ys, s.color, s.dash); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// EffortPlot draws the raw and smoothed CRAC power.
func EffortPlot(trace simulation.Trace) (*plot.Plot, error) {
	if len(trace) == 0 {
		return nil, ErrEmptyTrace
	}
	p := plot.New()
	p.Title.Text = "CRAC power"
	p.X.Label.Text = "time (h)"
	p.Y.Label.Text = "power (%)"
	p.Y.Min, p.Y.Max = 0, 100
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	hours := trace.Column(simulation.Sample.Hours)
	if err := addLine(p, "raw", hours, trace.Column(func(s simulation.Sample) float64 { return s.Raw }), colorRaw, true); err != nil {
		return nil, err
	}
	if err := addLine(p, "smoothed", hours, trace.Column(func(s simulation.Sample) float64 { return s.Control }), colorControl, false); err != nil {
		return nil, err
	}
	return p, nil
}

// MembershipPlot draws every term of v over its universe and marks the operating
// point x.
func MembershipPlot(v *fuzzy.Variable, x float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = v.Name()
	p.X.Label.Text = v.Name()
	p.Y.Label.Text = "membership"
	p.Y.Min, p.Y.Max = 0, 1.05
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	xs := v.Points()
	for i, term := range v.Terms() {
		ys := make([]float64, len(xs))
		for j, xv := range xs {
			ys[j] = term.MF.Degree(xv)
		}
		if err := addLine(p, term.Name, xs, ys, termColors[i%len(termColors)], false); err != nil {
			return nil, err
		}
	}
	x = v.Clamp(x)
	if err := addLine(p, fmt.Sprintf("input %.2f", x), []float64{x, x}, []float64{0, 1.05}, colorSetpoint, true); err != nil {
		return nil, err
	}
	return p, nil
}

// WriteMembershipCharts renders one membership chart per variable of rb into dir,
// marking the matching value of values (missing values mark the universe midpoint).
func WriteMembershipCharts(dir string, rb *fuzzy.RuleBase, values map[string]float64) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	vars := append(rb.Inputs(), rb.Output())
	paths := make([]string, 0, len(vars))
	for _, v := range vars {
		x, ok := values[v.Name()]
		if !ok {
			x = v.Universe().Midpoint()
		}
		p, err := MembershipPlot(v, x)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, MembershipFilePrefix+v.Name()+".png")
		if err := savePNG(path, p); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WritePNG renders p into w.
func WritePNG(w io.Writer, p *plot.Plot) error {
	c := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	p.Draw(draw.New(c))
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// WriteCharts renders both charts into dir and returns the written paths.
func WriteCharts(dir string, trace simulation.Trace, limits simulation.Limits) ([]string, error) {
	temps, err := TemperaturePlot(trace, limits)
	if err != nil {
		return nil, err
	}
	effort, err := EffortPlot(trace)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	charts := []struct {
		name string
		p    *plot.Plot
	}{
		{TemperatureFile, temps},
		{EffortFile, effort},
	}
	paths := make([]string, 0, len(charts))
	for _, ch := range charts {
		path := filepath.Join(dir, ch.name)
		if err := savePNG(path, ch.p); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func savePNG(path string, p *plot.Plot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WritePNG(f, p); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func addLine(p *plot.Plot, name string, xs, ys []float64, c color.Color, dashed bool) error {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s series: %w", name, err)
	}
	line.LineStyle.Color = c
	line.LineStyle.Width = vg.Points(1.5)
	if dashed {
		line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
