package simulation

import (
	"math"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sample is one recorded step of the loop. Temperature is the state at the start of
// the minute; Control is the output applied during it.
type Sample struct {
	Minute              int     `json:"minute"`
	Setpoint            float64 `json:"setpoint"`
	Temperature         float64 `json:"temperature"`
	ExternalTemperature float64 `json:"external_temperature"`
	Load                float64 `json:"load"`
	Error               float64 `json:"error"`
	Derivative          float64 `json:"derivative"`
	Raw                 float64 `json:"raw"`
	Control             float64 `json:"control"`
	NoRuleFired         bool    `json:"no_rule_fired,omitempty"`
}

func (s Sample) Hours() float64 {
	return float64(s.Minute) / 60
}

// Trace is the append-only record of a run.
type Trace []Sample

// Limits classify temperatures: above AlertAbove raises an alert, outside
// [ComfortMin, ComfortMax] is out of the comfort band.
type Limits struct {
	AlertAbove float64 `json:"alert_above"`
	ComfortMin float64 `json:"comfort_min"`
	ComfortMax float64 `json:"comfort_max"`
}

func DefaultLimits() Limits {
	return Limits{AlertAbove: 28, ComfortMin: 18, ComfortMax: 26}
}

func (l Limits) Alert(temperature float64) bool {
	return temperature > l.AlertAbove
}

func (l Limits) Comfortable(temperature float64) bool {
	return temperature >= l.ComfortMin && temperature <= l.ComfortMax
}

type Summary struct {
	Steps                 int     `json:"steps"`
	MeanTemperature       float64 `json:"mean_temperature"`
	StdDevTemperature     float64 `json:"stddev_temperature"`
	MinTemperature        float64 `json:"min_temperature"`
	MaxTemperature        float64 `json:"max_temperature"`
	FinalTemperature      float64 `json:"final_temperature"`
	MeanControl           float64 `json:"mean_control"`
	ControlP50            float64 `json:"control_p50"`
	ControlP95            float64 `json:"control_p95"`
	ControlP99            float64 `json:"control_p99"`
	MinutesInAlert        int     `json:"minutes_in_alert"`
	MinutesOutsideComfort int     `json:"minutes_outside_comfort"`
	NoRuleFired           int     `json:"no_rule_fired"`
}

// controlScale keeps two decimals of the control output in the histogram.
const controlScale = 100

// Summary aggregates the trace. An empty trace gives a zero Summary.
func (t Trace) Summary(limits Limits) Summary {
	if len(t) == 0 {
		return Summary{}
	}

	temps := make([]float64, len(t))
	controls := make([]float64, len(t))
	hist := hdrhistogram.New(0, 100*controlScale, 3)
	s := Summary{Steps: len(t), FinalTemperature: t[len(t)-1].Temperature}

	for i, sample := range t {
		temps[i] = sample.Temperature
		controls[i] = sample.Control

		v := int64(math.Round(sample.Control * controlScale))
		_ = hist.RecordValue(min(max(v, 0), 100*controlScale))

		if limits.Alert(sample.Temperature) {
			s.MinutesInAlert++
		}
		if !limits.Comfortable(sample.Temperature) {
			s.MinutesOutsideComfort++
		}
		if sample.NoRuleFired {
			s.NoRuleFired++
		}
	}

	s.MeanTemperature = stat.Mean(temps, nil)
	if len(temps) > 1 {
		s.StdDevTemperature = stat.StdDev(temps, nil)
	}
	s.MinTemperature = floats.Min(temps)
	s.MaxTemperature = floats.Max(temps)
	s.MeanControl = stat.Mean(controls, nil)
	s.ControlP50 = float64(hist.ValueAtQuantile(50)) / controlScale
	s.ControlP95 = float64(hist.ValueAtQuantile(95)) / controlScale
	s.ControlP99 = float64(hist.ValueAtQuantile(99)) / controlScale
	return s
}

// Column extracts one field of every sample, e.g. for plotting.
func (t Trace) Column(field func(Sample) float64) []float64 {
	out := make([]float64, len(t))
	for i, s := range t {
		out[i] = field(s)
	}
	return out
}
