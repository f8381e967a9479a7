package simulation

import "math"

// MinutesPerDay is the length of the default horizon, one step per simulated minute.
const MinutesPerDay = 1440

// Profile samples an exogenous input at a given simulated minute. Profiles must be
// pure functions of the minute.
type Profile func(minute float64) float64

func Constant(v float64) Profile {
	return func(float64) float64 { return v }
}

// Sinusoid oscillates around mean with a 24 h period, crossing the mean upwards at
// phaseHour.
func Sinusoid(mean, amplitude, phaseHour float64) Profile {
	return func(minute float64) float64 {
		h := minute / 60
		return mean + amplitude*math.Sin(2*math.Pi*(h-phaseHour)/24)
	}
}

// Band applies Value for hours in [From, To).
type Band struct {
	From  float64 `koanf:"from" json:"from"`
	To    float64 `koanf:"to" json:"to"`
	Value float64 `koanf:"value" json:"value"`
}

// Schedule returns the value of the first band containing the hour of day, or fallback.
func Schedule(fallback float64, bands ...Band) Profile {
	bands = append([]Band(nil), bands...)
	return func(minute float64) float64 {
		h := minute / 60
		for _, b := range bands {
			if h >= b.From && h < b.To {
				return b.Value
			}
		}
		return fallback
	}
}

// Daily wraps the minute into [0, MinutesPerDay) so a day profile repeats.
func Daily(p Profile) Profile {
	if p == nil {
		return nil
	}
	return func(minute float64) float64 {
		return p(math.Mod(minute, MinutesPerDay))
	}
}

// DefaultExternalTemperature is 22 ± 6 °C over the day.
func DefaultExternalTemperature() Profile {
	return Sinusoid(22, 6, 15)
}

// DefaultLoadBands is the data-center occupancy pattern, in % of nominal thermal load.
func DefaultLoadBands() []Band {
	return []Band{
		{From: 8, To: 18, Value: 80},
		{From: 18, To: 23, Value: 60},
		{From: 5, To: 8, Value: 40},
	}
}

const DefaultBaseLoad = 20.0

func DefaultLoad() Profile {
	return Schedule(DefaultBaseLoad, DefaultLoadBands()...)
}
