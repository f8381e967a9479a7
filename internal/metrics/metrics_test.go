package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewStationRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStation(reg)

	m.Steps.Inc()
	m.Temperature.Set(23.5)
	m.Alerts.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]bool, len(families))
	for _, f := range families {
		got[f.GetName()] = true
	}
	for _, name := range []string{StepsN, TemperatureN, AlertsN, ControlN, TelemetryDroppedN} {
		if !got[name] {
			t.Errorf("metric %q not gathered", name)
		}
	}
}

func TestNewStationTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewStation(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	NewStation(reg)
}
