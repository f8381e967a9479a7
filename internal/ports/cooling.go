package ports

import (
	"context"

	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
	"github.com/Agrid-Dev/cracfuzzy/internal/fuzzy"
	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
	"github.com/Agrid-Dev/cracfuzzy/internal/station"
)

// StationService is the control-plane port used by controllers (HTTP/MQTT/Modbus).
type StationService interface {
	Get() station.Snapshot
	SetRunning(bool)
	SetSetpoint(float64) error
}

// CoolingService adds the on-demand controller operations exposed over HTTP.
type CoolingService interface {
	StationService
	Evaluate(in crac.Inputs, previous float64) (crac.Output, error)
	Explain(in crac.Inputs) (fuzzy.Explanation, error)
	RuleBase() *fuzzy.RuleBase
	Simulate(ctx context.Context, setpoint float64, steps int) (simulation.Summary, error)
}
