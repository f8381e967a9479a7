package testutil

import (
	"context"
	"sync"

	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
	"github.com/Agrid-Dev/cracfuzzy/internal/fuzzy"
	"github.com/Agrid-Dev/cracfuzzy/internal/rulebase"
	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
	"github.com/Agrid-Dev/cracfuzzy/internal/station"
)

// FakeCoolingService is a reusable fake implementing ports.CoolingService.
// Put ONLY what multiple test packages need here.
type FakeCoolingService struct {
	mu sync.Mutex
	S  station.Snapshot

	SetRunningCalled bool
	SetRunningArg    bool

	SetSetpointCalled bool
	SetSetpointArg    float64
	SetSetpointErr    error

	EvaluateArg      crac.Inputs
	EvaluatePrevious float64
	EvaluateOut      crac.Output
	EvaluateErr      error

	ExplainArg crac.Inputs
	ExplainOut fuzzy.Explanation
	ExplainErr error

	RuleBaseOut *fuzzy.RuleBase

	SimulateSetpoint float64
	SimulateSteps    int
	SimulateOut      simulation.Summary
	SimulateErr      error
}

// NewFakeCoolingService returns a fake serving the built-in rule base.
func NewFakeCoolingService() *FakeCoolingService {
	rb, err := rulebase.Default().Build()
	if err != nil {
		panic(err)
	}
	return &FakeCoolingService{
		RuleBaseOut: rb,
		S: station.Snapshot{
			Running:             true,
			Setpoint:            22,
			SetpointMin:         16,
			SetpointMax:         28,
			Minute:              600,
			Elapsed:             600,
			Temperature:         23.5,
			ExternalTemperature: 25,
			Load:                80,
			Raw:                 71.25,
			Control:             64.5,
			Comfortable:         true,
		},
	}
}

func (f *FakeCoolingService) Get() station.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.S
}

// Set replaces the snapshot returned by Get.
func (f *FakeCoolingService) Set(s station.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.S = s
}

func (f *FakeCoolingService) SetRunning(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetRunningCalled = true
	f.SetRunningArg = b
	f.S.Running = b
}

func (f *FakeCoolingService) SetSetpoint(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetSetpointCalled = true
	f.SetSetpointArg = v
	if f.SetSetpointErr != nil {
		return f.SetSetpointErr
	}
	f.S.Setpoint = v
	return nil
}

func (f *FakeCoolingService) Evaluate(in crac.Inputs, previous float64) (crac.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EvaluateArg = in
	f.EvaluatePrevious = previous
	return f.EvaluateOut, f.EvaluateErr
}

func (f *FakeCoolingService) Explain(in crac.Inputs) (fuzzy.Explanation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExplainArg = in
	return f.ExplainOut, f.ExplainErr
}

func (f *FakeCoolingService) RuleBase() *fuzzy.RuleBase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.RuleBaseOut
}

func (f *FakeCoolingService) Simulate(_ context.Context, setpoint float64, steps int) (simulation.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SimulateSetpoint = setpoint
	f.SimulateSteps = steps
	return f.SimulateOut, f.SimulateErr
}
