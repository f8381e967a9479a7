package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
	"github.com/Agrid-Dev/cracfuzzy/internal/plant"
	"github.com/Agrid-Dev/cracfuzzy/internal/rulebase"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func newFuzzyController(t *testing.T) *crac.Controller {
	t.Helper()
	rb, err := rulebase.Default().Build()
	if err != nil {
		t.Fatalf("build rule base: %v", err)
	}
	c, err := crac.New(rb)
	if err != nil {
		t.Fatalf("crac.New() failed: %v", err)
	}
	return c
}

func newTestDriver(t *testing.T, eval Evaluator, opts ...func(*Config)) *Driver {
	t.Helper()
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	model, err := plant.NewModel(plant.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDriver(eval, model, cfg)
	if err != nil {
		t.Fatalf("NewDriver() failed: %v", err)
	}
	return d
}

// recordingEvaluator smooths a fixed raw value and records what it was given.
type recordingEvaluator struct {
	bounds   crac.Bounds
	raw      float64
	failAt   int
	noRuleAt map[int]bool
	inputs   []crac.Inputs
	previous []float64
}

func newRecordingEvaluator() *recordingEvaluator {
	return &recordingEvaluator{
		bounds: crac.Bounds{
			Error:               crac.Range{Min: -16, Max: 16},
			Derivative:          crac.Range{Min: -2, Max: 2},
			ExternalTemperature: crac.Range{Min: 10, Max: 35},
			Load:                crac.Range{Min: 0, Max: 100},
		},
		raw:    60,
		failAt: -1,
	}
}

func (r *recordingEvaluator) Bounds() crac.Bounds { return r.bounds }

func (r *recordingEvaluator) Evaluate(in crac.Inputs, previous float64) (crac.Output, error) {
	call := len(r.inputs)
	r.inputs = append(r.inputs, in)
	r.previous = append(r.previous, previous)
	if call == r.failAt {
		return crac.Output{}, errors.New("boom")
	}
	if r.noRuleAt[call] {
		return crac.Output{Raw: 50, Control: previous, NoRuleFired: true}, nil
	}
	return crac.Output{Raw: r.raw, Control: crac.Smooth(r.raw, previous)}, nil
}

func TestRunFullDay(t *testing.T) {
	d := newTestDriver(t, newFuzzyController(t))

	trace, err := d.Run(context.Background(), Hooks{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(trace) != MinutesPerDay {
		t.Fatalf("expected %d samples, got %d", MinutesPerDay, len(trace))
	}
	for i, s := range trace {
		if s.Minute != i {
			t.Fatalf("sample %d has minute %d", i, s.Minute)
		}
		if !isFinite(s.Temperature) || !isFinite(s.Control) {
			t.Fatalf("sample %d is not finite: %+v", i, s)
		}
		if s.Control < 0 || s.Control > 100 || s.Raw < 0 || s.Raw > 100 {
			t.Fatalf("sample %d output outside universe: %+v", i, s)
		}
	}
	if trace[0].Temperature != DefaultSetpoint {
		t.Fatalf("expected run to start at setpoint, got %v", trace[0].Temperature)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	c := newFuzzyController(t)
	a, err := newTestDriver(t, c).Run(context.Background(), Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestDriver(t, c).Run(context.Background(), Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs diverge at minute %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRunStopsWhenContinueReturnsFalse(t *testing.T) {
	d := newTestDriver(t, newFuzzyController(t))

	var seen int
	trace, err := d.Run(context.Background(), Hooks{
		OnStep:   func(Sample) { seen++ },
		Continue: func(completed int) bool { return completed < 10 },
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(trace) != 10 || seen != 10 {
		t.Fatalf("expected 10 samples and 10 callbacks, got %d and %d", len(trace), seen)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	d := newTestDriver(t, newFuzzyController(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trace, err := d.Run(ctx, Hooks{OnStep: func(s Sample) {
		if s.Minute == 4 {
			cancel()
		}
	}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(trace) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(trace))
	}
}

func TestStepThreadsStateExplicitly(t *testing.T) {
	eval := newRecordingEvaluator()
	d := newTestDriver(t, eval, func(c *Config) {
		c.External = Constant(40) // above the external universe
		c.Load = Constant(50)
	})

	st := State{Temperature: 25, Controller: ControllerState{PreviousOutput: 40, PreviousError: 1}}
	s, next, err := d.Step(7, 22, st)
	if err != nil {
		t.Fatal(err)
	}

	in := eval.inputs[0]
	if in.Error != 3 {
		t.Errorf("error = %v, want 3", in.Error)
	}
	if !almostEqual(in.Derivative, DefaultDerivativeScale*(3-1), 1e-12) {
		t.Errorf("derivative = %v, want %v", in.Derivative, DefaultDerivativeScale*2)
	}
	if in.ExternalTemperature != 35 {
		t.Errorf("external temperature not clamped: %v", in.ExternalTemperature)
	}
	if eval.previous[0] != 40 {
		t.Errorf("previous output = %v, want 40", eval.previous[0])
	}

	wantControl := crac.Smooth(60, 40)
	if s.Control != wantControl || next.Controller.PreviousOutput != wantControl {
		t.Errorf("control = %v / %v, want %v", s.Control, next.Controller.PreviousOutput, wantControl)
	}
	if next.Controller.PreviousError != 3 {
		t.Errorf("next previous error = %v, want 3", next.Controller.PreviousError)
	}
	// the plant sees the raw exogenous value, not the clamped controller input
	if want := plant.Step(25, wantControl, 50, 40); next.Temperature != want {
		t.Errorf("next temperature = %v, want %v", next.Temperature, want)
	}
	if s.Temperature != 25 || s.Minute != 7 || s.ExternalTemperature != 40 {
		t.Errorf("unexpected sample %+v", s)
	}
	if st.Temperature != 25 || st.Controller.PreviousOutput != 40 {
		t.Errorf("input state was mutated: %+v", st)
	}
}

func TestRunContinuesWhenNoRuleFires(t *testing.T) {
	eval := newRecordingEvaluator()
	eval.noRuleAt = map[int]bool{3: true, 4: true}
	d := newTestDriver(t, eval, func(c *Config) { c.Steps = 8 })

	trace, err := d.Run(context.Background(), Hooks{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(trace) != 8 {
		t.Fatalf("expected 8 samples, got %d", len(trace))
	}
	if !trace[3].NoRuleFired || trace[3].Control != trace[2].Control {
		t.Fatalf("expected minute 3 to hold output %v, got %+v", trace[2].Control, trace[3])
	}
	if trace.Summary(DefaultLimits()).NoRuleFired != 2 {
		t.Fatalf("expected 2 NoRuleFired samples")
	}
}

func TestRunReturnsPartialTraceOnEvaluatorError(t *testing.T) {
	eval := newRecordingEvaluator()
	eval.failAt = 3

	trace, err := newTestDriver(t, eval).Run(context.Background(), Hooks{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(trace) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(trace))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative steps", func(c *Config) { c.Steps = -1 }},
		{"zero derivative scale", func(c *Config) { c.DerivativeScale = 0 }},
		{"nan setpoint", func(c *Config) { c.Setpoint = math.NaN() }},
		{"missing load profile", func(c *Config) { c.Load = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	model, _ := plant.NewModel(plant.DefaultParams())
	if _, err := NewDriver(nil, model, DefaultConfig()); !errors.Is(err, ErrMissingModel) {
		t.Fatalf("expected ErrMissingModel, got %v", err)
	}
}

func TestPackageRun(t *testing.T) {
	model, _ := plant.NewModel(plant.DefaultParams())
	cfg := DefaultConfig()
	cfg.Steps = 30

	trace, err := Run(context.Background(), newFuzzyController(t), model, cfg, Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	if len(trace) != 30 {
		t.Fatalf("expected 30 samples, got %d", len(trace))
	}
}
