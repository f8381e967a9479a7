package simulation

import (
	"context"
	"fmt"
	"math"

	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
)

const (
	DefaultSetpoint      = 22.0
	DefaultInitialOutput = 50.0

	// DefaultDerivativeScale halves the per-minute error change before it reaches the
	// controller. Some tunings used 1.0; 0.5 keeps the derivative inside its ±2 universe
	// for the default plant.
	DefaultDerivativeScale = 0.5
)

// Evaluator computes the control output from clamped inputs and the previous output.
type Evaluator interface {
	Bounds() crac.Bounds
	Evaluate(in crac.Inputs, previous float64) (crac.Output, error)
}

// Plant advances the thermal state by one step.
type Plant interface {
	Step(temperature, control, load, external float64) float64
}

type Config struct {
	Setpoint           float64
	Steps              int
	InitialTemperature float64
	InitialOutput      float64
	DerivativeScale    float64
	External           Profile
	Load               Profile
}

func DefaultConfig() Config {
	return Config{
		Setpoint:           DefaultSetpoint,
		Steps:              MinutesPerDay,
		InitialTemperature: DefaultSetpoint,
		InitialOutput:      DefaultInitialOutput,
		DerivativeScale:    DefaultDerivativeScale,
		External:           DefaultExternalTemperature(),
		Load:               DefaultLoad(),
	}
}

func (c Config) Validate() error {
	switch {
	case c.Steps < 0:
		return fmt.Errorf("%w: negative step count %d", ErrInvalidConfig, c.Steps)
	case !isFinite(c.Setpoint) || !isFinite(c.InitialTemperature) || !isFinite(c.InitialOutput):
		return fmt.Errorf("%w: non-finite setpoint or initial state", ErrInvalidConfig)
	case !isFinite(c.DerivativeScale) || c.DerivativeScale <= 0:
		return fmt.Errorf("%w: derivative scale must be > 0, got %g", ErrInvalidConfig, c.DerivativeScale)
	case c.External == nil || c.Load == nil:
		return fmt.Errorf("%w: external temperature and load profiles are required", ErrInvalidConfig)
	}
	return nil
}

// ControllerState is the controller memory threaded from one step to the next.
type ControllerState struct {
	PreviousOutput float64 `json:"previous_output"`
	PreviousError  float64 `json:"previous_error"`
}

type State struct {
	Temperature float64         `json:"temperature"`
	Controller  ControllerState `json:"controller"`
}

// Hooks are optional callbacks evaluated once per step. Continue receives the number
// of completed steps; returning false ends the run with the partial trace.
type Hooks struct {
	OnStep   func(Sample)
	Continue func(completed int) bool
}

// Driver runs the closed loop: profiles -> controller -> plant.
type Driver struct {
	eval  Evaluator
	plant Plant
	cfg   Config
}

func NewDriver(eval Evaluator, p Plant, cfg Config) (*Driver, error) {
	if eval == nil || p == nil {
		return nil, ErrMissingModel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Driver{eval: eval, plant: p, cfg: cfg}, nil
}

func (d *Driver) Config() Config { return d.cfg }

func (d *Driver) InitialState() State {
	return State{
		Temperature: d.cfg.InitialTemperature,
		Controller:  ControllerState{PreviousOutput: d.cfg.InitialOutput},
	}
}

// Step computes one minute of the loop. It never mutates st; the next state is returned.
// A step where no rule fired is not an error: the controller holds its output.
func (d *Driver) Step(minute int, setpoint float64, st State) (Sample, State, error) {
	m := float64(minute)
	external := d.cfg.External(m)
	load := d.cfg.Load(m)

	e := st.Temperature - setpoint
	de := d.cfg.DerivativeScale * (e - st.Controller.PreviousError)

	in := d.eval.Bounds().Clamp(crac.Inputs{
		Error:               e,
		Derivative:          de,
		ExternalTemperature: external,
		Load:                load,
	})
	out, err := d.eval.Evaluate(in, st.Controller.PreviousOutput)
	if err != nil {
		return Sample{}, st, fmt.Errorf("minute %d: %w", minute, err)
	}

	next := State{
		Temperature: d.plant.Step(st.Temperature, out.Control, load, external),
		Controller: ControllerState{
			PreviousOutput: out.Control,
			PreviousError:  e,
		},
	}
	return Sample{
		Minute:              minute,
		Setpoint:            setpoint,
		Temperature:         st.Temperature,
		ExternalTemperature: external,
		Load:                load,
		Error:               e,
		Derivative:          de,
		Raw:                 out.Raw,
		Control:             out.Control,
		NoRuleFired:         out.NoRuleFired,
	}, next, nil
}

// Run executes cfg.Steps steps. Cancellation, through ctx or hooks.Continue, is
// checked before each step and returns the samples recorded so far.
func (d *Driver) Run(ctx context.Context, hooks Hooks) (Trace, error) {
	trace := make(Trace, 0, d.cfg.Steps)
	st := d.InitialState()

	for minute := 0; minute < d.cfg.Steps; minute++ {
		if hooks.Continue != nil && !hooks.Continue(len(trace)) {
			return trace, nil
		}
		select {
		case <-ctx.Done():
			return trace, ctx.Err()
		default:
		}

		s, next, err := d.Step(minute, d.cfg.Setpoint, st)
		if err != nil {
			return trace, err
		}
		trace = append(trace, s)
		if hooks.OnStep != nil {
			hooks.OnStep(s)
		}
		st = next
	}
	return trace, nil
}

// Run builds a driver and runs it once.
func Run(ctx context.Context, eval Evaluator, p Plant, cfg Config, hooks Hooks) (Trace, error) {
	d, err := NewDriver(eval, p, cfg)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx, hooks)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
