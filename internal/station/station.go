package station

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
	"github.com/Agrid-Dev/cracfuzzy/internal/fuzzy"
	"github.com/Agrid-Dev/cracfuzzy/internal/metrics"
	"github.com/Agrid-Dev/cracfuzzy/internal/plant"
	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
)

// MaxSimulationSteps bounds on-demand simulations to one week of minutes.
const MaxSimulationSteps = 7 * simulation.MinutesPerDay

type Snapshot struct {
	Running             bool
	Setpoint            float64
	SetpointMin         float64
	SetpointMax         float64
	Minute              int // minute of the simulated day
	Elapsed             int // minutes stepped since start
	Temperature         float64
	ExternalTemperature float64
	Load                float64
	Raw                 float64
	Control             float64
	NoRuleFired         bool
	Alert               bool
	Comfortable         bool
}

type Params struct {
	Setpoint           float64
	SetpointMin        float64
	SetpointMax        float64
	InitialTemperature float64
	InitialOutput      float64
	DerivativeScale    float64
	External           simulation.Profile
	Load               simulation.Profile
	Limits             simulation.Limits
}

func DefaultParams() Params {
	return Params{
		Setpoint:           simulation.DefaultSetpoint,
		SetpointMin:        16,
		SetpointMax:        28,
		InitialTemperature: simulation.DefaultSetpoint,
		InitialOutput:      simulation.DefaultInitialOutput,
		DerivativeScale:    simulation.DefaultDerivativeScale,
		External:           simulation.DefaultExternalTemperature(),
		Load:               simulation.DefaultLoad(),
		Limits:             simulation.DefaultLimits(),
	}
}

func (p Params) Validate() error {
	if math.IsNaN(p.Setpoint) || math.IsInf(p.Setpoint, 0) {
		return ErrInvalidSetpoint
	}
	if p.SetpointMin > p.SetpointMax {
		return ErrInvalidMinMax
	}
	if p.Setpoint < p.SetpointMin || p.Setpoint > p.SetpointMax {
		return ErrSetpointOutOfRange
	}
	if p.External == nil || p.Load == nil {
		return fmt.Errorf("%w: external temperature and load profiles are required", simulation.ErrInvalidConfig)
	}
	return nil
}

// Observer receives every sample stepped by the live loop. It is called outside the
// station lock and must not block.
type Observer interface {
	Observe(simulation.Sample)
}

type ObserverFunc func(simulation.Sample)

func (f ObserverFunc) Observe(s simulation.Sample) { f(s) }

type Option func(*Station)

func WithObserver(o Observer) Option {
	return func(st *Station) { st.observers = append(st.observers, o) }
}

func WithMetrics(m *metrics.Station) Option {
	return func(st *Station) { st.metrics = m }
}

// Station runs the fuzzy controller against the plant model in real time, one
// simulated minute per tick, and serves the control plane of the outer surfaces.
type Station struct {
	mu     sync.RWMutex
	s      Snapshot
	state  simulation.State
	ctrl   *crac.Controller
	model  *plant.Model
	driver *simulation.Driver
	params Params

	observers []Observer
	metrics   *metrics.Station
}

func New(ctrl *crac.Controller, model *plant.Model, p Params, opts ...Option) (*Station, error) {
	if ctrl == nil || model == nil {
		return nil, ErrMissingController
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	cfg := simulation.Config{
		Setpoint:           p.Setpoint,
		Steps:              simulation.MinutesPerDay,
		InitialTemperature: p.InitialTemperature,
		InitialOutput:      p.InitialOutput,
		DerivativeScale:    p.DerivativeScale,
		External:           simulation.Daily(p.External),
		Load:               simulation.Daily(p.Load),
	}
	driver, err := simulation.NewDriver(ctrl, model, cfg)
	if err != nil {
		return nil, err
	}

	st := &Station{
		ctrl:   ctrl,
		model:  model,
		driver: driver,
		params: p,
		state:  driver.InitialState(),
	}
	st.s = Snapshot{
		Running:             true,
		Setpoint:            p.Setpoint,
		SetpointMin:         p.SetpointMin,
		SetpointMax:         p.SetpointMax,
		Temperature:         p.InitialTemperature,
		ExternalTemperature: cfg.External(0),
		Load:                cfg.Load(0),
		Raw:                 p.InitialOutput,
		Control:             p.InitialOutput,
		Alert:               p.Limits.Alert(p.InitialTemperature),
		Comfortable:         p.Limits.Comfortable(p.InitialTemperature),
	}
	for _, opt := range opts {
		opt(st)
	}
	return st, nil
}

func (st *Station) Get() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

func (st *Station) SetRunning(on bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Running = on
}

func (st *Station) SetSetpoint(sp float64) error {
	if math.IsNaN(sp) || math.IsInf(sp, 0) {
		return ErrInvalidSetpoint
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if sp < st.s.SetpointMin || sp > st.s.SetpointMax {
		return ErrSetpointOutOfRange
	}
	st.s.Setpoint = sp
	return nil
}

// Step advances the loop by one simulated minute. A stopped station returns its
// snapshot unchanged.
func (st *Station) Step() (Snapshot, error) {
	st.mu.Lock()
	if !st.s.Running {
		s := st.s
		st.mu.Unlock()
		return s, nil
	}

	sample, next, err := st.driver.Step(st.s.Minute, st.s.Setpoint, st.state)
	if err != nil {
		s := st.s
		st.mu.Unlock()
		return s, err
	}
	wasAlert := st.s.Alert
	st.state = next
	st.s.Minute = (st.s.Minute + 1) % simulation.MinutesPerDay
	st.s.Elapsed++
	st.s.Temperature = next.Temperature
	st.s.ExternalTemperature = sample.ExternalTemperature
	st.s.Load = sample.Load
	st.s.Raw = sample.Raw
	st.s.Control = sample.Control
	st.s.NoRuleFired = sample.NoRuleFired
	st.s.Alert = st.params.Limits.Alert(next.Temperature)
	st.s.Comfortable = st.params.Limits.Comfortable(next.Temperature)
	s := st.s
	st.mu.Unlock()

	st.record(s, sample, !wasAlert && s.Alert)
	for _, o := range st.observers {
		o.Observe(sample)
	}
	return s, nil
}

func (st *Station) record(s Snapshot, sample simulation.Sample, alertRaised bool) {
	if st.metrics == nil {
		return
	}
	st.metrics.Steps.Inc()
	st.metrics.Temperature.Set(s.Temperature)
	st.metrics.ExternalTemperature.Set(s.ExternalTemperature)
	st.metrics.Load.Set(s.Load)
	st.metrics.Control.Set(s.Control)
	if sample.NoRuleFired {
		st.metrics.NoRuleFired.Inc()
	}
	if alertRaised {
		st.metrics.Alerts.Inc()
	}
}

// Run steps the station on every tick until ctx is done.
func (st *Station) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := st.Step(); err != nil {
				return err
			}
		}
	}
}

// RuleBase is the immutable rule base behind the controller.
func (st *Station) RuleBase() *fuzzy.RuleBase { return st.ctrl.RuleBase() }

// Evaluate runs one stateless controller evaluation.
func (st *Station) Evaluate(in crac.Inputs, previous float64) (crac.Output, error) {
	return st.ctrl.Evaluate(in, previous)
}

func (st *Station) Explain(in crac.Inputs) (fuzzy.Explanation, error) {
	return st.ctrl.Explain(in)
}

// Simulate runs an independent closed-loop simulation from the station's initial
// conditions. The live state is untouched.
func (st *Station) Simulate(ctx context.Context, setpoint float64, steps int) (simulation.Summary, error) {
	if steps <= 0 || steps > MaxSimulationSteps {
		return simulation.Summary{}, fmt.Errorf("%w: got %d, max %d", ErrInvalidSteps, steps, MaxSimulationSteps)
	}
	if math.IsNaN(setpoint) || math.IsInf(setpoint, 0) {
		return simulation.Summary{}, ErrInvalidSetpoint
	}
	cfg := st.driver.Config()
	cfg.Setpoint = setpoint
	cfg.Steps = steps
	trace, err := simulation.Run(ctx, st.ctrl, st.model, cfg, simulation.Hooks{})
	if err != nil {
		return simulation.Summary{}, err
	}
	return trace.Summary(st.params.Limits), nil
}
