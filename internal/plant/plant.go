package plant

import "errors"

var (
	ErrInvalidRetention = errors.New("retention must be in [0, 1)")
	ErrNegativeGain     = errors.New("plant gains must be greater or equal to zero")
)

// Params of the first-order discrete thermal model
//
//	T' = Retention*T - ControlGain*control + LoadGain*load + ExternalGain*external + Offset
//
// with one step per simulated minute.
type Params struct {
	Retention    float64 // share of the current temperature kept each step
	ControlGain  float64 // °C removed per % of CRAC power
	LoadGain     float64 // °C added per % of thermal load
	ExternalGain float64 // coupling with the outside temperature
	Offset       float64
}

func DefaultParams() Params {
	return Params{
		Retention:    0.9,
		ControlGain:  0.08,
		LoadGain:     0.05,
		ExternalGain: 0.02,
		Offset:       3.5,
	}
}

func (params *Params) Validate() error {
	if params.Retention < 0 || params.Retention >= 1 {
		return ErrInvalidRetention
	}
	if params.ControlGain < 0 || params.LoadGain < 0 || params.ExternalGain < 0 {
		return ErrNegativeGain
	}
	return nil
}

type Model struct {
	params Params
}

func NewModel(params Params) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Model{params: params}, nil
}

func (m *Model) Params() Params { return m.params }

// Step returns the internal temperature one minute later.
func (m *Model) Step(temperature, control, load, external float64) float64 {
	p := m.params
	return p.Retention*temperature - p.ControlGain*control + p.LoadGain*load + p.ExternalGain*external + p.Offset
}

// Equilibrium is the steady-state temperature for constant inputs.
func (m *Model) Equilibrium(control, load, external float64) float64 {
	p := m.params
	return (-p.ControlGain*control + p.LoadGain*load + p.ExternalGain*external + p.Offset) / (1 - p.Retention)
}

var defaultModel = &Model{params: DefaultParams()}

// Step advances the default data-center model.
func Step(temperature, control, load, external float64) float64 {
	return defaultModel.Step(temperature, control, load, external)
}
