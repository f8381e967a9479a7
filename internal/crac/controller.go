package crac

import (
	"errors"
	"fmt"
	"math"

	"github.com/Agrid-Dev/cracfuzzy/internal/fuzzy"
)

// Linguistic variable names the controller expects from its rule base.
const (
	VarError               = "error"
	VarDerivative          = "derivative"
	VarExternalTemperature = "external_temperature"
	VarLoad                = "load"
	VarPower               = "crac_power"
)

// Smoothing weights: the controller keeps 70% of its previous output and adopts 30%
// of the fresh defuzzified value.
const (
	RetentionWeight = 0.7
	AdoptionWeight  = 0.3
)

// ManualAlertError is the temperature error above which a one-off evaluation flags the
// room as too hot.
const ManualAlertError = 3.0

var ErrMissingVariable = errors.New("rule base lacks a controller variable")

type Inputs struct {
	Error               float64 `json:"error"`
	Derivative          float64 `json:"derivative"`
	ExternalTemperature float64 `json:"external_temperature"`
	Load                float64 `json:"load"`
}

func (in Inputs) values() map[string]float64 {
	return map[string]float64{
		VarError:               in.Error,
		VarDerivative:          in.Derivative,
		VarExternalTemperature: in.ExternalTemperature,
		VarLoad:                in.Load,
	}
}

type Output struct {
	Raw         float64 `json:"raw"`
	Control     float64 `json:"control"`
	NoRuleFired bool    `json:"no_rule_fired"`
}

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Clamp(x float64) float64 {
	if math.IsNaN(x) {
		return r.Min + (r.Max-r.Min)/2
	}
	return math.Min(math.Max(x, r.Min), r.Max)
}

// Bounds are the universe limits of every controller input.
type Bounds struct {
	Error               Range `json:"error"`
	Derivative          Range `json:"derivative"`
	ExternalTemperature Range `json:"external_temperature"`
	Load                Range `json:"load"`
}

// Clamp saturates every input to its universe.
func (b Bounds) Clamp(in Inputs) Inputs {
	return Inputs{
		Error:               b.Error.Clamp(in.Error),
		Derivative:          b.Derivative.Clamp(in.Derivative),
		ExternalTemperature: b.ExternalTemperature.Clamp(in.ExternalTemperature),
		Load:                b.Load.Clamp(in.Load),
	}
}

// Smooth blends a fresh defuzzified value into the previous controller output.
func Smooth(raw, previous float64) float64 {
	return RetentionWeight*previous + AdoptionWeight*raw
}

// Controller is the MISO fuzzy controller. It carries no state between calls: the
// previous output is passed in by the caller on every evaluation.
type Controller struct {
	rb     *fuzzy.RuleBase
	bounds Bounds
	power  Range
}

func New(rb *fuzzy.RuleBase) (*Controller, error) {
	if rb == nil {
		return nil, fmt.Errorf("%w: nil rule base", ErrMissingVariable)
	}
	c := &Controller{rb: rb}
	for name, dst := range map[string]*Range{
		VarError:               &c.bounds.Error,
		VarDerivative:          &c.bounds.Derivative,
		VarExternalTemperature: &c.bounds.ExternalTemperature,
		VarLoad:                &c.bounds.Load,
	} {
		v, ok := rb.Input(name)
		if !ok {
			return nil, fmt.Errorf("%w: input %q", ErrMissingVariable, name)
		}
		dst.Min, dst.Max = v.Bounds()
	}
	if rb.Output().Name() != VarPower {
		return nil, fmt.Errorf("%w: output %q, got %q", ErrMissingVariable, VarPower, rb.Output().Name())
	}
	c.power.Min, c.power.Max = rb.Output().Bounds()
	return c, nil
}

func (c *Controller) Bounds() Bounds { return c.bounds }

// PowerRange is the output universe.
func (c *Controller) PowerRange() Range { return c.power }

func (c *Controller) RuleBase() *fuzzy.RuleBase { return c.rb }

// Evaluate clamps the inputs, runs inference and smooths the result against previous.
// When no rule fires the previous output is held and NoRuleFired is set.
func (c *Controller) Evaluate(in Inputs, previous float64) (Output, error) {
	res, err := c.rb.Infer(c.bounds.Clamp(in).values())
	switch {
	case errors.Is(err, fuzzy.ErrNoRuleFired):
		return Output{Raw: res.Value, Control: previous, NoRuleFired: true}, nil
	case err != nil:
		return Output{}, err
	}
	return Output{Raw: res.Value, Control: Smooth(res.Value, previous)}, nil
}

// Explain returns the intermediate inference values for the clamped inputs.
func (c *Controller) Explain(in Inputs) (fuzzy.Explanation, error) {
	return c.rb.Explain(c.bounds.Clamp(in).values())
}
