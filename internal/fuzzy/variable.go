package fuzzy

import (
	"fmt"
	"math"
)

// Universe is the sampled domain of a linguistic variable.
type Universe struct {
	Min     float64
	Max     float64
	Samples int
}

func (u Universe) Validate() error {
	if !finite(u.Min) || !finite(u.Max) || u.Min >= u.Max {
		return fmt.Errorf("%w: want min < max, got [%g, %g]", ErrInvalidUniverse, u.Min, u.Max)
	}
	if u.Samples < 2 {
		return fmt.Errorf("%w: need at least 2 samples, got %d", ErrInvalidUniverse, u.Samples)
	}
	return nil
}

// Points returns Samples evenly spaced values from Min to Max inclusive.
func (u Universe) Points() []float64 {
	pts := make([]float64, u.Samples)
	step := (u.Max - u.Min) / float64(u.Samples-1)
	for i := range pts {
		pts[i] = u.Min + float64(i)*step
	}
	pts[len(pts)-1] = u.Max
	return pts
}

func (u Universe) Midpoint() float64 {
	return u.Min + (u.Max-u.Min)/2
}

type Term struct {
	Name string
	MF   Triangle
}

// Variable is a linguistic variable: a named universe with ordered terms.
// It is immutable once built.
type Variable struct {
	name     string
	universe Universe
	points   []float64
	terms    []Term
	index    map[string]int
}

func NewVariable(name string, u Universe, terms ...Term) (*Variable, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidVariable)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: %q has no terms", ErrInvalidVariable, name)
	}
	v := &Variable{
		name:     name,
		universe: u,
		points:   u.Points(),
		terms:    make([]Term, 0, len(terms)),
		index:    make(map[string]int, len(terms)),
	}
	for _, t := range terms {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: %q has an unnamed term", ErrInvalidVariable, name)
		}
		if _, ok := v.index[t.Name]; ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateTerm, name, t.Name)
		}
		if err := t.MF.Validate(); err != nil {
			return nil, fmt.Errorf("term %s.%s: %w", name, t.Name, err)
		}
		v.index[t.Name] = len(v.terms)
		v.terms = append(v.terms, t)
	}
	return v, nil
}

func (v *Variable) Name() string { return v.name }

func (v *Variable) Universe() Universe { return v.universe }

func (v *Variable) Bounds() (min, max float64) {
	return v.universe.Min, v.universe.Max
}

// Points returns a copy of the sampled universe.
func (v *Variable) Points() []float64 {
	return append([]float64(nil), v.points...)
}

func (v *Variable) Terms() []Term {
	return append([]Term(nil), v.terms...)
}

func (v *Variable) Term(name string) (Triangle, bool) {
	i, ok := v.index[name]
	if !ok {
		return Triangle{}, false
	}
	return v.terms[i].MF, true
}

func (v *Variable) Contains(x float64) bool {
	return x >= v.universe.Min && x <= v.universe.Max
}

// Clamp saturates x to the universe bounds. NaN maps to the midpoint.
func (v *Variable) Clamp(x float64) float64 {
	if math.IsNaN(x) {
		return v.universe.Midpoint()
	}
	return math.Min(math.Max(x, v.universe.Min), v.universe.Max)
}

// Fuzzify returns the degree of x under every term.
func (v *Variable) Fuzzify(x float64) map[string]float64 {
	out := make(map[string]float64, len(v.terms))
	for _, t := range v.terms {
		out[t.Name] = t.MF.Degree(x)
	}
	return out
}
