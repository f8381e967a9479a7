package fuzzy

import (
	"fmt"
	"math"
)

type Point struct {
	Y      float64 `json:"y"`
	Degree float64 `json:"degree"`
}

// Result is the aggregated output set and its centroid.
type Result struct {
	Set   []Point
	Value float64
}

// Infer runs Mamdani inference: min for AND, clipping for implication, max for
// aggregation and centroid defuzzification.
//
// Every input referenced by a rule must be present and inside its universe. When no
// rule fires, Value is the midpoint of the output universe and ErrNoRuleFired is
// returned alongside the result.
func (rb *RuleBase) Infer(inputs map[string]float64) (Result, error) {
	memberships, err := rb.fuzzify(inputs)
	if err != nil {
		return Result{}, err
	}
	strengths := rb.fire(memberships)
	agg := rb.aggregate(strengths)
	return rb.defuzzify(agg)
}

func (rb *RuleBase) fuzzify(inputs map[string]float64) (map[string]map[string]float64, error) {
	out := make(map[string]map[string]float64, len(rb.referred))
	for _, name := range rb.referred {
		x, ok := inputs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, name)
		}
		v := rb.inputs[name]
		if math.IsNaN(x) || !v.Contains(x) {
			min, max := v.Bounds()
			return nil, fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrOutOfDomainInput, name, x, min, max)
		}
		out[name] = v.Fuzzify(x)
	}
	return out, nil
}

func (rb *RuleBase) fire(memberships map[string]map[string]float64) []float64 {
	strengths := make([]float64, len(rb.rules))
	for i, r := range rb.rules {
		alpha := 1.0
		for _, c := range r.If {
			alpha = math.Min(alpha, memberships[c.Variable][c.Term])
		}
		strengths[i] = alpha
	}
	return strengths
}

func (rb *RuleBase) aggregate(strengths []float64) []float64 {
	agg := make([]float64, len(rb.outputY))
	for i, alpha := range strengths {
		if alpha <= 0 {
			continue
		}
		for j, mu := range rb.sampled[i] {
			if clipped := math.Min(alpha, mu); clipped > agg[j] {
				agg[j] = clipped
			}
		}
	}
	return agg
}

func (rb *RuleBase) defuzzify(agg []float64) (Result, error) {
	set := make([]Point, len(agg))
	var num, den float64
	for j, mu := range agg {
		y := rb.outputY[j]
		set[j] = Point{Y: y, Degree: mu}
		num += y * mu
		den += mu
	}
	if den <= 0 {
		return Result{Set: set, Value: rb.output.Universe().Midpoint()}, ErrNoRuleFired
	}
	return Result{Set: set, Value: num / den}, nil
}
