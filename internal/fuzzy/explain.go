package fuzzy

import "errors"

type RuleActivation struct {
	Rule     Rule    `json:"rule"`
	Strength float64 `json:"strength"`
}

// Explanation exposes the intermediate steps of one inference, for visualisation.
type Explanation struct {
	Inputs      map[string]float64            `json:"inputs"`
	Memberships map[string]map[string]float64 `json:"memberships"`
	Rules       []RuleActivation              `json:"rules"`
	Set         []Point                       `json:"set"`
	Value       float64                       `json:"value"`
	NoRuleFired bool                          `json:"no_rule_fired"`
}

// Explain runs the same inference as Infer and keeps every intermediate value.
// NoRuleFired is reported through the flag, not as an error.
func (rb *RuleBase) Explain(inputs map[string]float64) (Explanation, error) {
	memberships, err := rb.fuzzify(inputs)
	if err != nil {
		return Explanation{}, err
	}
	strengths := rb.fire(memberships)
	res, err := rb.defuzzify(rb.aggregate(strengths))
	if err != nil && !errors.Is(err, ErrNoRuleFired) {
		return Explanation{}, err
	}

	ex := Explanation{
		Inputs:      make(map[string]float64, len(rb.referred)),
		Memberships: memberships,
		Rules:       make([]RuleActivation, len(rb.rules)),
		Set:         res.Set,
		Value:       res.Value,
		NoRuleFired: err != nil,
	}
	for _, name := range rb.referred {
		ex.Inputs[name] = inputs[name]
	}
	for i, r := range rb.Rules() {
		ex.Rules[i] = RuleActivation{Rule: r, Strength: strengths[i]}
	}
	return ex, nil
}
