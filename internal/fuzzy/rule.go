package fuzzy

import (
	"fmt"
	"strings"
)

// Clause refers to one term of one variable, e.g. error IS pos.
type Clause struct {
	Variable string `json:"variable"`
	Term     string `json:"term"`
}

func (c Clause) String() string {
	return c.Variable + " is " + c.Term
}

// Rule combines its antecedents with AND (min) and implies a single consequent.
type Rule struct {
	If   []Clause `json:"if"`
	Then Clause   `json:"then"`
}

func (r Rule) String() string {
	parts := make([]string, len(r.If))
	for i, c := range r.If {
		parts[i] = c.String()
	}
	return "if " + strings.Join(parts, " and ") + " then " + r.Then.String()
}

// RuleBase is an immutable Mamdani rule base over a set of input variables and one
// output variable. It holds no per-call state and may be shared between goroutines.
type RuleBase struct {
	inputs   map[string]*Variable
	order    []string
	output   *Variable
	outputY  []float64
	rules    []Rule
	sampled  [][]float64 // consequent MF sampled over the output universe, per rule
	referred []string    // input variables used by at least one rule, in declaration order
}

func NewRuleBase(inputs []*Variable, output *Variable, rules []Rule) (*RuleBase, error) {
	if output == nil {
		return nil, fmt.Errorf("%w: missing output variable", ErrInvalidRule)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: rule base is empty", ErrInvalidRule)
	}
	rb := &RuleBase{
		inputs:  make(map[string]*Variable, len(inputs)),
		output:  output,
		outputY: output.Points(),
	}
	for _, v := range inputs {
		if v == nil {
			return nil, fmt.Errorf("%w: nil input variable", ErrInvalidVariable)
		}
		if _, ok := rb.inputs[v.Name()]; ok || v.Name() == output.Name() {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVariable, v.Name())
		}
		rb.inputs[v.Name()] = v
		rb.order = append(rb.order, v.Name())
	}

	used := make(map[string]bool)
	for i, r := range rules {
		if len(r.If) == 0 {
			return nil, fmt.Errorf("%w: rule %d has no antecedent", ErrInvalidRule, i)
		}
		for _, c := range r.If {
			v, ok := rb.inputs[c.Variable]
			if !ok {
				return nil, fmt.Errorf("rule %d: %w: %q", i, ErrUnknownVariable, c.Variable)
			}
			if _, ok := v.Term(c.Term); !ok {
				return nil, fmt.Errorf("rule %d: %w: %s.%s", i, ErrUnknownTerm, c.Variable, c.Term)
			}
			used[c.Variable] = true
		}
		if r.Then.Variable != output.Name() {
			return nil, fmt.Errorf("rule %d: %w: consequent must target %q, got %q",
				i, ErrUnknownVariable, output.Name(), r.Then.Variable)
		}
		mf, ok := output.Term(r.Then.Term)
		if !ok {
			return nil, fmt.Errorf("rule %d: %w: %s.%s", i, ErrUnknownTerm, r.Then.Variable, r.Then.Term)
		}

		samples := make([]float64, len(rb.outputY))
		for j, y := range rb.outputY {
			samples[j] = mf.Degree(y)
		}
		rb.rules = append(rb.rules, Rule{If: append([]Clause(nil), r.If...), Then: r.Then})
		rb.sampled = append(rb.sampled, samples)
	}
	for _, name := range rb.order {
		if used[name] {
			rb.referred = append(rb.referred, name)
		}
	}
	return rb, nil
}

// Rules returns a copy of the rules in rule-base order.
func (rb *RuleBase) Rules() []Rule {
	out := make([]Rule, len(rb.rules))
	for i, r := range rb.rules {
		out[i] = Rule{If: append([]Clause(nil), r.If...), Then: r.Then}
	}
	return out
}

func (rb *RuleBase) Input(name string) (*Variable, bool) {
	v, ok := rb.inputs[name]
	return v, ok
}

// Inputs returns the input variables in declaration order.
func (rb *RuleBase) Inputs() []*Variable {
	out := make([]*Variable, len(rb.order))
	for i, name := range rb.order {
		out[i] = rb.inputs[name]
	}
	return out
}

func (rb *RuleBase) Output() *Variable { return rb.output }
