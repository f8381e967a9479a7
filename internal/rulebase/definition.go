package rulebase

import (
	"errors"
	"fmt"

	"github.com/Agrid-Dev/cracfuzzy/internal/fuzzy"
)

var (
	ErrInvalidShape    = errors.New("membership shape needs exactly 3 vertices")
	ErrUnsupportedFile = errors.New("unsupported rule base file")
)

// Definition is a rule base expressed as data, so universe bounds and rule thresholds
// can change without touching code.
type Definition struct {
	Inputs []VariableDef `toml:"input" yaml:"inputs" json:"inputs"`
	Output VariableDef   `toml:"output" yaml:"output" json:"output"`
	Rules  []RuleDef     `toml:"rule" yaml:"rules" json:"rules"`
}

type VariableDef struct {
	Name    string    `toml:"name" yaml:"name" json:"name"`
	Min     float64   `toml:"min" yaml:"min" json:"min"`
	Max     float64   `toml:"max" yaml:"max" json:"max"`
	Samples int       `toml:"samples" yaml:"samples" json:"samples"`
	Terms   []TermDef `toml:"term" yaml:"terms" json:"terms"`
}

// TermDef holds a triangular shape as [a, b, c].
type TermDef struct {
	Name  string    `toml:"name" yaml:"name" json:"name"`
	Shape []float64 `toml:"shape" yaml:"shape" json:"shape"`
}

type ClauseDef struct {
	Variable string `toml:"variable" yaml:"variable" json:"variable"`
	Term     string `toml:"term" yaml:"term" json:"term"`
}

// RuleDef is one rule; Then names a term of the output variable.
type RuleDef struct {
	If   []ClauseDef `toml:"if" yaml:"if" json:"if"`
	Then string      `toml:"then" yaml:"then" json:"then"`
}

// Build validates the definition and returns an immutable rule base.
func (d Definition) Build() (*fuzzy.RuleBase, error) {
	inputs := make([]*fuzzy.Variable, 0, len(d.Inputs))
	for _, vd := range d.Inputs {
		v, err := vd.build()
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, v)
	}
	output, err := d.Output.build()
	if err != nil {
		return nil, err
	}

	rules := make([]fuzzy.Rule, 0, len(d.Rules))
	for _, rd := range d.Rules {
		r := fuzzy.Rule{Then: fuzzy.Clause{Variable: output.Name(), Term: rd.Then}}
		for _, c := range rd.If {
			r.If = append(r.If, fuzzy.Clause{Variable: c.Variable, Term: c.Term})
		}
		rules = append(rules, r)
	}
	return fuzzy.NewRuleBase(inputs, output, rules)
}

func (vd VariableDef) build() (*fuzzy.Variable, error) {
	terms := make([]fuzzy.Term, 0, len(vd.Terms))
	for _, td := range vd.Terms {
		if len(td.Shape) != 3 {
			return nil, fmt.Errorf("%s.%s: %w, got %d", vd.Name, td.Name, ErrInvalidShape, len(td.Shape))
		}
		terms = append(terms, fuzzy.Term{
			Name: td.Name,
			MF:   fuzzy.Triangle{A: td.Shape[0], B: td.Shape[1], C: td.Shape[2]},
		})
	}
	return fuzzy.NewVariable(vd.Name, fuzzy.Universe{Min: vd.Min, Max: vd.Max, Samples: vd.Samples}, terms...)
}
