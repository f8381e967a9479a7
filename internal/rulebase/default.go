package rulebase

import "github.com/Agrid-Dev/cracfuzzy/internal/crac"

// Universe bounds of the data-center controller. Earlier tunings used ±5 and ±10 for
// the error universe; ±16 covers the full excursion seen in 24 h runs.
const (
	Samples = 100

	ErrorBound      = 16.0
	DerivativeBound = 2.0

	ExternalMin = 10.0
	ExternalMax = 35.0

	LoadMin = 0.0
	LoadMax = 100.0

	PowerMin = 0.0
	PowerMax = 100.0
)

// Default returns the data-center cooling rule base: error and its derivative drive
// the CRAC power, hot outside air and heavy load push it up, cold outside air pulls
// it down.
func Default() Definition {
	return Definition{
		Inputs: []VariableDef{
			{
				Name: crac.VarError, Min: -ErrorBound, Max: ErrorBound, Samples: Samples,
				Terms: []TermDef{
					{Name: "neg", Shape: []float64{-ErrorBound, -ErrorBound, 0}},
					{Name: "zero", Shape: []float64{-1, 0, 1}},
					{Name: "pos", Shape: []float64{0, ErrorBound, ErrorBound}},
				},
			},
			{
				Name: crac.VarDerivative, Min: -DerivativeBound, Max: DerivativeBound, Samples: Samples,
				Terms: []TermDef{
					{Name: "neg", Shape: []float64{-DerivativeBound, -DerivativeBound, 0}},
					{Name: "zero", Shape: []float64{-0.5, 0, 0.5}},
					{Name: "pos", Shape: []float64{0, DerivativeBound, DerivativeBound}},
				},
			},
			{
				Name: crac.VarExternalTemperature, Min: ExternalMin, Max: ExternalMax, Samples: Samples,
				Terms: []TermDef{
					{Name: "low", Shape: []float64{10, 10, 20}},
					{Name: "medium", Shape: []float64{15, 22, 30}},
					{Name: "high", Shape: []float64{25, 35, 35}},
				},
			},
			{
				Name: crac.VarLoad, Min: LoadMin, Max: LoadMax, Samples: Samples,
				Terms: levels(),
			},
		},
		Output: VariableDef{
			Name: crac.VarPower, Min: PowerMin, Max: PowerMax, Samples: Samples,
			Terms: levels(),
		},
		Rules: []RuleDef{
			errorRule("pos", "pos", "high"),
			errorRule("pos", "zero", "high"),
			errorRule("pos", "neg", "medium"),

			errorRule("zero", "pos", "high"),
			errorRule("zero", "zero", "medium"),
			errorRule("zero", "neg", "low"),

			errorRule("neg", "pos", "medium"),
			errorRule("neg", "zero", "low"),
			errorRule("neg", "neg", "low"),

			single(crac.VarExternalTemperature, "high", "high"),
			single(crac.VarExternalTemperature, "low", "low"),

			single(crac.VarLoad, "high", "high"),
		},
	}
}

// levels is shared by the load and power universes (both 0..100 %).
func levels() []TermDef {
	return []TermDef{
		{Name: "low", Shape: []float64{0, 0, 40}},
		{Name: "medium", Shape: []float64{20, 50, 80}},
		{Name: "high", Shape: []float64{60, 100, 100}},
	}
}

func errorRule(e, de, then string) RuleDef {
	return RuleDef{
		If: []ClauseDef{
			{Variable: crac.VarError, Term: e},
			{Variable: crac.VarDerivative, Term: de},
		},
		Then: then,
	}
}

func single(variable, term, then string) RuleDef {
	return RuleDef{If: []ClauseDef{{Variable: variable, Term: term}}, Then: then}
}
