package fuzzy

import (
	"fmt"
	"math"
)

// Triangle is a triangular membership function with feet at A and C and apex at B.
// A == B is a left shoulder, B == C a right shoulder.
type Triangle struct {
	A float64 `json:"a" toml:"a" yaml:"a"`
	B float64 `json:"b" toml:"b" yaml:"b"`
	C float64 `json:"c" toml:"c" yaml:"c"`
}

func (t Triangle) Validate() error {
	if !finite(t.A) || !finite(t.B) || !finite(t.C) {
		return fmt.Errorf("%w: non-finite vertex in %v", ErrInvalidMembershipShape, t)
	}
	if t.A > t.B || t.B > t.C {
		return fmt.Errorf("%w: want a <= b <= c, got %v", ErrInvalidMembershipShape, t)
	}
	return nil
}

// Degree returns the membership of x, always in [0,1].
func (t Triangle) Degree(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case t.A == t.C:
		// crisp singleton
		if x == t.B {
			return 1
		}
		return 0
	case t.A == t.B && x <= t.B:
		return 1
	case t.B == t.C && x >= t.B:
		return 1
	case x <= t.A || x >= t.C:
		return 0
	case x <= t.B:
		return (x - t.A) / (t.B - t.A)
	default:
		return (t.C - x) / (t.C - t.B)
	}
}

func (t Triangle) String() string {
	return fmt.Sprintf("(%g, %g, %g)", t.A, t.B, t.C)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
