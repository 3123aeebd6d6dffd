package orbit

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Invariants are the quantities two-body motion conserves.
type Invariants struct {
	Energy          float64  `json:"energy_km2s2"` // specific orbital energy
	AngularMomentum float64  `json:"h_km2s"`       // |r × v|
	Elements        Elements `json:"elements"`
}

// Energy returns the specific orbital energy v²/2 - μ/r in km²/s².
func Energy(pos, vel r3.Vec, mu float64) float64 {
	v := r3.Norm(vel)
	return v*v/2 - mu/r3.Norm(pos)
}

// AngularMomentum returns the specific angular momentum vector r × v.
func AngularMomentum(pos, vel r3.Vec) r3.Vec {
	return r3.Cross(pos, vel)
}

// InvariantsOf derives the conserved quantities and osculating elements of a state.
func InvariantsOf(pos, vel r3.Vec, mu float64) (Invariants, error) {
	el, err := FromState(pos, vel, mu)
	if err != nil {
		return Invariants{}, err
	}
	return Invariants{
		Energy:          Energy(pos, vel, mu),
		AngularMomentum: r3.Norm(AngularMomentum(pos, vel)),
		Elements:        el,
	}, nil
}

// RelativeDrift returns |a-b| / |b|, or |a-b| when b is zero.
func RelativeDrift(a, b float64) float64 {
	if b == 0 {
		return math.Abs(a - b)
	}
	return math.Abs((a - b) / b)
}
