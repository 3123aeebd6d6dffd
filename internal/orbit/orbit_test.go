package orbit

import (
	"errors"
	"math"
	"testing"

	"github.com/soniakeys/meeus/v3/kepler"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestEccentricAnomaly(t *testing.T) {
	tests := []struct {
		name string
		M, e float64
	}{
		{"circular", 1.2, 0},
		{"low e", 0.3, 0.001},
		{"moderate e", 2.5, 0.3},
		{"high e near periapsis", 0.05, 0.95},
		{"high e near apoapsis", math.Pi - 0.01, 0.99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			E, err := EccentricAnomaly(tt.M, tt.e)
			if err != nil {
				t.Fatalf("EccentricAnomaly: %v", err)
			}
			residual := E - tt.e*math.Sin(E) - tt.M
			if math.Abs(residual) > 1e-10 {
				t.Errorf("residual = %.3e, want <= 1e-10", residual)
			}
		})
	}
}

// TestEccentricAnomalyAgainstMeeus cross-checks the Newton solver with
// Sinnott's bisection from meeus, which converges for any e < 1.
func TestEccentricAnomalyAgainstMeeus(t *testing.T) {
	for _, e := range []float64{0, 0.1, 0.5, 0.9, 0.99} {
		for _, M := range []float64{0.01, 1, 2.5, math.Pi, 4, 6.2} {
			E, err := EccentricAnomaly(M, e)
			if err != nil {
				t.Fatalf("EccentricAnomaly(%g, %g): %v", M, e, err)
			}
			ref := kepler.Kepler3(e, unit.Angle(M)).Rad()
			// Compare on the circle; the two solvers wrap differently.
			d := math.Atan2(math.Sin(E-ref), math.Cos(E-ref))
			if math.Abs(d) > 1e-9 {
				t.Errorf("E(M=%g, e=%g) = %.12f, meeus = %.12f", M, e, E, ref)
			}
		}
	}
}

func TestConvergenceErrorUnwraps(t *testing.T) {
	err := error(&ConvergenceError{MeanAnomaly: 1, Eccentricity: 0.5, Iterations: 50, Residual: 1e-3})
	if !errors.Is(err, ErrNoConvergence) {
		t.Errorf("errors.Is(ConvergenceError, ErrNoConvergence) = false")
	}
}

func TestStateRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		el   Elements
	}{
		{"LEO eccentric inclined", Elements{SemiMajorAxis: 7000, Eccentricity: 0.01, Inclination: 0.9, RAAN: 1.1, ArgPerigee: 2.3, MeanAnomaly: 0.7}},
		{"molniya", Elements{SemiMajorAxis: 26600, Eccentricity: 0.74, Inclination: 1.1065, RAAN: 4.0, ArgPerigee: 4.71, MeanAnomaly: 3.0}},
		{"sun-synchronous", Elements{SemiMajorAxis: 6878.137, Eccentricity: 0.0012, Inclination: 98 * math.Pi / 180, RAAN: 0.2, ArgPerigee: 5.9, MeanAnomaly: 6.1}},
		{"retrograde", Elements{SemiMajorAxis: 8000, Eccentricity: 0.2, Inclination: 2.8, RAAN: 3.3, ArgPerigee: 0.4, MeanAnomaly: 1.9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, vel, err := ToState(tt.el, MuEarth)
			if err != nil {
				t.Fatalf("ToState: %v", err)
			}
			got, err := FromState(pos, vel, MuEarth)
			if err != nil {
				t.Fatalf("FromState: %v", err)
			}

			checks := []struct {
				field     string
				got, want float64
				tol       float64
			}{
				{"a", got.SemiMajorAxis, tt.el.SemiMajorAxis, 1e-6},
				{"e", got.Eccentricity, tt.el.Eccentricity, 1e-10},
				{"i", got.Inclination, tt.el.Inclination, 1e-10},
				{"raan", got.RAAN, tt.el.RAAN, 1e-9},
				{"argp", got.ArgPerigee, tt.el.ArgPerigee, 1e-7},
				{"M", got.MeanAnomaly, tt.el.MeanAnomaly, 1e-7},
			}
			for _, c := range checks {
				if !scalar.EqualWithinAbs(c.got, c.want, c.tol) {
					t.Errorf("%s = %.12f, want %.12f", c.field, c.got, c.want)
				}
			}
		})
	}
}

func TestCircularEquatorialState(t *testing.T) {
	el := Elements{SemiMajorAxis: 42164, MeanAnomaly: 1.0}
	pos, vel, err := ToState(el, MuEarth)
	if err != nil {
		t.Fatalf("ToState: %v", err)
	}
	if math.Abs(r3.Norm(pos)-42164) > 1e-6 {
		t.Errorf("radius = %.6f, want 42164", r3.Norm(pos))
	}
	if math.Abs(r3.Dot(pos, vel)) > 1e-9 {
		t.Errorf("r·v = %.3e, want 0 for a circular orbit", r3.Dot(pos, vel))
	}

	got, err := FromState(pos, vel, MuEarth)
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	// Undefined angles fold into the true longitude.
	if !scalar.EqualWithinAbs(got.RAAN+got.ArgPerigee+got.MeanAnomaly, 1.0, 1e-9) {
		t.Errorf("true longitude = %.12f, want 1.0", got.RAAN+got.ArgPerigee+got.MeanAnomaly)
	}
}

func TestInvalidOrbits(t *testing.T) {
	tests := []struct {
		name string
		el   Elements
	}{
		{"parabolic", Elements{SemiMajorAxis: 7000, Eccentricity: 1}},
		{"hyperbolic", Elements{SemiMajorAxis: 7000, Eccentricity: 1.5}},
		{"zero axis", Elements{SemiMajorAxis: 0, Eccentricity: 0.1}},
		{"negative axis", Elements{SemiMajorAxis: -7000, Eccentricity: 0.1}},
		{"NaN", Elements{SemiMajorAxis: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ToState(tt.el, MuEarth)
			if !errors.Is(err, ErrInvalidOrbit) {
				t.Errorf("ToState err = %v, want ErrInvalidOrbit", err)
			}
		})
	}
}

func TestFromStateRejects(t *testing.T) {
	tests := []struct {
		name     string
		pos, vel r3.Vec
	}{
		{"radial line", r3.Vec{X: 7000}, r3.Vec{X: 7}},
		{"escape speed", r3.Vec{X: 7000}, r3.Vec{Y: 11.0}},
		{"zero position", r3.Vec{}, r3.Vec{Y: 7}},
		{"NaN velocity", r3.Vec{X: 7000}, r3.Vec{Y: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromState(tt.pos, tt.vel, MuEarth)
			if !errors.Is(err, ErrInvalidOrbit) {
				t.Errorf("FromState err = %v, want ErrInvalidOrbit", err)
			}
		})
	}
}

func TestInvariantsOf(t *testing.T) {
	el := Elements{SemiMajorAxis: 7000, Eccentricity: 0.05, Inclination: 0.5, MeanAnomaly: 2}
	pos, vel, err := ToState(el, MuEarth)
	if err != nil {
		t.Fatalf("ToState: %v", err)
	}
	inv, err := InvariantsOf(pos, vel, MuEarth)
	if err != nil {
		t.Fatalf("InvariantsOf: %v", err)
	}
	wantEnergy := -MuEarth / (2 * el.SemiMajorAxis)
	if RelativeDrift(inv.Energy, wantEnergy) > 1e-12 {
		t.Errorf("energy = %.12f, want %.12f", inv.Energy, wantEnergy)
	}
	wantH := math.Sqrt(MuEarth * el.SemiMajorAxis * (1 - el.Eccentricity*el.Eccentricity))
	if RelativeDrift(inv.AngularMomentum, wantH) > 1e-12 {
		t.Errorf("|h| = %.12f, want %.12f", inv.AngularMomentum, wantH)
	}
}

func BenchmarkToState(b *testing.B) {
	el := Elements{SemiMajorAxis: 6878, Eccentricity: 0.001, Inclination: 1.7, RAAN: 0.3, ArgPerigee: 1.2, MeanAnomaly: 4}
	for i := 0; i < b.N; i++ {
		_, _, _ = ToState(el, MuEarth)
	}
}
