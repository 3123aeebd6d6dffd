// Package orbit holds two-body orbital mechanics: classical elements, their
// conversion to and from Cartesian state, and the conserved quantities used
// to check propagators.
package orbit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Earth constants (WGS-84 / EGM-96).
const (
	// MuEarth is the standard gravitational parameter for Earth in km^3/s^2.
	MuEarth = 398600.4418
	// EarthRadius is the WGS-84 equatorial radius in km.
	EarthRadius = 6378.137
	// J2 is Earth's second zonal harmonic.
	J2 = 1.08262668e-3
)

// ErrInvalidOrbit is returned for element sets or states that do not describe
// a closed orbit: e ≥ 1, a ≤ 0, zero angular momentum or non-finite input.
var ErrInvalidOrbit = errors.New("invalid orbit")

// Elements are classical Keplerian elements. Angles are radians.
type Elements struct {
	SemiMajorAxis float64 `json:"a_km"`
	Eccentricity  float64 `json:"e"`
	Inclination   float64 `json:"i_rad"`
	RAAN          float64 `json:"raan_rad"`
	ArgPerigee    float64 `json:"argp_rad"`
	MeanAnomaly   float64 `json:"m_rad"`
}

// Validate rejects element sets that are not closed, finite orbits.
func (el Elements) Validate() error {
	for _, v := range []float64{el.SemiMajorAxis, el.Eccentricity, el.Inclination, el.RAAN, el.ArgPerigee, el.MeanAnomaly} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite element", ErrInvalidOrbit)
		}
	}
	switch {
	case el.SemiMajorAxis <= 0:
		return fmt.Errorf("%w: semi-major axis %.6g km", ErrInvalidOrbit, el.SemiMajorAxis)
	case el.Eccentricity < 0 || el.Eccentricity >= 1:
		return fmt.Errorf("%w: eccentricity %.6g outside [0, 1)", ErrInvalidOrbit, el.Eccentricity)
	case el.Inclination < 0 || el.Inclination > math.Pi:
		return fmt.Errorf("%w: inclination %.6g rad outside [0, π]", ErrInvalidOrbit, el.Inclination)
	}
	return nil
}

// MeanMotion returns the mean motion in rad/s.
func (el Elements) MeanMotion(mu float64) float64 {
	return math.Sqrt(mu / (el.SemiMajorAxis * el.SemiMajorAxis * el.SemiMajorAxis))
}

// Period returns the orbital period in seconds.
func (el Elements) Period(mu float64) float64 {
	return twoPi / el.MeanMotion(mu)
}

// SemiMajorAxisFromMeanMotion converts a mean motion in rad/s to km.
func SemiMajorAxisFromMeanMotion(n, mu float64) float64 {
	return math.Cbrt(mu / (n * n))
}

// ToState converts elements to an inertial position (km) and velocity (km/s).
func ToState(el Elements, mu float64) (r3.Vec, r3.Vec, error) {
	if err := el.Validate(); err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}
	E, err := EccentricAnomaly(el.MeanAnomaly, el.Eccentricity)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}

	a, e := el.SemiMajorAxis, el.Eccentricity
	sinE, cosE := math.Sin(E), math.Cos(E)
	sqrt1e2 := math.Sqrt(1 - e*e)
	r := a * (1 - e*cosE)

	// Perifocal frame.
	xp := a * (cosE - e)
	yp := a * sqrt1e2 * sinE
	k := math.Sqrt(mu*a) / r
	vxp := -k * sinE
	vyp := k * sqrt1e2 * cosE

	P, Q := perifocalAxes(el.RAAN, el.Inclination, el.ArgPerigee)
	pos := r3.Add(r3.Scale(xp, P), r3.Scale(yp, Q))
	vel := r3.Add(r3.Scale(vxp, P), r3.Scale(vyp, Q))
	return pos, vel, nil
}

// perifocalAxes returns the inertial directions of periapsis (P) and of the
// in-plane normal ahead of it (Q), i.e. the columns of R3(-Ω) R1(-i) R3(-ω).
func perifocalAxes(raan, inc, argp float64) (r3.Vec, r3.Vec) {
	cO, sO := math.Cos(raan), math.Sin(raan)
	ci, si := math.Cos(inc), math.Sin(inc)
	cw, sw := math.Cos(argp), math.Sin(argp)

	P := r3.Vec{
		X: cO*cw - sO*sw*ci,
		Y: sO*cw + cO*sw*ci,
		Z: sw * si,
	}
	Q := r3.Vec{
		X: -cO*sw - sO*cw*ci,
		Y: -sO*sw + cO*cw*ci,
		Z: cw * si,
	}
	return P, Q
}

// Thresholds below which an orbit is treated as circular or equatorial.
const (
	circularEps   = 1e-10
	equatorialEps = 1e-10
)

// FromState converts an inertial position (km) and velocity (km/s) to
// classical elements. Circular and equatorial orbits take ω = 0 and Ω = 0
// respectively, folding the undefined angle into the next one.
func FromState(pos, vel r3.Vec, mu float64) (Elements, error) {
	if err := validateState(pos, vel); err != nil {
		return Elements{}, err
	}

	r := r3.Norm(pos)
	v := r3.Norm(vel)
	h := r3.Cross(pos, vel)
	hMag := r3.Norm(h)
	if hMag <= 1e-12*r*v {
		return Elements{}, fmt.Errorf("%w: zero angular momentum", ErrInvalidOrbit)
	}

	energy := v*v/2 - mu/r
	if energy >= 0 {
		return Elements{}, fmt.Errorf("%w: unbound trajectory (energy %.6g km²/s²)", ErrInvalidOrbit, energy)
	}
	a := -mu / (2 * energy)

	eVec := r3.Scale(1/mu, r3.Sub(r3.Scale(v*v-mu/r, pos), r3.Scale(r3.Dot(pos, vel), vel)))
	e := r3.Norm(eVec)
	if e >= 1 {
		return Elements{}, fmt.Errorf("%w: eccentricity %.6g", ErrInvalidOrbit, e)
	}

	inc := math.Acos(clamp(h.Z / hMag))

	// Node vector k × h.
	n := r3.Vec{X: -h.Y, Y: h.X}
	nMag := r3.Norm(n)
	equatorial := nMag <= equatorialEps*hMag
	circular := e <= circularEps

	var raan, argp, nu float64
	if !equatorial {
		raan = NormalizeAngle(math.Atan2(h.X, -h.Y))
	}

	hHat := r3.Scale(1/hMag, h)
	switch {
	case !circular && !equatorial:
		argp = signedAngle(n, eVec, hHat)
		nu = signedAngle(eVec, pos, hHat)
	case !circular && equatorial:
		// Longitude of periapsis.
		argp = signedAngle(r3.Vec{X: 1}, eVec, hHat)
		nu = signedAngle(eVec, pos, hHat)
	case circular && !equatorial:
		// Argument of latitude.
		nu = signedAngle(n, pos, hHat)
	default:
		// True longitude.
		nu = signedAngle(r3.Vec{X: 1}, pos, hHat)
	}

	M := MeanAnomalyFromEccentric(EccentricFromTrue(nu, e), e)
	return Elements{
		SemiMajorAxis: a,
		Eccentricity:  e,
		Inclination:   inc,
		RAAN:          raan,
		ArgPerigee:    NormalizeAngle(argp),
		MeanAnomaly:   M,
	}, nil
}

// signedAngle returns the angle from a to b measured counterclockwise about axis.
func signedAngle(a, b, axis r3.Vec) float64 {
	return NormalizeAngle(math.Atan2(r3.Dot(r3.Cross(a, b), axis), r3.Dot(a, b)))
}

func validateState(pos, vel r3.Vec) error {
	for _, c := range [6]float64{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: non-finite state component", ErrInvalidOrbit)
		}
	}
	if r3.Norm(pos) == 0 {
		return fmt.Errorf("%w: zero position vector", ErrInvalidOrbit)
	}
	return nil
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
