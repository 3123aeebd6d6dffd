package propagation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/tle"
)

// secular holds the constants of the analytic mean-element model: the
// elements at epoch and the rates applied to them.
type secular struct {
	el      orbit.Elements
	n0      float64 // rad/s
	raanDot float64 // rad/s
	argpDot float64 // rad/s
	mDot    float64 // rad/s

	// Drag terms from the mean motion derivatives.
	drag  bool
	nDot  float64 // ṅ, rad/s²
	nDDot float64 // n̈, rad/s³
}

const (
	secondsPerDay = 86400.0
	revToRad      = 2 * math.Pi
)

// newSecularFromElements derives the model constants for a TLE element set.
func newSecularFromElements(es tle.ElementSet, pert Perturbations) (*secular, error) {
	s, err := newSecular(es.Elements(), pert)
	if err != nil {
		return nil, fmt.Errorf("catalog %d: %w", es.CatalogNumber, err)
	}
	if pert.Drag {
		// The element text carries ṅ/2 and n̈/6.
		s.drag = true
		s.nDot = 2 * es.MeanMotionDot * revToRad / (secondsPerDay * secondsPerDay)
		s.nDDot = 6 * es.MeanMotionDDot * revToRad / (secondsPerDay * secondsPerDay * secondsPerDay)
	}
	return s, nil
}

// newSecular computes secular rates for mean elements. With J2 the node
// regresses, the perigee rotates and the mean motion is corrected
// (Vallado Eq. 9-41).
func newSecular(el orbit.Elements, pert Perturbations) (*secular, error) {
	if err := el.Validate(); err != nil {
		return nil, err
	}
	n0 := el.MeanMotion(orbit.MuEarth)
	s := &secular{el: el, n0: n0, mDot: n0}

	if pert.J2 {
		e2 := el.Eccentricity * el.Eccentricity
		p := el.SemiMajorAxis * (1 - e2)
		k := 1.5 * orbit.J2 * (orbit.EarthRadius / p) * (orbit.EarthRadius / p) * n0
		sinI := math.Sin(el.Inclination)
		sin2 := sinI * sinI

		s.raanDot = -k * math.Cos(el.Inclination)
		s.argpDot = k * (2 - 2.5*sin2)
		s.mDot = n0 + k*math.Sqrt(1-e2)*(1-1.5*sin2)
	}
	return s, nil
}

// at returns the inertial state dt seconds after the element epoch.
func (s *secular) at(dt float64) (r3.Vec, r3.Vec, error) {
	el := s.el
	el.RAAN = orbit.NormalizeAngle(el.RAAN + s.raanDot*dt)
	el.ArgPerigee = orbit.NormalizeAngle(el.ArgPerigee + s.argpDot*dt)
	M := el.MeanAnomaly + s.mDot*dt

	if s.drag {
		M += s.nDot/2*dt*dt + s.nDDot/6*dt*dt*dt
		n := s.n0 + s.nDot*dt + s.nDDot/2*dt*dt
		if n <= 0 {
			return r3.Vec{}, r3.Vec{}, fmt.Errorf("%w: mean motion decayed to %.3e rad/s after %.0f s", ErrInvalidOrbit, n, dt)
		}
		el.SemiMajorAxis = orbit.SemiMajorAxisFromMeanMotion(n, orbit.MuEarth)
	}
	el.MeanAnomaly = orbit.NormalizeAngle(M)

	return orbit.ToState(el, orbit.MuEarth)
}
