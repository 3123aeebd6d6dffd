// Package transform provides time scales and coordinate frame transformations.
//
// The inertial frame is TEME (True Equator Mean Equinox), the frame SGP4 and
// the analytic propagators produce. The Earth-fixed frame is reached with a
// GMST-only rotation (TEME → PEF ≈ ECEF), ignoring polar motion and the
// equation of the equinoxes, which introduces ~50m error at most. The
// topocentric frame is SEZ (South, East, Zenith) at a ground site.
//
// Distances are km, velocities km/s, angles radians unless a name says Deg.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3-4.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnsupportedFrame is returned for frame conversions that cannot be performed.
var ErrUnsupportedFrame = errors.New("unsupported frame conversion")

// Frame identifies the reference frame a state is expressed in.
type Frame uint8

const (
	FrameInertial Frame = iota + 1
	FrameEarthFixed
	FrameTopocentric
)

func (f Frame) String() string {
	switch f {
	case FrameInertial:
		return "inertial"
	case FrameEarthFixed:
		return "earth-fixed"
	case FrameTopocentric:
		return "topocentric"
	default:
		return fmt.Sprintf("Frame(%d)", uint8(f))
	}
}

// ParseFrame accepts the names produced by Frame.String.
func ParseFrame(s string) (Frame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inertial", "teme", "eci":
		return FrameInertial, nil
	case "earth-fixed", "ecef":
		return FrameEarthFixed, nil
	case "topocentric", "sez":
		return FrameTopocentric, nil
	}
	return 0, fmt.Errorf("%w: unknown frame %q", ErrUnsupportedFrame, s)
}

func (f Frame) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Frame) UnmarshalText(b []byte) error {
	v, err := ParseFrame(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// StateVector is a position and velocity at an epoch in a named frame.
type StateVector struct {
	Epoch    Epoch  `json:"epoch"`
	Position r3.Vec `json:"position_km"`
	Velocity r3.Vec `json:"velocity_kms"`
	Frame    Frame  `json:"frame"`
}

// Finite reports whether every component of the state is a finite number.
func (sv StateVector) Finite() bool {
	for _, c := range [6]float64{
		sv.Position.X, sv.Position.Y, sv.Position.Z,
		sv.Velocity.X, sv.Velocity.Y, sv.Velocity.Z,
	} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// In returns the state expressed in frame to. site is required when either
// side is topocentric.
func (sv StateVector) In(to Frame, site *Site) (StateVector, error) {
	pos, vel, err := Transform(sv.Position, sv.Velocity, sv.Frame, to, sv.Epoch, site)
	if err != nil {
		return StateVector{}, err
	}
	return StateVector{Epoch: sv.Epoch, Position: pos, Velocity: vel, Frame: to}, nil
}

// Transform converts a position/velocity pair between frames at epoch at.
//
// Inertial → Earth-fixed:
//
//	r_ECEF = R3(θ) * r_TEME
//	v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
//
// where θ is GMST and ω = [0, 0, ω_earth].
func Transform(pos, vel r3.Vec, from, to Frame, at Epoch, site *Site) (r3.Vec, r3.Vec, error) {
	if from == to {
		return pos, vel, nil
	}
	if (from == FrameTopocentric || to == FrameTopocentric) && site == nil {
		return r3.Vec{}, r3.Vec{}, fmt.Errorf("%w: %s to %s needs a ground site", ErrUnsupportedFrame, from, to)
	}

	// Route everything through Earth-fixed.
	var err error
	switch from {
	case FrameInertial:
		pos, vel, err = inertialToEarthFixed(pos, vel, at)
	case FrameTopocentric:
		pos, vel = site.fromSEZ(pos), site.rotateFromSEZ(vel)
	case FrameEarthFixed:
	default:
		err = fmt.Errorf("%w: from %s", ErrUnsupportedFrame, from)
	}
	if err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}

	switch to {
	case FrameEarthFixed:
		return pos, vel, nil
	case FrameInertial:
		return earthFixedToInertial(pos, vel, at)
	case FrameTopocentric:
		return site.toSEZ(pos), site.rotateToSEZ(vel), nil
	}
	return r3.Vec{}, r3.Vec{}, fmt.Errorf("%w: to %s", ErrUnsupportedFrame, to)
}

func inertialToEarthFixed(pos, vel r3.Vec, at Epoch) (r3.Vec, r3.Vec, error) {
	gmst, err := EarthRotation(at)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}
	p, v := InertialToEarthFixedWithGMST(pos, vel, gmst)
	return p, v, nil
}

func earthFixedToInertial(pos, vel r3.Vec, at Epoch) (r3.Vec, r3.Vec, error) {
	gmst, err := EarthRotation(at)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}
	p, v := EarthFixedToInertialWithGMST(pos, vel, gmst)
	return p, v, nil
}

// InertialToEarthFixedWithGMST rotates TEME into ECEF using a precomputed
// GMST angle (radians). Useful when many objects share an epoch.
func InertialToEarthFixedWithGMST(pos, vel r3.Vec, gmst float64) (r3.Vec, r3.Vec) {
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)

	p := r3.Vec{
		X: pos.X*cosG + pos.Y*sinG,
		Y: -pos.X*sinG + pos.Y*cosG,
		Z: pos.Z,
	}

	// ω × r_ECEF = [-ω*y_ECEF, ω*x_ECEF, 0]
	v := r3.Vec{
		X: vel.X*cosG + vel.Y*sinG + OmegaEarth*p.Y,
		Y: -vel.X*sinG + vel.Y*cosG - OmegaEarth*p.X,
		Z: vel.Z,
	}
	return p, v
}

// EarthFixedToInertialWithGMST is the inverse of InertialToEarthFixedWithGMST.
func EarthFixedToInertialWithGMST(pos, vel r3.Vec, gmst float64) (r3.Vec, r3.Vec) {
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)

	// Undo the rotation term before rotating back.
	vx := vel.X - OmegaEarth*pos.Y
	vy := vel.Y + OmegaEarth*pos.X

	p := r3.Vec{
		X: pos.X*cosG - pos.Y*sinG,
		Y: pos.X*sinG + pos.Y*cosG,
		Z: pos.Z,
	}
	v := r3.Vec{
		X: vx*cosG - vy*sinG,
		Y: vx*sinG + vy*cosG,
		Z: vel.Z,
	}
	return p, v
}

// PlausibleOrbitRadius reports whether pos (km) is finite, at least 6200 km
// from Earth's center and, when maxKm is positive, no farther than maxKm.
func PlausibleOrbitRadius(pos r3.Vec, maxKm float64) bool {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return false
	}
	if math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return false
	}
	mag := r3.Norm(pos)
	return mag >= 6200.0 && (maxKm <= 0 || mag <= maxKm)
}
