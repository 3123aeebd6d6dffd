package propagation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/utat-ss/hermes/internal/orbit"
)

// state is [x, y, z, vx, vy, vz] in km and km/s.
type state [6]float64

func stateOf(pos, vel r3.Vec) state {
	return state{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z}
}

func (y state) split() (r3.Vec, r3.Vec) {
	return r3.Vec{X: y[0], Y: y[1], Z: y[2]}, r3.Vec{X: y[3], Y: y[4], Z: y[5]}
}

// axpy returns y + a*x.
func (y state) axpy(a float64, x state) state {
	for i := range y {
		y[i] += a * x[i]
	}
	return y
}

// forceModel computes the time derivative of a state.
type forceModel struct {
	j2 bool
}

// Corrected J2 formulas from Vallado's Eq. 8-30.
const accJ2Coeff = 1.5 * orbit.J2 * orbit.EarthRadius * orbit.EarthRadius * orbit.MuEarth

func (f forceModel) derivative(y state) state {
	x, yy, z := y[0], y[1], y[2]
	r2 := x*x + yy*yy + z*z
	r := math.Sqrt(r2)
	r3inv := 1 / (r2 * r)
	mu := orbit.MuEarth

	ax := -mu * x * r3inv
	ay := -mu * yy * r3inv
	az := -mu * z * r3inv

	if f.j2 {
		r5 := r2 * r2 * r
		r7 := r5 * r2
		z2 := z * z
		ax += accJ2Coeff * (5*x*z2/r7 - x/r5)
		ay += accJ2Coeff * (5*yy*z2/r7 - yy/r5)
		az += accJ2Coeff * (5*z2*z/r7 - 3*z/r5)
	}
	return state{y[3], y[4], y[5], ax, ay, az}
}

const (
	oneSixth = 1 / 6.0
	oneThird = 1 / 3.0
)

// rk4Step advances y by h seconds with the classical fourth-order Runge-Kutta method.
func (f forceModel) rk4Step(y state, h float64) state {
	k1 := f.derivative(y)
	k2 := f.derivative(y.axpy(h/2, k1))
	k3 := f.derivative(y.axpy(h/2, k2))
	k4 := f.derivative(y.axpy(h, k3))

	for i := range y {
		y[i] += h * (oneSixth*k1[i] + oneThird*k2[i] + oneThird*k3[i] + oneSixth*k4[i])
	}
	return y
}

// integrator carries a state across a span with fixed or adaptive steps.
// Adaptive steps use step doubling: a full step is compared with two half
// steps, the difference estimates the local error and the two-half result
// is Richardson-corrected before it is accepted.
type integrator struct {
	force    forceModel
	cfg      IntegratorConfig
	h        float64 // current step magnitude, s
	minStep  float64
	maxStep  float64
	accepted int
	rejected int
}

func newIntegrator(force forceModel, cfg IntegratorConfig) *integrator {
	cfg = cfg.withDefaults()
	return &integrator{
		force:   force,
		cfg:     cfg,
		h:       cfg.Step.Seconds(),
		minStep: cfg.MinStep.Seconds(),
		maxStep: cfg.MaxStep.Seconds(),
	}
}

// advance integrates y over span seconds (negative spans go backward).
func (in *integrator) advance(y state, span float64) (state, error) {
	dir := 1.0
	if span < 0 {
		dir = -1
	}
	remaining := math.Abs(span)

	for remaining > 0 {
		h := math.Min(in.h, remaining)

		if !in.cfg.Adaptive {
			y = in.force.rk4Step(y, dir*h)
			remaining -= h
			in.accepted++
			continue
		}

		full := in.force.rk4Step(y, dir*h)
		half := in.force.rk4Step(in.force.rk4Step(y, dir*h/2), dir*h/2)
		errEst := localError(full, half, h)

		if errEst > in.cfg.Tolerance && h > in.minStep {
			in.rejected++
			in.h = math.Max(h*stepFactor(errEst, in.cfg.Tolerance), in.minStep)
			continue
		}
		if errEst > in.cfg.Tolerance {
			return y, fmt.Errorf("%w: step size underflow (%.3gs) with local error %.3g km", ErrNoConvergence, h, errEst)
		}

		// Richardson extrapolation for a fifth-order estimate.
		for i := range half {
			half[i] += (half[i] - full[i]) / 15
		}
		if !finite(half) {
			return y, fmt.Errorf("%w: non-finite state after %.3gs step", ErrInvalidOrbit, h)
		}
		y = half
		remaining -= h
		in.accepted++

		// Only grow from a full-length step so a short final step does not shrink h.
		if h == in.h {
			in.h = math.Min(h*stepFactor(errEst, in.cfg.Tolerance), in.maxStep)
		}
	}
	if !finite(y) {
		return y, fmt.Errorf("%w: non-finite state", ErrInvalidOrbit)
	}
	return y, nil
}

// localError estimates the local truncation error in km. Velocity error is
// scaled by the step so both parts are lengths.
func localError(full, half state, h float64) float64 {
	var dp, dv float64
	for i := 0; i < 3; i++ {
		dp = math.Max(dp, math.Abs(half[i]-full[i]))
		dv = math.Max(dv, math.Abs(half[i+3]-full[i+3]))
	}
	return math.Max(dp, dv*h) / 15
}

// stepFactor is the step-size scale for a fourth-order method, kept within [0.2, 2].
func stepFactor(errEst, tol float64) float64 {
	if errEst == 0 {
		return 2
	}
	f := 0.9 * math.Pow(tol/errEst, 0.2)
	return math.Max(0.2, math.Min(2, f))
}

func finite(y state) bool {
	for _, c := range y {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
