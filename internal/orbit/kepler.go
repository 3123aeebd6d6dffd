package orbit

import (
	"errors"
	"fmt"
	"math"
)

const twoPi = 2 * math.Pi

// Kepler solver limits.
const (
	keplerMaxIterations = 50
	keplerTolerance     = 1e-12 // rad, step size
	keplerResidual      = 1e-10 // rad, accepted |E - e sinE - M|
)

// ErrNoConvergence is returned when Kepler's equation is not solved within
// the iteration cap.
var ErrNoConvergence = errors.New("kepler equation did not converge")

// ConvergenceError carries the solver state at the iteration cap.
type ConvergenceError struct {
	MeanAnomaly  float64
	Eccentricity float64
	Iterations   int
	Residual     float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("kepler equation did not converge: M=%.6f e=%.6f after %d iterations (residual %.3e)",
		e.MeanAnomaly, e.Eccentricity, e.Iterations, e.Residual)
}

func (e *ConvergenceError) Unwrap() error { return ErrNoConvergence }

// EccentricAnomaly solves Kepler's equation M = E - e sin E for the
// eccentric anomaly using Newton-Raphson iteration.
func EccentricAnomaly(meanAnomaly, eccentricity float64) (float64, error) {
	M := NormalizeAngle(meanAnomaly)
	if eccentricity == 0 {
		return M, nil
	}

	E := initialGuess(M, eccentricity)
	var f float64
	for i := 0; i < keplerMaxIterations; i++ {
		f = E - eccentricity*math.Sin(E) - M
		fp := 1 - eccentricity*math.Cos(E)
		delta := f / fp
		E -= delta

		if math.Abs(delta) < keplerTolerance {
			return NormalizeAngle(E), nil
		}
	}

	f = E - eccentricity*math.Sin(E) - M
	if math.Abs(f) <= keplerResidual {
		return NormalizeAngle(E), nil
	}
	return 0, &ConvergenceError{
		MeanAnomaly:  M,
		Eccentricity: eccentricity,
		Iterations:   keplerMaxIterations,
		Residual:     math.Abs(f),
	}
}

// MeanAnomalyFromEccentric computes mean anomaly M from eccentric anomaly E.
func MeanAnomalyFromEccentric(eccentricAnomaly, eccentricity float64) float64 {
	return NormalizeAngle(eccentricAnomaly - eccentricity*math.Sin(eccentricAnomaly))
}

// TrueAnomalyFromEccentric converts an eccentric anomaly to the true anomaly.
func TrueAnomalyFromEccentric(eccentricAnomaly, eccentricity float64) float64 {
	if eccentricity == 0 {
		return NormalizeAngle(eccentricAnomaly)
	}

	sinE := math.Sin(eccentricAnomaly)
	cosE := math.Cos(eccentricAnomaly)
	sqrtTerm := math.Sqrt(1 - eccentricity*eccentricity)

	return NormalizeAngle(math.Atan2(sqrtTerm*sinE, cosE-eccentricity))
}

// EccentricFromTrue converts a true anomaly to the eccentric anomaly.
func EccentricFromTrue(trueAnomaly, eccentricity float64) float64 {
	sinNu, cosNu := math.Sin(trueAnomaly), math.Cos(trueAnomaly)
	sqrtTerm := math.Sqrt(1 - eccentricity*eccentricity)
	return NormalizeAngle(math.Atan2(sqrtTerm*sinNu, eccentricity+cosNu))
}

// NormalizeAngle wraps an angle into [0, 2π).
func NormalizeAngle(angle float64) float64 {
	wrapped := math.Mod(angle, twoPi)
	if wrapped < 0 {
		wrapped += twoPi
	}
	if wrapped >= twoPi {
		wrapped = 0
	}
	return wrapped
}

func initialGuess(meanAnomaly, eccentricity float64) float64 {
	if eccentricity < 0.8 {
		return meanAnomaly
	}
	return math.Pi
}
