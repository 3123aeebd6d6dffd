package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
)

// SGP4 library: github.com/joshuaferrara/go-satellite
//
// Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller. We detect propagation failures by checking output for NaN/Inf
// and position magnitudes below the surface or far past the set's apogee.
//
// The library resolves time to whole seconds. Sub-second epochs are
// interpolated with a cubic Hermite spline through the bracketing seconds.

// SGP4Propagator wraps the go-satellite library for a single element set.
type SGP4Propagator struct {
	sat     satellite.Satellite
	catalog int

	// maxRadius bounds plausible output, km.
	maxRadius float64
}

// NewSGP4Propagator initializes SGP4 from an element set.
// Returns an error if the record cannot be represented for the library or
// the SGP4 model fails to initialize.
func NewSGP4Propagator(es tle.ElementSet) (*SGP4Propagator, error) {
	el := es.Elements()
	if err := el.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %d: %w", es.CatalogNumber, err)
	}
	line1, line2 := tle.Format(es)
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("%w: catalog %d: %v", ErrInvalidOrbit, es.CatalogNumber, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init failed for catalog %d: code=%d %s", ErrInvalidOrbit, es.CatalogNumber, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{
		sat:       sat,
		catalog:   es.CatalogNumber,
		maxRadius: radiusCeiling(el.SemiMajorAxis, el.Eccentricity),
	}, nil
}

// radiusCeiling is the largest radius (km) SGP4 output may reach for mean
// elements with semi-major axis a and eccentricity e: the apogee plus a
// margin for periodic and lunar-solar terms.
func radiusCeiling(a, e float64) float64 {
	return 1.25*a*(1+e) + 1000
}

// validateTLELines performs basic format validation on TLE lines.
// This prevents passing garbage to go-satellite which calls log.Fatal on parse errors.
func validateTLELines(line1, line2 string) error {
	if len(line1) != tle.LineLength {
		return fmt.Errorf("line1 length %d, expected %d", len(line1), tle.LineLength)
	}
	if len(line2) != tle.LineLength {
		return fmt.Errorf("line2 length %d, expected %d", len(line2), tle.LineLength)
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	// The library reads the catalog number with strconv.
	if cat := strings.TrimSpace(line1[2:7]); strings.IndexFunc(cat, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return fmt.Errorf("alpha-5 catalog number %q is not supported by sgp4", cat)
	}
	return nil
}

// Propagate computes the inertial (TEME) state at the given epoch.
func (p *SGP4Propagator) Propagate(at transform.Epoch) (StateVector, error) {
	utc, err := transform.Convert(at, transform.ScaleUTC)
	if err != nil {
		return StateVector{}, err
	}

	whole := math.Floor(utc.Seconds())
	frac := utc.Seconds() - whole
	t0 := transform.EpochFromSeconds(whole, transform.ScaleUTC).Time()

	p0, v0, err := p.civil(t0)
	if err != nil {
		return StateVector{}, err
	}
	if frac == 0 {
		return StateVector{Epoch: at, Position: p0, Velocity: v0, Frame: transform.FrameInertial}, nil
	}
	p1, v1, err := p.civil(t0.Add(time.Second))
	if err != nil {
		return StateVector{}, err
	}
	pos, vel := hermite(p0, v0, p1, v1, 1, frac)
	return StateVector{Epoch: at, Position: pos, Velocity: vel, Frame: transform.FrameInertial}, nil
}

// civil runs SGP4 at a whole-second UTC time.
func (p *SGP4Propagator) civil(t time.Time) (r3.Vec, r3.Vec, error) {
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	r := r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z}
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return r3.Vec{}, r3.Vec{}, fmt.Errorf("%w: sgp4 propagation failed for catalog %d: output is NaN/Inf", ErrInvalidOrbit, p.catalog)
	}
	if !transform.PlausibleOrbitRadius(r, p.maxRadius) {
		return r3.Vec{}, r3.Vec{}, fmt.Errorf("%w: sgp4 propagation failed for catalog %d: unreasonable position magnitude %.1f km", ErrInvalidOrbit, p.catalog, r3.Norm(r))
	}
	return r, r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z}, nil
}
