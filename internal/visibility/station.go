// Package visibility computes observer-relative geometry between a spacecraft
// and a ground station and decides whether the spacecraft is usable from it.
package visibility

import (
	"errors"
	"fmt"
	"math"

	"github.com/utat-ss/hermes/internal/transform"
)

// ErrInvalidStation is returned for out-of-range station coordinates.
var ErrInvalidStation = errors.New("invalid ground station")

// GroundStation is an observer on the WGS-84 ellipsoid with an elevation mask.
// It is immutable once built.
type GroundStation struct {
	Name string
	Site transform.Site
	Mask Mask
}

// NewGroundStation builds a station from geodetic degrees and meters. A nil
// mask means the geometric horizon (0°).
func NewGroundStation(name string, latDeg, lonDeg, altM float64, mask Mask) (GroundStation, error) {
	switch {
	case math.IsNaN(latDeg) || latDeg < -90 || latDeg > 90:
		return GroundStation{}, fmt.Errorf("%w %q: latitude %g outside [-90, 90]", ErrInvalidStation, name, latDeg)
	case math.IsNaN(lonDeg) || lonDeg < -180 || lonDeg > 360:
		return GroundStation{}, fmt.Errorf("%w %q: longitude %g outside [-180, 360]", ErrInvalidStation, name, lonDeg)
	case math.IsNaN(altM) || math.IsInf(altM, 0) || altM < -12000 || altM > 100000:
		return GroundStation{}, fmt.Errorf("%w %q: altitude %g m", ErrInvalidStation, name, altM)
	}
	if mask == nil {
		mask = ConstantMask(0)
	}
	return GroundStation{Name: name, Site: transform.NewSite(latDeg, lonDeg, altM), Mask: mask}, nil
}

// WithMask returns a copy of the station using mask.
func (gs GroundStation) WithMask(mask Mask) GroundStation {
	gs.Mask = mask
	return gs
}

// LatitudeDeg returns the geodetic latitude in degrees.
func (gs GroundStation) LatitudeDeg() float64 { return gs.Site.LatRad * 180 / math.Pi }

// LongitudeDeg returns the longitude in degrees.
func (gs GroundStation) LongitudeDeg() float64 { return gs.Site.LonRad * 180 / math.Pi }

func (gs GroundStation) minElevation(az float64) float64 {
	if gs.Mask == nil {
		return 0
	}
	return gs.Mask.MinElevation(az)
}
