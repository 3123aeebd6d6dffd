package visibility

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidMask is returned for malformed elevation masks.
var ErrInvalidMask = errors.New("invalid elevation mask")

// Mask gives the minimum elevation (deg) required at an azimuth (deg, from North).
type Mask interface {
	MinElevation(azimuthDeg float64) float64
}

// ConstantMask applies the same minimum elevation at every azimuth.
type ConstantMask float64

func (m ConstantMask) MinElevation(float64) float64 { return float64(m) }

func (m ConstantMask) String() string {
	return strconv.FormatFloat(float64(m), 'g', -1, 64) + "°"
}

// MaskPoint is one vertex of an azimuth-dependent mask.
type MaskPoint struct {
	Azimuth   float64 `yaml:"azimuth" json:"azimuth"`
	Elevation float64 `yaml:"elevation" json:"elevation"`
}

// AzimuthMask interpolates linearly between vertices ordered by azimuth,
// wrapping from the last vertex back to the first through 360°.
type AzimuthMask struct {
	points []MaskPoint
}

// NewAzimuthMask validates points: azimuths strictly increasing within
// [0, 360), elevations within [-90, 90].
func NewAzimuthMask(points []MaskPoint) (*AzimuthMask, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrInvalidMask)
	}
	for i, p := range points {
		if math.IsNaN(p.Azimuth) || p.Azimuth < 0 || p.Azimuth >= 360 {
			return nil, fmt.Errorf("%w: point %d azimuth %g outside [0, 360)", ErrInvalidMask, i, p.Azimuth)
		}
		if math.IsNaN(p.Elevation) || p.Elevation < -90 || p.Elevation > 90 {
			return nil, fmt.Errorf("%w: point %d elevation %g outside [-90, 90]", ErrInvalidMask, i, p.Elevation)
		}
		if i > 0 && p.Azimuth <= points[i-1].Azimuth {
			return nil, fmt.Errorf("%w: point %d azimuth %g not after %g", ErrInvalidMask, i, p.Azimuth, points[i-1].Azimuth)
		}
	}
	cp := make([]MaskPoint, len(points))
	copy(cp, points)
	return &AzimuthMask{points: cp}, nil
}

// Points returns a copy of the mask vertices.
func (m *AzimuthMask) Points() []MaskPoint {
	cp := make([]MaskPoint, len(m.points))
	copy(cp, m.points)
	return cp
}

func (m *AzimuthMask) MinElevation(azimuthDeg float64) float64 {
	pts := m.points
	if len(pts) == 1 {
		return pts[0].Elevation
	}
	az := math.Mod(azimuthDeg, 360)
	if az < 0 {
		az += 360
	}

	// Find the segment [lo, hi] containing az; the last segment wraps.
	lo, hi := pts[len(pts)-1], pts[0]
	for i := 0; i < len(pts)-1; i++ {
		if az >= pts[i].Azimuth && az < pts[i+1].Azimuth {
			lo, hi = pts[i], pts[i+1]
			break
		}
	}

	span := hi.Azimuth - lo.Azimuth
	off := az - lo.Azimuth
	if span <= 0 {
		span += 360
	}
	if off < 0 {
		off += 360
	}
	return lo.Elevation + (hi.Elevation-lo.Elevation)*off/span
}

func (m *AzimuthMask) String() string {
	return fmt.Sprintf("azimuth mask (%d points)", len(m.points))
}
