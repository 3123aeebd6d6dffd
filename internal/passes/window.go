// Package passes finds the access windows during which a spacecraft is
// visible from a ground station.
package passes

import (
	"errors"
	"fmt"
	"time"

	"github.com/utat-ss/hermes/internal/transform"
	"github.com/utat-ss/hermes/internal/visibility"
)

var (
	// ErrInvalidTimeSpan is returned when end is not after start or the
	// sampling step is not positive.
	ErrInvalidTimeSpan = errors.New("invalid time span")
	// ErrInvalidOptions is returned for unusable scan options.
	ErrInvalidOptions = errors.New("invalid window options")
)

const defaultTolerance = time.Second

// GroundTrackPoint is a sub-satellite position sampled during a window.
type GroundTrackPoint struct {
	Epoch     transform.Epoch `json:"epoch"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Altitude  float64         `json:"altitude_m"`
	Elevation float64         `json:"elevation"` // degrees above the station horizon
}

// Window is one contiguous interval of visibility. Epochs are UTC.
type Window struct {
	Start         transform.Epoch `json:"start"`
	End           transform.Epoch `json:"end"`
	Peak          transform.Epoch `json:"peak"`
	PeakElevation float64         `json:"peak_elevation"`
	StartAzimuth  float64         `json:"start_azimuth"`
	EndAzimuth    float64         `json:"end_azimuth"`
	PeakAzimuth   float64         `json:"peak_azimuth"`

	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"duration_seconds"`

	// PartialStart and PartialEnd mark windows clipped by the scan span.
	PartialStart bool `json:"partial_start,omitempty"`
	PartialEnd   bool `json:"partial_end,omitempty"`

	Station     string             `json:"station"`
	Mask        string             `json:"mask,omitempty"`
	GroundTrack []GroundTrackPoint `json:"ground_track,omitempty"`
}

// Options tunes a scan. The zero value is usable.
type Options struct {
	// Tolerance bounds the error of refined window boundaries. Defaults to 1s.
	Tolerance time.Duration
	// Predicates are checked, in order, once the elevation mask is cleared.
	Predicates []visibility.Predicate
	// MinDuration drops shorter windows. Clipped windows are judged by their
	// clipped length.
	MinDuration time.Duration
	// MaxWindows stops the scan after this many windows when positive.
	MaxWindows int
	// GroundTrackStep samples the sub-satellite point during each window
	// when positive.
	GroundTrackStep time.Duration
}

func (o Options) withDefaults() (Options, error) {
	switch {
	case o.Tolerance < 0:
		return o, fmt.Errorf("%w: tolerance %s must be positive", ErrInvalidOptions, o.Tolerance)
	case o.Tolerance == 0:
		o.Tolerance = defaultTolerance
	}
	if o.MinDuration < 0 || o.MaxWindows < 0 || o.GroundTrackStep < 0 {
		return o, fmt.Errorf("%w: negative limit", ErrInvalidOptions)
	}
	return o, nil
}
