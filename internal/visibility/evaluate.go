package visibility

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/utat-ss/hermes/internal/transform"
)

// Observation is the station-relative geometry of a spacecraft at one epoch.
type Observation struct {
	Epoch     transform.Epoch `json:"epoch"`
	Elevation float64         `json:"elevation_deg"`
	Azimuth   float64         `json:"azimuth_deg"`
	Range     float64         `json:"range_km"`
	RangeRate float64         `json:"range_rate_kms"`
	// Margin is elevation minus the mask at the observed azimuth.
	Margin    float64 `json:"margin_deg"`
	AboveMask bool    `json:"above_mask"`
	Visible   bool    `json:"visible"`

	// EarthFixed is the spacecraft position (km) used for ground tracks.
	EarthFixed r3.Vec `json:"-"`
}

// Evaluate computes the look angles from station to the spacecraft state at
// epoch at, and whether it is visible: elevation at or above the mask and
// every predicate passing. Predicates run in order, only once the mask is
// cleared, and stop at the first failure. sv is expected to be the
// spacecraft state at at; topocentric states are read relative to station.
func Evaluate(sv transform.StateVector, station GroundStation, at transform.Epoch, preds ...Predicate) (Observation, error) {
	gmst, err := transform.EarthRotation(at)
	if err != nil {
		return Observation{}, err
	}

	var ecefPos, ecefVel r3.Vec
	switch sv.Frame {
	case transform.FrameInertial:
		ecefPos, ecefVel = transform.InertialToEarthFixedWithGMST(sv.Position, sv.Velocity, gmst)
	default:
		ecefPos, ecefVel, err = transform.Transform(sv.Position, sv.Velocity, sv.Frame, transform.FrameEarthFixed, at, &station.Site)
		if err != nil {
			return Observation{}, fmt.Errorf("spacecraft state to earth-fixed: %w", err)
		}
	}

	look := station.Site.Look(ecefPos, ecefVel)
	margin := look.ElevationDeg - station.minElevation(look.AzimuthDeg)
	obs := Observation{
		Epoch:      at,
		Elevation:  look.ElevationDeg,
		Azimuth:    look.AzimuthDeg,
		Range:      look.RangeKm,
		RangeRate:  look.RangeRateKmS,
		Margin:     margin,
		AboveMask:  margin >= 0,
		EarthFixed: ecefPos,
	}
	if !obs.AboveMask {
		return obs, nil
	}

	c := &Context{
		At:         at,
		Station:    &station,
		Look:       look,
		EarthFixed: ecefPos,
		gmst:       gmst,
	}
	for i, p := range preds {
		ok, err := p.Check(c)
		if err != nil {
			return Observation{}, fmt.Errorf("predicate %d (%s): %w", i, predicateName(p), err)
		}
		if !ok {
			return obs, nil
		}
	}
	obs.Visible = true
	return obs, nil
}

func predicateName(p Predicate) string {
	if s, ok := p.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", p)
}
