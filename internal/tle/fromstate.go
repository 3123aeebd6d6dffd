package tle

import (
	"fmt"
	"math"
	"time"

	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/transform"
)

// FromState builds an element set whose elements are the osculating
// elements of sv, carrying the identifiers, drag terms and counters of
// template. sv may be inertial or Earth-fixed.
func FromState(sv transform.StateVector, template ElementSet) (ElementSet, error) {
	inertial, err := sv.In(transform.FrameInertial, nil)
	if err != nil {
		return ElementSet{}, fmt.Errorf("state to inertial frame: %w", err)
	}
	el, err := orbit.FromState(inertial.Position, inertial.Velocity, orbit.MuEarth)
	if err != nil {
		return ElementSet{}, err
	}

	utc, err := transform.Convert(sv.Epoch, transform.ScaleUTC)
	if err != nil {
		return ElementSet{}, err
	}
	t := utc.Time()
	jan1 := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)

	es := ElementSet{
		Name:             template.Name,
		CatalogNumber:    template.CatalogNumber,
		Classification:   template.Classification,
		Designator:       template.Designator,
		EpochYear:        t.Year(),
		EpochDay:         1 + utc.Sub(transform.NewEpoch(jan1))/86400.0,
		Epoch:            utc,
		MeanMotionDot:    template.MeanMotionDot,
		MeanMotionDDot:   template.MeanMotionDDot,
		BStar:            template.BStar,
		EphemerisType:    template.EphemerisType,
		ElementNumber:    template.ElementNumber,
		Inclination:      el.Inclination,
		RAAN:             el.RAAN,
		Eccentricity:     el.Eccentricity,
		ArgPerigee:       el.ArgPerigee,
		MeanAnomaly:      el.MeanAnomaly,
		MeanMotion:       el.MeanMotion(orbit.MuEarth) * 86400.0 / (2 * math.Pi),
		RevolutionNumber: template.RevolutionNumber,
	}
	return es, nil
}
