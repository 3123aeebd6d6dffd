package tle

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/transform"
)

// ElementSet is one parsed two-line element set. Angles are radians, with
// RAAN, argument of perigee and mean anomaly normalized to [0, 2π).
// Values are immutable once parsed; copy and rebuild through FromState to
// derive new sets.
type ElementSet struct {
	Name           string
	CatalogNumber  int
	Classification byte
	Designator     string // international designator, e.g. "98067A"

	EpochYear int     // four-digit year
	EpochDay  float64 // day of year, 1-based, with fraction
	Epoch     transform.Epoch

	MeanMotionDot  float64 // ṅ/2, rev/day²
	MeanMotionDDot float64 // n̈/6, rev/day³
	BStar          float64 // 1/earth radii
	EphemerisType  byte
	ElementNumber  int

	Inclination      float64
	RAAN             float64
	Eccentricity     float64
	ArgPerigee       float64
	MeanAnomaly      float64
	MeanMotion       float64 // rev/day
	RevolutionNumber int

	// text holds the source text of each field so Format can reproduce
	// presentation details a float64 does not carry.
	text [fieldCount]string
}

// Key identifies an element set by its values, for memoizing derived constants.
func (es ElementSet) Key() string {
	return fmt.Sprintf("%d|%d|%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		es.CatalogNumber, es.ElementNumber, es.RevolutionNumber,
		g(es.Epoch.Seconds()), g(es.MeanMotionDot), g(es.MeanMotionDDot), g(es.BStar),
		g(es.Inclination), g(es.RAAN), g(es.Eccentricity), g(es.ArgPerigee),
		g(es.MeanAnomaly), g(es.MeanMotion))
}

func g(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// MeanMotionRad returns the mean motion in rad/s.
func (es ElementSet) MeanMotionRad() float64 {
	return es.MeanMotion * 2 * math.Pi / 86400.0
}

// SemiMajorAxis returns the semi-major axis in km implied by the mean motion.
func (es ElementSet) SemiMajorAxis() float64 {
	return orbit.SemiMajorAxisFromMeanMotion(es.MeanMotionRad(), orbit.MuEarth)
}

// Elements returns the mean Keplerian elements at the set's epoch.
func (es ElementSet) Elements() orbit.Elements {
	return orbit.Elements{
		SemiMajorAxis: es.SemiMajorAxis(),
		Eccentricity:  es.Eccentricity,
		Inclination:   es.Inclination,
		RAAN:          es.RAAN,
		ArgPerigee:    es.ArgPerigee,
		MeanAnomaly:   es.MeanAnomaly,
	}
}

// Template returns an element set with null values and the given catalog
// number, suitable as the identifier template for FromState.
func Template(catalog int) ElementSet {
	return ElementSet{
		CatalogNumber:  catalog,
		Classification: 'U',
		EphemerisType:  '0',
	}
}

// EpochRange represents the minimum and maximum epoch times in a catalog.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Catalog is a set of element sets loaded together from one source.
type Catalog struct {
	Source     string
	LoadedAt   time.Time
	EpochRange EpochRange
	Sets       []ElementSet

	byID map[int]int
}

// NewCatalog indexes sets by catalog number. Later entries for the same
// object replace earlier ones in the index.
func NewCatalog(source string, sets []ElementSet, loadedAt time.Time) *Catalog {
	c := &Catalog{
		Source:   source,
		LoadedAt: loadedAt,
		Sets:     sets,
		byID:     make(map[int]int, len(sets)),
	}
	for i, es := range sets {
		c.byID[es.CatalogNumber] = i
		t := es.Epoch.Time()
		if i == 0 || t.Before(c.EpochRange.Min) {
			c.EpochRange.Min = t
		}
		if i == 0 || t.After(c.EpochRange.Max) {
			c.EpochRange.Max = t
		}
	}
	return c
}

// Lookup returns the element set for a catalog number.
func (c *Catalog) Lookup(catalog int) (ElementSet, bool) {
	i, ok := c.byID[catalog]
	if !ok {
		return ElementSet{}, false
	}
	return c.Sets[i], true
}
