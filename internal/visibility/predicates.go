package visibility

import (
	"fmt"
	"math"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/solar"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/transform"
)

const (
	auKm        = 1.49597870700e8
	sunRadiusKm = 696000.0
)

// Context is what a Predicate sees: the epoch, the station, the look angles
// and the spacecraft's Earth-fixed position. Positions are km.
type Context struct {
	At         transform.Epoch
	Station    *GroundStation
	Look       transform.LookAngles
	EarthFixed r3.Vec

	gmst   float64
	sun    r3.Vec
	sunSet bool
}

// Sun returns the apparent geocentric Sun position in the Earth-fixed frame,
// computed once per Context.
func (c *Context) Sun() (r3.Vec, error) {
	if c.sunSet {
		return c.sun, nil
	}
	inertial, err := SunPosition(c.At)
	if err != nil {
		return r3.Vec{}, err
	}
	c.sun, _ = transform.InertialToEarthFixedWithGMST(inertial, r3.Vec{}, c.gmst)
	c.sunSet = true
	return c.sun, nil
}

// SunPosition returns the apparent geocentric position of the Sun (km) in the
// inertial frame at e, from Meeus' low-precision solar theory.
func SunPosition(e transform.Epoch) (r3.Vec, error) {
	tt, err := transform.Convert(e, transform.ScaleTT)
	if err != nil {
		return r3.Vec{}, err
	}
	jde := tt.JulianDate()
	ra, dec := solar.ApparentEquatorial(jde)
	r := solar.Radius(base.J2000Century(jde)) * auKm

	sinD, cosD := math.Sincos(dec.Rad())
	sinA, cosA := math.Sincos(ra.Rad())
	return r3.Vec{X: r * cosD * cosA, Y: r * cosD * sinA, Z: r * sinD}, nil
}

// Predicate is one secondary visibility condition. All predicates attached
// to an evaluation must pass.
type Predicate interface {
	Check(c *Context) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(c *Context) (bool, error)

func (f PredicateFunc) Check(c *Context) (bool, error) { return f(c) }

// MaxRange passes while the slant range is at most the given km.
type MaxRange float64

func (m MaxRange) Check(c *Context) (bool, error) { return c.Look.RangeKm <= float64(m), nil }

func (m MaxRange) String() string { return fmt.Sprintf("max range %g km", float64(m)) }

// StationInDarkness passes while the Sun is below the given elevation (deg)
// at the station, e.g. -6 for civil twilight.
type StationInDarkness float64

func (s StationInDarkness) Check(c *Context) (bool, error) {
	sun, err := c.Sun()
	if err != nil {
		return false, err
	}
	look := c.Station.Site.Look(sun, r3.Vec{})
	return look.ElevationDeg < float64(s), nil
}

func (s StationInDarkness) String() string {
	return fmt.Sprintf("station sun elevation below %g°", float64(s))
}

// SpacecraftSunlit passes while the spacecraft is outside Earth's umbra.
type SpacecraftSunlit struct{}

func (SpacecraftSunlit) Check(c *Context) (bool, error) {
	sun, err := c.Sun()
	if err != nil {
		return false, err
	}
	return EclipseDepth(c.EarthFixed, sun) < 0, nil
}

func (SpacecraftSunlit) String() string { return "spacecraft sunlit" }

// EclipseDepth compares the apparent sizes of Earth and Sun seen from the
// spacecraft at sat, with sun the Sun's position in the same frame.
// Non-negative values mean the Sun is fully hidden (radians).
func EclipseDepth(sat, sun r3.Vec) float64 {
	r := r3.Norm(sat)
	if r <= orbit.EarthRadius {
		return math.Pi
	}
	sdEarth := math.Asin(orbit.EarthRadius / r)
	toSun := r3.Sub(sun, sat)
	sdSun := math.Asin(sunRadiusKm / r3.Norm(toSun))
	if sdEarth < sdSun {
		return -math.Pi
	}
	delta := angleBetween(toSun, r3.Scale(-1, sat))
	return sdEarth - sdSun - delta
}

// SunAngleExclusion passes while the angle between the station's line of
// sight to the spacecraft and its direction to the Sun exceeds the given deg.
type SunAngleExclusion float64

func (s SunAngleExclusion) Check(c *Context) (bool, error) {
	sun, err := c.Sun()
	if err != nil {
		return false, err
	}
	los := r3.Sub(c.EarthFixed, c.Station.Site.ECEF)
	toSun := r3.Sub(sun, c.Station.Site.ECEF)
	return angleBetween(los, toSun)*180/math.Pi > float64(s), nil
}

func (s SunAngleExclusion) String() string { return fmt.Sprintf("sun exclusion %g°", float64(s)) }

func angleBetween(a, b r3.Vec) float64 {
	return math.Atan2(r3.Norm(r3.Cross(a, b)), r3.Dot(a, b))
}
