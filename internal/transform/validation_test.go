package transform

import (
	"errors"
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/meeus/v3/julian"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

// TestJulianDate verifies the Julian Date of UTC epochs against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Vallado Example 3-15: April 6, 2004, 07:51:28.386 UTC
			name:     "Vallado example date",
			time:     time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC),
			expected: 2453101.827411875,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewEpoch(tt.time).JulianDate()
			diff := math.Abs(got - tt.expected)
			if diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestEarthRotation validates the sidereal angle against the go-satellite
// library's GSTimeFromDate, which uses the same IAU-82 model.
func TestEarthRotation(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{
			name: "J2000.0 epoch",
			time: time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "Vallado example date",
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC), // integer seconds for library compat
		},
		{
			name: "recent date 2026",
			time: time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our, err := EarthRotation(NewEpoch(tt.time))
			if err != nil {
				t.Fatalf("EarthRotation: %v", err)
			}
			// go-satellite's GSTimeFromDate returns GMST in radians.
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			// 5e-8 rad is about 0.01 arcsec.
			if diff := math.Abs(our - ref); diff > 5e-8 {
				t.Errorf("EarthRotation(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", tt.time, our, ref, diff)
			}
		})
	}
}

// TestJulianDateAgainstMeeus cross-checks epoch Julian dates with the
// meeus implementation used for the solar ephemeris.
func TestJulianDateAgainstMeeus(t *testing.T) {
	times := []time.Time{
		time.Date(1980, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 10, 1, 6, 42, 23, 371000000, time.UTC),
		time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC),
	}
	for _, tm := range times {
		want := julian.TimeToJD(tm)
		if got := NewEpoch(tm).JulianDate(); !scalar.EqualWithinAbs(got, want, 1e-7) {
			t.Errorf("Epoch.JulianDate(%v) = %.9f, meeus = %.9f", tm, got, want)
		}
	}
}

func TestEarthRotationScaleIndependent(t *testing.T) {
	tm := time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC)
	got, err := EarthRotation(NewEpoch(tm))
	if err != nil {
		t.Fatalf("EarthRotation: %v", err)
	}

	// A TAI epoch reads the same instant.
	tai, err := ToUniform(NewEpoch(tm))
	if err != nil {
		t.Fatalf("ToUniform: %v", err)
	}
	fromTAI, err := EarthRotation(tai)
	if err != nil {
		t.Fatalf("EarthRotation(TAI): %v", err)
	}
	if diff := math.Abs(fromTAI - got); diff > 1e-8 {
		t.Errorf("EarthRotation(TAI) differs by %.2e rad", diff)
	}
}

func TestEarthRotationOutOfRange(t *testing.T) {
	for _, y := range []int{1950, 1965, 2101} {
		_, err := EarthRotation(NewEpoch(time.Date(y, 6, 1, 0, 0, 0, 0, time.UTC)))
		if !errors.Is(err, ErrInvalidEpoch) {
			t.Errorf("year %d: err = %v, want ErrInvalidEpoch", y, err)
		}
	}
}

// TestInertialToEarthFixed validates the TEME→ECEF rotation against the
// go-satellite library's ECIToECEF function using the same GMST. Both use
// GMST-only rotation so they agree to floating point precision.
func TestInertialToEarthFixed(t *testing.T) {
	tests := []struct {
		name     string
		pos, vel r3.Vec
		time     time.Time
	}{
		{
			// Vallado "Fundamentals of Astrodynamics" Example 3-15
			name: "Vallado example 3-15",
			pos:  r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
			vel:  r3.Vec{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			pos:  r3.Vec{X: 6778.0},
			vel:  r3.Vec{Y: 7.5},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			pos:  r3.Vec{Z: 6978.0},
			vel:  r3.Vec{X: 7.4},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			ours, _ := InertialToEarthFixedWithGMST(tt.pos, tt.vel, gmst)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.pos.X, Y: tt.pos.Y, Z: tt.pos.Z}, gmst)

			// Tolerance: 1 meter.
			const tolerance = 1e-3 // km
			if !scalar.EqualWithinAbs(ours.X, ref.X, tolerance) ||
				!scalar.EqualWithinAbs(ours.Y, ref.Y, tolerance) ||
				!scalar.EqualWithinAbs(ours.Z, ref.Z, tolerance) {
				t.Errorf("position mismatch: ours %v, ref %+v", ours, ref)
			}

			if !PlausibleOrbitRadius(ours, 0) {
				t.Errorf("ECEF position failed validation: %v", ours)
			}
		})
	}
}

// TestInertialToEarthFixedVelocity verifies the velocity transform includes Earth rotation.
func TestInertialToEarthFixedVelocity(t *testing.T) {
	pos := r3.Vec{X: 6778.0}
	vel := r3.Vec{Y: 7.5}

	// GMST = 0 aligns the TEME X-axis with the ECEF X-axis.
	p, v := InertialToEarthFixedWithGMST(pos, vel, 0)
	if math.Abs(p.X-6778.0) > 1e-9 {
		t.Errorf("X position: got %.6f, want 6778.0", p.X)
	}

	// Earth rotation velocity at this radius: ω*R = 0.4943 km/s.
	want := 7.5 - OmegaEarth*6778.0
	if math.Abs(v.Y-want) > 1e-9 {
		t.Errorf("VY: got %.6f km/s, want %.6f km/s", v.Y, want)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	at := NewEpoch(time.Date(2023, 10, 1, 6, 42, 23, 371000000, time.UTC))
	site := NewSite(43.6532, -79.3832, 76)
	pos := r3.Vec{X: -2345.1, Y: 5123.7, Z: 3987.2}
	vel := r3.Vec{X: -5.1, Y: -3.2, Z: 3.9}

	frames := []Frame{FrameEarthFixed, FrameTopocentric}
	for _, f := range frames {
		t.Run(f.String(), func(t *testing.T) {
			p, v, err := Transform(pos, vel, FrameInertial, f, at, &site)
			if err != nil {
				t.Fatalf("Transform to %s: %v", f, err)
			}
			bp, bv, err := Transform(p, v, f, FrameInertial, at, &site)
			if err != nil {
				t.Fatalf("Transform back: %v", err)
			}
			if d := r3.Norm(r3.Sub(bp, pos)); d > 1e-9 {
				t.Errorf("position round trip error %.3e km", d)
			}
			if d := r3.Norm(r3.Sub(bv, vel)); d > 1e-12 {
				t.Errorf("velocity round trip error %.3e km/s", d)
			}
		})
	}
}

func TestTransformTopocentricNeedsSite(t *testing.T) {
	at := NewEpoch(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	_, _, err := Transform(r3.Vec{X: 7000}, r3.Vec{}, FrameInertial, FrameTopocentric, at, nil)
	if !errors.Is(err, ErrUnsupportedFrame) {
		t.Errorf("err = %v, want ErrUnsupportedFrame", err)
	}
}

// TestPlausibleOrbitRadius tests the position plausibility check.
func TestPlausibleOrbitRadius(t *testing.T) {
	tests := []struct {
		name  string
		pos   r3.Vec
		max   float64
		valid bool
	}{
		{"LEO", r3.Vec{X: 6778}, 0, true},
		{"GEO", r3.Vec{X: 42164}, 0, true},
		{"high apogee, no ceiling", r3.Vec{X: 120000}, 0, true},
		{"within ceiling", r3.Vec{X: 58500}, 70000, true},
		{"past ceiling", r3.Vec{X: 60000}, 50000, false},
		{"too low", r3.Vec{X: 5000}, 0, false},
		{"NaN", r3.Vec{X: math.NaN()}, 0, false},
		{"Inf", r3.Vec{X: math.Inf(1)}, 0, false},
		{"zero", r3.Vec{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlausibleOrbitRadius(tt.pos, tt.max); got != tt.valid {
				t.Errorf("PlausibleOrbitRadius(%v, %g) = %v, want %v", tt.pos, tt.max, got, tt.valid)
			}
		})
	}
}
