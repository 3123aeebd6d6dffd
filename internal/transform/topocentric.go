package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Site is a ground location in geodetic and Earth-fixed form.
// The ECEF position is precomputed once so it can be reused across many lookups.
type Site struct {
	LatRad, LonRad, AltM float64 // geodetic (radians, meters above ellipsoid)
	ECEF                 r3.Vec  // km

	sinLat, cosLat, sinLon, cosLon float64
}

// LookAngles holds azimuth, elevation, range and range rate from a site to a target.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
	RangeRateKmS float64 // positive when receding
}

// NewSite creates a Site from geodetic coordinates.
// Latitude and longitude are in degrees, altitude in meters above the WGS-84 ellipsoid.
func NewSite(latDeg, lonDeg, altM float64) Site {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0

	s := Site{LatRad: lat, LonRad: lon, AltM: altM}
	s.sinLat, s.cosLat = math.Sin(lat), math.Cos(lat)
	s.sinLon, s.cosLon = math.Sin(lon), math.Cos(lon)

	// Radius of curvature in the prime vertical.
	N := wgs84A / math.Sqrt(1-wgs84E2*s.sinLat*s.sinLat)

	s.ECEF = r3.Vec{
		X: (N + altM) * s.cosLat * s.cosLon / 1000.0,
		Y: (N + altM) * s.cosLat * s.sinLon / 1000.0,
		Z: (N*(1-wgs84E2) + altM) * s.sinLat / 1000.0,
	}
	return s
}

// toSEZ returns the SEZ range vector from the site to an ECEF position.
func (s *Site) toSEZ(ecef r3.Vec) r3.Vec {
	return s.rotateToSEZ(r3.Sub(ecef, s.ECEF))
}

func (s *Site) fromSEZ(sez r3.Vec) r3.Vec {
	return r3.Add(s.rotateFromSEZ(sez), s.ECEF)
}

func (s *Site) rotateToSEZ(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: s.sinLat*s.cosLon*v.X + s.sinLat*s.sinLon*v.Y - s.cosLat*v.Z,
		Y: -s.sinLon*v.X + s.cosLon*v.Y,
		Z: s.cosLat*s.cosLon*v.X + s.cosLat*s.sinLon*v.Y + s.sinLat*v.Z,
	}
}

// rotateFromSEZ applies the transpose of rotateToSEZ.
func (s *Site) rotateFromSEZ(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: s.sinLat*s.cosLon*v.X - s.sinLon*v.Y + s.cosLat*s.cosLon*v.Z,
		Y: s.sinLat*s.sinLon*v.X + s.cosLon*v.Y + s.cosLat*s.sinLon*v.Z,
		Z: -s.cosLat*v.X + s.sinLat*v.Z,
	}
}

// Look computes look angles from the site to a target given in ECEF km and km/s.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
func (s Site) Look(pos, vel r3.Vec) LookAngles {
	rho := s.toSEZ(pos)
	rhoDot := s.rotateToSEZ(vel)
	return lookFromSEZ(rho, rhoDot)
}

// LookSEZ computes look angles from a topocentric SEZ position and velocity.
func LookSEZ(rho, rhoDot r3.Vec) LookAngles {
	return lookFromSEZ(rho, rhoDot)
}

func lookFromSEZ(rho, rhoDot r3.Vec) LookAngles {
	rangeMag := r3.Norm(rho)
	if rangeMag == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	el := math.Asin(rho.Z / rangeMag)

	// In SEZ, North = -South direction, so az = atan2(east, -south).
	az := math.Atan2(rho.Y, -rho.X)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * 180.0 / math.Pi,
		ElevationDeg: el * 180.0 / math.Pi,
		RangeKm:      rangeMag,
		RangeRateKmS: r3.Dot(rho, rhoDot) / rangeMag,
	}
}

// GeodeticPoint holds a geodetic position (latitude/longitude in degrees, altitude in meters).
type GeodeticPoint struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	AltM   float64 `json:"alt_m"`
}

// ECEFToGeodetic converts an ECEF position in km to geodetic coordinates
// using the iterative Bowring method. Converges in 2-3 iterations for Earth orbits.
func ECEFToGeodetic(pos r3.Vec) GeodeticPoint {
	x, y, z := pos.X*1000.0, pos.Y*1000.0, pos.Z*1000.0
	lon := math.Atan2(y, x)

	p := math.Sqrt(x*x + y*y)

	lat := math.Atan2(z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(z+wgs84E2*N*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - N
	} else {
		alt = math.Abs(z)/math.Abs(sinLat) - N*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltM:   alt,
	}
}
