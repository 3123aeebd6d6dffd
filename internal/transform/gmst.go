package transform

import "math"

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// EarthRotation returns the Greenwich Mean Sidereal Time in radians at e,
// taking UT1 as UTC. It uses the IAU-82 model (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0 and the result is in
// seconds of time. Epochs are accepted over the leap-second table's range,
// 1972 up to 2100.
func EarthRotation(e Epoch) (float64, error) {
	utc, err := Convert(e, ScaleUTC)
	if err != nil {
		return 0, err
	}
	if utc.sec < validFrom || utc.sec >= validUntil {
		return 0, &EpochError{Epoch: e, Reason: "outside the sidereal time model range 1972-2100"}
	}
	return gmstCenturies(utc.sec / 86400.0 / 36525.0), nil
}

func gmstCenturies(tUT1 float64) float64 {
	// GMST in seconds of time.
	// 876600h = 876600 * 3600 = 3155760000 seconds.
	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	// Normalize to [0, 86400) seconds, then convert to radians.
	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	gmstRad := gmstSec / 86400.0 * 2.0 * math.Pi

	return gmstRad
}
