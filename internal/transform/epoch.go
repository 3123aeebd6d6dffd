package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidEpoch is returned when an epoch falls outside the range the time
// and frame models support.
var ErrInvalidEpoch = errors.New("invalid epoch")

// EpochError describes an epoch that could not be converted or used.
type EpochError struct {
	Epoch  Epoch
	Reason string
}

func (e *EpochError) Error() string {
	return fmt.Sprintf("invalid epoch %s: %s", e.Epoch, e.Reason)
}

func (e *EpochError) Unwrap() error { return ErrInvalidEpoch }

// Scale identifies the time scale an Epoch is counted in.
type Scale uint8

const (
	ScaleUTC Scale = iota
	ScaleTAI
	ScaleTT
)

func (s Scale) String() string {
	switch s {
	case ScaleUTC:
		return "UTC"
	case ScaleTAI:
		return "TAI"
	case ScaleTT:
		return "TT"
	default:
		return "Scale(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseScale accepts "utc", "tai" or "tt" in any case.
func ParseScale(s string) (Scale, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UTC":
		return ScaleUTC, nil
	case "TAI":
		return ScaleTAI, nil
	case "TT":
		return ScaleTT, nil
	}
	return 0, fmt.Errorf("unknown time scale %q", s)
}

// ttMinusTAI is the fixed offset between Terrestrial Time and TAI in seconds.
const ttMinusTAI = 32.184

// j2000Civil anchors the second count of every scale.
var j2000Civil = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// Epoch is an instant expressed as seconds since 2000-01-01T12:00:00 read in
// its own time scale. UTC epochs do not count leap seconds, matching
// time.Time. Uniform (TAI) epochs do, so differences between them are true
// elapsed SI seconds.
type Epoch struct {
	sec   float64
	scale Scale
}

// NewEpoch returns the UTC epoch of t.
func NewEpoch(t time.Time) Epoch {
	d := t.Sub(j2000Civil)
	return Epoch{sec: d.Seconds(), scale: ScaleUTC}
}

// EpochFromSeconds builds an epoch from a raw second count since J2000 in scale s.
func EpochFromSeconds(sec float64, s Scale) Epoch {
	return Epoch{sec: sec, scale: s}
}

// Seconds returns the count of seconds since J2000 in the epoch's scale.
func (e Epoch) Seconds() float64 { return e.sec }

// Scale returns the time scale of e.
func (e Epoch) Scale() Scale { return e.scale }

// Time returns the calendar reading of e in its own scale. Convert to
// ScaleUTC first to obtain civil time.
func (e Epoch) Time() time.Time {
	return j2000Civil.Add(time.Duration(math.Round(e.sec * 1e9)))
}

// Add returns e shifted by sec seconds in the same scale.
func (e Epoch) Add(sec float64) Epoch { return Epoch{sec: e.sec + sec, scale: e.scale} }

// AddDuration returns e shifted by d.
func (e Epoch) AddDuration(d time.Duration) Epoch { return e.Add(d.Seconds()) }

// Sub returns e - o in seconds. Both epochs must share a scale; use ToUniform
// first when they may not.
func (e Epoch) Sub(o Epoch) float64 { return e.sec - o.sec }

func (e Epoch) Before(o Epoch) bool { return e.sec < o.sec }
func (e Epoch) After(o Epoch) bool  { return e.sec > o.sec }
func (e Epoch) Equal(o Epoch) bool  { return e.sec == o.sec && e.scale == o.scale }

// JulianDate returns the Julian Date of e in its own scale.
func (e Epoch) JulianDate() float64 { return j2000 + e.sec/86400.0 }

func (e Epoch) String() string {
	s := e.Time().Format("2006-01-02T15:04:05.000")
	if e.scale == ScaleUTC {
		return s + "Z"
	}
	return s + " " + e.scale.String()
}

// MarshalJSON renders UTC epochs as RFC 3339 and other scales with a suffix.
func (e Epoch) MarshalJSON() ([]byte, error) {
	if e.scale == ScaleUTC {
		return []byte(strconv.Quote(e.Time().Format(time.RFC3339Nano))), nil
	}
	return []byte(strconv.Quote(e.String())), nil
}

// UnmarshalJSON accepts the forms MarshalJSON writes.
func (e *Epoch) UnmarshalJSON(b []byte) error {
	v, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("%w: epoch must be a JSON string", ErrInvalidEpoch)
	}
	if civil, name, ok := strings.Cut(v, " "); ok {
		scale, err := ParseScale(name)
		if err != nil {
			return err
		}
		t, err := time.Parse("2006-01-02T15:04:05.000", civil)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidEpoch, v, err)
		}
		*e = EpochFromSeconds(t.Sub(j2000Civil).Seconds(), scale)
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidEpoch, v, err)
	}
	*e = NewEpoch(t)
	return nil
}

// leapSecond is a TAI-UTC step taking effect at utc (seconds since J2000, UTC).
type leapSecond struct {
	utc   float64
	delta float64
}

// Model validity bounds, in UTC seconds since J2000.
var (
	validFrom  = NewEpoch(time.Date(1972, 1, 1, 0, 0, 0, 0, time.UTC)).sec
	validUntil = NewEpoch(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)).sec
)

var leapSeconds = buildLeapTable([]struct {
	y, m  int
	delta float64
}{
	{1972, 1, 10}, {1972, 7, 11}, {1973, 1, 12}, {1974, 1, 13},
	{1975, 1, 14}, {1976, 1, 15}, {1977, 1, 16}, {1978, 1, 17},
	{1979, 1, 18}, {1980, 1, 19}, {1981, 7, 20}, {1982, 7, 21},
	{1983, 7, 22}, {1985, 7, 23}, {1988, 1, 24}, {1990, 1, 25},
	{1991, 1, 26}, {1992, 7, 27}, {1993, 7, 28}, {1994, 7, 29},
	{1996, 1, 30}, {1997, 7, 31}, {1999, 1, 32}, {2006, 1, 33},
	{2009, 1, 34}, {2012, 7, 35}, {2015, 7, 36}, {2017, 1, 37},
})

func buildLeapTable(rows []struct {
	y, m  int
	delta float64
}) []leapSecond {
	out := make([]leapSecond, len(rows))
	for i, r := range rows {
		t := time.Date(r.y, time.Month(r.m), 1, 0, 0, 0, 0, time.UTC)
		out[i] = leapSecond{utc: NewEpoch(t).sec, delta: r.delta}
	}
	return out
}

// taiMinusUTC returns TAI-UTC at a UTC second count.
func taiMinusUTC(utc float64) (float64, bool) {
	if utc < validFrom || utc >= validUntil {
		return 0, false
	}
	for i := len(leapSeconds) - 1; i >= 0; i-- {
		if utc >= leapSeconds[i].utc {
			return leapSeconds[i].delta, true
		}
	}
	return 0, false
}

// ToUniform converts e to the uniform TAI scale used by all propagation math.
func ToUniform(e Epoch) (Epoch, error) {
	switch e.scale {
	case ScaleTAI:
		if e.sec < validFrom+leapSeconds[0].delta || e.sec >= validUntil+leapSeconds[len(leapSeconds)-1].delta {
			return Epoch{}, &EpochError{Epoch: e, Reason: "outside the supported range 1972-2100"}
		}
		return e, nil
	case ScaleTT:
		return ToUniform(Epoch{sec: e.sec - ttMinusTAI, scale: ScaleTAI})
	case ScaleUTC:
		d, ok := taiMinusUTC(e.sec)
		if !ok {
			return Epoch{}, &EpochError{Epoch: e, Reason: "no leap-second data outside 1972-2100"}
		}
		return Epoch{sec: e.sec + d, scale: ScaleTAI}, nil
	}
	return Epoch{}, &EpochError{Epoch: e, Reason: "unknown time scale"}
}

// FromUniform converts a uniform epoch into scale s. Epochs that are not
// already uniform are converted first.
func FromUniform(e Epoch, s Scale) (Epoch, error) {
	u, err := ToUniform(e)
	if err != nil {
		return Epoch{}, err
	}
	switch s {
	case ScaleTAI:
		return u, nil
	case ScaleTT:
		return Epoch{sec: u.sec + ttMinusTAI, scale: ScaleTT}, nil
	case ScaleUTC:
		for i := len(leapSeconds) - 1; i >= 0; i-- {
			utc := u.sec - leapSeconds[i].delta
			if utc >= leapSeconds[i].utc {
				return Epoch{sec: utc, scale: ScaleUTC}, nil
			}
		}
		return Epoch{}, &EpochError{Epoch: e, Reason: "precedes leap-second data"}
	}
	return Epoch{}, &EpochError{Epoch: e, Reason: "unknown time scale " + s.String()}
}

// Convert moves e into scale s through the uniform scale.
func Convert(e Epoch, s Scale) (Epoch, error) {
	if e.scale == s {
		return e, nil
	}
	return FromUniform(e, s)
}

// ParseDayOfYear parses a mission timestamp of the form DDD:HH:MM:SS.sss,
// where DDD is the day of year starting at 1, into a UTC epoch of the given year.
func ParseDayOfYear(ts string, year int) (Epoch, error) {
	parts := strings.Split(strings.TrimSpace(ts), ":")
	if len(parts) != 4 {
		return Epoch{}, fmt.Errorf("timestamp %q: want DDD:HH:MM:SS.sss", ts)
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return Epoch{}, fmt.Errorf("timestamp %q: day of year: %w", ts, err)
	}
	hour, err := strconv.Atoi(parts[1])
	if err != nil {
		return Epoch{}, fmt.Errorf("timestamp %q: hour: %w", ts, err)
	}
	minute, err := strconv.Atoi(parts[2])
	if err != nil {
		return Epoch{}, fmt.Errorf("timestamp %q: minute: %w", ts, err)
	}
	sec, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return Epoch{}, fmt.Errorf("timestamp %q: seconds: %w", ts, err)
	}

	daysInYear := 365
	if time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).YearDay() == 366 {
		daysInYear = 366
	}
	switch {
	case day < 1 || day > daysInYear:
		return Epoch{}, fmt.Errorf("timestamp %q: day %d out of range 1-%d", ts, day, daysInYear)
	case hour < 0 || hour > 23:
		return Epoch{}, fmt.Errorf("timestamp %q: hour %d out of range", ts, hour)
	case minute < 0 || minute > 59:
		return Epoch{}, fmt.Errorf("timestamp %q: minute %d out of range", ts, minute)
	case sec < 0 || sec >= 60:
		return Epoch{}, fmt.Errorf("timestamp %q: seconds %g out of range", ts, sec)
	}

	t := time.Date(year, 1, day, hour, minute, 0, 0, time.UTC)
	return NewEpoch(t).Add(sec), nil
}
