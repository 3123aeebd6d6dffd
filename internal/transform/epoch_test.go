package transform

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestToUniformLeapSeconds(t *testing.T) {
	tests := []struct {
		name string
		utc  time.Time
		want float64 // TAI-UTC
	}{
		{"first table entry", time.Date(1972, 1, 1, 0, 0, 0, 0, time.UTC), 10},
		{"J2000", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 32},
		{"before 2017 step", time.Date(2016, 12, 31, 23, 59, 59, 0, time.UTC), 36},
		{"after 2017 step", time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), 37},
		{"recent", time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), 37},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEpoch(tt.utc)
			u, err := ToUniform(e)
			if err != nil {
				t.Fatalf("ToUniform: %v", err)
			}
			if u.Scale() != ScaleTAI {
				t.Errorf("scale = %s, want TAI", u.Scale())
			}
			if got := u.Sub(EpochFromSeconds(e.Seconds(), ScaleTAI)); got != tt.want {
				t.Errorf("TAI-UTC = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUniformRoundTrip(t *testing.T) {
	base := NewEpoch(time.Date(2023, 10, 1, 6, 42, 23, 371000000, time.UTC))
	for _, s := range []Scale{ScaleUTC, ScaleTAI, ScaleTT} {
		t.Run(s.String(), func(t *testing.T) {
			out, err := FromUniform(base, s)
			if err != nil {
				t.Fatalf("FromUniform: %v", err)
			}
			back, err := Convert(out, ScaleUTC)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if math.Abs(back.Sub(base)) > 1e-6 {
				t.Errorf("round trip drift %.3e s", back.Sub(base))
			}
		})
	}
}

func TestToUniformSpansLeapSecond(t *testing.T) {
	// One civil second across the end of 2016 is two SI seconds.
	a, _ := ToUniform(NewEpoch(time.Date(2016, 12, 31, 23, 59, 59, 0, time.UTC)))
	b, _ := ToUniform(NewEpoch(time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)))
	if got := b.Sub(a); got != 2 {
		t.Errorf("elapsed = %v s, want 2", got)
	}
}

func TestTTOffset(t *testing.T) {
	e := NewEpoch(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	tt, err := Convert(e, ScaleTT)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got := tt.Seconds() - e.Seconds(); math.Abs(got-69.184) > 1e-6 {
		t.Errorf("TT-UTC = %v, want 69.184", got)
	}
}

func TestToUniformOutOfRange(t *testing.T) {
	tests := []Epoch{
		NewEpoch(time.Date(1965, 1, 1, 0, 0, 0, 0, time.UTC)),
		NewEpoch(time.Date(2150, 1, 1, 0, 0, 0, 0, time.UTC)),
		EpochFromSeconds(-1e10, ScaleTAI),
	}
	for _, e := range tests {
		_, err := ToUniform(e)
		if !errors.Is(err, ErrInvalidEpoch) {
			t.Errorf("ToUniform(%s) err = %v, want ErrInvalidEpoch", e, err)
		}
		var ee *EpochError
		if !errors.As(err, &ee) {
			t.Errorf("ToUniform(%s) err is not *EpochError", e)
		}
	}
}

func TestParseDayOfYear(t *testing.T) {
	tests := []struct {
		name    string
		ts      string
		year    int
		want    time.Time
		wantErr bool
	}{
		{
			name: "mission epoch",
			ts:   "274:06:42:23.371",
			year: 2023,
			want: time.Date(2023, 10, 1, 6, 42, 23, 371000000, time.UTC),
		},
		{
			name: "first day",
			ts:   "001:00:00:00.000",
			year: 2024,
			want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "leap day of year",
			ts:   "366:12:00:00",
			year: 2024,
			want: time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC),
		},
		{name: "day 366 in common year", ts: "366:00:00:00", year: 2023, wantErr: true},
		{name: "day zero", ts: "000:00:00:00", year: 2023, wantErr: true},
		{name: "bad hour", ts: "100:24:00:00", year: 2023, wantErr: true},
		{name: "too few fields", ts: "100:00:00", year: 2023, wantErr: true},
		{name: "not a number", ts: "abc:00:00:00", year: 2023, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDayOfYear(tt.ts, tt.year)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDayOfYear(%q) = %v, want error", tt.ts, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDayOfYear(%q): %v", tt.ts, err)
			}
			if d := got.Time().Sub(tt.want); d > time.Microsecond || d < -time.Microsecond {
				t.Errorf("ParseDayOfYear(%q) = %v, want %v", tt.ts, got.Time(), tt.want)
			}
		})
	}
}

func TestEpochString(t *testing.T) {
	e := NewEpoch(time.Date(2024, 4, 10, 12, 30, 0, 0, time.UTC))
	if got, want := e.String(), "2024-04-10T12:30:00.000Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	b, err := e.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if got, want := string(b), `"2024-04-10T12:30:00Z"`; got != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}
}

func TestEpochUnmarshalJSON(t *testing.T) {
	utc := NewEpoch(time.Date(2024, 4, 10, 12, 30, 0, 500_000_000, time.UTC))
	tai, err := ToUniform(utc)
	if err != nil {
		t.Fatalf("ToUniform: %v", err)
	}
	for _, e := range []Epoch{utc, tai} {
		b, err := e.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON: %v", err)
		}
		var got Epoch
		if err := got.UnmarshalJSON(b); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", b, err)
		}
		if got.Scale() != e.Scale() || math.Abs(got.Sub(e)) > 1e-3 {
			t.Errorf("UnmarshalJSON(%s) = %s, want %s", b, got, e)
		}
	}

	for _, bad := range []string{`12`, `"yesterday"`, `"2024-04-10T12:30:00.000 GPS"`} {
		var e Epoch
		if err := e.UnmarshalJSON([]byte(bad)); err == nil {
			t.Errorf("UnmarshalJSON(%s) succeeded, want error", bad)
		}
	}
}
