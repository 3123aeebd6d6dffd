// Package config loads window-scan scenarios from YAML and server settings
// from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/utat-ss/hermes/internal/passes"
	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
	"github.com/utat-ss/hermes/internal/visibility"
)

// ErrInvalidScenario is the sentinel behind every FieldError.
var ErrInvalidScenario = errors.New("invalid scenario")

// FieldError names the scenario key that failed validation.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string { return e.Key + ": " + e.Reason }

func (e *FieldError) Unwrap() error { return ErrInvalidScenario }

func fieldErr(key, format string, args ...any) error {
	return &FieldError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// Scenario defaults.
const (
	DefaultScanStep  = 30 * time.Second
	DefaultTolerance = time.Second
)

// Scenario describes one window computation: where, when, with which
// propagation model and constraints.
type Scenario struct {
	Stations      []Station                 `yaml:"stations" json:"stations"`
	Span          Span                      `yaml:"span" json:"span"`
	Step          Duration                  `yaml:"step" json:"step"`
	Tolerance     Duration                  `yaml:"tolerance" json:"tolerance"`
	Mode          string                    `yaml:"mode" json:"mode"`
	Perturbations propagation.Perturbations `yaml:"perturbations" json:"perturbations"`
	Integrator    Integrator                `yaml:"integrator" json:"integrator"`
	Predicates    Predicates                `yaml:"predicates" json:"predicates"`
	Output        Output                    `yaml:"output" json:"output"`

	State          *State     `yaml:"state" json:"state,omitempty"`
	StateTimestamp *DayOfYear `yaml:"state_timestamp" json:"state_timestamp,omitempty"`
	TLE            string     `yaml:"tle" json:"tle,omitempty"`
}

// Station is a ground station entry. Each constant mask, and the azimuth
// mask when present, gets its own window list.
type Station struct {
	Name        string                 `yaml:"name" json:"name"`
	Latitude    float64                `yaml:"latitude" json:"latitude"`
	Longitude   float64                `yaml:"longitude" json:"longitude"`
	AltitudeM   float64                `yaml:"altitude_m" json:"altitude_m"`
	Masks       []float64              `yaml:"masks" json:"masks,omitempty"`
	AzimuthMask []visibility.MaskPoint `yaml:"azimuth_mask" json:"azimuth_mask,omitempty"`
}

// Span is the scan interval. Exactly one of Duration and End is given.
type Span struct {
	Start    string   `yaml:"start" json:"start"`
	Duration Duration `yaml:"duration" json:"duration,omitempty"`
	End      string   `yaml:"end" json:"end,omitempty"`
}

// Integrator mirrors propagation.IntegratorConfig.
type Integrator struct {
	Step      Duration `yaml:"step" json:"step,omitempty"`
	Adaptive  bool     `yaml:"adaptive" json:"adaptive"`
	Tolerance float64  `yaml:"tolerance" json:"tolerance,omitempty"`
	MinStep   Duration `yaml:"min_step" json:"min_step,omitempty"`
	MaxStep   Duration `yaml:"max_step" json:"max_step,omitempty"`
}

// Predicates enables secondary visibility conditions. Zero values disable
// a condition, except StationDarkDeg which is enabled by being present.
type Predicates struct {
	MaxRangeKm      float64  `yaml:"max_range_km" json:"max_range_km,omitempty"`
	Sunlit          bool     `yaml:"sunlit" json:"sunlit,omitempty"`
	StationDarkDeg  *float64 `yaml:"station_dark_deg" json:"station_dark_deg,omitempty"`
	SunExclusionDeg float64  `yaml:"sun_exclusion_deg" json:"sun_exclusion_deg,omitempty"`
}

// Output shapes the window lists.
type Output struct {
	MinDuration     Duration `yaml:"min_duration" json:"min_duration,omitempty"`
	MaxWindows      int      `yaml:"max_windows" json:"max_windows,omitempty"`
	GroundTrackStep Duration `yaml:"ground_track_step" json:"ground_track_step,omitempty"`
}

// State is an initial Cartesian state. Epoch is RFC 3339 unless the
// scenario gives a day-of-year state_timestamp instead.
type State struct {
	Epoch       string     `yaml:"epoch" json:"epoch,omitempty"`
	Scale       string     `yaml:"scale" json:"scale,omitempty"`
	Frame       string     `yaml:"frame" json:"frame"`
	PositionKm  [3]float64 `yaml:"position_km" json:"position_km"`
	VelocityKmS [3]float64 `yaml:"velocity_kms" json:"velocity_kms"`
}

// DayOfYear is a mission timestamp such as "274:06:42:23.371" in a year.
type DayOfYear struct {
	DayOfYear string `yaml:"day_of_year" json:"day_of_year"`
	Year      int    `yaml:"year" json:"year"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a YAML (or JSON) scenario, applies defaults and validates
// it. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyDefaults fills unset scan settings.
func (s *Scenario) ApplyDefaults() {
	if s.Step == 0 {
		s.Step = Duration(DefaultScanStep)
	}
	if s.Tolerance == 0 {
		s.Tolerance = Duration(DefaultTolerance)
	}
}

// Validate checks every field and reports the first offending key.
func (s *Scenario) Validate() error {
	if len(s.Stations) == 0 {
		return fieldErr("stations", "at least one station is required")
	}
	names := make(map[string]bool, len(s.Stations))
	for i, st := range s.Stations {
		key := fmt.Sprintf("stations[%d]", i)
		if strings.TrimSpace(st.Name) == "" {
			return fieldErr(key+".name", "required")
		}
		if names[st.Name] {
			return fieldErr(key+".name", "duplicate station %q", st.Name)
		}
		names[st.Name] = true
		if _, err := st.plan(); err != nil {
			var fe *FieldError
			if errors.As(err, &fe) {
				fe.Key = key + "." + fe.Key
				return fe
			}
			return fieldErr(key, "%v", err)
		}
	}

	if _, _, err := s.Window(); err != nil {
		return err
	}
	if s.Step <= 0 {
		return fieldErr("step", "must be positive, got %s", s.Step.D())
	}
	if s.Tolerance <= 0 {
		return fieldErr("tolerance", "must be positive, got %s", s.Tolerance.D())
	}
	if s.Mode != "" {
		if _, err := propagation.ParseModel(s.Mode); err != nil {
			return fieldErr("mode", "want analytic, kepler, sgp4 or numerical, got %q", s.Mode)
		}
	}

	ic := s.Integrator
	switch {
	case ic.Step < 0:
		return fieldErr("integrator.step", "must not be negative")
	case ic.Tolerance < 0 || math.IsNaN(ic.Tolerance):
		return fieldErr("integrator.tolerance", "must not be negative")
	case ic.MinStep > 0 && ic.MaxStep > 0 && ic.MinStep > ic.MaxStep:
		return fieldErr("integrator.min_step", "%s exceeds max_step %s", ic.MinStep.D(), ic.MaxStep.D())
	}

	p := s.Predicates
	switch {
	case p.MaxRangeKm < 0:
		return fieldErr("predicates.max_range_km", "must not be negative")
	case p.SunExclusionDeg < 0 || p.SunExclusionDeg > 180:
		return fieldErr("predicates.sun_exclusion_deg", "%g outside [0, 180]", p.SunExclusionDeg)
	case p.StationDarkDeg != nil && (*p.StationDarkDeg < -90 || *p.StationDarkDeg > 90):
		return fieldErr("predicates.station_dark_deg", "%g outside [-90, 90]", *p.StationDarkDeg)
	}

	o := s.Output
	switch {
	case o.MinDuration < 0:
		return fieldErr("output.min_duration", "must not be negative")
	case o.MaxWindows < 0:
		return fieldErr("output.max_windows", "must not be negative")
	case o.GroundTrackStep < 0:
		return fieldErr("output.ground_track_step", "must not be negative")
	}

	if s.State != nil && strings.TrimSpace(s.TLE) != "" {
		return fieldErr("state", "conflicts with tle; give one initial condition")
	}
	if s.StateTimestamp != nil && s.State == nil {
		return fieldErr("state_timestamp", "given without state")
	}
	if s.State != nil {
		if _, err := s.StateVector(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(s.TLE) != "" {
		if _, err := s.ElementSet(); err != nil {
			return err
		}
	}
	return nil
}

// Window returns the scan span as UTC epochs.
func (s *Scenario) Window() (transform.Epoch, transform.Epoch, error) {
	if s.Span.Start == "" {
		return transform.Epoch{}, transform.Epoch{}, fieldErr("span.start", "required")
	}
	start, err := parseTime(s.Span.Start)
	if err != nil {
		return transform.Epoch{}, transform.Epoch{}, fieldErr("span.start", "%v", err)
	}
	switch {
	case s.Span.End != "" && s.Span.Duration != 0:
		return transform.Epoch{}, transform.Epoch{}, fieldErr("span", "give duration or end, not both")
	case s.Span.End != "":
		end, err := parseTime(s.Span.End)
		if err != nil {
			return transform.Epoch{}, transform.Epoch{}, fieldErr("span.end", "%v", err)
		}
		if !end.After(start) {
			return transform.Epoch{}, transform.Epoch{}, fieldErr("span.end", "must be after span.start")
		}
		return transform.NewEpoch(start), transform.NewEpoch(end), nil
	case s.Span.Duration <= 0:
		return transform.Epoch{}, transform.Epoch{}, fieldErr("span.duration", "must be positive")
	}
	e := transform.NewEpoch(start)
	return e, e.AddDuration(s.Span.Duration.D()), nil
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 time, got %q", v)
	}
	return t.UTC(), nil
}

// StationPlan is a ground station with every mask it should be scanned
// against. Station carries the first mask.
type StationPlan struct {
	Station visibility.GroundStation
	Masks   []visibility.Mask
}

// Plans builds the ground stations in configuration order.
func (s *Scenario) Plans() ([]StationPlan, error) {
	plans := make([]StationPlan, len(s.Stations))
	for i, st := range s.Stations {
		p, err := st.plan()
		if err != nil {
			return nil, fmt.Errorf("stations[%d]: %w", i, err)
		}
		plans[i] = p
	}
	return plans, nil
}

func (st Station) plan() (StationPlan, error) {
	var masks []visibility.Mask
	for i, m := range st.Masks {
		if math.IsNaN(m) || m < -90 || m > 90 {
			return StationPlan{}, fieldErr(fmt.Sprintf("masks[%d]", i), "%g outside [-90, 90]", m)
		}
		masks = append(masks, visibility.ConstantMask(m))
	}
	if len(st.AzimuthMask) > 0 {
		am, err := visibility.NewAzimuthMask(st.AzimuthMask)
		if err != nil {
			return StationPlan{}, fieldErr("azimuth_mask", "%v", err)
		}
		masks = append(masks, am)
	}
	if len(masks) == 0 {
		masks = []visibility.Mask{visibility.ConstantMask(0)}
	}

	gs, err := visibility.NewGroundStation(st.Name, st.Latitude, st.Longitude, st.AltitudeM, masks[0])
	if err != nil {
		key := "latitude"
		switch {
		case st.Longitude < -180 || st.Longitude > 360 || math.IsNaN(st.Longitude):
			key = "longitude"
		case st.AltitudeM < -12000 || st.AltitudeM > 100000 || math.IsNaN(st.AltitudeM) || math.IsInf(st.AltitudeM, 0):
			key = "altitude_m"
		}
		return StationPlan{}, fieldErr(key, "%v", err)
	}
	return StationPlan{Station: gs, Masks: masks}, nil
}

// PredicateList returns the enabled predicates in a fixed order: range,
// station darkness, spacecraft sunlight, then sun exclusion.
func (s *Scenario) PredicateList() []visibility.Predicate {
	var preds []visibility.Predicate
	p := s.Predicates
	if p.MaxRangeKm > 0 {
		preds = append(preds, visibility.MaxRange(p.MaxRangeKm))
	}
	if p.StationDarkDeg != nil {
		preds = append(preds, visibility.StationInDarkness(*p.StationDarkDeg))
	}
	if p.Sunlit {
		preds = append(preds, visibility.SpacecraftSunlit{})
	}
	if p.SunExclusionDeg > 0 {
		preds = append(preds, visibility.SunAngleExclusion(p.SunExclusionDeg))
	}
	return preds
}

// Options returns the window-finder options for the scenario.
func (s *Scenario) Options() passes.Options {
	return passes.Options{
		Tolerance:       s.Tolerance.D(),
		Predicates:      s.PredicateList(),
		MinDuration:     s.Output.MinDuration.D(),
		MaxWindows:      s.Output.MaxWindows,
		GroundTrackStep: s.Output.GroundTrackStep.D(),
	}
}

// Model returns the configured propagation model, zero when unset.
func (s *Scenario) Model() propagation.Model {
	m, _ := propagation.ParseModel(s.Mode)
	return m
}

// StateVector returns the configured initial state, or nil when the
// scenario has none.
func (s *Scenario) StateVector() (*propagation.StateVector, error) {
	if s.State == nil {
		return nil, nil
	}
	st := s.State
	frame, err := transform.ParseFrame(st.Frame)
	if err != nil {
		return nil, fieldErr("state.frame", "%v", err)
	}
	if frame == transform.FrameTopocentric {
		return nil, fieldErr("state.frame", "topocentric states are not supported")
	}

	var epoch transform.Epoch
	switch {
	case st.Epoch != "" && s.StateTimestamp != nil:
		return nil, fieldErr("state.epoch", "conflicts with state_timestamp")
	case st.Epoch != "":
		t, err := parseTime(st.Epoch)
		if err != nil {
			return nil, fieldErr("state.epoch", "%v", err)
		}
		epoch = transform.NewEpoch(t)
	case s.StateTimestamp != nil:
		epoch, err = transform.ParseDayOfYear(s.StateTimestamp.DayOfYear, s.StateTimestamp.Year)
		if err != nil {
			return nil, fieldErr("state_timestamp", "%v", err)
		}
	default:
		return nil, fieldErr("state.epoch", "required")
	}
	if st.Scale != "" {
		scale, err := transform.ParseScale(st.Scale)
		if err != nil {
			return nil, fieldErr("state.scale", "%v", err)
		}
		// Reinterpret the civil reading in the named scale.
		epoch = transform.EpochFromSeconds(epoch.Seconds(), scale)
	}

	sv := &propagation.StateVector{
		Epoch:    epoch,
		Position: vec(st.PositionKm),
		Velocity: vec(st.VelocityKmS),
		Frame:    frame,
	}
	if !sv.Finite() {
		return nil, fieldErr("state", "non-finite component")
	}
	return sv, nil
}

// ElementSet parses the embedded element record, or returns nil when the
// scenario has none.
func (s *Scenario) ElementSet() (*tle.ElementSet, error) {
	text := strings.TrimSpace(s.TLE)
	if text == "" {
		return nil, nil
	}
	es, err := tle.Parse(text)
	if err != nil {
		return nil, fieldErr("tle", "%v", err)
	}
	return &es, nil
}

// Request builds the propagation request. es overrides the scenario's own
// initial condition when non-nil.
func (s *Scenario) Request(es *tle.ElementSet) (propagation.Request, error) {
	req := propagation.Request{
		Model:         s.Model(),
		Perturbations: s.Perturbations,
		Integrator: propagation.IntegratorConfig{
			Step:      s.Integrator.Step.D(),
			Adaptive:  s.Integrator.Adaptive,
			Tolerance: s.Integrator.Tolerance,
			MinStep:   s.Integrator.MinStep.D(),
			MaxStep:   s.Integrator.MaxStep.D(),
		},
	}
	if es != nil {
		req.Elements = es
		return req, nil
	}
	own, err := s.ElementSet()
	if err != nil {
		return propagation.Request{}, err
	}
	if own != nil {
		req.Elements = own
		return req, nil
	}
	sv, err := s.StateVector()
	if err != nil {
		return propagation.Request{}, err
	}
	if sv == nil {
		return propagation.Request{}, fieldErr("state", "an element set or a state is required")
	}
	req.State = sv
	return req, nil
}

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }
