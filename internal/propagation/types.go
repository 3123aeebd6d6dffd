package propagation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
)

// StateVector is a frame-tagged position (km) and velocity (km/s).
type StateVector = transform.StateVector

// ConvergenceError reports a Kepler solve that hit the iteration cap.
type ConvergenceError = orbit.ConvergenceError

var (
	// ErrInvalidOrbit is returned for inputs that do not describe a closed orbit.
	ErrInvalidOrbit = orbit.ErrInvalidOrbit
	// ErrNoConvergence is returned when an iterative solver gives up.
	ErrNoConvergence = orbit.ErrNoConvergence
	// ErrInvalidRequest is returned for malformed propagation requests.
	ErrInvalidRequest = errors.New("invalid propagation request")
)

// Model selects the propagation method.
type Model uint8

const (
	// ModelKepler advances mean elements analytically with optional secular terms.
	ModelKepler Model = iota + 1
	// ModelSGP4 runs the SGP4 analytic theory.
	ModelSGP4
	// ModelNumerical integrates the equations of motion.
	ModelNumerical
)

func (m Model) String() string {
	switch m {
	case ModelKepler:
		return "kepler"
	case ModelSGP4:
		return "sgp4"
	case ModelNumerical:
		return "numerical"
	default:
		return fmt.Sprintf("Model(%d)", uint8(m))
	}
}

// ParseModel accepts the names produced by Model.String, plus "analytic".
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kepler", "analytic":
		return ModelKepler, nil
	case "sgp4":
		return ModelSGP4, nil
	case "numerical":
		return ModelNumerical, nil
	}
	return 0, fmt.Errorf("%w: unknown model %q", ErrInvalidRequest, s)
}

// Perturbations toggles the force-model terms beyond two-body gravity.
// Drag applies to the analytic model only, through the mean motion derivatives.
type Perturbations struct {
	J2   bool `yaml:"j2" json:"j2"`
	Drag bool `yaml:"drag" json:"drag"`
}

// IntegratorConfig controls numerical propagation.
type IntegratorConfig struct {
	Step      time.Duration // initial (adaptive) or fixed step
	Adaptive  bool
	Tolerance float64 // km, per-step local error bound when adaptive
	MinStep   time.Duration
	MaxStep   time.Duration
}

// Integrator defaults.
const (
	DefaultStep      = 10 * time.Second
	DefaultTolerance = 1e-6
	DefaultMinStep   = time.Millisecond
	DefaultMaxStep   = 5 * time.Minute
)

func (c IntegratorConfig) withDefaults() IntegratorConfig {
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.MinStep <= 0 {
		c.MinStep = DefaultMinStep
	}
	if c.MaxStep <= 0 {
		c.MaxStep = DefaultMaxStep
	}
	return c
}

// Request describes what to propagate. Exactly one of Elements and State
// is set. A zero Model picks ModelKepler for elements and ModelNumerical
// for states.
type Request struct {
	Elements      *tle.ElementSet
	State         *StateVector
	Model         Model
	Perturbations Perturbations
	Integrator    IntegratorConfig
}

// Validate checks the request's shape without touching the orbit itself.
func (r Request) Validate() error {
	switch {
	case r.Elements == nil && r.State == nil:
		return fmt.Errorf("%w: neither elements nor state given", ErrInvalidRequest)
	case r.Elements != nil && r.State != nil:
		return fmt.Errorf("%w: both elements and state given", ErrInvalidRequest)
	}
	switch r.Model {
	case 0, ModelKepler, ModelSGP4, ModelNumerical:
	default:
		return fmt.Errorf("%w: unknown model %s", ErrInvalidRequest, r.Model)
	}
	if r.Integrator.MinStep > 0 && r.Integrator.MaxStep > 0 && r.Integrator.MinStep > r.Integrator.MaxStep {
		return fmt.Errorf("%w: integrator min step %s exceeds max step %s", ErrInvalidRequest, r.Integrator.MinStep, r.Integrator.MaxStep)
	}
	return nil
}

func (r Request) model() Model {
	if r.Model != 0 {
		return r.Model
	}
	if r.State != nil {
		return ModelNumerical
	}
	return ModelKepler
}

// SatellitePosition holds one catalog object's Earth-fixed state at a batch epoch.
type SatellitePosition struct {
	CatalogNumber int                     `json:"norad_id"`
	Name          string                  `json:"name,omitempty"`
	Position      r3.Vec                  `json:"position_km"`
	Velocity      r3.Vec                  `json:"velocity_kms"`
	Geodetic      transform.GeodeticPoint `json:"geodetic"`
}
