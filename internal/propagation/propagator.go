// Package propagation advances an orbit to arbitrary epochs with an analytic
// Kepler model (optionally with J2 secular rates and drag), SGP4, or a
// numerical RK4 integrator, and fans catalog-wide propagation out over a
// worker pool.
package propagation

import (
	"fmt"
	"sort"

	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
)

// Propagator advances one orbit. It is immutable after New and safe for
// concurrent use; numerical propagation allocates its integrator per call.
type Propagator struct {
	model Model
	epoch transform.Epoch
	ref   float64 // uniform seconds of epoch

	kepler *secular
	sgp4   *SGP4Propagator
	force  forceModel
	y0     state
	integ  IntegratorConfig
}

// New validates req and prepares a propagator. Per-element-set constants are
// memoized in cache when it is non-nil.
func New(req Request, cache *ConstantsCache) (*Propagator, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := &Propagator{
		model: req.model(),
		force: forceModel{j2: req.Perturbations.J2},
		integ: req.Integrator.withDefaults(),
	}

	var err error
	if req.Elements != nil {
		err = p.initElements(*req.Elements, req.Perturbations, cache)
	} else {
		err = p.initState(*req.State, req.Perturbations)
	}
	if err != nil {
		return nil, err
	}

	u, err := transform.ToUniform(p.epoch)
	if err != nil {
		return nil, err
	}
	p.ref = u.Seconds()
	return p, nil
}

func (p *Propagator) initElements(es tle.ElementSet, pert Perturbations, cache *ConstantsCache) error {
	p.epoch = es.Epoch

	switch p.model {
	case ModelKepler:
		key := fmt.Sprintf("kepler|j2=%t|drag=%t|%s", pert.J2, pert.Drag, es.Key())
		v, err := cache.load(key, func() (any, error) { return newSecularFromElements(es, pert) })
		if err != nil {
			return err
		}
		p.kepler = v.(*secular)
	case ModelSGP4:
		v, err := cache.load("sgp4|"+es.Key(), func() (any, error) { return NewSGP4Propagator(es) })
		if err != nil {
			return err
		}
		p.sgp4 = v.(*SGP4Propagator)
	case ModelNumerical:
		pos, vel, err := orbit.ToState(es.Elements(), orbit.MuEarth)
		if err != nil {
			return fmt.Errorf("catalog %d: %w", es.CatalogNumber, err)
		}
		p.y0 = stateOf(pos, vel)
	}
	return nil
}

func (p *Propagator) initState(sv StateVector, pert Perturbations) error {
	inertial, err := sv.In(transform.FrameInertial, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !inertial.Finite() {
		return fmt.Errorf("%w: state has non-finite components", ErrInvalidOrbit)
	}
	p.epoch = sv.Epoch

	switch p.model {
	case ModelKepler:
		el, err := orbit.FromState(inertial.Position, inertial.Velocity, orbit.MuEarth)
		if err != nil {
			return err
		}
		// A bare state carries no mean motion derivatives, so drag has nothing to apply.
		p.kepler, err = newSecular(el, Perturbations{J2: pert.J2})
		return err
	case ModelSGP4:
		// The osculating elements stand in for SGP4 mean elements.
		es, err := tle.FromState(inertial, tle.Template(0))
		if err != nil {
			return err
		}
		p.sgp4, err = NewSGP4Propagator(es)
		return err
	case ModelNumerical:
		// Only closed orbits are propagated.
		if _, err := orbit.FromState(inertial.Position, inertial.Velocity, orbit.MuEarth); err != nil {
			return err
		}
		p.y0 = stateOf(inertial.Position, inertial.Velocity)
	}
	return nil
}

// Model returns the propagation method in use.
func (p *Propagator) Model() Model { return p.model }

// Epoch returns the reference epoch of the initial elements or state.
func (p *Propagator) Epoch() transform.Epoch { return p.epoch }

// Propagate returns the inertial state at target. The output epoch keeps
// target's time scale.
func (p *Propagator) Propagate(target transform.Epoch) (StateVector, error) {
	dt, err := p.offset(target)
	if err != nil {
		return StateVector{}, err
	}

	var sv StateVector
	switch p.model {
	case ModelKepler:
		pos, vel, err := p.kepler.at(dt)
		if err != nil {
			return StateVector{}, err
		}
		sv = StateVector{Epoch: target, Position: pos, Velocity: vel, Frame: transform.FrameInertial}
	case ModelSGP4:
		sv, err = p.sgp4.Propagate(target)
		if err != nil {
			return StateVector{}, err
		}
	case ModelNumerical:
		y, err := newIntegrator(p.force, p.integ).advance(p.y0, dt)
		if err != nil {
			return StateVector{}, err
		}
		pos, vel := y.split()
		sv = StateVector{Epoch: target, Position: pos, Velocity: vel, Frame: transform.FrameInertial}
	}

	if !sv.Finite() {
		return StateVector{}, fmt.Errorf("%w: non-finite state at %s", ErrInvalidOrbit, target)
	}
	return sv, nil
}

// Ephemeris propagates to every epoch in targets, in order. Numerical
// propagation integrates each direction from the reference epoch once
// rather than restarting for every target.
func (p *Propagator) Ephemeris(targets []transform.Epoch) ([]StateVector, error) {
	out := make([]StateVector, len(targets))
	if p.model != ModelNumerical {
		for i, at := range targets {
			sv, err := p.Propagate(at)
			if err != nil {
				return nil, fmt.Errorf("ephemeris point %d (%s): %w", i, at, err)
			}
			out[i] = sv
		}
		return out, nil
	}

	dts := make([]float64, len(targets))
	for i, at := range targets {
		dt, err := p.offset(at)
		if err != nil {
			return nil, err
		}
		dts[i] = dt
	}

	var forward, backward []int
	for i, dt := range dts {
		if dt >= 0 {
			forward = append(forward, i)
		} else {
			backward = append(backward, i)
		}
	}
	sort.SliceStable(forward, func(a, b int) bool { return dts[forward[a]] < dts[forward[b]] })
	sort.SliceStable(backward, func(a, b int) bool { return dts[backward[a]] > dts[backward[b]] })

	for _, order := range [][]int{forward, backward} {
		in := newIntegrator(p.force, p.integ)
		y, t := p.y0, 0.0
		for _, i := range order {
			var err error
			y, err = in.advance(y, dts[i]-t)
			if err != nil {
				return nil, fmt.Errorf("ephemeris point %d (%s): %w", i, targets[i], err)
			}
			t = dts[i]
			pos, vel := y.split()
			out[i] = StateVector{Epoch: targets[i], Position: pos, Velocity: vel, Frame: transform.FrameInertial}
		}
	}
	return out, nil
}

// offset returns target minus the reference epoch in uniform seconds.
func (p *Propagator) offset(target transform.Epoch) (float64, error) {
	u, err := transform.ToUniform(target)
	if err != nil {
		return 0, err
	}
	return u.Seconds() - p.ref, nil
}

// Invariants returns the two-body energy, angular momentum and osculating
// elements of sv, converting it to the inertial frame first.
func Invariants(sv StateVector) (orbit.Invariants, error) {
	inertial, err := sv.In(transform.FrameInertial, nil)
	if err != nil {
		return orbit.Invariants{}, err
	}
	return orbit.InvariantsOf(inertial.Position, inertial.Velocity, orbit.MuEarth)
}
