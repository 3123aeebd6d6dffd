// Package scan runs scenario computations: access windows over every
// station and mask, ephemerides and observation series. The CLI and the
// HTTP API share it.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/utat-ss/hermes/internal/config"
	"github.com/utat-ss/hermes/internal/passes"
	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
	"github.com/utat-ss/hermes/internal/visibility"
)

// ErrTooManyPoints is returned when a series would exceed its point limit.
var ErrTooManyPoints = errors.New("too many points requested")

// Env carries the shared resources of a computation.
type Env struct {
	Cache *propagation.ConstantsCache
	// NodeStep spaces the interpolation nodes of numerical sources.
	NodeStep time.Duration
	Workers  int
}

func (e Env) nodeStep() time.Duration {
	if e.NodeStep <= 0 {
		return time.Minute
	}
	return e.NodeStep
}

// Windows finds the access windows of a scenario over every station and
// mask. es overrides the scenario's own initial condition when non-nil.
// Windows are sorted by start epoch.
func Windows(ctx context.Context, sc *config.Scenario, es *tle.ElementSet, env Env) ([]passes.Window, error) {
	plans, err := sc.Plans()
	if err != nil {
		return nil, err
	}
	start, end, err := sc.Window()
	if err != nil {
		return nil, err
	}
	req, err := sc.Request(es)
	if err != nil {
		return nil, err
	}
	src, err := propagation.NewSource(req, start, end, env.nodeStep(), env.Cache)
	if err != nil {
		return nil, err
	}

	opts := sc.Options()
	var jobs []passes.Job
	for _, p := range plans {
		for _, m := range p.Masks {
			jobs = append(jobs, passes.Job{
				Source:  src,
				Station: p.Station.WithMask(m),
				Start:   start,
				End:     end,
				Step:    sc.Step.D(),
				Options: opts,
			})
		}
	}
	return passes.Predict(ctx, jobs, env.Workers)
}

// Epochs returns start, start+step, ... up to and including end. limit
// caps the count when positive.
func Epochs(start, end transform.Epoch, step time.Duration, limit int) ([]transform.Epoch, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive", passes.ErrInvalidTimeSpan)
	}
	end, err := transform.Convert(end, start.Scale())
	if err != nil {
		return nil, err
	}
	span := end.Sub(start)
	if span < 0 {
		return nil, fmt.Errorf("%w: end %s precedes start %s", passes.ErrInvalidTimeSpan, end, start)
	}
	n := int(math.Floor(span/step.Seconds()+1e-9)) + 1
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: %d points exceed the limit of %d", ErrTooManyPoints, n, limit)
	}
	out := make([]transform.Epoch, n)
	for i := range out {
		out[i] = start.AddDuration(time.Duration(i) * step)
	}
	return out, nil
}

// Ephemeris propagates req over epochs and returns the states in frame.
// site is required for topocentric output.
func Ephemeris(ctx context.Context, req propagation.Request, epochs []transform.Epoch, frame transform.Frame, site *transform.Site, cache *propagation.ConstantsCache) ([]propagation.StateVector, error) {
	if frame == transform.FrameTopocentric && site == nil {
		return nil, fmt.Errorf("%w: topocentric output needs a station", transform.ErrUnsupportedFrame)
	}
	p, err := propagation.New(req, cache)
	if err != nil {
		return nil, err
	}
	states, err := p.Ephemeris(epochs)
	if err != nil {
		return nil, err
	}
	for i := range states {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if states[i], err = states[i].In(frame, site); err != nil {
			return nil, err
		}
	}
	return states, nil
}

// Observations evaluates station against src at every epoch.
func Observations(ctx context.Context, src propagation.Source, station visibility.GroundStation, epochs []transform.Epoch, preds []visibility.Predicate) ([]visibility.Observation, error) {
	out := make([]visibility.Observation, 0, len(epochs))
	for _, at := range epochs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sv, err := src.Propagate(at)
		if err != nil {
			return nil, err
		}
		obs, err := visibility.Evaluate(sv, station, at, preds...)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}
