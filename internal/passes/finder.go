package passes

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/utat-ss/hermes/internal/metrics"
	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/transform"
	"github.com/utat-ss/hermes/internal/visibility"
)

const invPhi = 0.6180339887498949

// sample is one evaluated epoch. Epochs inside the finder are uniform.
type sample struct {
	at  transform.Epoch
	obs visibility.Observation
}

// pending is a window that has opened but not yet closed.
type pending struct {
	start   sample
	best    sample
	partial bool
}

type finder struct {
	src     propagation.Source
	station visibility.GroundStation
	opts    Options
	step    float64
	tol     float64
}

// FindWindows samples src every step over [start, end] and returns the
// visibility windows from station in chronological order. Transitions
// between samples are refined by bisection to opts.Tolerance. A window open
// at start or end is clipped there and flagged partial. Any propagation or
// frame error aborts the scan.
func FindWindows(ctx context.Context, src propagation.Source, station visibility.GroundStation, start, end transform.Epoch, step time.Duration, opts Options) ([]Window, error) {
	began := time.Now()

	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	us, err := transform.ToUniform(start)
	if err != nil {
		return nil, err
	}
	ue, err := transform.ToUniform(end)
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step %s must be positive", ErrInvalidTimeSpan, step)
	}
	if !ue.After(us) {
		return nil, fmt.Errorf("%w: end %s not after start %s", ErrInvalidTimeSpan, end, start)
	}

	f := &finder{
		src:     src,
		station: station,
		opts:    opts,
		step:    step.Seconds(),
		tol:     opts.Tolerance.Seconds(),
	}
	windows, err := f.scan(ctx, us, ue)
	if err != nil {
		return nil, err
	}
	metrics.RecordScan(time.Since(began), len(windows))
	return windows, nil
}

func (f *finder) scan(ctx context.Context, start, end transform.Epoch) ([]Window, error) {
	n := int(math.Ceil(end.Sub(start) / f.step))

	var (
		windows []Window
		prev    sample
		open    *pending
	)
	for k := 0; k <= n; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at := start.Add(float64(k) * f.step)
		if k == n || at.After(end) {
			at = end
		}
		obs, err := f.observe(at)
		if err != nil {
			return nil, err
		}
		cur := sample{at: at, obs: obs}

		switch {
		case k == 0:
			if obs.Visible {
				open = &pending{start: cur, best: cur, partial: true}
			}
		case obs.Visible && !prev.obs.Visible:
			rise, err := f.refine(prev, cur)
			if err != nil {
				return nil, err
			}
			open = &pending{start: rise, best: cur}
		case !obs.Visible && prev.obs.Visible:
			set, err := f.refine(prev, cur)
			if err != nil {
				return nil, err
			}
			w, keep, err := f.close(open, set, false)
			if err != nil {
				return nil, err
			}
			open = nil
			if keep {
				windows = append(windows, w)
				if f.opts.MaxWindows > 0 && len(windows) >= f.opts.MaxWindows {
					return windows, nil
				}
			}
		}
		if open != nil && obs.Visible && obs.Elevation > open.best.obs.Elevation {
			open.best = cur
		}
		prev = cur
	}

	if open != nil {
		w, keep, err := f.close(open, prev, true)
		if err != nil {
			return nil, err
		}
		if keep {
			windows = append(windows, w)
		}
	}
	return windows, nil
}

// observe evaluates the mask and every predicate at an epoch.
func (f *finder) observe(at transform.Epoch) (visibility.Observation, error) {
	sv, err := f.src.Propagate(at)
	if err != nil {
		return visibility.Observation{}, fmt.Errorf("propagate to %s: %w", at, err)
	}
	return visibility.Evaluate(sv, f.station, at, f.opts.Predicates...)
}

// look evaluates geometry only.
func (f *finder) look(at transform.Epoch) (visibility.Observation, error) {
	sv, err := f.src.Propagate(at)
	if err != nil {
		return visibility.Observation{}, fmt.Errorf("propagate to %s: %w", at, err)
	}
	return visibility.Evaluate(sv, f.station, at)
}

// refine bisects between two samples of opposite visibility and returns the
// visible sample closest to the transition.
func (f *finder) refine(lo, hi sample) (sample, error) {
	for hi.at.Sub(lo.at) > f.tol {
		mid := lo.at.Add(hi.at.Sub(lo.at) / 2)
		obs, err := f.observe(mid)
		if err != nil {
			return sample{}, err
		}
		if obs.Visible == lo.obs.Visible {
			lo = sample{at: mid, obs: obs}
		} else {
			hi = sample{at: mid, obs: obs}
		}
	}
	if lo.obs.Visible {
		return lo, nil
	}
	return hi, nil
}

// close finishes a window at last. Windows of zero length or shorter than
// MinDuration are not kept.
func (f *finder) close(open *pending, last sample, partialEnd bool) (Window, bool, error) {
	first := open.start
	length := last.at.Sub(first.at)
	if length <= 0 {
		return Window{}, false, nil
	}
	dur := time.Duration(length * float64(time.Second))
	if f.opts.MinDuration > 0 && dur < f.opts.MinDuration {
		return Window{}, false, nil
	}

	peak, err := f.peak(first, last, open.best)
	if err != nil {
		return Window{}, false, err
	}

	w := Window{
		PeakElevation:   peak.obs.Elevation,
		StartAzimuth:    first.obs.Azimuth,
		EndAzimuth:      last.obs.Azimuth,
		PeakAzimuth:     peak.obs.Azimuth,
		Duration:        dur,
		DurationSeconds: length,
		PartialStart:    open.partial,
		PartialEnd:      partialEnd,
		Station:         f.station.Name,
		Mask:            maskLabel(f.station.Mask),
	}
	if w.Start, err = utc(first.at); err != nil {
		return Window{}, false, err
	}
	if w.End, err = utc(last.at); err != nil {
		return Window{}, false, err
	}
	if w.Peak, err = utc(peak.at); err != nil {
		return Window{}, false, err
	}
	if f.opts.GroundTrackStep > 0 {
		if w.GroundTrack, err = f.groundTrack(first.at, last); err != nil {
			return Window{}, false, err
		}
	}
	return w, true, nil
}

// peak maximizes elevation by golden-section search within one step of the
// best coarse sample, clipped to the window.
func (f *finder) peak(first, last, seed sample) (sample, error) {
	lo := math.Max(seed.at.Sub(first.at)-f.step, 0)
	hi := math.Min(seed.at.Sub(first.at)+f.step, last.at.Sub(first.at))

	eval := func(x float64) (sample, error) {
		at := first.at.Add(x)
		obs, err := f.look(at)
		return sample{at: at, obs: obs}, err
	}

	x1, x2 := hi-invPhi*(hi-lo), lo+invPhi*(hi-lo)
	s1, err := eval(x1)
	if err != nil {
		return sample{}, err
	}
	s2, err := eval(x2)
	if err != nil {
		return sample{}, err
	}
	for hi-lo > f.tol {
		if s1.obs.Elevation < s2.obs.Elevation {
			lo, x1, s1 = x1, x2, s2
			x2 = lo + invPhi*(hi-lo)
			if s2, err = eval(x2); err != nil {
				return sample{}, err
			}
		} else {
			hi, x2, s2 = x2, x1, s1
			x1 = hi - invPhi*(hi-lo)
			if s1, err = eval(x1); err != nil {
				return sample{}, err
			}
		}
	}

	best := first
	for _, s := range []sample{last, seed, s1, s2} {
		if s.obs.Elevation > best.obs.Elevation {
			best = s
		}
	}
	return best, nil
}

func (f *finder) groundTrack(from transform.Epoch, last sample) ([]GroundTrackPoint, error) {
	step := f.opts.GroundTrackStep.Seconds()
	var track []GroundTrackPoint
	add := func(s sample) error {
		at, err := utc(s.at)
		if err != nil {
			return err
		}
		geo := transform.ECEFToGeodetic(s.obs.EarthFixed)
		track = append(track, GroundTrackPoint{
			Epoch:     at,
			Latitude:  geo.LatDeg,
			Longitude: geo.LonDeg,
			Altitude:  geo.AltM,
			Elevation: s.obs.Elevation,
		})
		return nil
	}
	for at := from; at.Before(last.at); at = at.Add(step) {
		obs, err := f.look(at)
		if err != nil {
			return nil, err
		}
		if err := add(sample{at: at, obs: obs}); err != nil {
			return nil, err
		}
	}
	if err := add(last); err != nil {
		return nil, err
	}
	return track, nil
}

func utc(e transform.Epoch) (transform.Epoch, error) {
	return transform.FromUniform(e, transform.ScaleUTC)
}

func maskLabel(m visibility.Mask) string {
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}
