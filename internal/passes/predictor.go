package passes

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/transform"
	"github.com/utat-ss/hermes/internal/visibility"
)

// Job is one independent (source, station) scan.
type Job struct {
	Source  propagation.Source
	Station visibility.GroundStation
	Start   transform.Epoch
	End     transform.Epoch
	Step    time.Duration
	Options Options
}

// Predict runs jobs concurrently, at most workers at a time (NumCPU when
// workers < 1), and returns every window sorted by start epoch. The first
// failing job cancels the rest and its error is returned alone.
func Predict(ctx context.Context, jobs []Job, workers int) ([]Window, error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make([][]Window, len(jobs))
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			windows, err := FindWindows(ctx, job.Source, job.Station, job.Start, job.End, job.Step, job.Options)
			if err != nil {
				return fmt.Errorf("job %d (station %q): %w", i, job.Station.Name, err)
			}
			results[i] = windows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Window
	for _, ws := range results {
		all = append(all, ws...)
	}
	sortWindows(all)
	return all, nil
}

// ScanMasks scans the same source and span once per mask, returning one
// window list per mask in the order given.
func ScanMasks(ctx context.Context, src propagation.Source, station visibility.GroundStation, masks []visibility.Mask, start, end transform.Epoch, step time.Duration, opts Options) ([][]Window, error) {
	out := make([][]Window, len(masks))
	for i, m := range masks {
		windows, err := FindWindows(ctx, src, station.WithMask(m), start, end, step, opts)
		if err != nil {
			return nil, fmt.Errorf("mask %d: %w", i, err)
		}
		out[i] = windows
	}
	return out, nil
}

func sortWindows(ws []Window) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Start.Seconds() != ws[j].Start.Seconds() {
			return ws[i].Start.Seconds() < ws[j].Start.Seconds()
		}
		return ws[i].Station < ws[j].Station
	})
}
