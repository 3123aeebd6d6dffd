package propagation

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/utat-ss/hermes/internal/metrics"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	set    tle.ElementSet
	target transform.Epoch
	gmst   float64 // precomputed GMST for target
}

// propagateResult is the output of a single satellite propagation.
type propagateResult struct {
	position SatellitePosition
	err      error
	catalog  int
}

// BatchOptions selects the model applied to every set in a batch.
type BatchOptions struct {
	Model         Model
	Perturbations Perturbations
}

// WorkerPool manages a fixed number of goroutines for parallel catalog propagation.
type WorkerPool struct {
	workers int
	cache   *ConstantsCache
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
// cache may be nil.
func NewWorkerPool(workers int, cache *ConstantsCache, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		cache:   cache,
		logger:  logger,
	}
}

// PropagateBatch propagates all element sets to target using the worker pool.
// Returns Earth-fixed positions, ordered by catalog number, for every set
// that succeeded. Failed sets are logged and skipped. An error is returned
// when target itself cannot be used or ctx ends before the batch completes;
// no positions are returned with it.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, sets []tle.ElementSet, target transform.Epoch, opts BatchOptions) ([]SatellitePosition, int, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, 0, err
	}
	if len(sets) == 0 {
		return nil, 0, 0, nil
	}
	if opts.Model == 0 {
		opts.Model = ModelSGP4
	}

	// Precompute GMST once for the target epoch (same for all satellites).
	gmst, err := transform.EarthRotation(target)
	if err != nil {
		return nil, 0, 0, err
	}

	start := time.Now()
	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := wp.propagateSingle(job, opts)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for _, set := range sets {
			job := propagateJob{
				set:    set,
				target: target,
				gmst:   gmst,
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results.
	positions := make([]SatellitePosition, 0, len(sets))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"norad_id", result.catalog,
				"model", opts.Model.String(),
				"error", result.err,
			)
			continue
		}
		successCount++
		positions = append(positions, result.position)
	}
	if err := ctx.Err(); err != nil {
		wp.logger.Warn("batch propagation cancelled",
			"model", opts.Model.String(),
			"completed", successCount+errorCount,
			"total", len(sets),
		)
		return nil, 0, 0, err
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].CatalogNumber < positions[j].CatalogNumber })

	metrics.RecordPropagation(opts.Model.String(), time.Since(start), successCount, errorCount)
	return positions, successCount, errorCount, nil
}

// propagateSingle propagates one set and rotates it into the Earth-fixed frame.
func (wp *WorkerPool) propagateSingle(job propagateJob, opts BatchOptions) propagateResult {
	set := job.set
	p, err := New(Request{Elements: &set, Model: opts.Model, Perturbations: opts.Perturbations}, wp.cache)
	if err != nil {
		return propagateResult{catalog: set.CatalogNumber, err: err}
	}

	sv, err := p.Propagate(job.target)
	if err != nil {
		return propagateResult{catalog: set.CatalogNumber, err: err}
	}

	pos, vel := transform.InertialToEarthFixedWithGMST(sv.Position, sv.Velocity, job.gmst)

	return propagateResult{
		catalog: set.CatalogNumber,
		position: SatellitePosition{
			CatalogNumber: set.CatalogNumber,
			Name:          set.Name,
			Position:      pos,
			Velocity:      vel,
			Geodetic:      transform.ECEFToGeodetic(pos),
		},
	}
}
