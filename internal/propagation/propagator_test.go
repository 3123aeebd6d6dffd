package propagation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
)

// ISS element set, epoch 2025-02-14.
const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func issSet(t testing.TB) tle.ElementSet {
	t.Helper()
	es, err := tle.ParseLines("ISS (ZARYA)", issLine1, issLine2)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	return es
}

func mustNew(t testing.TB, req Request) *Propagator {
	t.Helper()
	p, err := New(req, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func mustPropagate(t testing.TB, p *Propagator, at transform.Epoch) StateVector {
	t.Helper()
	sv, err := p.Propagate(at)
	if err != nil {
		t.Fatalf("Propagate(%s): %v", at, err)
	}
	return sv
}

// leoState is a 500 km, 51.6° orbit at 2024-04-10T12:00Z.
func leoState() StateVector {
	el := orbit.Elements{
		SemiMajorAxis: orbit.EarthRadius + 500,
		Eccentricity:  0.001,
		Inclination:   51.6 * math.Pi / 180,
		RAAN:          1.0,
		ArgPerigee:    0.5,
		MeanAnomaly:   0.25,
	}
	pos, vel, err := orbit.ToState(el, orbit.MuEarth)
	if err != nil {
		panic(err)
	}
	return StateVector{
		Epoch:    transform.NewEpoch(time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)),
		Position: pos,
		Velocity: vel,
		Frame:    transform.FrameInertial,
	}
}

func TestParseModel(t *testing.T) {
	tests := []struct {
		in      string
		want    Model
		wantErr bool
	}{
		{"kepler", ModelKepler, false},
		{"Analytic", ModelKepler, false},
		{"SGP4", ModelSGP4, false},
		{" numerical ", ModelNumerical, false},
		{"sdp4", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseModel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseModel(%q) = %v, %v; want %v, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
		if err == nil && got.String() != "kepler" && got.String() != "sgp4" && got.String() != "numerical" {
			t.Errorf("Model.String() = %q", got.String())
		}
	}
}

func TestRequestValidate(t *testing.T) {
	es := issSet(t)
	sv := leoState()
	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{}},
		{"both inputs", Request{Elements: &es, State: &sv}},
		{"unknown model", Request{Elements: &es, Model: 9}},
		{"inverted steps", Request{State: &sv, Integrator: IntegratorConfig{MinStep: time.Minute, MaxStep: time.Second}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.req, nil)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestDefaultModel(t *testing.T) {
	es := issSet(t)
	sv := leoState()
	if m := mustNew(t, Request{Elements: &es}).Model(); m != ModelKepler {
		t.Errorf("elements default model = %s, want kepler", m)
	}
	if m := mustNew(t, Request{State: &sv}).Model(); m != ModelNumerical {
		t.Errorf("state default model = %s, want numerical", m)
	}
}

// TestSGP4Propagate verifies that an element set propagates to a plausible
// ISS orbit and that the output is inertial.
func TestSGP4Propagate(t *testing.T) {
	es := issSet(t)
	p := mustNew(t, Request{Elements: &es, Model: ModelSGP4})

	if !p.Epoch().Equal(es.Epoch) {
		t.Errorf("Epoch() = %s, want %s", p.Epoch(), es.Epoch)
	}
	sv := mustPropagate(t, p, es.Epoch.Add(3600))
	if sv.Frame != transform.FrameInertial {
		t.Errorf("frame = %s, want inertial", sv.Frame)
	}
	// ISS: ~6371 + 420 km.
	if mag := r3.Norm(sv.Position); mag < 6700 || mag > 6850 {
		t.Errorf("position magnitude = %.1f km, expected ~6790 km", mag)
	}
	if speed := r3.Norm(sv.Velocity); speed < 7.5 || speed > 7.8 {
		t.Errorf("speed = %.3f km/s, expected ~7.66 km/s", speed)
	}
}

func TestSGP4SubSecondInterpolation(t *testing.T) {
	es := issSet(t)
	p := mustNew(t, Request{Elements: &es, Model: ModelSGP4})

	base := transform.NewEpoch(time.Date(2025, 2, 14, 6, 0, 0, 0, time.UTC))
	a := mustPropagate(t, p, base)
	mid := mustPropagate(t, p, base.Add(0.5))
	b := mustPropagate(t, p, base.Add(1))

	chord := r3.Scale(0.5, r3.Add(a.Position, b.Position))
	if d := r3.Norm(r3.Sub(mid.Position, chord)); d > 0.01 {
		t.Errorf("midpoint is %.4f km off the chord, want < 0.01", d)
	}
	if d := r3.Norm(r3.Sub(mid.Position, a.Position)); d < 3.5 || d > 4.2 {
		t.Errorf("half-second displacement = %.3f km, want ~3.83", d)
	}
	if !mid.Epoch.Equal(base.Add(0.5)) {
		t.Errorf("output epoch = %s, want %s", mid.Epoch, base.Add(0.5))
	}
}

func TestSGP4RejectsAlpha5(t *testing.T) {
	es := issSet(t)
	es.CatalogNumber = 100001
	_, err := New(Request{Elements: &es, Model: ModelSGP4}, nil)
	if !errors.Is(err, ErrInvalidOrbit) {
		t.Errorf("err = %v, want ErrInvalidOrbit", err)
	}
}

// TestSGP4AgreesWithKepler compares SGP4 against the J2 secular model.
// Short-periodic terms and the mean motion convention keep them apart by a
// few km near epoch.
// TestSGP4HighApogee propagates a deep-space set whose apogee lies past
// geostationary altitude.
func TestSGP4HighApogee(t *testing.T) {
	el := orbit.Elements{
		SemiMajorAxis: 45000,
		Eccentricity:  0.3,
		Inclination:   0.5,
		RAAN:          1.0,
		ArgPerigee:    0.25,
		MeanAnomaly:   math.Pi,
	}
	pos, vel, err := orbit.ToState(el, orbit.MuEarth)
	if err != nil {
		t.Fatalf("ToState: %v", err)
	}
	epoch := transform.NewEpoch(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))
	es, err := tle.FromState(StateVector{Epoch: epoch, Position: pos, Velocity: vel, Frame: transform.FrameInertial}, tle.Template(70002))
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}

	p := mustNew(t, Request{Elements: &es, Model: ModelSGP4})
	for _, dt := range []float64{0, 600, -600} {
		sv := mustPropagate(t, p, es.Epoch.Add(dt))
		if mag := r3.Norm(sv.Position); mag < 55000 || mag > 60000 {
			t.Errorf("dt=%.0f: |r| = %.1f km, want near the 58500 km apogee", dt, mag)
		}
	}
}

func TestSGP4AgreesWithKepler(t *testing.T) {
	es := issSet(t)
	sgp4 := mustNew(t, Request{Elements: &es, Model: ModelSGP4})
	kep := mustNew(t, Request{Elements: &es, Model: ModelKepler, Perturbations: Perturbations{J2: true}})

	for _, dt := range []float64{0, 1800, 3600} {
		at := es.Epoch.Add(dt)
		a := mustPropagate(t, sgp4, at)
		b := mustPropagate(t, kep, at)
		if d := r3.Norm(r3.Sub(a.Position, b.Position)); d > 50 {
			t.Errorf("dt=%.0fs: sgp4 and kepler differ by %.1f km", dt, d)
		}
	}
}

func TestKeplerConservesInvariants(t *testing.T) {
	sv := leoState()
	p := mustNew(t, Request{State: &sv, Model: ModelKepler})

	start, err := Invariants(sv)
	if err != nil {
		t.Fatalf("Invariants: %v", err)
	}
	period := start.Elements.Period(orbit.MuEarth)
	for _, dt := range []float64{period / 3, 10 * period, -7.5 * period} {
		out := mustPropagate(t, p, sv.Epoch.Add(dt))
		inv, err := Invariants(out)
		if err != nil {
			t.Fatalf("Invariants: %v", err)
		}
		if d := orbit.RelativeDrift(start.Energy, inv.Energy); d > 1e-9 {
			t.Errorf("dt=%.0f: energy drift %.3g", dt, d)
		}
		if d := orbit.RelativeDrift(start.AngularMomentum, inv.AngularMomentum); d > 1e-9 {
			t.Errorf("dt=%.0f: angular momentum drift %.3g", dt, d)
		}
	}
}

func TestNumericalConservesInvariants(t *testing.T) {
	sv := leoState()
	p := mustNew(t, Request{
		State:      &sv,
		Model:      ModelNumerical,
		Integrator: IntegratorConfig{Adaptive: true},
	})
	start, _ := Invariants(sv)

	out := mustPropagate(t, p, sv.Epoch.Add(6*3600))
	inv, err := Invariants(out)
	if err != nil {
		t.Fatalf("Invariants: %v", err)
	}
	if d := orbit.RelativeDrift(start.Energy, inv.Energy); d > 1e-6 {
		t.Errorf("energy drift %.3g over 6h", d)
	}
	if d := orbit.RelativeDrift(start.AngularMomentum, inv.AngularMomentum); d > 1e-6 {
		t.Errorf("angular momentum drift %.3g over 6h", d)
	}
}

func TestNumericalMatchesKeplerTwoBody(t *testing.T) {
	sv := leoState()
	tests := []struct {
		name  string
		integ IntegratorConfig
	}{
		{"adaptive", IntegratorConfig{Adaptive: true}},
		{"fixed", IntegratorConfig{Step: 5 * time.Second}},
	}
	kep := mustNew(t, Request{State: &sv, Model: ModelKepler})
	at := sv.Epoch.Add(5700)
	want := mustPropagate(t, kep, at)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			num := mustNew(t, Request{State: &sv, Model: ModelNumerical, Integrator: tt.integ})
			got := mustPropagate(t, num, at)
			if d := r3.Norm(r3.Sub(got.Position, want.Position)); d > 0.05 {
				t.Errorf("numerical and kepler differ by %.4f km after one orbit", d)
			}
		})
	}
}

func TestTimeSymmetry(t *testing.T) {
	sv := leoState()
	for _, model := range []Model{ModelKepler, ModelNumerical} {
		t.Run(model.String(), func(t *testing.T) {
			req := Request{State: &sv, Model: model, Perturbations: Perturbations{J2: true}, Integrator: IntegratorConfig{Adaptive: true}}
			fwd := mustPropagate(t, mustNew(t, req), sv.Epoch.Add(3600))

			req.State = &fwd
			back := mustPropagate(t, mustNew(t, req), sv.Epoch)

			tol := 1e-3
			if model == ModelKepler {
				tol = 1e-6
			}
			if d := r3.Norm(r3.Sub(back.Position, sv.Position)); d > tol {
				t.Errorf("round trip position error %.3g km, want < %g", d, tol)
			}
		})
	}
}

func TestNumericalJ2RegressesNode(t *testing.T) {
	sv := leoState()
	const day = 86400.0

	num := mustNew(t, Request{State: &sv, Model: ModelNumerical, Perturbations: Perturbations{J2: true}, Integrator: IntegratorConfig{Adaptive: true}})
	kep := mustNew(t, Request{State: &sv, Model: ModelKepler, Perturbations: Perturbations{J2: true}})

	start, _ := Invariants(sv)
	a, _ := Invariants(mustPropagate(t, num, sv.Epoch.Add(day)))
	b, _ := Invariants(mustPropagate(t, kep, sv.Epoch.Add(day)))

	dNum := math.Remainder(a.Elements.RAAN-start.Elements.RAAN, 2*math.Pi) * 180 / math.Pi
	dKep := math.Remainder(b.Elements.RAAN-start.Elements.RAAN, 2*math.Pi) * 180 / math.Pi

	// ~ -5 deg/day at 500 km, 51.6 deg.
	if dKep > -4 || dKep < -6 {
		t.Errorf("secular node regression = %.3f deg/day, want ~ -5", dKep)
	}
	if math.Abs(dNum-dKep) > 0.1 {
		t.Errorf("numerical node change %.3f deg vs secular %.3f deg", dNum, dKep)
	}
}

func TestDragLowersEnergy(t *testing.T) {
	es := issSet(t)
	es.MeanMotionDot = 0.001
	plain := mustNew(t, Request{Elements: &es, Model: ModelKepler})
	drag := mustNew(t, Request{Elements: &es, Model: ModelKepler, Perturbations: Perturbations{Drag: true}})

	at := es.Epoch.Add(5 * 86400)
	a, _ := Invariants(mustPropagate(t, plain, at))
	b, _ := Invariants(mustPropagate(t, drag, at))
	if b.Energy >= a.Energy {
		t.Errorf("energy with drag %.6f >= without %.6f", b.Energy, a.Energy)
	}
	if b.Elements.SemiMajorAxis >= a.Elements.SemiMajorAxis {
		t.Errorf("semi-major axis with drag %.3f >= without %.3f", b.Elements.SemiMajorAxis, a.Elements.SemiMajorAxis)
	}
}

func TestDragDecayToZeroMeanMotion(t *testing.T) {
	es := issSet(t)
	es.MeanMotionDot = -1
	p := mustNew(t, Request{Elements: &es, Model: ModelKepler, Perturbations: Perturbations{Drag: true}})

	_, err := p.Propagate(es.Epoch.Add(10 * 86400))
	if !errors.Is(err, ErrInvalidOrbit) {
		t.Errorf("err = %v, want ErrInvalidOrbit", err)
	}
}

func TestInvalidOrbits(t *testing.T) {
	es := issSet(t)
	es.Eccentricity = 1

	sv := leoState()
	hyper := sv
	hyper.Velocity = r3.Scale(1.5, sv.Velocity)

	tests := []struct {
		name string
		req  Request
	}{
		{"parabolic elements", Request{Elements: &es, Model: ModelKepler}},
		{"parabolic elements numerical", Request{Elements: &es, Model: ModelNumerical}},
		{"hyperbolic state kepler", Request{State: &hyper, Model: ModelKepler}},
		{"hyperbolic state numerical", Request{State: &hyper, Model: ModelNumerical}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.req, nil)
			if !errors.Is(err, ErrInvalidOrbit) {
				t.Errorf("err = %v, want ErrInvalidOrbit", err)
			}
		})
	}
}

func TestPropagateInvalidEpoch(t *testing.T) {
	sv := leoState()
	p := mustNew(t, Request{State: &sv, Model: ModelKepler})
	_, err := p.Propagate(transform.NewEpoch(time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)))
	if !errors.Is(err, transform.ErrInvalidEpoch) {
		t.Errorf("err = %v, want ErrInvalidEpoch", err)
	}
}

func TestEarthFixedStateInput(t *testing.T) {
	sv := leoState()
	ecef, err := sv.In(transform.FrameEarthFixed, nil)
	if err != nil {
		t.Fatalf("In: %v", err)
	}
	a := mustPropagate(t, mustNew(t, Request{State: &sv, Model: ModelKepler}), sv.Epoch.Add(600))
	b := mustPropagate(t, mustNew(t, Request{State: &ecef, Model: ModelKepler}), sv.Epoch.Add(600))
	if d := r3.Norm(r3.Sub(a.Position, b.Position)); d > 1e-6 {
		t.Errorf("earth-fixed input differs by %.3g km", d)
	}
}

func TestEphemerisMatchesPropagate(t *testing.T) {
	sv := leoState()
	p := mustNew(t, Request{State: &sv, Model: ModelNumerical, Perturbations: Perturbations{J2: true}, Integrator: IntegratorConfig{Adaptive: true}})

	offsets := []float64{1200, -600, 0, 300, -1800}
	targets := make([]transform.Epoch, len(offsets))
	for i, dt := range offsets {
		targets[i] = sv.Epoch.Add(dt)
	}
	states, err := p.Ephemeris(targets)
	if err != nil {
		t.Fatalf("Ephemeris: %v", err)
	}
	for i, at := range targets {
		if !states[i].Epoch.Equal(at) {
			t.Errorf("point %d epoch %s, want %s", i, states[i].Epoch, at)
		}
		want := mustPropagate(t, p, at)
		if d := r3.Norm(r3.Sub(states[i].Position, want.Position)); d > 1e-3 {
			t.Errorf("point %d (dt=%.0f) differs from Propagate by %.3g km", i, offsets[i], d)
		}
	}
}

func TestTableSource(t *testing.T) {
	sv := leoState()
	req := Request{State: &sv, Model: ModelNumerical, Integrator: IntegratorConfig{Adaptive: true}}
	start, end := sv.Epoch, sv.Epoch.Add(3600)

	src, err := NewSource(req, start, end, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	table, ok := src.(*Table)
	if !ok {
		t.Fatalf("numerical source is %T, want *Table", src)
	}
	first, last := table.Span()
	if first.After(start) || last.Before(end) {
		t.Errorf("table span %s..%s does not cover %s..%s", first, last, start, end)
	}

	direct := mustNew(t, req)
	for _, dt := range []float64{0, 37, 1234.5, 3600} {
		at := start.Add(dt)
		got, err := table.Propagate(at)
		if err != nil {
			t.Fatalf("table.Propagate: %v", err)
		}
		want := mustPropagate(t, direct, at)
		if d := r3.Norm(r3.Sub(got.Position, want.Position)); d > 0.01 {
			t.Errorf("dt=%.1f: interpolated position off by %.4f km", dt, d)
		}
		if d := r3.Norm(r3.Sub(got.Velocity, want.Velocity)); d > 1e-4 {
			t.Errorf("dt=%.1f: interpolated velocity off by %.3g km/s", dt, d)
		}
	}

	if _, err := table.Propagate(last.Add(1)); !errors.Is(err, transform.ErrInvalidEpoch) {
		t.Errorf("out of span err = %v, want ErrInvalidEpoch", err)
	}
}

func TestNewSourceAnalyticIsPropagator(t *testing.T) {
	es := issSet(t)
	src, err := NewSource(Request{Elements: &es, Model: ModelSGP4}, es.Epoch, es.Epoch.Add(60), time.Minute, nil)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, ok := src.(*Propagator); !ok {
		t.Errorf("sgp4 source is %T, want *Propagator", src)
	}
}

func TestNewTableRejects(t *testing.T) {
	sv := leoState()
	ecef, _ := sv.In(transform.FrameEarthFixed, nil)
	tests := []struct {
		name  string
		nodes []StateVector
	}{
		{"single node", []StateVector{sv}},
		{"duplicate epoch", []StateVector{sv, sv}},
		{"earth-fixed node", []StateVector{sv, ecef}},
	}
	for _, tt := range tests {
		if _, err := NewTable(tt.nodes); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: err = %v, want ErrInvalidRequest", tt.name, err)
		}
	}
}

func TestConstantsCache(t *testing.T) {
	es := issSet(t)
	cache := NewConstantsCache()

	req := Request{Elements: &es, Model: ModelKepler, Perturbations: Perturbations{J2: true}}
	a, err := New(req, cache)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(req, cache)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := cache.Stats(); got.Hits != 1 || got.Misses != 1 || got.Entries != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, 1 entry", got)
	}

	at := es.Epoch.Add(4000)
	if pa, pb := mustPropagate(t, a, at), mustPropagate(t, b, at); pa != pb {
		t.Errorf("cached propagator disagrees: %+v vs %+v", pa, pb)
	}

	// A different force model is a different entry.
	req.Perturbations.J2 = false
	if _, err := New(req, cache); err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := cache.Stats(); got.Entries != 2 {
		t.Errorf("Entries = %d, want 2", got.Entries)
	}

	var nilCache *ConstantsCache
	if got := nilCache.Stats(); got != (CacheStats{}) {
		t.Errorf("nil cache Stats() = %+v", got)
	}
}

// TestWorkerPoolBatch verifies the worker pool processes multiple satellites correctly.
func TestWorkerPoolBatch(t *testing.T) {
	iss := issSet(t)
	other := iss
	other.CatalogNumber = 25545
	other.Name = "COPY"
	bad := iss
	bad.CatalogNumber = 1
	bad.Eccentricity = 1.2

	pool := NewWorkerPool(4, NewConstantsCache(), testLogger())
	target := iss.Epoch.Add(900)

	for _, model := range []Model{ModelSGP4, ModelKepler} {
		t.Run(model.String(), func(t *testing.T) {
			positions, ok, failed, err := pool.PropagateBatch(context.Background(), []tle.ElementSet{other, bad, iss}, target, BatchOptions{Model: model})
			if err != nil {
				t.Fatalf("PropagateBatch: %v", err)
			}
			if ok != 2 || failed != 1 {
				t.Errorf("ok=%d failed=%d, want 2 and 1", ok, failed)
			}
			if len(positions) != 2 || positions[0].CatalogNumber != 25544 || positions[1].CatalogNumber != 25545 {
				t.Fatalf("positions not ordered by catalog number: %+v", positions)
			}
			for _, pos := range positions {
				if !transform.PlausibleOrbitRadius(pos.Position, 0) {
					t.Errorf("catalog %d: implausible Earth-fixed position %v", pos.CatalogNumber, pos.Position)
				}
				if alt := pos.Geodetic.AltM / 1000; alt < 350 || alt > 500 {
					t.Errorf("catalog %d: altitude %.1f km, want ISS-like", pos.CatalogNumber, alt)
				}
			}
		})
	}
}

func TestWorkerPoolInvalidEpoch(t *testing.T) {
	pool := NewWorkerPool(2, nil, testLogger())
	target := transform.NewEpoch(time.Date(2150, 1, 1, 0, 0, 0, 0, time.UTC))
	_, _, _, err := pool.PropagateBatch(context.Background(), []tle.ElementSet{issSet(t)}, target, BatchOptions{})
	if !errors.Is(err, transform.ErrInvalidEpoch) {
		t.Errorf("err = %v, want ErrInvalidEpoch", err)
	}
}

// TestWorkerPoolCancellation verifies the worker pool respects context cancellation.
func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(2, nil, testLogger())

	// Create many entries to ensure some are still pending when we cancel.
	iss := issSet(t)
	sets := make([]tle.ElementSet, 100)
	for i := range sets {
		sets[i] = iss
		sets[i].CatalogNumber = 25544 + i
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	positions, ok, failed, err := pool.PropagateBatch(ctx, sets, iss.Epoch, BatchOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if positions != nil || ok != 0 || failed != 0 {
		t.Errorf("cancelled batch returned %d positions (ok=%d failed=%d), want none", len(positions), ok, failed)
	}
}

// TestWorkerPoolCancelledMidBatch cancels while results are being collected:
// a truncated batch must not be reported as complete.
func TestWorkerPoolCancelledMidBatch(t *testing.T) {
	pool := NewWorkerPool(1, nil, testLogger())
	iss := issSet(t)
	sets := make([]tle.ElementSet, 2000)
	for i := range sets {
		sets[i] = iss
		sets[i].CatalogNumber = 25544 + i
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	positions, _, _, err := pool.PropagateBatch(ctx, sets, iss.Epoch, BatchOptions{})
	if err == nil {
		// The whole batch beat the deadline; nothing was truncated.
		if len(positions) != len(sets) {
			t.Fatalf("nil error with %d/%d positions", len(positions), len(sets))
		}
		return
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if positions != nil {
		t.Errorf("got %d positions with the error, want none", len(positions))
	}
}

// BenchmarkPropagateBatch1000 benchmarks propagating 1000 satellites.
func BenchmarkPropagateBatch1000(b *testing.B) {
	iss := issSet(b)
	sets := make([]tle.ElementSet, 1000)
	for i := range sets {
		sets[i] = iss
		sets[i].CatalogNumber = 25544 + i
	}
	pool := NewWorkerPool(4, NewConstantsCache(), testLogger())
	target := iss.Epoch.Add(600)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := pool.PropagateBatch(ctx, sets, target, BatchOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNumericalDay(b *testing.B) {
	sv := leoState()
	p := mustNew(b, Request{State: &sv, Model: ModelNumerical, Perturbations: Perturbations{J2: true}, Integrator: IntegratorConfig{Adaptive: true}})
	at := sv.Epoch.Add(86400)
	for i := 0; i < b.N; i++ {
		if _, err := p.Propagate(at); err != nil {
			b.Fatal(err)
		}
	}
}
