package propagation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/utat-ss/hermes/internal/transform"
)

// Source yields inertial states at arbitrary epochs. Propagator and Table
// both implement it.
type Source interface {
	Propagate(at transform.Epoch) (StateVector, error)
}

// Table is a precomputed inertial ephemeris interpolated with cubic Hermite
// splines between nodes. It is immutable and safe for concurrent use.
type Table struct {
	t     []float64 // uniform seconds, ascending
	nodes []StateVector
}

// NewTable builds a table from inertial states. Nodes are sorted by epoch;
// at least two distinct epochs are required.
func NewTable(states []StateVector) (*Table, error) {
	if len(states) < 2 {
		return nil, fmt.Errorf("%w: ephemeris table needs at least two nodes", ErrInvalidRequest)
	}
	nodes := make([]StateVector, len(states))
	copy(nodes, states)
	ts := make([]float64, len(nodes))
	for i, sv := range nodes {
		if sv.Frame != transform.FrameInertial {
			return nil, fmt.Errorf("%w: ephemeris node %d is %s, want inertial", ErrInvalidRequest, i, sv.Frame)
		}
		u, err := transform.ToUniform(sv.Epoch)
		if err != nil {
			return nil, err
		}
		ts[i] = u.Seconds()
	}
	sort.Sort(byTime{ts, nodes})
	for i := 1; i < len(ts); i++ {
		if ts[i] == ts[i-1] {
			return nil, fmt.Errorf("%w: duplicate ephemeris epoch %s", ErrInvalidRequest, nodes[i].Epoch)
		}
	}
	return &Table{t: ts, nodes: nodes}, nil
}

type byTime struct {
	t     []float64
	nodes []StateVector
}

func (b byTime) Len() int           { return len(b.t) }
func (b byTime) Less(i, j int) bool { return b.t[i] < b.t[j] }
func (b byTime) Swap(i, j int) {
	b.t[i], b.t[j] = b.t[j], b.t[i]
	b.nodes[i], b.nodes[j] = b.nodes[j], b.nodes[i]
}

// Span returns the first and last node epochs.
func (tb *Table) Span() (transform.Epoch, transform.Epoch) {
	return tb.nodes[0].Epoch, tb.nodes[len(tb.nodes)-1].Epoch
}

// Propagate interpolates the state at at. Epochs outside the node span fail
// with transform.ErrInvalidEpoch.
func (tb *Table) Propagate(at transform.Epoch) (StateVector, error) {
	u, err := transform.ToUniform(at)
	if err != nil {
		return StateVector{}, err
	}
	s := u.Seconds()
	n := len(tb.t)
	if s < tb.t[0] || s > tb.t[n-1] {
		first, last := tb.Span()
		return StateVector{}, &transform.EpochError{Epoch: at, Reason: fmt.Sprintf("outside ephemeris span %s to %s", first, last)}
	}

	i := sort.SearchFloat64s(tb.t, s)
	if i < n && tb.t[i] == s {
		sv := tb.nodes[i]
		sv.Epoch = at
		return sv, nil
	}
	a, b := tb.nodes[i-1], tb.nodes[i]
	h := tb.t[i] - tb.t[i-1]
	pos, vel := hermite(a.Position, a.Velocity, b.Position, b.Velocity, h, (s-tb.t[i-1])/h)
	return StateVector{Epoch: at, Position: pos, Velocity: vel, Frame: transform.FrameInertial}, nil
}

// hermite evaluates the cubic Hermite spline through (p0, v0) and (p1, v1)
// spaced h seconds apart at fraction s in [0, 1].
func hermite(p0, v0, p1, v1 r3.Vec, h, s float64) (r3.Vec, r3.Vec) {
	s2 := s * s
	s3 := s2 * s

	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2

	pos := r3.Add(
		r3.Add(r3.Scale(h00, p0), r3.Scale(h10*h, v0)),
		r3.Add(r3.Scale(h01, p1), r3.Scale(h11*h, v1)),
	)

	d00 := (6*s2 - 6*s) / h
	d10 := 3*s2 - 4*s + 1
	d01 := (-6*s2 + 6*s) / h
	d11 := 3*s2 - 2*s

	vel := r3.Add(
		r3.Add(r3.Scale(d00, p0), r3.Scale(d10, v0)),
		r3.Add(r3.Scale(d01, p1), r3.Scale(d11, v1)),
	)
	return pos, vel
}

// NewSource returns a Source covering [start, end]. Numerical requests are
// integrated once into a Table with nodes every nodeStep, padded by one node
// on each side; other models propagate directly.
func NewSource(req Request, start, end transform.Epoch, nodeStep time.Duration, cache *ConstantsCache) (Source, error) {
	p, err := New(req, cache)
	if err != nil {
		return nil, err
	}
	if p.Model() != ModelNumerical {
		return p, nil
	}
	if nodeStep <= 0 {
		return nil, fmt.Errorf("%w: ephemeris node step must be positive", ErrInvalidRequest)
	}
	span := end.Sub(start)
	if span < 0 {
		return nil, fmt.Errorf("%w: end %s precedes start %s", ErrInvalidRequest, end, start)
	}
	step := nodeStep.Seconds()
	count := int(math.Ceil(span/step)) + 3
	epochs := make([]transform.Epoch, count)
	for i := range epochs {
		epochs[i] = start.Add(float64(i-1) * step)
	}
	states, err := p.Ephemeris(epochs)
	if err != nil {
		return nil, err
	}
	return NewTable(states)
}
