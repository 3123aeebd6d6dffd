package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utat-ss/hermes/internal/config"
	"github.com/utat-ss/hermes/internal/orbit"
	"github.com/utat-ss/hermes/internal/passes"
	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/scan"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
	"github.com/utat-ss/hermes/internal/visibility"
)

// orbitInput selects the initial condition of a propagation: a catalog
// entry, an element record or a state.
type orbitInput struct {
	NoradID        int                       `json:"norad_id,omitempty"`
	TLE            string                    `json:"tle,omitempty"`
	State          *config.State             `json:"state,omitempty"`
	StateTimestamp *config.DayOfYear         `json:"state_timestamp,omitempty"`
	Mode           string                    `json:"mode,omitempty"`
	Perturbations  propagation.Perturbations `json:"perturbations"`
	Integrator     config.Integrator         `json:"integrator"`
}

func (in orbitInput) scenario() *config.Scenario {
	return &config.Scenario{
		Mode:           in.Mode,
		Perturbations:  in.Perturbations,
		Integrator:     in.Integrator,
		State:          in.State,
		StateTimestamp: in.StateTimestamp,
		TLE:            in.TLE,
	}
}

// request resolves the input into a propagation request.
func (s *Server) request(in orbitInput) (propagation.Request, error) {
	if in.Mode != "" {
		if _, err := propagation.ParseModel(in.Mode); err != nil {
			return propagation.Request{}, badRequest("mode: %v", err)
		}
	}
	given := 0
	for _, set := range []bool{in.NoradID > 0, strings.TrimSpace(in.TLE) != "", in.State != nil} {
		if set {
			given++
		}
	}
	if given != 1 {
		return propagation.Request{}, badRequest("give exactly one of norad_id, tle and state")
	}
	if in.StateTimestamp != nil && in.State == nil {
		return propagation.Request{}, badRequest("state_timestamp given without state")
	}

	es, err := s.elements(in.NoradID)
	if err != nil {
		return propagation.Request{}, err
	}
	return in.scenario().Request(es)
}

// elements looks a catalog number up, returning nil for zero.
func (s *Server) elements(noradID int) (*tle.ElementSet, error) {
	if noradID <= 0 {
		return nil, nil
	}
	if s.catalog.Get() == nil {
		return nil, fmt.Errorf("%w: no catalog loaded", errUnavailable)
	}
	es, ok := s.catalog.Lookup(noradID)
	if !ok {
		return nil, fmt.Errorf("%w: catalog number %d", errNotFound, noradID)
	}
	return &es, nil
}

// stateJSON is a state vector with array components.
type stateJSON struct {
	Epoch       transform.Epoch `json:"epoch"`
	Frame       transform.Frame `json:"frame"`
	PositionKm  [3]float64      `json:"position_km"`
	VelocityKmS [3]float64      `json:"velocity_kms"`
}

func toStateJSON(sv propagation.StateVector) stateJSON {
	if utc, err := transform.Convert(sv.Epoch, transform.ScaleUTC); err == nil {
		sv.Epoch = utc
	}
	return stateJSON{
		Epoch:       sv.Epoch,
		Frame:       sv.Frame,
		PositionKm:  [3]float64{sv.Position.X, sv.Position.Y, sv.Position.Z},
		VelocityKmS: [3]float64{sv.Velocity.X, sv.Velocity.Y, sv.Velocity.Z},
	}
}

// outputFrame parses an output frame name, inertial when empty. Topocentric
// output needs station.
func outputFrame(name string, station *config.Station) (transform.Frame, *transform.Site, error) {
	if strings.TrimSpace(name) == "" {
		return transform.FrameInertial, nil, nil
	}
	frame, err := transform.ParseFrame(name)
	if err != nil {
		return 0, nil, badRequest("frame: %v", err)
	}
	if frame != transform.FrameTopocentric {
		return frame, nil, nil
	}
	if station == nil {
		return 0, nil, badRequest("frame: topocentric output needs a station")
	}
	plans, err := (&config.Scenario{Stations: []config.Station{*station}}).Plans()
	if err != nil {
		return 0, nil, err
	}
	site := plans[0].Station.Site
	return frame, &site, nil
}

type catalogResponse struct {
	Source     string    `json:"source"`
	LoadedAt   time.Time `json:"loaded_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Count      int       `json:"count"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c := s.catalog.Get()
	if c == nil {
		s.writeError(w, r, fmt.Errorf("%w: no catalog loaded", errUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, catalogResponse{
		Source:     c.Source,
		LoadedAt:   c.LoadedAt,
		AgeSeconds: s.catalog.AgeSeconds(),
		Count:      len(c.Sets),
		EpochMin:   c.EpochRange.Min,
		EpochMax:   c.EpochRange.Max,
	})
}

type catalogEntryResponse struct {
	NoradID       int             `json:"norad_id"`
	Name          string          `json:"name,omitempty"`
	Designator    string          `json:"designator,omitempty"`
	Epoch         transform.Epoch `json:"epoch"`
	Line1         string          `json:"line1"`
	Line2         string          `json:"line2"`
	PeriodMinutes float64         `json:"period_minutes"`
	Elements      orbit.Elements  `json:"elements"`
}

func (s *Server) handleCatalogEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id <= 0 {
		s.writeError(w, r, badRequest("norad_id must be a positive integer"))
		return
	}
	es, err := s.elements(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	el := es.Elements()
	l1, l2 := tle.Format(*es)
	writeJSON(w, http.StatusOK, catalogEntryResponse{
		NoradID:       es.CatalogNumber,
		Name:          es.Name,
		Designator:    es.Designator,
		Epoch:         es.Epoch,
		Line1:         l1,
		Line2:         l2,
		PeriodMinutes: el.Period(orbit.MuEarth) / 60,
		Elements:      el,
	})
}

type cacheStatsResponse struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	st := s.cache.Stats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{Hits: st.Hits, Misses: st.Misses, Entries: st.Entries})
}

type positionsResponse struct {
	Epoch     transform.Epoch                 `json:"epoch"`
	Model     string                          `json:"model"`
	Count     int                             `json:"count"`
	Failed    int                             `json:"failed"`
	Positions []propagation.SatellitePosition `json:"positions"`
}

// handlePositions propagates the whole catalog to ?at= (default now) with
// ?model= (default sgp4). ?j2=true adds J2 to the analytic model.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	c := s.catalog.Get()
	if c == nil {
		s.writeError(w, r, fmt.Errorf("%w: no catalog loaded", errUnavailable))
		return
	}
	q := r.URL.Query()

	at := transform.NewEpoch(time.Now().UTC())
	if v := q.Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			s.writeError(w, r, badRequest("at: want RFC 3339 time, got %q", v))
			return
		}
		at = transform.NewEpoch(t.UTC())
	}

	opts := propagation.BatchOptions{Model: propagation.ModelSGP4}
	if v := q.Get("model"); v != "" {
		m, err := propagation.ParseModel(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if m == propagation.ModelNumerical {
			s.writeError(w, r, badRequest("model: numerical is not available for catalog batches"))
			return
		}
		opts.Model = m
	}
	if v := q.Get("j2"); v != "" {
		j2, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, badRequest("j2: want a boolean, got %q", v))
			return
		}
		opts.Perturbations.J2 = j2
	}

	ctx, cancel := s.computeContext(r)
	defer cancel()
	positions, ok, failed, err := s.pool.PropagateBatch(ctx, c.Sets, at, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if positions == nil {
		positions = []propagation.SatellitePosition{}
	}
	writeJSON(w, http.StatusOK, positionsResponse{
		Epoch:     at,
		Model:     opts.Model.String(),
		Count:     ok,
		Failed:    failed,
		Positions: positions,
	})
}

type propagateRequest struct {
	orbitInput
	At      string          `json:"at"`
	Frame   string          `json:"frame,omitempty"`
	Station *config.Station `json:"station,omitempty"`

	// WithTLE asks for an element record fitted to the propagated state.
	WithTLE bool `json:"with_tle,omitempty"`
}

type propagateResponse struct {
	State      stateJSON               `json:"state"`
	Geodetic   transform.GeodeticPoint `json:"geodetic"`
	Invariants orbit.Invariants        `json:"invariants"`
	TLE        *elementsResponse       `json:"tle,omitempty"`
}

func (s *Server) handlePropagate(w http.ResponseWriter, r *http.Request) {
	var req propagateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(req.At))
	if err != nil {
		s.writeError(w, r, badRequest("at: want RFC 3339 time, got %q", req.At))
		return
	}
	frame, site, err := outputFrame(req.Frame, req.Station)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	preq, err := s.request(req.orbitInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := propagation.New(preq, s.cache)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sv, err := p.Propagate(transform.NewEpoch(at.UTC()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	inv, err := propagation.Invariants(sv)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fixed, err := sv.In(transform.FrameEarthFixed, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := sv.In(frame, site)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := propagateResponse{
		State:      toStateJSON(out),
		Geodetic:   transform.ECEFToGeodetic(fixed.Position),
		Invariants: inv,
	}
	if req.WithTLE {
		template := tle.Template(req.NoradID)
		if preq.Elements != nil {
			template = *preq.Elements
		}
		es, err := tle.FromState(sv, template)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		er := toElementsResponse(es)
		resp.TLE = &er
	}
	writeJSON(w, http.StatusOK, resp)
}

type ephemerisRequest struct {
	orbitInput
	Span    config.Span     `json:"span"`
	Step    config.Duration `json:"step"`
	Frame   string          `json:"frame,omitempty"`
	Station *config.Station `json:"station,omitempty"`
}

type ephemerisResponse struct {
	ID     string      `json:"id"`
	Model  string      `json:"model"`
	Count  int         `json:"count"`
	States []stateJSON `json:"states"`
}

func (s *Server) handleEphemeris(w http.ResponseWriter, r *http.Request) {
	var req ephemerisRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Step <= 0 {
		req.Step = config.Duration(time.Minute)
	}
	start, end, err := (&config.Scenario{Span: req.Span}).Window()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	epochs, err := scan.Epochs(start, end, req.Step.D(), s.cfg.MaxEphemerisPoints)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	frame, site, err := outputFrame(req.Frame, req.Station)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	preq, err := s.request(req.orbitInput)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.computeContext(r)
	defer cancel()
	states, err := scan.Ephemeris(ctx, preq, epochs, frame, site, s.cache)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := ephemerisResponse{
		ID:     uuid.NewString(),
		Model:  modelName(preq),
		Count:  len(states),
		States: make([]stateJSON, len(states)),
	}
	for i, sv := range states {
		resp.States[i] = toStateJSON(sv)
	}
	writeJSON(w, http.StatusOK, resp)
}

// modelName returns the model a request resolves to.
func modelName(req propagation.Request) string {
	switch {
	case req.Model != 0:
		return req.Model.String()
	case req.State != nil:
		return propagation.ModelNumerical.String()
	default:
		return propagation.ModelKepler.String()
	}
}

// scenarioRequest is a scenario that may name a catalog entry instead of
// embedding its own initial condition.
type scenarioRequest struct {
	config.Scenario
	NoradID int `json:"norad_id,omitempty"`
}

// resolve validates the scenario and looks up its catalog entry.
func (s *Server) resolve(req *scenarioRequest) (*tle.ElementSet, error) {
	sc := &req.Scenario
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if req.NoradID > 0 && (strings.TrimSpace(sc.TLE) != "" || sc.State != nil) {
		return nil, badRequest("norad_id conflicts with tle and state")
	}
	return s.elements(req.NoradID)
}

type windowsResponse struct {
	ID        string          `json:"id"`
	Count     int             `json:"count"`
	ElapsedMS int64           `json:"elapsed_ms"`
	Windows   []passes.Window `json:"windows"`
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	es, err := s.resolve(&req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.computeContext(r)
	defer cancel()
	start := time.Now()
	windows, err := scan.Windows(ctx, &req.Scenario, es, s.env())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if windows == nil {
		windows = []passes.Window{}
	}
	id := uuid.NewString()
	s.logger.Info("window scan",
		"component", "api",
		"scan_id", id,
		"stations", len(req.Stations),
		"windows", len(windows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, windowsResponse{
		ID:        id,
		Count:     len(windows),
		ElapsedMS: time.Since(start).Milliseconds(),
		Windows:   windows,
	})
}

type stationObservations struct {
	Station      string                   `json:"station"`
	Observations []visibility.Observation `json:"observations"`
}

type observationsResponse struct {
	ID       string                `json:"id"`
	Stations []stationObservations `json:"stations"`
}

// handleObservations samples look angles and visibility at every scenario
// step for each station, against the station's first mask.
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	es, err := s.resolve(&req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sc := &req.Scenario
	start, end, err := sc.Window()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := s.cfg.MaxEphemerisPoints / len(sc.Stations)
	if limit < 1 {
		limit = 1
	}
	epochs, err := scan.Epochs(start, end, sc.Step.D(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	plans, err := sc.Plans()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	preq, err := sc.Request(es)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	src, err := propagation.NewSource(preq, start, end, s.env().NodeStep, s.cache)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := s.computeContext(r)
	defer cancel()
	resp := observationsResponse{ID: uuid.NewString()}
	preds := sc.PredicateList()
	for _, p := range plans {
		obs, err := scan.Observations(ctx, src, p.Station, epochs, preds)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Stations = append(resp.Stations, stationObservations{Station: p.Station.Name, Observations: obs})
	}
	writeJSON(w, http.StatusOK, resp)
}

type elementsRequest struct {
	State          *config.State     `json:"state"`
	StateTimestamp *config.DayOfYear `json:"state_timestamp,omitempty"`
	NoradID        int               `json:"norad_id,omitempty"`
	Name           string            `json:"name,omitempty"`
}

type elementsResponse struct {
	Name   string         `json:"name,omitempty"`
	Line1  string         `json:"line1"`
	Line2  string         `json:"line2"`
	Record string         `json:"record"`
	Osc    orbit.Elements `json:"elements"`
}

// handleElements fits an element record to a state. A catalog entry with
// the same number, when loaded, supplies the identifiers and drag terms.
func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	var req elementsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.State == nil {
		s.writeError(w, r, badRequest("state is required"))
		return
	}
	sv, err := (&config.Scenario{State: req.State, StateTimestamp: req.StateTimestamp}).StateVector()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	template := tle.Template(req.NoradID)
	if req.NoradID > 0 {
		if es, ok := s.catalog.Lookup(req.NoradID); ok {
			template = es
		}
	}
	if req.Name != "" {
		template.Name = req.Name
	}
	es, err := tle.FromState(*sv, template)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toElementsResponse(es))
}

func toElementsResponse(es tle.ElementSet) elementsResponse {
	l1, l2 := tle.Format(es)
	return elementsResponse{
		Name:   es.Name,
		Line1:  l1,
		Line2:  l2,
		Record: tle.Serialize(es),
		Osc:    es.Elements(),
	}
}
