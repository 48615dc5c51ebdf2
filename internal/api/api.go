package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"poi-tiering/internal/budget"
	"poi-tiering/internal/classification"
	"poi-tiering/internal/discovery"
	"poi-tiering/internal/models"
	"poi-tiering/internal/relevance"
	"poi-tiering/internal/scheduler"
	"poi-tiering/pkg/config"
	errs "poi-tiering/pkg/errors"
	"poi-tiering/pkg/logging"
	"poi-tiering/pkg/metrics"
)

// Discoverer runs and reports bulk discovery.
type Discoverer interface {
	DiscoverDestination(ctx context.Context, opts discovery.DiscoveryOptions) (*discovery.Summary, error)
	GetRun(ctx context.Context, id int64) (*models.DiscoveryRun, error)
}

// Classifier is the classification surface exposed over HTTP.
type Classifier interface {
	Classify(ctx context.Context, poiID int64, opts classification.ClassifyOptions) (*classification.Result, error)
	BatchClassify(ctx context.Context, ids []int64, opts classification.ClassifyOptions) *classification.BatchResult
	GetPOIsForUpdate(ctx context.Context, tier models.Tier, limit int) ([]models.POI, error)
	TierStats(ctx context.Context) (*classification.TierStats, error)
}

// TierRunner triggers a scheduled tier refresh on demand.
type TierRunner interface {
	RunTier(ctx context.Context, tier models.Tier) (*scheduler.RunReport, error)
}

type Deps struct {
	Discovery  Discoverer
	Classifier Classifier
	// Scheduler may be nil when scheduling is disabled.
	Scheduler TierRunner
	Health    http.Handler
	Logger    *logging.Logger
	// MetricsPath serves Prometheus metrics when set.
	MetricsPath string
	// DefaultDestination is used when a discovery request names none.
	DefaultDestination string
	RequestTimeout     time.Duration
}

// Server is the operational HTTP surface.
type Server struct {
	d   Deps
	log *logging.ComponentLogger
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 5 * time.Minute
	}
	return &Server{d: d, log: d.Logger.WithComponent("api")}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID, recoverer(s.log), observe(s.log))

	if s.d.MetricsPath != "" {
		r.Handle(s.d.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}
	if s.d.Health != nil {
		r.Handle("/health", s.d.Health).Methods(http.MethodGet)
	}

	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/discovery", s.discover).Methods(http.MethodPost)
	a.HandleFunc("/discovery/runs/{id:[0-9]+}", s.getRun).Methods(http.MethodGet)
	a.HandleFunc("/pois/{id:[0-9]+}/classify", s.classifyOne).Methods(http.MethodPost)
	a.HandleFunc("/pois/classify", s.classifyBatch).Methods(http.MethodPost)
	a.HandleFunc("/pois/due", s.due).Methods(http.MethodGet)
	a.HandleFunc("/tiers/stats", s.tierStats).Methods(http.MethodGet)
	a.HandleFunc("/tiers/{tier:[1-4]}/refresh", s.refreshTier).Methods(http.MethodPost)
	return r
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps error kinds onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errs.Is(err, errs.ErrValidation):
		code = http.StatusBadRequest
	case errs.Is(err, errs.ErrNotFound):
		code = http.StatusNotFound
	case errs.Is(err, errs.ErrConstraintViolation):
		code = http.StatusConflict
	case errs.Is(err, errs.ErrBudgetExceeded):
		code = http.StatusPaymentRequired
	}
	if code >= 500 {
		s.log.Error(r.Context(), "request failed", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.NewValidation("api.decode", "invalid JSON body", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NewValidation("api.pathID", "invalid id", err)
	}
	return id, nil
}

func (s *Server) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.d.RequestTimeout)
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	var opts discovery.DiscoveryOptions
	if err := decode(r, &opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(opts.Destination) == "" {
		opts.Destination = s.d.DefaultDestination
	}
	if err := config.GetValidator().Struct(opts); err != nil {
		s.writeError(w, r, errs.NewValidation("api.discover", "invalid discovery request", err))
		return
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()
	sum, err := s.d.Discovery.DiscoverDestination(ctx, opts)
	if err != nil {
		if sum != nil && errs.Is(err, errs.ErrTransaction) {
			writeJSON(w, http.StatusInternalServerError, struct {
				errorBody
				Summary *discovery.Summary `json:"summary"`
			}{errorBody{err.Error()}, sum})
			s.log.Error(ctx, "discovery failed", err)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	run, err := s.d.Discovery.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// classifyRequest selects what a classification refreshes before scoring.
type classifyRequest struct {
	IDs              []int64  `json:"ids,omitempty" validate:"omitempty,max=1000,dive,gt=0"`
	Aggregate        bool     `json:"aggregate"`
	Sources          []string `json:"sources,omitempty" validate:"omitempty,dive,required"`
	RefreshRelevance bool     `json:"refresh_relevance"`
	RefreshBookings  bool     `json:"refresh_bookings"`
	Seasonal         bool     `json:"seasonal"`
	Weather          string   `json:"weather,omitempty" validate:"omitempty,oneof=clear cloudy rain storm snow"`
	Force            bool     `json:"force"`
}

func (c classifyRequest) options() classification.ClassifyOptions {
	return classification.ClassifyOptions{
		Aggregate:        c.Aggregate,
		Sources:          c.Sources,
		RefreshRelevance: c.RefreshRelevance,
		RefreshBookings:  c.RefreshBookings,
		Seasonal:         c.Seasonal,
		Weather:          relevance.Weather(strings.ToLower(c.Weather)),
	}
}

func forced(ctx context.Context) context.Context { return budget.WithForce(ctx) }

func (s *Server) classifyOne(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := classifyRequest{Aggregate: true, RefreshRelevance: true, RefreshBookings: true}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := config.GetValidator().Struct(req); err != nil {
		s.writeError(w, r, errs.NewValidation("api.classifyOne", "invalid classify request", err))
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	if req.Force {
		ctx = forced(ctx)
	}
	res, err := s.d.Classifier.Classify(ctx, id, req.options())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchResponse struct {
	Results []*classification.Result `json:"results"`
	Failed  map[int64]string         `json:"failed"`
}

func (s *Server) classifyBatch(w http.ResponseWriter, r *http.Request) {
	req := classifyRequest{Aggregate: true, RefreshRelevance: true, RefreshBookings: true}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, r, errs.NewValidation("api.classifyBatch", "ids are required", nil))
		return
	}
	if err := config.GetValidator().Struct(req); err != nil {
		s.writeError(w, r, errs.NewValidation("api.classifyBatch", "invalid batch request", err))
		return
	}
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	if req.Force {
		ctx = forced(ctx)
	}
	b := s.d.Classifier.BatchClassify(ctx, req.IDs, req.options())
	resp := batchResponse{Results: b.Results, Failed: b.Errors()}
	if resp.Results == nil {
		resp.Results = []*classification.Result{}
	}
	code := http.StatusOK
	if len(b.Failed) > 0 {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, resp)
}

func (s *Server) due(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tier, err := strconv.Atoi(q.Get("tier"))
	if err != nil {
		s.writeError(w, r, errs.NewValidation("api.due", "tier must be 1-4", err))
		return
	}
	limit := 0
	if l := q.Get("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil || limit < 0 {
			s.writeError(w, r, errs.NewValidation("api.due", "invalid limit", err))
			return
		}
	}
	pois, err := s.d.Classifier.GetPOIsForUpdate(r.Context(), models.Tier(tier), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pois == nil {
		pois = []models.POI{}
	}
	writeJSON(w, http.StatusOK, pois)
}

func (s *Server) tierStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.d.Classifier.TierStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) refreshTier(w http.ResponseWriter, r *http.Request) {
	if s.d.Scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "scheduler disabled"})
		return
	}
	tier, _ := strconv.Atoi(mux.Vars(r)["tier"])
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	rep, err := s.d.Scheduler.RunTier(ctx, models.Tier(tier))
	if err != nil && rep == nil {
		s.writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if err != nil {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, rep)
}
