package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ducminhle1904/tradeguard/internal/bracket"
	"github.com/ducminhle1904/tradeguard/internal/logger"
	"github.com/ducminhle1904/tradeguard/internal/orchestrator"
	"github.com/ducminhle1904/tradeguard/internal/risk"
)

// RiskReporter is the part of the risk gate the server exposes
type RiskReporter interface {
	GetSummary(portfolioValue float64) risk.Summary
}

// BracketController is the part of the bracket manager the server exposes
type BracketController interface {
	GetActive() []bracket.Order
	GetStats() bracket.Stats
	Cancel(id string) bool
}

// Submitter accepts trade intents; the orchestrator Guard implements it
type Submitter interface {
	Submit(ctx context.Context, intent orchestrator.TradeIntent) (orchestrator.SubmitResult, error)
}

// ServerConfig holds status server settings
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the read-mostly status API of a running guard
type Server struct {
	router   *mux.Router
	server   *http.Server
	logger   *logger.Logger
	health   HealthReporter
	risk     RiskReporter
	brackets BracketController
	gatherer prometheus.Gatherer
	submit   Submitter

	// portfolio value used for /api/risk when the query has none
	portfolioValue func() float64
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer serves metrics from gatherer instead of the default registry
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithPortfolioValue supplies the portfolio value for risk summaries
func WithPortfolioValue(fn func() float64) Option {
	return func(s *Server) { s.portfolioValue = fn }
}

// WithSubmitter enables POST /api/intents
func WithSubmitter(sub Submitter) Option {
	return func(s *Server) { s.submit = sub }
}

// NewServer builds the router; call Start to listen
func NewServer(config ServerConfig, hr HealthReporter, rr RiskReporter, bc BracketController, opts ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		health:   hr,
		risk:     rr,
		brackets: bc,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}

	s.setupRoutes()
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.Handle("/healthz", NewHealthChecker(s.health)).Methods(http.MethodGet)
	s.router.Handle("/metrics", NewMetricsHandler(s.gatherer)).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/health/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/risk", s.handleRisk).Methods(http.MethodGet)
	api.HandleFunc("/brackets", s.handleBrackets).Methods(http.MethodGet)
	api.HandleFunc("/brackets/{id}", s.handleCancelBracket).Methods(http.MethodDelete)
	if s.submit != nil {
		api.HandleFunc("/intents", s.handleSubmit).Methods(http.MethodPost)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Status server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down status server")
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID)))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		s.logger.Debug("REQ %v %s %s %d %v", r.Context().Value(requestIDKey{}), r.Method, r.URL.Path, wrapper.statusCode, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.GetSummary())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.health.GetRecentAlerts(limit))
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	var pv float64
	if v := r.URL.Query().Get("portfolio_value"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "portfolio_value must be a non-negative number"})
			return
		}
		pv = f
	} else if s.portfolioValue != nil {
		pv = s.portfolioValue()
	}
	writeJSON(w, http.StatusOK, s.risk.GetSummary(pv))
}

type bracketsResponse struct {
	Active []bracket.Order `json:"active"`
	Stats  bracket.Stats   `json:"stats"`
}

func (s *Server) handleBrackets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bracketsResponse{Active: s.brackets.GetActive(), Stats: s.brackets.GetStats()})
}

func (s *Server) handleCancelBracket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.brackets.Cancel(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active bracket " + id})
		return
	}
	s.logger.Info("Bracket %s cancelled via API", id)
	writeJSON(w, http.StatusOK, map[string]string{"cancelled": id})
}

const maxIntentBody = 1 << 20

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var intent orchestrator.TradeIntent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIntentBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&intent); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid intent: " + err.Error()})
		return
	}

	res, err := s.submit.Submit(r.Context(), intent)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	code := http.StatusOK
	switch res.Status {
	case orchestrator.StatusRejected:
		code = http.StatusUnprocessableEntity
	case orchestrator.StatusPaused:
		code = http.StatusServiceUnavailable
	case orchestrator.StatusFailed:
		code = http.StatusBadGateway
	}
	writeJSON(w, code, res)
}
