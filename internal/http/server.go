// Package http exposes the forecast engine as a small JSON API.
package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finora/internal/core"
	flog "finora/internal/log"
)

// Forecaster computes one forecast. *forecast.Engine satisfies it.
type Forecaster interface {
	Calculate(ctx context.Context, req core.ForecastRequest) (core.ForecastResult, error)
}

// ReadyFunc reports whether the backing stores can serve requests.
type ReadyFunc func(ctx context.Context) error

// Config wires a Server.
type Config struct {
	Addr       string
	Forecaster Forecaster
	Ready      ReadyFunc
	// Gatherer backs GET /metrics. Nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
	// Registerer receives the HTTP collectors. Nil disables them.
	Registerer prometheus.Registerer
	Logger     *flog.Logger
	// RequestsPerMinute limits POSTs per client IP. Zero disables limiting.
	RequestsPerMinute int
}

type Server struct {
	http.Server
	forecaster  Forecaster
	ready       ReadyFunc
	logger      *flog.Logger
	rateLimiter *rateLimiter
	metrics     *httpMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = flog.New(flog.DefaultConfig())
	}
	logger = logger.WithComponent(flog.ComponentHTTP)

	r := mux.NewRouter()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		forecaster:  cfg.Forecaster,
		ready:       cfg.Ready,
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RequestsPerMinute),
		metrics:     newHTTPMetrics(cfg.Registerer),
	}

	r.Use(s.withRequestID, s.withLogging, s.withSecurityHeaders)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	for _, path := range []string{"/api/v1/forecast/calc", "/forecast/calc"} {
		r.HandleFunc(path, s.handleForecastCalc).Methods(http.MethodPost)
		r.HandleFunc(path, handlePreflight).Methods(http.MethodOptions)
	}
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return s
}

// Shutdown stops the rate limiter and drains the HTTP server. Only the first
// call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

type httpMetrics struct {
	requests    *prometheus.CounterVec
	rateLimited prometheus.Counter
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	if reg == nil {
		return nil
	}
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finora",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "finora",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}),
	}
	reg.MustRegister(m.requests, m.rateLimited)
	return m
}

func (m *httpMetrics) observe(route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *httpMetrics) limited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
