package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	flog "finora/internal/log"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds caller-supplied request IDs.
const maxRequestIDLen = 64

// withRequestID reuses a well-formed incoming X-Request-ID or generates one,
// echoes it on the response and stores a request-scoped logger in the context.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	scoped := flog.Middleware(s.logger)(flog.RequestIDMiddleware(requestIDOf)(next))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		r.Header.Set(RequestIDHeader, id)
		w.Header().Set(RequestIDHeader, id)
		scoped.ServeHTTP(w, r)
	})
}

func requestIDOf(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

// withLogging records completion of every routed request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.observe(route, rw.statusCode)
		flog.NewStructuredLogger(flog.FromContext(r.Context())).
			LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), extractClientIP(r))
	})
}

// withSecurityHeaders applies security and CORS headers and rate limits POSTs.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())
		setCORSHeaders(w.Header())

		if r.Method == http.MethodPost {
			clientIP := extractClientIP(r)
			if !s.rateLimiter.allow(clientIP) {
				s.metrics.limited()
				flog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
					flog.FieldClientIP, clientIP, flog.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
