package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finora/internal/core"
	"finora/internal/forecast"
	flog "finora/internal/log"
)

// handleForecastCalc decodes a ForecastRequest and returns the engine's
// result. Invalid requests are 400; any other failure is an opaque 500.
func (s *Server) handleForecastCalc(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := flog.FromContext(ctx)

	var res core.ForecastResult
	req, err := forecast.DecodeRequest(r.Body)
	if err == nil {
		res, err = s.forecaster.Calculate(ctx, req)
	}
	switch {
	case err == nil:
	case errors.Is(err, forecast.ErrInvalidRequest):
		logger.WarnContext(ctx, "Rejected forecast request", flog.FieldError, err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		flog.NewStructuredLogger(logger).LogError(ctx, "Forecast calculation failed", err, flog.OpCalculate, nil)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	flog.NewStructuredLogger(logger).LogForecast(ctx, res.Month.String(), res.ProjectedBalanceCts, res.Components.BudgetBaseCts)
	writeJSON(w, http.StatusOK, res)
}

func handlePreflight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			flog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", flog.FieldError, err.Error())
			writeError(w, http.StatusServiceUnavailable, "Not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
