// Package worker answers forecast requests that arrive over AMQP.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"finora/internal/amqp"
	"finora/internal/core"
	"finora/internal/forecast"
	flog "finora/internal/log"
)

// Forecaster computes one forecast. *forecast.Engine satisfies it.
type Forecaster interface {
	Calculate(ctx context.Context, req core.ForecastRequest) (core.ForecastResult, error)
}

// ForecastWorker turns request deliveries into reply envelopes.
type ForecastWorker struct {
	engine Forecaster
	logger *slog.Logger
}

func NewForecastWorker(engine Forecaster, logger *slog.Logger) *ForecastWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastWorker{
		engine: engine,
		logger: logger.With(flog.FieldComponent, flog.ComponentWorker),
	}
}

// Handle implements amqp.Handler. Bodies that are not JSON are malformed.
// Engine failures become error envelopes so the caller always hears back,
// except when ctx itself ended, in which case the delivery is requeued.
func (w *ForecastWorker) Handle(ctx context.Context, req amqp.Request) ([]byte, error) {
	logger := w.logger.With(flog.FieldCorrID, req.CorrelationID)

	if !json.Valid(req.Body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", amqp.ErrMalformed)
	}

	var res core.ForecastResult
	fr, err := forecast.DecodeRequest(bytes.NewReader(req.Body))
	if err == nil {
		res, err = w.engine.Calculate(ctx, fr)
	}

	var reply *amqp.ForecastReply
	switch {
	case err == nil:
		logger.InfoContext(ctx, "Forecast request answered",
			flog.FieldMonth, res.Month.String(),
			flog.FieldProjected, res.ProjectedBalanceCts)
		reply = amqp.NewResultReply(res)
	case ctx.Err() != nil:
		return nil, fmt.Errorf("calculate forecast: %w", err)
	case errors.Is(err, forecast.ErrInvalidRequest):
		logger.WarnContext(ctx, "Rejected forecast request", flog.FieldError, err)
		reply = amqp.NewErrorReply(amqp.CodeInvalidRequest, err.Error())
	default:
		logger.ErrorContext(ctx, "Forecast request failed", flog.FieldError, err)
		reply = amqp.NewErrorReply(amqp.CodeInternal, "Internal error")
	}

	body, err := reply.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	return body, nil
}
