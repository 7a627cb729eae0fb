package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"finora/internal/core"
)

// MaxRequestBytes caps a decoded request body.
const MaxRequestBytes = 1 << 20

// DecodeRequest parses a JSON forecast request. Structural problems are
// reported as ErrInvalidRequest; individual extras are decoded leniently.
func DecodeRequest(r io.Reader) (core.ForecastRequest, error) {
	var req core.ForecastRequest
	dec := json.NewDecoder(io.LimitReader(r, MaxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return core.ForecastRequest{}, fmt.Errorf("%w: empty body", ErrInvalidRequest)
		}
		return core.ForecastRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Month == "" {
		return core.ForecastRequest{}, fmt.Errorf("%w: month is required", ErrInvalidRequest)
	}
	return req, nil
}
