package amqp

import (
	"encoding/json"
	"time"

	"finora/internal/core"
)

// Reply codes carried by a failed ForecastReply.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInternal       = "internal"
)

// ForecastReply is the envelope published to a request's ReplyTo queue.
// Exactly one of Result or Error is set.
type ForecastReply struct {
	OK        bool                 `json:"ok"`
	Result    *core.ForecastResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	Code      string               `json:"code,omitempty"`
	RepliedAt time.Time            `json:"repliedAt"`
}

// NewResultReply wraps a computed forecast.
func NewResultReply(res core.ForecastResult) *ForecastReply {
	return &ForecastReply{OK: true, Result: &res, RepliedAt: time.Now().UTC()}
}

// NewErrorReply reports a failed forecast with a machine-readable code.
func NewErrorReply(code, msg string) *ForecastReply {
	return &ForecastReply{Code: code, Error: msg, RepliedAt: time.Now().UTC()}
}

func (m *ForecastReply) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ForecastReplyFromJSON(data []byte) (*ForecastReply, error) {
	var msg ForecastReply
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
