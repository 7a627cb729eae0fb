// Package kafka publishes forecast lifecycle events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"finora/internal/core"
)

// EventForecastSnapshotted is the type header of ForecastSnapshotted events.
const EventForecastSnapshotted = "forecast.snapshotted"

// ForecastSnapshotted announces that a month's forecast was stored.
type ForecastSnapshotted struct {
	EventID             string          `json:"eventId"`
	Type                string          `json:"type"`
	Month               core.MonthKey   `json:"month"`
	ProjectedBalanceCts int64           `json:"projectedBalanceCts"`
	Components          core.Components `json:"components"`
	ComputedAt          time.Time       `json:"computedAt"`
	OccurredAt          time.Time       `json:"occurredAt"`
}

func NewForecastSnapshotted(f core.SavedForecast) ForecastSnapshotted {
	return ForecastSnapshotted{
		EventID:             uuid.NewString(),
		Type:                EventForecastSnapshotted,
		Month:               f.Month,
		ProjectedBalanceCts: f.ProjectedBalanceCts,
		Components:          f.Components,
		ComputedAt:          f.ComputedAt,
		OccurredAt:          time.Now().UTC(),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

// NewPublisher writes to topic on brokers. Messages are keyed by month so a
// month's events stay ordered within one partition.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Publisher) PublishForecastSnapshotted(ctx context.Context, f core.SavedForecast) error {
	event := NewForecastSnapshotted(f)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(f.Month.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.EventID)},
		},
		Time: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", event.Type, f.Month, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
