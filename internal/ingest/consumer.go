// Package ingest consumes raw telemetry from Kafka and lands it in the
// analytical store. It is the only writer of telemetry_events besides the
// demo seeder; the pipeline itself treats that table as read-only.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/reports/internal/domain"
)

// Reader exposes the minimal kafka.Reader interface needed by the consumer.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// EventWriter persists decoded telemetry events.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []domain.TelemetryEvent) error
}

// eventPayload is the wire shape of one telemetry record.
type eventPayload struct {
	TS           time.Time `json:"ts"`
	CustomerID   string    `json:"customer_id"`
	ProsthesisID string    `json:"prosthesis_id"`
	ResponseMS   float64   `json:"response_ms"`
	IsError      bool      `json:"is_error"`
	BatteryLevel float64   `json:"battery_level"`
}

// Option configures optional behaviour for the Consumer.
type Option func(*Consumer)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

// Consumer pulls telemetry messages from Kafka, decodes them, and inserts
// them into the warehouse.
type Consumer struct {
	reader Reader
	writer EventWriter
	logger *log.Logger
}

// NewConsumer constructs a Consumer with the provided reader and writer.
func NewConsumer(reader Reader, writer EventWriter, opts ...Option) *Consumer {
	c := &Consumer{
		reader: reader,
		writer: writer,
		logger: log.New(log.Writer(), "[ingest] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run starts a blocking loop that processes messages until the context is
// cancelled. Offsets are committed only after the event is durably inserted,
// so an insert failure redelivers the message. Malformed payloads are logged,
// counted, and committed to avoid poison-pill loops.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeEvent(msg)
		if decodeErr != nil {
			c.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			decodeErrors.Inc()
			if commitErr := c.reader.CommitMessages(ctx, msg); commitErr != nil {
				c.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if insertErr := c.writer.InsertEvents(ctx, []domain.TelemetryEvent{event}); insertErr != nil {
			c.logger.Printf("insert error (customer=%s, offset=%d): %v", event.CustomerID, msg.Offset, insertErr)
			insertErrors.Inc()
			continue
		}

		if commitErr := c.reader.CommitMessages(ctx, msg); commitErr != nil {
			c.logger.Printf("commit error: %v", commitErr)
		} else {
			eventsIngested.Inc()
		}
	}
}

func decodeEvent(msg kafka.Message) (domain.TelemetryEvent, error) {
	var payload eventPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return domain.TelemetryEvent{}, err
	}
	if payload.CustomerID == "" {
		return domain.TelemetryEvent{}, errors.New("missing customer_id")
	}
	if payload.ProsthesisID == "" {
		return domain.TelemetryEvent{}, errors.New("missing prosthesis_id")
	}
	if payload.TS.IsZero() {
		return domain.TelemetryEvent{}, fmt.Errorf("missing ts for customer %s", payload.CustomerID)
	}

	return domain.TelemetryEvent{
		TS:           payload.TS.UTC(),
		CustomerID:   payload.CustomerID,
		ProsthesisID: payload.ProsthesisID,
		ResponseMS:   payload.ResponseMS,
		IsError:      payload.IsError,
		BatteryLevel: payload.BatteryLevel,
	}, nil
}
