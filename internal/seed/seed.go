// Package seed loads demo data for local development. It is a one-shot task
// guarded by existence checks and is never part of the recurring pipeline.
package seed

import (
	"context"
	"log"
	"math/rand"
	"time"

	"example.com/reports/internal/domain"
)

// CustomerStore is the CRM surface the seeder needs.
type CustomerStore interface {
	CountCustomers(ctx context.Context) (int64, error)
	UpsertCustomers(ctx context.Context, customers []domain.Customer) error
	ChangedSince(ctx context.Context, cursor time.Time, limit int) ([]domain.Customer, error)
}

// EventStore is the warehouse surface the seeder needs.
type EventStore interface {
	CountEvents(ctx context.Context) (uint64, error)
	InsertEvents(ctx context.Context, events []domain.TelemetryEvent) error
}

// Seeder populates the CRM and the raw event table with demo data.
type Seeder struct {
	customers         CustomerStore
	events            EventStore
	eventsPerCustomer int
	logger            *log.Logger
	rng               *rand.Rand
}

// Option configures optional behaviour for the Seeder.
type Option func(*Seeder)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Seeder) { s.logger = logger }
}

// WithRand overrides the random source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Seeder) { s.rng = rng }
}

// NewSeeder constructs a Seeder.
func NewSeeder(customers CustomerStore, events EventStore, eventsPerCustomer int, opts ...Option) *Seeder {
	s := &Seeder{
		customers:         customers,
		events:            events,
		eventsPerCustomer: eventsPerCustomer,
		logger:            log.New(log.Writer(), "[seed] ", log.LstdFlags),
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var demoCustomers = []domain.Customer{
	{CustomerID: "c1", FullName: "Alex Ivanov", Email: "alex@example.com", Country: "RU"},
	{CustomerID: "c2", FullName: "Ivan Smirnov", Email: "ivan@example.com", Country: "RU"},
	{CustomerID: "c3", FullName: "Anton Petrov", Email: "anton@example.com", Country: "RU"},
	{CustomerID: "c4", FullName: "Elena Sidorova", Email: "elena@example.com", Country: "RU"},
}

// Run seeds the CRM with demo customers and the warehouse with synthetic
// telemetry. Each half is skipped when its table already has rows, so the
// seeder is safe to re-run.
func (s *Seeder) Run(ctx context.Context) error {
	count, err := s.customers.CountCustomers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Printf("crm already has %d customers, skipping customer seed", count)
	} else {
		now := time.Now().UTC()
		batch := make([]domain.Customer, len(demoCustomers))
		for i, c := range demoCustomers {
			c.UpdatedAt = now
			batch[i] = c
		}
		if err := s.customers.UpsertCustomers(ctx, batch); err != nil {
			return err
		}
		s.logger.Printf("seeded %d customers", len(batch))
	}

	eventCount, err := s.events.CountEvents(ctx)
	if err != nil {
		return err
	}
	if eventCount > 0 {
		s.logger.Printf("warehouse already has %d events, skipping telemetry seed", eventCount)
		return nil
	}

	customers, err := s.customers.ChangedSince(ctx, time.Time{}, 100)
	if err != nil {
		return err
	}
	if len(customers) == 0 {
		s.logger.Printf("no customers to seed telemetry for")
		return nil
	}

	events := s.syntheticEvents(customers)
	if err := s.events.InsertEvents(ctx, events); err != nil {
		return err
	}
	s.logger.Printf("seeded %d telemetry events", len(events))
	return nil
}

var (
	responseChoices = []float64{120, 150, 180, 220, 300, 450}
	batteryChoices  = []float64{88, 85, 82, 80, 78}
)

func (s *Seeder) syntheticEvents(customers []domain.Customer) []domain.TelemetryEvent {
	now := time.Now().UTC()
	var events []domain.TelemetryEvent
	for _, c := range customers {
		prosthesisID := "p1"
		if s.rng.Intn(2) == 1 {
			prosthesisID = "p2"
		}
		for j := 0; j < s.eventsPerCustomer; j++ {
			events = append(events, domain.TelemetryEvent{
				TS:           now.Add(-time.Duration(s.rng.Intn(10)+1) * time.Minute),
				CustomerID:   c.CustomerID,
				ProsthesisID: prosthesisID,
				ResponseMS:   responseChoices[s.rng.Intn(len(responseChoices))],
				IsError:      s.rng.Float64() < 0.2,
				BatteryLevel: batteryChoices[s.rng.Intn(len(batteryChoices))],
			})
		}
	}
	return events
}
