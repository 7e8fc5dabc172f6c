package seed

import (
	"context"
	"io"
	"log"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/reports/internal/domain"
)

var quietLogger = log.New(io.Discard, "", 0)

type stubCustomerStore struct {
	customers []domain.Customer
	upserts   int
}

func (s *stubCustomerStore) CountCustomers(context.Context) (int64, error) {
	return int64(len(s.customers)), nil
}

func (s *stubCustomerStore) UpsertCustomers(_ context.Context, customers []domain.Customer) error {
	s.customers = append(s.customers, customers...)
	s.upserts += len(customers)
	return nil
}

func (s *stubCustomerStore) ChangedSince(_ context.Context, _ time.Time, limit int) ([]domain.Customer, error) {
	if len(s.customers) > limit {
		return s.customers[:limit], nil
	}
	return s.customers, nil
}

type stubEventStore struct {
	events  []domain.TelemetryEvent
	inserts int
}

func (s *stubEventStore) CountEvents(context.Context) (uint64, error) {
	return uint64(len(s.events)), nil
}

func (s *stubEventStore) InsertEvents(_ context.Context, events []domain.TelemetryEvent) error {
	s.events = append(s.events, events...)
	s.inserts++
	return nil
}

func TestSeederPopulatesEmptyStores(t *testing.T) {
	customers := &stubCustomerStore{}
	events := &stubEventStore{}

	seeder := NewSeeder(customers, events, 6, WithLogger(quietLogger), WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, seeder.Run(context.Background()))

	require.Equal(t, 4, customers.upserts)
	require.Len(t, events.events, 4*6)
	for _, e := range events.events {
		require.NotEmpty(t, e.CustomerID)
		require.NotEmpty(t, e.ProsthesisID)
		require.False(t, e.TS.IsZero())
	}
}

func TestSeederSkipsWhenDataExists(t *testing.T) {
	customers := &stubCustomerStore{customers: []domain.Customer{{CustomerID: "c1"}}}
	events := &stubEventStore{events: []domain.TelemetryEvent{{CustomerID: "c1"}}}

	seeder := NewSeeder(customers, events, 6, WithLogger(quietLogger))
	require.NoError(t, seeder.Run(context.Background()))

	require.Equal(t, 0, customers.upserts, "existing customers must not be reseeded")
	require.Equal(t, 0, events.inserts, "existing telemetry must not be reseeded")
}

func TestSeederSeedsTelemetryForExistingCustomers(t *testing.T) {
	customers := &stubCustomerStore{customers: []domain.Customer{
		{CustomerID: "c1"}, {CustomerID: "c2"},
	}}
	events := &stubEventStore{}

	seeder := NewSeeder(customers, events, 3, WithLogger(quietLogger), WithRand(rand.New(rand.NewSource(7))))
	require.NoError(t, seeder.Run(context.Background()))

	require.Equal(t, 0, customers.upserts)
	require.Len(t, events.events, 2*3)
}
