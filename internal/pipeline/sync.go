// Package pipeline implements the scheduled ETL core: incremental dimension
// sync from the CRM and per-date rebuilds of the daily telemetry rollup.
package pipeline

import (
	"context"
	"log"
	"time"

	"example.com/reports/internal/domain"
	"example.com/reports/internal/observability"
)

// SyncCursorName keys the dimension sync watermark in the state store.
const SyncCursorName = "crm_watermark"

// CustomerSource reads changed customers from the transactional CRM.
type CustomerSource interface {
	ChangedSince(ctx context.Context, cursor time.Time, limit int) ([]domain.Customer, error)
}

// DimensionStore is the analytical-store surface the syncer writes to.
type DimensionStore interface {
	UpsertCustomers(ctx context.Context, customers []domain.Customer) error
	LoadCursor(ctx context.Context, name string) (time.Time, error)
	SaveCursor(ctx context.Context, name string, cursor time.Time) error
}

// SyncResult reports one sync batch.
type SyncResult struct {
	Cursor   time.Time // watermark after the batch; unchanged when the batch was empty
	Upserted int
	Skipped  int // malformed records logged and dropped
}

// Syncer pulls changed CRM customers past the persisted watermark and upserts
// them into the dimension table.
type Syncer struct {
	source   CustomerSource
	dim      DimensionStore
	pageSize int
	logger   *log.Logger
}

// SyncerOption configures optional behaviour for the Syncer.
type SyncerOption func(*Syncer)

// WithSyncLogger overrides the logger used to report skipped records.
func WithSyncLogger(logger *log.Logger) SyncerOption {
	return func(s *Syncer) { s.logger = logger }
}

// NewSyncer constructs a Syncer. pageSize bounds one batch.
func NewSyncer(source CustomerSource, dim DimensionStore, pageSize int, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		source:   source,
		dim:      dim,
		pageSize: pageSize,
		logger:   log.New(log.Writer(), "[sync] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one incremental batch. The cursor is read from the state store,
// the page of changed customers past it is upserted, and only after the
// upsert commits is the cursor advanced to the highest updated_at seen. A
// crash or transient failure anywhere before the cursor write leaves the old
// watermark in place, so the retry re-reads the same records and the upsert
// absorbs them idempotently. An empty batch leaves the cursor untouched.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	cursor, err := s.dim.LoadCursor(ctx, SyncCursorName)
	if err != nil {
		return SyncResult{}, err
	}

	records, err := s.source.ChangedSince(ctx, cursor, s.pageSize)
	if err != nil {
		return SyncResult{}, err
	}
	if len(records) == 0 {
		return SyncResult{Cursor: cursor}, nil
	}

	batch := make([]domain.Customer, 0, len(records))
	maxSeen := cursor
	skipped := 0
	for i, record := range records {
		if record.UpdatedAt.After(maxSeen) {
			maxSeen = record.UpdatedAt
		}
		if record.CustomerID == "" {
			recErr := &domain.MalformedRecordError{Position: i, Reason: "missing customer_id"}
			s.logger.Printf("skipping record: %v", recErr)
			malformedCounter.Inc()
			skipped++
			continue
		}
		batch = append(batch, record)
	}

	if err := s.dim.UpsertCustomers(ctx, batch); err != nil {
		return SyncResult{}, err
	}

	// Malformed records count toward the watermark too, otherwise a page of
	// bad rows would be re-read forever.
	if err := s.dim.SaveCursor(ctx, SyncCursorName, maxSeen); err != nil {
		return SyncResult{}, err
	}

	customersUpserted.Add(float64(len(batch)))
	observability.RecordSyncCursor(maxSeen)

	return SyncResult{Cursor: maxSeen, Upserted: len(batch), Skipped: skipped}, nil
}
