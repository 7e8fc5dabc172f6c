package pipeline

import (
	"context"
	"log"
	"sort"
	"time"

	"example.com/reports/internal/domain"
)

// RollupStore is the analytical-store surface the rebuilder needs: the raw
// events for a date, the dimension snapshot to join against, and the atomic
// per-date replace.
type RollupStore interface {
	EventsOn(ctx context.Context, date time.Time) ([]domain.TelemetryEvent, error)
	DimensionSnapshot(ctx context.Context) (map[string]domain.Customer, error)
	ReplaceDaily(ctx context.Context, date time.Time, rows []domain.DailyRollup) error
}

// RebuildResult reports one date rebuild.
type RebuildResult struct {
	RowsWritten int
	JoinMisses  int // events whose customer had no dimension row
}

// Rebuilder recomputes the daily rollup for one event_date partition at a
// time, replacing the partition wholesale.
type Rebuilder struct {
	store  RollupStore
	logger *log.Logger
}

// RebuilderOption configures optional behaviour for the Rebuilder.
type RebuilderOption func(*Rebuilder)

// WithRebuildLogger overrides the logger used to report join misses.
func WithRebuildLogger(logger *log.Logger) RebuilderOption {
	return func(r *Rebuilder) { r.logger = logger }
}

// NewRebuilder constructs a Rebuilder.
func NewRebuilder(store RollupStore, opts ...RebuilderOption) *Rebuilder {
	r := &Rebuilder{
		store:  store,
		logger: log.New(log.Writer(), "[rebuild] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type rollupKey struct {
	customerID   string
	prosthesisID string
}

type rollupAccumulator struct {
	responses []float64
	batteries []float64
	errEvents uint64
}

// Rebuild recomputes the rollup for targetDate from raw events joined with
// the current dimension snapshot. The output is a pure function of those two
// inputs: groups are sorted, measures are deterministic, and the write path
// replaces the whole date partition, so rebuilding with unchanged inputs
// yields identical rows. Events referencing an unknown customer are kept with
// empty attributes and surfaced via the join-miss metric. Any read failure
// aborts before the replace, leaving the previous partition visible.
func (r *Rebuilder) Rebuild(ctx context.Context, targetDate time.Time) (RebuildResult, error) {
	date := domain.Day(targetDate)

	events, err := r.store.EventsOn(ctx, date)
	if err != nil {
		return RebuildResult{}, err
	}

	if len(events) == 0 {
		if err := r.store.ReplaceDaily(ctx, date, nil); err != nil {
			return RebuildResult{}, err
		}
		return RebuildResult{}, nil
	}

	snapshot, err := r.store.DimensionSnapshot(ctx)
	if err != nil {
		return RebuildResult{}, err
	}

	groups := make(map[rollupKey]*rollupAccumulator)
	for _, e := range events {
		key := rollupKey{customerID: e.CustomerID, prosthesisID: e.ProsthesisID}
		acc, ok := groups[key]
		if !ok {
			acc = &rollupAccumulator{}
			groups[key] = acc
		}
		acc.responses = append(acc.responses, e.ResponseMS)
		acc.batteries = append(acc.batteries, e.BatteryLevel)
		if e.IsError {
			acc.errEvents++
		}
	}

	keys := make([]rollupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].customerID != keys[j].customerID {
			return keys[i].customerID < keys[j].customerID
		}
		return keys[i].prosthesisID < keys[j].prosthesisID
	})

	joinMisses := 0
	rows := make([]domain.DailyRollup, 0, len(keys))
	for _, key := range keys {
		acc := groups[key]
		row := domain.DailyRollup{
			EventDate:       date,
			CustomerID:      key.customerID,
			ProsthesisID:    key.prosthesisID,
			Events:          uint64(len(acc.responses)),
			ErrEvents:       acc.errEvents,
			AvgResponseMS:   domain.Mean(acc.responses),
			P95ResponseMS:   domain.Percentile(acc.responses, 0.95),
			AvgBatteryLevel: domain.Mean(acc.batteries),
		}
		if customer, ok := snapshot[key.customerID]; ok {
			row.FullName = customer.FullName
			row.Country = customer.Country
		} else {
			r.logger.Printf("no dimension row for customer %s on %s", key.customerID, date.Format("2006-01-02"))
			joinMissCounter.Inc()
			joinMisses++
		}
		rows = append(rows, row)
	}

	if err := r.store.ReplaceDaily(ctx, date, rows); err != nil {
		return RebuildResult{}, err
	}

	rollupRowsWritten.Add(float64(len(rows)))
	return RebuildResult{RowsWritten: len(rows), JoinMisses: joinMisses}, nil
}
