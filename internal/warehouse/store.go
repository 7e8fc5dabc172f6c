// Package warehouse provides ClickHouse-backed persistence for the analytical
// store: the customer dimension, raw telemetry events, the daily rollup mart,
// and the pipeline watermark state.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"example.com/reports/internal/domain"
)

// Config carries connection settings for the analytical store.
type Config struct {
	Addr     []string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// Store wraps a ClickHouse connection. All statements qualify tables with the
// configured database so the connection itself stays on the default database
// and the schema manager can create the target one.
type Store struct {
	conn    driver.Conn
	db      string
	timeout time.Duration
}

// Open dials ClickHouse and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.Timeout,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, domain.Transient("clickhouse ping", err)
	}
	return &Store{conn: conn, db: cfg.Database, timeout: cfg.Timeout}, nil
}

// Close releases the connection.
func (s *Store) Close() error { return s.conn.Close() }

// opCtx bounds a single store round-trip. A hit timeout surfaces as a
// retryable failure, never a hang.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// UpsertCustomers writes the batch into the dimension table. The table is a
// ReplacingMergeTree keyed by customer_id and versioned by updated_at, so an
// insert is the upsert: FINAL reads observe at most one row per customer and
// the highest updated_at wins. The whole batch lands atomically in one insert
// block.
func (s *Store) UpsertCustomers(ctx context.Context, customers []domain.Customer) error {
	if len(customers) == 0 {
		return nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.crm_customers (customer_id, full_name, email, country, updated_at, synced_at)", s.db))
	if err != nil {
		return domain.Transient("dimension upsert", err)
	}
	defer func() { _ = batch.Abort() }()

	syncedAt := time.Now().UTC()
	for _, c := range customers {
		if err := batch.Append(c.CustomerID, c.FullName, c.Email, c.Country, c.UpdatedAt.UTC(), syncedAt); err != nil {
			return domain.Transient("dimension upsert", err)
		}
	}
	if err := batch.Send(); err != nil {
		return domain.Transient("dimension upsert", err)
	}
	return nil
}

// DimensionSnapshot loads the current deduplicated dimension keyed by
// customer_id.
func (s *Store) DimensionSnapshot(ctx context.Context) (map[string]domain.Customer, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.conn.Query(ctx, fmt.Sprintf(
		"SELECT customer_id, full_name, email, country, updated_at FROM %s.crm_customers FINAL", s.db))
	if err != nil {
		return nil, domain.Transient("dimension snapshot", err)
	}
	defer rows.Close()

	snapshot := make(map[string]domain.Customer)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.CustomerID, &c.FullName, &c.Email, &c.Country, &c.UpdatedAt); err != nil {
			return nil, domain.Transient("dimension snapshot", err)
		}
		snapshot[c.CustomerID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("dimension snapshot", err)
	}
	return snapshot, nil
}

// InsertEvents appends raw telemetry events. Used by the ingest consumer and
// the demo seeder; the pipeline itself never writes here.
func (s *Store) InsertEvents(ctx context.Context, events []domain.TelemetryEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.telemetry_events (ts, customer_id, prosthesis_id, response_ms, is_error, battery_level)", s.db))
	if err != nil {
		return domain.Transient("event insert", err)
	}
	defer func() { _ = batch.Abort() }()

	for _, e := range events {
		var isErr uint8
		if e.IsError {
			isErr = 1
		}
		if err := batch.Append(e.TS.UTC(), e.CustomerID, e.ProsthesisID, e.ResponseMS, isErr, e.BatteryLevel); err != nil {
			return domain.Transient("event insert", err)
		}
	}
	if err := batch.Send(); err != nil {
		return domain.Transient("event insert", err)
	}
	return nil
}

// EventsOn reads every telemetry event whose timestamp falls on the given UTC
// date.
func (s *Store) EventsOn(ctx context.Context, date time.Time) ([]domain.TelemetryEvent, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	from := domain.Day(date)
	to := from.AddDate(0, 0, 1)

	rows, err := s.conn.Query(ctx, fmt.Sprintf(
		`SELECT ts, customer_id, prosthesis_id, response_ms, is_error, battery_level
		FROM %s.telemetry_events
		WHERE ts >= ? AND ts < ?
		ORDER BY customer_id, prosthesis_id, ts`, s.db), from, to)
	if err != nil {
		return nil, domain.Transient("event scan", err)
	}
	defer rows.Close()

	var events []domain.TelemetryEvent
	for rows.Next() {
		var (
			e     domain.TelemetryEvent
			isErr uint8
		)
		if err := rows.Scan(&e.TS, &e.CustomerID, &e.ProsthesisID, &e.ResponseMS, &isErr, &e.BatteryLevel); err != nil {
			return nil, domain.Transient("event scan", err)
		}
		e.IsError = isErr != 0
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("event scan", err)
	}
	return events, nil
}

// CountEvents reports the total number of raw telemetry events. The seeder
// uses it as its run-once guard.
func (s *Store) CountEvents(ctx context.Context) (uint64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var count uint64
	err := s.conn.QueryRow(ctx, fmt.Sprintf("SELECT count() FROM %s.telemetry_events", s.db)).Scan(&count)
	if err != nil {
		return 0, domain.Transient("event count", err)
	}
	return count, nil
}

// ReplaceDaily swaps the rollup rows for one date. Rows land in the staging
// table first and are promoted with REPLACE PARTITION, so readers observe
// either the old partition or the new one, never a mix. An empty row set
// drops the partition outright.
func (s *Store) ReplaceDaily(ctx context.Context, date time.Time, rows []domain.DailyRollup) error {
	part := domain.Day(date).Format("2006-01-02")

	// Clear staging leftovers from any earlier aborted run.
	if err := s.exec(ctx, fmt.Sprintf("ALTER TABLE %s.user_daily_telemetry_staging DROP PARTITION '%s'", s.db, part)); err != nil {
		return domain.Transient("rollup staging reset", err)
	}

	if len(rows) == 0 {
		if err := s.exec(ctx, fmt.Sprintf("ALTER TABLE %s.user_daily_telemetry DROP PARTITION '%s'", s.db, part)); err != nil {
			return domain.Transient("rollup replace", err)
		}
		return nil
	}

	ctx2, cancel := s.opCtx(ctx)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx2, fmt.Sprintf(
		`INSERT INTO %s.user_daily_telemetry_staging
		(event_date, customer_id, prosthesis_id, full_name, country, events, err_events, avg_response_ms, p95_response_ms, avg_battery_level, last_update)`, s.db))
	if err != nil {
		return domain.Transient("rollup staging insert", err)
	}
	defer func() { _ = batch.Abort() }()

	lastUpdate := time.Now().UTC()
	for _, r := range rows {
		if err := batch.Append(
			domain.Day(r.EventDate),
			r.CustomerID,
			r.ProsthesisID,
			r.FullName,
			r.Country,
			r.Events,
			r.ErrEvents,
			r.AvgResponseMS,
			r.P95ResponseMS,
			r.AvgBatteryLevel,
			lastUpdate,
		); err != nil {
			return domain.Transient("rollup staging insert", err)
		}
	}
	if err := batch.Send(); err != nil {
		return domain.Transient("rollup staging insert", err)
	}

	if err := s.exec(ctx, fmt.Sprintf(
		"ALTER TABLE %s.user_daily_telemetry REPLACE PARTITION '%s' FROM %s.user_daily_telemetry_staging", s.db, part, s.db)); err != nil {
		return domain.Transient("rollup replace", err)
	}
	return nil
}

// Report returns the per-day rollup for one customer, ordered by date then
// prosthesis. domain.ErrReportNotFound when no rows exist.
func (s *Store) Report(ctx context.Context, customerID string) (*domain.UserReport, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.conn.Query(ctx, fmt.Sprintf(
		`SELECT event_date, prosthesis_id, events, err_events, avg_response_ms, p95_response_ms, avg_battery_level, full_name, country
		FROM %s.user_daily_telemetry FINAL
		WHERE customer_id = ?
		ORDER BY event_date, prosthesis_id`, s.db), customerID)
	if err != nil {
		return nil, domain.Transient("report query", err)
	}
	defer rows.Close()

	report := &domain.UserReport{CustomerID: customerID}
	for rows.Next() {
		var entry domain.DailyReportEntry
		if err := rows.Scan(
			&entry.EventDate,
			&entry.ProsthesisID,
			&entry.Events,
			&entry.ErrEvents,
			&entry.AvgResponseMS,
			&entry.P95ResponseMS,
			&entry.AvgBatteryLevel,
			&report.FullName,
			&report.Country,
		); err != nil {
			return nil, domain.Transient("report query", err)
		}
		report.Days = append(report.Days, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("report query", err)
	}
	if len(report.Days) == 0 {
		return nil, domain.ErrReportNotFound
	}
	return report, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.conn.Exec(ctx, query, args...)
}
