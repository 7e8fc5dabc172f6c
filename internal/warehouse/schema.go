package warehouse

import (
	"context"
	"fmt"

	"example.com/reports/internal/domain"
)

// Table DDL. CREATE ... IF NOT EXISTS only: the schema manager never alters
// or drops existing data. ReplacingMergeTree versions make dimension and
// state writes upserts; the mart is partitioned per event_date so a rebuild
// can swap exactly one date atomically.
const (
	ddlCustomers = `
CREATE TABLE IF NOT EXISTS %s.crm_customers
(
  customer_id String,
  full_name   String,
  email       String,
  country     String,
  updated_at  DateTime('UTC'),
  synced_at   DateTime('UTC')
)
ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (customer_id)`

	ddlTelemetry = `
CREATE TABLE IF NOT EXISTS %s.telemetry_events
(
  ts              DateTime('UTC'),
  customer_id     String,
  prosthesis_id   String,
  response_ms     Float64,
  is_error        UInt8,
  battery_level   Float64
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (customer_id, prosthesis_id, ts)`

	ddlMart = `
CREATE TABLE IF NOT EXISTS %s.user_daily_telemetry
(
  event_date        Date,
  customer_id       String,
  prosthesis_id     String,
  full_name         String,
  country           String,
  events            UInt64,
  err_events        UInt64,
  avg_response_ms   Float64,
  p95_response_ms   Float64,
  avg_battery_level Float64,
  last_update       DateTime('UTC')
)
ENGINE = ReplacingMergeTree(last_update)
PARTITION BY event_date
ORDER BY (event_date, customer_id, prosthesis_id)`

	ddlMartStaging = `
CREATE TABLE IF NOT EXISTS %s.user_daily_telemetry_staging
AS %s.user_daily_telemetry`

	ddlState = `
CREATE TABLE IF NOT EXISTS %s.etl_state
(
  name       String,
  value      String,
  updated_at DateTime('UTC')
)
ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (name)`
)

// requiredColumns is what the compatibility check verifies per table after
// creation. A live table missing one of these columns, or carrying it with a
// different type, is a fatal mismatch.
var requiredColumns = map[string][][2]string{
	"crm_customers": {
		{"customer_id", "String"},
		{"full_name", "String"},
		{"email", "String"},
		{"country", "String"},
		{"updated_at", "DateTime('UTC')"},
		{"synced_at", "DateTime('UTC')"},
	},
	"telemetry_events": {
		{"ts", "DateTime('UTC')"},
		{"customer_id", "String"},
		{"prosthesis_id", "String"},
		{"response_ms", "Float64"},
		{"is_error", "UInt8"},
		{"battery_level", "Float64"},
	},
	"user_daily_telemetry": {
		{"event_date", "Date"},
		{"customer_id", "String"},
		{"prosthesis_id", "String"},
		{"full_name", "String"},
		{"country", "String"},
		{"events", "UInt64"},
		{"err_events", "UInt64"},
		{"avg_response_ms", "Float64"},
		{"p95_response_ms", "Float64"},
		{"avg_battery_level", "Float64"},
		{"last_update", "DateTime('UTC')"},
	},
	"etl_state": {
		{"name", "String"},
		{"value", "String"},
		{"updated_at", "DateTime('UTC')"},
	},
}

// EnsureSchema creates the database and every required table, then verifies
// the live column shapes. Idempotent and safe on every startup; returns
// domain.ErrSchemaMismatch (wrapped) when a pre-existing table is
// incompatible.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.db)); err != nil {
		return domain.Transient("create database", err)
	}

	for _, ddl := range []string{
		fmt.Sprintf(ddlCustomers, s.db),
		fmt.Sprintf(ddlTelemetry, s.db),
		fmt.Sprintf(ddlMart, s.db),
		fmt.Sprintf(ddlMartStaging, s.db, s.db),
		fmt.Sprintf(ddlState, s.db),
	} {
		if err := s.exec(ctx, ddl); err != nil {
			return domain.Transient("create table", err)
		}
	}

	for table, columns := range requiredColumns {
		if err := s.checkTable(ctx, table, columns); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) checkTable(ctx context.Context, table string, columns [][2]string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.conn.Query(ctx,
		"SELECT name, type FROM system.columns WHERE database = ? AND table = ?", s.db, table)
	if err != nil {
		return domain.Transient("schema check", err)
	}
	defer rows.Close()

	live := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return domain.Transient("schema check", err)
		}
		live[name] = typ
	}
	if err := rows.Err(); err != nil {
		return domain.Transient("schema check", err)
	}

	for _, col := range columns {
		name, want := col[0], col[1]
		got, ok := live[name]
		if !ok {
			return fmt.Errorf("%w: %s.%s is missing column %s", domain.ErrSchemaMismatch, s.db, table, name)
		}
		if got != want {
			return fmt.Errorf("%w: %s.%s column %s has type %s, want %s", domain.ErrSchemaMismatch, s.db, table, name, got, want)
		}
	}
	return nil
}
