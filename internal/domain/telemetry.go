// Package domain defines the entities moved through the reports pipeline.
package domain

import "time"

// Customer is the canonical customer record owned by the CRM (Postgres).
// UpdatedAt is non-decreasing per customer and drives incremental sync.
type Customer struct {
	CustomerID string
	FullName   string
	Email      string
	Country    string
	UpdatedAt  time.Time
}

// TelemetryEvent is a single prosthesis telemetry sample. Events are
// append-only; the pipeline only ever reads them.
type TelemetryEvent struct {
	TS           time.Time
	CustomerID   string
	ProsthesisID string
	ResponseMS   float64
	IsError      bool
	BatteryLevel float64
}

// DailyRollup is one row of the user_daily_telemetry mart: all measures for
// one (event_date, customer_id, prosthesis_id) key, enriched with the
// dimension attributes known at rebuild time.
type DailyRollup struct {
	EventDate       time.Time
	CustomerID      string
	ProsthesisID    string
	FullName        string
	Country         string
	Events          uint64
	ErrEvents       uint64
	AvgResponseMS   float64
	P95ResponseMS   float64
	AvgBatteryLevel float64
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
