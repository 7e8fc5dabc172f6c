package domain

import "time"

// DailyReportEntry is one day of the per-customer report served to the
// dashboard.
type DailyReportEntry struct {
	EventDate       time.Time `json:"event_date"`
	ProsthesisID    string    `json:"prosthesis_id"`
	Events          uint64    `json:"events"`
	ErrEvents       uint64    `json:"err_events"`
	AvgResponseMS   float64   `json:"avg_response_ms"`
	P95ResponseMS   float64   `json:"p95_response_ms"`
	AvgBatteryLevel float64   `json:"avg_battery_level"`
}

// UserReport is the read contract consumed by the dashboard, sourced from
// user_daily_telemetry filtered by customer.
type UserReport struct {
	CustomerID string             `json:"customer_id"`
	FullName   string             `json:"full_name"`
	Country    string             `json:"country"`
	Days       []DailyReportEntry `json:"days"`
}
