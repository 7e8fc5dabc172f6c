package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/reports/internal/domain"
)

// EncodeCursor serialises a watermark for etl_state storage.
func EncodeCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DecodeCursor parses a stored watermark. An empty value is the zero cursor,
// meaning the full source is unsynced.
func DecodeCursor(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cursor value %q: %w", value, err)
	}
	return ts.UTC(), nil
}

// LoadCursor reads the named watermark from etl_state. A missing row yields
// the zero cursor.
func (s *Store) LoadCursor(ctx context.Context, name string) (time.Time, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var value string
	err := s.conn.QueryRow(ctx, fmt.Sprintf(
		"SELECT value FROM %s.etl_state FINAL WHERE name = ?", s.db), name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, domain.Transient("cursor load", err)
	}
	return DecodeCursor(value)
}

// SaveCursor persists the named watermark. The state table is a
// ReplacingMergeTree keyed by name, so the latest updated_at wins on read.
func (s *Store) SaveCursor(ctx context.Context, name string, cursor time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.conn.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s.etl_state (name, value, updated_at) VALUES (?, ?, ?)", s.db),
		name, EncodeCursor(cursor), time.Now().UTC())
	if err != nil {
		return domain.Transient("cursor save", err)
	}
	return nil
}
