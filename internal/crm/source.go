// Package crm reads the transactional customer source (Postgres).
package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/reports/internal/domain"
)

// Source provides read access to the CRM customers relation. The pipeline
// only ever reads from it; the table itself belongs to the CRM.
type Source struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewSource constructs a Source. timeout bounds every round-trip.
func NewSource(pool *pgxpool.Pool, timeout time.Duration) *Source {
	return &Source{pool: pool, timeout: timeout}
}

func (s *Source) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureTable creates the customers table when absent and verifies its shape.
// Never alters existing columns; an incompatible live table is a fatal
// domain.ErrSchemaMismatch.
func (s *Source) EnsureTable(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	const ddl = `CREATE TABLE IF NOT EXISTS customers (
        customer_id  text PRIMARY KEY,
        full_name    text,
        email        text,
        country      text,
        updated_at   timestamptz NOT NULL
    )`

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return domain.Transient("crm ensure table", err)
	}
	return s.checkTable(ctx)
}

var customerColumns = [][2]string{
	{"customer_id", "text"},
	{"full_name", "text"},
	{"email", "text"},
	{"country", "text"},
	{"updated_at", "timestamp with time zone"},
}

func (s *Source) checkTable(ctx context.Context) error {
	const query = `SELECT column_name, data_type FROM information_schema.columns
        WHERE table_name = 'customers' AND table_schema = current_schema()`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return domain.Transient("crm schema check", err)
	}
	defer rows.Close()

	live := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return domain.Transient("crm schema check", err)
		}
		live[name] = typ
	}
	if err := rows.Err(); err != nil {
		return domain.Transient("crm schema check", err)
	}

	for _, col := range customerColumns {
		name, want := col[0], col[1]
		got, ok := live[name]
		if !ok {
			return fmt.Errorf("%w: customers is missing column %s", domain.ErrSchemaMismatch, name)
		}
		if got != want {
			return fmt.Errorf("%w: customers column %s has type %s, want %s", domain.ErrSchemaMismatch, name, got, want)
		}
	}
	return nil
}

// ChangedSince returns up to limit customers modified after the cursor,
// oldest first. Equal updated_at values keep the source row order via the
// customer_id tie-break, so replays apply records in a stable sequence.
func (s *Source) ChangedSince(ctx context.Context, cursor time.Time, limit int) ([]domain.Customer, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	const query = `SELECT customer_id, full_name, email, country, updated_at
        FROM customers
        WHERE updated_at > $1
        ORDER BY updated_at ASC, customer_id ASC
        LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cursor, limit)
	if err != nil {
		return nil, domain.Transient("crm read", err)
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.CustomerID, &c.FullName, &c.Email, &c.Country, &c.UpdatedAt); err != nil {
			return nil, domain.Transient("crm read", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("crm read", err)
	}
	return customers, nil
}

// CountCustomers reports how many customers exist. The seeder uses it as its
// run-once guard.
func (s *Source) CountCustomers(ctx context.Context) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM customers").Scan(&count); err != nil {
		return 0, domain.Transient("crm count", err)
	}
	return count, nil
}

// UpsertCustomers writes demo customers into the CRM. Seeding only; the
// recurring pipeline never calls this.
func (s *Source) UpsertCustomers(ctx context.Context, customers []domain.Customer) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	const stmt = `INSERT INTO customers (customer_id, full_name, email, country, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (customer_id) DO UPDATE
        SET full_name = EXCLUDED.full_name,
            email = EXCLUDED.email,
            country = EXCLUDED.country,
            updated_at = EXCLUDED.updated_at`

	for _, c := range customers {
		if _, err := s.pool.Exec(ctx, stmt, c.CustomerID, c.FullName, c.Email, c.Country, c.UpdatedAt.UTC()); err != nil {
			return domain.Transient("crm seed upsert", err)
		}
	}
	return nil
}
