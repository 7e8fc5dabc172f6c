//go:build integration

package crm

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/reports/internal/domain"
)

func newTestSource(t *testing.T, ctx context.Context) *Source {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("crm"),
		postgrescontainer.WithUsername("crm"),
		postgrescontainer.WithPassword("crm"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = pgxpool.New(ctx, connStr)
		if err != nil {
			return false
		}
		if pingErr := pool.Ping(ctx); pingErr != nil {
			pool.Close()
			return false
		}
		return true
	}, 30*time.Second, time.Second)
	t.Cleanup(func() { pool.Close() })

	source := NewSource(pool, 10*time.Second)
	require.NoError(t, source.EnsureTable(ctx))
	return source
}

func TestChangedSinceHonoursCursorAndOrder(t *testing.T) {
	ctx := context.Background()
	source := newTestSource(t, ctx)

	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, source.UpsertCustomers(ctx, []domain.Customer{
		{CustomerID: "c2", FullName: "Ivan Smirnov", Country: "RU", UpdatedAt: base.Add(2 * time.Minute)},
		{CustomerID: "c1", FullName: "Alex Ivanov", Country: "RU", UpdatedAt: base},
		{CustomerID: "c3", FullName: "Anton Petrov", Country: "RU", UpdatedAt: base.Add(time.Minute)},
	}))

	all, err := source.ChangedSince(ctx, time.Time{}, 100)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"c1", "c3", "c2"}, []string{all[0].CustomerID, all[1].CustomerID, all[2].CustomerID})

	past, err := source.ChangedSince(ctx, base, 100)
	require.NoError(t, err)
	require.Len(t, past, 2, "rows at or before the cursor are excluded")

	page, err := source.ChangedSince(ctx, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
}

func TestEnsureTableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	source := newTestSource(t, ctx)

	require.NoError(t, source.EnsureTable(ctx))
	require.NoError(t, source.EnsureTable(ctx))

	count, err := source.CountCustomers(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestUpsertCustomersLastWriteWins(t *testing.T) {
	ctx := context.Background()
	source := newTestSource(t, ctx)

	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, source.UpsertCustomers(ctx, []domain.Customer{
		{CustomerID: "c1", FullName: "Old Name", Country: "RU", UpdatedAt: base},
		{CustomerID: "c1", FullName: "New Name", Country: "DE", UpdatedAt: base.Add(time.Hour)},
	}))

	rows, err := source.ChangedSince(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "New Name", rows[0].FullName)
	require.Equal(t, "DE", rows[0].Country)
}
