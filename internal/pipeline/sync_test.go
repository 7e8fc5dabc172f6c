package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/reports/internal/domain"
)

var quietLogger = log.New(io.Discard, "", 0)

// stubSource serves customer records the way the CRM query does: changed
// rows past the cursor, oldest first, customer_id tie-break, bounded page.
type stubSource struct {
	records []domain.Customer
	err     error
	calls   atomic.Int32
	block   chan struct{} // when set, ChangedSince waits until closed
}

func (s *stubSource) ChangedSince(_ context.Context, cursor time.Time, limit int) ([]domain.Customer, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}

	var out []domain.Customer
	for _, r := range s.records {
		if r.UpdatedAt.After(cursor) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeWarehouse mimics the analytical store: last write wins per customer,
// rollup partitions replaced wholesale, cursors keyed by name.
type fakeWarehouse struct {
	dim       map[string]domain.Customer
	cursors   map[string]time.Time
	events    []domain.TelemetryEvent
	daily     map[string][]domain.DailyRollup
	upserts   int // customer rows written across all batches
	saves     int // cursor writes
	replaces  int
	upsertErr error
	saveErr   error
	eventsErr error
	snapErr   error
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		dim:     make(map[string]domain.Customer),
		cursors: make(map[string]time.Time),
		daily:   make(map[string][]domain.DailyRollup),
	}
}

func (f *fakeWarehouse) UpsertCustomers(_ context.Context, customers []domain.Customer) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, c := range customers {
		f.dim[c.CustomerID] = c
		f.upserts++
	}
	return nil
}

func (f *fakeWarehouse) LoadCursor(_ context.Context, name string) (time.Time, error) {
	return f.cursors[name], nil
}

func (f *fakeWarehouse) SaveCursor(_ context.Context, name string, cursor time.Time) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.cursors[name] = cursor
	f.saves++
	return nil
}

func (f *fakeWarehouse) EventsOn(_ context.Context, date time.Time) ([]domain.TelemetryEvent, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	day := domain.Day(date)
	var out []domain.TelemetryEvent
	for _, e := range f.events {
		if domain.Day(e.TS).Equal(day) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeWarehouse) DimensionSnapshot(_ context.Context) (map[string]domain.Customer, error) {
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	snapshot := make(map[string]domain.Customer, len(f.dim))
	for id, c := range f.dim {
		snapshot[id] = c
	}
	return snapshot, nil
}

func (f *fakeWarehouse) ReplaceDaily(_ context.Context, date time.Time, rows []domain.DailyRollup) error {
	f.replaces++
	key := domain.Day(date).Format("2006-01-02")
	if len(rows) == 0 {
		delete(f.daily, key)
		return nil
	}
	f.daily[key] = append([]domain.DailyRollup(nil), rows...)
	return nil
}

func TestSyncUpsertsPastCursorAndAdvances(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	source := &stubSource{records: []domain.Customer{
		{CustomerID: "c1", FullName: "Alex Ivanov", Country: "RU", UpdatedAt: base},
		{CustomerID: "c2", FullName: "Ivan Smirnov", Country: "RU", UpdatedAt: base.Add(time.Minute)},
	}}
	wh := newFakeWarehouse()

	syncer := NewSyncer(source, wh, 100, WithSyncLogger(quietLogger))
	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, result.Upserted)
	require.Equal(t, 0, result.Skipped)
	require.True(t, result.Cursor.Equal(base.Add(time.Minute)))
	require.True(t, wh.cursors[SyncCursorName].Equal(base.Add(time.Minute)))
	require.Equal(t, "Alex Ivanov", wh.dim["c1"].FullName)
}

func TestSyncIsIdempotentWithNoNewChanges(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	source := &stubSource{records: []domain.Customer{
		{CustomerID: "c1", FullName: "Alex Ivanov", UpdatedAt: base},
	}}
	wh := newFakeWarehouse()
	syncer := NewSyncer(source, wh, 100, WithSyncLogger(quietLogger))

	first, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Upserted)

	second, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.Upserted)
	require.True(t, second.Cursor.Equal(first.Cursor))
	require.Equal(t, 1, wh.upserts, "second run must produce zero additional writes")
	require.Equal(t, 1, wh.saves, "second run must not rewrite the cursor")
}

func TestSyncAppliesLatestUpdateForCustomer(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	// Same customer updated twice before sync: the ordered batch applies the
	// later record last, so it wins.
	source := &stubSource{records: []domain.Customer{
		{CustomerID: "c1", FullName: "Old Name", Country: "RU", UpdatedAt: base},
		{CustomerID: "c1", FullName: "New Name", Country: "DE", UpdatedAt: base.Add(time.Hour)},
	}}
	wh := newFakeWarehouse()

	syncer := NewSyncer(source, wh, 100, WithSyncLogger(quietLogger))
	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	require.Equal(t, "New Name", wh.dim["c1"].FullName)
	require.Equal(t, "DE", wh.dim["c1"].Country)
}

func TestSyncSkipsMalformedRecordsWithoutAborting(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	source := &stubSource{records: []domain.Customer{
		{CustomerID: "c1", FullName: "Alex Ivanov", UpdatedAt: base},
		{CustomerID: "", FullName: "No Identity", UpdatedAt: base.Add(time.Minute)},
		{CustomerID: "c2", FullName: "Ivan Smirnov", UpdatedAt: base.Add(2 * time.Minute)},
	}}
	wh := newFakeWarehouse()

	syncer := NewSyncer(source, wh, 100, WithSyncLogger(quietLogger))
	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, result.Upserted)
	require.Equal(t, 1, result.Skipped)
	require.True(t, result.Cursor.Equal(base.Add(2*time.Minute)))
	require.NotContains(t, wh.dim, "")
}

func TestSyncEmptyBatchLeavesCursorUntouched(t *testing.T) {
	cursor := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	wh := newFakeWarehouse()
	wh.cursors[SyncCursorName] = cursor

	syncer := NewSyncer(&stubSource{}, wh, 100, WithSyncLogger(quietLogger))
	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	require.Equal(t, 0, result.Upserted)
	require.True(t, result.Cursor.Equal(cursor))
	require.Equal(t, 0, wh.saves)
}

func TestSyncTransientReadFailureKeepsCursor(t *testing.T) {
	wh := newFakeWarehouse()
	source := &stubSource{err: domain.Transient("crm read", errors.New("connection reset"))}

	syncer := NewSyncer(source, wh, 100, WithSyncLogger(quietLogger))
	_, err := syncer.Sync(context.Background())

	var transient *domain.TransientError
	require.ErrorAs(t, err, &transient)
	require.Equal(t, 0, wh.saves)
	require.Empty(t, wh.dim)
}

func TestSyncUpsertFailureDoesNotAdvanceCursor(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	source := &stubSource{records: []domain.Customer{
		{CustomerID: "c1", FullName: "Alex Ivanov", UpdatedAt: base},
	}}
	wh := newFakeWarehouse()
	wh.upsertErr = domain.Transient("dimension upsert", errors.New("timeout"))

	syncer := NewSyncer(source, wh, 100, WithSyncLogger(quietLogger))
	_, err := syncer.Sync(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, wh.saves)
	require.True(t, wh.cursors[SyncCursorName].IsZero())
}

func TestSyncRespectsPageSize(t *testing.T) {
	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	source := &stubSource{records: []domain.Customer{
		{CustomerID: "c1", UpdatedAt: base},
		{CustomerID: "c2", UpdatedAt: base.Add(time.Minute)},
		{CustomerID: "c3", UpdatedAt: base.Add(2 * time.Minute)},
	}}
	wh := newFakeWarehouse()
	syncer := NewSyncer(source, wh, 2, WithSyncLogger(quietLogger))

	first, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Upserted)
	require.True(t, first.Cursor.Equal(base.Add(time.Minute)))

	second, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, second.Upserted)
	require.Contains(t, wh.dim, "c3")
}
