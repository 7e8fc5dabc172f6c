package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/reports/internal/observability"
)

// Run-lock task names. Both tasks perform non-commutative replace operations,
// so overlapping invocations of the same task are rejected.
const (
	taskDimensionSync = "dimension_sync"
	taskRollupRebuild = "aggregation_rebuild"
)

// ErrRunActive is returned when a pipeline task is already running.
var ErrRunActive = errors.New("pipeline task already running")

// runLocks is a try-lock registry keyed by task name.
type runLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newRunLocks() *runLocks {
	return &runLocks{held: make(map[string]bool)}
}

func (l *runLocks) acquire(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return false
	}
	l.held[name] = true
	return true
}

func (l *runLocks) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
}

// RunSummary reports one full pipeline run.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Upserted    int       `json:"customers_upserted"`
	Skipped     int       `json:"records_skipped"`
	RowsWritten int       `json:"rollup_rows_written"`
	JoinMisses  int       `json:"join_misses"`
	StartedAt   time.Time `json:"started_at"`
}

// Runner sequences one pipeline cycle: dimension sync first, then the rollup
// rebuild for each date in the window. The scheduler tick and the manual
// trigger both call RunOnce, so there is no schedule-only code path.
type Runner struct {
	syncer    *Syncer
	rebuilder *Rebuilder
	daysBack  int
	interval  time.Duration
	locks     *runLocks
	logger    *log.Logger
	now       func() time.Time

	shutdownComplete chan struct{}
}

// RunnerOption configures optional behaviour for the Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger overrides the run logger.
func WithRunnerLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithClock overrides the time source used to pick rebuild dates.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner constructs a Runner. daysBack is how many rollup dates, ending
// today, each run rebuilds; interval is the scheduler period.
func NewRunner(syncer *Syncer, rebuilder *Rebuilder, daysBack int, interval time.Duration, opts ...RunnerOption) *Runner {
	r := &Runner{
		syncer:           syncer,
		rebuilder:        rebuilder,
		daysBack:         daysBack,
		interval:         interval,
		locks:            newRunLocks(),
		logger:           log.New(log.Writer(), "[pipeline] ", log.LstdFlags),
		now:              time.Now,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.daysBack < 1 {
		r.daysBack = 1
	}
	return r
}

// Start launches the scheduling loop. It should be called in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		close(r.shutdownComplete)
	}()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Printf("run failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the scheduling loop stops.
func (r *Runner) Wait() {
	<-r.shutdownComplete
}

// RunOnce executes one pipeline cycle. The rebuild only starts after the
// sync has committed, so joined attributes reflect at least the customer
// state known as of this run. A failure leaves the previous cursor and
// rollup untouched and is reported to the caller.
func (r *Runner) RunOnce(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{RunID: uuid.NewString(), StartedAt: r.now().UTC()}
	start := time.Now()

	if !r.locks.acquire(taskDimensionSync) {
		return summary, ErrRunActive
	}
	defer r.locks.release(taskDimensionSync)

	syncResult, err := r.syncer.Sync(ctx)
	if err != nil {
		runsFailed.Inc()
		return summary, fmt.Errorf("dimension sync: %w", err)
	}
	summary.Upserted = syncResult.Upserted
	summary.Skipped = syncResult.Skipped
	r.logger.Printf("run %s: synced %d customers (%d skipped), cursor %s",
		summary.RunID, syncResult.Upserted, syncResult.Skipped, syncResult.Cursor.Format(time.RFC3339))

	if !r.locks.acquire(taskRollupRebuild) {
		return summary, ErrRunActive
	}
	defer r.locks.release(taskRollupRebuild)

	today := r.now().UTC()
	for i := r.daysBack - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i)
		result, err := r.rebuilder.Rebuild(ctx, date)
		if err != nil {
			runsFailed.Inc()
			return summary, fmt.Errorf("rebuild %s: %w", date.Format("2006-01-02"), err)
		}
		summary.RowsWritten += result.RowsWritten
		summary.JoinMisses += result.JoinMisses
	}

	r.logger.Printf("run %s: wrote %d rollup rows across %d dates (%d join misses)",
		summary.RunID, summary.RowsWritten, r.daysBack, summary.JoinMisses)

	runDuration.Observe(time.Since(start).Seconds())
	observability.RecordRunCompleted(time.Now().UTC())
	return summary, nil
}
