package migrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/events"
)

// FailurePolicy controls how MigrateAll reacts when one schema fails.
type FailurePolicy string

const (
	// StopAll cancels in-flight work and skips schemas not yet started.
	StopAll FailurePolicy = "stop_all"
	// ContinueOthers attempts every schema and fails overall if any failed.
	ContinueOthers FailurePolicy = "continue_others"
	// SkipFailures attempts every schema and reports success regardless;
	// failures are only surfaced in the report.
	SkipFailures FailurePolicy = "skip_failures"
)

var ErrSchemaMissing = errors.New("schema does not exist")

// Options tunes the runner. The zero value is usable: sequential execution,
// StopAll containment, transactional migrations, default history table.
type Options struct {
	// MaxParallelism bounds concurrent schema migrations; values below 1
	// are treated as 1.
	MaxParallelism int
	// OnFailure picks the containment policy for MigrateAll.
	OnFailure FailurePolicy
	// Timeout bounds each schema's migration run; zero means no limit.
	Timeout time.Duration
	// UseTransactions wraps each migration and its history insert in one tx.
	UseTransactions bool
	// HistoryTable names the per-schema bookkeeping table.
	HistoryTable string
	// Owner labels the migration set in published events (e.g. "tenant").
	Owner string
	// RetryCount retries a failed migration this many times before giving up.
	RetryCount int
	// RetryDelay is slept between attempts.
	RetryDelay time.Duration
	// AutoCreateSchema creates a missing schema instead of failing.
	AutoCreateSchema bool
}

const defaultHistoryTable = "schema_migrations"

func (o Options) withDefaults() Options {
	if o.MaxParallelism < 1 {
		o.MaxParallelism = 1
	}
	if o.OnFailure == "" {
		o.OnFailure = StopAll
	}
	if o.HistoryTable == "" {
		o.HistoryTable = defaultHistoryTable
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	}
	return o
}

// Result summarises a MigrateAll sweep.
type Result struct {
	Succeeded []string
	Failed    map[string]error
	// Skipped lists schemas never attempted because StopAll aborted the run.
	Skipped []string
}

func (r *Result) sortStable() {
	sort.Strings(r.Succeeded)
	sort.Strings(r.Skipped)
}

// Runner applies pending migrations to tenant schemas.
type Runner struct {
	exec   Executor
	source Source
	opts   Options
	events events.Publisher
	logger *zap.Logger
}

func NewRunner(exec Executor, source Source, opts Options, publisher events.Publisher, logger *zap.Logger) *Runner {
	if exec == nil {
		panic("executor is required")
	}
	if source == nil {
		panic("migration source is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Runner{
		exec:   exec,
		source: source,
		opts:   opts.withDefaults(),
		events: publisher,
		logger: logger,
	}
}

// MigrateOne applies all pending migrations to a single schema. Already
// applied versions are skipped; progress up to the first failure is kept.
func (r *Runner) MigrateOne(ctx context.Context, schema string) error {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	exists, err := r.exec.SchemaExists(ctx, schema)
	if err != nil {
		return err
	}
	if !exists {
		if !r.opts.AutoCreateSchema {
			return fmt.Errorf("migrate %q: %w", schema, ErrSchemaMissing)
		}
		if err := r.exec.CreateSchema(ctx, schema); err != nil {
			return err
		}
	}

	if err := r.exec.EnsureHistoryTable(ctx, schema, r.opts.HistoryTable); err != nil {
		return err
	}
	applied, err := r.exec.AppliedVersions(ctx, schema, r.opts.HistoryTable)
	if err != nil {
		return err
	}
	migrations, err := r.source.Migrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := r.applyWithRetry(ctx, schema, m); err != nil {
			return err
		}
		r.logger.Info("migration applied",
			zap.String("schema", schema),
			zap.Int("version", m.Version),
			zap.String("name", m.Name),
		)
		r.events.Publish(ctx, events.MigrationApplied{
			SchemaName: schema,
			Owner:      r.opts.Owner,
			Version:    int64(m.Version),
			Name:       m.Name,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

func (r *Runner) applyWithRetry(ctx context.Context, schema string, m Migration) error {
	var lastErr error
	for attempt := 0; attempt <= r.opts.RetryCount; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying migration",
				zap.String("schema", schema),
				zap.Int("version", m.Version),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.opts.RetryDelay):
			}
		}
		lastErr = r.exec.Apply(ctx, schema, r.opts.HistoryTable, m, r.opts.UseTransactions)
		if lastErr == nil {
			return nil
		}
		// A cancelled context will not recover on retry.
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// MigrateAll migrates every schema with bounded parallelism. The returned
// Result always reflects what actually happened; the error reflects the
// containment policy.
func (r *Runner) MigrateAll(ctx context.Context, schemas []string) (Result, error) {
	result := Result{Failed: make(map[string]error)}
	if len(schemas) == 0 {
		return result, nil
	}

	var (
		mu        sync.Mutex
		attempted = make(map[string]bool, len(schemas))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxParallelism)

	for _, schema := range schemas {
		schema := schema
		g.Go(func() error {
			// Under StopAll a prior failure cancels gctx; schemas that
			// never started are reported as skipped.
			if r.opts.OnFailure == StopAll && gctx.Err() != nil {
				return nil
			}
			mu.Lock()
			attempted[schema] = true
			mu.Unlock()

			err := r.MigrateOne(gctx, schema)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[schema] = err
				r.logger.Error("schema migration failed",
					zap.String("schema", schema),
					zap.Error(err),
				)
				if r.opts.OnFailure == StopAll {
					return err
				}
				return nil
			}
			result.Succeeded = append(result.Succeeded, schema)
			return nil
		})
	}

	groupErr := g.Wait()

	for _, schema := range schemas {
		if !attempted[schema] {
			result.Skipped = append(result.Skipped, schema)
		}
	}
	result.sortStable()

	switch r.opts.OnFailure {
	case SkipFailures:
		return result, nil
	case ContinueOthers:
		if len(result.Failed) > 0 {
			return result, fmt.Errorf("migrations failed for %d of %d schemas", len(result.Failed), len(schemas))
		}
		return result, nil
	default: // StopAll
		return result, groupErr
	}
}
