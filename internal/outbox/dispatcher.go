package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/labdesk/backoffice/libs/db"
	otelx "github.com/labdesk/backoffice/libs/otel"
)

// Dispatcher drains the effects table: it polls for due records, runs the
// executor registered for each effect type and reschedules failures with a
// fixed backoff until the attempt cap parks them.
type Dispatcher struct {
	pool      *db.Pool
	repo      *Repository
	executors map[EffectType]Executor
	logger    *slog.Logger

	pollEvery time.Duration
	batchSize int
	backoff   time.Duration
}

type DispatcherConfig struct {
	PollEvery time.Duration // default 2s
	BatchSize int           // default 50
	Backoff   time.Duration // default 1m
}

func NewDispatcher(pool *db.Pool, repo *Repository, executors map[EffectType]Executor, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Dispatcher{
		pool:      pool,
		repo:      repo,
		executors: executors,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.processBatch(ctx); err != nil {
				d.logger.Error("effect batch failed", "err", err)
			}
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := d.repo.FetchDue(ctx, tx, d.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return tx.Commit(ctx)
	}

	var done []int64
	for _, rcd := range records {
		effCtx := otelx.ContextWithTraceContext(ctx, rcd.Traceparent, rcd.Tracestate)

		exec, ok := d.executors[rcd.Type]
		if !ok {
			// No executor registered: park immediately rather than retrying
			// something that can never succeed.
			d.logger.Error("unknown effect type", "effect_type", rcd.Type, "id", rcd.ID)
			parked := rcd
			parked.Attempts = parked.MaxAttempts
			if err := d.repo.MarkFailed(ctx, tx, parked, time.Now().UTC(), "unknown effect type"); err != nil {
				return err
			}
			continue
		}

		if err := exec.Execute(effCtx, rcd); err != nil {
			d.logger.Warn("effect execution failed",
				"effect_type", rcd.Type, "appointment_id", rcd.AppointmentID,
				"attempt", rcd.Attempts+1, "err", err)
			nextRunAt := time.Now().UTC().Add(d.backoff)
			if err := d.repo.MarkFailed(ctx, tx, rcd, nextRunAt, err.Error()); err != nil {
				return err
			}
			continue
		}
		done = append(done, rcd.ID)
	}

	if err := d.repo.MarkDone(ctx, tx, done); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
