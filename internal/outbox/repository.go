package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labdesk/backoffice/libs/db"
	otelx "github.com/labdesk/backoffice/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Enqueue inserts effects in one transaction. The trace context of the
// enqueueing request is captured so the dispatcher can continue the trace.
func (r *Repository) Enqueue(ctx context.Context, effects ...Effect) error {
	if len(effects) == 0 {
		return nil
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, eff := range effects {
		if _, err := tx.Exec(ctx, `
			INSERT INTO status_effects (event_id, appointment_id, effect_type, payload, traceparent, tracestate)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), eff.AppointmentID, eff.Type, eff.Payload, traceparent, tracestate); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, appointment_id, effect_type, payload, traceparent, tracestate, attempts, max_attempts, next_run_at, created_at
		FROM status_effects
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AppointmentID, &rcd.Type, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.Attempts, &rcd.MaxAttempts, &rcd.NextRunAt, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) MarkDone(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE status_effects
		SET status = 'done', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

// MarkFailed schedules a retry, or parks the effect as 'failed' once attempts
// reach the cap. Parked effects are left for operator inspection.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, rcd Record, nextRunAt time.Time, lastError string) error {
	attempts := rcd.Attempts + 1
	status := "pending"
	if attempts >= rcd.MaxAttempts {
		status = "failed"
	}
	_, err := tx.Exec(ctx, `
		UPDATE status_effects
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, rcd.ID, attempts, status, nextRunAt, lastError)
	return err
}
