package status

import (
	"context"

	"github.com/labdesk/backoffice/internal/model"
)

// Store persists per-appointment status overrides. A present record wins over
// a freshly computed status on reload; records survive restarts and are
// removed only by an explicit finalize/delete. The keyspace is
// last-write-wins with no locking, which is acceptable under one active
// session per appointment and explicitly not safe for concurrent
// multi-session edits.
type Store interface {
	Save(ctx context.Context, rec model.PersistedStatusRecord) error
	Load(ctx context.Context, appointmentID string) (model.PersistedStatusRecord, bool, error)
	LoadAll(ctx context.Context, appointmentIDs []string) (map[string]model.PersistedStatusRecord, error)
	Delete(ctx context.Context, appointmentID string) error
}
