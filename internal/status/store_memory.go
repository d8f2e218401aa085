package status

import (
	"context"
	"sync"

	"github.com/labdesk/backoffice/internal/model"
)

// MemoryStore is the in-process Store used in tests and single-node dev
// setups without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]model.PersistedStatusRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]model.PersistedStatusRecord{}}
}

func (s *MemoryStore) Save(_ context.Context, rec model.PersistedStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AppointmentID] = rec
	return nil
}

func (s *MemoryStore) Load(_ context.Context, appointmentID string) (model.PersistedStatusRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[appointmentID]
	return rec, ok, nil
}

func (s *MemoryStore) LoadAll(_ context.Context, appointmentIDs []string) (map[string]model.PersistedStatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.PersistedStatusRecord, len(appointmentIDs))
	for _, id := range appointmentIDs {
		if rec, ok := s.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, appointmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, appointmentID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
