package enrich

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/labdesk/backoffice/internal/model"
	"github.com/labdesk/backoffice/internal/status"
)

func rawBatch(n int) []model.RawAppointment {
	raws := make([]model.RawAppointment, n)
	for i := range raws {
		raws[i] = model.RawAppointment{
			ID:          fmt.Sprintf("appt-%d", i),
			KindCode:    model.KindFacilityVisit,
			OwnerUserID: fmt.Sprintf("u-%d", i),
		}
	}
	return raws
}

func batchUsers(n int) *fakeUsers {
	users := map[string]model.User{}
	for i := 0; i < n; i++ {
		users[fmt.Sprintf("u-%d", i)] = model.User{
			ID:       fmt.Sprintf("u-%d", i),
			FullName: fmt.Sprintf("Customer %d", i),
		}
	}
	return &fakeUsers{users: users}
}

func TestEnrichAll_PreservesInputOrder(t *testing.T) {
	e := newTestEnricher(&fakeLookups{}, batchUsers(12), &fakeParticipants{}, Config{ChunkDelay: time.Millisecond})

	raws := rawBatch(12)
	got := e.EnrichAll(context.Background(), raws, status.NewMemoryStore())

	if len(got) != len(raws) {
		t.Fatalf("expected %d results, got %d", len(raws), len(got))
	}
	for i := range raws {
		if got[i].ID != raws[i].ID {
			t.Fatalf("position %d: expected %s, got %s", i, raws[i].ID, got[i].ID)
		}
		if got[i].CustomerName != fmt.Sprintf("Customer %d", i) {
			t.Fatalf("position %d not enriched: %+v", i, got[i])
		}
	}
}

func TestEnrichAll_PanickingItemDegradesAlone(t *testing.T) {
	users := batchUsers(5)
	users.panicOn = "u-2"
	e := newTestEnricher(&fakeLookups{}, users, &fakeParticipants{}, Config{ChunkDelay: time.Millisecond})

	raws := rawBatch(5)
	got := e.EnrichAll(context.Background(), raws, status.NewMemoryStore())

	if len(got) != 5 {
		t.Fatalf("expected 5 results, got %d", len(got))
	}
	if got[2].CustomerName != model.FallbackUserName {
		t.Fatalf("panicking item must fall back, got %+v", got[2])
	}
	for _, i := range []int{0, 1, 3, 4} {
		if got[i].CustomerName != fmt.Sprintf("Customer %d", i) {
			t.Fatalf("item %d must be unaffected: %+v", i, got[i])
		}
	}
}

func TestEnrichAll_PersistedStatusWins(t *testing.T) {
	e := newTestEnricher(&fakeLookups{}, batchUsers(3), &fakeParticipants{}, Config{ChunkDelay: time.Millisecond})

	store := status.NewMemoryStore()
	updated := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if err := store.Save(context.Background(), model.PersistedStatusRecord{
		AppointmentID: "appt-1",
		Status:        model.StatusTesting,
		LastUpdated:   updated,
	}); err != nil {
		t.Fatalf("save override: %v", err)
	}

	got := e.EnrichAll(context.Background(), rawBatch(3), store)

	if got[0].Status != model.StatusPending {
		t.Fatalf("appt-0 has no override, got %s", got[0].Status)
	}
	if got[1].Status != model.StatusTesting {
		t.Fatalf("override must win, got %s", got[1].Status)
	}
	// facility flow: pending, confirmed, sample_received, testing, completed
	if got[1].CurrentStepIndex != 3 || len(got[1].CompletedSteps) != 3 {
		t.Fatalf("override step fields: %d %v", got[1].CurrentStepIndex, got[1].CompletedSteps)
	}
	if !got[1].LastStatusUpdate.Equal(updated) {
		t.Fatalf("expected override timestamp, got %s", got[1].LastStatusUpdate)
	}
}

func TestEnrichAll_CrossFlowOverrideNormalized(t *testing.T) {
	e := newTestEnricher(&fakeLookups{}, batchUsers(1), &fakeParticipants{}, Config{})

	store := status.NewMemoryStore()
	_ = store.Save(context.Background(), model.PersistedStatusRecord{
		AppointmentID: "appt-0",
		Status:        model.StatusKitDelivered, // home-only step on a facility appointment
	})

	got := e.EnrichAll(context.Background(), rawBatch(1), store)

	if got[0].Status != model.StatusConfirmed {
		t.Fatalf("expected kit status to collapse to confirmed, got %s", got[0].Status)
	}
}

type failingOverrides struct{}

func (failingOverrides) LoadAll(context.Context, []string) (map[string]model.PersistedStatusRecord, error) {
	return nil, errors.New("redis down")
}

func TestEnrichAll_OverrideLoadFailureKeepsComputed(t *testing.T) {
	e := newTestEnricher(&fakeLookups{}, batchUsers(2), &fakeParticipants{}, Config{})

	got := e.EnrichAll(context.Background(), rawBatch(2), failingOverrides{})

	for i := range got {
		if got[i].Status != model.StatusPending {
			t.Fatalf("computed status must survive an override outage, got %s", got[i].Status)
		}
	}
}

func TestEnrichAll_CancelledContextFillsRemainderWithMinimal(t *testing.T) {
	users := batchUsers(8)
	e := newTestEnricher(&fakeLookups{}, users, &fakeParticipants{}, Config{ChunkSize: 5, ChunkDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	got := e.EnrichAll(ctx, rawBatch(8), status.NewMemoryStore())
	if len(got) != 8 {
		t.Fatalf("output must stay 1:1 with input, got %d", len(got))
	}
	for i := 5; i < 8; i++ {
		if got[i].ID != fmt.Sprintf("appt-%d", i) {
			t.Fatalf("remainder item %d missing raw fields: %+v", i, got[i])
		}
	}
}
