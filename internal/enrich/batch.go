package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/labdesk/backoffice/internal/model"
	"github.com/labdesk/backoffice/internal/status"
)

// Overrides is the persisted-status lookup the orchestrator overlays after
// enrichment. status.Store satisfies it.
type Overrides interface {
	LoadAll(ctx context.Context, appointmentIDs []string) (map[string]model.PersistedStatusRecord, error)
}

// EnrichAll enriches raws in chunks, concurrently within each chunk and with a
// pause between chunks to avoid hammering the platform. Output is 1:1 with
// input and in input order; a panicking or failing item contributes its
// minimal fallback instead of sinking the batch. Persisted status records are
// overlaid last and always win over the computed status.
func (e *Enricher) EnrichAll(ctx context.Context, raws []model.RawAppointment, overrides Overrides) []model.EnrichedAppointment {
	out := make([]model.EnrichedAppointment, len(raws))

	for start := 0; start < len(raws); start += e.chunkSize {
		end := min(start+e.chunkSize, len(raws))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						e.logger.Error("enrichment panicked", "appointment_id", raws[i].ID, "panic", r)
						out[i] = Minimal(raws[i])
					}
				}()
				out[i] = e.Enrich(ctx, raws[i])
			}(i)
		}
		wg.Wait()

		if end < len(raws) {
			select {
			case <-time.After(e.chunkDelay):
			case <-ctx.Done():
				for i := end; i < len(raws); i++ {
					out[i] = Minimal(raws[i])
				}
				return out
			}
		}
	}

	e.overlayPersisted(ctx, raws, out, overrides)
	return out
}

func (e *Enricher) overlayPersisted(ctx context.Context, raws []model.RawAppointment, out []model.EnrichedAppointment, overrides Overrides) {
	if overrides == nil || len(raws) == 0 {
		return
	}
	ids := make([]string, len(raws))
	for i, raw := range raws {
		ids[i] = raw.ID
	}
	records, err := overrides.LoadAll(ctx, ids)
	if err != nil {
		e.logger.Warn("status override load failed, serving computed statuses", "err", err)
		return
	}
	for i := range out {
		rec, ok := records[out[i].ID]
		if !ok {
			continue
		}
		applyOverride(&out[i], rec)
	}
}

// applyOverride replaces the computed status fields with the persisted record.
// The recorded status is re-resolved against the appointment's flow so records
// written before a location change still land on a legal step; a record whose
// status cannot be resolved at all is applied verbatim.
func applyOverride(appt *model.EnrichedAppointment, rec model.PersistedStatusRecord) {
	if st, ok := status.Resolve(rec.Status, appt.Location); ok {
		appt.Status = st.Status()
		appt.CurrentStepIndex = st.StepIndex()
		appt.CompletedSteps = st.CompletedSteps()
	} else {
		appt.Status = rec.Status
		appt.CurrentStepIndex = rec.CurrentStep
		appt.CompletedSteps = rec.CompletedSteps
	}
	appt.LastStatusUpdate = rec.LastUpdated
}
