package status

import (
	"testing"

	"github.com/labdesk/backoffice/internal/model"
)

func TestAdvance_HomeFlow(t *testing.T) {
	s := model.StatusPending
	want := []model.Status{
		model.StatusDeliveringKit,
		model.StatusKitDelivered,
		model.StatusSampleReceived,
		model.StatusTesting,
		model.StatusCompleted,
	}
	for i, expected := range want {
		next, ok := Advance(s, model.LocationHome)
		if !ok {
			t.Fatalf("step %d: advance from %s unexpectedly terminal", i, s)
		}
		if next != expected {
			t.Fatalf("step %d: expected %s, got %s", i, expected, next)
		}
		s = next
	}
	if _, ok := Advance(s, model.LocationHome); ok {
		t.Fatalf("expected %s to be terminal", s)
	}
}

func TestAdvance_FacilityFlow(t *testing.T) {
	next, ok := Advance(model.StatusTesting, model.LocationFacility)
	if !ok || next != model.StatusCompleted {
		t.Fatalf("expected completed, got %s (ok=%v)", next, ok)
	}
	if _, ok := Advance(model.StatusCompleted, model.LocationFacility); ok {
		t.Fatal("expected completed to be terminal")
	}
}

func TestAdvance_TerminatesWithoutCycles(t *testing.T) {
	for _, loc := range []model.LocationType{model.LocationHome, model.LocationFacility} {
		s := model.StatusPending
		seen := map[model.Status]bool{s: true}
		for i := 0; i < 20; i++ {
			next, ok := Advance(s, loc)
			if !ok {
				break
			}
			if seen[next] {
				t.Fatalf("%s flow revisited %s", loc, next)
			}
			seen[next] = true
			s = next
		}
		if s != model.StatusCompleted {
			t.Fatalf("%s flow ended at %s, expected completed", loc, s)
		}
	}
}

func TestAdvance_UnrecognizedStatus(t *testing.T) {
	if _, ok := Advance(model.Status("archived"), model.LocationHome); ok {
		t.Fatal("expected unrecognized status to not advance")
	}
}

func TestResolve_NormalizesCrossFlowStatuses(t *testing.T) {
	st, ok := Resolve(model.StatusConfirmed, model.LocationHome)
	if !ok {
		t.Fatal("expected confirmed to resolve under home flow")
	}
	if st.Status() != model.StatusDeliveringKit {
		t.Fatalf("expected delivering_kit, got %s", st.Status())
	}

	for _, s := range []model.Status{model.StatusDeliveringKit, model.StatusKitDelivered} {
		st, ok := Resolve(s, model.LocationFacility)
		if !ok {
			t.Fatalf("expected %s to resolve under facility flow", s)
		}
		if st.Status() != model.StatusConfirmed {
			t.Fatalf("expected %s to collapse to confirmed, got %s", s, st.Status())
		}
	}
}

func TestCancel_FromAnyNonTerminalState(t *testing.T) {
	for _, s := range []model.Status{
		model.StatusPending,
		model.StatusDeliveringKit,
		model.StatusSampleReceived,
		model.StatusTesting,
	} {
		st, ok := Resolve(s, model.LocationHome)
		if !ok {
			t.Fatalf("resolve %s failed", s)
		}
		cancelled, ok := st.Cancel()
		if !ok {
			t.Fatalf("expected cancel from %s to succeed", s)
		}
		if cancelled.Status() != model.StatusCancelled {
			t.Fatalf("expected cancelled, got %s", cancelled.Status())
		}
		if !cancelled.Terminal() {
			t.Fatal("cancelled must be terminal")
		}
	}

	st, _ := Resolve(model.StatusCompleted, model.LocationHome)
	if _, ok := st.Cancel(); ok {
		t.Fatal("completed appointments must not be cancellable")
	}
}

func TestStepIndex_PureAndDeterministic(t *testing.T) {
	a := StepIndex(model.StatusSampleReceived, model.LocationHome)
	b := StepIndex(model.StatusSampleReceived, model.LocationHome)
	if a != b {
		t.Fatalf("StepIndex not deterministic: %d vs %d", a, b)
	}
	if a != 3 {
		t.Fatalf("expected sample_received at index 3 in home flow, got %d", a)
	}
	if got := StepIndex(model.StatusSampleReceived, model.LocationFacility); got != 2 {
		t.Fatalf("expected sample_received at index 2 in facility flow, got %d", got)
	}
	if got := StepIndex(model.StatusCancelled, model.LocationHome); got != -1 {
		t.Fatalf("expected -1 for cancelled, got %d", got)
	}
	if got := StepIndex(model.Status("archived"), model.LocationHome); got != 0 {
		t.Fatalf("expected 0 for unrecognized status, got %d", got)
	}
}

func TestCompletedSteps(t *testing.T) {
	st, _ := Resolve(model.StatusSampleReceived, model.LocationFacility)
	steps := st.CompletedSteps()
	want := []model.Status{model.StatusPending, model.StatusConfirmed}
	if len(steps) != len(want) {
		t.Fatalf("expected %d completed steps, got %d", len(want), len(steps))
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("completed step %d: expected %s, got %s", i, want[i], steps[i])
		}
	}
}
