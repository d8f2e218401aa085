// Package status owns the appointment workflow: two location-dependent linear
// flows plus a cancelled branch reachable from any non-terminal state.
//
// Internally a status is held as a State tag (flow + step, or cancelled)
// rather than a bare string, so a Home appointment can never sit on a
// Facility-only step. The string vocabulary in internal/model is only the
// wire/persistence form; Resolve normalizes it on the way in.
package status

import (
	"github.com/labdesk/backoffice/internal/model"
)

var homeFlow = []model.Status{
	model.StatusPending,
	model.StatusDeliveringKit,
	model.StatusKitDelivered,
	model.StatusSampleReceived,
	model.StatusTesting,
	model.StatusCompleted,
}

var facilityFlow = []model.Status{
	model.StatusPending,
	model.StatusConfirmed,
	model.StatusSampleReceived,
	model.StatusTesting,
	model.StatusCompleted,
}

func flowFor(loc model.LocationType) []model.Status {
	if loc == model.LocationHome {
		return homeFlow
	}
	return facilityFlow
}

// State is the resolved position of an appointment in its workflow: either a
// step index within the flow selected by Location, or the cancelled branch.
type State struct {
	Location  model.LocationType
	step      int
	cancelled bool
}

// Resolve maps a recorded status onto the flow for loc. Statuses recorded
// under the other flow are normalized to their nearest equivalent: a Home
// appointment carrying Confirmed lands on DeliveringKit, a Facility
// appointment carrying any Home-only kit status collapses to Confirmed.
// Unrecognized statuses resolve to ok=false.
func Resolve(s model.Status, loc model.LocationType) (State, bool) {
	if s == model.StatusCancelled {
		return State{Location: loc, cancelled: true}, true
	}
	flow := flowFor(loc)
	for i, step := range flow {
		if step == s {
			return State{Location: loc, step: i}, true
		}
	}
	if norm, ok := normalize(s, loc); ok {
		return Resolve(norm, loc)
	}
	return State{}, false
}

func normalize(s model.Status, loc model.LocationType) (model.Status, bool) {
	switch loc {
	case model.LocationHome:
		if s == model.StatusConfirmed {
			return model.StatusDeliveringKit, true
		}
	case model.LocationFacility:
		if s == model.StatusDeliveringKit || s == model.StatusKitDelivered {
			return model.StatusConfirmed, true
		}
	}
	return "", false
}

// Status renders the state back into the wire vocabulary.
func (st State) Status() model.Status {
	if st.cancelled {
		return model.StatusCancelled
	}
	return flowFor(st.Location)[st.step]
}

// StepIndex is the zero-based progress position, -1 on the cancelled branch.
func (st State) StepIndex() int {
	if st.cancelled {
		return -1
	}
	return st.step
}

// CompletedSteps lists the flow steps already passed, in flow order.
func (st State) CompletedSteps() []model.Status {
	if st.cancelled {
		return nil
	}
	flow := flowFor(st.Location)
	steps := make([]model.Status, st.step)
	copy(steps, flow[:st.step])
	return steps
}

// Terminal reports whether no further transition is possible.
func (st State) Terminal() bool {
	if st.cancelled {
		return true
	}
	return st.step == len(flowFor(st.Location))-1
}

// Next returns the state one step further along the flow; ok=false at a
// terminal state.
func (st State) Next() (State, bool) {
	if st.Terminal() {
		return State{}, false
	}
	return State{Location: st.Location, step: st.step + 1}, true
}

// Cancel moves any non-terminal state onto the cancelled branch.
func (st State) Cancel() (State, bool) {
	if st.Terminal() {
		return State{}, false
	}
	return State{Location: st.Location, cancelled: true}, true
}

// Advance is the string-level convenience wrapper: the next status along the
// flow for loc, or ok=false at a terminal or unrecognized status.
func Advance(s model.Status, loc model.LocationType) (model.Status, bool) {
	st, ok := Resolve(s, loc)
	if !ok {
		return "", false
	}
	next, ok := st.Next()
	if !ok {
		return "", false
	}
	return next.Status(), true
}

// StepIndex is pure and side-effect-free; unrecognized statuses report as
// step 0 so progress displays never go out of range.
func StepIndex(s model.Status, loc model.LocationType) int {
	st, ok := Resolve(s, loc)
	if !ok {
		return 0
	}
	return st.StepIndex()
}

// StepCount is the length of the flow for loc, for progress rendering.
func StepCount(loc model.LocationType) int {
	return len(flowFor(loc))
}
