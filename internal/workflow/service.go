// Package workflow owns the appointment transition entry points. A transition
// persists the status override first, then mirrors the order exactly once and
// queues the remaining side effects; neither of those may roll the
// appointment back.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/labdesk/backoffice/internal/model"
	"github.com/labdesk/backoffice/internal/ordersync"
	"github.com/labdesk/backoffice/internal/outbox"
	"github.com/labdesk/backoffice/internal/status"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("transition not allowed from current status")
)

// Gateway is the slice of the platform gateway the coordinator needs.
type Gateway interface {
	AppointmentByID(ctx context.Context, id string) (*model.RawAppointment, error)
	UpdateAppointment(ctx context.Context, appt model.RawAppointment) error
	ServiceByID(ctx context.Context, id string) (*model.Service, error)
}

// OrderSyncer mirrors an appointment status onto its order. ordersync.Syncer
// satisfies it.
type OrderSyncer interface {
	Sync(ctx context.Context, orderID string, apptStatus model.Status) (bool, error)
}

// EffectQueue durably stores post-transition effects. outbox.Repository
// satisfies it; a nil queue disables effects (dev mode without Postgres).
type EffectQueue interface {
	Enqueue(ctx context.Context, effects ...outbox.Effect) error
}

type Service struct {
	gateway Gateway
	store   status.Store
	orders  OrderSyncer
	effects EffectQueue
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(gateway Gateway, store status.Store, orders OrderSyncer, effects EffectQueue, logger *slog.Logger) *Service {
	return &Service{
		gateway: gateway,
		store:   store,
		orders:  orders,
		effects: effects,
		logger:  logger,
		now:     time.Now,
	}
}

// Result reports what a transition actually touched. OrderSyncErr is carried
// here rather than failing the call: the appointment side has already
// committed and is never rolled back for the order's sake.
type Result struct {
	AppointmentID string
	From          model.Status
	To            model.Status
	Location      model.LocationType
	OrderSynced   bool
	OrderSyncErr  error
}

// Confirm moves a pending appointment onto its first active step and flips
// the confirmed flag on the upstream record.
func (s *Service) Confirm(ctx context.Context, id string) (Result, error) {
	return s.transition(ctx, id, func(st status.State) (status.State, error) {
		if st.Status() != model.StatusPending {
			return status.State{}, fmt.Errorf("confirm from %s: %w", st.Status(), ErrInvalidTransition)
		}
		next, _ := st.Next()
		return next, nil
	}, s.confirmUpstream)
}

// Advance moves the appointment one step along its flow.
func (s *Service) Advance(ctx context.Context, id string) (Result, error) {
	return s.transition(ctx, id, func(st status.State) (status.State, error) {
		next, ok := st.Next()
		if !ok {
			return status.State{}, fmt.Errorf("advance from %s: %w", st.Status(), ErrInvalidTransition)
		}
		return next, nil
	}, nil)
}

// Cancel moves any non-terminal appointment onto the cancelled branch.
func (s *Service) Cancel(ctx context.Context, id string) (Result, error) {
	return s.transition(ctx, id, func(st status.State) (status.State, error) {
		next, ok := st.Cancel()
		if !ok {
			return status.State{}, fmt.Errorf("cancel from %s: %w", st.Status(), ErrInvalidTransition)
		}
		return next, nil
	}, nil)
}

// Complete finishes an appointment from its testing step.
func (s *Service) Complete(ctx context.Context, id string) (Result, error) {
	return s.transition(ctx, id, func(st status.State) (status.State, error) {
		if st.Status() != model.StatusTesting {
			return status.State{}, fmt.Errorf("complete from %s: %w", st.Status(), ErrInvalidTransition)
		}
		next, _ := st.Next()
		return next, nil
	}, nil)
}

// ClearStatus drops the persisted override; used when the appointment itself
// is removed upstream. Overrides are never expired implicitly.
func (s *Service) ClearStatus(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) transition(
	ctx context.Context,
	id string,
	step func(status.State) (status.State, error),
	afterPersist func(ctx context.Context, raw model.RawAppointment),
) (Result, error) {
	raw, err := s.gateway.AppointmentByID(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load appointment %s: %w", id, err)
	}
	if raw == nil {
		return Result{}, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}

	loc := s.resolveLocation(ctx, *raw)
	current := s.currentState(ctx, *raw, loc)
	next, err := step(current)
	if err != nil {
		return Result{}, err
	}

	rec := model.PersistedStatusRecord{
		AppointmentID:  id,
		Status:         next.Status(),
		CurrentStep:    next.StepIndex(),
		CompletedSteps: next.CompletedSteps(),
		LastUpdated:    s.now().UTC(),
	}
	if err := s.store.Save(ctx, rec); err != nil {
		// The override is the source of truth for progress; without it the
		// transition did not happen.
		return Result{}, fmt.Errorf("persist status for %s: %w", id, err)
	}

	res := Result{
		AppointmentID: id,
		From:          current.Status(),
		To:            next.Status(),
		Location:      loc,
	}

	if afterPersist != nil {
		afterPersist(ctx, *raw)
	}

	res.OrderSynced, res.OrderSyncErr = s.syncOrder(ctx, *raw, res.To)
	s.enqueueEffects(ctx, *raw, res)

	s.logger.Info("appointment transition",
		"appointment_id", id, "from", res.From, "to", res.To,
		"location_type", loc, "order_synced", res.OrderSynced)
	return res, nil
}

func (s *Service) confirmUpstream(ctx context.Context, raw model.RawAppointment) {
	raw.Confirmed = true
	if err := s.gateway.UpdateAppointment(ctx, raw); err != nil {
		// The override already records the confirmation; the flag will
		// reconcile on the next successful write.
		s.logger.Warn("confirmed flag write-back failed", "appointment_id", raw.ID, "err", err)
	}
}

func (s *Service) resolveLocation(ctx context.Context, raw model.RawAppointment) model.LocationType {
	if raw.ServiceID != "" {
		svc, err := s.gateway.ServiceByID(ctx, raw.ServiceID)
		if err == nil && svc != nil {
			return model.LocationFromCollectionMethod(svc.CollectionMethodCode)
		}
		if err != nil {
			s.logger.Warn("service lookup failed, deriving location from kind code",
				"appointment_id", raw.ID, "err", err)
		}
	}
	return model.LocationFromKindCode(raw.KindCode)
}

func (s *Service) currentState(ctx context.Context, raw model.RawAppointment, loc model.LocationType) status.State {
	base := model.StatusPending
	if raw.Confirmed {
		base = model.StatusConfirmed
	}
	if rec, ok, err := s.store.Load(ctx, raw.ID); err == nil && ok {
		base = rec.Status
	} else if err != nil {
		s.logger.Warn("status override load failed, using computed status",
			"appointment_id", raw.ID, "err", err)
	}
	st, ok := status.Resolve(base, loc)
	if !ok {
		st, _ = status.Resolve(model.StatusPending, loc)
	}
	return st
}

// syncOrder runs exactly one mirror attempt. Failures, including the
// monetary-preservation violation, are reported in the result and never undo
// the appointment transition.
func (s *Service) syncOrder(ctx context.Context, raw model.RawAppointment, to model.Status) (bool, error) {
	synced, err := s.orders.Sync(ctx, raw.OrderID, to)
	if err != nil {
		if errors.Is(err, ordersync.ErrMonetaryPreservation) {
			s.logger.Error("order lost its total amount during sync",
				"appointment_id", raw.ID, "order_id", raw.OrderID, "err", err)
		} else {
			s.logger.Warn("order sync failed", "appointment_id", raw.ID, "order_id", raw.OrderID, "err", err)
		}
		return synced, err
	}
	return synced, nil
}

func (s *Service) enqueueEffects(ctx context.Context, raw model.RawAppointment, res Result) {
	if s.effects == nil {
		return
	}

	effects := make([]outbox.Effect, 0, 3)

	notify, err := outbox.NewEffect(raw.ID, outbox.EffectNotifyCustomer, outbox.NotifyPayload{
		UserID:  raw.OwnerUserID,
		Title:   "Appointment update",
		Message: fmt.Sprintf("Your appointment is now %s.", res.To),
		Status:  res.To,
	})
	if err == nil {
		effects = append(effects, notify)
	}

	// Lab tasks are keyed by appointment id upstream; close or cancel the
	// task when the appointment reaches a terminal state.
	switch res.To {
	case model.StatusCompleted:
		if eff, err := outbox.NewEffect(raw.ID, outbox.EffectUpdateTask, outbox.TaskPayload{
			TaskID: raw.ID, Status: "completed", TaskType: "lab_processing", Done: true,
		}); err == nil {
			effects = append(effects, eff)
		}
	case model.StatusCancelled:
		if eff, err := outbox.NewEffect(raw.ID, outbox.EffectUpdateTask, outbox.TaskPayload{
			TaskID: raw.ID, Status: "cancelled", TaskType: "lab_processing",
		}); err == nil {
			effects = append(effects, eff)
		}
	}

	event, err := outbox.NewEffect(raw.ID, outbox.EffectPublishStatus, outbox.StatusChangedPayload{
		AppointmentID: raw.ID,
		From:          res.From,
		To:            res.To,
		Location:      string(res.Location),
		OccurredAt:    s.now().UTC(),
	})
	if err == nil {
		effects = append(effects, event)
	}

	if err := s.effects.Enqueue(ctx, effects...); err != nil {
		// Effects are at-least-once once queued, but queueing itself is
		// best-effort relative to the committed transition.
		s.logger.Error("effect enqueue failed", "appointment_id", raw.ID, "err", err)
	}
}
