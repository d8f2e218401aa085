// Package enrich assembles display-ready appointments from the raw records
// plus the user, doctor, service, order and participant collections. Every
// sub-lookup is fault-isolated: a failed branch degrades its own fields and
// never blocks the rest of the appointment.
package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/labdesk/backoffice/internal/model"
	"github.com/labdesk/backoffice/internal/status"
)

// Lookups is the slice of the platform gateway the pipeline needs.
type Lookups interface {
	TimeSlotByID(ctx context.Context, id string) (*model.TimeSlot, error)
	DoctorByID(ctx context.Context, id string) (*model.Doctor, error)
	OrderByID(ctx context.Context, id string) (*model.Order, error)
	ServiceByID(ctx context.Context, id string) (*model.Service, error)
}

// UserCache is the cached user lookup; it always answers, degrading to the
// "Unknown" sentinel when the user store is unreachable.
type UserCache interface {
	Get(ctx context.Context, id string) model.User
}

// ParticipantCache is the cached participants-by-order lookup.
type ParticipantCache interface {
	Get(ctx context.Context, orderID string) []model.Participant
}

type Enricher struct {
	lookups      Lookups
	users        UserCache
	participants ParticipantCache
	logger       *slog.Logger

	timeout     time.Duration // whole-appointment budget
	stepTimeout time.Duration // per sub-lookup

	chunkSize  int
	chunkDelay time.Duration
}

type Config struct {
	Timeout     time.Duration // default 8s
	StepTimeout time.Duration // default 3s
	ChunkSize   int           // default 5
	ChunkDelay  time.Duration // default 200ms
}

func New(lookups Lookups, users UserCache, participants ParticipantCache, logger *slog.Logger, cfg Config) *Enricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 3 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = 200 * time.Millisecond
	}
	return &Enricher{
		lookups:      lookups,
		users:        users,
		participants: participants,
		logger:       logger,
		timeout:      cfg.Timeout,
		stepTimeout:  cfg.StepTimeout,
		chunkSize:    cfg.ChunkSize,
		chunkDelay:   cfg.ChunkDelay,
	}
}

// Enrich always returns a displayable appointment. If the sub-lookups do not
// finish inside the budget, the minimal fallback built from raw fields alone
// is returned and the stragglers' eventual results are discarded; their
// transport-level work is not aborted (cooperative cancellation only).
func (e *Enricher) Enrich(ctx context.Context, raw model.RawAppointment) model.EnrichedAppointment {
	innerCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan model.EnrichedAppointment, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("enrichment panicked", "appointment_id", raw.ID, "panic", r)
				done <- Minimal(raw)
			}
		}()
		done <- e.enrichInner(innerCtx, raw)
	}()

	select {
	case enriched := <-done:
		return enriched
	case <-innerCtx.Done():
		e.logger.Warn("enrichment timed out, serving minimal appointment", "appointment_id", raw.ID)
		return Minimal(raw)
	}
}

type doctorResult struct {
	info *model.DoctorInfo
}

type orderResult struct {
	order        *model.Order
	service      *model.Service
	participants []model.Participant
}

func (e *Enricher) enrichInner(ctx context.Context, raw model.RawAppointment) model.EnrichedAppointment {
	var (
		user   model.User
		doctor doctorResult
		order  orderResult
	)

	userDone := make(chan model.User, 1)
	doctorDone := make(chan doctorResult, 1)
	orderDone := make(chan orderResult, 1)

	// Each branch recovers its own panics so one misbehaving lookup cannot
	// take the other branches or the process down with it.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("user lookup panicked", "appointment_id", raw.ID, "panic", r)
				userDone <- model.User{}
			}
		}()
		userDone <- e.users.Get(ctx, raw.OwnerUserID)
	}()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("doctor lookup panicked", "appointment_id", raw.ID, "panic", r)
				doctorDone <- doctorResult{}
			}
		}()
		doctorDone <- e.lookupDoctor(ctx, raw.DoctorTimeSlotID)
	}()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("order lookup panicked", "appointment_id", raw.ID, "panic", r)
				orderDone <- orderResult{}
			}
		}()
		orderDone <- e.lookupOrder(ctx, raw.OrderID)
	}()

	user = <-userDone
	doctor = <-doctorDone
	order = <-orderDone

	return merge(raw, user, doctor.info, order.service, order.order, order.participants)
}

// lookupDoctor resolves slot then doctor, each step on its own timeout. Any
// failure collapses to "no doctor info".
func (e *Enricher) lookupDoctor(ctx context.Context, slotID string) doctorResult {
	if slotID == "" {
		return doctorResult{}
	}

	slotCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	slot, err := e.lookups.TimeSlotByID(slotCtx, slotID)
	cancel()
	if err != nil || slot == nil {
		if err != nil {
			e.logger.Warn("time-slot lookup failed", "slot_id", slotID, "err", err)
		}
		return doctorResult{}
	}

	doctorCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	doctor, err := e.lookups.DoctorByID(doctorCtx, slot.DoctorID)
	cancel()
	if err != nil || doctor == nil {
		if err != nil {
			e.logger.Warn("doctor lookup failed", "doctor_id", slot.DoctorID, "err", err)
		}
		return doctorResult{}
	}

	return doctorResult{info: &model.DoctorInfo{Doctor: *doctor, Slot: *slot}}
}

// lookupOrder fetches the order, then the service for its first detail line
// and the cached participants in parallel. Either leg may independently come
// back empty.
func (e *Enricher) lookupOrder(ctx context.Context, orderID string) orderResult {
	if orderID == "" {
		return orderResult{}
	}

	orderCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	order, err := e.lookups.OrderByID(orderCtx, orderID)
	cancel()
	if err != nil || order == nil {
		if err != nil {
			e.logger.Warn("order lookup failed", "order_id", orderID, "err", err)
		}
		return orderResult{}
	}

	res := orderResult{order: order}

	svcDone := make(chan *model.Service, 1)
	partsDone := make(chan []model.Participant, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("service lookup panicked", "order_id", orderID, "panic", r)
				svcDone <- nil
			}
		}()
		if len(order.Details) == 0 {
			svcDone <- nil
			return
		}
		svcCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
		svc, err := e.lookups.ServiceByID(svcCtx, order.Details[0].ServiceID)
		if err != nil {
			e.logger.Warn("service lookup failed", "service_id", order.Details[0].ServiceID, "err", err)
			svcDone <- nil
			return
		}
		svcDone <- svc
	}()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("participant lookup panicked", "order_id", orderID, "panic", r)
				partsDone <- nil
			}
		}()
		partsDone <- e.participants.Get(ctx, orderID)
	}()

	res.service = <-svcDone
	res.participants = <-partsDone
	return res
}

// merge is the pure mapping from raw + sub-lookup results to the enriched
// shape; it performs no I/O.
func merge(
	raw model.RawAppointment,
	user model.User,
	doctor *model.DoctorInfo,
	svc *model.Service,
	order *model.Order,
	participants []model.Participant,
) model.EnrichedAppointment {
	location := model.LocationFromKindCode(raw.KindCode)
	legal := model.LegalFlagCivil
	serviceName := ""
	serviceCategory := ""
	if svc != nil {
		location = model.LocationFromCollectionMethod(svc.CollectionMethodCode)
		if svc.RequiresLegalDocument {
			legal = model.LegalFlagLegal
		}
		serviceName = svc.Name
		serviceCategory = svc.Category
	}

	customerName := user.FullName
	if customerName == "" {
		customerName = model.FallbackUserName
	}
	if participants == nil {
		participants = []model.Participant{}
	}

	enriched := model.EnrichedAppointment{
		RawAppointment:  raw,
		CustomerName:    customerName,
		Phone:           user.Phone,
		Email:           user.Email,
		ServiceName:     serviceName,
		ServiceCategory: serviceCategory,
		Location:        location,
		Legal:           legal,
		Doctor:          doctor,
		Participants:    participants,
		Order:           order,
	}
	applyDerivedStatus(&enriched, baseStatus(raw))
	return enriched
}

// Minimal is the degraded shape built from raw fields only, used when
// enrichment fails or times out. It keeps the appointment displayable with
// sentinel fields instead of hiding it.
func Minimal(raw model.RawAppointment) model.EnrichedAppointment {
	enriched := model.EnrichedAppointment{
		RawAppointment: raw,
		CustomerName:   model.FallbackUserName,
		Location:       model.LocationFromKindCode(raw.KindCode),
		Legal:          model.LegalFlagCivil,
		Participants:   []model.Participant{},
	}
	applyDerivedStatus(&enriched, baseStatus(raw))
	return enriched
}

func baseStatus(raw model.RawAppointment) model.Status {
	if raw.Confirmed {
		return model.StatusConfirmed
	}
	return model.StatusPending
}

func applyDerivedStatus(appt *model.EnrichedAppointment, s model.Status) {
	st, ok := status.Resolve(s, appt.Location)
	if !ok {
		st, _ = status.Resolve(model.StatusPending, appt.Location)
	}
	appt.Status = st.Status()
	appt.CurrentStepIndex = st.StepIndex()
	appt.CompletedSteps = st.CompletedSteps()
	appt.LastStatusUpdate = appt.UpdatedAt
}
