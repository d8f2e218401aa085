// Package ordersync mirrors appointment status changes into the order store.
// Orders are an independently-owned aggregate with a replace-the-whole-record
// update endpoint, so every write goes read-merge-write: fetch the full order,
// change only the status code, write everything back.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/labdesk/backoffice/internal/model"
)

// ErrMonetaryPreservation reports that an order's total amount observed after
// the write-back differs from the one read before it. It is kept distinct from
// transport errors because it indicates lost payment data, not a flaky call.
var ErrMonetaryPreservation = errors.New("order total amount changed across status write-back")

// OrderGateway is the slice of the platform gateway the synchronizer needs.
type OrderGateway interface {
	OrderByID(ctx context.Context, id string) (*model.Order, error)
	UpdateOrder(ctx context.Context, order model.Order) error
}

// orderStatusByAppointment maps the appointment vocabulary onto the coarser
// order vocabulary. All mid-processing appointment statuses collapse to
// "processing"; statuses missing here deliberately leave the order untouched.
var orderStatusByAppointment = map[model.Status]string{
	model.StatusPending:        model.OrderStatusPending,
	model.StatusConfirmed:      model.OrderStatusConfirmed,
	model.StatusDeliveringKit:  model.OrderStatusProcessing,
	model.StatusKitDelivered:   model.OrderStatusProcessing,
	model.StatusSampleReceived: model.OrderStatusProcessing,
	model.StatusTesting:        model.OrderStatusProcessing,
	model.StatusCompleted:      model.OrderStatusCompleted,
	model.StatusCancelled:      model.OrderStatusCancelled,
}

// OrderStatusFor returns the order status code mirroring an appointment
// status, ok=false when the status has no order-side meaning.
func OrderStatusFor(s model.Status) (string, bool) {
	code, ok := orderStatusByAppointment[s]
	return code, ok
}

type Syncer struct {
	orders  OrderGateway
	logger  *slog.Logger
	timeout time.Duration

	// verify re-reads the order after the write and checks the total amount
	// survived the replace. Costs one extra call per sync.
	verify bool
}

type Option func(*Syncer)

func WithVerification() Option {
	return func(s *Syncer) { s.verify = true }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Syncer) { s.timeout = d }
}

func New(orders OrderGateway, logger *slog.Logger, opts ...Option) *Syncer {
	s := &Syncer{orders: orders, logger: logger, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync mirrors apptStatus onto the order. An appointment without an order, or
// a status with no order-side mapping, needs no mirroring: that is a
// successful no-op with zero order-store calls, and it reports synced=true so
// callers cannot mistake it for a sync that failed to happen.
func (s *Syncer) Sync(ctx context.Context, orderID string, apptStatus model.Status) (synced bool, err error) {
	if orderID == "" {
		return true, nil
	}
	code, ok := OrderStatusFor(apptStatus)
	if !ok {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.orders.OrderByID(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("read order %s: %w", orderID, err)
	}
	if order == nil {
		return false, fmt.Errorf("order %s not found", orderID)
	}

	if order.StatusCode == code {
		return true, nil
	}

	amountBefore := order.TotalAmount
	updated := *order
	updated.StatusCode = code
	if err := s.orders.UpdateOrder(ctx, updated); err != nil {
		return false, fmt.Errorf("write order %s: %w", orderID, err)
	}

	if s.verify {
		after, err := s.orders.OrderByID(ctx, orderID)
		if err != nil {
			s.logger.Warn("order verify read failed", "order_id", orderID, "err", err)
			return true, nil
		}
		if after != nil && after.TotalAmount != amountBefore {
			return true, fmt.Errorf("order %s: before %.2f after %.2f: %w",
				orderID, amountBefore, after.TotalAmount, ErrMonetaryPreservation)
		}
	}

	s.logger.Info("order status mirrored",
		"order_id", orderID, "appointment_status", apptStatus, "order_status", code)
	return true, nil
}
