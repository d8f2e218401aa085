package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/labdesk/backoffice/internal/model"
)

// Appointments

func (c *Client) ListAppointments(ctx context.Context) ([]model.RawAppointment, error) {
	var appts []model.RawAppointment
	ok, err := c.get(ctx, "/api/v1/appointments", &appts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return appts, nil
}

func (c *Client) AppointmentByID(ctx context.Context, id string) (*model.RawAppointment, error) {
	var appt model.RawAppointment
	ok, err := c.get(ctx, "/api/v1/appointments/"+url.PathEscape(id), &appt)
	if err != nil || !ok {
		return nil, err
	}
	return &appt, nil
}

func (c *Client) CreateAppointment(ctx context.Context, appt model.RawAppointment) (model.RawAppointment, error) {
	var created model.RawAppointment
	err := c.write(ctx, http.MethodPost, "/api/v1/appointments", appt, &created)
	return created, err
}

func (c *Client) UpdateAppointment(ctx context.Context, appt model.RawAppointment) error {
	return c.write(ctx, http.MethodPut, "/api/v1/appointments/"+url.PathEscape(appt.ID), appt, nil)
}

func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	return c.write(ctx, http.MethodDelete, "/api/v1/appointments/"+url.PathEscape(id), nil, nil)
}

// Users

func (c *Client) UserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	ok, err := c.get(ctx, "/api/v1/users/"+url.PathEscape(id), &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	ok, err := c.get(ctx, "/api/v1/users", &users)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return users, nil
}

// UsersByIDs is the batched lookup. Unlike single reads it returns an error
// on a soft failure too, so the cache can fall back to individual fetches
// when the batch endpoint is unavailable on older platform deployments.
func (c *Client) UsersByIDs(ctx context.Context, ids []string) (map[string]model.User, error) {
	var users []model.User
	if err := c.write(ctx, http.MethodPost, "/api/v1/users/batch", map[string][]string{"ids": ids}, &users); err != nil {
		return nil, err
	}
	out := make(map[string]model.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Doctors and time slots

func (c *Client) DoctorByID(ctx context.Context, id string) (*model.Doctor, error) {
	var doctor model.Doctor
	ok, err := c.get(ctx, "/api/v1/doctors/"+url.PathEscape(id), &doctor)
	if err != nil || !ok {
		return nil, err
	}
	return &doctor, nil
}

func (c *Client) TimeSlotByID(ctx context.Context, id string) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	ok, err := c.get(ctx, "/api/v1/time-slots/"+url.PathEscape(id), &slot)
	if err != nil || !ok {
		return nil, err
	}
	return &slot, nil
}

// Services

func (c *Client) ServiceByID(ctx context.Context, id string) (*model.Service, error) {
	var svc model.Service
	ok, err := c.get(ctx, "/api/v1/services/"+url.PathEscape(id), &svc)
	if err != nil || !ok {
		return nil, err
	}
	return &svc, nil
}

// Orders

func (c *Client) OrderByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	ok, err := c.get(ctx, "/api/v1/orders/"+url.PathEscape(id), &order)
	if err != nil || !ok {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder replaces the whole order record upstream. Callers must send
// every field they intend to keep (see internal/ordersync).
func (c *Client) UpdateOrder(ctx context.Context, order model.Order) error {
	return c.write(ctx, http.MethodPut, "/api/v1/orders/"+url.PathEscape(order.ID), order, nil)
}

func (c *Client) ParticipantsByOrder(ctx context.Context, orderID string) ([]model.Participant, error) {
	var participants []model.Participant
	ok, err := c.get(ctx, "/api/v1/orders/"+url.PathEscape(orderID)+"/participants", &participants)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return participants, nil
}

// Tasks

func (c *Client) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	var created model.Task
	err := c.write(ctx, http.MethodPost, "/api/v1/tasks", task, &created)
	return created, err
}

func (c *Client) UpdateTask(ctx context.Context, task model.Task) error {
	return c.write(ctx, http.MethodPut, "/api/v1/tasks/"+url.PathEscape(task.ID), task, nil)
}

// Notifications

func (c *Client) CreateNotification(ctx context.Context, n model.Notification) error {
	return c.write(ctx, http.MethodPost, "/api/v1/notifications", n, nil)
}
