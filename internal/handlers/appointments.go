// Package handlers exposes the back-office HTTP API: the enriched appointment
// board and the workflow transition endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labdesk/backoffice/internal/enrich"
	"github.com/labdesk/backoffice/internal/model"
	"github.com/labdesk/backoffice/internal/workflow"
)

// AppointmentSource is the platform read surface the handlers need.
type AppointmentSource interface {
	ListAppointments(ctx context.Context) ([]model.RawAppointment, error)
	AppointmentByID(ctx context.Context, id string) (*model.RawAppointment, error)
}

// Enricher turns raw appointments into the display shape.
type Enricher interface {
	EnrichAll(ctx context.Context, raws []model.RawAppointment, overrides enrich.Overrides) []model.EnrichedAppointment
}

// Transitioner is the workflow entry point set.
type Transitioner interface {
	Confirm(ctx context.Context, id string) (workflow.Result, error)
	Advance(ctx context.Context, id string) (workflow.Result, error)
	Cancel(ctx context.Context, id string) (workflow.Result, error)
	Complete(ctx context.Context, id string) (workflow.Result, error)
}

type AppointmentHandler struct {
	source    AppointmentSource
	enricher  Enricher
	overrides enrich.Overrides
	flow      Transitioner
	logger    *slog.Logger

	// listTimeout bounds only the initial raw list fetch; enrichment carries
	// its own per-appointment budget and degrades instead of failing.
	listTimeout time.Duration
}

func NewAppointmentHandler(source AppointmentSource, enricher Enricher, overrides enrich.Overrides, flow Transitioner, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		source:      source,
		enricher:    enricher,
		overrides:   overrides,
		flow:        flow,
		logger:      logger,
		listTimeout: 15 * time.Second,
	}
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	listCtx, cancel := context.WithTimeout(r.Context(), h.listTimeout)
	raws, err := h.source.ListAppointments(listCtx)
	cancel()
	if err != nil {
		h.logger.Error("appointment list fetch failed", "err", err)
		http.Error(w, "appointment platform unavailable", http.StatusBadGateway)
		return
	}

	appts := h.enricher.EnrichAll(r.Context(), raws, h.overrides)
	if appts == nil {
		appts = []model.EnrichedAppointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

// Item routes /api/v1/appointments/{id} and
// /api/v1/appointments/{id}/{action}.
func (h *AppointmentHandler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/appointments/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.detail(w, r, parts[0])
	case len(parts) == 2:
		h.transition(w, r, parts[0], parts[1])
	default:
		http.NotFound(w, r)
	}
}

func (h *AppointmentHandler) detail(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := h.source.AppointmentByID(r.Context(), id)
	if err != nil {
		h.logger.Error("appointment fetch failed", "appointment_id", id, "err", err)
		http.Error(w, "appointment platform unavailable", http.StatusBadGateway)
		return
	}
	if raw == nil {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}

	appts := h.enricher.EnrichAll(r.Context(), []model.RawAppointment{*raw}, h.overrides)
	writeJSON(w, http.StatusOK, appts[0])
}

type transitionResponse struct {
	AppointmentID string       `json:"appointment_id"`
	From          model.Status `json:"from"`
	To            model.Status `json:"to"`
	OrderSynced   bool         `json:"order_synced"`
	OrderSyncErr  string       `json:"order_sync_error,omitempty"`
}

func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var res workflow.Result
	var err error
	switch action {
	case "confirm":
		res, err = h.flow.Confirm(r.Context(), id)
	case "advance":
		res, err = h.flow.Advance(r.Context(), id)
	case "cancel":
		res, err = h.flow.Cancel(r.Context(), id)
	case "complete":
		res, err = h.flow.Complete(r.Context(), id)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, workflow.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("transition failed", "appointment_id", id, "action", action, "err", err)
			http.Error(w, "transition failed", http.StatusInternalServerError)
		}
		return
	}

	resp := transitionResponse{
		AppointmentID: res.AppointmentID,
		From:          res.From,
		To:            res.To,
		OrderSynced:   res.OrderSynced,
	}
	if res.OrderSyncErr != nil {
		resp.OrderSyncErr = res.OrderSyncErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
