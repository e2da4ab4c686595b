// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/issuance"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/order"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/payment"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// validateStruct runs the struct's validate tags and flattens the failures
// into one message.
func validateStruct(ctx context.Context, v *validator.Validate, payload any) error {
	err := v.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	msgs := make([]string, len(fields))
	for i, f := range fields {
		msgs[i] = fmt.Sprintf("invalid '%s' with value '%v'", f.Field(), f.Value())
	}
	return errors.New(strings.Join(msgs, ", "))
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, payment.ErrHandleMismatch),
		errors.Is(err, order.ErrWrongMethod),
		errors.Is(err, order.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInventoryExhausted),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, issuance.ErrNotPaid):
		return http.StatusConflict
	case errors.Is(err, payment.ErrProviderRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, payment.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, order.ErrPaymentPending):
		return http.StatusAccepted
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", zap.Error(err))
		msg = "internal error"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "10")
		msg = "payment provider unavailable, try again shortly"
	}
	writeError(w, status, msg)
}

// ─── Catalogue ───────────────────────────────────────────────────────────────

// EventHandler serves the event catalogue.
type EventHandler struct {
	svc      *service.EventService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService, validate *validator.Validate, logger *zap.Logger) *EventHandler {
	return &EventHandler{svc: svc, validate: validate, logger: logger}
}

// CreateEvent handles POST /admin/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validateStruct(r.Context(), h.validate, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Returns a JSON array of all events with tiers and live stock.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		h.logger.Error("list events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.EventListing{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.svc.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.logger.Error("get event", zap.String("event_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
