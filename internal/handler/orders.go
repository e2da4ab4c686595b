package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/order"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/payment"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// AdminTokenHeader carries the shared secret for admin actions.
const AdminTokenHeader = "X-Admin-Token"

// OrderHandler exposes ordering and the three confirmation triggers.
type OrderHandler struct {
	orders   *order.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(orders *order.Service, validate *validator.Validate, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, validate: validate, logger: logger}
}

type placementFailure struct {
	Error string       `json:"error"`
	Order *model.Order `json:"order,omitempty"`
}

// PlaceOrder handles POST /orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req model.PlaceOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Quantity < 1 {
		writeServiceError(w, h.logger, model.ErrInvalidQuantity)
		return
	}
	if err := validateStruct(r.Context(), h.validate, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	placed, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		// Initiation failures still produced an order, kept as failed.
		if placed != nil && placed.Order != nil {
			status := statusFor(err)
			if status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "10")
			}
			writeJSON(w, status, placementFailure{Error: "payment could not be started: " + err.Error(), Order: placed.Order})
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, placed)
}

// GetOrder handles GET /orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Confirm handles POST /orders/{id}/confirm, the buyer's "check payment" poll.
func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.confirm(w, r, payment.Confirmation{})
}

// AdminConfirm handles POST /admin/orders/{id}/confirm for paybill orders.
// Body is optional: {"reject": true} declines the payment.
func (h *OrderHandler) AdminConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reject bool `json:"reject"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	h.confirm(w, r, payment.Confirmation{Token: r.Header.Get(AdminTokenHeader), Reject: body.Reject})
}

func (h *OrderHandler) confirm(w http.ResponseWriter, r *http.Request, c payment.Confirmation) {
	res, err := h.orders.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), c)
	if err != nil {
		if errors.Is(err, order.ErrPaymentPending) {
			writeJSON(w, http.StatusAccepted, res)
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SubmitReference handles POST /orders/{id}/reference: {"reference": "QKX..."}
func (h *OrderHandler) SubmitReference(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reference string `json:"reference" validate:"required,max=255"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validateStruct(r.Context(), h.validate, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.orders.SubmitReference(r.Context(), chi.URLParam(r, "id"), body.Reference)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// StripeSuccess handles GET /payments/stripe/success/{id}?session_id=...
// On payment it redirects to the order.
func (h *OrderHandler) StripeSuccess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid session")
		return
	}

	res, err := h.orders.ConfirmPayment(r.Context(), id, payment.Confirmation{Ref: sessionID})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if res.Order.PaymentStatus != model.StatusPaid {
		writeError(w, http.StatusPaymentRequired, "payment not completed")
		return
	}
	http.Redirect(w, r, "/orders/"+id, http.StatusSeeOther)
}

// StripeCancel handles GET /payments/stripe/cancel/{id}
func (h *OrderHandler) StripeCancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.CancelPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MpesaCallback handles POST /payments/mpesa/callback. The payload only tells
// us which order to look at; payment is confirmed by querying M-Pesa.
// Safaricom is always answered with an acknowledgement.
func (h *OrderHandler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	ack := map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"}

	var payload payment.CallbackPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		h.logger.Warn("mpesa callback unreadable", zap.Error(err))
		writeJSON(w, http.StatusOK, ack)
		return
	}
	ref := payload.Body.StkCallback.CheckoutRequestID
	log := h.logger.With(zap.String("checkout_request_id", ref),
		zap.String("result_code", payload.Body.StkCallback.ResultCode.String()))

	res, err := h.orders.ConfirmByRef(r.Context(), model.MethodMpesaPush, ref)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Warn("mpesa callback for unknown order")
	case errors.Is(err, order.ErrPaymentPending):
		log.Info("mpesa callback before settlement")
	case err != nil:
		log.Warn("mpesa callback confirmation failed", zap.Error(err))
	default:
		log.Info("mpesa callback applied", zap.String("order_id", res.Order.ID),
			zap.String("status", string(res.Order.PaymentStatus)))
	}
	writeJSON(w, http.StatusOK, ack)
}
