package handler

import (
	"net/http"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/gate"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GateHandler serves ticket lookups and admission scans.
type GateHandler struct {
	gate   *gate.Validator
	logger *zap.Logger
}

// NewGateHandler constructs a GateHandler.
func NewGateHandler(v *gate.Validator, logger *zap.Logger) *GateHandler {
	return &GateHandler{gate: v, logger: logger}
}

type redeemResponse struct {
	Result  gate.Kind         `json:"result"`
	Message string            `json:"message"`
	Ticket  *model.TicketInfo `json:"ticket,omitempty"`
}

// Validate handles POST /validate: {"code": "A1B2C3D4"}
// Every verdict is a 200; the result field carries it.
func (h *GateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.gate.Redeem(r.Context(), body.Code)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{Result: res.Kind, Message: res.Message(), Ticket: res.Ticket})
}

// GetTicket handles GET /tickets/{code}
func (h *GateHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	info, err := h.gate.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
