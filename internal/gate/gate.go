// Package gate admits ticket holders. Each code is accepted once.
package gate

import (
	"context"
	"encoding/json"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/ticketcode"
	"go.uber.org/zap"
)

// Kind is the verdict for a scanned code.
type Kind int

const (
	NotFound Kind = iota
	AlreadyUsed
	Accepted
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case AlreadyUsed:
		return "already_used"
	}
	return "not_found"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Result is returned by Redeem. Ticket is nil for NotFound.
type Result struct {
	Kind   Kind              `json:"result"`
	Ticket *model.TicketInfo `json:"ticket,omitempty"`
}

// Message is the line shown to gate staff.
func (r Result) Message() string {
	switch r.Kind {
	case Accepted:
		return "Valid ticket: " + r.Ticket.EventName + " - " + r.Ticket.TierName
	case AlreadyUsed:
		return "Ticket already used."
	}
	return "Invalid ticket."
}

type Validator struct {
	store  repository.Store
	logger *zap.Logger
}

func NewValidator(store repository.Store, logger *zap.Logger) *Validator {
	return &Validator{store: store, logger: logger}
}

// Redeem consumes code. Concurrent calls for one code yield exactly one
// Accepted; the rest see AlreadyUsed.
func (v *Validator) Redeem(ctx context.Context, code string) (Result, error) {
	code = ticketcode.Normalize(code)
	if code == "" {
		return Result{Kind: NotFound}, nil
	}
	info, outcome, err := v.store.RedeemTicket(ctx, code)
	if err != nil {
		return Result{}, err
	}
	switch outcome {
	case repository.RedeemAccepted:
		v.logger.Info("ticket admitted", zap.String("code", code), zap.String("order_id", info.OrderID))
		return Result{Kind: Accepted, Ticket: info}, nil
	case repository.RedeemAlreadyUsed:
		v.logger.Info("ticket presented again", zap.String("code", code))
		return Result{Kind: AlreadyUsed, Ticket: info}, nil
	}
	return Result{Kind: NotFound}, nil
}

// Lookup returns a ticket without consuming it.
func (v *Validator) Lookup(ctx context.Context, code string) (*model.TicketInfo, error) {
	return v.store.GetTicketInfo(ctx, ticketcode.Normalize(code))
}
