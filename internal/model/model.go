// Package model defines the core domain types for the ticket sales system.
package model

import (
	"errors"
	"time"
)

// ErrInvalidQuantity is returned when fewer than one ticket is requested.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// ErrInventoryExhausted is returned when a tier cannot cover the requested quantity.
var ErrInventoryExhausted = errors.New("not enough tickets left")

// ErrForbidden is returned when an admin token is absent or wrong.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidTransition is returned when an order is asked to leave a terminal state.
var ErrInvalidTransition = errors.New("invalid payment status transition")

// Upper bounds for catalogue figures. They keep Price*Quantity and the
// provider's minor-unit amounts well inside int64.
const (
	MaxTierQuantity = 100_000
	MaxTierPrice    = 10_000_000
)

// EventListing is an event that sells tickets through one or more tiers.
type EventListing struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Venue       string       `json:"venue"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at"`
	Tiers       []TicketTier `json:"tiers,omitempty"`
}

// TicketTier is a priced category of ticket with a fixed capacity.
type TicketTier struct {
	ID            string `json:"id"`
	EventID       string `json:"event_id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	TotalQuantity int    `json:"total_quantity"`
	SoldQuantity  int    `json:"sold_quantity"`
}

// Remaining returns the number of tickets still for sale.
func (t *TicketTier) Remaining() int {
	return t.TotalQuantity - t.SoldQuantity
}

// CanSell reports whether quantity more tickets fit into the tier.
func (t *TicketTier) CanSell(quantity int) bool {
	return quantity >= 1 && quantity <= t.Remaining()
}

// Buyer is the contact identity attached to an order.
type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Order is a buyer's intent to purchase Quantity tickets of one tier.
type Order struct {
	ID            string        `json:"id"`
	Buyer         Buyer         `json:"buyer"`
	TierID        string        `json:"tier_id"`
	Quantity      int           `json:"quantity"`
	Amount        int64         `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	// ProviderRef is the Stripe session id, M-Pesa checkout request id or
	// manual receipt code, depending on PaymentMethod.
	ProviderRef string `json:"provider_ref,omitempty"`
	// IssuedAt is set in the same transaction that creates the order's tickets.
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Tickets   []Ticket   `json:"tickets,omitempty"`
}

// Terminal reports whether the order can no longer change payment status.
func (o *Order) Terminal() bool {
	return o.PaymentStatus.Terminal()
}

// Issued reports whether tickets have already been minted for the order.
func (o *Order) Issued() bool {
	return o.IssuedAt != nil
}

// Transition moves a pending order to a terminal status.
func (o *Order) Transition(to PaymentStatus) error {
	if o.PaymentStatus != StatusPending || !to.Terminal() {
		return ErrInvalidTransition
	}
	o.PaymentStatus = to
	return nil
}

// Ticket is a single admission minted for a paid order.
type Ticket struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	TierID    string       `json:"tier_id"`
	Code      string       `json:"code"`
	Status    TicketStatus `json:"status"`
	VisualRef string       `json:"visual_ref,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// TicketInfo is a ticket joined with the names shown at the gate and in notices.
type TicketInfo struct {
	Ticket
	EventName string `json:"event_name"`
	TierName  string `json:"tier_name"`
}

// CreateEventRequest is the payload for creating an event with its tiers.
type CreateEventRequest struct {
	Name        string              `json:"name" validate:"required,max=150"`
	Description string              `json:"description" validate:"required"`
	Venue       string              `json:"venue" validate:"required,max=150"`
	StartsAt    time.Time           `json:"starts_at" validate:"required"`
	EndsAt      time.Time           `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Tiers       []CreateTierRequest `json:"tiers" validate:"required,min=1,dive"`
}

// CreateTierRequest describes one tier of a new event.
type CreateTierRequest struct {
	Name          string `json:"name" validate:"required,max=50"`
	Price         int64  `json:"price" validate:"gte=0,lte=10000000"`
	TotalQuantity int    `json:"total_quantity" validate:"gte=1,lte=100000"`
}

// PlaceOrderRequest is the payload for buying tickets.
type PlaceOrderRequest struct {
	TierID        string        `json:"tier_id" validate:"required"`
	Quantity      int           `json:"quantity" validate:"lte=100000"`
	Name          string        `json:"name" validate:"required,max=100"`
	Email         string        `json:"email" validate:"required,email,max=120"`
	Phone         string        `json:"phone" validate:"required,max=20"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
