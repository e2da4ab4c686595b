// Package repository persists events, tiers, orders and tickets.
//
// Two stores implement the same contract: PostgresStore drives pgx directly
// (no ORM) and MemoryStore keeps everything in process for tests and local
// runs. Every mutation that spans more than one row goes through InTx.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateCode is returned when a ticket code is already taken.
var ErrDuplicateCode = errors.New("ticket code already exists")

// RedeemOutcome is the result of a compare-and-swap on a ticket's status.
type RedeemOutcome int

const (
	RedeemNotFound RedeemOutcome = iota
	RedeemAlreadyUsed
	RedeemAccepted
)

// Store is the persistence boundary of the system.
type Store interface {
	CreateEvent(ctx context.Context, event *model.EventListing) error
	GetEvent(ctx context.Context, id string) (*model.EventListing, error)
	ListEvents(ctx context.Context) ([]model.EventListing, error)
	CreateTier(ctx context.Context, tier *model.TicketTier) error
	GetTier(ctx context.Context, id string) (*model.TicketTier, error)
	ListTiers(ctx context.Context, eventID string) ([]model.TicketTier, error)

	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	FindOrderByRef(ctx context.Context, method model.PaymentMethod, ref string) (*model.Order, error)

	ListTickets(ctx context.Context, orderID string) ([]model.Ticket, error)
	GetTicketInfo(ctx context.Context, code string) (*model.TicketInfo, error)
	SetTicketVisual(ctx context.Context, ticketID, ref string) error

	// RedeemTicket flips a ticket from valid to used in a single atomic step.
	// The returned info is populated for RedeemAccepted and RedeemAlreadyUsed.
	RedeemTicket(ctx context.Context, code string) (*model.TicketInfo, RedeemOutcome, error)

	// InTx runs fn as one all-or-nothing unit. If fn returns an error nothing
	// it wrote is visible afterwards.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of row-level operations available inside InTx. Lock methods
// hold the row until the transaction ends.
type Tx interface {
	LockOrder(ctx context.Context, id string) (*model.Order, error)
	UpdateOrder(ctx context.Context, order *model.Order) error
	LockTier(ctx context.Context, id string) (*model.TicketTier, error)
	SetTierSold(ctx context.Context, id string, sold int) error
	TicketsByOrder(ctx context.Context, orderID string) ([]model.Ticket, error)
	InsertTicket(ctx context.Context, ticket *model.Ticket) error
	CodeExists(ctx context.Context, code string) (bool, error)
}

// EventReader is the read side used by the catalogue; CachedEventReader
// decorates it.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (*model.EventListing, error)
	ListEvents(ctx context.Context) ([]model.EventListing, error)
}
