// Package issuance mints tickets for paid orders.
//
// Minting, the sold-quantity increment and the order's issued marker are
// written in one transaction while the order row is locked. The marker is
// checked under the same lock, so however many confirmations race for an
// order, exactly one of them mints. Rendering and notification run after the
// commit and can fail without undoing anything.
package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/notify"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/render"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/ticketcode"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotPaid is returned when tickets are requested for an unpaid order.
var ErrNotPaid = errors.New("order is not paid")

// txAttempts bounds retries when a concurrent transaction claimed one of our
// codes between the existence check and the insert.
const txAttempts = 3

// deliverTimeout bounds rendering and notification after commit.
const deliverTimeout = 30 * time.Second

type Issuer struct {
	store    repository.Store
	ledger   *inventory.Ledger
	codes    *ticketcode.Generator
	renderer render.Renderer
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

type IssuerProperty struct {
	Store    repository.Store
	Ledger   *inventory.Ledger
	Codes    *ticketcode.Generator
	Renderer render.Renderer
	Notifier notify.Notifier
	Logger   *zap.Logger
}

func NewIssuer(props IssuerProperty) *Issuer {
	i := &Issuer{
		store:    props.Store,
		ledger:   props.Ledger,
		codes:    props.Codes,
		renderer: props.Renderer,
		notifier: props.Notifier,
		logger:   props.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if i.renderer == nil {
		i.renderer = render.Nop{}
	}
	if i.notifier == nil {
		i.notifier = notify.NewLogNotifier(i.logger)
	}
	return i
}

// Issue returns the tickets of a paid order, minting them on first call.
func (i *Issuer) Issue(ctx context.Context, orderID string) ([]model.Ticket, error) {
	var (
		order   *model.Order
		tickets []model.Ticket
		fresh   bool
	)
	err := i.Retry(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.PaymentStatus != model.StatusPaid {
			return ErrNotPaid
		}
		order = o
		tickets, fresh, err = i.IssueInTx(ctx, tx, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	if fresh {
		tickets = i.Deliver(ctx, order, tickets)
	}
	return tickets, nil
}

// Retry runs fn in a transaction, starting over when a ticket code turned
// out to be taken at insert time.
func (i *Issuer) Retry(ctx context.Context, fn func(tx repository.Tx) error) error {
	var err error
	for range txAttempts {
		err = i.store.InTx(ctx, fn)
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return err
		}
		i.logger.Warn("ticket code collided at insert, retrying")
	}
	return err
}

// IssueInTx mints tickets for order, which must be locked by tx and paid.
// It reports fresh=false with the existing tickets when the order was issued
// before. order is updated in place and written back.
func (i *Issuer) IssueInTx(ctx context.Context, tx repository.Tx, order *model.Order) (tickets []model.Ticket, fresh bool, err error) {
	if order.PaymentStatus != model.StatusPaid {
		return nil, false, ErrNotPaid
	}
	if order.Issued() {
		tickets, err := tx.TicketsByOrder(ctx, order.ID)
		return tickets, false, err
	}

	if _, err := i.ledger.CommitSale(ctx, tx, order.TierID, order.Quantity); err != nil {
		return nil, false, err
	}

	now := i.now()
	reserved := make(map[string]struct{}, order.Quantity)
	tickets = make([]model.Ticket, 0, order.Quantity)
	for range order.Quantity {
		code, err := i.codes.Next(ctx, tx.CodeExists, reserved)
		if err != nil {
			return nil, false, fmt.Errorf("mint code: %w", err)
		}
		reserved[code] = struct{}{}
		t := model.Ticket{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			TierID:    order.TierID,
			Code:      code,
			Status:    model.TicketValid,
			CreatedAt: now,
		}
		if err := tx.InsertTicket(ctx, &t); err != nil {
			return nil, false, err
		}
		tickets = append(tickets, t)
	}

	order.IssuedAt = &now
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return nil, false, err
	}
	return tickets, true, nil
}

// Deliver renders a visual for each ticket and notifies the buyer. It is
// called once, after the issuing transaction commits, and never fails.
func (i *Issuer) Deliver(ctx context.Context, order *model.Order, tickets []model.Ticket) []model.Ticket {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()

	log := i.logger.With(zap.String("order_id", order.ID))

	for idx := range tickets {
		ref, err := i.renderer.Render(ctx, tickets[idx].Code)
		if err != nil {
			log.Warn("ticket render failed", zap.String("code", tickets[idx].Code), zap.Error(err))
			continue
		}
		if ref == "" {
			continue
		}
		if err := i.store.SetTicketVisual(ctx, tickets[idx].ID, ref); err != nil {
			log.Warn("ticket visual not saved", zap.String("code", tickets[idx].Code), zap.Error(err))
			continue
		}
		tickets[idx].VisualRef = ref
	}

	var eventName, tierName string
	if tier, err := i.store.GetTier(ctx, order.TierID); err == nil {
		tierName = tier.Name
		if event, err := i.store.GetEvent(ctx, tier.EventID); err == nil {
			eventName = event.Name
		}
	}

	if err := i.notifier.Notify(ctx, notify.NewNotice(order, tickets, eventName, tierName)); err != nil {
		log.Warn("ticket notification failed", zap.Error(err))
	}
	log.Info("tickets issued", zap.Int("count", len(tickets)))
	return tickets
}
