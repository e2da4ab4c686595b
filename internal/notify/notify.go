// Package notify tells buyers their tickets are ready. Delivery is best
// effort: callers log a failed Notify and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"go.uber.org/zap"
)

// Notice is the content of a "your tickets" message.
type Notice struct {
	OrderID       string              `json:"order_id"`
	Buyer         model.Buyer         `json:"buyer"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	Amount        int64               `json:"amount"`
	Tickets       []TicketLine        `json:"tickets"`
}

// TicketLine is one ticket as presented to the buyer.
type TicketLine struct {
	EventName string `json:"event_name"`
	TierName  string `json:"tier_name"`
	Code      string `json:"code"`
	VisualRef string `json:"visual_ref,omitempty"`
}

// NewNotice builds a Notice for order. eventName and tierName apply to every
// ticket since an order covers a single tier.
func NewNotice(order *model.Order, tickets []model.Ticket, eventName, tierName string) Notice {
	n := Notice{
		OrderID:       order.ID,
		Buyer:         order.Buyer,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		Amount:        order.Amount,
		Tickets:       make([]TicketLine, 0, len(tickets)),
	}
	for _, t := range tickets {
		n.Tickets = append(n.Tickets, TicketLine{
			EventName: eventName,
			TierName:  tierName,
			Code:      t.Code,
			VisualRef: t.VisualRef,
		})
	}
	return n
}

// Subject is the message subject line.
func (n Notice) Subject() string { return "Your Event Ticket(s)" }

// Text renders the plain-text body.
func (n Notice) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", n.Buyer.Name)
	fmt.Fprintf(&b, "Payment Method: %s\n", n.PaymentMethod)
	fmt.Fprintf(&b, "Payment Status: %s\n\n", n.PaymentStatus)
	b.WriteString("Here are your ticket details:\n\n")
	for _, t := range n.Tickets {
		fmt.Fprintf(&b, "- Event: %s, Type: %s, Code: %s\n", t.EventName, t.TierName, t.Code)
	}
	b.WriteString("\nYou can present this message or the QR code at the entrance.\n")
	return b.String()
}

// Notifier delivers a Notice.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to the log. It is the fallback when no broker
// is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notice) error {
	codes := make([]string, len(n.Tickets))
	for i, t := range n.Tickets {
		codes[i] = t.Code
	}
	l.logger.Info("tickets ready",
		zap.String("order_id", n.OrderID),
		zap.String("email", n.Buyer.Email),
		zap.Strings("codes", codes))
	return nil
}

// Multi fans a notice out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
