// Package payment talks to the outside world about money. Providers report
// outcomes; they never touch orders or tickets themselves.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
)

// ErrProviderRejected is returned when the provider refused the request.
var ErrProviderRejected = errors.New("payment provider rejected the request")

// ErrProviderUnavailable is returned on timeouts, transport failures and
// unreadable responses. Callers may retry.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// ErrHandleMismatch is returned when a confirmation carries a correlation
// handle that does not belong to the order.
var ErrHandleMismatch = errors.New("payment handle does not match order")

// Outcome is what a provider learned about an order's payment.
type Outcome int

const (
	// Pending means the provider has not settled yet; nothing changes.
	Pending Outcome = iota
	Paid
	NotPaid
)

func (o Outcome) String() string {
	switch o {
	case Paid:
		return "paid"
	case NotPaid:
		return "not_paid"
	}
	return "pending"
}

// Checkout is everything a provider needs to start collecting for an order.
type Checkout struct {
	Order     *model.Order
	Tier      *model.TicketTier
	EventName string
}

// Initiation is the result of starting a payment.
type Initiation struct {
	// Ref is the provider correlation handle; empty for manual paybill.
	Ref string `json:"ref,omitempty"`
	// RedirectURL is where a card buyer completes payment.
	RedirectURL string `json:"redirect_url,omitempty"`
	// Instructions are shown to buyers who pay out of band.
	Instructions string `json:"instructions,omitempty"`
}

// Confirmation carries what the trigger knows when asking for confirmation.
type Confirmation struct {
	// Ref is the handle presented by a return redirect, if any.
	Ref string
	// Token authorises a manual confirmation.
	Token string
	// Reject lets an administrator decline a manual payment.
	Reject bool
}

// Provider initiates and confirms payments for one PaymentMethod.
type Provider interface {
	Method() model.PaymentMethod
	Initiate(ctx context.Context, c Checkout) (Initiation, error)
	Confirm(ctx context.Context, order *model.Order, c Confirmation) (Outcome, error)
}

// Authorizer is implemented by providers whose confirmations must be
// authorised before anything else about the order is revealed.
type Authorizer interface {
	Authorize(c Confirmation) error
}

// Providers holds one Provider per payment method.
type Providers struct {
	Stripe Provider
	Mpesa  Provider
	Manual Provider
}

// For selects the provider for m.
func (p Providers) For(m model.PaymentMethod) (Provider, error) {
	var provider Provider
	switch m {
	case model.MethodStripeCard:
		provider = p.Stripe
	case model.MethodMpesaPush:
		provider = p.Mpesa
	case model.MethodMpesaManual:
		provider = p.Manual
	case model.MethodUnknown:
		return nil, fmt.Errorf("payment method %s: %w", m, ErrProviderRejected)
	}
	if provider == nil {
		return nil, fmt.Errorf("payment method %s is not enabled: %w", m, ErrProviderRejected)
	}
	return provider, nil
}

// AccountReference is the short order reference shown to the buyer and sent
// to M-Pesa (which caps it at 12 characters).
func AccountReference(orderID string) string {
	ref := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(ref) > 7 {
		ref = ref[:7]
	}
	return "ORDER" + ref
}
