// Package order owns the order lifecycle: pending, then paid or failed.
//
// Confirmation can arrive from a provider callback, a buyer's poll or an
// administrator. All of them funnel into ConfirmPayment, which is safe to
// call any number of times, concurrently.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/issuance"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/payment"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrPaymentPending is returned when the provider has not settled yet. The
// order stays pending and the caller may ask again later.
var ErrPaymentPending = errors.New("payment not confirmed yet")

// ErrWrongMethod is returned when an operation does not apply to the
// order's payment method.
var ErrWrongMethod = errors.New("operation not supported for this payment method")

// ErrInvalidReference is returned for an empty manual payment reference.
var ErrInvalidReference = errors.New("payment reference is required")

type Service struct {
	store     repository.Store
	ledger    *inventory.Ledger
	providers payment.Providers
	issuer    *issuance.Issuer
	logger    *zap.Logger
	now       func() time.Time
	polls     singleflight.Group
}

type ServiceProperty struct {
	Store     repository.Store
	Ledger    *inventory.Ledger
	Providers payment.Providers
	Issuer    *issuance.Issuer
	Logger    *zap.Logger
}

func NewService(props ServiceProperty) *Service {
	return &Service{
		store:     props.Store,
		ledger:    props.Ledger,
		providers: props.Providers,
		issuer:    props.Issuer,
		logger:    props.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Placement is the result of CreateOrder.
type Placement struct {
	Order      *model.Order       `json:"order"`
	Initiation payment.Initiation `json:"payment"`
}

// Confirmed is the result of ConfirmPayment.
type Confirmed struct {
	Order *model.Order `json:"order"`
	// AlreadyTerminal is set when the order had settled before this call;
	// nothing was changed.
	AlreadyTerminal bool `json:"already_terminal"`
}

// CreateOrder validates the request, records a pending order and starts
// payment. A failed initiation leaves the order in place as failed and
// returns both the order and the error.
func (s *Service) CreateOrder(ctx context.Context, req model.PlaceOrderRequest) (*Placement, error) {
	if req.Quantity < 1 {
		return nil, model.ErrInvalidQuantity
	}
	provider, err := s.providers.For(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	ok, tier, err := s.ledger.ReserveCheck(ctx, req.TierID, req.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrInventoryExhausted
	}
	event, err := s.store.GetEvent(ctx, tier.EventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	order := &model.Order{
		ID: uuid.New().String(),
		Buyer: model.Buyer{
			Name:  strings.TrimSpace(req.Name),
			Email: strings.ToLower(strings.TrimSpace(req.Email)),
			Phone: strings.TrimSpace(req.Phone),
		},
		TierID:        tier.ID,
		Quantity:      req.Quantity,
		Amount:        tier.Price * int64(req.Quantity),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: model.StatusPending,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("order_id", order.ID), zap.Stringer("method", order.PaymentMethod))

	started, err := provider.Initiate(ctx, payment.Checkout{Order: order, Tier: tier, EventName: event.Name})
	if err != nil {
		log.Warn("payment initiation failed", zap.Error(err))
		failed, ferr := s.settle(ctx, order.ID, model.StatusFailed)
		if ferr != nil {
			log.Error("could not mark order failed", zap.Error(ferr))
			return &Placement{Order: order}, err
		}
		return &Placement{Order: failed.Order}, err
	}

	if started.Ref != "" {
		err = s.store.InTx(ctx, func(tx repository.Tx) error {
			o, err := tx.LockOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			o.ProviderRef = started.Ref
			order = o
			return tx.UpdateOrder(ctx, o)
		})
		if err != nil {
			// The provider already holds a live session for this order.
			log.Error("payment started but reference not saved",
				zap.String("provider_ref", started.Ref), zap.Error(err))
			return nil, fmt.Errorf("save payment reference: %w", err)
		}
	}

	log.Info("order placed", zap.Int64("amount", order.Amount), zap.Int("quantity", order.Quantity))
	return &Placement{Order: order, Initiation: started}, nil
}

// ConfirmPayment asks the order's provider whether it has been paid and
// applies the answer. Terminal orders are returned as they are.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string, c payment.Confirmation) (*Confirmed, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.For(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if a, ok := provider.(payment.Authorizer); ok {
		if err := a.Authorize(c); err != nil {
			return nil, err
		}
	}
	if order.Terminal() {
		return s.current(ctx, order)
	}

	outcome, err := s.ask(ctx, provider, order, c)
	if err != nil {
		if errors.Is(err, payment.ErrProviderUnavailable) {
			s.logger.Warn("payment confirmation deferred", zap.String("order_id", orderID), zap.Error(err))
		}
		return &Confirmed{Order: order}, err
	}

	switch outcome {
	case payment.Paid:
		return s.settle(ctx, orderID, model.StatusPaid)
	case payment.NotPaid:
		return s.settle(ctx, orderID, model.StatusFailed)
	case payment.Pending:
		return &Confirmed{Order: order}, ErrPaymentPending
	}
	return nil, fmt.Errorf("unexpected payment outcome %d", outcome)
}

// ConfirmByRef resolves an order from its provider handle and confirms it.
func (s *Service) ConfirmByRef(ctx context.Context, method model.PaymentMethod, ref string) (*Confirmed, error) {
	order, err := s.store.FindOrderByRef(ctx, method, ref)
	if err != nil {
		return nil, err
	}
	return s.ConfirmPayment(ctx, order.ID, payment.Confirmation{Ref: ref})
}

// ask queries the provider. Concurrent polls for the same order share one
// provider round trip; manual confirmations carry credentials and are never
// shared.
func (s *Service) ask(ctx context.Context, provider payment.Provider, order *model.Order, c payment.Confirmation) (payment.Outcome, error) {
	if order.PaymentMethod == model.MethodMpesaManual {
		return provider.Confirm(ctx, order, c)
	}
	v, err, _ := s.polls.Do(order.ID+"|"+c.Ref, func() (any, error) {
		return provider.Confirm(ctx, order, c)
	})
	if err != nil {
		return payment.Pending, err
	}
	return v.(payment.Outcome), nil
}

// settle moves a pending order to status under the order's row lock. Moving
// to paid mints the tickets in the same transaction.
func (s *Service) settle(ctx context.Context, orderID string, status model.PaymentStatus) (*Confirmed, error) {
	var (
		result  Confirmed
		tickets []model.Ticket
		fresh   bool
	)
	err := s.issuer.Retry(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		result = Confirmed{Order: o}
		if o.Terminal() {
			result.AlreadyTerminal = true
			if o.PaymentStatus == model.StatusPaid {
				o.Tickets, err = tx.TicketsByOrder(ctx, o.ID)
			}
			return err
		}
		if err := o.Transition(status); err != nil {
			return err
		}
		if status == model.StatusFailed {
			return tx.UpdateOrder(ctx, o)
		}
		tickets, fresh, err = s.issuer.IssueInTx(ctx, tx, o)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrInventoryExhausted) {
			s.logger.Error("payment confirmed but tier sold out; order left pending",
				zap.String("order_id", orderID), zap.Error(err))
		}
		return nil, err
	}

	if fresh {
		result.Order.Tickets = s.issuer.Deliver(ctx, result.Order, tickets)
	}
	if !result.AlreadyTerminal {
		s.logger.Info("order settled", zap.String("order_id", orderID), zap.String("status", string(status)))
	}
	return &result, nil
}

// CancelPayment fails a pending card order whose buyer left the hosted
// checkout. Settled orders are returned unchanged.
func (s *Service) CancelPayment(ctx context.Context, orderID string) (*Confirmed, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != model.MethodStripeCard {
		return nil, ErrWrongMethod
	}
	return s.settle(ctx, orderID, model.StatusFailed)
}

// SubmitReference records the receipt code a paybill buyer got from M-Pesa.
func (s *Service) SubmitReference(ctx context.Context, orderID, ref string) (*model.Order, error) {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return nil, ErrInvalidReference
	}
	var order *model.Order
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.PaymentMethod != model.MethodMpesaManual {
			return ErrWrongMethod
		}
		if o.Terminal() {
			return model.ErrInvalidTransition
		}
		o.ProviderRef = ref
		order = o
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns an order with its tickets.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Tickets, err = s.store.ListTickets(ctx, orderID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) current(ctx context.Context, order *model.Order) (*Confirmed, error) {
	tickets, err := s.store.ListTickets(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Tickets = tickets
	return &Confirmed{Order: order, AlreadyTerminal: true}, nil
}
