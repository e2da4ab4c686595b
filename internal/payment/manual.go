package payment

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
)

// MpesaManual is the paybill flow: the buyer pays out of band, submits the
// receipt code, and an administrator confirms it.
type MpesaManual struct {
	paybill string
	token   string
}

// NewMpesaManual constructs an MpesaManual provider.
func NewMpesaManual(cfg config.ManualConfig) *MpesaManual {
	return &MpesaManual{paybill: cfg.Paybill, token: cfg.ConfirmToken}
}

func (m *MpesaManual) Method() model.PaymentMethod { return model.MethodMpesaManual }

// Initiate makes no external call.
func (m *MpesaManual) Initiate(_ context.Context, c Checkout) (Initiation, error) {
	return Initiation{
		Instructions: fmt.Sprintf(
			"Pay KES %d to paybill %s, account %s, then submit the M-Pesa confirmation code.",
			c.Order.Amount, m.paybill, AccountReference(c.Order.ID)),
	}, nil
}

// Confirm trusts the administrator's decision once the token matches. An
// unset token locks the trigger entirely.
func (m *MpesaManual) Confirm(_ context.Context, _ *model.Order, c Confirmation) (Outcome, error) {
	if err := m.Authorize(c); err != nil {
		return Pending, err
	}
	if c.Reject {
		return NotPaid, nil
	}
	return Paid, nil
}

// Authorize rejects confirmations without the configured token.
func (m *MpesaManual) Authorize(c Confirmation) error {
	if !Authorized(m.token, c.Token) {
		return model.ErrForbidden
	}
	return nil
}

// Authorized compares a presented token with the expected one in constant
// time. An empty expected token never authorises.
func Authorized(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
