package model

import (
	"encoding/json"
	"fmt"
)

// PaymentMethod is the closed set of ways an order can be paid.
type PaymentMethod int

const (
	MethodUnknown PaymentMethod = iota
	MethodStripeCard
	MethodMpesaPush
	MethodMpesaManual
)

var paymentMethodNames = map[PaymentMethod]string{
	MethodStripeCard:  "stripe_card",
	MethodMpesaPush:   "mpesa_push",
	MethodMpesaManual: "mpesa_manual",
}

func (m PaymentMethod) String() string {
	if s, ok := paymentMethodNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParsePaymentMethod accepts the canonical names plus the short forms
// "card" and "mpesa" used by older checkout forms.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch s {
	case "stripe_card", "card":
		return MethodStripeCard, nil
	case "mpesa_push", "mpesa":
		return MethodMpesaPush, nil
	case "mpesa_manual", "paybill":
		return MethodMpesaManual, nil
	}
	return MethodUnknown, fmt.Errorf("unknown payment method %q", s)
}

func (m PaymentMethod) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *PaymentMethod) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePaymentMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PaymentStatus is the order state: pending, then exactly one of paid or failed.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusFailed  PaymentStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// TicketStatus tracks gate redemption.
type TicketStatus string

const (
	TicketValid TicketStatus = "valid"
	TicketUsed  TicketStatus = "used"
)
