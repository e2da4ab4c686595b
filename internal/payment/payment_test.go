package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testCheckout(method model.PaymentMethod) Checkout {
	return Checkout{
		Order: &model.Order{
			ID:            "6f1c2a4e-0000-4000-8000-000000000001",
			Buyer:         model.Buyer{Name: "Amina", Email: "amina@example.com", Phone: "0712345678"},
			Quantity:      2,
			Amount:        3000,
			PaymentMethod: method,
			PaymentStatus: model.StatusPending,
		},
		Tier:      &model.TicketTier{ID: "vip", Name: "VIP", Price: 1500},
		EventName: "Pool Party",
	}
}

func TestProvidersFor(t *testing.T) {
	manual := NewMpesaManual(config.ManualConfig{})
	p := Providers{Manual: manual}

	got, err := p.For(model.MethodMpesaManual)
	require.NoError(t, err)
	assert.Equal(t, model.MethodMpesaManual, got.Method())

	_, err = p.For(model.MethodStripeCard)
	assert.ErrorIs(t, err, ErrProviderRejected)

	_, err = p.For(model.MethodUnknown)
	assert.ErrorIs(t, err, ErrProviderRejected)
}

func TestAccountReference(t *testing.T) {
	assert.Equal(t, "ORDER6F1C2A4", AccountReference("6f1c2a4e-0000-4000-8000-000000000001"))
	assert.Equal(t, "ORDERAB", AccountReference("ab"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "254712345678", NormalizePhone("0712345678"))
	assert.Equal(t, "254712345678", NormalizePhone("+254 712 345 678"))
	assert.Equal(t, "254712345678", NormalizePhone("254712345678"))
}

// --- Stripe ---

func newStripeServer(t *testing.T, handler http.HandlerFunc) *StripeCard {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStripeCard(config.StripeConfig{
		BaseURL:   srv.URL,
		SecretKey: "sk_test",
		Currency:  "kes",
		Timeout:   time.Second,
	}, "https://tickets.example.com", zap.NewNop())
}

func TestStripeInitiate(t *testing.T) {
	s := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "150000", r.Form.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "2", r.Form.Get("line_items[0][quantity]"))
		assert.Equal(t, "Pool Party - VIP Ticket", r.Form.Get("line_items[0][price_data][product_data][name]"))
		assert.Contains(t, r.Form.Get("success_url"), "/payments/stripe/success/6f1c2a4e-0000-4000-8000-000000000001?session_id={CHECKOUT_SESSION_ID}")

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "cs_test_1", "url": "https://checkout.stripe.com/c/cs_test_1"})
	})

	started, err := s.Initiate(context.Background(), testCheckout(model.MethodStripeCard))
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", started.Ref)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", started.RedirectURL)
}

func TestStripeInitiateErrors(t *testing.T) {
	rejected := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid currency"}}`))
	})
	_, err := rejected.Initiate(context.Background(), testCheckout(model.MethodStripeCard))
	assert.ErrorIs(t, err, ErrProviderRejected)

	down := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err = down.Initiate(context.Background(), testCheckout(model.MethodStripeCard))
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	garbled := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	_, err = garbled.Initiate(context.Background(), testCheckout(model.MethodStripeCard))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestStripeConfirm(t *testing.T) {
	cases := []struct {
		name    string
		session map[string]string
		want    Outcome
	}{
		{"paid", map[string]string{"id": "cs_1", "status": "complete", "payment_status": "paid"}, Paid},
		{"open", map[string]string{"id": "cs_1", "status": "open", "payment_status": "unpaid"}, Pending},
		{"expired", map[string]string{"id": "cs_1", "status": "expired", "payment_status": "unpaid"}, NotPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
				_ = json.NewEncoder(w).Encode(tc.session)
			})
			order := &model.Order{ID: "o1", ProviderRef: "cs_1"}
			got, err := s.Confirm(context.Background(), order, Confirmation{Ref: "cs_1"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStripeConfirmHandleMismatch(t *testing.T) {
	var calls atomic.Int32
	s := newStripeServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	order := &model.Order{ID: "o1", ProviderRef: "cs_1"}
	_, err := s.Confirm(context.Background(), order, Confirmation{Ref: "cs_other"})
	assert.ErrorIs(t, err, ErrHandleMismatch)
	assert.Zero(t, calls.Load())
}

func TestStripeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	s := NewStripeCard(config.StripeConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, "", zap.NewNop())

	_, err := s.Confirm(context.Background(), &model.Order{ProviderRef: "cs_1"}, Confirmation{})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

// --- M-Pesa ---

type fakeDaraja struct {
	tokenCalls atomic.Int32
	push       func(w http.ResponseWriter, req stkPushRequest)
	query      func(w http.ResponseWriter, req stkQueryRequest)
}

func (f *fakeDaraja) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/oauth/v1/generate":
		f.tokenCalls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	case "/mpesa/stkpush/v1/processrequest":
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req stkPushRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.push(w, req)
	case "/mpesa/stkpushquery/v1/query":
		var req stkQueryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.query(w, req)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newMpesa(t *testing.T, f *fakeDaraja) *MpesaPush {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	m := NewMpesaPush(config.MpesaConfig{
		BaseURL:     srv.URL,
		ShortCode:   "522533",
		PassKey:     "pass",
		CallbackURL: "https://tickets.example.com/payments/mpesa/callback",
		Timeout:     time.Second,
	}, zap.NewNop())
	m.now = func() time.Time { return time.Date(2025, 12, 6, 15, 0, 0, 0, time.UTC) }
	return m
}

func TestMpesaInitiate(t *testing.T) {
	f := &fakeDaraja{
		push: func(w http.ResponseWriter, req stkPushRequest) {
			assert.Equal(t, "254712345678", req.PhoneNumber)
			assert.Equal(t, int64(3000), req.Amount)
			assert.Equal(t, "20251206150000", req.Timestamp)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("522533pass20251206150000")), req.Password)
			assert.Equal(t, "ORDER6F1C2A4", req.AccountReference)
			_, _ = w.Write([]byte(`{"CheckoutRequestID":"ws_CO_1","ResponseCode":"0"}`))
		},
	}
	m := newMpesa(t, f)

	started, err := m.Initiate(context.Background(), testCheckout(model.MethodMpesaPush))
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", started.Ref)

	// the token is cached across calls
	_, err = m.Initiate(context.Background(), testCheckout(model.MethodMpesaPush))
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestMpesaInitiateRejected(t *testing.T) {
	f := &fakeDaraja{
		push: func(w http.ResponseWriter, req stkPushRequest) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`))
		},
	}
	_, err := newMpesa(t, f).Initiate(context.Background(), testCheckout(model.MethodMpesaPush))
	assert.ErrorIs(t, err, ErrProviderRejected)
}

func TestMpesaConfirm(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		want    Outcome
		wantErr error
	}{
		{"paid", 200, `{"ResultCode":"0","ResultDesc":"The service request is processed successfully."}`, Paid, nil},
		{"cancelled", 200, `{"ResultCode":"1032","ResultDesc":"Request cancelled by user"}`, NotPaid, nil},
		{"processing", 500, `{"errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`, Pending, nil},
		{"malformed", 200, `not json`, Pending, ErrProviderUnavailable},
		{"empty", 200, `{}`, Pending, ErrProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeDaraja{
				query: func(w http.ResponseWriter, req stkQueryRequest) {
					assert.Equal(t, "ws_CO_1", req.CheckoutRequestID)
					w.WriteHeader(tc.status)
					_, _ = w.Write([]byte(tc.body))
				},
			}
			got, err := newMpesa(t, f).Confirm(context.Background(), &model.Order{ID: "o1", ProviderRef: "ws_CO_1"}, Confirmation{})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

// --- Manual ---

func TestManualInitiate(t *testing.T) {
	m := NewMpesaManual(config.ManualConfig{Paybill: "522533", ConfirmToken: "s3cret"})
	started, err := m.Initiate(context.Background(), testCheckout(model.MethodMpesaManual))
	require.NoError(t, err)
	assert.Empty(t, started.Ref)
	assert.Contains(t, started.Instructions, "paybill 522533")
	assert.Contains(t, started.Instructions, "ORDER6F1C2A4")
}

func TestManualConfirm(t *testing.T) {
	m := NewMpesaManual(config.ManualConfig{ConfirmToken: "s3cret"})
	order := &model.Order{ID: "o1"}

	_, err := m.Confirm(context.Background(), order, Confirmation{})
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = m.Confirm(context.Background(), order, Confirmation{Token: "wrong"})
	assert.ErrorIs(t, err, model.ErrForbidden)

	got, err := m.Confirm(context.Background(), order, Confirmation{Token: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, Paid, got)

	got, err = m.Confirm(context.Background(), order, Confirmation{Token: "s3cret", Reject: true})
	require.NoError(t, err)
	assert.Equal(t, NotPaid, got)
}

func TestAuthorizedRequiresConfiguredToken(t *testing.T) {
	assert.False(t, Authorized("", ""))
	assert.False(t, Authorized("", "anything"))
	assert.True(t, Authorized("abc", "abc"))
}
