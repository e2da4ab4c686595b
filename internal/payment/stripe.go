package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"go.uber.org/zap"
)

// StripeCard collects payment through a hosted Stripe Checkout session.
type StripeCard struct {
	baseURL   string
	secretKey string
	currency  string
	returnURL string
	hc        *http.Client
	logger    *zap.Logger
}

// NewStripeCard constructs a StripeCard provider. returnURL is the public
// base URL of this service.
func NewStripeCard(cfg config.StripeConfig, returnURL string, logger *zap.Logger) *StripeCard {
	return &StripeCard{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		currency:  cfg.Currency,
		returnURL: strings.TrimRight(returnURL, "/"),
		hc:        &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

func (s *StripeCard) Method() model.PaymentMethod { return model.MethodStripeCard }

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// Initiate creates a Checkout session. Stripe amounts are in the smallest
// currency unit, so the tier price is multiplied by 100.
func (s *StripeCard) Initiate(ctx context.Context, c Checkout) (Initiation, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("client_reference_id", c.Order.ID)
	form.Set("line_items[0][price_data][currency]", s.currency)
	form.Set("line_items[0][price_data][product_data][name]", fmt.Sprintf("%s - %s Ticket", c.EventName, c.Tier.Name))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(c.Tier.Price*100, 10))
	form.Set("line_items[0][quantity]", strconv.Itoa(c.Order.Quantity))
	form.Set("success_url", fmt.Sprintf("%s/payments/stripe/success/%s?session_id={CHECKOUT_SESSION_ID}", s.returnURL, c.Order.ID))
	form.Set("cancel_url", fmt.Sprintf("%s/payments/stripe/cancel/%s", s.returnURL, c.Order.ID))

	var session stripeSession
	if err := s.do(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()), &session); err != nil {
		return Initiation{}, err
	}
	if session.ID == "" {
		return Initiation{}, fmt.Errorf("stripe session without id: %w", ErrProviderUnavailable)
	}
	return Initiation{Ref: session.ID, RedirectURL: session.URL}, nil
}

// Confirm retrieves the session named by the order's handle. A redirect that
// presents some other session id is refused without asking Stripe.
func (s *StripeCard) Confirm(ctx context.Context, order *model.Order, c Confirmation) (Outcome, error) {
	if order.ProviderRef == "" || (c.Ref != "" && c.Ref != order.ProviderRef) {
		return Pending, ErrHandleMismatch
	}

	var session stripeSession
	if err := s.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(order.ProviderRef), nil, &session); err != nil {
		return Pending, err
	}
	switch {
	case session.PaymentStatus == "paid":
		return Paid, nil
	case session.Status == "open":
		return Pending, nil
	default:
		return NotPaid, nil
	}
}

func (s *StripeCard) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build stripe request: %w", err)
	}
	req.SetBasicAuth(s.secretKey, "")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		s.logger.Error("stripe request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("stripe %s: %v: %w", path, err, ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read stripe response: %v: %w", err, ErrProviderUnavailable)
	}
	if err := statusError("stripe", resp.StatusCode, data); err != nil {
		s.logger.Error("stripe returned an error", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", data))
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode stripe response: %v: %w", err, ErrProviderUnavailable)
	}
	return nil
}

// statusError maps an HTTP status to the provider error taxonomy: 5xx and
// 429 are worth retrying, other 4xx are a refusal.
func statusError(provider string, status int, body []byte) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s returned %d: %w", provider, status, ErrProviderUnavailable)
	default:
		return fmt.Errorf("%s returned %d %s: %w", provider, status, truncate(body, 200), ErrProviderRejected)
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
