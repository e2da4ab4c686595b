package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"go.uber.org/zap"
)

const mpesaTimestampLayout = "20060102150405"

// MpesaPush sends an STK push prompt to the buyer's phone and confirms it
// with the STK query API.
type MpesaPush struct {
	cfg    config.MpesaConfig
	hc     *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewMpesaPush constructs an MpesaPush provider.
func NewMpesaPush(cfg config.MpesaConfig, logger *zap.Logger) *MpesaPush {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MpesaPush{
		cfg:    cfg,
		hc:     &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
}

func (m *MpesaPush) Method() model.PaymentMethod { return model.MethodMpesaPush }

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResultCode   *json.Number `json:"ResultCode"`
	ResultDesc   string       `json:"ResultDesc"`
	ErrorCode    string       `json:"errorCode"`
	ErrorMessage string       `json:"errorMessage"`
}

// errorCode M-Pesa uses while the buyer has not answered the prompt yet.
const stkStillProcessing = "500.001.1001"

func (m *MpesaPush) Initiate(ctx context.Context, c Checkout) (Initiation, error) {
	phone := NormalizePhone(c.Order.Buyer.Phone)
	timestamp := m.now().Format(mpesaTimestampLayout)
	req := stkPushRequest{
		BusinessShortCode: m.cfg.ShortCode,
		Password:          m.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            c.Order.Amount,
		PartyA:            phone,
		PartyB:            m.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       m.cfg.CallbackURL,
		AccountReference:  AccountReference(c.Order.ID),
		TransactionDesc:   "Event Ticket Payment",
	}

	var resp stkPushResponse
	status, err := m.post(ctx, "/mpesa/stkpush/v1/processrequest", req, &resp)
	if err != nil {
		return Initiation{}, err
	}
	if status != http.StatusOK || resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		m.logger.Warn("stk push not accepted",
			zap.String("order_id", c.Order.ID),
			zap.Int("status", status),
			zap.String("response_code", resp.ResponseCode),
			zap.String("error", resp.ErrorMessage))
		if status >= 500 {
			return Initiation{}, fmt.Errorf("stk push returned %d: %w", status, ErrProviderUnavailable)
		}
		return Initiation{}, fmt.Errorf("stk push not accepted: %s%s: %w", resp.ResponseDescription, resp.ErrorMessage, ErrProviderRejected)
	}
	return Initiation{
		Ref:          resp.CheckoutRequestID,
		Instructions: "Check your phone and enter your M-Pesa PIN to complete payment.",
	}, nil
}

// Confirm queries the status of the order's STK push. ResultCode 0 is
// success; any other ResultCode is a final refusal (cancelled, insufficient
// funds, timeout on the handset). A body with no ResultCode means the
// transaction is still being processed or the reply was unusable.
func (m *MpesaPush) Confirm(ctx context.Context, order *model.Order, c Confirmation) (Outcome, error) {
	if order.ProviderRef == "" || (c.Ref != "" && c.Ref != order.ProviderRef) {
		return Pending, ErrHandleMismatch
	}
	timestamp := m.now().Format(mpesaTimestampLayout)
	req := stkQueryRequest{
		BusinessShortCode: m.cfg.ShortCode,
		Password:          m.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: order.ProviderRef,
	}

	var resp stkQueryResponse
	status, err := m.post(ctx, "/mpesa/stkpushquery/v1/query", req, &resp)
	if err != nil {
		return Pending, err
	}
	if resp.ResultCode == nil {
		if resp.ErrorCode == stkStillProcessing {
			return Pending, nil
		}
		return Pending, fmt.Errorf("stk query returned %d without a result code: %w", status, ErrProviderUnavailable)
	}
	if resp.ResultCode.String() == "0" {
		return Paid, nil
	}
	m.logger.Info("stk push not paid",
		zap.String("order_id", order.ID),
		zap.String("result_code", resp.ResultCode.String()),
		zap.String("result_desc", resp.ResultDesc))
	return NotPaid, nil
}

func (m *MpesaPush) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(m.cfg.ShortCode + m.cfg.PassKey + timestamp))
}

// accessToken returns a cached OAuth token, refreshing it a minute before it
// expires.
func (m *MpesaPush) accessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && m.now().Before(m.tokenExpiry) {
		return m.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret)

	resp, err := m.hc.Do(req)
	if err != nil {
		m.logger.Error("mpesa token request failed", zap.Error(err))
		return "", fmt.Errorf("mpesa token: %v: %w", err, ErrProviderUnavailable)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read mpesa token: %v: %w", err, ErrProviderUnavailable)
	}
	if err := statusError("mpesa oauth", resp.StatusCode, data); err != nil {
		return "", err
	}

	var body struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.AccessToken == "" {
		return "", fmt.Errorf("decode mpesa token: %w", ErrProviderUnavailable)
	}
	ttl := time.Hour
	if secs, err := body.ExpiresIn.Int64(); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	m.token = body.AccessToken
	m.tokenExpiry = m.now().Add(ttl - time.Minute)
	return m.token, nil
}

// post sends payload as JSON and decodes the reply into out. Any HTTP status
// is returned to the caller because Daraja reports business errors with
// non-2xx statuses and a JSON body.
func (m *MpesaPush) post(ctx context.Context, path string, payload, out any) (int, error) {
	token, err := m.accessToken(ctx)
	if err != nil {
		return 0, err
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.hc.Do(req)
	if err != nil {
		m.logger.Error("mpesa request failed", zap.String("path", path), zap.Error(err))
		return 0, fmt.Errorf("mpesa %s: %v: %w", path, err, ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read mpesa response: %v: %w", err, ErrProviderUnavailable)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		m.logger.Error("mpesa response unreadable", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", data))
		return resp.StatusCode, fmt.Errorf("decode mpesa response: %v: %w", err, ErrProviderUnavailable)
	}
	return resp.StatusCode, nil
}

// NormalizePhone rewrites local Kenyan numbers (07..., +2547...) into the
// 2547... form Daraja expects.
func NormalizePhone(phone string) string {
	p := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") && len(p) == 10 {
		p = "254" + p[1:]
	}
	return p
}

// CallbackPayload is the body M-Pesa posts to the STK callback URL.
type CallbackPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}
