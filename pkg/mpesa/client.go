package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hiddengems/hiddengems-backend/pkg/config"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
)

const (
	tokenPath           = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath         = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath        = "/mpesa/stkpushquery/v1/query"
	transactionType     = "CustomerPayBillOnline"
	timestampLayout     = "20060102150405"
	tokenRefreshLeeway  = time.Minute
	responseBodyLimit   = 1 << 16
	errorBodyReadLimit  = 1024
	defaultHTTPTimeout  = 30 * time.Second
	accountReferenceMax = 12
	transactionDescMax  = 13
)

// Daraja timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

var (
	errConsumerKeyRequired = errors.New("mpesa consumer key and secret are required")
	errShortCodeRequired   = errors.New("mpesa shortcode and passkey are required")
)

// Gateway is the payment surface the orchestrator depends on.
type Gateway interface {
	STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
	STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error)
}

// Client talks to the Safaricom Daraja API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passKey        string
	callbackURL    string
	now            func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Daraja host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithClock overrides time.Now, used for password timestamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a Daraja client from config.
func NewClient(cfg config.MpesaConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ConsumerKey) == "" || strings.TrimSpace(cfg.ConsumerSecret) == "" {
		return nil, errConsumerKeyRequired
	}
	if strings.TrimSpace(cfg.ShortCode) == "" || strings.TrimSpace(cfg.PassKey) == "" {
		return nil, errShortCodeRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        cfg.BaseURL(),
		consumerKey:    strings.TrimSpace(cfg.ConsumerKey),
		consumerSecret: strings.TrimSpace(cfg.ConsumerSecret),
		shortCode:      strings.TrimSpace(cfg.ShortCode),
		passKey:        strings.TrimSpace(cfg.PassKey),
		callbackURL:    strings.TrimSpace(cfg.CallbackURL),
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// STKPushRequest is the charge the orchestrator asks the customer to approve.
type STKPushRequest struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

// STKPushResponse mirrors the fields Daraja returns on an accepted push.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKQueryResponse carries the transaction result for a checkout request.
type STKQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// Code parses ResultCode; ok is false while Daraja has no result yet.
func (r STKQueryResponse) Code() (int, bool) {
	trimmed := strings.TrimSpace(r.ResultCode)
	if trimmed == "" {
		return 0, false
	}
	code, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return code, true
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// STKPush asks Daraja to prompt the customer's handset for the amount.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "mpesa client not configured")
	}
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid phone number")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	timestamp := c.now().In(eat).Format(timestampLayout)
	body := map[string]any{
		"BusinessShortCode": c.shortCode,
		"Password":          Password(c.shortCode, c.passKey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   transactionType,
		"Amount":            req.Amount.Ceil().IntPart(),
		"PartyA":            phone,
		"PartyB":            c.shortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.callbackURL,
		"AccountReference":  truncate(req.AccountReference, accountReferenceMax),
		"TransactionDesc":   truncate(req.Description, transactionDescMax),
	}

	var out STKPushResponse
	if err := c.post(ctx, stkPushPath, body, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, fmt.Errorf("response code %q: %s", out.ResponseCode, out.ResponseDescription), "stk push rejected")
	}
	return &out, nil
}

// STKQuery fetches the current result of a checkout request.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "mpesa client not configured")
	}
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout request id is required")
	}
	timestamp := c.now().In(eat).Format(timestampLayout)
	body := map[string]any{
		"BusinessShortCode": c.shortCode,
		"Password":          Password(c.shortCode, c.passKey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}
	var out STKQueryResponse
	if err := c.post(ctx, stkQueryPath, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal mpesa request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mpesa request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "execute mpesa request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "read mpesa response")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, statusError(resp.StatusCode, raw), "mpesa request failed")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode mpesa response")
	}
	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mpesa token request")
	}
	httpReq.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "execute mpesa token request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if resp.StatusCode != http.StatusOK {
		return "", pkgerrors.Wrap(pkgerrors.CodeUpstream, statusError(resp.StatusCode, raw), "mpesa token request failed")
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode mpesa token")
	}
	if tokenResp.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeUpstream, "mpesa token missing from response")
	}
	ttl := 3599 * time.Second
	if secs, err := strconv.Atoi(strings.TrimSpace(tokenResp.ExpiresIn)); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	if ttl > tokenRefreshLeeway {
		ttl -= tokenRefreshLeeway
	}
	c.token = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(ttl)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func statusError(status int, raw []byte) error {
	var derr darajaError
	if err := json.Unmarshal(raw, &derr); err == nil && derr.ErrorMessage != "" {
		return fmt.Errorf("status %d: %s (%s)", status, derr.ErrorMessage, derr.ErrorCode)
	}
	body := raw
	if len(body) > errorBodyReadLimit {
		body = body[:errorBodyReadLimit]
	}
	return fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[:max]
}
