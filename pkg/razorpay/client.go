package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/planmint/planmint-backend/pkg/config"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultBaseURL = "https://api.razorpay.com"
	requestTimeout = 15 * time.Second
)

var (
	errKeyIDRequired     = errors.New("razorpay key id is required")
	errKeySecretRequired = errors.New("razorpay key secret is required")
	errInvalidEnv        = fmt.Errorf("razorpay environment must be %q or %q", testEnv, liveEnv)
	errLoggerRequired    = errors.New("razorpay logger is required")
)

// Client wraps Razorpay's Orders REST API with centralized auth, logging,
// signature verification, and error mapping.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	environment   string
	logger        *logger.Logger
}

// NewClient validates the configured credentials and builds the wrapper.
// The webhook secret may be empty; webhook verification then refuses requests.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: requestTimeout},
		baseURL:       defaultBaseURL,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		environment:   env,
		logger:        logg,
	}

	logg.Info(ctx, fmt.Sprintf("razorpay client initialized (%s)", env))
	return c, nil
}

// KeyID returns the public key id handed to checkout clients.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// Environment reports the normalized Razorpay environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// WebhookSecret returns the configured webhook signing secret.
func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// Order is the subset of Razorpay's order resource the backend consumes.
type Order struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

// OrderCreateParams describes an order to open with Razorpay. Amount is in
// the currency's minor unit (paise for INR).
type OrderCreateParams struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder opens an order with Razorpay so the client can launch checkout.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*Order, error) {
	c.log(ctx, "request", "create_order", map[string]any{
		"amount":   params.Amount,
		"currency": params.Currency,
		"receipt":  params.Receipt,
	})

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v1/orders", params, &order); err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_order", map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
	})
	return &order, nil
}

// FetchOrder retrieves the provider's view of an order.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	c.log(ctx, "request", "fetch_order", map[string]any{"order_id": orderID})

	var order Order
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &order); err != nil {
		c.log(ctx, "error", "fetch_order", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "fetch_order", map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
	})
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode razorpay request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build razorpay request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "razorpay request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read razorpay response")
	}

	if resp.StatusCode >= 400 {
		return c.mapAPIError(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode razorpay response")
		}
	}
	return nil
}

func (c *Client) mapAPIError(status int, raw []byte) error {
	var payload struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	desc := "razorpay request rejected"
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Description != "" {
		desc = payload.Error.Description
	}

	err := fmt.Errorf("razorpay: %s (status %d)", desc, status)
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, desc)
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, desc)
	case status >= 400 && status < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, desc)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, desc)
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("razorpay %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("razorpay %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"secret", "signature", "token", "email", "contact"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func normalizeEnv(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case testEnv, "":
		return testEnv, nil
	case liveEnv:
		return liveEnv, nil
	default:
		return "", errInvalidEnv
	}
}
