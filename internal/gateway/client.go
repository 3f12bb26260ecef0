// Package gateway talks to the external payment provider. The provider
// issues a hosted checkout (token + redirect URL) for a new order and is
// the source of truth for a transaction's payment status: webhook payloads
// are never trusted directly, the reconciler re-queries here instead.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avelio/flightdesk/config"
)

type Client interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	GetTransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error)
}

type CheckoutRequest struct {
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"gross_amount"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

type Checkout struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type TransactionStatus struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentMethod     string `json:"payment_type"`
}

// Error carries the provider's own status code and message so the webhook
// endpoint can relay them upstream unchanged.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %d %s", e.StatusCode, e.Message)
}

type HTTPClient struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

func NewHTTPClient(cfg config.GatewayConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:   cfg.BaseURL,
		serverKey: cfg.ServerKey,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	var checkout Checkout
	if err := c.do(httpReq, &checkout); err != nil {
		return nil, err
	}
	return &checkout, nil
}

func (c *HTTPClient) GetTransactionStatus(ctx context.Context, orderID string) (*TransactionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transactions/"+orderID+"/status", nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.serverKey, "")

	var status TransactionStatus
	if err := c.do(httpReq, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Message == "" {
			body.Message = resp.Status
		}
		return &Error{StatusCode: resp.StatusCode, Message: body.Message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
