// Outbound CryptoBot API client.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/juicyfox/juicybot/internal/config"
)

// authHeader carries the provider API token.
const authHeader = "Crypto-Pay-API-Token"

// Invoice is a freshly created provider invoice.
type Invoice struct {
	InvoiceID string
	PayURL    string
}

// ExchangeRate is one source→target quote from the provider.
type ExchangeRate struct {
	Source string          `json:"source"`
	Target string          `json:"target"`
	Rate   decimal.Decimal `json:"rate"`
	Valid  bool            `json:"is_valid"`
}

// Client calls the CryptoBot HTTP API. Safe for concurrent use.
type Client struct {
	api   string
	token string
	http  *http.Client
	log   zerolog.Logger
}

// NewClient builds a provider client with the configured per-request timeout.
func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		api:   cfg.CryptoBotAPI,
		token: cfg.CryptoBotToken,
		http:  &http.Client{Timeout: cfg.HTTPTimeout},
		log:   log,
	}
}

type createInvoiceRequest struct {
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	Payload     string `json:"payload,omitempty"`
}

type createInvoiceResult struct {
	InvoiceID json.Number `json:"invoice_id"`
	PayURL    string      `json:"pay_url"`
}

type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

// CreateInvoice issues a new invoice in the given asset. payload is the meta
// object echoed back in webhooks; it is JSON-encoded into the invoice payload
// string.
func (c *Client) CreateInvoice(ctx context.Context, asset string, amount decimal.Decimal, description string, payload map[string]any) (*Invoice, error) {
	metaJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode invoice payload: %w", err)
	}
	req := createInvoiceRequest{
		Asset:       asset,
		Amount:      amount.String(),
		Description: description,
		Payload:     string(metaJSON),
	}

	var res createInvoiceResult
	if err := c.post(ctx, "/createInvoice", req, &res); err != nil {
		return nil, err
	}
	if res.InvoiceID.String() == "" || res.PayURL == "" {
		return nil, fmt.Errorf("createInvoice: incomplete result")
	}
	return &Invoice{InvoiceID: res.InvoiceID.String(), PayURL: res.PayURL}, nil
}

// GetExchangeRates fetches the current provider quotes.
func (c *Client) GetExchangeRates(ctx context.Context) ([]ExchangeRate, error) {
	var rates []ExchangeRate
	if err := c.get(ctx, "/getExchangeRates", &rates); err != nil {
		return nil, err
	}
	return rates, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set(authHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode provider response (%d): %w", resp.StatusCode, err)
	}
	if !env.OK {
		if env.Error != nil {
			return fmt.Errorf("provider error %d %s", env.Error.Code, env.Error.Name)
		}
		return fmt.Errorf("provider error: status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode provider result: %w", err)
		}
	}
	return nil
}
