// Package wallet talks to the stablecoin custody and off-ramp provider. It
// converts wallet balance into a single-use virtual card for one purchase,
// and reverses the conversion when a purchase fails after capture.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrInsufficientBalance = errors.New("insufficient wallet balance")

type Balance struct {
	WalletAddress string  `json:"wallet_address"`
	Stablecoin    string  `json:"stablecoin"`
	Amount        float64 `json:"amount"`
}

// VirtualCard is the single-use card minted by the off-ramp. It is passed
// straight into the checkout engine and never persisted.
type VirtualCard struct {
	Number   string `json:"number"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	CVC      string `json:"cvc"`
	Holder   string `json:"holder"`
}

type OffRampRequest struct {
	WalletAddress string  `json:"wallet_address"`
	FiatAmount    float64 `json:"fiat_amount"`
	Currency      string  `json:"currency"`
	Reference     string  `json:"reference"`
}

type OffRampResult struct {
	ProviderTxID     string      `json:"provider_tx_id"`
	StablecoinAmount float64     `json:"stablecoin_amount"`
	Fee              float64     `json:"fee"`
	ExchangeRate     float64     `json:"exchange_rate"`
	Card             VirtualCard `json:"card"`
}

// Provider is the custody/off-ramp surface the purchase pipeline needs.
type Provider interface {
	GetBalance(ctx context.Context, walletAddress string) (*Balance, error)
	OffRamp(ctx context.Context, req OffRampRequest) (*OffRampResult, error)
	Refund(ctx context.Context, providerTxID string) error
}

// HTTPProvider is the production implementation over the provider's REST
// API. Off-ramp and refund retry on transient failures; the Reference field
// makes retried off-ramps idempotent on the provider side.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (p *HTTPProvider) GetBalance(ctx context.Context, walletAddress string) (*Balance, error) {
	return doJSON[Balance](ctx, p, http.MethodGet, "/v1/wallets/"+walletAddress+"/balance", nil)
}

func (p *HTTPProvider) OffRamp(ctx context.Context, req OffRampRequest) (*OffRampResult, error) {
	res, err := doJSON[OffRampResult](ctx, p, http.MethodPost, "/v1/offramps", req)
	if err != nil {
		var httpErr *statusError
		if errors.As(err, &httpErr) && httpErr.code == http.StatusPaymentRequired {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}
	return res, nil
}

func (p *HTTPProvider) Refund(ctx context.Context, providerTxID string) error {
	_, err := doJSON[struct{}](ctx, p, http.MethodPost, "/v1/offramps/"+providerTxID+"/refund", nil)
	return err
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("wallet provider returned %d: %s", e.code, e.body)
}

func doJSON[T any](ctx context.Context, p *HTTPProvider, method, path string, payload any) (*T, error) {
	operation := func() (*T, error) {
		var body *bytes.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			body = bytes.NewReader(raw)
		} else {
			body = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, &statusError{code: resp.StatusCode}
		}
		if resp.StatusCode >= 400 {
			var buf bytes.Buffer
			buf.ReadFrom(resp.Body)
			return nil, backoff.Permanent(&statusError{code: resp.StatusCode, body: buf.String()})
		}

		var out T
		if resp.StatusCode != http.StatusNoContent {
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return nil, backoff.Permanent(fmt.Errorf("decode wallet response: %w", err))
			}
		}
		return &out, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(4),
	)
}
