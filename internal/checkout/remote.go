package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clawcart/clawcart/internal/models"
)

// RemoteDriver drives a headless browser through the automation sidecar's
// REST API. One driver owns one browser session; Close releases it. Actions
// are not retried here, a replayed click is not idempotent.
type RemoteDriver struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

// OpenRemoteDriver allocates a fresh browser session on the sidecar.
func OpenRemoteDriver(ctx context.Context, baseURL string, timeout time.Duration) (*RemoteDriver, error) {
	d := &RemoteDriver{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := d.do(ctx, http.MethodPost, "/v1/sessions", nil, &created); err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	if created.SessionID == "" {
		return nil, fmt.Errorf("browser sidecar returned empty session id")
	}
	d.sessionID = created.SessionID
	return d, nil
}

func (d *RemoteDriver) Navigate(ctx context.Context, url string) (PageState, error) {
	var page PageState
	err := d.do(ctx, http.MethodPost, d.path("/navigate"), map[string]string{"url": url}, &page)
	return page, err
}

func (d *RemoteDriver) Perform(ctx context.Context, action models.StepAction) (PageState, error) {
	var page PageState
	err := d.do(ctx, http.MethodPost, d.path("/actions"), action, &page)
	return page, err
}

func (d *RemoteDriver) State(ctx context.Context) (PageState, error) {
	var page PageState
	err := d.do(ctx, http.MethodGet, d.path("/page"), nil, &page)
	return page, err
}

func (d *RemoteDriver) Close(ctx context.Context) error {
	return d.do(ctx, http.MethodDelete, d.path(""), nil, nil)
}

func (d *RemoteDriver) path(suffix string) string {
	return "/v1/sessions/" + d.sessionID + suffix
}

func (d *RemoteDriver) do(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return fmt.Errorf("browser sidecar returned %d: %s", resp.StatusCode, buf.String())
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode sidecar response: %w", err)
		}
	}
	return nil
}
