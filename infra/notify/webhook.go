// Package notify posts route notifications to an HTTP webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/routecast/auth"
	corenotify "github.com/kilianp07/routecast/core/notify"
)

// Config configures the webhook target.
type Config struct {
	Enabled   bool      `json:"enabled"`
	URL       string    `json:"url"`
	TimeoutMS int       `json:"timeout_ms"`
	Auth      auth.Conf `json:"auth"`
}

func (c *Config) SetDefaults() {
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 10000
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return errors.New("notify.url is required")
	}
	return c.Auth.Validate()
}

// Timeout returns the per-attempt timeout.
func (c Config) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

// Webhook posts notifications as JSON. When client credentials are
// configured every request carries a bearer token.
type Webhook struct {
	url    string
	client *http.Client
	cred   *auth.ClientCred
}

func NewWebhook(cfg Config) *Webhook {
	cfg.SetDefaults()
	w := &Webhook{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
	if cfg.Auth.Enabled() {
		w.cred = auth.NewClientCred(cfg.Auth)
	}
	return w
}

// Notify sends n. A 401 refreshes the token and retries once.
func (w *Webhook) Notify(ctx context.Context, n corenotify.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	status, err := w.post(ctx, n.Type, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && w.cred != nil {
		if _, err := w.cred.ForceRefresh(ctx); err != nil {
			return err
		}
		if status, err = w.post(ctx, n.Type, body); err != nil {
			return err
		}
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("unexpected status code: %d", status)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, eventType string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if w.cred != nil {
		if err := w.cred.SetAuthHeader(req); err != nil {
			return 0, fmt.Errorf("failed to set auth header: %w", err)
		}
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
