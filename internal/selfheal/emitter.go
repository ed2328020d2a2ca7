package selfheal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Emitter hands a request to the external self-healing handler.
// Fire-and-forget from the dispatcher's point of view.
type Emitter interface {
	Dispatch(ctx context.Context, req Request) error
}

// WebhookEmitter POSTs requests to a configured webhook URL.
type WebhookEmitter struct {
	logger *slog.Logger
	client *http.Client
	url    string
}

// NewWebhookEmitter creates an emitter with a bounded per-call timeout.
func NewWebhookEmitter(log *slog.Logger, url string, timeout time.Duration) *WebhookEmitter {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookEmitter{
		logger: log.With(slog.String("service", "selfheal")),
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Dispatch sends one request as JSON.
func (e *WebhookEmitter) Dispatch(ctx context.Context, req Request) error {
	if e == nil || e.url == "" {
		return fmt.Errorf("selfheal webhook not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal selfheal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dispatch selfheal request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dispatch selfheal request: unexpected status %d", resp.StatusCode)
	}
	e.logger.Info("self-healing request dispatched",
		slog.String("component", req.TargetComponent),
		slog.String("domain", req.Domain),
		slog.String("key", req.RunContext.Key))
	return nil
}
