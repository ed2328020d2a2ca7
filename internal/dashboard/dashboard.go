package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sentinelhq/sentinel/internal/probe"
)

// Component status values understood by the dashboard.
const (
	StatusHealthy = "healthy"
	StatusDown    = "down"
)

// Sink pushes per-component status to an external dashboard.
type Sink interface {
	PushStatus(ctx context.Context, component, status, detail string) error
}

// HTTPSink POSTs status updates to a dashboard endpoint. Best-effort: a
// failed push must never abort the monitoring run.
type HTTPSink struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTPSink creates a sink. timeout bounds each push.
func NewHTTPSink(log *slog.Logger, baseURL string, timeout time.Duration) *HTTPSink {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSink{
		logger:  log.With(slog.String("service", "dashboard")),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type statusPayload struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// PushStatus sends one component update.
func (s *HTTPSink) PushStatus(ctx context.Context, component, status, detail string) error {
	if s == nil || s.baseURL == "" {
		return fmt.Errorf("dashboard sink not configured")
	}
	body, err := json.Marshal(statusPayload{Component: component, Status: status, Detail: detail})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/status", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push status: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// PushAll pushes every service status concurrently and collects failures
// instead of aborting; the caller only gets a summary error count to log.
func PushAll(ctx context.Context, log *slog.Logger, sink Sink, statuses []probe.Status) int {
	if sink == nil || len(statuses) == 0 {
		return 0
	}
	if log == nil {
		log = slog.Default()
	}
	var wg sync.WaitGroup
	failures := make(chan error, len(statuses))
	for _, st := range statuses {
		// A cancelled probe has no known status; pushing "down" would lie.
		if st.Cancelled {
			continue
		}
		wg.Add(1)
		go func(st probe.Status) {
			defer wg.Done()
			status := StatusHealthy
			if !st.OK {
				status = StatusDown
			}
			if err := sink.PushStatus(ctx, st.Name, status, st.Detail); err != nil {
				failures <- fmt.Errorf("%s: %w", st.Name, err)
			}
		}(st)
	}
	wg.Wait()
	close(failures)
	failed := 0
	for err := range failures {
		failed++
		log.Warn("dashboard push failed", slog.Any("error", err))
	}
	return failed
}
