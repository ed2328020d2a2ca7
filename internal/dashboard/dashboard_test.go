package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelhq/sentinel/internal/probe"
)

func TestPushStatus(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []statusPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/status", r.URL.Path)
		var p statusPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewHTTPSink(nil, srv.URL, time.Second)
	require.NoError(t, sink.PushStatus(context.Background(), "Gateway", StatusDown, "timeout"))
	require.Len(t, got, 1)
	require.Equal(t, "Gateway", got[0].Component)
	require.Equal(t, StatusDown, got[0].Status)
}

func TestPushStatusServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(nil, srv.URL, time.Second)
	require.Error(t, sink.PushStatus(context.Background(), "Gateway", StatusHealthy, ""))
}

type flakySink struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (s *flakySink) PushStatus(_ context.Context, component, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if component == s.failOn {
		return context.DeadlineExceeded
	}
	return nil
}

func TestPushAllCollectsFailuresWithoutAborting(t *testing.T) {
	t.Parallel()

	sink := &flakySink{failOn: "Redis"}
	statuses := []probe.Status{
		{Name: "Gateway", OK: true},
		{Name: "Redis", OK: false, Detail: "down"},
		{Name: "Worker", OK: true},
		{Name: "Stuck", OK: false, Cancelled: true, Detail: "run cancelled"},
	}
	failed := PushAll(context.Background(), nil, sink, statuses)
	require.Equal(t, 1, failed)
	// Cancelled entries carry no known status and are never pushed.
	require.Equal(t, 3, sink.calls)
}

func TestPushAllNilSinkIsNoop(t *testing.T) {
	t.Parallel()

	require.Zero(t, PushAll(context.Background(), nil, nil, []probe.Status{{Name: "a"}}))
}
