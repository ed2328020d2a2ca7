package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunAllCollectsAllOutcomes(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.MustRegister("ok", time.Second, func(ctx context.Context) error { return nil })
	registry.MustRegister("fail", time.Second, func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	registry.MustRegister("panic", time.Second, func(ctx context.Context) error {
		panic("boom")
	})

	statuses := registry.RunAll(context.Background())
	require.Len(t, statuses, 3)

	byName := make(map[string]Status)
	for _, st := range statuses {
		byName[st.Name] = st
	}
	require.True(t, byName["ok"].OK)
	require.Empty(t, byName["ok"].Detail)
	require.False(t, byName["fail"].OK)
	require.Equal(t, "connection refused", byName["fail"].Detail)
	require.False(t, byName["panic"].OK)
	require.Contains(t, byName["panic"].Detail, "panic")
}

func TestRunAllSlowProbeDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.MustRegister("slow", 50*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	registry.MustRegister("fast", time.Second, func(ctx context.Context) error { return nil })

	start := time.Now()
	statuses := registry.RunAll(context.Background())
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		if st.Name == "slow" {
			require.False(t, st.OK)
		} else {
			require.True(t, st.OK)
		}
	}
}

func TestRunAllCancelledContextReportsPartialResults(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	block := make(chan struct{})
	defer close(block)
	registry.MustRegister("stuck", time.Minute, func(ctx context.Context) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	statuses := registry.RunAll(ctx)
	require.Len(t, statuses, 1)
	require.False(t, statuses[0].OK)
	require.True(t, statuses[0].Cancelled)
	require.Empty(t, Degraded(statuses))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	require.NoError(t, registry.Register("a", 0, func(ctx context.Context) error { return nil }))
	require.Error(t, registry.Register("a", 0, func(ctx context.Context) error { return nil }))
	require.Error(t, registry.Register("", 0, func(ctx context.Context) error { return nil }))
	require.Error(t, registry.Register("b", 0, nil))
}

func TestDegraded(t *testing.T) {
	t.Parallel()

	statuses := []Status{
		{Name: "a", OK: true},
		{Name: "b", OK: false, Detail: "down"},
		{Name: "c", OK: false, Cancelled: true, Detail: "run cancelled"},
	}
	degraded := Degraded(statuses)
	require.Len(t, degraded, 1)
	require.Equal(t, "b", degraded[0].Name)
}

func TestTruncateCapsLongDetail(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 1000)
	out := Truncate(long)
	require.Less(t, len([]rune(out)), 320)
	require.True(t, strings.HasSuffix(out, "…"))
	require.Equal(t, "short", Truncate("  short  "))
}

func TestHTTPProbe(t *testing.T) {
	t.Parallel()

	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer badSrv.Close()

	require.NoError(t, HTTP(okSrv.URL)(context.Background()))
	err := HTTP(badSrv.URL)(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestTCPProbe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	require.NoError(t, TCP(addr)(context.Background()))
	require.Error(t, TCP("127.0.0.1:1")(context.Background()))
}
