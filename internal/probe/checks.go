package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/sentinelhq/sentinel/internal/config"
)

// HTTP probes a URL and requires a 2xx response.
func HTTP(url string) Func {
	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil
	}
}

// TCP probes a host:port by dialing.
func TCP(addr string) Func {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// Redis probes a redis instance with PING. The client connects lazily, so
// constructing it at registration time is cheap.
func Redis(addr string) Func {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// Postgres probes a database by connecting and pinging. A fresh short-lived
// connection keeps the probe independent of the app pool's health.
func Postgres(dsn string) Func {
	return func(ctx context.Context) error {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)
		return conn.Ping(ctx)
	}
}

// BuildRegistry constructs a registry from probe declarations.
func BuildRegistry(probes []config.ProbeConfig) (*Registry, error) {
	registry := NewRegistry()
	for _, pc := range probes {
		var fn Func
		switch pc.Type {
		case "http":
			fn = HTTP(pc.Target)
		case "tcp":
			fn = TCP(pc.Target)
		case "redis":
			fn = Redis(pc.Target)
		case "postgres":
			fn = Postgres(pc.Target)
		default:
			return nil, fmt.Errorf("unknown probe type: %s", pc.Type)
		}
		timeout := time.Duration(pc.TimeoutMs) * time.Millisecond
		if err := registry.Register(pc.Name, timeout, fn); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
