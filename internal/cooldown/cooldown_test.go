package cooldown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClaimSingleWinnerUnderConcurrency(t *testing.T) {
	t.Parallel()

	gate := NewGate(nil, NewMemoryStore())
	const claimers = 16

	var wg sync.WaitGroup
	wins := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- gate.Claim(context.Background(), "alert:redis-down", time.Minute)
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	require.Equal(t, 1, won)
}

func TestClaimAgainAfterRelease(t *testing.T) {
	t.Parallel()

	gate := NewGate(nil, NewMemoryStore())
	ctx := context.Background()

	require.True(t, gate.Claim(ctx, "alert:gw-down", time.Minute))
	require.False(t, gate.Claim(ctx, "alert:gw-down", time.Minute))

	gate.Release(ctx, "alert:gw-down")
	require.True(t, gate.Claim(ctx, "alert:gw-down", time.Minute))
}

func TestClaimAfterNaturalExpiry(t *testing.T) {
	t.Parallel()

	gate := NewGate(nil, NewMemoryStore())
	ctx := context.Background()

	require.True(t, gate.Claim(ctx, "alert:drift", 10*time.Millisecond))
	require.False(t, gate.Claim(ctx, "alert:drift", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)
	require.True(t, gate.Claim(ctx, "alert:drift", 10*time.Millisecond))
}

type brokenStore struct{}

func (brokenStore) SetNX(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (brokenStore) Del(context.Context, string) error {
	return errors.New("connection refused")
}

func TestClaimFailsOpenWhenStoreUnreachable(t *testing.T) {
	t.Parallel()

	gate := NewGate(nil, brokenStore{})
	require.True(t, gate.Claim(context.Background(), "alert:any", time.Minute))
	// Release on a broken store must not panic.
	gate.Release(context.Background(), "alert:any")
}

func TestNilGateIsPermissive(t *testing.T) {
	t.Parallel()

	var gate *Gate
	require.True(t, gate.Claim(context.Background(), "k", time.Minute))
	gate.Release(context.Background(), "k")
}
