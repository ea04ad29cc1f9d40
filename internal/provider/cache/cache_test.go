package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/provider"
	"github.com/KerimSelki/crypto-vault/internal/provider/cache"
)

type stub struct {
	mu    sync.Mutex
	calls [][]asset.ID
	err   error
}

func (s *stub) Name() string        { return "stub" }
func (s *stub) Tier() provider.Tier { return provider.TierAggregator }

func (s *stub) Fetch(_ context.Context, ids []asset.ID) (provider.PriceMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]asset.ID(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	out := provider.PriceMap{}
	for _, id := range ids {
		if id == "unknown" {
			continue
		}
		out[id] = provider.PriceRecord{Price: float64(len(s.calls)), Source: "stub"}
	}
	return out, nil
}

func TestFetch_RequestsOnlyMissing(t *testing.T) {
	t.Parallel()

	// Arrange
	clock := clockwork.NewFakeClock()
	s := &stub{}
	c := &cache.Provider{P: s, TTL: time.Minute, Clock: clock}

	// Act
	_, err := c.Fetch(t.Context(), []asset.ID{"bitcoin"})
	require.NoError(t, err)
	got, err := c.Fetch(t.Context(), []asset.ID{"bitcoin", "ethereum", "bitcoin"})

	// Assert
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1.0, got["bitcoin"].Price)
	require.Equal(t, 2.0, got["ethereum"].Price)
	require.Equal(t, []asset.ID{"ethereum"}, s.calls[1])
	require.Equal(t, provider.TierAggregator, c.Tier())
}

func TestFetch_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := &stub{}
	c := &cache.Provider{P: s, TTL: time.Minute, Clock: clock}

	_, err := c.Fetch(t.Context(), []asset.ID{"bitcoin"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	got, err := c.Fetch(t.Context(), []asset.ID{"bitcoin"})

	require.NoError(t, err)
	require.Equal(t, 2.0, got["bitcoin"].Price)
	require.Len(t, s.calls, 2)
}

func TestFetch_ServesCachedOnError(t *testing.T) {
	t.Parallel()

	s := &stub{}
	c := &cache.Provider{P: s, TTL: time.Minute}
	_, err := c.Fetch(t.Context(), []asset.ID{"bitcoin"})
	require.NoError(t, err)

	s.err = errors.New("boom")
	got, err := c.Fetch(t.Context(), []asset.ID{"bitcoin", "ethereum"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = c.Fetch(t.Context(), []asset.ID{"solana"})
	require.Error(t, err)
}

func TestFetch_CapsItems(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := &stub{}
	c := &cache.Provider{P: s, TTL: time.Minute, MaxItems: 2, Clock: clock}

	_, err := c.Fetch(t.Context(), []asset.ID{"a"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = c.Fetch(t.Context(), []asset.ID{"b", "c"})
	require.NoError(t, err)

	// "a" expires first and was evicted
	_, err = c.Fetch(t.Context(), []asset.ID{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []asset.ID{"a"}, s.calls[2])
}
