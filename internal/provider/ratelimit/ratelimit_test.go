package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/provider"
	"github.com/KerimSelki/crypto-vault/internal/provider/ratelimit"
)

type stub struct{ calls int }

func (s *stub) Name() string        { return "stub" }
func (s *stub) Tier() provider.Tier { return provider.TierMarket }
func (s *stub) Fetch(context.Context, []asset.ID) (provider.PriceMap, error) {
	s.calls++
	return provider.PriceMap{"AAPL": {Price: 1}}, nil
}

func TestLimiter_PassesThrough(t *testing.T) {
	t.Parallel()

	s := &stub{}
	p := ratelimit.Wrap(s, 600, 5, 0)

	got, err := p.Fetch(t.Context(), []asset.ID{"AAPL"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "stub", p.Name())
	require.Equal(t, provider.TierMarket, p.Tier())
}

func TestLimiter_CanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	s := &stub{}
	p := ratelimit.Wrap(s, 0, 0, time.Hour)

	_, err := p.Fetch(t.Context(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Fetch(ctx, nil)
	require.Error(t, err)
	require.Equal(t, 1, s.calls)
}

func TestWrap_NoLimits(t *testing.T) {
	t.Parallel()

	s := &stub{}
	p := ratelimit.Wrap(s, 0, 0, 0)
	require.Same(t, s, p)
}
