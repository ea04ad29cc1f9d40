package cache

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/jonboulle/clockwork"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/provider"
)

// entry stores the cached record of a single asset with expiry.
type entry struct {
    expiresAt time.Time
    record    provider.PriceRecord
}

// Provider caches records per asset for a TTL.
// It requests only missing assets from the underlying provider and
// combines cached + fresh results.
type Provider struct {
    P        provider.Provider
    TTL      time.Duration
    MaxItems int
    Clock    clockwork.Clock // nil means the real clock

    mu    sync.RWMutex
    items map[asset.ID]entry
}

func (c *Provider) Name() string        { return c.P.Name() }
func (c *Provider) Tier() provider.Tier { return c.P.Tier() }

func (c *Provider) now() time.Time {
    if c.Clock == nil { return time.Now() }
    return c.Clock.Now()
}

// Fetch returns records for the requested assets using the cache when valid.
func (c *Provider) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
    if c.TTL <= 0 {
        return c.P.Fetch(ctx, ids)
    }

    now := c.now()

    // Split into cached and missing assets, preserving request order
    cached := make(provider.PriceMap, len(ids))
    missing := make([]asset.ID, 0, len(ids))
    seen := make(map[asset.ID]struct{}, len(ids))

    c.mu.RLock()
    for _, id := range ids {
        if _, dup := seen[id]; dup { continue }
        seen[id] = struct{}{}
        if e, ok := c.items[id]; ok && now.Before(e.expiresAt) {
            cached[id] = e.record.Clone()
            continue
        }
        missing = append(missing, id)
    }
    c.mu.RUnlock()

    if len(missing) == 0 {
        return cached, nil
    }

    fresh, err := c.P.Fetch(ctx, missing)
    if err != nil {
        // Some cached data beats failing entirely
        if len(cached) > 0 {
            return cached, nil
        }
        return nil, err
    }

    expiry := now.Add(c.TTL)
    c.mu.Lock()
    if c.items == nil { c.items = make(map[asset.ID]entry, len(fresh)) }
    for id, r := range fresh {
        c.items[id] = entry{expiresAt: expiry, record: r.Clone()}
    }
    c.evictLocked(now)
    c.mu.Unlock()

    for id, r := range fresh {
        cached[id] = r
    }
    return cached, nil
}

// evictLocked drops expired entries, then the ones closest to expiry, until
// the cache fits MaxItems.
func (c *Provider) evictLocked(now time.Time) {
    if c.MaxItems <= 0 || len(c.items) <= c.MaxItems { return }
    for id, e := range c.items {
        if !now.Before(e.expiresAt) { delete(c.items, id) }
    }
    if len(c.items) <= c.MaxItems { return }
    ids := make([]asset.ID, 0, len(c.items))
    for id := range c.items { ids = append(ids, id) }
    sort.Slice(ids, func(i, j int) bool { return c.items[ids[i]].expiresAt.Before(c.items[ids[j]].expiresAt) })
    for _, id := range ids[:len(ids)-c.MaxItems] {
        delete(c.items, id)
    }
}
