// Package pipeline runs one fetch cycle: every provider concurrently over
// the working set, wait for all of them to settle, then merge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/logger"
	"github.com/KerimSelki/crypto-vault/internal/merge"
	"github.com/KerimSelki/crypto-vault/internal/provider"
)

// ErrEmptyCycle is returned when no provider produced a usable price.
var ErrEmptyCycle = errors.New("fetch cycle produced no prices")

// Fallback supplies last-known prices for offline use.
type Fallback interface {
	LoadPrices() (provider.PriceMap, error)
}

// Report summarizes one provider's part in a cycle.
type Report struct {
	Source    string        `json:"source"`
	Tier      string        `json:"tier"`
	Count     int           `json:"count"`
	Err       string        `json:"error,omitempty"`
	Throttled bool          `json:"throttled,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Result is the outcome of one cycle.
type Result struct {
	CycleID  string
	Prices   provider.PriceMap // layered onto the previous map
	Fresh    provider.PriceMap // this cycle's records only
	Partials []provider.Partial
	Reports  []Report
	Started  time.Time
	Duration time.Duration
}

type Config struct {
	// ProviderTimeout caps one provider call. Zero means 30s.
	ProviderTimeout time.Duration
}

type Option func(*Pipeline)

// WithWorkingSet overrides the ids fetched each cycle. The default is every
// catalog id.
func WithWorkingSet(fn func() []asset.ID) Option { return func(p *Pipeline) { p.workingSet = fn } }

// WithFallback merges cached prices for stock markets when a cycle has
// fresh data but no market feed succeeded.
func WithFallback(f Fallback) Option { return func(p *Pipeline) { p.fallback = f } }

func WithLogger(l *logger.Log) Option { return func(p *Pipeline) { p.log = l.WithComponent("pipeline") } }

type Pipeline struct {
	cfg        Config
	providers  []provider.Provider
	catalog    *asset.Catalog
	workingSet func() []asset.ID
	fallback   Fallback
	log        *logger.Entry
}

func New(cfg Config, catalog *asset.Catalog, providers []provider.Provider, opts ...Option) *Pipeline {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	p := &Pipeline{
		cfg:       cfg,
		providers: providers,
		catalog:   catalog,
		log:       logger.GetLogger().WithComponent("pipeline"),
	}
	for _, o := range opts {
		o(p)
	}
	if p.workingSet == nil {
		p.workingSet = catalog.IDs
	}
	return p
}

// Providers returns the configured providers in registration order.
func (p *Pipeline) Providers() []provider.Provider { return p.providers }

// Run executes one cycle and layers its result onto prev. prev is not
// modified. A cycle whose providers produced nothing returns ErrEmptyCycle
// joined with the provider errors, and Prices equal to a copy of prev.
func (p *Pipeline) Run(ctx context.Context, prev provider.PriceMap) (Result, error) {
	res := Result{CycleID: uuid.NewString(), Started: time.Now()}
	log := p.log.WithField("cycle_id", res.CycleID)
	ids := p.workingSet()

	var took []time.Duration
	res.Partials, took = p.fetchAll(ctx, ids)
	res.Reports = make([]Report, 0, len(res.Partials))
	var errs []error
	marketOK := false
	for i, part := range res.Partials {
		rep := Report{Source: part.Source, Tier: part.Tier.String(), Count: len(part.Prices), Duration: took[i]}
		if part.Err != nil {
			rep.Err = part.Err.Error()
			rep.Throttled = errors.Is(part.Err, provider.ErrThrottled)
			if !errors.Is(part.Err, provider.ErrNoSymbols) {
				errs = append(errs, fmt.Errorf("%s: %w", part.Source, part.Err))
			}
			entry := log.WithFields(logger.Fields{"source": part.Source, "tier": rep.Tier}).WithError(part.Err)
			switch {
			case rep.Throttled:
				entry.Warn("throttled")
			case errors.Is(part.Err, provider.ErrNoSymbols):
				entry.Debug("provider has nothing to fetch")
			default:
				entry.Warn("provider failed")
			}
		} else if part.Tier == provider.TierMarket && len(part.Prices) > 0 {
			marketOK = true
		}
		res.Reports = append(res.Reports, rep)
	}

	res.Fresh = merge.Cycle(res.Partials)
	if len(res.Fresh) == 0 {
		res.Prices = prev.Clone()
		res.Duration = time.Since(res.Started)
		errs = append([]error{ErrEmptyCycle}, errs...)
		err := errors.Join(errs...)
		log.WithError(err).Warn("cycle failed")
		return res, err
	}

	if !marketOK && p.fallback != nil {
		if cached := p.cachedMarkets(ids); len(cached) > 0 {
			part := provider.Partial{Source: "price_cache", Tier: provider.TierMarket, Prices: cached}
			res.Partials = append(res.Partials, part)
			res.Fresh = merge.Cycle(res.Partials)
			log.WithField("assets", len(cached)).Info("market feeds down, using cached prices")
		}
	}

	res.Prices = merge.Layer(prev, res.Fresh)
	res.Duration = time.Since(res.Started)
	logger.LogPerformanceEntry(log, "fetch_cycle", res.Duration, logger.Fields{
		"assets":    len(res.Fresh),
		"providers": len(p.providers),
		"failed":    len(errs),
	})
	return res, nil
}

// fetchAll runs every provider in its own goroutine and waits for all of
// them. Results keep registration order.
func (p *Pipeline) fetchAll(ctx context.Context, ids []asset.ID) ([]provider.Partial, []time.Duration) {
	out := make([]provider.Partial, len(p.providers))
	took := make([]time.Duration, len(p.providers))
	var wg sync.WaitGroup
	for i, prov := range p.providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			prices, err := p.fetchOne(ctx, prov, ids)
			took[i] = time.Since(start)
			if err != nil {
				prices = nil
			}
			out[i] = provider.Partial{Source: prov.Name(), Tier: prov.Tier(), Prices: prices, Err: err}
		}()
	}
	wg.Wait()
	return out, took
}

// fetchOne calls a provider with its own timeout and turns a panic into an
// error.
func (p *Pipeline) fetchOne(ctx context.Context, prov provider.Provider, ids []asset.ID) (prices provider.PriceMap, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			prices, err = nil, fmt.Errorf("provider %s panicked: %v", prov.Name(), rec)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	defer cancel()
	return prov.Fetch(ctx, ids)
}

func (p *Pipeline) cachedMarkets(ids []asset.ID) provider.PriceMap {
	cached, err := p.fallback.LoadPrices()
	if err != nil {
		p.log.WithError(err).Warn("price cache unavailable")
		return nil
	}
	out := make(provider.PriceMap)
	for _, id := range ids {
		r, ok := cached[id]
		if !ok || !p.catalog.MarketOf(id).IsStock() {
			continue
		}
		out[id] = r
	}
	return out
}

// FetchOne prices a single asset, trying providers in tier order until one
// returns a record. It does not touch any cycle state.
func (p *Pipeline) FetchOne(ctx context.Context, id asset.ID) (provider.PriceRecord, error) {
	ordered := append([]provider.Provider(nil), p.providers...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Tier() < ordered[j].Tier() })

	var errs []error
	for _, prov := range ordered {
		prices, err := p.fetchOne(ctx, prov, []asset.ID{id})
		if err != nil {
			if !errors.Is(err, provider.ErrNoSymbols) {
				errs = append(errs, fmt.Errorf("%s: %w", prov.Name(), err))
			}
			continue
		}
		if r, ok := prices[id]; ok && provider.ValidPrice(r.Price) {
			return r, nil
		}
	}
	if len(errs) == 0 {
		return provider.PriceRecord{}, fmt.Errorf("no provider priced %s", id)
	}
	return provider.PriceRecord{}, fmt.Errorf("no provider priced %s: %w", id, errors.Join(errs...))
}
