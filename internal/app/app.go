// Package app wires configuration, providers, the fetch pipeline, the
// scheduler and local state into one running price service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/KerimSelki/crypto-vault/internal/asset"
	"github.com/KerimSelki/crypto-vault/internal/config"
	"github.com/KerimSelki/crypto-vault/internal/demo"
	"github.com/KerimSelki/crypto-vault/internal/httpx"
	"github.com/KerimSelki/crypto-vault/internal/logger"
	"github.com/KerimSelki/crypto-vault/internal/pipeline"
	"github.com/KerimSelki/crypto-vault/internal/portfolio"
	"github.com/KerimSelki/crypto-vault/internal/provider"
	"github.com/KerimSelki/crypto-vault/internal/provider/binancefutures"
	"github.com/KerimSelki/crypto-vault/internal/provider/binancespot"
	"github.com/KerimSelki/crypto-vault/internal/provider/cache"
	"github.com/KerimSelki/crypto-vault/internal/provider/coingecko"
	"github.com/KerimSelki/crypto-vault/internal/provider/coingeckoadapter"
	"github.com/KerimSelki/crypto-vault/internal/provider/fmp"
	"github.com/KerimSelki/crypto-vault/internal/provider/ratelimit"
	"github.com/KerimSelki/crypto-vault/internal/provider/tefas"
	"github.com/KerimSelki/crypto-vault/internal/provider/yahoo"
	"github.com/KerimSelki/crypto-vault/internal/refresh"
	"github.com/KerimSelki/crypto-vault/internal/scheduler"
	"github.com/KerimSelki/crypto-vault/internal/store"
	"github.com/KerimSelki/crypto-vault/internal/symbol"
)

type Option func(*App)

func WithClock(c clockwork.Clock) Option { return func(a *App) { a.clock = c } }

// WithProviders replaces the configured feeds, e.g. with fakes in tests.
func WithProviders(ps ...provider.Provider) Option {
	return func(a *App) { a.override = ps }
}

// App is the running service.
type App struct {
	Config    config.Config
	Catalog   *asset.Catalog
	Resolver  *symbol.Resolver
	HTTP      *httpx.Client
	Store     *store.Store
	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
	Refresh   *refresh.Driver
	Rates     portfolio.Rates

	// Yahoo and TEFAS also back the proxy routes.
	Yahoo *yahoo.Client
	TEFAS *tefas.Provider

	log       *logger.Log
	entry     *logger.Entry
	clock     clockwork.Clock
	override  []provider.Provider
	spot      *binancespot.Provider
	coingecko *coingeckoadapter.Adapter

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu   sync.Mutex
	last *pipeline.Result
}

// New builds the service from cfg. Nothing touches the network until Start.
func New(cfg config.Config, log *logger.Log, opts ...Option) (*App, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	a := &App{Config: cfg, log: log, entry: log.WithComponent("app"), clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(a)
	}

	st, err := store.Open(cfg.State.Dir)
	if err != nil {
		return nil, err
	}
	a.Store = st

	a.Catalog = asset.DefaultCatalog()
	known, err := st.KnownAssets()
	if err != nil {
		return nil, fmt.Errorf("load known assets: %w", err)
	}
	for _, k := range known {
		if err := a.Catalog.Add(k); err != nil {
			a.entry.WithError(err).WithField("asset", k.ID).Warn("skipping stored asset")
		}
	}
	a.Resolver = symbol.NewResolver(a.Catalog)

	a.HTTP = httpx.New(config.Seconds(cfg.Server.RequestTimeoutSec, 10*time.Second))
	if cfg.Server.UserAgent != "" {
		a.HTTP.UserAgent = cfg.Server.UserAgent
	}

	a.Rates = portfolio.DefaultRates()
	if cfg.FX.Base != "" {
		a.Rates.Base = strings.ToUpper(cfg.FX.Base)
	}
	if cfg.FX.USDTRY > 0 {
		a.Rates = a.Rates.WithRate("TRY", cfg.FX.USDTRY)
	}

	a.Yahoo = yahoo.New(yahoo.Config{V7URL: cfg.Yahoo.V7URL, V8URL: cfg.Yahoo.V8URL, V6URL: cfg.Yahoo.V6URL}, a.HTTP, a.Resolver, log)
	a.TEFAS = tefas.New(tefas.Config{
		BaseURL:    cfg.TEFAS.Endpoint,
		WindowDays: cfg.TEFAS.WindowDays,
		MaxFunds:   cfg.TEFAS.MaxFunds,
		Timeout:    config.Seconds(cfg.TEFAS.TimeoutSec, 8*time.Second),
		Clock:      a.clock,
	}, a.HTTP, a.Resolver, log)

	providers := a.override
	if providers == nil {
		if providers, err = a.buildProviders(); err != nil {
			return nil, err
		}
	}

	a.Pipeline = pipeline.New(pipeline.Config{
		ProviderTimeout: config.Seconds(cfg.Refresh.ProviderTimeoutSec, 30*time.Second),
	}, a.Catalog, providers, pipeline.WithFallback(st), pipeline.WithLogger(log))

	cached, err := st.LoadPrices()
	if err != nil {
		a.entry.WithError(err).Warn("price cache unreadable, starting empty")
		cached = provider.PriceMap{}
	}
	gen := demo.New(uint64(cfg.Retry.DemoSeed))
	a.Scheduler = scheduler.New(scheduler.Config{
		Backoff:     cfg.Retry.Backoff(),
		MaxRetries:  cfg.Retry.MaxRetries,
		DisableDemo: cfg.Retry.DisableDemo,
	}, a.Pipeline,
		scheduler.WithClock(a.clock),
		scheduler.WithLogger(log),
		scheduler.WithInitialPrices(cached),
		scheduler.WithDemo(func() provider.PriceMap { return gen.Crypto(a.Catalog) }),
	)
	a.Refresh = refresh.New(a.Scheduler, a.clock, log)
	return a, nil
}

func limited(p provider.Provider, l config.Limits) provider.Provider {
	p = ratelimit.Wrap(p, l.MaxRequestsPerMinute, l.Burst, l.MinInterval())
	if l.CacheTTLSeconds > 0 {
		p = &cache.Provider{P: p, TTL: l.CacheTTL(), MaxItems: l.CacheMaxItems}
	}
	return p
}

func (a *App) buildProviders() ([]provider.Provider, error) {
	cfg := a.Config
	var out []provider.Provider

	if cfg.BinanceSpot.Enabled {
		a.spot = binancespot.New(binancespot.Config{
			BaseURL: cfg.BinanceSpot.Endpoint,
			Timeout: config.Seconds(cfg.BinanceSpot.TimeoutSec, 10*time.Second),
		}, a.HTTP, a.Resolver)
		out = append(out, limited(a.spot, cfg.BinanceSpot.Limits))
	}
	if cfg.BinanceFutures.Enabled {
		fut := binancefutures.New(binancefutures.Config{
			BaseURL: cfg.BinanceFutures.Endpoint,
			Timeout: config.Seconds(cfg.BinanceFutures.TimeoutSec, 10*time.Second),
		}, a.HTTP, a.Resolver, a.log)
		out = append(out, limited(fut, cfg.BinanceFutures.Limits))
	}
	if cfg.CoinGecko.Enabled {
		client, err := a.coinGeckoClient(cfg.CoinGecko.APIKey)
		if err != nil {
			return nil, err
		}
		a.coingecko = coingeckoadapter.New(coingeckoadapter.Config{
			VsCurrency:             cfg.CoinGecko.VsCurrency,
			PerPage:                cfg.CoinGecko.PerPage,
			MaxIDsPerRequest:       cfg.CoinGecko.MaxIDsPerRequest,
			MaxConcurrency:         cfg.CoinGecko.MaxConcurrency,
			MarketsCacheTTLSeconds: cfg.CoinGecko.MarketsCacheSec,
			Timeout:                config.Seconds(cfg.CoinGecko.TimeoutSec, 10*time.Second),
		}, client, a.Resolver)
		out = append(out, limited(a.coingecko, cfg.CoinGecko.Limits))
	}
	if cfg.FMP.Enabled {
		if cfg.FMP.APIKey == "" {
			a.entry.Warn("fmp.enabled=true but FMP_API_KEY not set; only the proxy fallback will answer")
		}
		proxy := cfg.FMP.ProxyURL
		if proxy == "" {
			proxy = "http://127.0.0.1:" + cfg.Server.Port + "/api/stocks"
		}
		f := fmp.New(fmp.Config{
			BaseURL:            cfg.FMP.Endpoint,
			APIKey:             cfg.FMP.APIKey,
			ProxyURL:           proxy,
			MaxItemsPerRequest: cfg.FMP.MaxItemsPerRequest,
			MaxConcurrency:     cfg.FMP.MaxConcurrency,
			Timeout:            config.Seconds(cfg.FMP.TimeoutSec, 10*time.Second),
		}, a.HTTP, a.Resolver, a.log)
		out = append(out, limited(f, cfg.FMP.Limits))
	}

	if cfg.Yahoo.Enabled {
		out = append(out, limited(a.Yahoo, cfg.Yahoo.Limits))
	}

	if cfg.TEFAS.Enabled {
		out = append(out, limited(a.TEFAS, cfg.TEFAS.Limits))
	}

	if len(out) == 0 {
		return nil, errors.New("no price provider enabled")
	}
	return out, nil
}

func (a *App) coinGeckoClient(key string) (*coingecko.CoinGeckoAPIClient, error) {
	opts := []coingecko.CoinGeckoAPIClientOption{
		coingecko.WithHTTPClient(a.HTTP.HTTP),
		coingecko.WithHeader(http.Header{"User-Agent": {a.HTTP.UserAgent}}),
	}
	if a.Config.CoinGecko.Endpoint != "" {
		opts = append(opts, coingecko.WithBaseURL(a.Config.CoinGecko.Endpoint))
	}
	return coingecko.NewCoinGeckoAPIClient(key, opts...)
}

// Start loads the spot pair universe, persists every live cycle to the
// price cache, runs the first cycle and starts the refresh driver. A failed
// first cycle is left to the scheduler's retry logic.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.spot != nil {
		if set, err := a.spot.Symbols(ctx); err != nil {
			a.entry.WithError(err).Warn("binance pair list unavailable, resolving without it")
		} else {
			a.Resolver.WithUniverse(symbol.BinanceSpot, set)
			a.entry.WithField("pairs", len(set)).Info("binance pair list loaded")
		}
	}

	events, unsubscribe := a.Scheduler.Subscribe(32)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsubscribe()
		a.persist(ctx, events)
	}()

	iv, err := refresh.Parse(a.Config.Refresh.Interval)
	if err != nil {
		a.entry.WithError(err).Warn("invalid refresh interval, using default")
		iv = refresh.DefaultInterval
	}
	if err := a.Refresh.SetInterval(ctx, iv); err != nil {
		return err
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		a.entry.WithError(err).Warn("first cycle failed")
	}
	a.Refresh.Start(ctx)
	return nil
}

// Stop halts the refresh driver, cancels pending retries and waits for the
// cache writer.
func (a *App) Stop() {
	a.Refresh.Stop()
	a.Scheduler.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *App) persist(ctx context.Context, events <-chan scheduler.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Result == nil {
				continue
			}
			a.mu.Lock()
			a.last = ev.Result
			a.mu.Unlock()
			if ev.Status.Mode != scheduler.Live || len(ev.Result.Fresh) == 0 {
				continue
			}
			if err := a.Store.SavePrices(ev.Result.Fresh, a.clock.Now()); err != nil {
				a.entry.WithError(err).Warn("price cache write failed")
			}
		}
	}
}

// RunOnce runs a single cycle outside the scheduler, on top of the cached
// prices, and writes the fresh records to the price cache. One-shot tools
// use it instead of Start.
func (a *App) RunOnce(ctx context.Context) (pipeline.Result, error) {
	res, err := a.Pipeline.Run(ctx, a.Scheduler.Prices())
	if err != nil {
		return res, err
	}
	if err := a.Store.SavePrices(res.Fresh, a.clock.Now()); err != nil {
		a.entry.WithError(err).Warn("price cache write failed")
	}
	return res, nil
}

// LastCycle returns the most recent cycle result, or nil before the first
// one completes.
func (a *App) LastCycle() *pipeline.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// SetCoinGeckoKey swaps the aggregator client and retries at once.
func (a *App) SetCoinGeckoKey(ctx context.Context, key string) error {
	return a.Scheduler.SetCredentials(ctx, func() error {
		if a.coingecko == nil {
			return errors.New("coingecko provider is disabled")
		}
		client, err := a.coinGeckoClient(strings.TrimSpace(key))
		if err != nil {
			return err
		}
		a.coingecko.SetClient(client)
		return nil
	})
}

// ErrNotPriced is returned by AddAsset when the asset was registered but no
// provider priced it; the next cycle tries again.
var ErrNotPriced = errors.New("asset registered but not priced")

// AddAsset registers an asset, stores it and prices it right away without
// waiting for the next cycle. The price is layered onto the unified map.
// A failed save leaves the catalog as it was.
func (a *App) AddAsset(ctx context.Context, as asset.Asset) (provider.PriceRecord, error) {
	prev, existed := a.Catalog.Lookup(as.ID)
	if err := a.Catalog.Add(as); err != nil {
		return provider.PriceRecord{}, err
	}
	stored, _ := a.Catalog.Lookup(as.ID)
	if err := a.Store.AddKnownAsset(stored); err != nil {
		if existed {
			_ = a.Catalog.Add(prev)
		} else {
			a.Catalog.Remove(as.ID)
		}
		return provider.PriceRecord{}, fmt.Errorf("save known asset %s: %w", as.ID, err)
	}
	rec, err := a.Pipeline.FetchOne(ctx, as.ID)
	if err != nil {
		a.entry.WithField("asset", as.ID).WithError(err).Warn("quick fetch failed")
		return provider.PriceRecord{}, fmt.Errorf("%w: %w", ErrNotPriced, err)
	}
	a.Scheduler.Upsert(provider.PriceMap{as.ID: rec})
	return rec, nil
}

// Valuer values portfolios against the current unified map.
func (a *App) Valuer() portfolio.Valuer {
	return portfolio.Valuer{Catalog: a.Catalog, Prices: a.Scheduler.Prices(), Rates: a.Rates}
}

// Valuation values one named portfolio, or every portfolio plus the
// combined view when name is empty.
func (a *App) Valuation(name string) ([]portfolio.Summary, error) {
	v := a.Valuer()
	if name != "" {
		p, err := a.Store.Portfolio(name)
		if err != nil {
			return nil, err
		}
		return []portfolio.Summary{v.Value(p)}, nil
	}
	ps, err := a.Store.Portfolios()
	if err != nil {
		return nil, err
	}
	out := v.Summaries(ps)
	return append(out, v.Combined("All Portfolios", ps)), nil
}

// Snapshot values the active portfolio and appends it to the report history.
func (a *App) Snapshot() (store.Report, error) {
	name, err := a.Store.ActivePortfolio()
	if err != nil {
		return store.Report{}, err
	}
	sums, err := a.Valuation(name)
	if err != nil {
		return store.Report{}, err
	}
	return a.Store.AppendReport(store.ReportFromSummary(sums[0], a.clock.Now()))
}
