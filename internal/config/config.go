package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

type Server struct {
    Port              string `json:"port" yaml:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
    UserAgent         string `json:"user_agent" yaml:"user_agent"`
}

type Log struct {
    Level      string `json:"level" yaml:"level"`
    Format     string `json:"format" yaml:"format"` // json or text
    Output     string `json:"output" yaml:"output"` // stdout, stderr or a file path
    MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

type Refresh struct {
    // Interval is one of the presets: 1m, 5m, 10m, 30m.
    Interval           string `json:"interval" yaml:"interval"`
    ProviderTimeoutSec int    `json:"provider_timeout_sec" yaml:"provider_timeout_sec"`
}

type Retry struct {
    BackoffSec  []int `json:"backoff_sec" yaml:"backoff_sec"`
    MaxRetries  int   `json:"max_retries" yaml:"max_retries"`
    DisableDemo bool  `json:"disable_demo" yaml:"disable_demo"`
    DemoSeed    int64 `json:"demo_seed" yaml:"demo_seed"`
}

// Limits are the rate limit and cache settings shared by every feed.
type Limits struct {
    MaxRequestsPerMinute  int `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
    MinRequestIntervalSec int `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
    Burst                 int `json:"burst" yaml:"burst"`
    CacheTTLSeconds       int `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
    CacheMaxItems         int `json:"cache_max_items" yaml:"cache_max_items"`
}

type Binance struct {
    Enabled    bool   `json:"enabled" yaml:"enabled"`
    Endpoint   string `json:"endpoint" yaml:"endpoint"`
    TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
    Limits     `yaml:",inline"`
}

type CoinGecko struct {
    Enabled          bool   `json:"enabled" yaml:"enabled"`
    APIKey           string `json:"api_key" yaml:"api_key"`
    Endpoint         string `json:"endpoint" yaml:"endpoint"`
    VsCurrency       string `json:"vs_currency" yaml:"vs_currency"`
    PerPage          int    `json:"per_page" yaml:"per_page"`
    MaxIDsPerRequest int    `json:"max_ids_per_request" yaml:"max_ids_per_request"`
    MaxConcurrency   int    `json:"max_concurrency" yaml:"max_concurrency"`
    MarketsCacheSec  int    `json:"markets_cache_sec" yaml:"markets_cache_sec"`
    TimeoutSec       int    `json:"timeout_sec" yaml:"timeout_sec"`
    Limits           `yaml:",inline"`
}

type FMP struct {
    Enabled            bool   `json:"enabled" yaml:"enabled"`
    APIKey             string `json:"api_key" yaml:"api_key"`
    Endpoint           string `json:"endpoint" yaml:"endpoint"`
    // ProxyURL defaults to this server's /api/stocks route.
    ProxyURL           string `json:"proxy_url" yaml:"proxy_url"`
    MaxItemsPerRequest int    `json:"max_items_per_request" yaml:"max_items_per_request"`
    MaxConcurrency     int    `json:"max_concurrency" yaml:"max_concurrency"`
    TimeoutSec         int    `json:"timeout_sec" yaml:"timeout_sec"`
    Limits             `yaml:",inline"`
}

type Yahoo struct {
    Enabled bool   `json:"enabled" yaml:"enabled"`
    V7URL   string `json:"v7_url" yaml:"v7_url"`
    V8URL   string `json:"v8_url" yaml:"v8_url"`
    V6URL   string `json:"v6_url" yaml:"v6_url"`
    Limits  `yaml:",inline"`
}

type TEFAS struct {
    Enabled    bool   `json:"enabled" yaml:"enabled"`
    Endpoint   string `json:"endpoint" yaml:"endpoint"`
    WindowDays int    `json:"window_days" yaml:"window_days"`
    MaxFunds   int    `json:"max_funds" yaml:"max_funds"`
    TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
    Limits     `yaml:",inline"`
}

type State struct {
    Dir string `json:"dir" yaml:"dir"`
}

type FX struct {
    Base   string `json:"base" yaml:"base"`
    USDTRY float64 `json:"usd_try" yaml:"usd_try"`
}

type Config struct {
    Server         Server    `json:"server" yaml:"server"`
    Log            Log       `json:"log" yaml:"log"`
    Refresh        Refresh   `json:"refresh" yaml:"refresh"`
    Retry          Retry     `json:"retry" yaml:"retry"`
    BinanceSpot    Binance   `json:"binance_spot" yaml:"binance_spot"`
    BinanceFutures Binance   `json:"binance_futures" yaml:"binance_futures"`
    CoinGecko      CoinGecko `json:"coingecko" yaml:"coingecko"`
    FMP            FMP       `json:"fmp" yaml:"fmp"`
    Yahoo          Yahoo     `json:"yahoo" yaml:"yahoo"`
    TEFAS          TEFAS     `json:"tefas" yaml:"tefas"`
    State          State     `json:"state" yaml:"state"`
    FX             FX        `json:"fx" yaml:"fx"`
}

func Default() Config {
    return Config{
        Server:  Server{Port: "8080", RequestTimeoutSec: 10, UserAgent: "crypto-vault/1.0"},
        Log:     Log{Level: "info", Format: "json", Output: "stdout"},
        Refresh: Refresh{Interval: "5m", ProviderTimeoutSec: 30},
        Retry:   Retry{BackoffSec: []int{2, 5, 10, 30, 60}, MaxRetries: 5, DemoSeed: 42},
        BinanceSpot: Binance{
            Enabled:    true,
            TimeoutSec: 10,
            Limits:     Limits{MaxRequestsPerMinute: 20, Burst: 2},
        },
        BinanceFutures: Binance{
            Enabled:    true,
            TimeoutSec: 10,
            Limits:     Limits{MaxRequestsPerMinute: 20, Burst: 2},
        },
        CoinGecko: CoinGecko{
            Enabled:          true,
            VsCurrency:       "usd",
            PerPage:          250,
            MaxIDsPerRequest: 100,
            MaxConcurrency:   5,
            MarketsCacheSec:  60,
            TimeoutSec:       10,
            Limits:           Limits{MaxRequestsPerMinute: 10, Burst: 1},
        },
        FMP: FMP{
            Enabled:            true,
            Endpoint:           "https://financialmodelingprep.com",
            MaxItemsPerRequest: 50,
            MaxConcurrency:     5,
            TimeoutSec:         10,
            Limits:             Limits{MaxRequestsPerMinute: 30, Burst: 2, CacheTTLSeconds: 60, CacheMaxItems: 5000},
        },
        Yahoo: Yahoo{
            Enabled: false,
            V7URL:   "https://query1.finance.yahoo.com/v7/finance/quote",
            V8URL:   "https://query1.finance.yahoo.com/v8/finance/chart",
            V6URL:   "https://query2.finance.yahoo.com/v6/finance/quote",
            Limits:  Limits{MaxRequestsPerMinute: 30, Burst: 2, CacheTTLSeconds: 60, CacheMaxItems: 5000},
        },
        TEFAS: TEFAS{
            Enabled:    true,
            Endpoint:   "https://www.tefas.gov.tr",
            WindowDays: 7,
            MaxFunds:   30,
            TimeoutSec: 8,
            Limits:     Limits{MaxRequestsPerMinute: 10, Burst: 1, CacheTTLSeconds: 300, CacheMaxItems: 1000},
        },
        State: State{Dir: "data"},
        FX:    FX{Base: "USD", USDTRY: 36.42},
    }
}

// Load reads a JSON or YAML config from path. If path is empty it looks for
// config.json, config.yaml and config.yml; a missing file yields defaults.
// Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        for _, p := range []string{"config.json", "config.yaml", "config.yml"} {
            if _, err := os.Stat(p); err == nil { path = p; break }
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := decode(path, b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
    switch strings.ToLower(filepath.Ext(path)) {
    case ".yaml", ".yml":
        return yaml.Unmarshal(b, cfg)
    default:
        return json.Unmarshal(b, cfg)
    }
}

// Backoff returns the retry delays as durations.
func (r Retry) Backoff() []time.Duration {
    out := make([]time.Duration, 0, len(r.BackoffSec))
    for _, s := range r.BackoffSec {
        if s > 0 { out = append(out, time.Duration(s)*time.Second) }
    }
    return out
}

// MinInterval returns the min-interval limit as a duration.
func (l Limits) MinInterval() time.Duration { return time.Duration(l.MinRequestIntervalSec) * time.Second }

// CacheTTL returns the cache TTL as a duration.
func (l Limits) CacheTTL() time.Duration { return time.Duration(l.CacheTTLSeconds) * time.Second }

// Seconds converts a seconds field, using def when it is not positive.
func Seconds(n int, def time.Duration) time.Duration {
    if n <= 0 { return def }
    return time.Duration(n) * time.Second
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if x, ok := envInt("REQUEST_TIMEOUT_SEC"); ok && x > 0 { cfg.Server.RequestTimeoutSec = x }
    if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.Log.Level = v }
    if v := os.Getenv("LOG_FORMAT"); v != "" { cfg.Log.Format = v }
    if v := os.Getenv("LOG_OUTPUT"); v != "" { cfg.Log.Output = v }
    if v := os.Getenv("REFRESH_INTERVAL"); v != "" { cfg.Refresh.Interval = v }
    if x, ok := envInt("PROVIDER_TIMEOUT_SEC"); ok && x > 0 { cfg.Refresh.ProviderTimeoutSec = x }
    if x, ok := envInt("MAX_RETRIES"); ok && x > 0 { cfg.Retry.MaxRetries = x }
    if b, ok := envBool("DISABLE_DEMO"); ok { cfg.Retry.DisableDemo = b }
    if v := os.Getenv("STATE_DIR"); v != "" { cfg.State.Dir = v }
    if v := os.Getenv("FX_USD_TRY"); v != "" {
        if x, err := strconv.ParseFloat(v, 64); err == nil && x > 0 { cfg.FX.USDTRY = x }
    }

    applyBinanceEnv("BINANCE_SPOT", &cfg.BinanceSpot)
    applyBinanceEnv("BINANCE_FUTURES", &cfg.BinanceFutures)

    if b, ok := envBool("COINGECKO_ENABLED"); ok { cfg.CoinGecko.Enabled = b }
    if v := os.Getenv("COINGECKO_API_KEY"); v != "" { cfg.CoinGecko.APIKey = v }
    if v := os.Getenv("COINGECKO_ENDPOINT"); v != "" { cfg.CoinGecko.Endpoint = v }
    if x, ok := envInt("COINGECKO_TIMEOUT_SEC"); ok && x > 0 { cfg.CoinGecko.TimeoutSec = x }
    applyLimitsEnv("COINGECKO", &cfg.CoinGecko.Limits)

    if b, ok := envBool("FMP_ENABLED"); ok { cfg.FMP.Enabled = b }
    if v := os.Getenv("FMP_API_KEY"); v != "" { cfg.FMP.APIKey = v }
    if v := os.Getenv("FMP_ENDPOINT"); v != "" { cfg.FMP.Endpoint = v }
    if v := os.Getenv("FMP_PROXY_URL"); v != "" { cfg.FMP.ProxyURL = v }
    if x, ok := envInt("FMP_MAX_ITEMS_PER_REQUEST"); ok && x > 0 { cfg.FMP.MaxItemsPerRequest = x }
    if x, ok := envInt("FMP_TIMEOUT_SEC"); ok && x > 0 { cfg.FMP.TimeoutSec = x }
    applyLimitsEnv("FMP", &cfg.FMP.Limits)

    if b, ok := envBool("YAHOO_ENABLED"); ok { cfg.Yahoo.Enabled = b }
    applyLimitsEnv("YAHOO", &cfg.Yahoo.Limits)

    if b, ok := envBool("TEFAS_ENABLED"); ok { cfg.TEFAS.Enabled = b }
    if v := os.Getenv("TEFAS_ENDPOINT"); v != "" { cfg.TEFAS.Endpoint = v }
    if x, ok := envInt("TEFAS_TIMEOUT_SEC"); ok && x > 0 { cfg.TEFAS.TimeoutSec = x }
    applyLimitsEnv("TEFAS", &cfg.TEFAS.Limits)
}

func applyBinanceEnv(prefix string, b *Binance) {
    if x, ok := envBool(prefix + "_ENABLED"); ok { b.Enabled = x }
    if v := os.Getenv(prefix + "_ENDPOINT"); v != "" { b.Endpoint = v }
    if x, ok := envInt(prefix + "_TIMEOUT_SEC"); ok && x > 0 { b.TimeoutSec = x }
    applyLimitsEnv(prefix, &b.Limits)
}

func applyLimitsEnv(prefix string, l *Limits) {
    if x, ok := envInt(prefix + "_MIN_INTERVAL_SEC"); ok && x >= 0 { l.MinRequestIntervalSec = x }
    if x, ok := envInt(prefix + "_MAX_RPM"); ok && x >= 0 { l.MaxRequestsPerMinute = x }
    if x, ok := envInt(prefix + "_BURST"); ok && x > 0 { l.Burst = x }
    if x, ok := envInt(prefix + "_CACHE_TTL_SEC"); ok && x >= 0 { l.CacheTTLSeconds = x }
    if x, ok := envInt(prefix + "_CACHE_MAX_ITEMS"); ok && x > 0 { l.CacheMaxItems = x }
}

func envInt(key string) (int, bool) {
    v := os.Getenv(key)
    if v == "" { return 0, false }
    x, err := strconv.Atoi(strings.TrimSpace(v))
    if err != nil { return 0, false }
    return x, true
}

func envBool(key string) (bool, bool) {
    switch strings.ToLower(os.Getenv(key)) {
    case "1", "true", "yes", "y": return true, true
    case "0", "false", "no", "n": return false, true
    }
    return false, false
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}
