package main

import (
    "bufio"
    "context"
    "encoding/json"
    "errors"
    "flag"
    "fmt"
    "net/url"
    "os"
    "sort"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "golang.org/x/time/rate"

    "github.com/KerimSelki/crypto-vault/internal/config"
    "github.com/KerimSelki/crypto-vault/internal/httpx"
    "github.com/KerimSelki/crypto-vault/internal/logger"
)

// Stock is one screener row in the compact dump format.
type Stock struct {
    Symbol   string  `json:"s"`
    Name     string  `json:"n"`
    Exchange string  `json:"e"`
    Type     string  `json:"t"` // stock or etf
    Price    float64 `json:"p"`
}

type dump struct {
    Count   int       `json:"count"`
    Updated time.Time `json:"updated"`
    Stocks  []Stock   `json:"stocks"`
}

type screenerRow struct {
    Symbol            string      `json:"symbol"`
    CompanyName       string      `json:"companyName"`
    ExchangeShortName string      `json:"exchangeShortName"`
    IsEtf             bool        `json:"isEtf"`
    Price             json.Number `json:"price"`
}

type dumper struct {
    client     *httpx.Client
    baseURL    string
    apiKey     string
    limit      int
    maxRetries int
    backoff    time.Duration
    timeout    time.Duration
    limiter    *rate.Limiter
    log        *logger.Entry
}

func main() {
    var (
        outPath    string
        cfgPath    string
        exchanges  string
        limit      int
        timeoutSec int
        maxRetries int
        rpm        int
    )
    flag.StringVar(&outPath, "out", "stocklist.json", "output JSON file path")
    flag.StringVar(&cfgPath, "config", "", "path to config.json or config.yaml (optional)")
    flag.StringVar(&exchanges, "exchanges", "NYSE,NASDAQ,AMEX", "comma separated exchanges")
    flag.IntVar(&limit, "limit", 5000, "screener rows per exchange")
    flag.IntVar(&timeoutSec, "timeout", 20, "HTTP timeout seconds")
    flag.IntVar(&maxRetries, "retries", 3, "max retries on 429/5xx")
    flag.IntVar(&rpm, "rpm", 0, "max requests per minute (0 = unlimited)")
    flag.Parse()

    _ = godotenv.Load()
    log := logger.GetLogger()
    entry := log.WithComponent("stocklist_dump")

    cfg, err := config.Load(cfgPath)
    if err != nil { entry.WithError(err).Fatal("config") }
    if cfg.FMP.APIKey == "" { entry.Fatal("FMP_API_KEY missing (set in config or env)") }

    d := &dumper{
        client:     httpx.New(time.Duration(timeoutSec) * time.Second),
        baseURL:    cfg.FMP.Endpoint,
        apiKey:     cfg.FMP.APIKey,
        limit:      limit,
        maxRetries: maxRetries,
        backoff:    2 * time.Second,
        timeout:    time.Duration(timeoutSec) * time.Second,
        log:        entry,
    }
    if rpm > 0 { d.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1) }

    ctx := context.Background()
    stocks := d.run(ctx, config.SplitCSV(exchanges))
    if len(stocks) == 0 { entry.Fatal("no stocks fetched") }

    if err := writeDump(outPath, dump{Count: len(stocks), Updated: time.Now().UTC(), Stocks: stocks}); err != nil {
        entry.WithError(err).Fatal("write")
    }
    entry.WithFields(logger.Fields{"stocks": len(stocks), "out": outPath}).Info("done")
}

// run fetches every exchange in turn. A failed exchange is logged and
// skipped; symbols listed on several exchanges are kept once.
func (d *dumper) run(ctx context.Context, exchanges []string) []Stock {
    seen := make(map[string]struct{})
    var out []Stock
    for _, ex := range exchanges {
        rows, err := d.fetchExchange(ctx, ex)
        if err != nil {
            d.log.WithError(err).WithField("exchange", ex).Warn("exchange skipped")
            continue
        }
        n := 0
        for _, s := range toStocks(rows, ex) {
            if _, dup := seen[s.Symbol]; dup { continue }
            seen[s.Symbol] = struct{}{}
            out = append(out, s)
            n++
        }
        d.log.WithFields(logger.Fields{"exchange": ex, "stocks": n}).Info("exchange fetched")
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
    return out
}

func (d *dumper) fetchExchange(ctx context.Context, exchange string) ([]screenerRow, error) {
    q := url.Values{}
    q.Set("exchange", exchange)
    q.Set("limit", strconv.Itoa(d.limit))
    q.Set("apikey", d.apiKey)
    u := strings.TrimRight(d.baseURL, "/") + "/api/v3/stock-screener?" + q.Encode()

    // retry loop for 429/5xx
    attempt := 0
    for {
        if d.limiter != nil {
            if err := d.limiter.Wait(ctx); err != nil { return nil, err }
        }
        var rows []screenerRow
        err := d.client.GetJSON(ctx, u, d.timeout, nil, &rows)
        if err == nil { return rows, nil }
        var se *httpx.StatusError
        if !errors.As(err, &se) || !se.Retryable() || attempt >= d.maxRetries {
            return nil, fmt.Errorf("%s: %w", exchange, err)
        }
        attempt++
        wait := d.backoff * time.Duration(1<<(attempt-1))
        d.log.WithFields(logger.Fields{"exchange": exchange, "status": se.Code, "attempt": attempt}).Warn("retrying")
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(wait):
        }
    }
}

func toStocks(rows []screenerRow, exchange string) []Stock {
    out := make([]Stock, 0, len(rows))
    for _, r := range rows {
        if r.Symbol == "" || r.CompanyName == "" { continue }
        s := Stock{Symbol: strings.ToUpper(r.Symbol), Name: r.CompanyName, Exchange: r.ExchangeShortName, Type: "stock"}
        if s.Exchange == "" { s.Exchange = exchange }
        if r.IsEtf { s.Type = "etf" }
        if p, err := r.Price.Float64(); err == nil { s.Price = p }
        out = append(out, s)
    }
    return out
}

func writeDump(path string, d dump) error {
    f, err := os.Create(path)
    if err != nil { return err }
    defer f.Close()
    bw := bufio.NewWriterSize(f, 1<<20)
    enc := json.NewEncoder(bw)
    enc.SetEscapeHTML(false)
    if err := enc.Encode(d); err != nil { return err }
    return bw.Flush()
}
