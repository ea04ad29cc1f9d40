package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"

    "github.com/KerimSelki/crypto-vault/internal/app"
    "github.com/KerimSelki/crypto-vault/internal/config"
    "github.com/KerimSelki/crypto-vault/internal/logger"
)

func main() {
    _ = godotenv.Load()

    log := logger.GetLogger()
    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    if err != nil { log.WithError(err).Fatal("config") }
    if err := log.Configure(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.MaxAgeDays); err != nil {
        log.WithError(err).Fatal("logger")
    }
    entry := log.WithComponent("server")

    if cfg.CoinGecko.Enabled && cfg.CoinGecko.APIKey == "" {
        entry.Info("COINGECKO_API_KEY not set, using the public API")
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    a, err := app.New(cfg, log)
    if err != nil { entry.WithError(err).Fatal("app") }

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           newHandler(ctx, a, log),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        // the retry route waits for a whole cycle
        WriteTimeout: 60 * time.Second,
        IdleTimeout:  60 * time.Second,
    }

    go func() {
        entry.WithField("port", cfg.Server.Port).Info("server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            entry.WithError(err).Fatal("server")
        }
    }()

    // the fmp proxy fallback calls back into /api/stocks, so start after listening
    if err := a.Start(ctx); err != nil { entry.WithError(err).Fatal("start") }

    <-ctx.Done()
    entry.Info("shutting down")
    a.Stop()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil { entry.WithError(err).Warn("shutdown") }
}

// newHandler mounts /ws without the gzip and JSON middleware, which would
// break the upgrade.
func newHandler(ctx context.Context, a *app.App, log *logger.Log) http.Handler {
    s := &server{ctx: ctx, app: a, log: log.WithComponent("server")}
    api := http.NewServeMux()
    api.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
        writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": string(a.Scheduler.Status().State)})
    })
    api.HandleFunc("GET /api/prices", s.handlePrices)
    api.HandleFunc("GET /api/status", s.handleStatus)
    api.HandleFunc("POST /api/retry", s.handleRetry)
    api.HandleFunc("PUT /api/interval", s.handleInterval)
    api.HandleFunc("PUT /api/credentials", s.handleCredentials)
    api.HandleFunc("GET /api/portfolio", s.handlePortfolio)
    api.HandleFunc("POST /api/portfolio/snapshot", s.handleSnapshot)
    api.HandleFunc("GET /api/reports", s.handleReports)
    api.HandleFunc("POST /api/assets", s.handleAddAsset)
    api.HandleFunc("GET /api/stocks", s.handleStocks)
    api.HandleFunc("GET /api/tefas", s.handleTEFAS)
    api.HandleFunc("GET /api/sources", s.handleSources)

    root := http.NewServeMux()
    root.HandleFunc("GET /ws", s.handleWS)
    root.Handle("/", s.middleware(api))
    return root
}
