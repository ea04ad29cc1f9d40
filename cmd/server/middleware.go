package main

import (
    "compress/gzip"
    "io"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/KerimSelki/crypto-vault/internal/logger"
)

// maxBody caps POST and PUT bodies.
const maxBody = 1 << 20

var gzipWriters = sync.Pool{New: func() any {
    w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
    return w
}}

// middleware wraps the API mux. Order, outermost first: headers, gzip,
// access log, panic recovery, body cap.
func (s *server) middleware(next http.Handler) http.Handler {
    return withJSONHeaders(withGzip(s.logRequests(s.recoverPanic(limitBody(next)))))
}

func withJSONHeaders(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        h := w.Header()
        h.Set("Content-Type", "application/json; charset=utf-8")
        h.Set("Access-Control-Allow-Origin", "*")
        h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
        h.Set("Access-Control-Allow-Headers", "Content-Type")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func withGzip(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method == http.MethodHead || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzipWriters.Get().(*gzip.Writer)
        gz.Reset(w)
        defer func() {
            _ = gz.Close()
            gz.Reset(io.Discard)
            gzipWriters.Put(gz)
        }()
        w.Header().Set("Content-Encoding", "gzip")
        w.Header().Add("Vary", "Accept-Encoding")
        next.ServeHTTP(gzipWriter{ResponseWriter: w, gz: gz}, r)
    })
}

type gzipWriter struct {
    http.ResponseWriter
    gz *gzip.Writer
}

func (g gzipWriter) WriteHeader(code int) {
    g.Header().Del("Content-Length")
    g.ResponseWriter.WriteHeader(code)
}

func (g gzipWriter) Write(b []byte) (int, error) { return g.gz.Write(b) }

// statusWriter remembers the response code for the access log.
type statusWriter struct {
    http.ResponseWriter
    code int
}

func (s *statusWriter) WriteHeader(code int) {
    if s.code == 0 { s.code = code }
    s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
    if s.code == 0 { s.code = http.StatusOK }
    return s.ResponseWriter.Write(b)
}

func (s *server) logRequests(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        sw := &statusWriter{ResponseWriter: w}
        next.ServeHTTP(sw, r)
        if r.URL.Path == "/healthz" { return }
        logger.LogPerformanceEntry(s.log, "http_request", time.Since(start), logger.Fields{
            "method": r.Method,
            "path":   r.URL.Path,
            "status": sw.code,
        })
    })
}

func (s *server) recoverPanic(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                s.log.WithFields(logger.Fields{"path": r.URL.Path, "panic": rec}).Error("handler panicked")
                writeError(w, http.StatusInternalServerError, "internal server error")
            }
        }()
        next.ServeHTTP(w, r)
    })
}

func limitBody(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if (r.Method == http.MethodPost || r.Method == http.MethodPut) && r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }
        next.ServeHTTP(w, r)
    })
}
