package httpx

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net"
    "net/http"
    "net/url"
    "strings"
    "time"
)

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
    HTTP      *http.Client
    UserAgent string
    Headers   map[string]string
}

func New(timeout time.Duration) *Client {
    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          100,
        MaxIdleConnsPerHost:   20,
        MaxConnsPerHost:       20,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   5 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: 15 * time.Second,
    }
    return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: "crypto-vault/1.0"}
}

func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
    if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    return c.HTTP.Do(req.WithContext(ctx))
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
    Method string
    URL    string
    Code   int
    Body   string
}

func (e *StatusError) Error() string {
    return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Throttled reports whether the upstream answered 429.
func (e *StatusError) Throttled() bool { return e.Code == http.StatusTooManyRequests }

// Retryable reports whether the request may succeed when repeated.
func (e *StatusError) Retryable() bool { return e.Code == http.StatusTooManyRequests || e.Code >= 500 }

// IsThrottled reports whether err wraps a 429 StatusError.
func IsThrottled(err error) bool {
    var se *StatusError
    return errors.As(err, &se) && se.Throttled()
}

// GetJSON issues a GET with its own timeout and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, timeout time.Duration, header http.Header, v any) error {
    return c.doJSON(ctx, http.MethodGet, rawURL, nil, timeout, header, v)
}

// PostFormJSON posts form values and decodes the JSON answer into v.
func (c *Client) PostFormJSON(ctx context.Context, rawURL string, form url.Values, timeout time.Duration, header http.Header, v any) error {
    h := header.Clone()
    if h == nil { h = http.Header{} }
    h.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
    return c.doJSON(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), timeout, h, v)
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, body io.Reader, timeout time.Duration, header http.Header, v any) error {
    if timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, timeout)
        defer cancel()
    }
    req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
    if err != nil { return fmt.Errorf("creating request: %w", err) }
    for k, vs := range header {
        for _, x := range vs { req.Header.Add(k, x) }
    }
    if req.Header.Get("Accept") == "" { req.Header.Set("Accept", "application/json") }
    resp, err := c.Do(ctx, req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
        return &StatusError{Method: method, URL: redact(rawURL), Code: resp.StatusCode, Body: string(b)}
    }
    dec := json.NewDecoder(resp.Body)
    dec.UseNumber()
    if err := dec.Decode(v); err != nil { return fmt.Errorf("decode %s: %w", redact(rawURL), err) }
    return nil
}

// redact drops api keys from URLs that end up in errors and logs.
func redact(rawURL string) string {
    u, err := url.Parse(rawURL)
    if err != nil { return rawURL }
    q := u.Query()
    changed := false
    for _, k := range []string{"apikey", "api_key", "x_cg_pro_api_key"} {
        if q.Has(k) { q.Set(k, "REDACTED"); changed = true }
    }
    if changed { u.RawQuery = q.Encode() }
    return u.String()
}
