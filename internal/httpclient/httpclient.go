package httpclient

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const defaultTimeout = 180 * time.Second

type Options struct {
	PreferIPv4 bool
	// Timeout bounds a whole model call, including reading the image body.
	Timeout time.Duration
	// Logger receives one debug line per request. Nil disables it.
	Logger *slog.Logger
}

// New builds the client used for model-service calls. Image synthesis can
// hold the response headers for minutes, so the header timeout follows the
// overall timeout instead of a fixed value.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var transport http.RoundTripper = newTransport(opts.PreferIPv4, timeout)
	if opts.Logger != nil {
		transport = &loggingTransport{next: transport, log: opts.Logger}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func newTransport(preferIPv4 bool, headerTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: 15 * time.Second, KeepAlive: 30 * time.Second}
	dial := dialer.DialContext
	if preferIPv4 {
		dial = func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		}
	}

	// Only one model host is used, so the idle pool stays small.
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// loggingTransport records method, path, status and latency. Headers and the
// query are never logged since they carry the API key.
type loggingTransport struct {
	next http.RoundTripper
	log  *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.next.RoundTrip(req)
	attrs := []any{
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"duration", time.Since(started).String(),
	}
	if err != nil {
		t.log.Debug("model request failed", append(attrs, "err", err)...)
		return nil, err
	}
	t.log.Debug("model request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
