// Package fetcher retrieves rendered recipe pages while presenting a
// realistic browser identity. A chromedp renderer is the primary engine; a
// plain HTTP fetcher serves as the non-rendering fallback. Failures are
// classified as retryable or fatal so the retry wrapper can decide whether
// another attempt is worthwhile.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"recipeharvest/pkg/types"
)

// FailKind classifies a fetch failure for retry decisions.
type FailKind string

const (
	// FailRetryable covers timeouts, connection resets, and transient
	// server-side errors. Another attempt with a fresh fingerprint may succeed.
	FailRetryable FailKind = "retryable"
	// FailFatal covers permanent client errors (404, 410, blocked URLs).
	// Retrying cannot change the outcome.
	FailFatal FailKind = "fatal"
)

// FetchError wraps a navigation failure with its retry classification.
type FetchError struct {
	Kind FailKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a fetch failure worth retrying.
// Unclassified errors are treated as retryable so that transient transport
// problems never silently exhaust a result.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == FailRetryable
	}
	return true
}

// PageFetcher obtains rendered HTML for a URL under a given fingerprint.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, fp Fingerprint) (*types.Page, error)
}

// Options controls plain HTTP fetching behaviour.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// HTTPFetcher implements PageFetcher via the Go http.Client. It is used when
// headless rendering is disabled and as the delivery path for fixture-driven
// tests.
type HTTPFetcher struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 6 * 1024 * 1024
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &HTTPFetcher{
		client:       &http.Client{Timeout: opts.Timeout, Transport: transport},
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Fetch downloads a single URL, decoding compressed bodies and classifying
// HTTP status codes into the retryable/fatal taxonomy.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, fp Fingerprint) (*types.Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{Kind: FailFatal, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &FetchError{Kind: FailFatal, URL: rawURL, Err: err}
	}
	applyHeaders(req.Header, fp)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: FailRetryable, URL: rawURL, Err: err}
	}

	if kind, bad := classifyStatus(resp.StatusCode); bad {
		_ = resp.Body.Close()
		return nil, &FetchError{Kind: kind, URL: rawURL, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, &FetchError{Kind: FailRetryable, URL: rawURL, Err: err}
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &types.Page{
		URL:             target,
		FinalURL:        finalURL,
		Body:            body,
		StatusCode:      resp.StatusCode,
		FetchedAt:       time.Now(),
		Rendered:        false,
		ResponseLatency: time.Since(start),
	}, nil
}

// Client exposes the underlying HTTP client for reuse (eg. robots.txt fetches).
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}

func applyHeaders(h http.Header, fp Fingerprint) {
	if fp.UserAgent != "" {
		h.Set("User-Agent", fp.UserAgent)
	}
	lang := fp.AcceptLanguage
	if lang == "" {
		lang = "en-US,en;q=0.9"
	}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", lang)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
}

// classifyStatus maps an HTTP status to a failure kind. 408 and 429 are
// transient by definition; other 4xx codes are permanent.
func classifyStatus(code int) (FailKind, bool) {
	switch {
	case code >= 200 && code < 400:
		return "", false
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return FailRetryable, true
	case code >= 400 && code < 500:
		return FailFatal, true
	default:
		return FailRetryable, true
	}
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}
