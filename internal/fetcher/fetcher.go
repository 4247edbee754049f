// Package fetcher downloads HTML pages for the crawler.
//
// A Fetcher turns an absolute URL into the raw bytes of an HTML document or a
// *FetchError. It does not retry: a failure is final for that URL for the rest
// of the crawl.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// DefaultUserAgent identifies the crawler in HTTP requests.
	DefaultUserAgent = "sitecrawl/1.0 (+https://github.com/nao1215/sitecrawl)"

	// DefaultTimeout bounds a single request including the body read.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// maxRedirects stops redirect loops while allowing normal redirects.
	maxRedirects = 10
)

// htmlTypes are the media types treated as HTML documents.
var htmlTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
}

// Response is a successfully fetched HTML page.
type Response struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentType is the media type without parameters.
	ContentType string

	// Content holds the raw body bytes, truncated to the body limit.
	Content []byte
}

// Fetcher downloads pages over HTTP.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	cookie      string
	headers     map[string]string
	maxBodySize int64
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
// Use NewHTTPClient to build one that goes through a SOCKS5 proxy.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithCookie sets the Cookie header sent with every request.
// Format: "name=value" or "name1=value1; name2=value2".
func WithCookie(cookie string) Option {
	return func(f *Fetcher) {
		f.cookie = cookie
	}
}

// WithHeaders adds custom headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(f *Fetcher) {
		f.headers = headers
	}
}

// WithMaxBodySize sets the response body limit. Non-positive values keep
// the default.
func WithMaxBodySize(size int64) Option {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithLogger sets the logger used for per-request debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher. Without WithHTTPClient it uses a direct client
// with DefaultTimeout.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		// A direct client cannot fail to build.
		f.client, _ = NewHTTPClient("", DefaultTimeout) //nolint:errcheck
	}
	return f
}

// NewHTTPClient creates the HTTP client used by a Fetcher. When
// proxyAddress is non-empty, every connection goes through that SOCKS5 proxy.
//
// Design decision: The client keeps a cookie jar so that cookies set by the
// site during the crawl are sent back, just like a browser session.
func NewHTTPClient(proxyAddress string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}

	if proxyAddress != "" {
		if !isValidProxyAddress(proxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// isValidProxyAddress checks that address is "host:port" with a port in
// the range 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// Fetch downloads rawURL and returns its content if it is a non-empty HTML
// document. Every failure is a *FetchError. When ctx is cancelled the
// FetchError wraps the context error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &FetchError{URL: rawURL, Err: ErrInvalidURL}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("%w: %w", ErrInvalidURL, err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrHTTPStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	contentType := mediaType(resp.Header.Get("Content-Type"), body)
	if !htmlTypes[contentType] {
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrNotHTML, contentType),
		}
	}
	if len(body) == 0 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrEmptyBody}
	}

	f.logger.Debug("fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	return &Response{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Content:     body,
	}, nil
}

// mediaType returns the lower-cased media type from a Content-Type header.
// When the header is missing or malformed the type is sniffed from body.
func mediaType(header string, body []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil {
			return mt
		}
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(body))
	if err != nil {
		return ""
	}
	return mt
}
