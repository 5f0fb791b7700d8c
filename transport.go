package tiktok

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/proxy"
)

// maxBodySize caps how much of a profile page is read.
const maxBodySize = 8 << 20

// PageRequest is one page fetch as handed to a Transport.
type PageRequest struct {
	URL         string
	Header      http.Header
	Fingerprint Fingerprint
	Timeout     time.Duration
}

// Page is what a Transport returns.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	// Rendered is set when the body is a browser-rendered DOM.
	Rendered bool
	// Evaluated holds JSON values read from page globals by a rendering
	// transport, keyed by container id.
	Evaluated map[string][]byte
}

// Transport performs page fetches. Implementations own their network
// resources (connection pools, browsers, proxies).
type Transport interface {
	Fetch(ctx context.Context, req PageRequest) (*Page, error)
	Close() error
}

// sessionResetter is implemented by transports that keep their own session
// state, such as a browser profile, which must be wiped on rotation.
type sessionResetter interface {
	ResetSession(ctx context.Context) error
}

// HTTPTransport fetches pages with net/http. It deliberately has no cookie
// jar; cookies belong to the Engine's session.
type HTTPTransport struct {
	client *http.Client
	proxy  string
}

// defaultTransport returns an http.Transport tuned for scraping:
// connection pooling, keep-alive, and TLS handshake caching.
func defaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// NewHTTPTransport returns a transport, optionally routed through an
// http, https or socks5 proxy.
func NewHTTPTransport(proxyAddr string) (*HTTPTransport, error) {
	t := &HTTPTransport{client: &http.Client{Transport: defaultTransport()}}
	if err := t.SetProxy(proxyAddr); err != nil {
		return nil, err
	}
	return t, nil
}

// SetProxy configures an HTTP/HTTPS or SOCKS5 proxy. An empty address
// restores a direct connection. Pooling and keep-alive settings are kept.
func (t *HTTPTransport) SetProxy(proxyAddr string) error {
	if proxyAddr == "" {
		t.client.Transport = defaultTransport()
		t.proxy = ""
		return nil
	}

	u, err := url.Parse(proxyAddr)
	if err != nil {
		return fmt.Errorf("%w: parse proxy url: %v", ErrValidation, err)
	}

	base := defaultTransport()

	switch u.Scheme {
	case "http", "https":
		base.Proxy = http.ProxyURL(u)
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("socks5 proxy: %w", err)
		}
		dc, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("socks5: context dialer not supported")
		}
		base.DialContext = dc.DialContext
	default:
		return fmt.Errorf("%w: unsupported proxy scheme %q", ErrValidation, u.Scheme)
	}

	t.client.Transport = base
	t.proxy = proxyAddr
	return nil
}

// Fetch performs a GET. Non-2xx statuses are returned as pages, not errors;
// classifying them is the Engine's job.
func (t *HTTPTransport) Fetch(ctx context.Context, pr PageRequest) (*Page, error) {
	if pr.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pr.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pr.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = pr.Header.Clone()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Page{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// decodeBody undoes Content-Encoding. Go only decompresses transparently
// when it chose Accept-Encoding itself, which a browser-like header set
// prevents.
func decodeBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return raw, nil
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	default:
		return raw, nil
	}
	return io.ReadAll(io.LimitReader(r, maxBodySize))
}

// Close drops idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
