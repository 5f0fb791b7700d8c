//go:build !unittest

package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

// RenderTransport loads pages in a headless Chrome with stealth patches, so
// client-rendered profiles and page globals are visible.
type RenderTransport struct {
	mu sync.Mutex

	proxy  string
	logger zerolog.Logger

	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	timezone string
}

// NewRenderTransport returns a transport that launches its browser lazily
// on the first fetch.
func NewRenderTransport(proxyAddr string, logger zerolog.Logger) *RenderTransport {
	return &RenderTransport{proxy: proxyAddr, logger: logger}
}

func (t *RenderTransport) launch() error {
	l := launcher.New().Headless(true)
	if t.proxy != "" {
		l = l.Proxy(t.proxy)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create stealth page: %w", err)
	}

	t.browser = browser
	t.page = page
	t.timezone = ""
	t.setupResourceBlocking()

	t.logger.Debug().Str("proxy", t.proxy).Msg("browser launched")
	return nil
}

func (t *RenderTransport) setupResourceBlocking() {
	router := t.browser.HijackRequests()
	blocked := []string{"*.css", "*.png", "*.jpg", "*.jpeg", "*.webp", "*.mp4", "*.woff*", "*.svg", "*analytics*"}
	for _, pattern := range blocked {
		router.MustAdd(pattern, func(ctx *rod.Hijack) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
	t.router = router
}

// applyFingerprint makes the page present the fingerprint: user agent,
// headers, viewport and timezone.
func (t *RenderTransport) applyFingerprint(page *rod.Page, pr PageRequest) error {
	fp := pr.Fingerprint

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: pr.Header.Get("Accept-Language"),
		Platform:       fp.BrowserPlatform,
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}

	// The browser negotiates encoding and owns its cookies.
	var extra []string
	for k, vs := range pr.Header {
		switch http.CanonicalHeaderKey(k) {
		case "User-Agent", "Accept-Encoding", "Cookie":
			continue
		}
		extra = append(extra, k, strings.Join(vs, ", "))
	}
	if len(extra) > 0 {
		if _, err := page.SetExtraHeaders(extra); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.Screen.Width,
		Height:            fp.Screen.Height,
		DeviceScaleFactor: 1,
		Mobile:            strings.Contains(fp.UserAgent, "Mobile"),
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	// Chrome rejects re-applying the override that is already active.
	if fp.Timezone != "" && fp.Timezone != t.timezone {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: fp.Timezone}).Call(page); err != nil {
			t.logger.Debug().Err(err).Str("timezone", fp.Timezone).Msg("timezone override failed")
		} else {
			t.timezone = fp.Timezone
		}
	}
	return nil
}

// Fetch navigates to the URL and returns the rendered DOM together with
// the JSON of any known page globals.
func (t *RenderTransport) Fetch(ctx context.Context, pr PageRequest) (*Page, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.page == nil {
		if err := t.launch(); err != nil {
			return nil, err
		}
	}

	page := t.page.Context(ctx)
	if pr.Timeout > 0 {
		page = page.Timeout(pr.Timeout)
	}

	if err := t.applyFingerprint(page, pr); err != nil {
		return nil, err
	}

	navStart := time.Now()
	if err := page.Navigate(pr.URL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	if err := page.WaitStable(time.Second); err != nil {
		t.logger.Debug().Err(err).Msg("page did not settle, reading as is")
	}
	t.logger.Debug().Dur("navigate", time.Since(navStart)).Str("url", pr.URL).Msg("page rendered")

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	status := http.StatusOK
	if res, err := page.Eval(`() => {
		const e = performance.getEntriesByType('navigation')[0];
		return e && e.responseStatus ? e.responseStatus : 200;
	}`); err == nil {
		status = res.Value.Int()
	}

	evaluated := make(map[string][]byte)
	for _, name := range pageGlobals {
		res, err := page.Eval(`(name) => {
			try {
				const v = window[name];
				return v === undefined || v === null ? "" : JSON.stringify(v);
			} catch (e) {
				return "";
			}
		}`, name)
		if err != nil {
			continue
		}
		if s := res.Value.Str(); s != "" {
			evaluated[name] = []byte(s)
		}
	}

	header := make(http.Header)
	if cookies, err := page.Cookies([]string{pr.URL}); err == nil {
		for _, c := range cookies {
			header.Add("Set-Cookie", (&http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
			}).String())
		}
	}

	finalURL := pr.URL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &Page{
		URL:        finalURL,
		StatusCode: status,
		Header:     header,
		Body:       []byte(html),
		Rendered:   true,
		Evaluated:  evaluated,
	}, nil
}

// ResetSession wipes browser cookies so the next fingerprint starts clean.
func (t *RenderTransport) ResetSession(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.page == nil {
		return nil
	}
	if err := t.page.Context(ctx).SetCookies(nil); err != nil {
		return fmt.Errorf("clear browser cookies: %w", err)
	}
	return nil
}

// Close shuts the browser down.
func (t *RenderTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.router != nil {
		_ = t.router.Stop()
		t.router = nil
	}
	if t.page != nil {
		if err := t.page.Close(); err != nil {
			return fmt.Errorf("close page: %w", err)
		}
		t.page = nil
	}
	if t.browser != nil {
		if err := t.browser.Close(); err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
		t.browser = nil
	}
	return nil
}
