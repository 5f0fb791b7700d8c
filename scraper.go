package tiktok

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scraper looks up public TikTok profiles. It owns one Engine, so its
// requests are serialised; run one Scraper per worker for parallelism.
type Scraper struct {
	cfg        Config
	engine     *Engine
	locator    *Locator
	normalizer *Normalizer
	logger     zerolog.Logger

	mu sync.Mutex
	// bootedGen is the session generation the home page was last loaded
	// for, or -1.
	bootedGen int
}

// New builds a Scraper from cfg. Extra engine options (logger, shared
// limiter, clock, fingerprint factory) are applied after the ones derived
// from cfg. The browser, if any, is launched on first use.
func New(cfg Config, opts ...EngineOption) (*Scraper, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		transport Transport
		render    *RenderTransport
	)
	switch cfg.Transport {
	case TransportRender:
		render = NewRenderTransport(cfg.Proxy, zerolog.Nop())
		transport = render
	default:
		ht, err := NewHTTPTransport(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		transport = ht
	}

	base := []EngineOption{
		WithBaseURL(cfg.BaseURL),
		WithRotateAfter(cfg.RotateAfter),
		WithTimeout(cfg.Timeout),
		WithPacer(NewPacer(cfg.Pacing, nil)),
		WithFingerprintFactory(NewFingerprintFactory(nil).
			WithPreferMobile(cfg.PreferMobile).
			WithProxyLocation(cfg.ProxyLocation)),
		WithRendered(render != nil),
		WithSignature(cfg.Sign),
	}
	if l := cfg.Limiter(); l != nil {
		base = append(base, WithLimiter(l))
	}
	engine := NewEngine(transport, append(base, opts...)...)
	if render != nil {
		render.logger = engine.logger
	}

	return &Scraper{
		cfg:        cfg,
		engine:     engine,
		locator:    NewLocator(),
		normalizer: NewNormalizer(cfg.Bounds, engine.now),
		logger:     engine.logger,
		bootedGen:  -1,
	}, nil
}

// Engine exposes the underlying request engine.
func (s *Scraper) Engine() *Engine {
	return s.engine
}

// ensureSession loads the home page once per session generation when
// bootstrapping is enabled.
func (s *Scraper) ensureSession(ctx context.Context) {
	if !s.cfg.Bootstrap {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.engine.Session().Generation
	if gen == s.bootedGen {
		return
	}
	s.engine.InitSession(ctx)
	// The bootstrap fetch itself may have rotated the session.
	s.bootedGen = s.engine.Session().Generation
}

// GetProfile fetches and normalizes one profile. Input may be a username,
// "@username" or a profile URL.
func (s *Scraper) GetProfile(ctx context.Context, username string) (*Result, error) {
	name, err := ParseUsername(username)
	if err != nil {
		return nil, err
	}

	totalStart := time.Now()
	s.ensureSession(ctx)

	profileURL := strings.TrimRight(s.engine.BaseURL(), "/") + "/@" + name

	httpStart := time.Now()
	page, err := s.engine.Fetch(ctx, profileURL)
	if err != nil {
		return nil, fmt.Errorf("get profile %q: %w", name, err)
	}
	httpDur := time.Since(httpStart)

	switch {
	case page.StatusCode == http.StatusNotFound || page.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("get profile %q: %w", name, ErrNotFound)
	case page.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("get profile %q: %w: status %d", name, ErrServer, page.StatusCode)
	}

	parseStart := time.Now()
	payload, err := s.locator.Locate(page, name)
	if err != nil {
		if errors.Is(err, ErrExtraction) && accountMissing(page.Body) {
			return nil, fmt.Errorf("get profile %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("get profile %q: %w", name, err)
	}
	profile, report := s.normalizer.Normalize(payload.User, payload.Stats, name)
	parseDur := time.Since(parseStart)

	s.logger.Info().
		Str("user", name).
		Str("source", payload.Source).
		Dur("http", httpDur).
		Dur("parse", parseDur).
		Dur("total", time.Since(totalStart)).
		Int("body", len(page.Body)).
		Int("quality", report.DataQualityScore).
		Msg("profile fetched")

	return &Result{
		Profile:   profile,
		Quality:   report,
		Source:    payload.Source,
		FetchedAt: s.engine.now(),
	}, nil
}

// Close releases the engine and its transport.
func (s *Scraper) Close() error {
	return s.engine.Close()
}
