package tiktok

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://www.tiktok.com"

	// HTTPRotateAfter and RenderRotateAfter are the default session lengths.
	// A browser session is far easier to correlate, so it lives shorter.
	HTTPRotateAfter   = 50
	RenderRotateAfter = 15

	HTTPTimeout   = 15 * time.Second
	RenderTimeout = 20 * time.Second

	// maxFingerprintDraws bounds the search for a fingerprint that differs
	// from the outgoing one.
	maxFingerprintDraws = 8
)

// EngineState is the lifecycle position of an Engine.
type EngineState int

const (
	// StateFresh: no fetch has succeeded yet.
	StateFresh EngineState = iota
	// StateActive: fetching. Rotation keeps the engine active.
	StateActive
	// StateClosed: transport released; every call fails with ErrClosed.
	StateClosed
)

func (s EngineState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("EngineState(%d)", int(s))
	}
}

// Engine performs paced, fingerprinted page fetches and rotates its session
// after a fixed number of requests. Fetches on one Engine are serialised;
// run one Engine per worker for parallelism.
type Engine struct {
	mu sync.Mutex

	transport Transport
	factory   *FingerprintFactory
	pacer     *Pacer
	limiter   *rate.Limiter
	logger    zerolog.Logger
	now       func() time.Time

	baseURL     *url.URL
	rotateAfter int
	timeout     time.Duration
	rendered    bool
	sign        bool

	session Session
	state   EngineState
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRotateAfter sets how many successful fetches a session serves.
// Zero or less disables rotation.
func WithRotateAfter(n int) EngineOption {
	return func(e *Engine) { e.rotateAfter = n }
}

// WithTimeout sets the per-fetch deadline.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithPacer replaces the default HTTP pacer. The engine keeps its own copy
// of p but shares p's random source, so give each engine its own source.
func WithPacer(p *Pacer) EngineOption {
	return func(e *Engine) { e.pacer = p }
}

// WithFingerprintFactory replaces the default factory.
func WithFingerprintFactory(f *FingerprintFactory) EngineOption {
	return func(e *Engine) { e.factory = f }
}

// WithLimiter adds a token bucket consulted before pacing. Sharing one
// limiter across engines caps the aggregate request rate of a batch.
func WithLimiter(l *rate.Limiter) EngineOption {
	return func(e *Engine) { e.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithBaseURL points the engine at another origin, mainly for tests.
func WithBaseURL(raw string) EngineOption {
	return func(e *Engine) {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			e.baseURL = u
		}
	}
}

// WithRendered marks the transport as browser-rendering, which adds the
// Viewport-Width header.
func WithRendered(v bool) EngineOption {
	return func(e *Engine) { e.rendered = v }
}

// WithClock replaces time.Now for pacing bookkeeping and logs.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithSignature attaches the placeholder _signature query parameter.
func WithSignature(v bool) EngineOption {
	return func(e *Engine) { e.sign = v }
}

// NewEngine builds an Engine around t with HTTP defaults and generates the
// first session.
func NewEngine(t Transport, opts ...EngineOption) *Engine {
	base, _ := url.Parse(defaultBaseURL)
	e := &Engine{
		transport:   t,
		logger:      zerolog.Nop(),
		now:         time.Now,
		baseURL:     base,
		rotateAfter: HTTPRotateAfter,
		timeout:     HTTPTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.factory == nil {
		e.factory = NewFingerprintFactory(nil)
	}
	if e.pacer == nil {
		e.pacer = NewPacer(HTTPPacing, nil)
	}
	// LastRequestAt is stamped with e.now, so pacing must measure on it too.
	p := *e.pacer
	p.now = e.now
	e.pacer = &p
	e.session = newSession(e.factory.Generate())
	return e
}

// BaseURL returns the origin the engine talks to.
func (e *Engine) BaseURL() string {
	return e.baseURL.String()
}

// State returns the lifecycle state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SessionInfo is a read-only view of the current session.
type SessionInfo struct {
	Fingerprint   Fingerprint
	RequestCount  int
	LastRequestAt time.Time
	Generation    int
}

// Session returns a snapshot of the current session. The cookie store is
// not exposed.
func (e *Engine) Session() SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SessionInfo{
		Fingerprint:   e.session.Fingerprint,
		RequestCount:  e.session.RequestCount,
		LastRequestAt: e.session.LastRequestAt,
		Generation:    e.session.Generation,
	}
}

// InitSession loads the home page to collect session cookies. Failure is
// reported but not fatal: profile pages usually render without cookies.
func (e *Engine) InitSession(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	page, err := e.fetchLocked(ctx, e.baseURL.String()+"/", false)
	if err != nil {
		e.logger.Warn().Err(err).Msg("session bootstrap failed, continuing without cookies")
		return false
	}
	if page.StatusCode >= 400 {
		e.logger.Warn().Int("status", page.StatusCode).Msg("session bootstrap returned error status")
		return false
	}
	return true
}

// Fetch retrieves rawURL with the current session. Blocked responses return
// a *BlockedError and leave the request count untouched. Other statuses,
// including 404 and 5xx, are returned for the caller to classify.
func (e *Engine) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fetchLocked(ctx, rawURL, true)
}

func (e *Engine) fetchLocked(ctx context.Context, rawURL string, withReferer bool) (*Page, error) {
	if e.state == StateClosed {
		return nil, ErrClosed
	}

	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("%w: bad url %q", ErrValidation, rawURL)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	delay, err := e.pacer.Wait(ctx, e.session.LastRequestAt)
	if err != nil {
		return nil, fmt.Errorf("pacing: %w", err)
	}

	fp := e.session.Fingerprint
	if e.sign {
		target = signURL(target, fp, e.now())
	}

	opts := HeaderOptions{
		Cookie:   e.session.Cookies.HeaderString(target),
		Rendered: e.rendered,
	}
	if withReferer {
		opts.Referer = e.baseURL.String() + "/"
		opts.Origin = e.baseURL.String()
	}

	start := e.now()
	page, err := e.transport.Fetch(ctx, PageRequest{
		URL:         target.String(),
		Header:      fp.Headers(opts),
		Fingerprint: fp,
		Timeout:     e.timeout,
	})
	e.session = e.session.touched(e.now())
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s after %v: %v", ErrTimeout, rawURL, e.timeout, err)
		}
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	if signal, blocked := blockSignal(page.StatusCode, page.Body); blocked {
		e.logger.Warn().
			Str("url", rawURL).
			Int("status", page.StatusCode).
			Str("signal", signal).
			Int("request_count", e.session.RequestCount).
			Msg("request blocked")
		return nil, &BlockedError{StatusCode: page.StatusCode, Signal: signal}
	}

	e.session.Cookies.Set(target, page.Header.Values("Set-Cookie")...)
	e.session = e.session.counted(e.now())
	e.state = StateActive

	e.logger.Debug().
		Str("url", rawURL).
		Int("status", page.StatusCode).
		Dur("delay", delay).
		Dur("http", e.now().Sub(start)).
		Int("body", len(page.Body)).
		Int("request_count", e.session.RequestCount).
		Msg("page fetched")

	if e.session.due(e.rotateAfter) {
		e.rotateLocked(ctx)
	}
	return page, nil
}

// Rotate replaces the fingerprint, cookies and request counter now. Callers
// use it between retries of a failed profile.
func (e *Engine) Rotate(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return ErrClosed
	}
	e.rotateLocked(ctx)
	return nil
}

func (e *Engine) rotateLocked(ctx context.Context) {
	old := e.session.Fingerprint
	fp := e.factory.Generate()
	for i := 1; i < maxFingerprintDraws && fp.DeviceID == old.DeviceID; i++ {
		fp = e.factory.Generate()
	}
	served := e.session.RequestCount
	e.session = e.session.rotated(fp)

	if r, ok := e.transport.(sessionResetter); ok {
		if err := r.ResetSession(ctx); err != nil {
			e.logger.Warn().Err(err).Msg("transport session reset failed")
		}
	}

	e.logger.Info().
		Int("served", served).
		Int("generation", e.session.Generation).
		Str("device_id", fp.DeviceID).
		Str("platform", fp.BrowserPlatform).
		Str("timezone", fp.Timezone).
		Msg("session rotated")
}

// Close releases the transport. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return nil
	}
	e.state = StateClosed
	if err := e.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
