package tiktok

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// AppName names the config directory and files.
const AppName = "tiktok-profiles"

// TransportKind selects how pages are fetched.
type TransportKind string

const (
	TransportHTTP   TransportKind = "http"
	TransportRender TransportKind = "render"
)

// maxConcurrency caps batch workers; every worker is a separate identity
// hitting the same site.
const maxConcurrency = 16

// RetryConfig controls GetProfileWithRetry.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// LoggingConfig selects level and output format ("console" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full scraper configuration. Zero values for RotateAfter,
// Timeout and Pacing are filled in per transport.
type Config struct {
	Transport     TransportKind `yaml:"transport"`
	BaseURL       string        `yaml:"base_url"`
	Proxy         string        `yaml:"proxy"`
	ProxyLocation string        `yaml:"proxy_location"`
	PreferMobile  bool          `yaml:"prefer_mobile"`

	RotateAfter int           `yaml:"rotate_after"`
	Timeout     time.Duration `yaml:"timeout"`
	Pacing      PacingConfig  `yaml:"pacing"`
	// RequestsPerMinute caps the aggregate rate across batch workers.
	// Zero disables the cap.
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Bootstrap         bool `yaml:"bootstrap"`
	Sign              bool `yaml:"sign"`

	Retry       RetryConfig   `yaml:"retry"`
	Concurrency int           `yaml:"concurrency"`
	Bounds      Bounds        `yaml:"bounds"`
	Logging     LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the HTTP-transport defaults.
func DefaultConfig() Config {
	cfg := Config{
		Transport: TransportHTTP,
		BaseURL:   defaultBaseURL,
		Bootstrap: true,
		Retry: RetryConfig{
			Attempts:  3,
			BaseDelay: 2 * time.Second,
			MaxDelay:  30 * time.Second,
		},
		Concurrency: 1,
		Bounds:      DefaultBounds,
		Logging:     LoggingConfig{Level: "info", Format: "console"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportHTTP
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	rotate, timeout, pacing := transportDefaults(c.Transport)
	if c.RotateAfter == 0 {
		c.RotateAfter = rotate
	}
	if c.Timeout == 0 {
		c.Timeout = timeout
	}
	if c.Pacing == (PacingConfig{}) {
		c.Pacing = pacing
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 1
	}
	c.Bounds = c.Bounds.withDefaults()
}

func transportDefaults(k TransportKind) (int, time.Duration, PacingConfig) {
	if k == TransportRender {
		return RenderRotateAfter, RenderTimeout, RenderPacing
	}
	return HTTPRotateAfter, HTTPTimeout, HTTPPacing
}

// SetTransport switches transport. Session length, timeout and pacing that
// still hold the old transport's defaults move to the new one's; explicit
// values are kept.
func (c *Config) SetTransport(k TransportKind) {
	if c.Transport == k {
		return
	}
	rotate, timeout, pacing := transportDefaults(c.Transport)
	if c.RotateAfter == rotate {
		c.RotateAfter = 0
	}
	if c.Timeout == timeout {
		c.Timeout = 0
	}
	if c.Pacing == pacing {
		c.Pacing = PacingConfig{}
	}
	c.Transport = k
	c.applyDefaults()
}

// FindConfigFile returns the first existing config file among
// ./.tiktok-profiles.yaml and $XDG_CONFIG_HOME/tiktok-profiles/config.yaml,
// or "" if there is none.
func FindConfigFile() string {
	candidates := []string{
		"." + AppName + ".yaml",
		filepath.Join(xdg.ConfigHome, AppName, "config.yaml"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadDotEnv exports the variables in path. A missing file is fine; a
// malformed one is not.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadConfig builds a Config from defaults, a YAML file, a .env file and
// TIKTOK_* environment variables, in increasing precedence. An empty path
// searches the default locations; a missing default file is not an error.
func LoadConfig(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Bootstrap:   true,
		Retry:       DefaultConfig().Retry,
		Concurrency: 1,
		Logging:     LoggingConfig{Level: "info", Format: "console"},
	}

	if path == "" {
		path = FindConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from TIKTOK_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	if v, ok := lookup("TIKTOK_TRANSPORT"); ok && v != "" {
		c.Transport = TransportKind(strings.ToLower(v))
	}
	str("TIKTOK_BASE_URL", &c.BaseURL)
	str("TIKTOK_PROXY", &c.Proxy)
	str("TIKTOK_PROXY_LOCATION", &c.ProxyLocation)
	boolean("TIKTOK_PREFER_MOBILE", &c.PreferMobile)
	integer("TIKTOK_ROTATE_AFTER", &c.RotateAfter)
	duration("TIKTOK_TIMEOUT", &c.Timeout)
	integer("TIKTOK_REQUESTS_PER_MINUTE", &c.RequestsPerMinute)
	boolean("TIKTOK_BOOTSTRAP", &c.Bootstrap)
	boolean("TIKTOK_SIGN", &c.Sign)
	integer("TIKTOK_RETRY_ATTEMPTS", &c.Retry.Attempts)
	integer("TIKTOK_CONCURRENCY", &c.Concurrency)
	str("TIKTOK_LOG_LEVEL", &c.Logging.Level)
	str("TIKTOK_LOG_FORMAT", &c.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%w: environment: %w", ErrValidation, errors.Join(errs...))
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportHTTP, TransportRender:
	default:
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", TransportHTTP, TransportRender, c.Transport))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q is not an absolute url", c.BaseURL))
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("proxy %q is not a url", c.Proxy))
		} else if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
			errs = append(errs, fmt.Errorf("proxy scheme %q not supported", u.Scheme))
		}
	}
	if c.RotateAfter < 0 {
		errs = append(errs, errors.New("rotate_after cannot be negative"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.Pacing.Min < 0 || c.Pacing.Max <= 0 || c.Pacing.Min > c.Pacing.Max {
		errs = append(errs, fmt.Errorf("pacing bounds [%v, %v] are invalid", c.Pacing.Min, c.Pacing.Max))
	}
	if c.Pacing.Mean < 0 || c.Pacing.StdDev < 0 {
		errs = append(errs, errors.New("pacing mean and stddev cannot be negative"))
	}
	if c.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests_per_minute cannot be negative"))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays cannot be negative"))
	}
	if c.Concurrency < 1 || c.Concurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("concurrency must be between 1 and %d", maxConcurrency))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
	}
	return nil
}

// Limiter returns the shared rate limiter, or nil when uncapped.
func (c Config) Limiter() *rate.Limiter {
	if c.RequestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.RequestsPerMinute)), 1)
}

func parseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
