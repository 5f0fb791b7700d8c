package tiktok

import (
	"math/rand/v2"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// deviceIDPrefix is prepended to 17 random hex characters.
const deviceIDPrefix = "75"

// defaultBrowserVersion is used when no major version can be parsed from the UA.
const defaultBrowserVersion = "125"

// Random is the source of randomness used by FingerprintFactory and Pacer.
// *rand.Rand satisfies it; tests inject scripted sequences.
type Random interface {
	Float64() float64
	IntN(n int) int
}

// Screen is the emulated display.
type Screen struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Platform string `json:"platform"`
}

// Fingerprint is the coherent set of device attributes presented for one
// session. It is never modified after generation.
type Fingerprint struct {
	DeviceID        string `json:"deviceId"`
	UserAgent       string `json:"userAgent"`
	Screen          Screen `json:"screenSize"`
	Timezone        string `json:"timezone"`
	BrowserPlatform string `json:"browserPlatform"`
	Focused         bool   `json:"focusState"`
	Visible         bool   `json:"isPageVisible"`
}

var desktopUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
}

var mobileUserAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 18_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPad; CPU OS 17_7 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.7 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Mobile Safari/537.36",
}

// Screens are drawn independently of the UA; a desktop UA can end up with a
// phone-sized screen.
var screens = []Screen{
	{Width: 1920, Height: 1080, Platform: "desktop"},
	{Width: 1366, Height: 768, Platform: "desktop"},
	{Width: 1536, Height: 864, Platform: "desktop"},
	{Width: 1440, Height: 900, Platform: "desktop"},
	{Width: 2560, Height: 1440, Platform: "desktop"},
	{Width: 390, Height: 844, Platform: "mobile"},
	{Width: 412, Height: 915, Platform: "mobile"},
	{Width: 820, Height: 1180, Platform: "tablet"},
}

const regionDefault = "DEFAULT"

var timezones = map[string][]string{
	"US":          {"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles"},
	"GB":          {"Europe/London"},
	"EU":          {"Europe/Berlin", "Europe/Paris", "Europe/Madrid", "Europe/Amsterdam"},
	"APAC":        {"Asia/Tokyo", "Asia/Singapore", "Australia/Sydney", "Asia/Hong_Kong"},
	"BR":          {"America/Sao_Paulo"},
	"IN":          {"Asia/Kolkata"},
	regionDefault: {"America/New_York", "Europe/London", "America/Los_Angeles"},
}

// regionHints is checked in order; the first substring hit wins.
var regionHints = []struct {
	region string
	tokens []string
}{
	{"US", []string{"us"}},
	{"GB", []string{"gb", "uk"}},
	{"EU", []string{"eu"}},
	{"APAC", []string{"apac"}},
	{"BR", []string{"br"}},
	{"IN", []string{"in"}},
}

// FingerprintFactory generates fingerprints. It is not safe for concurrent
// use; each Engine owns one.
type FingerprintFactory struct {
	rand          Random
	preferMobile  bool
	proxyLocation string
}

// NewFingerprintFactory returns a factory drawing from r. A nil r uses a
// randomly seeded PCG source.
func NewFingerprintFactory(r Random) *FingerprintFactory {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &FingerprintFactory{rand: r}
}

// WithPreferMobile lets a third of generated fingerprints use mobile UAs.
func (f *FingerprintFactory) WithPreferMobile(v bool) *FingerprintFactory {
	f.preferMobile = v
	return f
}

// WithProxyLocation sets the hint used to pick a plausible timezone.
func (f *FingerprintFactory) WithProxyLocation(loc string) *FingerprintFactory {
	f.proxyLocation = loc
	return f
}

// Generate produces a new fingerprint.
func (f *FingerprintFactory) Generate() Fingerprint {
	ua := f.pickUserAgent()
	tzPool := timezones[regionFor(f.proxyLocation)]
	return Fingerprint{
		DeviceID:        f.deviceID(),
		UserAgent:       ua,
		Screen:          screens[f.rand.IntN(len(screens))],
		Timezone:        tzPool[f.rand.IntN(len(tzPool))],
		BrowserPlatform: browserPlatform(ua),
		Focused:         f.rand.Float64() < 0.85,
		Visible:         f.rand.Float64() < 0.90,
	}
}

func (f *FingerprintFactory) pickUserAgent() string {
	if f.preferMobile && f.rand.Float64() < 0.33 {
		pool := make([]string, 0, len(desktopUserAgents)+len(mobileUserAgents))
		pool = append(pool, desktopUserAgents...)
		pool = append(pool, mobileUserAgents...)
		return pool[f.rand.IntN(len(pool))]
	}
	return desktopUserAgents[f.rand.IntN(len(desktopUserAgents))]
}

func (f *FingerprintFactory) deviceID() string {
	const hexDigits = "0123456789abcdef"
	var b strings.Builder
	b.Grow(len(deviceIDPrefix) + 17)
	b.WriteString(deviceIDPrefix)
	for range 17 {
		b.WriteByte(hexDigits[f.rand.IntN(16)])
	}
	return b.String()
}

// regionFor maps a free-form proxy location ("us-east", "London, UK") to a
// timezone pool key.
func regionFor(location string) string {
	loc := strings.ToLower(location)
	if loc == "" {
		return regionDefault
	}
	for _, h := range regionHints {
		for _, tok := range h.tokens {
			if strings.Contains(loc, tok) {
				return h.region
			}
		}
	}
	return regionDefault
}

// browserPlatform mirrors navigator.platform for a UA.
func browserPlatform(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	case strings.Contains(ua, "Linux x86_64"):
		return "Linux"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return "iPhone"
	case strings.Contains(ua, "Android"):
		return "Android"
	default:
		return "Win32"
	}
}

// chPlatform is the Sec-Ch-Ua-Platform value for a navigator.platform value.
func chPlatform(platform string) string {
	switch platform {
	case "MacIntel":
		return "macOS"
	case "Linux":
		return "Linux"
	case "iPhone":
		return "iOS"
	case "Android":
		return "Android"
	default:
		return "Windows"
	}
}

var (
	edgeVersionRe    = regexp.MustCompile(`Edg/(\d+)`)
	chromeVersionRe  = regexp.MustCompile(`Chrome/(\d+)`)
	firefoxVersionRe = regexp.MustCompile(`Firefox/(\d+)`)
	safariVersionRe  = regexp.MustCompile(`Version/(\d+)`)
)

// browserFamily returns the browser brand and its major version.
func browserFamily(ua string) (family, version string) {
	match := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(ua); len(m) > 1 {
			return m[1]
		}
		return defaultBrowserVersion
	}
	switch {
	case strings.Contains(ua, "Edg/"):
		return "Microsoft Edge", match(edgeVersionRe)
	case strings.Contains(ua, "Chrome/"):
		return "Google Chrome", match(chromeVersionRe)
	case strings.Contains(ua, "Firefox/"):
		return "Firefox", match(firefoxVersionRe)
	case strings.Contains(ua, "Safari/"):
		return "Safari", match(safariVersionRe)
	default:
		return "Google Chrome", defaultBrowserVersion
	}
}

// secChUa builds the brand list a Chromium browser of that version sends.
func secChUa(family, version string) string {
	return `"` + family + `";v="` + version + `", "Chromium";v="` + version + `", "Not_A Brand";v="24"`
}

// HeaderOptions carries per-request values that are not part of the
// fingerprint itself.
type HeaderOptions struct {
	Cookie   string
	Referer  string
	Origin   string
	Rendered bool
}

// Headers builds the request header set for this fingerprint. Client hints
// are emitted only for Chromium browsers and always agree with the UA;
// Firefox and Safari never send them.
func (fp Fingerprint) Headers(opts HeaderOptions) http.Header {
	h := http.Header{}
	h.Set("User-Agent", fp.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")

	family, version := browserFamily(fp.UserAgent)
	if family == "Google Chrome" || family == "Microsoft Edge" {
		h.Set("Sec-Ch-Ua", secChUa(family, version))
		mobile := "?0"
		if strings.Contains(fp.UserAgent, "Mobile") {
			mobile = "?1"
		}
		h.Set("Sec-Ch-Ua-Mobile", mobile)
		h.Set("Sec-Ch-Ua-Platform", strconv.Quote(chPlatform(fp.BrowserPlatform)))
	}

	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	if opts.Referer != "" {
		h.Set("Sec-Fetch-Site", "same-origin")
		h.Set("Referer", opts.Referer)
	} else {
		h.Set("Sec-Fetch-Site", "none")
	}
	if opts.Origin != "" {
		h.Set("Origin", opts.Origin)
	}
	if opts.Cookie != "" {
		h.Set("Cookie", opts.Cookie)
	}
	if opts.Rendered {
		h.Set("Viewport-Width", strconv.Itoa(fp.Screen.Width))
	}
	return h
}
