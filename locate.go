package tiktok

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// defaultScanDepth bounds the generic walk over untrusted script JSON.
	defaultScanDepth = 10
	// minScriptSize skips inline scripts too short to hold a profile.
	minScriptSize = 100
	// statsMarker must appear in a script for it to be scanned.
	statsMarker = "followerCount"
)

// Locator finds the raw profile subtrees in a fetched page.
type Locator struct {
	maxDepth int
}

// NewLocator returns a Locator with the default scan depth.
func NewLocator() *Locator {
	return &Locator{maxDepth: defaultScanDepth}
}

// WithMaxDepth sets how deep the generic script scan descends.
func (l *Locator) WithMaxDepth(d int) *Locator {
	l.maxDepth = d
	return l
}

// Locate tries the known containers in priority order, then a generic scan
// of inline scripts, then (rendered pages only) the visible counters.
func (l *Locator) Locate(page *Page, username string) (*Payload, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrExtraction, err)
	}

	for _, c := range containers {
		for _, data := range containerData(doc, page, c.id()) {
			if p, ok := c.extract(data, username); ok {
				p.Source = c.source()
				return p, nil
			}
		}
	}

	if p := l.scanScripts(doc, username); p != nil {
		p.Source = SourceScriptScan
		return p, nil
	}

	if page.Rendered {
		if p := domCounters(doc, username); p != nil {
			p.Source = SourceDOMText
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: no profile data for %q", ErrExtraction, username)
}

// containerData returns the candidate JSON texts for a container: the
// script element's content, then the evaluated page global.
func containerData(doc *goquery.Document, page *Page, id string) [][]byte {
	var out [][]byte
	text := doc.Find(`script[id="` + id + `"]`).First().Text()
	if strings.TrimSpace(text) != "" {
		out = append(out, []byte(text))
	}
	if v := page.Evaluated[id]; len(v) > 0 {
		out = append(out, v)
	}
	return out
}

func (l *Locator) scanScripts(doc *goquery.Document, username string) *Payload {
	lowerName := strings.ToLower(username)
	var found *Payload
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if len(text) < minScriptSize || !strings.Contains(text, statsMarker) {
			return true
		}
		if !strings.Contains(strings.ToLower(text), lowerName) {
			return true
		}
		root, ok := parseScriptJSON(text)
		if !ok {
			return true
		}
		found = findProfile(root, username, l.maxDepth)
		return found == nil
	})
	return found
}

// parseScriptJSON decodes the whole script, else its outermost {...} span,
// which covers assignments like `window.x = {...};`.
func parseScriptJSON(text string) (any, bool) {
	var v any
	trimmed := strings.TrimSpace(text)
	if err := decodeJSON([]byte(trimmed), &v); err == nil {
		return v, true
	}
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	if err := decodeJSON([]byte(trimmed[start:end+1]), &v); err != nil {
		return nil, false
	}
	return v, true
}

type walkItem struct {
	node   any
	parent map[string]any
	depth  int
}

// findProfile walks root depth-first with an explicit stack. Nodes deeper
// than maxDepth are never visited. Object keys are visited in sorted order
// so the first match is stable.
func findProfile(root any, username string, maxDepth int) *Payload {
	stack := []walkItem{{node: root}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := it.node.(type) {
		case map[string]any:
			if p := matchUserInfo(v, username); p != nil {
				return p
			}
			if p := matchUniqueID(v, it.parent, username); p != nil {
				return p
			}
			if it.depth >= maxDepth {
				continue
			}
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for i := len(keys) - 1; i >= 0; i-- {
				switch child := v[keys[i]].(type) {
				case map[string]any, []any:
					stack = append(stack, walkItem{node: child, parent: v, depth: it.depth + 1})
				}
			}
		case []any:
			if it.depth >= maxDepth {
				continue
			}
			for i := len(v) - 1; i >= 0; i-- {
				switch child := v[i].(type) {
				case map[string]any, []any:
					stack = append(stack, walkItem{node: child, depth: it.depth + 1})
				}
			}
		}
	}
	return nil
}

// matchUserInfo matches {userInfo: {user: {uniqueId: u}, stats: {...}}}.
func matchUserInfo(m map[string]any, username string) *Payload {
	info, ok := m["userInfo"].(map[string]any)
	if !ok {
		return nil
	}
	user, ok := info["user"].(map[string]any)
	if !ok {
		return nil
	}
	if id, _ := user["uniqueId"].(string); !strings.EqualFold(id, username) {
		return nil
	}
	stats, _ := info["stats"].(map[string]any)
	if stats == nil {
		stats, _ = info["statsV2"].(map[string]any)
	}
	if stats == nil {
		stats = map[string]any{}
	}
	return &Payload{User: user, Stats: stats}
}

// matchUniqueID matches an object whose own uniqueId is u. Stats come from
// a sibling "stats", a nested "stats", or the object itself.
func matchUniqueID(m, parent map[string]any, username string) *Payload {
	id, ok := m["uniqueId"].(string)
	if !ok || !strings.EqualFold(id, username) {
		return nil
	}
	stats, _ := parent["stats"].(map[string]any)
	if stats == nil {
		stats, _ = m["stats"].(map[string]any)
	}
	if stats == nil {
		stats = m
	}
	return &Payload{User: m, Stats: stats}
}

// DOM counters on a rendered profile page.
var domSelectors = map[string]string{
	"followerCount":  `[data-e2e="followers-count"]`,
	"followingCount": `[data-e2e="following-count"]`,
	"heartCount":     `[data-e2e="likes-count"]`,
}

func domCounters(doc *goquery.Document, username string) *Payload {
	title := strings.TrimPrefix(strings.TrimSpace(doc.Find(`[data-e2e="user-title"]`).First().Text()), "@")
	if title != "" && !strings.EqualFold(title, username) {
		return nil
	}

	stats := map[string]any{}
	for key, sel := range domSelectors {
		if n, ok := parseAbbreviated(doc.Find(sel).First().Text()); ok {
			stats[key] = n
		}
	}
	if _, ok := stats["followerCount"]; !ok {
		return nil
	}

	user := map[string]any{"uniqueId": username}
	if title != "" {
		user["uniqueId"] = title
	}
	if sub := strings.TrimSpace(doc.Find(`[data-e2e="user-subtitle"]`).First().Text()); sub != "" {
		user["nickname"] = sub
	}
	if bio := strings.TrimSpace(doc.Find(`[data-e2e="user-bio"]`).First().Text()); bio != "" && bio != "No bio yet." {
		user["signature"] = bio
	}
	return &Payload{User: user, Stats: stats}
}

var abbrevMultipliers = map[byte]float64{
	'K': 1e3,
	'M': 1e6,
	'B': 1e9,
}

// parseAbbreviated reads counters like "1.2M", "500K", "3B" or "12,345".
func parseAbbreviated(s string) (int64, bool) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if s == "" {
		return 0, false
	}
	mult := 1.0
	if m, ok := abbrevMultipliers[s[len(s)-1]]; ok {
		mult = m
		s = strings.TrimSpace(s[:len(s)-1])
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int64(math.Round(f * mult)), true
}

// The missing-account page is served with status 200.
var missingAccountMarkers = [][]byte{
	[]byte(`"statusCode":10202`),
	[]byte(`"statusCode":10221`),
	[]byte("Couldn't find this account"),
}

func accountMissing(body []byte) bool {
	for _, m := range missingAccountMarkers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}
