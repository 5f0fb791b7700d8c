package tiktok

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// overflowOffset undoes a 32-bit signed wrap in upstream counters.
const overflowOffset = 1 << 32

// firstCreateYear is the earliest plausible account creation year.
const firstCreateYear = 2016

// Bounds are realism ceilings for recovered counters. A zero field means the
// default. The defaults are heuristics, not properties of the platform.
type Bounds struct {
	Followers float64 `yaml:"followers"`
	Likes     float64 `yaml:"likes"`
	// Counts applies to following, videos and friends.
	Counts float64 `yaml:"counts"`
}

// DefaultBounds: 1B followers, 100T likes, 1B for other counts.
var DefaultBounds = Bounds{Followers: 1e9, Likes: 1e14, Counts: 1e9}

func (b Bounds) withDefaults() Bounds {
	if b.Followers <= 0 {
		b.Followers = DefaultBounds.Followers
	}
	if b.Likes <= 0 {
		b.Likes = DefaultBounds.Likes
	}
	if b.Counts <= 0 {
		b.Counts = DefaultBounds.Counts
	}
	return b
}

// strictURL requires a scheme and a dotted host with a 2+ letter TLD.
var strictURL = regexp.MustCompile(`https?://(?:[\w-]+\.)+[A-Za-z]{2,}(?:/\S*)?`)

// Normalizer turns raw payload subtrees into a Profile. It never fails:
// bad values become nil and are reported as quality issues.
type Normalizer struct {
	bounds Bounds
	now    func() time.Time
}

// NewNormalizer returns a Normalizer. A nil clock means time.Now.
func NewNormalizer(b Bounds, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{bounds: b.withDefaults(), now: now}
}

// Normalize builds the profile and its quality report.
func (n *Normalizer) Normalize(user, stats map[string]any, username string) (Profile, QualityReport) {
	var issues []string
	now := n.now()

	p := Profile{
		Username:       username,
		Nickname:       stringField(user, "nickname"),
		UserID:         stringField(user, "id"),
		SecUID:         stringField(user, "secUid"),
		Verified:       boolField(user, "verified"),
		Private:        boolField(user, "privateAccount"),
		AvatarURL:      firstString(user, "avatarLarger", "avatarMedium", "avatarThumb"),
		Region:         stringField(user, "region"),
		IsOrganization: boolField(user, "isOrganization"),
		TTSeller:       boolField(user, "ttSeller"),
		Settings: Settings{
			Comments: intField(user, "commentSetting"),
			Duet:     intField(user, "duetSetting"),
			Stitch:   intField(user, "stitchSetting"),
			Download: intField(user, "downloadSetting"),
		},
		ProfileTabs: profileTabs(user),
	}
	if id, ok := user["uniqueId"].(string); ok && id != "" {
		p.Username = id
	}
	if ci, ok := user["commerceUserInfo"].(map[string]any); ok {
		p.CommerceUser = boolField(ci, "commerceUser")
	}
	p.Language = canonicalLanguage(stringField(user, "language"))

	p.Bio = firstString(user, "signature", "bioDescription", "description")
	p.BioLink, p.BioLinks = extractBioLinks(user, p.Bio)

	p.Followers = safeNumber(stats["followerCount"], n.bounds.Followers)
	p.Following = safeNumber(stats["followingCount"], n.bounds.Counts)
	p.Videos = safeNumber(stats["videoCount"], n.bounds.Counts)
	p.FriendCount = safeNumber(stats["friendCount"], n.bounds.Counts)
	p.DiggCount = safeNumber(stats["diggCount"], n.bounds.Likes)
	if v, ok := stats["heartCount"]; ok && v != nil {
		p.Likes = safeNumber(v, n.bounds.Likes)
	} else {
		p.Likes = safeNumber(stats["heart"], n.bounds.Likes)
	}

	p.CreatedAt = validTimestamp(user["createTime"], now)
	if p.CreatedAt != nil {
		days := int(math.Floor(now.Sub(*p.CreatedAt).Hours() / 24))
		if days >= 0 {
			p.AccountAgeDays = &days
		} else {
			issues = append(issues, IssueNegativeAccountAge)
		}
	}

	if p.Followers != nil && *p.Followers > 0 && p.Videos != nil && *p.Videos > 0 && p.Likes != nil {
		rate := math.Round(float64(*p.Likes)/float64(*p.Videos)/float64(*p.Followers)*10000) / 100
		if math.IsNaN(rate) || rate < 0 || rate > 100 {
			issues = append(issues, IssueInvalidEngagementRate)
		} else {
			p.EngagementRate = &rate
		}
	}

	report := assessQuality(&p, issues)
	p.DataQualityScore = report.DataQualityScore
	return p, report
}

// safeNumber reads a counter. Negative values are read as wrapped 32-bit
// integers and recovered; anything above a positive ceiling is rejected.
func safeNumber(v any, ceiling float64) *int64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	if f < 0 {
		f += overflowOffset
		if f < 0 {
			return nil
		}
	}
	if ceiling > 0 && f > ceiling {
		return nil
	}
	out := int64(math.Trunc(f))
	return &out
}

// toFloat accepts JSON numbers and base-10 integer strings.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			f = float64(i)
		} else if fl, err := x.Float64(); err == nil {
			f = fl
		} else {
			return 0, false
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		f = float64(i)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// validTimestamp converts Unix seconds, keeping only years in
// [2016, now.Year()], both taken in UTC.
func validTimestamp(v any, now time.Time) *time.Time {
	f, ok := toFloat(v)
	if !ok || f <= 0 {
		return nil
	}
	t := time.Unix(int64(f), 0).UTC()
	if t.Year() < firstCreateYear || t.Year() > now.UTC().Year() {
		return nil
	}
	return &t
}

func extractBioLinks(user map[string]any, bio *string) (*string, []BioLink) {
	links := []BioLink{}
	seen := make(map[string]bool)

	var official *string
	if raw, present := officialLinkCandidate(user); present {
		if u, ok := validateURL(raw); ok {
			official = &u
			links = append(links, BioLink{URL: u, Type: BioLinkOfficial})
			seen[u] = true
		}
	}

	var firstText *string
	if bio != nil {
		for _, m := range strictURL.FindAllString(*bio, -1) {
			u, ok := validateURL(strings.TrimRight(m, `.,;:!?)]}'"`))
			if !ok {
				continue
			}
			if firstText == nil {
				firstText = &u
			}
			if seen[u] {
				continue
			}
			seen[u] = true
			links = append(links, BioLink{URL: u, Type: BioLinkBioText})
		}
	}

	if official != nil {
		return official, links
	}
	if _, present := officialLinkCandidate(user); present {
		// A link field that failed validation is not replaced by bio text.
		return nil, links
	}
	return firstText, links
}

// officialLinkCandidate reads bioLink.link or a plain string bioLink.
func officialLinkCandidate(user map[string]any) (string, bool) {
	switch v := user["bioLink"].(type) {
	case map[string]any:
		if s, ok := v["link"].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	case string:
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// validateURL constructs a URL from s, adding https:// when there is no
// scheme.
func validateURL(s string) (string, bool) {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return "", false
	}
	candidate := s
	if !strings.Contains(s, "://") {
		candidate = "https://" + s
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}

func canonicalLanguage(raw *string) *string {
	if raw == nil {
		return nil
	}
	tag, err := language.Parse(*raw)
	if err != nil {
		return raw
	}
	s := tag.String()
	return &s
}

func profileTabs(user map[string]any) map[string]bool {
	raw, ok := user["profileTab"].(map[string]any)
	if !ok {
		return nil
	}
	tabs := make(map[string]bool, len(raw))
	for k, v := range raw {
		if b, ok := v.(bool); ok {
			tabs[k] = b
		}
	}
	return tabs
}

func stringField(m map[string]any, key string) *string {
	s, ok := m[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func firstString(m map[string]any, keys ...string) *string {
	for _, k := range keys {
		if s := stringField(m, k); s != nil {
			return s
		}
	}
	return nil
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case json.Number, float64, int:
		f, ok := toFloat(v)
		return ok && f != 0
	}
	return false
}

func intField(m map[string]any, key string) *int64 {
	f, ok := toFloat(m[key])
	if !ok {
		return nil
	}
	i := int64(f)
	return &i
}
