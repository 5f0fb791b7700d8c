package tiktok

import (
	"encoding/json"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTestNormalizer(b Bounds) *Normalizer {
	return NewNormalizer(b, func() time.Time { return fixedNow })
}

// rawSubtree decodes JSON the way the locator does.
func rawSubtree(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := decodeJSON([]byte(s), &m); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return m
}

// ---------------------------------------------------------------------------
// Full profile tests
// ---------------------------------------------------------------------------

func TestNormalize_FullProfile(t *testing.T) {
	t.Parallel()
	user := rawSubtree(t, `{
		"id": "6800000000000000000",
		"uniqueId": "Alice",
		"nickname": "Alice A.",
		"secUid": "MS4wLjABAAAA",
		"signature": "dancer | links below",
		"verified": true,
		"privateAccount": false,
		"avatarMedium": "https://p16.example.com/medium.jpg",
		"avatarThumb": "https://p16.example.com/thumb.jpg",
		"createTime": 1577836800,
		"language": "en-us",
		"region": "US",
		"isOrganization": 0,
		"ttSeller": true,
		"commerceUserInfo": {"commerceUser": true},
		"bioLink": {"link": "linktr.ee/alice", "risk": 0},
		"commentSetting": 0,
		"duetSetting": 1,
		"stitchSetting": 3,
		"downloadSetting": 0,
		"profileTab": {"showMusicTab": false, "showQuestionTab": true, "ignored": "x"}
	}`)
	stats := rawSubtree(t, `{
		"followerCount": 2000,
		"followingCount": 10,
		"heartCount": 50000,
		"heart": 1,
		"videoCount": 25,
		"diggCount": 300,
		"friendCount": 4
	}`)

	p, q := newTestNormalizer(Bounds{}).Normalize(user, stats, "alice")

	created := time.Unix(1577836800, 0).UTC()
	want := Profile{
		Username:       "Alice",
		Nickname:       ptr("Alice A."),
		UserID:         ptr("6800000000000000000"),
		SecUID:         ptr("MS4wLjABAAAA"),
		Bio:            ptr("dancer | links below"),
		Verified:       true,
		AvatarURL:      ptr("https://p16.example.com/medium.jpg"),
		Followers:      ptr(int64(2000)),
		Following:      ptr(int64(10)),
		Likes:          ptr(int64(50000)),
		Videos:         ptr(int64(25)),
		FriendCount:    ptr(int64(4)),
		DiggCount:      ptr(int64(300)),
		EngagementRate: ptr(100.0),
		CreatedAt:      &created,
		AccountAgeDays: ptr(1978),
		Language:       ptr("en-US"),
		Region:         ptr("US"),
		BioLink:        ptr("https://linktr.ee/alice"),
		BioLinks:       []BioLink{{URL: "https://linktr.ee/alice", Type: BioLinkOfficial}},
		CommerceUser:   true,
		TTSeller:       true,
		Settings: Settings{
			Comments: ptr(int64(0)),
			Duet:     ptr(int64(1)),
			Stitch:   ptr(int64(3)),
			Download: ptr(int64(0)),
		},
		ProfileTabs:      map[string]bool{"showMusicTab": false, "showQuestionTab": true},
		DataQualityScore: 100,
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
	wantQ := QualityReport{DataQualityScore: 100, Issues: []string{}}
	if diff := cmp.Diff(wantQ, q); diff != "" {
		t.Errorf("quality mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_EmptyPayload(t *testing.T) {
	t.Parallel()
	p, q := newTestNormalizer(Bounds{}).Normalize(map[string]any{}, map[string]any{}, "ghost")

	want := Profile{Username: "ghost", BioLinks: []BioLink{}, DataQualityScore: 50}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
	wantIssues := []string{IssueMissingBio, IssueMissingBioLink, IssueMissingRegion, IssueMissingCreatedAt, IssueMissingFollowers}
	if diff := cmp.Diff(wantIssues, q.Issues); diff != "" {
		t.Errorf("issues mismatch (-want +got):\n%s", diff)
	}
	if q.IssueCount != 5 || !q.HasWarnings {
		t.Errorf("expected 5 issues with warnings, got %d %v", q.IssueCount, q.HasWarnings)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	t.Parallel()
	user := rawSubtree(t, `{"uniqueId":"bob","signature":"a https://x.example.com b https://y.example.org","createTime":1600000000,"region":"GB"}`)
	stats := rawSubtree(t, `{"followerCount":-100,"videoCount":10,"heartCount":50000}`)
	n := newTestNormalizer(Bounds{Followers: 1e10})

	p1, q1 := n.Normalize(user, stats, "bob")
	p2, q2 := n.Normalize(user, stats, "bob")
	if diff := cmp.Diff(p1, p2); diff != "" {
		t.Errorf("profile differs between runs:\n%s", diff)
	}
	if diff := cmp.Diff(q1, q2); diff != "" {
		t.Errorf("quality differs between runs:\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// Counter recovery tests
// ---------------------------------------------------------------------------

func TestSafeNumber(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      any
		ceiling float64
		want    *int64
	}{
		{"json number", json.Number("1234"), 1e9, ptr(int64(1234))},
		{"float", 42.9, 1e9, ptr(int64(42))},
		{"int", 7, 1e9, ptr(int64(7))},
		{"numeric string", "123456789012", 1e14, ptr(int64(123456789012))},
		{"wrapped negative", json.Number("-100"), 1e10, ptr(int64(4294967196))},
		{"wrapped negative above ceiling", json.Number("-100"), 1e9, nil},
		{"min int32", -2147483648.0, 1e10, ptr(int64(2147483648))},
		{"too negative to recover", -5e9, 1e10, nil},
		{"above ceiling", json.Number("2000000000"), 1e9, nil},
		{"at ceiling", json.Number("1000000000"), 1e9, ptr(int64(1000000000))},
		{"zero", json.Number("0"), 1e9, ptr(int64(0))},
		{"nil", nil, 1e9, nil},
		{"bool", true, 1e9, nil},
		{"text", "many", 1e9, nil},
		{"nan", math.NaN(), 1e9, nil},
		{"inf", math.Inf(1), 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, safeNumber(tt.in, tt.ceiling)); diff != "" {
				t.Errorf("safeNumber(%v, %v) mismatch (-want +got):\n%s", tt.in, tt.ceiling, diff)
			}
		})
	}
}

func TestSafeNumber_NegativeRecoveryProperty(t *testing.T) {
	t.Parallel()
	for _, v := range []int64{-1, -100, -65536, -1 << 20, -2147483648} {
		got := safeNumber(json.Number(itoa(int(v))), 1e12)
		if got == nil || *got != v+overflowOffset {
			t.Errorf("safeNumber(%d) = %v, want %d", v, got, v+overflowOffset)
		}
	}
}

func TestNormalize_WrappedFollowers(t *testing.T) {
	t.Parallel()
	stats := rawSubtree(t, `{"followerCount":-100,"videoCount":10,"heartCount":50000}`)

	// With the follower ceiling raised, the wrapped count is recovered and
	// the engagement rate rounds to zero.
	p, _ := newTestNormalizer(Bounds{Followers: 1e10}).Normalize(map[string]any{}, stats, "u1")
	if p.Followers == nil || *p.Followers != 4294967196 {
		t.Fatalf("expected 4294967196 followers, got %v", p.Followers)
	}
	if p.EngagementRate == nil || *p.EngagementRate != 0 {
		t.Errorf("expected engagement rate 0, got %v", p.EngagementRate)
	}

	// The default 1B ceiling rejects the recovered value.
	p, q := newTestNormalizer(Bounds{}).Normalize(map[string]any{}, stats, "u1")
	if p.Followers != nil {
		t.Errorf("expected nil followers under the default ceiling, got %d", *p.Followers)
	}
	if p.EngagementRate != nil {
		t.Errorf("expected no engagement rate without followers, got %v", *p.EngagementRate)
	}
	if !slices.Contains(q.Issues, IssueMissingFollowers) {
		t.Errorf("expected %s, got %v", IssueMissingFollowers, q.Issues)
	}
}

func TestNormalize_LikesFallback(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(Bounds{})
	tests := []struct {
		name  string
		stats string
		want  *int64
	}{
		{"heartCount preferred", `{"heartCount":10,"heart":20}`, ptr(int64(10))},
		{"heart when heartCount missing", `{"heart":20}`, ptr(int64(20))},
		{"heart when heartCount null", `{"heartCount":null,"heart":20}`, ptr(int64(20))},
		{"heartCount zero is kept", `{"heartCount":0,"heart":20}`, ptr(int64(0))},
		{"neither", `{}`, nil},
	}
	for _, tt := range tests {
		p, _ := n.Normalize(map[string]any{}, rawSubtree(t, tt.stats), "u")
		if diff := cmp.Diff(tt.want, p.Likes); diff != "" {
			t.Errorf("%s: likes mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

// ---------------------------------------------------------------------------
// Engagement rate tests
// ---------------------------------------------------------------------------

func TestNormalize_EngagementRate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		stats     string
		want      *float64
		wantIssue bool
	}{
		{"typical", `{"followerCount":1000,"videoCount":10,"heartCount":500}`, ptr(5.0), false},
		{"rounded to two decimals", `{"followerCount":3000,"videoCount":7,"heartCount":1000}`, ptr(4.76), false},
		{"zero followers", `{"followerCount":0,"videoCount":10,"heartCount":500}`, nil, false},
		{"zero videos", `{"followerCount":1000,"videoCount":0,"heartCount":500}`, nil, false},
		{"missing likes", `{"followerCount":1000,"videoCount":10}`, nil, false},
		{"zero likes", `{"followerCount":1000,"videoCount":10,"heartCount":0}`, ptr(0.0), false},
		{"above 100 percent", `{"followerCount":10,"videoCount":1,"heartCount":5000}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, q := newTestNormalizer(Bounds{}).Normalize(map[string]any{}, rawSubtree(t, tt.stats), "u")
			if diff := cmp.Diff(tt.want, p.EngagementRate); diff != "" {
				t.Errorf("engagement rate mismatch (-want +got):\n%s", diff)
			}
			if got := slices.Contains(q.Issues, IssueInvalidEngagementRate); got != tt.wantIssue {
				t.Errorf("invalid_engagement_rate issue = %v, want %v (%v)", got, tt.wantIssue, q.Issues)
			}
			if p.EngagementRate != nil && (*p.EngagementRate < 0 || *p.EngagementRate > 100) {
				t.Errorf("engagement rate %v out of range", *p.EngagementRate)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Creation time tests
// ---------------------------------------------------------------------------

func TestNormalize_CreateTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		create   any
		wantDays *int
	}{
		{"2020", json.Number("1577836800"), ptr(1978)},
		{"start of 2016", json.Number("1451606400"), ptr(3439)},
		{"2010 is too early", json.Number("1262304000"), nil},
		{"next year is too late", json.Number("1767225600"), nil},
		{"zero", json.Number("0"), nil},
		{"string seconds", "1577836800", ptr(1978)},
		{"garbage", "yesterday", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, q := newTestNormalizer(Bounds{}).Normalize(map[string]any{"createTime": tt.create}, map[string]any{}, "u")
			if diff := cmp.Diff(tt.wantDays, p.AccountAgeDays); diff != "" {
				t.Errorf("account age mismatch (-want +got):\n%s", diff)
			}
			if (p.CreatedAt == nil) != (tt.wantDays == nil) {
				t.Errorf("createdAt = %v, want set=%v", p.CreatedAt, tt.wantDays != nil)
			}
			if got := slices.Contains(q.Issues, IssueMissingCreatedAt); got != (tt.wantDays == nil) {
				t.Errorf("missing_created_at issue = %v (%v)", got, q.Issues)
			}
		})
	}
}

func TestNormalize_FutureTimestampThisYear(t *testing.T) {
	t.Parallel()
	// Later this year passes the year check but gives a negative age.
	future := fixedNow.Add(30 * 24 * time.Hour).Unix()
	p, q := newTestNormalizer(Bounds{}).Normalize(map[string]any{"createTime": json.Number(itoa(int(future)))}, map[string]any{}, "u")
	if p.CreatedAt == nil {
		t.Fatal("expected createdAt to be kept")
	}
	if p.AccountAgeDays != nil {
		t.Errorf("expected nil account age, got %d", *p.AccountAgeDays)
	}
	if !slices.Contains(q.Issues, IssueNegativeAccountAge) {
		t.Errorf("expected %s, got %v", IssueNegativeAccountAge, q.Issues)
	}
}

func TestNormalize_CreateTimeAcrossNewYear(t *testing.T) {
	t.Parallel()
	// Still 2025 on a local clock west of UTC, already 2026 in UTC.
	est := time.FixedZone("EST", -5*60*60)
	now := time.Date(2025, 12, 31, 23, 0, 0, 0, est)
	created := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)

	n := NewNormalizer(Bounds{}, func() time.Time { return now })
	p, q := n.Normalize(map[string]any{"createTime": json.Number(itoa(int(created.Unix())))}, map[string]any{}, "u")
	if p.CreatedAt == nil || !p.CreatedAt.Equal(created) {
		t.Fatalf("expected createdAt %v, got %v", created, p.CreatedAt)
	}
	if diff := cmp.Diff(ptr(0), p.AccountAgeDays); diff != "" {
		t.Errorf("account age mismatch (-want +got):\n%s", diff)
	}
	if slices.Contains(q.Issues, IssueMissingCreatedAt) {
		t.Errorf("unexpected %s issue: %v", IssueMissingCreatedAt, q.Issues)
	}
}

// ---------------------------------------------------------------------------
// Bio link tests
// ---------------------------------------------------------------------------

func TestNormalize_BioLinks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		user      string
		wantLink  *string
		wantLinks []BioLink
	}{
		{
			name:      "scheme-less bio text is not matched",
			user:      `{"signature":"check my link bio.link/me"}`,
			wantLink:  nil,
			wantLinks: []BioLink{},
		},
		{
			name:      "bio text url",
			user:      `{"signature":"visit https://example.com/me now"}`,
			wantLink:  ptr("https://example.com/me"),
			wantLinks: []BioLink{{URL: "https://example.com/me", Type: BioLinkBioText}},
		},
		{
			name:      "trailing punctuation trimmed",
			user:      `{"signature":"shop: https://shop.example.com/new!"}`,
			wantLink:  ptr("https://shop.example.com/new"),
			wantLinks: []BioLink{{URL: "https://shop.example.com/new", Type: BioLinkBioText}},
		},
		{
			name:     "official link first and deduplicated",
			user:     `{"signature":"https://a.example.com and https://b.example.com","bioLink":{"link":"https://a.example.com"}}`,
			wantLink: ptr("https://a.example.com"),
			wantLinks: []BioLink{
				{URL: "https://a.example.com", Type: BioLinkOfficial},
				{URL: "https://b.example.com", Type: BioLinkBioText},
			},
		},
		{
			name:      "plain string link gets a scheme",
			user:      `{"bioLink":"example.org/x"}`,
			wantLink:  ptr("https://example.org/x"),
			wantLinks: []BioLink{{URL: "https://example.org/x", Type: BioLinkOfficial}},
		},
		{
			name:      "invalid official link does not fall back to bio text",
			user:      `{"signature":"see https://example.com","bioLink":{"link":"not a url"}}`,
			wantLink:  nil,
			wantLinks: []BioLink{{URL: "https://example.com", Type: BioLinkBioText}},
		},
		{
			name:      "non-http scheme rejected",
			user:      `{"bioLink":{"link":"ftp://files.example.com"}}`,
			wantLink:  nil,
			wantLinks: []BioLink{},
		},
		{
			name:      "bioDescription used when signature is empty",
			user:      `{"signature":"  ","bioDescription":"new: https://new.example.io"}`,
			wantLink:  ptr("https://new.example.io"),
			wantLinks: []BioLink{{URL: "https://new.example.io", Type: BioLinkBioText}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, q := newTestNormalizer(Bounds{}).Normalize(rawSubtree(t, tt.user), map[string]any{}, "u")
			if diff := cmp.Diff(tt.wantLink, p.BioLink); diff != "" {
				t.Errorf("bioLink mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantLinks, p.BioLinks); diff != "" {
				t.Errorf("bioLinks mismatch (-want +got):\n%s", diff)
			}
			if got := slices.Contains(q.Issues, IssueMissingBioLink); got != (tt.wantLink == nil) {
				t.Errorf("missing_bio_link issue = %v (%v)", got, q.Issues)
			}
		})
	}
}

func TestNormalize_Language(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(Bounds{})
	tests := []struct {
		in   any
		want *string
	}{
		{"en", ptr("en")},
		{"pt-br", ptr("pt-BR")},
		{"zh_Hant", ptr("zh-Hant")},
		{"not a language!", ptr("not a language!")},
		{"", nil},
		{nil, nil},
	}
	for _, tt := range tests {
		p, _ := n.Normalize(map[string]any{"language": tt.in}, map[string]any{}, "u")
		if diff := cmp.Diff(tt.want, p.Language); diff != "" {
			t.Errorf("language %v mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
