package tiktok

import "time"

// BioLinkType tells where a bio link was found.
type BioLinkType string

const (
	// BioLinkOfficial is the link from the profile's link field.
	BioLinkOfficial BioLinkType = "official"
	// BioLinkBioText is a URL found in the bio text.
	BioLinkBioText BioLinkType = "bio_text"
)

// BioLink is one link attached to a profile.
type BioLink struct {
	URL  string      `json:"url"`
	Type BioLinkType `json:"type"`
}

// Settings are the interaction permissions a creator exposes. Values are the
// platform's raw enum codes.
type Settings struct {
	Comments *int64 `json:"comments"`
	Duet     *int64 `json:"duet"`
	Stitch   *int64 `json:"stitch"`
	Download *int64 `json:"download"`
}

// Profile is a normalized TikTok user profile. Pointer fields are nil when
// the value was missing or failed validation, and serialise as null.
type Profile struct {
	Username  string  `json:"username"`
	Nickname  *string `json:"nickname"`
	UserID    *string `json:"userId"`
	SecUID    *string `json:"secUid"`
	Bio       *string `json:"bio"`
	Verified  bool    `json:"verified"`
	Private   bool    `json:"private"`
	AvatarURL *string `json:"avatarUrl"`

	Followers   *int64 `json:"followers"`
	Following   *int64 `json:"following"`
	Likes       *int64 `json:"likes"`
	Videos      *int64 `json:"videos"`
	FriendCount *int64 `json:"friendCount"`
	DiggCount   *int64 `json:"diggCount"`

	// EngagementRate is average likes per video as a percentage of
	// followers, within [0, 100].
	EngagementRate *float64   `json:"engagementRate"`
	CreatedAt      *time.Time `json:"createdAt"`
	AccountAgeDays *int       `json:"accountAgeDays"`

	Language       *string `json:"language"`
	Region         *string `json:"region"`
	IsOrganization bool    `json:"isOrganization"`

	BioLink  *string   `json:"bioLink"`
	BioLinks []BioLink `json:"bioLinks"`

	CommerceUser bool            `json:"commerceUser"`
	TTSeller     bool            `json:"ttSeller"`
	Settings     Settings        `json:"settings"`
	ProfileTabs  map[string]bool `json:"profileTabs"`

	DataQualityScore int `json:"dataQualityScore"`
}

// QualityReport summarises how complete a Profile is.
type QualityReport struct {
	DataQualityScore int      `json:"dataQualityScore"`
	Issues           []string `json:"issues"`
	IssueCount       int      `json:"issueCount"`
	HasWarnings      bool     `json:"hasWarnings"`
}

// Result is one successful profile lookup.
type Result struct {
	Profile   Profile       `json:"profile"`
	Quality   QualityReport `json:"quality"`
	Source    string        `json:"source"`
	FetchedAt time.Time     `json:"fetchedAt"`
}
