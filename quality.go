package tiktok

// Quality issue tags.
const (
	IssueMissingBio            = "missing_bio"
	IssueMissingBioLink        = "missing_bio_link"
	IssueMissingRegion         = "missing_region"
	IssueMissingCreatedAt      = "missing_created_at"
	IssueMissingFollowers      = "missing_followers"
	IssueZeroFollowers         = "zero_followers"
	IssueNegativeAccountAge    = "negative_account_age"
	IssueInvalidEngagementRate = "invalid_engagement_rate"
)

const (
	baseQualityScore = 50
	qualityStep      = 10
	maxQualityScore  = 100
)

// assessQuality scores p and merges the absences it finds with issues
// recorded during normalization.
func assessQuality(p *Profile, recorded []string) QualityReport {
	score := baseQualityScore
	var issues []string

	if p.Bio != nil {
		score += qualityStep
	} else {
		issues = append(issues, IssueMissingBio)
	}
	if p.BioLink != nil {
		score += qualityStep
	} else {
		issues = append(issues, IssueMissingBioLink)
	}
	if p.Region != nil {
		score += qualityStep
	} else {
		issues = append(issues, IssueMissingRegion)
	}
	if p.CreatedAt != nil {
		score += qualityStep
	} else {
		issues = append(issues, IssueMissingCreatedAt)
	}
	switch {
	case p.Followers == nil:
		issues = append(issues, IssueMissingFollowers)
	case *p.Followers > 0:
		score += qualityStep
	default:
		issues = append(issues, IssueZeroFollowers)
	}

	score = min(score, maxQualityScore)
	issues = append(issues, recorded...)
	if issues == nil {
		issues = []string{}
	}
	return QualityReport{
		DataQualityScore: score,
		Issues:           issues,
		IssueCount:       len(issues),
		HasWarnings:      len(issues) > 0,
	}
}
