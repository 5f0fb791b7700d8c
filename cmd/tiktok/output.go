package main

import (
	"encoding/json"
	"io"
	"strconv"

	tiktok "github.com/RavensCloud/tiktok-profiles"
	"github.com/nao1215/markdown"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeProfileMarkdown(w io.Writer, res *tiktok.Result) error {
	p := res.Profile
	md := markdown.NewMarkdown(w)

	md.H1("@" + p.Username)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Field", "Value"},
		Rows: [][]string{
			{"Nickname", str(p.Nickname)},
			{"User ID", str(p.UserID)},
			{"Verified", strconv.FormatBool(p.Verified)},
			{"Private", strconv.FormatBool(p.Private)},
			{"Followers", count(p.Followers)},
			{"Following", count(p.Following)},
			{"Likes", count(p.Likes)},
			{"Videos", count(p.Videos)},
			{"Engagement rate", percent(p.EngagementRate)},
			{"Created", date(res)},
			{"Account age (days)", days(p.AccountAgeDays)},
			{"Region", str(p.Region)},
			{"Language", str(p.Language)},
			{"Bio link", str(p.BioLink)},
			{"Source", res.Source},
		},
	})
	md.PlainText("")

	if p.Bio != nil {
		md.H2("Bio")
		md.PlainText(*p.Bio)
		md.PlainText("")
	}
	if len(p.BioLinks) > 0 {
		md.H2("Links")
		links := make([]string, 0, len(p.BioLinks))
		for _, l := range p.BioLinks {
			links = append(links, l.URL+" ("+string(l.Type)+")")
		}
		md.BulletList(links...)
		md.PlainText("")
	}

	md.H2("Data quality")
	md.PlainTextf("Score: **%d**/100", res.Quality.DataQualityScore)
	md.PlainText("")
	if res.Quality.HasWarnings {
		md.BulletList(res.Quality.Issues...)
	}
	return md.Build()
}

func writeBatchMarkdown(w io.Writer, items []tiktok.BatchItem) error {
	sum := tiktok.Summarize(items)
	md := markdown.NewMarkdown(w)

	md.H1("TikTok profiles")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Total", "Succeeded", "Failed"},
		Rows: [][]string{{
			strconv.Itoa(sum.Total),
			strconv.Itoa(sum.Succeeded),
			strconv.Itoa(sum.Failed),
		}},
	})
	md.PlainText("")

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		if it.Result == nil {
			rows = append(rows, []string{it.Username, "-", "-", "-", "-", "-", it.Error})
			continue
		}
		p := it.Result.Profile
		rows = append(rows, []string{
			p.Username,
			count(p.Followers),
			count(p.Likes),
			count(p.Videos),
			percent(p.EngagementRate),
			strconv.Itoa(it.Result.Quality.DataQualityScore),
			"",
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Username", "Followers", "Likes", "Videos", "Engagement", "Quality", "Error"},
		Rows:   rows,
	})
	return md.Build()
}

func str(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func count(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func percent(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', 2, 64) + "%"
}

func days(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}

func date(res *tiktok.Result) string {
	if res.Profile.CreatedAt == nil {
		return "-"
	}
	return res.Profile.CreatedAt.Format("2006-01-02")
}
