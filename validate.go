package tiktok

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{2,24}$`)

// ParseUsername accepts "name", "@name" or a profile URL such as
// https://www.tiktok.com/@name and returns the bare username.
func ParseUsername(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("%w: username is required", ErrValidation)
	}

	if strings.Contains(s, "/") {
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: profile url %q: %v", ErrValidation, input, err)
		}
		host := strings.ToLower(u.Hostname())
		if host != "tiktok.com" && !strings.HasSuffix(host, ".tiktok.com") {
			return "", fmt.Errorf("%w: %q is not a tiktok url", ErrValidation, input)
		}
		seg, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if !strings.HasPrefix(seg, "@") {
			return "", fmt.Errorf("%w: %q is not a profile url", ErrValidation, input)
		}
		s = seg
	}

	s = strings.TrimPrefix(s, "@")
	if !usernamePattern.MatchString(s) {
		return "", fmt.Errorf("%w: malformed username %q", ErrValidation, input)
	}
	return s, nil
}
