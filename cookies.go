package tiktok

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
)

// CookieStore is the cookie jar of one session. It is replaced, never
// cleared in place, when the session rotates.
type CookieStore struct {
	jar *cookiejar.Jar
}

// NewCookieStore returns an empty store.
func NewCookieStore() *CookieStore {
	jar, _ := cookiejar.New(nil)
	return &CookieStore{jar: jar}
}

// Set records Set-Cookie header values received from origin. Malformed
// values are skipped.
func (c *CookieStore) Set(origin *url.URL, setCookies ...string) {
	cookies := make([]*http.Cookie, 0, len(setCookies))
	for _, line := range setCookies {
		ck, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		cookies = append(cookies, ck)
	}
	if len(cookies) > 0 {
		c.jar.SetCookies(origin, cookies)
	}
}

// SetCookies records already-parsed cookies for origin.
func (c *CookieStore) SetCookies(origin *url.URL, cookies []*http.Cookie) {
	c.jar.SetCookies(origin, cookies)
}

// Cookies returns the cookies that would be sent to origin.
func (c *CookieStore) Cookies(origin *url.URL) []*http.Cookie {
	return c.jar.Cookies(origin)
}

// HeaderString renders the Cookie request header for origin, or "" when
// there is nothing to send.
func (c *CookieStore) HeaderString(origin *url.URL) string {
	cookies := c.jar.Cookies(origin)
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

// Save writes the cookies for origin to a JSON file.
func (c *CookieStore) Save(path string, origin *url.URL) error {
	data, err := json.Marshal(c.jar.Cookies(origin))
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Load reads cookies written by Save into the store.
func (c *CookieStore) Load(path string, origin *url.URL) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read cookies file: %w", err)
	}
	var cookies []*http.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("unmarshal cookies: %w", err)
	}
	c.jar.SetCookies(origin, cookies)
	return nil
}
