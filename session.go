package tiktok

import "time"

// Session is the identity an Engine presents: fingerprint, cookies and how
// many requests have been made with them. Transitions return a new value;
// the Engine swaps it in under its lock.
type Session struct {
	Fingerprint   Fingerprint
	Cookies       *CookieStore
	RequestCount  int
	LastRequestAt time.Time
	// Generation counts rotations since the engine was built.
	Generation int
}

func newSession(fp Fingerprint) Session {
	return Session{Fingerprint: fp, Cookies: NewCookieStore()}
}

// touched records that a request went out at t without counting it.
func (s Session) touched(t time.Time) Session {
	s.LastRequestAt = t
	return s
}

// counted records a successful request at t.
func (s Session) counted(t time.Time) Session {
	s.LastRequestAt = t
	s.RequestCount++
	return s
}

// due reports whether the session has served threshold requests.
func (s Session) due(threshold int) bool {
	return threshold > 0 && s.RequestCount >= threshold
}

// rotated replaces fingerprint, cookies and counter in one step. Pacing
// continues from the last request time.
func (s Session) rotated(fp Fingerprint) Session {
	return Session{
		Fingerprint:   fp,
		Cookies:       NewCookieStore(),
		LastRequestAt: s.LastRequestAt,
		Generation:    s.Generation + 1,
	}
}
