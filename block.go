package tiktok

import (
	"bytes"
	"net/http"
)

// blockSignals are matched case-sensitively against response bodies.
var blockSignals = []string{
	"Too many requests",
	"Please wait a few minutes",
	"Access Denied",
	"blocked",
}

// IsBlocked reports whether a response looks like an anti-scraping block.
// A 200 with an empty payload is not caught here; that surfaces later as an
// extraction failure.
func IsBlocked(statusCode int, body []byte) bool {
	_, blocked := blockSignal(statusCode, body)
	return blocked
}

// blockSignal is IsBlocked plus the matched body phrase, if any.
func blockSignal(statusCode int, body []byte) (string, bool) {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusUnauthorized:
		return "", true
	}
	for _, sig := range blockSignals {
		if bytes.Contains(body, []byte(sig)) {
			return sig, true
		}
	}
	return "", false
}
