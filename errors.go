package tiktok

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("tiktok: not found")
	ErrBlocked         = errors.New("tiktok: blocked")
	ErrExtraction      = errors.New("tiktok: no profile payload found")
	ErrValidation      = errors.New("tiktok: invalid input")
	ErrTimeout         = errors.New("tiktok: request timed out")
	ErrServer          = errors.New("tiktok: server error")
	ErrClosed          = errors.New("tiktok: engine closed")
	ErrBrowserNotReady = errors.New("tiktok: browser not initialized")
)

// BlockedError reports an anti-scraping block, either from the status code or
// from a block phrase in the body.
type BlockedError struct {
	StatusCode int
	Signal     string
}

func (e *BlockedError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("tiktok: blocked (status %d, body signal %q)", e.StatusCode, e.Signal)
	}
	return fmt.Sprintf("tiktok: blocked (status %d)", e.StatusCode)
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }

// IsRetryable reports whether a per-profile failure is worth another attempt
// with a fresh session. Not-found and validation failures are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrClosed),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrBlocked), errors.Is(err, ErrTimeout),
		errors.Is(err, ErrServer), errors.Is(err, ErrExtraction):
		return true
	}
	// Transport failures (reset connections, DNS hiccups) are transient.
	return true
}
