//go:build unittest

package tiktok

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

type RenderTransport struct {
	proxy  string
	logger zerolog.Logger
}

func NewRenderTransport(proxyAddr string, logger zerolog.Logger) *RenderTransport {
	return &RenderTransport{proxy: proxyAddr, logger: logger}
}

func (t *RenderTransport) Fetch(ctx context.Context, pr PageRequest) (*Page, error) {
	return nil, fmt.Errorf("render: %w (build tag: unittest)", ErrBrowserNotReady)
}

func (t *RenderTransport) ResetSession(ctx context.Context) error {
	return nil
}

func (t *RenderTransport) Close() error {
	return nil
}
