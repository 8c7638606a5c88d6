// Package platform holds the thin adapters that satisfy the agent
// package's Input, Browser, and ScreenCapturer interfaces. The underlying
// mechanisms — input injection, browser automation, screen capture — are
// external collaborators out of scope for this repository (§1); these
// adapters exist only so cmd/pilotd has something concrete to wire.
package platform

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by every method until a real input-injection
// or browser-automation driver is wired in for the host platform.
var ErrUnsupported = errors.New("platform: no input/browser driver configured for this host")

// NoopInput satisfies agent.Input. Install a real driver (e.g. an
// xdotool/robotgo-backed one) for production GUI automation.
type NoopInput struct{}

func (NoopInput) Click(ctx context.Context, x, y float64) error { return ErrUnsupported }
func (NoopInput) Type(ctx context.Context, text string) error   { return ErrUnsupported }
func (NoopInput) Hotkey(ctx context.Context, keys []string) error { return ErrUnsupported }

// NoopBrowser satisfies agent.Browser.
type NoopBrowser struct{}

func (NoopBrowser) Open(ctx context.Context, url string) (string, error) { return "", ErrUnsupported }
func (NoopBrowser) Click(ctx context.Context, selector string) error     { return ErrUnsupported }

// NoopScreenCapturer satisfies agent.ScreenCapturer.
type NoopScreenCapturer struct{}

func (NoopScreenCapturer) Capture(ctx context.Context) (string, error) { return "", ErrUnsupported }
