// Package render drives headless Chrome to produce the fully executed HTML
// of a quiz page. Quiz pages assemble their question client side, so a plain
// GET sees none of it; the renderer navigates, waits for scripts to settle,
// and serializes the live DOM.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Config configures the renderer.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome via launcher.
	RemoteURL string

	// NavigateTimeout bounds navigation plus load. Default: 30s.
	NavigateTimeout time.Duration

	// SettleDelay is the pause after load for client-side rendering to
	// finish. Default: 2s.
	SettleDelay time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer renders pages through a shared Chrome instance. The browser
// launches lazily on first use and is reused across questions.
type Renderer struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// New creates a Renderer. Chrome starts on the first Render call.
func New(cfg Config) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

// Render navigates to pageURL in a fresh stealth tab, waits for the page to
// load and settle, and returns the serialized DOM.
func (r *Renderer) Render(ctx context.Context, pageURL string) (string, error) {
	b, err := r.browserHandle()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return "", fmt.Errorf("render: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("render: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		r.cfg.Logger.Warn("render: wait load timeout", "url", pageURL, "error", err)
	}
	if _, err := page.Context(navCtx).Element("body"); err != nil {
		r.cfg.Logger.Warn("render: body never appeared", "url", pageURL, "error", err)
	}

	// Give obvious loading indicators a moment to clear before serializing.
	for i := 0; i < 5; i++ {
		has, _, err := page.Context(navCtx).Has(`[class*="loading"], [id*="loading"]`)
		if err != nil || !has {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	// Scroll to the bottom so lazy content triggers, then let scripts settle.
	if _, err := page.Context(navCtx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		r.cfg.Logger.Debug("render: scroll failed", "url", pageURL, "error", err)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(r.cfg.SettleDelay):
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("render: serialize DOM: %w", err)
	}

	html := res.Value.Str()
	r.cfg.Logger.Debug("render: page rendered", "url", pageURL, "bytes", len(html))
	return html, nil
}

// Close shuts down Chrome. The Renderer cannot be reused afterwards.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.browser != nil {
		r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
	return nil
}

func (r *Renderer) browserHandle() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("render: renderer is closed")
	}
	if r.browser != nil {
		return r.browser, nil
	}

	var wsURL string
	if r.cfg.RemoteURL != "" {
		wsURL = r.cfg.RemoteURL
		r.cfg.Logger.Info("render: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch: %w", err)
		}
		wsURL = u
		r.lnch = l
		r.cfg.Logger.Info("render: launched local chrome")
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("render: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		r.cfg.Logger.Warn("render: ignore cert errors failed", "error", err)
	}

	r.browser = b
	return b, nil
}
