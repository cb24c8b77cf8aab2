package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hazyhaar/quizd/horosafe"
)

// errEmptyBody marks a 200 response with no content; treated like a
// transient failure so the URL is retried.
var errEmptyBody = errors.New("ingest: empty response body")

// fetchResult is one successful download.
type fetchResult struct {
	Body        []byte
	ContentType string
}

// FetchConfig configures the resource fetcher.
type FetchConfig struct {
	Timeout  time.Duration // per-request timeout. Default: 30s.
	MaxBytes int64         // response size cap. Default: horosafe.MaxResponseBody.
	// Attempts is the total tries per URL (initial + retries). Default: 3.
	Attempts int
	// Backoff between attempts; doubled after a timeout. Default: 1s.
	Backoff   time.Duration
	UserAgent string
	// URLValidator runs before each request (SSRF prevention).
	// Default: horosafe.ValidateURL.
	URLValidator func(string) error
}

func (c *FetchConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = horosafe.MaxResponseBody
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "quizd/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = horosafe.ValidateURL
	}
}

// fetcher downloads resource URLs with bounded retries.
type fetcher struct {
	client *http.Client
	cfg    FetchConfig
}

func newFetcher(cfg FetchConfig) *fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		cfg: cfg,
	}
}

// fetch downloads one URL, retrying on transport errors, non-200 statuses
// and empty bodies. On exhaustion it returns the last error along with the
// number of attempts made.
func (f *fetcher) fetch(ctx context.Context, url string) (*fetchResult, int, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.Attempts; attempt++ {
		if attempt > 1 {
			wait := f.cfg.Backoff
			if isTimeout(lastErr) {
				wait *= 2
			}
			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(wait):
			}
		}

		res, err := f.attempt(ctx, url)
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, attempt, lastErr
		}
	}
	return nil, f.cfg.Attempts, lastErr
}

func (f *fetcher) attempt(ctx context.Context, url string) (*fetchResult, error) {
	if err := f.cfg.URLValidator(url); err != nil {
		return nil, fmt.Errorf("URL blocked: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := horosafe.LimitedReadAll(resp.Body, f.cfg.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, errEmptyBody
	}

	return &fetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
