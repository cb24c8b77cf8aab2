// Package submit posts answers to the quiz server and interprets its
// verdict. Endpoint resolution is a fixed fallback ladder; the transport and
// payload shape never vary.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Payload is the answer envelope the quiz server expects.
type Payload struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
	Answer any    `json:"answer"`
}

// Verdict is the server's grading response. URL points at the next question
// when the chain continues; empty means the chain is over.
type Verdict struct {
	Correct bool   `json:"correct"`
	URL     string `json:"url"`
	Reason  string `json:"reason"`
}

// Submitter posts answers for one configured student.
type Submitter struct {
	email    string
	secret   string
	override string // endpoint override, wins over inference
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithOverride forces every submission to the given endpoint.
func WithOverride(endpoint string) Option {
	return func(s *Submitter) { s.override = endpoint }
}

// WithHTTPClient replaces the HTTP client. Default: 10s timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(s *Submitter) {
		if h != nil {
			s.client = h
		}
	}
}

// WithLogger sets the submitter logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Submitter for the given student credentials.
func New(email, secret string, opts ...Option) *Submitter {
	s := &Submitter{
		email:  email,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve picks the submission endpoint: the page's stated URL first, then
// the configured override, then textual quiz-to-submit substitution on the
// question URL, then the host's /submit root.
func (s *Submitter) Resolve(statedURL, questionURL string) (string, error) {
	if statedURL != "" {
		return statedURL, nil
	}
	if s.override != "" {
		return s.override, nil
	}
	if strings.Contains(questionURL, "/quiz") {
		return strings.Replace(questionURL, "/quiz", "/submit", 1), nil
	}
	u, err := url.Parse(questionURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("cannot derive submit endpoint from %q", questionURL)
	}
	return u.Scheme + "://" + u.Host + "/submit", nil
}

// Submit posts the answer for questionURL and returns the server's verdict.
// Primitive answers are sent as-is in the JSON envelope; the caller is
// responsible for coercing types beforehand.
func (s *Submitter) Submit(ctx context.Context, endpoint, questionURL string, answer any) (*Verdict, error) {
	body, err := json.Marshal(Payload{
		Email:  s.email,
		Secret: s.secret,
		URL:    questionURL,
		Answer: answer,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("submit returned status %d: %s", resp.StatusCode, string(raw))
	}

	var v Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}

	s.logger.Info("submit: verdict received",
		"endpoint", endpoint,
		"correct", v.Correct,
		"next_url", v.URL,
		"reason", v.Reason)
	return &v, nil
}
