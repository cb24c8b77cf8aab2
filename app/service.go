// Package app assembles the quizd service: it authorizes solve requests,
// launches one chain goroutine per request, and exposes the task registry
// and log ring that the HTTP and MCP surfaces read from.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/quizd/chain"
	"github.com/hazyhaar/quizd/config"
	"github.com/hazyhaar/quizd/extract"
	"github.com/hazyhaar/quizd/ingest"
	"github.com/hazyhaar/quizd/observability"
	"github.com/hazyhaar/quizd/planner"
	"github.com/hazyhaar/quizd/render"
	"github.com/hazyhaar/quizd/sandbox"
	"github.com/hazyhaar/quizd/submit"
)

// ErrUnauthorized rejects a solve request whose credentials do not match the
// configured student.
var ErrUnauthorized = errors.New("app: invalid credentials")

// Service owns everything a solve request touches. Chains run as independent
// goroutines; their only shared state is the task registry and the log ring.
type Service struct {
	cfg    *config.Config
	ring   *observability.Ring
	tasks  *observability.Tasks
	events *observability.EventLogger
	driver *chain.Driver
	logger *slog.Logger

	renderer chain.Renderer
	closers  []func() error
}

// Option configures a Service.
type Option func(*Service)

// WithRenderer replaces the browser-backed renderer, mainly for tests.
func WithRenderer(r chain.Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithEvents attaches the persistent business event logger.
func WithEvents(e *observability.EventLogger) Option {
	return func(s *Service) { s.events = e }
}

// WithLogger sets the service logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds the full per-question pipeline from configuration.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		ring:   observability.NewRing(0),
		tasks:  observability.NewTasks(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.renderer == nil {
		r := render.New(render.Config{
			RemoteURL: cfg.BrowserRemote,
			Logger:    s.logger,
		})
		s.renderer = r
		s.closers = append(s.closers, r.Close)
	}

	gateway := planner.NewClient(cfg.GatewayURL, cfg.GatewayToken, cfg.Model,
		planner.WithClientLogger(s.logger))

	pipeline := ingest.New(
		ingest.FetchConfig{Attempts: cfg.RetryCount},
		ingest.WithWorkers(cfg.DownloadWorkers),
		ingest.WithTranscriber(gateway),
		ingest.WithLogger(s.logger),
	)

	submitOpts := []submit.Option{submit.WithLogger(s.logger)}
	if cfg.SubmitOverride != "" {
		submitOpts = append(submitOpts, submit.WithOverride(cfg.SubmitOverride))
	}

	s.driver = chain.NewDriver(chain.Config{
		Renderer:  s.renderer,
		Extractor: extract.New(s.logger),
		Pipeline:  pipeline,
		Planner: planner.NewPlanner(gateway,
			planner.Credentials{Email: cfg.StudentEmail, Secret: cfg.StudentSecret},
			planner.WithLogger(s.logger)),
		Runner:    sandbox.New(cfg.Interpreter, sandbox.WithLogger(s.logger)),
		Submitter: submit.New(cfg.StudentEmail, cfg.StudentSecret, submitOpts...),
		Deadline:  cfg.ChainTimeout,
		Ring:      s.ring,
		Events:    s.events,
		Logger:    s.logger,
	})
	return s
}

// Authorize checks inbound credentials: email case-insensitive, secret exact
// in constant time.
func (s *Service) Authorize(email, secret string) error {
	emailOK := strings.EqualFold(email, s.cfg.StudentEmail)
	secretOK := subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.StudentSecret)) == 1
	if !emailOK || !secretOK {
		return ErrUnauthorized
	}
	return nil
}

// Solve registers a task for url and starts its chain in the background.
// The caller gets the task ID immediately; progress is observable through
// Task and Logs.
func (s *Service) Solve(url string) string {
	id := s.tasks.Create(url)
	go s.runChain(id, url)
	return id
}

func (s *Service) runChain(taskID, url string) {
	s.tasks.SetState(taskID, observability.TaskSolving)

	// The chain outlives the triggering request; its only deadline is the
	// driver's own wall-clock budget.
	res := s.driver.Run(context.Background(), taskID, url)

	switch res.State {
	case chain.StateCompleted, chain.StateExhausted:
		s.tasks.SetState(taskID, observability.TaskCompleted)
	case chain.StateTimedOut:
		s.tasks.Fail(taskID, "chain deadline exceeded")
	default:
		msg := "chain failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		s.tasks.Fail(taskID, msg)
	}

	s.logger.Info("chain finished",
		"task_id", taskID,
		"state", string(res.State),
		"questions", res.QuestionCount,
		"elapsed", res.Elapsed)
}

// Task returns the record for one task ID.
func (s *Service) Task(id string) (observability.Task, bool) {
	return s.tasks.Get(id)
}

// TaskSnapshot returns all currently retained tasks.
func (s *Service) TaskSnapshot() map[string]observability.Task {
	return s.tasks.Snapshot()
}

// Logs returns the most recent ring entries, oldest first.
func (s *Service) Logs(limit int) []observability.Entry {
	return s.ring.Recent(limit)
}

// ClearLogs empties the ring.
func (s *Service) ClearLogs() {
	s.ring.Clear()
}

// Config exposes the loaded configuration for status reporting.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// StartSweeper drops expired terminal tasks on a fixed cadence until ctx
// ends.
func (s *Service) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tasks.Sweep()
			}
		}
	}()
}

// Close releases owned resources, the browser included.
func (s *Service) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
