// Package chain owns the top-level solve loop: one question at a time, from
// rendered page to graded answer, following the server's next-URL until the
// chain ends or the wall-clock deadline expires. The deadline is checked
// only between questions; a question in flight always finishes.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/quizd/extract"
	"github.com/hazyhaar/quizd/ingest"
	"github.com/hazyhaar/quizd/observability"
	"github.com/hazyhaar/quizd/planner"
	"github.com/hazyhaar/quizd/sandbox"
	"github.com/hazyhaar/quizd/submit"
)

// State is the chain's terminal or in-flight status.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed" // last answer correct, no next URL
	StateExhausted State = "exhausted" // last answer wrong, no next URL
	StateFailed    State = "failed"    // pipeline error stopped the chain
	StateTimedOut  State = "timed_out" // deadline hit between questions
)

// Renderer produces the fully executed HTML of a page.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// Result is the outcome of one chain run.
type Result struct {
	State         State
	QuestionCount int
	Elapsed       time.Duration
	Err           error
}

// Driver wires the per-question stages into the solve loop.
type Driver struct {
	renderer  Renderer
	extractor *extract.Extractor
	pipeline  *ingest.Pipeline
	planner   *planner.Planner
	runner    *sandbox.Runner
	submitter *submit.Submitter

	deadline time.Duration
	ring     *observability.Ring
	events   *observability.EventLogger
	logger   *slog.Logger
}

// Config assembles a Driver. Renderer through Submitter are required; Ring
// and Events are optional sinks.
type Config struct {
	Renderer  Renderer
	Extractor *extract.Extractor
	Pipeline  *ingest.Pipeline
	Planner   *planner.Planner
	Runner    *sandbox.Runner
	Submitter *submit.Submitter

	// Deadline bounds the whole chain. Default: 170s.
	Deadline time.Duration
	Ring     *observability.Ring
	Events   *observability.EventLogger
	Logger   *slog.Logger
}

// NewDriver creates a Driver from an assembled Config.
func NewDriver(cfg Config) *Driver {
	d := &Driver{
		renderer:  cfg.Renderer,
		extractor: cfg.Extractor,
		pipeline:  cfg.Pipeline,
		planner:   cfg.Planner,
		runner:    cfg.Runner,
		submitter: cfg.Submitter,
		deadline:  cfg.Deadline,
		ring:      cfg.Ring,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}
	if d.deadline <= 0 {
		d.deadline = 170 * time.Second
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Run drives the chain from initialURL to a terminal state. The returned
// Result always carries a terminal State; Err is set only for StateFailed.
func (d *Driver) Run(ctx context.Context, taskID, initialURL string) *Result {
	start := time.Now()
	currentURL := initialURL
	questionCount := 0

	d.note(taskID, observability.LevelInfo, "chain started at %s", initialURL)
	d.event(taskID, "chain_start", initialURL, "", true)

	for {
		if time.Since(start) > d.deadline {
			d.note(taskID, observability.LevelWarning,
				"deadline exceeded after %d question(s)", questionCount)
			d.event(taskID, "chain_timed_out", currentURL,
				fmt.Sprintf("questions=%d", questionCount), false)
			return &Result{State: StateTimedOut, QuestionCount: questionCount, Elapsed: time.Since(start)}
		}
		if ctx.Err() != nil {
			return d.fail(taskID, currentURL, questionCount, start, ctx.Err())
		}

		verdict, err := d.solveOne(ctx, taskID, currentURL)
		if err != nil {
			return d.fail(taskID, currentURL, questionCount, start, err)
		}
		questionCount++

		switch {
		case verdict.Correct && verdict.URL != "":
			d.note(taskID, observability.LevelInfo,
				"question %d correct, next %s", questionCount, verdict.URL)
			currentURL = verdict.URL
		case verdict.Correct:
			d.note(taskID, observability.LevelInfo,
				"chain completed after %d question(s)", questionCount)
			d.event(taskID, "chain_completed", currentURL,
				fmt.Sprintf("questions=%d", questionCount), true)
			return &Result{State: StateCompleted, QuestionCount: questionCount, Elapsed: time.Since(start)}
		case verdict.URL != "":
			// The server's stated next URL is authoritative even after a
			// wrong answer.
			d.note(taskID, observability.LevelWarning,
				"question %d incorrect (%s), continuing to %s",
				questionCount, verdict.Reason, verdict.URL)
			currentURL = verdict.URL
		default:
			d.note(taskID, observability.LevelWarning,
				"chain exhausted after %d question(s): %s", questionCount, verdict.Reason)
			d.event(taskID, "chain_exhausted", currentURL,
				fmt.Sprintf("questions=%d reason=%s", questionCount, verdict.Reason), false)
			return &Result{State: StateExhausted, QuestionCount: questionCount, Elapsed: time.Since(start)}
		}
	}
}

// solveOne runs the single-question pipeline: render, extract, ingest, plan,
// execute, submit. Any returned error is fatal to the chain.
func (d *Driver) solveOne(ctx context.Context, taskID, questionURL string) (*submit.Verdict, error) {
	html, err := d.renderer.Render(ctx, questionURL)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", questionURL, err)
	}

	rec := d.extractor.Extract(html, questionURL)
	d.note(taskID, observability.LevelInfo,
		"extracted question from %s (%d resources, %d tables)",
		questionURL, len(rec.ResourceURLs), len(rec.TableFragments))

	payloads := d.pipeline.Process(ctx, rec.ResourceURLs)
	for _, p := range payloads {
		if p.Kind == ingest.KindFailed {
			d.note(taskID, observability.LevelWarning,
				"resource %s failed after %d attempts: %s", p.URL, p.Attempts, p.ErrorKind)
		}
	}

	details := d.planner.ExtractContext(ctx, questionURL, rec.RawHTML)

	plan, err := d.planner.Analyze(ctx, planner.AnalysisInput{
		QuestionText:    rec.QuestionText,
		QuizURL:         questionURL,
		ContextDetails:  details,
		ResourceDigests: ingest.DigestAll(payloads),
		Tables:          rec.TableFragments,
	})
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", questionURL, err)
	}

	answer, err := d.resolveAnswer(ctx, taskID, plan)
	if err != nil {
		return nil, fmt.Errorf("solve %s: %w", questionURL, err)
	}

	endpoint, err := d.submitter.Resolve(rec.SubmissionURL, questionURL)
	if err != nil {
		return nil, err
	}
	verdict, err := d.submitter.Submit(ctx, endpoint, questionURL, answer)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", questionURL, err)
	}

	d.event(taskID, "question_graded", questionURL,
		fmt.Sprintf("correct=%t", verdict.Correct), verdict.Correct)
	return verdict, nil
}

// resolveAnswer turns a plan into the value to submit. Code plans run in the
// sandbox; literal plans are coerced directly. Execution failure is fatal.
func (d *Driver) resolveAnswer(ctx context.Context, taskID string, plan *planner.Plan) (any, error) {
	if plan.SolutionCode != "" && sandbox.LooksLikeCode(plan.SolutionCode) {
		res, err := d.runner.Run(ctx, plan.SolutionCode)
		if err != nil {
			return nil, fmt.Errorf("execute solution: %w", err)
		}
		raw := strings.TrimSpace(res.Stdout)
		d.note(taskID, observability.LevelInfo, "solution code produced %q", raw)
		return planner.CoerceAnswer(plan.AnswerType, raw), nil
	}

	// A non-code value in the code field is the answer itself.
	if plan.SolutionCode != "" {
		return planner.CoerceAnswer(plan.AnswerType, plan.SolutionCode), nil
	}

	if plan.FinalAnswer != nil {
		if s, ok := plan.FinalAnswer.(string); ok {
			return planner.CoerceAnswer(plan.AnswerType, s), nil
		}
		return plan.FinalAnswer, nil
	}

	if plan.Solution != "" {
		return planner.CoerceAnswer(plan.AnswerType, strings.TrimSpace(plan.Solution)), nil
	}

	return nil, fmt.Errorf("plan has no solution code and no answer")
}

func (d *Driver) fail(taskID, url string, questionCount int, start time.Time, err error) *Result {
	d.note(taskID, observability.LevelError, "chain failed: %v", err)
	d.event(taskID, "chain_failed", url, err.Error(), false)
	return &Result{
		State:         StateFailed,
		QuestionCount: questionCount,
		Elapsed:       time.Since(start),
		Err:           err,
	}
}

// note writes a progress message to both the structured log and the bounded
// ring that backs the /logs endpoint.
func (d *Driver) note(taskID string, level observability.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case observability.LevelError:
		d.logger.Error(msg, "task_id", taskID)
	case observability.LevelWarning:
		d.logger.Warn(msg, "task_id", taskID)
	default:
		d.logger.Info(msg, "task_id", taskID)
	}
	if d.ring != nil {
		d.ring.Append(level, msg)
	}
}

func (d *Driver) event(taskID, eventType, url, details string, success bool) {
	if d.events == nil {
		return
	}
	d.events.Log(observability.Event{
		EventType: eventType,
		TaskID:    taskID,
		URL:       url,
		Details:   details,
		Success:   success,
	})
}
