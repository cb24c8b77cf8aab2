// Package planner turns an extracted question into an executable solution
// strategy via two gateway calls: a context pass over the rendered page and
// an analysis pass over the question plus its decoded resources. Model output
// is JSON salvaged through an ordered chain that always yields a usable plan.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

const (
	contextMaxTokens  = 512
	analysisMaxTokens = 4096

	// maxPromptHTML bounds page content in the context prompt.
	maxPromptHTML = 20000
	// maxPromptTable bounds each table fragment in the analysis prompt.
	maxPromptTable = 1000
)

// Credentials identify the student to the quiz server. They are injected
// into the analysis prompt as context only.
type Credentials struct {
	Email  string
	Secret string
}

// AnalysisInput is everything the analysis pass sees for one question.
type AnalysisInput struct {
	QuestionText string
	QuizURL      string
	// ContextDetails is the raw output of the context pass, empty when that
	// call failed or was skipped.
	ContextDetails string
	// ResourceDigests summarizes the decoded downloads.
	ResourceDigests string
	// Tables are verbatim markup fragments from the page.
	Tables []string
}

// Planner runs the two model passes for each question.
type Planner struct {
	client    *Client
	creds     Credentials
	sanitizer *bluemonday.Policy
	md        *converter.Converter
	logger    *slog.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithLogger sets the planner logger. Default: slog.Default().
func WithLogger(l *slog.Logger) PlannerOption {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPlanner creates a Planner on top of a gateway client.
func NewPlanner(client *Client, creds Credentials, opts ...PlannerOption) *Planner {
	p := &Planner{
		client:    client,
		creds:     creds,
		sanitizer: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractContext runs the context pass over the rendered page. The result is
// raw model text passed verbatim into the analysis prompt. Failure is not
// fatal: an empty string means the analysis pass works without it.
func (p *Planner) ExtractContext(ctx context.Context, quizURL, rawHTML string) string {
	if quizURL == "" || rawHTML == "" {
		return ""
	}

	content := p.pageDigest(rawHTML, quizURL)
	user := fmt.Sprintf("QUESTION URL:\n%s\n\nPAGE CONTENT:\n%s", quizURL, content)

	out, err := p.client.Complete(ctx, contextSystemPrompt, user, contextMaxTokens)
	if err != nil {
		p.logger.Warn("planner: context pass failed", "url", quizURL, "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// Analyze runs the analysis pass and salvages the response into a Plan. A
// gateway failure here is fatal for the question.
func (p *Planner) Analyze(ctx context.Context, in AnalysisInput) (*Plan, error) {
	prompt := p.buildAnalysisPrompt(in)

	out, err := p.client.Complete(ctx, analysisSystemPrompt, prompt, analysisMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("analysis pass: %w", err)
	}

	plan := ParsePlan(out)
	if plan.Degraded {
		p.logger.Warn("planner: response salvage degraded", "url", in.QuizURL)
	}
	p.logger.Info("planner: plan ready",
		"url", in.QuizURL,
		"answer_type", plan.AnswerType,
		"has_code", plan.SolutionCode != "",
		"degraded", plan.Degraded)
	return plan, nil
}

// pageDigest sanitizes rendered markup and converts it to markdown so the
// context prompt carries page structure without page code. Falls back to the
// sanitized HTML when conversion fails.
func (p *Planner) pageDigest(rawHTML, sourceURL string) string {
	clean := p.sanitizer.Sanitize(rawHTML)
	md, err := p.md.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(md) == "" {
		md = clean
	}
	md = strings.TrimSpace(md)
	if len(md) > maxPromptHTML {
		md = md[:maxPromptHTML] + "\n... (truncated)"
	}
	return md
}

func (p *Planner) buildAnalysisPrompt(in AnalysisInput) string {
	var sb strings.Builder

	sb.WriteString("You are an expert data analyst tasked with solving a quiz question.\n\n")
	sb.WriteString("If email is required, use STUDENT_EMAIL and STUDENT_SECRET for authentication. Use them directly as provided, do not modify them.\n")
	fmt.Fprintf(&sb, "STUDENT_EMAIL: %s\nSTUDENT_SECRET: %s\n\n", p.creds.Email, p.creds.Secret)

	fmt.Fprintf(&sb, "QUESTION TEXT:\n%s\n\n", in.QuestionText)
	fmt.Fprintf(&sb, "QUESTION URL:\n%s\n\n", in.QuizURL)

	details := in.ContextDetails
	if details == "" {
		details = "N/A"
	}
	fmt.Fprintf(&sb, "QUESTION DETAILS:\n%s\n", details)

	if in.ResourceDigests != "" {
		sb.WriteString("\nADDITIONAL CONTEXT:\nDownloaded resources:\n")
		sb.WriteString(in.ResourceDigests)
		sb.WriteByte('\n')
	}

	if len(in.Tables) > 0 {
		sb.WriteString("\nTABLES FOUND IN PAGE:\n")
		for i, t := range in.Tables {
			if len(t) > maxPromptTable {
				t = t[:maxPromptTable]
			}
			fmt.Fprintf(&sb, "Table %d:\n%s\n", i+1, t)
		}
	}

	sb.WriteString(analysisInstructions)
	return sb.String()
}
