package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePlan_Direct(t *testing.T) {
	// WHAT: Clean JSON decodes without salvage.
	p := ParsePlan(`{"analysis":"sum column","answer_type":"number","solution_code":"print(42)"}`)
	if p.Degraded {
		t.Fatal("unexpected degraded plan")
	}
	if p.AnswerType != AnswerNumber || p.SolutionCode != "print(42)" {
		t.Errorf("plan: %+v", p)
	}
}

func TestParsePlan_FencedAndProse(t *testing.T) {
	// WHAT: Markdown fences and surrounding prose are salvaged.
	// WHY: Models wrap JSON in commentary despite instructions.
	cases := []string{
		"```json\n{\"analysis\":\"x\",\"answer_type\":\"string\"}\n```",
		"Here is my plan:\n{\"analysis\":\"x\",\"answer_type\":\"string\"}\nHope that helps!",
	}
	for _, in := range cases {
		p := ParsePlan(in)
		if p.Degraded || p.Analysis != "x" {
			t.Errorf("salvage failed for %q: %+v", in, p)
		}
	}
}

func TestParsePlan_SmartQuotes(t *testing.T) {
	// WHAT: Curly quotes from the model are normalized in the cleanup pass.
	in := "{“analysis”: “smart”, “answer_type”: “string”}"
	p := ParsePlan(in)
	if p.Degraded || p.Analysis != "smart" {
		t.Errorf("cleanup failed: %+v", p)
	}
}

func TestParsePlan_DegradedCarriesRawText(t *testing.T) {
	// WHAT: Unsalvageable output yields a degraded string plan, never nil.
	// WHY: The chain should still attempt a submission with the raw text.
	p := ParsePlan("The answer is probably around 42 but I am not sure")
	if !p.Degraded {
		t.Fatal("expected degraded plan")
	}
	if p.AnswerType != AnswerString || !strings.Contains(p.Solution, "42") {
		t.Errorf("degraded plan: %+v", p)
	}
}

func TestCoerceAnswer(t *testing.T) {
	// WHAT: Declared answer types convert raw text, with raw-string fallback.
	cases := []struct {
		answerType string
		raw        string
		want       any
	}{
		{AnswerNumber, "1,234", int64(1234)},
		{AnswerNumber, "1,234.5", 1234.5},
		{AnswerNumber, "not a number", "not a number"},
		{AnswerBoolean, "Yes", true},
		{AnswerBoolean, "TRUE", true},
		{AnswerBoolean, "1", true},
		{AnswerBoolean, "no", false},
		{AnswerString, " keep as is ", " keep as is "},
		{AnswerObject, `{"k":"v"}`, map[string]any{"k": "v"}},
		{AnswerObject, "not json", "not json"},
	}
	for _, tc := range cases {
		got := CoerceAnswer(tc.answerType, tc.raw)
		switch want := tc.want.(type) {
		case map[string]any:
			m, ok := got.(map[string]any)
			if !ok || m["k"] != want["k"] {
				t.Errorf("coerce(%s, %q): got %#v", tc.answerType, tc.raw, got)
			}
		default:
			if got != tc.want {
				t.Errorf("coerce(%s, %q): got %#v, want %#v", tc.answerType, tc.raw, got, tc.want)
			}
		}
	}
}

// fakeGateway returns a chat-completions server that replies with content and
// records the last request body.
func fakeGateway(t *testing.T, content string, lastBody *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header: %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if lastBody != nil && len(req.Messages) == 2 {
			*lastBody = req.Messages[1].Content
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Choices: []ChatChoice{{Message: ChatMessage{Role: "assistant", Content: content}}},
		})
	}))
}

func TestAnalyze_PromptCarriesQuestionAndCredentials(t *testing.T) {
	// WHAT: The analysis prompt includes credentials, question text, digests
	// and tables, and the response is salvaged into a plan.
	var prompt string
	srv := fakeGateway(t, `{"analysis":"ok","answer_type":"number","final_answer":7}`, &prompt)
	defer srv.Close()

	p := NewPlanner(
		NewClient(srv.URL, "tok", "test-model"),
		Credentials{Email: "s@example.com", Secret: "s3cret"},
	)
	plan, err := p.Analyze(context.Background(), AnalysisInput{
		QuestionText:    "How many rows?",
		QuizURL:         "https://quiz.test/q1",
		ResourceDigests: "Resource: data.csv (tabular)\nRows: 12",
		Tables:          []string{"<table><tr><td>x</td></tr></table>"},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if plan.AnswerType != AnswerNumber {
		t.Errorf("plan: %+v", plan)
	}
	for _, want := range []string{"s@example.com", "s3cret", "How many rows?", "data.csv", "<td>x</td>"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExtractContext_FailureIsEmpty(t *testing.T) {
	// WHAT: A gateway error in the context pass returns "", not an error.
	// WHY: The context pass is best effort; the chain continues without it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPlanner(NewClient(srv.URL, "tok", "m"), Credentials{})
	if got := p.ExtractContext(context.Background(), "https://quiz.test/q1", "<p>hi</p>"); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}
