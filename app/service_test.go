package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/quizd/config"
	"github.com/hazyhaar/quizd/observability"
	"github.com/hazyhaar/quizd/submit"
)

type staticRenderer struct {
	pages map[string]string
}

func (s *staticRenderer) Render(_ context.Context, url string) (string, error) {
	return s.pages[url], nil
}

func testConfig(gatewayURL string) *config.Config {
	return &config.Config{
		StudentEmail:  "student@example.com",
		StudentSecret: "s3cret",
		GatewayURL:    gatewayURL,
		GatewayToken:  "tok",
		Model:         "test-model",
		ChainTimeout:  170 * time.Second,
		RetryCount:    3,
		Interpreter:   "sh",
	}
}

func TestAuthorize(t *testing.T) {
	// WHAT: Email matches case-insensitively; the secret must match exactly.
	svc := New(testConfig("http://unused"), WithRenderer(&staticRenderer{}))

	if err := svc.Authorize("Student@Example.COM", "s3cret"); err != nil {
		t.Errorf("case-insensitive email rejected: %v", err)
	}
	if err := svc.Authorize("student@example.com", "S3CRET"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("case-variant secret accepted: %v", err)
	}
	if err := svc.Authorize("other@example.com", "s3cret"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong email accepted: %v", err)
	}
}

func TestSolve_TaskReachesCompleted(t *testing.T) {
	// WHAT: A solve request acks with a task ID and the background chain
	// drives the task to its terminal state.
	var quiz *httptest.Server
	quiz = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(submit.Verdict{Correct: true})
	}))
	defer quiz.Close()

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": `{"analysis":"direct","answer_type":"number","final_answer":1}`,
				}},
			},
		})
	}))
	defer gw.Close()

	svc := New(testConfig(gw.URL), WithRenderer(&staticRenderer{
		pages: map[string]string{quiz.URL + "/quiz/1": "<p>only question</p>"},
	}))

	taskID := svc.Solve(quiz.URL + "/quiz/1")
	if taskID == "" {
		t.Fatal("empty task id")
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		task, ok := svc.Task(taskID)
		if !ok {
			t.Fatal("task disappeared")
		}
		if task.State == observability.TaskCompleted {
			break
		}
		if task.State == observability.TaskFailed {
			t.Fatalf("task failed: %s", task.Error)
		}
		if time.Now().After(deadline) {
			t.Fatalf("task stuck in %s", task.State)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if len(svc.Logs(0)) == 0 {
		t.Error("no progress messages recorded")
	}
}

func TestLogsClear(t *testing.T) {
	// WHAT: DELETE /logs semantics: the ring empties, the registry survives.
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer gw.Close()

	svc := New(testConfig(gw.URL), WithRenderer(&staticRenderer{}))
	taskID := svc.Solve("https://q.test/quiz/1")

	// Wait for the chain to fail on the broken gateway so no more log
	// entries arrive after the clear.
	deadline := time.Now().Add(10 * time.Second)
	for {
		task, _ := svc.Task(taskID)
		if task.State == observability.TaskFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task stuck in %s", task.State)
		}
		time.Sleep(20 * time.Millisecond)
	}

	svc.ClearLogs()
	if len(svc.Logs(0)) != 0 {
		t.Error("logs survived clear")
	}
	if _, ok := svc.Task(taskID); !ok {
		t.Error("task registry should be unaffected by log clear")
	}
}
