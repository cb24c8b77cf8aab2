package submit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolve_FallbackLadder(t *testing.T) {
	// WHAT: Stated URL wins, then the override, then /quiz substitution,
	// then the host's /submit root.
	s := New("e@x.test", "sec", WithOverride("https://override.test/submit"))

	cases := []struct {
		name        string
		stated      string
		questionURL string
		want        string
	}{
		{"stated-wins", "https://q.test/api/check", "https://q.test/quiz/1", "https://q.test/api/check"},
		{"override-next", "", "https://q.test/quiz/1", "https://override.test/submit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Resolve(tc.stated, tc.questionURL)
			if err != nil || got != tc.want {
				t.Errorf("got %q (%v), want %q", got, err, tc.want)
			}
		})
	}

	plain := New("e@x.test", "sec")
	got, err := plain.Resolve("", "https://q.test/quiz/42")
	if err != nil || got != "https://q.test/submit/42" {
		t.Errorf("substitution: got %q (%v)", got, err)
	}
	got, err = plain.Resolve("", "https://q.test/question/42")
	if err != nil || got != "https://q.test/submit" {
		t.Errorf("host root: got %q (%v)", got, err)
	}
}

func TestSubmit_PayloadAndVerdict(t *testing.T) {
	// WHAT: The envelope carries email, secret, question URL and the typed
	// answer; the verdict decodes from the response.
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(Verdict{Correct: true, URL: "https://q.test/quiz/2"})
	}))
	defer srv.Close()

	s := New("e@x.test", "sec")
	v, err := s.Submit(context.Background(), srv.URL, "https://q.test/quiz/1", int64(1234))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !v.Correct || v.URL != "https://q.test/quiz/2" {
		t.Errorf("verdict: %+v", v)
	}
	if got.Email != "e@x.test" || got.Secret != "sec" || got.URL != "https://q.test/quiz/1" {
		t.Errorf("payload: %+v", got)
	}
	if n, ok := got.Answer.(float64); !ok || n != 1234 {
		t.Errorf("answer: %#v", got.Answer)
	}
}

func TestSubmit_HTTPErrorIsFatal(t *testing.T) {
	// WHAT: A non-200 response is an error, not a verdict.
	// WHY: The chain treats submission failure as terminal.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	s := New("e@x.test", "sec")
	if _, err := s.Submit(context.Background(), srv.URL, "https://q.test/quiz/1", "x"); err == nil {
		t.Fatal("expected error")
	}
}
