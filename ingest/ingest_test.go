package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// allowAll skips SSRF checks so tests can hit httptest loopback servers.
func allowAll(string) error { return nil }

func testConfig() FetchConfig {
	return FetchConfig{
		Attempts:     3,
		Backoff:      1, // nanosecond backoff keeps retry tests fast
		URLValidator: allowAll,
	}
}

func TestProcess_RetryThenSuccess(t *testing.T) {
	// WHAT: Two 500s followed by a 200 still yields a decoded payload.
	// WHY: Transient quiz-server errors must not lose a resource.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("name,score\nada,10\n"))
	}))
	defer srv.Close()

	got := New(testConfig()).Process(context.Background(), []string{srv.URL + "/data.csv"})
	if len(got) != 1 {
		t.Fatalf("payloads: %d", len(got))
	}
	p := got[0]
	if p.Kind != KindTabular {
		t.Fatalf("kind: got %s, want %s (%+v)", p.Kind, KindTabular, p)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
	if p.RowCount != 1 || p.Columns[0] != "name" {
		t.Errorf("tabular content: %+v", p)
	}
}

func TestProcess_ExhaustedRetries(t *testing.T) {
	// WHAT: A URL that always fails becomes a failed payload with the
	// attempt count, and the batch still returns.
	// WHY: One dead resource must not abort the question.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	got := New(testConfig()).Process(context.Background(), []string{srv.URL + "/gone.csv"})
	p := got[0]
	if p.Kind != KindFailed {
		t.Fatalf("kind: got %s, want %s", p.Kind, KindFailed)
	}
	if p.Attempts != 3 || calls.Load() != 3 {
		t.Errorf("attempts: payload %d, server saw %d, want 3", p.Attempts, calls.Load())
	}
	if !strings.Contains(p.ErrorKind, "500") {
		t.Errorf("error kind: %q", p.ErrorKind)
	}
}

func TestProcess_EmptyBodyRetried(t *testing.T) {
	// WHAT: A 200 with an empty body counts as a failed attempt.
	// WHY: Quiz servers sometimes return blank responses under load.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			return // 200, no body
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	got := New(testConfig()).Process(context.Background(), []string{srv.URL + "/note.txt"})
	if got[0].Kind != KindText || got[0].Text != "hello" {
		t.Fatalf("payload: %+v", got[0])
	}
	if calls.Load() != 2 {
		t.Errorf("calls: got %d, want 2", calls.Load())
	}
}

func TestProcess_JSONAndBinary(t *testing.T) {
	// WHAT: application/json parses into a structured payload; unknown
	// non-UTF-8 bytes fall through to binary with their size.
	// WHY: Every download must land in exactly one variant.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"answer": 42}`))
		case "/blob":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte{0xff, 0xfe, 0x00, 0x01})
		}
	}))
	defer srv.Close()

	got := New(testConfig()).Process(context.Background(),
		[]string{srv.URL + "/data.json", srv.URL + "/blob"})

	if got[0].Kind != KindStructured || !strings.Contains(string(got[0].JSON), "42") {
		t.Errorf("json payload: %+v", got[0])
	}
	if got[1].Kind != KindBinary || got[1].SizeBytes != 4 {
		t.Errorf("binary payload: %+v", got[1])
	}
}

func TestProcess_OrderPreserved(t *testing.T) {
	// WHAT: Results come back in input order regardless of worker timing.
	// WHY: Digests pair with the resource list shown to the model.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	urls := []string{srv.URL + "/a.txt", srv.URL + "/b.txt", srv.URL + "/c.txt"}
	got := New(testConfig(), WithWorkers(2)).Process(context.Background(), urls)
	for i, want := range []string{"/a.txt", "/b.txt", "/c.txt"} {
		if got[i].Text != want {
			t.Errorf("payload[%d]: got %q, want %q", i, got[i].Text, want)
		}
	}
}

func TestClassify(t *testing.T) {
	// WHAT: Header wins over extension; octet-stream defers to extension.
	cases := []struct {
		contentType string
		url         string
		want        resourceClass
	}{
		{"text/csv", "https://x.test/file", classCSV},
		{"text/plain; charset=utf-8", "https://x.test/data.csv", classCSV},
		{"text/plain", "https://x.test/notes.txt", classText},
		{"application/octet-stream", "https://x.test/report.pdf", classPDF},
		{"application/octet-stream", "https://x.test/clip.opus?v=2", classAudio},
		{"audio/mpeg", "https://x.test/whatever", classAudio},
		{"application/json", "https://x.test/d", classJSON},
		{"application/octet-stream", "https://x.test/mystery", classBinary},
	}
	for _, tc := range cases {
		if got := classify(tc.contentType, tc.url); got != tc.want {
			t.Errorf("classify(%q, %q): got %d, want %d", tc.contentType, tc.url, got, tc.want)
		}
	}
}

func TestDigest_Tabular(t *testing.T) {
	// WHAT: Tabular digests carry columns, row count and a short preview.
	// WHY: The planner prompt needs shape, not the whole dataset.
	p := &Payload{
		URL: "https://x.test/d.csv", Kind: KindTabular,
		Columns:  []string{"name", "score"},
		Rows:     [][]string{{"ada", "10"}, {"bob", "7"}, {"cal", "3"}, {"dee", "1"}},
		RowCount: 4,
	}
	d := p.Digest()
	for _, want := range []string{"name, score", "Rows: 4", "ada, 10"} {
		if !strings.Contains(d, want) {
			t.Errorf("digest missing %q:\n%s", want, d)
		}
	}
	if strings.Contains(d, "dee") {
		t.Errorf("digest should preview only %d rows:\n%s", digestPreviewRows, d)
	}
}

func TestDecodeAudio_PlaceholderWithoutTranscriber(t *testing.T) {
	// WHAT: No transcriber means a placeholder transcript, never an error.
	// WHY: Audio questions should degrade, not abort.
	p := decodeAudio(context.Background(), "https://x.test/a.mp3", []byte{1, 2, 3}, nil)
	if p.Transcript != transcriptPlaceholder {
		t.Errorf("transcript: %q", p.Transcript)
	}
	if p.EncodedBytes == "" {
		t.Error("encoded bytes missing")
	}
}
