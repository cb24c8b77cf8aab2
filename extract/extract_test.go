package extract

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestExtract_ResourceURLs_ResolvedAndDeduped(t *testing.T) {
	// WHAT: Relative links resolve against the base URL; duplicates are
	// removed; first-seen order is preserved.
	// WHY: The ingestion pipeline keys payloads by exact URL.
	page := `<html><body>
		<a href="data.csv">data</a>
		<a href="https://x.test/data.csv">same</a>
		<a href="/files/report.pdf">report</a>
		<a href="data.csv">dup</a>
		<audio src="clip.mp3"></audio>
	</body></html>`

	rec := New(nil).Extract(page, "https://x.test/q")

	want := []string{
		"https://x.test/data.csv",
		"https://x.test/files/report.pdf",
		"https://x.test/clip.mp3",
	}
	if len(rec.ResourceURLs) != len(want) {
		t.Fatalf("urls: got %v, want %v", rec.ResourceURLs, want)
	}
	for i := range want {
		if rec.ResourceURLs[i] != want[i] {
			t.Errorf("url[%d]: got %q, want %q", i, rec.ResourceURLs[i], want[i])
		}
	}
}

func TestExtract_AudioSourceChildren(t *testing.T) {
	// WHAT: <source> children of <audio> and <video src> are collected.
	// WHY: Quiz pages embed audio either way.
	page := `<audio><source src="a.opus"><source src="b.wav"></audio>
		<video src="clip.mp4"></video>`
	rec := New(nil).Extract(page, "https://x.test/q")
	got := strings.Join(rec.ResourceURLs, " ")
	for _, u := range []string{"https://x.test/a.opus", "https://x.test/b.wav", "https://x.test/clip.mp4"} {
		if !strings.Contains(got, u) {
			t.Errorf("missing %s in %v", u, rec.ResourceURLs)
		}
	}
}

func TestExtract_EmbeddedSecretPrepended(t *testing.T) {
	// WHAT: atob("...") payloads are decoded and prepended to the text.
	// WHY: The obfuscated payload often carries the real question.
	b64 := base64.StdEncoding.EncodeToString([]byte("SECRET-42"))
	page := `<html><head><script>var q = atob("` + b64 + `");</script></head>
		<body><p>Visible question text</p></body></html>`

	rec := New(nil).Extract(page, "https://x.test/q")

	secretIdx := strings.Index(rec.QuestionText, "SECRET-42")
	visibleIdx := strings.Index(rec.QuestionText, "Visible question text")
	if secretIdx < 0 {
		t.Fatal("decoded secret missing from question text")
	}
	if visibleIdx < 0 {
		t.Fatal("visible text missing")
	}
	if secretIdx > visibleIdx {
		t.Error("secret should precede visible text")
	}
}

func TestExtract_ScriptsAndStylesStripped(t *testing.T) {
	// WHAT: script/style content never appears in the visible text.
	// WHY: The planner prompt must carry question text, not page code.
	page := `<html><head><style>.x{color:red}</style></head>
		<body><script>var hidden = "nope";</script><p>Question here</p></body></html>`
	rec := New(nil).Extract(page, "https://x.test/q")
	if strings.Contains(rec.QuestionText, "hidden") || strings.Contains(rec.QuestionText, "color:red") {
		t.Errorf("script/style leaked into text: %q", rec.QuestionText)
	}
	if !strings.Contains(rec.QuestionText, "Question here") {
		t.Errorf("visible text lost: %q", rec.QuestionText)
	}
}

func TestExtract_Tables(t *testing.T) {
	// WHAT: Every <table> is captured as a verbatim markup fragment.
	// WHY: Tables feed the analysis prompt unchanged.
	page := `<table><tr><td>a</td></tr></table><p>x</p><table><tr><td>b</td></tr></table>`
	rec := New(nil).Extract(page, "https://x.test/q")
	if len(rec.TableFragments) != 2 {
		t.Fatalf("tables: got %d, want 2", len(rec.TableFragments))
	}
	if !strings.Contains(rec.TableFragments[0], "<td>a</td>") {
		t.Errorf("fragment 0: %q", rec.TableFragments[0])
	}
}

func TestExtract_SubmissionURL(t *testing.T) {
	// WHAT: "POST ... to <url>" phrasing wins; otherwise any URL containing
	// submit or /answer; otherwise empty.
	// WHY: The submitter needs the page's stated endpoint when present.
	cases := []struct {
		name string
		page string
		want string
	}{
		{
			"post-phrase",
			`<p>POST your answer to https://x.test/api/check</p>`,
			"https://x.test/api/check",
		},
		{
			"submit-in-url",
			`<p>See https://x.test/submit-here for details</p>`,
			"https://x.test/submit-here",
		},
		{
			"answer-in-url",
			`<p>Endpoint: https://x.test/v1/answer</p>`,
			"https://x.test/v1/answer",
		},
		{
			"none",
			`<p>No endpoint mentioned at all</p>`,
			"",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := New(nil).Extract(tc.page, "https://x.test/q")
			if rec.SubmissionURL != tc.want {
				t.Errorf("got %q, want %q", rec.SubmissionURL, tc.want)
			}
		})
	}
}

func TestExtract_MalformedHTMLNeverFails(t *testing.T) {
	// WHAT: Garbage input still produces a usable record.
	// WHY: Extraction never aborts the page; empty fields are fine.
	rec := New(nil).Extract("<<<not <html", "https://x.test/q")
	if rec == nil {
		t.Fatal("nil record")
	}
	if rec.RawHTML == "" {
		t.Error("raw html should be preserved")
	}
}
