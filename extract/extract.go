// Package extract turns rendered quiz HTML into a structured question
// record: visible text (with decoded embedded secrets prepended), resource
// links, table fragments, and an inferred submission endpoint.
//
// Extraction is an ordered list of independent rules. Each rule is total
// (it fills its field or leaves it empty), so a malformed page never aborts
// the question; downstream stages work with whatever was recovered.
package extract

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// QuestionRecord is the structured result of extracting one quiz page.
// Immutable after creation.
type QuestionRecord struct {
	// QuestionText is the page's visible text. Any decoded embedded secrets
	// are prepended, since those often carry the real question content.
	QuestionText string

	// SubmissionURL is the inferred answer endpoint, empty when no rule
	// matched. The submitter applies its fallback policy in that case.
	SubmissionURL string

	// ResourceURLs are absolute download links in first-seen order, deduped.
	ResourceURLs []string

	// TableFragments holds each <table> element as verbatim markup.
	TableFragments []string

	RawHTML string
}

// Extractor applies the extraction rules to rendered pages.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract parses rawHTML and applies every rule. It never returns an error:
// a rule that finds nothing leaves its field empty.
func (e *Extractor) Extract(rawHTML, baseURL string) *QuestionRecord {
	rec := &QuestionRecord{RawHTML: rawHTML}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		// Unparseable markup: fall back to treating the input as text so the
		// planner still sees something.
		e.logger.Warn("extract: html parse failed", "error", err)
		rec.QuestionText = rawHTML
		return rec
	}

	text := collectVisibleText(doc)

	// Rules in priority order. Secrets come first because they are prepended
	// to the question text that every later consumer reads.
	if secrets := decodeEmbeddedSecrets(rawHTML); len(secrets) > 0 {
		text = strings.Join(secrets, "\n") + "\n" + text
	}
	rec.QuestionText = text
	rec.ResourceURLs = collectResourceURLs(doc, baseURL)
	rec.TableFragments = collectTables(doc)
	rec.SubmissionURL = inferSubmissionURL(text)

	e.logger.Debug("extract: page parsed",
		"resources", len(rec.ResourceURLs),
		"tables", len(rec.TableFragments),
		"submission_url", rec.SubmissionURL)
	return rec
}

// atobRe matches obfuscated inline-decode calls like atob("SGVsbG8=").
var atobRe = regexp.MustCompile(`atob\(['"]([A-Za-z0-9+/=]+)['"]\)`)

// decodeEmbeddedSecrets finds atob(...) literals in the raw markup and
// returns their decoded contents. Invalid base64 is skipped silently.
func decodeEmbeddedSecrets(rawHTML string) []string {
	var out []string
	for _, m := range atobRe.FindAllStringSubmatch(rawHTML, -1) {
		decoded, err := base64.StdEncoding.DecodeString(m[1])
		if err != nil {
			continue
		}
		out = append(out, string(decoded))
	}
	return out
}

// collectVisibleText walks the DOM and gathers text, skipping script, style
// and noscript subtrees.
func collectVisibleText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(t)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}

var resourceExtensions = []string{
	// audio
	".opus", ".mp3", ".wav", ".m4a", ".ogg", ".flac",
	// documents and data
	".pdf", ".csv", ".xlsx", ".json", ".txt", ".png", ".jpg", ".jpeg",
}

func hasResourceExtension(link string) bool {
	l := strings.ToLower(link)
	for _, ext := range resourceExtensions {
		if strings.Contains(l, ext) {
			return true
		}
	}
	return false
}

// collectResourceURLs gathers download links from <audio> (src and nested
// <source>), <video>, and <a href> elements with a recognized extension.
// Relative URLs are resolved against base; first-seen order is preserved and
// exact duplicates removed.
func collectResourceURLs(doc *html.Node, base string) []string {
	baseU, _ := url.Parse(base)
	seen := make(map[string]bool)
	var out []string

	add := func(link string) {
		link = strings.TrimSpace(link)
		if link == "" {
			return
		}
		if baseU != nil {
			if ref, err := url.Parse(link); err == nil {
				link = baseU.ResolveReference(ref).String()
			}
		}
		if seen[link] {
			return
		}
		seen[link] = true
		out = append(out, link)
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Audio, atom.Video:
				if src := attr(n, "src"); src != "" {
					add(src)
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && c.DataAtom == atom.Source {
						if src := attr(c, "src"); src != "" {
							add(src)
						}
					}
				}
			case atom.A:
				if href := attr(n, "href"); href != "" && hasResourceExtension(href) {
					add(href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// collectTables renders every <table> element back to markup.
func collectTables(doc *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			var buf bytes.Buffer
			if err := html.Render(&buf, n); err == nil {
				out = append(out, buf.String())
			}
			return // nested tables stay part of their parent fragment
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

var (
	submitPhraseRe = regexp.MustCompile(`(?i)(?:POST|submit).*?(?:to|at)\s+(https?://[^\s'"<>]+)`)
	anyURLRe       = regexp.MustCompile(`https?://[^\s'"<>]+`)
)

// inferSubmissionURL looks for "POST to/at <url>" phrasing first, then for
// any URL that mentions submit or /answer. Empty when nothing matches.
func inferSubmissionURL(text string) string {
	if m := submitPhraseRe.FindStringSubmatch(text); m != nil {
		return strings.TrimRight(m[1], ".,;)")
	}
	for _, u := range anyURLRe.FindAllString(text, -1) {
		lower := strings.ToLower(u)
		if strings.Contains(lower, "submit") || strings.Contains(lower, "/answer") {
			return strings.TrimRight(u, ".,;)")
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
