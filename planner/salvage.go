package planner

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
)

// braceRe grabs the outermost brace-delimited region of a response.
var braceRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParsePlan decodes model output into a Plan through an ordered salvage
// chain: direct decode, then the first brace-delimited substring, then an
// aggressive cleanup pass. Every strategy failing still returns a usable
// degraded plan, never an error.
func ParsePlan(text string) *Plan {
	trimmed := stripFences(strings.TrimSpace(text))

	if p := tryDecode(trimmed); p != nil {
		return p
	}
	if m := braceRe.FindString(trimmed); m != "" {
		if p := tryDecode(m); p != nil {
			return p
		}
	}
	if p := tryDecode(cleanup(trimmed)); p != nil {
		return p
	}

	raw := text
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return &Plan{
		Analysis:   "Failed to parse model response. Raw response: " + raw,
		AnswerType: AnswerString,
		Steps:      []string{"Manual parsing required"},
		Solution:   text,
		Degraded:   true,
	}
}

func tryDecode(s string) *Plan {
	var p Plan
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil
	}
	return &p
}

// stripFences removes a leading markdown code fence and its closer.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the fence language tag line.
		first := strings.TrimSpace(s[:i])
		if first == "" || !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// cleanup applies the aggressive last-resort transformations: fence markers,
// smart quotes, stray escapes, non-printable runes, collapsed whitespace.
func cleanup(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")

	r := strings.NewReplacer(
		"“", `"`, "”", `"`, // curly double quotes
		"‘", "'", "’", "'", // curly single quotes
		`\'`, "'",
	)
	s = r.Replace(s)

	var sb strings.Builder
	for _, ch := range s {
		if unicode.IsPrint(ch) {
			sb.WriteRune(ch)
		}
	}
	return strings.TrimSpace(sb.String())
}
