package ingest

import (
	"fmt"
	"strings"
)

const (
	digestPreviewRows = 3
	digestMaxJSON     = 2000
	digestMaxText     = 2000
	digestMaxPages    = 2
)

// Digest renders a payload as a compact prompt fragment. Large bodies are
// truncated so a batch of resources never overwhelms the model's context.
func (p *Payload) Digest() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Resource: %s (%s)\n", p.URL, p.Kind)

	switch p.Kind {
	case KindTabular:
		fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(p.Columns, ", "))
		fmt.Fprintf(&sb, "Rows: %d\n", p.RowCount)
		n := min(digestPreviewRows, len(p.Rows))
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, "Row %d: %s\n", i+1, strings.Join(p.Rows[i], ", "))
		}
	case KindDocument:
		fmt.Fprintf(&sb, "Pages: %d\n", len(p.Pages))
		for i, page := range p.Pages {
			if i >= digestMaxPages {
				sb.WriteString("(remaining pages omitted)\n")
				break
			}
			fmt.Fprintf(&sb, "Page %d: %s\n", page.Number, truncate(page.Text, digestMaxText))
		}
	case KindAudio:
		fmt.Fprintf(&sb, "Transcript: %s\n", truncate(p.Transcript, digestMaxText))
	case KindStructured:
		fmt.Fprintf(&sb, "JSON: %s\n", truncate(string(p.JSON), digestMaxJSON))
	case KindText:
		fmt.Fprintf(&sb, "Content: %s\n", truncate(p.Text, digestMaxText))
	case KindBinary:
		fmt.Fprintf(&sb, "Binary content, %d bytes. Download it in code if needed.\n", p.SizeBytes)
	case KindFailed:
		fmt.Fprintf(&sb, "Download failed after %d attempts: %s\n", p.Attempts, p.ErrorKind)
	}
	return sb.String()
}

// DigestAll joins the digests of a batch, blank-line separated.
func DigestAll(payloads []*Payload) string {
	parts := make([]string, 0, len(payloads))
	for _, p := range payloads {
		parts = append(parts, p.Digest())
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}
