package ingest

import "encoding/json"

// Kind tags the decoded variant of a resource payload.
type Kind string

const (
	KindTabular    Kind = "tabular"    // CSV / XLSX rows and columns
	KindDocument   Kind = "document"   // per-page PDF text
	KindAudio      Kind = "audio"      // transcript plus encoded bytes
	KindStructured Kind = "structured" // parsed JSON
	KindText       Kind = "text"       // plain text body
	KindBinary     Kind = "binary"     // anything undecodable
	KindFailed     Kind = "failed"     // download exhausted its retries
)

// Page is one page of an extracted document.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// Payload is the decoded form of one downloaded resource. Exactly one
// variant's fields are populated, selected by Kind. Payloads are created by
// the pipeline and never mutated afterwards.
type Payload struct {
	URL  string `json:"url"`
	Kind Kind   `json:"kind"`

	// KindTabular
	Columns  []string   `json:"columns,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	RowCount int        `json:"row_count,omitempty"`

	// KindDocument
	Pages []Page `json:"pages,omitempty"`

	// KindAudio
	Transcript   string `json:"transcript,omitempty"`
	EncodedBytes string `json:"encoded_bytes,omitempty"` // base64 of the raw audio

	// KindStructured
	JSON json.RawMessage `json:"json,omitempty"`

	// KindText
	Text string `json:"text,omitempty"`

	// KindBinary
	SizeBytes int `json:"size_bytes,omitempty"`

	// KindFailed
	ErrorKind string `json:"error_kind,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
}
