// Package ingest downloads and decodes quiz resources. Each URL is fetched
// with bounded retries, classified by content type and extension, and decoded
// into a tagged payload the planner can reason about. A resource that cannot
// be downloaded becomes a failed payload rather than aborting the batch.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"path"
	"strings"
	"sync"
	"unicode/utf8"
)

// Pipeline downloads a question's resources and decodes them into payloads.
type Pipeline struct {
	fetcher     *fetcher
	transcriber Transcriber
	workers     int
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTranscriber sets the audio transcriber. Without one, audio payloads
// carry a placeholder transcript.
func WithTranscriber(t Transcriber) Option {
	return func(p *Pipeline) { p.transcriber = t }
}

// WithWorkers bounds download concurrency. Default: 4.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the pipeline logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline with the given fetch configuration.
func New(cfg FetchConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher: newFetcher(cfg),
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process downloads and decodes each URL. Results come back in input order;
// every URL produces exactly one payload, failed downloads included.
func (p *Pipeline) Process(ctx context.Context, urls []string) []*Payload {
	out := make([]*Payload, len(urls))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			out[i] = p.processOne(ctx, u)
		}(i, u)
	}
	wg.Wait()
	return out
}

func (p *Pipeline) processOne(ctx context.Context, url string) *Payload {
	res, attempts, err := p.fetcher.fetch(ctx, url)
	if err != nil {
		p.logger.Warn("ingest: download failed",
			"url", url, "attempts", attempts, "error", err)
		return &Payload{
			URL:       url,
			Kind:      KindFailed,
			ErrorKind: err.Error(),
			Attempts:  attempts,
		}
	}

	payload := p.decode(ctx, url, res)
	p.logger.Debug("ingest: resource decoded",
		"url", url, "kind", payload.Kind, "bytes", len(res.Body))
	return payload
}

// decode classifies by content-type header first, URL extension second, and
// dispatches to the matching decoder. A decoder failure downgrades to text or
// binary instead of failing the resource.
func (p *Pipeline) decode(ctx context.Context, url string, res *fetchResult) *Payload {
	class := classify(res.ContentType, url)

	switch class {
	case classCSV:
		if payload, err := decodeCSV(url, res.Body); err == nil {
			return payload
		} else {
			p.logger.Warn("ingest: csv decode failed", "url", url, "error", err)
		}
	case classXLSX:
		if payload, err := decodeXLSX(url, res.Body); err == nil {
			return payload
		} else {
			p.logger.Warn("ingest: xlsx decode failed", "url", url, "error", err)
		}
	case classPDF:
		if payload, err := decodePDF(url, res.Body); err == nil {
			return payload
		} else {
			p.logger.Warn("ingest: pdf decode failed", "url", url, "error", err)
		}
	case classAudio:
		return decodeAudio(ctx, url, res.Body, p.transcriber)
	case classJSON:
		if json.Valid(res.Body) {
			return &Payload{URL: url, Kind: KindStructured, JSON: json.RawMessage(res.Body)}
		}
		p.logger.Warn("ingest: invalid json body", "url", url)
	case classText:
		return &Payload{URL: url, Kind: KindText, Text: string(res.Body)}
	}

	// Fallback ladder: valid UTF-8 is still useful as text.
	if utf8.Valid(res.Body) && class != classBinary {
		return &Payload{URL: url, Kind: KindText, Text: string(res.Body)}
	}
	return &Payload{URL: url, Kind: KindBinary, SizeBytes: len(res.Body)}
}

type resourceClass int

const (
	classBinary resourceClass = iota
	classCSV
	classXLSX
	classPDF
	classAudio
	classJSON
	classText
)

var extensionClasses = map[string]resourceClass{
	".csv":  classCSV,
	".xlsx": classXLSX,
	".pdf":  classPDF,
	".opus": classAudio,
	".mp3":  classAudio,
	".wav":  classAudio,
	".m4a":  classAudio,
	".ogg":  classAudio,
	".flac": classAudio,
	".json": classJSON,
	".txt":  classText,
}

// classify prefers the Content-Type header, falling back to the URL's path
// extension. Generic octet-stream headers defer to the extension.
func classify(contentType, url string) resourceClass {
	mt := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mt = parsed
	}
	mt = strings.ToLower(mt)

	switch {
	case mt == "text/csv":
		return classCSV
	case mt == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return classXLSX
	case mt == "application/pdf":
		return classPDF
	case strings.HasPrefix(mt, "audio/"):
		return classAudio
	case mt == "application/json":
		return classJSON
	case strings.HasPrefix(mt, "text/"):
		// text/plain may still be a CSV by name; check the extension first.
		if c, ok := classifyByExtension(url); ok {
			return c
		}
		return classText
	}

	if c, ok := classifyByExtension(url); ok {
		return c
	}
	return classBinary
}

func classifyByExtension(url string) (resourceClass, bool) {
	u := strings.ToLower(url)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	c, ok := extensionClasses[path.Ext(u)]
	return c, ok
}
