package ingest

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// transcriptPlaceholder stands in when no transcript could be produced. The
// planner still sees that an audio resource exists.
const transcriptPlaceholder = "[audio transcription unavailable]"

// Transcriber turns raw audio bytes into text. The planner package provides
// the gateway-backed implementation.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// decodeAudio produces an audio payload. Transcription is best effort: the
// bytes are transcoded to WAV via ffmpeg when available, then sent to the
// transcriber; any failure yields the placeholder transcript instead of an
// error. The original bytes ride along base64 encoded so solution code can
// reprocess them.
func decodeAudio(ctx context.Context, url string, body []byte, t Transcriber) *Payload {
	p := &Payload{
		URL:          url,
		Kind:         KindAudio,
		Transcript:   transcriptPlaceholder,
		EncodedBytes: base64.StdEncoding.EncodeToString(body),
	}
	if t == nil {
		return p
	}

	name := filepath.Base(url)
	audio := body
	if wav, err := transcodeToWAV(ctx, body, name); err == nil {
		audio = wav
		name = "audio.wav"
	}

	text, err := t.Transcribe(ctx, audio, name)
	if err != nil || text == "" {
		return p
	}
	p.Transcript = text
	return p
}

// transcodeToWAV shells out to ffmpeg to convert arbitrary audio containers
// into 16 kHz mono WAV, the format transcription endpoints accept most
// reliably.
func transcodeToWAV(ctx context.Context, body []byte, name string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "quizd-audio-*")
	if err != nil {
		return nil, fmt.Errorf("tempdir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, name)
	out := filepath.Join(dir, "out.wav")
	if err := os.WriteFile(in, body, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", in, "-ar", "16000", "-ac", "1", out)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	wav, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return wav, nil
}
