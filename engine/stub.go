package engine

import (
	"context"
	"fmt"
)

// Stub produces deterministic transcripts without running inference. Used by
// the headless test mode and on builds without the native backend.
type Stub struct {
	text string
}

// NewStub returns a stub engine. With empty text it reports the byte count
// of the audio it was given.
func NewStub(text string) *Stub {
	return &Stub{text: text}
}

func (e *Stub) Name() string { return "stub" }

func (e *Stub) Transcribe(ctx context.Context, pcm []byte, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(pcm) == 0 {
		return Result{}, nil
	}
	text := e.text
	if text == "" {
		text = fmt.Sprintf("stub transcript for %d bytes", len(pcm))
	}
	return Result{Text: text, Confidence: 1.0}, nil
}

func (e *Stub) Close() error { return nil }
