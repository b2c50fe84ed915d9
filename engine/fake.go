package engine

import (
	"context"
	"sync"
	"time"
)

// Fake is the test double for controller tests: configurable text, error and
// latency, and a record of every call's inputs.
type Fake struct {
	Text  string
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	calls []FakeCall
}

type FakeCall struct {
	Bytes    int
	Language string
}

func NewFake(text string, err error) *Fake {
	return &Fake{Text: text, Err: err}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Transcribe(ctx context.Context, pcm []byte, opts Options) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Bytes: len(pcm), Language: opts.Language})
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.Err != nil {
		return Result{}, f.Err
	}
	return Result{Text: f.Text, Confidence: 0.9}, nil
}

func (f *Fake) Close() error { return nil }

func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}
