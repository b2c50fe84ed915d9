// Package engine wraps the local speech-to-text backend. The native backend
// binds whisper.cpp and is compiled in with the whispercpp build tag; without
// it the stub engine is the only option.
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// ErrNativeUnavailable indicates the whisper.cpp backend is not compiled in.
var ErrNativeUnavailable = errors.New("engine: native whisper backend unavailable (build with -tags whispercpp)")

type Options struct {
	Language string // ISO-639-1 code or "auto"
}

type Result struct {
	Text       string
	Confidence float64
}

// Engine is stateless across calls except for the loaded model handle.
// Transcribe blocks for the duration of inference and honors ctx
// cancellation.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, pcm []byte, opts Options) (Result, error)
	Close() error
}

type Config struct {
	Backend   string // "native" or "stub"
	ModelPath string
}

func New(cfg Config) (Engine, error) {
	switch cfg.Backend {
	case "stub":
		return NewStub(""), nil
	case "", "native":
		if !NativeAvailable() {
			return nil, ErrNativeUnavailable
		}
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("engine: model file %s: %w", cfg.ModelPath, err)
		}
		return NewNative(cfg.ModelPath)
	default:
		return nil, fmt.Errorf("engine: unknown backend %q", cfg.Backend)
	}
}

func pcmToFloat32(buf []byte) []float32 {
	n := len(buf) / 2
	if n == 0 {
		return nil
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		u := binary.LittleEndian.Uint16(buf[2*i:])
		samples[i] = float32(int16(u)) / 32768.0
	}
	return samples
}
