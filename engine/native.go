//go:build whispercpp

package engine

/*
#cgo CFLAGS: -I${SRCDIR}/../third_party/whisper.cpp/include -I${SRCDIR}/../third_party/whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../third_party/whisper.cpp/build/src -lwhisper -lstdc++ -lm

#include <stdlib.h>
#include "whisper.h"
#include "ggml.h"

bool voicyAbort(void * user_data);
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"runtime/cgo"
	"strings"
	"sync"
	"unsafe"
)

func NativeAvailable() bool { return true }

// Native runs whisper.cpp inference on a model loaded once at startup.
// Inference calls are serialized; the controller only ever has one job in
// flight anyway.
type Native struct {
	mu  sync.Mutex
	ctx *C.struct_whisper_context
}

func NewNative(modelPath string) (Engine, error) {
	if modelPath == "" {
		return nil, errors.New("engine: model path required")
	}
	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))

	cParams := C.whisper_context_default_params()
	ctx := C.whisper_init_from_file_with_params(cPath, cParams)
	if ctx == nil {
		return nil, fmt.Errorf("engine: failed to load model %s", modelPath)
	}
	return &Native{ctx: ctx}, nil
}

func (e *Native) Name() string { return "whisper.cpp" }

func (e *Native) Transcribe(ctx context.Context, pcm []byte, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	samples := pcmToFloat32(pcm)
	if len(samples) == 0 {
		return Result{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return Result{}, errors.New("engine: closed")
	}

	state := C.whisper_init_state(e.ctx)
	if state == nil {
		return Result{}, errors.New("engine: failed to initialise state")
	}
	defer C.whisper_free_state(state)

	params := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)
	params.print_progress = C.bool(false)
	params.print_realtime = C.bool(false)
	params.print_timestamps = C.bool(false)
	params.translate = C.bool(false)

	lang := strings.TrimSpace(opts.Language)
	if lang == "" {
		lang = "auto"
	}
	cLang := C.CString(lang)
	defer C.free(unsafe.Pointer(cLang))
	params.language = cLang
	if strings.EqualFold(lang, "auto") {
		params.detect_language = C.bool(true)
	}

	handle := cgo.NewHandle(ctx)
	defer handle.Delete()
	params.abort_callback = (C.ggml_abort_callback)(C.voicyAbort)
	params.abort_callback_user_data = unsafe.Pointer(&handle)

	cSamples := (*C.float)(unsafe.Pointer(&samples[0]))
	if ret := C.whisper_full_with_state(e.ctx, state, params, cSamples, C.int(len(samples))); ret != 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("engine: inference failed with code %d", int(ret))
	}

	var b strings.Builder
	var probSum float64
	var probCount int
	nSegments := int(C.whisper_full_n_segments_from_state(state))
	for i := 0; i < nSegments; i++ {
		seg := C.GoString(C.whisper_full_get_segment_text_from_state(state, C.int(i)))
		b.WriteString(seg)
		nTokens := int(C.whisper_full_n_tokens_from_state(state, C.int(i)))
		for j := 0; j < nTokens; j++ {
			probSum += float64(C.whisper_full_get_token_p_from_state(state, C.int(i), C.int(j)))
			probCount++
		}
	}

	res := Result{Text: strings.TrimSpace(b.String())}
	if probCount > 0 {
		res.Confidence = probSum / float64(probCount)
	}
	return res, nil
}

func (e *Native) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		C.whisper_free(e.ctx)
		e.ctx = nil
	}
	return nil
}

//export voicyAbort
func voicyAbort(userData unsafe.Pointer) C.bool {
	handle := *(*cgo.Handle)(userData)
	ctx, ok := handle.Value().(context.Context)
	if !ok {
		return C.bool(false)
	}
	return C.bool(ctx.Err() != nil)
}
