// Package controller owns the recording session lifecycle: it turns global
// input events into sessions, drives the audio recorder and hands finished
// buffers to the transcription worker, which post-processes and injects the
// result. All state transitions happen on a single event loop goroutine, so
// at most one Session and one TranscriptionJob ever exist.
package controller

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"voicy/audio"
	"voicy/config"
	"voicy/engine"
	"voicy/log"
	"voicy/textproc"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	}
	return "unknown"
}

// Mode records how a session was started. Only the matching mode's stop
// event may end it.
type Mode int

const (
	ModeHold Mode = iota
	ModeToggle
)

func (m Mode) String() string {
	if m == ModeHold {
		return "hold"
	}
	return "toggle"
}

type Event int

const (
	HoldDown Event = iota
	HoldUp
	TogglePress
	IndicatorClick
	silenceStop // internal: silence monitor auto-stop
)

func (e Event) String() string {
	switch e {
	case HoldDown:
		return "hold_down"
	case HoldUp:
		return "hold_up"
	case TogglePress:
		return "toggle_press"
	case IndicatorClick:
		return "indicator_click"
	case silenceStop:
		return "silence_stop"
	}
	return "unknown"
}

// ErrTranscribeTimeout marks a job abandoned after the bounded wait.
var ErrTranscribeTimeout = errors.New("controller: transcription timed out")

// Capture is what the controller needs from the audio layer.
// *audio.Recorder satisfies it.
type Capture interface {
	Start() error
	Stop() (*audio.Buffer, error)
	SetTap(audio.DataCallback)
	DeviceName() string
}

// SettingsSource yields the value snapshot frozen into each new session.
// *config.Store satisfies it.
type SettingsSource interface {
	Load() config.Settings
}

// Sink receives one-way observations. Controller state is the single source
// of truth for what the user sees; the sink has no authority over it.
type Sink interface {
	StateChanged(s State)
	AudioLevel(rms float64)
	RecordingTick(seconds float64)
	SilenceWarning(on bool)
	NoSpeech()
	Transcribed(text string, audio time.Duration)
	Failed(err error)
}

// NopSink discards everything; embed it to implement Sink partially.
type NopSink struct{}

func (NopSink) StateChanged(State)                {}
func (NopSink) AudioLevel(float64)                {}
func (NopSink) RecordingTick(float64)             {}
func (NopSink) SilenceWarning(bool)               {}
func (NopSink) NoSpeech()                         {}
func (NopSink) Transcribed(string, time.Duration) {}
func (NopSink) Failed(error)                      {}

const (
	// DefaultTranscribeTimeout bounds the wait on an unresponsive engine so
	// the hotkeys stay usable; the worker goroutine is abandoned past it.
	DefaultTranscribeTimeout = 120 * time.Second

	// minSessionFrames filters out accidental taps: anything under 100 ms
	// of audio skips dispatch entirely.
	minSessionFrames = audio.SampleRate / 10
)

type session struct {
	mode      Mode
	startedAt time.Time
	snap      config.Settings
	monStop   chan struct{}
}

type jobResult struct {
	text       string
	confidence float64
	err        error
	snap       config.Settings
	audioDur   time.Duration
	inferDur   time.Duration
}

type Options struct {
	Capture  Capture
	Engine   engine.Engine
	Settings SettingsSource
	Sink     Sink
	Inject   func(text string) error

	// Timeout overrides DefaultTranscribeTimeout when positive.
	Timeout time.Duration

	// DisableVAD skips silence supervision (benchmarks, tests that feed
	// synthetic audio).
	DisableVAD bool
}

type Controller struct {
	rec        Capture
	eng        engine.Engine
	settings   SettingsSource
	sink       Sink
	injectFn   func(string) error
	timeout    time.Duration
	disableVAD bool

	events  chan Event
	jobDone chan jobResult

	// monTick paces the silence supervision ticker; tests shrink it to
	// exercise the warn and auto-close windows quickly.
	monTick time.Duration

	// state is written only by the Run goroutine but read from anywhere
	// through State(), hence atomic.
	state atomic.Int32
	sess  *session
	vad   atomic.Pointer[vadProcessor]
}

func New(opts Options) *Controller {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTranscribeTimeout
	}
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	injectFn := opts.Inject
	if injectFn == nil {
		injectFn = func(string) error { return nil }
	}
	c := &Controller{
		rec:        opts.Capture,
		eng:        opts.Engine,
		settings:   opts.Settings,
		sink:       sink,
		injectFn:   injectFn,
		timeout:    timeout,
		disableVAD: opts.DisableVAD,
		events:     make(chan Event, 16),
		jobDone:    make(chan jobResult, 1),
		monTick:    tickInterval,
	}

	// The tap runs on the capture device's context. It feeds the level
	// meter and the active session's VAD, never the event loop.
	c.rec.SetTap(func(data []byte, _ uint32) {
		if len(data) < 2 {
			return
		}
		var sumSquares float64
		for i := 0; i+1 < len(data); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(data[i:]))
			normalized := float64(sample) / 32768.0
			sumSquares += normalized * normalized
		}
		c.sink.AudioLevel(math.Sqrt(sumSquares / float64(len(data)/2)))

		if vp := c.vad.Load(); vp != nil {
			vp.Process(data)
		}
	})
	return c
}

// Push enqueues an input event. It never blocks: with the event loop wedged
// (which the design rules out) excess events are dropped, matching the
// contract that pending user actions are not buffered.
func (c *Controller) Push(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

// State is safe to call from any goroutine (tray callbacks, the device
// hotplug poller).
func (c *Controller) State() State { return State(c.state.Load()) }

// Run processes events until ctx is cancelled. Must be the only goroutine
// touching controller state.
func (c *Controller) Run(ctx context.Context) {
	c.sink.StateChanged(StateIdle)
	for {
		select {
		case <-ctx.Done():
			if c.State() == StateRecording {
				c.abortRecording()
			}
			return
		case ev := <-c.events:
			c.handle(ev)
		case res := <-c.jobDone:
			c.finish(res)
		}
	}
}

func (c *Controller) setState(s State, cause string) {
	prev := State(c.state.Load())
	if s == prev {
		return
	}
	log.Transition(prev.String(), s.String(), cause)
	c.state.Store(int32(s))
	c.sink.StateChanged(s)
}

func (c *Controller) handle(ev Event) {
	switch c.State() {
	case StateIdle:
		switch ev {
		case HoldDown:
			c.begin(ModeHold, ev.String())
		case TogglePress, IndicatorClick:
			c.begin(ModeToggle, ev.String())
		}
	case StateRecording:
		switch {
		case c.sess.mode == ModeHold && ev == HoldUp:
			c.endRecording(ev.String())
		case c.sess.mode == ModeToggle && (ev == TogglePress || ev == IndicatorClick || ev == silenceStop):
			c.endRecording(ev.String())
		}
		// A hold release never ends a toggle session, and vice versa.
	case StateTranscribing:
		// Dropped, not queued. The user waits for idle.
	}
}

func (c *Controller) begin(mode Mode, cause string) {
	snap := c.settings.Load()

	if err := c.rec.Start(); err != nil {
		log.Errorf("capture start: %v", err)
		c.sink.Failed(err)
		return // stays idle; user can retry immediately
	}
	log.Info("recording_device: " + c.rec.DeviceName())

	sess := &session{
		mode:      mode,
		startedAt: time.Now(),
		snap:      snap,
		monStop:   make(chan struct{}),
	}
	c.sess = sess
	c.setState(StateRecording, cause)
	c.startMonitor(sess)
}

// startMonitor runs the per-session silence supervision: tick the VAD every
// 100 ms, warn on sustained silence, and auto-stop toggle sessions.
func (c *Controller) startMonitor(sess *session) {
	if c.disableVAD {
		return
	}
	vp, err := newVADProcessor()
	if err != nil {
		log.Warnf("VAD init: %v", err)
		return
	}
	c.vad.Store(vp)

	isToggle := sess.mode == ModeToggle
	mon := newSilenceMonitor(func() bool { return isToggle })
	start := sess.startedAt

	go func() {
		ticker := time.NewTicker(c.monTick)
		defer ticker.Stop()
		for {
			select {
			case <-sess.monStop:
				return
			case <-ticker.C:
				c.sink.RecordingTick(time.Since(start).Seconds())
				switch mon.Tick(vp.HasSpeechTick()) {
				case SilenceWarn:
					log.Info("no_voice_warning")
					c.sink.SilenceWarning(true)
				case SilenceWarnClear:
					c.sink.SilenceWarning(false)
				case SilenceRepeat:
					log.Info("silence_during_warning")
					c.sink.SilenceWarning(true)
				case SilenceAutoClose:
					log.Info("silence_auto_close")
					c.Push(silenceStop)
					return
				}
			}
		}
	}()
}

func (c *Controller) endRecording(cause string) {
	sess := c.sess
	close(sess.monStop)
	if vp := c.vad.Swap(nil); vp != nil && vp.VoiceConfirmed() {
		log.Infof("session_speech_ratio: %.2f", vp.SpeechRatio())
	}
	c.sink.SilenceWarning(false)

	buf, err := c.rec.Stop()
	if err != nil {
		// Unreachable while the one-Session invariant holds.
		panic(fmt.Sprintf("controller: stop without active capture: %v", err))
	}

	c.sess = nil
	if buf.Frames() < minSessionFrames {
		log.Info("session_too_short")
		c.setState(StateIdle, cause)
		return
	}

	c.setState(StateTranscribing, cause)
	go c.transcribe(buf, sess.snap)
}

// abortRecording releases the device on shutdown without dispatching.
func (c *Controller) abortRecording() {
	close(c.sess.monStop)
	c.vad.Store(nil)
	if _, err := c.rec.Stop(); err != nil {
		log.Errorf("capture stop on shutdown: %v", err)
	}
	c.sess = nil
	c.state.Store(int32(StateIdle))
}

// transcribe runs on the worker goroutine. The buffer was moved here; the
// controller holds no reference to it anymore. Post-processing and injection
// happen here too, so a slow clipboard helper or paste keystroke never
// stalls the event loop.
func (c *Controller) transcribe(buf *audio.Buffer, snap config.Settings) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	audioDur := buf.Duration()
	started := time.Now()
	done := make(chan jobResult, 1)
	go func() {
		res, err := c.eng.Transcribe(ctx, buf.PCM(), engine.Options{Language: snap.Language})
		done <- jobResult{text: res.Text, confidence: res.Confidence, err: err}
	}()

	var res jobResult
	select {
	case res = <-done:
	case <-ctx.Done():
		// Engine unresponsive past the bound; abandon the worker.
		res = jobResult{err: fmt.Errorf("%w after %s", ErrTranscribeTimeout, c.timeout)}
	}
	res.snap = snap
	res.audioDur = audioDur
	res.inferDur = time.Since(started)
	if res.err == nil {
		c.deliver(&res)
	}
	c.jobDone <- res
}

// deliver post-processes and injects a successful result, still on the
// worker goroutine. An abandoned worker never reaches it.
func (c *Controller) deliver(res *jobResult) {
	text := strings.TrimSpace(res.text)
	res.text = text
	if text == "" {
		return
	}

	text = textproc.AutoPunctuate(text, res.snap.AutoPunct)
	res.text = text
	log.SessionMetrics(res.audioDur.Seconds(), float64(res.inferDur.Milliseconds()),
		res.snap.ModelSize, res.snap.Language, res.confidence)
	log.TranscriptionText(text)

	// Report before injecting so the transcript stays recoverable even when
	// the paste is refused.
	c.sink.Transcribed(text, res.audioDur)

	if err := c.injectFn(text); err != nil {
		log.Errorf("injection error: %v", err)
		c.sink.Failed(err)
	}
}

// finish runs on the event loop and only moves the state machine; the
// worker already delivered the result.
func (c *Controller) finish(res jobResult) {
	if c.State() != StateTranscribing {
		return
	}
	switch {
	case res.err != nil:
		log.Errorf("transcription error: %v", res.err)
		c.sink.Failed(fmt.Errorf("transcription failed: %w", res.err))
		c.setState(StateIdle, "job_error")
	case res.text == "":
		log.Info("no_speech")
		c.sink.NoSpeech()
		c.setState(StateIdle, "no_speech")
	default:
		c.setState(StateIdle, "job_done")
	}
}
