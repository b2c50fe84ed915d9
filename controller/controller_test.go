package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voicy/audio"
	"voicy/config"
	"voicy/engine"
)

type fakeCapture struct {
	mu        sync.Mutex
	pcm       []byte
	startErr  error
	starts    int
	stops     int
	capturing bool
	tap       audio.DataCallback
}

func (f *fakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.capturing = true
	if f.tap != nil && len(f.pcm) > 0 {
		f.tap(f.pcm, uint32(len(f.pcm)/2))
	}
	return nil
}

func (f *fakeCapture) Stop() (*audio.Buffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.capturing {
		return nil, audio.ErrNotCapturing
	}
	f.stops++
	f.capturing = false
	return audio.NewBuffer(f.pcm), nil
}

func (f *fakeCapture) SetTap(cb audio.DataCallback) {
	f.mu.Lock()
	f.tap = cb
	f.mu.Unlock()
}

func (f *fakeCapture) DeviceName() string { return "fake" }

func (f *fakeCapture) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeCapture) setStartErr(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

type captureSink struct {
	NopSink
	stateCh chan State

	mu          sync.Mutex
	states      []State
	transcripts []string
	failures    []error
	noSpeech    int
}

func newCaptureSink() *captureSink {
	return &captureSink{stateCh: make(chan State, 64)}
}

func (s *captureSink) StateChanged(st State) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
	s.stateCh <- st
}

func (s *captureSink) Transcribed(text string, _ time.Duration) {
	s.mu.Lock()
	s.transcripts = append(s.transcripts, text)
	s.mu.Unlock()
}

func (s *captureSink) Failed(err error) {
	s.mu.Lock()
	s.failures = append(s.failures, err)
	s.mu.Unlock()
}

func (s *captureSink) NoSpeech() {
	s.mu.Lock()
	s.noSpeech++
	s.mu.Unlock()
}

func (s *captureSink) lastFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failures) == 0 {
		return nil
	}
	return s.failures[len(s.failures)-1]
}

func (s *captureSink) allTranscripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

func waitState(t *testing.T, s *captureSink, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-s.stateCh:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

// halfSecondPCM is comfortably above the minimum session length.
func halfSecondPCM() []byte {
	return make([]byte, audio.SampleRate) // 0.5s of 16-bit mono
}

type fixture struct {
	ctrl     *Controller
	cap      *fakeCapture
	sink     *captureSink
	store    *config.Store
	injected chan string
	shutdown func()
}

func startController(t *testing.T, eng engine.Engine, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		cap:      &fakeCapture{pcm: halfSecondPCM()},
		sink:     newCaptureSink(),
		store:    config.NewStore("", config.Defaults()),
		injected: make(chan string, 8),
	}
	if opts.Capture == nil {
		opts.Capture = f.cap
	} else {
		f.cap = opts.Capture.(*fakeCapture)
	}
	opts.Engine = eng
	opts.Settings = f.store
	opts.Sink = f.sink
	opts.DisableVAD = true
	if opts.Inject == nil {
		opts.Inject = func(text string) error {
			f.injected <- text
			return nil
		}
	}
	c := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	f.shutdown = func() {
		cancel()
		<-done
	}
	t.Cleanup(f.shutdown)

	f.ctrl = c
	waitState(t, f.sink, StateIdle)
	return f
}

func (f *fixture) waitInjected(t *testing.T) string {
	t.Helper()
	select {
	case text := <-f.injected:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for injection")
		return ""
	}
}

func TestHoldSessionFullCycle(t *testing.T) {
	f := startController(t, engine.NewFake("hello world", nil), Options{})

	f.ctrl.Push(HoldDown)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(HoldUp)
	waitState(t, f.sink, StateTranscribing)
	waitState(t, f.sink, StateIdle)

	if got := f.waitInjected(t); got != "Hello world." {
		t.Fatalf("injected %q, want %q", got, "Hello world.")
	}
	if f.cap.startCount() != 1 {
		t.Fatalf("capture started %d times, want 1", f.cap.startCount())
	}
}

func TestTogglePunctuatesTranscript(t *testing.T) {
	f := startController(t, engine.NewFake("open the file", nil), Options{})

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateIdle)

	if got := f.waitInjected(t); got != "Open the file." {
		t.Fatalf("injected %q, want %q", got, "Open the file.")
	}
}

func TestHoldReleaseDoesNotEndToggleSession(t *testing.T) {
	f := startController(t, engine.NewFake("still here", nil), Options{})

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)

	// Releasing the hold key must not end a toggle session, and pressing
	// hold during an active session must not start another.
	f.ctrl.Push(HoldUp)
	f.ctrl.Push(HoldDown)
	time.Sleep(50 * time.Millisecond)
	if f.ctrl.State() != StateRecording {
		t.Fatalf("state %v after mismatched events, want recording", f.ctrl.State())
	}
	if f.cap.startCount() != 1 {
		t.Fatalf("capture started %d times, want 1", f.cap.startCount())
	}

	f.ctrl.Push(IndicatorClick) // indicator click ends a toggle session too
	waitState(t, f.sink, StateIdle)
	f.waitInjected(t)
}

func TestEventsDroppedWhileTranscribing(t *testing.T) {
	eng := engine.NewFake("slow result", nil)
	eng.Delay = 300 * time.Millisecond
	f := startController(t, eng, Options{})

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateTranscribing)

	// None of these may queue a new session behind the running job.
	f.ctrl.Push(HoldDown)
	f.ctrl.Push(TogglePress)
	f.ctrl.Push(IndicatorClick)

	waitState(t, f.sink, StateIdle)
	time.Sleep(50 * time.Millisecond)
	if f.ctrl.State() != StateIdle {
		t.Fatalf("state %v after job, want idle", f.ctrl.State())
	}
	if f.cap.startCount() != 1 {
		t.Fatalf("capture started %d times, want 1", f.cap.startCount())
	}
}

func TestShortSessionSkipsDispatch(t *testing.T) {
	eng := engine.NewFake("should not run", nil)
	f := startController(t, eng, Options{Capture: &fakeCapture{pcm: make([]byte, 64)}})

	f.ctrl.Push(HoldDown)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(HoldUp)
	waitState(t, f.sink, StateIdle)

	if n := len(eng.Calls()); n != 0 {
		t.Fatalf("engine called %d times for a too-short session, want 0", n)
	}
	if got := f.sink.allTranscripts(); len(got) != 0 {
		t.Fatalf("unexpected transcripts %v", got)
	}
}

func TestSettingsFrozenAtSessionStart(t *testing.T) {
	eng := engine.NewFake("settings check", nil)
	f := startController(t, eng, Options{})

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)

	// Mid-session changes apply to the next session only.
	changed := config.Defaults()
	changed.AutoPunct = false
	changed.Language = "de"
	f.store.Set(changed)

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateIdle)

	if got := f.waitInjected(t); got != "Settings check." {
		t.Fatalf("injected %q, want punctuation from the session snapshot", got)
	}
	calls := eng.Calls()
	if len(calls) != 1 || calls[0].Language != "auto" {
		t.Fatalf("engine calls %+v, want one call with the snapshot language", calls)
	}

	// The next session picks up the new settings.
	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateIdle)
	if got := f.waitInjected(t); got != "settings check" {
		t.Fatalf("injected %q, want raw text with punctuation off", got)
	}
}

func TestEngineFailureReturnsToIdle(t *testing.T) {
	wantErr := errors.New("model exploded")
	f := startController(t, engine.NewFake("", wantErr), Options{})

	f.ctrl.Push(HoldDown)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(HoldUp)
	waitState(t, f.sink, StateIdle)

	if err := f.sink.lastFailure(); err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("failure %v, want wrapped %v", err, wantErr)
	}

	// A new session must start immediately after the failure.
	f.ctrl.Push(HoldDown)
	waitState(t, f.sink, StateRecording)
	if f.cap.startCount() != 2 {
		t.Fatalf("capture started %d times, want 2", f.cap.startCount())
	}
}

type hungEngine struct{}

func (hungEngine) Name() string { return "hung" }
func (hungEngine) Transcribe(context.Context, []byte, engine.Options) (engine.Result, error) {
	select {} // never returns, ignores cancellation
}
func (hungEngine) Close() error { return nil }

func TestHungEngineTimesOut(t *testing.T) {
	f := startController(t, hungEngine{}, Options{Timeout: 50 * time.Millisecond})

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateTranscribing)
	waitState(t, f.sink, StateIdle)

	if err := f.sink.lastFailure(); !errors.Is(err, ErrTranscribeTimeout) {
		t.Fatalf("failure %v, want %v", err, ErrTranscribeTimeout)
	}
}

func TestDeviceUnavailableStaysIdle(t *testing.T) {
	f := startController(t, engine.NewFake("later", nil), Options{})
	f.cap.setStartErr(audio.ErrDeviceUnavailable)

	f.ctrl.Push(HoldDown)
	time.Sleep(50 * time.Millisecond)
	if f.ctrl.State() != StateIdle {
		t.Fatalf("state %v after device failure, want idle", f.ctrl.State())
	}
	if err := f.sink.lastFailure(); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("failure %v, want device unavailable", err)
	}

	// Retry works once the device is back.
	f.cap.setStartErr(nil)
	f.ctrl.Push(HoldDown)
	waitState(t, f.sink, StateRecording)
}

func TestInjectionFailureKeepsTranscript(t *testing.T) {
	wantErr := errors.New("no paste target")
	f := startController(t, engine.NewFake("kept text", nil), Options{
		Inject: func(string) error { return wantErr },
	})

	f.ctrl.Push(HoldDown)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(HoldUp)
	waitState(t, f.sink, StateIdle)

	got := f.sink.allTranscripts()
	if len(got) != 1 || got[0] != "Kept text." {
		t.Fatalf("transcripts %v, want the text reported despite injection failure", got)
	}
	if err := f.sink.lastFailure(); !errors.Is(err, wantErr) {
		t.Fatalf("failure %v, want %v", err, wantErr)
	}
}

func TestEmptyResultReportsNoSpeech(t *testing.T) {
	f := startController(t, engine.NewFake("   ", nil), Options{})

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateIdle)

	f.sink.mu.Lock()
	noSpeech, transcripts := f.sink.noSpeech, len(f.sink.transcripts)
	f.sink.mu.Unlock()
	if noSpeech != 1 || transcripts != 0 {
		t.Fatalf("noSpeech=%d transcripts=%d, want 1 and 0", noSpeech, transcripts)
	}
	select {
	case text := <-f.injected:
		t.Fatalf("unexpected injection %q", text)
	default:
	}
}

func TestStateReadableFromOtherGoroutines(t *testing.T) {
	f := startController(t, engine.NewFake("concurrent read", nil), Options{})

	// The tray callbacks and the hotplug poller read State() while the
	// event loop is transitioning; the race detector must stay quiet.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = f.ctrl.State()
			}
		}
	}()

	for range 3 {
		f.ctrl.Push(TogglePress)
		waitState(t, f.sink, StateRecording)
		f.ctrl.Push(TogglePress)
		waitState(t, f.sink, StateIdle)
		f.waitInjected(t)
	}
	close(stop)
	wg.Wait()
}

func TestSlowInjectionDoesNotBlockEventLoop(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := startController(t, engine.NewFake("slow paste", nil), Options{
		Inject: func(string) error {
			close(entered)
			<-release
			return nil
		},
	})

	f.ctrl.Push(HoldDown)
	waitState(t, f.sink, StateRecording)
	f.ctrl.Push(HoldUp)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("injection never started")
	}

	// With the paste stuck, the loop must still answer ctx cancellation.
	loopDone := make(chan struct{})
	go func() {
		f.shutdown()
		close(loopDone)
	}()
	select {
	case <-loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop blocked behind a stuck injection")
	}
	close(release)
}

// silentPCM is two seconds of digital silence, long enough to dispatch.
func silentPCM() []byte {
	return make([]byte, audio.SampleRate*4)
}

// startSilenceController runs with supervision enabled against silent audio,
// the monitor ticking at millisecond pace so the warn and auto-close windows
// fit inside a unit test.
func startSilenceController(t *testing.T, eng engine.Engine) *fixture {
	t.Helper()
	f := &fixture{
		cap:      &fakeCapture{pcm: silentPCM()},
		sink:     newCaptureSink(),
		store:    config.NewStore("", config.Defaults()),
		injected: make(chan string, 8),
	}
	c := New(Options{
		Capture:  f.cap,
		Engine:   eng,
		Settings: f.store,
		Sink:     f.sink,
		Inject: func(text string) error {
			f.injected <- text
			return nil
		},
	})
	c.monTick = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	f.shutdown = func() {
		cancel()
		<-done
	}
	t.Cleanup(f.shutdown)

	f.ctrl = c
	waitState(t, f.sink, StateIdle)
	return f
}

func TestToggleSessionAutoClosesOnSilence(t *testing.T) {
	f := startSilenceController(t, engine.NewFake("", nil))

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)

	// No stop event is pushed: the silence monitor must end the session
	// by itself once the auto-close window has been fully quiet.
	waitState(t, f.sink, StateTranscribing)
	waitState(t, f.sink, StateIdle)

	f.cap.mu.Lock()
	capturing := f.cap.capturing
	f.cap.mu.Unlock()
	if capturing {
		t.Error("capture still active after silence auto-close")
	}
	if f.cap.startCount() != 1 {
		t.Fatalf("capture started %d times, want 1", f.cap.startCount())
	}
}

func TestHoldSessionNeverAutoCloses(t *testing.T) {
	f := startSilenceController(t, engine.NewFake("held through silence", nil))

	f.ctrl.Push(HoldDown)
	waitState(t, f.sink, StateRecording)

	// Far past the auto-close window at the compressed tick pace.
	time.Sleep(800 * time.Millisecond)
	if f.ctrl.State() != StateRecording {
		t.Fatalf("state %v during a silent hold session, want recording", f.ctrl.State())
	}

	f.ctrl.Push(HoldUp)
	waitState(t, f.sink, StateTranscribing)
	waitState(t, f.sink, StateIdle)
}

func TestShutdownReleasesDevice(t *testing.T) {
	f := startController(t, engine.NewFake("unused", nil), Options{})

	f.ctrl.Push(TogglePress)
	waitState(t, f.sink, StateRecording)

	f.shutdown()

	f.cap.mu.Lock()
	defer f.cap.mu.Unlock()
	if f.cap.capturing {
		t.Error("capture still active after shutdown")
	}
}
