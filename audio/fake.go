package audio

import (
	"os"
	"sync"
	"time"
)

// fakeChunkFrames matches the chunk size a real device delivers.
const fakeChunkFrames = 1024

// FakeContext replays canned PCM through the CaptureDevice interface for the
// headless test mode and unit tests.
type FakeContext struct {
	pcm      []byte
	realtime bool
}

// NewFakeContext loads a 16 kHz mono WAV file. With realtime set, playback
// is paced at recording speed instead of delivered all at once.
func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

// NewFakePCMContext builds a FakeContext from raw PCM, for tests that do not
// want a WAV file on disk.
func NewFakePCMContext(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{clip: f.pcm, realtime: f.realtime, clipDone: make(chan struct{})}, nil
}

// FakeCapture feeds its clip to the registered callback, then keeps
// delivering silence until stopped, like a microphone left open after the
// speaker goes quiet.
type FakeCapture struct {
	clip     []byte
	realtime bool
	clipDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	cancel   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the whole clip has been delivered; test drivers
// wait on it before releasing the hotkey.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.clipDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

// deliver hands the next chunk of the clip to cb and returns the new offset.
func (f *FakeCapture) deliver(cb DataCallback, offset int) int {
	end := min(offset+fakeChunkFrames*2, len(f.clip))
	chunk := make([]byte, end-offset)
	copy(chunk, f.clip[offset:end])
	cb(chunk, uint32(len(chunk)/2))
	return end
}

func (f *FakeCapture) Start() error {
	cancel := make(chan struct{})
	feedDone := make(chan struct{})
	f.cancel = cancel
	f.feedDone = feedDone
	// clipDone is left alone here: a caller may already be waiting on it.
	// Stop rearms it for replay.

	if f.realtime {
		go f.feedPaced(cancel, feedDone)
		return nil
	}

	// Fast mode delivers the whole clip before Start returns, so a session
	// stopped right afterwards still carries the full recording.
	if cb := f.callback(); cb != nil {
		for offset := 0; offset < len(f.clip); {
			offset = f.deliver(cb, offset)
		}
	}
	close(f.clipDone)
	go f.feedSilence(cancel, feedDone)
	return nil
}

// feedSilence keeps the device "open" with empty chunks until cancelled.
func (f *FakeCapture) feedSilence(cancel, done chan struct{}) {
	defer close(done)
	silence := make([]byte, fakeChunkFrames*2)
	for {
		select {
		case <-cancel:
			return
		case <-time.After(time.Millisecond):
		}
		if cb := f.callback(); cb != nil {
			cb(silence, fakeChunkFrames)
		}
	}
}

// feedPaced replays the clip at recording speed, then trails into silence.
func (f *FakeCapture) feedPaced(cancel, done chan struct{}) {
	defer close(done)
	pace := time.Duration(fakeChunkFrames) * time.Second / SampleRate
	silence := make([]byte, fakeChunkFrames*2)
	offset := 0
	for {
		select {
		case <-cancel:
			return
		default:
		}

		cb := f.callback()
		if cb == nil {
			time.Sleep(time.Millisecond)
			continue
		}
		if offset < len(f.clip) {
			offset = f.deliver(cb, offset)
		} else {
			select {
			case <-f.clipDone:
			default:
				close(f.clipDone)
			}
			cb(silence, fakeChunkFrames)
		}

		select {
		case <-cancel:
			return
		case <-time.After(pace):
		}
	}
}

func (f *FakeCapture) Stop() {
	if f.cancel != nil {
		select {
		case <-f.cancel:
		default:
			close(f.cancel)
		}
		<-f.feedDone
	}
	f.clipDone = make(chan struct{}) // rearm for replay
}

func (f *FakeCapture) Close() {}
