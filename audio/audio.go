package audio

import (
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	WAVHeaderSize = 44
)

// ErrDeviceUnavailable covers a missing input device as well as a second
// Start while a capture is already running.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// ErrNotCapturing is returned by Stop without a matching Start. The
// controller's state machine makes this unreachable in normal operation.
var ErrNotCapturing = errors.New("audio: not capturing")

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// Buffer is an append-only sequence of 16-bit mono PCM frames accumulated
// during one recording session.
type Buffer struct {
	pcm    []byte
	frames uint64
}

// NewBuffer wraps already-captured PCM, mostly for fakes and tests.
func NewBuffer(pcm []byte) *Buffer {
	return &Buffer{pcm: pcm, frames: uint64(len(pcm) / (BitsPerSample / 8))}
}

func (b *Buffer) append(data []byte, frameCount uint32) {
	b.pcm = append(b.pcm, data...)
	b.frames += uint64(frameCount)
}

func (b *Buffer) PCM() []byte { return b.pcm }

func (b *Buffer) Frames() uint64 { return b.frames }

func (b *Buffer) Duration() time.Duration {
	return time.Duration(float64(b.frames) / SampleRate * float64(time.Second))
}

// Recorder buffers microphone audio between Start and Stop. The capture
// callback runs on the device's own context; Start and Stop are expected to
// be called from a single goroutine (the controller's event loop).
type Recorder struct {
	dev CaptureDevice

	mu        sync.Mutex
	buf       *Buffer
	capturing bool
	tap       DataCallback
}

func NewRecorder(dev CaptureDevice) *Recorder {
	return &Recorder{dev: dev}
}

// SetDevice swaps the underlying capture device and returns the previous
// one so the caller can close it. Must not be called while capturing.
func (r *Recorder) SetDevice(dev CaptureDevice) CaptureDevice {
	r.mu.Lock()
	old := r.dev
	r.dev = dev
	r.mu.Unlock()
	return old
}

// Close releases the current capture device.
func (r *Recorder) Close() {
	r.mu.Lock()
	dev := r.dev
	r.mu.Unlock()
	if dev != nil {
		dev.Close()
	}
}

func (r *Recorder) DeviceName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dev.DeviceName()
}

// SetTap registers an extra consumer of raw capture data (level meter, VAD).
// The tap sees every chunk the buffer sees.
func (r *Recorder) SetTap(cb DataCallback) {
	r.mu.Lock()
	r.tap = cb
	r.mu.Unlock()
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.capturing {
		r.mu.Unlock()
		return ErrDeviceUnavailable
	}
	buf := &Buffer{}
	r.buf = buf
	r.capturing = true
	dev := r.dev
	tap := r.tap
	r.mu.Unlock()

	dev.SetCallback(func(data []byte, frameCount uint32) {
		pcm := make([]byte, len(data))
		copy(pcm, data)

		r.mu.Lock()
		if r.buf != buf { // stopped; late callback
			r.mu.Unlock()
			return
		}
		buf.append(pcm, frameCount)
		r.mu.Unlock()

		if tap != nil {
			tap(data, frameCount)
		}
	})

	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		r.mu.Lock()
		r.buf = nil
		r.capturing = false
		r.mu.Unlock()
		return errors.Join(ErrDeviceUnavailable, err)
	}
	return nil
}

// Stop halts capture, releases the device and returns the accumulated
// buffer. Ownership of the buffer moves to the caller.
func (r *Recorder) Stop() (*Buffer, error) {
	r.mu.Lock()
	if !r.capturing {
		r.mu.Unlock()
		return nil, ErrNotCapturing
	}
	dev := r.dev
	r.mu.Unlock()

	dev.Stop()
	dev.ClearCallback()

	r.mu.Lock()
	buf := r.buf
	r.buf = nil
	r.capturing = false
	r.mu.Unlock()
	return buf, nil
}
