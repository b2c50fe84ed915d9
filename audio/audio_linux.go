//go:build linux

package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// captureBoost raises the source volume at stream creation so quiet
// microphones still clear the voice-detection threshold. Samples are
// otherwise passed through unscaled; the level meter and the engine both
// want the raw signal.
const captureBoost = 2

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	client, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse connect: %w", err)
	}
	return &pulseContext{client: client}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	infos := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		infos = append(infos, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return infos, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	return &pulseCapture{client: p.client, device: device, cfg: cfg}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

// pulseCapture opens a fresh record stream per session. The recorder
// installs the callback before Start and clears it after Stop, so Start
// latches it once into the stream closure instead of re-reading it on
// every chunk.
type pulseCapture struct {
	client *pulse.Client
	device *DeviceInfo
	cfg    CaptureConfig

	mu     sync.Mutex
	cb     DataCallback
	cancel chan struct{}
	closed chan struct{}
}

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *pulseCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

func (c *pulseCapture) DeviceName() string {
	if c.device == nil {
		return "system default"
	}
	return c.device.Name
}

func (c *pulseCapture) recordOptions() []pulse.RecordOption {
	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.cfg.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			r.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm) * captureBoost}
		}),
	}
	if c.device != nil {
		if source, err := c.client.SourceByID(c.device.ID); err == nil {
			opts = append(opts, pulse.RecordSource(source))
		}
	}
	return opts
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb := c.cb
	writer := pulse.Int16Writer(func(samples []int16) (int, error) {
		if cb == nil || len(samples) == 0 {
			return len(samples), nil
		}
		data := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
		}
		cb(data, uint32(len(samples)))
		return len(samples), nil
	})

	stream, err := c.client.NewRecord(writer, c.recordOptions()...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}

	cancel := make(chan struct{})
	closed := make(chan struct{})
	c.cancel = cancel
	c.closed = closed
	go func() {
		defer close(closed)
		stream.Start()
		<-cancel
		stream.Stop()
		stream.Close()
	}()
	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return
	}
	select {
	case <-c.cancel:
	default:
		close(c.cancel)
	}
	<-c.closed
}

func (c *pulseCapture) Close() {
	c.Stop()
}
