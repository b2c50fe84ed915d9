package controller

import (
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"voicy/audio"
)

const (
	vadMode       = 3 // most aggressive filtering
	vadFrameMs    = 20
	vadFrameBytes = audio.SampleRate * vadFrameMs / 1000 * 2 // 640 bytes
	vadDebounce   = 3                                        // consecutive speech frames to confirm voice

	// Fraction of speech frames within one supervision tick above which the
	// tick counts as "speaking".
	tickSpeechThreshold = 0.10
)

// vadProcessor chops the capture tap stream into 20 ms frames and runs
// each through webrtcvad. It is written to from the capture goroutine and
// read from the monitor goroutine.
type vadProcessor struct {
	vad *webrtcvad.VAD

	mu           sync.Mutex
	pending      []byte
	speechRun    int
	confirmed    bool
	totalFrames  int
	speechFrames int
	tickTotal    int
	tickSpeech   int
}

func newVADProcessor() (*vadProcessor, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &vadProcessor{vad: v}, nil
}

func (p *vadProcessor) Process(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, data...)
	for len(p.pending) >= vadFrameBytes {
		frame := p.pending[:vadFrameBytes]
		p.pending = p.pending[vadFrameBytes:]

		active, err := p.vad.Process(audio.SampleRate, frame)
		if err != nil {
			continue
		}
		p.totalFrames++
		if active {
			p.speechFrames++
			p.speechRun++
			if p.speechRun >= vadDebounce {
				p.confirmed = true
			}
		} else {
			p.speechRun = 0
		}
	}
}

// HasSpeechTick reports whether speech dominated the frames seen since the
// previous call. A tick with no new frames counts as silence.
func (p *vadProcessor) HasSpeechTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totalFrames - p.tickTotal
	s := p.speechFrames - p.tickSpeech
	p.tickTotal, p.tickSpeech = p.totalFrames, p.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= tickSpeechThreshold
}

// SpeechRatio reports the speech fraction over the whole session, for the
// session metrics log line.
func (p *vadProcessor) SpeechRatio() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalFrames == 0 {
		return 0
	}
	return float64(p.speechFrames) / float64(p.totalFrames)
}

// VoiceConfirmed reports whether a debounced run of speech frames was ever
// seen during the session.
func (p *vadProcessor) VoiceConfirmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmed
}
