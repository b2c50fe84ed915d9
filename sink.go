package main

import (
	"fmt"
	"sync"
	"time"

	"voicy/controller"
	"voicy/inject"
	"voicy/log"
	"voicy/tray"
)

// appSink fans controller observations out to the TUI and the tray, and
// keeps the last transcript around for the Copy Last menu entry.
type appSink struct {
	mu       sync.Mutex
	lastText string
	count    int
}

func (s *appSink) StateChanged(st controller.State) {
	switch st {
	case controller.StateRecording:
		tuiSend(RecordingStartMsg{})
		tray.SetState(tray.StateRecording)
	case controller.StateTranscribing:
		tuiSend(TranscribingMsg{})
		tray.SetState(tray.StateTranscribing)
	default:
		tuiSend(RecordingStopMsg{})
		tray.SetState(tray.StateIdle)
	}
}

func (s *appSink) AudioLevel(rms float64) {
	tuiSend(AudioLevelMsg{Level: rms})
}

func (s *appSink) RecordingTick(seconds float64) {
	tuiSend(RecordingTickMsg{Duration: seconds})
}

func (s *appSink) SilenceWarning(on bool) {
	if on {
		tuiSend(NoVoiceWarningMsg{})
	} else {
		tuiSend(VoiceClearedMsg{})
	}
	tray.SetWarning(on)
}

func (s *appSink) NoSpeech() {
	tuiSend(TranscriptionMsg{Text: "(no speech detected)", NoSpeech: true})
}

func (s *appSink) Transcribed(text string, audio time.Duration) {
	s.mu.Lock()
	s.lastText = text
	s.count++
	s.mu.Unlock()

	tuiSend(TranscriptionMsg{
		Text:    text,
		Metrics: fmt.Sprintf("%.1fs audio", audio.Seconds()),
	})
	tray.SetLastTranscript(audio)
}

func (s *appSink) Failed(err error) {
	logToTUI("Error: %v", err)
	tray.SetError(err.Error())
}

// CopyLast puts the most recent transcript back on the clipboard.
func (s *appSink) CopyLast() {
	s.mu.Lock()
	text := s.lastText
	s.mu.Unlock()
	if text == "" {
		return
	}
	if err := inject.Copy(text); err != nil {
		log.Errorf("copy last: %v", err)
	}
}

// SessionCount reports completed transcriptions, for the shutdown log line.
func (s *appSink) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
