package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"voicy/audio"
	"voicy/config"
	"voicy/controller"
	"voicy/engine"
	"voicy/hotkey"
	"voicy/log"
)

// testSink reports transitions on a channel so the stdin driver can block
// until the controller settles.
type testSink struct {
	controller.NopSink
	states chan controller.State
	count  int
}

func (s *testSink) StateChanged(st controller.State) {
	select {
	case s.states <- st:
	default:
	}
}

func (s *testSink) Transcribed(string, time.Duration) { s.count++ }

// runTestMode drives the full controller pipeline headlessly: canned WAV
// audio, simulated hotkeys, commands on stdin, transcripts on stdout.
//
// Commands: HOLD_DOWN, HOLD_UP, TOGGLE, CLICK, WAIT (until idle),
// WAIT_AUDIO_DONE, SLEEP <ms>, QUIT.
func runTestMode(wavPath string, eng engine.Engine, store *config.Store, timeout time.Duration) {
	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	capture, err := fakeCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: audio.SampleRate, Channels: audio.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		os.Exit(1)
	}
	fakeCapture := capture.(*audio.FakeCapture)
	recorder := audio.NewRecorder(capture)
	defer recorder.Close()

	holdHk := hotkey.NewFake()
	toggleHk := hotkey.NewFake()
	sink := &testSink{states: make(chan controller.State, 64)}

	ctrl := controller.New(controller.Options{
		Capture:  recorder,
		Engine:   eng,
		Settings: store,
		Sink:     sink,
		Inject: func(text string) error {
			fmt.Println("TRANSCRIPT: " + text)
			return nil
		},
		Timeout: timeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)
	<-sink.states // initial idle

	go func() {
		for {
			select {
			case <-holdHk.Keydown():
				ctrl.Push(controller.HoldDown)
			case <-holdHk.Keyup():
				ctrl.Push(controller.HoldUp)
			case <-toggleHk.Keydown():
				ctrl.Push(controller.TogglePress)
			case <-toggleHk.Keyup():
			}
		}
	}()

	waitIdle := func() {
		for st := range sink.states {
			if st == controller.StateIdle {
				return
			}
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "HOLD_DOWN":
			holdHk.SimKeydown()
		case "HOLD_UP":
			holdHk.SimKeyup()
		case "TOGGLE":
			toggleHk.SimKeydown()
			toggleHk.SimKeyup()
		case "CLICK":
			ctrl.Push(controller.IndicatorClick)
		case "WAIT":
			waitIdle()
		case "WAIT_AUDIO_DONE":
			<-fakeCapture.AudioDone()
		case "QUIT":
			log.SessionEnd(sink.count)
			log.Close()
			os.Exit(0)
		default:
			if strings.HasPrefix(cmd, "SLEEP ") {
				if ms, err := strconv.Atoi(cmd[6:]); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
		}
	}
	log.SessionEnd(sink.count)
	log.Close()
}
