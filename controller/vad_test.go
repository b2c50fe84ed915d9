package controller

import (
	"math"
	"testing"

	"encoding/binary"
)

func tone(freq float64, durationMs int) []byte {
	n := 16000 * durationMs / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sample := int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

func silencePCM(durationMs int) []byte {
	return make([]byte, 16000*durationMs/1000*2)
}

func TestVADSilenceNotSpeech(t *testing.T) {
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	vp.Process(silencePCM(200))
	if vp.HasSpeechTick() {
		t.Error("silence classified as speech")
	}
	if vp.VoiceConfirmed() {
		t.Error("voice confirmed on pure silence")
	}
}

func TestVADUnalignedChunks(t *testing.T) {
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	// 100-byte chunks never align to the 640-byte frame size; the pending
	// buffer has to reassemble them.
	pcm := silencePCM(200)
	for i := 0; i < len(pcm); i += 100 {
		end := min(i+100, len(pcm))
		vp.Process(pcm[i:end])
	}
	if total := 16000 * 200 / 1000 * 2 / vadFrameBytes; total < 9 {
		t.Fatalf("test setup broken, %d frames", total)
	}
	if vp.HasSpeechTick() {
		t.Error("silence classified as speech")
	}
}

func TestVADTickWithoutFramesIsSilence(t *testing.T) {
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	if vp.HasSpeechTick() {
		t.Error("tick with no audio counted as speech")
	}
}

func TestVADSpeechRatioBounds(t *testing.T) {
	vp, err := newVADProcessor()
	if err != nil {
		t.Fatal(err)
	}
	vp.Process(tone(440, 100))
	vp.Process(silencePCM(100))
	if r := vp.SpeechRatio(); r < 0 || r > 1 {
		t.Fatalf("speech ratio %v out of range", r)
	}
}
