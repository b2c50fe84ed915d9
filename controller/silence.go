package controller

import "time"

const (
	tickInterval        = 100 * time.Millisecond
	silenceWarnEvery    = 8 * time.Second
	silenceAutoCloseDur = 30 * time.Second
	speechMinRatio      = 0.10
	speechClearRatio    = 0.25 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice detected for the warn window
	SilenceWarnClear              // speech resumed after a warning
	SilenceRepeat                 // warning still active after another warn window
	SilenceAutoClose              // full auto-close window silent (toggle sessions only)
)

// silenceMonitor decides, one 100 ms tick at a time, whether the session
// has gone quiet. It keeps a ring of per-tick speech flags sized to the
// auto-close window; the warn decision reads the most recent warn-window
// slice of the same ring.
type silenceMonitor struct {
	warnTicks int
	ringSize  int

	isToggle func() bool

	ticks       int
	ring        []bool
	speechCount int
	warned      bool
	lastWarn    int
}

func newSilenceMonitor(isToggle func() bool) *silenceMonitor {
	ringSize := int(silenceAutoCloseDur / tickInterval)
	return &silenceMonitor{
		warnTicks: int(silenceWarnEvery / tickInterval),
		ringSize:  ringSize,
		isToggle:  isToggle,
		ring:      make([]bool, ringSize),
	}
}

// recentRatio is the speech fraction over the last n ticks. Before n ticks
// have elapsed it reads what exists; a fresh monitor reports full speech so
// sessions never open with a warning.
func (m *silenceMonitor) recentRatio(n int) float64 {
	if m.ticks < n {
		n = m.ticks
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.ring[(m.ticks-1-i+m.ringSize)%m.ringSize] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	idx := m.ticks % m.ringSize
	if m.ticks >= m.ringSize && m.ring[idx] {
		m.speechCount--
	}
	m.ring[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.recentRatio(m.warnTicks)

	if m.ticks >= m.warnTicks && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastWarn = m.ticks
		return SilenceWarn
	}
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}

	// Hold sessions end when the key is released; no auto-close for them.
	if !m.isToggle() {
		return SilenceNone
	}

	if m.ticks >= m.ringSize && float64(m.speechCount)/float64(m.ringSize) < speechMinRatio {
		return SilenceAutoClose
	}

	if m.warned && m.ticks-m.lastWarn >= m.warnTicks {
		m.lastWarn = m.ticks
		return SilenceRepeat
	}

	return SilenceNone
}
