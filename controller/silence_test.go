package controller

import "testing"

func holdMonitor() *silenceMonitor {
	return newSilenceMonitor(func() bool { return false })
}

func toggleMonitor() *silenceMonitor {
	return newSilenceMonitor(func() bool { return true })
}

func feedTicks(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for i := 0; i < n; i++ {
		last = m.Tick(speech)
	}
	return last
}

func TestWarnAfterWarnWindow(t *testing.T) {
	m := holdMonitor()
	warnTicks := int(silenceWarnEvery / tickInterval)
	for i := 0; i < warnTicks-1; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event %d at tick %d", ev, i)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("got %d at the warn boundary, want SilenceWarn", ev)
	}
}

func TestWarningClearsWhenSpeechResumes(t *testing.T) {
	m := holdMonitor()
	feedTicks(m, false, int(silenceWarnEvery/tickInterval))

	for i := 0; i < 80; i++ {
		if m.Tick(true) == SilenceWarnClear {
			return
		}
	}
	t.Fatal("sustained speech never cleared the warning")
}

func TestNoWarnWhileSpeaking(t *testing.T) {
	m := holdMonitor()
	for i := 0; i < 200; i++ {
		if ev := m.Tick(true); ev != SilenceNone {
			t.Fatalf("unexpected event %d during speech at tick %d", ev, i)
		}
	}
}

func TestToggleRepeatsWarning(t *testing.T) {
	m := toggleMonitor()
	feedTicks(m, false, int(silenceWarnEvery/tickInterval))
	for i := 0; i < 100; i++ {
		if m.Tick(false) == SilenceRepeat {
			return
		}
	}
	t.Fatal("warning never repeated in a silent toggle session")
}

func TestToggleAutoCloses(t *testing.T) {
	m := toggleMonitor()
	closeTicks := int(silenceAutoCloseDur / tickInterval)
	for i := 0; i < closeTicks+10; i++ {
		if m.Tick(false) == SilenceAutoClose {
			if i < closeTicks-1 {
				t.Fatalf("auto-close at tick %d, before the full window elapsed", i)
			}
			return
		}
	}
	t.Fatal("silent toggle session never auto-closed")
}

func TestHoldNeverAutoCloses(t *testing.T) {
	m := holdMonitor()
	for i := 0; i < 400; i++ {
		if m.Tick(false) == SilenceAutoClose {
			t.Fatalf("auto-close at tick %d in a hold session", i)
		}
	}
}

func TestIntermittentSpeechBlocksAutoClose(t *testing.T) {
	m := toggleMonitor()
	for i := 0; i < 500; i++ {
		speech := i%10 < 7
		if m.Tick(speech) == SilenceAutoClose {
			t.Fatalf("auto-close at tick %d despite regular speech", i)
		}
	}
}

func TestFreshMonitorReportsFullSpeech(t *testing.T) {
	m := holdMonitor()
	if r := m.recentRatio(10); r != 1.0 {
		t.Fatalf("empty-window ratio %v, want 1.0", r)
	}
}
