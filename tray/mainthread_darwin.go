//go:build darwin

package tray

import "golang.design/x/hotkey/mainthread"

// AppKit requires status item setup on the main thread; the hotkey layer
// already owns the mainthread pump, so piggyback on it.
func startOnMainThread(start func()) {
	done := make(chan struct{})
	mainthread.Call(func() {
		start()
		close(done)
	})
	<-done
}
