//go:build !darwin

package tray

// Linux (StatusNotifier over dbus) and Windows have no main-thread
// requirement for the tray setup.
func startOnMainThread(start func()) { start() }
