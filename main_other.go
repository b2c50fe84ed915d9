//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	// The hotkey layer owns the main thread; run() moves to a goroutine.
	mainthread.Init(run)
}
