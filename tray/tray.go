// Package tray drives the status indicator: a menu bar icon that mirrors the
// controller state, toggles recording on click and keeps the last transcript
// reachable when pasting failed.
package tray

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/systray"
)

// State mirrors the controller's public states for icon selection.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
)

var (
	quitCh    = make(chan struct{})
	closeOnce sync.Once

	indicatorFn func()
	copyLastFn  func()

	stateMu sync.Mutex
	state   State
	warning bool

	deviceMu    sync.Mutex
	deviceNames []string
	deviceSel   string
	deviceCb    func(string)
	isBTFn      func(string) bool

	mRecord     *systray.MenuItem
	mCopy       *systray.MenuItem
	mDevices    *systray.MenuItem
	deviceItems []*systray.MenuItem
	deviceReady chan struct{}
)

// OnIndicator registers the record/stop click handler. The handler only
// reports the click; the controller decides what it means.
func OnIndicator(fn func()) { indicatorFn = fn }

// OnCopyLast registers the "Copy Last" click handler.
func OnCopyLast(fn func()) { copyLastFn = fn }

// SetBTCheck installs the bluetooth heuristic used to annotate device names.
func SetBTCheck(fn func(string) bool) { isBTFn = fn }

// Init starts the systray and returns the channel closed on Quit. Call from
// the process main thread context (see startOnMainThread).
func Init() <-chan struct{} {
	deviceReady = make(chan struct{})
	start, _ := systray.RunWithExternalLoop(onReady, onExit)
	startOnMainThread(start)
	return quitCh
}

func Quit() {
	closeOnce.Do(func() { close(quitCh) })
}

// SetState swaps the icon and the record item title to match the controller.
func SetState(s State) {
	stateMu.Lock()
	state = s
	warning = false
	stateMu.Unlock()

	if !ready() {
		return
	}
	switch s {
	case StateRecording:
		systray.SetIcon(iconRecording)
		if mRecord != nil {
			mRecord.SetTitle("Stop Recording")
			mRecord.Enable()
		}
		disableDevices()
	case StateTranscribing:
		systray.SetIcon(iconTranscribing)
		if mRecord != nil {
			mRecord.SetTitle("Transcribing...")
			mRecord.Disable()
		}
		disableDevices()
	default:
		systray.SetTemplateIcon(iconIdleHi, iconIdle)
		if mRecord != nil {
			mRecord.SetTitle("Start Recording")
			mRecord.Enable()
		}
		enableDevices()
	}
}

// SetWarning overlays the silence badge while recording.
func SetWarning(on bool) {
	stateMu.Lock()
	rec := state == StateRecording
	warning = on && rec
	stateMu.Unlock()
	if !rec || !ready() {
		return
	}
	if on {
		systray.SetIcon(iconWarning)
	} else {
		systray.SetIcon(iconRecording)
	}
}

// SetError surfaces a failure in the tooltip for a short while.
func SetError(msg string) {
	if !ready() {
		return
	}
	updateTooltip("voicy - " + msg)
	go func() {
		time.Sleep(10 * time.Second)
		updateTooltip(defaultTooltip)
	}()
}

// SetLastTranscript enables the Copy Last entry and shows the audio length.
func SetLastTranscript(audio time.Duration) {
	if mCopy != nil {
		mCopy.SetTitle(fmt.Sprintf("Copy Last Transcript (%.1fs)", audio.Seconds()))
		mCopy.Enable()
	}
}

// SetDevices seeds the device submenu before Init.
func SetDevices(names []string, selected string, onSwitch func(name string)) {
	deviceMu.Lock()
	deviceNames = names
	deviceSel = selected
	if onSwitch != nil {
		deviceCb = onSwitch
	}
	deviceMu.Unlock()
}

const defaultTooltip = "voicy - hold to dictate"

// ready reports whether onReady has run; systray calls before that would
// touch an uninitialized menu.
func ready() bool {
	if deviceReady == nil {
		return false
	}
	select {
	case <-deviceReady:
		return true
	default:
		return false
	}
}

func updateTooltip(msg string) {
	systray.SetTooltip(msg)
}

func disableDevices() {
	if mDevices != nil {
		mDevices.Disable()
	}
}

func enableDevices() {
	if mDevices != nil {
		mDevices.Enable()
	}
}

func deviceDisplayName(name string) string {
	if isBTFn != nil && isBTFn(name) {
		return name + " [lower audio quality]"
	}
	return name
}

func addDeviceItem(idx int, name string, checked bool) *systray.MenuItem {
	label := deviceDisplayName(name)
	item := mDevices.AddSubMenuItemCheckbox(label, name, checked)
	go func() {
		for range item.ClickedCh {
			deviceMu.Lock()
			// Read by index; RefreshDevices may have renamed the slot.
			currentName := ""
			if idx < len(deviceNames) {
				currentName = deviceNames[idx]
			}
			cb := deviceCb
			for _, it := range deviceItems {
				it.Uncheck()
			}
			if idx < len(deviceItems) {
				deviceItems[idx].Check()
			}
			deviceMu.Unlock()
			if cb != nil && currentName != "" {
				cb(currentName)
			}
		}
	}()
	return item
}

// RefreshDevices reconciles the submenu with a hotplug scan. Items are
// reused by slot; surplus items are hidden, missing ones appended.
func RefreshDevices(names []string, selected string) {
	if deviceReady == nil {
		return
	}
	<-deviceReady

	deviceMu.Lock()
	defer deviceMu.Unlock()

	deviceNames = names
	deviceSel = selected

	for i, item := range deviceItems {
		if i < len(names) {
			item.SetTitle(deviceDisplayName(names[i]))
			item.SetTooltip(names[i])
			item.Show()
			if names[i] == selected {
				item.Check()
			} else {
				item.Uncheck()
			}
		} else {
			item.Hide()
			item.Uncheck()
		}
	}
	for i := len(deviceItems); i < len(names); i++ {
		deviceItems = append(deviceItems, addDeviceItem(i, names[i], names[i] == selected))
	}
}

func onReady() {
	systray.SetTemplateIcon(iconIdleHi, iconIdle)
	systray.SetTooltip(defaultTooltip)

	mCopy = systray.AddMenuItem("Copy Last Transcript", "Copy the last transcript to the clipboard")
	mCopy.Disable()
	go func() {
		for range mCopy.ClickedCh {
			if copyLastFn != nil {
				copyLastFn()
			}
		}
	}()

	systray.AddSeparator()

	mRecord = systray.AddMenuItem("Start Recording", "Start or stop recording")
	go func() {
		for range mRecord.ClickedCh {
			if indicatorFn != nil {
				indicatorFn()
			}
		}
	}()

	mDevices = systray.AddMenuItem("Input Device", "Select the capture device")
	deviceMu.Lock()
	deviceItems = make([]*systray.MenuItem, 0, len(deviceNames))
	for i, name := range deviceNames {
		deviceItems = append(deviceItems, addDeviceItem(i, name, name == deviceSel))
	}
	deviceMu.Unlock()

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit voicy")
	go func() {
		<-mQuit.ClickedCh
		Quit()
	}()

	close(deviceReady)
}

func onExit() {
	closeOnce.Do(func() { close(quitCh) })
}
