// Package inject types text into the focused window by placing it on the
// clipboard and issuing a synthetic paste keystroke.
package inject

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// ErrInjectionFailed wraps any OS refusal of the synthetic input.
var ErrInjectionFailed = errors.New("inject: synthetic input failed")

// restoreDelay leaves the transcript on the clipboard long enough for the
// paste to land before the previous contents come back.
const restoreDelay = 600 * time.Millisecond

var (
	kb     keybd_event.KeyBonding
	kbOnce sync.Once
	kbErr  error
)

func Init() error {
	kbOnce.Do(func() {
		kb, kbErr = keybd_event.NewKeyBonding()
		if kbErr == nil && runtime.GOOS == "linux" {
			// uinput needs a moment before the first synthetic event
			time.Sleep(2 * time.Second)
		}
	})
	return kbErr
}

// Text sends one transcript to the focused window. The previous clipboard
// contents are restored after a short delay; on paste failure the transcript
// stays on the clipboard for manual recovery.
func Text(text string) error {
	if text == "" {
		return nil
	}
	if err := Init(); err != nil {
		return fmt.Errorf("%w: %v", ErrInjectionFailed, err)
	}

	prev, prevErr := cb.ReadAll()

	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("%w: clipboard write: %v", ErrInjectionFailed, err)
	}
	if err := paste(); err != nil {
		return fmt.Errorf("%w: %v", ErrInjectionFailed, err)
	}

	if prevErr == nil && prev != "" {
		go func() {
			time.Sleep(restoreDelay)
			cb.WriteAll(prev)
		}()
	}
	return nil
}

func paste() error {
	kb.Clear()
	kb.SetKeys(keybd_event.VK_V)
	setPasteModifier(&kb)
	return kb.Launching()
}

// Copy puts text on the clipboard without a paste keystroke (tray Copy Last).
func Copy(text string) error {
	return cb.WriteAll(text)
}

func Read() (string, error) {
	return cb.ReadAll()
}
