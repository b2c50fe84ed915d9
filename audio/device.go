package audio

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrSelectionCancelled is returned when the user quits the picker.
var ErrSelectionCancelled = errors.New("audio: device selection cancelled")

// SelectDevice walks the user through an arrow-key picker on stdin and
// returns the chosen capture device. A single available device is returned
// without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, errors.New("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	prev, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, prev)

	p := &picker{devices: devices}
	p.render(false)
	for {
		key, err := p.readKey()
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch key {
		case keyEnter:
			fmt.Print("\r\n")
			return &devices[p.cursor], nil
		case keyCancel:
			fmt.Print("\r\n")
			return nil, ErrSelectionCancelled
		case keyUp:
			if p.cursor > 0 {
				p.cursor--
			}
		case keyDown:
			if p.cursor < len(devices)-1 {
				p.cursor++
			}
		}
		p.render(true)
	}
}

type pickerKey int

const (
	keyNone pickerKey = iota
	keyUp
	keyDown
	keyEnter
	keyCancel
)

type picker struct {
	devices []DeviceInfo
	cursor  int
	buf     [3]byte
}

// render repaints the list in place; redraw rewinds over the previous frame
// first.
func (p *picker) render(redraw bool) {
	if redraw {
		fmt.Printf("\x1b[%dA", len(p.devices)+2)
	}
	fmt.Print("\r\x1b[J")
	fmt.Print("Select input device (arrows or j/k, Enter to confirm, q to cancel):\r\n\r\n")
	for i, d := range p.devices {
		label := d.Name
		if IsBluetooth(d.Name) {
			label += " \x1b[33m(bluetooth, lower quality)\x1b[0m"
		}
		if i == p.cursor {
			fmt.Printf("  \x1b[1;36m> %s\x1b[0m\r\n", label)
		} else {
			fmt.Printf("    %s\r\n", label)
		}
	}
}

// readKey folds raw stdin bytes into picker keys. Arrow keys arrive as a
// three-byte CSI sequence; everything unrecognized maps to keyNone.
func (p *picker) readKey() (pickerKey, error) {
	n, err := os.Stdin.Read(p.buf[:])
	if err != nil {
		return keyNone, err
	}
	if n == 3 && p.buf[0] == 0x1b && p.buf[1] == '[' {
		switch p.buf[2] {
		case 'A':
			return keyUp, nil
		case 'B':
			return keyDown, nil
		}
		return keyNone, nil
	}
	if n != 1 {
		return keyNone, nil
	}
	switch p.buf[0] {
	case '\r':
		return keyEnter, nil
	case 3, 'q': // Ctrl+C or q
		return keyCancel, nil
	case 'k':
		return keyUp, nil
	case 'j':
		return keyDown, nil
	}
	return keyNone, nil
}
