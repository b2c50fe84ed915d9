// Package hotkey delivers global key press/release events for a configured
// key combination. Bindings are read once at process start; changing them
// requires a restart.
package hotkey

import (
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is a parsed key combination like "ctrl+shift+space": zero or more
// modifiers plus one base key.
type Combo struct {
	Mods []string
	Key  string
}

func (c Combo) String() string {
	return strings.Join(append(append([]string(nil), c.Mods...), c.Key), "+")
}

var modNames = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"option":  "alt",
	"super":   "super",
	"cmd":     "super",
	"win":     "super",
}

// ParseCombo parses a "+"-separated binding. The last part is the base key;
// everything before it must be a modifier.
func ParseCombo(s string) (Combo, error) {
	var parts []string
	for _, p := range strings.Split(s, "+") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Combo{}, fmt.Errorf("hotkey: empty combo")
	}

	key := parts[len(parts)-1]
	if _, isMod := modNames[key]; isMod {
		return Combo{}, fmt.Errorf("hotkey: combo %q has no base key", s)
	}
	if !validBaseKey(key) {
		return Combo{}, fmt.Errorf("hotkey: unsupported key %q", key)
	}

	var mods []string
	seen := map[string]bool{}
	for _, p := range parts[:len(parts)-1] {
		canon, ok := modNames[p]
		if !ok {
			return Combo{}, fmt.Errorf("hotkey: unknown modifier %q", p)
		}
		if !seen[canon] {
			seen[canon] = true
			mods = append(mods, canon)
		}
	}
	return Combo{Mods: mods, Key: key}, nil
}

func validBaseKey(key string) bool {
	if key == "space" {
		return true
	}
	if len(key) != 1 {
		return false
	}
	c := key[0]
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
