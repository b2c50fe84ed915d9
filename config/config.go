// Package config holds the persisted settings and the per-session snapshot
// semantics: the live store may change at any time, but a Session only ever
// sees the value copy taken when it started.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	DefaultModelSize   = "small"
	DefaultLanguage    = "auto"
	DefaultHoldCombo   = "ctrl+space"
	DefaultToggleCombo = "ctrl+shift+space"
)

var modelSizes = []string{"tiny", "base", "small", "medium", "large-v2"}

// Settings is a plain value; copying it is the snapshot operation.
type Settings struct {
	ModelSize   string `toml:"model_size"`
	Language    string `toml:"language"` // ISO-639-1 code or "auto"
	AutoPunct   bool   `toml:"auto_punct"`
	HoldCombo   string `toml:"hold_combo"`
	ToggleCombo string `toml:"toggle_combo"`
	DataDir     string `toml:"data_dir"` // model files live here
}

func Defaults() Settings {
	return Settings{
		ModelSize:   DefaultModelSize,
		Language:    DefaultLanguage,
		AutoPunct:   true,
		HoldCombo:   DefaultHoldCombo,
		ToggleCombo: DefaultToggleCombo,
	}
}

func (s *Settings) Validate() error {
	if !validModelSize(s.ModelSize) {
		return fmt.Errorf("config: unknown model size %q (use tiny, base, small, medium, or large-v2)", s.ModelSize)
	}
	if s.Language == "" {
		s.Language = DefaultLanguage
	}
	if s.HoldCombo == "" {
		s.HoldCombo = DefaultHoldCombo
	}
	if s.ToggleCombo == "" {
		s.ToggleCombo = DefaultToggleCombo
	}
	if s.HoldCombo == s.ToggleCombo {
		return fmt.Errorf("config: hold and toggle combos are both %q", s.HoldCombo)
	}
	return nil
}

// ModelPath resolves the ggml model file for the configured size.
func (s Settings) ModelPath() string {
	return filepath.Join(s.DataDir, "ggml-"+s.ModelSize+".bin")
}

func validModelSize(size string) bool {
	for _, m := range modelSizes {
		if m == size {
			return true
		}
	}
	return false
}

// Store is the live settings holder. Load returns a value copy, so callers
// never observe mid-session mutation.
type Store struct {
	mu   sync.Mutex
	cur  Settings
	path string
}

func NewStore(path string, s Settings) *Store {
	return &Store{cur: s, path: path}
}

func (st *Store) Load() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cur
}

// Set replaces the live settings. In-flight sessions keep their snapshot.
func (st *Store) Set(s Settings) {
	st.mu.Lock()
	st.cur = s
	st.mu.Unlock()
}

func (st *Store) Save() error {
	st.mu.Lock()
	s := st.cur
	path := st.path
	st.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "voicy", "config.toml"), nil
}

// Open loads settings from path, falling back to defaults when the file does
// not exist. Unknown keys are tolerated; malformed TOML is an error.
func Open(path string) (*Store, error) {
	s := Defaults()
	if _, err := toml.DecodeFile(path, &s); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if s.DataDir == "" {
		base, err := os.UserCacheDir()
		if err == nil {
			s.DataDir = filepath.Join(base, "voicy", "models")
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return NewStore(path, s), nil
}
