package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	s := Defaults()
	if s.ModelSize != "small" {
		t.Errorf("ModelSize = %q, want small", s.ModelSize)
	}
	if s.Language != "auto" {
		t.Errorf("Language = %q, want auto", s.Language)
	}
	if !s.AutoPunct {
		t.Error("AutoPunct should default to true")
	}
	if s.HoldCombo != "ctrl+space" || s.ToggleCombo != "ctrl+shift+space" {
		t.Errorf("combos = %q / %q", s.HoldCombo, s.ToggleCombo)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsUnknownModel(t *testing.T) {
	s := Defaults()
	s.ModelSize = "enormous"
	if err := s.Validate(); err == nil {
		t.Error("expected error for unknown model size")
	}
}

func TestValidateRejectsEqualCombos(t *testing.T) {
	s := Defaults()
	s.ToggleCombo = s.HoldCombo
	if err := s.Validate(); err == nil {
		t.Error("expected error when both combos match")
	}
}

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := st.Load(); got.ModelSize != "small" {
		t.Errorf("ModelSize = %q, want small", got.ModelSize)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	st := NewStore(path, Defaults())

	s := st.Load()
	s.ModelSize = "base"
	s.Language = "de"
	s.AutoPunct = false
	st.Set(s)
	if err := st.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got := reopened.Load()
	if got.ModelSize != "base" || got.Language != "de" || got.AutoPunct {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestLoadIsSnapshot(t *testing.T) {
	st := NewStore("", Defaults())
	snap := st.Load()

	live := st.Load()
	live.ModelSize = "medium"
	st.Set(live)

	if snap.ModelSize != "small" {
		t.Errorf("snapshot changed after Set: %q", snap.ModelSize)
	}
	if st.Load().ModelSize != "medium" {
		t.Errorf("store did not take the new value")
	}
}

func TestModelPath(t *testing.T) {
	s := Defaults()
	s.DataDir = "/data/models"
	want := filepath.Join("/data/models", "ggml-small.bin")
	if got := s.ModelPath(); got != want {
		t.Errorf("ModelPath = %q, want %q", got, want)
	}
}

func TestOpenMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("model_size = [broken"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for malformed TOML")
	}
}
