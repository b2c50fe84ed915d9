package textproc

import (
	"strings"
	"testing"
)

func TestDisabledIsIdentity(t *testing.T) {
	for _, in := range []string{
		"",
		"hello there how are you",
		"  leading whitespace",
		"Already punctuated.",
	} {
		if got := AutoPunctuate(in, false); got != in {
			t.Errorf("AutoPunctuate(%q, false) = %q, want input unchanged", in, got)
		}
	}
}

func TestCapitalizesAndTerminates(t *testing.T) {
	got := AutoPunctuate("hello there how are you", true)
	if !strings.HasPrefix(got, "Hello") {
		t.Errorf("got %q, want leading capital", got)
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("got %q, want terminal period", got)
	}
}

func TestWordTokensUnchanged(t *testing.T) {
	in := "open the file"
	got := AutoPunctuate(in, true)
	stripped := strings.TrimRight(got, ".?!")
	if !strings.EqualFold(stripped, in) {
		t.Errorf("word content altered: %q -> %q", in, got)
	}
	if got != "Open the file." {
		t.Errorf("got %q, want %q", got, "Open the file.")
	}
}

func TestExistingTerminalKept(t *testing.T) {
	for _, tt := range []struct{ in, want string }{
		{"done already.", "Done already."},
		{"is it you?", "Is it you?"},
		{"stop!", "Stop!"},
	} {
		if got := AutoPunctuate(tt.in, true); got != tt.want {
			t.Errorf("AutoPunctuate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCapitalizesAfterTerminal(t *testing.T) {
	got := AutoPunctuate("first sentence. second sentence", true)
	if got != "First sentence. Second sentence." {
		t.Errorf("got %q", got)
	}
}

func TestEmptyAndWhitespace(t *testing.T) {
	if got := AutoPunctuate("", true); got != "" {
		t.Errorf("empty input: got %q", got)
	}
	if got := AutoPunctuate("   ", true); got != "" {
		t.Errorf("whitespace input: got %q", got)
	}
}

func TestStateless(t *testing.T) {
	first := AutoPunctuate("hello", true)
	AutoPunctuate("completely different text?", true)
	second := AutoPunctuate("hello", true)
	if first != second {
		t.Errorf("not deterministic: %q vs %q", first, second)
	}
}
