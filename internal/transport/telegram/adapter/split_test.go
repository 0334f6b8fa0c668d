package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShort(t *testing.T) {
	got := splitText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	line := strings.Repeat("a", 6)
	s := strings.Join([]string{line, line, line}, "\n") // 20 runes
	got := splitText(s, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %q", got)
	}
	for _, c := range got {
		if c != line {
			t.Fatalf("chunk %q, want %q", c, line)
		}
	}
}

func TestSplitTextHardCut(t *testing.T) {
	s := strings.Repeat("é", 25)
	got := splitText(s, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d", len(got))
	}
	total := 0
	for _, c := range got {
		n := utf8.RuneCountInString(c)
		if n > 10 {
			t.Fatalf("chunk too long: %d runes", n)
		}
		total += n
	}
	if total != 25 {
		t.Fatalf("lost runes: %d", total)
	}
}
