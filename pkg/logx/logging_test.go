package logx

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))
	log.Debug("hidden")
	log.Info("hello", Int("n", 3), Err(nil))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %s", out)
	}
	for _, want := range []string{`"message":"hello"`, `"comp":"test"`, `"n":3`, `"caller":"logging_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger not reported as zero")
	}
	l.Error("dropped")
}

func TestLevelOf(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"loud":    zerolog.InfoLevel,
	} {
		if got := levelOf(in, zerolog.InfoLevel); got != want {
			t.Fatalf("levelOf(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatTelegramJSONTruncatesValues(t *testing.T) {
	long := strings.Repeat("é", tgMaxValRunes+10)
	got := formatTelegramJSON([]byte(`{"level":"error","message":"m","body":"` + long + `"}`))
	if !strings.HasSuffix(got, "…") || strings.Count(got, "é") != tgMaxValRunes {
		t.Fatalf("value not cut at %d runes: %d", tgMaxValRunes, strings.Count(got, "é"))
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	got := formatTelegramJSON([]byte(`{"level":"warn","time":"x","message":"run failed","err":"boom","comp":"engine"}`))
	want := "[WARN] run failed\n- comp=engine\n- err=boom"
	if got != want {
		t.Fatalf("formatTelegramJSON = %q", got)
	}
	if got := formatTelegramJSON([]byte("not json")); got != "not json" {
		t.Fatalf("plain fallback = %q", got)
	}
}

func TestTelegramSinkRespectsMinLevel(t *testing.T) {
	svc, log := New(Config{
		Level: "debug",
		Telegram: TelegramConfig{
			Enabled:    true,
			ChatID:     -100,
			MinLevel:   "warn",
			RatePerSec: 100,
		},
	})
	defer svc.Close()

	got := make(chan string, 4)
	svc.SetSender(func(_ context.Context, chatID int64, text string) error {
		if chatID != -100 {
			t.Errorf("chat id = %d", chatID)
		}
		got <- text
		return nil
	})

	log.Info("below threshold")
	log.Warn("storage slow", String("op", "prune"))

	select {
	case text := <-got:
		if !strings.HasPrefix(text, "[WARN] storage slow") || !strings.Contains(text, "op=prune") {
			t.Fatalf("text = %q", text)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("warn line never reached the sender")
	}
	select {
	case text := <-got:
		t.Fatalf("unexpected extra message %q", text)
	case <-time.After(100 * time.Millisecond):
	}
}
