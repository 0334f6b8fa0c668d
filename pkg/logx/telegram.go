package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"autolike/pkg/tgui"
)

// SendFunc delivers a plain-text log line to a chat. The app points it at
// the Telegram adapter once that exists.
type SendFunc func(ctx context.Context, chatID int64, text string) error

const (
	tgMaxRunes    = 3500
	tgMaxValRunes = 600
	tgSendTimeout = 10 * time.Second
)

type tgLine struct {
	chatID int64
	text   string
}

// telegramSink is a zerolog LevelWriter that queues lines for a background
// sender. It never blocks the caller; overflow and rate-limited lines drop.
type telegramSink struct {
	mu       sync.Mutex
	send     SendFunc
	chatID   int64
	minLevel zerolog.Level
	limiter  *rate.Limiter
	cancel   context.CancelFunc

	queue chan tgLine
	wg    sync.WaitGroup
}

func newTelegramSink() *telegramSink {
	return &telegramSink{queue: make(chan tgLine, 256), minLevel: zerolog.WarnLevel}
}

func (t *telegramSink) setSender(fn SendFunc) {
	t.mu.Lock()
	t.send = fn
	t.mu.Unlock()
}

// configure updates routing and starts the worker the first time the sink
// is enabled.
func (t *telegramSink) configure(cfg TelegramConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chatID = cfg.ChatID
	t.minLevel = levelOf(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rateFor(cfg.RatePerSec)
	if !cfg.Enabled || t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx)
	}()
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ln := <-t.queue:
			t.mu.Lock()
			send := t.send
			t.mu.Unlock()
			if send == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, tgSendTimeout)
			_ = send(sctx, ln.chatID, ln.text)
			cancel()
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	chatID, minLevel, lim := t.chatID, t.minLevel, t.limiter
	t.mu.Unlock()

	if chatID == 0 || level < minLevel || lim == nil || !lim.Allow() {
		return len(p), nil
	}
	if text := formatTelegramJSON(p); text != "" {
		select {
		case t.queue <- tgLine{chatID: chatID, text: text}:
		default:
		}
	}
	return len(p), nil
}

// formatTelegramJSON renders one JSON log line as
//
//	[LEVEL] message
//	- key=value
//
// with keys sorted. Non-JSON input is passed through trimmed.
func formatTelegramJSON(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return tgui.TruncRunes(raw, tgMaxRunes)
	}

	var b strings.Builder
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, tgui.TruncRunes(fmt.Sprint(m[k]), tgMaxValRunes))
	}
	return tgui.TruncRunes(b.String(), tgMaxRunes)
}
