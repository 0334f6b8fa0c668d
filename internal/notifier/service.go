package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "autolike/internal/transport"
	logx "autolike/pkg/logx"
)

var (
	ErrNoSender = errors.New("notifier has no sender (bot token not configured)")
	ErrNoTarget = errors.New("notifier has no output chat id")
)

const (
	defaultRatePerSec  = 1
	defaultSendTimeout = 10 * time.Second
	historySize        = 100
)

type Config struct {
	ChatID   int64
	ThreadID int
	// RatePerSec <= 0 means the default of one message per second.
	RatePerSec  float64
	SendTimeout time.Duration
}

type HistoryItem struct {
	At    time.Time
	OK    bool
	Error string
}

type Stats struct {
	Sent   int64      `json:"sent"`
	Failed int64      `json:"failed"`
	LastAt *time.Time `json:"last_at,omitempty"`
}

// Service is safe for concurrent use.
type Service struct {
	log     logx.Logger
	cfg     Config
	limiter *rate.Limiter

	mu     sync.Mutex
	sender kit.Sender

	hmu     sync.Mutex
	history []HistoryItem
	sent    int64
	failed  int64
}

// New returns a notifier. sender may be nil when the bot is not configured;
// it can be installed later with SetSender.
func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	burst := max(1, int(cfg.RatePerSec))
	return &Service{
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		sender:  sender,
	}
}

func (s *Service) SetSender(sender kit.Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) HasSender() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender != nil
}

func (s *Service) ChatID() int64 { return s.cfg.ChatID }

// Send posts text with Markdown formatting to the output chat. It blocks
// until the message is handed to the sender, the limiter gives up or ctx ends.
func (s *Service) Send(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		s.record(ErrNoSender)
		s.log.Error("notification not sent", logx.Err(ErrNoSender))
		return
	}
	if s.cfg.ChatID == 0 {
		s.record(ErrNoTarget)
		s.log.Error("notification not sent", logx.Err(ErrNoTarget))
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		s.record(err)
		s.log.Error("notification not sent", logx.Err(err))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	target := kit.ChatTarget{ChatID: s.cfg.ChatID, ThreadID: s.cfg.ThreadID}
	_, err := sender.SendText(cctx, target, text, &kit.SendOptions{ParseMode: kit.ParseModeMarkdown, DisablePreview: true})
	s.record(err)
	if err != nil {
		s.log.Error("notification send failed", logx.Int64("chat_id", s.cfg.ChatID), logx.Err(err))
		return
	}
	s.log.Debug("notification sent", logx.Int64("chat_id", s.cfg.ChatID))
}

// History returns the most recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) Stats() Stats {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	st := Stats{Sent: s.sent, Failed: s.failed}
	if n := len(s.history); n > 0 {
		at := s.history[n-1].At
		st.LastAt = &at
	}
	return st
}

func (s *Service) record(err error) {
	it := HistoryItem{At: time.Now().UTC(), OK: err == nil}
	s.hmu.Lock()
	if err != nil {
		it.Error = err.Error()
		s.failed++
	} else {
		s.sent++
	}
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}
