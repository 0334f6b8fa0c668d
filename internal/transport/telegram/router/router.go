// Package router turns chat updates into command invocations: it tokenizes
// the message, checks the admin allow-list, and runs the handler on a bounded
// worker pool behind recover, request-log and timeout middleware.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	rtsup "autolike/internal/runtime/supervisor"
	kit "autolike/internal/transport"
	logx "autolike/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

const (
	textUnknown = "Unknown command. Try /help"
	textBusy    = "⏳ Busy, try again in a moment."
	textDenied  = "❌ Only admin can use this command."
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// DeniedText replaces the generic reply sent to non-admins.
	DeniedText string
	Timeout    time.Duration
	Handle     HandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	Args         []string
	ReqID        string
	IsAdmin      bool
	Logger       logx.Logger

	sender kit.Sender
}

// Reply sends plain text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.ReplyOpt(ctx, text, &kit.SendOptions{DisablePreview: true})
}

func (r *Request) ReplyOpt(ctx context.Context, text string, opt *kit.SendOptions) error {
	if r.sender == nil {
		return nil
	}
	_, err := r.sender.SendText(ctx, r.Chat, text, opt)
	return err
}

type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*Command
	ordered  []*Command
	admins   map[int64]struct{}

	log    logx.Logger
	sender kit.Sender
	self   string // bot username, without "@"

	workers int
	jobs    chan func()
}

func NewCommandManager(log logx.Logger, sender kit.Sender, admins []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &CommandManager{
		commands: map[string]*Command{},
		admins:   map[int64]struct{}{},
		log:      log,
		sender:   sender,
		workers:  4,
		jobs:     make(chan func(), 64),
	}
	for _, id := range admins {
		m.admins[id] = struct{}{}
	}
	return m
}

func (m *CommandManager) IsAdmin(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.admins[userID]
	return ok
}

// SetBotUsername makes the manager ignore "/cmd@other" commands aimed at
// other bots in shared groups. Empty accepts every suffix.
func (m *CommandManager) SetBotUsername(name string) {
	m.mu.Lock()
	m.self = strings.TrimPrefix(strings.TrimSpace(name), "@")
	m.mu.Unlock()
}

// SetRegistry replaces the command set. /help is always added.
func (m *CommandManager) SetRegistry(cmds []Command) {
	all := append([]Command(nil), cmds...)
	all = append(all, Command{
		Name:        "help",
		Description: "show this help",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.IsAdmin))
		},
	})

	index := map[string]*Command{}
	ordered := make([]*Command, 0, len(all))
	for i := range all {
		c := &all[i]
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		index[name] = c
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				index[a] = c
			}
		}
		ordered = append(ordered, c)
	}

	m.mu.Lock()
	m.commands = index
	m.ordered = ordered
	m.mu.Unlock()
}

// PublishMenu pushes the command list to the platform menu when the sender
// supports it.
func (m *CommandManager) PublishMenu(ctx context.Context) error {
	up, ok := m.sender.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	m.mu.RLock()
	menu := buildMenu(m.ordered)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, menu)
}

// DispatchLoop reads updates until ctx ends or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log))
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.workers; i++ {
		sup.GoRestart("command.worker", func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := m.prepare(ctx, up)
			if job == nil {
				continue
			}
			select {
			case m.jobs <- job:
			default:
				m.replyTo(ctx, up.Message, textBusy)
			}
		}
	}
}

// HandleUpdate routes one update and runs its handler on the calling
// goroutine.
func (m *CommandManager) HandleUpdate(ctx context.Context, up kit.Update) {
	if job := m.prepare(ctx, up); job != nil {
		job()
	}
}

// prepare resolves the command and returns the job to run, or nil when the
// update needs no worker (not a command, unknown, denied).
func (m *CommandManager) prepare(ctx context.Context, up kit.Update) func() {
	msg := up.Message
	if msg == nil {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return nil
	}
	word, target := commandWord(parts[0])
	if word == "" {
		return nil
	}

	m.mu.RLock()
	self := m.self
	cmd, ok := m.commands[word]
	m.mu.RUnlock()
	if target != "" && self != "" && !strings.EqualFold(target, self) {
		return nil
	}
	if !ok {
		m.replyTo(ctx, msg, textUnknown)
		return nil
	}

	admin := m.IsAdmin(msg.FromID)
	if cmd.Access == AccessAdminOnly && !admin {
		denied := cmd.DeniedText
		if denied == "" {
			denied = textDenied
		}
		m.log.Info("command denied", logx.String("cmd", cmd.Name), logx.Int64("from_id", msg.FromID))
		m.replyTo(ctx, msg, denied)
		return nil
	}

	rid := newReqID()
	req := &Request{
		Update:       up,
		Chat:         kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Name,
		Args:         parts[1:],
		ReqID:        rid,
		IsAdmin:      admin,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		sender: m.sender,
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)
	return func() { _ = final(ctx, req) }
}

func (m *CommandManager) replyTo(ctx context.Context, msg *kit.Message, text string) {
	if m.sender == nil || msg == nil {
		return
	}
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := m.sender.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		m.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
	}
}
