package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"autolike/internal/bot"
	"autolike/internal/config"
	"autolike/internal/likeapi"
	"autolike/internal/notifier"
	"autolike/internal/panel"
	"autolike/internal/runtime/supervisor"
	"autolike/internal/storage"
	"autolike/internal/task/engine"
	"autolike/internal/task/scheduler"
	kit "autolike/internal/transport"
	telegram "autolike/internal/transport/telegram/adapter"
	"autolike/internal/transport/telegram/router"
	logx "autolike/pkg/logx"
)

// Mode selects which front ends Start brings up.
type Mode string

const (
	ModeAll   Mode = ""
	ModeBot   Mode = "bot"
	ModePanel Mode = "panel"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAll, ModeBot, ModePanel:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want bot, panel or empty)", s)
	}
}

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	like    *likeapi.Client
	notif   *notifier.Service
	engine  *engine.Service
	sched   *scheduler.Service
	adapter *telegram.Adapter // nil without a bot token
	cmdm    *router.CommandManager
	panel   *panel.Server

	updates chan kit.Update

	mu           sync.Mutex
	botStarted   bool
	panelStarted bool
}

// NewApp loads the config at cfgPath and builds every component. Nothing
// is started yet.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     appLog,
		logs:    logSvc,
		updates: make(chan kit.Update, 256),
	}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		ad, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.Telegram.PollTimeoutDuration(),
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.adapter = ad
		logSvc.SetSender(func(ctx context.Context, chatID int64, text string) error {
			_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
			return err
		})
	} else {
		appLog.Warn("telegram.token is empty; chat commands and group notifications are disabled")
	}

	st, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a.store = st

	a.like, err = likeapi.New(mapLikeAPIConfig(cfg), log.With(logx.String("comp", "likeapi")))
	if err != nil {
		return nil, err
	}

	a.notif = notifier.New(mapNotifierConfig(cfg), nil, log.With(logx.String("comp", "notifier")))
	if a.adapter != nil {
		a.notif.SetSender(a.adapter)
	}

	a.engine = engine.New(a.store, a.like, a.notif, log.With(logx.String("comp", "engine")))

	a.sched, err = scheduler.New(mapSchedulerConfig(cfg), a.engine, log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return nil, err
	}

	var sender kit.Sender
	if a.adapter != nil {
		sender = a.adapter
	}
	a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "commands")), sender, cfg.Telegram.AdminIDs)
	if a.adapter != nil {
		a.cmdm.SetBotUsername(a.adapter.Username())
	}
	a.cmdm.SetRegistry(bot.Commands(bot.Deps{
		Store:       a.store,
		Runner:      a.engine,
		NextAutoRun: a.sched.Next,
	}))

	if cfg.Panel.Enabled {
		a.panel, err = panel.New(panel.Config{
			Addr:          panelAddr(cfg),
			Secret:        []byte(cfg.Panel.Secret),
			SessionTTL:    cfg.Panel.SessionTTLDuration(),
			SecureCookie:  cfg.Panel.SecureCookie,
			HasToken:      a.adapter != nil,
			OutputGroupID: cfg.Telegram.OutputGroupID,
		}, panel.Deps{
			Store:    a.store,
			Runner:   a.engine,
			Auth:     panel.StaticCredentials{Username: strings.TrimSpace(cfg.Panel.Username), Password: cfg.Panel.Password},
			Notifier: a.notif,
		}, log)
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings up the front ends selected by mode plus the shared
// background loops (auto-run scheduler, config watch).
func (a *App) Start(ctx context.Context, mode Mode) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if mode == ModeAll || mode == ModeBot {
		if err := a.StartBot(a.sup.Context()); err != nil {
			return err
		}
	}
	if mode == ModeAll || mode == ModePanel {
		if err := a.StartPanel(a.sup.Context()); err != nil {
			return err
		}
	}

	a.sched.Start(a.sup.Context())
	a.startConfigReload()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started", logx.String("mode", modeName(mode)))
	return nil
}

func modeName(m Mode) string {
	if m == ModeAll {
		return "all"
	}
	return string(m)
}

// StartBot runs the long-poll listener and the command dispatcher. Without a
// bot token it logs and returns nil.
func (a *App) StartBot(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.botStarted {
		return nil
	}
	if a.adapter == nil {
		a.log.Warn("bot not started: no token configured")
		return nil
	}
	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return err
	}
	a.botStarted = true

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		if err := a.cmdm.PublishMenu(c); err != nil {
			a.log.Warn("publish command menu failed", logx.Err(err))
		}
	})
	a.log.Info("bot started", logx.Int("admins", len(a.cfg.Telegram.AdminIDs)))
	return nil
}

// StartPanel binds the admin panel listener. A disabled panel logs and
// returns nil.
func (a *App) StartPanel(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.panelStarted {
		return nil
	}
	if a.panel == nil {
		a.log.Info("panel disabled")
		return nil
	}
	if err := a.panel.Start(); err != nil {
		return err
	}
	a.panelStarted = true
	return nil
}

func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections := config.ChangedSections(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLoggingConfig(newCfg))
	if pending := restartRequired(sections); len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(pending, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		runStopStep(ctx, a.log, name, max, fn)
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("panel", 3*time.Second, func(c context.Context) error {
		if a.panel != nil {
			return a.panel.Stop(c)
		}
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter != nil {
			return a.adapter.Stop(c)
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// closeResources releases what NewApp opened when Start never ran.
func (a *App) closeResources() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
