package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailsched/internal/chatbot"
	"mailsched/internal/config"
	"mailsched/internal/deliver"
	"mailsched/internal/dispatch"
	"mailsched/internal/eventbus"
	"mailsched/internal/notify"
	rtsup "mailsched/internal/runtime/supervisor"
	"mailsched/internal/schedule"
	"mailsched/internal/storage"
	"mailsched/internal/webapi"
	logx "mailsched/pkg/logx"
)

// App wires config, storage, delivery and the two front-ends (REST and
// Telegram chat) into one process.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	notif notify.Notifier
	fireH *deliver.Handler
	disp  *dispatch.Service

	chat *chatbot.Service
	tg   *chatbot.Telegram

	web    *webapi.Server
	webErr chan error
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage
	scfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", scfg.Driver))

	// Delivery channel
	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif, err := notify.New(ncfg, log.With(logx.String("comp", "notify")))
	if err != nil {
		return nil, err
	}

	loc := resolveLocation(cfg.Scheduler.Timezone)

	// Fire handler and dispatcher reference each other: the dispatcher
	// fires through the handler, the handler re-arms recurring items
	// through the dispatcher. The closure breaks construction order;
	// fireH is set before Start() runs anything.
	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		notif:   notif,
		webErr:  make(chan error, 1),
	}
	fire := func(ctx context.Context, id uuid.UUID) error {
		_, err := a.fireH.Fire(ctx, id)
		return err
	}
	a.disp = dispatch.New(dcfg, fire, store, log.With(logx.String("comp", "dispatch")), bus)
	a.fireH = deliver.New(store, notif, a.disp, loc, log.With(logx.String("comp", "deliver")))

	// Chat front-end (shared by Telegram and the REST webhook).
	a.chat = chatbot.New(chatbot.Config{Timezone: cfg.Chat.Timezone},
		store, a.disp, log.With(logx.String("comp", "chatbot")))

	if cfg.Chat.Telegram.Enabled {
		tcfg, err := mapChatTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := chatbot.NewTelegram(tcfg, a.chat, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		a.tg = tg
	}

	// REST front-end
	if cfg.Server.Enabled {
		wcfg, err := mapServerConfig(cfg)
		if err != nil {
			return nil, err
		}
		h := webapi.NewHandler(store, a.disp, a.chat, loc, log.With(logx.String("comp", "webapi")))
		a.web = webapi.NewServer(wcfg, h, log.With(logx.String("comp", "webapi")))
	}

	return a, nil
}

// Done is closed when the app supervisor context is canceled.
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

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Scheduler.Workers < 0 {
			return fmt.Errorf("scheduler.workers must be >= 0")
		}
		if cfg.Scheduler.QueueSize < 0 {
			return fmt.Errorf("scheduler.queue_size must be >= 0")
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifyConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapServerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapChatTelegramConfig(cfg); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	if a.disp.Enabled() {
		a.disp.Start(a.sup.Context())
	}
	if a.tg != nil {
		a.tg.Start(a.sup.Context())
	}
	if a.web != nil {
		a.web.Start(a.webErr)
		a.sup.Go("webapi.listen", func(c context.Context) error {
			select {
			case <-c.Done():
				return nil
			case err := <-a.webErr:
				return err
			}
		})
	}

	// Event log for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload fan-out.
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
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies a hot-reloaded config to the running services.
// Logging and the dispatcher apply live; storage, server address and
// Telegram credentials need a restart.
func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		prevEnabled := a.disp.Enabled()
		a.disp.Apply(ctx, dcfg)
		if prevEnabled && !dcfg.Enabled {
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.disp.Stop(stopCtx)
			cancel()
		} else if !prevEnabled && dcfg.Enabled {
			a.log.Info("scheduler enabled via config")
			a.disp.Start(ctx)
		}
	}

	if prev != nil {
		if restartOnly := restartOnlyChanges(prev, cfg); len(restartOnly) > 0 {
			a.log.Warn("config sections need a restart to take effect",
				logx.String("sections", strings.Join(restartOnly, ",")))
		}
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// Front-ends first so no new work arrives, then the dispatcher, then
	// storage, then the supervised loops.
	if a.web != nil {
		step("webapi", 5*time.Second, func(c context.Context) error { a.web.Stop(c); return nil })
	}
	if a.tg != nil {
		step("telegram", 2*time.Second, func(c context.Context) error { a.tg.Stop(c); return nil })
	}
	step("dispatch", 3*time.Second, func(c context.Context) error { a.disp.Stop(c); return nil })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// restartOnlyChanges lists changed sections the running services cannot
// pick up live.
func restartOnlyChanges(prev, next *config.Config) []string {
	var out []string
	if !storageEqual(prev.Storage, next.Storage) {
		out = append(out, "storage")
	}
	if prev.Server != next.Server {
		out = append(out, "server")
	}
	if prev.Notify != next.Notify {
		out = append(out, "notify")
	}
	if prev.Chat != next.Chat {
		out = append(out, "chat")
	}
	return out
}

func storageEqual(a, b *config.StorageConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func resolveLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return schedule.DefaultLocation()
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return schedule.DefaultLocation()
	}
	return loc
}
