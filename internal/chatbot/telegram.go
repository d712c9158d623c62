package chatbot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	rtsup "mailsched/internal/runtime/supervisor"
	logx "mailsched/pkg/logx"
)

// TelegramConfig runs the bot over Telegram long polling. Chat users have
// no email address, so a synthetic one is derived from the Telegram user
// id to key their account.
type TelegramConfig struct {
	Enabled     bool          `json:"enabled"`
	Token       string        `json:"token"`
	PollTimeout time.Duration `json:"poll_timeout"`
	// ReplyRatePerSec throttles outbound replies across all chats.
	ReplyRatePerSec int `json:"reply_rate_per_sec"`
}

type Telegram struct {
	cfg     TelegramConfig
	svc     *Service
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func NewTelegram(cfg TelegramConfig, svc *Service, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.ReplyRatePerSec <= 0 {
		cfg.ReplyRatePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	t := &Telegram{
		cfg:     cfg,
		svc:     svc,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.ReplyRatePerSec), cfg.ReplyRatePerSec),
	}
	t.registerHandlers()
	return t, nil
}

func (t *Telegram) registerHandlers() {
	t.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		reply := t.svc.Handle(context.Background(), senderEmail(m.Sender), m.Text)
		if reply == "" {
			return nil
		}
		if err := t.limiter.Wait(context.Background()); err != nil {
			return err
		}
		return c.Send(reply)
	})
}

// senderEmail synthesizes a stable account key for a Telegram user.
func senderEmail(u *tele.User) string {
	if u.Username != "" {
		return strings.ToLower(u.Username) + "@telegram.local"
	}
	return "tg" + strconv.FormatInt(u.ID, 10) + "@telegram.local"
}

func (t *Telegram) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	t.runMu.Lock()
	if t.running || !t.cfg.Enabled {
		t.runMu.Unlock()
		return
	}
	t.running = true
	t.sup = rtsup.New(ctx,
		rtsup.WithLogger(t.log.With(logx.String("comp", "chatbot.telegram"))),
		rtsup.WithCancelOnError(false),
	)
	sup := t.sup
	t.runMu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		t.bot.Stop()
	})

	// telebot's Start blocks until Stop; restart it if it ever exits
	// while the app is still running.
	sup.GoRestart("telebot.poll", func(context.Context) error {
		t.log.Info("polling started")
		t.bot.Start()
		t.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		// Restart if polling returns while the app is still running.
		rtsup.WithStopOnCleanExit(false),
	)
}

func (t *Telegram) Stop(ctx context.Context) {
	t.runMu.Lock()
	sup := t.sup
	t.sup = nil
	wasRunning := t.running
	t.running = false
	t.runMu.Unlock()

	if !wasRunning {
		return
	}
	if sup != nil {
		sup.Cancel()
	}
	go t.bot.Stop()
	if sup != nil {
		wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.log.Warn("telegram stop error", logx.Err(err))
		}
	}
}
