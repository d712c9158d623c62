// Package dispatch owns the timers that turn a stored next_send into an
// actual delivery attempt. Every armed item gets a one-shot timer; a slow
// cron sweep re-arms anything the timers missed (process restarts, clock
// jumps). Execution happens on a small worker pool so a stuck SMTP server
// cannot wedge the timer callbacks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"mailsched/internal/eventbus"
	rtsup "mailsched/internal/runtime/supervisor"
	logx "mailsched/pkg/logx"
)

var (
	ErrDisabled  = errors.New("dispatch: disabled")
	ErrStopped   = errors.New("dispatch: not running")
	ErrQueueFull = errors.New("dispatch: queue full")
)

type Service struct {
	mu   sync.Mutex
	cfg  Config
	log  logx.Logger
	bus  eventbus.Bus
	fire FireFunc
	due  DueLister

	q        chan job
	stopCh   chan struct{}
	stopDone chan struct{}
	sup      *rtsup.Supervisor

	c   *cron.Cron
	loc *time.Location

	// One-shot timers, keyed by item id. Versions guard against stale
	// callbacks after a re-arm or disarm.
	tmu    sync.Mutex
	timers map[uuid.UUID]*time.Timer
	armVer map[uuid.UUID]uint64
	armAt  map[uuid.UUID]time.Time
}

func New(cfg Config, fire FireFunc, due DueLister, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		fire:   fire,
		due:    due,
		timers: map[uuid.UUID]*time.Timer{},
		armVer: map[uuid.UUID]uint64{},
		armAt:  map[uuid.UUID]time.Time{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	cfg := s.cfg
	if !cfg.Enabled || s.stopCh != nil {
		s.mu.Unlock()
		return
	}

	s.q = make(chan job, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	queue := s.q
	stopCh := s.stopCh

	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(s.loc))
	_, err := s.c.AddFunc("@every "+cfg.SweepEvery.String(), func() { s.sweep() })
	if err != nil {
		s.log.Error("sweep register failed", logx.Err(err))
	}
	s.c.Start()

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "dispatch"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	workers := cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}

	// Catch up immediately on anything that came due while we were down.
	sup.Go0("sweep.initial", func(context.Context) { s.sweep() })

	s.log.Info("dispatcher started",
		logx.Int("workers", workers),
		logx.Int("queue", cap(queue)),
		logx.Duration("sweep_every", cfg.SweepEvery),
		logx.String("tz", s.loc.String()),
	)
}

// Stop halts the sweep and all pending timers. Armed definitions are not
// persisted here; the store's next_send column is the durable state and
// the sweep re-arms from it on the next Start.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	c := s.c
	s.c = nil
	sup := s.sup
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	for _, t := range s.timers {
		_ = t.Stop()
	}
	s.timers = map[uuid.UUID]*time.Timer{}
	s.armVer = map[uuid.UUID]uint64{}
	s.armAt = map[uuid.UUID]time.Time{}
	s.tmu.Unlock()

	if sup != nil {
		sup.Cancel()
	}
	go func() {
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.q = nil
		s.stopCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("dispatcher stopped")
	case <-ctx.Done():
		s.log.Warn("dispatcher stop timed out", logx.Err(ctx.Err()))
	}
}

func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	if !running {
		return
	}
	if prev.Workers != cfg.Workers || prev.QueueSize != cfg.QueueSize ||
		prev.SweepEvery != cfg.SweepEvery || prev.Timezone != cfg.Timezone ||
		prev.Enabled != cfg.Enabled {
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Arm schedules exactly one future fire for the item. Re-arming the same id
// replaces the previous timer; a stale callback from the replaced timer is
// ignored by the version check.
func (s *Service) Arm(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	runAt := at.In(loc)

	s.tmu.Lock()
	if t, ok := s.timers[id]; ok {
		_ = t.Stop()
		delete(s.timers, id)
	}
	ver := s.armVer[id] + 1
	s.armVer[id] = ver
	s.armAt[id] = runAt

	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}
	localVer := ver
	timer := time.AfterFunc(delay, func() {
		s.tmu.Lock()
		if s.armVer[id] != localVer {
			s.tmu.Unlock()
			return
		}
		delete(s.timers, id)
		delete(s.armVer, id)
		delete(s.armAt, id)
		s.tmu.Unlock()
		s.enqueue(id)
	})
	s.timers[id] = timer
	s.tmu.Unlock()

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "dispatch.armed", Time: time.Now(), Data: FireEvent{ID: id, At: runAt}})
	}
	s.log.Debug("armed", logx.String("id", id.String()), logx.Time("at", runAt))
}

// Disarm cancels a pending fire, if any. Safe on unknown ids.
func (s *Service) Disarm(id uuid.UUID) {
	s.tmu.Lock()
	if t, ok := s.timers[id]; ok {
		_ = t.Stop()
		delete(s.timers, id)
	}
	delete(s.armVer, id)
	delete(s.armAt, id)
	s.tmu.Unlock()
	s.log.Debug("disarmed", logx.String("id", id.String()))
}

// Armed reports whether the item currently has a pending timer.
func (s *Service) Armed(id uuid.UUID) bool {
	s.tmu.Lock()
	_, ok := s.timers[id]
	s.tmu.Unlock()
	return ok
}

func (s *Service) enqueue(id uuid.UUID) {
	s.mu.Lock()
	q := s.q
	stopping := s.stopDone != nil
	s.mu.Unlock()
	if q == nil || stopping {
		return
	}
	select {
	case q <- job{id: id, enqueuedAt: time.Now()}:
	default:
		s.log.Warn("fire dropped: queue full", logx.String("id", id.String()))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "dispatch.dropped", Time: time.Now(), Data: FireEvent{ID: id, Error: "queue_full"}})
		}
	}
}

func (s *Service) worker(ctx context.Context, stopCh chan struct{}, queue chan job) {
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case j := <-queue:
			s.run(ctx, j)
		}
	}
}

func (s *Service) run(ctx context.Context, j job) {
	s.mu.Lock()
	timeout := s.cfg.DefaultTimeout
	fire := s.fire
	s.mu.Unlock()
	if fire == nil {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := fire(fctx, j.id)
	took := time.Since(started)

	ev := FireEvent{ID: j.id, At: started, Duration: took}
	typ := "dispatch.fired"
	if err != nil {
		ev.Error = err.Error()
		typ = "dispatch.error"
		s.log.Error("fire failed",
			logx.String("id", j.id.String()),
			logx.Duration("took", took),
			logx.Err(err),
		)
	} else {
		s.log.Debug("fired", logx.String("id", j.id.String()), logx.Duration("took", took))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: started, Data: ev})
	}
}

// sweep re-arms everything whose next_send already passed. Items with a
// live timer are left alone so a fire is never queued twice.
func (s *Service) sweep() {
	if s.due == nil {
		return
	}
	s.mu.Lock()
	stopping := s.stopCh == nil || s.stopDone != nil
	s.mu.Unlock()
	if stopping {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	now := time.Now()
	items, err := s.due.DueEmails(ctx, now)
	if err != nil {
		s.log.Warn("sweep query failed", logx.Err(err))
		return
	}
	armed := 0
	for _, e := range items {
		if s.Armed(e.ID) {
			continue
		}
		at := now
		if e.NextSendAt != nil {
			at = *e.NextSendAt
		}
		s.Arm(e.ID, at)
		armed++
	}
	if armed > 0 {
		s.log.Info("sweep re-armed overdue items", logx.Int("count", armed))
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
