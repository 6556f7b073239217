// Package scheduler runs the reservation sweep on an interval.  Replicas
// coordinate through a Redis lock so only one of them sweeps at a time.
package scheduler

import (
    "context"
    "time"

    "github.com/go-co-op/gocron/v2"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/haunted-house-queue/internal/allocation"
)

// LockKey is the Redis key guarding the sweep.
const LockKey = "hhq:lock:reconcile"

// Reconciler is implemented by *allocation.Engine.
type Reconciler interface {
    ReconcileExpirations(ctx context.Context) (allocation.SweepResult, error)
}

// Options configures a Sweeper.
type Options struct {
    Interval time.Duration
    LockTTL  time.Duration
}

// Sweeper schedules Reconciler runs.
type Sweeper struct {
    target Reconciler
    lock   *Lock
    log    logrus.FieldLogger
    opts   Options

    sched  gocron.Scheduler
    ctx    context.Context
    cancel context.CancelFunc
}

// New builds a Sweeper.  rdb may be nil.
func New(target Reconciler, rdb *redis.Client, opts Options, log logrus.FieldLogger) (*Sweeper, error) {
    if opts.Interval <= 0 {
        opts.Interval = 30 * time.Second
    }
    if opts.LockTTL <= 0 || opts.LockTTL > opts.Interval {
        opts.LockTTL = opts.Interval
    }
    sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
    if err != nil {
        return nil, err
    }
    ctx, cancel := context.WithCancel(context.Background())
    s := &Sweeper{
        target: target,
        lock:   NewLock(rdb, LockKey, opts.LockTTL),
        log:    log.WithField("component", "sweeper"),
        opts:   opts,
        sched:  sched,
        ctx:    ctx,
        cancel: cancel,
    }
    _, err = sched.NewJob(
        gocron.DurationJob(opts.Interval),
        gocron.NewTask(s.tick),
        gocron.WithName("reconcile-reservations"),
        gocron.WithSingletonMode(gocron.LimitModeReschedule),
    )
    if err != nil {
        cancel()
        return nil, err
    }
    return s, nil
}

func (s *Sweeper) tick() {
    if _, _, err := s.RunOnce(s.ctx); err != nil && s.ctx.Err() == nil {
        s.log.WithError(err).Error("scheduled reconcile failed")
    }
}

// RunOnce sweeps if the lock is free.  ran is false when another
// replica holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) (res allocation.SweepResult, ran bool, err error) {
    release, ok, err := s.lock.Acquire(ctx)
    if err != nil {
        // Overlapping sweeps are safe; the lock only saves duplicate work.
        s.log.WithError(err).Warn("reconcile lock unavailable")
        release, ok = func() {}, true
    }
    if !ok {
        s.log.Debug("reconcile skipped, lock held elsewhere")
        return res, false, nil
    }
    defer release()

    ctx, cancel := context.WithTimeout(ctx, s.opts.LockTTL)
    defer cancel()
    res, err = s.target.ReconcileExpirations(ctx)
    return res, true, err
}

// Start begins scheduling.  The first run happens one interval later.
func (s *Sweeper) Start() {
    s.sched.Start()
    s.log.WithField("interval", s.opts.Interval.String()).Info("reconcile scheduler started")
}

// TokenPurger is implemented by *repository.TokenRepo.
type TokenPurger interface {
    PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AddTokenPurge deletes refresh tokens dead for longer than retain, once
// per every.  It runs on every replica; the delete is idempotent.
func (s *Sweeper) AddTokenPurge(p TokenPurger, every, retain time.Duration) error {
    _, err := s.sched.NewJob(
        gocron.DurationJob(every),
        gocron.NewTask(func() { s.purgeTokens(p, retain) }),
        gocron.WithName("purge-refresh-tokens"),
        gocron.WithSingletonMode(gocron.LimitModeReschedule),
    )
    return err
}

func (s *Sweeper) purgeTokens(p TokenPurger, retain time.Duration) {
    ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
    defer cancel()
    n, err := p.PurgeExpired(ctx, time.Now().Add(-retain))
    if err != nil {
        s.log.WithError(err).Warn("refresh token purge failed")
        return
    }
    if n > 0 {
        s.log.WithField("deleted", n).Info("purged refresh tokens")
    }
}

// Shutdown stops scheduling and waits for a running sweep to finish.
func (s *Sweeper) Shutdown() error {
    s.cancel()
    return s.sched.Shutdown()
}
