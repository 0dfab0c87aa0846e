// Package scheduler drives the background money movement: the payout
// sweeps, refund retries, and stale-booking cleanup. Every job claims work
// with row locks and re-enters the same idempotent settlement path the
// operator endpoints use, so overlapping runs are safe.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/config"
	"github.com/mentorhive/mentorhive/internal/observability/metrics"
	"github.com/mentorhive/mentorhive/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	refunddomain "github.com/mentorhive/mentorhive/internal/refund/domain"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")
var ErrUnknownJob = errors.New("scheduler_unknown_job")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	SettlementSvc settlementdomain.Service
	RefundSvc     refunddomain.Service
	SettleRepo    settlementdomain.Repository
	Bookings      bookingdomain.Repository
	Policy        *config.PolicyHolder
	Locker        *ratelimit.Locker `optional:"true"`
	Config        Config            `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	settlementSvc settlementdomain.Service
	refundSvc     refunddomain.Service
	settleRepo    settlementdomain.Repository
	bookings      bookingdomain.Repository
	policy        *config.PolicyHolder
	locker        *ratelimit.Locker

	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.SettlementSvc == nil || p.RefundSvc == nil || p.SettleRepo == nil ||
		p.Bookings == nil || p.Policy == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		settlementSvc: p.SettlementSvc,
		refundSvc:     p.RefundSvc,
		settleRepo:    p.SettleRepo,
		bookings:      p.Bookings,
		policy:        p.Policy,
		locker:        p.Locker,
		lastRun:       map[string]time.Time{},
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, "scheduler:"+name, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("scheduler.lock.unavailable", zap.String("job", name), zap.Error(err))
		} else if !ok {
			metrics.Scheduler().IncJobSkipped(name)
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), "scheduler:"+name, token); err != nil {
					s.log.Warn("scheduler.lock.release_failed", zap.String("job", name), zap.Error(err))
				}
			}()
		}
	}

	ctx, run, owner := s.ensureJobRun(ctx, name, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
	}
	schedMetrics := metrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("scheduler.job.timeout",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every due job a single time. The master tick and the
// operator trigger both land here.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now()
	var errs []error
	for _, job := range s.jobs() {
		if !s.due(job.name, job.interval, now) {
			continue
		}
		if job.gated && !s.policy.Get().InBusinessHours(now) {
			metrics.Scheduler().IncJobSkipped(job.name)
			continue
		}
		s.lastRun[job.name] = now
		if err := s.runJob(ctx, job.name, s.cfg.JobTimeout, job.fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunJob forces one named job immediately, ignoring its interval. The
// operator endpoint uses it.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, job := range s.jobs() {
		if job.name != name {
			continue
		}
		s.lastRun[name] = s.clock.Now()
		return s.runJob(ctx, name, s.cfg.JobTimeout, job.fn)
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler.start", zap.Duration("interval", s.cfg.RunInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler.stop")
			return
		case tick := <-ticker.C:
			metrics.Scheduler().ObserveRunLoopLag(time.Since(tick))
			if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("scheduler.run_once.failed", zap.Error(err))
			}
		}
	}
}

type jobSpec struct {
	name     string
	interval time.Duration
	// gated jobs only run inside configured business hours.
	gated bool
	fn    func(context.Context) error
}

func (s *Scheduler) jobs() []jobSpec {
	return []jobSpec{
		{metrics.JobPayoutSweep, s.cfg.PayoutInterval, false, s.PayoutSweepJob},
		{metrics.JobBusinessHoursSweep, s.cfg.BusinessSweepInterval, true, s.BusinessHoursSweepJob},
		{metrics.JobColdMessagePayout, s.cfg.PayoutInterval, false, s.ColdMessagePayoutJob},
		{metrics.JobAutoCancel, s.cfg.AutoCancelInterval, false, s.AutoCancelJob},
		{metrics.JobRefundRetry, s.cfg.RefundRetryInterval, false, s.RefundRetryJob},
	}
}

func (s *Scheduler) due(name string, interval time.Duration, now time.Time) bool {
	last, ok := s.lastRun[name]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}
