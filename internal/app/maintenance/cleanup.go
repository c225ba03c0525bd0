package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/campfirehq/campfire/internal/services"
	"github.com/campfirehq/campfire/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultRecalculateSpec    = "@hourly"
	defaultAuditSpec          = "@daily"
)

// Cleaner coordinates background maintenance: repairing denormalized category
// counts and pruning stale audit logs.
type Cleaner struct {
	categories *services.CategoryService
	audit      *services.AuditService
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger
	enabled    bool
	retention  int

	recalculateSchedule string
	auditSchedule       string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithRecalculateSchedule overrides the cron schedule for counter repair.
func WithRecalculateSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.recalculateSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron schedule for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding job being skipped.
func NewCleaner(categories *services.CategoryService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		categories:          categories,
		audit:               audit,
		now:                 time.Now,
		retention:           defaultAuditRetentionDays,
		recalculateSchedule: defaultRecalculateSpec,
		auditSchedule:       defaultAuditSpec,
		log:                 logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.categories != nil || cleaner.audit != nil

	return cleaner
}

// Start registers maintenance jobs with the cron scheduler and launches it if at
// least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.categories != nil {
		if _, err := c.cron.AddFunc(c.recalculateSchedule, func() {
			ctx := context.Background()
			results, err := c.categories.Recalculate(ctx, "")
			if err != nil {
				c.log.Warn("category recount failed", zap.Error(err))
				return
			}
			for _, result := range results {
				if result.Previous != result.Current {
					c.log.Info("category count repaired",
						zap.String("category_id", result.CategoryID),
						zap.Int64("previous", result.Previous),
						zap.Int64("current", result.Current),
					)
				}
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			ctx := context.Background()
			cutoff := c.now().AddDate(0, 0, -c.retention)
			if _, err := c.audit.PruneBefore(ctx, cutoff); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.categories != nil {
		if _, err := c.categories.Recalculate(ctx, ""); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		cutoff := c.now().AddDate(0, 0, -c.retention)
		if _, err := c.audit.PruneBefore(ctx, cutoff); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
