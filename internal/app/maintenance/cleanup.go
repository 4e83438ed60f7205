package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lucasberan/keygate/internal/audit"
	"github.com/lucasberan/keygate/internal/auth"
	"github.com/lucasberan/keygate/internal/twofactor"
	"github.com/lucasberan/keygate/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultChallengeSpec      = "@every 5m"
	defaultStepUpSpec         = "@hourly"
	defaultAuditSpec          = "@daily"
)

// Cleaner coordinates background maintenance: purging expired login
// challenges and step-up grants, and pruning stale audit logs.
type Cleaner struct {
	challenges *twofactor.Coordinator
	stepUp     *auth.StepUpGate
	audits     *audit.Service
	cron       *cron.Cron
	log        *zap.Logger
	retention  int

	challengeSchedule string
	stepUpSchedule    string
	auditSchedule     string
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

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithChallengeSchedule overrides the cron specification for challenge purging.
func WithChallengeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.challengeSchedule = spec
		}
	}
}

// WithStepUpSchedule overrides the cron specification for step-up grant purging.
func WithStepUpSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.stepUpSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(challenges *twofactor.Coordinator, stepUp *auth.StepUpGate, audits *audit.Service, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		challenges:        challenges,
		stepUp:            stepUp,
		audits:            audits,
		retention:         defaultAuditRetentionDays,
		challengeSchedule: defaultChallengeSpec,
		stepUpSchedule:    defaultStepUpSpec,
		auditSchedule:     defaultAuditSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.challenges != nil {
		if _, err := c.cron.AddFunc(c.challengeSchedule, func() {
			if removed := c.challenges.PurgeExpired(); removed > 0 {
				c.log.Debug("purged expired challenges", zap.Int("count", removed))
			}
		}); err != nil {
			return err
		}
	}

	if c.stepUp != nil {
		if _, err := c.cron.AddFunc(c.stepUpSchedule, func() {
			if removed := c.stepUp.PurgeExpired(); removed > 0 {
				c.log.Debug("purged expired step-up grants", zap.Int("count", removed))
			}
		}); err != nil {
			return err
		}
	}

	if c.audits != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audits.CleanupOlderThan(context.Background(), c.retention); err != nil {
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

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.challenges != nil {
		c.challenges.PurgeExpired()
	}
	if c.stepUp != nil {
		c.stepUp.PurgeExpired()
	}
	if c.audits != nil && c.retention > 0 {
		if _, err := c.audits.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
