package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/logger"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/metrics"
)

const (
	defaultAuditRetentionDays = 90
	defaultReminderSpec       = "@every 1m"
	defaultWaitlistSpec       = "@every 5m"
	defaultCadenceSpec        = "@hourly"
	defaultAuditSpec          = "@daily"

	// JobReminders and the other job names label the MaintenanceJobs counter.
	JobReminders      = "reminders"
	JobWaitlistSweep  = "waitlist_sweep"
	JobSessionCadence = "session_cadence"
	JobAuditRetention = "audit_retention"
)

// ReminderSender dispatches due session reminders.
type ReminderSender interface {
	SendDue(ctx context.Context) (services.ReminderStats, error)
}

// WaitlistSweeper resolves waitlist entries past their warning or expiry time.
type WaitlistSweeper interface {
	ProcessExpiredEntries(ctx context.Context) (services.SweepStats, error)
}

// SessionPlanner keeps the next session of every ACTIVE pod on the calendar.
type SessionPlanner interface {
	ScheduleUpcoming(ctx context.Context) (int, error)
}

// AuditPruner removes audit rows past the retention window.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// RunRecorder observes every job execution.
type RunRecorder interface {
	RecordRun(job string, duration time.Duration, err error)
}

// Jobs groups the periodic work. Nil members are skipped.
type Jobs struct {
	Reminders ReminderSender
	Waitlist  WaitlistSweeper
	Sessions  SessionPlanner
	Audit     AuditPruner
}

// Scheduler runs the reminder, waitlist, cadence and retention sweeps on cron schedules.
type Scheduler struct {
	jobs      Jobs
	cron      *cron.Cron
	log       *zap.Logger
	retention int
	timeout   time.Duration
	recorder  RunRecorder

	reminderSchedule string
	waitlistSchedule string
	cadenceSchedule  string
	auditSchedule    string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.retention = days
		}
	}
}

// WithReminderSchedule overrides the cron specification for the reminder sweep.
func WithReminderSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.reminderSchedule = spec
		}
	}
}

// WithWaitlistSchedule overrides the cron specification for the waitlist sweep.
func WithWaitlistSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.waitlistSchedule = spec
		}
	}
}

// WithCadenceSchedule overrides the cron specification for recurring session planning.
func WithCadenceSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.cadenceSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.auditSchedule = spec
		}
	}
}

// WithRunRecorder reports each job outcome to r, typically the health tracker.
func WithRunRecorder(r RunRecorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithJobTimeout bounds a single job run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewScheduler constructs a Scheduler with default schedules.
func NewScheduler(jobs Jobs, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:             jobs,
		log:              logger.WithModule("maintenance"),
		retention:        defaultAuditRetentionDays,
		timeout:          5 * time.Minute,
		reminderSchedule: defaultReminderSpec,
		waitlistSchedule: defaultWaitlistSpec,
		cadenceSchedule:  defaultCadenceSpec,
		auditSchedule:    defaultAuditSpec,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		// SkipIfStillRunning keeps a slow sweep from overlapping its next tick.
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	}
	return s
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (s *Scheduler) registered() []job {
	var jobs []job
	if s.jobs.Reminders != nil {
		jobs = append(jobs, job{JobReminders, s.reminderSchedule, func(ctx context.Context) error {
			stats, err := s.jobs.Reminders.SendDue(ctx)
			if stats.Sessions > 0 {
				s.log.Info("reminders sent", zap.Int("sessions", stats.Sessions), zap.Int("notifications", stats.Notifications))
			}
			return err
		}})
	}
	if s.jobs.Waitlist != nil {
		jobs = append(jobs, job{JobWaitlistSweep, s.waitlistSchedule, func(ctx context.Context) error {
			stats, err := s.jobs.Waitlist.ProcessExpiredEntries(ctx)
			if stats.Warned+stats.Expired+stats.Matched > 0 {
				s.log.Info("waitlist swept",
					zap.Int("warned", stats.Warned),
					zap.Int("expired", stats.Expired),
					zap.Int("matched", stats.Matched))
			}
			return err
		}})
	}
	if s.jobs.Sessions != nil {
		jobs = append(jobs, job{JobSessionCadence, s.cadenceSchedule, func(ctx context.Context) error {
			created, err := s.jobs.Sessions.ScheduleUpcoming(ctx)
			if created > 0 {
				s.log.Info("sessions scheduled", zap.Int("created", created))
			}
			return err
		}})
	}
	if s.jobs.Audit != nil && s.retention > 0 {
		jobs = append(jobs, job{JobAuditRetention, s.auditSchedule, func(ctx context.Context) error {
			_, err := s.jobs.Audit.CleanupOlderThan(ctx, s.retention)
			return err
		}})
	}
	return jobs
}

// Start registers the configured jobs and launches the cron scheduler when at least one exists.
func (s *Scheduler) Start() error {
	jobs := s.registered()
	if len(jobs) == 0 {
		return nil
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.schedule, func() {
			_ = s.execute(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s %q: %w", j.name, j.schedule, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every configured job sequentially and aggregates their failures.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	for _, j := range s.registered() {
		if err := s.execute(ctx, j); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", j.name, err))
		}
	}
	return errs
}

func (s *Scheduler) execute(ctx context.Context, j job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := j.run(ctx)
	if s.recorder != nil {
		s.recorder.RecordRun(j.name, time.Since(start), err)
	}
	metrics.MaintenanceJobs.WithLabelValues(j.name, metrics.ResultLabel(err)).Inc()
	if err != nil {
		s.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
	}
	return err
}
