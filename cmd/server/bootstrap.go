package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/api"
	"github.com/kartheek-penagamuri/stride-sub000/internal/app"
	"github.com/kartheek-penagamuri/stride-sub000/internal/app/maintenance"
	"github.com/kartheek-penagamuri/stride-sub000/internal/database"
	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/monitoring"
	"github.com/kartheek-penagamuri/stride-sub000/internal/monitoring/checks"
	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/logger"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Audit         *services.AuditService
	Notifications *services.NotificationService
	Pods          *services.PodService
	Sessions      *services.SessionService
	Waitlist      *services.WaitlistService
	Reminders     *services.ReminderService
	Scheduler     *maintenance.Scheduler
	Jobs          *monitoring.JobTracker
	Health        *monitoring.HealthManager
	Router        *gin.Engine
}

// bootstrapRuntime initialises the database, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if err := stack.wireServices(cfg); err != nil {
		return nil, err
	}

	if cfg.Waitlist.InProcessTimers {
		if err := stack.Waitlist.Restore(ctx, cfg.Waitlist.SprintTypes...); err != nil {
			log.Warn("restore waitlist timers", zap.Error(err))
		}
	}

	stack.Jobs = monitoring.NewJobTracker(nil)
	stack.Health = monitoring.NewHealthManager()
	stack.Health.RegisterReadiness(checks.Database(stack.DB, cfg.Monitoring.Health.DatabaseTimeout))
	stack.Health.RegisterReadiness(checks.Maintenance(stack.Jobs, cfg.Monitoring.Health.MaintenanceMaxAge))

	stack.Scheduler = maintenance.NewScheduler(maintenance.Jobs{
		Reminders: stack.Reminders,
		Waitlist:  stack.Waitlist,
		Sessions:  stack.Sessions,
		Audit:     stack.Audit,
	},
		maintenance.WithReminderSchedule(cfg.Reminders.SweepSchedule),
		maintenance.WithWaitlistSchedule(cfg.Waitlist.SweepSchedule),
		maintenance.WithCadenceSchedule(cfg.Sessions.CadenceSchedule),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithRunRecorder(stack.Jobs),
	)
	if err := stack.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:            stack.DB,
		Pods:          stack.Pods,
		Sessions:      stack.Sessions,
		Waitlist:      stack.Waitlist,
		Notifications: stack.Notifications,
		Audit:         stack.Audit,
		Health:        stack.Health,
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) wireServices(cfg *app.Config) error {
	st, err := store.NewGormStore(s.DB)
	if err != nil {
		return err
	}
	users, err := store.NewGormUserDirectory(s.DB)
	if err != nil {
		return err
	}

	if s.Audit, err = services.NewAuditService(s.DB); err != nil {
		return fmt.Errorf("initialise audit service: %w", err)
	}

	var notifyOpts []services.NotificationOption
	if smtp := cfg.Notifications.SMTPSettings(); smtp.Enabled {
		mailer, err := mail.NewSMTPMailer(smtp)
		if err != nil {
			return fmt.Errorf("initialise mailer: %w", err)
		}
		notifyOpts = append(notifyOpts, services.WithMailer(mailer, smtp.From))
	}
	if s.Notifications, err = services.NewNotificationService(s.DB, users, notifyOpts...); err != nil {
		return fmt.Errorf("initialise notification service: %w", err)
	}
	var notifier services.Notifier = s.Notifications
	if !cfg.Notifications.Enabled {
		notifier = services.NopNotifier{}
	}

	if s.Pods, err = services.NewPodService(st, users, services.WithPodAuditService(s.Audit)); err != nil {
		return fmt.Errorf("initialise pod service: %w", err)
	}

	video, err := services.NewLinkVideoProvisioner(cfg.Video.BaseURL, cfg.Video.Provider)
	if err != nil {
		return fmt.Errorf("initialise video provisioner: %w", err)
	}
	s.Sessions, err = services.NewSessionService(st, video, services.WithSessionConfig(cfg.Sessions.ServiceConfig(cfg.Video)))
	if err != nil {
		return fmt.Errorf("initialise session service: %w", err)
	}

	source, err := services.NewStorePoolSource(st, users)
	if err != nil {
		return err
	}
	engine, err := matching.NewEngine(source, matching.WithMaxPoolSize(cfg.Matching.MaxPoolSize))
	if err != nil {
		return fmt.Errorf("initialise matching engine: %w", err)
	}
	s.Waitlist, err = services.NewWaitlistService(st, users, engine, s.Pods, notifier,
		services.WithWaitlistConfig(cfg.Waitlist.ServiceConfig(cfg.Matching)))
	if err != nil {
		return fmt.Errorf("initialise waitlist service: %w", err)
	}

	s.Reminders, err = services.NewReminderService(s.Sessions, st, notifier,
		services.WithReminderConcurrency(cfg.Reminders.Concurrency))
	if err != nil {
		return fmt.Errorf("initialise reminder service: %w", err)
	}
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		select {
		case <-s.Scheduler.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown", zap.Error(ctx.Err()))
		}
	}

	if s.Waitlist != nil {
		s.Waitlist.Shutdown()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
