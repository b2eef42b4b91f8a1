package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/mail"
)

// Config represents the runtime configuration for the Stride pod service.
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Matching      MatchingConfig     `mapstructure:"matching"`
	Waitlist      WaitlistConfig     `mapstructure:"waitlist"`
	Reminders     ReminderConfig     `mapstructure:"reminders"`
	Sessions      SessionConfig      `mapstructure:"sessions"`
	Video         VideoConfig        `mapstructure:"video"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Maintenance   MaintenanceConfig  `mapstructure:"maintenance"`
	Monitoring    MonitoringConfig   `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per client ip and path.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MatchingConfig bounds the formation engine search.
type MatchingConfig struct {
	MaxPoolSize    int `mapstructure:"max_pool_size"`
	MaxSuggestions int `mapstructure:"max_suggestions"`
}

// WaitlistConfig controls the matching window and its sweep.
type WaitlistConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	WarningAfter     time.Duration `mapstructure:"warning_after"`
	SweepSchedule    string        `mapstructure:"sweep_schedule"`
	SweepConcurrency int           `mapstructure:"sweep_concurrency"`
	InProcessTimers  bool          `mapstructure:"in_process_timers"`
	SprintTypes      []string      `mapstructure:"sprint_types"`
}

// ReminderConfig controls the reminder sweep.
type ReminderConfig struct {
	SweepSchedule string `mapstructure:"sweep_schedule"`
	Concurrency   int    `mapstructure:"concurrency"`
}

// SessionConfig controls recurring session scheduling.
type SessionConfig struct {
	Cadence          time.Duration `mapstructure:"cadence"`
	FirstSessionLead time.Duration `mapstructure:"first_session_lead"`
	CadenceSchedule  string        `mapstructure:"cadence_schedule"`
}

// VideoConfig configures meeting link provisioning.
type VideoConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url"`
	RoomPrefix string `mapstructure:"room_prefix"`
}

// NotificationConfig toggles notification channels.
type NotificationConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig controls audit retention.
type MaintenanceConfig struct {
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
}

// MonitoringConfig enables the metrics and probe endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health"`
}

// HealthConfig toggles the detailed probe endpoints. /health is always served.
type HealthConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	DatabaseTimeout   time.Duration `mapstructure:"database_timeout"`
	MaintenanceMaxAge time.Duration `mapstructure:"maintenance_max_age"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("STRIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects combinations the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Waitlist.TTL <= 0 {
		return errors.New("config: waitlist.ttl must be positive")
	}
	if c.Waitlist.WarningAfter <= 0 || c.Waitlist.WarningAfter >= c.Waitlist.TTL {
		return errors.New("config: waitlist.warning_after must be positive and shorter than waitlist.ttl")
	}
	if c.Sessions.Cadence <= 0 {
		return errors.New("config: sessions.cadence must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit.requests", 100)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/stride.sqlite")
	v.SetDefault("database.dsn", "")
	for _, engine := range []string{"postgres", "mysql"} {
		v.SetDefault("database."+engine+".host", "")
		v.SetDefault("database."+engine+".database", "stride")
		v.SetDefault("database."+engine+".username", "")
		v.SetDefault("database."+engine+".password", "")
	}
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("matching.max_pool_size", 50)
	v.SetDefault("matching.max_suggestions", 5)

	v.SetDefault("waitlist.ttl", "24h")
	v.SetDefault("waitlist.warning_after", "20h")
	v.SetDefault("waitlist.sweep_schedule", "@every 5m")
	v.SetDefault("waitlist.sweep_concurrency", 4)
	v.SetDefault("waitlist.in_process_timers", true)
	v.SetDefault("waitlist.sprint_types", []string{})

	v.SetDefault("reminders.sweep_schedule", "@every 1m")
	v.SetDefault("reminders.concurrency", 8)

	v.SetDefault("sessions.cadence", "168h")
	v.SetDefault("sessions.first_session_lead", "24h")
	v.SetDefault("sessions.cadence_schedule", "@hourly")

	v.SetDefault("video.provider", "jitsi")
	v.SetDefault("video.base_url", "https://meet.jit.si")
	v.SetDefault("video.room_prefix", "stride")

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.smtp.enabled", false)
	v.SetDefault("notifications.smtp.host", "")
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.username", "")
	v.SetDefault("notifications.smtp.password", "")
	v.SetDefault("notifications.smtp.from", "")
	v.SetDefault("notifications.smtp.use_tls", true)
	v.SetDefault("notifications.smtp.timeout", "10s")

	v.SetDefault("maintenance.audit_retention_days", 90)
	v.SetDefault("maintenance.audit_schedule", "@daily")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health.enabled", true)
	v.SetDefault("monitoring.health.database_timeout", "2s")
	v.SetDefault("monitoring.health.maintenance_max_age", "6h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// ServiceConfig converts the section into the waitlist service options.
func (c WaitlistConfig) ServiceConfig(matching MatchingConfig) services.WaitlistConfig {
	return services.WaitlistConfig{
		TTL:              c.TTL,
		WarningAfter:     c.WarningAfter,
		MaxSuggestions:   matching.MaxSuggestions,
		SweepConcurrency: c.SweepConcurrency,
		InProcessTimers:  c.InProcessTimers,
	}
}

// ServiceConfig converts the section into the session service options.
func (c SessionConfig) ServiceConfig(video VideoConfig) services.SessionConfig {
	return services.SessionConfig{
		Cadence:          c.Cadence,
		FirstSessionLead: c.FirstSessionLead,
		Video: services.VideoConfig{
			Provider:   video.Provider,
			RoomPrefix: video.RoomPrefix,
		},
	}
}

// SMTPSettings converts the notification email settings into mailer options.
func (c NotificationConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.Enabled && c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}
