package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 20, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5432, cfg.Database.Postgres.Port)

	require.Equal(t, 30, cfg.Matching.MaxPoolSize)
	require.Equal(t, 12*time.Hour, cfg.Waitlist.TTL)
	require.Equal(t, 10*time.Hour, cfg.Waitlist.WarningAfter)
	require.False(t, cfg.Waitlist.InProcessTimers)
	require.Equal(t, []string{"writing", "fitness"}, cfg.Waitlist.SprintTypes)

	require.Equal(t, 72*time.Hour, cfg.Sessions.Cadence)
	require.Equal(t, 6*time.Hour, cfg.Sessions.FirstSessionLead)
	require.Equal(t, "@hourly", cfg.Sessions.CadenceSchedule)

	require.Equal(t, "https://video.example.com", cfg.Video.BaseURL)
	require.Equal(t, "jitsi", cfg.Video.Provider)

	require.True(t, cfg.Notifications.SMTP.Enabled)
	require.Equal(t, 2525, cfg.Notifications.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Notifications.SMTP.Timeout)
	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)
	require.Equal(t, 2*time.Hour, cfg.Monitoring.Health.MaintenanceMaxAge)
	require.True(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 24*time.Hour, cfg.Waitlist.TTL)
	require.Equal(t, 20*time.Hour, cfg.Waitlist.WarningAfter)
	require.Equal(t, 168*time.Hour, cfg.Sessions.Cadence)
	require.True(t, cfg.Waitlist.InProcessTimers)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, 6*time.Hour, cfg.Monitoring.Health.MaintenanceMaxAge)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("STRIDE_SERVER_PORT", "9191")
	t.Setenv("STRIDE_WAITLIST_TTL", "48h")
	t.Setenv("STRIDE_DATABASE_DSN", "file:override.db")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, 48*time.Hour, cfg.Waitlist.TTL)
	require.Equal(t, "file:override.db", cfg.Database.DSN)
}

func TestValidateRejectsWarningAfterTTL(t *testing.T) {
	t.Setenv("STRIDE_WAITLIST_WARNING_AFTER", "30h")

	_, err := LoadConfig(t.TempDir())
	require.ErrorContains(t, err, "warning_after")
}

func TestConfigAdapters(t *testing.T) {
	cfg := Config{
		Matching: MatchingConfig{MaxSuggestions: 4},
		Waitlist: WaitlistConfig{TTL: 24 * time.Hour, WarningAfter: 20 * time.Hour, SweepConcurrency: 2, InProcessTimers: true},
		Sessions: SessionConfig{Cadence: 168 * time.Hour, FirstSessionLead: 24 * time.Hour},
		Video:    VideoConfig{Provider: "zoom", RoomPrefix: "pods"},
		Notifications: NotificationConfig{
			Enabled: false,
			SMTP:    SMTPConfig{Enabled: true, Host: "smtp.local", Port: 25},
		},
	}

	waitlist := cfg.Waitlist.ServiceConfig(cfg.Matching)
	require.Equal(t, 4, waitlist.MaxSuggestions)
	require.True(t, waitlist.InProcessTimers)

	sessions := cfg.Sessions.ServiceConfig(cfg.Video)
	require.Equal(t, "zoom", sessions.Video.Provider)
	require.Equal(t, 24*time.Hour, sessions.FirstSessionLead)

	smtp := cfg.Notifications.SMTPSettings()
	require.False(t, smtp.Enabled, "smtp is disabled when notifications are off")
	require.Equal(t, "smtp.local", smtp.Host)
}
