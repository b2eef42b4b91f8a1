package models

import (
	"time"

	"gorm.io/datatypes"
)

// WaitlistEntry is one user's time-boxed request to be matched into a pod.
type WaitlistEntry struct {
	BaseModel

	UserID            string                           `gorm:"type:uuid;not null;index:idx_waitlist_user_sprint" json:"user_id"`
	SprintType        string                           `gorm:"type:varchar(128);not null;index:idx_waitlist_user_sprint;index:idx_waitlist_sprint_status" json:"sprint_type"`
	Preferences       datatypes.JSONType[Preferences]  `json:"preferences"`
	Timezone          string                           `gorm:"type:varchar(64)" json:"timezone"`
	Status            WaitlistStatus                   `gorm:"type:varchar(16);not null;index:idx_waitlist_sprint_status" json:"status"`
	WarningAt         time.Time                        `gorm:"not null;index" json:"warning_at"`
	ExpiresAt         time.Time                        `gorm:"not null;index" json:"expires_at"`
	WarningSentAt     *time.Time                       `json:"warning_sent_at,omitempty"`
	ResolvedAt        *time.Time                       `json:"resolved_at,omitempty"`
	MatchedPodID      *string                          `gorm:"type:uuid" json:"matched_pod_id,omitempty"`
	NotificationsSent int                              `gorm:"not null;default:0" json:"notifications_sent"`
	LastNotification  string                           `gorm:"type:varchar(64)" json:"last_notification,omitempty"`
}

// Candidate converts the entry into a matching candidate.
func (e *WaitlistEntry) Candidate() Candidate {
	return Candidate{
		UserID:      e.UserID,
		SprintType:  e.SprintType,
		Preferences: e.Preferences.Data(),
		Timezone:    e.Timezone,
		CreatedAt:   e.CreatedAt,
	}
}
