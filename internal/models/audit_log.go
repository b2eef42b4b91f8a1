package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records pod lifecycle events. Writes are best-effort.
type AuditLog struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	ActorID    *string        `gorm:"type:uuid;index" json:"actor_id"`
	Action     string         `gorm:"not null;index" json:"action"`
	Resource   string         `gorm:"index" json:"resource"`
	ResourceID string         `gorm:"type:uuid;index" json:"resource_id"`
	Result     string         `gorm:"not null" json:"result"`
	RequestID  string         `gorm:"type:varchar(64)" json:"request_id,omitempty"`
	IPAddress  string         `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent  string         `gorm:"type:varchar(255)" json:"user_agent,omitempty"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
