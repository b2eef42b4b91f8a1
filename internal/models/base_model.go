package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides shared fields for all persistent models.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	return nil
}

// NewID returns a fresh identifier in the format used by every table.
func NewID() string {
	return uuid.NewString()
}

// All lists every model managed by migrations, in dependency order.
func All() []any {
	return []any{
		&User{},
		&Pod{},
		&PodMembership{},
		&Session{},
		&SessionAttendance{},
		&SessionTransition{},
		&WaitlistEntry{},
		&Notification{},
		&AuditLog{},
	}
}
