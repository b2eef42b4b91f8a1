package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is the in-app record of one outbound message to a user.
type Notification struct {
	BaseModel

	UserID      string         `gorm:"type:uuid;index" json:"user_id"`
	Kind        string         `gorm:"type:varchar(64);not null;index" json:"kind"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Message     string         `gorm:"type:text" json:"message"`
	Priority    string         `gorm:"type:varchar(16);default:'normal'" json:"priority"`
	Data        datatypes.JSON `json:"data"`
	EmailStatus string         `gorm:"type:varchar(16)" json:"email_status,omitempty"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
