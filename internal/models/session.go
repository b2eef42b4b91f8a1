package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session is one scheduled meeting of an active pod.
type Session struct {
	BaseModel

	PodID              string        `gorm:"type:uuid;not null;uniqueIndex:idx_session_pod_number" json:"pod_id"`
	ScheduledAt        time.Time     `gorm:"not null;index" json:"scheduled_at"`
	StartedAt          *time.Time    `json:"started_at,omitempty"`
	EndedAt            *time.Time    `json:"ended_at,omitempty"`
	Status             SessionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	VideoURL           string        `gorm:"type:text" json:"video_url"`
	VideoRoom          string        `gorm:"type:varchar(255)" json:"video_room,omitempty"`
	VideoProvider      string        `gorm:"type:varchar(64)" json:"video_provider"`
	AttendanceRequired bool          `gorm:"not null" json:"attendance_required"`
	SessionNumber      int           `gorm:"not null;default:1;uniqueIndex:idx_session_pod_number" json:"session_number"`
	ReminderT60Sent    bool          `gorm:"column:reminder_t60_sent;not null;default:false" json:"reminder_t60_sent"`
	ReminderT10Sent    bool          `gorm:"column:reminder_t10_sent;not null;default:false" json:"reminder_t10_sent"`

	Attendance []SessionAttendance `gorm:"foreignKey:SessionID" json:"attendance,omitempty"`
}

// ReminderSent reports whether the reminder flag for kind is set.
func (s *Session) ReminderSent(kind ReminderKind) bool {
	switch kind {
	case ReminderT60:
		return s.ReminderT60Sent
	case ReminderT10:
		return s.ReminderT10Sent
	default:
		return false
	}
}

// SessionAttendance records whether one pod member attended one session.
type SessionAttendance struct {
	BaseModel

	SessionID string     `gorm:"type:uuid;not null;uniqueIndex:idx_attendance_session_user" json:"session_id"`
	UserID    string     `gorm:"type:uuid;not null;uniqueIndex:idx_attendance_session_user" json:"user_id"`
	Attended  bool       `gorm:"not null;default:false" json:"attended"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// SessionTransition is an append-only audit record of a session state change.
type SessionTransition struct {
	BaseModel

	SessionID  string         `gorm:"type:uuid;not null;index" json:"session_id"`
	FromStatus SessionStatus  `gorm:"type:varchar(16);not null" json:"from_status"`
	ToStatus   SessionStatus  `gorm:"type:varchar(16);not null" json:"to_status"`
	UserID     *string        `gorm:"type:uuid" json:"user_id,omitempty"`
	OccurredAt time.Time      `gorm:"not null;index" json:"occurred_at"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
}
