package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// MinPodSize is the smallest pod that can be created or activated.
	MinPodSize = 2
	// MaxPodSize is the capacity of every pod.
	MaxPodSize = 4
)

// Pod is a small accountability group working through one sprint.
type Pod struct {
	BaseModel

	SprintType     string         `gorm:"type:varchar(128);not null;index" json:"sprint_type"`
	Status         PodStatus      `gorm:"type:varchar(16);not null;index" json:"status"`
	CurrentMembers int            `gorm:"not null;default:0" json:"current_members"`
	MaxMembers     int            `gorm:"not null;default:4" json:"max_members"`
	MatchingData   datatypes.JSON `json:"matching_data,omitempty"`
	ActivatedAt    *time.Time     `json:"activated_at,omitempty"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`

	Memberships []PodMembership `gorm:"foreignKey:PodID" json:"memberships,omitempty"`
}

// HasCapacity reports whether another member fits.
func (p *Pod) HasCapacity() bool {
	return p.CurrentMembers < p.capacity()
}

func (p *Pod) capacity() int {
	if p.MaxMembers <= 0 {
		return MaxPodSize
	}
	return p.MaxMembers
}

// PodMembership links a user to a pod. Rows are never deleted; leaving sets Status to LEFT.
type PodMembership struct {
	BaseModel

	PodID        string            `gorm:"type:uuid;not null;index:idx_membership_pod_status" json:"pod_id"`
	UserID       string            `gorm:"type:uuid;not null;index:idx_membership_user_status" json:"user_id"`
	Role         MembershipRole    `gorm:"type:varchar(16);not null" json:"role"`
	Status       MembershipStatus  `gorm:"type:varchar(16);not null;index:idx_membership_pod_status;index:idx_membership_user_status" json:"status"`
	JoinedAt     time.Time         `gorm:"not null" json:"joined_at"`
	LeftAt       *time.Time        `json:"left_at,omitempty"`
	MatchSignals datatypes.JSONMap `json:"match_signals,omitempty"`
}

// IsFacilitator reports whether the membership carries the facilitator role.
func (m *PodMembership) IsFacilitator() bool {
	return m.Role == RoleFacilitator
}
