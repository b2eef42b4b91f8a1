package testfixtures

import (
	"fmt"
	"sync/atomic"

	"gorm.io/datatypes"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
)

var userCounter uint64

// CandidateOption configures a generated candidate.
type CandidateOption func(*models.Candidate)

// NewCandidate returns a deterministic candidate with a unique id. Defaults: UTC,
// beginner, structured, Monday 18:00 for 90 minutes, sprint "gym".
func NewCandidate(opts ...CandidateOption) models.Candidate {
	idx := atomic.AddUint64(&userCounter, 1)
	c := models.Candidate{
		UserID:     fmt.Sprintf("00000000-0000-4000-8000-%012d", idx),
		SprintType: "gym",
		Timezone:   "UTC",
		Preferences: models.Preferences{
			AvailabilityWindows: []models.TimeSlot{{DayOfWeek: 1, StartTime: "18:00", DurationMinutes: 90}},
			CollaborationStyle:  models.CollaborationStructured,
			ExperienceLevel:     models.ExperienceBeginner,
		},
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithTimezone overrides the candidate timezone.
func WithTimezone(tz string) CandidateOption {
	return func(c *models.Candidate) { c.Timezone = tz }
}

// WithExperience overrides the experience level.
func WithExperience(level models.ExperienceLevel) CandidateOption {
	return func(c *models.Candidate) { c.Preferences.ExperienceLevel = level }
}

// WithStyle overrides the collaboration style.
func WithStyle(style models.CollaborationStyle) CandidateOption {
	return func(c *models.Candidate) { c.Preferences.CollaborationStyle = style }
}

// WithSlots replaces the availability windows.
func WithSlots(slots ...models.TimeSlot) CandidateOption {
	return func(c *models.Candidate) { c.Preferences.AvailabilityWindows = slots }
}

// WithSprint overrides the sprint type.
func WithSprint(sprint string) CandidateOption {
	return func(c *models.Candidate) { c.SprintType = sprint }
}

// UserFor materialises a stored user matching the candidate profile.
func UserFor(c models.Candidate) models.User {
	return models.User{
		BaseModel:   models.BaseModel{ID: c.UserID, CreatedAt: c.CreatedAt},
		DisplayName: "User " + c.UserID[len(c.UserID)-4:],
		Email:       c.UserID[len(c.UserID)-4:] + "@example.com",
		Timezone:    c.Timezone,
		Preferences: datatypes.NewJSONType(c.Preferences),
	}
}
