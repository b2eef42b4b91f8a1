package models

import "time"

// ExperienceLevel is a candidate's self-reported experience with the sprint.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

// CollaborationStyle describes how a candidate prefers to work with a pod.
type CollaborationStyle string

const (
	CollaborationStructured CollaborationStyle = "structured"
	CollaborationFlexible   CollaborationStyle = "flexible"
	CollaborationCasual     CollaborationStyle = "casual"
)

// TimeSlot is a weekly availability window. DayOfWeek follows time.Weekday (0 = Sunday).
type TimeSlot struct {
	DayOfWeek       int    `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime       string `json:"start_time" validate:"required,clock"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=15,lte=480"`
}

// Preferences holds the matching preferences of a user.
type Preferences struct {
	AvailabilityWindows  []TimeSlot         `json:"availability_windows" validate:"omitempty,dive"`
	CollaborationStyle   CollaborationStyle `json:"collaboration_style" validate:"omitempty,oneof=structured flexible casual"`
	ExperienceLevel      ExperienceLevel    `json:"experience_level" validate:"omitempty,oneof=beginner intermediate advanced"`
	NotificationSettings map[string]bool    `json:"notification_settings,omitempty"`
}

// DefaultPreferences are applied when a user has not stored preferences.
func DefaultPreferences() Preferences {
	return Preferences{
		CollaborationStyle: CollaborationFlexible,
		ExperienceLevel:    ExperienceBeginner,
	}
}

// DefaultTimezone is applied when a user has no timezone on record.
const DefaultTimezone = "UTC"

// WithDefaults fills unset style and level fields.
func (p Preferences) WithDefaults() Preferences {
	defaults := DefaultPreferences()
	if p.CollaborationStyle == "" {
		p.CollaborationStyle = defaults.CollaborationStyle
	}
	if p.ExperienceLevel == "" {
		p.ExperienceLevel = defaults.ExperienceLevel
	}
	return p
}

// WantsChannel reports whether a notification channel is enabled. Unset channels default to on.
func (p Preferences) WantsChannel(channel string) bool {
	if p.NotificationSettings == nil {
		return true
	}
	enabled, ok := p.NotificationSettings[channel]
	return !ok || enabled
}

// Candidate is a user being considered for a pod. It is assembled per matching request.
type Candidate struct {
	UserID      string
	SprintType  string
	Preferences Preferences
	Timezone    string
	CreatedAt   time.Time
}
