package models

import "gorm.io/datatypes"

// User is the local projection of a platform account. Authentication lives elsewhere.
type User struct {
	BaseModel

	DisplayName string                          `gorm:"type:varchar(255)" json:"display_name"`
	Email       string                          `gorm:"type:varchar(255);index" json:"email"`
	Timezone    string                          `gorm:"type:varchar(64)" json:"timezone"`
	Preferences datatypes.JSONType[Preferences] `json:"preferences"`
}

// Candidate builds a matching candidate for sprintType from the stored profile, applying defaults.
func (u *User) Candidate(sprintType string) Candidate {
	tz := u.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	return Candidate{
		UserID:      u.ID,
		SprintType:  sprintType,
		Preferences: u.Preferences.Data().WithDefaults(),
		Timezone:    tz,
		CreatedAt:   u.CreatedAt,
	}
}
