package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
)

// GormUserDirectory reads users from the local users table.
type GormUserDirectory struct {
	db *gorm.DB
}

// NewGormUserDirectory returns a UserDirectory backed by db.
func NewGormUserDirectory(db *gorm.DB) (*GormUserDirectory, error) {
	if db == nil {
		return nil, errors.New("user directory: db is required")
	}
	return &GormUserDirectory{db: db}, nil
}

func (d *GormUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("user directory: lookup %s: %w", userID, err)
	}
	return count > 0, nil
}

func (d *GormUserDirectory) GetPreferences(ctx context.Context, userID string) (UserPreferences, error) {
	user, err := d.load(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return UserPreferences{Timezone: models.DefaultTimezone, Preferences: models.DefaultPreferences()}, nil
	}
	if err != nil {
		return UserPreferences{}, err
	}

	tz := strings.TrimSpace(user.Timezone)
	if tz == "" {
		tz = models.DefaultTimezone
	}
	return UserPreferences{Timezone: tz, Preferences: user.Preferences.Data().WithDefaults()}, nil
}

func (d *GormUserDirectory) Contact(ctx context.Context, userID string) (Contact, error) {
	user, err := d.load(ctx, userID)
	if err != nil {
		return Contact{}, err
	}
	return Contact{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Preferences: user.Preferences.Data(),
	}, nil
}

func (d *GormUserDirectory) load(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user "+userID)
	}
	return &user, nil
}
