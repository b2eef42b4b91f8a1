package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SeedUsers inserts users that do not exist yet. Existing rows are left untouched.
func SeedUsers(db *gorm.DB, users []models.User) error {
	for i := range users {
		user := users[i]
		if user.ID == "" {
			return errors.New("seed user requires an id")
		}
		if err := db.Where(models.User{BaseModel: models.BaseModel{ID: user.ID}}).Attrs(user).FirstOrCreate(&models.User{}).Error; err != nil {
			return fmt.Errorf("seed user %s: %w", user.ID, err)
		}
	}
	return nil
}
