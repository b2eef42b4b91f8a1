package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
)

type gormWaitlist struct {
	db *gorm.DB
}

func (r *gormWaitlist) CreateEntry(ctx context.Context, entry *models.WaitlistEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("store: create waitlist entry: %w", err)
	}
	return nil
}

func (r *gormWaitlist) GetEntry(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	if err := r.db.WithContext(ctx).Take(&entry, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "waitlist entry "+id)
	}
	return &entry, nil
}

func (r *gormWaitlist) ActiveEntryFor(ctx context.Context, userID, sprintType string) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND sprint_type = ? AND status = ?", userID, sprintType, models.WaitlistStatusActive).
		Order("created_at ASC").
		Take(&entry).Error
	if err != nil {
		return nil, notFound(err, "active waitlist entry for "+userID)
	}
	return &entry, nil
}

func (r *gormWaitlist) ActiveEntries(ctx context.Context, sprintType string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	query := r.db.WithContext(ctx).Where("status = ?", models.WaitlistStatusActive)
	if sprintType != "" {
		query = query.Where("sprint_type = ?", sprintType)
	}
	err := query.Order("created_at ASC").Order("id ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: active waitlist entries for %s: %w", sprintType, err)
	}
	return entries, nil
}

func (r *gormWaitlist) Resolve(ctx context.Context, id string, to models.WaitlistStatus, at time.Time, matchedPodID *string) (bool, error) {
	if !models.WaitlistStatusActive.CanTransitionTo(to) {
		return false, fmt.Errorf("store: waitlist entry cannot move to %q", to)
	}
	updates := map[string]any{
		"status":      to,
		"resolved_at": at,
	}
	if matchedPodID != nil {
		updates["matched_pod_id"] = *matchedPodID
	}
	result := r.db.WithContext(ctx).
		Model(&models.WaitlistEntry{}).
		Where("id = ? AND status = ?", id, models.WaitlistStatusActive).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("store: resolve waitlist entry %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *gormWaitlist) ClaimWarning(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WaitlistEntry{}).
		Where("id = ? AND status = ? AND warning_sent_at IS NULL", id, models.WaitlistStatusActive).
		Update("warning_sent_at", at)
	if result.Error != nil {
		return false, fmt.Errorf("store: claim warning for waitlist entry %s: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *gormWaitlist) RecordNotification(ctx context.Context, id, kind string) error {
	err := r.db.WithContext(ctx).
		Model(&models.WaitlistEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"notifications_sent": gorm.Expr("notifications_sent + ?", 1),
			"last_notification":  kind,
		}).Error
	if err != nil {
		return fmt.Errorf("store: record notification for waitlist entry %s: %w", id, err)
	}
	return nil
}

func (r *gormWaitlist) DueWarnings(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND warning_sent_at IS NULL AND warning_at <= ? AND expires_at > ?", models.WaitlistStatusActive, now, now).
		Order("warning_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: due waitlist warnings: %w", err)
	}
	return entries, nil
}

func (r *gormWaitlist) DueExpirations(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.WaitlistStatusActive, now).
		Order("expires_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: due waitlist expirations: %w", err)
	}
	return entries, nil
}

func (r *gormWaitlist) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WaitlistEntry{}).
		Where("status = ?", models.WaitlistStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("store: count active waitlist entries: %w", err)
	}
	return count, nil
}
