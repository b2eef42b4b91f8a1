package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
)

type gormSessions struct {
	db *gorm.DB
}

func (r *gormSessions) CreateSession(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(session).Error; err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

func (r *gormSessions) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Take(&session, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "session "+id)
	}
	return &session, nil
}

func (r *gormSessions) ListPodSessions(ctx context.Context, podID string) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("pod_id = ?", podID).
		Order("session_number ASC").Order("scheduled_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("store: list sessions of pod %s: %w", podID, err)
	}
	return sessions, nil
}

func (r *gormSessions) LatestPodSession(ctx context.Context, podID string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("pod_id = ?", podID).
		Order("session_number DESC").Order("scheduled_at DESC").
		Take(&session).Error
	if err != nil {
		return nil, notFound(err, "latest session of pod "+podID)
	}
	return &session, nil
}

func (r *gormSessions) UpdateStatus(ctx context.Context, id string, from []models.SessionStatus, to models.SessionStatus, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("store: update session %s status: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *gormSessions) UpdateVideo(ctx context.Context, id, url, room, provider string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"video_url": url, "video_room": room, "video_provider": provider}).Error
	if err != nil {
		return fmt.Errorf("store: update session %s video: %w", id, err)
	}
	return nil
}

func (r *gormSessions) CreateAttendance(ctx context.Context, rows []models.SessionAttendance) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("store: create attendance: %w", err)
	}
	return nil
}

func (r *gormSessions) UpsertAttendance(ctx context.Context, row *models.SessionAttendance) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"attended", "joined_at", "left_at", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("store: upsert attendance %s/%s: %w", row.SessionID, row.UserID, err)
	}
	return nil
}

func (r *gormSessions) GetAttendance(ctx context.Context, sessionID, userID string) (*models.SessionAttendance, error) {
	var row models.SessionAttendance
	if err := r.db.WithContext(ctx).Take(&row, "session_id = ? AND user_id = ?", sessionID, userID).Error; err != nil {
		return nil, notFound(err, "attendance of "+userID+" in session "+sessionID)
	}
	return &row, nil
}

func (r *gormSessions) ListAttendance(ctx context.Context, sessionID string) ([]models.SessionAttendance, error) {
	var rows []models.SessionAttendance
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("user_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list attendance of session %s: %w", sessionID, err)
	}
	return rows, nil
}

func (r *gormSessions) ScheduledBetween(ctx context.Context, kind models.ReminderKind, from, to time.Time) ([]models.Session, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("store: unknown reminder kind %q", kind)
	}
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("status = ?", models.SessionStatusScheduled).
		Where("scheduled_at >= ? AND scheduled_at <= ?", from, to).
		Where(kind.Column()+" = ?", false).
		Order("scheduled_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("store: sessions needing %s reminders: %w", kind, err)
	}
	return sessions, nil
}

func (r *gormSessions) ClaimReminder(ctx context.Context, id string, kind models.ReminderKind) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("store: unknown reminder kind %q", kind)
	}
	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND "+kind.Column()+" = ?", id, false).
		Update(kind.Column(), true)
	if result.Error != nil {
		return false, fmt.Errorf("store: claim %s reminder for session %s: %w", kind, id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *gormSessions) AppendTransition(ctx context.Context, transition *models.SessionTransition) error {
	if err := r.db.WithContext(ctx).Create(transition).Error; err != nil {
		return fmt.Errorf("store: append transition for session %s: %w", transition.SessionID, err)
	}
	return nil
}

func (r *gormSessions) ListTransitions(ctx context.Context, sessionID string) ([]models.SessionTransition, error) {
	var transitions []models.SessionTransition
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC").Order("created_at ASC").
		Find(&transitions).Error
	if err != nil {
		return nil, fmt.Errorf("store: list transitions of session %s: %w", sessionID, err)
	}
	return transitions, nil
}
