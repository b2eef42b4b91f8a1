package store

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
)

type gormPods struct {
	db *gorm.DB
}

func (r *gormPods) CreatePod(ctx context.Context, pod *models.Pod) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(pod).Error; err != nil {
		return fmt.Errorf("store: create pod: %w", err)
	}
	return nil
}

func (r *gormPods) GetPod(ctx context.Context, id string) (*models.Pod, error) {
	var pod models.Pod
	if err := r.db.WithContext(ctx).Take(&pod, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "pod "+id)
	}
	return &pod, nil
}

func (r *gormPods) LockPod(ctx context.Context, id string) (*models.Pod, error) {
	var pod models.Pod
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&pod, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "pod "+id)
	}
	return &pod, nil
}

func (r *gormPods) UpdatePod(ctx context.Context, pod *models.Pod) error {
	err := r.db.WithContext(ctx).
		Model(pod).
		Select("status", "current_members", "activated_at", "closed_at", "matching_data").
		Updates(pod).Error
	if err != nil {
		return fmt.Errorf("store: update pod %s: %w", pod.ID, err)
	}
	return nil
}

func (r *gormPods) ListPods(ctx context.Context, filter PodFilter) ([]models.Pod, error) {
	query := r.db.WithContext(ctx).Model(&models.Pod{})
	if filter.SprintType != "" {
		query = query.Where("sprint_type = ?", filter.SprintType)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var pods []models.Pod
	if err := query.Order("created_at ASC").Order("id ASC").Find(&pods).Error; err != nil {
		return nil, fmt.Errorf("store: list pods: %w", err)
	}
	return pods, nil
}

func (r *gormPods) CreateMembership(ctx context.Context, membership *models.PodMembership) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(membership).Error; err != nil {
		return fmt.Errorf("store: create membership: %w", err)
	}
	return nil
}

func (r *gormPods) UpdateMembership(ctx context.Context, membership *models.PodMembership) error {
	err := r.db.WithContext(ctx).
		Model(membership).
		Select("role", "status", "left_at", "match_signals").
		Updates(membership).Error
	if err != nil {
		return fmt.Errorf("store: update membership %s: %w", membership.ID, err)
	}
	return nil
}

func (r *gormPods) ActiveMembership(ctx context.Context, podID, userID string) (*models.PodMembership, error) {
	var membership models.PodMembership
	err := r.db.WithContext(ctx).
		Where("pod_id = ? AND user_id = ? AND status = ?", podID, userID, models.MembershipStatusActive).
		Take(&membership).Error
	if err != nil {
		return nil, notFound(err, "membership of "+userID+" in pod "+podID)
	}
	return &membership, nil
}

func (r *gormPods) ActiveMembers(ctx context.Context, podID string) ([]models.PodMembership, error) {
	var members []models.PodMembership
	err := r.db.WithContext(ctx).
		Where("pod_id = ? AND status = ?", podID, models.MembershipStatusActive).
		Order("joined_at ASC").Order("created_at ASC").Order("id ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("store: list members of pod %s: %w", podID, err)
	}
	return members, nil
}

func (r *gormPods) LockUsers(ctx context.Context, userIDs ...string) error {
	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)

	var locked []string
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Pluck("id", &locked).Error
	if err != nil {
		return fmt.Errorf("store: lock users: %w", err)
	}
	if len(locked) != len(ids) {
		return fmt.Errorf("%w: %d of %d users", ErrNotFound, len(ids)-len(locked), len(ids))
	}
	return nil
}

func (r *gormPods) OpenMemberships(ctx context.Context, userIDs ...string) ([]models.PodMembership, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var memberships []models.PodMembership
	err := r.db.WithContext(ctx).
		Joins("JOIN pods ON pods.id = pod_memberships.pod_id").
		Where("pod_memberships.user_id IN ? AND pod_memberships.status = ?", userIDs, models.MembershipStatusActive).
		Where("pods.status IN ?", models.OpenPodStatuses()).
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("store: open memberships: %w", err)
	}
	return memberships, nil
}

func (r *gormPods) UserPods(ctx context.Context, userID string) ([]models.Pod, error) {
	var pods []models.Pod
	err := r.db.WithContext(ctx).
		Joins("JOIN pod_memberships ON pod_memberships.pod_id = pods.id").
		Where("pod_memberships.user_id = ? AND pod_memberships.status = ?", userID, models.MembershipStatusActive).
		Where("pods.status IN ?", models.OpenPodStatuses()).
		Order("pods.created_at ASC").
		Find(&pods).Error
	if err != nil {
		return nil, fmt.Errorf("store: pods of user %s: %w", userID, err)
	}
	return pods, nil
}
