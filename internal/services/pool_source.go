package services

import (
	"context"
	"errors"

	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
)

// StorePoolSource feeds the formation engine from persisted pods and waitlist entries.
type StorePoolSource struct {
	store store.Store
	users store.UserDirectory
}

// NewStorePoolSource builds a matching.PoolSource.
func NewStorePoolSource(st store.Store, users store.UserDirectory) (*StorePoolSource, error) {
	if st == nil {
		return nil, errors.New("pool source: store is required")
	}
	if users == nil {
		return nil, errors.New("pool source: user directory is required")
	}
	return &StorePoolSource{store: st, users: users}, nil
}

var _ matching.PoolSource = (*StorePoolSource)(nil)

// FormingPods loads FORMING pods with spare capacity and the profiles of their active members.
func (s *StorePoolSource) FormingPods(ctx context.Context, sprintType string) ([]matching.PodCandidate, error) {
	pods, err := s.store.Pods().ListPods(ctx, store.PodFilter{
		SprintType: sprintType,
		Statuses:   []models.PodStatus{models.PodStatusForming},
	})
	if err != nil {
		return nil, err
	}

	out := make([]matching.PodCandidate, 0, len(pods))
	for _, pod := range pods {
		if !pod.HasCapacity() {
			continue
		}
		members, err := s.store.Pods().ActiveMembers(ctx, pod.ID)
		if err != nil {
			return nil, err
		}
		pc := matching.PodCandidate{Pod: pod, Members: make([]models.Candidate, 0, len(members))}
		for _, m := range members {
			prefs, err := s.users.GetPreferences(ctx, m.UserID)
			if err != nil {
				return nil, err
			}
			pc.Members = append(pc.Members, models.Candidate{
				UserID:      m.UserID,
				SprintType:  sprintType,
				Preferences: prefs.Preferences,
				Timezone:    prefs.Timezone,
				CreatedAt:   m.JoinedAt,
			})
		}
		out = append(out, pc)
	}
	return out, nil
}

// UnmatchedCandidates returns the active waitlist for sprintType, one candidate per user,
// dropping anyone who already holds an open membership.
func (s *StorePoolSource) UnmatchedCandidates(ctx context.Context, sprintType, excludeUserID string) ([]models.Candidate, error) {
	entries, err := s.store.Waitlist().ActiveEntries(ctx, sprintType)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(entries))
	userIDs := make([]string, 0, len(entries))
	candidates := make([]models.Candidate, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		if entry.UserID == excludeUserID {
			continue
		}
		if _, dup := seen[entry.UserID]; dup {
			continue
		}
		seen[entry.UserID] = struct{}{}
		userIDs = append(userIDs, entry.UserID)
		candidate := entry.Candidate()
		candidate.Preferences = candidate.Preferences.WithDefaults()
		if candidate.Timezone == "" {
			candidate.Timezone = models.DefaultTimezone
		}
		candidates = append(candidates, candidate)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	open, err := s.store.Pods().OpenMemberships(ctx, userIDs...)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return candidates, nil
	}
	matched := make(map[string]struct{}, len(open))
	for _, m := range open {
		matched[m.UserID] = struct{}{}
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if _, ok := matched[c.UserID]; !ok {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}
