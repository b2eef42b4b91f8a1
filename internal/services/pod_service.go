package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/logger"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/metrics"
)

// CreatePodInput describes a new pod.
type CreatePodInput struct {
	SprintType    string
	MemberIDs     []string
	Compatibility *matching.Score
	ActorID       string
}

// PodDetails is a pod with its ACTIVE memberships, facilitator first then by join time.
type PodDetails struct {
	Pod     models.Pod             `json:"pod"`
	Members []models.PodMembership `json:"members"`
}

// PodService owns the pod and membership state machine.
type PodService struct {
	store   store.Store
	users   store.UserDirectory
	audit   *AuditService
	locks   *keyedLocker
	timeNow func() time.Time
	log     *zap.Logger
}

// PodOption customises the pod service.
type PodOption func(*PodService)

// WithPodAuditService records pod events in the audit log.
func WithPodAuditService(audit *AuditService) PodOption {
	return func(s *PodService) {
		s.audit = audit
	}
}

// WithPodClock overrides the clock used for timestamps (test helper).
func WithPodClock(now func() time.Time) PodOption {
	return func(s *PodService) {
		if now != nil {
			s.timeNow = now
		}
	}
}

// NewPodService constructs the pod service.
func NewPodService(st store.Store, users store.UserDirectory, opts ...PodOption) (*PodService, error) {
	if st == nil {
		return nil, errors.New("pod service: store is required")
	}
	if users == nil {
		return nil, errors.New("pod service: user directory is required")
	}
	svc := &PodService{
		store:   st,
		users:   users,
		locks:   newKeyedLocker(),
		timeNow: time.Now,
		log:     logger.WithModule("pods"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *PodService) now() time.Time {
	return s.timeNow().UTC()
}

// CreatePod forms a pod from 2 to 4 users. The first member becomes facilitator and the
// pod is promoted to ACTIVE in the same transaction.
func (s *PodService) CreatePod(ctx context.Context, input CreatePodInput) (details *PodDetails, err error) {
	ctx = ensureContext(ctx)
	defer func() {
		metrics.MembershipOperations.WithLabelValues("create", metrics.ResultLabel(err)).Inc()
	}()

	sprint := strings.TrimSpace(input.SprintType)
	if sprint == "" {
		return nil, apperrors.NewBadRequest("sprint type is required")
	}
	memberIDs := normaliseIDs(input.MemberIDs)
	if len(memberIDs) < models.MinPodSize || len(memberIDs) > models.MaxPodSize {
		return nil, ErrInvalidMembershipCount
	}
	if err := s.requireUsers(ctx, memberIDs...); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userKeys(memberIDs)...)
	defer unlock()

	now := s.now()
	matchingData, err := encodeMetadata(map[string]any{
		"compatibility": input.Compatibility,
		"formed_at":     now,
		"member_ids":    memberIDs,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to encode matching data")
	}

	var pod *models.Pod
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := ensureUnmatched(ctx, tx, memberIDs...); err != nil {
			return err
		}

		pod = &models.Pod{
			SprintType:     sprint,
			Status:         models.PodStatusForming,
			CurrentMembers: len(memberIDs),
			MaxMembers:     models.MaxPodSize,
			MatchingData:   matchingData,
		}
		if err := tx.Pods().CreatePod(ctx, pod); err != nil {
			return translate(err, nil, "Failed to create pod")
		}

		for i, userID := range memberIDs {
			role := models.RoleMember
			if i == 0 {
				role = models.RoleFacilitator
			}
			membership := &models.PodMembership{
				PodID:        pod.ID,
				UserID:       userID,
				Role:         role,
				Status:       models.MembershipStatusActive,
				JoinedAt:     now.Add(time.Duration(i) * time.Microsecond),
				MatchSignals: datatypes.JSONMap{"source": "formation"},
			}
			if err := tx.Pods().CreateMembership(ctx, membership); err != nil {
				return translate(err, nil, "Failed to create membership")
			}
		}

		if promoteOnSecondMember(pod, now) {
			return translate(tx.Pods().UpdatePod(ctx, pod), nil, "Failed to activate pod")
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, nil, "Failed to create pod")
	}

	metrics.PodTransitions.WithLabelValues(string(models.PodStatusForming)).Inc()
	if pod.Status == models.PodStatusActive {
		metrics.PodTransitions.WithLabelValues(string(models.PodStatusActive)).Inc()
	}
	s.recordAudit(ctx, input.ActorID, "pod.created", pod.ID, map[string]any{
		"sprint_type": sprint,
		"member_ids":  memberIDs,
		"status":      pod.Status,
	})

	s.log.Info("pod created",
		zap.String("pod_id", pod.ID),
		zap.String("sprint_type", sprint),
		zap.Int("members", len(memberIDs)),
		zap.String("status", string(pod.Status)),
	)
	return s.GetPodDetails(ctx, pod.ID)
}

// JoinPod adds userID to a FORMING pod as a MEMBER.
func (s *PodService) JoinPod(ctx context.Context, userID, podID string) (details *PodDetails, err error) {
	ctx = ensureContext(ctx)
	defer func() {
		metrics.MembershipOperations.WithLabelValues("join", metrics.ResultLabel(err)).Inc()
	}()

	userID, podID = strings.TrimSpace(userID), strings.TrimSpace(podID)
	if err := s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(podKey(podID), userKey(userID))
	defer unlock()

	now := s.now()
	var (
		pod       *models.Pod
		activated bool
	)
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		var err error
		pod, err = tx.Pods().LockPod(ctx, podID)
		if err != nil {
			return translate(err, ErrPodNotFound, "Failed to load pod")
		}
		if pod.Status != models.PodStatusForming {
			return ErrPodNotAcceptingMembers
		}

		members, err := tx.Pods().ActiveMembers(ctx, pod.ID)
		if err != nil {
			return translate(err, nil, "Failed to load pod members")
		}
		pod.CurrentMembers = len(members)
		if !pod.HasCapacity() {
			return ErrPodFull
		}
		if err := ensureUnmatched(ctx, tx, userID); err != nil {
			return err
		}

		role := models.RoleMember
		if len(members) == 0 {
			role = models.RoleFacilitator
		}
		membership := &models.PodMembership{
			PodID:        pod.ID,
			UserID:       userID,
			Role:         role,
			Status:       models.MembershipStatusActive,
			JoinedAt:     now,
			MatchSignals: datatypes.JSONMap{"source": "join"},
		}
		if err := tx.Pods().CreateMembership(ctx, membership); err != nil {
			return translate(err, nil, "Failed to create membership")
		}

		pod.CurrentMembers++
		activated = promoteOnSecondMember(pod, now)
		return translate(tx.Pods().UpdatePod(ctx, pod), nil, "Failed to update pod")
	})
	if err != nil {
		return nil, translate(err, nil, "Failed to join pod")
	}

	if activated {
		metrics.PodTransitions.WithLabelValues(string(models.PodStatusActive)).Inc()
		s.recordAudit(ctx, userID, "pod.activated", pod.ID, map[string]any{"trigger": "join"})
	}
	s.recordAudit(ctx, userID, "pod.joined", pod.ID, map[string]any{"user_id": userID, "members": pod.CurrentMembers})
	s.log.Info("user joined pod",
		zap.String("pod_id", pod.ID),
		zap.String("user_id", userID),
		zap.Int("members", pod.CurrentMembers),
		zap.String("status", string(pod.Status)),
	)
	return s.GetPodDetails(ctx, pod.ID)
}

// LeavePod marks the user's membership LEFT and rebalances the pod.
func (s *PodService) LeavePod(ctx context.Context, userID, podID, reason string) (details *PodDetails, err error) {
	ctx = ensureContext(ctx)
	defer func() {
		metrics.MembershipOperations.WithLabelValues("leave", metrics.ResultLabel(err)).Inc()
	}()

	userID, podID = strings.TrimSpace(userID), strings.TrimSpace(podID)
	unlock := s.locks.Lock(podKey(podID), userKey(userID))
	defer unlock()

	now := s.now()
	var (
		pod       *models.Pod
		previous  models.PodStatus
		successor string
	)
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		var err error
		pod, err = tx.Pods().LockPod(ctx, podID)
		if err != nil {
			return translate(err, ErrPodNotFound, "Failed to load pod")
		}
		previous = pod.Status

		membership, err := tx.Pods().ActiveMembership(ctx, pod.ID, userID)
		if err != nil {
			return translate(err, ErrMembershipNotFound, "Failed to load membership")
		}

		membership.Status = models.MembershipStatusLeft
		membership.LeftAt = &now
		if membership.MatchSignals == nil {
			membership.MatchSignals = datatypes.JSONMap{}
		}
		membership.MatchSignals["left_at"] = now.Format(time.RFC3339Nano)
		if reason = strings.TrimSpace(reason); reason != "" {
			membership.MatchSignals["leave_reason"] = reason
		}
		if err := tx.Pods().UpdateMembership(ctx, membership); err != nil {
			return translate(err, nil, "Failed to update membership")
		}

		remaining, err := tx.Pods().ActiveMembers(ctx, pod.ID)
		if err != nil {
			return translate(err, nil, "Failed to load pod members")
		}
		pod.CurrentMembers = len(remaining)

		if len(remaining) > 0 && !hasFacilitator(remaining) {
			next := remaining[0]
			next.Role = models.RoleFacilitator
			if err := tx.Pods().UpdateMembership(ctx, &next); err != nil {
				return translate(err, nil, "Failed to promote facilitator")
			}
			successor = next.UserID
		}

		switch {
		case len(remaining) == 0 && pod.Status.CanTransitionTo(models.PodStatusDisbanded):
			pod.Status = models.PodStatusDisbanded
			pod.ClosedAt = &now
		case len(remaining) == 1 && pod.Status == models.PodStatusActive:
			pod.Status = models.PodStatusForming
		}
		return translate(tx.Pods().UpdatePod(ctx, pod), nil, "Failed to update pod")
	})
	if err != nil {
		return nil, translate(err, nil, "Failed to leave pod")
	}

	if pod.Status != previous {
		metrics.PodTransitions.WithLabelValues(string(pod.Status)).Inc()
		if pod.Status == models.PodStatusDisbanded {
			s.recordAudit(ctx, userID, "pod.disbanded", pod.ID, nil)
		}
	}
	meta := map[string]any{"user_id": userID, "members": pod.CurrentMembers}
	if reason != "" {
		meta["reason"] = reason
	}
	if successor != "" {
		meta["new_facilitator"] = successor
	}
	s.recordAudit(ctx, userID, "pod.left", pod.ID, meta)
	s.log.Info("user left pod",
		zap.String("pod_id", pod.ID),
		zap.String("user_id", userID),
		zap.Int("members", pod.CurrentMembers),
		zap.String("status", string(pod.Status)),
	)
	return s.GetPodDetails(ctx, pod.ID)
}

// ActivatePod explicitly promotes a FORMING pod holding at least two members.
func (s *PodService) ActivatePod(ctx context.Context, podID, actorID string) (*PodDetails, error) {
	ctx = ensureContext(ctx)
	podID = strings.TrimSpace(podID)
	unlock := s.locks.Lock(podKey(podID))
	defer unlock()

	now := s.now()
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		pod, err := tx.Pods().LockPod(ctx, podID)
		if err != nil {
			return translate(err, ErrPodNotFound, "Failed to load pod")
		}
		if pod.Status != models.PodStatusForming {
			return ErrInvalidPodTransition
		}
		members, err := tx.Pods().ActiveMembers(ctx, pod.ID)
		if err != nil {
			return translate(err, nil, "Failed to load pod members")
		}
		if len(members) < models.MinPodSize {
			return ErrInvalidMembershipCount.WithMessage("A pod needs at least 2 members to activate")
		}
		pod.CurrentMembers = len(members)
		pod.Status = models.PodStatusActive
		if pod.ActivatedAt == nil {
			pod.ActivatedAt = &now
		}
		return translate(tx.Pods().UpdatePod(ctx, pod), nil, "Failed to update pod")
	})
	if err != nil {
		return nil, translate(err, nil, "Failed to activate pod")
	}

	metrics.PodTransitions.WithLabelValues(string(models.PodStatusActive)).Inc()
	s.recordAudit(ctx, actorID, "pod.activated", podID, map[string]any{"trigger": "explicit"})
	return s.GetPodDetails(ctx, podID)
}

// CompletePod closes a pod administratively. Completing a completed pod is a no-op.
func (s *PodService) CompletePod(ctx context.Context, podID, actorID string) (*PodDetails, error) {
	ctx = ensureContext(ctx)
	podID = strings.TrimSpace(podID)
	unlock := s.locks.Lock(podKey(podID))
	defer unlock()

	now := s.now()
	changed := false
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		pod, err := tx.Pods().LockPod(ctx, podID)
		if err != nil {
			return translate(err, ErrPodNotFound, "Failed to load pod")
		}
		if pod.Status == models.PodStatusCompleted {
			return nil
		}
		if !pod.Status.CanTransitionTo(models.PodStatusCompleted) {
			return ErrInvalidPodTransition
		}
		pod.Status = models.PodStatusCompleted
		pod.ClosedAt = &now
		changed = true
		return translate(tx.Pods().UpdatePod(ctx, pod), nil, "Failed to update pod")
	})
	if err != nil {
		return nil, translate(err, nil, "Failed to complete pod")
	}

	if changed {
		metrics.PodTransitions.WithLabelValues(string(models.PodStatusCompleted)).Inc()
		s.recordAudit(ctx, actorID, "pod.completed", podID, nil)
	}
	return s.GetPodDetails(ctx, podID)
}

// GetPodDetails returns the pod with its ACTIVE members.
func (s *PodService) GetPodDetails(ctx context.Context, podID string) (*PodDetails, error) {
	ctx = ensureContext(ctx)
	pod, err := s.store.Pods().GetPod(ctx, strings.TrimSpace(podID))
	if err != nil {
		return nil, translate(err, ErrPodNotFound, "Failed to load pod")
	}
	members, err := s.store.Pods().ActiveMembers(ctx, pod.ID)
	if err != nil {
		return nil, translate(err, nil, "Failed to load pod members")
	}
	return &PodDetails{Pod: *pod, Members: facilitatorFirst(members)}, nil
}

// GetUserPods returns the FORMING or ACTIVE pods the user belongs to.
func (s *PodService) GetUserPods(ctx context.Context, userID string) ([]PodDetails, error) {
	ctx = ensureContext(ctx)
	pods, err := s.store.Pods().UserPods(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, translate(err, nil, "Failed to load user pods")
	}
	out := make([]PodDetails, 0, len(pods))
	for _, pod := range pods {
		members, err := s.store.Pods().ActiveMembers(ctx, pod.ID)
		if err != nil {
			return nil, translate(err, nil, "Failed to load pod members")
		}
		out = append(out, PodDetails{Pod: pod, Members: facilitatorFirst(members)})
	}
	return out, nil
}

// HasOpenMembership reports whether the user currently belongs to a FORMING or ACTIVE pod.
func (s *PodService) HasOpenMembership(ctx context.Context, userID string) (bool, error) {
	memberships, err := s.store.Pods().OpenMemberships(ensureContext(ctx), userID)
	if err != nil {
		return false, translate(err, nil, "Failed to load memberships")
	}
	return len(memberships) > 0, nil
}

func (s *PodService) requireUsers(ctx context.Context, userIDs ...string) error {
	for _, id := range userIDs {
		if id == "" {
			return ErrUserNotFound
		}
		ok, err := s.users.Exists(ctx, id)
		if err != nil {
			return translate(err, nil, "Failed to resolve user")
		}
		if !ok {
			return ErrUserNotFound.WithMessage("User " + id + " not found")
		}
	}
	return nil
}

func (s *PodService) recordAudit(ctx context.Context, actorID, action, podID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := AuditEntry{Action: action, Resource: "pod", ResourceID: podID, Result: "success", Metadata: meta}
	if actorID = strings.TrimSpace(actorID); actorID != "" {
		entry.ActorID = &actorID
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.String("pod_id", podID), zap.Error(err))
	}
}

// ensureUnmatched locks the users' rows for the rest of tx before checking their open
// memberships, so concurrent writers on other pods serialise on the same users.
func ensureUnmatched(ctx context.Context, tx store.Store, userIDs ...string) error {
	if err := tx.Pods().LockUsers(ctx, userIDs...); err != nil {
		return translate(err, ErrUserNotFound, "Failed to lock users")
	}
	open, err := tx.Pods().OpenMemberships(ctx, userIDs...)
	if err != nil {
		return translate(err, nil, "Failed to load memberships")
	}
	if len(open) > 0 {
		return ErrUserAlreadyMatched.WithMessage("User " + open[0].UserID + " already belongs to an open pod")
	}
	return nil
}

// promoteOnSecondMember activates a FORMING pod once it holds two members, including a pod
// that fell back to FORMING and was refilled. ActivatedAt keeps the first activation time.
func promoteOnSecondMember(pod *models.Pod, now time.Time) bool {
	if pod.Status != models.PodStatusForming || pod.CurrentMembers < models.MinPodSize {
		return false
	}
	pod.Status = models.PodStatusActive
	if pod.ActivatedAt == nil {
		pod.ActivatedAt = &now
	}
	return true
}

func hasFacilitator(members []models.PodMembership) bool {
	for i := range members {
		if members[i].IsFacilitator() {
			return true
		}
	}
	return false
}

func facilitatorFirst(members []models.PodMembership) []models.PodMembership {
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].IsFacilitator() && !members[j].IsFacilitator()
	})
	return members
}

func podKey(id string) string  { return "pod:" + id }
func userKey(id string) string { return "user:" + id }

func userKeys(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = userKey(id)
	}
	return out
}
