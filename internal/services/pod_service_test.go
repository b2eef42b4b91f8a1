package services

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/testfixtures"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
)

func TestCreatePodIdenticalCandidatesActivatesImmediately(t *testing.T) {
	a := testfixtures.NewCandidate()
	b := testfixtures.NewCandidate()
	env := newTestEnv(t, []models.Candidate{a, b})

	score := env.engine.Scorer().Score(a, b)
	require.InDelta(t, 1.0, score.Overall, 1e-9)

	details, err := env.pods.CreatePod(context.Background(), CreatePodInput{
		SprintType:    "gym",
		MemberIDs:     ids(a, b),
		Compatibility: &score,
	})
	require.NoError(t, err)
	require.Equal(t, models.PodStatusActive, details.Pod.Status)
	require.Equal(t, 2, details.Pod.CurrentMembers)
	require.NotNil(t, details.Pod.ActivatedAt)
	require.Len(t, details.Members, 2)
	require.Equal(t, a.UserID, details.Members[0].UserID)
	require.True(t, details.Members[0].IsFacilitator())
	require.Equal(t, models.RoleMember, details.Members[1].Role)
	require.NotEmpty(t, details.Pod.MatchingData)
}

func TestCreatePodValidatesMembers(t *testing.T) {
	people := []models.Candidate{
		testfixtures.NewCandidate(), testfixtures.NewCandidate(), testfixtures.NewCandidate(),
		testfixtures.NewCandidate(), testfixtures.NewCandidate(),
	}
	env := newTestEnv(t, people)
	ctx := context.Background()

	_, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(people[0])})
	require.ErrorIs(t, err, ErrInvalidMembershipCount)
	require.True(t, apperrors.IsValidation(err))

	_, err = env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(people...)})
	require.ErrorIs(t, err, ErrInvalidMembershipCount)

	_, err = env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: []string{people[0].UserID, people[0].UserID}})
	require.ErrorIs(t, err, ErrInvalidMembershipCount)

	_, err = env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: []string{people[0].UserID, models.NewID()}})
	require.ErrorIs(t, err, ErrUserNotFound)
	require.True(t, apperrors.IsNotFound(err))

	_, err = env.pods.CreatePod(ctx, CreatePodInput{MemberIDs: ids(people[0], people[1])})
	require.True(t, apperrors.IsValidation(err))
}

func TestMembershipExclusivity(t *testing.T) {
	a, b, c := testfixtures.NewCandidate(), testfixtures.NewCandidate(), testfixtures.NewCandidate()
	env := newTestEnv(t, []models.Candidate{a, b, c})
	ctx := context.Background()

	first, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(a, b)})
	require.NoError(t, err)

	_, err = env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(c, a)})
	require.ErrorIs(t, err, ErrUserAlreadyMatched)
	require.True(t, apperrors.IsConflict(err))

	// Nothing from the failed attempt is visible.
	pods, err := env.pods.GetUserPods(ctx, c.UserID)
	require.NoError(t, err)
	require.Empty(t, pods)

	_, err = env.pods.LeavePod(ctx, b.UserID, first.Pod.ID, "")
	require.NoError(t, err)

	second, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(c, b)})
	require.NoError(t, err)

	_, err = env.pods.JoinPod(ctx, c.UserID, first.Pod.ID)
	require.ErrorIs(t, err, ErrUserAlreadyMatched)
	require.Equal(t, 1, countActive(t, env, first.Pod.ID))
	require.Equal(t, 2, countActive(t, env, second.Pod.ID))
}

func TestJoinPodErrors(t *testing.T) {
	people := make([]models.Candidate, 6)
	for i := range people {
		people[i] = testfixtures.NewCandidate()
	}
	env := newTestEnv(t, people)
	ctx := context.Background()

	_, err := env.pods.JoinPod(ctx, people[0].UserID, models.NewID())
	require.ErrorIs(t, err, ErrPodNotFound)

	_, err = env.pods.JoinPod(ctx, models.NewID(), models.NewID())
	require.ErrorIs(t, err, ErrUserNotFound)

	pod, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(people[0], people[1])})
	require.NoError(t, err)

	_, err = env.pods.JoinPod(ctx, people[2].UserID, pod.Pod.ID)
	require.ErrorIs(t, err, ErrPodNotAcceptingMembers)

	// Falling back to FORMING and refilling to two members re-activates the pod.
	activatedAt := pod.Pod.ActivatedAt
	require.NotNil(t, activatedAt)
	left, err := env.pods.LeavePod(ctx, people[1].UserID, pod.Pod.ID, "moving")
	require.NoError(t, err)
	require.Equal(t, models.PodStatusForming, left.Pod.Status)

	env.clock.Advance(time.Hour)
	refilled, err := env.pods.JoinPod(ctx, people[2].UserID, pod.Pod.ID)
	require.NoError(t, err)
	require.Equal(t, models.PodStatusActive, refilled.Pod.Status)
	require.Equal(t, 2, refilled.Pod.CurrentMembers)
	require.NotNil(t, refilled.Pod.ActivatedAt)
	require.True(t, activatedAt.Equal(*refilled.Pod.ActivatedAt))

	_, err = env.pods.JoinPod(ctx, people[3].UserID, pod.Pod.ID)
	require.ErrorIs(t, err, ErrPodNotAcceptingMembers)

	session, err := env.sessions.CreateSession(ctx, CreateSessionInput{PodID: pod.Pod.ID, ScheduledAt: env.clock.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusScheduled, session.Status)

	_, err = env.pods.ActivatePod(ctx, pod.Pod.ID, "")
	require.ErrorIs(t, err, ErrInvalidPodTransition)
}

func TestJoinPodRejectsFullFormingPod(t *testing.T) {
	joiner := testfixtures.NewCandidate()
	env := newTestEnv(t, []models.Candidate{joiner})
	ctx := context.Background()

	full := &models.Pod{SprintType: "gym", Status: models.PodStatusForming, CurrentMembers: models.MaxPodSize, MaxMembers: models.MaxPodSize}
	require.NoError(t, env.store.Pods().CreatePod(ctx, full))
	for i := 0; i < models.MaxPodSize; i++ {
		role := models.RoleMember
		if i == 0 {
			role = models.RoleFacilitator
		}
		require.NoError(t, env.store.Pods().CreateMembership(ctx, &models.PodMembership{
			PodID:    full.ID,
			UserID:   models.NewID(),
			Role:     role,
			Status:   models.MembershipStatusActive,
			JoinedAt: env.clock.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	_, err := env.pods.JoinPod(ctx, joiner.UserID, full.ID)
	require.ErrorIs(t, err, ErrPodFull)
	require.Equal(t, models.MaxPodSize, countActive(t, env, full.ID))
}

// formingPodWithOneMember builds a pod holding only owner by letting the second founder leave.
func formingPodWithOneMember(t *testing.T, env *testEnv, owner, other models.Candidate) string {
	t.Helper()
	ctx := context.Background()
	created, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(owner, other)})
	require.NoError(t, err)
	left, err := env.pods.LeavePod(ctx, other.UserID, created.Pod.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.PodStatusForming, left.Pod.Status)
	return created.Pod.ID
}

func TestMembershipExclusivityAcrossServiceInstances(t *testing.T) {
	people := make([]models.Candidate, 5)
	for i := range people {
		people[i] = testfixtures.NewCandidate()
	}
	env := newTestEnv(t, people)
	ctx := context.Background()

	first := formingPodWithOneMember(t, env, people[0], people[1])
	second := formingPodWithOneMember(t, env, people[2], people[3])
	joiner := people[4].UserID

	// A second service over the same database shares no in-process locks with env.pods.
	other, err := NewPodService(env.store, env.users, WithPodClock(env.clock.NowFunc()))
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.pods.JoinPod(ctx, joiner, first)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = other.JoinPod(ctx, joiner, second)
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrUserAlreadyMatched)
	}
	require.Equal(t, 1, succeeded)

	open, err := env.store.Pods().OpenMemberships(ctx, joiner)
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestPodInvariantUnderConcurrentJoinLeave(t *testing.T) {
	people := make([]models.Candidate, 10)
	for i := range people {
		people[i] = testfixtures.NewCandidate()
	}
	env := newTestEnv(t, people)
	ctx := context.Background()
	podID := formingPodWithOneMember(t, env, people[0], people[1])

	other, err := NewPodService(env.store, env.users, WithPodClock(env.clock.NowFunc()))
	require.NoError(t, err)
	instances := []*PodService{env.pods, other}

	var wg sync.WaitGroup
	for i, p := range people[1:] {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			svc := instances[i%len(instances)]
			for round := 0; round < 3; round++ {
				_, _ = svc.JoinPod(ctx, userID, podID)
				if (i+round)%2 == 0 {
					_, _ = svc.LeavePod(ctx, userID, podID, "")
				}
			}
		}(i, p.UserID)
	}
	wg.Wait()

	details, err := env.pods.GetPodDetails(ctx, podID)
	require.NoError(t, err)
	require.Equal(t, countActive(t, env, podID), details.Pod.CurrentMembers)
	require.Len(t, details.Members, details.Pod.CurrentMembers)
	require.LessOrEqual(t, details.Pod.CurrentMembers, models.MaxPodSize)
	if details.Pod.CurrentMembers > 0 {
		require.Equal(t, 1, countFacilitators(details.Members))
	}
	if details.Pod.CurrentMembers >= models.MinPodSize {
		require.Equal(t, models.PodStatusActive, details.Pod.Status)
	}
}

func TestLeavePodBoundaries(t *testing.T) {
	a, b := testfixtures.NewCandidate(), testfixtures.NewCandidate()
	env := newTestEnv(t, []models.Candidate{a, b})
	ctx := context.Background()

	pod, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(a, b)})
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	details, err := env.pods.LeavePod(ctx, a.UserID, pod.Pod.ID, "schedule conflict")
	require.NoError(t, err)
	require.Equal(t, models.PodStatusForming, details.Pod.Status)
	require.Equal(t, 1, details.Pod.CurrentMembers)
	require.Len(t, details.Members, 1)
	require.Equal(t, b.UserID, details.Members[0].UserID)
	require.True(t, details.Members[0].IsFacilitator())

	_, err = env.pods.LeavePod(ctx, a.UserID, pod.Pod.ID, "")
	require.ErrorIs(t, err, ErrMembershipNotFound)

	details, err = env.pods.LeavePod(ctx, b.UserID, pod.Pod.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.PodStatusDisbanded, details.Pod.Status)
	require.Equal(t, 0, details.Pod.CurrentMembers)
	require.NotNil(t, details.Pod.ClosedAt)
	require.Empty(t, details.Members)

	_, err = env.pods.JoinPod(ctx, a.UserID, pod.Pod.ID)
	require.ErrorIs(t, err, ErrPodNotAcceptingMembers)

	logs, total, err := env.audit.List(ctx, AuditListOptions{Filters: AuditFilters{ResourceID: pod.Pod.ID}})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	actions := map[string]int{}
	for _, l := range logs {
		actions[l.Action]++
	}
	require.Equal(t, map[string]int{"pod.created": 1, "pod.left": 2, "pod.disbanded": 1}, actions)
}

func TestFacilitatorSuccessionPicksEarliestJoiner(t *testing.T) {
	a, b, c := testfixtures.NewCandidate(), testfixtures.NewCandidate(), testfixtures.NewCandidate()
	env := newTestEnv(t, []models.Candidate{a, b, c})
	ctx := context.Background()

	pod, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(a, b, c)})
	require.NoError(t, err)

	details, err := env.pods.LeavePod(ctx, a.UserID, pod.Pod.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.PodStatusActive, details.Pod.Status)
	require.Equal(t, 2, details.Pod.CurrentMembers)
	require.Equal(t, b.UserID, details.Members[0].UserID)
	require.True(t, details.Members[0].IsFacilitator())
	require.Equal(t, 1, countFacilitators(details.Members))
}

func TestPodInvariantUnderRandomJoinLeave(t *testing.T) {
	people := make([]models.Candidate, 6)
	for i := range people {
		people[i] = testfixtures.NewCandidate()
	}
	env := newTestEnv(t, people)
	ctx := context.Background()

	pod, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(people[0], people[1])})
	require.NoError(t, err)
	podID := pod.Pod.ID

	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 60; step++ {
		env.clock.Advance(time.Minute)
		p := people[rng.Intn(len(people))]
		if rng.Intn(2) == 0 {
			_, _ = env.pods.JoinPod(ctx, p.UserID, podID)
		} else {
			_, _ = env.pods.LeavePod(ctx, p.UserID, podID, "")
		}

		details, err := env.pods.GetPodDetails(ctx, podID)
		require.NoError(t, err)
		require.Equal(t, len(details.Members), details.Pod.CurrentMembers, "step %d", step)
		require.LessOrEqual(t, details.Pod.CurrentMembers, models.MaxPodSize)
		if details.Pod.CurrentMembers > 0 {
			require.Equal(t, 1, countFacilitators(details.Members), "step %d", step)
			require.True(t, details.Members[0].IsFacilitator())
		}
		if details.Pod.Status == models.PodStatusDisbanded {
			break
		}
	}
}

func TestCompletePod(t *testing.T) {
	a, b, c := testfixtures.NewCandidate(), testfixtures.NewCandidate(), testfixtures.NewCandidate()
	env := newTestEnv(t, []models.Candidate{a, b, c})
	ctx := context.Background()

	pod, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(a, b)})
	require.NoError(t, err)

	done, err := env.pods.CompletePod(ctx, pod.Pod.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, models.PodStatusCompleted, done.Pod.Status)

	again, err := env.pods.CompletePod(ctx, pod.Pod.ID, "admin")
	require.NoError(t, err)
	require.Equal(t, models.PodStatusCompleted, again.Pod.Status)

	// Members of a completed pod are free to match again.
	_, err = env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(a, c)})
	require.NoError(t, err)

	// Leaving a completed pod keeps its status.
	left, err := env.pods.LeavePod(ctx, b.UserID, pod.Pod.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.PodStatusCompleted, left.Pod.Status)

	_, err = env.pods.CompletePod(ctx, models.NewID(), "")
	require.ErrorIs(t, err, ErrPodNotFound)
}

func TestGetUserPodsOnlyOpenPods(t *testing.T) {
	a, b := testfixtures.NewCandidate(), testfixtures.NewCandidate()
	env := newTestEnv(t, []models.Candidate{a, b})
	ctx := context.Background()

	pod, err := env.pods.CreatePod(ctx, CreatePodInput{SprintType: "gym", MemberIDs: ids(a, b)})
	require.NoError(t, err)

	pods, err := env.pods.GetUserPods(ctx, b.UserID)
	require.NoError(t, err)
	require.Len(t, pods, 1)
	require.Equal(t, a.UserID, pods[0].Members[0].UserID)

	_, err = env.pods.CompletePod(ctx, pod.Pod.ID, "")
	require.NoError(t, err)

	pods, err = env.pods.GetUserPods(ctx, b.UserID)
	require.NoError(t, err)
	require.Empty(t, pods)

	_, err = env.pods.GetPodDetails(ctx, models.NewID())
	require.ErrorIs(t, err, ErrPodNotFound)
}

func TestCreatePodFromSuggestionStoresCompatibility(t *testing.T) {
	a, b := testfixtures.NewCandidate(), testfixtures.NewCandidate(testfixtures.WithExperience(models.ExperienceIntermediate))
	env := newTestEnv(t, []models.Candidate{a, b})

	score := matching.Mean([]matching.Score{env.engine.Scorer().Score(a, b)})
	details, err := env.pods.CreatePod(context.Background(), CreatePodInput{SprintType: "gym", MemberIDs: ids(a, b), Compatibility: &score})
	require.NoError(t, err)
	require.Contains(t, string(details.Pod.MatchingData), "compatibility")
	require.Contains(t, string(details.Pod.MatchingData), a.UserID)
}
