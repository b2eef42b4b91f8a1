package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/logger"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/metrics"
)

const (
	defaultWaitlistTTL      = 24 * time.Hour
	defaultWarningAfter     = 20 * time.Hour
	defaultMaxSuggestions   = 3
	defaultSweepConcurrency = 4
	timerCallbackTimeout    = 30 * time.Second
)

// SuggestionFinder produces ranked pod suggestions.
type SuggestionFinder interface {
	FindSuggestions(ctx context.Context, req matching.Request) ([]matching.Suggestion, error)
}

// WaitlistConfig controls the matching window.
type WaitlistConfig struct {
	TTL              time.Duration
	WarningAfter     time.Duration
	MaxSuggestions   int
	SweepConcurrency int
	InProcessTimers  bool
}

// RequestMatchInput opens or refreshes a matching request.
type RequestMatchInput struct {
	UserID     string
	SprintType string
	// Preferences and Timezone override the stored profile when set.
	Preferences *models.Preferences
	Timezone    string
	Limit       int
}

// MatchResult is the waitlist entry for a request with the suggestions found for it.
type MatchResult struct {
	Entry       models.WaitlistEntry  `json:"entry"`
	Suggestions []matching.Suggestion `json:"suggestions"`
}

// SweepStats summarises one pass of ProcessExpiredEntries.
type SweepStats struct {
	Warned  int `json:"warned"`
	Expired int `json:"expired"`
	Matched int `json:"matched"`
}

// TimeoutOutcome reports what HandleTimeout did.
type TimeoutOutcome string

const (
	TimeoutSkipped      TimeoutOutcome = "skipped"
	TimeoutStale        TimeoutOutcome = "stale"
	TimeoutMatchesFound TimeoutOutcome = "matches_found"
	TimeoutExpired      TimeoutOutcome = "expired"
)

// WaitlistService owns time-boxed matching requests. Persisted due times drive the sweep;
// in-process timers only run the same idempotent handlers earlier.
type WaitlistService struct {
	store    store.Store
	users    store.UserDirectory
	finder   SuggestionFinder
	pods     *PodService
	notifier Notifier
	cfg      WaitlistConfig
	locks    *keyedLocker
	timeNow  func() time.Time
	log      *zap.Logger

	timersMu sync.Mutex
	timers   map[string][]*time.Timer
}

// WaitlistOption customises the waitlist service.
type WaitlistOption func(*WaitlistService)

// WithWaitlistConfig overrides the matching window.
func WithWaitlistConfig(cfg WaitlistConfig) WaitlistOption {
	return func(s *WaitlistService) {
		if cfg.TTL > 0 {
			s.cfg.TTL = cfg.TTL
		}
		if cfg.WarningAfter > 0 {
			s.cfg.WarningAfter = cfg.WarningAfter
		}
		if cfg.MaxSuggestions > 0 {
			s.cfg.MaxSuggestions = cfg.MaxSuggestions
		}
		if cfg.SweepConcurrency > 0 {
			s.cfg.SweepConcurrency = cfg.SweepConcurrency
		}
		s.cfg.InProcessTimers = cfg.InProcessTimers
	}
}

// WithWaitlistClock overrides the clock (test helper).
func WithWaitlistClock(now func() time.Time) WaitlistOption {
	return func(s *WaitlistService) {
		if now != nil {
			s.timeNow = now
		}
	}
}

// NewWaitlistService wires the waitlist to the matching engine, pod lifecycle and notifier.
func NewWaitlistService(st store.Store, users store.UserDirectory, finder SuggestionFinder, pods *PodService, notifier Notifier, opts ...WaitlistOption) (*WaitlistService, error) {
	switch {
	case st == nil:
		return nil, errors.New("waitlist service: store is required")
	case users == nil:
		return nil, errors.New("waitlist service: user directory is required")
	case finder == nil:
		return nil, errors.New("waitlist service: suggestion finder is required")
	case pods == nil:
		return nil, errors.New("waitlist service: pod service is required")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}

	svc := &WaitlistService{
		store:    st,
		users:    users,
		finder:   finder,
		pods:     pods,
		notifier: notifier,
		cfg: WaitlistConfig{
			TTL:              defaultWaitlistTTL,
			WarningAfter:     defaultWarningAfter,
			MaxSuggestions:   defaultMaxSuggestions,
			SweepConcurrency: defaultSweepConcurrency,
		},
		locks:   newKeyedLocker(),
		timeNow: time.Now,
		log:     logger.WithModule("waitlist"),
		timers:  make(map[string][]*time.Timer),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.cfg.WarningAfter >= svc.cfg.TTL {
		return nil, errors.New("waitlist service: warning must come before expiry")
	}
	return svc, nil
}

func (s *WaitlistService) now() time.Time {
	return s.timeNow().UTC()
}

// RequestMatch opens a waitlist entry (or reuses the user's active one for the sprint) and
// returns the current suggestions for it.
func (s *WaitlistService) RequestMatch(ctx context.Context, input RequestMatchInput) (result *MatchResult, err error) {
	ctx = ensureContext(ctx)
	defer func() {
		if err == nil {
			metrics.WaitlistEvents.WithLabelValues("requested").Inc()
		}
	}()

	userID, sprint := strings.TrimSpace(input.UserID), strings.TrimSpace(input.SprintType)
	if userID == "" || sprint == "" {
		return nil, apperrors.NewBadRequest("user_id and sprint_type are required")
	}
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, translate(err, nil, "Failed to resolve user")
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	matched, err := s.pods.HasOpenMembership(ctx, userID)
	if err != nil {
		return nil, err
	}
	if matched {
		return nil, ErrUserAlreadyMatched
	}

	profile, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		return nil, translate(err, nil, "Failed to load preferences")
	}
	prefs := profile.Preferences
	if input.Preferences != nil {
		prefs = input.Preferences.WithDefaults()
	}
	tz := profile.Timezone
	if t := strings.TrimSpace(input.Timezone); t != "" {
		tz = t
	}

	unlock := s.locks.Lock(userKey(userID))
	entry, created, err := s.openEntry(ctx, userID, sprint, prefs, tz)
	unlock()
	if err != nil {
		return nil, err
	}
	if created {
		s.schedule(*entry)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.cfg.MaxSuggestions
	}
	candidate := entry.Candidate()
	candidate.Preferences, candidate.Timezone = prefs, tz
	suggestions, err := s.finder.FindSuggestions(ctx, matching.Request{Candidate: candidate, Limit: limit})
	if err != nil {
		return nil, apperrors.Transient(err, "Matching unavailable")
	}

	s.log.Info("match requested",
		zap.String("entry_id", entry.ID),
		zap.String("user_id", userID),
		zap.String("sprint_type", sprint),
		zap.Bool("new_entry", created),
		zap.Int("suggestions", len(suggestions)),
	)
	return &MatchResult{Entry: *entry, Suggestions: suggestions}, nil
}

func (s *WaitlistService) openEntry(ctx context.Context, userID, sprint string, prefs models.Preferences, tz string) (*models.WaitlistEntry, bool, error) {
	var (
		entry   *models.WaitlistEntry
		created bool
	)
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		existing, err := tx.Waitlist().ActiveEntryFor(ctx, userID, sprint)
		switch {
		case err == nil:
			entry = existing
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return translate(err, nil, "Failed to load waitlist entry")
		}

		now := s.now()
		entry = &models.WaitlistEntry{
			UserID:      userID,
			SprintType:  sprint,
			Preferences: datatypes.NewJSONType(prefs),
			Timezone:    tz,
			Status:      models.WaitlistStatusActive,
			WarningAt:   now.Add(s.cfg.WarningAfter),
			ExpiresAt:   now.Add(s.cfg.TTL),
		}
		entry.CreatedAt = now
		if err := tx.Waitlist().CreateEntry(ctx, entry); err != nil {
			return translate(err, nil, "Failed to create waitlist entry")
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, translate(err, nil, "Failed to open waitlist entry")
	}
	return entry, created, nil
}

// GetEntry returns one waitlist entry.
func (s *WaitlistService) GetEntry(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	entry, err := s.store.Waitlist().GetEntry(ensureContext(ctx), strings.TrimSpace(entryID))
	if err != nil {
		return nil, translate(err, ErrWaitlistEntryNotFound, "Failed to load waitlist entry")
	}
	return entry, nil
}

// CancelEntry cancels an active entry. Cancelling a cancelled entry is a no-op; pending
// warning and timeout handlers observe the new status and do nothing.
func (s *WaitlistService) CancelEntry(ctx context.Context, entryID, userID string) (*models.WaitlistEntry, error) {
	ctx = ensureContext(ctx)
	entry, err := s.ownedEntry(ctx, entryID, userID)
	if err != nil {
		return nil, err
	}
	if entry.Status == models.WaitlistStatusCancelled {
		return entry, nil
	}

	done, err := s.store.Waitlist().Resolve(ctx, entry.ID, models.WaitlistStatusCancelled, s.now(), nil)
	if err != nil {
		return nil, translate(err, nil, "Failed to cancel waitlist entry")
	}
	s.stopTimers(entry.ID)
	if !done {
		current, err := s.GetEntry(ctx, entry.ID)
		if err == nil && current.Status == models.WaitlistStatusCancelled {
			return current, nil
		}
		return nil, ErrWaitlistEntryClosed
	}

	metrics.WaitlistEvents.WithLabelValues("cancelled").Inc()
	return s.GetEntry(ctx, entry.ID)
}

// HandleWarning sends the timeout warning for a still-unmatched entry once.
// It reports whether a warning was sent.
func (s *WaitlistService) HandleWarning(ctx context.Context, entryID string) (bool, error) {
	ctx = ensureContext(ctx)
	entry, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return false, err
	}
	now := s.now()
	if entry.Status != models.WaitlistStatusActive || entry.WarningSentAt != nil || now.Before(entry.WarningAt) {
		return false, nil
	}

	stale, err := s.resolveIfMatched(ctx, entry)
	if err != nil || stale {
		return false, err
	}

	claimed, err := s.store.Waitlist().ClaimWarning(ctx, entry.ID, now)
	if err != nil {
		return false, translate(err, nil, "Failed to claim waitlist warning")
	}
	if !claimed {
		return false, nil
	}

	remaining := entry.ExpiresAt.Sub(now).Round(time.Minute)
	s.deliver(ctx, entry, NotificationTimeoutWarning, map[string]any{
		"entry_id":    entry.ID,
		"sprint_type": entry.SprintType,
		"expires_at":  entry.ExpiresAt.UTC().Format(time.RFC3339),
		"expires_in":  remaining.String(),
	}, PriorityNormal)
	metrics.WaitlistEvents.WithLabelValues("warned").Inc()
	return true, nil
}

// HandleTimeout closes an unmatched entry at expiry. It searches once more and either
// re-offers up to MaxSuggestions pods or sends remediation hints. The entry ends expired.
func (s *WaitlistService) HandleTimeout(ctx context.Context, entryID string) (TimeoutOutcome, error) {
	ctx = ensureContext(ctx)
	entry, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return TimeoutSkipped, err
	}
	now := s.now()
	if entry.Status != models.WaitlistStatusActive || now.Before(entry.ExpiresAt) {
		return TimeoutSkipped, nil
	}

	stale, err := s.resolveIfMatched(ctx, entry)
	if err != nil {
		return TimeoutSkipped, err
	}
	if stale {
		return TimeoutStale, nil
	}

	candidate := entry.Candidate()
	candidate.Preferences = candidate.Preferences.WithDefaults()
	suggestions, err := s.finder.FindSuggestions(ctx, matching.Request{Candidate: candidate, Limit: s.cfg.MaxSuggestions})
	if err != nil {
		return TimeoutSkipped, apperrors.Transient(err, "Matching unavailable")
	}

	done, err := s.store.Waitlist().Resolve(ctx, entry.ID, models.WaitlistStatusExpired, now, nil)
	if err != nil {
		return TimeoutSkipped, translate(err, nil, "Failed to expire waitlist entry")
	}
	s.stopTimers(entry.ID)
	if !done {
		return TimeoutSkipped, nil
	}
	metrics.WaitlistEvents.WithLabelValues("expired").Inc()

	if len(suggestions) > 0 {
		s.deliver(ctx, entry, NotificationMatchesFound, map[string]any{
			"entry_id":         entry.ID,
			"sprint_type":      entry.SprintType,
			"suggestion_count": len(suggestions),
			"suggestions":      suggestions,
		}, PriorityHigh)
		return TimeoutMatchesFound, nil
	}

	s.deliver(ctx, entry, NotificationTimeoutExpired, map[string]any{
		"entry_id":    entry.ID,
		"sprint_type": entry.SprintType,
		"hints":       remediationHints(candidate),
	}, PriorityNormal)
	return TimeoutExpired, nil
}

// ProcessExpiredEntries re-derives due warnings and expirations from stored state.
// Safe to run concurrently with in-process timers.
func (s *WaitlistService) ProcessExpiredEntries(ctx context.Context) (SweepStats, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	var (
		mu    sync.Mutex
		stats SweepStats
		errs  error
	)
	collect := func(err error) {
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
	}

	warnings, err := s.store.Waitlist().DueWarnings(ctx, now)
	if err != nil {
		return stats, translate(err, nil, "Failed to load due warnings")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)
	for _, entry := range warnings {
		id := entry.ID
		g.Go(func() error {
			sent, err := s.HandleWarning(gctx, id)
			if err != nil {
				collect(err)
				return nil
			}
			if sent {
				mu.Lock()
				stats.Warned++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	expirations, err := s.store.Waitlist().DueExpirations(ctx, now)
	if err != nil {
		return stats, multierr.Append(errs, translate(err, nil, "Failed to load due expirations"))
	}
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)
	for _, entry := range expirations {
		id := entry.ID
		g.Go(func() error {
			outcome, err := s.HandleTimeout(gctx, id)
			if err != nil {
				collect(err)
				return nil
			}
			mu.Lock()
			switch outcome {
			case TimeoutStale:
				stats.Matched++
			case TimeoutExpired, TimeoutMatchesFound:
				stats.Expired++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if active, err := s.store.Waitlist().CountActive(ctx); err == nil {
		metrics.ActiveWaitlistEntries.Set(float64(active))
	} else {
		collect(translate(err, nil, "Failed to count waitlist entries"))
	}

	if stats != (SweepStats{}) {
		s.log.Info("waitlist sweep finished",
			zap.Int("warned", stats.Warned),
			zap.Int("expired", stats.Expired),
			zap.Int("matched", stats.Matched),
		)
	}
	return stats, errs
}

// AcceptSuggestion turns a suggestion into a membership: it joins the suggested FORMING pod or
// creates the proposed group with the requester as facilitator, then marks entries matched.
func (s *WaitlistService) AcceptSuggestion(ctx context.Context, entryID, userID string, suggestion matching.Suggestion) (*PodDetails, error) {
	ctx = ensureContext(ctx)
	entry, err := s.ownedEntry(ctx, entryID, userID)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.WaitlistStatusActive {
		return nil, ErrWaitlistEntryClosed
	}

	var details *PodDetails
	if podID := strings.TrimSpace(suggestion.PodID); podID != "" {
		details, err = s.pods.JoinPod(ctx, entry.UserID, podID)
	} else {
		members := []string{entry.UserID}
		for _, id := range suggestion.MemberIDs {
			if id != entry.UserID {
				members = append(members, id)
			}
		}
		score := suggestion.Score
		details, err = s.pods.CreatePod(ctx, CreatePodInput{
			SprintType:    entry.SprintType,
			MemberIDs:     members,
			Compatibility: &score,
			ActorID:       entry.UserID,
		})
	}
	if err != nil {
		return nil, err
	}

	podID := details.Pod.ID
	now := s.now()
	if _, err := s.store.Waitlist().Resolve(ctx, entry.ID, models.WaitlistStatusMatched, now, &podID); err != nil {
		s.log.Warn("failed to mark waitlist entry matched", zap.String("entry_id", entry.ID), zap.Error(err))
	}
	s.stopTimers(entry.ID)
	metrics.WaitlistEvents.WithLabelValues("matched").Inc()

	for _, member := range details.Members {
		if member.UserID == entry.UserID {
			continue
		}
		other, err := s.store.Waitlist().ActiveEntryFor(ctx, member.UserID, entry.SprintType)
		if err != nil {
			continue
		}
		if done, err := s.store.Waitlist().Resolve(ctx, other.ID, models.WaitlistStatusMatched, now, &podID); err != nil {
			s.log.Warn("failed to mark waitlist entry matched", zap.String("entry_id", other.ID), zap.Error(err))
		} else if done {
			s.stopTimers(other.ID)
			metrics.WaitlistEvents.WithLabelValues("matched").Inc()
		}
		s.deliver(ctx, other, NotificationPodFormed, map[string]any{"pod_id": podID, "sprint_type": entry.SprintType}, PriorityNormal)
	}
	return details, nil
}

// Restore re-arms in-process timers for active entries after a restart. Without sprint
// types every active entry is restored.
func (s *WaitlistService) Restore(ctx context.Context, sprintTypes ...string) error {
	if !s.cfg.InProcessTimers {
		return nil
	}
	if len(sprintTypes) == 0 {
		sprintTypes = []string{""}
	}
	var errs error
	for _, sprint := range sprintTypes {
		entries, err := s.store.Waitlist().ActiveEntries(ensureContext(ctx), sprint)
		if err != nil {
			errs = multierr.Append(errs, translate(err, nil, "Failed to load waitlist entries"))
			continue
		}
		for _, entry := range entries {
			s.schedule(entry)
		}
	}
	return errs
}

// Shutdown stops every pending in-process timer.
func (s *WaitlistService) Shutdown() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for id, timers := range s.timers {
		for _, t := range timers {
			t.Stop()
		}
		delete(s.timers, id)
	}
}

func (s *WaitlistService) ownedEntry(ctx context.Context, entryID, userID string) (*models.WaitlistEntry, error) {
	entry, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if userID = strings.TrimSpace(userID); userID != "" && entry.UserID != userID {
		return nil, ErrWaitlistEntryNotFound
	}
	return entry, nil
}

// resolveIfMatched closes an entry whose user joined a pod through another path.
func (s *WaitlistService) resolveIfMatched(ctx context.Context, entry *models.WaitlistEntry) (bool, error) {
	memberships, err := s.store.Pods().OpenMemberships(ctx, entry.UserID)
	if err != nil {
		return false, translate(err, nil, "Failed to load memberships")
	}
	if len(memberships) == 0 {
		return false, nil
	}
	podID := memberships[0].PodID
	done, err := s.store.Waitlist().Resolve(ctx, entry.ID, models.WaitlistStatusMatched, s.now(), &podID)
	if err != nil {
		return false, translate(err, nil, "Failed to resolve waitlist entry")
	}
	s.stopTimers(entry.ID)
	if done {
		metrics.WaitlistEvents.WithLabelValues("matched").Inc()
	}
	return true, nil
}

func (s *WaitlistService) deliver(ctx context.Context, entry *models.WaitlistEntry, kind NotificationKind, data map[string]any, priority Priority) {
	result := s.notifier.Send(ctx, entry.UserID, kind, data, priority)
	if result.Err != nil {
		s.log.Warn("waitlist notification failed",
			zap.String("entry_id", entry.ID),
			zap.String("kind", string(kind)),
			zap.Error(result.Err),
		)
	}
	if err := s.store.Waitlist().RecordNotification(ctx, entry.ID, string(kind)); err != nil {
		s.log.Warn("failed to record waitlist notification", zap.String("entry_id", entry.ID), zap.Error(err))
	}
}

func (s *WaitlistService) schedule(entry models.WaitlistEntry) {
	if !s.cfg.InProcessTimers || entry.Status != models.WaitlistStatusActive {
		return
	}
	now := s.now()
	warning := time.AfterFunc(max(0, entry.WarningAt.Sub(now)), func() {
		s.runTimer(entry.ID, "warning", func(ctx context.Context) error {
			_, err := s.HandleWarning(ctx, entry.ID)
			return err
		})
	})
	timeout := time.AfterFunc(max(0, entry.ExpiresAt.Sub(now)), func() {
		s.runTimer(entry.ID, "timeout", func(ctx context.Context) error {
			_, err := s.HandleTimeout(ctx, entry.ID)
			return err
		})
	})

	s.timersMu.Lock()
	for _, t := range s.timers[entry.ID] {
		t.Stop()
	}
	s.timers[entry.ID] = []*time.Timer{warning, timeout}
	s.timersMu.Unlock()
}

func (s *WaitlistService) runTimer(entryID, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timerCallbackTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.log.Warn("waitlist timer failed; the sweep will retry",
			zap.String("entry_id", entryID),
			zap.String("timer", name),
			zap.Error(err),
		)
	}
}

func (s *WaitlistService) stopTimers(entryID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for _, t := range s.timers[entryID] {
		t.Stop()
	}
	delete(s.timers, entryID)
}

func remediationHints(c models.Candidate) []string {
	prefs := c.Preferences
	var hints []string
	switch {
	case len(prefs.AvailabilityWindows) == 0:
		hints = append(hints, "add weekly availability windows so we can find overlapping times")
	case len(prefs.AvailabilityWindows) < 3:
		hints = append(hints, "add more availability windows or widen the ones you have")
	}
	if prefs.CollaborationStyle != models.CollaborationFlexible {
		hints = append(hints, "switch your collaboration style to flexible")
	}
	if c.Timezone == "" || c.Timezone == models.DefaultTimezone {
		hints = append(hints, "set your timezone so we can match you with nearby members")
	}
	hints = append(hints, "request matching again later as new members join")
	return hints
}
