package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/logger"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/metrics"
)

const (
	// MinCompatibilityThreshold is the lowest overall score that produces a suggestion.
	MinCompatibilityThreshold = 0.6

	// scoreTolerance absorbs float error in the weighted sum when comparing against the threshold.
	scoreTolerance = 1e-9

	minNewGroupOthers = models.MinPodSize - 1
	maxNewGroupOthers = models.MaxPodSize - 1
)

// SuggestionKind distinguishes joining an existing pod from forming a new one.
type SuggestionKind string

const (
	SuggestionExistingPod SuggestionKind = "existing"
	SuggestionNewPod      SuggestionKind = "new"
)

// PodCandidate is a FORMING pod together with the profiles of its ACTIVE members.
type PodCandidate struct {
	Pod     models.Pod
	Members []models.Candidate
}

// PoolSource supplies the inputs of a search. Implementations are read-only.
type PoolSource interface {
	// FormingPods returns FORMING pods for sprintType with their active members.
	FormingPods(ctx context.Context, sprintType string) ([]PodCandidate, error)
	// UnmatchedCandidates returns users waiting on sprintType who hold no open membership,
	// excluding excludeUserID, oldest request first.
	UnmatchedCandidates(ctx context.Context, sprintType, excludeUserID string) ([]models.Candidate, error)
}

// Request asks for suggestions for one candidate.
type Request struct {
	Candidate models.Candidate
	// Limit caps the number of suggestions returned. Zero means no cap.
	Limit int
}

// Suggestion proposes a pod for the requester. PodID is empty for a new group.
type Suggestion struct {
	Kind       SuggestionKind `json:"kind"`
	PodID      string         `json:"pod_id,omitempty"`
	SprintType string         `json:"sprint_type"`
	MemberIDs  []string       `json:"member_ids"`
	Score      Score          `json:"score"`
}

// Engine searches existing pods and the unmatched pool for compatible groups.
type Engine struct {
	scorer      *Scorer
	source      PoolSource
	threshold   float64
	maxPoolSize int
	log         *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithScorer replaces the default scorer.
func WithScorer(s *Scorer) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithMaxPoolSize bounds how many unmatched candidates are considered. Zero disables the bound.
func WithMaxPoolSize(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.maxPoolSize = n
		}
	}
}

// NewEngine builds a formation engine reading from source.
func NewEngine(source PoolSource, opts ...EngineOption) (*Engine, error) {
	if source == nil {
		return nil, errors.New("matching engine: pool source is required")
	}
	e := &Engine{
		scorer:    NewScorer(),
		source:    source,
		threshold: MinCompatibilityThreshold,
		log:       logger.WithModule("matching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Scorer exposes the pairwise scorer used by the engine.
func (e *Engine) Scorer() *Scorer {
	return e.scorer
}

func (e *Engine) meetsThreshold(overall float64) bool {
	return overall+scoreTolerance >= e.threshold
}

// FindSuggestions returns suggestions at or above the threshold ordered by overall score, highest first.
// Ties keep discovery order: existing pods, then new groups by size and lexicographic pool index.
func (e *Engine) FindSuggestions(ctx context.Context, req Request) (suggestions []Suggestion, err error) {
	defer func() {
		metrics.MatchRequests.WithLabelValues(metrics.ResultLabel(err)).Inc()
	}()

	requester := req.Candidate
	sprint := strings.TrimSpace(requester.SprintType)
	if requester.UserID == "" || sprint == "" {
		return nil, errors.New("matching engine: requester id and sprint type are required")
	}
	requester.SprintType = sprint

	pods, err := e.source.FormingPods(ctx, sprint)
	if err != nil {
		return nil, fmt.Errorf("matching engine: load forming pods: %w", err)
	}
	for _, pc := range pods {
		if s, ok := e.existingPodSuggestion(requester, pc); ok {
			suggestions = append(suggestions, s)
		}
	}

	pool, err := e.source.UnmatchedCandidates(ctx, sprint, requester.UserID)
	if err != nil {
		return nil, fmt.Errorf("matching engine: load candidate pool: %w", err)
	}
	if e.maxPoolSize > 0 && len(pool) > e.maxPoolSize {
		e.log.Debug("truncating candidate pool", zap.String("sprint_type", sprint), zap.Int("pool", len(pool)), zap.Int("max", e.maxPoolSize))
		pool = pool[:e.maxPoolSize]
	}
	suggestions = append(suggestions, e.newGroupSuggestions(requester, pool)...)

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score.Overall > suggestions[j].Score.Overall
	})
	if req.Limit > 0 && len(suggestions) > req.Limit {
		suggestions = suggestions[:req.Limit]
	}

	for _, s := range suggestions {
		metrics.MatchSuggestions.WithLabelValues(string(s.Kind)).Inc()
		metrics.CompatibilityScores.Observe(s.Score.Overall)
	}
	e.log.Debug("match search finished",
		zap.String("user_id", requester.UserID),
		zap.String("sprint_type", sprint),
		zap.Int("forming_pods", len(pods)),
		zap.Int("pool", len(pool)),
		zap.Int("suggestions", len(suggestions)),
	)
	return suggestions, nil
}

func (e *Engine) existingPodSuggestion(requester models.Candidate, pc PodCandidate) (Suggestion, bool) {
	pod := pc.Pod
	if pod.Status != models.PodStatusForming || pod.SprintType != requester.SprintType || !pod.HasCapacity() {
		return Suggestion{}, false
	}

	memberIDs := make([]string, 0, len(pc.Members)+1)
	pairs := make([]Score, 0, len(pc.Members))
	for _, member := range pc.Members {
		if member.UserID == requester.UserID {
			return Suggestion{}, false
		}
		memberIDs = append(memberIDs, member.UserID)
		pairs = append(pairs, e.scorer.Score(requester, member))
	}

	score := PerfectScore()
	if len(pairs) > 0 {
		score = Mean(pairs)
	}
	if !e.meetsThreshold(score.Overall) {
		return Suggestion{}, false
	}
	return Suggestion{
		Kind:       SuggestionExistingPod,
		PodID:      pod.ID,
		SprintType: pod.SprintType,
		MemberIDs:  append(memberIDs, requester.UserID),
		Score:      score,
	}, true
}

func (e *Engine) newGroupSuggestions(requester models.Candidate, pool []models.Candidate) []Suggestion {
	if len(pool) == 0 {
		return nil
	}

	// Index 0 is the requester; pool[i] sits at i+1.
	people := make([]models.Candidate, 0, len(pool)+1)
	people = append(people, requester)
	people = append(people, pool...)
	matrix := e.pairwiseMatrix(people)

	var out []Suggestion
	group := make([]int, 0, maxNewGroupOthers+1)
	for k := minNewGroupOthers; k <= maxNewGroupOthers; k++ {
		ForEachCombination(len(pool), k, func(idx []int) bool {
			group = group[:0]
			group = append(group, 0)
			for _, i := range idx {
				group = append(group, i+1)
			}

			pairs := make([]Score, 0, len(group)*(len(group)-1)/2)
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					pairs = append(pairs, matrix[group[i]][group[j]])
				}
			}
			score := Mean(pairs)
			if !e.meetsThreshold(score.Overall) {
				return true
			}

			memberIDs := make([]string, len(group))
			for i, p := range group {
				memberIDs[i] = people[p].UserID
			}
			out = append(out, Suggestion{
				Kind:       SuggestionNewPod,
				SprintType: requester.SprintType,
				MemberIDs:  memberIDs,
				Score:      score,
			})
			return true
		})
	}
	return out
}

func (e *Engine) pairwiseMatrix(people []models.Candidate) [][]Score {
	matrix := make([][]Score, len(people))
	for i := range matrix {
		matrix[i] = make([]Score, len(people))
	}
	for i := 0; i < len(people); i++ {
		for j := i + 1; j < len(people); j++ {
			s := e.scorer.Score(people[i], people[j])
			matrix[i][j] = s
			matrix[j][i] = s
		}
	}
	return matrix
}
