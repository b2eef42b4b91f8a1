package matching

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone rules for minimal containers

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
)

// Factor weights. They sum to 1.0 and are the same for every call.
const (
	WeightTimezone      = 0.30
	WeightExperience    = 0.25
	WeightCollaboration = 0.25
	WeightAvailability  = 0.20

	// NeutralScore is used for any factor whose inputs are missing or malformed.
	NeutralScore = 0.5
)

// Score is the compatibility between two candidates, or the mean across a group. Every field is in [0,1].
type Score struct {
	Overall             float64 `json:"overall"`
	TimezoneMatch       float64 `json:"timezone_match"`
	ExperienceLevel     float64 `json:"experience_level"`
	CollaborationStyle  float64 `json:"collaboration_style"`
	AvailabilityOverlap float64 `json:"availability_overlap"`
}

// PerfectScore is used for a requester joining an empty pod.
func PerfectScore() Score {
	return Score{Overall: 1, TimezoneMatch: 1, ExperienceLevel: 1, CollaborationStyle: 1, AvailabilityOverlap: 1}
}

// Scorer computes pairwise compatibility. It is safe for concurrent use.
type Scorer struct {
	now func() time.Time
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithScorerClock sets the instant at which timezone offsets are evaluated.
func WithScorerClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScorer returns a Scorer using the wall clock unless overridden.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score compares a and b. It never fails; bad inputs degrade the affected factor to NeutralScore.
func (s *Scorer) Score(a, b models.Candidate) Score {
	at := s.now()
	out := Score{
		TimezoneMatch:       timezoneScore(a.Timezone, b.Timezone, at),
		ExperienceLevel:     experienceScore(a.Preferences.ExperienceLevel, b.Preferences.ExperienceLevel),
		CollaborationStyle:  collaborationScore(a.Preferences.CollaborationStyle, b.Preferences.CollaborationStyle),
		AvailabilityOverlap: availabilityScore(a.Preferences.AvailabilityWindows, b.Preferences.AvailabilityWindows),
	}
	out.Overall = weighted(out)
	return out
}

// Mean averages the factors of scores and recomputes Overall from the averaged factors.
func Mean(scores []Score) Score {
	if len(scores) == 0 {
		return PerfectScore()
	}
	var sum Score
	for _, sc := range scores {
		sum.TimezoneMatch += sc.TimezoneMatch
		sum.ExperienceLevel += sc.ExperienceLevel
		sum.CollaborationStyle += sc.CollaborationStyle
		sum.AvailabilityOverlap += sc.AvailabilityOverlap
	}
	n := float64(len(scores))
	out := Score{
		TimezoneMatch:       sum.TimezoneMatch / n,
		ExperienceLevel:     sum.ExperienceLevel / n,
		CollaborationStyle:  sum.CollaborationStyle / n,
		AvailabilityOverlap: sum.AvailabilityOverlap / n,
	}
	out.Overall = weighted(out)
	return out
}

func weighted(s Score) float64 {
	total := WeightTimezone*s.TimezoneMatch +
		WeightExperience*s.ExperienceLevel +
		WeightCollaboration*s.CollaborationStyle +
		WeightAvailability*s.AvailabilityOverlap
	return clamp01(total)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return NeutralScore
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

var offsetPattern = regexp.MustCompile(`^(?i)(?:utc|gmt)(?:([+-])(\d{1,2})(?::?(\d{2}))?)?$`)

// offsetHours resolves tz to its UTC offset in hours at the given instant.
func offsetHours(tz string, at time.Time) (float64, bool) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return 0, false
	}
	if m := offsetPattern.FindStringSubmatch(tz); m != nil {
		if m[1] == "" {
			return 0, true
		}
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 14 || minutes >= 60 {
			return 0, false
		}
		value := float64(hours) + float64(minutes)/60
		if m[1] == "-" {
			value = -value
		}
		return value, true
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0, false
	}
	_, seconds := at.In(loc).Zone()
	return float64(seconds) / 3600, true
}

func timezoneScore(a, b string, at time.Time) float64 {
	offA, okA := offsetHours(a, at)
	offB, okB := offsetHours(b, at)
	if !okA || !okB {
		return NeutralScore
	}
	diff := math.Abs(offA - offB)
	switch {
	case diff < 1e-9:
		return 1.0
	case diff <= 2:
		return 0.8
	case diff <= 4:
		return 0.6
	case diff <= 6:
		return 0.4
	case diff <= 8:
		return 0.2
	default:
		return 0.1
	}
}

var experienceRank = map[models.ExperienceLevel]int{
	models.ExperienceBeginner:     0,
	models.ExperienceIntermediate: 1,
	models.ExperienceAdvanced:     2,
}

func experienceScore(a, b models.ExperienceLevel) float64 {
	ra, okA := experienceRank[normalizeLevel(a)]
	rb, okB := experienceRank[normalizeLevel(b)]
	if !okA || !okB {
		return NeutralScore
	}
	switch gap := ra - rb; {
	case gap == 0:
		return 1.0
	case gap == 1 || gap == -1:
		return 0.7
	default:
		return 0.3
	}
}

type stylePair struct{ a, b models.CollaborationStyle }

var collaborationMatrix = map[stylePair]float64{
	{models.CollaborationStructured, models.CollaborationStructured}: 1.0,
	{models.CollaborationFlexible, models.CollaborationFlexible}:     1.0,
	{models.CollaborationCasual, models.CollaborationCasual}:         1.0,
	{models.CollaborationStructured, models.CollaborationFlexible}:   0.7,
	{models.CollaborationFlexible, models.CollaborationCasual}:       0.8,
	{models.CollaborationStructured, models.CollaborationCasual}:     0.4,
}

func collaborationScore(a, b models.CollaborationStyle) float64 {
	a, b = normalizeStyle(a), normalizeStyle(b)
	if v, ok := collaborationMatrix[stylePair{a, b}]; ok {
		return v
	}
	if v, ok := collaborationMatrix[stylePair{b, a}]; ok {
		return v
	}
	return NeutralScore
}

func normalizeLevel(l models.ExperienceLevel) models.ExperienceLevel {
	return models.ExperienceLevel(strings.ToLower(strings.TrimSpace(string(l))))
}

func normalizeStyle(s models.CollaborationStyle) models.CollaborationStyle {
	return models.CollaborationStyle(strings.ToLower(strings.TrimSpace(string(s))))
}

const (
	minutesPerDay  = 24 * 60
	minutesPerWeek = 7 * minutesPerDay
)

// window is a slot on the weekly axis. end may run past midnight or past the end of the week.
type window struct {
	day        int
	start, end int // minutes from Sunday 00:00
}

func parseSlots(slots []models.TimeSlot) []window {
	out := make([]window, 0, len(slots))
	for _, slot := range slots {
		if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 || slot.DurationMinutes <= 0 || slot.DurationMinutes > minutesPerDay {
			continue
		}
		start, err := time.Parse("15:04", strings.TrimSpace(slot.StartTime))
		if err != nil {
			continue
		}
		minutes := slot.DayOfWeek*minutesPerDay + start.Hour()*60 + start.Minute()
		out = append(out, window{day: slot.DayOfWeek, start: minutes, end: minutes + slot.DurationMinutes})
	}
	return out
}

// overlapMinutes measures the shared minutes of x and y, wrapping Saturday night into Sunday.
func overlapMinutes(x, y window) int {
	best := 0
	for _, shift := range []int{-minutesPerWeek, 0, minutesPerWeek} {
		lo, hi := max(x.start, y.start+shift), min(x.end, y.end+shift)
		best = max(best, hi-lo)
	}
	return best
}

// availabilityScore is Σoverlap / Σmin(duration), capped at 1, over slot pairs that share a day
// or overlap across midnight.
func availabilityScore(a, b []models.TimeSlot) float64 {
	wa, wb := parseSlots(a), parseSlots(b)
	if len(wa) == 0 || len(wb) == 0 {
		return NeutralScore
	}

	var overlap, possible float64
	for _, x := range wa {
		for _, y := range wb {
			shared := overlapMinutes(x, y)
			if x.day != y.day && shared == 0 {
				continue
			}
			overlap += float64(shared)
			possible += float64(min(x.end-x.start, y.end-y.start))
		}
	}
	if possible == 0 {
		return 0
	}
	return math.Min(1, overlap/possible)
}
