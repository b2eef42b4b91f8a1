package models

// PodStatus is the lifecycle state of a pod.
type PodStatus string

const (
	PodStatusForming   PodStatus = "FORMING"
	PodStatusActive    PodStatus = "ACTIVE"
	PodStatusCompleted PodStatus = "COMPLETED"
	PodStatusDisbanded PodStatus = "DISBANDED"
)

var podTransitions = map[PodStatus][]PodStatus{
	PodStatusForming:   {PodStatusActive, PodStatusDisbanded, PodStatusCompleted},
	PodStatusActive:    {PodStatusForming, PodStatusDisbanded, PodStatusCompleted},
	PodStatusDisbanded: {PodStatusCompleted},
	PodStatusCompleted: nil,
}

// CanTransitionTo reports whether the pod may move from s to next.
func (s PodStatus) CanTransitionTo(next PodStatus) bool {
	return allowed(podTransitions[s], next)
}

// IsOpen reports whether memberships in a pod with this status count towards exclusivity.
func (s PodStatus) IsOpen() bool {
	return s == PodStatusForming || s == PodStatusActive
}

// OpenPodStatuses lists statuses whose memberships block a user from joining another pod.
func OpenPodStatuses() []PodStatus {
	return []PodStatus{PodStatusForming, PodStatusActive}
}

// MembershipStatus is the state of a pod membership row.
type MembershipStatus string

const (
	MembershipStatusActive MembershipStatus = "ACTIVE"
	MembershipStatusLeft   MembershipStatus = "LEFT"
)

// MembershipRole distinguishes the pod facilitator from other members.
type MembershipRole string

const (
	RoleFacilitator MembershipRole = "FACILITATOR"
	RoleMember      MembershipRole = "MEMBER"
)

// SessionStatus is the lifecycle state of a pod session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusScheduled: {SessionStatusActive, SessionStatusCancelled},
	SessionStatusActive:    {SessionStatusCompleted, SessionStatusCancelled},
	SessionStatusCompleted: nil,
	SessionStatusCancelled: nil,
}

// CanTransitionTo reports whether a session may move from s to next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	return allowed(sessionTransitions[s], next)
}

// SessionSourcesFor returns the states a session may leave to reach next.
func SessionSourcesFor(next SessionStatus) []SessionStatus {
	var out []SessionStatus
	for _, from := range []SessionStatus{SessionStatusScheduled, SessionStatusActive, SessionStatusCompleted, SessionStatusCancelled} {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

// IsTerminal reports whether no further transitions are possible.
func (s SessionStatus) IsTerminal() bool {
	return len(sessionTransitions[s]) == 0
}

// WaitlistStatus is the state of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistStatusActive    WaitlistStatus = "active"
	WaitlistStatusMatched   WaitlistStatus = "matched"
	WaitlistStatusExpired   WaitlistStatus = "expired"
	WaitlistStatusCancelled WaitlistStatus = "cancelled"
)

// CanTransitionTo reports whether an entry may move from s to next. Only active entries move.
func (s WaitlistStatus) CanTransitionTo(next WaitlistStatus) bool {
	return s == WaitlistStatusActive && next != WaitlistStatusActive
}

// ReminderKind identifies one of the pre-session reminder windows.
type ReminderKind string

const (
	ReminderT60 ReminderKind = "T-60"
	ReminderT10 ReminderKind = "T-10"
)

// ReminderKinds lists every reminder window, widest first.
func ReminderKinds() []ReminderKind {
	return []ReminderKind{ReminderT60, ReminderT10}
}

// Column returns the session flag column tracking this reminder.
func (k ReminderKind) Column() string {
	switch k {
	case ReminderT60:
		return "reminder_t60_sent"
	case ReminderT10:
		return "reminder_t10_sent"
	default:
		return ""
	}
}

// Valid reports whether k names a known reminder window.
func (k ReminderKind) Valid() bool {
	return k.Column() != ""
}

func allowed[T comparable](targets []T, next T) bool {
	for _, candidate := range targets {
		if candidate == next {
			return true
		}
	}
	return false
}
