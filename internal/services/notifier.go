package services

import (
	"context"
	"fmt"
	"strings"
)

// NotificationKind names an outbound message template.
type NotificationKind string

const (
	NotificationTimeoutWarning  NotificationKind = "timeout_warning"
	NotificationMatchesFound    NotificationKind = "matches_found"
	NotificationTimeoutExpired  NotificationKind = "timeout_expired"
	NotificationSessionReminder NotificationKind = "session_reminder"
	NotificationPodFormed       NotificationKind = "pod_formed"
)

// Priority ranks a notification for delivery channels.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// DeliveryResult reports what a Notifier did with one message. Err is informational;
// callers log it and carry on.
type DeliveryResult struct {
	NotificationID string
	Delivered      bool
	Channels       []string
	Err            error
}

// Notifier delivers messages to users. Send never blocks a state transition on failure.
type Notifier interface {
	Send(ctx context.Context, userID string, kind NotificationKind, data map[string]any, priority Priority) DeliveryResult
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, string, NotificationKind, map[string]any, Priority) DeliveryResult {
	return DeliveryResult{}
}

// renderNotification produces the title and body for kind. Copy is intentionally plain.
func renderNotification(kind NotificationKind, data map[string]any) (string, string) {
	sprint := stringValue(data, "sprint_type")
	switch kind {
	case NotificationTimeoutWarning:
		return "Still looking for your pod",
			fmt.Sprintf("We have not found a %s pod for you yet. Your request expires in %s.", sprint, stringValue(data, "expires_in"))
	case NotificationMatchesFound:
		return "Pods are available",
			fmt.Sprintf("We found %v possible %s pods for you. Pick one to join.", data["suggestion_count"], sprint)
	case NotificationTimeoutExpired:
		hints, _ := data["hints"].([]string)
		body := fmt.Sprintf("Your %s matching request expired without a pod.", sprint)
		if len(hints) > 0 {
			body += " Try: " + strings.Join(hints, "; ") + "."
		}
		return "Matching request expired", body
	case NotificationSessionReminder:
		return fmt.Sprintf("Session starts in %s", stringValue(data, "starts_in")),
			fmt.Sprintf("Your pod session #%v starts at %s. Join: %s", data["session_number"], stringValue(data, "scheduled_at"), stringValue(data, "video_url"))
	case NotificationPodFormed:
		return "You have a pod", fmt.Sprintf("Your %s pod is ready.", sprint)
	default:
		return string(kind), ""
	}
}

func stringValue(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
