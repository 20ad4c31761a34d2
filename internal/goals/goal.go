// Package goals implements the per-conversation active-goal state machine
// (C8 Goal State Store) and, in the classify subpackage, the pure
// pattern-based classifier (C10) that drives it.
package goals

import "time"

// Type is a goal's kind. It is not a closed Go enum: the set of types a
// deployment supports is whatever has a registered Handler (see
// registry.go) — adding a fifth goal type is a registration, not a core
// change (DESIGN.md Open Question #2).
type Type string

const (
	TypeScheduleCall    Type = "schedule_call"
	TypeBookMeeting     Type = "book_meeting"
	TypeSendEmail       Type = "send_email"
	TypeCreateReminder  Type = "create_reminder"
)

// Status is the goal's place in its confirmation lifecycle.
type Status string

const (
	StatusAwaitingInput        Status = "awaiting_input"
	StatusPendingConfirmation  Status = "pending_confirmation"
)

// TTL is the default lifetime of an active goal, configurable via
// GOAL_TTL_SECONDS.
const TTL = 15 * time.Minute

// Goal is the per-conversation active-goal record. At most one exists per
// ConversationID at any time.
type Goal struct {
	GoalID              string
	GoalType            Type
	ConversationID      string
	TenantID            string
	ExtractedData       map[string]any
	Status              Status
	ConfirmationMessage string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ExpiresAt           time.Time
}

// Expired reports whether the goal has passed its deadline as of now.
func (g *Goal) Expired(now time.Time) bool {
	if g == nil {
		return true
	}
	return !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt)
}

// NewGoal constructs a Goal with CreatedAt/UpdatedAt/ExpiresAt stamped
// from now, ExpiresAt = now + TTL per the invariant expiresAt > createdAt.
func NewGoal(id, conversationID, tenantID string, goalType Type, data map[string]any, now time.Time) *Goal {
	if data == nil {
		data = map[string]any{}
	}
	return &Goal{
		GoalID:         id,
		GoalType:       goalType,
		ConversationID: conversationID,
		TenantID:       tenantID,
		ExtractedData:  data,
		Status:         StatusAwaitingInput,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(TTL),
	}
}

// RequiredSlots lists the extractedData keys that must be non-empty
// before a goal of this type can move to StatusPendingConfirmation.
func (t Type) RequiredSlots() []string {
	switch t {
	case TypeScheduleCall, TypeBookMeeting:
		return []string{"lead", "dateTime"}
	case TypeSendEmail:
		return []string{"lead"}
	case TypeCreateReminder:
		return []string{"dateTime"}
	default:
		return nil
	}
}

// MissingSlots returns the subset of RequiredSlots not present (or
// present but empty) in data.
func (t Type) MissingSlots(data map[string]any) []string {
	var missing []string
	for _, slot := range t.RequiredSlots() {
		v, ok := data[slot]
		if !ok || isEmptyValue(v) {
			missing = append(missing, slot)
		}
	}
	return missing
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
