package goals

// Handler maps a goal type to the tool name C11 invokes on confirmation
// and the extracted-data slot names it reads to build that tool's
// arguments. Registering a Handler for a new Type is the entire cost of
// adding goal-type coverage beyond the four built-in types (DESIGN.md
// Open Question #2) — no change to the router or the classifier is
// required.
type Handler struct {
	// ToolName is invoked via C9 when the goal reaches
	// StatusPendingConfirmation and the user confirms.
	ToolName string
	// SuccessMessage formats the reply once the tool call succeeds. It
	// receives the goal's ExtractedData.
	SuccessMessage func(data map[string]any) string
}

// DefaultRegistry returns the Handler set for the four built-in goal
// types: schedule_call, book_meeting, send_email, create_reminder.
func DefaultRegistry() map[Type]Handler {
	return map[Type]Handler{
		TypeScheduleCall: {
			ToolName: "schedule_call",
			SuccessMessage: func(data map[string]any) string {
				return "I've scheduled a call with " + stringSlot(data, "lead") + "."
			},
		},
		TypeBookMeeting: {
			ToolName: "book_meeting",
			SuccessMessage: func(data map[string]any) string {
				return "I've booked a meeting with " + stringSlot(data, "lead") + "."
			},
		},
		TypeSendEmail: {
			ToolName: "send_email",
			SuccessMessage: func(data map[string]any) string {
				return "I've sent the email to " + stringSlot(data, "lead") + "."
			},
		},
		TypeCreateReminder: {
			ToolName: "create_reminder",
			SuccessMessage: func(data map[string]any) string {
				return "I've created the reminder."
			},
		},
	}
}

func stringSlot(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return "the lead"
}
