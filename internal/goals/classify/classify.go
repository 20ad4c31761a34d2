// Package classify implements the Goal Intent Classifier (C10): pure,
// deterministic, regex-driven functions with no side effects — the
// unit-testable heart of the Chat Router. The idiom (package-level
// regexp.MustCompile patterns, case-insensitive word-boundary
// alternations, lowercase-and-trim before matching) follows the donor's
// internal/agent/routing/heuristic.go.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aishacrm/orchestrator-core/internal/datetime"
	"github.com/aishacrm/orchestrator-core/internal/goals"
)

// IntentResult is the outcome of DetectIntent.
type IntentResult struct {
	Detected bool
	GoalType goals.Type
}

// ResponseType is the outcome of ClassifyResponse.
type ResponseType string

const (
	ResponseConfirm     ResponseType = "confirm"
	ResponseCancel      ResponseType = "cancel"
	ResponseReschedule  ResponseType = "reschedule"
	ResponseProvideInfo ResponseType = "provide_info"
	ResponseUnclear     ResponseType = "unclear"
)

// DateTimeResult is the outcome of ExtractDateTime. TimestampMs/TimestampUTC
// are produced by normalizing Timestamp through datetime.NormalizeTimestamp,
// the same normalization every other timestamp in the system goes through.
type DateTimeResult struct {
	Date         string // "2006-01-02"
	Time         string // "15:04"
	Timestamp    time.Time
	TimestampMs  int64
	TimestampUTC string
}

var (
	scheduleCallPattern = regexp.MustCompile(`(?i)\b(schedule|set up|arrange)\b.*\bcall\b`)
	bookMeetingPattern  = regexp.MustCompile(`(?i)\b(book|schedule|set up|arrange)\b.*\bmeeting\b`)
	sendEmailPattern    = regexp.MustCompile(`(?i)\b(send|draft|compose)\b.*\bemail\b`)
	createReminderPattern = regexp.MustCompile(`(?i)\b(remind me|create a? ?reminder|set a? ?reminder)\b`)

	confirmPattern    = regexp.MustCompile(`(?i)^\s*(yes|yep|yeah|ok|okay|sure|confirm|confirmed|proceed|go ahead|do it|sounds good)\s*[.!]?\s*$`)
	cancelPattern     = regexp.MustCompile(`(?i)^\s*(no|nope|cancel|stop|nevermind|never mind|forget it)\s*[.!]?\s*$`)
	reschedulePattern = regexp.MustCompile(`(?i)\b(reschedule|change the time|move it|push it|different time)\b`)
	dateTimeVocab     = regexp.MustCompile(`(?i)\b(today|tomorrow|tonight|morning|afternoon|evening|noon|midnight|am|pm|\d{1,2}(:\d{2})?\s*(am|pm)?|monday|tuesday|wednesday|thursday|friday|saturday|sunday|next week)\b`)
	properNamePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+)?\b`)

	relativeDayPattern  = regexp.MustCompile(`(?i)\b(today|tomorrow|tonight)\b`)
	nextWeekdayPattern  = regexp.MustCompile(`(?i)\bnext\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	bareWeekdayPattern  = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	time24Pattern       = regexp.MustCompile(`(?i)\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	time12Pattern       = regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9])(?::([0-5]\d))?\s*(am|pm)\b`)

	leadWithPattern = regexp.MustCompile(`(?i)\b(?:with|for|to|call)\s+([A-Z][a-zA-Z'-]+(?:\s+[A-Z][a-zA-Z'-]+)?)\b`)
)

var stopWords = map[string]bool{
	"me": true, "them": true, "us": true, "him": true, "her": true,
	"tomorrow": true, "today": true, "tonight": true, "the": true, "at": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

var weekdayIndex = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// DetectIntent checks text for a goal-starting phrase. Conservative:
// greetings, data questions, and ambiguous inputs yield Detected=false.
func DetectIntent(text string) IntentResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return IntentResult{}
	}
	switch {
	case scheduleCallPattern.MatchString(t):
		return IntentResult{Detected: true, GoalType: goals.TypeScheduleCall}
	case bookMeetingPattern.MatchString(t):
		return IntentResult{Detected: true, GoalType: goals.TypeBookMeeting}
	case sendEmailPattern.MatchString(t):
		return IntentResult{Detected: true, GoalType: goals.TypeSendEmail}
	case createReminderPattern.MatchString(t):
		return IntentResult{Detected: true, GoalType: goals.TypeCreateReminder}
	default:
		return IntentResult{}
	}
}

// ClassifyResponse classifies a reply to an active goal's confirmation
// prompt. Empty text is Unclear, never a goal-creating or goal-mutating
// signal.
func ClassifyResponse(text string) ResponseType {
	t := strings.TrimSpace(text)
	if t == "" {
		return ResponseUnclear
	}
	switch {
	case confirmPattern.MatchString(t):
		return ResponseConfirm
	case cancelPattern.MatchString(t):
		return ResponseCancel
	case reschedulePattern.MatchString(t):
		return ResponseReschedule
	case dateTimeVocab.MatchString(t), hasProperName(t):
		return ResponseProvideInfo
	default:
		return ResponseUnclear
	}
}

func hasProperName(t string) bool {
	for _, m := range properNamePattern.FindAllString(t, -1) {
		if !stopWords[strings.ToLower(m)] {
			return true
		}
	}
	return false
}

// ExtractDateTime resolves relative/absolute date and time mentions in
// text, anchored at now. Returns nil if neither a date nor a time
// indicator is present. A date with no time indicator defaults to 10:00
// local. "tomorrow" rolls the calendar date over correctly regardless of
// the anchor's time-of-day (e.g. requested at 23:50 still resolves to the
// literal next calendar day).
func ExtractDateTime(text string, now time.Time) *DateTimeResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}

	date, hasDate := resolveDate(t, now)
	hour, minute, hasTime := resolveTime(t)

	if !hasDate && !hasTime {
		return nil
	}
	if !hasDate {
		date = now
	}
	if !hasTime {
		hour, minute = 10, 0
	}

	result := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
	out := &DateTimeResult{
		Date:      result.Format("2006-01-02"),
		Time:      result.Format("15:04"),
		Timestamp: result,
	}
	if norm := datetime.NormalizeTimestamp(result); norm != nil {
		out.TimestampMs = norm.TimestampMs
		out.TimestampUTC = norm.TimestampUTC
	}
	return out
}

func resolveDate(t string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(t)

	if m := nextWeekdayPattern.FindStringSubmatch(lower); m != nil {
		target := weekdayIndex[m[1]]
		return nextOccurrence(now, target, true), true
	}

	switch {
	case strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(lower, "today"), strings.Contains(lower, "tonight"):
		return now, true
	}

	if m := bareWeekdayPattern.FindStringSubmatch(lower); m != nil {
		target := weekdayIndex[m[1]]
		return nextOccurrence(now, target, false), true
	}

	return time.Time{}, false
}

// nextOccurrence returns the next date (strictly after today, unless
// forceNextWeek) that falls on weekday.
func nextOccurrence(now time.Time, weekday time.Weekday, forceNextWeek bool) time.Time {
	days := int(weekday - now.Weekday())
	if days <= 0 {
		days += 7
	}
	if forceNextWeek {
		days += 7
	}
	return now.AddDate(0, 0, days)
}

func resolveTime(t string) (hour, minute int, ok bool) {
	if m := time12Pattern.FindStringSubmatch(t); m != nil {
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		if strings.EqualFold(m[3], "pm") && h != 12 {
			h += 12
		}
		if strings.EqualFold(m[3], "am") && h == 12 {
			h = 0
		}
		return h, min, true
	}
	if m := time24Pattern.FindStringSubmatch(t); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		return h, min, true
	}
	if strings.Contains(strings.ToLower(t), "noon") {
		return 12, 0, true
	}
	if strings.Contains(strings.ToLower(t), "midnight") {
		return 0, 0, true
	}
	return 0, 0, false
}

// ExtractLeadName finds a person name following "with", "for", "to", or
// "call", skipping the stop-list (me, them, tomorrow, weekday names, at,
// the, ...). Allows a single first name or "First Last".
func ExtractLeadName(text string) (string, bool) {
	m := leadWithPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	if name == "" || stopWords[strings.ToLower(name)] {
		return "", false
	}
	words := strings.Fields(name)
	filtered := words[:0]
	for _, w := range words {
		if stopWords[strings.ToLower(w)] {
			continue
		}
		filtered = append(filtered, w)
	}
	if len(filtered) == 0 {
		return "", false
	}
	return strings.Join(filtered, " "), true
}
