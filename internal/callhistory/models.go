package callhistory

import (
	"fmt"
	"time"

	"intercom-platform/internal/calls"
)

// PageSize is the fixed history page length.
const PageSize = 20

// StatusFilter is "all" or one concrete normalized status.
type StatusFilter string

const StatusFilterAll StatusFilter = "all"

// Valid reports whether the filter is "all" or a known status.
func (f StatusFilter) Valid() bool {
	if f == StatusFilterAll {
		return true
	}
	return calls.NormalizeStatus(string(f)) == calls.CallStatus(f)
}

// DateRange is a lower bound on call start time, anchored at local midnight.
type DateRange string

const (
	DateRangeToday  DateRange = "today"
	DateRange7Days  DateRange = "7days"
	DateRange30Days DateRange = "30days"
	DateRangeAll    DateRange = "all"
)

// Valid reports whether the range is one of the supported windows.
func (r DateRange) Valid() bool {
	switch r {
	case DateRangeToday, DateRange7Days, DateRange30Days, DateRangeAll:
		return true
	default:
		return false
	}
}

// ResolveStart maps a range onto its inclusive lower bound, or nil for "all".
// "today" starts at midnight, "7days" covers today plus the six days before
// it, "30days" today plus the 29 before.
func (r DateRange) ResolveStart(now time.Time) *time.Time {
	base := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch r {
	case DateRangeToday:
		return &base
	case DateRange7Days:
		start := base.AddDate(0, 0, -6)
		return &start
	case DateRange30Days:
		start := base.AddDate(0, 0, -29)
		return &start
	default:
		return nil
	}
}

// HistoryItem is the display projection of one call. It is recomputed on
// every fetch and never persisted.
type HistoryItem struct {
	CallID string           `json:"call_id"`
	Status calls.CallStatus `json:"status"`

	StartedAt  time.Time  `json:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	DurationLabel   string `json:"duration_label,omitempty"`
	DateLabel       string `json:"date_label"`

	Direction        calls.CallDirection `json:"direction"`
	AnsweredByViewer bool                `json:"answered_by_viewer"`

	DoormanName     string `json:"doorman_name,omitempty"`
	ApartmentNumber string `json:"apartment_number,omitempty"`
	BuildingName    string `json:"building_name,omitempty"`
}

// FormatDuration renders a short human label ("45s", "2m", "2m 5s").
// Zero or missing durations render empty.
func FormatDuration(seconds *int) string {
	if seconds == nil || *seconds <= 0 {
		return ""
	}
	mins := *seconds / 60
	secs := *seconds % 60
	switch {
	case mins == 0:
		return fmt.Sprintf("%ds", secs)
	case secs == 0:
		return fmt.Sprintf("%dm", mins)
	default:
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
}

// FormatRelativeDate renders the feed's date badge: "Hoje, 14:30",
// "Ontem, 14:30", or the full date for anything older.
func FormatRelativeDate(t, now time.Time) string {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	clock := t.Format("15:04")
	switch {
	case day.Equal(today):
		return "Hoje, " + clock
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Ontem, " + clock
	default:
		return t.Format("02/01/2006, 15:04")
	}
}

// buildItem computes the projection for one call as seen by one viewer.
func buildItem(c calls.Call, participants []calls.CallParticipant, viewerID, viewerType string, now time.Time) HistoryItem {
	duration := calls.DeriveDurationSeconds(c.DurationSeconds, c.AnsweredAt, c.EndedAt)
	return HistoryItem{
		CallID:           c.ID,
		Status:           calls.NormalizeStatus(c.Status),
		StartedAt:        c.StartedAt,
		AnsweredAt:       c.AnsweredAt,
		EndedAt:          c.EndedAt,
		DurationSeconds:  duration,
		DurationLabel:    FormatDuration(duration),
		DateLabel:        FormatRelativeDate(c.StartedAt, now),
		Direction:        calls.Direction(c.InitiatorType, viewerType),
		AnsweredByViewer: calls.AnsweredBy(participants, viewerID),
		DoormanName:      c.DoormanName,
		ApartmentNumber:  c.ApartmentNumber,
		BuildingName:     c.BuildingName,
	}
}
