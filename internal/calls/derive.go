package calls

import (
	"math"
	"strings"
	"time"
)

// NormalizeStatus lower-cases a raw status and coerces anything outside the
// allowed lifecycle to "ended". A call row never surfaces with a blank or
// unknown status.
func NormalizeStatus(raw string) CallStatus {
	switch s := CallStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusCalling, StatusRinging, StatusConnecting, StatusConnected, StatusEnding, StatusEnded, StatusMissed:
		return s
	default:
		return StatusEnded
	}
}

// DeriveDurationSeconds resolves a call's duration.
//
// An explicit positive value wins. Otherwise the duration is derived from the
// answered/ended pair when both are present and ended is after answered.
// Anything else yields nil: never negative, never guessed from start time.
func DeriveDurationSeconds(explicit *int, answeredAt, endedAt *time.Time) *int {
	if explicit != nil && *explicit > 0 {
		v := *explicit
		return &v
	}
	if answeredAt == nil || endedAt == nil {
		return nil
	}
	if !endedAt.After(*answeredAt) {
		return nil
	}
	v := int(math.Round(endedAt.Sub(*answeredAt).Seconds()))
	return &v
}

// Direction classifies a call from the viewer's perspective: a call initiated
// by the viewer's own side is outgoing, anything else rang the viewer.
// A missing initiator tag defaults to the doorman, matching the writer's
// historical rows.
func Direction(initiatorType, viewerType string) CallDirection {
	it := strings.ToLower(strings.TrimSpace(initiatorType))
	if it == "" {
		it = ParticipantTypeDoorman
	}
	if it == strings.ToLower(strings.TrimSpace(viewerType)) {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// AnsweredBy reports whether the viewer personally answered: some participant
// row must match the viewer id with an answered or connected status.
func AnsweredBy(participants []CallParticipant, viewerID string) bool {
	if viewerID == "" {
		return false
	}
	for _, p := range participants {
		if p.ParticipantID != viewerID {
			continue
		}
		switch strings.ToLower(p.Status) {
		case "answered", "connected":
			return true
		}
	}
	return false
}
