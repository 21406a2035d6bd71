package calls

import "time"

// Call is a raw intercom call row as the calling subsystem writes it.
//
// This package owns interpretation, not persistence: rows arrive partially
// populated (answered/ended timestamps and duration trickle in as status
// events land) and are normalized on read.
type Call struct {
	ID string `json:"id" db:"id"`

	// Status is the raw stored value; use NormalizeStatus before comparing.
	Status string `json:"status" db:"status"`

	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is the writer-populated duration; nil or non-positive
	// values are treated as absent and derived from timestamps instead.
	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	InitiatorID   string `json:"initiator_id,omitempty" db:"initiator_id"`
	InitiatorType string `json:"initiator_type,omitempty" db:"initiator_type"`

	ApartmentID string `json:"apartment_id" db:"apartment_id"`
	BuildingID  string `json:"building_id,omitempty" db:"building_id"`

	DoormanName     string `json:"doorman_name,omitempty" db:"doorman_name"`
	ApartmentNumber string `json:"apartment_number,omitempty" db:"apartment_number"`
	BuildingName    string `json:"building_name,omitempty" db:"building_name"`
}

// CallStatus is the normalized call lifecycle state.
type CallStatus string

const (
	StatusCalling    CallStatus = "calling"
	StatusRinging    CallStatus = "ringing"
	StatusConnecting CallStatus = "connecting"
	StatusConnected  CallStatus = "connected"
	StatusEnding     CallStatus = "ending"
	StatusEnded      CallStatus = "ended"
	StatusMissed     CallStatus = "missed"
)

// Terminal reports whether the call can no longer change state.
func (s CallStatus) Terminal() bool {
	return s == StatusEnded || s == StatusMissed
}

// Participant type tags.
const (
	ParticipantTypeResident = "resident"
	ParticipantTypeDoorman  = "doorman"
)

// CallParticipant is one party on a call.
type CallParticipant struct {
	ParticipantID   string     `json:"participant_id" db:"participant_id"`
	ParticipantType string     `json:"participant_type" db:"participant_type"`
	Status          string     `json:"status" db:"status"`
	JoinedAt        *time.Time `json:"joined_at,omitempty" db:"joined_at"`
	LeftAt          *time.Time `json:"left_at,omitempty" db:"left_at"`
}

// CallDirection is the call's direction from the viewer's perspective.
type CallDirection string

const (
	DirectionIncoming CallDirection = "incoming"
	DirectionOutgoing CallDirection = "outgoing"
)
