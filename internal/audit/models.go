package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - building_id is required for tenancy isolation.
// - Delivery counts are best-effort; do not block call flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID         string `json:"id" db:"id"`
	BuildingID string `json:"building_id" db:"building_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorID is the user that triggered the event (usually the doorman).
	ActorID string `json:"actor_id,omitempty" db:"actor_id"`
	// ActorType is the participant role of the actor.
	ActorType string `json:"actor_type,omitempty" db:"actor_type"`

	// Target identifiers (optional, depending on the event type).
	CallID      string `json:"call_id,omitempty" db:"call_id"`
	ApartmentID string `json:"apartment_id,omitempty" db:"apartment_id"`

	// Fan-out outcome counts for invite events.
	RecipientCount int `json:"recipient_count,omitempty" db:"recipient_count"`
	DeliveredCount int `json:"delivered_count,omitempty" db:"delivered_count"`
	FailedCount    int `json:"failed_count,omitempty" db:"failed_count"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeInviteFanout   EventType = "invite_fanout"
	EventTypeInviteRejected EventType = "invite_rejected"
)
