package push

import "time"

// Platform is the explicitly-typed device platform tag.
//
// Rules:
// - Callers must pass a validated Platform; free-form detection via metadata
//   string matching is not allowed anywhere in this codebase.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Valid reports whether p is a known platform tag.
func (p Platform) Valid() bool {
	switch p {
	case PlatformIOS, PlatformAndroid:
		return true
	default:
		return false
	}
}

// FailureKind classifies a failed push attempt.
//
// Propagation policy:
// - invalid_token and config_missing resolve locally into a failed Result for
//   that one recipient and never abort a batch.
// - connection resets shared session state but still resolves the in-flight
//   send as a failed Result; retries belong to a caller that understands
//   ringing-window semantics.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureInvalidToken    FailureKind = "invalid_token"
	FailureConfigMissing   FailureKind = "config_missing"
	FailureTimeout         FailureKind = "timeout"
	FailureConnection      FailureKind = "connection"
	FailureRemoteRejection FailureKind = "remote_rejection"
	FailureUnknown         FailureKind = "unknown"
)

// Result is the per-(recipient, attempt) delivery outcome.
type Result struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"status_code"`
	DeliveryID string      `json:"delivery_id,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Kind       FailureKind `json:"kind,omitempty"`
}

// Failure builds a failed Result with a classified reason.
func Failure(kind FailureKind, status int, reason string) Result {
	return Result{StatusCode: status, Reason: reason, Kind: kind}
}

// CallInvite carries everything a transport needs to announce an incoming
// intercom call. Constructed fresh per send; never mutated after.
type CallInvite struct {
	CallID          string
	From            string
	FromName        string
	ApartmentNumber string
	BuildingName    string
	ChannelName     string
	Timestamp       time.Time

	// Metadata is merged into the outgoing data object after the fixed keys,
	// so callers can override or extend per-call fields.
	Metadata map[string]any
}

// Recipient is one target device for a fan-out send.
type Recipient struct {
	Token string
	Name  string
}
