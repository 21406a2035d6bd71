package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to residents by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.BuildingID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogInviteFanout records one completed invite fan-out with its outcome counts.
func (s *Service) LogInviteFanout(ctx context.Context, buildingID, actorID, actorType, callID, apartmentID string, recipients, delivered, failed int, metadata string) error {
	return s.Append(ctx, Event{
		BuildingID:     buildingID,
		Type:           EventTypeInviteFanout,
		ActorID:        actorID,
		ActorType:      actorType,
		CallID:         callID,
		ApartmentID:    apartmentID,
		RecipientCount: recipients,
		DeliveredCount: delivered,
		FailedCount:    failed,
		Message:        "call invite fan-out completed",
		Metadata:       metadata,
	})
}

// LogInviteRejected records an invite that never fanned out (apartment busy).
func (s *Service) LogInviteRejected(ctx context.Context, buildingID, actorID, actorType, callID, apartmentID, reason string) error {
	return s.Append(ctx, Event{
		BuildingID:  buildingID,
		Type:        EventTypeInviteRejected,
		ActorID:     actorID,
		ActorType:   actorType,
		CallID:      callID,
		ApartmentID: apartmentID,
		Message:     reason,
	})
}
