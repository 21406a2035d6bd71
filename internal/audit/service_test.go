package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresBuildingAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeInviteFanout}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{BuildingID: "b"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogInviteFanout(context.Background(), "b-1", "doorman-1", "doorman", "call-1", "apt-1", 3, 2, 1, "{}"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].Type != EventTypeInviteFanout {
		t.Fatalf("expected invite_fanout")
	}
	if evs[0].RecipientCount != 3 || evs[0].DeliveredCount != 2 || evs[0].FailedCount != 1 {
		t.Fatalf("expected counts captured, got %+v", evs[0])
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}

func TestService_RejectionRecordsReason(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogInviteRejected(context.Background(), "b-1", "doorman-1", "doorman", "call-1", "apt-1", "apartment busy"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].Message != "apartment busy" {
		t.Fatalf("expected rejection reason, got %+v", evs)
	}
}
