package callhistory

import (
	"context"
	"sort"
	"sync"

	"intercom-platform/internal/calls"
)

// MemoryRepo is an in-memory repository for tests and early development.
type MemoryRepo struct {
	mu sync.Mutex

	Links        map[string]ApartmentLink // viewer id -> link
	Calls        []calls.Call
	Participants map[string][]calls.CallParticipant // call id -> participants
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		Links:        map[string]ApartmentLink{},
		Participants: map[string][]calls.CallParticipant{},
	}
}

func (r *MemoryRepo) ApartmentForResident(ctx context.Context, residentID string) (ApartmentLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Links[residentID], nil
}

func (r *MemoryRepo) ListCalls(ctx context.Context, apartmentID string, q CallQuery) ([]calls.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]calls.Call, 0)
	for _, c := range r.Calls {
		if c.ApartmentID != apartmentID {
			continue
		}
		if q.Status != "" && calls.NormalizeStatus(c.Status) != q.Status {
			continue
		}
		if q.StartedAfter != nil && c.StartedAt.Before(*q.StartedAfter) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	if q.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]calls.Call, len(matched))
	copy(out, matched)
	return out, nil
}

func (r *MemoryRepo) ListParticipants(ctx context.Context, callID string) ([]calls.CallParticipant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := r.Participants[callID]
	out := make([]calls.CallParticipant, len(parts))
	copy(out, parts)
	return out, nil
}
