package callhistory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"intercom-platform/internal/calls"
)

// ErrFetchFailed marks a repository failure the viewer can retry; filter and
// pagination state are preserved across it.
var ErrFetchFailed = errors.New("callhistory: fetch failed")

// NotLinkedMessage explains an empty history for a viewer without an
// apartment binding.
const NotLinkedMessage = "Nenhum apartamento vinculado à sua conta. Solicite ao administrador para concluir o cadastro."

// ApartmentLink is the viewer's physical-location binding, owned by the
// external record store. An empty ApartmentID means not linked.
type ApartmentLink struct {
	ApartmentID string
	Number      string
	BuildingID  string
	BuildingName string
}

// CallQuery narrows and pages a call listing. Results are ordered by start
// time, newest first.
type CallQuery struct {
	Status       calls.CallStatus // empty means all
	StartedAfter *time.Time
	Offset       int
	Limit        int
}

// Repository is the collaborator contract over already-materialized call
// records. Implementations do not interpret rows; interpretation lives here.
type Repository interface {
	ApartmentForResident(ctx context.Context, residentID string) (ApartmentLink, error)
	ListCalls(ctx context.Context, apartmentID string, q CallQuery) ([]calls.Call, error)
	ListParticipants(ctx context.Context, callID string) ([]calls.CallParticipant, error)
}

// Service turns raw call rows into consistent, filterable history feeds.
type Service struct {
	repo Repository
	now  func() time.Time

	mu    sync.Mutex
	feeds map[string]*Feed
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, feeds: map[string]*Feed{}}
}

// Feed returns the viewer's history feed, creating it on first use. Feeds are
// keyed by viewer so the in-flight guard spans every caller for that viewer.
func (s *Service) Feed(viewerID, viewerType string) *Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.feeds[viewerID]; ok {
		return f
	}
	f := &Feed{
		svc:        s,
		viewerID:   viewerID,
		viewerType: viewerType,
		status:     StatusFilterAll,
		dateRange:  DateRange7Days,
		hasMore:    true,
	}
	s.feeds[viewerID] = f
	return f
}

// Snapshot is the externally visible feed state after a fetch.
type Snapshot struct {
	Items     []HistoryItem `json:"calls"`
	HasMore   bool          `json:"has_more"`
	NotLinked bool          `json:"not_linked"`
	Message   string        `json:"message,omitempty"`

	Status    StatusFilter `json:"status_filter"`
	DateRange DateRange    `json:"date_range"`
}

// Feed is one viewer's paginated history with its filters and guard.
//
// Concurrency: a single in-flight fetch per feed; a re-entrant fetch while one
// is outstanding is a no-op returning the current state. Offset and has-more
// are only mutated by the fetch that set the in-flight flag.
type Feed struct {
	svc        *Service
	viewerID   string
	viewerType string

	mu        sync.Mutex
	inFlight  bool
	status    StatusFilter
	dateRange DateRange
	offset    int
	hasMore   bool
	items     []HistoryItem
	notLinked bool
}

// SetFilters applies a new filter pair. The next Refresh uses them; invalid
// values are rejected before any state changes.
func (f *Feed) SetFilters(status StatusFilter, dateRange DateRange) error {
	if !status.Valid() {
		return fmt.Errorf("callhistory: invalid status filter %q", status)
	}
	if !dateRange.Valid() {
		return fmt.Errorf("callhistory: invalid date range %q", dateRange)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.dateRange = dateRange
	return nil
}

// Refresh reloads the first page, replacing loaded items.
func (f *Feed) Refresh(ctx context.Context) (Snapshot, error) {
	return f.fetch(ctx, true)
}

// LoadMore appends the next page, de-duplicating by call id.
func (f *Feed) LoadMore(ctx context.Context) (Snapshot, error) {
	return f.fetch(ctx, false)
}

// Snapshot returns the current state without fetching.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Feed) snapshotLocked() Snapshot {
	out := Snapshot{
		Items:     make([]HistoryItem, len(f.items)),
		HasMore:   f.hasMore,
		NotLinked: f.notLinked,
		Status:    f.status,
		DateRange: f.dateRange,
	}
	copy(out.Items, f.items)
	if f.notLinked {
		out.Message = NotLinkedMessage
	}
	return out
}

func (f *Feed) fetch(ctx context.Context, reset bool) (Snapshot, error) {
	f.mu.Lock()
	if f.inFlight {
		// Overlapping fetch for the same viewer is a no-op.
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, nil
	}
	if !reset && !f.hasMore {
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, nil
	}
	f.inFlight = true
	offset := f.offset
	if reset {
		offset = 0
	}
	status := f.status
	dateRange := f.dateRange
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight = false
		f.mu.Unlock()
	}()

	link, err := f.svc.repo.ApartmentForResident(ctx, f.viewerID)
	if err != nil {
		return f.Snapshot(), fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if link.ApartmentID == "" {
		f.mu.Lock()
		f.items = nil
		f.offset = 0
		f.hasMore = false
		f.notLinked = true
		snap := f.snapshotLocked()
		f.mu.Unlock()
		return snap, nil
	}

	q := CallQuery{Offset: offset, Limit: PageSize}
	if status != StatusFilterAll {
		q.Status = calls.CallStatus(status)
	}
	q.StartedAfter = dateRange.ResolveStart(f.svc.now())

	rows, err := f.svc.repo.ListCalls(ctx, link.ApartmentID, q)
	if err != nil {
		return f.Snapshot(), fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	fetched := make([]HistoryItem, 0, len(rows))
	for _, row := range rows {
		participants, err := f.svc.repo.ListParticipants(ctx, row.ID)
		if err != nil {
			return f.Snapshot(), fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		fetched = append(fetched, buildItem(row, participants, f.viewerID, f.viewerType, f.svc.now()))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.notLinked = false
	if reset {
		f.items = fetched
		f.offset = len(fetched)
	} else {
		f.items = mergeUnique(f.items, fetched)
		f.offset = offset + len(fetched)
	}
	f.hasMore = len(fetched) == PageSize
	return f.snapshotLocked(), nil
}

// mergeUnique appends page items onto the loaded list keeping the first
// occurrence of every call id.
func mergeUnique(existing, fetched []HistoryItem) []HistoryItem {
	seen := make(map[string]struct{}, len(existing)+len(fetched))
	out := make([]HistoryItem, 0, len(existing)+len(fetched))
	for _, lists := range [][]HistoryItem{existing, fetched} {
		for _, item := range lists {
			if _, ok := seen[item.CallID]; ok {
				continue
			}
			seen[item.CallID] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
