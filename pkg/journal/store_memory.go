package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/events"
)

// InMemoryStore is a size-limited, in-memory Store implementation. It mirrors
// the ordering semantics of the SQLite store so callers can swap between the
// two without changing pagination behavior.
type InMemoryStore struct {
	mu         sync.Mutex
	maxPerView int
	nextID     int64
	views      map[events.ViewHandle]*inMemView
}

type inMemView struct {
	summary ViewSummary
	records []Record
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore(maxPerView int) *InMemoryStore {
	if maxPerView <= 0 {
		maxPerView = 1000
	}
	return &InMemoryStore{
		maxPerView: maxPerView,
		views:      map[events.ViewHandle]*inMemView{},
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Append(_ context.Context, rec Record) (int64, error) {
	if s == nil {
		return 0, errors.New("in-memory journal: nil store")
	}
	now := time.Now().UnixMilli()
	rec = normalizeRecord(rec, now)
	if rec.Type == "" {
		return 0, errors.New("in-memory journal: record type is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID

	view, found := s.views[rec.View]
	if !found {
		view = &inMemView{}
		s.views[rec.View] = view
	}
	view.records = append(view.records, rec)
	view.summary = mergeViewSummary(view.summary, found, ViewSummary{
		View:           rec.View,
		FirstSeenMs:    rec.AtMs,
		LastActivityMs: rec.AtMs,
		LastURI:        rec.URI,
		LastTitle:      rec.Title,
		Detached:       rec.Type == string(events.EventTypeDetached),
	})

	// Evict the oldest records once a view exceeds its cap.
	if len(view.records) > s.maxPerView {
		drop := len(view.records) - s.maxPerView
		view.records = append([]Record(nil), view.records[drop:]...)
	}
	return rec.ID, nil
}

func (s *InMemoryStore) ListViews(_ context.Context, limit int, sinceMs int64) ([]ViewSummary, error) {
	if s == nil {
		return nil, errors.New("in-memory journal: nil store")
	}
	if limit <= 0 {
		limit = 200
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]ViewSummary, 0, len(s.views))
	for _, view := range s.views {
		if sinceMs > 0 && view.summary.LastActivityMs < sinceMs {
			continue
		}
		summaries = append(summaries, view.summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastActivityMs == summaries[j].LastActivityMs {
			return summaries[i].View < summaries[j].View
		}
		return summaries[i].LastActivityMs > summaries[j].LastActivityMs
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *InMemoryStore) Events(_ context.Context, handle events.ViewHandle, sinceID int64, limit int) ([]Record, error) {
	if s == nil {
		return nil, errors.New("in-memory journal: nil store")
	}
	if limit <= 0 {
		limit = 1000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.views[handle]
	if view == nil {
		return nil, nil
	}
	records := make([]Record, 0, limit)
	for _, rec := range view.records {
		if rec.ID <= sinceID {
			continue
		}
		records = append(records, rec)
		if len(records) >= limit {
			break
		}
	}
	return records, nil
}

func (s *InMemoryStore) Purge(_ context.Context, handle events.ViewHandle) (int64, error) {
	if s == nil {
		return 0, errors.New("in-memory journal: nil store")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.views[handle]
	if view == nil {
		return 0, nil
	}
	removed := int64(len(view.records))
	delete(s.views, handle)
	return removed, nil
}
