package journal

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/events"
)

// Record is one journaled view event, flattened into queryable columns.
// Raw keeps the full JSON envelope so nothing is lost in the flattening.
type Record struct {
	ID      int64             `json:"id"`
	View    events.ViewHandle `json:"view"`
	Type    string            `json:"type"`
	AtMs    int64             `json:"at_ms"`
	URI     string            `json:"uri,omitempty"`
	Title   string            `json:"title,omitempty"`
	Status  int               `json:"status,omitempty"`
	Message string            `json:"message,omitempty"`
	Data    string            `json:"data,omitempty"`
	Raw     string            `json:"raw,omitempty"`
}

// ViewSummary captures per-view aggregates used for historical listing.
type ViewSummary struct {
	View           events.ViewHandle `json:"view"`
	FirstSeenMs    int64             `json:"first_seen_ms"`
	LastActivityMs int64             `json:"last_activity_ms"`
	EventCount     int64             `json:"event_count"`
	LastURI        string            `json:"last_uri,omitempty"`
	LastTitle      string            `json:"last_title,omitempty"`
	Detached       bool              `json:"detached"`
}

// Store is the durable event journal.
//
// Append assigns the record ID; Events pages a single view's records by that
// ID so callers can tail the journal incrementally.
type Store interface {
	Append(ctx context.Context, rec Record) (int64, error)
	ListViews(ctx context.Context, limit int, sinceMs int64) ([]ViewSummary, error)
	Events(ctx context.Context, view events.ViewHandle, sinceID int64, limit int) ([]Record, error)
	Purge(ctx context.Context, view events.ViewHandle) (int64, error)
	Close() error
}

// RecordFromEvent flattens an event into a Record. AtMs is left zero and
// filled in by the store at append time.
func RecordFromEvent(e events.Event) (Record, error) {
	if e == nil {
		return Record{}, errors.New("journal: event is nil")
	}

	rec := Record{
		View: e.Metadata().View,
		Type: string(e.Type()),
	}

	switch ev := e.(type) {
	case *events.EventLoad:
		rec.URI = ev.Page.URI
		rec.Title = ev.Page.Title
	case *events.EventLoadError:
		rec.Status = ev.StatusCode
		rec.Message = ev.Message
	case *events.EventMessage:
		rec.Data = ev.Data
	case *events.EventDetached:
		// no extra columns
	default:
		return Record{}, errors.Errorf("journal: unknown event type %T", e)
	}

	if raw := e.Payload(); raw != nil {
		rec.Raw = string(raw)
	} else {
		b, err := json.Marshal(e)
		if err != nil {
			return Record{}, errors.Wrapf(err, "journal: marshal %s event", e.Type())
		}
		rec.Raw = string(b)
	}
	return rec, nil
}

func normalizeRecord(rec Record, now int64) Record {
	rec.Type = strings.TrimSpace(rec.Type)
	if rec.AtMs <= 0 {
		rec.AtMs = now
	}
	return rec
}

func mergeViewSummary(existing ViewSummary, found bool, incoming ViewSummary) ViewSummary {
	if !found {
		incoming.EventCount = 1
		if incoming.FirstSeenMs <= 0 {
			incoming.FirstSeenMs = incoming.LastActivityMs
		}
		return incoming
	}
	existing.EventCount++
	if incoming.LastActivityMs > existing.LastActivityMs {
		existing.LastActivityMs = incoming.LastActivityMs
	}
	if incoming.LastURI != "" {
		existing.LastURI = incoming.LastURI
	}
	if incoming.LastTitle != "" {
		existing.LastTitle = incoming.LastTitle
	}
	existing.Detached = existing.Detached || incoming.Detached
	return existing
}
