package journal

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/events"
)

// Sink adapts a Store to the relay's event sink so every emitted event is
// journaled as a side effect.
type Sink struct {
	store Store
}

func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

func (s *Sink) PublishEvent(e events.Event) error {
	if s == nil || s.store == nil {
		return errors.New("journal: sink has no store")
	}
	rec, err := RecordFromEvent(e)
	if err != nil {
		return err
	}
	if _, err := s.store.Append(context.Background(), rec); err != nil {
		return errors.Wrapf(err, "journal: append %s event", e.Type())
	}
	return nil
}

var _ events.Sink = &Sink{}
