package events

import (
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// Sink receives every event a relay emits. Implementations must be safe for
// concurrent use and should not block for long; PublishEvent is called from
// control lifecycle paths.
type Sink interface {
	PublishEvent(e Event) error
}

// WatermillSink publishes events as JSON messages on a single topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (s *WatermillSink) PublishEvent(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "could not marshal %s event", e.Type())
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return errors.Wrapf(err, "could not publish %s event to %s", e.Type(), s.topic)
	}
	return nil
}

var _ Sink = &WatermillSink{}

// ViewTopicSink publishes each event on its own view's topic, so consumers
// can subscribe per view.
type ViewTopicSink struct {
	publisher message.Publisher
}

func NewViewTopicSink(publisher message.Publisher) *ViewTopicSink {
	return &ViewTopicSink{publisher: publisher}
}

func (s *ViewTopicSink) PublishEvent(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "could not marshal %s event", e.Type())
	}

	topic := TopicForView(e.Metadata().View)
	msg := message.NewMessage(watermill.NewUUID(), b)
	if err := s.publisher.Publish(topic, msg); err != nil {
		return errors.Wrapf(err, "could not publish %s event to %s", e.Type(), topic)
	}
	return nil
}

var _ Sink = &ViewTopicSink{}

// CollectorSink buffers events in memory, mostly for tests and the scenario
// runner.
type CollectorSink struct {
	mu     sync.Mutex
	events []Event
}

func NewCollectorSink() *CollectorSink {
	return &CollectorSink{}
}

func (s *CollectorSink) PublishEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of everything collected so far.
func (s *CollectorSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Event, len(s.events))
	copy(ret, s.events)
	return ret
}

func (s *CollectorSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

var _ Sink = &CollectorSink{}

// NullSink drops everything.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error { return nil }

var _ Sink = NullSink{}

// MultiSink fans each event out to several sinks. Every sink sees the event;
// the first error encountered is returned.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) PublishEvent(e Event) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.PublishEvent(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Sink = &MultiSink{}
