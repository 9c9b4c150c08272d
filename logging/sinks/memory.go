package sinks

import (
	"context"
	"sync"

	"lorule-online/server/logging"
)

// MemorySink captures the event stream so tests can assert on what the hub
// and the saver published.
type MemorySink struct {
	mu       sync.RWMutex
	captured []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event logging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured = append(s.captured, snapshotEvent(event))
	return nil
}

// Events returns everything captured so far, oldest first.
func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]logging.Event(nil), s.captured...)
}

// EventsOfType filters the capture down to one event type.
func (s *MemorySink) EventsOfType(eventType logging.EventType) []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []logging.Event
	for _, event := range s.captured {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// Len reports how many events have been captured.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.captured)
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}

// snapshotEvent detaches the stored copy from maps and slices the publisher
// may keep mutating.
func snapshotEvent(event logging.Event) logging.Event {
	stored := event
	if len(event.Targets) > 0 {
		stored.Targets = append([]logging.EntityRef(nil), event.Targets...)
	}
	if event.Extra != nil {
		extra := make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			extra[k] = v
		}
		stored.Extra = extra
	}
	return stored
}
