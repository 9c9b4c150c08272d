package storage

import (
	"context"
	"sync"
	"time"

	server "lorule-online/server"
	"lorule-online/server/internal/telemetry"
	"lorule-online/server/logging"
	storagelog "lorule-online/server/logging/storage"
)

// Saver coalesces persistence requests: repeated Schedule calls collapse
// into one write no sooner than MinInterval after the previous one. Flush
// writes synchronously and is what graceful shutdown calls.
type Saver struct {
	store     *HadronStore
	snapshot  func() map[string]server.Hadron
	logger    telemetry.Logger
	publisher logging.Publisher

	minInterval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	lastSave time.Time
	closed   bool

	// saveMu serializes writes: a timer firing late must never race a
	// synchronous Flush on the store's temp file.
	saveMu sync.Mutex
}

// SaverConfig carries the saver's collaborators and tuning.
type SaverConfig struct {
	MinInterval time.Duration
	Logger      telemetry.Logger
	Publisher   logging.Publisher
}

// NewSaver wires a coalescing saver around a store and a state snapshot
// callback.
func NewSaver(store *HadronStore, snapshot func() map[string]server.Hadron, cfg SaverConfig) *Saver {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = 5 * time.Second
	}
	return &Saver{
		store:       store,
		snapshot:    snapshot,
		logger:      logger,
		publisher:   publisher,
		minInterval: minInterval,
	}
}

// Schedule requests a save. The first request after a quiet period fires
// almost immediately; requests arriving faster than MinInterval coalesce
// into the next window.
func (s *Saver) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pending {
		return
	}

	delay := time.Until(s.lastSave.Add(s.minInterval))
	if delay < 0 {
		delay = 0
	}
	s.pending = true
	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *Saver) fire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.lastSave = time.Now()
	s.mu.Unlock()

	if err := s.save(); err != nil {
		// A failed save never takes the session layer down; warn and retry
		// on the next window.
		s.logger.Printf("hadron save failed: %v", err)
		storagelog.FlushFailed(context.Background(), s.publisher, storagelog.FlushFailedPayload{Error: err.Error()})
		s.Schedule()
	}
}

// Flush cancels any pending timer and writes synchronously.
func (s *Saver) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.lastSave = time.Now()
	s.mu.Unlock()

	return s.save()
}

// Close stops the saver; subsequent Schedule calls are no-ops.
func (s *Saver) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
	s.closed = true
}

func (s *Saver) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	state := s.snapshot()
	if err := s.store.Save(state); err != nil {
		return err
	}
	storagelog.Flushed(context.Background(), s.publisher, storagelog.FlushedPayload{Hadrons: len(state)})
	return nil
}
