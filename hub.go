package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"lorule-online/server/internal/telemetry"
	"lorule-online/server/logging"
	sessionlog "lorule-online/server/logging/session"
	worldlog "lorule-online/server/logging/world"
)

// HubConfig carries the hub's injected collaborators.
type HubConfig struct {
	// Logger receives plain-text fallback output.
	Logger telemetry.Logger
	// Publisher receives structured gameplay events.
	Publisher logging.Publisher
	// Validator screens hadron extension fields; nil accepts everything.
	Validator FieldValidator
	// Persist schedules a durable save of the combined hadron mapping.
	Persist func()
}

// DefaultHubConfig returns a config with no-op collaborators.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Logger:    telemetry.LoggerFunc(nil),
		Publisher: logging.NopPublisher(),
	}
}

// Hub owns the registry, the authenticated subscriber set, and the broadcast
// fan-out. Every registry mutation and its paired broadcast runs behind
// h.mu, which is the process-wide serialization point.
type Hub struct {
	mu          sync.Mutex
	registry    *Registry
	subscribers map[string]*subscriber

	cfg       HubConfig
	logger    telemetry.Logger
	publisher logging.Publisher
	sequence  atomic.Uint64
}

// subscriber wraps a websocket connection with a write mutex so broadcasts
// and per-session replies never interleave frames.
type subscriber struct {
	identity string
	name     string
	conn     *websocket.Conn
	mu       sync.Mutex

	// Guarded by the hub mutex, not the write mutex.
	lastHeartbeat time.Time
	lastRTT       time.Duration
}

// WriteMessage serializes writes to the underlying connection.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// NewHub wires a hub around an already-seeded registry.
func NewHub(registry *Registry, cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Hub{
		registry:    registry,
		subscribers: make(map[string]*subscriber),
		cfg:         cfg,
		logger:      logger,
		publisher:   publisher,
	}
}

// StartSession binds an authenticated connection to its identity, resurrects
// the identity's archived hadrons, and registers the subscriber. Any prior
// connection for the same identity is closed first.
func (h *Hub) StartSession(identity, name string, conn *websocket.Conn) (*subscriber, Hadron) {
	h.mu.Lock()
	if existing, ok := h.subscribers[identity]; ok {
		existing.conn.Close()
	}
	sub := &subscriber{
		identity:      identity,
		name:          name,
		conn:          conn,
		lastHeartbeat: time.Now(),
	}
	h.subscribers[identity] = sub
	primary := h.registry.Resolve(identity)
	h.mu.Unlock()

	sessionlog.Started(context.Background(), h.publisher, h.sequence.Load(), logging.EntityRef{ID: identity, Kind: logging.EntityKindSession}, sessionlog.StartedPayload{Name: name})
	worldlog.Resurrected(context.Background(), h.publisher, h.sequence.Load(), logging.EntityRef{ID: identity, Kind: logging.EntityKindPlayer}, nil)

	return sub, primary
}

// EndSession archives the identity's hadrons, removes the subscriber, and
// broadcasts the reduced snapshot to the remaining sessions.
func (h *Hub) EndSession(identity, reason string) {
	h.endSession(identity, nil, reason)
}

// EndSessionFor ends a session only if conn is still the registered
// connection. A connection superseded by a takeover ends quietly without
// touching the live session's hadrons.
func (h *Hub) EndSessionFor(identity string, conn *websocket.Conn, reason string) {
	h.endSession(identity, conn, reason)
}

func (h *Hub) endSession(identity string, conn *websocket.Conn, reason string) {
	h.mu.Lock()
	sub, subscribed := h.subscribers[identity]
	if subscribed && conn != nil && sub.conn != conn {
		h.mu.Unlock()
		return
	}
	if subscribed {
		delete(h.subscribers, identity)
	}
	archived := h.registry.ArchiveAll(identity)
	h.mu.Unlock()

	if !subscribed && archived == 0 {
		return
	}
	if subscribed {
		sub.conn.Close()
	}

	sessionlog.Ended(context.Background(), h.publisher, h.sequence.Load(), logging.EntityRef{ID: identity, Kind: logging.EntityKindSession}, sessionlog.EndedPayload{Reason: reason, Archived: archived})

	h.BroadcastState()
	if subscribed {
		h.broadcastChat("", sub.name+" has left.")
	}
	h.schedulePersist()
}

// ApplyUpdate runs a client delta through the ownership and validation
// rules. Rejection is silent from the caller's perspective; accepted merges
// trigger a broadcast and schedule a durable save.
func (h *Hub) ApplyUpdate(identity string, delta map[string]any) bool {
	h.mu.Lock()
	merged, ok := h.registry.Apply(identity, delta, h.cfg.Validator)
	h.mu.Unlock()

	actor := logging.EntityRef{ID: identity, Kind: logging.EntityKindPlayer}
	if !ok {
		worldlog.UpdateRejected(context.Background(), h.publisher, h.sequence.Load(), actor, worldlog.UpdateRejectedPayload{HadronID: deltaID(delta)}, nil)
		return false
	}

	worldlog.Merged(context.Background(), h.publisher, h.sequence.Load(), actor, worldlog.MergedPayload{HadronID: merged.ID, Scene: merged.Scene}, nil)
	h.BroadcastState()
	h.schedulePersist()
	return true
}

func deltaID(delta map[string]any) string {
	id, _ := stringField(delta, keyID)
	return id
}

// MarshalState encodes the current active partition as a state message.
func (h *Hub) MarshalState() ([]byte, error) {
	h.mu.Lock()
	snapshot := h.registry.Snapshot()
	h.mu.Unlock()

	msg := stateMessage{
		Ver:        ProtocolVersion,
		Type:       "state",
		Hadrons:    encodeSnapshot(snapshot),
		Sequence:   h.sequence.Add(1),
		ServerTime: time.Now().UnixMilli(),
	}
	return json.Marshal(msg)
}

// BroadcastState fans the latest snapshot out to every authenticated
// session, including whichever session triggered the change; the echo is
// what corrects client-side prediction drift.
func (h *Hub) BroadcastState() {
	data, err := h.MarshalState()
	if err != nil {
		h.logger.Printf("failed to marshal state message: %v", err)
		return
	}
	h.broadcast(data)
}

// BroadcastChat relays unscoped chat text to every session.
func (h *Hub) BroadcastChat(name, content string) {
	if content == "" {
		return
	}
	h.broadcastChat(name, content)
}

func (h *Hub) broadcastChat(name, content string) {
	msg := chatMessage{Ver: ProtocolVersion, Type: "chat", Name: name, Content: content}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("failed to marshal chat message: %v", err)
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Printf("failed to send update to %s: %v", id, err)
			go h.EndSessionFor(id, sub.conn, "write failure")
		}
	}
}

// MarkAlive refreshes the session liveness timestamp. Any inbound frame is
// proof of life; heartbeat messages additionally measure RTT. A client that
// never speaks the heartbeat extension is reaped only once its transport
// goes silent.
func (h *Hub) MarkAlive(identity string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[identity]; ok {
		sub.lastHeartbeat = at
	}
}

// UpdateHeartbeat records the most recent heartbeat time and RTT.
func (h *Hub) UpdateHeartbeat(identity string, receivedAt time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subscribers[identity]
	if !ok {
		return 0, false
	}

	sub.lastHeartbeat = receivedAt

	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt := receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			sub.lastRTT = rtt
		}
	}

	return sub.lastRTT, true
}

// RunHeartbeatSweeper reaps sessions that stopped heartbeating until the
// stop channel closes.
func (h *Hub) RunHeartbeatSweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			for _, identity := range h.staleSessions(now) {
				h.logger.Printf("disconnecting %s due to heartbeat timeout", identity)
				h.EndSession(identity, "heartbeat timeout")
			}
		}
	}
}

func (h *Hub) staleSessions(now time.Time) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	stale := make([]string, 0)
	for identity, sub := range h.subscribers {
		if now.Sub(sub.lastHeartbeat) > disconnectAfter {
			stale = append(stale, identity)
		}
	}
	return stale
}

// DiagnosticsSnapshot exposes heartbeat data for the diagnostics endpoint.
func (h *Hub) DiagnosticsSnapshot() []diagnosticsSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions := make([]diagnosticsSession, 0, len(h.subscribers))
	for identity, sub := range h.subscribers {
		sessions = append(sessions, diagnosticsSession{
			Ver:           ProtocolVersion,
			ID:            identity,
			Name:          sub.name,
			LastHeartbeat: sub.lastHeartbeat.UnixMilli(),
			RTTMillis:     sub.lastRTT.Milliseconds(),
		})
	}
	return sessions
}

// CombinedState unions both partitions for the durable store.
func (h *Hub) CombinedState() map[string]Hadron {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Combined()
}

// SessionCount reports the number of live subscribers.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) schedulePersist() {
	if h.cfg.Persist != nil {
		h.cfg.Persist()
	}
}
