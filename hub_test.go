package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"lorule-online/server/logging"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []logging.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event logging.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, string(event.Type))
	}
	return types
}

func newTestHub(persisted map[string]Hadron, persist func()) (*Hub, *recordingPublisher) {
	publisher := &recordingPublisher{}
	cfg := DefaultHubConfig()
	cfg.Publisher = publisher
	cfg.Persist = persist
	return NewHub(NewRegistry(persisted), cfg), publisher
}

func TestApplyUpdateBroadcastsAndPersists(t *testing.T) {
	persists := 0
	hub, publisher := newTestHub(nil, func() { persists++ })
	hub.registry.Resolve("u1")

	if !hub.ApplyUpdate("u1", map[string]any{"id": "u1", "x": 10.0, "y": 20.0}) {
		t.Fatal("expected owned update to be accepted")
	}
	if persists != 1 {
		t.Fatalf("expected one scheduled persist, got %d", persists)
	}

	types := publisher.Types()
	if len(types) != 1 || types[0] != "world.hadron_merged" {
		t.Fatalf("expected a single merge event, got %v", types)
	}

	snapshot := hub.CombinedState()
	if snapshot["u1"].X != 10 || snapshot["u1"].Y != 20 {
		t.Fatalf("expected merged position stored, got %+v", snapshot["u1"])
	}
}

func TestApplyUpdateRejectionIsSilentAndUnpersisted(t *testing.T) {
	persists := 0
	hub, publisher := newTestHub(nil, func() { persists++ })
	hub.registry.Resolve("alice")

	if hub.ApplyUpdate("bob", map[string]any{"id": "alice", "x": 99.0}) {
		t.Fatal("expected foreign update to be rejected")
	}
	if persists != 0 {
		t.Fatalf("expected no persist on rejection, got %d", persists)
	}

	types := publisher.Types()
	if len(types) != 1 || types[0] != "world.update_rejected" {
		t.Fatalf("expected a rejection event, got %v", types)
	}
}

func TestMarshalStateSequencesAndSortsSnapshot(t *testing.T) {
	hub, _ := newTestHub(nil, nil)
	hub.registry.Resolve("zed")
	hub.registry.Resolve("amy")

	first, err := hub.MarshalState()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	second, err := hub.MarshalState()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var one, two struct {
		Ver      int             `json:"ver"`
		Type     string          `json:"type"`
		Hadrons  json.RawMessage `json:"hadrons"`
		Sequence uint64          `json:"sequence"`
	}
	if err := json.Unmarshal(first, &one); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if err := json.Unmarshal(second, &two); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if one.Ver != ProtocolVersion || one.Type != "state" {
		t.Fatalf("unexpected envelope: ver=%d type=%q", one.Ver, one.Type)
	}
	if two.Sequence != one.Sequence+1 {
		t.Fatalf("expected monotonic sequence, got %d then %d", one.Sequence, two.Sequence)
	}

	var hadrons map[string]Hadron
	if err := json.Unmarshal(one.Hadrons, &hadrons); err != nil {
		t.Fatalf("decode hadrons failed: %v", err)
	}
	if len(hadrons) != 2 {
		t.Fatalf("expected both active hadrons in the snapshot, got %d", len(hadrons))
	}
	for _, id := range []string{"amy", "zed"} {
		if hadrons[id].ID != id {
			t.Fatalf("snapshot missing hadron %q", id)
		}
	}
}

func TestEndSessionArchivesWithoutSubscriber(t *testing.T) {
	persists := 0
	hub, publisher := newTestHub(nil, func() { persists++ })
	hub.registry.Resolve("u1")

	hub.EndSession("u1", "connection closed")

	if hub.registry.ActiveCount() != 0 {
		t.Fatalf("expected active partition drained, got %d", hub.registry.ActiveCount())
	}
	if hub.registry.ArchivedCount() != 1 {
		t.Fatalf("expected hadron archived, got %d", hub.registry.ArchivedCount())
	}
	if persists != 1 {
		t.Fatalf("expected one scheduled persist, got %d", persists)
	}
	types := publisher.Types()
	if len(types) != 1 || types[0] != "session.ended" {
		t.Fatalf("expected a session end event, got %v", types)
	}
}

func TestEndSessionForUnknownIdentityIsNoOp(t *testing.T) {
	persists := 0
	hub, publisher := newTestHub(nil, func() { persists++ })

	hub.EndSession("stranger", "connection closed")

	if persists != 0 {
		t.Fatalf("expected no persist for an unknown identity, got %d", persists)
	}
	if len(publisher.Types()) != 0 {
		t.Fatalf("expected no events, got %v", publisher.Types())
	}
}

func TestMarkAliveKeepsQuietSessionOffStaleList(t *testing.T) {
	hub, _ := newTestHub(nil, nil)
	start := time.Now()
	hub.subscribers["u1"] = &subscriber{identity: "u1", lastHeartbeat: start}

	cutoff := start.Add(disconnectAfter + time.Second)
	if stale := hub.staleSessions(cutoff); len(stale) != 1 {
		t.Fatalf("expected a silent session to be stale, got %v", stale)
	}

	// Any inbound frame refreshes liveness, so a client that never sends
	// heartbeat messages survives as long as its transport carries traffic.
	hub.MarkAlive("u1", cutoff)
	if stale := hub.staleSessions(cutoff.Add(time.Second)); len(stale) != 0 {
		t.Fatalf("expected refreshed session to survive the sweep, got %v", stale)
	}
}

func TestMarkAliveUnknownIdentityIsNoOp(t *testing.T) {
	hub, _ := newTestHub(nil, nil)
	hub.MarkAlive("stranger", time.Now())
	if hub.SessionCount() != 0 {
		t.Fatalf("expected no sessions, got %d", hub.SessionCount())
	}
}

func TestUpdateHeartbeatUnknownIdentity(t *testing.T) {
	hub, _ := newTestHub(nil, nil)

	if _, ok := hub.UpdateHeartbeat("stranger", time.Now(), 0); ok {
		t.Fatal("expected heartbeat for an unknown identity to be ignored")
	}
}
