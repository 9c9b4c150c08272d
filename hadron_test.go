package server

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHadronMarshalFlattensFields(t *testing.T) {
	hadron := Hadron{
		ID:     "u1",
		Owner:  "u1",
		X:      10,
		Y:      20,
		Scene:  "LoruleH8",
		Sprite: "bloomby",
		Extra:  map[string]any{"label": "hero", "dead": false},
	}

	data, err := json.Marshal(hadron)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round-trip decode failed: %v", err)
	}
	if decoded["id"] != "u1" || decoded["owner"] != "u1" {
		t.Fatalf("reserved fields not flattened: %v", decoded)
	}
	if decoded["x"] != 10.0 || decoded["y"] != 20.0 {
		t.Fatalf("positions not flattened: %v", decoded)
	}
	if decoded["label"] != "hero" || decoded["dead"] != false {
		t.Fatalf("extension fields not flattened: %v", decoded)
	}
	if _, ok := decoded["Extra"]; ok {
		t.Fatal("encoding leaked the internal Extra container")
	}

	// Reserved keys lead and extension keys are sorted, so repeated saves of
	// the same state produce identical bytes.
	text := string(data)
	if !strings.HasPrefix(text, `{"id":"u1","owner":"u1"`) {
		t.Fatalf("expected reserved keys first, got %s", text)
	}
	if strings.Index(text, `"dead"`) > strings.Index(text, `"label"`) {
		t.Fatalf("expected sorted extension keys, got %s", text)
	}
}

func TestHadronUnmarshalAcceptsFlatObject(t *testing.T) {
	raw := `{"id":"u1","owner":"u1","x":1.5,"y":-2,"scene":"cave","sprite":"miner","speed":3}`

	var hadron Hadron
	if err := json.Unmarshal([]byte(raw), &hadron); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if hadron.ID != "u1" || hadron.X != 1.5 || hadron.Y != -2 {
		t.Fatalf("unexpected hadron: %+v", hadron)
	}
	if hadron.Extra["speed"] != 3.0 {
		t.Fatalf("expected extension field preserved, got %v", hadron.Extra)
	}
}

func TestHadronUnmarshalRejectsIncompleteObject(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing sprite", `{"id":"u1","owner":"u1","x":1,"y":2,"scene":"cave"}`},
		{"null owner", `{"id":"u1","owner":null,"x":1,"y":2,"scene":"cave","sprite":"miner"}`},
		{"string position", `{"id":"u1","owner":"u1","x":"far","y":2,"scene":"cave","sprite":"miner"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hadron Hadron
			if err := json.Unmarshal([]byte(tc.raw), &hadron); err == nil {
				t.Fatal("expected unmarshal to fail")
			}
		})
	}
}

func TestMergeFieldsIncomingWins(t *testing.T) {
	existing := map[string]any{"id": "u1", "x": 1.0, "y": 2.0, "label": "hero"}
	incoming := map[string]any{"id": "u1", "x": 9.0}

	merged := mergeFields(incoming, existing)

	if merged["x"] != 9.0 {
		t.Fatalf("expected incoming x to win, got %v", merged["x"])
	}
	if merged["y"] != 2.0 || merged["label"] != "hero" {
		t.Fatalf("expected absent keys carried over, got %v", merged)
	}
}

func TestCloneIsolatesExtensionFields(t *testing.T) {
	original := Hadron{ID: "u1", Owner: "u1", Scene: "cave", Sprite: "miner", Extra: map[string]any{"label": "hero"}}

	cloned := original.Clone()
	cloned.Extra["label"] = "villain"

	if original.Extra["label"] != "hero" {
		t.Fatal("clone shares the extension map with the original")
	}
}
