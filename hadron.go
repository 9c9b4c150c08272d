package server

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/iancoleman/orderedmap"
)

// Hadron is a shared mutable game object: a player, NPC, or prop. Required
// fields are typed; everything else a client ships rides in Extra and is
// screened by the configured FieldValidator.
type Hadron struct {
	ID     string
	Owner  string
	X      float64
	Y      float64
	Scene  string
	Sprite string
	Extra  map[string]any
}

// Reserved hadron keys handled by the typed fields above.
const (
	keyID     = "id"
	keyOwner  = "owner"
	keyX      = "x"
	keyY      = "y"
	keyScene  = "scene"
	keySprite = "sprite"
)

func isReservedKey(key string) bool {
	switch key {
	case keyID, keyOwner, keyX, keyY, keyScene, keySprite:
		return true
	}
	return false
}

// FieldValidator screens extension fields before a merge is accepted.
type FieldValidator interface {
	Validate(extra map[string]any) error
}

// FieldValidatorFunc adapts functions into the FieldValidator interface.
type FieldValidatorFunc func(extra map[string]any) error

// Validate implements FieldValidator for FieldValidatorFunc.
func (f FieldValidatorFunc) Validate(extra map[string]any) error {
	if f == nil {
		return nil
	}
	return f(extra)
}

// Clone returns a deep copy so callers can hand hadrons across goroutines.
func (h Hadron) Clone() Hadron {
	cloned := h
	if h.Extra != nil {
		cloned.Extra = make(map[string]any, len(h.Extra))
		for k, v := range h.Extra {
			cloned.Extra[k] = v
		}
	}
	return cloned
}

// Fields flattens the hadron into the single-level mapping used by the wire
// encoding and the forward-merge.
func (h Hadron) Fields() map[string]any {
	fields := make(map[string]any, 6+len(h.Extra))
	fields[keyID] = h.ID
	fields[keyOwner] = h.Owner
	fields[keyX] = h.X
	fields[keyY] = h.Y
	fields[keyScene] = h.Scene
	fields[keySprite] = h.Sprite
	for k, v := range h.Extra {
		if isReservedKey(k) {
			continue
		}
		fields[k] = v
	}
	return fields
}

// hadronFromFields materializes and validates a flat field mapping. Every
// required field must be present, non-null, and of the expected type;
// otherwise the whole mapping is rejected.
func hadronFromFields(fields map[string]any) (Hadron, error) {
	hadron := Hadron{}

	id, ok := stringField(fields, keyID)
	if !ok {
		return Hadron{}, fmt.Errorf("hadron is missing %q", keyID)
	}
	hadron.ID = id

	owner, ok := stringField(fields, keyOwner)
	if !ok {
		return Hadron{}, fmt.Errorf("hadron %s is missing %q", id, keyOwner)
	}
	hadron.Owner = owner

	x, ok := numberField(fields, keyX)
	if !ok {
		return Hadron{}, fmt.Errorf("hadron %s is missing %q", id, keyX)
	}
	hadron.X = x

	y, ok := numberField(fields, keyY)
	if !ok {
		return Hadron{}, fmt.Errorf("hadron %s is missing %q", id, keyY)
	}
	hadron.Y = y

	scene, ok := stringField(fields, keyScene)
	if !ok {
		return Hadron{}, fmt.Errorf("hadron %s is missing %q", id, keyScene)
	}
	hadron.Scene = scene

	sprite, ok := stringField(fields, keySprite)
	if !ok {
		return Hadron{}, fmt.Errorf("hadron %s is missing %q", id, keySprite)
	}
	hadron.Sprite = sprite

	for k, v := range fields {
		if isReservedKey(k) {
			continue
		}
		if hadron.Extra == nil {
			hadron.Extra = make(map[string]any)
		}
		hadron.Extra[k] = v
	}

	return hadron, nil
}

func stringField(fields map[string]any, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", false
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func numberField(fields map[string]any, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch value := raw.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// mergeFields forward-merges a sparse delta over the previously stored
// fields: incoming values win, and every stored key absent from the delta is
// carried over unchanged.
func mergeFields(incoming, existing map[string]any) map[string]any {
	merged := make(map[string]any, len(incoming)+len(existing))
	for k, v := range incoming {
		merged[k] = v
	}
	for k, v := range existing {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return merged
}

// MarshalJSON flattens the hadron into a single JSON object: reserved keys
// first, extension keys sorted for a stable encoding.
func (h Hadron) MarshalJSON() ([]byte, error) {
	ordered := orderedmap.New()
	ordered.Set(keyID, h.ID)
	ordered.Set(keyOwner, h.Owner)
	ordered.Set(keyX, h.X)
	ordered.Set(keyY, h.Y)
	ordered.Set(keyScene, h.Scene)
	ordered.Set(keySprite, h.Sprite)

	extraKeys := make([]string, 0, len(h.Extra))
	for k := range h.Extra {
		if isReservedKey(k) {
			continue
		}
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		ordered.Set(k, h.Extra[k])
	}

	return json.Marshal(ordered)
}

// UnmarshalJSON accepts the flat object form produced by MarshalJSON and by
// hand-edited persisted files.
func (h *Hadron) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	parsed, err := hadronFromFields(fields)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
