package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Resolver screens hadron extension fields against the loaded allow-list.
// It satisfies the server's FieldValidator contract.
type Resolver struct {
	kinds map[string]FieldKind
}

// Default builds a resolver from the built-in definitions.
func Default() *Resolver {
	resolver, err := NewResolver(defaultDefinitions())
	if err != nil {
		// The built-in list is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return resolver
}

// Load reads a catalog file. A missing file falls back to the built-in
// definitions; a present but unparseable file is an error.
func Load(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read field catalog %s: %w", path, err)
	}

	var definitions FileDefinitions
	if err := json.Unmarshal(data, &definitions); err != nil {
		return nil, fmt.Errorf("parse field catalog %s: %w", path, err)
	}
	resolver, err := NewResolver(definitions)
	if err != nil {
		return nil, fmt.Errorf("field catalog %s: %w", path, err)
	}
	return resolver, nil
}

// NewResolver validates the definitions and indexes them by key.
func NewResolver(definitions FileDefinitions) (*Resolver, error) {
	kinds := make(map[string]FieldKind, len(definitions))
	for _, def := range definitions {
		if def.Key == "" {
			return nil, errors.New("field definition with empty key")
		}
		if _, dup := kinds[def.Key]; dup {
			return nil, fmt.Errorf("duplicate field definition %q", def.Key)
		}
		switch def.Kind {
		case FieldKindNumber, FieldKindString, FieldKindBool:
		default:
			return nil, fmt.Errorf("field %q has unknown kind %q", def.Key, def.Kind)
		}
		kinds[def.Key] = def.Kind
	}
	return &Resolver{kinds: kinds}, nil
}

// Keys lists the allowed extension keys in sorted order.
func (r *Resolver) Keys() []string {
	keys := make([]string, 0, len(r.kinds))
	for key := range r.kinds {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Validate rejects any extension mapping that carries an unlisted key or a
// value of the wrong kind.
func (r *Resolver) Validate(extra map[string]any) error {
	for key, value := range extra {
		kind, ok := r.kinds[key]
		if !ok {
			return fmt.Errorf("unknown field %q", key)
		}
		if !kindMatches(kind, value) {
			return fmt.Errorf("field %q is not a %s", key, kind)
		}
	}
	return nil
}

func kindMatches(kind FieldKind, value any) bool {
	if value == nil {
		return false
	}
	switch kind {
	case FieldKindNumber:
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		case json.Number:
			return true
		}
		return false
	case FieldKindString:
		_, ok := value.(string)
		return ok
	case FieldKindBool:
		_, ok := value.(bool)
		return ok
	}
	return false
}
