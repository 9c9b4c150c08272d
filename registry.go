package server

// Registry partitions every known hadron into two disjoint sets: active
// (owner currently connected) and archived (owner disconnected). Archived
// hadrons survive in memory and on disk but never appear in a broadcast.
//
// The registry performs no locking of its own; the hub serializes every call
// behind its mutex. A future multi-process split must add its own
// serialization point around mutation plus snapshot.
type Registry struct {
	active   map[string]Hadron
	archived map[string]Hadron

	// identityExists guards default-hadron synthesis: a brand-new hadron
	// may not claim an id reserved for another account, or that account
	// would connect to find its primary id squatted.
	identityExists func(id string) bool
}

// NewRegistry builds a registry whose persisted hadrons all start archived;
// sessions resurrect their own objects as they authenticate.
func NewRegistry(persisted map[string]Hadron) *Registry {
	registry := &Registry{
		active:   make(map[string]Hadron),
		archived: make(map[string]Hadron, len(persisted)),
	}
	for id, hadron := range persisted {
		registry.archived[id] = hadron.Clone()
	}
	return registry
}

// Resolve moves every archived hadron owned by identity back into the active
// partition and synthesizes a default player hadron when the identity has
// none. It returns the identity's primary hadron.
func (r *Registry) Resolve(identity string) Hadron {
	for id, hadron := range r.archived {
		if hadron.Owner != identity {
			continue
		}
		r.active[id] = hadron
		delete(r.archived, id)
	}

	if _, ok := r.active[identity]; !ok {
		r.active[identity] = Hadron{
			ID:     identity,
			Owner:  identity,
			X:      defaultSpawnX,
			Y:      defaultSpawnY,
			Scene:  DefaultScene,
			Sprite: DefaultSprite,
		}
	}

	return r.active[identity].Clone()
}

// ArchiveAll moves every active hadron owned by identity into the archived
// partition. Called when the owning session ends.
func (r *Registry) ArchiveAll(identity string) int {
	moved := 0
	for id, hadron := range r.active {
		if hadron.Owner != identity {
			continue
		}
		r.archived[id] = hadron
		delete(r.active, id)
		moved++
	}
	return moved
}

// ReserveIdentityIDs installs the account lookup consulted before a new
// hadron id is created. Persisted state is trusted as loaded.
func (r *Registry) ReserveIdentityIDs(exists func(id string) bool) {
	r.identityExists = exists
}

// Apply merges a partial update submitted by identity. The boolean reports
// whether the merge was stored; rejection is deliberately opaque and never
// distinguishes "no such hadron" from "not yours", so a probing client
// learns nothing about ids it does not own.
func (r *Registry) Apply(identity string, delta map[string]any, validator FieldValidator) (Hadron, bool) {
	id, ok := stringField(delta, keyID)
	if !ok {
		return Hadron{}, false
	}

	existing, found := r.active[id]
	if !found {
		// An archived hadron keeps its id reserved while its owner is away.
		if archived, ok := r.archived[id]; ok {
			existing, found = archived, true
		}
	}
	if found && existing.Owner != identity {
		return Hadron{}, false
	}
	if !found && id != identity && r.identityExists != nil && r.identityExists(id) {
		// The id belongs to another account; creating under it would block
		// that account's default hadron. Rejected like any ownership miss.
		return Hadron{}, false
	}

	var prior map[string]any
	if found {
		prior = existing.Fields()
	}
	merged := mergeFields(delta, prior)
	// A client can never reassign or spoof ownership.
	merged[keyOwner] = identity

	hadron, err := hadronFromFields(merged)
	if err != nil {
		return Hadron{}, false
	}
	if validator != nil {
		if err := validator.Validate(hadron.Extra); err != nil {
			return Hadron{}, false
		}
	}

	r.active[id] = hadron
	delete(r.archived, id)
	return hadron.Clone(), true
}

// Snapshot copies the active partition. Archived hadrons are never part of
// a broadcast.
func (r *Registry) Snapshot() map[string]Hadron {
	snapshot := make(map[string]Hadron, len(r.active))
	for id, hadron := range r.active {
		snapshot[id] = hadron.Clone()
	}
	return snapshot
}

// Combined unions both partitions for persistence.
func (r *Registry) Combined() map[string]Hadron {
	combined := make(map[string]Hadron, len(r.active)+len(r.archived))
	for id, hadron := range r.archived {
		combined[id] = hadron.Clone()
	}
	for id, hadron := range r.active {
		combined[id] = hadron.Clone()
	}
	return combined
}

// ActiveCount reports the size of the active partition.
func (r *Registry) ActiveCount() int {
	return len(r.active)
}

// ArchivedCount reports the size of the archived partition.
func (r *Registry) ArchivedCount() int {
	return len(r.archived)
}

// SweepOrphans drops archived hadrons whose owner no longer exists and
// returns how many were removed. Run once at startup after accounts load.
func (r *Registry) SweepOrphans(ownerExists func(identity string) bool) int {
	if ownerExists == nil {
		return 0
	}
	removed := 0
	for id, hadron := range r.archived {
		if ownerExists(hadron.Owner) {
			continue
		}
		delete(r.archived, id)
		removed++
	}
	return removed
}
