package catalog

// FieldKind enumerates the primitive value types an extension field may
// carry on the wire.
type FieldKind string

const (
	FieldKindNumber FieldKind = "number"
	FieldKindString FieldKind = "string"
	FieldKindBool   FieldKind = "bool"
)

// FieldDefinition models the JSON contract for one designer-authored
// extension field. It is shared with the schema generator so we can produce
// a machine-readable document for validation and editor tooling.
type FieldDefinition struct {
	Key         string    `json:"key" jsonschema:"title=Field key,pattern=^[a-zA-Z][a-zA-Z0-9_]*$,description=Wire key clients may set on their hadrons"`
	Kind        FieldKind `json:"kind" jsonschema:"title=Field kind,enum=number,enum=string,enum=bool,description=Primitive type the value must carry"`
	Description string    `json:"description,omitempty" jsonschema:"description=Designer facing explanation of the field"`
}

// FileDefinitions represents the contents of the deployed fields.json.
type FileDefinitions []FieldDefinition

// defaultDefinitions is the built-in allow-list used when no catalog file is
// deployed.
func defaultDefinitions() FileDefinitions {
	return FileDefinitions{
		{Key: "health", Kind: FieldKindNumber, Description: "Current hit points"},
		{Key: "maxHealth", Kind: FieldKindNumber, Description: "Hit point ceiling"},
		{Key: "direction", Kind: FieldKindString, Description: "Facing for sprite selection"},
		{Key: "speed", Kind: FieldKindNumber, Description: "Movement speed in pixels per second"},
		{Key: "dead", Kind: FieldKindBool, Description: "Whether the entity is awaiting respawn"},
		{Key: "label", Kind: FieldKindString, Description: "Overlay text shown above the sprite"},
	}
}
