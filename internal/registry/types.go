package registry

// ResourceType classifies a matchable resource. The set is closed but
// extensible: new types are added here together with a weight profile in
// configuration; an unmapped type is a load-time configuration error.
type ResourceType string

const (
	// ResourceTypeText2SQL is a stored natural-language/SQL query example.
	ResourceTypeText2SQL ResourceType = "TEXT2SQL"
	// ResourceTypeDatabase is a relational table or collection.
	ResourceTypeDatabase ResourceType = "DATABASE"
	// ResourceTypeAPI is an API definition.
	ResourceTypeAPI ResourceType = "API"
	// ResourceTypeTool is a generic downstream tool.
	ResourceTypeTool ResourceType = "TOOL"
)

// VectorType is one of the named facets independently embedded per resource.
type VectorType string

const (
	VectorTypeName         VectorType = "name"
	VectorTypeDescription  VectorType = "description"
	VectorTypeCapabilities VectorType = "capabilities"
	VectorTypeComposite    VectorType = "composite"
)

// AllVectorTypes returns the vector facets in stable order.
func AllVectorTypes() []VectorType {
	return []VectorType{
		VectorTypeName,
		VectorTypeDescription,
		VectorTypeCapabilities,
		VectorTypeComposite,
	}
}

// ResourceDescriptor declares one matchable resource.
//
// Descriptors are immutable values: the registry swaps whole snapshots on
// reload, and the matching path never mutates them.
type ResourceDescriptor struct {
	// ID is the stable resource identifier, derived from the source table.
	ID string

	// Type is the resource type driving weight profile selection.
	Type ResourceType

	// SourceTable is the backing table or collection emitting change events.
	SourceTable string

	// Fields is the ordered field list used to build vectorizable content.
	Fields []string

	// Tool identifies the downstream capability invoked on a match.
	Tool string

	// Description is free text describing the resource.
	Description string

	// Enabled controls participation in matching.
	Enabled bool
}
