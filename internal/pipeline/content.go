package pipeline

import (
	"strings"

	"github.com/fyrsmithlabs/discoveryd/internal/registry"
)

// DefaultTemplates returns the built-in per-facet content templates.
// Placeholders: {id}, {table}, {tool}, {description}, {fields}, {type}.
func DefaultTemplates() map[registry.VectorType]string {
	return map[registry.VectorType]string{
		registry.VectorTypeName:         "{id} {tool}",
		registry.VectorTypeDescription:  "{description}",
		registry.VectorTypeCapabilities: "{tool} {fields}",
		registry.VectorTypeComposite:    "{id} {description} {fields} {tool}",
	}
}

// ContentBuilder turns a resource descriptor into one embeddable string per
// vector facet. The rule is a deterministic template expansion so the same
// descriptor always yields the same content, and the templates come from
// configuration rather than code.
type ContentBuilder struct {
	templates map[registry.VectorType]string
}

// NewContentBuilder merges template overrides onto the defaults. Override
// keys are vector type names, validated at config load.
func NewContentBuilder(overrides map[string]string) *ContentBuilder {
	templates := DefaultTemplates()
	for key, tmpl := range overrides {
		templates[registry.VectorType(key)] = tmpl
	}
	return &ContentBuilder{templates: templates}
}

// Build expands every facet template for a descriptor. Facets whose expansion
// is empty are omitted; they produce no vector and are later excluded from
// matching via weight redistribution.
func (b *ContentBuilder) Build(desc registry.ResourceDescriptor) map[registry.VectorType]string {
	replacer := strings.NewReplacer(
		"{id}", desc.ID,
		"{table}", desc.SourceTable,
		"{tool}", desc.Tool,
		"{description}", desc.Description,
		"{fields}", strings.Join(desc.Fields, " "),
		"{type}", string(desc.Type),
	)

	contents := make(map[registry.VectorType]string, len(b.templates))
	for _, vt := range registry.AllVectorTypes() {
		tmpl, ok := b.templates[vt]
		if !ok {
			continue
		}
		content := strings.Join(strings.Fields(replacer.Replace(tmpl)), " ")
		if content == "" {
			continue
		}
		contents[vt] = content
	}
	return contents
}
