package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/discoveryd/internal/pipeline"
	"github.com/fyrsmithlabs/discoveryd/internal/registry"
)

func descriptor() registry.ResourceDescriptor {
	return registry.ResourceDescriptor{
		ID:          "orders",
		Type:        registry.ResourceTypeDatabase,
		SourceTable: "sales.orders",
		Fields:      []string{"order_id", "customer", "total"},
		Tool:        "query_orders",
		Description: "Customer orders with totals",
		Enabled:     true,
	}
}

func TestContentBuilder_Defaults(t *testing.T) {
	b := pipeline.NewContentBuilder(nil)
	contents := b.Build(descriptor())

	assert.Equal(t, "orders query_orders", contents[registry.VectorTypeName])
	assert.Equal(t, "Customer orders with totals", contents[registry.VectorTypeDescription])
	assert.Equal(t, "query_orders order_id customer total", contents[registry.VectorTypeCapabilities])
	assert.Equal(t, "orders Customer orders with totals order_id customer total query_orders",
		contents[registry.VectorTypeComposite])
}

func TestContentBuilder_Deterministic(t *testing.T) {
	b := pipeline.NewContentBuilder(nil)
	assert.Equal(t, b.Build(descriptor()), b.Build(descriptor()))
}

func TestContentBuilder_Overrides(t *testing.T) {
	b := pipeline.NewContentBuilder(map[string]string{
		"name": "{table} via {tool}",
	})
	contents := b.Build(descriptor())

	assert.Equal(t, "sales.orders via query_orders", contents[registry.VectorTypeName])
	// Other facets keep their defaults.
	assert.Equal(t, "Customer orders with totals", contents[registry.VectorTypeDescription])
}

func TestContentBuilder_EmptyFacetOmitted(t *testing.T) {
	desc := descriptor()
	desc.Description = ""

	contents := pipeline.NewContentBuilder(nil).Build(desc)

	_, ok := contents[registry.VectorTypeDescription]
	assert.False(t, ok)
	// Composite still renders from the remaining placeholders.
	assert.Contains(t, contents[registry.VectorTypeComposite], "query_orders")
}
