package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wira-labs/go-muundo/core/schema"
	"github.com/wira-labs/go-muundo/memory"
)

func registerModel(t *testing.T, registry *Registry, name string, attributes map[string]*schema.AttributeNode) *Model {
	t.Helper()
	cs, err := schema.Compile(name, attributes)
	require.NoError(t, err)
	store := memory.NewStore(nil)
	require.NoError(t, store.EnsureCollection(context.Background(), cs))
	model, err := NewModel(cs, store, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(model))
	return model
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	model := registerModel(t, registry, "Product", map[string]*schema.AttributeNode{
		"name": schema.Primitive(schema.PrimitiveString),
	})

	assert.Equal(t, model, registry.Get("Product"))
	assert.Nil(t, registry.Get("Order"))
	assert.Equal(t, []string{"Product"}, registry.Names())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	registerModel(t, registry, "Product", map[string]*schema.AttributeNode{
		"name": schema.Primitive(schema.PrimitiveString),
	})

	cs, err := schema.Compile("Product", map[string]*schema.AttributeNode{
		"name": schema.Primitive(schema.PrimitiveString),
	})
	require.NoError(t, err)
	dup, err := NewModel(cs, memory.NewStore(nil), nil)
	require.NoError(t, err)

	err = registry.Register(dup)
	var dupErr *schema.DuplicateModelError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "Product", dupErr.Name)
}

func TestRegistryResolveReferences(t *testing.T) {
	registry := NewRegistry()
	registerModel(t, registry, "Order", map[string]*schema.AttributeNode{
		"customer": schema.Reference("Customer"),
	})

	err := registry.ResolveReferences()
	var unknownErr *schema.UnknownModelError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "Order", unknownErr.Model)
	assert.Equal(t, "Customer", unknownErr.Target)

	registerModel(t, registry, "Customer", map[string]*schema.AttributeNode{
		"name": schema.Primitive(schema.PrimitiveString),
	})
	assert.NoError(t, registry.ResolveReferences())
}
