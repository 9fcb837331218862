package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
)

func seedStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store := NewStore(nil)

	cs, err := schema.Compile("Product", map[string]*schema.AttributeNode{
		"name":  schema.Primitive(schema.PrimitiveString),
		"price": schema.Primitive(schema.PrimitiveNumber),
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(ctx, cs))

	docs := []schema.Document{
		{"id": "1", "name": "Widget", "price": 10.0},
		{"id": "2", "name": "Gadget", "price": 20.0},
		{"id": "3", "name": "Gizmo", "price": 30.0},
	}
	for _, doc := range docs {
		_, err := store.Insert(ctx, "Product", doc)
		require.NoError(t, err)
	}
	return store, ctx
}

func TestSelectWithFilterSortAndPage(t *testing.T) {
	store, ctx := seedStore(t)

	filter := query.Cond("price", query.OpGte, 15.0)
	docs, err := store.Select(ctx, "Product", &query.Query{
		Filter: &filter,
		Sort:   []query.SortConfiguration{{Field: "price", Direction: query.SortDesc}},
		Page:   &query.Pagination{Limit: 1},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Gizmo", docs[0]["name"])
}

func TestSelectNilQueryReturnsAll(t *testing.T) {
	store, ctx := seedStore(t)
	docs, err := store.Select(ctx, "Product", nil)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestCount(t *testing.T) {
	store, ctx := seedStore(t)

	filter := query.Cond("name", query.OpIContains, "g")
	total, err := store.Count(ctx, "Product", &filter)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	none := query.Cond("name", query.OpEq, "Missing")
	total, err = store.Count(ctx, "Product", &none)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUpdateAppliesAndUnsets(t *testing.T) {
	store, ctx := seedStore(t)

	filter := query.Cond("id", query.OpEq, "1")
	changed, err := store.Update(ctx, "Product", &filter, map[string]any{
		"price": 99.0,
		"name":  nil,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	docs, err := store.Select(ctx, "Product", &query.Query{Filter: &filter})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 99.0, docs[0]["price"])
	assert.NotContains(t, docs[0], "name")
}

func TestRemove(t *testing.T) {
	store, ctx := seedStore(t)

	filter := query.Cond("price", query.OpLt, 25.0)
	removed, err := store.Remove(ctx, "Product", &filter)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	docs, err := store.Select(ctx, "Product", nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Gizmo", docs[0]["name"])
}

// seedMixedPrices inserts a document whose price cannot be compared
// numerically, so a price range filter matches the first document and then
// fails partway through the scan.
func seedMixedPrices(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store := NewStore(nil)
	for _, doc := range []schema.Document{
		{"id": "1", "name": "Widget", "price": 10.0},
		{"id": "2", "name": "Gadget", "price": 20.0},
		{"id": "3", "name": "Gizmo", "price": "oops"},
	} {
		_, err := store.Insert(ctx, "Product", doc)
		require.NoError(t, err)
	}
	return store, ctx
}

func TestUpdateErrorLeavesDocumentsUntouched(t *testing.T) {
	store, ctx := seedMixedPrices(t)

	filter := query.Cond("price", query.OpLt, 15.0)
	changed, err := store.Update(ctx, "Product", &filter, map[string]any{"name": "Cheap"})
	require.Error(t, err)
	assert.Zero(t, changed)

	docs, err := store.Select(ctx, "Product", nil)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for _, doc := range docs {
		assert.NotEqual(t, "Cheap", doc["name"])
	}
}

func TestRemoveErrorLeavesCollectionIntact(t *testing.T) {
	store, ctx := seedMixedPrices(t)

	filter := query.Cond("price", query.OpLt, 15.0)
	removed, err := store.Remove(ctx, "Product", &filter)
	require.Error(t, err)
	assert.Zero(t, removed)

	docs, err := store.Select(ctx, "Product", nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc["id"].(string))
	}
	assert.ElementsMatch(t, []string{"1", "2", "3"}, ids)
}

func TestDocumentsAreIsolated(t *testing.T) {
	store, ctx := seedStore(t)

	filter := query.Cond("id", query.OpEq, "1")
	docs, err := store.Select(ctx, "Product", &query.Query{Filter: &filter})
	require.NoError(t, err)
	docs[0]["name"] = "mutated"

	again, err := store.Select(ctx, "Product", &query.Query{Filter: &filter})
	require.NoError(t, err)
	assert.Equal(t, "Widget", again[0]["name"])
}
