package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
	"github.com/wira-labs/go-muundo/core/serialize"
	"github.com/wira-labs/go-muundo/core/validation"
	"github.com/wira-labs/go-muundo/memory"
)

func newProductModel(t *testing.T) *Model {
	t.Helper()

	name := schema.Primitive(schema.PrimitiveString)
	name.Required = true
	price := schema.Primitive(schema.PrimitiveNumber)
	price.Required = true
	price.Validate = "min(0)"
	cost := schema.Primitive(schema.PrimitiveNumber)
	cost.ReadScopes = []string{"admin"}
	status := schema.Primitive(schema.PrimitiveString)
	status.Default = "draft"

	cs, err := schema.Compile("Product", map[string]*schema.AttributeNode{
		"name":        name,
		"price":       price,
		"cost":        cost,
		"status":      status,
		"description": schema.Primitive(schema.PrimitiveText),
		"supplier":    schema.Reference("Supplier"),
		"displayName": {Derive: "upper(name)"},
	})
	require.NoError(t, err)

	store := memory.NewStore(nil)
	require.NoError(t, store.EnsureCollection(context.Background(), cs))

	model, err := NewModel(cs, store, nil)
	require.NoError(t, err)
	return model
}

func createWidget(t *testing.T, model *Model) schema.Document {
	t.Helper()
	doc, err := model.Create(context.Background(), map[string]any{
		"name":  "Widget",
		"price": 10.0,
	}, serialize.NewScopeSet())
	require.NoError(t, err)
	return doc
}

func TestCreateStampsReservedFields(t *testing.T) {
	model := newProductModel(t)
	doc := createWidget(t, model)

	assert.NotEmpty(t, doc.ID())
	_, hasCreated := doc[schema.FieldCreatedAt]
	assert.True(t, hasCreated)
	assert.False(t, doc.Deleted())
	assert.Equal(t, "Widget", doc["name"])
}

func TestCreateAppliesDefaults(t *testing.T) {
	model := newProductModel(t)
	doc := createWidget(t, model)
	assert.Equal(t, "draft", doc["status"])
}

func TestCreateComputesAccessors(t *testing.T) {
	model := newProductModel(t)
	doc := createWidget(t, model)
	assert.Equal(t, "WIDGET", doc["displayName"])
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	model := newProductModel(t)

	_, err := model.Create(context.Background(), map[string]any{"name": "Widget"}, serialize.NewScopeSet())
	var vErr *validation.Error
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, validation.ModeCreate, vErr.Mode)

	// Nothing was persisted.
	total, err := model.CountDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateRedactsForCallerScopes(t *testing.T) {
	model := newProductModel(t)

	doc, err := model.Create(context.Background(), map[string]any{
		"name": "Widget", "price": 10.0, "cost": 6.0,
	}, serialize.NewScopeSet())
	require.NoError(t, err)
	assert.NotContains(t, doc, "cost")

	admin, err := model.FindByID(context.Background(), doc.ID(), serialize.NewScopeSet("admin"))
	require.NoError(t, err)
	assert.Equal(t, 6.0, admin["cost"])
}

func TestAssignSkipsReservedAndAccessors(t *testing.T) {
	model := newProductModel(t)
	doc := schema.Document{}
	model.Assign(doc, map[string]any{
		"name":        "Widget",
		"id":          "forged",
		"createdAt":   time.Now(),
		"displayName": "FORGED",
	})

	assert.Equal(t, "Widget", doc["name"])
	assert.NotContains(t, doc, "id")
	assert.NotContains(t, doc, "createdAt")
	assert.NotContains(t, doc, "displayName")
}

func TestAssignEmptyReferenceUnsets(t *testing.T) {
	model := newProductModel(t)
	doc := schema.Document{"supplier": "supplier-1"}

	model.Assign(doc, map[string]any{"supplier": ""})
	assert.NotContains(t, doc, "supplier")

	model.Assign(doc, map[string]any{"supplier": "supplier-2"})
	assert.Equal(t, "supplier-2", doc["supplier"])
}

func TestSavePersistsChanges(t *testing.T) {
	model := newProductModel(t)
	ctx := context.Background()
	doc := createWidget(t, model)

	doc["price"] = 12.5
	updated, err := model.Save(ctx, doc, serialize.NewScopeSet())
	require.NoError(t, err)
	assert.Equal(t, 12.5, updated["price"])

	fresh, err := model.FindByID(ctx, doc.ID(), serialize.NewScopeSet())
	require.NoError(t, err)
	assert.Equal(t, 12.5, fresh["price"])
}

func TestSaveRejectsInvalidUpdate(t *testing.T) {
	model := newProductModel(t)
	doc := createWidget(t, model)

	doc["price"] = -5.0
	_, err := model.Save(context.Background(), doc, serialize.NewScopeSet())
	var vErr *validation.Error
	require.ErrorAs(t, err, &vErr)
}

func TestSaveUnknownIDFails(t *testing.T) {
	model := newProductModel(t)
	_, err := model.Save(context.Background(), schema.Document{
		"id": "missing", "name": "X",
	}, serialize.NewScopeSet())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchReturnsDataAndMeta(t *testing.T) {
	model := newProductModel(t)
	ctx := context.Background()
	scopes := serialize.NewScopeSet()

	for _, name := range []string{"Widget", "Gadget", "Gizmo"} {
		_, err := model.Create(ctx, map[string]any{"name": name, "price": 1.0}, scopes)
		require.NoError(t, err)
	}

	result, err := model.Search(ctx, &query.SearchRequest{Limit: 2}, scopes)
	require.NoError(t, err)
	assert.Len(t, result.Data, 2)
	assert.EqualValues(t, 3, result.Meta.Total)
	assert.Equal(t, 2, result.Meta.Limit)
	assert.Equal(t, 0, result.Meta.Skip)
}

func TestSearchKeyword(t *testing.T) {
	model := newProductModel(t)
	ctx := context.Background()
	scopes := serialize.NewScopeSet()

	widget := createWidget(t, model)
	_, err := model.Create(ctx, map[string]any{"name": "Gadget", "price": 2.0}, scopes)
	require.NoError(t, err)

	result, err := model.Search(ctx, &query.SearchRequest{Keyword: "widg"}, scopes)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, widget.ID(), result.Data[0].ID())

	// An exact id works as a keyword even though no string field contains it.
	result, err = model.Search(ctx, &query.SearchRequest{Keyword: widget.ID()}, scopes)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, widget.ID(), result.Data[0].ID())
}

func TestSearchFieldFilters(t *testing.T) {
	model := newProductModel(t)
	ctx := context.Background()
	scopes := serialize.NewScopeSet()

	_, err := model.Create(ctx, map[string]any{"name": "Cheap", "price": 5.0}, scopes)
	require.NoError(t, err)
	_, err = model.Create(ctx, map[string]any{"name": "Dear", "price": 50.0}, scopes)
	require.NoError(t, err)

	result, err := model.Search(ctx, &query.SearchRequest{
		Filters: map[string]any{"price": map[string]any{"$gte": 10}},
	}, scopes)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "Dear", result.Data[0]["name"])
}

func TestSoftDeleteLifecycle(t *testing.T) {
	model := newProductModel(t)
	ctx := context.Background()
	scopes := serialize.NewScopeSet()
	doc := createWidget(t, model)

	require.NoError(t, model.Delete(ctx, doc.ID()))

	// Default reads exclude the deleted document.
	_, err := model.FindByID(ctx, doc.ID(), scopes)
	assert.ErrorIs(t, err, ErrNotFound)
	result, err := model.Search(ctx, &query.SearchRequest{}, scopes)
	require.NoError(t, err)
	assert.Empty(t, result.Data)

	// The deleted variant finds it; with-deleted ignores state entirely.
	deleted, err := model.FindByIDDeleted(ctx, doc.ID(), scopes)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted())
	either, err := model.FindByIDWithDeleted(ctx, doc.ID(), scopes)
	require.NoError(t, err)
	assert.Equal(t, doc.ID(), either.ID())

	// Restore clears deletedAt and the document reappears.
	require.NoError(t, model.Restore(ctx, doc.ID()))
	restored, err := model.FindByID(ctx, doc.ID(), scopes)
	require.NoError(t, err)
	assert.False(t, restored.Deleted())
}

func TestDestroyIsPhysical(t *testing.T) {
	model := newProductModel(t)
	ctx := context.Background()
	doc := createWidget(t, model)

	require.NoError(t, model.Destroy(ctx, doc.ID()))

	exists, err := model.ExistsWithDeleted(ctx, nil)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, model.Destroy(ctx, doc.ID()), ErrNotFound)
}

func TestCallerFilterMentioningDeletedAtWins(t *testing.T) {
	model := newProductModel(t)
	ctx := context.Background()
	scopes := serialize.NewScopeSet()
	doc := createWidget(t, model)
	require.NoError(t, model.Delete(ctx, doc.ID()))

	filter := query.Cond(schema.FieldDeletedAt, query.OpExists, nil)
	found, err := model.Find(ctx, &query.Query{Filter: &filter}, scopes)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestCountVariants(t *testing.T) {
	model := newProductModel(t)
	ctx := context.Background()
	doc := createWidget(t, model)
	createWidget(t, model)
	require.NoError(t, model.Delete(ctx, doc.ID()))

	active, err := model.CountDocuments(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)

	deleted, err := model.CountDocumentsDeleted(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	all, err := model.CountDocumentsWithDeleted(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, all)
}

func TestLifecycleEvents(t *testing.T) {
	model := newProductModel(t)

	received := make(chan Event, 1)
	unsubscribe := model.Subscribe(DocumentCreateSuccess, func(_ context.Context, event Event) error {
		select {
		case received <- event:
		default:
		}
		return nil
	})
	defer unsubscribe()

	createWidget(t, model)

	select {
	case event := <-received:
		assert.Equal(t, DocumentCreateSuccess, event.Type)
		assert.Equal(t, "Product", event.Model)
		assert.Equal(t, "create", event.Operation)
	case <-time.After(2 * time.Second):
		t.Fatal("create success event was not delivered")
	}
}
