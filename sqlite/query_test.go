package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
)

func productGenerator(t *testing.T) *generator {
	t.Helper()
	cs, err := schema.Compile("Product", map[string]*schema.AttributeNode{
		"name":   schema.Primitive(schema.PrimitiveString),
		"price":  schema.Primitive(schema.PrimitiveNumber),
		"active": schema.Primitive(schema.PrimitiveBoolean),
		"shipping": schema.ObjectOf(map[string]*schema.AttributeNode{
			"city": schema.Primitive(schema.PrimitiveString),
		}),
	})
	require.NoError(t, err)
	return newGenerator(cs, "")
}

func TestSelectSQLPlain(t *testing.T) {
	gen := productGenerator(t)
	filter := query.Cond("name", query.OpEq, "Widget")
	sql, params, err := gen.selectSQL(&query.Query{
		Filter: &filter,
		Sort:   []query.SortConfiguration{{Field: "price", Direction: query.SortDesc}},
		Page:   &query.Pagination{Limit: 10, Offset: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "Product" WHERE "name" = ? ORDER BY "price" DESC LIMIT 10 OFFSET 20`, sql)
	assert.Equal(t, []any{"Widget"}, params)
}

func TestSelectSQLNilQuery(t *testing.T) {
	gen := productGenerator(t)
	sql, params, err := gen.selectSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "Product"`, sql)
	assert.Empty(t, params)
}

func TestFieldSQLJSONExtract(t *testing.T) {
	gen := productGenerator(t)
	filter := query.Cond("shipping.city", query.OpEq, "Nairobi")
	sql, params, err := gen.selectSQL(&query.Query{Filter: &filter})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "Product" WHERE json_extract("shipping", '$.city') = ?`, sql)
	assert.Equal(t, []any{"Nairobi"}, params)
}

func TestFieldSQLUnknownField(t *testing.T) {
	gen := productGenerator(t)
	filter := query.Cond("bogus", query.OpEq, 1)
	_, _, err := gen.selectSQL(&query.Query{Filter: &filter})
	assert.Error(t, err)
}

func TestWhereClauseGroups(t *testing.T) {
	gen := productGenerator(t)
	filter := query.And(
		query.Cond("price", query.OpGte, 10),
		query.Or(
			query.Cond("name", query.OpIContains, "wid"),
			query.Cond("active", query.OpEq, true),
		),
	)
	var params []any
	sql, err := gen.whereClause(&filter, &params)
	require.NoError(t, err)
	assert.Equal(t, `("price" >= ? AND (LOWER("name") LIKE LOWER(?) OR "active" = ?))`, sql)
	assert.Equal(t, []any{10, "%wid%", 1}, params)
}

func TestConditionExistence(t *testing.T) {
	gen := productGenerator(t)
	var params []any

	filter := query.Cond(schema.FieldDeletedAt, query.OpNotExists, nil)
	sql, err := gen.whereClause(&filter, &params)
	require.NoError(t, err)
	assert.Equal(t, `"deletedAt" IS NULL`, sql)

	filter = query.Cond(schema.FieldDeletedAt, query.OpExists, nil)
	sql, err = gen.whereClause(&filter, &params)
	require.NoError(t, err)
	assert.Equal(t, `"deletedAt" IS NOT NULL`, sql)
	assert.Empty(t, params)
}

func TestConditionMembership(t *testing.T) {
	gen := productGenerator(t)
	var params []any

	filter := query.Cond("name", query.OpIn, []string{"a", "b"})
	sql, err := gen.whereClause(&filter, &params)
	require.NoError(t, err)
	assert.Equal(t, `"name" IN (?,?)`, sql)
	assert.Equal(t, []any{"a", "b"}, params)

	params = nil
	empty := query.Cond("name", query.OpIn, []any{})
	sql, err = gen.whereClause(&empty, &params)
	require.NoError(t, err)
	assert.Equal(t, "1=0", sql)

	emptyNin := query.Cond("name", query.OpNin, []any{})
	sql, err = gen.whereClause(&emptyNin, &params)
	require.NoError(t, err)
	assert.Equal(t, "1=1", sql)
	assert.Empty(t, params)
}

func TestPrepareValueConversions(t *testing.T) {
	gen := productGenerator(t)

	v, err := gen.prepareValue("active", true)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	stamp := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	v, err = gen.prepareValue(schema.FieldCreatedAt, stamp)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01T08:30:00.000000000Z", v)

	v, err = gen.prepareValue("shipping", map[string]any{"city": "Nairobi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"city": "Nairobi"}`, v.(string))
}

func TestTimeTextOrderMatchesChronology(t *testing.T) {
	gen := productGenerator(t)

	whole, err := gen.prepareValue(schema.FieldCreatedAt, time.Date(2026, 5, 1, 8, 30, 1, 0, time.UTC))
	require.NoError(t, err)
	subSecond, err := gen.prepareValue(schema.FieldCreatedAt, time.Date(2026, 5, 1, 8, 30, 0, 500_000_000, time.UTC))
	require.NoError(t, err)

	// Stored as TEXT, so string comparison drives ORDER BY and ranges.
	assert.Less(t, subSecond.(string), whole.(string))
}

func TestUpdateSQL(t *testing.T) {
	gen := productGenerator(t)
	filter := query.Cond(schema.FieldID, query.OpEq, "1")
	sql, params, err := gen.updateSQL(&filter, map[string]any{
		"price":     12.5,
		"deletedAt": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "Product" SET "deletedAt" = ?, "price" = ? WHERE "id" = ?`, sql)
	assert.Equal(t, []any{nil, 12.5, "1"}, params)
}

func TestInsertSQL(t *testing.T) {
	gen := productGenerator(t)
	sql, params, err := gen.insertSQL(schema.Document{
		"id":   "1",
		"name": "Widget",
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "Product" ("id", "name") VALUES (?, ?) RETURNING *`, sql)
	assert.Equal(t, []any{"1", "Widget"}, params)
}

func TestDeleteSQL(t *testing.T) {
	gen := productGenerator(t)
	filter := query.Cond(schema.FieldID, query.OpEq, "1")
	sql, params, err := gen.deleteSQL(&filter)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "Product" WHERE "id" = ?`, sql)
	assert.Equal(t, []any{"1"}, params)
}

func TestTablePrefix(t *testing.T) {
	cs, err := schema.Compile("Product", map[string]*schema.AttributeNode{
		"name": schema.Primitive(schema.PrimitiveString),
	})
	require.NoError(t, err)
	gen := newGenerator(cs, "app_")
	sql, _, err := gen.selectSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "app_Product"`, sql)
}
