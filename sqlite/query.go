// Package sqlite implements the document store on SQLite. Each model gets one
// table with the reserved bookkeeping columns; composite fields are stored as
// JSON text and addressed with json_extract.
package sqlite

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
)

// timeLayout is fixed-width so lexicographic order of stored TEXT timestamps
// matches chronological order in ORDER BY and range comparisons.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// generator translates queries against one compiled schema into SQLite SQL.
type generator struct {
	cs    *schema.CompiledSchema
	table string
}

func newGenerator(cs *schema.CompiledSchema, prefix string) *generator {
	return &generator{cs: cs, table: prefix + cs.Name}
}

// quoteIdentifier quotes an identifier for SQLite.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// fieldSQL translates a logical field path into a SQL accessor. Dot paths
// under a composite root become json_extract calls.
func (g *generator) fieldSQL(fieldPath string) (string, error) {
	parts := strings.Split(fieldPath, ".")
	root := parts[0]

	if schema.IsReserved(root) {
		if len(parts) > 1 {
			return "", fmt.Errorf("reserved field %q does not support nested querying", root)
		}
		return quoteIdentifier(root), nil
	}

	rootField, ok := g.cs.Fields[root]
	if !ok {
		return "", fmt.Errorf("field %q not found in schema %q", root, g.cs.Name)
	}
	if len(parts) == 1 {
		return quoteIdentifier(root), nil
	}

	switch rootField.Type {
	case schema.FieldTypeObject, schema.FieldTypeArray:
		jsonPath := "$." + strings.Join(parts[1:], ".")
		return fmt.Sprintf("json_extract(%s, '%s')", quoteIdentifier(root), jsonPath), nil
	default:
		return "", fmt.Errorf("field %q of type %s does not support nested querying", root, rootField.Type)
	}
}

// prepareValue converts a Go value into the shape SQLite stores for the
// field: booleans become integers, dates become fixed-width UTC text,
// composites become JSON text.
func (g *generator) prepareValue(fieldPath string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if t, ok := value.(time.Time); ok {
		return t.UTC().Format(timeLayout), nil
	}

	root := strings.Split(fieldPath, ".")[0]
	if schema.IsReserved(root) {
		return value, nil
	}
	field, ok := g.cs.Fields[root]
	if !ok {
		return nil, fmt.Errorf("field %q not found in schema %q for value preparation", root, g.cs.Name)
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		if b, ok := value.(bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
		return value, nil
	case schema.FieldTypeObject, schema.FieldTypeArray:
		if strings.Contains(fieldPath, ".") {
			// json_extract comparisons work on the extracted scalar.
			return value, nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("serialize field %q to JSON: %w", fieldPath, err)
		}
		return string(raw), nil
	default:
		return value, nil
	}
}

// selectSQL builds a complete SELECT with WHERE, ORDER BY, LIMIT and OFFSET.
func (g *generator) selectSQL(q *query.Query) (string, []any, error) {
	var params []any
	var sb strings.Builder
	sb.WriteString("SELECT * FROM " + quoteIdentifier(g.table))

	if q != nil && q.Filter != nil {
		whereSQL, err := g.whereClause(q.Filter, &params)
		if err != nil {
			return "", nil, err
		}
		if whereSQL != "" {
			sb.WriteString(" WHERE " + whereSQL)
		}
	}

	if q != nil && len(q.Sort) > 0 {
		var orderBy []string
		for _, cfg := range q.Sort {
			accessor, err := g.fieldSQL(cfg.Field)
			if err != nil {
				return "", nil, fmt.Errorf("sort: %w", err)
			}
			orderBy = append(orderBy, accessor+" "+strings.ToUpper(string(cfg.Direction)))
		}
		sb.WriteString(" ORDER BY " + strings.Join(orderBy, ", "))
	}

	if q != nil && q.Page != nil {
		if q.Page.Limit > 0 {
			fmt.Fprintf(&sb, " LIMIT %d", q.Page.Limit)
		}
		if q.Page.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", q.Page.Offset)
		}
	}

	return sb.String(), params, nil
}

// countSQL builds a COUNT query over the filter.
func (g *generator) countSQL(filter *query.Filter) (string, []any, error) {
	var params []any
	sql := "SELECT COUNT(*) FROM " + quoteIdentifier(g.table)
	if filter != nil {
		whereSQL, err := g.whereClause(filter, &params)
		if err != nil {
			return "", nil, err
		}
		if whereSQL != "" {
			sql += " WHERE " + whereSQL
		}
	}
	return sql, params, nil
}

// insertSQL builds an INSERT returning the stored row.
func (g *generator) insertSQL(doc schema.Document) (string, []any, error) {
	columns := make([]string, 0, len(doc))
	for name := range doc {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	params := make([]any, len(columns))
	for i, name := range columns {
		value, err := g.prepareValue(name, doc[name])
		if err != nil {
			return "", nil, err
		}
		quoted[i] = quoteIdentifier(name)
		placeholders[i] = "?"
		params[i] = value
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdentifier(g.table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))
	return sql, params, nil
}

// updateSQL builds an UPDATE over the filter. Nil update values become NULL.
func (g *generator) updateSQL(filter *query.Filter, updates map[string]any) (string, []any, error) {
	if len(updates) == 0 {
		return "", nil, fmt.Errorf("no fields provided for update")
	}

	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)

	var setClauses []string
	var params []any
	for _, name := range names {
		value, err := g.prepareValue(name, updates[name])
		if err != nil {
			return "", nil, err
		}
		setClauses = append(setClauses, quoteIdentifier(name)+" = ?")
		params = append(params, value)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", quoteIdentifier(g.table), strings.Join(setClauses, ", "))
	if filter != nil {
		whereSQL, err := g.whereClause(filter, &params)
		if err != nil {
			return "", nil, err
		}
		if whereSQL != "" {
			sql += " WHERE " + whereSQL
		}
	}
	return sql, params, nil
}

// deleteSQL builds a physical DELETE over the filter.
func (g *generator) deleteSQL(filter *query.Filter) (string, []any, error) {
	var params []any
	sql := "DELETE FROM " + quoteIdentifier(g.table)
	if filter != nil {
		whereSQL, err := g.whereClause(filter, &params)
		if err != nil {
			return "", nil, err
		}
		if whereSQL != "" {
			sql += " WHERE " + whereSQL
		}
	}
	return sql, params, nil
}

// whereClause recursively renders a filter tree.
func (g *generator) whereClause(filter *query.Filter, params *[]any) (string, error) {
	if filter.Condition != nil {
		return g.condition(filter.Condition, params)
	}
	if filter.Group != nil {
		var clauses []string
		for i := range filter.Group.Conditions {
			clause, err := g.whereClause(&filter.Group.Conditions[i], params)
			if err != nil {
				return "", err
			}
			if clause != "" {
				clauses = append(clauses, clause)
			}
		}
		if len(clauses) == 0 {
			return "", nil
		}
		switch filter.Group.Operator {
		case query.LogicalAnd:
			return "(" + strings.Join(clauses, " AND ") + ")", nil
		case query.LogicalOr:
			return "(" + strings.Join(clauses, " OR ") + ")", nil
		case query.LogicalNot:
			if len(clauses) != 1 {
				return "", fmt.Errorf("not group must contain exactly one condition")
			}
			return "NOT (" + clauses[0] + ")", nil
		case query.LogicalNor:
			return "NOT (" + strings.Join(clauses, " OR ") + ")", nil
		default:
			return "", fmt.Errorf("unsupported logical operator %q", filter.Group.Operator)
		}
	}
	return "", fmt.Errorf("invalid filter: neither condition nor group is set")
}

// condition renders a single filter condition.
func (g *generator) condition(cond *query.FilterCondition, params *[]any) (string, error) {
	accessor, err := g.fieldSQL(cond.Field)
	if err != nil {
		return "", err
	}

	switch cond.Operator {
	case query.OpExists:
		return accessor + " IS NOT NULL", nil
	case query.OpNotExists:
		return accessor + " IS NULL", nil
	}

	prepared, err := g.prepareValue(cond.Field, cond.Value)
	if err != nil {
		return "", fmt.Errorf("prepare value for field %q: %w", cond.Field, err)
	}

	switch cond.Operator {
	case query.OpEq:
		*params = append(*params, prepared)
		return accessor + " = ?", nil
	case query.OpNeq:
		*params = append(*params, prepared)
		return accessor + " != ?", nil
	case query.OpLt:
		*params = append(*params, prepared)
		return accessor + " < ?", nil
	case query.OpLte:
		*params = append(*params, prepared)
		return accessor + " <= ?", nil
	case query.OpGt:
		*params = append(*params, prepared)
		return accessor + " > ?", nil
	case query.OpGte:
		*params = append(*params, prepared)
		return accessor + " >= ?", nil
	case query.OpIn, query.OpNin:
		values, err := g.prepareList(cond.Field, cond.Value)
		if err != nil {
			return "", err
		}
		if len(values) == 0 {
			// IN over an empty set never matches; NOT IN always does.
			if cond.Operator == query.OpIn {
				return "1=0", nil
			}
			return "1=1", nil
		}
		placeholders := strings.Repeat("?,", len(values)-1) + "?"
		*params = append(*params, values...)
		op := "IN"
		if cond.Operator == query.OpNin {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", accessor, op, placeholders), nil
	case query.OpContains:
		*params = append(*params, "%"+fmt.Sprintf("%v", prepared)+"%")
		return accessor + " LIKE ?", nil
	case query.OpIContains:
		*params = append(*params, "%"+fmt.Sprintf("%v", prepared)+"%")
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", accessor), nil
	case query.OpStartsWith:
		*params = append(*params, fmt.Sprintf("%v", prepared)+"%")
		return accessor + " LIKE ?", nil
	case query.OpEndsWith:
		*params = append(*params, "%"+fmt.Sprintf("%v", prepared))
		return accessor + " LIKE ?", nil
	default:
		return "", fmt.Errorf("unsupported comparison operator %q", cond.Operator)
	}
}

// prepareList normalizes an in/nin value into a prepared parameter slice.
func (g *generator) prepareList(fieldPath string, value any) ([]any, error) {
	var raw []any
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		raw = v
	case []string:
		raw = make([]any, len(v))
		for i, s := range v {
			raw[i] = s
		}
	default:
		raw = []any{v}
	}

	prepared := make([]any, len(raw))
	for i, item := range raw {
		p, err := g.prepareScalar(fieldPath, item)
		if err != nil {
			return nil, err
		}
		prepared[i] = p
	}
	return prepared, nil
}

// prepareScalar is prepareValue without the composite JSON wrapping, for list
// members compared against a scalar column.
func (g *generator) prepareScalar(fieldPath string, value any) (any, error) {
	if t, ok := value.(time.Time); ok {
		return t.UTC().Format(timeLayout), nil
	}
	if b, ok := value.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return value, nil
}
