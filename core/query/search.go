package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wira-labs/go-muundo/core/schema"
)

// DefaultLimit is the page size applied when a search request names none.
const DefaultLimit = 50

// OperatorPrefix marks the keys of a filter mapping as operator tokens. A
// mapping whose keys all carry the prefix is a terminal value: it is
// translated to conditions on its parent path instead of being recursed into.
const OperatorPrefix = "$"

var operatorTokens = map[string]ComparisonOperator{
	"$eq":       OpEq,
	"$neq":      OpNeq,
	"$ne":       OpNeq,
	"$lt":       OpLt,
	"$lte":      OpLte,
	"$gt":       OpGt,
	"$gte":      OpGte,
	"$in":       OpIn,
	"$nin":      OpNin,
	"$contains": OpContains,
	"$exists":   OpExists,
}

// SearchRequest is the transient, per-request description of a search. It is
// built from validated input and discarded after query execution.
type SearchRequest struct {
	IDs     []string
	Keyword string
	StartAt *time.Time
	EndAt   *time.Time
	Sort    *SortConfiguration
	Skip    int
	Limit   int
	// Filters is an open-ended mapping of additional field constraints,
	// flattened into dot-path conditions by Build.
	Filters map[string]any
}

// Build translates a search request into a store query against the given
// schema. Constraints are assembled in fixed precedence: id set, keyword,
// creation-date range, then the remaining field filters; sort and pagination
// are applied last and never affect the filter.
func Build(cs *schema.CompiledSchema, req *SearchRequest) (*Query, error) {
	var conditions []Filter

	if len(req.IDs) > 0 {
		conditions = append(conditions, Cond(schema.FieldID, OpIn, req.IDs))
	}

	if req.Keyword != "" {
		if keyword := keywordFilter(cs, req.Keyword); keyword != nil {
			conditions = append(conditions, *keyword)
		}
	}

	if req.StartAt != nil {
		conditions = append(conditions, Cond(schema.FieldCreatedAt, OpGte, *req.StartAt))
	}
	if req.EndAt != nil {
		conditions = append(conditions, Cond(schema.FieldCreatedAt, OpLte, *req.EndAt))
	}

	fieldConds, err := buildFieldFilters(req.Filters)
	if err != nil {
		return nil, err
	}
	conditions = append(conditions, fieldConds...)

	q := &Query{}
	switch len(conditions) {
	case 0:
	case 1:
		q.Filter = &conditions[0]
	default:
		combined := And(conditions...)
		q.Filter = &combined
	}

	if req.Sort != nil {
		q.Sort = []SortConfiguration{*req.Sort}
	} else {
		q.Sort = []SortConfiguration{{Field: schema.FieldCreatedAt, Direction: SortDesc}}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q.Page = &Pagination{Limit: limit, Offset: req.Skip}

	return q, nil
}

// keywordFilter matches the keyword case-insensitively against every
// string-like field, OR-ed together, plus an exact identifier match when the
// keyword is itself a syntactically valid id. When a model has no string
// fields and the keyword is not a valid id, the keyword contributes nothing:
// the filter stays empty rather than failing the search.
func keywordFilter(cs *schema.CompiledSchema, keyword string) *Filter {
	var alternatives []Filter
	for _, path := range cs.StringFieldPaths() {
		alternatives = append(alternatives, Cond(path, OpIContains, keyword))
	}
	if _, err := uuid.Parse(keyword); err == nil {
		alternatives = append(alternatives, Cond(schema.FieldID, OpEq, keyword))
	}

	switch len(alternatives) {
	case 0:
		return nil
	case 1:
		return &alternatives[0]
	default:
		group := Or(alternatives...)
		return &group
	}
}

func buildFieldFilters(filters map[string]any) ([]Filter, error) {
	var conditions []Filter
	for _, field := range sortedFilterKeys(filters) {
		conds, err := flattenFilter(field, filters[field])
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, conds...)
	}
	return conditions, nil
}

// flattenFilter turns one field filter into conditions. Lists constrain via
// set membership, with an empty list contributing no constraint at all.
// Plain nested mappings recurse into dot-path equality; a mapping whose keys
// are operator tokens terminates the recursion.
func flattenFilter(path string, value any) ([]Filter, error) {
	switch v := value.(type) {
	case []any:
		if len(v) == 0 {
			return nil, nil
		}
		return []Filter{Cond(path, OpIn, v)}, nil
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
		return []Filter{Cond(path, OpIn, v)}, nil
	case map[string]any:
		prefixed, plain := splitOperatorKeys(v)
		if len(prefixed) > 0 && len(plain) > 0 {
			return nil, fmt.Errorf("filter for %q mixes operator tokens with plain fields", path)
		}
		if len(prefixed) > 0 {
			return operatorConditions(path, v, prefixed)
		}
		var conditions []Filter
		for _, key := range plain {
			conds, err := flattenFilter(path+"."+key, v[key])
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, conds...)
		}
		return conditions, nil
	default:
		return []Filter{Cond(path, OpEq, value)}, nil
	}
}

func operatorConditions(path string, m map[string]any, tokens []string) ([]Filter, error) {
	var conditions []Filter
	for _, token := range tokens {
		op, known := operatorTokens[token]
		if !known {
			return nil, fmt.Errorf("unsupported filter operator %q for field %q", token, path)
		}
		conditions = append(conditions, Cond(path, op, m[token]))
	}
	return conditions, nil
}

func splitOperatorKeys(m map[string]any) (prefixed, plain []string) {
	for key := range m {
		if strings.HasPrefix(key, OperatorPrefix) {
			prefixed = append(prefixed, key)
		} else {
			plain = append(plain, key)
		}
	}
	sort.Strings(prefixed)
	sort.Strings(plain)
	return prefixed, plain
}

func sortedFilterKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
