// Package query defines the store-facing query DSL and the search engine that
// builds queries from structured search requests. The DSL is deliberately
// small: nested field conditions combined by logical operators, plus sort and
// offset pagination.
package query

import "github.com/wira-labs/go-muundo/core/schema"

// LogicalOperator combines the conditions of a filter group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
	LogicalNot LogicalOperator = "not"
	LogicalNor LogicalOperator = "nor"
)

// ComparisonOperator is the operator of a single filter condition.
type ComparisonOperator string

const (
	OpEq         ComparisonOperator = "eq"
	OpNeq        ComparisonOperator = "neq"
	OpLt         ComparisonOperator = "lt"
	OpLte        ComparisonOperator = "lte"
	OpGt         ComparisonOperator = "gt"
	OpGte        ComparisonOperator = "gte"
	OpIn         ComparisonOperator = "in"
	OpNin        ComparisonOperator = "nin"
	OpContains   ComparisonOperator = "contains"
	OpIContains  ComparisonOperator = "icontains"
	OpStartsWith ComparisonOperator = "startswith"
	OpEndsWith   ComparisonOperator = "endswith"
	OpExists     ComparisonOperator = "exists"
	OpNotExists  ComparisonOperator = "nexists"
)

// FilterCondition constrains one field, addressed by dot path.
type FilterCondition struct {
	Field    string             `json:"field"`
	Operator ComparisonOperator `json:"operator"`
	Value    any                `json:"value,omitempty"`
}

// FilterGroup combines conditions with a logical operator.
type FilterGroup struct {
	Operator   LogicalOperator `json:"operator"`
	Conditions []Filter        `json:"conditions"`
}

// Filter is a union of a single condition or a group. Exactly one member is
// set.
type Filter struct {
	Condition *FilterCondition `json:"condition,omitempty"`
	Group     *FilterGroup     `json:"group,omitempty"`
}

// Cond builds a single-condition filter.
func Cond(field string, op ComparisonOperator, value any) Filter {
	return Filter{Condition: &FilterCondition{Field: field, Operator: op, Value: value}}
}

// And combines filters so every one must hold.
func And(filters ...Filter) Filter {
	return Filter{Group: &FilterGroup{Operator: LogicalAnd, Conditions: filters}}
}

// Or combines filters so at least one must hold.
func Or(filters ...Filter) Filter {
	return Filter{Group: &FilterGroup{Operator: LogicalOr, Conditions: filters}}
}

// Mentions reports whether any condition in the filter tree constrains the
// named field. The soft-delete layer uses this to decide whether the caller
// has already taken a position on deletedAt.
func (f *Filter) Mentions(field string) bool {
	if f == nil {
		return false
	}
	if f.Condition != nil && f.Condition.Field == field {
		return true
	}
	if f.Group != nil {
		for i := range f.Group.Conditions {
			if f.Group.Conditions[i].Mentions(field) {
				return true
			}
		}
	}
	return false
}

// SortDirection orders query results.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortConfiguration names the field and direction results are ordered by.
type SortConfiguration struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Pagination is an offset/limit window over the sorted result.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Query is a complete store query: filter, ordering and window.
type Query struct {
	Filter *Filter             `json:"filter,omitempty"`
	Sort   []SortConfiguration `json:"sort,omitempty"`
	Page   *Pagination         `json:"page,omitempty"`
}

// SearchResult is the combined outcome of the concurrent count and fetch.
type SearchResult struct {
	Data []schema.Document `json:"data"`
	Meta Meta              `json:"meta"`
}

// Meta describes the window a SearchResult covers.
type Meta struct {
	Total int64 `json:"total"`
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
}
