package query

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wira-labs/go-muundo/core/schema"
)

// Matcher evaluates the filter DSL against in-memory documents. The memory
// store is built on it, and callers can use Match to apply query filtering to
// documents they already hold.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher creates a Matcher. A nil logger falls back to a no-op logger.
func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Match reports whether a document satisfies the filter. A nil filter matches
// everything.
func (m *Matcher) Match(doc schema.Document, filter *Filter) (bool, error) {
	if filter == nil {
		return true, nil
	}
	if filter.Condition != nil {
		return m.evaluateCondition(doc, filter.Condition)
	}
	if filter.Group != nil {
		return m.evaluateGroup(doc, filter.Group)
	}
	return false, fmt.Errorf("empty filter: neither condition nor group is set")
}

func (m *Matcher) evaluateGroup(doc schema.Document, group *FilterGroup) (bool, error) {
	switch group.Operator {
	case LogicalAnd:
		for i := range group.Conditions {
			passes, err := m.Match(doc, &group.Conditions[i])
			if err != nil || !passes {
				return false, err
			}
		}
		return true, nil
	case LogicalOr:
		for i := range group.Conditions {
			passes, err := m.Match(doc, &group.Conditions[i])
			if err != nil {
				return false, err
			}
			if passes {
				return true, nil
			}
		}
		return false, nil
	case LogicalNot:
		if len(group.Conditions) != 1 {
			return false, fmt.Errorf("not group must contain exactly one condition")
		}
		passes, err := m.Match(doc, &group.Conditions[0])
		return !passes, err
	case LogicalNor:
		for i := range group.Conditions {
			passes, err := m.Match(doc, &group.Conditions[i])
			if err != nil {
				return false, err
			}
			if passes {
				return false, nil
			}
		}
		return true, nil
	default:
		m.logger.Debug("unsupported logical operator",
			zap.String("operator", string(group.Operator)))
		return false, fmt.Errorf("unsupported logical operator %q", group.Operator)
	}
}

func (m *Matcher) evaluateCondition(doc schema.Document, cond *FilterCondition) (bool, error) {
	value, exists := LookupPath(doc, cond.Field)

	switch cond.Operator {
	case OpExists:
		return exists && value != nil, nil
	case OpNotExists:
		return !exists || value == nil, nil
	}

	if !exists {
		return false, nil
	}

	switch cond.Operator {
	case OpEq:
		return looseEqual(value, cond.Value), nil
	case OpNeq:
		return !looseEqual(value, cond.Value), nil
	case OpLt, OpLte, OpGt, OpGte:
		cmp, ok := compareValues(value, cond.Value)
		if !ok {
			m.logger.Debug("incomparable filter values",
				zap.String("field", cond.Field), zap.String("operator", string(cond.Operator)))
			return false, fmt.Errorf("cannot compare %T with %T for field %q", value, cond.Value, cond.Field)
		}
		switch cond.Operator {
		case OpLt:
			return cmp < 0, nil
		case OpLte:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case OpIn, OpNin:
		members, ok := valueList(cond.Value)
		if !ok {
			return false, fmt.Errorf("operator %q requires a list value for field %q", cond.Operator, cond.Field)
		}
		found := false
		for _, member := range members {
			if looseEqual(value, member) {
				found = true
				break
			}
		}
		if cond.Operator == OpIn {
			return found, nil
		}
		return !found, nil
	case OpContains:
		s, sub, ok := stringPair(value, cond.Value)
		return ok && strings.Contains(s, sub), nil
	case OpIContains:
		s, sub, ok := stringPair(value, cond.Value)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
	case OpStartsWith:
		s, prefix, ok := stringPair(value, cond.Value)
		return ok && strings.HasPrefix(s, prefix), nil
	case OpEndsWith:
		s, suffix, ok := stringPair(value, cond.Value)
		return ok && strings.HasSuffix(s, suffix), nil
	default:
		m.logger.Debug("unsupported comparison operator",
			zap.String("field", cond.Field), zap.String("operator", string(cond.Operator)))
		return false, fmt.Errorf("unsupported comparison operator %q", cond.Operator)
	}
}

// LookupPath resolves a dot-separated path through nested maps.
func LookupPath(doc schema.Document, path string) (any, bool) {
	current := any(map[string]any(doc))
	for path != "" {
		head := path
		if i := strings.IndexByte(path, '.'); i >= 0 {
			head, path = path[:i], path[i+1:]
		} else {
			path = ""
		}
		node, ok := current.(map[string]any)
		if !ok {
			if d, isDoc := current.(schema.Document); isDoc {
				node = d
			} else {
				return nil, false
			}
		}
		current, ok = node[head]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SortDocuments stably sorts documents in place by the given configurations.
// Missing values sort before present ones in ascending order.
func SortDocuments(docs []schema.Document, configs []SortConfiguration) {
	if len(configs) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, cfg := range configs {
			a, aOK := LookupPath(docs[i], cfg.Field)
			b, bOK := LookupPath(docs[j], cfg.Field)
			if !aOK && !bOK {
				continue
			}
			var cmp int
			switch {
			case !aOK:
				cmp = -1
			case !bOK:
				cmp = 1
			default:
				var comparable bool
				cmp, comparable = compareValues(a, b)
				if !comparable {
					continue
				}
			}
			if cmp == 0 {
				continue
			}
			if cfg.Direction == SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// Paginate applies an offset/limit window to an already-sorted slice.
func Paginate(docs []schema.Document, page *Pagination) []schema.Document {
	if page == nil {
		return docs
	}
	offset := page.Offset
	if offset >= len(docs) {
		return nil
	}
	docs = docs[offset:]
	if page.Limit > 0 && page.Limit < len(docs) {
		docs = docs[:page.Limit]
	}
	return docs
}

// looseEqual compares values across the numeric types JSON decoding produces,
// with dedicated handling for timestamps.
func looseEqual(a, b any) bool {
	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			return at.Equal(bt)
		}
	}
	if af, ok := ToFloat64(a); ok {
		if bf, ok := ToFloat64(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values, returning -1, 0 or 1 and whether the pair
// was comparable at all.
func compareValues(a, b any) (int, bool) {
	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			return at.Compare(bt), true
		}
	}
	if af, ok := ToFloat64(a); ok {
		if bf, ok := ToFloat64(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), true
		}
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		return t, err == nil
	}
	return time.Time{}, false
}

func stringPair(value, arg any) (string, string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", "", false
	}
	return s, fmt.Sprintf("%v", arg), true
}

func valueList(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// ToFloat64 converts the numeric types a JSON decoder or driver may produce
// into a float64 for comparison.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
