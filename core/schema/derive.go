package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The attribute language allows two kinds of expressions: validate predicates
// ("min(0)", "requires(price)") and derive accessors ("concat(first, last)").
// Both are matched against a fixed registry of named operations at compile
// time; an expression is never evaluated as code. Arguments are plain tokens,
// split on commas, and are bound once when the enclosing schema is compiled.

var callPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_]*)\((.*)\)\s*$`)

// parseCall splits an expression of the form "name(arg1, arg2)" into its
// operation name and argument tokens.
func parseCall(expr string) (name string, args []string, ok bool) {
	m := callPattern.FindStringSubmatch(expr)
	if m == nil {
		return "", nil, false
	}
	name = m[1]
	raw := strings.TrimSpace(m[2])
	if raw == "" {
		return name, nil, true
	}
	for _, part := range strings.Split(raw, ",") {
		args = append(args, strings.TrimSpace(part))
	}
	return name, args, true
}

// PredicateFunc checks a field value. doc is the enclosing document, so a
// predicate can inspect sibling values at validation time.
type PredicateFunc func(value any, doc Document) bool

// Predicate is a compiled validate expression bound to its arguments.
type Predicate struct {
	Name  string
	check PredicateFunc
}

// Check applies the predicate to a value within its enclosing document.
func (p *Predicate) Check(value any, doc Document) bool {
	return p.check(value, doc)
}

// AccessorFunc computes a derived read-only value from a document.
type AccessorFunc func(doc Document) any

// Accessor is a compiled derive expression bound to its arguments.
type Accessor struct {
	Name string
	get  AccessorFunc
}

// Value computes the accessor's value for a document.
func (a *Accessor) Value(doc Document) any {
	return a.get(doc)
}

type predicateCompiler func(args []string) (PredicateFunc, error)
type accessorCompiler func(args []string) (AccessorFunc, error)

var predicateOps = map[string]predicateCompiler{
	"min":       compileMin,
	"max":       compileMax,
	"minLength": compileMinLength,
	"maxLength": compileMaxLength,
	"oneOf":     compileOneOf,
	"matches":   compileMatches,
	"requires":  compileRequires,
}

var accessorOps = map[string]accessorCompiler{
	"concat":   compileConcat,
	"upper":    compileUpper,
	"lower":    compileLower,
	"trim":     compileTrim,
	"fallback": compileFallback,
}

// CompilePredicate resolves a validate expression against the operation
// registry. The returned error carries only the operation detail; callers
// wrap it with the model and field path.
func CompilePredicate(expr string) (*Predicate, error) {
	name, args, ok := parseCall(expr)
	if !ok {
		return nil, fmt.Errorf("malformed expression %q", expr)
	}
	compile, exists := predicateOps[name]
	if !exists {
		return nil, fmt.Errorf("unknown predicate operation %q", name)
	}
	check, err := compile(args)
	if err != nil {
		return nil, fmt.Errorf("predicate %q: %w", name, err)
	}
	return &Predicate{Name: name, check: check}, nil
}

// CompileAccessor resolves a derive expression against the operation registry.
func CompileAccessor(expr string) (*Accessor, error) {
	name, args, ok := parseCall(expr)
	if !ok {
		return nil, fmt.Errorf("malformed expression %q", expr)
	}
	compile, exists := accessorOps[name]
	if !exists {
		return nil, fmt.Errorf("unknown accessor operation %q", name)
	}
	get, err := compile(args)
	if err != nil {
		return nil, fmt.Errorf("accessor %q: %w", name, err)
	}
	return &Accessor{Name: name, get: get}, nil
}

// IsKnownOperation reports whether name is registered as either a predicate
// or an accessor operation.
func IsKnownOperation(name string) bool {
	if _, ok := predicateOps[name]; ok {
		return true
	}
	_, ok := accessorOps[name]
	return ok
}

func singleNumberArg(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one numeric argument, got %d", len(args))
	}
	n, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("argument %q is not a number", args[0])
	}
	return n, nil
}

func compileMin(args []string) (PredicateFunc, error) {
	bound, err := singleNumberArg(args)
	if err != nil {
		return nil, err
	}
	return func(value any, _ Document) bool {
		n, ok := toFloat64(value)
		return ok && n >= bound
	}, nil
}

func compileMax(args []string) (PredicateFunc, error) {
	bound, err := singleNumberArg(args)
	if err != nil {
		return nil, err
	}
	return func(value any, _ Document) bool {
		n, ok := toFloat64(value)
		return ok && n <= bound
	}, nil
}

func compileMinLength(args []string) (PredicateFunc, error) {
	bound, err := singleNumberArg(args)
	if err != nil {
		return nil, err
	}
	return func(value any, _ Document) bool {
		s, ok := value.(string)
		return ok && len([]rune(s)) >= int(bound)
	}, nil
}

func compileMaxLength(args []string) (PredicateFunc, error) {
	bound, err := singleNumberArg(args)
	if err != nil {
		return nil, err
	}
	return func(value any, _ Document) bool {
		s, ok := value.(string)
		return ok && len([]rune(s)) <= int(bound)
	}, nil
}

func compileOneOf(args []string) (PredicateFunc, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected at least one argument")
	}
	allowed := make(map[string]struct{}, len(args))
	for _, a := range args {
		allowed[a] = struct{}{}
	}
	return func(value any, _ Document) bool {
		_, ok := allowed[fmt.Sprintf("%v", value)]
		return ok
	}, nil
}

func compileMatches(args []string) (PredicateFunc, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one pattern argument, got %d", len(args))
	}
	re, err := regexp.Compile(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", args[0], err)
	}
	return func(value any, _ Document) bool {
		s, ok := value.(string)
		return ok && re.MatchString(s)
	}, nil
}

// requires(field) passes only when the named sibling field is present and
// non-empty in the same document.
func compileRequires(args []string) (PredicateFunc, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one field argument, got %d", len(args))
	}
	sibling := args[0]
	return func(_ any, doc Document) bool {
		v, ok := doc[sibling]
		if !ok || v == nil {
			return false
		}
		if s, isStr := v.(string); isStr {
			return s != ""
		}
		return true
	}, nil
}

func compileConcat(args []string) (AccessorFunc, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected at least one field argument")
	}
	return func(doc Document) any {
		parts := make([]string, 0, len(args))
		for _, field := range args {
			if v, ok := doc[field]; ok && v != nil {
				parts = append(parts, fmt.Sprintf("%v", v))
			}
		}
		return strings.Join(parts, " ")
	}, nil
}

func stringFieldAccessor(args []string, transform func(string) string) (AccessorFunc, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one field argument, got %d", len(args))
	}
	field := args[0]
	return func(doc Document) any {
		if s, ok := doc[field].(string); ok {
			return transform(s)
		}
		return nil
	}, nil
}

func compileUpper(args []string) (AccessorFunc, error) {
	return stringFieldAccessor(args, strings.ToUpper)
}

func compileLower(args []string) (AccessorFunc, error) {
	return stringFieldAccessor(args, strings.ToLower)
}

func compileTrim(args []string) (AccessorFunc, error) {
	return stringFieldAccessor(args, strings.TrimSpace)
}

// fallback(a, b, ...) returns the first named field that is present and
// non-empty.
func compileFallback(args []string) (AccessorFunc, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("expected at least two field arguments, got %d", len(args))
	}
	return func(doc Document) any {
		for _, field := range args {
			v, ok := doc[field]
			if !ok || v == nil {
				continue
			}
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return v
		}
		return nil
	}, nil
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
