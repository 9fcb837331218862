// Package serialize applies scope-based redaction to documents on the read
// path. Nothing here ever touches what is persisted.
package serialize

import (
	"strings"

	"github.com/wira-labs/go-muundo/core/schema"
)

// PrivatePrefix marks fields that never leave the store boundary regardless
// of the caller's scopes.
const PrivatePrefix = "_"

// ScopeSet holds the access scopes of the caller performing a read.
type ScopeSet map[string]struct{}

// NewScopeSet builds a ScopeSet from scope names.
func NewScopeSet(scopes ...string) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return set
}

// Contains reports whether the set holds the given scope.
func (s ScopeSet) Contains(scope string) bool {
	_, ok := s[scope]
	return ok
}

// allows reports whether a field restricted to readScopes is visible to this
// caller. A nil readScopes slice means the field is readable by everyone.
func (s ScopeSet) allows(readScopes []string) bool {
	if readScopes == nil {
		return true
	}
	for _, scope := range readScopes {
		if s.Contains(scope) {
			return true
		}
	}
	return false
}

// Redact returns a copy of doc with private-prefixed fields and fields the
// caller's scopes do not grant removed, recursively through nested objects
// and array elements. Reserved bookkeeping fields and keys the schema does
// not describe pass through untouched.
func Redact(doc schema.Document, cs *schema.CompiledSchema, scopes ScopeSet) schema.Document {
	if doc == nil {
		return nil
	}
	out := redactMap(map[string]any(doc), cs.Fields, scopes)
	for name, accessor := range cs.Accessors {
		value, ok := out[name]
		if !ok {
			continue
		}
		if !scopes.allows(accessor.ReadScopes) {
			delete(out, name)
			continue
		}
		out[name] = value
	}
	return out
}

func redactMap(data map[string]any, fields map[string]*schema.CompiledField, scopes ScopeSet) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		if strings.HasPrefix(key, PrivatePrefix) {
			continue
		}
		if schema.IsReserved(key) {
			out[key] = value
			continue
		}
		field, described := fields[key]
		if !described {
			out[key] = value
			continue
		}
		if !scopes.allows(field.ReadScopes) {
			continue
		}
		out[key] = redactValue(value, field, scopes)
	}
	return out
}

func redactValue(value any, field *schema.CompiledField, scopes ScopeSet) any {
	switch field.Type {
	case schema.FieldTypeObject:
		if nested, ok := asMap(value); ok {
			return redactMap(nested, field.Fields, scopes)
		}
	case schema.FieldTypeArray:
		if field.Items == nil {
			return value
		}
		items, ok := value.([]any)
		if !ok {
			return value
		}
		if !scopes.allows(field.Items.ReadScopes) {
			return []any{}
		}
		redacted := make([]any, len(items))
		for i, item := range items {
			redacted[i] = redactValue(item, field.Items, scopes)
		}
		return redacted
	}
	return value
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case schema.Document:
		return v, true
	}
	return nil, false
}
