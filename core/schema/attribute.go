// Package schema defines the attribute language used to describe a data model
// and the compiler that turns an attribute tree into a CompiledSchema. An
// attribute tree is written once per model, in JSON or YAML, and is
// immutable after registration.
package schema

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the variants of an AttributeNode.
type Kind string

const (
	KindPrimitive Kind = "primitive" // A leaf value of a primitive type.
	KindReference Kind = "reference" // An identifier pointing at another model.
	KindArray     Kind = "array"     // An ordered list of child nodes.
	KindObject    Kind = "object"    // A mapping of field name to child node.
)

// PrimitiveType names the storage primitives an attribute leaf may declare.
type PrimitiveType string

const (
	PrimitiveString  PrimitiveType = "string"
	PrimitiveText    PrimitiveType = "text"
	PrimitiveNumber  PrimitiveType = "number"
	PrimitiveInteger PrimitiveType = "integer"
	PrimitiveBoolean PrimitiveType = "boolean"
	PrimitiveDate    PrimitiveType = "date"
)

var primitiveTypes = map[PrimitiveType]struct{}{
	PrimitiveString:  {},
	PrimitiveText:    {},
	PrimitiveNumber:  {},
	PrimitiveInteger: {},
	PrimitiveBoolean: {},
	PrimitiveDate:    {},
}

// Valid reports whether the primitive name resolves to a known type.
func (p PrimitiveType) Valid() bool {
	_, ok := primitiveTypes[p]
	return ok
}

// StringLike reports whether values of this type participate in keyword search.
func (p PrimitiveType) StringLike() bool {
	return p == PrimitiveString || p == PrimitiveText
}

// ScopeAll is the literal readScopes value meaning "visible to every caller".
const ScopeAll = "all"

// AttributeNode is one node of a model's attribute tree. It is a
// tagged variant: exactly one of the composite members (Items, Fields) is set
// for array and object kinds, while primitive and reference kinds are leaves.
// Nodes are constructed once, at model registration, and never mutated.
type AttributeNode struct {
	Kind     Kind
	Type     PrimitiveType // declared type name, KindPrimitive only
	Ref      string        // target model name, KindReference only
	Required bool
	Default  any
	// ReadScopes restricts field visibility on serialization. nil means the
	// field is readable by every caller ("all").
	ReadScopes []string
	// Validate is a predicate expression against the fixed operation
	// registry, e.g. "min(0)" or "requires(price)".
	Validate string
	// Derive marks the attribute as a read-only accessor computed from
	// sibling values, e.g. "concat(firstName, lastName)". Derived attributes
	// have no storage type and are never writable.
	Derive string
	Items  *AttributeNode            // element node, KindArray only
	Fields map[string]*AttributeNode // child nodes, KindObject only
}

// Primitive returns a leaf node of the given primitive type.
func Primitive(t PrimitiveType) *AttributeNode {
	return &AttributeNode{Kind: KindPrimitive, Type: t}
}

// Reference returns a node pointing at another model by name.
func Reference(target string) *AttributeNode {
	return &AttributeNode{Kind: KindReference, Ref: target}
}

// ArrayOf returns an array node with the given element node.
func ArrayOf(elem *AttributeNode) *AttributeNode {
	return &AttributeNode{Kind: KindArray, Items: elem}
}

// ObjectOf returns an object node with the given child nodes.
func ObjectOf(fields map[string]*AttributeNode) *AttributeNode {
	return &AttributeNode{Kind: KindObject, Fields: fields}
}

// IsAccessor reports whether the node describes a derived read-only accessor.
func (n *AttributeNode) IsAccessor() bool {
	return n.Derive != ""
}

// attributeJSON is the wire form of an AttributeNode. readScopes accepts
// either the literal "all" or an explicit list of scope names.
type attributeJSON struct {
	Type       string                    `json:"type,omitempty"`
	Ref        string                    `json:"ref,omitempty"`
	Required   bool                      `json:"required,omitempty"`
	Default    any                       `json:"default,omitempty"`
	ReadScopes json.RawMessage           `json:"readScopes,omitempty"`
	Validate   string                    `json:"validate,omitempty"`
	Derive     string                    `json:"derive,omitempty"`
	Items      *AttributeNode            `json:"items,omitempty"`
	Fields     map[string]*AttributeNode `json:"fields,omitempty"`
}

// UnmarshalJSON accepts either a bare primitive name ("string") as shorthand
// for a plain leaf, or the full object form. The node's Kind is derived from
// the declared type: "reference", "array" and "object" select the composite
// variants, anything else is treated as a primitive name and resolved at
// compile time.
func (n *AttributeNode) UnmarshalJSON(data []byte) error {
	var shorthand string
	if err := json.Unmarshal(data, &shorthand); err == nil {
		*n = AttributeNode{Kind: KindPrimitive, Type: PrimitiveType(shorthand)}
		return nil
	}

	var temp attributeJSON
	if err := json.Unmarshal(data, &temp); err != nil {
		return fmt.Errorf("attribute node must be a type name or an object: %w", err)
	}

	*n = AttributeNode{
		Required: temp.Required,
		Default:  temp.Default,
		Validate: temp.Validate,
		Derive:   temp.Derive,
		Ref:      temp.Ref,
	}

	switch temp.Type {
	case "reference":
		n.Kind = KindReference
	case "array":
		n.Kind = KindArray
		n.Items = temp.Items
	case "object":
		n.Kind = KindObject
		n.Fields = temp.Fields
	default:
		n.Kind = KindPrimitive
		n.Type = PrimitiveType(temp.Type)
	}

	if temp.ReadScopes != nil {
		var literal string
		if err := json.Unmarshal(temp.ReadScopes, &literal); err == nil {
			if literal != ScopeAll {
				return fmt.Errorf("readScopes must be %q or a list of scope names, got %q", ScopeAll, literal)
			}
			// "all" is the default; leave ReadScopes nil.
		} else {
			var scopes []string
			if err := json.Unmarshal(temp.ReadScopes, &scopes); err != nil {
				return fmt.Errorf("readScopes must be %q or a list of scope names", ScopeAll)
			}
			n.ReadScopes = scopes
		}
	}

	return nil
}

// MarshalJSON emits the full object form. Shorthand is an input convenience
// only and is not round-tripped.
func (n AttributeNode) MarshalJSON() ([]byte, error) {
	temp := attributeJSON{
		Ref:      n.Ref,
		Required: n.Required,
		Default:  n.Default,
		Validate: n.Validate,
		Derive:   n.Derive,
		Items:    n.Items,
		Fields:   n.Fields,
	}

	switch n.Kind {
	case KindReference:
		temp.Type = "reference"
	case KindArray:
		temp.Type = "array"
	case KindObject:
		temp.Type = "object"
	default:
		temp.Type = string(n.Type)
	}

	if n.ReadScopes != nil {
		scopes, err := json.Marshal(n.ReadScopes)
		if err != nil {
			return nil, err
		}
		temp.ReadScopes = scopes
	}

	return json.Marshal(temp)
}
