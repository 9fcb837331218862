package schema

import (
	"sort"
)

// FieldType is the storage-facing type of a compiled field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeText      FieldType = "text"
	FieldTypeNumber    FieldType = "number"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeDate      FieldType = "date"
	FieldTypeReference FieldType = "reference"
	FieldTypeArray     FieldType = "array"
	FieldTypeObject    FieldType = "object"
)

// StringLike reports whether the field type participates in keyword search.
func (t FieldType) StringLike() bool {
	return t == FieldTypeString || t == FieldTypeText
}

// CompiledField is the storage schema for one attribute. Composite fields
// carry their sub-schema in Items (arrays) or Fields (objects).
type CompiledField struct {
	Path       string // dot-joined ancestor chain
	Type       FieldType
	Ref        string // target model name, references only
	Required   bool
	Default    any
	ReadScopes []string // nil means readable by all
	Check      *Predicate
	Items      *CompiledField
	Fields     map[string]*CompiledField
}

// CompiledAccessor is a derived read-only field: it has no storage, is
// computed on the read path and is always stripped from validated input.
type CompiledAccessor struct {
	Name       string
	ReadScopes []string
	Accessor   *Accessor
}

// CompiledSchema is the per-model artifact produced by Compile. It is created
// once at registration and never mutated.
type CompiledSchema struct {
	Name       string
	Fields     map[string]*CompiledField
	Accessors  map[string]*CompiledAccessor
	References map[string]string // field path -> target model name

	stringPaths []string
}

// Compile turns an attribute tree into a CompiledSchema. It is pure:
// identical input trees yield structurally identical schemas. Reference
// targets are recorded but not resolved here; the registry checks them once
// every model has been loaded.
func Compile(name string, attributes map[string]*AttributeNode) (*CompiledSchema, error) {
	cs := &CompiledSchema{
		Name:       name,
		Fields:     make(map[string]*CompiledField, len(attributes)),
		Accessors:  make(map[string]*CompiledAccessor),
		References: make(map[string]string),
	}
	c := &compiler{model: name, out: cs}

	for _, fieldName := range sortedKeys(attributes) {
		node := attributes[fieldName]
		if IsReserved(fieldName) {
			return nil, &InvalidAttributeError{Model: name, Path: fieldName, Reason: "field name is reserved"}
		}
		if node.IsAccessor() {
			accessor, err := c.compileAccessor(fieldName, node)
			if err != nil {
				return nil, err
			}
			cs.Accessors[fieldName] = accessor
			continue
		}
		field, err := c.compileField(fieldName, node)
		if err != nil {
			return nil, err
		}
		cs.Fields[fieldName] = field
	}

	cs.stringPaths = collectStringPaths("", cs.Fields)
	return cs, nil
}

type compiler struct {
	model string
	out   *CompiledSchema
}

func (c *compiler) compileAccessor(path string, node *AttributeNode) (*CompiledAccessor, error) {
	accessor, err := CompileAccessor(node.Derive)
	if err != nil {
		name, _, ok := parseCall(node.Derive)
		if ok && !IsKnownOperation(name) {
			return nil, &UnknownOperationError{Model: c.model, Path: path, Operation: name}
		}
		return nil, &InvalidAttributeError{Model: c.model, Path: path, Reason: err.Error()}
	}
	return &CompiledAccessor{Name: path, ReadScopes: node.ReadScopes, Accessor: accessor}, nil
}

func (c *compiler) compileField(path string, node *AttributeNode) (*CompiledField, error) {
	if node.IsAccessor() {
		return nil, &InvalidAttributeError{Model: c.model, Path: path, Reason: "derived accessors are only supported at the top level"}
	}

	field := &CompiledField{
		Path:       path,
		Required:   node.Required,
		Default:    node.Default,
		ReadScopes: node.ReadScopes,
	}

	switch node.Kind {
	case KindPrimitive:
		if !node.Type.Valid() {
			return nil, &TypeResolutionError{Model: c.model, Path: path, Type: string(node.Type)}
		}
		field.Type = FieldType(node.Type)

	case KindReference:
		if node.Ref == "" {
			return nil, &MissingReferenceError{Model: c.model, Path: path}
		}
		field.Type = FieldTypeReference
		field.Ref = node.Ref
		c.out.References[path] = node.Ref

	case KindArray:
		if node.Items == nil {
			return nil, &InvalidAttributeError{Model: c.model, Path: path, Reason: "array field is missing an items node"}
		}
		elem, err := c.compileField(path+".[]", node.Items)
		if err != nil {
			return nil, err
		}
		field.Type = FieldTypeArray
		field.Items = elem

	case KindObject:
		if len(node.Fields) == 0 {
			return nil, &InvalidAttributeError{Model: c.model, Path: path, Reason: "object field has no child fields"}
		}
		field.Type = FieldTypeObject
		field.Fields = make(map[string]*CompiledField, len(node.Fields))
		for _, childName := range sortedKeys(node.Fields) {
			child, err := c.compileField(path+"."+childName, node.Fields[childName])
			if err != nil {
				return nil, err
			}
			field.Fields[childName] = child
		}

	default:
		return nil, &InvalidAttributeError{Model: c.model, Path: path, Reason: "attribute node has no kind"}
	}

	if node.Validate != "" {
		check, err := CompilePredicate(node.Validate)
		if err != nil {
			name, _, ok := parseCall(node.Validate)
			if ok && !IsKnownOperation(name) {
				return nil, &UnknownOperationError{Model: c.model, Path: path, Operation: name}
			}
			return nil, &InvalidAttributeError{Model: c.model, Path: path, Reason: err.Error()}
		}
		field.Check = check
	}

	return field, nil
}

// FieldAt resolves a dot-separated path through nested object sub-schemas.
// It returns nil when the path does not name a declared field.
func (cs *CompiledSchema) FieldAt(path string) *CompiledField {
	return fieldAt(cs.Fields, path)
}

func fieldAt(fields map[string]*CompiledField, path string) *CompiledField {
	head, rest := splitPath(path)
	field, ok := fields[head]
	if !ok {
		return nil
	}
	if rest == "" {
		return field
	}
	if field.Type == FieldTypeObject {
		return fieldAt(field.Fields, rest)
	}
	return nil
}

// StringFieldPaths returns the sorted dot paths of every string-like field,
// descending through nested objects. Array elements are excluded: keyword
// search addresses fields by dot path, which cannot name an array element.
func (cs *CompiledSchema) StringFieldPaths() []string {
	out := make([]string, len(cs.stringPaths))
	copy(out, cs.stringPaths)
	return out
}

// AccessorNames returns the sorted names of the schema's derived accessors.
func (cs *CompiledSchema) AccessorNames() []string {
	return sortedKeys(cs.Accessors)
}

// HasField reports whether name is a declared top-level field.
func (cs *CompiledSchema) HasField(name string) bool {
	_, ok := cs.Fields[name]
	return ok
}

func collectStringPaths(prefix string, fields map[string]*CompiledField) []string {
	var paths []string
	for _, name := range sortedKeys(fields) {
		field := fields[name]
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		switch {
		case field.Type.StringLike():
			paths = append(paths, path)
		case field.Type == FieldTypeObject:
			paths = append(paths, collectStringPaths(path, field.Fields)...)
		}
	}
	return paths
}

func splitPath(path string) (head, rest string) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i], path[i+1:]
		}
	}
	return path, ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
