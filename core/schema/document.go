package schema

import "time"

// Reserved system-managed fields. They are present on every document, always
// stripped from validated input and never user-writable.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldDeletedAt = "deletedAt"
)

var reservedFields = map[string]struct{}{
	FieldID:        {},
	FieldCreatedAt: {},
	FieldUpdatedAt: {},
	FieldDeletedAt: {},
}

// IsReserved reports whether name is one of the system-managed fields.
func IsReserved(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// Document is one instance of a model: a mapping of field name to value.
// A persisted document always carries id, createdAt and updatedAt; deletedAt
// is present only while the document is soft-deleted.
type Document map[string]any

// ID returns the document identifier, or the empty string when unset.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Deleted reports whether the document is soft-deleted. Absence of the
// deletedAt field means the document is active.
func (d Document) Deleted() bool {
	_, ok := d[FieldDeletedAt]
	return ok
}

// CreatedAt returns the creation timestamp when present.
func (d Document) CreatedAt() (time.Time, bool) {
	t, ok := d[FieldCreatedAt].(time.Time)
	return t, ok
}

// Clone returns a deep copy of the document. Nested maps and slices are
// copied; scalar values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Document:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Issue represents a single validation or definition problem, addressed by a
// dot-separated field path.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"`
}
