// Package validation derives request-validation schemas from a compiled model
// schema. The same attribute tree yields three distinct validators: create
// enforces required fields, update relaxes them, and search additionally
// accepts the orthogonal search-only fields and unwinds array-typed fields so
// a single scalar is also accepted.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/wira-labs/go-muundo/core/schema"
)

// Mode selects the stripping and relaxation rules applied by a Schema.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
	ModeSearch Mode = "search"
)

// Issue codes reported by Validate.
const (
	CodeRequiredMissing = "REQUIRED_FIELD_MISSING"
	CodeRequiredEmpty   = "REQUIRED_FIELD_EMPTY"
	CodeTypeMismatch    = "TYPE_MISMATCH"
	CodeConstraint      = "CONSTRAINT_VIOLATION"
	CodeUnexpectedField = "UNEXPECTED_FIELD"
	CodeInvalidSearch   = "INVALID_SEARCH_FIELD"
)

// searchFields are the search-only inputs merged into a ModeSearch schema.
var searchFields = map[string]struct{}{
	"ids":     {},
	"keyword": {},
	"startAt": {},
	"endAt":   {},
	"sort":    {},
	"order":   {},
	"skip":    {},
	"limit":   {},
}

// SearchOptions tunes a ModeSearch schema.
type SearchOptions struct {
	// MaxLimit caps the accepted limit value. Zero means no cap.
	MaxLimit int
}

// Schema is a compiled request validator for one model in one mode. It is
// immutable and safe for concurrent use.
type Schema struct {
	model     string
	mode      Mode
	fields    map[string]*schema.CompiledField
	accessors map[string]struct{}
	opts      SearchOptions
}

// NewSchema derives a validator from a compiled model schema. extra composes
// additional attribute rules into the derived field set; it is compiled with
// the same attribute compiler and fails with the same definition errors.
func NewSchema(cs *schema.CompiledSchema, mode Mode, extra map[string]*schema.AttributeNode) (*Schema, error) {
	s := &Schema{
		model:     cs.Name,
		mode:      mode,
		fields:    make(map[string]*schema.CompiledField, len(cs.Fields)),
		accessors: make(map[string]struct{}, len(cs.Accessors)),
	}
	for name, field := range cs.Fields {
		s.fields[name] = field
	}
	for name := range cs.Accessors {
		s.accessors[name] = struct{}{}
	}

	if len(extra) > 0 {
		compiled, err := schema.Compile(cs.Name, extra)
		if err != nil {
			return nil, err
		}
		for name, field := range compiled.Fields {
			s.fields[name] = field
		}
		for name := range compiled.Accessors {
			s.accessors[name] = struct{}{}
		}
	}

	return s, nil
}

// NewSearchSchema derives a ModeSearch validator with options.
func NewSearchSchema(cs *schema.CompiledSchema, opts SearchOptions, extra map[string]*schema.AttributeNode) (*Schema, error) {
	s, err := NewSchema(cs, ModeSearch, extra)
	if err != nil {
		return nil, err
	}
	s.opts = opts
	return s, nil
}

// Mode returns the schema's validation mode.
func (s *Schema) Mode() Mode { return s.mode }

// Validate checks data against the schema. It returns every issue found;
// nothing is partially applied. Reserved fields and derived accessors are
// stripped before validation in every mode.
func (s *Schema) Validate(data map[string]any) (bool, []schema.Issue) {
	run := &validationRun{schema: s}
	doc := schema.Document(data)

	for name, field := range s.fields {
		value, exists := data[name]
		if !exists {
			if field.Required && s.mode != ModeSearch {
				run.addIssue(CodeRequiredMissing, fmt.Sprintf("required field %q is missing", name), name)
			}
			continue
		}
		run.validateValue(value, field, name, doc)
	}

	for key, value := range data {
		if schema.IsReserved(key) {
			continue // system-managed, stripped
		}
		if _, isAccessor := s.accessors[key]; isAccessor {
			continue // read-only, stripped
		}
		if _, declared := s.fields[key]; declared {
			continue
		}
		if s.mode == ModeSearch {
			if _, isSearch := searchFields[key]; isSearch {
				run.validateSearchField(key, value)
				continue
			}
		}
		run.addIssue(CodeUnexpectedField, fmt.Sprintf("unexpected field %q", key), key)
	}

	issues := run.issues
	if s.mode == ModeUpdate {
		// Required is relaxed to optional for every field in update mode.
		filtered := make([]schema.Issue, 0, len(issues))
		for _, issue := range issues {
			if issue.Code != CodeRequiredMissing {
				filtered = append(filtered, issue)
			}
		}
		issues = filtered
	}

	return len(issues) == 0, issues
}

// Check runs Validate and wraps any issues in a *Error.
func (s *Schema) Check(data map[string]any) error {
	if valid, issues := s.Validate(data); !valid {
		return &Error{Model: s.model, Mode: s.mode, Issues: issues}
	}
	return nil
}

// Error is a structured validation failure listing every offending field path
// and the rule violated. It is returned to the immediate caller and never
// retried.
type Error struct {
	Model  string
	Mode   Mode
	Issues []schema.Issue
}

func (e *Error) Error() string {
	paths := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		paths = append(paths, issue.Path)
	}
	return fmt.Sprintf("model %q: %s validation failed: %d issue(s) at [%s]",
		e.Model, e.Mode, len(e.Issues), strings.Join(paths, ", "))
}

type validationRun struct {
	schema *Schema
	issues []schema.Issue
}

func (r *validationRun) addIssue(code, message, path string) {
	r.issues = append(r.issues, schema.Issue{Code: code, Message: message, Path: path, Severity: "error"})
}

func (r *validationRun) validateValue(value any, field *schema.CompiledField, path string, doc schema.Document) {
	if value == nil {
		if field.Required && r.schema.mode == ModeCreate {
			r.addIssue(CodeRequiredMissing, fmt.Sprintf("required field %q is null", path), path)
		}
		return
	}

	switch field.Type {
	case schema.FieldTypeString, schema.FieldTypeText, schema.FieldTypeReference:
		s, ok := value.(string)
		if !ok {
			r.addIssue(CodeTypeMismatch, fmt.Sprintf("expected string, got %T", value), path)
			return
		}
		if s == "" && field.Required && r.schema.mode != ModeSearch {
			r.addIssue(CodeRequiredEmpty, fmt.Sprintf("required field %q is empty", path), path)
			return
		}

	case schema.FieldTypeNumber:
		if !isNumeric(value) {
			r.addIssue(CodeTypeMismatch, fmt.Sprintf("expected number, got %T", value), path)
			return
		}

	case schema.FieldTypeInteger:
		if !isIntegral(value) {
			r.addIssue(CodeTypeMismatch, fmt.Sprintf("expected integer, got %T", value), path)
			return
		}

	case schema.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			r.addIssue(CodeTypeMismatch, fmt.Sprintf("expected boolean, got %T", value), path)
			return
		}

	case schema.FieldTypeDate:
		if !isDate(value) {
			r.addIssue(CodeTypeMismatch, fmt.Sprintf("expected timestamp, got %v", value), path)
			return
		}

	case schema.FieldTypeArray:
		items, ok := asSlice(value)
		if !ok {
			// Search mode unwinds array fields: a single scalar is accepted
			// and validated as one element.
			if r.schema.mode == ModeSearch {
				r.validateValue(value, field.Items, path, doc)
				return
			}
			r.addIssue(CodeTypeMismatch, fmt.Sprintf("expected array, got %T", value), path)
			return
		}
		for i, item := range items {
			r.validateValue(item, field.Items, fmt.Sprintf("%s.%d", path, i), doc)
		}

	case schema.FieldTypeObject:
		nested, ok := value.(map[string]any)
		if !ok {
			r.addIssue(CodeTypeMismatch, fmt.Sprintf("expected object, got %T", value), path)
			return
		}
		r.validateObject(nested, field.Fields, path)
	}

	if field.Check != nil && !field.Check.Check(value, doc) {
		r.addIssue(CodeConstraint, fmt.Sprintf("rule %q failed", field.Check.Name), path)
	}
}

func (r *validationRun) validateObject(data map[string]any, fields map[string]*schema.CompiledField, path string) {
	doc := schema.Document(data)
	for name, field := range fields {
		childPath := path + "." + name
		value, exists := data[name]
		if !exists {
			if field.Required && r.schema.mode != ModeSearch {
				r.addIssue(CodeRequiredMissing, fmt.Sprintf("required field %q is missing", childPath), childPath)
			}
			continue
		}
		r.validateValue(value, field, childPath, doc)
	}
	for key := range data {
		if _, declared := fields[key]; !declared {
			r.addIssue(CodeUnexpectedField, fmt.Sprintf("unexpected field %q", key), path+"."+key)
		}
	}
}

func (r *validationRun) validateSearchField(name string, value any) {
	switch name {
	case "ids":
		items, ok := asSlice(value)
		if !ok {
			if _, isStr := value.(string); isStr {
				return // a single id is accepted
			}
			r.addIssue(CodeInvalidSearch, "ids must be a list of identifiers", name)
			return
		}
		for i, item := range items {
			if _, isStr := item.(string); !isStr {
				r.addIssue(CodeInvalidSearch, fmt.Sprintf("ids.%d must be an identifier", i), name)
			}
		}
	case "keyword":
		if _, ok := value.(string); !ok {
			r.addIssue(CodeInvalidSearch, "keyword must be a string", name)
		}
	case "startAt", "endAt":
		if !isDate(value) {
			r.addIssue(CodeInvalidSearch, name+" must be a timestamp", name)
		}
	case "sort":
		s, ok := value.(string)
		if !ok || s == "" {
			r.addIssue(CodeInvalidSearch, "sort must be a field name", name)
		}
	case "order":
		s, _ := value.(string)
		if s != "asc" && s != "desc" {
			r.addIssue(CodeInvalidSearch, `order must be "asc" or "desc"`, name)
		}
	case "skip", "limit":
		if !isIntegral(value) {
			r.addIssue(CodeInvalidSearch, name+" must be an integer", name)
			return
		}
		n, _ := toInt(value)
		if n < 0 {
			r.addIssue(CodeInvalidSearch, name+" must not be negative", name)
		}
		if name == "limit" && r.schema.opts.MaxLimit > 0 && n > int64(r.schema.opts.MaxLimit) {
			r.addIssue(CodeInvalidSearch, fmt.Sprintf("limit must not exceed %d", r.schema.opts.MaxLimit), name)
		}
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func isIntegral(v any) bool {
	switch val := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return val == float64(int64(val))
	case float32:
		return val == float32(int64(val))
	}
	return false
}

func toInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		return int64(val), true
	}
	return 0, false
}

func isDate(v any) bool {
	switch val := v.(type) {
	case time.Time:
		return true
	case string:
		_, err := time.Parse(time.RFC3339, val)
		return err == nil
	}
	return false
}

func asSlice(v any) ([]any, bool) {
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
