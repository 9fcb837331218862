package schema

import (
	"errors"
	"fmt"
)

// ErrDefinition is the sentinel all definition-time failures unwrap to.
// Definition errors are fatal at model-registration time and abort startup.
var ErrDefinition = errors.New("invalid model definition")

// TypeResolutionError reports an attribute whose declared type name does not
// resolve to a known primitive.
type TypeResolutionError struct {
	Model string
	Path  string // dot-joined ancestor chain
	Type  string
}

func (e *TypeResolutionError) Error() string {
	return fmt.Sprintf("model %q: field %q: unknown type %q", e.Model, e.Path, e.Type)
}

func (e *TypeResolutionError) Unwrap() error { return ErrDefinition }

// MissingReferenceError reports a reference-typed attribute that does not
// carry a ref target.
type MissingReferenceError struct {
	Model string
	Path  string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("model %q: reference field %q is missing a ref target", e.Model, e.Path)
}

func (e *MissingReferenceError) Unwrap() error { return ErrDefinition }

// UnknownModelError reports a reference whose target model is not present in
// the registry once every definition has been loaded.
type UnknownModelError struct {
	Model  string
	Path   string
	Target string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %q: field %q references unknown model %q", e.Model, e.Path, e.Target)
}

func (e *UnknownModelError) Unwrap() error { return ErrDefinition }

// UnknownOperationError reports a validate or derive expression naming an
// operation that is not in the fixed registry.
type UnknownOperationError struct {
	Model     string
	Path      string
	Operation string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("model %q: field %q: unknown operation %q", e.Model, e.Path, e.Operation)
}

func (e *UnknownOperationError) Unwrap() error { return ErrDefinition }

// InvalidAttributeError reports a structurally malformed attribute node, such
// as an array without an element node or a field shadowing a reserved name.
type InvalidAttributeError struct {
	Model  string
	Path   string
	Reason string
}

func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("model %q: field %q: %s", e.Model, e.Path, e.Reason)
}

func (e *InvalidAttributeError) Unwrap() error { return ErrDefinition }

// DuplicateModelError reports a second registration under an already-taken
// model name.
type DuplicateModelError struct {
	Name string
}

func (e *DuplicateModelError) Error() string {
	return fmt.Sprintf("model %q is already registered", e.Name)
}

func (e *DuplicateModelError) Unwrap() error { return ErrDefinition }
