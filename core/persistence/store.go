// Package persistence ties compiled schemas to a document store: model
// registration, validated writes, scope-aware reads and the soft-delete
// lifecycle every model shares.
package persistence

import (
	"context"
	"errors"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
)

// ErrNotFound is returned by single-document lookups with no match.
var ErrNotFound = errors.New("document not found")

// DocumentStore is the driver contract a backend must satisfy. Implementations
// receive fully built queries; soft-delete filtering, validation and redaction
// all happen above this interface.
type DocumentStore interface {
	// EnsureCollection prepares backing storage for a model. It is
	// idempotent and called once per model at registration time.
	EnsureCollection(ctx context.Context, cs *schema.CompiledSchema) error

	// Insert persists a new document and returns it as stored.
	Insert(ctx context.Context, collection string, doc schema.Document) (schema.Document, error)

	// Select returns the documents matching the query, sorted and paginated.
	Select(ctx context.Context, collection string, q *query.Query) ([]schema.Document, error)

	// Count returns the number of documents matching the query's filter.
	Count(ctx context.Context, collection string, filter *query.Filter) (int64, error)

	// Update applies the field updates to every document matching the
	// filter and returns the number of documents changed. A nil value in
	// updates unsets the field.
	Update(ctx context.Context, collection string, filter *query.Filter, updates map[string]any) (int64, error)

	// Remove physically deletes every document matching the filter and
	// returns the number removed.
	Remove(ctx context.Context, collection string, filter *query.Filter) (int64, error)
}
