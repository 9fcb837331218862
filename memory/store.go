// Package memory provides an in-process document store. It backs tests, the
// CLI's definition checks and small tools that do not want a database file.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
)

// Store keeps documents in memory, keyed by collection. Documents are cloned
// on the way in and out, so callers never share map instances with the store.
// Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]schema.Document
	matcher     *query.Matcher
	logger      *zap.Logger
}

// NewStore creates an empty in-memory store. A nil logger falls back to a
// no-op logger.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		collections: make(map[string][]schema.Document),
		matcher:     query.NewMatcher(logger),
		logger:      logger,
	}
}

// EnsureCollection creates the collection if it does not exist yet.
func (s *Store) EnsureCollection(_ context.Context, cs *schema.CompiledSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[cs.Name]; !ok {
		s.collections[cs.Name] = nil
	}
	return nil
}

// Insert stores a copy of the document and returns another copy.
func (s *Store) Insert(_ context.Context, collection string, doc schema.Document) (schema.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], doc.Clone())
	return doc.Clone(), nil
}

// Select returns copies of the documents matching the query, sorted and
// paginated.
func (s *Store) Select(_ context.Context, collection string, q *query.Query) ([]schema.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filter *query.Filter
	if q != nil {
		filter = q.Filter
	}
	matched, err := s.matchLocked(collection, filter)
	if err != nil {
		return nil, err
	}

	if q != nil {
		query.SortDocuments(matched, q.Sort)
		matched = query.Paginate(matched, q.Page)
	}

	out := make([]schema.Document, len(matched))
	for i, doc := range matched {
		out[i] = doc.Clone()
	}
	return out, nil
}

// Count returns the number of documents matching the filter.
func (s *Store) Count(_ context.Context, collection string, filter *query.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched, err := s.matchLocked(collection, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Update applies updates to every matching document. A nil value unsets the
// field. A filter evaluation error leaves the collection unchanged.
func (s *Store) Update(_ context.Context, collection string, filter *query.Filter, updates map[string]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched, err := s.matchLocked(collection, filter)
	if err != nil {
		return 0, err
	}
	for _, doc := range matched {
		for name, value := range updates {
			if value == nil {
				delete(doc, name)
				continue
			}
			doc[name] = value
		}
	}
	s.logger.Debug("documents updated",
		zap.String("collection", collection), zap.Int("count", len(matched)))
	return int64(len(matched)), nil
}

// Remove physically deletes every matching document. A filter evaluation
// error leaves the collection unchanged.
func (s *Store) Remove(_ context.Context, collection string, filter *query.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	remove := make([]bool, len(docs))
	var removed int64
	for i, doc := range docs {
		ok, err := s.matcher.Match(doc, filter)
		if err != nil {
			return 0, fmt.Errorf("match in %s: %w", collection, err)
		}
		if ok {
			remove[i] = true
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	kept := make([]schema.Document, 0, len(docs)-int(removed))
	for i, doc := range docs {
		if !remove[i] {
			kept = append(kept, doc)
		}
	}
	s.collections[collection] = kept
	s.logger.Debug("documents removed",
		zap.String("collection", collection), zap.Int64("count", removed))
	return removed, nil
}

func (s *Store) matchLocked(collection string, filter *query.Filter) ([]schema.Document, error) {
	var matched []schema.Document
	for _, doc := range s.collections[collection] {
		ok, err := s.matcher.Match(doc, filter)
		if err != nil {
			return nil, fmt.Errorf("match in %s: %w", collection, err)
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}
