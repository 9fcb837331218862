package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
	"github.com/wira-labs/go-muundo/core/serialize"
)

// Delete soft-deletes the document: deletedAt is stamped with the current
// time and the document disappears from default reads. Returns ErrNotFound
// when no document carries the id.
func (m *Model) Delete(ctx context.Context, id string) error {
	_, err := m.withEvents("delete", DocumentDeleteStart, DocumentDeleteSuccess, DocumentDeleteFailed, id, func() (any, error) {
		filter := query.Cond(schema.FieldID, query.OpEq, id)
		changed, err := m.store.Update(ctx, m.Name(), &filter, map[string]any{
			schema.FieldDeletedAt: time.Now().UTC(),
			schema.FieldUpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("delete from %s: %w", m.Name(), err)
		}
		if changed == 0 {
			return nil, ErrNotFound
		}
		return changed, nil
	})
	return err
}

// Restore clears deletedAt so the document reappears in default reads.
// Restoring an active document is a harmless no-op. Returns ErrNotFound when
// no document carries the id.
func (m *Model) Restore(ctx context.Context, id string) error {
	_, err := m.withEvents("restore", DocumentRestoreStart, DocumentRestoreSuccess, DocumentRestoreFailed, id, func() (any, error) {
		filter := query.Cond(schema.FieldID, query.OpEq, id)
		changed, err := m.store.Update(ctx, m.Name(), &filter, map[string]any{
			schema.FieldDeletedAt: nil,
			schema.FieldUpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("restore in %s: %w", m.Name(), err)
		}
		if changed == 0 {
			return nil, ErrNotFound
		}
		return changed, nil
	})
	return err
}

// Destroy physically removes the document, bypassing soft-delete bookkeeping
// entirely. Irreversible. Returns ErrNotFound when no document carries the id.
func (m *Model) Destroy(ctx context.Context, id string) error {
	_, err := m.withEvents("destroy", DocumentDestroyStart, DocumentDestroySuccess, DocumentDestroyFailed, id, func() (any, error) {
		filter := query.Cond(schema.FieldID, query.OpEq, id)
		removed, err := m.store.Remove(ctx, m.Name(), &filter)
		if err != nil {
			return nil, fmt.Errorf("destroy in %s: %w", m.Name(), err)
		}
		if removed == 0 {
			return nil, ErrNotFound
		}
		return removed, nil
	})
	return err
}

// FindDeleted returns only soft-deleted documents matching the query.
func (m *Model) FindDeleted(ctx context.Context, q *query.Query, scopes serialize.ScopeSet) ([]schema.Document, error) {
	return m.find(ctx, q, scopes, deletedOnly)
}

// FindOneDeleted returns the first soft-deleted document matching the filter.
func (m *Model) FindOneDeleted(ctx context.Context, filter *query.Filter, scopes serialize.ScopeSet) (schema.Document, error) {
	return m.findOne(ctx, filter, scopes, deletedOnly)
}

// FindByIDDeleted returns the soft-deleted document with the given id.
func (m *Model) FindByIDDeleted(ctx context.Context, id string, scopes serialize.ScopeSet) (schema.Document, error) {
	filter := query.Cond(schema.FieldID, query.OpEq, id)
	return m.findOne(ctx, &filter, scopes, deletedOnly)
}

// ExistsDeleted reports whether any soft-deleted document matches the filter.
func (m *Model) ExistsDeleted(ctx context.Context, filter *query.Filter) (bool, error) {
	return m.exists(ctx, filter, deletedOnly)
}

// CountDocumentsDeleted counts the soft-deleted documents matching the filter.
func (m *Model) CountDocumentsDeleted(ctx context.Context, filter *query.Filter) (int64, error) {
	return m.count(ctx, filter, deletedOnly)
}

// FindWithDeleted returns matching documents regardless of deletion state.
func (m *Model) FindWithDeleted(ctx context.Context, q *query.Query, scopes serialize.ScopeSet) ([]schema.Document, error) {
	return m.find(ctx, q, scopes, withDeleted)
}

// FindOneWithDeleted returns the first matching document regardless of
// deletion state.
func (m *Model) FindOneWithDeleted(ctx context.Context, filter *query.Filter, scopes serialize.ScopeSet) (schema.Document, error) {
	return m.findOne(ctx, filter, scopes, withDeleted)
}

// FindByIDWithDeleted returns the document with the given id regardless of
// deletion state.
func (m *Model) FindByIDWithDeleted(ctx context.Context, id string, scopes serialize.ScopeSet) (schema.Document, error) {
	filter := query.Cond(schema.FieldID, query.OpEq, id)
	return m.findOne(ctx, &filter, scopes, withDeleted)
}

// ExistsWithDeleted reports whether any document matches the filter,
// regardless of deletion state.
func (m *Model) ExistsWithDeleted(ctx context.Context, filter *query.Filter) (bool, error) {
	return m.exists(ctx, filter, withDeleted)
}

// CountDocumentsWithDeleted counts matching documents regardless of deletion
// state.
func (m *Model) CountDocumentsWithDeleted(ctx context.Context, filter *query.Filter) (int64, error) {
	return m.count(ctx, filter, withDeleted)
}
