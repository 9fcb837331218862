package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
	"github.com/wira-labs/go-muundo/core/serialize"
	"github.com/wira-labs/go-muundo/core/validation"
)

// deletionMode selects how read operations treat soft-deleted documents.
type deletionMode int

const (
	activeOnly deletionMode = iota
	deletedOnly
	withDeleted
)

// Model binds one compiled schema to a document store. All reads pass through
// the soft-delete filter and the scope serializer; all writes pass through the
// mode-appropriate validator. A Model is immutable after construction and safe
// for concurrent use.
type Model struct {
	cs     *schema.CompiledSchema
	store  DocumentStore
	bus    *events.TypedEventBus[Event]
	logger *zap.Logger
}

// NewModel creates a model over a compiled schema. A nil logger falls back to
// a no-op logger.
func NewModel(cs *schema.CompiledSchema, store DocumentStore, logger *zap.Logger) (*Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := newEventBus()
	if err != nil {
		return nil, fmt.Errorf("create event bus for model %q: %w", cs.Name, err)
	}
	return &Model{cs: cs, store: store, bus: bus, logger: logger.Named(cs.Name)}, nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.cs.Name }

// Schema returns the model's compiled schema.
func (m *Model) Schema() *schema.CompiledSchema { return m.cs }

// CreateValidation returns the create-mode validator, with required fields
// enforced. extra composes additional attribute rules on top of the model's.
func (m *Model) CreateValidation(extra map[string]*schema.AttributeNode) (*validation.Schema, error) {
	return validation.NewSchema(m.cs, validation.ModeCreate, extra)
}

// UpdateValidation returns the update-mode validator, with every field
// optional.
func (m *Model) UpdateValidation(extra map[string]*schema.AttributeNode) (*validation.Schema, error) {
	return validation.NewSchema(m.cs, validation.ModeUpdate, extra)
}

// SearchValidation returns the search-mode validator, accepting the
// search-only fields and scalar values for array fields.
func (m *Model) SearchValidation(opts validation.SearchOptions, extra map[string]*schema.AttributeNode) (*validation.Schema, error) {
	return validation.NewSearchSchema(m.cs, opts, extra)
}

// Create validates fields in create mode, stamps the reserved bookkeeping
// fields and persists the document. The returned document is redacted for the
// caller's scopes.
func (m *Model) Create(ctx context.Context, fields map[string]any, scopes serialize.ScopeSet) (schema.Document, error) {
	result, err := m.withEvents("create", DocumentCreateStart, DocumentCreateSuccess, DocumentCreateFailed, fields, func() (any, error) {
		v, err := m.CreateValidation(nil)
		if err != nil {
			return nil, err
		}
		if err := v.Check(fields); err != nil {
			return nil, err
		}

		doc := schema.Document{}
		m.Assign(doc, fields)
		m.applyDefaults(doc)

		now := time.Now().UTC()
		doc[schema.FieldID] = uuid.NewString()
		doc[schema.FieldCreatedAt] = now
		doc[schema.FieldUpdatedAt] = now

		stored, err := m.store.Insert(ctx, m.Name(), doc)
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", m.Name(), err)
		}
		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	return m.outbound(result.(schema.Document), scopes), nil
}

// Assign copies fields onto a document in bulk. Reserved fields and accessor
// names are ignored. An empty value on a reference field unsets the reference
// instead of storing an invalid one.
func (m *Model) Assign(doc schema.Document, fields map[string]any) {
	for name, value := range fields {
		if schema.IsReserved(name) {
			continue
		}
		if _, isAccessor := m.cs.Accessors[name]; isAccessor {
			continue
		}
		if field, ok := m.cs.Fields[name]; ok && field.Type == schema.FieldTypeReference && isEmptyValue(value) {
			delete(doc, name)
			continue
		}
		doc[name] = value
	}
}

// Save validates the document's fields in update mode, bumps updatedAt and
// persists the changes by id. The stored document is returned, redacted for
// the caller's scopes.
func (m *Model) Save(ctx context.Context, doc schema.Document, scopes serialize.ScopeSet) (schema.Document, error) {
	result, err := m.withEvents("update", DocumentUpdateStart, DocumentUpdateSuccess, DocumentUpdateFailed, doc, func() (any, error) {
		id := doc.ID()
		if id == "" {
			return nil, fmt.Errorf("save %s: document has no id", m.Name())
		}
		v, err := m.UpdateValidation(nil)
		if err != nil {
			return nil, err
		}
		if err := v.Check(doc); err != nil {
			return nil, err
		}

		updates := make(map[string]any, len(doc))
		for name, value := range doc {
			if schema.IsReserved(name) {
				continue
			}
			if _, isAccessor := m.cs.Accessors[name]; isAccessor {
				continue
			}
			updates[name] = value
		}
		updates[schema.FieldUpdatedAt] = time.Now().UTC()

		filter := query.Cond(schema.FieldID, query.OpEq, id)
		changed, err := m.store.Update(ctx, m.Name(), &filter, updates)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", m.Name(), err)
		}
		if changed == 0 {
			return nil, ErrNotFound
		}
		return m.fetchByID(ctx, id, withDeleted)
	})
	if err != nil {
		return nil, err
	}
	return m.outbound(result.(schema.Document), scopes), nil
}

// Find returns the active documents matching the query, redacted for the
// caller's scopes.
func (m *Model) Find(ctx context.Context, q *query.Query, scopes serialize.ScopeSet) ([]schema.Document, error) {
	return m.find(ctx, q, scopes, activeOnly)
}

// FindOne returns the first active document matching the filter, or
// ErrNotFound.
func (m *Model) FindOne(ctx context.Context, filter *query.Filter, scopes serialize.ScopeSet) (schema.Document, error) {
	return m.findOne(ctx, filter, scopes, activeOnly)
}

// FindByID returns the active document with the given id, or ErrNotFound.
func (m *Model) FindByID(ctx context.Context, id string, scopes serialize.ScopeSet) (schema.Document, error) {
	filter := query.Cond(schema.FieldID, query.OpEq, id)
	return m.findOne(ctx, &filter, scopes, activeOnly)
}

// Exists reports whether any active document matches the filter.
func (m *Model) Exists(ctx context.Context, filter *query.Filter) (bool, error) {
	return m.exists(ctx, filter, activeOnly)
}

// CountDocuments counts the active documents matching the filter.
func (m *Model) CountDocuments(ctx context.Context, filter *query.Filter) (int64, error) {
	return m.count(ctx, filter, activeOnly)
}

// Search builds a store query from the request, runs the filtered count and
// the filtered, sorted, paginated fetch concurrently and returns both. A
// failure on either side aborts the whole operation.
func (m *Model) Search(ctx context.Context, req *query.SearchRequest, scopes serialize.ScopeSet) (*query.SearchResult, error) {
	result, err := m.withEvents("search", DocumentSearchStart, DocumentSearchSuccess, DocumentSearchFailed, req, func() (any, error) {
		q, err := query.Build(m.cs, req)
		if err != nil {
			return nil, err
		}
		q.Filter = m.deletionFilter(q.Filter, activeOnly)

		var (
			docs  []schema.Document
			total int64
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			docs, err = m.store.Select(gctx, m.Name(), q)
			return err
		})
		g.Go(func() error {
			var err error
			total, err = m.store.Count(gctx, m.Name(), q.Filter)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("search %s: %w", m.Name(), err)
		}

		data := make([]schema.Document, len(docs))
		for i, doc := range docs {
			data[i] = m.outbound(doc, scopes)
		}
		return &query.SearchResult{
			Data: data,
			Meta: query.Meta{Total: total, Skip: q.Page.Offset, Limit: q.Page.Limit},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*query.SearchResult), nil
}

func (m *Model) find(ctx context.Context, q *query.Query, scopes serialize.ScopeSet, mode deletionMode) ([]schema.Document, error) {
	result, err := m.withEvents("read", DocumentReadStart, DocumentReadSuccess, DocumentReadFailed, q, func() (any, error) {
		scoped := query.Query{}
		if q != nil {
			scoped = *q
		}
		scoped.Filter = m.deletionFilter(scoped.Filter, mode)
		docs, err := m.store.Select(ctx, m.Name(), &scoped)
		if err != nil {
			return nil, fmt.Errorf("select from %s: %w", m.Name(), err)
		}
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	docs := result.([]schema.Document)
	out := make([]schema.Document, len(docs))
	for i, doc := range docs {
		out[i] = m.outbound(doc, scopes)
	}
	return out, nil
}

func (m *Model) findOne(ctx context.Context, filter *query.Filter, scopes serialize.ScopeSet, mode deletionMode) (schema.Document, error) {
	docs, err := m.find(ctx, &query.Query{
		Filter: filter,
		Page:   &query.Pagination{Limit: 1},
	}, scopes, mode)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

func (m *Model) count(ctx context.Context, filter *query.Filter, mode deletionMode) (int64, error) {
	total, err := m.store.Count(ctx, m.Name(), m.deletionFilter(filter, mode))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", m.Name(), err)
	}
	return total, nil
}

func (m *Model) exists(ctx context.Context, filter *query.Filter, mode deletionMode) (bool, error) {
	total, err := m.count(ctx, filter, mode)
	if err != nil {
		return false, err
	}
	return total > 0, nil
}

// fetchByID reads one document straight from the store, skipping redaction.
func (m *Model) fetchByID(ctx context.Context, id string, mode deletionMode) (schema.Document, error) {
	filter := query.Cond(schema.FieldID, query.OpEq, id)
	docs, err := m.store.Select(ctx, m.Name(), &query.Query{
		Filter: m.deletionFilter(&filter, mode),
		Page:   &query.Pagination{Limit: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", m.Name(), err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// deletionFilter injects the soft-delete constraint for a read. In the
// default mode the caller's filter wins verbatim when it already mentions
// deletedAt; the deleted variant forces the field to be present, and the
// with-deleted variant leaves the filter untouched.
func (m *Model) deletionFilter(filter *query.Filter, mode deletionMode) *query.Filter {
	switch mode {
	case withDeleted:
		return filter
	case deletedOnly:
		cond := query.Cond(schema.FieldDeletedAt, query.OpExists, nil)
		if filter == nil {
			return &cond
		}
		combined := query.And(cond, *filter)
		return &combined
	default:
		if filter == nil {
			cond := query.Cond(schema.FieldDeletedAt, query.OpNotExists, nil)
			return &cond
		}
		if filter.Mentions(schema.FieldDeletedAt) {
			return filter
		}
		combined := query.And(query.Cond(schema.FieldDeletedAt, query.OpNotExists, nil), *filter)
		return &combined
	}
}

// outbound prepares a document for the caller: accessor values are computed,
// then the scope filter redacts what the caller may not see.
func (m *Model) outbound(doc schema.Document, scopes serialize.ScopeSet) schema.Document {
	out := doc.Clone()
	for name, accessor := range m.cs.Accessors {
		out[name] = accessor.Accessor.Value(out)
	}
	return serialize.Redact(out, m.cs, scopes)
}

// applyDefaults fills declared defaults for fields the caller left unset.
func (m *Model) applyDefaults(doc schema.Document) {
	for name, field := range m.cs.Fields {
		if field.Default == nil {
			continue
		}
		if _, present := doc[name]; !present {
			doc[name] = field.Default
		}
	}
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	}
	return false
}
