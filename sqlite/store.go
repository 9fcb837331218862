package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/wira-labs/go-muundo/core/query"
	"github.com/wira-labs/go-muundo/core/schema"
)

// Store implements the document store on a SQLite database. One table per
// model; reads convert stored values back to the schema's Go types.
type Store struct {
	db     *sql.DB
	prefix string
	logger *zap.Logger

	mu         sync.RWMutex
	generators map[string]*generator
}

// NewStore opens the database described by the configuration. A nil logger
// falls back to a no-op logger.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := cfg.Path
	if cfg.BusyTimeoutMS > 0 {
		dsn = fmt.Sprintf("%s?_busy_timeout=%d", cfg.Path, cfg.BusyTimeoutMS)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", cfg.Path, err)
	}

	return &Store{
		db:         db,
		prefix:     cfg.TablePrefix,
		logger:     logger,
		generators: make(map[string]*generator),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureCollection creates the model's table if missing and registers the
// schema for read-side type conversion.
func (s *Store) EnsureCollection(ctx context.Context, cs *schema.CompiledSchema) error {
	gen := newGenerator(cs, s.prefix)

	columns := []string{
		quoteIdentifier(schema.FieldID) + " TEXT PRIMARY KEY",
		quoteIdentifier(schema.FieldCreatedAt) + " TEXT NOT NULL",
		quoteIdentifier(schema.FieldUpdatedAt) + " TEXT NOT NULL",
		quoteIdentifier(schema.FieldDeletedAt) + " TEXT",
	}
	for _, name := range sortedFieldNames(cs.Fields) {
		columns = append(columns, quoteIdentifier(name)+" "+columnType(cs.Fields[name].Type))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdentifier(gen.table), strings.Join(columns, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table for %s: %w", cs.Name, err)
	}

	s.mu.Lock()
	s.generators[cs.Name] = gen
	s.mu.Unlock()

	s.logger.Debug("ensured collection",
		zap.String("model", cs.Name),
		zap.String("table", gen.table))
	return nil
}

// Insert stores the document and returns the row as persisted.
func (s *Store) Insert(ctx context.Context, collection string, doc schema.Document) (schema.Document, error) {
	gen, err := s.generator(collection)
	if err != nil {
		return nil, err
	}
	stmt, params, err := gen.insertSQL(doc)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	defer rows.Close()

	docs, err := readRows(rows, gen.cs)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", collection)
	}
	return docs[0], nil
}

// Select returns the documents matching the query.
func (s *Store) Select(ctx context.Context, collection string, q *query.Query) ([]schema.Document, error) {
	gen, err := s.generator(collection)
	if err != nil {
		return nil, err
	}
	stmt, params, err := gen.selectSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", collection, err)
	}
	defer rows.Close()
	return readRows(rows, gen.cs)
}

// Count returns the number of documents matching the filter.
func (s *Store) Count(ctx context.Context, collection string, filter *query.Filter) (int64, error) {
	gen, err := s.generator(collection)
	if err != nil {
		return 0, err
	}
	stmt, params, err := gen.countSQL(filter)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, stmt, params...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return total, nil
}

// Update applies the updates to every matching row. Nil values become NULL,
// which reads back as an absent field.
func (s *Store) Update(ctx context.Context, collection string, filter *query.Filter, updates map[string]any) (int64, error) {
	gen, err := s.generator(collection)
	if err != nil {
		return 0, err
	}
	stmt, params, err := gen.updateSQL(filter, updates)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, stmt, params...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	return result.RowsAffected()
}

// Remove physically deletes every matching row.
func (s *Store) Remove(ctx context.Context, collection string, filter *query.Filter) (int64, error) {
	gen, err := s.generator(collection)
	if err != nil {
		return 0, err
	}
	stmt, params, err := gen.deleteSQL(filter)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, stmt, params...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return result.RowsAffected()
}

func (s *Store) generator(collection string) (*generator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gen, ok := s.generators[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	return gen, nil
}

// columnType maps a schema field type onto a SQLite column type.
func columnType(t schema.FieldType) string {
	switch t {
	case schema.FieldTypeNumber:
		return "REAL"
	case schema.FieldTypeInteger, schema.FieldTypeBoolean:
		return "INTEGER"
	default:
		// string, text, date, reference and JSON-encoded composites.
		return "TEXT"
	}
}

// readRows converts result rows back into documents, restoring the Go types
// the schema declares. NULL columns, deletedAt in particular, read back as
// absent fields.
func readRows(rows *sql.Rows, cs *schema.CompiledSchema) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var docs []schema.Document
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		doc := schema.Document{}
		for i, name := range columns {
			if raw[i] == nil {
				continue
			}
			value, err := restoreValue(name, raw[i], cs)
			if err != nil {
				return nil, err
			}
			doc[name] = value
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func restoreValue(name string, raw any, cs *schema.CompiledSchema) (any, error) {
	if schema.IsReserved(name) {
		return restoreTime(raw, name != schema.FieldID)
	}

	field, ok := cs.Fields[name]
	if !ok {
		return raw, nil
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		if n, ok := raw.(int64); ok {
			return n != 0, nil
		}
		return raw, nil
	case schema.FieldTypeNumber:
		if n, ok := raw.(int64); ok {
			return float64(n), nil
		}
		return raw, nil
	case schema.FieldTypeDate:
		return restoreTime(raw, true)
	case schema.FieldTypeObject, schema.FieldTypeArray:
		text, err := asText(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", name, err)
		}
		return decoded, nil
	default:
		return asText(raw)
	}
}

func restoreTime(raw any, parse bool) (any, error) {
	text, err := asText(raw)
	if err != nil {
		return nil, err
	}
	if !parse {
		return text, nil
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return text, nil
	}
	return t, nil
}

func asText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("expected text, got %T", raw)
	}
}

func sortedFieldNames(fields map[string]*schema.CompiledField) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
