package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wira-labs/go-muundo/core/schema"
)

// Definition is the on-disk shape of one model: an optional name and the
// attribute mapping. When modelName is absent the filename stem is used.
type Definition struct {
	ModelName  string                           `json:"modelName"`
	Attributes map[string]*schema.AttributeNode `json:"attributes"`
}

// Loader reads model definition files, compiles them and registers the
// resulting models.
type Loader struct {
	registry *Registry
	store    DocumentStore
	logger   *zap.Logger
}

// NewLoader creates a loader that registers into the given registry and
// prepares collections on the given store. A nil logger falls back to a no-op
// logger.
func NewLoader(registry *Registry, store DocumentStore, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{registry: registry, store: store, logger: logger}
}

// LoadDir reads every .json, .yaml and .yml file in dir, compiles and
// registers each model, then resolves cross-model references and ensures
// backing collections. Any definition error aborts the whole load.
func (l *Loader) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read model directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".yaml", ".yml":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		if err := l.loadFile(filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	if err := l.registry.ResolveReferences(); err != nil {
		return err
	}

	for _, name := range l.registry.Names() {
		model := l.registry.Get(name)
		if err := l.store.EnsureCollection(ctx, model.Schema()); err != nil {
			return fmt.Errorf("ensure collection for %s: %w", name, err)
		}
	}
	return nil
}

func (l *Loader) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model definition %s: %w", path, err)
	}

	def, err := parseDefinition(raw, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("parse model definition %s: %w", path, err)
	}
	if def.ModelName == "" {
		base := filepath.Base(path)
		def.ModelName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	cs, err := schema.Compile(def.ModelName, def.Attributes)
	if err != nil {
		return err
	}

	model, err := NewModel(cs, l.store, l.logger)
	if err != nil {
		return err
	}
	if err := l.registry.Register(model); err != nil {
		return err
	}

	l.logger.Info("registered model",
		zap.String("model", def.ModelName),
		zap.Int("fields", len(cs.Fields)),
		zap.String("file", filepath.Base(path)))
	return nil
}

// parseDefinition decodes a definition file. YAML input is normalized through
// JSON so the attribute grammar decodes one way regardless of format.
func parseDefinition(raw []byte, ext string) (*Definition, error) {
	if ext == ".yaml" || ext == ".yml" {
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, err
		}
		normalized, err := json.Marshal(tree)
		if err != nil {
			return nil, err
		}
		raw = normalized
	}
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, err
	}
	return &def, nil
}
