package mcp

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/forgesyte/forgesyte/pkg/plugin"
	"github.com/forgesyte/forgesyte/pkg/version"
)

// DefaultManifestTTL is how long a built manifest stays fresh.
const DefaultManifestTTL = 60 * time.Second

// metadataSchema is the contract a plugin's published metadata must satisfy
// to appear in the manifest.
const metadataSchema = `{
  "type": "object",
  "required": ["name", "version"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {"name": {"type": "string", "minLength": 1}}
      }
    }
  }
}`

// ManifestBuilder produces the serializable tool manifest, cached with a TTL
// and invalidated whenever the registry generation moves.
type ManifestBuilder struct {
	catalog PluginCatalog
	ttl     time.Duration
	schema  *jsonschema.Schema
	now     func() time.Time

	mu         sync.Mutex
	cached     map[string]any
	builtAt    time.Time
	generation uint64
	warned     map[string]bool
}

// NewManifestBuilder creates a builder. ttl <= 0 selects the default.
func NewManifestBuilder(catalog PluginCatalog, ttl time.Duration) *ManifestBuilder {
	if ttl <= 0 {
		ttl = DefaultManifestTTL
	}
	return &ManifestBuilder{
		catalog: catalog,
		ttl:     ttl,
		schema:  mustCompileMetadataSchema(),
		now:     time.Now,
		warned:  make(map[string]bool),
	}
}

// Build returns the manifest, regenerating it when the cache is older than
// the TTL or the registry has mutated since the last build.
func (b *ManifestBuilder) Build() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.catalog.Generation()
	if b.cached != nil && gen == b.generation && b.now().Sub(b.builtAt) < b.ttl {
		return b.cached
	}

	tools := make([]map[string]any, 0)
	for _, meta := range b.catalog.AvailableMetadata() {
		if !b.validate(meta) {
			continue
		}
		tools = append(tools, map[string]any{
			"id":           version.AppName + "." + meta.Name,
			"name":         meta.Name,
			"description":  meta.Description,
			"version":      meta.Version,
			"input_types":  meta.InputTypes,
			"output_types": meta.OutputTypes,
			"permissions":  meta.Permissions,
		})
	}

	b.cached = map[string]any{
		"name":         version.AppName,
		"version":      version.Semver,
		"tools":        tools,
		"generated_at": b.now().UTC().Format(time.RFC3339),
	}
	b.builtAt = b.now()
	b.generation = gen
	return b.cached
}

// PluginManifest returns the manifest entry for one plugin, or false when
// the plugin is absent (unknown, unavailable, or failing validation).
func (b *ManifestBuilder) PluginManifest(name string) (map[string]any, bool) {
	manifest := b.Build()
	tools, _ := manifest["tools"].([]map[string]any)
	for _, t := range tools {
		if t["name"] == name {
			return t, true
		}
	}
	return nil, false
}

// validate checks the plugin's metadata against the schema. A failing plugin
// is skipped and warned about once; the warning resets when the metadata
// becomes valid again.
func (b *ManifestBuilder) validate(meta plugin.Metadata) bool {
	doc, err := toJSONValue(meta)
	if err == nil {
		err = b.schema.Validate(doc)
	}
	if err != nil {
		if !b.warned[meta.Name] {
			slog.Warn("Plugin metadata failed validation, excluded from manifest",
				"plugin", meta.Name, "error", err)
			b.warned[meta.Name] = true
		}
		return false
	}
	delete(b.warned, meta.Name)
	return true
}

// toJSONValue round-trips a value through JSON so the schema validator sees
// plain maps and slices.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func mustCompileMetadataSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(metadataSchema))
	if err != nil {
		panic("metadata schema is not valid JSON: " + err.Error())
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plugin-metadata.json", doc); err != nil {
		panic("metadata schema resource rejected: " + err.Error())
	}
	schema, err := compiler.Compile("plugin-metadata.json")
	if err != nil {
		panic("metadata schema failed to compile: " + err.Error())
	}
	return schema
}
