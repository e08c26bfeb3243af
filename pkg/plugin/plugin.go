// Package plugin defines the contract every analysis unit satisfies and the
// metadata the server publishes about it. Plugins are opaque: the server
// never inspects what a tool computes, only the mappings it consumes and
// produces.
package plugin

import "context"

// Plugin is a named unit supplying one or more named tools.
//
// The registry holds the exclusive owning reference to each Plugin for the
// lifetime of the process; every other component works with short-lived
// handles obtained via lookup.
type Plugin interface {
	// Metadata returns the plugin's descriptor. It must be cheap and
	// side-effect free; callers may invoke it on every manifest build.
	Metadata() Metadata

	// RunTool executes the named tool with the given arguments and returns
	// its result mapping. A missing tool or a failing handler is a normal
	// error return.
	RunTool(ctx context.Context, toolName string, args map[string]any) (map[string]any, error)
}

// Initializer is optionally implemented by plugins that need a startup step
// (model load, hardware probe) before they can serve tools.
type Initializer interface {
	Init(ctx context.Context) error
}

// Metadata describes a plugin and the tools it exports.
type Metadata struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Version      string         `json:"version"`
	InputTypes   []string       `json:"input_types,omitempty"`
	OutputTypes  []string       `json:"output_types,omitempty"`
	Permissions  []string       `json:"permissions,omitempty"`
	ConfigSchema map[string]any `json:"config_schema,omitempty"`
	Tools        []ToolSpec     `json:"tools,omitempty"`
}

// ToolSpec describes one named operation exported by a plugin.
type ToolSpec struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	InputTypes   []string `json:"input_types,omitempty"`
	OutputTypes  []string `json:"output_types,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ToolMetadata identifies one tool of one plugin together with its declared
// types. The pipeline engine uses it for edge type checking.
type ToolMetadata struct {
	PluginID     string   `json:"plugin_id"`
	ToolID       string   `json:"tool_id"`
	InputTypes   []string `json:"input_types,omitempty"`
	OutputTypes  []string `json:"output_types,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// DefaultToolName is the designated default tool a plugin may declare.
// Requests that omit a tool name resolve to it.
const DefaultToolName = "default"

// ResolveTool picks the tool a request addresses. An empty toolName resolves
// to the plugin's "default" tool, or to its only tool when exactly one is
// declared. ok is false when no resolution exists.
func ResolveTool(meta Metadata, toolName string) (string, bool) {
	if toolName != "" {
		return toolName, true
	}
	for _, t := range meta.Tools {
		if t.Name == DefaultToolName {
			return DefaultToolName, true
		}
	}
	if len(meta.Tools) == 1 {
		return meta.Tools[0].Name, true
	}
	return "", false
}
