package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgesyte/forgesyte/pkg/execution"
	"github.com/forgesyte/forgesyte/pkg/jobs"
	"github.com/forgesyte/forgesyte/pkg/plugin"
	"github.com/forgesyte/forgesyte/pkg/version"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// JobResourceScheme prefixes every job resource URI.
const JobResourceScheme = "forgesyte://job/"

// resourceListLimit caps resources/list output.
const resourceListLimit = 10

// PluginCatalog is the registry surface the transport consumes.
type PluginCatalog interface {
	AvailableMetadata() []plugin.Metadata
	Generation() uint64
}

// ToolInvoker executes one plugin tool. Implemented by the plugin execution
// layer.
type ToolInvoker interface {
	ExecuteTool(ctx context.Context, pluginName, toolName string, args map[string]any, mimeType string) (map[string]any, error)
}

// ImageFetcher acquires remote artifacts for tools/call URL inputs.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// JobReader is the job store surface resources need.
type JobReader interface {
	Get(id string) (*jobs.Job, bool)
	List(status jobs.Status, pluginName string, limit int) ([]*jobs.Job, error)
}

// Server binds the standard MCP methods to the registry, execution chain,
// fetcher, and job store.
type Server struct {
	catalog  PluginCatalog
	invoker  ToolInvoker
	fetcher  ImageFetcher
	store    JobReader
	manifest *ManifestBuilder
}

// NewServer creates the MCP method surface and registers every standard
// method on a fresh dispatcher.
func NewServer(catalog PluginCatalog, invoker ToolInvoker, fetcher ImageFetcher, store JobReader) (*Server, *Dispatcher) {
	s := &Server{
		catalog:  catalog,
		invoker:  invoker,
		fetcher:  fetcher,
		store:    store,
		manifest: NewManifestBuilder(catalog, 0),
	}
	d := NewDispatcher()
	d.Register("initialize", s.Initialize)
	d.Register("ping", s.Ping)
	d.Register("tools/list", s.ToolsList)
	d.Register("tools/call", s.ToolsCall)
	d.Register("resources/list", s.ResourcesList)
	d.Register("resources/read", s.ResourcesRead)
	return s, d
}

// Manifest exposes the builder for the discovery endpoints.
func (s *Server) Manifest() *ManifestBuilder { return s.manifest }

// Initialize implements the MCP handshake.
func (s *Server) Initialize(_ context.Context, params map[string]any) (map[string]any, error) {
	protocol := ProtocolVersion
	if v, ok := params["protocolVersion"].(string); ok && v != "" {
		protocol = v
	}
	return map[string]any{
		"protocolVersion": protocol,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo": map[string]any{
			"name":    version.AppName,
			"version": version.Semver,
		},
	}, nil
}

// Ping implements liveness.
func (s *Server) Ping(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"status": "pong"}, nil
}

// ToolsList returns one tool entry per available plugin.
func (s *Server) ToolsList(context.Context, map[string]any) (map[string]any, error) {
	metas := s.catalog.AvailableMetadata()
	tools := make([]map[string]any, 0, len(metas))
	for _, m := range metas {
		tools = append(tools, map[string]any{
			"name":        m.Name,
			"description": m.Description,
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"image": map[string]any{
						"type":        "string",
						"description": "Image as base64, data URL, or http(s) URL",
					},
					"options": map[string]any{
						"type":        "object",
						"description": "Plugin-specific options",
					},
				},
				"required": []string{"image"},
			},
		})
	}
	return map[string]any{"tools": tools}, nil
}

// ToolsCall invokes one plugin tool and wraps the result in the MCP text
// content envelope. URL images are fetched and base64 images decoded before
// the plugin ever sees them.
func (s *Server) ToolsCall(ctx context.Context, params map[string]any) (map[string]any, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, NewTransportError(CodeInvalidParams, "tool name is required")
	}
	pluginName := strings.TrimPrefix(name, version.AppName+".")
	if !s.available(pluginName) {
		return nil, NewTransportError(CodeInvalidParams, "unknown tool %s", name)
	}

	args := map[string]any{}
	if raw, ok := params["arguments"].(map[string]any); ok {
		for k, v := range raw {
			args[k] = v
		}
	}
	if err := s.resolveImageArg(ctx, args); err != nil {
		return nil, err
	}
	tool, _ := args["tool"].(string)

	result, err := s.invoker.ExecuteTool(ctx, pluginName, tool, args, "")
	if err != nil {
		return nil, NewTransportError(CodeInternalError, "tool execution failed: %v", err)
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, NewTransportError(CodeInternalError, "result serialization failed: %v", err)
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(text)},
		},
	}, nil
}

// ResourcesList exposes recent jobs as forgesyte://job/<id> resources.
func (s *Server) ResourcesList(context.Context, map[string]any) (map[string]any, error) {
	recent, err := s.store.List("", "", resourceListLimit)
	if err != nil {
		return nil, NewTransportError(CodeInternalError, "listing jobs failed: %v", err)
	}
	resources := make([]map[string]any, 0, len(recent))
	for _, j := range recent {
		resources = append(resources, map[string]any{
			"uri":         JobResourceScheme + j.ID,
			"name":        "Job " + j.ID,
			"mimeType":    "application/json",
			"description": fmt.Sprintf("%s job for plugin %s", j.Status, j.Plugin),
		})
	}
	return map[string]any{"resources": resources, "nextCursor": nil}, nil
}

// ResourcesRead returns the JSON-encoded job record a job URI addresses.
func (s *Server) ResourcesRead(_ context.Context, params map[string]any) (map[string]any, error) {
	uri, _ := params["uri"].(string)
	if uri == "" {
		return nil, NewTransportError(CodeInvalidParams, "uri is required")
	}
	if !strings.HasPrefix(uri, JobResourceScheme) {
		return nil, NewTransportError(CodeInvalidParams, "unsupported resource uri %s", uri)
	}
	id := strings.TrimPrefix(uri, JobResourceScheme)
	job, ok := s.store.Get(id)
	if !ok {
		return nil, NewTransportError(CodeInvalidParams, "unknown job %s", id)
	}
	text, err := json.Marshal(job)
	if err != nil {
		return nil, NewTransportError(CodeInternalError, "job serialization failed: %v", err)
	}
	return map[string]any{
		"contents": []map[string]any{
			{"uri": uri, "mimeType": "application/json", "text": string(text)},
		},
	}, nil
}

// resolveImageArg replaces a string image argument with the actual bytes:
// http(s) URLs are fetched, everything else is treated as base64 (plain or
// data URL). Byte slices pass through untouched.
func (s *Server) resolveImageArg(ctx context.Context, args map[string]any) error {
	img, ok := args["image"]
	if !ok {
		return NewTransportError(CodeInvalidParams, "arguments are missing 'image'")
	}
	str, ok := img.(string)
	if !ok {
		return nil
	}
	if strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") {
		data, err := s.fetcher.Fetch(ctx, str)
		if err != nil {
			return NewTransportError(CodeInternalError, "image fetch failed: %v", err)
		}
		args["image"] = data
		return nil
	}
	data, err := execution.DecodeBase64Image(str)
	if err != nil {
		return NewTransportError(CodeInvalidParams, "image is not valid base64: %v", err)
	}
	args["image"] = data
	return nil
}

func (s *Server) available(pluginName string) bool {
	for _, m := range s.catalog.AvailableMetadata() {
		if m.Name == pluginName {
			return true
		}
	}
	return false
}
