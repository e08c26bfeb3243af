// Package execution implements the layered execution chain: the API-facing
// analysis service, the job-lifecycle service, and the plugin-execution
// service whose ToolRunner is the single call site permitted to invoke a
// plugin's tool handler.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgesyte/forgesyte/pkg/plugin"
)

// ToolRunner is the function that calls a plugin's tool handler. Exactly one
// implementation exists in the process (runTool below); everything else
// reaches handlers through PluginExecutionService.
type ToolRunner func(ctx context.Context, p plugin.Plugin, toolName string, args map[string]any) (map[string]any, error)

// runTool is the single call site for plugin tool handlers. Any other path
// to a handler is a bug.
func runTool(ctx context.Context, p plugin.Plugin, toolName string, args map[string]any) (map[string]any, error) {
	return p.RunTool(ctx, toolName, args)
}

// PluginSource is the registry surface the execution chain consumes.
type PluginSource interface {
	Get(name string) (plugin.Plugin, bool)
	MarkRunning(name string, startedAt time.Time)
	MarkInitialized(name string)
	MarkFailed(name, reason string)
	RecordExecution(name string, durationMs int64, hadError bool)
}

// recognizedMimeTypes bounds the input envelope. Octet-stream covers opaque
// frames submitted without a declared type.
var recognizedMimeTypes = map[string]bool{
	"image/png":                true,
	"image/jpeg":               true,
	"image/webp":               true,
	"image/gif":                true,
	"video/mp4":                true,
	"application/octet-stream": true,
}

// PluginExecutionService validates the execution envelope and invokes tool
// handlers through the ToolRunner.
type PluginExecutionService struct {
	plugins PluginSource
	runner  ToolRunner
	logger  *slog.Logger
	now     func() time.Time
}

// NewPluginExecutionService creates the lowest chain layer, bound to the
// process ToolRunner.
func NewPluginExecutionService(plugins PluginSource) *PluginExecutionService {
	return &PluginExecutionService{
		plugins: plugins,
		runner:  runTool,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// ExecuteTool validates the input envelope, invokes the tool handler via the
// ToolRunner, validates the returned mapping, and maintains the plugin's
// lifecycle state and metrics around the call.
//
// Failure modes: *InputValidationError, *OutputValidationError,
// *PluginExecutionError, or ErrPluginNotFound.
func (s *PluginExecutionService) ExecuteTool(ctx context.Context, pluginName, toolName string, args map[string]any, mimeType string) (map[string]any, error) {
	if err := validateInputEnvelope(args, mimeType); err != nil {
		return nil, err
	}
	return s.invoke(ctx, pluginName, toolName, args)
}

// ExecuteStep invokes a tool against an arbitrary pipeline payload. Plugin
// resolution, lifecycle marks, metrics, and output validation are identical
// to ExecuteTool; the image envelope is not enforced because pipeline
// payloads are free-form mappings flowing between nodes.
func (s *PluginExecutionService) ExecuteStep(ctx context.Context, pluginName, toolName string, payload map[string]any) (map[string]any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return s.invoke(ctx, pluginName, toolName, payload)
}

func (s *PluginExecutionService) invoke(ctx context.Context, pluginName, toolName string, args map[string]any) (map[string]any, error) {
	p, ok := s.plugins.Get(pluginName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, pluginName)
	}

	resolved, ok := plugin.ResolveTool(p.Metadata(), toolName)
	if !ok {
		return nil, NewValidationError("tool", fmt.Sprintf(
			"no tool name supplied and plugin %s declares no default tool", pluginName))
	}

	started := s.now()
	s.plugins.MarkRunning(pluginName, started)

	result, err := s.runner(ctx, p, resolved, args)
	durationMs := s.now().Sub(started).Milliseconds()

	if err != nil {
		s.plugins.RecordExecution(pluginName, durationMs, true)
		s.plugins.MarkFailed(pluginName, err.Error())
		return nil, &PluginExecutionError{Plugin: pluginName, Tool: resolved, Err: err}
	}

	if err := validateOutputEnvelope(pluginName, resolved, result); err != nil {
		s.plugins.RecordExecution(pluginName, durationMs, true)
		s.plugins.MarkFailed(pluginName, err.Error())
		return nil, err
	}

	s.plugins.RecordExecution(pluginName, durationMs, false)
	s.plugins.MarkInitialized(pluginName)

	s.logger.Debug("Tool executed",
		"plugin", pluginName, "tool", resolved, "duration_ms", durationMs)
	return result, nil
}

// validateInputEnvelope checks the opaque artifact and mime type before any
// handler runs.
func validateInputEnvelope(args map[string]any, mimeType string) error {
	if args == nil {
		return &InputValidationError{Reason: "arguments mapping is nil"}
	}
	img, ok := args["image"]
	if !ok {
		return &InputValidationError{Reason: "arguments are missing 'image'"}
	}
	switch v := img.(type) {
	case []byte:
		if len(v) == 0 {
			return &InputValidationError{Reason: "'image' is empty"}
		}
	case string:
		if v == "" {
			return &InputValidationError{Reason: "'image' is empty"}
		}
	default:
		return &InputValidationError{Reason: fmt.Sprintf("'image' has unsupported type %T", img)}
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if !recognizedMimeTypes[mimeType] {
		return &InputValidationError{Reason: "unrecognized mime type " + mimeType}
	}
	return nil
}

// validateOutputEnvelope checks the plugin's returned mapping against the
// output contract: non-nil and JSON-serializable.
func validateOutputEnvelope(pluginName, toolName string, result map[string]any) error {
	if result == nil {
		return &OutputValidationError{Plugin: pluginName, Tool: toolName, Reason: "result mapping is nil"}
	}
	if _, err := json.Marshal(result); err != nil {
		return &OutputValidationError{Plugin: pluginName, Tool: toolName,
			Reason: "result is not JSON-serializable: " + err.Error()}
	}
	return nil
}
