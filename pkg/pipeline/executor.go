package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ToolInvoker executes one plugin tool against a free-form node payload.
// Implemented by the plugin execution layer.
type ToolInvoker interface {
	ExecuteStep(ctx context.Context, pluginName, toolName string, payload map[string]any) (map[string]any, error)
}

// EventSink receives one structured event per run phase. The name is one of
// pipeline_started, pipeline_node_started, pipeline_node_completed,
// pipeline_node_failed, pipeline_failed, pipeline_completed.
type EventSink interface {
	Emit(name string, fields map[string]any)
}

// SlogSink logs every event at info level.
type SlogSink struct {
	Logger *slog.Logger
}

// Emit implements EventSink.
func (s SlogSink) Emit(name string, fields map[string]any) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	logger.Info(name, attrs...)
}

// NodeError wraps a node failure with its position in the run.
type NodeError struct {
	NodeID   string
	PluginID string
	ToolID   string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("pipeline node %s (%s.%s) failed: %v", e.NodeID, e.PluginID, e.ToolID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Executor runs validated pipelines.
type Executor struct {
	invoker ToolInvoker
	events  EventSink
	now     func() time.Time
}

// NewExecutor creates a pipeline executor. A nil sink logs via slog.
func NewExecutor(invoker ToolInvoker, events EventSink) *Executor {
	if events == nil {
		events = SlogSink{}
	}
	return &Executor{invoker: invoker, events: events, now: time.Now}
}

// Run validates and executes the pipeline against the initial input. The
// result is the initial input overlaid, in topological order, with every
// node's output (last-wins). A node failure aborts the run with no partial
// result.
func (e *Executor) Run(ctx context.Context, p *Pipeline, input map[string]any) (map[string]any, error) {
	if problems := Validate(p); len(problems) > 0 {
		return nil, fmt.Errorf("invalid pipeline %s: %v", p.ID, problems)
	}
	order, err := TopoOrder(p)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	runStarted := e.now()
	e.events.Emit("pipeline_started", map[string]any{
		"pipeline_id":  p.ID,
		"run_id":       runID,
		"entry_nodes":  p.EntryNodes,
		"output_nodes": p.OutputNodes,
		"node_count":   len(p.Nodes),
	})

	// Per-run node outputs, keyed by node id.
	outputs := make(map[string]map[string]any, len(p.Nodes))

	for step, nodeID := range order {
		node, _ := p.node(nodeID)
		preds := p.predecessors(nodeID)

		payload := make(map[string]any, len(input))
		for k, v := range input {
			payload[k] = v
		}
		for _, pred := range preds {
			for k, v := range outputs[pred] {
				payload[k] = v
			}
		}

		e.events.Emit("pipeline_node_started", map[string]any{
			"pipeline_id":  p.ID,
			"run_id":       runID,
			"node_id":      nodeID,
			"plugin_id":    node.PluginID,
			"tool_id":      node.ToolID,
			"step":         step,
			"predecessors": preds,
		})

		nodeStarted := e.now()
		out, err := e.invoker.ExecuteStep(ctx, node.PluginID, node.ToolID, payload)
		nodeMs := e.now().Sub(nodeStarted).Milliseconds()

		if err != nil {
			fields := map[string]any{
				"pipeline_id": p.ID,
				"run_id":      runID,
				"node_id":     nodeID,
				"duration_ms": nodeMs,
				"error_type":  fmt.Sprintf("%T", err),
				"error":       err.Error(),
			}
			e.events.Emit("pipeline_node_failed", fields)
			fields["pipeline_duration_ms"] = e.now().Sub(runStarted).Milliseconds()
			e.events.Emit("pipeline_failed", fields)
			return nil, &NodeError{NodeID: nodeID, PluginID: node.PluginID, ToolID: node.ToolID, Err: err}
		}

		if out == nil {
			out = map[string]any{}
		}
		outputs[nodeID] = out

		keys := make([]string, 0, len(out))
		for k := range out {
			keys = append(keys, k)
		}
		e.events.Emit("pipeline_node_completed", map[string]any{
			"pipeline_id": p.ID,
			"run_id":      runID,
			"node_id":     nodeID,
			"duration_ms": nodeMs,
			"output_keys": keys,
		})
	}

	result := make(map[string]any, len(input))
	for k, v := range input {
		result[k] = v
	}
	for _, nodeID := range order {
		for k, v := range outputs[nodeID] {
			result[k] = v
		}
	}

	e.events.Emit("pipeline_completed", map[string]any{
		"pipeline_id": p.ID,
		"run_id":      runID,
		"duration_ms": e.now().Sub(runStarted).Milliseconds(),
		"node_count":  len(p.Nodes),
	})
	return result, nil
}
