package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures event names in emission order.
type recordingSink struct {
	names  []string
	fields []map[string]any
}

func (r *recordingSink) Emit(name string, fields map[string]any) {
	r.names = append(r.names, name)
	r.fields = append(r.fields, fields)
}

// scriptedInvoker runs a function per plugin.tool key.
type scriptedInvoker struct {
	handlers map[string]func(args map[string]any) (map[string]any, error)
	calls    []string
}

func (s *scriptedInvoker) ExecuteStep(_ context.Context, pluginName, toolName string, payload map[string]any) (map[string]any, error) {
	key := pluginName + "." + toolName
	s.calls = append(s.calls, key)
	h, ok := s.handlers[key]
	if !ok {
		return nil, fmt.Errorf("no handler for %s", key)
	}
	return h(payload)
}

func TestRunEmitsOrderedEventsAndMergesOutputs(t *testing.T) {
	invoker := &scriptedInvoker{handlers: map[string]func(map[string]any) (map[string]any, error){
		"pluginA.tool1": func(args map[string]any) (map[string]any, error) {
			assert.Equal(t, "input", args["seed"])
			return map[string]any{"a_out": 1, "shared": "from_a"}, nil
		},
		"pluginB.tool2": func(args map[string]any) (map[string]any, error) {
			// n2 sees the initial input overlaid with n1's output.
			assert.Equal(t, "input", args["seed"])
			assert.Equal(t, 1, args["a_out"])
			return map[string]any{"b_out": 2, "shared": "from_b"}, nil
		},
	}}
	sink := &recordingSink{}
	exec := NewExecutor(invoker, sink)

	result, err := exec.Run(context.Background(), twoNodePipeline(), map[string]any{"seed": "input"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"pipeline_started",
		"pipeline_node_started",
		"pipeline_node_completed",
		"pipeline_node_started",
		"pipeline_node_completed",
		"pipeline_completed",
	}, sink.names)
	assert.Equal(t, []string{"pluginA.tool1", "pluginB.tool2"}, invoker.calls)

	// Final result: input overlaid with both outputs, last-wins.
	assert.Equal(t, "input", result["seed"])
	assert.Equal(t, 1, result["a_out"])
	assert.Equal(t, 2, result["b_out"])
	assert.Equal(t, "from_b", result["shared"])
}

func TestRunAbortsOnNodeFailure(t *testing.T) {
	invoker := &scriptedInvoker{handlers: map[string]func(map[string]any) (map[string]any, error){
		"pluginA.tool1": func(map[string]any) (map[string]any, error) {
			return nil, errors.New("lens cap on")
		},
	}}
	sink := &recordingSink{}
	exec := NewExecutor(invoker, sink)

	result, err := exec.Run(context.Background(), twoNodePipeline(), map[string]any{})
	require.Error(t, err)
	assert.Nil(t, result, "no partial result on failure")

	var ne *NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "n1", ne.NodeID)

	assert.Equal(t, []string{
		"pipeline_started",
		"pipeline_node_started",
		"pipeline_node_failed",
		"pipeline_failed",
	}, sink.names)
	// The second node never ran.
	assert.Equal(t, []string{"pluginA.tool1"}, invoker.calls)
}

func TestRunRejectsInvalidPipelineBeforeStarting(t *testing.T) {
	p := twoNodePipeline()
	p.Edges = append(p.Edges, Edge{From: "n2", To: "n1"})
	sink := &recordingSink{}
	exec := NewExecutor(&scriptedInvoker{}, sink)

	_, err := exec.Run(context.Background(), p, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
	assert.Empty(t, sink.names, "no events for a rejected pipeline")
}

func TestRunTreatsNilOutputAsEmpty(t *testing.T) {
	invoker := &scriptedInvoker{handlers: map[string]func(map[string]any) (map[string]any, error){
		"pluginA.tool1": func(map[string]any) (map[string]any, error) { return nil, nil },
		"pluginB.tool2": func(map[string]any) (map[string]any, error) {
			return map[string]any{"done": true}, nil
		},
	}}
	exec := NewExecutor(invoker, &recordingSink{})

	result, err := exec.Run(context.Background(), twoNodePipeline(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, result["done"])
}
