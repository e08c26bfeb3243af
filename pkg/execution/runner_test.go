package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgesyte/forgesyte/pkg/plugin"
)

// fakePlugin runs a configurable tool handler.
type fakePlugin struct {
	meta plugin.Metadata
	run  func(ctx context.Context, toolName string, args map[string]any) (map[string]any, error)
}

func (f *fakePlugin) Metadata() plugin.Metadata { return f.meta }

func (f *fakePlugin) RunTool(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
	if f.run == nil {
		return map[string]any{}, nil
	}
	return f.run(ctx, toolName, args)
}

// fakeSource records lifecycle calls.
type fakeSource struct {
	plugins     map[string]plugin.Plugin
	running     []string
	initialized []string
	failed      []string
	executions  []bool // hadError per RecordExecution call
}

func newFakeSource(plugins ...*fakePlugin) *fakeSource {
	s := &fakeSource{plugins: make(map[string]plugin.Plugin)}
	for _, p := range plugins {
		s.plugins[p.meta.Name] = p
	}
	return s
}

func (s *fakeSource) Get(name string) (plugin.Plugin, bool) {
	p, ok := s.plugins[name]
	return p, ok
}

func (s *fakeSource) MarkRunning(name string, _ time.Time) { s.running = append(s.running, name) }
func (s *fakeSource) MarkInitialized(name string)          { s.initialized = append(s.initialized, name) }
func (s *fakeSource) MarkFailed(name, _ string)            { s.failed = append(s.failed, name) }
func (s *fakeSource) RecordExecution(_ string, _ int64, hadError bool) {
	s.executions = append(s.executions, hadError)
}

func imageArgs() map[string]any {
	return map[string]any{"image": []byte{0x89, 0x50}}
}

func TestExecuteToolSuccess(t *testing.T) {
	p := &fakePlugin{
		meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}},
		run: func(_ context.Context, toolName string, _ map[string]any) (map[string]any, error) {
			return map[string]any{"tool": toolName, "text": "hello"}, nil
		},
	}
	src := newFakeSource(p)
	svc := NewPluginExecutionService(src)

	result, err := svc.ExecuteTool(context.Background(), "ocr", "", imageArgs(), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "hello", result["text"])
	assert.Equal(t, "default", result["tool"])

	assert.Equal(t, []string{"ocr"}, src.running)
	assert.Equal(t, []string{"ocr"}, src.initialized)
	assert.Empty(t, src.failed)
	assert.Equal(t, []bool{false}, src.executions)
}

func TestExecuteToolPluginError(t *testing.T) {
	p := &fakePlugin{
		meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}},
		run: func(context.Context, string, map[string]any) (map[string]any, error) {
			return nil, errors.New("model exploded")
		},
	}
	src := newFakeSource(p)
	svc := NewPluginExecutionService(src)

	_, err := svc.ExecuteTool(context.Background(), "ocr", "default", imageArgs(), "")
	var pe *PluginExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "ocr", pe.Plugin)

	assert.Equal(t, []string{"ocr"}, src.failed)
	assert.Equal(t, []bool{true}, src.executions)
	assert.Empty(t, src.initialized)
}

func TestExecuteToolUnknownPlugin(t *testing.T) {
	svc := NewPluginExecutionService(newFakeSource())
	_, err := svc.ExecuteTool(context.Background(), "ghost", "t", imageArgs(), "")
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestExecuteToolInputEnvelope(t *testing.T) {
	p := &fakePlugin{meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}}}
	svc := NewPluginExecutionService(newFakeSource(p))

	tests := []struct {
		name string
		args map[string]any
		mime string
	}{
		{"nil args", nil, ""},
		{"missing image", map[string]any{}, ""},
		{"empty bytes", map[string]any{"image": []byte{}}, ""},
		{"empty string", map[string]any{"image": ""}, ""},
		{"wrong type", map[string]any{"image": 42}, ""},
		{"unknown mime", imageArgs(), "application/pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ExecuteTool(context.Background(), "ocr", "default", tt.args, tt.mime)
			var ive *InputValidationError
			require.ErrorAs(t, err, &ive)
		})
	}
}

func TestExecuteToolOutputEnvelope(t *testing.T) {
	p := &fakePlugin{
		meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}},
		run: func(context.Context, string, map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}
	src := newFakeSource(p)
	svc := NewPluginExecutionService(src)

	_, err := svc.ExecuteTool(context.Background(), "ocr", "default", imageArgs(), "")
	var ove *OutputValidationError
	require.ErrorAs(t, err, &ove)
	assert.Equal(t, []string{"ocr"}, src.failed)
}

func TestExecuteStepSkipsImageEnvelope(t *testing.T) {
	p := &fakePlugin{
		meta: plugin.Metadata{Name: "tracker", Tools: []plugin.ToolSpec{{Name: "default"}}},
		run: func(_ context.Context, _ string, args map[string]any) (map[string]any, error) {
			return map[string]any{"seen": args["input"]}, nil
		},
	}
	src := newFakeSource(p)
	svc := NewPluginExecutionService(src)

	result, err := svc.ExecuteStep(context.Background(), "tracker", "default", map[string]any{"input": "test"})
	require.NoError(t, err)
	assert.Equal(t, "test", result["seen"])
	assert.Equal(t, []string{"tracker"}, src.running)
	assert.Equal(t, []bool{false}, src.executions)

	// A nil payload is an empty mapping, not an input fault.
	result, err = svc.ExecuteStep(context.Background(), "tracker", "default", nil)
	require.NoError(t, err)
	assert.Nil(t, result["seen"])
}

func TestExecuteStepStillValidatesOutput(t *testing.T) {
	p := &fakePlugin{
		meta: plugin.Metadata{Name: "tracker", Tools: []plugin.ToolSpec{{Name: "default"}}},
		run: func(context.Context, string, map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}
	src := newFakeSource(p)
	svc := NewPluginExecutionService(src)

	_, err := svc.ExecuteStep(context.Background(), "tracker", "default", map[string]any{})
	var ove *OutputValidationError
	require.ErrorAs(t, err, &ove)
	assert.Equal(t, []string{"tracker"}, src.failed)
}

func TestExecuteToolNoResolvableTool(t *testing.T) {
	p := &fakePlugin{
		meta: plugin.Metadata{Name: "multi", Tools: []plugin.ToolSpec{{Name: "a"}, {Name: "b"}}},
	}
	svc := NewPluginExecutionService(newFakeSource(p))

	_, err := svc.ExecuteTool(context.Background(), "multi", "", imageArgs(), "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}
