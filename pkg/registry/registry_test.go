package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgesyte/forgesyte/pkg/plugin"
)

type stubPlugin struct {
	meta    plugin.Metadata
	initErr error
}

func (s *stubPlugin) Metadata() plugin.Metadata { return s.meta }

func (s *stubPlugin) RunTool(context.Context, string, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func (s *stubPlugin) Init(context.Context) error { return s.initErr }

func testRegistry() *Registry {
	return newRegistry()
}

func TestRegisterAndLifecycle(t *testing.T) {
	r := testRegistry()
	r.Register("ocr", "text extraction", "1.0", &stubPlugin{meta: plugin.Metadata{Name: "ocr"}})

	st, ok := r.Status("ocr")
	require.True(t, ok)
	assert.Equal(t, StateLoaded, st.State)
	assert.Equal(t, "text extraction", st.Description)

	r.MarkInitialized("ocr")
	st, _ = r.Status("ocr")
	assert.Equal(t, StateInitialized, st.State)

	r.MarkRunning("ocr", time.Now())
	st, _ = r.Status("ocr")
	assert.Equal(t, StateRunning, st.State)

	r.MarkFailed("ocr", "boom")
	st, _ = r.Status("ocr")
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "boom", st.LastError)

	// Failed entries stay visible rather than disappearing.
	assert.Equal(t, 1, r.Len())
	assert.Empty(t, r.ListAvailable())
}

func TestRecordExecutionMetrics(t *testing.T) {
	r := testRegistry()
	r.Register("ocr", "", "1.0", &stubPlugin{meta: plugin.Metadata{Name: "ocr"}})

	r.RecordExecution("ocr", 100, false)
	r.RecordExecution("ocr", 200, false)
	r.RecordExecution("ocr", 300, true)

	st, _ := r.Status("ocr")
	assert.Equal(t, int64(2), st.SuccessCount)
	assert.Equal(t, int64(1), st.ErrorCount)
	assert.Equal(t, int64(300), st.LastDurationMs)
	assert.InDelta(t, 200.0, st.AvgDurationMs, 0.01)
}

func TestDurationRingIsBounded(t *testing.T) {
	r := testRegistry()
	r.Register("ocr", "", "1.0", &stubPlugin{meta: plugin.Metadata{Name: "ocr"}})

	for i := 0; i < durationRingSize*2; i++ {
		r.RecordExecution("ocr", int64(i), false)
	}
	st, _ := r.Status("ocr")
	assert.Equal(t, int64(durationRingSize*2-1), st.LastDurationMs)
	// Average covers only the retained window.
	assert.InDelta(t, float64(durationRingSize*3-1)/2, st.AvgDurationMs, 0.01)
}

func TestGenerationBumpsOnMutation(t *testing.T) {
	r := testRegistry()
	g0 := r.Generation()

	r.Register("ocr", "", "1.0", &stubPlugin{meta: plugin.Metadata{Name: "ocr"}})
	g1 := r.Generation()
	assert.Greater(t, g1, g0)

	r.MarkInitialized("ocr")
	assert.Greater(t, r.Generation(), g1)

	// Pure reads never invalidate.
	g2 := r.Generation()
	r.Status("ocr")
	r.ListAll()
	assert.Equal(t, g2, r.Generation())
}

func TestReload(t *testing.T) {
	r := testRegistry()
	p := &stubPlugin{meta: plugin.Metadata{Name: "ocr"}}
	r.Register("ocr", "", "1.0", p)

	require.NoError(t, r.Reload("ocr"))
	st, _ := r.Status("ocr")
	assert.Equal(t, StateInitialized, st.State)

	p.initErr = errors.New("model missing")
	require.Error(t, r.Reload("ocr"))
	st, _ = r.Status("ocr")
	assert.Equal(t, StateUnavailable, st.State)

	var nf *NotFoundError
	err := r.Reload("ghost")
	require.ErrorAs(t, err, &nf)
}

func TestReloadKeepsPlaceholdersUnavailable(t *testing.T) {
	r := testRegistry()
	inst := plugin.NewUnavailable(plugin.Metadata{Name: "yolo", Version: "1.0"}, "binary absent")
	r.Register("yolo", "", "1.0", inst)
	r.MarkUnavailable("yolo", inst.Reason())

	// Descriptor-only placeholders have no init step; a reload must not
	// move them into the available set.
	require.NoError(t, r.Reload("yolo"))
	st, _ := r.Status("yolo")
	assert.Equal(t, StateUnavailable, st.State)
	assert.Empty(t, r.ListAvailable())
}

func TestSelfAudit(t *testing.T) {
	r := testRegistry()

	// Empty registry with no supplied plugins passes.
	assert.NoError(t, r.SelfAudit(nil, true))

	// Supplied but unregistered plugin fails in strict mode.
	assert.Error(t, r.SelfAudit([]string{"ocr"}, true))

	// Same violation is only logged when not strict.
	assert.NoError(t, r.SelfAudit([]string{"ocr"}, false))

	r.Register("ocr", "", "1.0", &stubPlugin{meta: plugin.Metadata{Name: "ocr"}})
	assert.NoError(t, r.SelfAudit([]string{"ocr"}, true))
}
