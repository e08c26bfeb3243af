package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgesyte/forgesyte/pkg/jobs"
	"github.com/forgesyte/forgesyte/pkg/plugin"
)

func newJobService(p *fakePlugin) (*JobExecutionService, *jobs.Store) {
	src := newFakeSource(p)
	store := jobs.NewStore(0)
	return NewJobExecutionService(store, NewPluginExecutionService(src), src), store
}

func TestCreateJobResolvesDefaultTool(t *testing.T) {
	p := &fakePlugin{meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}}}
	svc, store := newJobService(p)

	id, err := svc.CreateJob("ocr", "", map[string]any{"image": []byte{1}})
	require.NoError(t, err)

	job, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusQueued, job.Status)
	assert.Equal(t, "default", job.Tool)
	assert.Equal(t, jobs.TrackDirect, job.Track)
}

func TestCreateJobRejections(t *testing.T) {
	p := &fakePlugin{meta: plugin.Metadata{Name: "multi", Tools: []plugin.ToolSpec{{Name: "a"}, {Name: "b"}}}}
	svc, _ := newJobService(p)

	_, err := svc.CreateJob("", "", nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = svc.CreateJob("ghost", "", nil)
	assert.ErrorIs(t, err, ErrPluginNotFound)

	_, err = svc.CreateJob("multi", "", nil)
	require.ErrorAs(t, err, &ve)
}

func TestRunJobSuccess(t *testing.T) {
	p := &fakePlugin{
		meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}},
		run: func(context.Context, string, map[string]any) (map[string]any, error) {
			return map[string]any{"text": "hi"}, nil
		},
	}
	svc, _ := newJobService(p)

	id, err := svc.CreateJob("ocr", "", map[string]any{"image": []byte{1}})
	require.NoError(t, err)

	final, err := svc.RunJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDone, final.Status)
	assert.Equal(t, 1.0, final.Progress)
	assert.Equal(t, "hi", final.Result["text"])
	assert.Contains(t, final.Result, "processing_time_ms")
	require.NotNil(t, final.CompletedAt)
}

func TestRunJobPluginFailureRecordsError(t *testing.T) {
	p := &fakePlugin{
		meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}},
		run: func(context.Context, string, map[string]any) (map[string]any, error) {
			return nil, errors.New("model exploded")
		},
	}
	svc, _ := newJobService(p)

	id, err := svc.CreateJob("ocr", "", map[string]any{"image": []byte{1}})
	require.NoError(t, err)

	// A failing tool is a recorded outcome, not an operation error.
	final, err := svc.RunJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, final.Status)
	assert.Contains(t, final.Error, "model exploded")
}

func TestRunJobOnlyQueued(t *testing.T) {
	p := &fakePlugin{meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}}}
	svc, _ := newJobService(p)

	id, err := svc.CreateJob("ocr", "", map[string]any{"image": []byte{1}})
	require.NoError(t, err)
	_, err = svc.RunJob(context.Background(), id)
	require.NoError(t, err)

	_, err = svc.RunJob(context.Background(), id)
	var je *JobExecutionError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, "claim", je.Phase)

	_, err = svc.RunJob(context.Background(), "ghost")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestCancelJob(t *testing.T) {
	p := &fakePlugin{meta: plugin.Metadata{Name: "ocr", Tools: []plugin.ToolSpec{{Name: "default"}}}}
	svc, _ := newJobService(p)

	id, err := svc.CreateJob("ocr", "", map[string]any{"image": []byte{1}})
	require.NoError(t, err)

	final, err := svc.CancelJob(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusError, final.Status)
	assert.Equal(t, "Cancelled by user", final.Error)

	// Terminal jobs are no longer cancellable.
	_, err = svc.CancelJob(id)
	assert.ErrorIs(t, err, jobs.ErrNotCancellable)
}
