package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgesyte/forgesyte/pkg/fetch"
	"github.com/forgesyte/forgesyte/pkg/jobs"
	"github.com/forgesyte/forgesyte/pkg/plugin"
)

type fakeCatalog struct {
	metas      []plugin.Metadata
	generation uint64
}

func (f *fakeCatalog) AvailableMetadata() []plugin.Metadata { return f.metas }
func (f *fakeCatalog) Generation() uint64                   { return f.generation }

type capturingInvoker struct {
	plugin string
	tool   string
	args   map[string]any
	result map[string]any
	err    error
}

func (c *capturingInvoker) ExecuteTool(_ context.Context, pluginName, toolName string, args map[string]any, _ string) (map[string]any, error) {
	c.plugin = pluginName
	c.tool = toolName
	c.args = args
	if c.result == nil {
		c.result = map[string]any{}
	}
	return c.result, c.err
}

func testServer(t *testing.T) (*Server, *capturingInvoker, *jobs.Store) {
	t.Helper()
	catalog := &fakeCatalog{metas: []plugin.Metadata{
		{Name: "ocr", Description: "text extraction", Version: "1.0"},
	}}
	invoker := &capturingInvoker{}
	store := jobs.NewStore(0)
	srv, _ := NewServer(catalog, invoker, fetch.NewFetcher(time.Second, 1), store)
	return srv, invoker, store
}

func TestInitializeAndPing(t *testing.T) {
	srv, _, _ := testServer(t)

	result, err := srv.Initialize(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "forgesyte", info["name"])

	result, err = srv.Ping(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", result["status"])
}

func TestToolsList(t *testing.T) {
	srv, _, _ := testServer(t)

	result, err := srv.ToolsList(context.Background(), nil)
	require.NoError(t, err)
	tools := result["tools"].([]map[string]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "ocr", tools[0]["name"])

	schema := tools[0]["inputSchema"].(map[string]any)
	assert.Equal(t, []string{"image"}, schema["required"])
}

func TestToolsCallFetchesURLImage(t *testing.T) {
	pngBytes := []byte{0x89, 'P', 'N', 'G'}
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(pngBytes)
	}))
	defer remote.Close()

	srv, invoker, _ := testServer(t)
	invoker.result = map[string]any{"text": "hello"}

	result, err := srv.ToolsCall(context.Background(), map[string]any{
		"name":      "ocr",
		"arguments": map[string]any{"image": remote.URL + "/img.png"},
	})
	require.NoError(t, err)

	// The plugin received the fetched bytes, never the URL string.
	assert.Equal(t, "ocr", invoker.plugin)
	assert.Equal(t, pngBytes, invoker.args["image"])

	content := result["content"].([]map[string]any)
	require.Len(t, content, 1)
	assert.Equal(t, "text", content[0]["type"])
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(content[0]["text"].(string)), &payload))
	assert.Equal(t, "hello", payload["text"])
}

func TestToolsCallDecodesBase64(t *testing.T) {
	srv, invoker, _ := testServer(t)
	b64 := base64.StdEncoding.EncodeToString([]byte("pixels"))

	_, err := srv.ToolsCall(context.Background(), map[string]any{
		"name":      "forgesyte.ocr", // namespaced ids resolve too
		"arguments": map[string]any{"image": "data:image/png;base64," + b64},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), invoker.args["image"])
}

func TestToolsCallParamFaults(t *testing.T) {
	srv, _, _ := testServer(t)

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"missing name", map[string]any{"arguments": map[string]any{}}},
		{"unknown tool", map[string]any{"name": "ghost"}},
		{"missing image", map[string]any{"name": "ocr", "arguments": map[string]any{}}},
		{"bad base64", map[string]any{"name": "ocr", "arguments": map[string]any{"image": "!!"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.ToolsCall(context.Background(), tt.params)
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, CodeInvalidParams, te.Code)
		})
	}
}

func TestResources(t *testing.T) {
	srv, _, store := testServer(t)
	require.NoError(t, store.Create(&jobs.Job{ID: "j1", Status: jobs.StatusDone, Plugin: "ocr"}))

	result, err := srv.ResourcesList(context.Background(), nil)
	require.NoError(t, err)
	resources := result["resources"].([]map[string]any)
	require.Len(t, resources, 1)
	assert.Equal(t, "forgesyte://job/j1", resources[0]["uri"])
	assert.Nil(t, result["nextCursor"])

	read, err := srv.ResourcesRead(context.Background(), map[string]any{"uri": "forgesyte://job/j1"})
	require.NoError(t, err)
	contents := read["contents"].([]map[string]any)
	require.Len(t, contents, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(contents[0]["text"].(string)), &record))
	assert.Equal(t, "j1", record["id"])

	var te *TransportError
	_, err = srv.ResourcesRead(context.Background(), map[string]any{"uri": "forgesyte://job/ghost"})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeInvalidParams, te.Code)
	_, err = srv.ResourcesRead(context.Background(), map[string]any{"uri": "other://thing"})
	require.ErrorAs(t, err, &te)
}

func TestManifestCacheAndInvalidation(t *testing.T) {
	catalog := &fakeCatalog{metas: []plugin.Metadata{
		{Name: "ocr", Version: "1.0", Description: "text"},
	}}
	b := NewManifestBuilder(catalog, time.Hour)

	first := b.Build()
	tools := first["tools"].([]map[string]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "forgesyte.ocr", tools[0]["id"])

	// Within the TTL and same generation the cached mapping is returned.
	catalog.metas = append(catalog.metas, plugin.Metadata{Name: "detect", Version: "2.0"})
	assert.Len(t, b.Build()["tools"].([]map[string]any), 1)

	// A generation bump invalidates immediately.
	catalog.generation++
	assert.Len(t, b.Build()["tools"].([]map[string]any), 2)
}

func TestManifestSkipsInvalidMetadata(t *testing.T) {
	catalog := &fakeCatalog{metas: []plugin.Metadata{
		{Name: "good", Version: "1.0"},
		{Name: "noversion"}, // fails the metadata schema
	}}
	b := NewManifestBuilder(catalog, time.Hour)

	tools := b.Build()["tools"].([]map[string]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "good", tools[0]["name"])

	entry, ok := b.PluginManifest("good")
	require.True(t, ok)
	assert.Equal(t, "forgesyte.good", entry["id"])
	_, ok = b.PluginManifest("noversion")
	assert.False(t, ok)
}
