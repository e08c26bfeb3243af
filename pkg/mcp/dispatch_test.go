package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgesyte/forgesyte/pkg/execution"
)

func echoDispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Register("echo", func(_ context.Context, params map[string]any) (map[string]any, error) {
		return params, nil
	})
	d.Register("boom", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("kaput")
	})
	return d
}

func handleOne(t *testing.T, d *Dispatcher, body string) Response {
	t.Helper()
	out, err := d.Handle(context.Background(), []byte(body))
	require.NoError(t, err)
	require.NotNil(t, out)
	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp
}

func TestDispatchSuccess(t *testing.T) {
	resp := handleOne(t, echoDispatcher(),
		`{"jsonrpc":"2.0","method":"echo","params":{"k":"v"},"id":1}`)
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "v", resp.Result["k"])
	assert.Equal(t, json.RawMessage("1"), resp.ID)
}

func TestDispatchErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"parse error", `{"jsonrpc":"2.0",`, CodeParseError},
		{"wrong version", `{"jsonrpc":"3.0","method":"echo","id":1}`, CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"nope","id":1}`, CodeMethodNotFound},
		{"handler failure", `{"jsonrpc":"2.0","method":"boom","id":1}`, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := handleOne(t, echoDispatcher(), tt.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestDispatchErrorCodeMapping(t *testing.T) {
	d := NewDispatcher()
	d.Register("badparams", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, execution.NewValidationError("image", "required")
	})
	d.Register("custom", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, NewTransportError(-32000, "server overloaded")
	})

	resp := handleOne(t, d, `{"jsonrpc":"2.0","method":"badparams","id":1}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = handleOne(t, d, `{"jsonrpc":"2.0","method":"custom","id":2}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
}

func TestNotificationEmitsNoResponse(t *testing.T) {
	out, err := echoDispatcher().Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"echo","params":{}}`))
	require.NoError(t, err)
	assert.Nil(t, out)

	// Failing notification handlers are swallowed too.
	out, err = echoDispatcher().Handle(context.Background(),
		[]byte(`{"jsonrpc":"2.0","method":"boom"}`))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestBatchKeepsInputOrder(t *testing.T) {
	body := `[
		{"jsonrpc":"2.0","method":"echo","params":{"n":1},"id":"first"},
		{"jsonrpc":"2.0","method":"echo","params":{"n":2}},
		{"jsonrpc":"2.0","method":"echo","params":{"n":3},"id":"third"}
	]`
	out, err := echoDispatcher().Handle(context.Background(), []byte(body))
	require.NoError(t, err)

	var resps []Response
	require.NoError(t, json.Unmarshal(out, &resps))
	// The notification in the middle is omitted; order follows the input.
	require.Len(t, resps, 2)
	assert.Equal(t, json.RawMessage(`"first"`), resps[0].ID)
	assert.Equal(t, json.RawMessage(`"third"`), resps[1].ID)
	assert.Equal(t, float64(1), resps[0].Result["n"])
	assert.Equal(t, float64(3), resps[1].Result["n"])
}

func TestEmptyBatch(t *testing.T) {
	out, err := echoDispatcher().Handle(context.Background(), []byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestLegacyFallbackRewritesVersionAndID(t *testing.T) {
	resp := handleOne(t, echoDispatcher(), `{"jsonrpc":"1.0","method":"echo","params":{"k":"v"}}`)
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Nil(t, resp.Error)
	// The auto-assigned id is a non-empty string.
	var id string
	require.NoError(t, json.Unmarshal(resp.ID, &id))
	assert.NotEmpty(t, id)
}
