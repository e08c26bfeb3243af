package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/forgesyte/forgesyte/pkg/execution"
)

// Handler processes one method call.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// Dispatcher routes JSON-RPC messages to registered method handlers.
type Dispatcher struct {
	methods map[string]Handler
	logger  *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		methods: make(map[string]Handler),
		logger:  slog.Default(),
	}
}

// Register binds a method name to its handler, replacing any previous
// binding.
func (d *Dispatcher) Register(method string, h Handler) {
	d.methods[method] = h
}

// Handle processes one raw message body, which may be a single request or a
// batch array. The returned bytes are the serialized response, or nil when
// the input consisted only of notifications.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) ([]byte, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return d.handleBatch(ctx, trimmed)
	}

	resp := d.dispatchRaw(ctx, body)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

// handleBatch processes a JSON array of requests. Handlers run concurrently;
// responses come back in input order with notification slots omitted. An
// empty array yields an empty array.
func (d *Dispatcher) handleBatch(ctx context.Context, body []byte) ([]byte, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return json.Marshal(errorResponse(nil, CodeParseError, "malformed batch: "+err.Error(), nil))
	}
	if len(raws) == 0 {
		return []byte("[]"), nil
	}

	responses := make([]*Response, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range raws {
		g.Go(func() error {
			responses[i] = d.dispatchRaw(gctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Response, 0, len(responses))
	for _, r := range responses {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return json.Marshal(out)
}

// dispatchRaw parses and executes one request. The returned response is nil
// for notifications.
func (d *Dispatcher) dispatchRaw(ctx context.Context, raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, CodeParseError, "malformed request: "+err.Error(), nil)
	}

	if req.JSONRPC == "1.0" {
		d.logger.Warn("Deprecated JSON-RPC 1.0 request rewritten to 2.0", "method", req.Method)
		req.JSONRPC = "2.0"
		if req.Notification() {
			id, _ := json.Marshal(uuid.New().String())
			req.ID = id
		}
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, CodeInvalidRequest,
			"unsupported jsonrpc version "+req.JSONRPC, nil)
	}
	if req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "method is required", nil)
	}

	handler, ok := d.methods[req.Method]
	if !ok {
		if req.Notification() {
			d.logger.Warn("Notification for unregistered method dropped", "method", req.Method)
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	params := req.Params
	if params == nil {
		params = map[string]any{}
	}

	result, err := handler(ctx, params)
	if req.Notification() {
		if err != nil {
			d.logger.Warn("Notification handler failed", "method", req.Method, "error", err)
		}
		return nil
	}
	if err != nil {
		return errorResponse(req.ID, errorCode(err), err.Error(), errorData(err))
	}
	return successResponse(req.ID, result)
}

// errorCode maps handler errors to JSON-RPC codes. Transport errors carry
// their own code; parameter-shaped faults become InvalidParams; everything
// else is InternalError.
func errorCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code
	}
	var ve *execution.ValidationError
	var ie *execution.InputValidationError
	if errors.As(err, &ve) || errors.As(err, &ie) {
		return CodeInvalidParams
	}
	return CodeInternalError
}

func errorData(err error) any {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Data
	}
	return nil
}
