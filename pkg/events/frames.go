package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/forgesyte/forgesyte/pkg/execution"
)

// ToolInvoker executes one plugin tool. Implemented by the plugin execution
// layer; frame handlers never reach a plugin any other way.
type ToolInvoker interface {
	ExecuteTool(ctx context.Context, pluginName, toolName string, args map[string]any, mimeType string) (map[string]any, error)
}

// ImageFetcher acquires frames submitted as URLs.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// clientMessage is the inbound envelope. Fields beyond Type are populated
// per message type.
type clientMessage struct {
	Type    string         `json:"type"`
	FrameID string         `json:"frame_id,omitempty"`
	Image   string         `json:"image,omitempty"`
	Plugin  string         `json:"plugin,omitempty"`
	Topic   string         `json:"topic,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// FrameHandler owns the real-time analysis loop on one streaming
// connection: it reads frames, runs them through the execution chain
// synchronously, and answers on the same channel.
type FrameHandler struct {
	manager *ConnectionManager
	invoker ToolInvoker
	fetcher ImageFetcher
	logger  *slog.Logger
}

// NewFrameHandler creates the streaming frame loop.
func NewFrameHandler(manager *ConnectionManager, invoker ToolInvoker, fetcher ImageFetcher) *FrameHandler {
	return &FrameHandler{
		manager: manager,
		invoker: invoker,
		fetcher: fetcher,
		logger:  slog.Default(),
	}
}

// HandleConnection services one accepted websocket until the client goes
// away. defaultPlugin selects the plugin for frames that name none; topics
// lists subscriptions applied before the first read (the per-job URL uses
// this to auto-subscribe). Disconnecting cancels the in-flight frame
// handler at its next suspension point.
func (h *FrameHandler) HandleConnection(ctx context.Context, ws *websocket.Conn, defaultPlugin string, topics ...string) {
	clientID := uuid.New().String()
	conn := &wsAdapter{ws: ws}
	if !h.manager.Connect(conn, clientID) {
		return
	}
	defer h.manager.Disconnect(clientID)

	for _, topic := range topics {
		h.manager.Subscribe(clientID, topic)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	_ = h.manager.SendPersonal(clientID, Message{
		Type:      "connected",
		Payload:   map[string]any{"client_id": clientID, "plugin": defaultPlugin},
		Timestamp: time.Now(),
	})

	plugin := defaultPlugin
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			h.logger.Debug("Streaming read ended", "client_id", clientID, "error", err)
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = h.manager.SendError(clientID, "malformed message: "+err.Error(), "")
			continue
		}

		switch msg.Type {
		case "frame":
			h.handleFrame(ctx, clientID, plugin, msg)
		case "subscribe":
			if msg.Topic != "" {
				h.manager.Subscribe(clientID, msg.Topic)
			}
		case "switch_plugin":
			if msg.Plugin == "" {
				_ = h.manager.SendError(clientID, "switch_plugin requires a plugin name", "")
				continue
			}
			plugin = msg.Plugin
			_ = h.manager.SendPersonal(clientID, Message{
				Type:      "plugin_switched",
				Payload:   map[string]any{"plugin": plugin},
				Timestamp: time.Now(),
			})
		case "ping":
			_ = h.manager.SendPersonal(clientID, Message{Type: "pong", Timestamp: time.Now()})
		default:
			_ = h.manager.SendError(clientID, "unknown message type "+msg.Type, "")
		}
	}
}

// handleFrame resolves the frame bytes and runs the plugin synchronously on
// this connection's handler, not through the job store.
func (h *FrameHandler) handleFrame(ctx context.Context, clientID, defaultPlugin string, msg clientMessage) {
	pluginName := msg.Plugin
	if pluginName == "" {
		pluginName = defaultPlugin
	}
	if pluginName == "" {
		_ = h.manager.SendError(clientID, "no plugin selected", msg.FrameID)
		return
	}
	if msg.Image == "" {
		_ = h.manager.SendError(clientID, "frame is missing image data", msg.FrameID)
		return
	}

	data, err := h.resolveFrame(ctx, msg.Image)
	if err != nil {
		_ = h.manager.SendError(clientID, err.Error(), msg.FrameID)
		return
	}

	args := make(map[string]any, len(msg.Options)+1)
	for k, v := range msg.Options {
		args[k] = v
	}
	args["image"] = data
	tool, _ := msg.Options["tool"].(string)

	started := time.Now()
	result, err := h.invoker.ExecuteTool(ctx, pluginName, tool, args, "")
	if err != nil {
		_ = h.manager.SendError(clientID, err.Error(), msg.FrameID)
		return
	}
	_ = h.manager.SendFrameResult(clientID, msg.FrameID, pluginName, result,
		time.Since(started).Milliseconds())
}

func (h *FrameHandler) resolveFrame(ctx context.Context, image string) ([]byte, error) {
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return h.fetcher.Fetch(ctx, image)
	}
	return execution.DecodeBase64Image(image)
}

// wsAdapter bridges a coder/websocket connection to the manager's Conn.
type wsAdapter struct {
	ws *websocket.Conn
}

func (a *wsAdapter) Write(ctx context.Context, data []byte) error {
	return a.ws.Write(ctx, websocket.MessageText, data)
}

func (a *wsAdapter) Close() error {
	return a.ws.Close(websocket.StatusNormalClosure, "")
}
