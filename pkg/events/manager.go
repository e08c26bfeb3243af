package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// writeTimeout bounds a single send so one stalled client cannot wedge a
// broadcast.
const writeTimeout = 5 * time.Second

// Conn is the channel surface the manager writes to. Implemented by the
// websocket adapter.
type Conn interface {
	Write(ctx context.Context, data []byte) error
	Close() error
}

// ConnectionManager tracks active streaming connections and topic
// subscriptions. One mutex serializes all table mutations; sends happen
// against a snapshot taken under the lock.
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[string]Conn
	topics      map[string]map[string]bool
	logger      *slog.Logger
	now         func() time.Time
}

// NewConnectionManager creates an empty manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]Conn),
		topics:      make(map[string]map[string]bool),
		logger:      slog.Default(),
		now:         time.Now,
	}
}

// Connect registers the channel under the client id. A nil channel is
// rejected and nothing is registered.
func (m *ConnectionManager) Connect(conn Conn, clientID string) bool {
	if conn == nil || clientID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[clientID] = conn
	m.logger.Info("Client connected", "client_id", clientID, "total", len(m.connections))
	return true
}

// Disconnect removes the client from the connection table and every
// subscription set. Idempotent.
func (m *ConnectionManager) Disconnect(clientID string) {
	m.mu.Lock()
	conn, ok := m.connections[clientID]
	delete(m.connections, clientID)
	for topic, subs := range m.topics {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(m.topics, topic)
		}
	}
	remaining := len(m.connections)
	m.mu.Unlock()

	if ok {
		_ = conn.Close()
		m.logger.Info("Client disconnected", "client_id", clientID, "total", remaining)
	}
}

// Subscribe adds the client to the topic's subscription set, creating the
// topic on first use. Double-subscribe is a no-op.
func (m *ConnectionManager) Subscribe(clientID, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.topics[topic]
	if !ok {
		subs = make(map[string]bool)
		m.topics[topic] = subs
	}
	subs[clientID] = true
}

// Unsubscribe removes the client from the topic's subscription set.
func (m *ConnectionManager) Unsubscribe(clientID, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.topics[topic]; ok {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(m.topics, topic)
		}
	}
}

// SendPersonal delivers one message on the client's channel. A failed
// delivery disconnects the client.
func (m *ConnectionManager) SendPersonal(clientID string, msg Message) error {
	m.mu.Lock()
	conn, ok := m.connections[clientID]
	m.mu.Unlock()
	if !ok {
		return &MessageDeliveryError{ClientID: clientID, Err: ErrNotConnected}
	}
	if err := m.send(conn, msg); err != nil {
		m.Disconnect(clientID)
		return &MessageDeliveryError{ClientID: clientID, Err: err}
	}
	return nil
}

// Broadcast delivers the message to every active connection, or to the
// topic's subscribers when topic is non-empty. The target set is snapshotted
// before sending; clients that fail mid-broadcast are disconnected after it
// completes.
func (m *ConnectionManager) Broadcast(msg Message, topic string) {
	m.mu.Lock()
	targets := make(map[string]Conn)
	if topic == "" {
		for id, conn := range m.connections {
			targets[id] = conn
		}
	} else {
		for id := range m.topics[topic] {
			if conn, ok := m.connections[id]; ok {
				targets[id] = conn
			}
		}
	}
	m.mu.Unlock()

	var failed []string
	for id, conn := range targets {
		if err := m.send(conn, msg); err != nil {
			m.logger.Warn("Broadcast delivery failed", "client_id", id, "error", err)
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		m.Disconnect(id)
	}
}

// SendFrameResult sends one frame's analysis result to the client.
func (m *ConnectionManager) SendFrameResult(clientID, frameID, pluginName string, result map[string]any, processingMs int64) error {
	return m.SendPersonal(clientID, Message{
		Type: "result",
		Payload: map[string]any{
			"frame_id":           frameID,
			"plugin":             pluginName,
			"result":             result,
			"processing_time_ms": processingMs,
		},
		Timestamp: m.now(),
	})
}

// SendError sends an error message to the client. frameID may be empty.
func (m *ConnectionManager) SendError(clientID, errorText, frameID string) error {
	return m.SendPersonal(clientID, Message{
		Type:      "error",
		Payload:   map[string]any{"error": errorText, "frame_id": frameID},
		Timestamp: m.now(),
	})
}

// BroadcastProgress fans a job's frame progress out to its topic.
func (m *ConnectionManager) BroadcastProgress(jobID string, currentFrame, totalFrames int) {
	percent := 0.0
	if totalFrames > 0 {
		percent = float64(currentFrame) / float64(totalFrames) * 100
	}
	m.Broadcast(Message{
		Type: "progress",
		Payload: Progress{
			JobID:        jobID,
			CurrentFrame: currentFrame,
			TotalFrames:  totalFrames,
			Percent:      percent,
		},
		Timestamp: m.now(),
	}, JobTopic(jobID))
}

// ReportToolProgress fans per-tool progress out to the job's topic. This is
// the progress hook the video sequence runner calls.
func (m *ConnectionManager) ReportToolProgress(jobID, currentTool string, toolsTotal, toolsCompleted int) {
	percent := 0.0
	if toolsTotal > 0 {
		percent = float64(toolsCompleted) / float64(toolsTotal) * 100
	}
	m.Broadcast(Message{
		Type: "progress",
		Payload: Progress{
			JobID:          jobID,
			Percent:        percent,
			CurrentTool:    currentTool,
			ToolsTotal:     toolsTotal,
			ToolsCompleted: toolsCompleted,
		},
		Timestamp: m.now(),
	}, JobTopic(jobID))
}

// ConnectionCount returns the number of active connections.
func (m *ConnectionManager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

func (m *ConnectionManager) send(conn Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, data)
}
