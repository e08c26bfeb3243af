// Package events delivers frame results and job progress to connected
// streaming clients, and hosts the real-time frame analysis loop.
package events

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected reports a send to a client id with no active connection.
var ErrNotConnected = errors.New("client not connected")

// Message is the envelope every streaming payload travels in.
type Message struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress is the payload broadcast on a job's topic while it advances.
type Progress struct {
	JobID          string  `json:"job_id"`
	CurrentFrame   int     `json:"current_frame"`
	TotalFrames    int     `json:"total_frames"`
	Percent        float64 `json:"percent"`
	CurrentTool    string  `json:"current_tool,omitempty"`
	ToolsTotal     int     `json:"tools_total,omitempty"`
	ToolsCompleted int     `json:"tools_completed,omitempty"`
}

// JobTopic names the subscription topic carrying one job's progress.
func JobTopic(jobID string) string { return "job:" + jobID }

// MessageDeliveryError reports a failed send to one client.
type MessageDeliveryError struct {
	ClientID string
	Err      error
}

func (e *MessageDeliveryError) Error() string {
	return fmt.Sprintf("delivery to client %s failed: %v", e.ClientID, e.Err)
}

func (e *MessageDeliveryError) Unwrap() error { return e.Err }
