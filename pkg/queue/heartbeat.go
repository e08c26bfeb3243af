package queue

import (
	"sync"
	"time"
)

// staleAfter is how long without a beat before the monitor reports dead.
const staleAfter = 30 * time.Second

// HeartbeatMonitor tracks liveness of the processing path. Components beat
// it as they make progress; the health endpoint reads the snapshot.
type HeartbeatMonitor struct {
	mu       sync.Mutex
	lastBeat time.Time
	now      func() time.Time
}

// NewHeartbeatMonitor creates a monitor whose initial beat is now, so a
// freshly started process reports alive.
func NewHeartbeatMonitor() *HeartbeatMonitor {
	m := &HeartbeatMonitor{now: time.Now}
	m.lastBeat = m.now()
	return m
}

// Beat records liveness.
func (m *HeartbeatMonitor) Beat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBeat = m.now()
}

// Snapshot reports whether the path is alive and when it last beat.
func (m *HeartbeatMonitor) Snapshot() (alive bool, lastBeat time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastBeat) < staleAfter, m.lastBeat
}
