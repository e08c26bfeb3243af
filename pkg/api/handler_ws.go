package api

import (
	"github.com/coder/websocket"
	"github.com/labstack/echo/v5"

	"github.com/forgesyte/forgesyte/pkg/events"
)

// handleStream upgrades the connection and services the real-time frame
// loop. The plugin query parameter selects the default plugin for frames
// that name none.
func (s *Server) handleStream(c *echo.Context) error {
	ws, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return err
	}
	s.deps.Frames.HandleConnection(c.Request().Context(), ws, c.QueryParam("plugin"))
	return nil
}

// handleJobSocket upgrades the connection and auto-subscribes it to the
// addressed job's progress topic.
func (s *Server) handleJobSocket(c *echo.Context) error {
	jobID := c.Param("job_id")
	ws, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return err
	}
	s.deps.Frames.HandleConnection(c.Request().Context(), ws, "", events.JobTopic(jobID))
	return nil
}
