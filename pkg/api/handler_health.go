package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/forgesyte/forgesyte/pkg/version"
)

// handleHealth is the coarse liveness endpoint.
func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"plugins_loaded": s.deps.Registry.Len(),
		"version":        version.Semver,
		"pool":           s.deps.Pool.Health(),
	})
}

// handleWorkerHealth reports liveness of the video processing path.
func (s *Server) handleWorkerHealth(c *echo.Context) error {
	alive, lastBeat := s.deps.Heartbeat.Snapshot()
	return c.JSON(http.StatusOK, map[string]any{
		"alive":          alive,
		"last_heartbeat": float64(lastBeat.UnixNano()) / 1e9,
	})
}
