package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/forgesyte/forgesyte/pkg/registry"
)

// handleListPlugins lists every registered plugin with state and metrics.
func (s *Server) handleListPlugins(c *echo.Context) error {
	list := s.deps.Registry.ListAll()
	return c.JSON(http.StatusOK, map[string]any{
		"plugins": list,
		"count":   len(list),
	})
}

// handleGetPlugin fetches one plugin's status.
func (s *Server) handleGetPlugin(c *echo.Context) error {
	name := c.Param("name")
	status, ok := s.deps.Registry.Status(name)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]any{
			"error": "plugin '" + name + "' not found",
		})
	}
	return c.JSON(http.StatusOK, status)
}

// handlePluginManifest returns the cached manifest entry for one plugin.
// Registered-but-unavailable plugins yield 503; unknown names yield 404.
func (s *Server) handlePluginManifest(c *echo.Context) error {
	name := c.Param("name")
	if entry, ok := s.deps.Manifest.PluginManifest(name); ok {
		return c.JSON(http.StatusOK, entry)
	}
	if _, ok := s.deps.Registry.Status(name); ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"error": "plugin '" + name + "' is not available",
		})
	}
	return c.JSON(http.StatusNotFound, map[string]any{
		"error": "plugin '" + name + "' not found",
	})
}

// handleReloadPlugin re-runs one plugin's init step.
func (s *Server) handleReloadPlugin(c *echo.Context) error {
	name := c.Param("name")
	if err := s.deps.Registry.Reload(name); err != nil {
		var nf *registry.NotFoundError
		if errors.As(err, &nf) {
			return c.JSON(http.StatusNotFound, errorJSON(err))
		}
		return c.JSON(http.StatusInternalServerError, errorJSON(err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "reloaded",
		"plugin": name,
	})
}

// handleReloadAll re-runs init for every registered plugin, reporting the
// per-plugin outcome.
func (s *Server) handleReloadAll(c *echo.Context) error {
	results := map[string]string{}
	for _, status := range s.deps.Registry.ListAll() {
		if err := s.deps.Registry.Reload(status.Name); err != nil {
			results[status.Name] = err.Error()
		} else {
			results[status.Name] = "reloaded"
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}
