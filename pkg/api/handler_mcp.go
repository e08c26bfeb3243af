package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/forgesyte/forgesyte/pkg/version"
)

// handleMCP is the JSON-RPC 2.0 endpoint. Notifications get 204; bodies that
// are not JSON at all get 400; everything else is answered with the
// serialized response, including protocol-level errors.
func (s *Server) handleMCP(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON(err))
	}
	if len(body) == 0 || !json.Valid(body) {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error": "request body is not valid JSON",
		})
	}

	resp, err := s.deps.Dispatcher.Handle(c.Request().Context(), body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorJSON(err))
	}
	if resp == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSONBlob(http.StatusOK, resp)
}

// handleMCPManifest serves the MCP discovery manifest.
func (s *Server) handleMCPManifest(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Manifest.Build())
}

// handleGeminiExtension serves the companion discovery descriptor.
func (s *Server) handleGeminiExtension(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"name":        version.AppName,
		"version":     version.Semver,
		"description": "Vision analysis tools over MCP",
		"endpoints": map[string]any{
			"mcp":      "/v1/mcp",
			"manifest": "/.well-known/mcp-manifest",
		},
	})
}
