package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/forgesyte/forgesyte/pkg/execution"
	"github.com/forgesyte/forgesyte/pkg/pipeline"
)

// videoPipelineRequest is the body of POST /v1/video/pipeline.
type videoPipelineRequest struct {
	Plugin  string         `json:"plugin"`
	Tools   []string       `json:"tools"`
	Payload map[string]any `json:"payload"`
}

// handleVideoPipeline runs a single-plugin linear tool sequence.
func (s *Server) handleVideoPipeline(c *echo.Context) error {
	var req videoPipelineRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error": "request body is not valid JSON",
		})
	}

	result, err := s.deps.Video.Run(c.Request().Context(), req.Plugin, req.Tools, req.Payload)
	if err != nil {
		return c.JSON(mapServiceError(err), errorJSON(err))
	}
	return c.JSON(http.StatusOK, result)
}

// handleListPipelines lists the loaded pipeline descriptors.
func (s *Server) handleListPipelines(c *echo.Context) error {
	list := s.deps.Pipelines.List()
	return c.JSON(http.StatusOK, map[string]any{
		"pipelines": list,
		"count":     len(list),
	})
}

// handleRunPipeline executes one loaded pipeline against the request body
// payload. An unknown pipeline id is a 404, per the registry's
// absent-is-not-an-error contract.
func (s *Server) handleRunPipeline(c *echo.Context) error {
	id := c.Param("id")
	p, ok := s.deps.Pipelines.Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]any{
			"error": "pipeline '" + id + "' not found",
		})
	}

	input := map[string]any{}
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error": "request body is not valid JSON",
		})
	}

	result, err := s.deps.PipelineExec.Run(c.Request().Context(), p, input)
	if err != nil {
		var ne *pipeline.NodeError
		switch {
		case errors.As(err, &ne):
			if errors.Is(ne.Err, execution.ErrPluginNotFound) {
				return c.JSON(http.StatusNotFound, errorJSON(err))
			}
			return c.JSON(http.StatusInternalServerError, errorJSON(err))
		default:
			return c.JSON(mapServiceError(err), errorJSON(err))
		}
	}
	return c.JSON(http.StatusOK, result)
}
