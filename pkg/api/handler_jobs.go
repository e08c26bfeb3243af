package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/forgesyte/forgesyte/pkg/jobs"
)

const defaultListLimit = 50

// handleGetJob fetches one job record.
func (s *Server) handleGetJob(c *echo.Context) error {
	job, err := s.deps.Analysis.GetJob(c.Param("id"))
	if err != nil {
		return c.JSON(mapServiceError(err), errorJSON(err))
	}
	return c.JSON(http.StatusOK, job)
}

// handleListJobs lists jobs with optional status and plugin filters.
func (s *Server) handleListJobs(c *echo.Context) error {
	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{
				"error": "limit must be an integer",
			})
		}
		limit = n
	}

	list, err := s.deps.Analysis.ListJobs(jobs.Status(c.QueryParam("status")), c.QueryParam("plugin"), limit)
	if err != nil {
		return c.JSON(mapServiceError(err), errorJSON(err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"jobs":  list,
		"count": len(list),
	})
}

// handleCancelJob cancels a QUEUED job.
func (s *Server) handleCancelJob(c *echo.Context) error {
	id := c.Param("id")
	if _, err := s.deps.Analysis.CancelJob(id); err != nil {
		return c.JSON(mapServiceError(err), errorJSON(err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "cancelled",
		"job_id": id,
	})
}
