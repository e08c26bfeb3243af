package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/forgesyte/forgesyte/pkg/registry"
)

// DefaultPlugin is the plugin used when the analyze request names none.
const DefaultPlugin = "ocr"

// handleAnalyze accepts an image (uploaded file, image_url query, or base64
// body), schedules a background job, and returns its id immediately.
func (s *Server) handleAnalyze(c *echo.Context) error {
	pluginName := c.QueryParam("plugin")
	if pluginName == "" {
		pluginName = DefaultPlugin
	}

	if status, ok := s.deps.Registry.Status(pluginName); ok {
		switch status.State {
		case registry.StateFailed, registry.StateUnavailable:
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"error": "plugin " + pluginName + " is not initialized",
				"state": status.State,
			})
		}
	}

	options := map[string]any{}
	if raw := c.QueryParam("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &options); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{
				"error": "options is not valid JSON: " + err.Error(),
			})
		}
	}

	upload, rawBody, err := readImageBody(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON(err))
	}

	ctx := c.Request().Context()
	image, err := s.deps.Analysis.ResolveImage(ctx, upload, c.QueryParam("image_url"), options, rawBody)
	if err != nil {
		return c.JSON(mapServiceError(err), errorJSON(err))
	}

	jobID, err := s.deps.Analysis.SubmitAnalysisAsync(ctx, pluginName, image, options, c.QueryParam("device"), nil)
	if err != nil {
		return c.JSON(mapServiceError(err), errorJSON(err))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"job_id": jobID,
		"status": "queued",
		"plugin": pluginName,
	})
}

// readImageBody extracts an uploaded file when the request is multipart,
// otherwise the raw body bytes.
func readImageBody(c *echo.Context) (upload, rawBody []byte, err error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			fh, err = c.FormFile("image")
			if err != nil {
				return nil, nil, nil
			}
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, nil, err
		}
		return data, nil, nil
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, nil, err
	}
	return nil, body, nil
}
