package api

import (
	"errors"
	"net/http"

	"github.com/forgesyte/forgesyte/pkg/execution"
	"github.com/forgesyte/forgesyte/pkg/fetch"
	"github.com/forgesyte/forgesyte/pkg/jobs"
)

// mapServiceError translates chain and store errors to HTTP status codes.
// Anything unrecognized is an internal error.
func mapServiceError(err error) int {
	var ve *execution.ValidationError
	var ive *execution.InputValidationError
	switch {
	case errors.As(err, &ve), errors.As(err, &ive):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrNotCancellable), errors.Is(err, jobs.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, execution.ErrPluginNotFound):
		return http.StatusNotFound
	case isExternal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isExternal(err error) bool {
	var ee *fetch.ExternalServiceError
	return errors.As(err, &ee)
}

func errorJSON(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
