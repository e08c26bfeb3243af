package execution

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/forgesyte/forgesyte/pkg/jobs"
)

// ImageBase64Field is the designated arguments field carrying an inline
// base64 artifact.
const ImageBase64Field = "image_base64"

// ImageFetcher acquires remote artifacts. Implemented by fetch.Fetcher.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// JobSubmitter schedules pool-managed background jobs. Implemented by the
// worker pool.
type JobSubmitter interface {
	SubmitJob(ctx context.Context, image []byte, pluginName string, options map[string]any, device string, notify chan<- *jobs.Job) (string, error)
}

// AnalysisExecutionService is the outermost, API-facing chain layer. It
// performs only shape validation and source resolution; everything else is
// delegated downward.
type AnalysisExecutionService struct {
	jobsvc  *JobExecutionService
	pool    JobSubmitter
	fetcher ImageFetcher
}

// NewAnalysisExecutionService creates the API-facing layer.
func NewAnalysisExecutionService(jobsvc *JobExecutionService, pool JobSubmitter, fetcher ImageFetcher) *AnalysisExecutionService {
	return &AnalysisExecutionService{jobsvc: jobsvc, pool: pool, fetcher: fetcher}
}

// SubmitAnalysis creates a job and awaits its completion, returning the
// terminal record.
func (s *AnalysisExecutionService) SubmitAnalysis(ctx context.Context, pluginName, toolName string, args map[string]any) (*jobs.Job, error) {
	if err := validateShape(pluginName); err != nil {
		return nil, err
	}
	jobID, err := s.jobsvc.CreateJob(pluginName, toolName, args)
	if err != nil {
		return nil, err
	}
	return s.jobsvc.RunJob(ctx, jobID)
}

// SubmitAnalysisAsync creates a pool-managed job and returns its id
// immediately; the caller polls or subscribes for completion.
func (s *AnalysisExecutionService) SubmitAnalysisAsync(ctx context.Context, pluginName string, image []byte, options map[string]any, device string, notify chan<- *jobs.Job) (string, error) {
	if err := validateShape(pluginName); err != nil {
		return "", err
	}
	return s.pool.SubmitJob(ctx, image, pluginName, options, device, notify)
}

// GetJob is a thin wrapper over the job layer.
func (s *AnalysisExecutionService) GetJob(jobID string) (*jobs.Job, error) {
	return s.jobsvc.GetJob(jobID)
}

// ListJobs is a thin wrapper over the job layer.
func (s *AnalysisExecutionService) ListJobs(status jobs.Status, pluginName string, limit int) ([]*jobs.Job, error) {
	return s.jobsvc.ListJobs(status, pluginName, limit)
}

// CancelJob is a thin wrapper over the job layer.
func (s *AnalysisExecutionService) CancelJob(jobID string) (*jobs.Job, error) {
	return s.jobsvc.CancelJob(jobID)
}

// ResolveImage locates the artifact bytes for a request. Source precedence:
// uploaded file, then URL, then base64 in the designated arguments field,
// then base64 in the raw request body. First non-empty wins.
func (s *AnalysisExecutionService) ResolveImage(ctx context.Context, upload []byte, imageURL string, args map[string]any, rawBody []byte) ([]byte, error) {
	if len(upload) > 0 {
		return upload, nil
	}
	if imageURL != "" {
		return s.fetcher.Fetch(ctx, imageURL)
	}
	if args != nil {
		if b64, ok := args[ImageBase64Field].(string); ok && b64 != "" {
			data, err := DecodeBase64Image(b64)
			if err != nil {
				return nil, NewValidationError(ImageBase64Field, err.Error())
			}
			return data, nil
		}
	}
	if len(rawBody) > 0 {
		data, err := DecodeBase64Image(strings.TrimSpace(string(rawBody)))
		if err != nil {
			return nil, NewValidationError("body", err.Error())
		}
		return data, nil
	}
	return nil, NewValidationError("image", "no image source supplied")
}

// DecodeBase64Image decodes a base64 payload, accepting both plain and
// data-URL ("data:image/png;base64,...") forms.
func DecodeBase64Image(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ","); idx >= 0 {
			s = s[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, NewValidationError("image", "decoded image is empty")
	}
	return data, nil
}

// validateShape enforces the outer layer's only responsibility: plugin name
// is a non-empty string. Arguments are statically a mapping; nil is treated
// as empty downstream.
func validateShape(pluginName string) error {
	if pluginName == "" {
		return NewValidationError("plugin", "plugin name is required")
	}
	return nil
}
