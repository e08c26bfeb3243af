package jobs

import "errors"

var (
	// ErrJobNotFound is returned when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned by Create when the id is already present.
	ErrJobExists = errors.New("job already exists")

	// ErrNotCancellable is returned when cancellation is requested against
	// a job that is not QUEUED. Running or terminal jobs are never
	// interrupted.
	ErrNotCancellable = errors.New("job is not in a cancellable state")

	// ErrNotQueued is returned by Claim when the job already left QUEUED.
	ErrNotQueued = errors.New("job is not queued")

	// ErrNotDone is returned by result lookups before the job reaches DONE.
	ErrNotDone = errors.New("job has not completed successfully")

	// ErrInvalidLimit is returned by List when limit is outside 1..200.
	ErrInvalidLimit = errors.New("limit must be between 1 and 200")
)
