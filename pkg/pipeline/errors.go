package pipeline

import "fmt"

// InvalidDescriptorError reports a pipeline that failed structural
// validation.
type InvalidDescriptorError struct {
	ID       string
	Problems []string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid pipeline %s: %v", e.ID, e.Problems)
}
