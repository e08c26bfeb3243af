package registry

import "fmt"

// NotFoundError reports a lookup for a plugin name that was never registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plugin '%s' not found", e.Name)
}
