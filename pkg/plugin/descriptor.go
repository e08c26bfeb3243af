package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Descriptor is the on-disk JSON document describing a plugin that was
// configured but not compiled into this process. Descriptor-only plugins
// register as UNAVAILABLE so operators can see what is configured but not
// serving.
type Descriptor struct {
	Metadata
	Reason string `json:"unavailable_reason,omitempty"`
}

// LoadDescriptors reads every *.json file in dir as a plugin Descriptor.
// Unreadable or malformed files are skipped with an error entry in the
// returned slice's place; the caller decides severity.
func LoadDescriptors(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugins dir %s: %w", dir, err)
	}

	var descs []Descriptor
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read descriptor %s: %w", path, err)
		}
		var d Descriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
		}
		if d.Name == "" {
			return nil, fmt.Errorf("descriptor %s: name is required", path)
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// Unavailable is a placeholder instance for a descriptor-only plugin. Every
// tool invocation fails with the configured reason.
type Unavailable struct {
	meta   Metadata
	reason string
}

// NewUnavailable wraps a descriptor's metadata in a placeholder instance.
func NewUnavailable(meta Metadata, reason string) *Unavailable {
	if reason == "" {
		reason = "plugin binary not present in this process"
	}
	return &Unavailable{meta: meta, reason: reason}
}

func (u *Unavailable) Metadata() Metadata { return u.meta }

func (u *Unavailable) RunTool(_ context.Context, toolName string, _ map[string]any) (map[string]any, error) {
	return nil, fmt.Errorf("plugin %s is unavailable (%s): cannot run tool %s", u.meta.Name, u.reason, toolName)
}

// Reason returns why the plugin never became ready.
func (u *Unavailable) Reason() string { return u.reason }
