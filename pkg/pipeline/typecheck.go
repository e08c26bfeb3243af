package pipeline

import (
	"fmt"

	"github.com/forgesyte/forgesyte/pkg/plugin"
)

// CheckTypes verifies, for every edge, that the producer's output types
// intersect the consumer's input types. Types are compared as opaque
// strings. Nodes absent from the metadata mapping are skipped. Returns a
// list of diagnostics; empty means compatible.
func CheckTypes(p *Pipeline, meta map[string]plugin.ToolMetadata) []string {
	var problems []string
	for _, e := range p.Edges {
		producer, ok := meta[e.From]
		if !ok {
			continue
		}
		consumer, ok := meta[e.To]
		if !ok {
			continue
		}
		if !intersects(producer.OutputTypes, consumer.InputTypes) {
			problems = append(problems, fmt.Sprintf(
				"type mismatch on edge %s -> %s: %v does not intersect %v",
				e.From, e.To, producer.OutputTypes, consumer.InputTypes))
		}
	}
	return problems
}

func intersects(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if set[t] {
			return true
		}
	}
	return false
}
