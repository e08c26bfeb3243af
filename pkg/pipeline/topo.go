package pipeline

import (
	"errors"
	"sort"
)

// ErrNotAcyclic is returned when ordering cannot consume every node.
var ErrNotAcyclic = errors.New("pipeline graph is not acyclic")

// TopoOrder returns the node ids in topological order using Kahn's
// algorithm. Ties break lexicographically so one run is deterministic;
// callers rely only on predecessors preceding successors.
func TopoOrder(p *Pipeline) ([]string, error) {
	indegree := make(map[string]int, len(p.Nodes))
	adj := make(map[string][]string, len(p.Nodes))
	for _, n := range p.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range p.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		indegree[e.To]++
	}

	var frontier []string
	for id, d := range indegree {
		if d == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Strings(frontier)

	order := make([]string, 0, len(p.Nodes))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		var released []string
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				released = append(released, next)
			}
		}
		sort.Strings(released)
		frontier = append(frontier, released...)
	}

	if len(order) != len(p.Nodes) {
		return nil, ErrNotAcyclic
	}
	return order, nil
}
