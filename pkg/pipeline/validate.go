package pipeline

import "fmt"

// Validate reports every structural problem with the pipeline; the pipeline
// is valid iff the returned list is empty.
//
// Checks: no cycle, every entry and output node id exists, every node
// reachable from at least one entry node.
func Validate(p *Pipeline) []string {
	var problems []string

	ids := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if ids[n.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		ids[n.ID] = true
	}

	adj := make(map[string][]string, len(p.Nodes))
	for _, e := range p.Edges {
		if !ids[e.From] {
			problems = append(problems, fmt.Sprintf("edge references unknown node %q", e.From))
		}
		if !ids[e.To] {
			problems = append(problems, fmt.Sprintf("edge references unknown node %q", e.To))
		}
		adj[e.From] = append(adj[e.From], e.To)
	}

	if cyc := findCycle(p.Nodes, adj); cyc != "" {
		problems = append(problems, "cycle detected involving node "+cyc)
	}

	for _, id := range p.EntryNodes {
		if !ids[id] {
			problems = append(problems, fmt.Sprintf("entry node %q does not exist", id))
		}
	}
	for _, id := range p.OutputNodes {
		if !ids[id] {
			problems = append(problems, fmt.Sprintf("output node %q does not exist", id))
		}
	}
	if len(p.EntryNodes) == 0 {
		problems = append(problems, "pipeline has no entry nodes")
	}

	reachable := make(map[string]bool)
	var visit func(string)
	visit = func(id string) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, next := range adj[id] {
			visit(next)
		}
	}
	for _, id := range p.EntryNodes {
		if ids[id] {
			visit(id)
		}
	}
	for _, n := range p.Nodes {
		if !reachable[n.ID] {
			problems = append(problems, fmt.Sprintf("node %q is not reachable from any entry node", n.ID))
		}
	}

	return problems
}

// findCycle runs DFS with a recursion stack and returns a node id on a
// cycle, or "" when the graph is acyclic.
func findCycle(nodes []Node, adj map[string][]string) string {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(nodes))

	var dfs func(string) string
	dfs = func(id string) string {
		state[id] = inStack
		for _, next := range adj[id] {
			switch state[next] {
			case inStack:
				return next
			case unvisited:
				if hit := dfs(next); hit != "" {
					return hit
				}
			}
		}
		state[id] = done
		return ""
	}

	for _, n := range nodes {
		if state[n.ID] == unvisited {
			if hit := dfs(n.ID); hit != "" {
				return hit
			}
		}
	}
	return ""
}
