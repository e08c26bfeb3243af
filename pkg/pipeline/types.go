// Package pipeline validates and executes directed acyclic graphs of
// plugin-tool invocations, with predecessor-output merging and structured
// events for every phase of a run.
package pipeline

// Node is one tool invocation in a pipeline graph.
type Node struct {
	ID       string `json:"id"`
	PluginID string `json:"plugin_id"`
	ToolID   string `json:"tool_id"`
}

// Edge is an ordered pair of node ids: output of From feeds To.
type Edge struct {
	From string `json:"from_node"`
	To   string `json:"to_node"`
}

// Pipeline is a DAG of nodes. Entry nodes receive the initial payload;
// output nodes' results form the returned mapping.
type Pipeline struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Nodes       []Node   `json:"nodes"`
	Edges       []Edge   `json:"edges"`
	EntryNodes  []string `json:"entry_nodes"`
	OutputNodes []string `json:"output_nodes"`
}

// node returns the node with the given id, or false.
func (p *Pipeline) node(id string) (Node, bool) {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// predecessors returns the ids feeding into the given node, in
// edge-definition order.
func (p *Pipeline) predecessors(id string) []string {
	var preds []string
	for _, e := range p.Edges {
		if e.To == id {
			preds = append(preds, e.From)
		}
	}
	return preds
}
