package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoNodePipeline() *Pipeline {
	return &Pipeline{
		ID: "p1",
		Nodes: []Node{
			{ID: "n1", PluginID: "pluginA", ToolID: "tool1"},
			{ID: "n2", PluginID: "pluginB", ToolID: "tool2"},
		},
		Edges:       []Edge{{From: "n1", To: "n2"}},
		EntryNodes:  []string{"n1"},
		OutputNodes: []string{"n2"},
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	assert.Empty(t, Validate(twoNodePipeline()))
}

func TestValidateRejectsCycle(t *testing.T) {
	p := twoNodePipeline()
	p.Edges = append(p.Edges, Edge{From: "n2", To: "n1"})

	problems := Validate(p)
	require.NotEmpty(t, problems)
	assert.Contains(t, strings.Join(problems, "; "), "cycle")
}

func TestValidateRejectsUnknownEntryAndOutput(t *testing.T) {
	p := twoNodePipeline()
	p.EntryNodes = []string{"ghost"}
	p.OutputNodes = []string{"phantom"}

	problems := Validate(p)
	assert.Contains(t, problems, `entry node "ghost" does not exist`)
	assert.Contains(t, problems, `output node "phantom" does not exist`)
}

func TestValidateRejectsUnreachableNode(t *testing.T) {
	p := twoNodePipeline()
	p.Nodes = append(p.Nodes, Node{ID: "island", PluginID: "x", ToolID: "y"})

	problems := Validate(p)
	assert.Contains(t, problems, `node "island" is not reachable from any entry node`)
}

func TestValidateRejectsEdgeToUnknownNode(t *testing.T) {
	p := twoNodePipeline()
	p.Edges = append(p.Edges, Edge{From: "n2", To: "nowhere"})

	problems := Validate(p)
	assert.Contains(t, problems, `edge references unknown node "nowhere"`)
}

func TestTopoOrder(t *testing.T) {
	p := &Pipeline{
		ID: "diamond",
		Nodes: []Node{
			{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
		},
		Edges: []Edge{
			{From: "a", To: "b"},
			{From: "a", To: "c"},
			{From: "b", To: "d"},
			{From: "c", To: "d"},
		},
		EntryNodes:  []string{"a"},
		OutputNodes: []string{"d"},
	}

	order, err := TopoOrder(p)
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestTopoOrderRejectsCycle(t *testing.T) {
	p := twoNodePipeline()
	p.Edges = append(p.Edges, Edge{From: "n2", To: "n1"})
	_, err := TopoOrder(p)
	assert.ErrorIs(t, err, ErrNotAcyclic)
}
