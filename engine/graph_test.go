package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/models"
)

func workflowWithConnections(conns models.ConnectionsMap, nodeIDs ...string) *models.Workflow {
	nodes := make([]models.Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		nodes = append(nodes, models.Node{ID: id, Type: "noop"})
	}
	return &models.Workflow{Nodes: nodes, Connections: conns}
}

func TestTopoSortLinear(t *testing.T) {
	w := workflowWithConnections(models.ConnectionsMap{
		"a": {{TargetNodeID: "b", Type: models.ConnectionMain}},
		"b": {{TargetNodeID: "c", Type: models.ConnectionMain}},
	}, "a", "b", "c")

	g, err := buildGraph(w)
	require.NoError(t, err)

	order, err := topoSort(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopoSortLexicographicTiebreak(t *testing.T) {
	// b and c both depend only on a; with no other ordering constraint,
	// b must still come before c because lexicographic tiebreak applies
	// among simultaneously-ready nodes.
	w := workflowWithConnections(models.ConnectionsMap{
		"a": {
			{TargetNodeID: "b", Type: models.ConnectionMain},
			{TargetNodeID: "c", Type: models.ConnectionMain},
		},
	}, "a", "b", "c")

	g, err := buildGraph(w)
	require.NoError(t, err)

	order, err := topoSort(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopoSortDetectsCycle(t *testing.T) {
	w := workflowWithConnections(models.ConnectionsMap{
		"a": {{TargetNodeID: "b", Type: models.ConnectionMain}},
		"b": {{TargetNodeID: "a", Type: models.ConnectionMain}},
	}, "a", "b")

	g, err := buildGraph(w)
	require.NoError(t, err)

	_, err = topoSort(g)
	assert.Error(t, err)
}

func TestMemoryConnectionInvertsEdge(t *testing.T) {
	// a -memory-> b means a *reads* b's memory, so b must run before a:
	// the true dependency edge is b -> a.
	w := workflowWithConnections(models.ConnectionsMap{
		"a": {{TargetNodeID: "b", Type: models.ConnectionMemory}},
	}, "a", "b")

	g, err := buildGraph(w)
	require.NoError(t, err)

	order, err := topoSort(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestBuildGraphRejectsUnknownTarget(t *testing.T) {
	w := workflowWithConnections(models.ConnectionsMap{
		"a": {{TargetNodeID: "ghost", Type: models.ConnectionMain}},
	}, "a")

	_, err := buildGraph(w)
	assert.Error(t, err)
}
