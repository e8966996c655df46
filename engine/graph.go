package engine

import (
	"fmt"
	"sort"

	"github.com/CurvatureX/trigger-engine/common/models"
)

// graph is the adjacency representation the scheduler walks: edges point
// from a node to the nodes that depend on it (i.e. "must run after me").
type graph struct {
	nodeIDs  []string
	nodeSet  map[string]bool
	indegree map[string]int
	children map[string][]string // node -> nodes that depend on it
}

// buildGraph constructs the dependency graph for a workflow, inverting
// memory-type connections: an ordinary ("main") connection A -> B means B
// depends on A (A must run first). A memory connection A -> B means A reads
// memory state that B produces, so the true execution dependency is
// B -> A — the edge direction is inverted when building the dependency
// graph, matching the data model's distinction between control/data flow
// (main) and memory read-back (memory) connections (§4.3).
func buildGraph(w *models.Workflow) (*graph, error) {
	g := &graph{
		nodeSet:  make(map[string]bool, len(w.Nodes)),
		indegree: make(map[string]int, len(w.Nodes)),
		children: make(map[string][]string, len(w.Nodes)),
	}

	for _, n := range w.Nodes {
		if g.nodeSet[n.ID] {
			return nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.nodeSet[n.ID] = true
		g.nodeIDs = append(g.nodeIDs, n.ID)
		g.indegree[n.ID] = 0
	}

	addEdge := func(from, to string) error {
		if !g.nodeSet[from] {
			return fmt.Errorf("connection references unknown source node %q", from)
		}
		if !g.nodeSet[to] {
			return fmt.Errorf("connection references unknown target node %q", to)
		}
		g.children[from] = append(g.children[from], to)
		g.indegree[to]++
		return nil
	}

	for source, conns := range w.Connections {
		for _, conn := range conns {
			var err error
			switch conn.Type {
			case models.ConnectionMemory:
				// inverted: the target is the true dependency, source is the dependent
				err = addEdge(conn.TargetNodeID, source)
			default:
				err = addEdge(source, conn.TargetNodeID)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	sort.Strings(g.nodeIDs)
	return g, nil
}

// topoSort computes a deterministic execution order using Kahn's algorithm.
// Ties among simultaneously-ready nodes (in-degree 0) are broken
// lexicographically by node ID so the same workflow always schedules in the
// same order, which the tests and the trace rely on.
func topoSort(g *graph) ([]string, error) {
	indegree := make(map[string]int, len(g.indegree))
	for id, d := range g.indegree {
		indegree[id] = d
	}

	ready := make([]string, 0, len(g.nodeIDs))
	for _, id := range g.nodeIDs {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodeIDs))
	for len(ready) > 0 {
		// pop lexicographically smallest
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		newlyReady := make([]string, 0)
		for _, child := range g.children[next] {
			indegree[child]--
			if indegree[child] == 0 {
				newlyReady = append(newlyReady, child)
			}
		}
		sort.Strings(newlyReady)

		merged := make([]string, 0, len(ready)+len(newlyReady))
		i, j := 0, 0
		for i < len(ready) && j < len(newlyReady) {
			if ready[i] <= newlyReady[j] {
				merged = append(merged, ready[i])
				i++
			} else {
				merged = append(merged, newlyReady[j])
				j++
			}
		}
		merged = append(merged, ready[i:]...)
		merged = append(merged, newlyReady[j:]...)
		ready = merged
	}

	if len(order) != len(g.nodeIDs) {
		return nil, fmt.Errorf("workflow graph has a cycle: scheduled %d of %d nodes", len(order), len(g.nodeIDs))
	}
	return order, nil
}

// definitionOrder returns node IDs in the order they appear in the
// workflow's Nodes slice, used as the execution order fallback when
// topoSort detects a cycle (§4.3 "Execution order").
func definitionOrder(w *models.Workflow) []string {
	order := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		order = append(order, n.ID)
	}
	return order
}

// parents returns the nodes that must complete before id can run, in the
// true-dependency direction (post memory-edge inversion).
func (g *graph) parents() map[string][]string {
	p := make(map[string][]string, len(g.nodeIDs))
	for from, children := range g.children {
		for _, to := range children {
			p[to] = append(p[to], from)
		}
	}
	for _, ps := range p {
		sort.Strings(ps)
	}
	return p
}
