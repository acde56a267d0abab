// Package graph validates and traverses a Plan's node DAG.
package graph

import (
	"fmt"
	"sort"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// ValidationError is a malformed-plan error: duplicate node IDs, an edge
// referencing an unknown node, or a cyclic graph.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("graph: %s", e.Reason)
}

// Graph is the validated adjacency structure built from a Plan's nodes
// and edges. Successors are kept in declared edge order so traversal is
// deterministic when a node has more than one outgoing edge.
type Graph struct {
	nodes      map[string]models.Node
	successors map[string][]string
}

// Build validates a plan's node IDs and edges and constructs its Graph.
// A plan is well-formed iff node IDs are unique, every edge endpoint is
// a known node ID or a sentinel, and the graph (sentinels included) is
// acyclic with __START__ having no incoming edges and __END__ having no
// outgoing edges.
func Build(plan *models.Plan) (*Graph, error) {
	nodes := make(map[string]models.Node, len(plan.Nodes))
	for _, n := range plan.Nodes {
		id := n.NodeID()
		if id == models.StartSentinel || id == models.EndSentinel {
			return nil, &ValidationError{Reason: fmt.Sprintf("node id %q collides with a sentinel", id)}
		}
		if _, exists := nodes[id]; exists {
			return nil, &ValidationError{Reason: fmt.Sprintf("duplicate node id %q", id)}
		}
		nodes[id] = n
	}

	isKnown := func(id string) bool {
		if id == models.StartSentinel || id == models.EndSentinel {
			return true
		}
		_, ok := nodes[id]
		return ok
	}

	successors := make(map[string][]string)
	incoming := make(map[string]int)

	for _, e := range plan.Edges {
		if !isKnown(e.From) {
			return nil, &ValidationError{Reason: fmt.Sprintf("edge references unknown node %q", e.From)}
		}
		if !isKnown(e.To) {
			return nil, &ValidationError{Reason: fmt.Sprintf("edge references unknown node %q", e.To)}
		}
		if e.From == models.EndSentinel {
			return nil, &ValidationError{Reason: "__END__ must not have outgoing edges"}
		}
		if e.To == models.StartSentinel {
			return nil, &ValidationError{Reason: "__START__ must not have incoming edges"}
		}
		successors[e.From] = append(successors[e.From], e.To)
		incoming[e.To]++
	}

	g := &Graph{nodes: nodes, successors: successors}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkAcyclic runs Kahn's algorithm over every node plus both sentinels,
// starting from all vertices with zero in-degree (in sorted order); any
// vertex left with unresolved in-degree after the algorithm terminates
// indicates a cycle.
func (g *Graph) checkAcyclic() error {
	vertices := make(map[string]struct{})
	vertices[models.StartSentinel] = struct{}{}
	vertices[models.EndSentinel] = struct{}{}
	for id := range g.nodes {
		vertices[id] = struct{}{}
	}

	inDegree := make(map[string]int, len(vertices))
	for v := range vertices {
		inDegree[v] = 0
	}
	for _, tos := range g.successors {
		for _, to := range tos {
			inDegree[to]++
		}
	}

	var queue []string
	for v := range vertices {
		if inDegree[v] == 0 {
			queue = append(queue, v)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		visited++

		next := append([]string(nil), g.successors[v]...)
		sort.Strings(next)
		for _, to := range next {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if visited != len(vertices) {
		return &ValidationError{Reason: "plan graph contains a cycle"}
	}
	return nil
}

// FirstSuccessor returns the deterministic next node ID after id (the
// first edge declared for id), and whether one exists. __END__ never has
// a successor.
func (g *Graph) FirstSuccessor(id string) (string, bool) {
	succs := g.successors[id]
	if len(succs) == 0 {
		return "", false
	}
	return succs[0], true
}

// Node looks up a node by ID. Sentinels are never returned here.
func (g *Graph) Node(id string) (models.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Walk returns the sequential traversal order starting at __START__ and
// ending at (but not including) __END__: the unique path obtained by
// always following FirstSuccessor. Nodes unreachable from __START__ are
// never visited.
func (g *Graph) Walk() []string {
	var order []string
	current, ok := g.FirstSuccessor(models.StartSentinel)
	for ok && current != models.EndSentinel {
		order = append(order, current)
		current, ok = g.FirstSuccessor(current)
	}
	return order
}
