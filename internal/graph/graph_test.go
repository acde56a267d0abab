package graph

import (
	"testing"

	"github.com/griffin-monitoring/griffin/internal/models"
)

func plan(nodes []models.Node, edges []models.Edge) *models.Plan {
	return &models.Plan{ID: "p", Nodes: nodes, Edges: edges}
}

func TestBuild_EmptyPlanIsNoop(t *testing.T) {
	p := plan(nil, []models.Edge{
		{From: models.StartSentinel, To: models.EndSentinel},
	})

	g, err := Build(p)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if order := g.Walk(); len(order) != 0 {
		t.Errorf("Walk() = %v, want empty", order)
	}
}

func TestBuild_SequentialWalk(t *testing.T) {
	p := plan(
		[]models.Node{
			&models.WaitNode{ID: "a", DurationMs: 1},
			&models.WaitNode{ID: "b", DurationMs: 1},
			&models.WaitNode{ID: "c", DurationMs: 1},
		},
		[]models.Edge{
			{From: models.StartSentinel, To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "c"},
			{From: "c", To: models.EndSentinel},
		},
	)

	g, err := Build(p)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"a", "b", "c"}
	got := g.Walk()
	if len(got) != len(want) {
		t.Fatalf("Walk() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Walk()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuild_DuplicateNodeID(t *testing.T) {
	p := plan([]models.Node{
		&models.WaitNode{ID: "a"},
		&models.WaitNode{ID: "a"},
	}, nil)

	if _, err := Build(p); err == nil {
		t.Error("expected error for duplicate node id")
	}
}

func TestBuild_UnknownEdgeEndpoint(t *testing.T) {
	p := plan([]models.Node{&models.WaitNode{ID: "a"}}, []models.Edge{
		{From: models.StartSentinel, To: "a"},
		{From: "a", To: "nonexistent"},
	})

	if _, err := Build(p); err == nil {
		t.Error("expected error for edge referencing unknown node")
	}
}

func TestBuild_Cycle(t *testing.T) {
	p := plan(
		[]models.Node{
			&models.WaitNode{ID: "a"},
			&models.WaitNode{ID: "b"},
		},
		[]models.Edge{
			{From: models.StartSentinel, To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	)

	if _, err := Build(p); err == nil {
		t.Error("expected error for cyclic graph")
	}
}

func TestBuild_EndWithOutgoingEdgeRejected(t *testing.T) {
	p := plan([]models.Node{&models.WaitNode{ID: "a"}}, []models.Edge{
		{From: models.StartSentinel, To: "a"},
		{From: models.EndSentinel, To: "a"},
	})

	if _, err := Build(p); err == nil {
		t.Error("expected error when __END__ has an outgoing edge")
	}
}

func TestBuild_StartWithIncomingEdgeRejected(t *testing.T) {
	p := plan([]models.Node{&models.WaitNode{ID: "a"}}, []models.Edge{
		{From: models.StartSentinel, To: "a"},
		{From: "a", To: models.StartSentinel},
	})

	if _, err := Build(p); err == nil {
		t.Error("expected error when __START__ has an incoming edge")
	}
}

func TestBuild_UnreachableNodesSkipped(t *testing.T) {
	p := plan(
		[]models.Node{
			&models.WaitNode{ID: "a"},
			&models.WaitNode{ID: "orphan"},
		},
		[]models.Edge{
			{From: models.StartSentinel, To: "a"},
			{From: "a", To: models.EndSentinel},
		},
	)

	g, err := Build(p)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	order := g.Walk()
	if len(order) != 1 || order[0] != "a" {
		t.Errorf("Walk() = %v, want [a] (orphan unreachable)", order)
	}
}

func TestBuild_MultipleStartSuccessorsPicksFirstDeclared(t *testing.T) {
	p := plan(
		[]models.Node{
			&models.WaitNode{ID: "first"},
			&models.WaitNode{ID: "second"},
		},
		[]models.Edge{
			{From: models.StartSentinel, To: "first"},
			{From: models.StartSentinel, To: "second"},
			{From: "first", To: models.EndSentinel},
			{From: "second", To: models.EndSentinel},
		},
	)

	g, err := Build(p)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	order := g.Walk()
	if len(order) != 1 || order[0] != "first" {
		t.Errorf("Walk() = %v, want [first] (first declared edge wins)", order)
	}
}
