package sequential

import (
	"errors"
	"testing"

	"github.com/dagkernel/dagkernel/edge"
	"github.com/dagkernel/dagkernel/engine"
	"github.com/dagkernel/dagkernel/node"
)

type recordingRunner struct {
	name    string
	order   *[]string
	err     error
}

func (r *recordingRunner) Run() error {
	*r.order = append(*r.order, r.name)
	return r.err
}

func wrap(n *node.Node) *engine.Wrapper { return &engine.Wrapper{Node: n} }

func TestEngineRunsNodesInDeclaredOrder(t *testing.T) {
	var order []string
	a := node.New("a")
	a.SetRunner(&recordingRunner{name: "a", order: &order})
	b := node.New("b")
	b.SetRunner(&recordingRunner{name: "b", order: &order})

	e := New()
	if err := e.Init([]*engine.Wrapper{wrap(a), wrap(b)}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("execution order = %v, want [a b]", order)
	}

	stats := e.Stats()
	if stats["a"].RunSize != 1 || stats["a"].CompletedSize != 1 {
		t.Fatalf("stats[a] = %+v", stats["a"])
	}
	if stats["b"].RunSize != 1 || stats["b"].CompletedSize != 1 {
		t.Fatalf("stats[b] = %+v", stats["b"])
	}

	if err := e.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
}

func TestEngineStopsAtFirstFailure(t *testing.T) {
	var order []string
	failErr := errors.New("boom")
	a := node.New("a")
	a.SetRunner(&recordingRunner{name: "a", order: &order, err: failErr})
	b := node.New("b")
	b.SetRunner(&recordingRunner{name: "b", order: &order})

	e := New()
	if err := e.Init([]*engine.Wrapper{wrap(a), wrap(b)}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := e.Run(); err == nil {
		t.Fatal("Run should propagate the first node's failure")
	}
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("execution order = %v, want only [a] to have run", order)
	}

	stats := e.Stats()
	if stats["b"].RunSize != 0 {
		t.Fatalf("stats[b].RunSize = %d, want 0 (never started)", stats["b"].RunSize)
	}
}

func TestEngineStopsCleanlyOnTerminatedInput(t *testing.T) {
	var order []string
	a := node.New("a")
	a.SetRunner(&recordingRunner{name: "a", order: &order})
	in := edge.NewFixed("in")
	in.RequestTerminate()
	a.SetInputs([]edge.Edge{in})

	b := node.New("b")
	b.SetRunner(&recordingRunner{name: "b", order: &order})

	e := New()
	if err := e.Init([]*engine.Wrapper{wrap(a), wrap(b)}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run on a terminated input should return nil, got %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("no node should have run once the first node's input is terminated, ran %v", order)
	}
}

func TestSynchronizeIsNoop(t *testing.T) {
	e := New()
	if err := e.Synchronize(); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
}
