package graph

import (
	"strings"
	"testing"

	"github.com/dagkernel/dagkernel/dagerr"
	"github.com/dagkernel/dagkernel/edge"
	"github.com/dagkernel/dagkernel/mode"
)

type countingRunner struct{ calls int }

func (r *countingRunner) Run() error {
	r.calls++
	return nil
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New("g", WithParallel(mode.Parallel(99))); err == nil {
		t.Fatal("New with an out-of-range Parallel value should fail validation")
	}
}

func TestNewDefaults(t *testing.T) {
	g, err := New("g")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Name() != "g" {
		t.Fatalf("Name() = %q, want %q", g.Name(), "g")
	}
	if g.ID() == "" {
		t.Fatal("ID() should be non-empty")
	}
}

func TestAddNodeRejectsDuplicateNames(t *testing.T) {
	g, _ := New("g")
	if _, err := g.CreateNode("a"); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := g.CreateNode("a"); err == nil {
		t.Fatal("CreateNode with a duplicate name should fail")
	}
}

func TestAddEdgeRejectsDuplicateNames(t *testing.T) {
	g, _ := New("g")
	if _, err := g.AddEdge("e"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if _, err := g.AddEdge("e"); err == nil {
		t.Fatal("AddEdge with a duplicate name should fail")
	}
}

func TestGetEdgeLooksUpWithoutCreating(t *testing.T) {
	g, _ := New("g")
	if _, ok := g.GetEdge("missing"); ok {
		t.Fatal("GetEdge should report false for an edge never added")
	}
	want, _ := g.AddEdge("e")
	got, ok := g.GetEdge("e")
	if !ok || got != want {
		t.Fatalf("GetEdge(%q) = (%v, %v), want (%v, true)", "e", got, ok, want)
	}
}

func TestConstructWiresProducerConsumerAndDOT(t *testing.T) {
	g, _ := New("g")
	a, _ := g.CreateNode("a")
	b, _ := g.CreateNode("b")
	e, _ := g.AddEdge("e")
	a.SetOutputs([]edge.Edge{e})
	b.SetInputs([]edge.Edge{e})

	if err := g.Construct(); err != nil {
		t.Fatalf("Construct: %v", err)
	}

	if ins := g.Inputs(); len(ins) != 0 {
		t.Fatalf("Inputs() = %v, want none (edge e has a producer)", ins)
	}
	if outs := g.Outputs(); len(outs) != 0 {
		t.Fatalf("Outputs() = %v, want none (edge e has a consumer)", outs)
	}

	dot := g.DOT()
	if !strings.Contains(dot, `"a" -> "b" [label="e"]`) {
		t.Fatalf("DOT() = %q, want an a->b edge labeled e", dot)
	}
}

func TestConstructDerivesGraphInputsAndOutputs(t *testing.T) {
	g, _ := New("g")
	x, _ := g.CreateNode("x")
	y, _ := g.CreateNode("y")
	in, _ := g.AddEdge("in")
	mid, _ := g.AddEdge("mid")
	out, _ := g.AddEdge("out")
	x.SetInputs([]edge.Edge{in})
	x.SetOutputs([]edge.Edge{mid})
	y.SetInputs([]edge.Edge{mid})
	y.SetOutputs([]edge.Edge{out})

	if err := g.Construct(); err != nil {
		t.Fatalf("Construct: %v", err)
	}

	ins := g.Inputs()
	if len(ins) != 1 || ins[0].Name() != "in" {
		t.Fatalf("Inputs() = %v, want [in]", ins)
	}
	outs := g.Outputs()
	if len(outs) != 1 || outs[0].Name() != "out" {
		t.Fatalf("Outputs() = %v, want [out]", outs)
	}
}

func TestValidateWarnsUnwiredNodeAndEdge(t *testing.T) {
	g, _ := New("g")
	if _, err := g.CreateNode("lonely"); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := g.AddEdge("dangling"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.Construct(); err != nil {
		t.Fatalf("Construct: %v", err)
	}

	warnings := g.Validate()
	joined := strings.Join(warnings, "\n")
	if !strings.Contains(joined, "node[lonely]") {
		t.Fatalf("Validate() = %v, want a warning about node[lonely]", warnings)
	}
	if !strings.Contains(joined, "edge[dangling]") {
		t.Fatalf("Validate() = %v, want a warning about edge[dangling]", warnings)
	}
}

func TestInitExecuteEngineRejectsGraphWithNoStartNode(t *testing.T) {
	g, _ := New("g")
	a, _ := g.CreateNode("a")
	b, _ := g.CreateNode("b")
	e1, _ := g.AddEdge("a-to-b")
	e2, _ := g.AddEdge("b-to-a")
	a.SetInputs([]edge.Edge{e2})
	a.SetOutputs([]edge.Edge{e1})
	b.SetInputs([]edge.Edge{e1})
	b.SetOutputs([]edge.Edge{e2})

	if err := g.Construct(); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	err := g.InitExecuteEngine()
	if !dagerr.Is(err, dagerr.CodeRuntimeMissingStart) {
		t.Fatalf("InitExecuteEngine() error = %v, want CodeRuntimeMissingStart", err)
	}
}

func TestInitExecuteEngineRejectsCycleReachableFromAStartNode(t *testing.T) {
	g, _ := New("g")
	a, _ := g.CreateNode("a")
	b, _ := g.CreateNode("b")
	c, _ := g.CreateNode("c")
	e1, _ := g.AddEdge("e1") // a -> b
	e2, _ := g.AddEdge("e2") // b -> c
	e3, _ := g.AddEdge("e3") // c -> b
	a.SetOutputs([]edge.Edge{e1})
	b.SetInputs([]edge.Edge{e1, e3})
	b.SetOutputs([]edge.Edge{e2})
	c.SetInputs([]edge.Edge{e2})
	c.SetOutputs([]edge.Edge{e3})

	if err := g.Construct(); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	err := g.InitExecuteEngine()
	if !dagerr.Is(err, dagerr.CodeRuntimeCycle) {
		t.Fatalf("InitExecuteEngine() error = %v, want CodeRuntimeCycle", err)
	}
}

func TestRunBeforeInitExecuteEngineFails(t *testing.T) {
	g, _ := New("g")
	if err := g.Run(); err == nil {
		t.Fatal("Run before InitExecuteEngine should fail")
	}
}

func TestSynchronizeAndStatsBeforeInitAreSafe(t *testing.T) {
	g, _ := New("g")
	if err := g.Synchronize(); err != nil {
		t.Fatalf("Synchronize before init: %v", err)
	}
	if stats := g.Stats(); stats != nil {
		t.Fatalf("Stats before init = %v, want nil", stats)
	}
}

func TestInitExecuteEngineRunsSequentialByDefault(t *testing.T) {
	g, _ := New("g")
	n, _ := g.CreateNode("n")
	out, _ := g.AddEdge("out")
	n.SetOutputs([]edge.Edge{out})
	r := &countingRunner{}
	n.SetRunner(r)

	if err := g.Construct(); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if err := g.InitExecuteEngine(); err != nil {
		t.Fatalf("InitExecuteEngine: %v", err)
	}
	if err := g.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("runner ran %d times, want 1", r.calls)
	}

	stats := g.Stats()
	if stats["n"].RunSize != 1 || stats["n"].CompletedSize != 1 {
		t.Fatalf("stats[n] = %+v, want RunSize=1 CompletedSize=1", stats["n"])
	}
	if err := g.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
}

func TestInitExecuteEngineRunsTaskMode(t *testing.T) {
	g, _ := New("g", WithParallel(mode.Task), WithPoolSize(2))
	n, _ := g.CreateNode("n")
	out, _ := g.AddEdge("out")
	n.SetOutputs([]edge.Edge{out})
	r := &countingRunner{}
	n.SetRunner(r)

	if err := g.Construct(); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if err := g.InitExecuteEngine(); err != nil {
		t.Fatalf("InitExecuteEngine: %v", err)
	}
	if err := g.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("runner ran %d times, want 1", r.calls)
	}
	if err := g.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
}

func TestInitExecuteEnginePipelineModeEmptyGraphIsSafe(t *testing.T) {
	g, _ := New("g", WithParallel(mode.Pipeline))
	if err := g.Construct(); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if err := g.InitExecuteEngine(); err != nil {
		t.Fatalf("InitExecuteEngine: %v", err)
	}
	if err := g.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := g.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
}

func TestTraceReturnsGraphOutputsAndInitializesNodes(t *testing.T) {
	g, _ := New("g")
	n, _ := g.CreateNode("n")
	out, _ := g.AddEdge("out")
	n.SetOutputs([]edge.Edge{out})
	n.SetRunner(&countingRunner{})

	outputs, err := g.Trace(nil)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if len(outputs) != 1 || outputs[0].Name() != "out" {
		t.Fatalf("Trace() outputs = %v, want [out]", outputs)
	}
	if !n.Initialized() {
		t.Fatal("Trace should have initialized every node")
	}
}

func TestDeinitWithoutEngineDeinitsNodesDirectly(t *testing.T) {
	g, _ := New("g")
	n, _ := g.CreateNode("n")
	if err := n.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := g.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	if n.Initialized() {
		t.Fatal("node should be deinitialized after graph Deinit with no engine")
	}
}
