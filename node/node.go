// Package node implements Node, the unit of work a graph schedules. A node
// owns no edges itself — it only holds references to the ones wired in by
// the owning graph — and every lifecycle method is idempotent so engines
// can call Init/Deinit freely without double-running user code.
package node

import (
	"sync"

	"github.com/dagkernel/dagkernel/dagerr"
	"github.com/dagkernel/dagkernel/edge"
	"github.com/dagkernel/dagkernel/mode"
)

// ParentBinder is the narrow view of a graph a node needs: looking up an
// existing edge by name, and reporting newly bound I/O during trace-mode
// construction. *graph.Graph implements this; node never imports graph,
// which keeps the dependency direction graph→node, not the reverse.
type ParentBinder interface {
	GetEdge(name string) (edge.Edge, bool)
	UpdateNodeIO(n *Node, inputs, outputs []edge.Edge) error
}

// Runner is the user-supplied behavior a node executes. Run must not
// panic out of the task; a panic inside Run is not recovered by the
// kernel.
type Runner interface {
	Run() error
}

// Node is the concrete, concurrency-safe node every engine drives through
// Init/Deinit/UpdateInput/Run. Embed it in a domain-specific node type (see
// nodes/infer.Node) and supply Runner via SetRunner; engines call Run on the
// *Node itself, so a Run method declared only on the embedding type is
// never reached by them.
type Node struct {
	Logf func(format string, v ...any)

	mu     sync.Mutex
	name   string
	graph  ParentBinder
	inputs []edge.Edge
	outputs []edge.Edge

	parallel mode.Parallel

	isConstructed bool
	isInit        bool
	isTrace       bool
	isForwardOK   bool

	runSize       uint64
	completedSize uint64
	isRunning     bool

	runner Runner
}

// New returns a named, unconstructed node with no edges and no runner.
func New(name string) *Node {
	return &Node{name: name}
}

// NodeName implements edge.NodeRef, giving edges a stable, comparable
// identity for a node without needing the concrete *Node type.
func (n *Node) NodeName() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

// SetName renames the node.
func (n *Node) SetName(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.name = name
}

// SetRunner installs the user behavior Run() dispatches to. Node types that
// embed Node also need this: engines only call Run on the embedded *Node.
func (n *Node) SetRunner(r Runner) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runner = r
}

// SetGraph installs the non-owning back-reference to the owning graph.
func (n *Node) SetGraph(g ParentBinder) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.graph = g
}

// Graph returns the owning graph, or nil if the node is unattached.
func (n *Node) Graph() ParentBinder {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.graph
}

// SetInputs replaces the node's input edges.
func (n *Node) SetInputs(inputs []edge.Edge) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = inputs
	return nil
}

// SetOutputs replaces the node's output edges.
func (n *Node) SetOutputs(outputs []edge.Edge) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outputs = outputs
	return nil
}

// MapInputs replaces each input edge with f's result, in place. Used by
// graph.Construct to swap in a promoted edge (Fixed→Pipeline) after the
// node already bound the original.
func (n *Node) MapInputs(f func(edge.Edge) edge.Edge) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.inputs {
		n.inputs[i] = f(e)
	}
}

// MapOutputs replaces each output edge with f's result, in place.
func (n *Node) MapOutputs(f func(edge.Edge) edge.Edge) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.outputs {
		n.outputs[i] = f(e)
	}
}

// InputEdge returns the input edge at index, or nil if out of range.
func (n *Node) InputEdge(index int) edge.Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= len(n.inputs) {
		return nil
	}
	return n.inputs[index]
}

// OutputEdge returns the output edge at index, or nil if out of range.
func (n *Node) OutputEdge(index int) edge.Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= len(n.outputs) {
		return nil
	}
	return n.outputs[index]
}

// AllInputs returns a copy of the node's input edges.
func (n *Node) AllInputs() []edge.Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]edge.Edge, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// AllOutputs returns a copy of the node's output edges.
func (n *Node) AllOutputs() []edge.Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]edge.Edge, len(n.outputs))
	copy(out, n.outputs)
	return out
}

// SetParallelType records which engine variant this node runs under, so
// edges it creates are wired with the matching kind.
func (n *Node) SetParallelType(p mode.Parallel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.parallel = p
}

// ParallelType returns the node's configured parallel mode.
func (n *Node) ParallelType() mode.Parallel {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parallel
}

// Constructed reports the node's isConstructed flag. Nothing in this
// package sets that flag, so it is false for every node New returns.
func (n *Node) Constructed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isConstructed
}

// SetTraceFlag marks the node as participating in trace-mode graph
// construction.
func (n *Node) SetTraceFlag(flag bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.isTrace = flag
}

// Init prepares the node for execution. Idempotent: calling it again once
// already initialized is a no-op.
func (n *Node) Init() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.isInit {
		return nil
	}
	n.isInit = true
	return nil
}

// Deinit releases what Init acquired. Idempotent.
func (n *Node) Deinit() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.isInit {
		return nil
	}
	n.isInit = false
	return nil
}

// Initialized reports whether Init has run without a matching Deinit.
func (n *Node) Initialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isInit
}

// UpdateInput calls Update(self) on every input edge in declared order,
// stopping at and returning the first non-Complete flag. This is the
// engine's suspension point in pipeline mode: a pipeline edge's Update
// blocks the calling goroutine until data is ready or the edge is
// terminated.
func (n *Node) UpdateInput() mode.UpdateFlag {
	for _, in := range n.AllInputs() {
		flag := in.Update(n)
		if flag != mode.Complete {
			return flag
		}
	}
	return mode.Complete
}

// Run executes the node's user behavior exactly once. A node built via New
// with no Runner installed returns a RuntimeNotImplemented error. A Run
// method declared on a type embedding Node does not replace this one for
// callers holding the *Node, which is what every engine holds.
func (n *Node) Run() error {
	n.mu.Lock()
	r := n.runner
	n.mu.Unlock()
	if r == nil {
		return dagerr.New(dagerr.CodeRuntimeNotImplemented, "node[%s] has no runner installed", n.NodeName())
	}
	return r.Run()
}

// SetRunning records a run transition: true increments run_size; a
// true→false transition increments completed_size.
func (n *Node) SetRunning(flag bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if flag {
		n.runSize++
	} else if n.isRunning {
		n.completedSize++
	}
	n.isRunning = flag
}

// RunSize returns how many times the node has started running.
func (n *Node) RunSize() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.runSize
}

// CompletedSize returns how many of those runs have finished.
func (n *Node) CompletedSize() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.completedSize
}

// Synchronize is a hook engines may override semantics for; the base
// node has no pending async state of its own to wait on.
func (n *Node) Synchronize() bool {
	return true
}

// RealOutputNames lets the graph build edges implicitly in trace mode: the
// default implementation returns the names of the node's already-bound
// output edges.
func (n *Node) RealOutputNames() []string {
	outputs := n.AllOutputs()
	if len(outputs) == 0 {
		return nil
	}
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name()
	}
	return names
}

// createInternalOutputEdge builds (or replaces, by name) an output edge
// owned by the node itself, for when no parent graph exists to hand one
// out.
func (n *Node) createInternalOutputEdge(name string) edge.Edge {
	n.mu.Lock()
	defer n.mu.Unlock()
	e := edge.New(name, n.parallel)
	for i, existing := range n.outputs {
		if existing.Name() == name {
			n.outputs[i] = e
			return e
		}
	}
	n.outputs = append(n.outputs, e)
	return e
}

// inputsChanged reports whether inputs differs from the node's currently
// bound inputs, by identity and order. With no inputs bound yet it reports
// false.
func (n *Node) inputsChanged(inputs []edge.Edge) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.inputs) == 0 {
		return false
	}
	if len(inputs) != len(n.inputs) {
		return true
	}
	for i := range inputs {
		if inputs[i] != n.inputs[i] {
			return true
		}
	}
	return false
}

// Forward binds inputs, resolves or creates the node's declared output
// edges, informs the parent graph of the node's I/O, then either runs
// immediately or — in trace mode, when inputs have not changed since the
// last call — skips execution and simply returns the already-bound
// outputs. The first successful Forward call sets a standing isForwardOK
// flag; a node that never completes one successfully yields an empty
// output slice rather than panicking.
func (n *Node) Forward(inputs []edge.Edge) ([]edge.Edge, error) {
	n.mu.Lock()
	initNeeded := !n.isInit && !n.isTrace
	n.mu.Unlock()
	if initNeeded {
		if err := n.Init(); err != nil {
			return nil, err
		}
	}

	changed := n.inputsChanged(inputs)
	if len(inputs) > 0 {
		if err := n.SetInputs(inputs); err != nil {
			return nil, err
		}
	}

	names := n.RealOutputNames()
	if len(names) == 0 {
		return nil, dagerr.New(dagerr.CodeRuntimeNodeFailed, "node[%s] has no declared outputs", n.NodeName())
	}

	outputs := make([]edge.Edge, 0, len(names))
	g := n.Graph()
	for _, name := range names {
		var out edge.Edge
		if g != nil {
			if found, ok := g.GetEdge(name); ok {
				out = found
			}
		}
		if out == nil {
			out = n.createInternalOutputEdge(name)
		}
		outputs = append(outputs, out)
	}
	if err := n.SetOutputs(outputs); err != nil {
		return nil, err
	}

	if g != nil {
		if err := g.UpdateNodeIO(n, inputs, outputs); err != nil {
			return nil, err
		}
	}

	n.mu.Lock()
	trace := n.isTrace
	forwardOK := n.isForwardOK
	n.mu.Unlock()

	// Skip re-running only once a first Forward has already succeeded:
	// inputsChanged reports "unchanged" before any inputs have ever been
	// bound, which must not be read as license to skip the very first run.
	if !changed && trace && forwardOK {
		return outputs, nil
	}

	if err := n.Run(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.isForwardOK = true
	n.mu.Unlock()
	return outputs, nil
}

// ForwardOK reports whether Forward has completed successfully at least
// once.
func (n *Node) ForwardOK() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isForwardOK
}
