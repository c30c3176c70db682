// Package graph implements Graph, the kernel's entry point: node/edge
// membership and name uniqueness, wiring producers to consumers, deriving
// the predecessor/successor shape topological sort needs, selecting and
// driving one of the three engines, and supplemented read-only surfaces
// (Validate, DOT, Stats) on top of that.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dagkernel/dagkernel/dagerr"
	"github.com/dagkernel/dagkernel/edge"
	"github.com/dagkernel/dagkernel/engine"
	enginepipeline "github.com/dagkernel/dagkernel/engine/pipeline"
	enginesequential "github.com/dagkernel/dagkernel/engine/sequential"
	enginetask "github.com/dagkernel/dagkernel/engine/task"
	"github.com/dagkernel/dagkernel/errwrap"
	"github.com/dagkernel/dagkernel/mode"
	"github.com/dagkernel/dagkernel/node"
)

// Config governs how a Graph builds its engine and edges. Every field has
// a workable zero/default, validated via struct tags the way the rest of
// this kernel's ambient configuration is (no file or flag parsing — a
// library has no process of its own to configure).
type Config struct {
	Parallel     mode.Parallel `validate:"gte=0,lte=3"`
	QueueMaxSize int           `validate:"gte=0"`
	PoolSize     int           `validate:"gte=0"`
}

// Option mutates a Config during New.
type Option func(*Config)

// WithParallel selects which engine the graph runs under.
func WithParallel(p mode.Parallel) Option {
	return func(c *Config) { c.Parallel = p }
}

// WithQueueMaxSize overrides the default PipelineEdge queue depth (0 keeps
// each edge's own default).
func WithQueueMaxSize(n int) Option {
	return func(c *Config) { c.QueueMaxSize = n }
}

// WithPoolSize overrides the task engine's worker count (0 picks its
// default).
func WithPoolSize(n int) Option {
	return func(c *Config) { c.PoolSize = n }
}

var validate = validator.New()

// Graph owns a set of named nodes and edges, wires them together, and
// drives them through whichever engine its Config selects.
type Graph struct {
	Logf func(format string, v ...any)

	id   string
	name string
	cfg  Config

	mu        sync.Mutex
	nodes     map[string]*node.Node
	nodeOrder []string
	edges     map[string]edge.Edge
	edgeOrder []string

	wrappers map[string]*engine.Wrapper

	graphInputs  []edge.Edge
	graphOutputs []edge.Edge

	isConstructed bool
	isInit        bool

	eng engine.Engine
}

// New returns an empty, unconstructed graph.
func New(name string, opts ...Option) (*Graph, error) {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, errwrap.Wrapf(err, "graph: invalid config")
	}
	return &Graph{
		id:    uuid.NewString(),
		name:  name,
		cfg:   cfg,
		nodes: map[string]*node.Node{},
		edges: map[string]edge.Edge{},
	}, nil
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// ID returns the graph's stable diagnostic identity.
func (g *Graph) ID() string { return g.id }

// AddNode registers n under its own name, rejecting duplicates, and binds
// the node's parent-graph back-reference.
func (g *Graph) AddNode(n *node.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := n.NodeName()
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("graph: node name[%s] already exists", name)
	}
	n.SetGraph(g)
	n.SetParallelType(g.cfg.Parallel)
	g.nodes[name] = n
	g.nodeOrder = append(g.nodeOrder, name)
	g.isConstructed = false
	return nil
}

// CreateNode is AddNode's convenience form: it allocates a bare node.Node,
// registers it, and returns it for the caller to wire with SetRunner and
// SetInputs/SetOutputs.
func (g *Graph) CreateNode(name string) (*node.Node, error) {
	n := node.New(name)
	if err := g.AddNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddEdge registers a new edge under name, of the kind the graph's
// configured parallel mode implies, rejecting duplicates.
func (g *Graph) AddEdge(name string) (edge.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.edges[name]; exists {
		return nil, fmt.Errorf("graph: edge name[%s] already exists", name)
	}
	e := edge.New(name, g.cfg.Parallel)
	if g.cfg.QueueMaxSize > 0 {
		_ = e.SetQueueMaxSize(g.cfg.QueueMaxSize)
	}
	g.edges[name] = e
	g.edgeOrder = append(g.edgeOrder, name)
	g.isConstructed = false
	return e, nil
}

// GetEdge implements node.ParentBinder: it looks up an existing edge by
// name without creating one.
func (g *Graph) GetEdge(name string) (edge.Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[name]
	return e, ok
}

// getOrCreateEdgeLocked returns the tracked edge equal to e by name,
// registering e itself if no edge of that name exists yet. Caller must
// hold g.mu.
func (g *Graph) getOrCreateEdgeLocked(e edge.Edge) edge.Edge {
	if existing, ok := g.edges[e.Name()]; ok {
		return existing
	}
	g.edges[e.Name()] = e
	g.edgeOrder = append(g.edgeOrder, e.Name())
	return e
}

// UpdateNodeIO implements node.ParentBinder: it is the hook Node.Forward
// calls once it has bound a node's inputs/outputs, so the graph can track
// edges discovered during trace-mode construction rather than only ones
// created through AddEdge up front.
func (g *Graph) UpdateNodeIO(n *node.Node, inputs, outputs []edge.Edge) error {
	g.mu.Lock()
	for _, in := range inputs {
		g.getOrCreateEdgeLocked(in)
	}
	for _, out := range outputs {
		g.getOrCreateEdgeLocked(out)
	}
	g.isConstructed = false
	g.mu.Unlock()
	return nil
}

// Trace drives trace-mode graph construction: every registered node is
// marked as participating in tracing, the graph is
// (re)constructed from whatever inputs/outputs the nodes have already
// bound via Forward, and every node is initialized. It returns the
// resulting graph outputs — edges with no consumer.
func (g *Graph) Trace(inputs []edge.Edge) ([]edge.Edge, error) {
	g.mu.Lock()
	for _, name := range g.nodeOrder {
		g.nodes[name].SetTraceFlag(true)
	}
	g.mu.Unlock()

	if err := g.Construct(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	order := append([]string{}, g.nodeOrder...)
	g.mu.Unlock()
	for _, name := range order {
		g.mu.Lock()
		n := g.nodes[name]
		g.mu.Unlock()
		if err := n.Init(); err != nil {
			return nil, errwrap.Wrapf(err, "graph: trace init node[%s]", name)
		}
	}

	return g.Outputs(), nil
}

// Construct wires every node's declared edges into the repository,
// assigns producer/consumer relationships, promotes each edge to the kind
// the graph's parallel mode requires, derives each node's predecessor and
// successor set, and derives the graph-level input/output edges. It must
// run — and may re-run, idempotently — before InitExecuteEngine.
func (g *Graph) Construct() error {
	g.mu.Lock()
	nodeNames := append([]string{}, g.nodeOrder...)
	nodes := make([]*node.Node, len(nodeNames))
	for i, name := range nodeNames {
		nodes[i] = g.nodes[name]
	}
	g.mu.Unlock()

	for _, n := range nodes {
		for _, in := range n.AllInputs() {
			g.mu.Lock()
			tracked := g.getOrCreateEdgeLocked(in)
			g.mu.Unlock()
			tracked.IncreaseConsumers([]edge.NodeRef{n})
		}
		for _, out := range n.AllOutputs() {
			g.mu.Lock()
			tracked := g.getOrCreateEdgeLocked(out)
			g.mu.Unlock()
			tracked.IncreaseProducers([]edge.NodeRef{n})
		}
	}

	g.mu.Lock()
	for _, name := range g.edgeOrder {
		promoted := edge.Promote(g.edges[name], g.cfg.Parallel)
		if promoted != g.edges[name] && g.cfg.QueueMaxSize > 0 {
			_ = promoted.SetQueueMaxSize(g.cfg.QueueMaxSize)
		}
		g.edges[name] = promoted
	}
	edgesSnapshot := make([]edge.Edge, len(g.edgeOrder))
	for i, name := range g.edgeOrder {
		edgesSnapshot[i] = g.edges[name]
	}
	g.mu.Unlock()

	for _, e := range edgesSnapshot {
		if err := e.Construct(); err != nil {
			return errwrap.Wrapf(err, "graph: construct edge[%s]", e.Name())
		}
	}

	// Re-wire node-facing edge handles: a promoted Fixed→Pipeline edge is
	// a new value, so nodes holding the old one must be updated before
	// predecessor/successor derivation reads producer/consumer sets.
	for _, n := range nodes {
		n.MapInputs(func(e edge.Edge) edge.Edge { return g.resolveEdge(e) })
		n.MapOutputs(func(e edge.Edge) edge.Edge { return g.resolveEdge(e) })
	}

	wrappers := make(map[string]*engine.Wrapper, len(nodes))
	for _, n := range nodes {
		wrappers[n.NodeName()] = &engine.Wrapper{
			Node:    n,
			Inputs:  n.AllInputs(),
			Outputs: n.AllOutputs(),
		}
	}
	for _, w := range wrappers {
		seen := map[string]bool{}
		for _, in := range w.Inputs {
			for _, p := range in.Producers() {
				pw, ok := wrappers[p.NodeName()]
				if !ok || pw == w || seen[pw.Node.NodeName()] {
					continue
				}
				seen[pw.Node.NodeName()] = true
				w.Predecessors = append(w.Predecessors, pw)
			}
		}
	}
	for _, w := range wrappers {
		for _, pred := range w.Predecessors {
			pred.Successors = append(pred.Successors, w)
		}
	}

	var graphInputs, graphOutputs []edge.Edge
	for _, e := range edgesSnapshot {
		if len(e.Producers()) == 0 {
			graphInputs = append(graphInputs, e)
		}
		if len(e.Consumers()) == 0 {
			graphOutputs = append(graphOutputs, e)
		}
	}

	g.mu.Lock()
	g.wrappers = wrappers
	g.graphInputs = graphInputs
	g.graphOutputs = graphOutputs
	g.isConstructed = true
	g.mu.Unlock()
	return nil
}

// resolveEdge returns the repository's tracked edge sharing e's name, or e
// itself if none is tracked (should not happen after getOrCreateEdgeLocked
// has run for every node's edges, but guards against external callers
// handing the graph an edge it never saw).
func (g *Graph) resolveEdge(e edge.Edge) edge.Edge {
	if e == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if tracked, ok := g.edges[e.Name()]; ok {
		return tracked
	}
	return e
}

// Inputs returns the graph's derived input edges (producers == 0),
// computed by the most recent Construct.
func (g *Graph) Inputs() []edge.Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]edge.Edge, len(g.graphInputs))
	copy(out, g.graphInputs)
	return out
}

// Outputs returns the graph's derived output edges (consumers == 0),
// computed by the most recent Construct.
func (g *Graph) Outputs() []edge.Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]edge.Edge, len(g.graphOutputs))
	copy(out, g.graphOutputs)
	return out
}

// InitExecuteEngine selects an engine by the graph's configured parallel
// mode, builds the run-node subset (nodes that are a producer or consumer
// of at least one edge), topologically sorts it, and hands the order to
// the engine's Init.
func (g *Graph) InitExecuteEngine() error {
	g.mu.Lock()
	if !g.isConstructed {
		g.mu.Unlock()
		return fmt.Errorf("graph: InitExecuteEngine called before Construct")
	}
	wrappers := make([]*engine.Wrapper, 0, len(g.wrappers))
	for _, name := range g.nodeOrder {
		w, ok := g.wrappers[name]
		if !ok {
			continue
		}
		if len(w.Inputs) == 0 && len(w.Outputs) == 0 {
			continue // not wired into any edge; not part of the run set
		}
		wrappers = append(wrappers, w)
	}
	parallel := g.cfg.Parallel
	poolSize := g.cfg.PoolSize
	g.mu.Unlock()

	if len(wrappers) > 0 {
		hasStart := false
		for _, w := range wrappers {
			if len(w.Predecessors) == 0 {
				hasStart = true
				break
			}
		}
		if !hasStart {
			return dagerr.New(dagerr.CodeRuntimeMissingStart, "graph[%s]: no start node (every node in the run set has a predecessor)", g.name)
		}
	}

	order, _, unused, err := engine.TopoSortBFS(wrappers)
	if err != nil {
		return dagerr.Wrap(dagerr.CodeRuntimeCycle, err, "graph[%s]: topological sort found a cycle", g.name)
	}
	if len(unused) > 0 && g.Logf != nil {
		names := make([]string, len(unused))
		for i, w := range unused {
			names[i] = w.Node.NodeName()
		}
		g.Logf("graph[%s]: %d node(s) unreachable from any start node: %s", g.name, len(unused), strings.Join(names, ", "))
	}

	var eng engine.Engine
	switch parallel {
	case mode.Task:
		eng = enginetask.New(poolSize)
	case mode.Pipeline:
		eng = enginepipeline.New()
	default:
		eng = enginesequential.New()
	}

	if err := eng.Init(order); err != nil {
		return errwrap.Wrapf(err, "graph: engine init")
	}

	g.mu.Lock()
	g.eng = eng
	g.isInit = true
	g.mu.Unlock()
	return nil
}

// Run delegates to the selected engine.
func (g *Graph) Run() error {
	g.mu.Lock()
	eng := g.eng
	g.mu.Unlock()
	if eng == nil {
		return fmt.Errorf("graph[%s]: Run called before InitExecuteEngine", g.name)
	}
	return eng.Run()
}

// Synchronize delegates to the selected engine.
func (g *Graph) Synchronize() error {
	g.mu.Lock()
	eng := g.eng
	g.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.Synchronize()
}

// Deinit tears down the engine if one was initialized; otherwise it
// deinits every registered node directly, so a graph that is destroyed
// without ever having run still releases every node's resources.
func (g *Graph) Deinit() error {
	g.mu.Lock()
	eng := g.eng
	g.eng = nil
	g.isInit = false
	nodeNames := append([]string{}, g.nodeOrder...)
	nodes := make([]*node.Node, len(nodeNames))
	for i, name := range nodeNames {
		nodes[i] = g.nodes[name]
	}
	g.mu.Unlock()

	if eng != nil {
		return eng.Deinit()
	}
	var reterr error
	for _, n := range nodes {
		if err := n.Deinit(); err != nil {
			reterr = errwrap.Append(reterr, err)
		}
	}
	return reterr
}

// Stats returns the selected engine's per-node run_size/completed_size
// snapshot, or nil if no engine has been initialized yet.
func (g *Graph) Stats() map[string]engine.NodeStats {
	g.mu.Lock()
	eng := g.eng
	g.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.Stats()
}

// Validate returns integrity warnings about the most recently constructed
// graph shape: edges with neither producer nor consumer, and nodes wired
// to no edge at all. It never returns an error — these are advisories for
// a caller deciding whether to run, not failures of Validate itself.
func (g *Graph) Validate() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var warnings []string
	for _, name := range g.edgeOrder {
		e := g.edges[name]
		if len(e.Producers()) == 0 && len(e.Consumers()) == 0 {
			warnings = append(warnings, fmt.Sprintf("edge[%s] has neither producer nor consumer", name))
		}
	}
	for _, name := range g.nodeOrder {
		w, ok := g.wrappers[name]
		if !ok || (len(w.Inputs) == 0 && len(w.Outputs) == 0) {
			warnings = append(warnings, fmt.Sprintf("node[%s] is not wired to any edge", name))
		}
	}
	sort.Strings(warnings)
	return warnings
}

// DOT renders the graph as a Graphviz digraph string: one node per
// registered node, one edge per producer→consumer pair implied by the
// edge repository. It only builds the string — no shelling out to the
// graphviz binary, which stays outside this kernel's scope.
func (g *Graph) DOT() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", sanitizeID(g.name))
	for _, name := range g.nodeOrder {
		fmt.Fprintf(&b, "  %q;\n", name)
	}
	for _, edgeName := range g.edgeOrder {
		e := g.edges[edgeName]
		for _, p := range e.Producers() {
			for _, c := range e.Consumers() {
				fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", p.NodeName(), c.NodeName(), edgeName)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func sanitizeID(name string) string {
	if name == "" {
		return "graph"
	}
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, name)
}
