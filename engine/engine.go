// Package engine defines the contract graph.Graph drives after construct:
// Engine wraps a topologically-ordered node set and decides how to run it.
// It also carries the shared scaffolding every concrete engine needs — the node wrapper (predecessor/successor lists
// plus DFS/BFS coloring) and the two topological-sort implementations —
// so engine/sequential, engine/task and engine/pipeline can all build on
// the same graph-shape bookkeeping without graph importing any of them
// directly.
package engine

import (
	"fmt"

	"github.com/dagkernel/dagkernel/edge"
	"github.com/dagkernel/dagkernel/node"
)

// Color is a node's topological-sort visitation state.
type Color int

const (
	White Color = iota // unvisited
	Gray               // visiting / in-flight
	Black              // emitted / completed
)

func (c Color) String() string {
	switch c {
	case Gray:
		return "gray"
	case Black:
		return "black"
	default:
		return "white"
	}
}

// Wrapper decorates a node with the graph-shape information engines need:
// its derived predecessor/successor set and its current sort/run color.
// One Wrapper exists per node for the lifetime of a single Engine.
type Wrapper struct {
	Node         *node.Node
	Inputs       []edge.Edge
	Outputs      []edge.Edge
	Predecessors []*Wrapper
	Successors   []*Wrapper

	Color Color
}

// Engine is implemented by engine/sequential, engine/task and
// engine/pipeline. graph.Graph selects one by mode.Parallel and drives the
// whole graph lifecycle through it.
type Engine interface {
	// Init receives the run-node subset (nodes that are a producer or
	// consumer of at least one edge) already wrapped and topologically
	// ordered, and performs whatever one-time setup the engine variant
	// needs (e.g. spawning persistent pipeline workers).
	Init(order []*Wrapper) error
	// Run drives one full pass over the graph (task/sequential) or
	// unblocks one more pipeline stage (pipeline engine).
	Run() error
	// Synchronize blocks until in-flight work this engine is responsible
	// for has drained. Sequential and task engines implement it as a
	// documented no-op: Run only returns once a full pass has already
	// completed, so there is nothing left in flight to wait on. Only the
	// pipeline engine, whose workers keep running after Run returns, does
	// real work here.
	Synchronize() error
	// Deinit releases engine-owned resources (worker goroutines, thread
	// pools) and deinits every node exactly once.
	Deinit() error
	// Stats returns a read-only run_size/completed_size snapshot per
	// node, keyed by node name.
	Stats() map[string]NodeStats
}

// NodeStats is the read-only run_size/completed_size snapshot
// graph.Graph.Stats() surfaces per node.
type NodeStats struct {
	RunSize       uint64
	CompletedSize uint64
}

func statsFromOrder(order []*Wrapper) map[string]NodeStats {
	out := make(map[string]NodeStats, len(order))
	for _, w := range order {
		out[w.Node.NodeName()] = NodeStats{
			RunSize:       w.Node.RunSize(),
			CompletedSize: w.Node.CompletedSize(),
		}
	}
	return out
}

// Stats is the package-level helper backing every concrete engine's
// Stats() method: a uniform per-node snapshot needs no engine-specific
// state, so it lives here instead of being reimplemented three times.
func Stats(order []*Wrapper) map[string]NodeStats {
	return statsFromOrder(order)
}

// TopoSortBFS implements Kahn's algorithm: nodes with no predecessors
// start the frontier; emitting a node decrements its successors'
// remaining-predecessor count, enqueuing any that reach zero. It also
// reports the widest frontier seen, an upper bound on available
// parallelism. Wrappers left white (never reaching zero remaining
// predecessors) are listed in unused; since any such wrapper means fewer
// than all were emitted, err also reports a cycle whenever unused is
// non-empty.
func TopoSortBFS(wrappers []*Wrapper) (order []*Wrapper, maxWidth int, unused []*Wrapper, err error) {
	remaining := make(map[*Wrapper]int, len(wrappers))
	queue := make([]*Wrapper, 0, len(wrappers))
	for _, w := range wrappers {
		w.Color = White
		remaining[w] = len(w.Predecessors)
		if len(w.Predecessors) == 0 {
			queue = append(queue, w)
		}
	}

	for len(queue) > 0 {
		if len(queue) > maxWidth {
			maxWidth = len(queue)
		}
		next := queue[0]
		queue = queue[1:]
		if next.Color == Black {
			continue
		}
		next.Color = Black
		order = append(order, next)
		for _, succ := range next.Successors {
			remaining[succ]--
			if remaining[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(order) < len(wrappers) {
		err = fmt.Errorf("topological sort: cycle detected (%d of %d nodes emitted)", len(order), len(wrappers))
	}
	for _, w := range wrappers {
		if w.Color == White {
			unused = append(unused, w)
		}
	}
	return order, maxWidth, unused, err
}

// TopoSortDFS implements the three-color recursive sort: gray marks a
// node currently on the recursion stack, so revisiting a gray node is a
// cycle. Nodes are emitted in reverse post-order, a valid topological
// order for an acyclic graph, though not necessarily the same one
// TopoSortBFS produces. The driving loop below revisits every
// wrapper still white, not just ones with no predecessors, so a cycle
// reachable only from within itself is still found; in exchange, unused
// is always empty here on a non-error return — every wrapper ends up
// visited one way or another. It is kept only for signature parity with
// TopoSortBFS, where a cycle can still leave unvisited wrappers behind.
func TopoSortDFS(wrappers []*Wrapper) (order []*Wrapper, unused []*Wrapper, err error) {
	for _, w := range wrappers {
		w.Color = White
	}

	var visit func(w *Wrapper) error
	var post []*Wrapper
	visit = func(w *Wrapper) error {
		switch w.Color {
		case Black:
			return nil
		case Gray:
			return fmt.Errorf("topological sort: cycle detected at node[%s]", w.Node.NodeName())
		}
		w.Color = Gray
		for _, succ := range w.Successors {
			if err := visit(succ); err != nil {
				return err
			}
		}
		w.Color = Black
		post = append(post, w)
		return nil
	}

	for _, w := range wrappers {
		if w.Color == White {
			if verr := visit(w); verr != nil {
				return nil, nil, verr
			}
		}
	}

	order = make([]*Wrapper, len(post))
	for i, w := range post {
		order[len(post)-1-i] = w
	}
	for _, w := range wrappers {
		if w.Color == White {
			unused = append(unused, w)
		}
	}
	return order, unused, nil
}
