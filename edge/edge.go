// Package edge implements the two edge kinds a graph wires between nodes:
// FixedEdge, a single overwritten slot with no backpressure, and
// PipelineEdge, a bounded FIFO of packets with per-consumer cursors and
// condition-variable backpressure. Edge is the facade a node actually
// holds — a tagged sum type over the two concrete kinds, so callers never
// need a type switch to use either one.
package edge

import (
	"sync"

	"github.com/dagkernel/dagkernel/dagerr"
	"github.com/dagkernel/dagkernel/mode"
	"github.com/dagkernel/dagkernel/packet"
)

// NodeRef identifies a node to an edge without the edge package needing to
// import node — node in turn implements this with *node.Node, so edge and
// node can depend on each other's public surface without an import cycle.
type NodeRef interface {
	NodeName() string
}

// Edge is implemented by FixedEdge and PipelineEdge. A node only ever
// holds this interface, never a concrete edge type.
type Edge interface {
	Name() string
	SetQueueMaxSize(n int) error
	Construct() error
	Set(value packet.Payload, external bool) error
	NotifyWrite(value packet.Payload) bool
	Get(consumer NodeRef) packet.Payload
	GetGraphOutput() packet.Payload
	Update(consumer NodeRef) mode.UpdateFlag
	RequestTerminate() bool

	Producers() []NodeRef
	Consumers() []NodeRef
	IncreaseProducers(producers []NodeRef)
	IncreaseConsumers(consumers []NodeRef)
}

// base holds the bookkeeping both edge kinds need: the producer/consumer
// node sets and the terminate flag. It is not itself exported — each
// concrete edge embeds it and adds its own locking around the fields it
// also touches.
type base struct {
	name      string
	mu        sync.Mutex
	producers []NodeRef
	consumers []NodeRef
	terminate bool
	index     int64
}

// Name returns the edge's name, stable for its lifetime.
func (b *base) Name() string { return b.name }

func (b *base) Producers() []NodeRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]NodeRef, len(b.producers))
	copy(out, b.producers)
	return out
}

func (b *base) Consumers() []NodeRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]NodeRef, len(b.consumers))
	copy(out, b.consumers)
	return out
}

func (b *base) IncreaseProducers(producers []NodeRef) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.producers = insertUnique(b.producers, producers)
}

func (b *base) IncreaseConsumers(consumers []NodeRef) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = insertUnique(b.consumers, consumers)
}

func insertUnique(into []NodeRef, add []NodeRef) []NodeRef {
	for _, a := range add {
		found := false
		for _, existing := range into {
			if existing == a {
				found = true
				break
			}
		}
		if !found {
			into = append(into, a)
		}
	}
	return into
}

// nextIndex takes base.mu itself: FixedEdge.Set calls this while holding
// its own dataMu, and FixedEdge.Index reads the same field under base.mu,
// so both must agree on the one lock that actually protects index.
func (b *base) nextIndex() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.index++
	return b.index
}

func (b *base) isConsumer(node NodeRef) bool {
	for _, c := range b.consumers {
		if c == node {
			return true
		}
	}
	return false
}

// errNotImplemented is returned by operations a given edge kind legitimately
// does not support (e.g. SetQueueMaxSize on a FixedEdge).
var errNotImplemented = dagerr.New(dagerr.CodeRuntimeNotImplemented, "operation not implemented for this edge kind")

// New returns the edge kind a graph running under mode would wire: Fixed
// for None/Sequential/Task, Pipeline for Pipeline.
func New(name string, parallel mode.Parallel) Edge {
	if parallel == mode.Pipeline {
		return NewPipeline(name)
	}
	return NewFixed(name)
}

// Promote upgrades an existing edge to the variant parallel requires,
// carrying over its producers and consumers. A graph's parallel mode is
// decided once at construct time, so the only promotion this kernel ever
// needs is Fixed->Pipeline; Pipeline is never demoted back to Fixed.
func Promote(e Edge, parallel mode.Parallel) Edge {
	if parallel != mode.Pipeline {
		return e
	}
	if _, ok := e.(*PipelineEdge); ok {
		return e
	}
	p := NewPipeline(e.Name())
	p.IncreaseProducers(e.Producers())
	p.IncreaseConsumers(e.Consumers())
	return p
}
