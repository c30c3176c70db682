// Package infer provides a node that drives a pluggable runnable.Runnable
// inference back-end, binding named input blobs from buffer-carrying
// packets and publishing the named output blob back onto the node's
// output edge. The back-end itself — loading a model, running it on a
// device — is left entirely to the caller-supplied runnable.Runnable;
// this package only handles the glue between edges and named blobs.
package infer

import (
	"sync"

	"github.com/dagkernel/dagkernel/dagerr"
	"github.com/dagkernel/dagkernel/node"
	"github.com/dagkernel/dagkernel/packet"
	"github.com/dagkernel/dagkernel/runnable"
)

// Node runs one forward pass of a runnable.Runnable per invocation,
// copying each declared input edge's buffer into the matching named input
// blob, and publishing the named output blob's buffer onto the node's
// first output edge.
type Node struct {
	*node.Node

	backend    runnable.Runnable
	model      any
	runtime    any
	inputNames []string
	outputName string

	initOnce sync.Once
	initErr  error
}

// Option configures a Node at construction.
type Option func(*Node)

// WithModel supplies the opaque, back-end-specific model handle passed to
// Init.
func WithModel(model any) Option {
	return func(n *Node) { n.model = model }
}

// WithRuntime supplies the opaque, back-end-specific runtime options
// passed to Init.
func WithRuntime(runtime any) Option {
	return func(n *Node) { n.runtime = runtime }
}

// New returns an infer node named name, driving backend, reading one input
// edge per name in inputNames (in order) and publishing outputName's blob
// to the node's sole output edge. The returned Node's embedded *node.Node
// is what callers pass to graph.Graph.AddNode; New wires it to dispatch
// Run through this Node via SetRunner, since the engines only ever hold
// and call through the embedded *node.Node, never the wrapping type.
func New(name string, backend runnable.Runnable, inputNames []string, outputName string, opts ...Option) *Node {
	n := &Node{
		Node:       node.New(name),
		backend:    backend,
		inputNames: inputNames,
		outputName: outputName,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.Node.SetRunner(n)
	return n
}

// Close releases the back-end. The engine lifecycle has no hook back into
// a Runner beyond Run, so callers that built a back-end needing explicit
// teardown must call Close themselves once the graph is done with this
// node (typically right after graph.Graph.Deinit).
func (n *Node) Close() error {
	return n.backend.Deinit()
}

// Run lazily initializes the back-end on first call, binds each declared
// input blob from its edge's current buffer payload, runs one forward
// pass, and publishes the declared output blob onto the node's first
// output edge.
func (n *Node) Run() error {
	n.initOnce.Do(func() {
		n.initErr = n.backend.Init(n.model, n.runtime)
	})
	if n.initErr != nil {
		return dagerr.Wrap(dagerr.CodeRuntimeNodeFailed, n.initErr, "infer node[%s]: back-end init failed", n.NodeName())
	}

	inputs := n.AllInputs()
	if len(inputs) != len(n.inputNames) {
		return dagerr.New(dagerr.CodeParamBadValue,
			"infer node[%s]: expected %d input edge(s), got %d", n.NodeName(), len(n.inputNames), len(inputs))
	}

	inBlobs := n.backend.InputBlobs()
	for i, name := range n.inputNames {
		// Edges register the embedded *node.Node (the identity the graph
		// wired as producer/consumer) as the NodeRef, not this wrapper, so
		// Get must be called with n.Node to hit the same registered cursor.
		payload := inputs[i].Get(n.Node)
		bp, ok := payload.(packet.BufferPayload)
		if !ok {
			return dagerr.New(dagerr.CodeParamBadValue,
				"infer node[%s]: input[%d] (%s) does not carry a buffer payload", n.NodeName(), i, name)
		}
		blob := findBlob(inBlobs, name)
		if blob == nil {
			return dagerr.New(dagerr.CodeParamBadName,
				"infer node[%s]: back-end has no input blob named %q", n.NodeName(), name)
		}
		if err := bp.Buffer.DeepCopy(blob.Buffer); err != nil {
			return dagerr.Wrap(dagerr.CodeCommonOOM, err, "infer node[%s]: copy into blob %q", n.NodeName(), name)
		}
	}

	if err := n.backend.Forward(); err != nil {
		return dagerr.Wrap(dagerr.CodeRuntimeNodeFailed, err, "infer node[%s]: forward failed", n.NodeName())
	}

	outBlob := findBlob(n.backend.OutputBlobs(), n.outputName)
	if outBlob == nil {
		return dagerr.New(dagerr.CodeParamBadName,
			"infer node[%s]: back-end has no output blob named %q", n.NodeName(), n.outputName)
	}
	out := n.OutputEdge(0)
	if out == nil {
		return dagerr.New(dagerr.CodeRuntimeNodeFailed, "infer node[%s]: has no output edge", n.NodeName())
	}
	return out.Set(packet.BufferPayload{Buffer: outBlob.Buffer}, true)
}

func findBlob(blobs []runnable.Blob, name string) *runnable.Blob {
	for i := range blobs {
		if blobs[i].Name == name {
			return &blobs[i]
		}
	}
	return nil
}
