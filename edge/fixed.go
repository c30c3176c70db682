package edge

import (
	"sync"

	"github.com/dagkernel/dagkernel/mode"
	"github.com/dagkernel/dagkernel/packet"
)

// FixedEdge is a single overwritten packet slot: every Set replaces the
// previous value outright and no consumer observation is tracked, so a
// late consumer simply sees whichever value is current.
type FixedEdge struct {
	base

	dataMu sync.Mutex
	pack   *packet.DataPacket
}

// NewFixed returns a ready-to-use, named FixedEdge.
func NewFixed(name string) *FixedEdge {
	f := &FixedEdge{pack: packet.New()}
	f.base.name = name
	return f
}

// SetQueueMaxSize has no meaning for a fixed edge; it is kept only to
// satisfy the Edge interface and always fails.
func (f *FixedEdge) SetQueueMaxSize(n int) error {
	return errNotImplemented
}

// Construct is a no-op: a fixed edge needs no per-consumer setup.
func (f *FixedEdge) Construct() error {
	return nil
}

// Set replaces the packet's payload, bumping the edge's index. No signal
// is sent; fixed edges have no waiters.
func (f *FixedEdge) Set(value packet.Payload, external bool) error {
	f.dataMu.Lock()
	defer f.dataMu.Unlock()
	f.pack.SetIndex(f.base.nextIndex())
	f.pack.Set(value, external)
	return nil
}

// NotifyWrite marks the packet written if value matches what is stored.
func (f *FixedEdge) NotifyWrite(value packet.Payload) bool {
	return f.pack.NotifyWrite(value)
}

// Get returns the current payload without blocking; the consumer argument
// is accepted only to satisfy Edge and is otherwise unused, since fixed
// edges track no per-consumer state.
func (f *FixedEdge) Get(consumer NodeRef) packet.Payload {
	return f.pack.Get()
}

// GetGraphOutput returns the same value Get would, since a fixed edge has
// only one slot regardless of who reads it.
func (f *FixedEdge) GetGraphOutput() packet.Payload {
	return f.pack.Get()
}

// Update reports Terminate once RequestTerminate has been called, else
// Complete. Fixed edges never report Error.
func (f *FixedEdge) Update(consumer NodeRef) mode.UpdateFlag {
	f.base.mu.Lock()
	defer f.base.mu.Unlock()
	if f.base.terminate {
		return mode.Terminate
	}
	return mode.Complete
}

// RequestTerminate sets the terminate flag; idempotent.
func (f *FixedEdge) RequestTerminate() bool {
	f.base.mu.Lock()
	defer f.base.mu.Unlock()
	f.base.terminate = true
	return true
}

// Index returns the edge's own notion of the packet index — never
// delegated to the packet itself, so a packet shared across edges can
// never leave this edge with a stale index.
func (f *FixedEdge) Index() int64 {
	f.base.mu.Lock()
	defer f.base.mu.Unlock()
	return f.base.index
}
