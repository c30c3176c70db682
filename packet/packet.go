// Package packet implements DataPacket, the single unit of data carried by
// an edge. A packet holds exactly one Payload — either a buffer.Buffer or
// an application-defined value tagged with a type id — and is either
// external (the packet never drops it) or owned (the packet drops it on
// replacement or destruction).
package packet

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dagkernel/dagkernel/buffer"
)

// Payload is the sum type a DataPacket may carry. Only the two concrete
// carriers below implement it.
type Payload interface {
	isPayload()
}

// BufferPayload wraps a buffer.Buffer as a packet's payload.
type BufferPayload struct {
	Buffer *buffer.Buffer
}

func (BufferPayload) isPayload() {}

// CustomPayload wraps an application-defined value, tagged with a type id
// so that GetCustom can refuse a mismatched read instead of panicking.
type CustomPayload struct {
	TypeID string
	Value  any
}

func (CustomPayload) isPayload() {}

// Dropper is implemented by payload values that need explicit cleanup when
// an owned packet is replaced or destroyed (e.g. a pooled buffer). It is
// optional: most CustomPayload values need no cleanup.
type Dropper interface {
	Drop()
}

// DataPacket is one unit of data flowing across an edge. The zero value is
// an empty, unwritten packet.
type DataPacket struct {
	mu       sync.Mutex
	payload  Payload
	external bool
	written  bool
	index    int64
	id       string // diagnostic correlation id, independent of index
}

// New returns an empty packet ready for Set/Create.
func New() *DataPacket {
	return &DataPacket{id: uuid.NewString()}
}

// ID returns the packet's diagnostic correlation id.
func (p *DataPacket) ID() string { return p.id }

// dropLocked drops the current payload if this packet owns it. Caller must
// hold p.mu.
func (p *DataPacket) dropLocked() {
	if !p.external && p.payload != nil {
		if d, ok := p.payload.(Dropper); ok {
			d.Drop()
		}
	}
	p.payload = nil
}

// Set installs value as the packet's payload. If external is false, the
// packet takes ownership and will drop the old value (and eventually this
// one) on replacement/destruction.
func (p *DataPacket) Set(value Payload, external bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked()
	p.payload = value
	p.external = external
	p.written = true
}

// NotifyWrite marks the packet written iff the stored payload == want: for a
// BufferPayload that means the same buffer pointer, for a CustomPayload an
// equal TypeID and Value. A mismatch is a no-op that returns false — never
// an error.
func (p *DataPacket) NotifyWrite(want Payload) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payload != want {
		return false
	}
	p.written = true
	return true
}

// Written reports whether the packet has been written at least once.
func (p *DataPacket) Written() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Get returns the packet's current payload. Callers needing type-checked
// access should use GetBuffer/GetCustom below.
func (p *DataPacket) Get() Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payload
}

// GetBuffer returns the packet's payload as a *buffer.Buffer, or nil if the
// stored payload is not a BufferPayload.
func (p *DataPacket) GetBuffer() *buffer.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	bp, ok := p.payload.(BufferPayload)
	if !ok {
		return nil
	}
	return bp.Buffer
}

// GetCustom returns the packet's payload as a CustomPayload, or the zero
// value and false if the stored payload is not a CustomPayload matching
// typeID.
func (p *DataPacket) GetCustom(typeID string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp, ok := p.payload.(CustomPayload)
	if !ok || cp.TypeID != typeID {
		return nil, false
	}
	return cp.Value, true
}

// SetIndex stores the monotonically increasing index assigned by the
// enclosing edge.
func (p *DataPacket) SetIndex(index int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = index
}

// Index returns the packet's edge-assigned index.
func (p *DataPacket) Index() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Destroy drops the payload if owned. Safe to call multiple times.
func (p *DataPacket) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked()
	p.external = true
	p.written = false
}

// Pipeline wraps a DataPacket with the per-consumer accounting a
// PipelineEdge needs: how many consumers must observe this packet before it
// can be reclaimed, how many have, and a condition variable so GetBlocking
// can block until the producer has written it. The promoted DataPacket.Get
// does not block.
type Pipeline struct {
	DataPacket

	mu             sync.Mutex
	cond           *sync.Cond
	consumersSize  int
	consumersCount int
}

// NewPipeline returns a packet that requires consumersSize distinct
// consumer observations before it becomes eligible for reclamation.
func NewPipeline(consumersSize int) *Pipeline {
	p := &Pipeline{consumersSize: consumersSize}
	p.DataPacket.id = uuid.NewString()
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetBlocking installs value and wakes any goroutine blocked in GetBlocking.
func (p *Pipeline) SetBlocking(value Payload, external bool) {
	p.mu.Lock()
	p.DataPacket.Set(value, external)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// NotifyWriteBlocking behaves like DataPacket.NotifyWrite but wakes any
// goroutine blocked in GetBlocking on success.
func (p *Pipeline) NotifyWriteBlocking(want Payload) bool {
	p.mu.Lock()
	ok := p.DataPacket.NotifyWrite(want)
	if ok {
		p.cond.Broadcast()
	}
	p.mu.Unlock()
	return ok
}

// GetBlocking blocks until the packet has been written, then returns its
// payload. Safe to call from multiple consumers concurrently.
func (p *Pipeline) GetBlocking() Payload {
	p.mu.Lock()
	for !p.DataPacket.written {
		p.cond.Wait()
	}
	payload := p.DataPacket.payload
	p.mu.Unlock()
	return payload
}

// IncreaseConsumersSize grows the number of consumers required before this
// packet can be reclaimed. Used when a consumer registers after the packet
// was allocated.
func (p *Pipeline) IncreaseConsumersSize() {
	p.mu.Lock()
	p.consumersSize++
	p.mu.Unlock()
}

// IncreaseConsumersCount records one more consumer observation.
func (p *Pipeline) IncreaseConsumersCount() int {
	p.mu.Lock()
	p.consumersCount++
	n := p.consumersCount
	p.mu.Unlock()
	return n
}

// ConsumersSize returns the number of consumers required.
func (p *Pipeline) ConsumersSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumersSize
}

// ConsumersCount returns the number of consumer observations so far.
func (p *Pipeline) ConsumersCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumersCount
}

// FullyConsumed reports whether every registered consumer has observed
// this packet, i.e. it is eligible for reclamation (subject also to no
// consumer still holding it as "currently consuming" — tracked by the
// owning PipelineEdge, not here).
func (p *Pipeline) FullyConsumed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumersCount >= p.consumersSize
}
