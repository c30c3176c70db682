package edge

import (
	"sync"

	"github.com/dagkernel/dagkernel/mode"
	"github.com/dagkernel/dagkernel/packet"
)

// defaultQueueMaxSize is used when a pipeline edge's SetQueueMaxSize is
// never called.
const defaultQueueMaxSize = 16

// PipelineEdge is a bounded FIFO of packets shared by one producer and any
// number of consumers, each tracked by its own cursor into the queue. A
// packet is dropped once every registered consumer has observed it and
// none is still mid-read of it, and only in queue-prefix order.
type PipelineEdge struct {
	base

	mu           sync.Mutex
	notEmpty     *sync.Cond
	notFull      *sync.Cond
	queueMaxSize int

	consumersSize int
	packets       []*packet.Pipeline

	toConsumeIndex   map[NodeRef]int
	currentlyConsume map[NodeRef]*packet.Pipeline
}

// NewPipeline returns a named pipeline edge with the default queue size;
// call SetQueueMaxSize before Construct to override it.
func NewPipeline(name string) *PipelineEdge {
	p := &PipelineEdge{
		queueMaxSize:     defaultQueueMaxSize,
		toConsumeIndex:   map[NodeRef]int{},
		currentlyConsume: map[NodeRef]*packet.Pipeline{},
	}
	p.base.name = name
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// SetQueueMaxSize bounds how many unconsumed packets may queue before the
// producer blocks.
func (p *PipelineEdge) SetQueueMaxSize(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queueMaxSize = n
	return nil
}

// Construct initializes a zero cursor and empty in-flight slot for every
// consumer currently registered on the edge. Must run after all consumers
// have been wired, before the first Set.
func (p *PipelineEdge) Construct() error {
	consumers := p.base.Consumers()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumersSize = len(consumers)
	for _, c := range consumers {
		if _, ok := p.toConsumeIndex[c]; !ok {
			p.toConsumeIndex[c] = 0
		}
		if _, ok := p.currentlyConsume[c]; !ok {
			p.currentlyConsume[c] = nil
		}
	}
	return nil
}

// Set appends a new packet carrying value to the back of the queue,
// blocking while the queue is at capacity and the edge has at least one
// consumer. Edges with no consumers never block (there is nothing to
// drain them, so capacity is meaningless). A producer still blocked when
// RequestTerminate fires is released and Set returns nil without
// appending anything, rather than hanging past the edge's own shutdown.
func (p *PipelineEdge) Set(value packet.Payload, external bool) error {
	p.mu.Lock()
	if p.consumersSize > 0 {
		for len(p.packets) >= p.queueMaxSize && !p.base.terminate {
			p.notFull.Wait()
		}
	}
	if p.base.terminate {
		p.mu.Unlock()
		return nil
	}
	np := packet.NewPipeline(p.consumersSize)
	np.SetIndex(p.base.nextIndex())
	p.packets = append(p.packets, np)
	p.notEmpty.Broadcast()
	p.mu.Unlock()

	np.SetBlocking(value, external)
	return nil
}

// NotifyWrite marks the most recently allocated matching packet written,
// searching from the back since that is where an in-flight Set's packet
// will be.
func (p *PipelineEdge) NotifyWrite(value packet.Payload) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.packets) - 1; i >= 0; i-- {
		if p.packets[i].NotifyWriteBlocking(value) {
			return true
		}
	}
	return false
}

// Get returns the payload of the packet consumer last claimed via Update,
// then releases consumer's hold on it, making it eligible for reclamation
// once every other consumer has done the same. A caller that is not a
// registered consumer (the producer, or a graph-output reader) gets a
// non-blocking peek of the back of the queue instead.
func (p *PipelineEdge) Get(consumer NodeRef) packet.Payload {
	p.mu.Lock()
	dp, isConsumer := p.currentlyConsume[consumer]
	if !isConsumer {
		if len(p.packets) == 0 {
			p.mu.Unlock()
			return nil
		}
		back := p.packets[len(p.packets)-1]
		p.mu.Unlock()
		return back.Get()
	}
	p.mu.Unlock()
	if dp == nil {
		return nil
	}
	payload := dp.GetBlocking()

	p.mu.Lock()
	if p.currentlyConsume[consumer] == dp {
		p.currentlyConsume[consumer] = nil
		p.reclaimLocked()
	}
	p.mu.Unlock()
	return payload
}

// GetGraphOutput implements the graph-output fast path: when an edge has
// no registered consumer, reading it simply returns the back packet's
// value, bypassing the cursor/reclamation machinery entirely.
func (p *PipelineEdge) GetGraphOutput() packet.Payload {
	p.mu.Lock()
	if p.base.terminate {
		p.mu.Unlock()
		return nil
	}
	if len(p.packets) == 0 {
		p.mu.Unlock()
		return nil
	}
	back := p.packets[len(p.packets)-1]
	p.mu.Unlock()
	return back.GetBlocking()
}

// Update claims the next unconsumed packet for consumer, runs the
// reclamation pass over the queue prefix, and advances consumer's cursor.
// It blocks until a packet is available or the edge is terminated.
func (p *PipelineEdge) Update(consumer NodeRef) mode.UpdateFlag {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.base.isConsumer(consumer) {
		return mode.Error
	}

	for p.toConsumeIndex[consumer] >= len(p.packets) && !p.base.terminate {
		p.notEmpty.Wait()
	}
	if p.base.terminate {
		return mode.Terminate
	}

	idx := p.toConsumeIndex[consumer]
	dp := p.packets[idx]
	dp.IncreaseConsumersCount()
	p.currentlyConsume[consumer] = dp

	p.reclaimLocked()

	p.toConsumeIndex[consumer]++
	return mode.Complete
}

// reclaimLocked drops the longest prefix of packets that are fully
// consumed and not currently held by any consumer, in order, stopping at
// the first packet that cannot yet be dropped. Caller must hold p.mu.
func (p *PipelineEdge) reclaimLocked() {
	dropCount := 0
	for _, dp := range p.packets {
		if !dp.FullyConsumed() {
			break
		}
		held := false
		for _, heldDP := range p.currentlyConsume {
			if heldDP == dp {
				held = true
				break
			}
		}
		if held {
			break
		}
		dropCount++
	}
	if dropCount == 0 {
		return
	}

	wasFull := len(p.packets) >= p.queueMaxSize
	p.packets = p.packets[dropCount:]
	for c := range p.toConsumeIndex {
		p.toConsumeIndex[c] -= dropCount
	}
	if wasFull && len(p.packets) < p.queueMaxSize {
		p.notFull.Broadcast()
	}
}

// RequestTerminate sets the terminate flag and wakes every consumer
// blocked in Update, and every producer blocked in Set, so each can
// observe the flag and exit rather than wait on a queue state that will
// never change again.
func (p *PipelineEdge) RequestTerminate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base.terminate = true
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	return true
}
