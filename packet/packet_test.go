package packet

import (
	"sync"
	"testing"
	"time"

	"github.com/dagkernel/dagkernel/buffer"
)

func TestDataPacketSetGet(t *testing.T) {
	p := New()
	if p.Written() {
		t.Fatal("fresh packet should not be written")
	}
	buf := buffer.Alloc(buffer.Info{Count: 1, ElemLen: 1})
	p.Set(BufferPayload{Buffer: buf}, true)
	if !p.Written() {
		t.Fatal("packet should be written after Set")
	}
	got := p.GetBuffer()
	if got != buf {
		t.Fatal("GetBuffer() did not return the buffer that was Set")
	}
}

func TestDataPacketGetBufferWrongType(t *testing.T) {
	p := New()
	p.Set(CustomPayload{TypeID: "x", Value: 42}, true)
	if got := p.GetBuffer(); got != nil {
		t.Fatalf("GetBuffer() on a CustomPayload packet = %v, want nil", got)
	}
}

func TestDataPacketGetCustom(t *testing.T) {
	p := New()
	p.Set(CustomPayload{TypeID: "frame", Value: 7}, true)
	v, ok := p.GetCustom("frame")
	if !ok || v != 7 {
		t.Fatalf("GetCustom(frame) = (%v, %v), want (7, true)", v, ok)
	}
	if _, ok := p.GetCustom("other"); ok {
		t.Fatal("GetCustom with mismatched type id should fail")
	}
}

func TestNotifyWriteMismatchIsNoop(t *testing.T) {
	p := New()
	buf := buffer.Alloc(buffer.Info{Count: 1, ElemLen: 1})
	p.Set(BufferPayload{Buffer: buf}, true)

	other := BufferPayload{Buffer: buffer.Alloc(buffer.Info{Count: 1, ElemLen: 1})}
	if ok := p.NotifyWrite(other); ok {
		t.Fatal("NotifyWrite with a mismatched payload should return false")
	}
	if ok := p.NotifyWrite(BufferPayload{Buffer: buf}); !ok {
		t.Fatal("NotifyWrite with the stored payload should return true")
	}
}

type dropRecorder struct{ dropped *bool }

func (d dropRecorder) isPayload() {}
func (d dropRecorder) Drop()      { *d.dropped = true }

func TestOwnedPacketDropsOldPayload(t *testing.T) {
	p := New()
	dropped := false
	p.Set(dropRecorder{dropped: &dropped}, false)
	p.Set(CustomPayload{TypeID: "y"}, true)
	if !dropped {
		t.Fatal("replacing an owned payload should have called Drop")
	}
}

func TestExternalPacketDoesNotDrop(t *testing.T) {
	p := New()
	dropped := false
	p.Set(dropRecorder{dropped: &dropped}, true)
	p.Set(CustomPayload{TypeID: "y"}, true)
	if dropped {
		t.Fatal("replacing an external payload should not call Drop")
	}
}

func TestPipelineGetBlockingWaitsForWrite(t *testing.T) {
	p := NewPipeline(1)
	buf := buffer.Alloc(buffer.Info{Count: 1, ElemLen: 1})

	done := make(chan Payload, 1)
	go func() {
		done <- p.GetBlocking()
	}()

	select {
	case <-done:
		t.Fatal("GetBlocking returned before the packet was written")
	case <-time.After(20 * time.Millisecond):
	}

	p.SetBlocking(BufferPayload{Buffer: buf}, true)

	select {
	case got := <-done:
		bp, ok := got.(BufferPayload)
		if !ok || bp.Buffer != buf {
			t.Fatalf("GetBlocking() = %v, want BufferPayload{%v}", got, buf)
		}
	case <-time.After(time.Second):
		t.Fatal("GetBlocking did not unblock after SetBlocking")
	}
}

func TestPipelineConsumersCounting(t *testing.T) {
	p := NewPipeline(2)
	if p.FullyConsumed() {
		t.Fatal("a packet with no consumer observations should not be fully consumed")
	}
	if n := p.IncreaseConsumersCount(); n != 1 {
		t.Fatalf("IncreaseConsumersCount() = %d, want 1", n)
	}
	if p.FullyConsumed() {
		t.Fatal("one of two required observations should not be fully consumed")
	}
	p.IncreaseConsumersCount()
	if !p.FullyConsumed() {
		t.Fatal("two of two required observations should be fully consumed")
	}
}

func TestPipelineIncreaseConsumersSize(t *testing.T) {
	p := NewPipeline(1)
	p.IncreaseConsumersSize()
	if p.ConsumersSize() != 2 {
		t.Fatalf("ConsumersSize() = %d, want 2", p.ConsumersSize())
	}
}

func TestPipelineConcurrentGetBlocking(t *testing.T) {
	p := NewPipeline(3)
	buf := buffer.Alloc(buffer.Info{Count: 1, ElemLen: 1})

	var wg sync.WaitGroup
	results := make([]Payload, 3)
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.GetBlocking()
		}()
	}
	time.Sleep(10 * time.Millisecond)
	p.SetBlocking(BufferPayload{Buffer: buf}, true)
	wg.Wait()

	for i, r := range results {
		bp, ok := r.(BufferPayload)
		if !ok || bp.Buffer != buf {
			t.Fatalf("consumer %d got %v, want BufferPayload{%v}", i, r, buf)
		}
	}
}
