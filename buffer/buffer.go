// Package buffer defines the opaque memory contract the kernel expects
// from an external device/allocator layer. The kernel never allocates,
// frees, or otherwise interprets the bytes behind a Buffer; it only moves
// Buffer values between nodes and, when asked, deep-copies them.
package buffer

import "fmt"

// MemoryKind identifies which address space a Buffer's bytes live in.
type MemoryKind int

const (
	// MemoryNone is the zero value: no memory has been allocated yet.
	MemoryNone MemoryKind = iota
	// MemoryHost is ordinary CPU-addressable memory.
	MemoryHost
	// MemoryCUDA is NVIDIA GPU device memory.
	MemoryCUDA
	// MemoryOpenCL is OpenCL device memory (Intel/ARM/AMD/Qualcomm GPUs).
	MemoryOpenCL
)

// String renders the memory kind for logging.
func (m MemoryKind) String() string {
	switch m {
	case MemoryHost:
		return "host"
	case MemoryCUDA:
		return "cuda"
	case MemoryOpenCL:
		return "opencl"
	default:
		return "none"
	}
}

// DataType mirrors the element type carried by a Buffer, matching the
// inference back-end's own tensor datatype enumeration.
type DataType int

// Data types a Buffer's elements may hold.
const (
	DataTypeAuto DataType = iota - 1
	DataTypeFloat
	DataTypeHalf
	DataTypeInt8
	DataTypeUint8
	DataTypeInt32
	DataTypeInt64
	DataTypeUint32
)

// Info describes a Buffer's shape without carrying its bytes: the memory
// kind, element datatype, and element count.
type Info struct {
	Kind    MemoryKind
	Type    DataType
	Count   int // number of elements, not bytes
	ElemLen int // bytes per element, used to size raw allocations
}

// Size returns the byte size implied by Info.
func (i Info) Size() int { return i.Count * i.ElemLen }

// Buffer is an opaque, externally-allocated memory region. The kernel
// treats the Data slice as a byte-for-byte view onto memory it does not
// own unless External is false, in which case it is responsible for
// dropping the buffer once no packet references it.
type Buffer struct {
	Info     Info
	Data     []byte
	DataID   string
	External bool // external buffers are never freed by the kernel
}

// New wraps externally-owned bytes without copying them.
func New(info Info, data []byte, dataID string) *Buffer {
	return &Buffer{Info: info, Data: data, DataID: dataID, External: true}
}

// Alloc creates an owned buffer backed by a freshly allocated byte slice.
func Alloc(info Info) *Buffer {
	return &Buffer{Info: info, Data: make([]byte, info.Size()), External: false}
}

// DeepCopy copies the contents of this buffer into dst, reallocating dst's
// backing slice if its capacity is insufficient. It does not interpret
// cross-MemoryKind transfers (host<->device copies are a real allocator's
// job); it only guarantees dst ends up byte-identical to this buffer.
func (b *Buffer) DeepCopy(dst *Buffer) error {
	if b == nil || dst == nil {
		return fmt.Errorf("buffer: DeepCopy requires non-nil source and destination")
	}
	if cap(dst.Data) < len(b.Data) {
		dst.Data = make([]byte, len(b.Data))
	} else {
		dst.Data = dst.Data[:len(b.Data)]
	}
	copy(dst.Data, b.Data)
	dst.Info = b.Info
	dst.External = false
	return nil
}

// Size returns the number of bytes currently backing the buffer.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}
