// Package runnable declares the contract the kernel requires from a
// third-party inference back-end (ONNX, TensorRT, OpenVINO, MNN, ...). The
// kernel never implements this interface itself, keeping back-end adapters
// entirely external — it only calls through it from nodes such as
// nodes/infer.Node.
package runnable

import "github.com/dagkernel/dagkernel/buffer"

// DataFormat is the tensor layout a Blob is stored in.
type DataFormat int

// Layouts a back-end may report for a Blob.
const (
	DataFormatAuto DataFormat = iota - 1
	DataFormatNC
	DataFormatNCHW
	DataFormatNHWC
	DataFormatNHWC4
	DataFormatNCDHW
)

// String renders the layout for logging.
func (f DataFormat) String() string {
	switch f {
	case DataFormatNC:
		return "NC"
	case DataFormatNCHW:
		return "NCHW"
	case DataFormatNHWC:
		return "NHWC"
	case DataFormatNHWC4:
		return "NHWC4"
	case DataFormatNCDHW:
		return "NCDHW"
	default:
		return "auto"
	}
}

// Blob is a single named input or output tensor a back-end exposes.
type Blob struct {
	Name   string
	Buffer *buffer.Buffer
	Type   buffer.DataType
	Format DataFormat
	Dims   []int
}

// Runnable is the contract a third-party inference back-end must satisfy
// to be driven by a node. Implementations are expected to be safe to call
// from a single goroutine at a time per instance; the kernel never calls
// concurrently into the same Runnable.
type Runnable interface {
	// Init loads model (an opaque, back-end-specific handle) under the
	// given runtime options.
	Init(model any, runtime any) error
	// Deinit releases everything Init acquired. Idempotent.
	Deinit() error
	// Forward runs one inference pass over the currently bound inputs.
	Forward() error
	// Reshape adjusts the named inputs to new shapes for dynamic models.
	Reshape(names []string, shapes [][]int) error
	// InputBlobs returns the back-end's declared input tensors.
	InputBlobs() []Blob
	// OutputBlobs returns the back-end's declared output tensors.
	OutputBlobs() []Blob
}
