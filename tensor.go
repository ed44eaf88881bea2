package detpipe

import (
	"encoding/binary"
	"fmt"
)

// Tensor is a single named model output buffer of 32-bit floats.  Tensors
// are produced by the inference runtime per call and borrowed read-only by
// the postprocess decoder for the duration of one decode
type Tensor struct {
	// Name is the output name reported by the runtime, may be empty
	Name string
	// Data is the raw float buffer
	Data []float32
}

// Len returns the number of elements in the tensor
func (t Tensor) Len() int {
	return len(t.Data)
}

// Outputs is the ordered collection of output tensors from one inference
// call
type Outputs struct {
	Tensors []Tensor
}

// Count returns the number of output tensors
func (o *Outputs) Count() int {
	return len(o.Tensors)
}

// Get returns the tensor at the given index
func (o *Outputs) Get(idx int) (Tensor, error) {

	if idx < 0 || idx >= len(o.Tensors) {
		return Tensor{}, fmt.Errorf("output tensor index %d out of range, model has %d outputs",
			idx, len(o.Tensors))
	}

	return o.Tensors[idx], nil
}

// Float16ToFloat32 converts a raw little endian float16 buffer into float32
// values.  Some runtimes emit half precision output tensors, the decoder
// only consumes float32
func Float16ToFloat32(raw []byte) ([]float32, error) {

	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("float16 buffer has odd length %d", len(raw))
	}

	out := make([]float32, len(raw)/2)

	for i := range out {
		bits := binary.LittleEndian.Uint16(raw[i*2:])
		out[i] = f16LookupTable[bits]
	}

	return out, nil
}
