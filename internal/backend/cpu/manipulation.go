package cpu

import (
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Reshape returns a copy of x with newShape. A single -1 entry is inferred.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	shape := inferShape(newShape, x.NumElements())
	if shape.NumElements() != x.NumElements() {
		exceptions.Panicf("reshape: cannot reshape %v (%d elements) into %v",
			x.Shape(), x.NumElements(), newShape)
	}
	result := tensor.MustNewRaw(shape, x.DType())
	copy(result.Data(), x.Data())
	return result
}

func inferShape(shape tensor.Shape, total int) tensor.Shape {
	out := shape.Clone()
	inferred := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if inferred >= 0 {
				exceptions.Panicf("reshape: only one dimension can be -1, got %v", shape)
			}
			inferred = i
			continue
		}
		known *= d
	}
	if inferred >= 0 && known > 0 {
		out[inferred] = total / known
	}
	return out
}

// Narrow copies the slice [start, start+length) of x along dim.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	d, err := shape.NormalizeDim(dim)
	if err != nil {
		exceptions.Panicf("narrow: %v", err)
	}
	n := shape[d]
	if start < 0 || length < 1 || start+length > n {
		exceptions.Panicf("narrow: range [%d, %d) out of bounds for dimension %d of size %d",
			start, start+length, d, n)
	}

	outShape := shape.Clone()
	outShape[d] = length
	result := tensor.MustNewRaw(outShape, x.DType())

	outer, inner := shape.OuterInner(d)
	elem := x.DType().Size()
	srcBlock := n * inner * elem
	dstBlock := length * inner * elem
	offset := start * inner * elem

	src, dst := x.Data(), result.Data()
	for o := 0; o < outer; o++ {
		copy(dst[o*dstBlock:(o+1)*dstBlock], src[o*srcBlock+offset:o*srcBlock+offset+dstBlock])
	}
	return result
}

// Cat concatenates tensors along dim. All inputs must share dtype and
// every dimension except dim.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		exceptions.Panicf("cat: at least one tensor required")
	}
	first := tensors[0]
	shape := first.Shape()
	d, err := shape.NormalizeDim(dim)
	if err != nil {
		exceptions.Panicf("cat: %v", err)
	}

	outShape := shape.Clone()
	outShape[d] = 0
	for i, t := range tensors {
		if t.DType() != first.DType() {
			exceptions.Panicf("cat: tensor %d has dtype %s, expected %s", i, t.DType(), first.DType())
		}
		ts := t.Shape()
		if len(ts) != len(shape) {
			exceptions.Panicf("cat: tensor %d has rank %d, expected %d", i, len(ts), len(shape))
		}
		for j := range ts {
			if j != d && ts[j] != shape[j] {
				exceptions.Panicf("cat: tensor %d has shape %v, incompatible with %v along dim %d", i, ts, shape, d)
			}
		}
		outShape[d] += ts[d]
	}

	result := tensor.MustNewRaw(outShape, first.DType())
	outer, inner := shape.OuterInner(d)
	elem := first.DType().Size()
	dst := result.Data()

	pos := 0
	for o := 0; o < outer; o++ {
		for _, t := range tensors {
			block := t.Shape()[d] * inner * elem
			copy(dst[pos:pos+block], t.Data()[o*block:(o+1)*block])
			pos += block
		}
	}
	return result
}
