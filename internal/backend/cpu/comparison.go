package cpu

import (
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Equal returns a Bool tensor marking positions where a == b.
func (cpu *CPUBackend) Equal(a, b *tensor.RawTensor) *tensor.RawTensor {
	return compareOp("equal", a, b, false)
}

// NotEqual returns a Bool tensor marking positions where a != b.
// NaN compares unequal to everything, itself included.
func (cpu *CPUBackend) NotEqual(a, b *tensor.RawTensor) *tensor.RawTensor {
	return compareOp("not_equal", a, b, true)
}

func compareOp(op string, a, b *tensor.RawTensor, negate bool) *tensor.RawTensor {
	if a.DType() != b.DType() {
		exceptions.Panicf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType())
	}
	outShape, needsBroadcast := tensor.MustBroadcastShapes(op, a.Shape(), b.Shape())
	result := tensor.MustNewRaw(outShape, tensor.Bool)
	dst := result.AsBool()

	switch a.DType() {
	case tensor.Float32:
		applyBinary(dst, a.AsFloat32(), b.AsFloat32(), a.Shape(), b.Shape(), outShape, needsBroadcast,
			func(x, y float32) bool { return (x == y) != negate })
	case tensor.Float64:
		applyBinary(dst, a.AsFloat64(), b.AsFloat64(), a.Shape(), b.Shape(), outShape, needsBroadcast,
			func(x, y float64) bool { return (x == y) != negate })
	case tensor.Bool:
		applyBinary(dst, a.AsBool(), b.AsBool(), a.Shape(), b.Shape(), outShape, needsBroadcast,
			func(x, y bool) bool { return (x == y) != negate })
	default:
		exceptions.Panicf("%s: unsupported dtype %s", op, a.DType())
	}
	return result
}
