package cpu

import (
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Where selects x where condition is true and y elsewhere. The three
// operands broadcast to a common shape.
func (cpu *CPUBackend) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	if condition.DType() != tensor.Bool {
		exceptions.Panicf("where: condition must be bool, got %s", condition.DType())
	}
	if x.DType() != y.DType() {
		exceptions.Panicf("where: dtype mismatch %s vs %s", x.DType(), y.DType())
	}

	outShape, _ := tensor.MustBroadcastShapes("where", condition.Shape(), x.Shape())
	outShape, _ = tensor.MustBroadcastShapes("where", outShape, y.Shape())
	result := tensor.MustNewRaw(outShape, x.DType())

	outStrides := outShape.ComputeStrides()
	cStrides := tensor.BroadcastStrides(condition.Shape(), outShape)
	xStrides := tensor.BroadcastStrides(x.Shape(), outShape)
	yStrides := tensor.BroadcastStrides(y.Shape(), outShape)
	cond := condition.AsBool()

	switch x.DType() {
	case tensor.Float32:
		whereKernel(result.AsFloat32(), cond, x.AsFloat32(), y.AsFloat32(), outStrides, cStrides, xStrides, yStrides)
	case tensor.Float64:
		whereKernel(result.AsFloat64(), cond, x.AsFloat64(), y.AsFloat64(), outStrides, cStrides, xStrides, yStrides)
	case tensor.Bool:
		whereKernel(result.AsBool(), cond, x.AsBool(), y.AsBool(), outStrides, cStrides, xStrides, yStrides)
	default:
		exceptions.Panicf("where: unsupported dtype %s", x.DType())
	}
	return result
}

func whereKernel[T any](dst []T, cond []bool, x, y []T, outStrides, cStrides, xStrides, yStrides []int) {
	for i := range dst {
		if cond[computeFlatIndex(i, outStrides, cStrides)] {
			dst[i] = x[computeFlatIndex(i, outStrides, xStrides)]
		} else {
			dst[i] = y[computeFlatIndex(i, outStrides, yStrides)]
		}
	}
}
