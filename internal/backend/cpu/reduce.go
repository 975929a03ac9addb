package cpu

import (
	"github.com/born-ml/gaam/internal/parallel"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Sum reduces all elements to a 0-D tensor.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustNewRaw(tensor.Shape{}, x.DType())
	switch x.DType() {
	case tensor.Float32:
		var acc float32
		for _, v := range x.AsFloat32() {
			acc += v
		}
		result.AsFloat32()[0] = acc
	case tensor.Float64:
		var acc float64
		for _, v := range x.AsFloat64() {
			acc += v
		}
		result.AsFloat64()[0] = acc
	default:
		exceptions.Panicf("sum: unsupported dtype %s", x.DType())
	}
	return result
}

// SumDim sums along dim. With keepDim the reduced dimension stays as size 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("sumdim", x, dim, keepDim, false)
}

// MeanDim averages along dim. With keepDim the reduced dimension stays as size 1.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("meandim", x, dim, keepDim, true)
}

func (cpu *CPUBackend) reduceDim(op string, x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	shape := x.Shape()
	d, err := shape.NormalizeDim(dim)
	if err != nil {
		exceptions.Panicf("%s: %v", op, err)
	}

	result := tensor.MustNewRaw(reducedShape(shape, d, keepDim), x.DType())
	outer, inner := shape.OuterInner(d)
	n := shape[d]

	switch x.DType() {
	case tensor.Float32:
		reduceLanes(result.AsFloat32(), x.AsFloat32(), outer, inner, n, mean, cpu.parallel)
	case tensor.Float64:
		reduceLanes(result.AsFloat64(), x.AsFloat64(), outer, inner, n, mean, cpu.parallel)
	default:
		exceptions.Panicf("%s: unsupported dtype %s", op, x.DType())
	}
	return result
}

// reduceLanes sums each of the outer*inner lanes of length n.
func reduceLanes[T float32 | float64](dst, src []T, outer, inner, n int, mean bool, cfg parallel.Config) {
	parallel.For(outer*inner, func(lane int) {
		o, i := lane/inner, lane%inner
		base := o*n*inner + i
		var acc T
		for k := 0; k < n; k++ {
			acc += src[base+k*inner]
		}
		if mean && n > 0 {
			acc /= T(n)
		}
		dst[lane] = acc
	}, cfg)
}

func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	if keepDim {
		out := shape.Clone()
		out[dim] = 1
		return out
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	out = append(out, shape[:dim]...)
	return append(out, shape[dim+1:]...)
}
