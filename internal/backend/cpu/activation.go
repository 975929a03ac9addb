package cpu

import (
	"math"

	"github.com/born-ml/gaam/internal/parallel"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Softmax computes exp(x_i - max) / Σ_j exp(x_j - max) along dim.
// Subtracting the lane maximum keeps the exponentials bounded.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	d, err := shape.NormalizeDim(dim)
	if err != nil {
		exceptions.Panicf("softmax: %v", err)
	}

	result := tensor.MustNewRaw(shape, x.DType())
	outer, inner := shape.OuterInner(d)
	n := shape[d]

	switch x.DType() {
	case tensor.Float32:
		softmaxLanes(result.AsFloat32(), x.AsFloat32(), outer, inner, n, cpu.parallel)
	case tensor.Float64:
		softmaxLanes(result.AsFloat64(), x.AsFloat64(), outer, inner, n, cpu.parallel)
	default:
		exceptions.Panicf("softmax: unsupported dtype %s", x.DType())
	}
	return result
}

func softmaxLanes[T float32 | float64](dst, src []T, outer, inner, n int, cfg parallel.Config) {
	parallel.For(outer*inner, func(lane int) {
		o, i := lane/inner, lane%inner
		base := o*n*inner + i

		maxVal := math.Inf(-1)
		for k := 0; k < n; k++ {
			maxVal = math.Max(maxVal, float64(src[base+k*inner]))
		}

		var sum float64
		for k := 0; k < n; k++ {
			e := math.Exp(float64(src[base+k*inner]) - maxVal)
			dst[base+k*inner] = T(e)
			sum += e
		}
		for k := 0; k < n; k++ {
			dst[base+k*inner] = T(float64(dst[base+k*inner]) / sum)
		}
	}, cfg)
}
