package cpu

import (
	"math"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return unaryOp("exp", x,
		func(v float32) float32 { return float32(math.Exp(float64(v))) },
		math.Exp)
}

// Sqrt computes the square root element-wise.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return unaryOp("sqrt", x,
		func(v float32) float32 { return float32(math.Sqrt(float64(v))) },
		math.Sqrt)
}

// ClampMin computes max(x, minValue) element-wise. NaN inputs stay NaN.
func (cpu *CPUBackend) ClampMin(x *tensor.RawTensor, minValue any) *tensor.RawTensor {
	m := toFloat64("clampmin", minValue)
	m32 := float32(m)
	return unaryOp("clampmin", x,
		func(v float32) float32 {
			if v < m32 {
				return m32
			}
			return v
		},
		func(v float64) float64 {
			if v < m {
				return m
			}
			return v
		})
}

func unaryOp(
	op string,
	x *tensor.RawTensor,
	f32 func(float32) float32,
	f64 func(float64) float64,
) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), x.DType())
	switch x.DType() {
	case tensor.Float32:
		mapUnary(result.AsFloat32(), x.AsFloat32(), f32)
	case tensor.Float64:
		mapUnary(result.AsFloat64(), x.AsFloat64(), f64)
	default:
		exceptions.Panicf("%s: unsupported dtype %s (only float32/float64 supported)", op, x.DType())
	}
	return result
}
