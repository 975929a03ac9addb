package ops

import (
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
)

// ExpOp represents output = exp(x).
//
// Backward: grad_x = grad * exp(x) = grad * output.
type ExpOp struct{ unary }

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{unary{input: x, output: output}}
}

// Backward computes the gradient for exp.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// SqrtOp represents output = sqrt(x).
//
// Backward: grad_x = grad / (2 * sqrt(x)) = grad * 0.5 / output.
type SqrtOp struct{ unary }

// NewSqrtOp creates a new SqrtOp.
func NewSqrtOp(x, output *tensor.RawTensor) *SqrtOp {
	return &SqrtOp{unary{input: x, output: output}}
}

// Backward computes the gradient for sqrt.
func (op *SqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	half := backend.MulScalar(outputGrad, 0.5)
	return []*tensor.RawTensor{backend.Div(half, op.output)}
}

// ClampMinOp represents output = max(x, min).
//
// Backward: the gradient passes where x >= min and is zero where the
// clamp was active.
type ClampMinOp struct {
	unary
	minValue float64
}

// NewClampMinOp creates a new ClampMinOp. min must be float32 or float64.
func NewClampMinOp(x, output *tensor.RawTensor, minValue any) *ClampMinOp {
	var m float64
	switch v := minValue.(type) {
	case float32:
		m = float64(v)
	case float64:
		m = v
	case int:
		m = float64(v)
	default:
		exceptions.Panicf("clampmin: unsupported scalar type %T", minValue)
	}
	return &ClampMinOp{unary: unary{input: x, output: output}, minValue: m}
}

// Backward computes the gradient for clamp-min.
func (op *ClampMinOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	grad := tensor.MustNewRaw(op.input.Shape(), op.input.DType())
	switch op.input.DType() {
	case tensor.Float32:
		clampMinGrad(grad.AsFloat32(), outputGrad.AsFloat32(), op.input.AsFloat32(), float32(op.minValue))
	case tensor.Float64:
		clampMinGrad(grad.AsFloat64(), outputGrad.AsFloat64(), op.input.AsFloat64(), op.minValue)
	default:
		exceptions.Panicf("clampmin: backward unsupported dtype %s", op.input.DType())
	}
	return []*tensor.RawTensor{grad}
}

func clampMinGrad[T float32 | float64](dst, grad, x []T, m T) {
	for i, v := range x {
		if v >= m {
			dst[i] = grad[i]
		}
	}
}
