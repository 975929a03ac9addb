package ops

import "github.com/born-ml/gaam/internal/tensor"

// SoftmaxOp represents softmax along an arbitrary dimension.
//
// Backward:
//
//	∂softmax_i/∂x_j = softmax_i * (δ_ij - softmax_j)
//	∂L/∂x = softmax * (grad - Σ_dim(grad * softmax))
type SoftmaxOp struct {
	unary
	dim int
}

// NewSoftmaxOp creates a new SoftmaxOp.
func NewSoftmaxOp(x, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{unary: unary{input: x, output: output}, dim: dim}
}

// Backward computes the gradient with respect to the softmax input.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dot := backend.SumDim(backend.Mul(outputGrad, op.output), op.dim, true)
	return []*tensor.RawTensor{backend.Mul(op.output, backend.Sub(outputGrad, dot))}
}
