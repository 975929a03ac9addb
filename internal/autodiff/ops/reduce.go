package ops

import "github.com/born-ml/gaam/internal/tensor"

// SumOp represents output = Σ x over all elements.
//
// Backward: every input element receives the scalar gradient.
type SumOp struct{ unary }

// NewSumOp creates a new SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{unary{input: x, output: output}}
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{broadcastTo(outputGrad, op.input.Shape(), backend)}
}

// SumDimOp represents output = sum(x, dim, keepDim).
//
// Backward: grad_x = broadcast(grad_y, x.shape), after reinserting the
// reduced dimension when keepDim is false.
type SumDimOp struct {
	unary
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{unary: unary{input: x, output: output}, dim: dim, keepDim: keepDim}
}

// Backward computes the input gradient for sum reduction.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		grad = unsqueezeDim(grad, op.dim, op.input.Shape())
	}
	return []*tensor.RawTensor{broadcastTo(grad, op.input.Shape(), backend)}
}

// MeanDimOp represents output = mean(x, dim, keepDim).
//
// Backward: grad_x = broadcast(grad_y, x.shape) / size[dim].
type MeanDimOp struct {
	unary
	dim     int
	keepDim bool
	dimSize int
}

// NewMeanDimOp creates a new MeanDimOp.
func NewMeanDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *MeanDimOp {
	shape := x.Shape()
	return &MeanDimOp{
		unary:   unary{input: x, output: output},
		dim:     dim,
		keepDim: keepDim,
		dimSize: shape[shape.MustNormalizeDim(dim)],
	}
}

// Backward computes the input gradient for mean reduction.
func (op *MeanDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		grad = unsqueezeDim(grad, op.dim, op.input.Shape())
	}
	grad = broadcastTo(grad, op.input.Shape(), backend)
	return []*tensor.RawTensor{backend.MulScalar(grad, 1/float64(op.dimSize))}
}
