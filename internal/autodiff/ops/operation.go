// Package ops defines differentiable operations for reverse-mode automatic
// differentiation.
//
// Each operation records its inputs and output during the forward pass and
// maps an output gradient to input gradients during the backward pass.
// Backward rules are expressed through the backend itself, so they work for
// every float dtype the backend supports.
//
// Supported operations:
//   - AddOp, SubOp, MulOp, DivOp: broadcasting arithmetic
//   - MulScalarOp, AddScalarOp: scalar arithmetic
//   - ExpOp, SqrtOp, ClampMinOp: element-wise math
//   - SoftmaxOp: softmax along any dimension
//   - SumOp, SumDimOp, MeanDimOp: reductions
//   - WhereOp: conditional selection
//   - NarrowOp, CatOp, ReshapeOp: shape manipulation
package ops

import "github.com/born-ml/gaam/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns one gradient per input; a nil entry means no gradient flows.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// unary holds the bookkeeping shared by single-input operations.
type unary struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensor.
func (u *unary) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{u.input}
}

// Output returns the output tensor.
func (u *unary) Output() *tensor.RawTensor {
	return u.output
}

// binary holds the bookkeeping shared by two-input operations.
type binary struct {
	a, b   *tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors.
func (o *binary) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{o.a, o.b}
}

// Output returns the output tensor.
func (o *binary) Output() *tensor.RawTensor {
	return o.output
}
