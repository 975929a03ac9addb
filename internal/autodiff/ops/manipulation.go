package ops

import "github.com/born-ml/gaam/internal/tensor"

// ReshapeOp represents output = reshape(x, shape).
//
// Backward: the gradient is reshaped back to the input shape.
type ReshapeOp struct{ unary }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{unary{input: x, output: output}}
}

// Backward reshapes the gradient to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.input.Shape())}
}

// NarrowOp represents output = x[..., start:start+length, ...] along dim.
//
// Backward: the gradient is padded with zeros back to the input extent.
type NarrowOp struct {
	unary
	dim, start, length int
}

// NewNarrowOp creates a new NarrowOp.
func NewNarrowOp(x, output *tensor.RawTensor, dim, start, length int) *NarrowOp {
	return &NarrowOp{
		unary:  unary{input: x, output: output},
		dim:    x.Shape().MustNormalizeDim(dim),
		start:  start,
		length: length,
	}
}

// Backward scatters the gradient into a zero tensor of the input shape.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	shape := op.input.Shape()
	parts := make([]*tensor.RawTensor, 0, 3)

	if op.start > 0 {
		before := shape.Clone()
		before[op.dim] = op.start
		parts = append(parts, zerosLike(before, outputGrad.DType()))
	}
	parts = append(parts, outputGrad)
	if rest := shape[op.dim] - op.start - op.length; rest > 0 {
		after := shape.Clone()
		after[op.dim] = rest
		parts = append(parts, zerosLike(after, outputGrad.DType()))
	}

	if len(parts) == 1 {
		return []*tensor.RawTensor{outputGrad}
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

// CatOp represents a concatenation along a dimension.
//
// Backward: the output gradient is split at the input boundaries and each
// input receives its slice.
type CatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewCatOp creates a new CatOp.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{
		inputs: inputs,
		output: output,
		dim:    output.Shape().MustNormalizeDim(dim),
	}
}

// Inputs returns the concatenated tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the concatenated tensor.
func (op *CatOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward splits the gradient along the concatenation dimension.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = backend.Narrow(outputGrad, op.dim, offset, size)
		offset += size
	}
	return grads
}
