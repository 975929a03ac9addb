package ops

import "github.com/born-ml/gaam/internal/tensor"

// WhereOp represents output = where(cond, x, y).
//
// Backward:
//
//	grad_x = where(cond, grad, 0)
//	grad_y = where(cond, 0, grad)
//
// The boolean condition is not differentiable and is not an input.
type WhereOp struct {
	binary
	cond *tensor.RawTensor
}

// NewWhereOp creates a new WhereOp.
func NewWhereOp(cond, x, y, output *tensor.RawTensor) *WhereOp {
	return &WhereOp{binary: binary{a: x, b: y, output: output}, cond: cond}
}

// Backward routes the gradient to the selected branch.
func (op *WhereOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	zero := zerosLike(tensor.Shape{}, outputGrad.DType())
	gradX := backend.Where(op.cond, outputGrad, zero)
	gradY := backend.Where(op.cond, zero, outputGrad)
	return []*tensor.RawTensor{
		reduceBroadcast(gradX, op.a.Shape(), backend),
		reduceBroadcast(gradY, op.b.Shape(), backend),
	}
}
