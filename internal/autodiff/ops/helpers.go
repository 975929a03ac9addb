package ops

import (
	"github.com/born-ml/gaam/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(targetShape) {
		return grad
	}

	if len(targetShape) == 0 {
		return backend.Sum(grad)
	}

	// Broadcasting aligns from the right: leading extra dims are summed away.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	shape := result.Shape()
	for i := range targetShape {
		if targetShape[i] == 1 && shape[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// broadcastTo expands grad to shape by adding it to zeros of that shape.
func broadcastTo(grad *tensor.RawTensor, shape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(shape) {
		return grad
	}
	return backend.Add(tensor.MustNewRaw(shape, grad.DType()), grad)
}

// unsqueezeDim reinserts a reduced dimension of size 1 at dim.
func unsqueezeDim(grad *tensor.RawTensor, dim int, inputShape tensor.Shape) *tensor.RawTensor {
	d := inputShape.MustNormalizeDim(dim)
	keep := inputShape.Clone()
	keep[d] = 1
	view, err := grad.View(keep)
	if err != nil {
		panic(err)
	}
	return view
}

// zerosLike returns a zero tensor with the given shape and dtype.
func zerosLike(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	return tensor.MustNewRaw(shape, dtype)
}
