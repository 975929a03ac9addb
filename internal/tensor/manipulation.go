package tensor

import "github.com/gomlx/exceptions"

// Cat concatenates tensors along dim. All tensors must have the same shape
// except along dim. Supports negative dim indexing.
//
// Example:
//
//	a := tensor.Randn[float32](Shape{2, 3}, backend)
//	b := tensor.Randn[float32](Shape{2, 5}, backend)
//	c := tensor.Cat([]*Tensor[float32, B]{a, b}, 1) // Shape: [2, 8]
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	if len(tensors) == 0 {
		exceptions.Panicf("cat: at least one tensor required")
	}

	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	b := tensors[0].backend
	return New[T, B](b.Cat(raws, dim), b)
}

// Narrow returns the contiguous slice [start, start+length) of t along dim.
//
// Example:
//
//	x := tensor.Randn[float32](Shape{2, 8}, backend)
//	y := x.Narrow(1, 4, 4) // Shape: [2, 4], columns 4..7
func (t *Tensor[T, B]) Narrow(dim, start, length int) *Tensor[T, B] {
	return New[T, B](t.backend.Narrow(t.raw, dim, start, length), t.backend)
}

// Where selects elements from x where cond is true and from y elsewhere.
// Supports broadcasting between cond, x, and y.
func Where[T DType, B Backend](cond *Tensor[bool, B], x, y *Tensor[T, B]) *Tensor[T, B] {
	return New[T, B](x.backend.Where(cond.raw, x.raw, y.raw), x.backend)
}
