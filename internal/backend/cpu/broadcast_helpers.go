package cpu

import (
	"github.com/born-ml/gaam/internal/tensor"
)

// applyBinary writes fn(a, b) into dst, reading a and b through broadcast
// strides when their shapes differ from outShape.
func applyBinary[T, R any](
	dst []R,
	a, b []T,
	aShape, bShape, outShape tensor.Shape,
	broadcast bool,
	fn func(x, y T) R,
) {
	if !broadcast {
		for i := range dst {
			dst[i] = fn(a[i], b[i])
		}
		return
	}

	outStrides := outShape.ComputeStrides()
	aStrides := tensor.BroadcastStrides(aShape, outShape)
	bStrides := tensor.BroadcastStrides(bShape, outShape)

	for i := range dst {
		ai, bi := 0, 0
		rem := i
		for d, s := range outStrides {
			coord := rem / s
			rem %= s
			ai += coord * aStrides[d]
			bi += coord * bStrides[d]
		}
		dst[i] = fn(a[ai], b[bi])
	}
}

// computeFlatIndex maps an output flat index to a source flat index using
// broadcast-adjusted source strides.
func computeFlatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i, s := range outStrides {
		coord := outIdx / s
		outIdx %= s
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}

// mapUnary applies fn element-wise.
func mapUnary[T any](dst, src []T, fn func(T) T) {
	for i, v := range src {
		dst[i] = fn(v)
	}
}
