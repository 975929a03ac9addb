package tensor

// Backend defines the interface that compute backends implement.
//
// Backends never modify their inputs. Shape errors are programming errors
// and panic with an error value.
type Backend interface {
	// Element-wise binary operations with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations; scalar must match the tensor's element type.
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor

	// Element-wise math.
	Exp(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	ClampMin(x *RawTensor, minValue any) *RawTensor // max(x, minValue)

	Softmax(x *RawTensor, dim int) *RawTensor

	// Comparisons return Bool tensors.
	Equal(a, b *RawTensor) *RawTensor
	NotEqual(a, b *RawTensor) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Shape manipulation.
	Reshape(x *RawTensor, newShape Shape) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor // contiguous slice along dim
	Cat(tensors []*RawTensor, dim int) *RawTensor

	// Where selects x where condition is true and y elsewhere, with broadcasting.
	Where(condition, x, y *RawTensor) *RawTensor

	Name() string
}
