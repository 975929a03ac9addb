package autodiff_test

import (
	"testing"

	"github.com/born-ml/gaam/internal/autodiff"
	"github.com/born-ml/gaam/internal/backend/cpu"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fn = func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend]

// checkGradient compares the autodiff gradient of Σ f(x) with central
// finite differences.
func checkGradient(t *testing.T, shape tensor.Shape, values []float64, f fn) {
	t.Helper()
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()
	tape.StartRecording()

	x, err := tensor.FromSlice(values, shape, backend)
	require.NoError(t, err)
	grads := autodiff.Backward(f(x).Sum(), backend)
	grad, ok := grads[x.Raw()]
	require.True(t, ok, "no gradient for input")
	analytic := grad.AsFloat64()

	tape.StopRecording()
	eval := func(v []float64) float64 {
		xv, err := tensor.FromSlice(v, shape, backend)
		require.NoError(t, err)
		return f(xv).Sum().Item()
	}

	const h = 1e-6
	for i := range values {
		plus := append([]float64(nil), values...)
		minus := append([]float64(nil), values...)
		plus[i] += h
		minus[i] -= h
		numeric := (eval(plus) - eval(minus)) / (2 * h)
		assert.InDelta(t, numeric, analytic[i], 1e-5, "element %d", i)
	}
}

func TestGradient_Ops(t *testing.T) {
	shape := tensor.Shape{2, 3}
	values := []float64{0.5, -1.2, 2.0, 0.3, 1.7, -0.4}

	weights := func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
		w, _ := tensor.FromSlice([]float64{1, -2, 3, 0.5, 4, -1}, shape, x.Backend())
		return w
	}

	tests := []struct {
		name string
		f    fn
	}{
		{"Add", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.Add(x).Mul(weights(x))
		}},
		{"Sub", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return weights(x).Sub(x.Mul(x))
		}},
		{"Div", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return weights(x).Div(x.Mul(x).AddScalar(1))
		}},
		{"Exp", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.Exp().Mul(weights(x))
		}},
		{"Sqrt", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.Square().AddScalar(0.5).Sqrt().Mul(weights(x))
		}},
		{"ClampMin", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.ClampMin(0.1).Mul(weights(x))
		}},
		{"SoftmaxLastDim", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.Softmax(-1).Mul(weights(x))
		}},
		{"SoftmaxDim0", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.Softmax(0).Mul(weights(x))
		}},
		{"MeanDimKeep", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.Sub(x.MeanDim(1, true)).Square()
		}},
		{"SumDimDrop", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.Mul(weights(x)).SumDim(0, false).Square()
		}},
		{"Where", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			mask := weights(x).NotEqualScalar(3)
			zero := tensor.Zeros[float64](tensor.Shape{1}, x.Backend())
			return tensor.Where(mask, x.Square(), zero).Mul(weights(x))
		}},
		{"NarrowCat", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			left := x.Narrow(1, 0, 1).MulScalar(2)
			right := x.Narrow(1, 1, 2).Square()
			return tensor.Cat([]*tensor.Tensor[float64, Backend]{left, right}, 1).Mul(weights(x))
		}},
		{"Reshape", func(x *tensor.Tensor[float64, Backend]) *tensor.Tensor[float64, Backend] {
			return x.Reshape(3, 2).Square().Reshape(2, 3).Mul(weights(x))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkGradient(t, shape, values, tt.f)
		})
	}
}

func TestGradient_ClampMin_ZeroWhereClamped(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{-1, 0.5, 2}, tensor.Shape{3}, backend)
	grads := autodiff.Backward(x.ClampMin(0.5).Sum(), backend)
	assert.Equal(t, []float32{0, 1, 1}, grads[x.Raw()].AsFloat32())
}
