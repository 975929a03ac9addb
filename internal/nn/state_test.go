package nn

import (
	"testing"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawOf(t *testing.T, dtype tensor.DataType, shape tensor.Shape, values ...float64) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, dtype)
	require.NoError(t, err)
	switch dtype {
	case tensor.Float32:
		for i, v := range values {
			raw.AsFloat32()[i] = float32(v)
		}
	case tensor.Float64:
		copy(raw.AsFloat64(), values)
	}
	return raw
}

func TestGaussianAdaptiveAttention_StateDict(t *testing.T) {
	learnable, err := NewGaussianAdaptiveAttention(DefaultConfig(3), newBackend())
	require.NoError(t, err)
	state := learnable.StateDict()
	assert.Len(t, state, 3)
	assert.Contains(t, state, "mean_offsets")
	assert.Contains(t, state, "c")
	assert.Contains(t, state, "weights")

	// Live storage, not copies.
	assert.Same(t, learnable.Scale.Tensor().Raw(), state["c"])

	cfg := DefaultConfig(3)
	cfg.LearnableWeights = false
	cfg.FixedWeights = []float32{0.2, 0.3, 0.5}
	fixed, err := NewGaussianAdaptiveAttention(cfg, newBackend())
	require.NoError(t, err)
	assert.NotContains(t, fixed.StateDict(), "weights")
}

func TestGaussianAdaptiveAttention_LoadStateDict(t *testing.T) {
	gaa, err := NewGaussianAdaptiveAttention(DefaultConfig(2), newBackend())
	require.NoError(t, err)
	scaleRaw := gaa.Scale.Tensor().Raw()

	err = gaa.LoadStateDict(map[string]*tensor.RawTensor{
		"mean_offsets": rawOf(t, tensor.Float32, tensor.Shape{2}, 0.5, -0.5),
		"c":            rawOf(t, tensor.Float64, tensor.Shape{2}, 1.5, 3),
		"weights":      rawOf(t, tensor.Float32, tensor.Shape{2}, 0, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5, -0.5}, gaa.MeanOffsets.Tensor().Data())
	assert.Equal(t, []float32{1.5, 3}, gaa.Scale.Tensor().Data())
	assert.Equal(t, []float32{0, 1}, gaa.Weights.Tensor().Data())
	assert.Same(t, scaleRaw, gaa.Scale.Tensor().Raw(), "parameter identity must survive a load")
}

func TestGaussianAdaptiveAttention_LoadStateDictErrors(t *testing.T) {
	valid := func() map[string]*tensor.RawTensor {
		return map[string]*tensor.RawTensor{
			"mean_offsets": rawOf(t, tensor.Float32, tensor.Shape{2}, 9, 9),
			"c":            rawOf(t, tensor.Float32, tensor.Shape{2}, 9, 9),
			"weights":      rawOf(t, tensor.Float32, tensor.Shape{2}, 9, 9),
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]*tensor.RawTensor)
	}{
		{"Missing", func(s map[string]*tensor.RawTensor) { delete(s, "c") }},
		{"WrongShape", func(s map[string]*tensor.RawTensor) {
			s["weights"] = rawOf(t, tensor.Float32, tensor.Shape{3}, 1, 2, 3)
		}},
		{"Unexpected", func(s map[string]*tensor.RawTensor) {
			s["bias"] = rawOf(t, tensor.Float32, tensor.Shape{2}, 1, 2)
		}},
		{"UnsupportedDType", func(s map[string]*tensor.RawTensor) {
			raw, err := tensor.NewRaw(tensor.Shape{2}, tensor.Bool)
			require.NoError(t, err)
			s["c"] = raw
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gaa, err := NewGaussianAdaptiveAttention(DefaultConfig(2), newBackend())
			require.NoError(t, err)

			state := valid()
			tt.mutate(state)
			err = gaa.LoadStateDict(state)
			assert.ErrorIs(t, err, ErrStateDict)

			// Nothing is written on failure.
			assert.Equal(t, []float32{0, 0}, gaa.MeanOffsets.Tensor().Data())
			assert.Equal(t, []float32{2, 2}, gaa.Scale.Tensor().Data())
			assert.Equal(t, []float32{1, 1}, gaa.Weights.Tensor().Data())
		})
	}
}

func TestMultiHeadGaussianAdaptiveAttention_StateDict(t *testing.T) {
	src := newMultiHead(t, newBackend(), DefaultMultiHeadConfig(2, 2))
	setParam(t, src.Heads()[1].Scale, 4, 5)

	state := src.StateDict()
	assert.Len(t, state, 6)
	for _, key := range []string{
		"heads.0.mean_offsets", "heads.0.c", "heads.0.weights",
		"heads.1.mean_offsets", "heads.1.c", "heads.1.weights",
	} {
		assert.Contains(t, state, key)
	}

	dst := newMultiHead(t, newBackend(), DefaultMultiHeadConfig(2, 2))
	require.NoError(t, dst.LoadStateDict(state))
	assert.Equal(t, []float32{2, 2}, dst.Heads()[0].Scale.Tensor().Data())
	assert.Equal(t, []float32{4, 5}, dst.Heads()[1].Scale.Tensor().Data())
}

func TestMultiHeadGaussianAdaptiveAttention_LoadStateDictIsAtomic(t *testing.T) {
	src := newMultiHead(t, newBackend(), DefaultMultiHeadConfig(2, 2))
	for _, h := range src.Heads() {
		setParam(t, h.MeanOffsets, 1, 1)
	}
	state := src.StateDict()
	state["heads.1.c"] = rawOf(t, tensor.Float32, tensor.Shape{3}, 1, 2, 3)

	dst := newMultiHead(t, newBackend(), DefaultMultiHeadConfig(2, 2))
	err := dst.LoadStateDict(state)
	require.ErrorIs(t, err, ErrStateDict)
	assert.Contains(t, err.Error(), "head 1")
	assert.Equal(t, []float32{0, 0}, dst.Heads()[0].MeanOffsets.Tensor().Data(), "head 0 must stay untouched")

	for _, key := range []string{"heads.2.c", "heads.x.c", "c", "heads.0"} {
		bad := src.StateDict()
		bad[key] = rawOf(t, tensor.Float32, tensor.Shape{2}, 1, 2)
		assert.ErrorIs(t, dst.LoadStateDict(bad), ErrStateDict, key)
	}
}
