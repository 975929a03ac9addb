package nn

import (
	"testing"

	"github.com/born-ml/gaam/internal/autodiff"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMultiHead(t *testing.T, backend Backend, cfg MultiHeadGaussianAdaptiveAttentionConfig) *MultiHeadGaussianAdaptiveAttention[Backend] {
	t.Helper()
	m, err := NewMultiHeadGaussianAdaptiveAttention(cfg, backend)
	require.NoError(t, err)
	return m
}

func TestMultiHeadGaussianAdaptiveAttention_MatchesPerHeadReference(t *testing.T) {
	backend := newBackend()
	cfg := DefaultMultiHeadConfig(2, 2)
	cfg.NormAxis = -1
	m := newMultiHead(t, backend, cfg)

	heads := m.Heads()
	require.Len(t, heads, 2)
	setParam(t, heads[0].MeanOffsets, 0.1, -0.2)
	setParam(t, heads[0].Scale, 1, 3)
	setParam(t, heads[1].MeanOffsets, 0.5, 0.5)
	setParam(t, heads[1].Weights, 2, -1)

	values := []float32{1, 2, 3, 4, 10, 20, 30, 45}
	out, err := m.Apply(fromSlice(t, backend, tensor.Shape{1, 8}, values...))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 8}, out.Shape())

	first := referenceSlice(float64s(values[:4]), nil, []float64{0.1, -0.2}, []float64{1, 3}, []float64{0.5, 0.5}, DefaultEpsilon, false)
	second := referenceSlice(float64s(values[4:]), nil, []float64{0.5, 0.5}, []float64{2, 2}, softmax([]float64{2, -1}), DefaultEpsilon, false)
	assert.InDeltaSlice(t, append(first, second...), float64s(out.Data()), 1e-5)
}

func TestMultiHeadGaussianAdaptiveAttention_SingleHeadEqualsSingleModule(t *testing.T) {
	backend := newBackend()
	m := newMultiHead(t, backend, DefaultMultiHeadConfig(1, 3))
	single, err := NewGaussianAdaptiveAttention(DefaultConfig(3), backend)
	require.NoError(t, err)

	x := tensor.Randn[float32](tensor.Shape{6, 3}, backend)
	want, err := single.Apply(x)
	require.NoError(t, err)
	got, err := m.Apply(x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-6)
}

func TestMultiHeadGaussianAdaptiveAttention_Partitioning(t *testing.T) {
	tests := []struct {
		name   string
		shape  tensor.Shape
		heads  int
		strict bool
		want   tensor.Shape
		err    error
	}{
		{"Divisible", tensor.Shape{2, 8}, 4, false, tensor.Shape{2, 8}, nil},
		{"TruncatesRemainder", tensor.Shape{2, 10}, 3, false, tensor.Shape{2, 9}, nil},
		{"StrictRejectsRemainder", tensor.Shape{2, 10}, 3, true, nil, ErrIndivisibleExtent},
		{"StrictAcceptsDivisible", tensor.Shape{2, 9}, 3, true, tensor.Shape{2, 9}, nil},
		{"TooManyHeads", tensor.Shape{2, 3}, 4, false, nil, ErrTooManyHeads},
		{"EqualHeadsAndExtent", tensor.Shape{2, 3}, 3, true, tensor.Shape{2, 3}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend()
			cfg := DefaultMultiHeadConfig(tt.heads, 2)
			cfg.NormAxis = 1
			cfg.StrictPartition = tt.strict
			m := newMultiHead(t, backend, cfg)

			out, err := m.Apply(tensor.Randn[float32](tt.shape, backend))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Shape())
		})
	}
}

func TestMultiHeadGaussianAdaptiveAttention_TruncationKeepsLeadingChunks(t *testing.T) {
	backend := newBackend()
	m := newMultiHead(t, backend, DefaultMultiHeadConfig(2, 1))

	values := []float32{1, 2, 3, 4, 5}
	out, err := m.Apply(fromSlice(t, backend, tensor.Shape{5}, values...))
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{4}, out.Shape())

	first := referenceSlice([]float64{1, 2}, nil, []float64{0}, []float64{2}, []float64{1}, DefaultEpsilon, false)
	second := referenceSlice([]float64{3, 4}, nil, []float64{0}, []float64{2}, []float64{1}, DefaultEpsilon, false)
	assert.InDeltaSlice(t, append(first, second...), float64s(out.Data()), 1e-6)
}

func TestMultiHeadGaussianAdaptiveAttention_ParallelMatchesSequential(t *testing.T) {
	backend := newBackend()
	cfg := DefaultMultiHeadConfig(4, 3)
	cfg.NormAxis = -1
	cfg.PaddingValue = ptr(float32(0))
	sequential := newMultiHead(t, backend, cfg)

	cfg.Parallel = true
	cfg.MaxConcurrency = 2
	concurrent := newMultiHead(t, backend, cfg)
	require.NoError(t, concurrent.LoadStateDict(sequential.StateDict()))

	x := tensor.Randn[float32](tensor.Shape{3, 16}, backend)
	x.Set(0, 1, 5)
	want, err := sequential.Apply(x)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, err := concurrent.Apply(x)
		require.NoError(t, err)
		assert.Equal(t, want.Data(), got.Data())
	}
	assert.Equal(t, float32(0), want.At(1, 5))
}

func TestMultiHeadGaussianAdaptiveAttention_ParallelGradients(t *testing.T) {
	backend := newBackend()
	cfg := DefaultMultiHeadConfig(4, 2)
	cfg.Parallel = true
	m := newMultiHead(t, backend, cfg)
	for i, h := range m.Heads() {
		setParam(t, h.MeanOffsets, float32(i)*0.1, -0.3)
	}

	backend.Tape().StartRecording()
	x := tensor.Randn[float32](tensor.Shape{8, 2}, backend)
	w := tensor.Randn[float32](tensor.Shape{8, 2}, backend)
	loss := m.Forward(x).Mul(w).Sum()

	CollectGrads(m.Parameters(), autodiff.Backward(loss, backend))
	for _, p := range m.Parameters() {
		require.NotNil(t, p.Grad(), p.Name())
	}
}

func TestMultiHeadGaussianAdaptiveAttention_Config(t *testing.T) {
	_, err := NewMultiHeadGaussianAdaptiveAttention(DefaultMultiHeadConfig(0, 2), newBackend())
	assert.ErrorIs(t, err, ErrInvalidNumHeads)

	_, err = NewMultiHeadGaussianAdaptiveAttention(DefaultMultiHeadConfig(2, 0), newBackend())
	assert.ErrorIs(t, err, ErrInvalidNumGaussians)

	cfg := DefaultMultiHeadConfig(2, 2)
	cfg.NormAxis = 3
	m := newMultiHead(t, newBackend(), cfg)
	_, err = m.Apply(tensor.Zeros[float32](tensor.Shape{4, 4}, newBackend()))
	assert.ErrorIs(t, err, ErrInvalidAxis)
}

func TestMultiHeadGaussianAdaptiveAttention_IndependentParameters(t *testing.T) {
	m := newMultiHead(t, newBackend(), DefaultMultiHeadConfig(3, 2))

	params := m.Parameters()
	require.Len(t, params, 9)
	seen := make(map[*tensor.RawTensor]bool)
	for _, p := range params {
		assert.False(t, seen[p.Tensor().Raw()], "parameter storage shared between heads")
		seen[p.Tensor().Raw()] = true
	}

	setParam(t, m.Heads()[0].Scale, 7, 7)
	assert.Equal(t, []float32{2, 2}, m.Heads()[1].Scale.Tensor().Data())
}

func TestMultiHeadGaussianAdaptiveAttention_HeadsOwnTheirPadding(t *testing.T) {
	backend := newBackend()
	pad := float32(0)
	cfg := DefaultMultiHeadConfig(2, 1)
	cfg.PaddingValue = &pad
	mh := newMultiHead(t, backend, cfg)

	x := fromSlice(t, backend, tensor.Shape{6}, 1, 0, 4, 2, 4, 5)
	before := mh.Forward(x).Data()

	pad = 4
	assert.Equal(t, before, mh.Forward(x).Data())
	assert.NotSame(t, mh.Heads()[0].config.PaddingValue, mh.Heads()[1].config.PaddingValue)
	assert.Equal(t, float32(0), *mh.Config().PaddingValue)
}
