package nn

import (
	"path/filepath"
	"testing"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterOptimizer is a minimal OptimizerState holding a step counter.
type counterOptimizer struct {
	steps *tensor.RawTensor
}

func newCounterOptimizer(steps float32) *counterOptimizer {
	raw := must.M1(tensor.NewRaw(tensor.Shape{1}, tensor.Float32))
	raw.AsFloat32()[0] = steps
	return &counterOptimizer{steps: raw}
}

func (o *counterOptimizer) Name() string { return "counter" }

func (o *counterOptimizer) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"steps": o.steps}
}

func (o *counterOptimizer) LoadStateDict(state map[string]*tensor.RawTensor) error {
	src, err := toFloat32(state["steps"])
	if err != nil {
		return err
	}
	return o.steps.CopyFrom(src)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	tests := []struct {
		storage tensor.DataType
		delta   float64
	}{
		{tensor.Float32, 0},
		{tensor.Float64, 0},
		{tensor.Float16, 1e-3},
	}

	for _, tt := range tests {
		t.Run(tt.storage.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gaa.safetensors")

			cfg := DefaultMultiHeadConfig(2, 3)
			cfg.NormAxis = -1
			src := newMultiHead(t, newBackend(), cfg)
			setParam(t, src.Heads()[0].MeanOffsets, 0.125, -0.25, 0.5)
			setParam(t, src.Heads()[1].Scale, 1.5, 2.5, 3.5)

			ckpt := &Checkpoint[Backend]{
				Model:     src,
				Optimizer: newCounterOptimizer(42),
				Step:      42,
				Metadata:  map[string]string{"run": "test"},
			}
			require.NoError(t, ckpt.Save(path, tt.storage))
			require.NotEmpty(t, ckpt.ID)

			dst := newMultiHead(t, newBackend(), cfg)
			opt := newCounterOptimizer(0)
			loaded, err := LoadCheckpoint[Backend](path, dst, opt)
			require.NoError(t, err)

			assert.Equal(t, ckpt.ID, loaded.ID)
			assert.Equal(t, int64(42), loaded.Step)
			assert.Equal(t, "test", loaded.Metadata["run"])
			assert.Equal(t, KindMultiHead, loaded.Metadata[MetaModule])
			assert.Equal(t, "counter", loaded.Metadata[MetaOptimizer])
			assert.Equal(t, "2", loaded.Metadata["num_heads"])
			assert.False(t, loaded.CreatedAt.IsZero())
			assert.Equal(t, float32(42), opt.steps.AsFloat32()[0])

			for i := range src.Heads() {
				for j, p := range src.Heads()[i].Parameters() {
					got := dst.Heads()[i].Parameters()[j].Tensor().Data()
					assert.InDeltaSlice(t, p.Tensor().Data(), got, tt.delta+1e-9, "head %d %s", i, p.Name())
				}
			}
		})
	}
}

func TestCheckpoint_KindMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.safetensors")
	single, err := NewGaussianAdaptiveAttention(DefaultConfig(2), newBackend())
	require.NoError(t, err)
	require.NoError(t, (&Checkpoint[Backend]{Model: single}).Save(path, tensor.Float32))

	multi := newMultiHead(t, newBackend(), DefaultMultiHeadConfig(2, 2))
	_, err = LoadCheckpoint[Backend](path, multi, nil)
	assert.ErrorIs(t, err, ErrStateDict)

	// Same kind but a different number of components.
	other, err := NewGaussianAdaptiveAttention(DefaultConfig(3), newBackend())
	require.NoError(t, err)
	_, err = LoadCheckpoint[Backend](path, other, nil)
	assert.ErrorIs(t, err, ErrStateDict)
}

func TestCheckpoint_MissingFile(t *testing.T) {
	single, err := NewGaussianAdaptiveAttention(DefaultConfig(1), newBackend())
	require.NoError(t, err)
	_, err = LoadCheckpoint[Backend](filepath.Join(t.TempDir(), "missing.safetensors"), single, nil)
	assert.Error(t, err)

	assert.Error(t, (&Checkpoint[Backend]{}).Save(filepath.Join(t.TempDir(), "x.safetensors"), tensor.Float32))
}

// rejectingOptimizer refuses any state it is given.
type rejectingOptimizer struct{}

func (rejectingOptimizer) Name() string { return "rejecting" }
func (rejectingOptimizer) StateDict() map[string]*tensor.RawTensor { return nil }
func (rejectingOptimizer) LoadStateDict(map[string]*tensor.RawTensor) error {
	return ErrStateDict
}

func TestCheckpoint_OptimizerFailureLeavesModelUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaa.safetensors")
	src, err := NewGaussianAdaptiveAttention(DefaultConfig(2), newBackend())
	require.NoError(t, err)
	setParam(t, src.Scale, 9, 9)
	setParam(t, src.MeanOffsets, 0.5, -0.5)
	require.NoError(t, (&Checkpoint[Backend]{Model: src, Optimizer: newCounterOptimizer(3)}).Save(path, tensor.Float32))

	dst, err := NewGaussianAdaptiveAttention(DefaultConfig(2), newBackend())
	require.NoError(t, err)
	_, err = LoadCheckpoint[Backend](path, dst, rejectingOptimizer{})
	require.ErrorIs(t, err, ErrStateDict)

	assert.Equal(t, []float32{2, 2}, dst.Scale.Tensor().Data())
	assert.Equal(t, []float32{0, 0}, dst.MeanOffsets.Tensor().Data())
	assert.Equal(t, []float32{1, 1}, dst.Weights.Tensor().Data())
}
