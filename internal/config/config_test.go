package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/gaam/internal/autodiff"
	"github.com/born-ml/gaam/internal/backend/cpu"
	"github.com/born-ml/gaam/internal/nn"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiHeadYAML = `
module: multihead
norm_axis: -1
num_gaussians: 3
initial_scales: [0.5, 1, 2]
padding_value: 0
unbiased_variance: true
num_heads: 4
strict_partition: true
parallel: true
max_concurrency: 2
`

const fixedTOML = `
module = "single"
norm_axis = 1
num_gaussians = 2
epsilon = 1e-6
fixed_weights = [0.25, 0.75]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	f, err := Load(writeFile(t, "gaa.yaml", multiHeadYAML))
	require.NoError(t, err)

	cfg := f.MultiHeadConfig()
	assert.Equal(t, -1, cfg.NormAxis)
	assert.Equal(t, 3, cfg.NumGaussians)
	assert.Equal(t, []float32{0.5, 1, 2}, cfg.InitialScales)
	require.NotNil(t, cfg.PaddingValue)
	assert.Equal(t, float32(0), *cfg.PaddingValue)
	assert.True(t, cfg.UnbiasedVariance)
	assert.True(t, cfg.LearnableWeights, "weights default to learnable")
	assert.Equal(t, 4, cfg.NumHeads)
	assert.True(t, cfg.StrictPartition)
	assert.True(t, cfg.Parallel)
	assert.Equal(t, 2, cfg.MaxConcurrency)
}

func TestLoad_TOML(t *testing.T) {
	f, err := Load(writeFile(t, "gaa.toml", fixedTOML))
	require.NoError(t, err)

	cfg := f.SingleConfig()
	assert.Equal(t, 1, cfg.NormAxis)
	assert.False(t, cfg.LearnableWeights)
	assert.Equal(t, []float32{0.25, 0.75}, cfg.FixedWeights)
	assert.InDelta(t, 1e-6, cfg.Epsilon, 1e-12)
	assert.Nil(t, cfg.PaddingValue)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{"Extension", "gaa.json", `{}`, ErrUnknownFormat},
		{"UnknownYAMLKey", "gaa.yaml", "module: single\nnum_gaussians: 1\nheads: 2\n", ErrInvalidConfig},
		{"UnknownTOMLKey", "gaa.toml", "module = \"single\"\nnum_gaussians = 1\nheads = 2\n", ErrInvalidConfig},
		{"BadModule", "gaa.yaml", "module: triple\nnum_gaussians: 1\n", ErrInvalidConfig},
		{"Empty", "gaa.yaml", "", ErrInvalidConfig},
		{"HeadsOnSingle", "gaa.yaml", "module: single\nnum_gaussians: 1\nnum_heads: 2\n", ErrInvalidConfig},
		{"NoGaussians", "gaa.yaml", "module: single\n", nn.ErrInvalidNumGaussians},
		{"ZeroHeads", "gaa.toml", "module = \"multihead\"\nnum_gaussians = 1\n", nn.ErrInvalidNumHeads},
		{"BothWeights", "gaa.yaml", "module: single\nnum_gaussians: 1\nlearnable_weights: true\nfixed_weights: [1]\n", nn.ErrInvalidWeights},
		{"ScaleLength", "gaa.toml", "module = \"single\"\nnum_gaussians = 2\ninitial_scales = [1.0]\n", nn.ErrScaleLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFile_SaveRoundTrip(t *testing.T) {
	src := Default(3)
	src.Module = nn.KindMultiHead
	src.NumHeads = 2
	src.PaddingValue = new(float32)
	src.InitialScales = []float32{1, 2, 3}

	for _, name := range []string{"gaa.yaml", "gaa.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, src.Save(path))
			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, src, got)
		})
	}
}

func TestFile_ApplySettings(t *testing.T) {
	f := Default(2)
	require.NoError(t, f.ApplySettings("module=multihead; num_heads=4;initial_scales=[1, 3];padding_value=-1"))
	assert.Equal(t, nn.KindMultiHead, f.Module)
	assert.Equal(t, 4, f.NumHeads)
	assert.Equal(t, []float32{1, 3}, f.InitialScales)
	require.NotNil(t, f.PaddingValue)
	assert.Equal(t, float32(-1), *f.PaddingValue)
	assert.Equal(t, 2, f.NumGaussians, "untouched fields keep their values")

	before := *f
	for _, settings := range []string{
		"num_heads",          // no value
		"heads=2",            // unknown key
		"num_heads=many",     // bad value
		"num_gaussians=0",    // fails validation
		"initial_scales=[1]", // wrong length
		"norm_axis: 1=2",     // bad key
	} {
		err := f.ApplySettings(settings)
		assert.Error(t, err, settings)
		assert.Equal(t, before, *f, "%q must leave the configuration unchanged", settings)
	}
}

func TestFile_ApplySettingsFailureKeepsPointerFields(t *testing.T) {
	f := Default(2)
	pad, learnable := float32(0), true
	f.PaddingValue, f.LearnableWeights = &pad, &learnable
	f.InitialScales = []float32{1, 2}

	err := f.ApplySettings("padding_value=7;learnable_weights=false;initial_scales=[5, 6];num_gaussians=0")
	require.ErrorIs(t, err, nn.ErrInvalidNumGaussians)

	assert.Same(t, &pad, f.PaddingValue)
	assert.Equal(t, float32(0), pad)
	assert.Same(t, &learnable, f.LearnableWeights)
	assert.True(t, learnable)
	assert.Equal(t, []float32{1, 2}, f.InitialScales)
	assert.Equal(t, 2, f.NumGaussians)
}

func TestBuild(t *testing.T) {
	backend := autodiff.New(cpu.New())

	single, err := Load(writeFile(t, "gaa.toml", fixedTOML))
	require.NoError(t, err)
	m, err := Build(single, backend)
	require.NoError(t, err)
	assert.Equal(t, nn.KindSingle, m.Kind())
	assert.Len(t, m.Parameters(), 2)

	x := tensor.Randn[float32](tensor.Shape{3, 5}, backend)
	out, err := m.Apply(x)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), out.Shape())

	multi, err := Load(writeFile(t, "gaa.yaml", multiHeadYAML))
	require.NoError(t, err)
	m, err = Build(multi, backend)
	require.NoError(t, err)
	assert.Equal(t, nn.KindMultiHead, m.Kind())
	assert.Len(t, m.Parameters(), 12)
	assert.Equal(t, "4", m.Metadata()["num_heads"])

	// Strict partition: 10 is not divisible by 4 heads.
	_, err = m.Apply(tensor.Randn[float32](tensor.Shape{2, 10}, backend))
	assert.ErrorIs(t, err, nn.ErrIndivisibleExtent)

	_, err = Build(&File{Module: "other"}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
