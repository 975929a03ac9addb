package nn

import (
	"math"
	"testing"

	"github.com/born-ml/gaam/internal/autodiff"
	"github.com/born-ml/gaam/internal/backend/cpu"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

func fromSlice(t *testing.T, backend Backend, shape tensor.Shape, values ...float32) *tensor.Tensor[float32, Backend] {
	t.Helper()
	x, err := tensor.FromSlice(values, shape, backend)
	require.NoError(t, err)
	return x
}

// referenceSlice computes the reweighting of one 1-D slice in float64,
// using gonum for the statistics.
func referenceSlice(x []float64, pad *float64, offsets, scales, weights []float64, eps float64, unbiased bool) []float64 {
	stats := make([]float64, len(x))
	for i, v := range x {
		if pad == nil || v != *pad {
			stats[i] = v
		}
	}

	var mean, variance float64
	switch {
	case len(x) == 1:
		mean = stats[0]
	case unbiased:
		mean, variance = stat.MeanVariance(stats, nil)
	default:
		mean, variance = stat.PopMeanVariance(stats, nil)
	}
	std := math.Sqrt(variance + eps)

	mixture := make([]float64, len(x))
	var total float64
	for j, v := range x {
		for i := range offsets {
			y := (v - (mean + offsets[i])) / std
			mixture[j] += weights[i] * math.Exp(-y*y/(2*scales[i]*scales[i]))
		}
		total += mixture[j]
	}
	total = math.Max(total, eps)

	out := make([]float64, len(x))
	for j, v := range x {
		if pad != nil && v == *pad {
			out[j] = v
			continue
		}
		out[j] = v * mixture[j] / total
	}
	return out
}

func float64s(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

func softmax(logits []float64) []float64 {
	maxVal := math.Inf(-1)
	for _, v := range logits {
		maxVal = math.Max(maxVal, v)
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// setParam overwrites a parameter's values.
func setParam(t *testing.T, p *Parameter[Backend], values ...float32) {
	t.Helper()
	data := p.Tensor().Data()
	require.Len(t, values, len(data))
	copy(data, values)
}

func ptr[T any](v T) *T {
	return &v
}
