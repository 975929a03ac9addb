// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides Gaussian adaptive attention modules.
//
// GaussianAdaptiveAttention reweights every slice of a tensor along one
// axis with a learnable mixture of Gaussians centered on the slice mean.
// MultiHeadGaussianAdaptiveAttention partitions the axis into contiguous
// chunks and gives each chunk its own independently parameterized head.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	cfg := nn.DefaultMultiHeadConfig(8, 4)
//	cfg.NormAxis = -1
//	mh, err := nn.NewMultiHeadGaussianAdaptiveAttention(cfg, backend)
//	if err != nil {
//	    return err
//	}
//	out, err := mh.Apply(x)
package nn

import (
	"github.com/born-ml/gaam/internal/nn"
	"github.com/born-ml/gaam/internal/tensor"
)

// Module is the base interface for all neural network components.
type Module[B tensor.Backend] = nn.Module[B]

// Reweighter is implemented by both attention modules.
type Reweighter[B tensor.Backend] = nn.Reweighter[B]

// Parameter is a trainable tensor with an optional gradient.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// CollectGrads stores the gradients of a backward pass on params.
func CollectGrads[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) {
	nn.CollectGrads(params, grads)
}

// Default hyperparameters.
const (
	DefaultInitialScale = nn.DefaultInitialScale
	DefaultEpsilon      = nn.DefaultEpsilon
)

// GaussianAdaptiveAttentionConfig holds the single-head hyperparameters.
type GaussianAdaptiveAttentionConfig = nn.GaussianAdaptiveAttentionConfig

// GaussianAdaptiveAttention is the single-head mixture-of-Gaussians reweighter.
type GaussianAdaptiveAttention[B tensor.Backend] = nn.GaussianAdaptiveAttention[B]

// DefaultConfig returns learnable weights, scale 2 and epsilon 1e-8 along axis 0.
func DefaultConfig(numGaussians int) GaussianAdaptiveAttentionConfig {
	return nn.DefaultConfig(numGaussians)
}

// NewGaussianAdaptiveAttention validates cfg and creates the module.
func NewGaussianAdaptiveAttention[B tensor.Backend](cfg GaussianAdaptiveAttentionConfig, backend B) (*GaussianAdaptiveAttention[B], error) {
	return nn.NewGaussianAdaptiveAttention(cfg, backend)
}

// MultiHeadGaussianAdaptiveAttentionConfig holds the multi-head hyperparameters.
type MultiHeadGaussianAdaptiveAttentionConfig = nn.MultiHeadGaussianAdaptiveAttentionConfig

// MultiHeadGaussianAdaptiveAttention applies independent heads to
// contiguous partitions of the normalization axis.
type MultiHeadGaussianAdaptiveAttention[B tensor.Backend] = nn.MultiHeadGaussianAdaptiveAttention[B]

// DefaultMultiHeadConfig returns DefaultConfig(numGaussians) split over numHeads heads.
func DefaultMultiHeadConfig(numHeads, numGaussians int) MultiHeadGaussianAdaptiveAttentionConfig {
	return nn.DefaultMultiHeadConfig(numHeads, numGaussians)
}

// NewMultiHeadGaussianAdaptiveAttention validates cfg and creates the heads.
func NewMultiHeadGaussianAdaptiveAttention[B tensor.Backend](
	cfg MultiHeadGaussianAdaptiveAttentionConfig,
	backend B,
) (*MultiHeadGaussianAdaptiveAttention[B], error) {
	return nn.NewMultiHeadGaussianAdaptiveAttention(cfg, backend)
}

// Checkpoint is a snapshot of a reweighter and, optionally, its optimizer.
type Checkpoint[B tensor.Backend] = nn.Checkpoint[B]

// OptimizerState is the optimizer side of a checkpoint.
type OptimizerState = nn.OptimizerState

// LoadCheckpoint reads path into model (and optimizer, when non-nil).
func LoadCheckpoint[B tensor.Backend](path string, model Reweighter[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	return nn.LoadCheckpoint(path, model, optimizer)
}

// Module kinds.
const (
	KindSingle    = nn.KindSingle
	KindMultiHead = nn.KindMultiHead
)

// Errors, for use with errors.Is.
var (
	ErrInvalidNumGaussians = nn.ErrInvalidNumGaussians
	ErrScaleLength         = nn.ErrScaleLength
	ErrWeightsLength       = nn.ErrWeightsLength
	ErrInvalidWeights      = nn.ErrInvalidWeights
	ErrInvalidEpsilon      = nn.ErrInvalidEpsilon
	ErrInvalidNumHeads     = nn.ErrInvalidNumHeads
	ErrTooManyHeads        = nn.ErrTooManyHeads
	ErrIndivisibleExtent   = nn.ErrIndivisibleExtent
	ErrInvalidAxis         = nn.ErrInvalidAxis
	ErrStateDict           = nn.ErrStateDict
)
