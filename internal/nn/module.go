// Package nn implements the Gaussian adaptive attention modules.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Parameter: Trainable parameters with gradient tracking
//   - GaussianAdaptiveAttention: single-head mixture-of-Gaussians reweighter
//   - MultiHeadGaussianAdaptiveAttention: independent heads over contiguous
//     partitions of the normalization axis
//   - State dictionaries and SafeTensors checkpoints
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"github.com/born-ml/gaam/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	// Misuse (for example an axis the input does not have) panics.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	Parameters() []*Parameter[B]
}

// Reweighter is implemented by both attention modules. It adds error
// returning evaluation and state persistence to Module.
type Reweighter[B tensor.Backend] interface {
	Module[B]

	// Apply is Forward with configuration and shape errors returned
	// instead of panicking.
	Apply(x *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error)

	// StateDict returns the learnable state by name. The returned tensors
	// are the live parameter storage.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values into the existing parameters.
	LoadStateDict(state map[string]*tensor.RawTensor) error

	// Kind names the module type ("single" or "multihead").
	Kind() string

	// Metadata describes the hyperparameters for checkpoint headers.
	Metadata() map[string]string
}
