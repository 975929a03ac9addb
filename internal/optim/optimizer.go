// Package optim implements gradient-based optimizers for the attention
// modules' parameters.
//
// This package provides:
//   - Optimizer interface: Step, ZeroGrad, learning rate and state access
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizers only see the parameters they are given. Fixed mixture weights
// are not parameters, so they are never updated.
//
// Example usage:
//
//	gaa, _ := nn.NewGaussianAdaptiveAttention(nn.DefaultConfig(4), backend)
//	opt := optim.NewAdam(gaa.Parameters(), optim.AdamConfig{LR: 0.01})
//
//	backend.Tape().StartRecording()
//	loss := gaa.Forward(x).Mul(target).Sum()
//	grads := autodiff.Backward(loss, backend)
//	opt.Step(grads)
//	backend.Tape().Clear()
package optim

import (
	"fmt"

	"github.com/born-ml/gaam/internal/nn"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
)

// ErrOptimizerState is returned when a state dict does not fit the
// optimizer's parameters.
var ErrOptimizerState = errors.New("invalid optimizer state")

// Optimizer updates parameters in place from a backward-pass gradient map.
//
// Updates are written directly into the parameter storage, so they are
// never recorded on a gradient tape.
type Optimizer interface {
	nn.OptimizerState

	// Step applies one update. Parameters without a gradient are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears the gradients stored on the parameters.
	ZeroGrad()

	LR() float32
	SetLR(lr float32)
}

// getGradient returns the float32 gradient of param, or nil when param did
// not take part in the computation.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	g, ok := grads[param.Tensor().Raw()]
	if !ok {
		return nil
	}
	if !g.Shape().Equal(param.Tensor().Shape()) {
		panic(errors.Errorf("gradient shape %v does not match parameter %q shape %v",
			g.Shape(), param.Name(), param.Tensor().Shape()))
	}
	return g.AsFloat32()
}

// slotKey names the state buffer of parameter i.
func slotKey(slot string, i int) string {
	return fmt.Sprintf("%s.%d", slot, i)
}

// loadSlot validates and converts the buffer stored under key for param.
// A missing key returns nil, nil.
func loadSlot[B tensor.Backend](state map[string]*tensor.RawTensor, key string, param *nn.Parameter[B]) ([]float32, error) {
	raw, ok := state[key]
	if !ok {
		return nil, nil
	}
	if !raw.Shape().Equal(param.Tensor().Shape()) {
		return nil, errors.Wrapf(ErrOptimizerState, "%q has shape %v, parameter %q has %v",
			key, raw.Shape(), param.Name(), param.Tensor().Shape())
	}
	out := make([]float32, raw.NumElements())
	switch raw.DType() {
	case tensor.Float32:
		copy(out, raw.AsFloat32())
	case tensor.Float64:
		for i, v := range raw.AsFloat64() {
			out[i] = float32(v)
		}
	default:
		return nil, errors.Wrapf(ErrOptimizerState, "%q has unsupported dtype %s", key, raw.DType())
	}
	return out, nil
}

// slotTensor wraps a buffer as a RawTensor for StateDict.
func slotTensor(shape tensor.Shape, data []float32) *tensor.RawTensor {
	raw := tensor.MustNewRaw(shape, tensor.Float32)
	copy(raw.AsFloat32(), data)
	return raw
}

// checkKeys rejects state entries the optimizer does not know.
func checkKeys(state map[string]*tensor.RawTensor, known func(string) bool) error {
	for k := range state {
		if !known(k) {
			return errors.Wrapf(ErrOptimizerState, "unexpected %q", k)
		}
	}
	return nil
}

// isSlotKey reports whether key is "<slot>.<i>" with 0 <= i < n.
func isSlotKey(key, slot string, n int) bool {
	var i int
	if _, err := fmt.Sscanf(key, slot+".%d", &i); err != nil {
		return false
	}
	return i >= 0 && i < n && key == slotKey(slot, i)
}
