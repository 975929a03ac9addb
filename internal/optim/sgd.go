package optim

import (
	"github.com/born-ml/gaam/internal/nn"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	opt := optim.NewSGD(mh.Parameters(), optim.SGDConfig{LR: 0.05, Momentum: 0.9})
type SGD[B tensor.Backend] struct {
	params     []*nn.Parameter[B]
	lr         float32
	momentum   float32
	velocities [][]float32 // by parameter index, nil until first used
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer over params.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make([][]float32, len(params)),
	}
}

// Name returns "sgd".
func (s *SGD[B]) Name() string {
	return "sgd"
}

// Step performs a single optimization step.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	updated := 0
	for i, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		data := param.Tensor().Data()

		if s.momentum == 0 {
			for j, g := range grad {
				data[j] -= s.lr * g
			}
			updated++
			continue
		}

		if s.velocities[i] == nil {
			s.velocities[i] = make([]float32, len(data))
		}
		velocity := s.velocities[i]
		for j, g := range grad {
			velocity[j] = s.momentum*velocity[j] + g
			data[j] -= s.lr * velocity[j]
		}
		updated++
	}
	klog.V(3).Infof("sgd: updated %d/%d parameters", updated, len(s.params))
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (s *SGD[B]) LR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

// StateDict exports the velocity buffers as "velocity.<i>", where i is the
// parameter index. Parameters that have not been stepped yet are omitted.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i, v := range s.velocities {
		if v != nil {
			state[slotKey("velocity", i)] = slotTensor(s.params[i].Tensor().Shape(), v)
		}
	}
	return state
}

// LoadStateDict restores velocity buffers. Nothing is changed on error.
func (s *SGD[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := checkKeys(state, func(k string) bool { return isSlotKey(k, "velocity", len(s.params)) }); err != nil {
		return err
	}
	velocities := make([][]float32, len(s.params))
	for i, param := range s.params {
		v, err := loadSlot(state, slotKey("velocity", i), param)
		if err != nil {
			return errors.WithMessage(err, "sgd")
		}
		velocities[i] = v
	}
	s.velocities = velocities
	return nil
}
