package optim

import (
	"math"

	"github.com/born-ml/gaam/internal/nn"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int         // timestep for bias correction
	m      [][]float32 // first moments by parameter index
	v      [][]float32 // second moments by parameter index
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero config fields take the
// defaults listed on AdamConfig.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make([][]float32, len(params)),
		v:      make([][]float32, len(params)),
	}
}

// Name returns "adam".
func (a *Adam[B]) Name() string {
	return "adam"
}

// Step performs a single optimization step. Parameters with no gradient
// are skipped, but the timestep advances for all of them.
func (a *Adam[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for i, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		if a.m[i] == nil {
			a.m[i] = make([]float32, len(grad))
			a.v[i] = make([]float32, len(grad))
		}
		m, v := a.m[i], a.v[i]
		data := param.Tensor().Data()

		for j, g := range grad {
			m[j] = a.beta1*m[j] + (1.0-a.beta1)*g
			v[j] = a.beta2*v[j] + (1.0-a.beta2)*g*g
			mHat := m[j] / biasCorrection1
			vHat := v[j] / biasCorrection2
			data[j] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
	klog.V(3).Infof("adam: step %d", a.t)
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// LR returns the current learning rate.
func (a *Adam[B]) LR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// Timestep returns the number of steps taken.
func (a *Adam[B]) Timestep() int {
	return a.t
}

// StateDict exports the moments as "m.<i>" and "v.<i>" plus the timestep
// as "step".
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	step := tensor.MustNewRaw(tensor.Shape{1}, tensor.Float64)
	step.AsFloat64()[0] = float64(a.t)
	state["step"] = step

	for i, param := range a.params {
		if a.m[i] == nil {
			continue
		}
		state[slotKey("m", i)] = slotTensor(param.Tensor().Shape(), a.m[i])
		state[slotKey("v", i)] = slotTensor(param.Tensor().Shape(), a.v[i])
	}
	return state
}

// LoadStateDict restores moments and timestep. Nothing is changed on error.
func (a *Adam[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	n := len(a.params)
	if err := checkKeys(state, func(k string) bool {
		return k == "step" || isSlotKey(k, "m", n) || isSlotKey(k, "v", n)
	}); err != nil {
		return err
	}

	t := 0
	if raw, ok := state["step"]; ok {
		if raw.NumElements() != 1 {
			return errors.Wrapf(ErrOptimizerState, "step has shape %v", raw.Shape())
		}
		switch raw.DType() {
		case tensor.Float64:
			t = int(raw.AsFloat64()[0])
		case tensor.Float32:
			t = int(raw.AsFloat32()[0])
		default:
			return errors.Wrapf(ErrOptimizerState, "step has unsupported dtype %s", raw.DType())
		}
	}

	m := make([][]float32, n)
	v := make([][]float32, n)
	for i, param := range a.params {
		var err error
		if m[i], err = loadSlot(state, slotKey("m", i), param); err != nil {
			return errors.WithMessage(err, "adam")
		}
		if v[i], err = loadSlot(state, slotKey("v", i), param); err != nil {
			return errors.WithMessage(err, "adam")
		}
		if (m[i] == nil) != (v[i] == nil) {
			return errors.Wrapf(ErrOptimizerState, "parameter %d has only one of m and v", i)
		}
	}
	a.t, a.m, a.v = t, m, v
	return nil
}
