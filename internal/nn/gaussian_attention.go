package nn

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Defaults for GaussianAdaptiveAttentionConfig.
const (
	DefaultInitialScale = 2.0
	DefaultEpsilon      = 1e-8
)

// GaussianAdaptiveAttentionConfig holds the hyperparameters of a
// GaussianAdaptiveAttention module.
//
// Exactly one of LearnableWeights and FixedWeights selects the mixture
// weights. Zero InitialScale and Epsilon mean the defaults.
type GaussianAdaptiveAttentionConfig struct {
	NormAxis     int // negative values count from the last dimension
	NumGaussians int

	InitialScale  float32   // broadcast to every component
	InitialScales []float32 // explicit per-component scales, overrides InitialScale

	Epsilon float32

	// UnbiasedVariance divides the squared deviations by N-1 instead of N.
	UnbiasedVariance bool

	LearnableWeights bool      // uniform logits, softmax-normalized
	FixedWeights     []float32 // used exactly as given, never trained

	// PaddingValue marks positions excluded from the statistics and
	// passed through unchanged. Nil means every position participates.
	PaddingValue *float32
}

// DefaultConfig returns a configuration with learnable weights, scale 2
// and epsilon 1e-8 along axis 0.
func DefaultConfig(numGaussians int) GaussianAdaptiveAttentionConfig {
	return GaussianAdaptiveAttentionConfig{
		NumGaussians:     numGaussians,
		InitialScale:     DefaultInitialScale,
		Epsilon:          DefaultEpsilon,
		LearnableWeights: true,
	}
}

// Validate checks the construction contract.
func (c GaussianAdaptiveAttentionConfig) Validate() error {
	if c.NumGaussians < 1 {
		return errors.Wrapf(ErrInvalidNumGaussians, "got %d", c.NumGaussians)
	}
	if c.InitialScales != nil && len(c.InitialScales) != c.NumGaussians {
		return errors.Wrapf(ErrScaleLength, "got %d scales for %d gaussians", len(c.InitialScales), c.NumGaussians)
	}
	switch {
	case c.LearnableWeights && c.FixedWeights != nil:
		return errors.Wrap(ErrInvalidWeights, "both learnable and fixed weights set")
	case !c.LearnableWeights && c.FixedWeights == nil:
		return errors.Wrap(ErrInvalidWeights, "neither learnable nor fixed weights set")
	case c.FixedWeights != nil && len(c.FixedWeights) != c.NumGaussians:
		return errors.Wrapf(ErrWeightsLength, "got %d weights for %d gaussians", len(c.FixedWeights), c.NumGaussians)
	}
	if c.Epsilon < 0 {
		return errors.Wrapf(ErrInvalidEpsilon, "got %g", c.Epsilon)
	}
	return nil
}

// withDefaults fills zero-valued scale and epsilon and detaches the
// result from the caller's slices and padding pointer.
func (c GaussianAdaptiveAttentionConfig) withDefaults() GaussianAdaptiveAttentionConfig {
	c.InitialScales = slices.Clone(c.InitialScales)
	c.FixedWeights = slices.Clone(c.FixedWeights)
	if c.PaddingValue != nil {
		pad := *c.PaddingValue
		c.PaddingValue = &pad
	}
	if c.InitialScale == 0 {
		c.InitialScale = DefaultInitialScale
	}
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
	return c
}

// scales returns the initial per-component scale values.
func (c GaussianAdaptiveAttentionConfig) scales() []float32 {
	if c.InitialScales != nil {
		return append([]float32(nil), c.InitialScales...)
	}
	out := make([]float32, c.NumGaussians)
	for i := range out {
		out[i] = c.InitialScale
	}
	return out
}

// GaussianAdaptiveAttention reweights the elements of a tensor with a
// mixture of Gaussians centered on the per-slice mean.
//
// For every slice along NormAxis, with mean μ and variance σ² of the
// (padding-zeroed) values:
//
//	y_i       = (x - (μ + offset_i)) / sqrt(σ² + eps)
//	mixture   = Σ_i w_i * exp(-y_i² / (2 c_i²))
//	transform = mixture / max(Σ_axis mixture, eps)
//	output    = x * transform   (padding positions pass through)
//
// w is softmax(weights) when the weights are learnable and the fixed
// weights as given otherwise.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	cfg := nn.DefaultConfig(4)
//	cfg.NormAxis = -1
//	gaa, err := nn.NewGaussianAdaptiveAttention(cfg, backend)
//	out, err := gaa.Apply(x) // same shape as x
type GaussianAdaptiveAttention[B tensor.Backend] struct {
	MeanOffsets *Parameter[B] // [num_gaussians], initialized to 0
	Scale       *Parameter[B] // c, [num_gaussians]
	Weights     *Parameter[B] // logits [num_gaussians]; nil when weights are fixed

	fixedWeights *tensor.Tensor[float32, B]
	config       GaussianAdaptiveAttentionConfig
	backend      B
}

// NewGaussianAdaptiveAttention validates cfg and creates the module.
func NewGaussianAdaptiveAttention[B tensor.Backend](cfg GaussianAdaptiveAttentionConfig, backend B) (*GaussianAdaptiveAttention[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	g := cfg.NumGaussians

	scale, err := tensor.FromSlice(cfg.scales(), tensor.Shape{g}, backend)
	if err != nil {
		return nil, errors.WithMessage(err, "scale")
	}

	m := &GaussianAdaptiveAttention[B]{
		MeanOffsets: NewParameter("mean_offsets", tensor.Zeros[float32](tensor.Shape{g}, backend)),
		Scale:       NewParameter("c", scale),
		config:      cfg,
		backend:     backend,
	}

	if cfg.LearnableWeights {
		m.Weights = NewParameter("weights", tensor.Ones[float32](tensor.Shape{g}, backend))
	} else {
		fixed, err := tensor.FromSlice(append([]float32(nil), cfg.FixedWeights...), tensor.Shape{g}, backend)
		if err != nil {
			return nil, errors.WithMessage(err, "fixed weights")
		}
		m.fixedWeights = fixed
	}

	klog.V(1).Infof("gaussian adaptive attention: axis=%d gaussians=%d learnable_weights=%t padding=%t",
		cfg.NormAxis, g, cfg.LearnableWeights, cfg.PaddingValue != nil)
	return m, nil
}

// Config returns the effective configuration, defaults applied.
func (m *GaussianAdaptiveAttention[B]) Config() GaussianAdaptiveAttentionConfig {
	return m.config.withDefaults()
}

// Forward applies the reweighting and panics on error.
func (m *GaussianAdaptiveAttention[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out, err := m.Apply(x)
	if err != nil {
		panic(err)
	}
	return out
}

// Apply reweights x along the configured axis. The output has the shape
// of x. The only error is an axis the input does not have; engine panics
// are returned as errors as well.
func (m *GaussianAdaptiveAttention[B]) Apply(x *tensor.Tensor[float32, B]) (out *tensor.Tensor[float32, B], err error) {
	axis, err := x.Shape().NormalizeDim(m.config.NormAxis)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAxis, "axis %d for input shape %v", m.config.NormAxis, x.Shape())
	}
	klog.V(2).Infof("gaussian adaptive attention: input %v, axis %d", x.Shape(), axis)

	err = exceptions.TryCatch[error](func() {
		out = m.forward(x, axis)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "gaussian adaptive attention")
	}
	return out, nil
}

func (m *GaussianAdaptiveAttention[B]) forward(x *tensor.Tensor[float32, B], axis int) *tensor.Tensor[float32, B] {
	eps := m.config.Epsilon

	// The mask is computed once and used both for the statistics and for
	// the final passthrough.
	var mask *tensor.Tensor[bool, B]
	stats := x
	if m.config.PaddingValue != nil {
		mask = x.NotEqualScalar(*m.config.PaddingValue)
		stats = tensor.Where(mask, x, tensor.Zeros[float32](tensor.Shape{1}, m.backend))
	}

	mean, variance := meanVariance(stats, axis, m.config.UnbiasedVariance)
	std := variance.AddScalar(eps).Sqrt()

	weights := m.MixtureWeights()
	offsets := m.MeanOffsets.Tensor()
	scales := m.Scale.Tensor()

	var mixture *tensor.Tensor[float32, B]
	for i := 0; i < m.config.NumGaussians; i++ {
		center := mean.Add(offsets.Narrow(0, i, 1))
		y := x.Sub(center).Div(std)

		// exp(-y² / (2c²))
		width := scales.Narrow(0, i, 1).Square().MulScalar(2)
		response := y.Square().Div(width).MulScalar(-1).Exp()

		term := response.Mul(weights.Narrow(0, i, 1))
		if mixture == nil {
			mixture = term
		} else {
			mixture = mixture.Add(term)
		}
	}

	total := mixture.SumDim(axis, true).ClampMin(eps)
	out := x.Mul(mixture.Div(total))
	if mask != nil {
		out = tensor.Where(mask, out, x)
	}
	return out
}

// meanVariance returns the mean and variance of x along axis, both with
// the axis kept as size 1. A single-element axis has variance 0.
func meanVariance[B tensor.Backend](x *tensor.Tensor[float32, B], axis int, unbiased bool) (mean, variance *tensor.Tensor[float32, B]) {
	n := x.Shape()[axis]
	mean = x.MeanDim(axis, true)
	sq := x.Sub(mean).Square().SumDim(axis, true)

	divisor := n
	if unbiased && n > 1 {
		divisor = n - 1
	}
	return mean, sq.MulScalar(1 / float32(divisor))
}

// MixtureWeights returns the normalized mixture weights: softmax of the
// learnable logits, or the fixed weights unchanged.
func (m *GaussianAdaptiveAttention[B]) MixtureWeights() *tensor.Tensor[float32, B] {
	if m.Weights != nil {
		return m.Weights.Tensor().Softmax(0)
	}
	return m.fixedWeights
}

// Parameters returns mean offsets and scale, plus the weight logits when
// they are learnable. Fixed weights are never returned.
func (m *GaussianAdaptiveAttention[B]) Parameters() []*Parameter[B] {
	params := []*Parameter[B]{m.MeanOffsets, m.Scale}
	if m.Weights != nil {
		params = append(params, m.Weights)
	}
	return params
}

// Kind returns "single".
func (m *GaussianAdaptiveAttention[B]) Kind() string {
	return KindSingle
}

// Metadata describes the hyperparameters.
func (m *GaussianAdaptiveAttention[B]) Metadata() map[string]string {
	c := m.config
	meta := map[string]string{
		"norm_axis":         strconv.Itoa(c.NormAxis),
		"num_gaussians":     strconv.Itoa(c.NumGaussians),
		"epsilon":           strconv.FormatFloat(float64(c.Epsilon), 'g', -1, 32),
		"unbiased_variance": strconv.FormatBool(c.UnbiasedVariance),
		"learnable_weights": strconv.FormatBool(c.LearnableWeights),
	}
	if c.PaddingValue != nil {
		meta["padding_value"] = strconv.FormatFloat(float64(*c.PaddingValue), 'g', -1, 32)
	}
	if c.FixedWeights != nil {
		meta["fixed_weights"] = fmt.Sprint(c.FixedWeights)
	}
	return meta
}
