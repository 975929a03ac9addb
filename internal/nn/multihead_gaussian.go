package nn

import (
	"strconv"
	"sync"

	"github.com/born-ml/gaam/internal/parallel"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MultiHeadGaussianAdaptiveAttentionConfig configures the multi-head module.
// Every head is built from the embedded single-head configuration.
type MultiHeadGaussianAdaptiveAttentionConfig struct {
	GaussianAdaptiveAttentionConfig

	NumHeads int

	// StrictPartition rejects an extent that num_heads does not divide.
	// Otherwise the trailing extent % num_heads elements are dropped and
	// the output is shorter than the input along the axis.
	StrictPartition bool

	// Parallel evaluates the heads concurrently. Outputs are still
	// concatenated in head order.
	Parallel bool

	// MaxConcurrency bounds concurrent heads when Parallel is set (0 = unbounded).
	MaxConcurrency int
}

// DefaultMultiHeadConfig returns DefaultConfig(numGaussians) split over numHeads heads.
func DefaultMultiHeadConfig(numHeads, numGaussians int) MultiHeadGaussianAdaptiveAttentionConfig {
	return MultiHeadGaussianAdaptiveAttentionConfig{
		GaussianAdaptiveAttentionConfig: DefaultConfig(numGaussians),
		NumHeads:                        numHeads,
	}
}

// Validate checks the head count and the per-head configuration.
func (c MultiHeadGaussianAdaptiveAttentionConfig) Validate() error {
	if c.NumHeads < 1 {
		return errors.Wrapf(ErrInvalidNumHeads, "got %d", c.NumHeads)
	}
	return c.GaussianAdaptiveAttentionConfig.Validate()
}

// MultiHeadGaussianAdaptiveAttention splits its input into NumHeads
// contiguous chunks along the normalization axis, reweights chunk i with
// head i, and concatenates the results in head order.
//
// Heads share hyperparameters but own independent parameters.
type MultiHeadGaussianAdaptiveAttention[B tensor.Backend] struct {
	heads  []*GaussianAdaptiveAttention[B]
	config MultiHeadGaussianAdaptiveAttentionConfig

	truncationWarning sync.Once
}

// NewMultiHeadGaussianAdaptiveAttention validates cfg and creates NumHeads
// independently parameterized heads.
func NewMultiHeadGaussianAdaptiveAttention[B tensor.Backend](
	cfg MultiHeadGaussianAdaptiveAttentionConfig,
	backend B,
) (*MultiHeadGaussianAdaptiveAttention[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	heads := make([]*GaussianAdaptiveAttention[B], cfg.NumHeads)
	for i := range heads {
		head, err := NewGaussianAdaptiveAttention(cfg.GaussianAdaptiveAttentionConfig, backend)
		if err != nil {
			return nil, errors.WithMessagef(err, "head %d", i)
		}
		heads[i] = head
	}
	cfg.GaussianAdaptiveAttentionConfig = heads[0].Config()

	klog.V(1).Infof("multi-head gaussian adaptive attention: heads=%d strict=%t parallel=%t",
		cfg.NumHeads, cfg.StrictPartition, cfg.Parallel)
	return &MultiHeadGaussianAdaptiveAttention[B]{heads: heads, config: cfg}, nil
}

// Heads returns the heads in order.
func (m *MultiHeadGaussianAdaptiveAttention[B]) Heads() []*GaussianAdaptiveAttention[B] {
	return m.heads
}

// Config returns the effective configuration, defaults applied.
func (m *MultiHeadGaussianAdaptiveAttention[B]) Config() MultiHeadGaussianAdaptiveAttentionConfig {
	cfg := m.config
	cfg.GaussianAdaptiveAttentionConfig = m.heads[0].Config()
	return cfg
}

// Forward applies all heads and panics on error.
func (m *MultiHeadGaussianAdaptiveAttention[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out, err := m.Apply(x)
	if err != nil {
		panic(err)
	}
	return out
}

// Apply partitions x along the normalization axis and reweights every
// chunk with its own head.
//
// Returns ErrTooManyHeads when the extent is smaller than the number of
// heads, and ErrIndivisibleExtent for a non-divisible extent when
// StrictPartition is set.
func (m *MultiHeadGaussianAdaptiveAttention[B]) Apply(x *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	axis, err := x.Shape().NormalizeDim(m.config.NormAxis)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAxis, "axis %d for input shape %v", m.config.NormAxis, x.Shape())
	}

	numHeads := len(m.heads)
	extent := x.Shape()[axis]
	chunk := extent / numHeads
	if chunk == 0 {
		return nil, errors.Wrapf(ErrTooManyHeads, "extent %d along axis %d, %d heads", extent, axis, numHeads)
	}
	if rem := extent % numHeads; rem != 0 {
		if m.config.StrictPartition {
			return nil, errors.Wrapf(ErrIndivisibleExtent, "extent %d along axis %d, %d heads", extent, axis, numHeads)
		}
		m.truncationWarning.Do(func() {
			klog.Warningf("multi-head gaussian adaptive attention: extent %d not divisible by %d heads, dropping trailing %d elements",
				extent, numHeads, rem)
		})
	}
	klog.V(2).Infof("multi-head gaussian adaptive attention: input %v, axis %d, chunk %d", x.Shape(), axis, chunk)

	outputs := make([]*tensor.Tensor[float32, B], numHeads)
	run := func(i int) error {
		var part *tensor.Tensor[float32, B]
		if err := exceptions.TryCatch[error](func() {
			part = x.Narrow(axis, i*chunk, chunk)
		}); err != nil {
			return errors.WithMessagef(err, "head %d", i)
		}
		out, err := m.heads[i].Apply(part)
		if err != nil {
			return errors.WithMessagef(err, "head %d", i)
		}
		outputs[i] = out
		return nil
	}

	if m.config.Parallel {
		err = parallel.Each(numHeads, m.config.MaxConcurrency, run)
	} else {
		for i := 0; i < numHeads && err == nil; i++ {
			err = run(i)
		}
	}
	if err != nil {
		return nil, err
	}

	var out *tensor.Tensor[float32, B]
	if err := exceptions.TryCatch[error](func() {
		out = tensor.Cat(outputs, axis)
	}); err != nil {
		return nil, errors.WithMessage(err, "multi-head gaussian adaptive attention")
	}
	return out, nil
}

// Parameters returns the parameters of every head, in head order.
func (m *MultiHeadGaussianAdaptiveAttention[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, h := range m.heads {
		params = append(params, h.Parameters()...)
	}
	return params
}

// Kind returns "multihead".
func (m *MultiHeadGaussianAdaptiveAttention[B]) Kind() string {
	return KindMultiHead
}

// Metadata describes the hyperparameters.
func (m *MultiHeadGaussianAdaptiveAttention[B]) Metadata() map[string]string {
	meta := m.heads[0].Metadata()
	meta["num_heads"] = strconv.Itoa(len(m.heads))
	meta["strict_partition"] = strconv.FormatBool(m.config.StrictPartition)
	return meta
}
