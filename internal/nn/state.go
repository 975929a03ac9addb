package nn

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
)

// Module kinds recorded in checkpoints.
const (
	KindSingle    = "single"
	KindMultiHead = "multihead"
)

// headPrefix prefixes the state of head i in a multi-head state dict.
const headPrefix = "heads."

// StateDict returns mean_offsets, c and (when learnable) weights.
// Fixed weights are configuration, not state.
func (m *GaussianAdaptiveAttention[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, 3)
	for _, p := range m.Parameters() {
		state[p.Name()] = p.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies state into the parameters in place. Every
// parameter must be present with a matching shape; unknown names are
// rejected. Float64 values are narrowed to float32.
func (m *GaussianAdaptiveAttention[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	params := m.Parameters()
	known := make(map[string]bool, len(params))

	converted := make([]*tensor.RawTensor, len(params))
	for i, p := range params {
		known[p.Name()] = true
		src, ok := state[p.Name()]
		if !ok {
			return errors.Wrapf(ErrStateDict, "missing %q", p.Name())
		}
		dst := p.Tensor().Raw()
		if !src.Shape().Equal(dst.Shape()) {
			return errors.Wrapf(ErrStateDict, "%q has shape %v, expected %v", p.Name(), src.Shape(), dst.Shape())
		}
		v, err := toFloat32(src)
		if err != nil {
			return errors.Wrapf(ErrStateDict, "%q: %v", p.Name(), err)
		}
		converted[i] = v
	}
	if unexpected := unknownKeys(state, known); len(unexpected) > 0 {
		return errors.Wrapf(ErrStateDict, "unexpected %v", unexpected)
	}

	// Validation is complete before anything is written.
	for i, p := range params {
		if err := p.Tensor().Raw().CopyFrom(converted[i]); err != nil {
			return errors.Wrapf(ErrStateDict, "%q: %v", p.Name(), err)
		}
	}
	return nil
}

// StateDict returns the state of every head under "heads.<i>.".
func (m *MultiHeadGaussianAdaptiveAttention[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i, h := range m.heads {
		for name, raw := range h.StateDict() {
			state[fmt.Sprintf("%s%d.%s", headPrefix, i, name)] = raw
		}
	}
	return state
}

// LoadStateDict routes "heads.<i>.<name>" entries to head i. All heads are
// validated before any is written.
func (m *MultiHeadGaussianAdaptiveAttention[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	perHead := make([]map[string]*tensor.RawTensor, len(m.heads))
	for i := range perHead {
		perHead[i] = make(map[string]*tensor.RawTensor)
	}

	for key, raw := range state {
		i, name, ok := splitHeadKey(key)
		if !ok || i >= len(m.heads) {
			return errors.Wrapf(ErrStateDict, "unexpected %q", key)
		}
		perHead[i][name] = raw
	}

	// Dry run against clones so a bad head leaves every head untouched.
	for i, h := range m.heads {
		if err := h.checkStateDict(perHead[i]); err != nil {
			return errors.WithMessagef(err, "head %d", i)
		}
	}
	for i, h := range m.heads {
		if err := h.LoadStateDict(perHead[i]); err != nil {
			return errors.WithMessagef(err, "head %d", i)
		}
	}
	return nil
}

// checkStateDict validates state without modifying the module.
func (m *GaussianAdaptiveAttention[B]) checkStateDict(state map[string]*tensor.RawTensor) error {
	probe := &GaussianAdaptiveAttention[B]{config: m.config, backend: m.backend}
	probe.MeanOffsets = NewParameter(m.MeanOffsets.Name(), m.MeanOffsets.Tensor().Clone())
	probe.Scale = NewParameter(m.Scale.Name(), m.Scale.Tensor().Clone())
	if m.Weights != nil {
		probe.Weights = NewParameter(m.Weights.Name(), m.Weights.Tensor().Clone())
	}
	return probe.LoadStateDict(state)
}

func splitHeadKey(key string) (int, string, bool) {
	rest, ok := strings.CutPrefix(key, headPrefix)
	if !ok {
		return 0, "", false
	}
	idx, name, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, "", false
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 {
		return 0, "", false
	}
	return i, name, true
}

func unknownKeys(state map[string]*tensor.RawTensor, known map[string]bool) []string {
	var out []string
	for k := range state {
		if !known[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func toFloat32(raw *tensor.RawTensor) (*tensor.RawTensor, error) {
	switch raw.DType() {
	case tensor.Float32:
		return raw, nil
	case tensor.Float64:
		out, err := tensor.NewRaw(raw.Shape(), tensor.Float32)
		if err != nil {
			return nil, err
		}
		dst := out.AsFloat32()
		for i, v := range raw.AsFloat64() {
			dst[i] = float32(v)
		}
		return out, nil
	default:
		return nil, errors.Errorf("unsupported dtype %s", raw.DType())
	}
}
