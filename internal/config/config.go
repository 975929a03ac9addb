// Package config loads attention module configurations from YAML or TOML
// files and builds the corresponding modules.
//
// A configuration file names the module kind and its hyperparameters:
//
//	module: multihead
//	norm_axis: -1
//	num_gaussians: 4
//	initial_scale: 2.0
//	padding_value: 0
//	num_heads: 8
//	parallel: true
//
// Files ending in .yaml or .yml are parsed as YAML, files ending in .toml as
// TOML. Unknown keys are errors in both formats.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/born-ml/gaam/internal/nn"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	YAML Format = "yaml"
	TOML Format = "toml"
)

var (
	// ErrUnknownFormat is returned for a file extension that is neither YAML nor TOML.
	ErrUnknownFormat = errors.New("unknown configuration format")

	// ErrInvalidConfig is returned for malformed or inconsistent documents.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// File is the on-disk configuration document.
type File struct {
	// Module is nn.KindSingle or nn.KindMultiHead.
	Module string `yaml:"module" toml:"module"`

	NormAxis         int       `yaml:"norm_axis" toml:"norm_axis"`
	NumGaussians     int       `yaml:"num_gaussians" toml:"num_gaussians"`
	InitialScale     float32   `yaml:"initial_scale,omitempty" toml:"initial_scale,omitempty"`
	InitialScales    []float32 `yaml:"initial_scales,omitempty" toml:"initial_scales,omitempty"`
	Epsilon          float32   `yaml:"epsilon,omitempty" toml:"epsilon,omitempty"`
	UnbiasedVariance bool      `yaml:"unbiased_variance,omitempty" toml:"unbiased_variance,omitempty"`

	// LearnableWeights defaults to true unless FixedWeights is set.
	LearnableWeights *bool     `yaml:"learnable_weights,omitempty" toml:"learnable_weights,omitempty"`
	FixedWeights     []float32 `yaml:"fixed_weights,omitempty" toml:"fixed_weights,omitempty"`
	PaddingValue     *float32  `yaml:"padding_value,omitempty" toml:"padding_value,omitempty"`

	// Multi-head only.
	NumHeads        int  `yaml:"num_heads,omitempty" toml:"num_heads,omitempty"`
	StrictPartition bool `yaml:"strict_partition,omitempty" toml:"strict_partition,omitempty"`
	Parallel        bool `yaml:"parallel,omitempty" toml:"parallel,omitempty"`
	MaxConcurrency  int  `yaml:"max_concurrency,omitempty" toml:"max_concurrency,omitempty"`
}

// Default returns a single-head configuration with numGaussians learnable
// components and default hyperparameters.
func Default(numGaussians int) *File {
	return &File{
		Module:       nn.KindSingle,
		NumGaussians: numGaussians,
		InitialScale: nn.DefaultInitialScale,
		Epsilon:      nn.DefaultEpsilon,
	}
}

// FormatOf infers the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	default:
		return "", errors.Wrapf(ErrUnknownFormat, "%q", path)
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration %s", path)
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, errors.WithMessagef(err, "configuration %s", path)
	}
	klog.V(1).Infof("loaded %s configuration from %s", f.Module, path)
	return f, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte, format Format) (*File, error) {
	f := &File{}
	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(ErrInvalidConfig, "yaml: %v", err)
		}
	case TOML:
		md, err := toml.Decode(string(data), f)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "toml: %v", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "toml: unknown keys %v", undecoded)
		}
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Save writes f to path in the format given by its extension.
func (f *File) Save(path string) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := f.Encode(format)
	if err != nil {
		return err
	}
	//nolint:gosec // G306: configuration files are not secrets
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write configuration %s", path)
	}
	return nil
}

// Encode serializes f.
func (f *File) Encode(format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case YAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, errors.Wrap(err, "yaml")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "yaml")
		}
	case TOML:
		if err := toml.NewEncoder(&buf).Encode(f); err != nil {
			return nil, errors.Wrap(err, "toml")
		}
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	return buf.Bytes(), nil
}

// Validate checks the module kind, the multi-head fields and the
// hyperparameters.
func (f *File) Validate() error {
	switch f.Module {
	case nn.KindSingle:
		if f.NumHeads != 0 || f.StrictPartition || f.Parallel || f.MaxConcurrency != 0 {
			return errors.Wrap(ErrInvalidConfig, "multi-head fields set on a single-head module")
		}
		return f.SingleConfig().Validate()
	case nn.KindMultiHead:
		if f.MaxConcurrency < 0 {
			return errors.Wrapf(ErrInvalidConfig, "max_concurrency %d", f.MaxConcurrency)
		}
		return f.MultiHeadConfig().Validate()
	default:
		return errors.Wrapf(ErrInvalidConfig, "module %q, expected %q or %q", f.Module, nn.KindSingle, nn.KindMultiHead)
	}
}

// SingleConfig returns the single-head hyperparameters.
func (f *File) SingleConfig() nn.GaussianAdaptiveAttentionConfig {
	learnable := f.FixedWeights == nil
	if f.LearnableWeights != nil {
		learnable = *f.LearnableWeights
	}
	return nn.GaussianAdaptiveAttentionConfig{
		NormAxis:         f.NormAxis,
		NumGaussians:     f.NumGaussians,
		InitialScale:     f.InitialScale,
		InitialScales:    f.InitialScales,
		Epsilon:          f.Epsilon,
		UnbiasedVariance: f.UnbiasedVariance,
		LearnableWeights: learnable,
		FixedWeights:     f.FixedWeights,
		PaddingValue:     f.PaddingValue,
	}
}

// MultiHeadConfig returns the multi-head hyperparameters.
func (f *File) MultiHeadConfig() nn.MultiHeadGaussianAdaptiveAttentionConfig {
	return nn.MultiHeadGaussianAdaptiveAttentionConfig{
		GaussianAdaptiveAttentionConfig: f.SingleConfig(),
		NumHeads:                        f.NumHeads,
		StrictPartition:                 f.StrictPartition,
		Parallel:                        f.Parallel,
		MaxConcurrency:                  f.MaxConcurrency,
	}
}

// Build creates the module described by f on backend.
func Build[B tensor.Backend](f *File, backend B) (nn.Reweighter[B], error) {
	switch f.Module {
	case nn.KindSingle:
		m, err := nn.NewGaussianAdaptiveAttention(f.SingleConfig(), backend)
		if err != nil {
			return nil, err
		}
		return m, nil
	case nn.KindMultiHead:
		m, err := nn.NewMultiHeadGaussianAdaptiveAttention(f.MultiHeadConfig(), backend)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "module %q", f.Module)
	}
}
