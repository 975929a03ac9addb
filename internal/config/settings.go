package config

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ApplySettings overrides fields of f from a settings string of the form
// "key1=value1;key2=value2", where keys are the YAML field names and values
// use YAML syntax ("initial_scales=[1, 2, 4]"). f is validated afterwards
// and left unchanged on error.
func (f *File) ApplySettings(settings string) error {
	updated := f.clone()
	for _, setting := range strings.Split(settings, ";") {
		setting = strings.TrimSpace(setting)
		if setting == "" {
			continue
		}
		key, value, ok := strings.Cut(setting, "=")
		if !ok {
			return errors.Wrapf(ErrInvalidConfig, "can't parse setting %q: expected \"<key>=<value>\"", setting)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		if key == "" || strings.ContainsAny(key, ":#{}[]") {
			return errors.Wrapf(ErrInvalidConfig, "invalid setting key %q", key)
		}

		dec := yaml.NewDecoder(strings.NewReader(key + ": " + value + "\n"))
		dec.KnownFields(true)
		if err := dec.Decode(&updated); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "setting %q: %v", setting, err)
		}
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	*f = updated
	return nil
}

// clone returns a copy of f that shares no pointers or slices with it, so
// decoding into the copy never reaches f.
func (f *File) clone() File {
	c := *f
	c.InitialScales = slices.Clone(f.InitialScales)
	c.FixedWeights = slices.Clone(f.FixedWeights)
	if f.LearnableWeights != nil {
		v := *f.LearnableWeights
		c.LearnableWeights = &v
	}
	if f.PaddingValue != nil {
		v := *f.PaddingValue
		c.PaddingValue = &v
	}
	return c
}
