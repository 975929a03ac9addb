package main

import (
	"encoding/json"
	"os"

	"github.com/born-ml/gaam/internal/backend/cpu"
	"github.com/born-ml/gaam/internal/config"
	"github.com/born-ml/gaam/internal/nn"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// tensorJSON is the file format of apply's input and output.
type tensorJSON struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

func runConfig(args []string) error {
	fs := newFlagSet("config")
	out := fs.String("out", "", "Configuration file to write (.yaml, .yml or .toml).")
	gaussians := fs.Int("gaussians", 4, "Number of Gaussian components.")
	settings := fs.String("set", "", `Overrides as "key1=value1;key2=value2", keys as in the file.`)
	mustParse(fs, args)
	required(fs, "out")

	f := config.Default(*gaussians)
	if err := f.ApplySettings(*settings); err != nil {
		return err
	}
	if err := f.Save(*out); err != nil {
		return err
	}
	klog.Infof("wrote %s configuration to %s", f.Module, *out)
	return nil
}

// loadModule builds the configured module on the CPU backend, optionally
// loading parameters from a checkpoint.
func loadModule(configPath, settings, paramsPath string) (nn.Reweighter[*cpu.CPUBackend], error) {
	f, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := f.ApplySettings(settings); err != nil {
		return nil, err
	}
	model, err := config.Build(f, cpu.New())
	if err != nil {
		return nil, err
	}
	if paramsPath != "" {
		if _, err := nn.LoadCheckpoint(paramsPath, model, nil); err != nil {
			return nil, err
		}
	}
	return model, nil
}

func runInit(args []string) error {
	fs := newFlagSet("init")
	configPath := fs.String("config", "", "Configuration file.")
	settings := fs.String("set", "", `Configuration overrides as "key1=value1;key2=value2".`)
	out := fs.String("out", "", "SafeTensors file to write.")
	dtypeName := fs.String("dtype", "f32", "Storage dtype: f32, f64 or f16.")
	mustParse(fs, args)
	required(fs, "config", "out")

	dtype, err := parseDType(*dtypeName)
	if err != nil {
		return err
	}
	model, err := loadModule(*configPath, *settings, "")
	if err != nil {
		return err
	}
	ckpt := &nn.Checkpoint[*cpu.CPUBackend]{Model: model}
	if err := ckpt.Save(*out, dtype); err != nil {
		return err
	}
	klog.Infof("initialized %s module (%d parameters) in %s, id %s", model.Kind(), len(model.Parameters()), *out, ckpt.ID)
	return nil
}

func runApply(args []string) error {
	fs := newFlagSet("apply")
	configPath := fs.String("config", "", "Configuration file.")
	settings := fs.String("set", "", `Configuration overrides as "key1=value1;key2=value2".`)
	params := fs.String("params", "", "Optional SafeTensors parameters written by init or a training run.")
	in := fs.String("in", "", `Input JSON {"shape": [...], "data": [...]}.`)
	out := fs.String("out", "", "Output JSON, same layout as the input.")
	mustParse(fs, args)
	required(fs, "config", "in", "out")

	model, err := loadModule(*configPath, *settings, *params)
	if err != nil {
		return err
	}

	x, err := readTensor(*in)
	if err != nil {
		return err
	}
	y, err := model.Apply(x)
	if err != nil {
		return err
	}
	klog.V(1).Infof("applied %s module: %v -> %v", model.Kind(), x.Shape(), y.Shape())
	return writeTensor(*out, y)
}

func readTensor(path string) (*tensor.Tensor[float32, *cpu.CPUBackend], error) {
	//nolint:gosec // G304: path is a command-line argument
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	var doc tensorJSON
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	x, err := tensor.FromSlice(doc.Data, tensor.Shape(doc.Shape), cpu.New())
	if err != nil {
		return nil, errors.WithMessagef(err, "tensor in %s", path)
	}
	return x, nil
}

func writeTensor(path string, t *tensor.Tensor[float32, *cpu.CPUBackend]) error {
	content, err := json.Marshal(tensorJSON{Shape: t.Shape(), Data: t.Data()})
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	//nolint:gosec // G306: outputs are not secrets
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
