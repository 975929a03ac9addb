package nn

import (
	"strconv"
	"strings"
	"time"

	"github.com/born-ml/gaam/internal/serialization"
	"github.com/born-ml/gaam/internal/tensor"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Checkpoint metadata keys.
const (
	MetaFormat    = "format"
	MetaModule    = "module"
	MetaID        = "id"
	MetaCreatedAt = "created_at"
	MetaStep      = "step"
	MetaOptimizer = "optimizer"

	checkpointFormat = "gaam"
	optimizerPrefix  = "optimizer."
)

// OptimizerState represents an optimizer that can save/load its state.
//
// Declared here rather than imported to avoid an import cycle: optimizers
// depend on Parameter.
type OptimizerState interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
	Name() string
}

// Checkpoint is a snapshot of a reweighter and, optionally, its optimizer.
//
// Example:
//
//	ckpt := &nn.Checkpoint[Backend]{Model: gaa, Optimizer: adam, Step: 500}
//	err := ckpt.Save("gaa.safetensors", tensor.Float32)
//
//	ckpt, err = nn.LoadCheckpoint("gaa.safetensors", gaa, adam)
type Checkpoint[B tensor.Backend] struct {
	Model     Reweighter[B]
	Optimizer OptimizerState // may be nil
	Step      int64
	Metadata  map[string]string // extra entries stored in the header
	ID        string            // set on Save when empty
	CreatedAt time.Time         // set on Save
}

// Save writes the model state (and optimizer state under "optimizer.")
// to a SafeTensors file with the given storage dtype. The header carries
// the module kind, its hyperparameters and a unique checkpoint ID.
func (c *Checkpoint[B]) Save(path string, storage tensor.DataType) error {
	if c.Model == nil {
		return errors.New("checkpoint has no model")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	state := make(map[string]*tensor.RawTensor)
	for name, raw := range c.Model.StateDict() {
		state[name] = raw
	}

	meta := make(map[string]string)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	for k, v := range c.Model.Metadata() {
		meta[k] = v
	}
	meta[MetaFormat] = checkpointFormat
	meta[MetaModule] = c.Model.Kind()
	meta[MetaID] = c.ID
	meta[MetaCreatedAt] = c.CreatedAt.Format(time.RFC3339)
	meta[MetaStep] = strconv.FormatInt(c.Step, 10)

	if c.Optimizer != nil {
		meta[MetaOptimizer] = c.Optimizer.Name()
		for name, raw := range c.Optimizer.StateDict() {
			state[optimizerPrefix+name] = raw
		}
	}

	if err := serialization.WriteSafeTensors(path, state, meta, storage); err != nil {
		return errors.WithMessage(err, "save checkpoint")
	}
	klog.V(1).Infof("saved %s checkpoint %s (step %d) to %s", c.Model.Kind(), c.ID, c.Step, path)
	return nil
}

// LoadCheckpoint reads path into a pre-constructed model (and optimizer,
// when non-nil). The model must have the kind and shape of the saved one.
func LoadCheckpoint[B tensor.Backend](path string, model Reweighter[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	file, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return nil, errors.WithMessage(err, "load checkpoint")
	}

	if kind, ok := file.Metadata[MetaModule]; ok && kind != model.Kind() {
		return nil, errors.Wrapf(ErrStateDict, "checkpoint holds a %q module, loading into %q", kind, model.Kind())
	}

	modelState := make(map[string]*tensor.RawTensor)
	optState := make(map[string]*tensor.RawTensor)
	for name, raw := range file.Tensors {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optState[rest] = raw
			continue
		}
		modelState[name] = raw
	}

	// Both loads are atomic on their own. The model is restored from a
	// snapshot when the optimizer rejects its state, so a failed call
	// leaves both untouched.
	previous := snapshotState(model.StateDict())
	if err := model.LoadStateDict(modelState); err != nil {
		return nil, errors.WithMessage(err, "load checkpoint")
	}
	if optimizer != nil && len(optState) > 0 {
		if err := optimizer.LoadStateDict(optState); err != nil {
			if restoreErr := model.LoadStateDict(previous); restoreErr != nil {
				klog.Errorf("restoring model after failed optimizer load: %v", restoreErr)
			}
			return nil, errors.WithMessage(err, "load optimizer state")
		}
	}

	ckpt := &Checkpoint[B]{
		Model:     model,
		Optimizer: optimizer,
		Metadata:  file.Metadata,
		ID:        file.Metadata[MetaID],
	}
	if step, err := strconv.ParseInt(file.Metadata[MetaStep], 10, 64); err == nil {
		ckpt.Step = step
	}
	if created, err := time.Parse(time.RFC3339, file.Metadata[MetaCreatedAt]); err == nil {
		ckpt.CreatedAt = created
	}
	klog.V(1).Infof("loaded %s checkpoint %s from %s", model.Kind(), ckpt.ID, path)
	return ckpt, nil
}

// snapshotState copies every tensor of state.
func snapshotState(state map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(state))
	for name, raw := range state {
		out[name] = raw.Clone()
	}
	return out
}
