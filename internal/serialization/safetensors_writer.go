package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"sort"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors writes tensors to a SafeTensors file, converting each
// one to the storage dtype (Float16, Float32 or Float64).
//
// Tensors are written in alphabetical order by name. The metadata is
// copied and extended with the data-section checksum.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string, storage tensor.DataType) error {
	encoded, err := EncodeSafeTensors(tensors, metadata, storage)
	if err != nil {
		return err
	}
	//nolint:gosec // G306: parameter files are not secrets
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	klog.V(1).Infof("wrote %d tensors (%s) to %s", len(tensors), storage, path)
	return nil
}

// EncodeSafeTensors serializes tensors to SafeTensors bytes.
func EncodeSafeTensors(tensors map[string]*tensor.RawTensor, metadata map[string]string, storage tensor.DataType) ([]byte, error) {
	dtypeName, err := dtypeToSafeTensors(storage)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var data bytes.Buffer
	var offset int64
	for _, name := range names {
		raw := tensors[name]
		buf, err := encode(raw, storage)
		if err != nil {
			return nil, errors.WithMessagef(err, "tensor %q", name)
		}

		shape := make([]int64, len(raw.Shape()))
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}
		size := int64(len(buf))
		header[name] = SafeTensorHeader{
			DType:       dtypeName,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		data.Write(buf)
		offset += size
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[ChecksumKey] = ComputeChecksum(data.Bytes())
	header["__metadata__"] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal header")
	}

	var out bytes.Buffer
	out.Grow(8 + len(headerJSON) + data.Len())
	if err := binary.Write(&out, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return nil, errors.Wrap(err, "failed to write header size")
	}
	out.Write(headerJSON)
	out.Write(data.Bytes())
	return out.Bytes(), nil
}
