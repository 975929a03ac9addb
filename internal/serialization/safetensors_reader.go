package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
)

// File is a decoded SafeTensors file.
type File struct {
	Tensors  map[string]*tensor.RawTensor // float32 or float64
	Metadata map[string]string
	Meta     []TensorMeta // header entries, in file order of offsets
	DataSize int64
}

// ReadSafeTensors reads and validates a SafeTensors file.
func ReadSafeTensors(path string) (*File, error) {
	//nolint:gosec // G304: path comes from the caller by design
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	f, err := DecodeSafeTensors(content)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return f, nil
}

// DecodeSafeTensors parses SafeTensors bytes, validating names, offsets and
// the checksum recorded in the metadata.
func DecodeSafeTensors(content []byte) (*File, error) {
	if len(content) < 8 {
		return nil, errors.Wrap(ErrTruncated, "missing header size")
	}
	headerSize := binary.LittleEndian.Uint64(content[:8])
	if headerSize > MaxHeaderSize {
		return nil, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}
	if uint64(len(content)-8) < headerSize {
		return nil, errors.Wrapf(ErrTruncated, "header needs %d bytes, file has %d", headerSize, len(content)-8)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(content[8:8+headerSize], &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse header")
	}

	f := &File{
		Tensors:  make(map[string]*tensor.RawTensor, len(entries)),
		Metadata: map[string]string{},
	}
	data := content[8+headerSize:]
	f.DataSize = int64(len(data))

	if rawMeta, ok := entries["__metadata__"]; ok {
		if err := json.Unmarshal(rawMeta, &f.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to parse metadata")
		}
		delete(entries, "__metadata__")
	}

	headers := make(map[string]SafeTensorHeader, len(entries))
	for name, raw := range entries {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, errors.Wrapf(err, "failed to parse header entry %q", name)
		}
		meta, err := tensorMeta(name, h)
		if err != nil {
			return nil, err
		}
		headers[name] = h
		f.Meta = append(f.Meta, meta)
	}

	sort.Slice(f.Meta, func(i, j int) bool { return f.Meta[i].Offset < f.Meta[j].Offset })

	if err := ValidateTensorOffsets(f.Meta, f.DataSize); err != nil {
		return nil, err
	}
	if stored, ok := f.Metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(data, stored); err != nil {
			return nil, err
		}
	}

	for _, meta := range f.Meta {
		h := headers[meta.Name]
		raw, err := decode(data[h.DataOffsets[0]:h.DataOffsets[1]], meta.DType, meta.Shape)
		if err != nil {
			return nil, errors.WithMessagef(err, "tensor %q", meta.Name)
		}
		f.Tensors[meta.Name] = raw
	}
	return f, nil
}

// tensorMeta checks one header entry for internal consistency.
func tensorMeta(name string, h SafeTensorHeader) (TensorMeta, error) {
	elem, err := elementSize(h.DType)
	if err != nil {
		return TensorMeta{}, errors.WithMessagef(err, "tensor %q", name)
	}

	shape := make(tensor.Shape, len(h.Shape))
	for i, d := range h.Shape {
		if d <= 0 {
			return TensorMeta{}, &ValidationError{
				Type:    "invalid_shape",
				Tensor:  name,
				Details: fmt.Sprintf("dimension %d is %d", i, d),
				Err:     ErrOutOfBounds,
			}
		}
		shape[i] = int(d)
	}

	meta := TensorMeta{
		Name:   name,
		DType:  h.DType,
		Shape:  shape,
		Offset: h.DataOffsets[0],
		Size:   h.DataOffsets[1] - h.DataOffsets[0],
	}
	if want := int64(shape.NumElements() * elem); meta.Size != want {
		return TensorMeta{}, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  name,
			Details: fmt.Sprintf("%s%v needs %d bytes, offsets span %d", h.DType, shape, want, meta.Size),
			Err:     ErrOutOfBounds,
		}
	}
	return meta, nil
}
