package serialization

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// SafeTensors dtype names.
const (
	DTypeF16 = "F16"
	DTypeF32 = "F32"
	DTypeF64 = "F64"
)

// dtypeToSafeTensors converts a storage type to its SafeTensors name.
func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float16:
		return DTypeF16, nil
	case tensor.Float32:
		return DTypeF32, nil
	case tensor.Float64:
		return DTypeF64, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedDType, "cannot store %s", dt)
	}
}

// elementSize returns the byte width of a SafeTensors dtype.
func elementSize(name string) (int, error) {
	switch name {
	case DTypeF16:
		return 2, nil
	case DTypeF32:
		return 4, nil
	case DTypeF64:
		return 8, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedDType, "%q", name)
	}
}

// encode converts a float tensor to little-endian bytes of the storage type.
func encode(raw *tensor.RawTensor, storage tensor.DataType) ([]byte, error) {
	values, err := toFloat64s(raw)
	if err != nil {
		return nil, err
	}

	switch storage {
	case tensor.Float16:
		out := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(float32(v)).Bits())
		}
		return out, nil
	case tensor.Float32:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
		}
		return out, nil
	case tensor.Float64:
		out := make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
		}
		return out, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedDType, "cannot store %s", storage)
	}
}

// decode builds a tensor from stored bytes. F16 is widened to float32.
func decode(data []byte, dtype string, shape tensor.Shape) (*tensor.RawTensor, error) {
	switch dtype {
	case DTypeF16:
		raw, err := tensor.NewRaw(shape, tensor.Float32)
		if err != nil {
			return nil, err
		}
		dst := raw.AsFloat32()
		for i := range dst {
			dst[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
		}
		return raw, nil
	case DTypeF32:
		raw, err := tensor.NewRaw(shape, tensor.Float32)
		if err != nil {
			return nil, err
		}
		dst := raw.AsFloat32()
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return raw, nil
	case DTypeF64:
		raw, err := tensor.NewRaw(shape, tensor.Float64)
		if err != nil {
			return nil, err
		}
		dst := raw.AsFloat64()
		for i := range dst {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
		return raw, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedDType, "%q", dtype)
	}
}

func toFloat64s(raw *tensor.RawTensor) ([]float64, error) {
	switch raw.DType() {
	case tensor.Float32:
		src := raw.AsFloat32()
		out := make([]float64, len(src))
		for i, v := range src {
			out[i] = float64(v)
		}
		return out, nil
	case tensor.Float64:
		return append([]float64(nil), raw.AsFloat64()...), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedDType, "cannot encode %s tensor", raw.DType())
	}
}
