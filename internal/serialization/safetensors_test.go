package serialization

import (
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/born-ml/gaam/internal/tensor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw32(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32)
	require.NoError(t, err)
	copy(r.AsFloat32(), values)
	return r
}

func testState(t *testing.T) map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"mean_offsets": raw32(t, tensor.Shape{3}, 0, 0.5, -0.25),
		"c":            raw32(t, tensor.Shape{3}, 2, 1.5, 3),
		"weights":      raw32(t, tensor.Shape{3}, 1, 1, 1),
	}
}

func TestSafeTensors_StorageTypes(t *testing.T) {
	tests := []struct {
		storage tensor.DataType
		dtype   string
		want    tensor.DataType
	}{
		{tensor.Float32, DTypeF32, tensor.Float32},
		{tensor.Float64, DTypeF64, tensor.Float64},
		{tensor.Float16, DTypeF16, tensor.Float32},
	}

	for _, tt := range tests {
		t.Run(tt.dtype, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "params.safetensors")
			state := testState(t)
			require.NoError(t, WriteSafeTensors(path, state, map[string]string{"module": "single"}, tt.storage))

			f, err := ReadSafeTensors(path)
			require.NoError(t, err)
			assert.Equal(t, "single", f.Metadata["module"])
			assert.NotEmpty(t, f.Metadata[ChecksumKey])
			require.Len(t, f.Tensors, 3)

			for name, want := range state {
				got := f.Tensors[name]
				require.NotNil(t, got, name)
				assert.Equal(t, tt.want, got.DType())
				assert.Equal(t, want.Shape(), got.Shape())

				// All test values are exactly representable in half precision.
				var values []float64
				if got.DType() == tensor.Float64 {
					values = got.AsFloat64()
				} else {
					for _, v := range got.AsFloat32() {
						values = append(values, float64(v))
					}
				}
				for i, v := range want.AsFloat32() {
					assert.InDelta(t, float64(v), values[i], 1e-7, "%s[%d]", name, i)
				}
			}

			// Tensors are laid out in name order.
			require.Len(t, f.Meta, 3)
			assert.Equal(t, "c", f.Meta[0].Name)
			assert.Equal(t, "mean_offsets", f.Meta[1].Name)
			assert.Equal(t, "weights", f.Meta[2].Name)
			assert.Equal(t, tt.dtype, f.Meta[0].DType)
		})
	}
}

func TestSafeTensors_Float16Rounding(t *testing.T) {
	state := map[string]*tensor.RawTensor{"c": raw32(t, tensor.Shape{1}, 0.1)}
	encoded, err := EncodeSafeTensors(state, nil, tensor.Float16)
	require.NoError(t, err)

	f, err := DecodeSafeTensors(encoded)
	require.NoError(t, err)
	got := f.Tensors["c"].AsFloat32()[0]
	assert.NotEqual(t, float32(0.1), got)
	assert.InDelta(t, 0.1, got, 1e-4)
}

func TestSafeTensors_ChecksumMismatch(t *testing.T) {
	encoded, err := EncodeSafeTensors(testState(t), nil, tensor.Float32)
	require.NoError(t, err)

	encoded[len(encoded)-1] ^= 0xFF
	_, err = DecodeSafeTensors(encoded)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
}

func TestSafeTensors_Truncated(t *testing.T) {
	_, err := DecodeSafeTensors([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)

	encoded, err := EncodeSafeTensors(testState(t), nil, tensor.Float32)
	require.NoError(t, err)
	_, err = DecodeSafeTensors(encoded[:20])
	assert.ErrorIs(t, err, ErrTruncated)
}

// handcrafted builds a file from a header map and a data section.
func handcrafted(t *testing.T, header map[string]any, data []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	out := make([]byte, 8, 8+len(headerJSON)+len(data))
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	return append(out, data...)
}

func TestSafeTensors_Validation(t *testing.T) {
	data := make([]byte, 16)

	tests := []struct {
		name   string
		header map[string]any
		want   error
	}{
		{
			name: "Overlap",
			header: map[string]any{
				"a": SafeTensorHeader{DType: DTypeF32, Shape: []int64{2}, DataOffsets: [2]int64{0, 8}},
				"b": SafeTensorHeader{DType: DTypeF32, Shape: []int64{2}, DataOffsets: [2]int64{4, 12}},
			},
			want: ErrOffsetOverlap,
		},
		{
			name: "OutOfBounds",
			header: map[string]any{
				"a": SafeTensorHeader{DType: DTypeF64, Shape: []int64{4}, DataOffsets: [2]int64{0, 32}},
			},
			want: ErrOutOfBounds,
		},
		{
			name: "SizeMismatch",
			header: map[string]any{
				"a": SafeTensorHeader{DType: DTypeF32, Shape: []int64{3}, DataOffsets: [2]int64{0, 8}},
			},
			want: ErrOutOfBounds,
		},
		{
			name: "PathName",
			header: map[string]any{
				"../a": SafeTensorHeader{DType: DTypeF32, Shape: []int64{1}, DataOffsets: [2]int64{0, 4}},
			},
			want: ErrInvalidTensorName,
		},
		{
			name: "UnsupportedDType",
			header: map[string]any{
				"a": SafeTensorHeader{DType: "I64", Shape: []int64{1}, DataOffsets: [2]int64{0, 8}},
			},
			want: ErrUnsupportedDType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSafeTensors(handcrafted(t, tt.header, data))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSafeTensors_NoChecksumAccepted(t *testing.T) {
	// Files from other writers carry no checksum.
	header := map[string]any{
		"c": SafeTensorHeader{DType: DTypeF32, Shape: []int64{1}, DataOffsets: [2]int64{0, 4}},
	}
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 0x40000000) // 2.0

	f, err := DecodeSafeTensors(handcrafted(t, header, data))
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, f.Tensors["c"].AsFloat32())
}

func TestWriteSafeTensors_RejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	err := WriteSafeTensors(filepath.Join(dir, "a"), testState(t), nil, tensor.Bool)
	assert.ErrorIs(t, err, ErrUnsupportedDType)

	bad := map[string]*tensor.RawTensor{"a/b": raw32(t, tensor.Shape{1}, 1)}
	err = WriteSafeTensors(filepath.Join(dir, "b"), bad, nil, tensor.Float32)
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}
