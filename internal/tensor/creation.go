package tensor

import (
	"math"
	"math/rand"

	"github.com/gomlx/exceptions"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return New[T, B](MustNewRaw(shape, inferDataType[T]()), b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Ones creates a tensor filled with ones (true for bool).
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var one T
	switch p := any(&one).(type) {
	case *float32:
		*p = 1
	case *float64:
		*p = 1
	case *bool:
		*p = true
	}
	return Full[T, B](shape, one, b)
}

// Randn creates a float tensor with values drawn from N(0, 1) using the
// Box-Muller transform.
// Note: Uses math/rand (not crypto/rand), appropriate for ML initialization.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return fillRandom[T, B](shape, b, func() float64 {
		u1 := 1 - rand.Float64() //nolint:gosec // G404: ML initialization
		u2 := rand.Float64()     //nolint:gosec // G404: ML initialization
		return math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
	})
}

// Rand creates a float tensor with values uniform in [0, 1).
func Rand[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return fillRandom[T, B](shape, b, rand.Float64) //nolint:gosec // G404: ML initialization
}

func fillRandom[T DType, B Backend](shape Shape, b B, next func() float64) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	switch data := any(t.Data()).(type) {
	case []float32:
		for i := range data {
			data[i] = float32(next())
		}
	case []float64:
		for i := range data {
			data[i] = next()
		}
	default:
		exceptions.Panicf("random initialization only supports float32 and float64, got %s", t.DType())
	}
	return t
}
