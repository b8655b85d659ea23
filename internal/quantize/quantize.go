// Package quantize compresses floating-point embedding bands into signed
// 8-bit values with a sign-preserving power law.
package quantize

import (
	"math"

	"github.com/withObsrvr/aef-exporter/internal/engine"
	"github.com/withObsrvr/aef-exporter/internal/errs"
)

const (
	Power = 2.0
	Scale = 127.5
	Min   = -127
	Max   = 127
)

// Value quantizes a single embedding value. NaN maps to 0.
func Value(v float64) int8 {
	if math.IsNaN(v) {
		return 0
	}
	q := math.Round(math.Copysign(math.Pow(math.Abs(v), 1/Power), v) * Scale)
	if q < Min {
		q = Min
	}
	if q > Max {
		q = Max
	}
	return int8(q)
}

// Float32Raster holds band-sequential pixel data: the value of band b at
// (x, y) is Data[b*Width*Height + y*Width + x].
type Float32Raster struct {
	Width  int
	Height int
	Bands  int
	Data   []float32
}

// Int8Raster is the quantized counterpart of Float32Raster, same layout.
type Int8Raster struct {
	Width  int
	Height int
	Bands  int
	Data   []int8
}

// At returns the value of band b at (x, y).
func (r *Int8Raster) At(b, x, y int) int8 {
	return r.Data[b*r.Width*r.Height+y*r.Width+x]
}

// Raster quantizes every value of r into a new raster of the same shape.
func Raster(r *Float32Raster) (*Int8Raster, error) {
	const op = "quantize raster"

	if r == nil {
		return nil, errs.Errorf(errs.InvalidInput, op, "nil raster")
	}
	if r.Width <= 0 || r.Height <= 0 || r.Bands <= 0 {
		return nil, errs.Errorf(errs.InvalidInput, op, "invalid dimensions %dx%dx%d", r.Width, r.Height, r.Bands)
	}
	if want := r.Width * r.Height * r.Bands; len(r.Data) != want {
		return nil, errs.Errorf(errs.InvalidInput, op, "expected %d values, got %d", want, len(r.Data))
	}

	out := &Int8Raster{
		Width:  r.Width,
		Height: r.Height,
		Bands:  r.Bands,
		Data:   make([]int8, len(r.Data)),
	}
	for i, v := range r.Data {
		if math.IsNaN(float64(v)) {
			return nil, errs.Errorf(errs.InvalidInput, op, "NaN at index %d", i)
		}
		out.Data[i] = Value(float64(v))
	}
	return out, nil
}

// Image expresses the same transform as a remote computation on img.
func Image(img engine.Image) engine.Image {
	sat := img.Abs().Pow(1 / Power).Multiply(img.Signum())
	return sat.MultiplyBy(Scale).Round().Clamp(Min, Max).Int8()
}
