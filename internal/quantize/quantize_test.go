package quantize

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/withObsrvr/aef-exporter/internal/engine"
	"github.com/withObsrvr/aef-exporter/internal/errs"
)

func TestValueKnownPoints(t *testing.T) {
	cases := []struct {
		in   float64
		want int8
	}{
		{0, 0},
		{math.Copysign(0, -1), 0},
		{0.25, 64}, // sqrt=0.5, *127.5=63.75
		{-0.25, -64},
		{0.01, 13}, // sqrt=0.1, *127.5=12.75
		{1, 127},   // 127.5 rounds to 128, clamped
		{-1, -127},
		{4, 127},
		{-100, -127},
		{math.Inf(1), 127},
		{math.Inf(-1), -127},
	}
	for _, c := range cases {
		if got := Value(c.in); got != c.want {
			t.Errorf("Value(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestValueRangeAndSign(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		v := (rng.Float64()*2 - 1) * math.Pow(10, float64(rng.Intn(8)-4))
		q := Value(v)
		if q < Min || q > Max {
			t.Fatalf("Value(%v) = %d out of range", v, q)
		}
		if q > 0 && v <= 0 || q < 0 && v >= 0 {
			t.Fatalf("Value(%v) = %d changed sign", v, q)
		}
	}
}

func TestValueReclampIsStable(t *testing.T) {
	for _, q := range []int8{Min, Max} {
		if got := Value(float64(q)); got != q {
			t.Errorf("re-quantizing clamped %d gave %d", q, got)
		}
	}
}

func TestRasterZeros(t *testing.T) {
	r := &Float32Raster{Width: 3, Height: 2, Bands: 4, Data: make([]float32, 24)}

	out, err := Raster(r)
	if err != nil {
		t.Fatalf("Raster failed: %v", err)
	}
	if out.Width != 3 || out.Height != 2 || out.Bands != 4 {
		t.Errorf("shape changed: %dx%dx%d", out.Width, out.Height, out.Bands)
	}
	if !reflect.DeepEqual(out.Data, make([]int8, 24)) {
		t.Errorf("zeros should stay zeros, got %v", out.Data)
	}
}

func TestRasterLayout(t *testing.T) {
	r := &Float32Raster{Width: 2, Height: 1, Bands: 2, Data: []float32{0.25, -0.25, 1, -1}}

	out, err := Raster(r)
	if err != nil {
		t.Fatalf("Raster failed: %v", err)
	}
	if out.At(0, 0, 0) != 64 || out.At(0, 1, 0) != -64 || out.At(1, 0, 0) != 127 || out.At(1, 1, 0) != -127 {
		t.Errorf("unexpected values %v", out.Data)
	}
}

func TestRasterInvalidInput(t *testing.T) {
	cases := map[string]*Float32Raster{
		"nil":           nil,
		"zero width":    {Width: 0, Height: 1, Bands: 1},
		"short data":    {Width: 2, Height: 2, Bands: 1, Data: []float32{1, 2, 3}},
		"nan":           {Width: 1, Height: 1, Bands: 1, Data: []float32{float32(math.NaN())}},
		"negative band": {Width: 1, Height: 1, Bands: -1},
	}
	for name, r := range cases {
		_, err := Raster(r)
		if !errs.Is(err, errs.InvalidInput) {
			t.Errorf("%s: expected InvalidInput, got %v", name, err)
		}
	}
}

func TestImageExpression(t *testing.T) {
	q := Image(engine.LoadImage("PROJECTS/test/assets/foo")).Node()

	if q.Function != "Image.int8" {
		t.Fatalf("quantized image should end with int8, got %q", q.Function)
	}
	clamp := q.Args["value"]
	if clamp.Function != "Image.clamp" || clamp.Args["low"].Constant != float64(Min) || clamp.Args["high"].Constant != float64(Max) {
		t.Errorf("unexpected clamp: %+v", clamp)
	}
	scaled := clamp.Args["input"].Args["value"]
	if scaled.Function != "Image.multiply" {
		t.Fatalf("expected scale multiply, got %q", scaled.Function)
	}
	if c := scaled.Args["image2"].Args["value"].Constant; c != Scale {
		t.Errorf("scale constant = %v, want %v", c, Scale)
	}

	fns := engine.Functions(q)
	for _, want := range []string{"Image.abs", "Image.pow", "Image.signum", "Image.round", "Image.load"} {
		found := false
		for _, f := range fns {
			if f == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %s in %v", want, fns)
		}
	}
}
