package retrieval

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 2, 3}, b: []float32{2, 4, 6}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0},
		{name: "zero magnitude", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > tolerance {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
			if back := CosineSimilarity(tt.b, tt.a); math.Abs(back-got) > tolerance {
				t.Errorf("CosineSimilarity not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestToFloat32(t *testing.T) {
	t.Parallel()

	got := ToFloat32([]float64{0.5, -1.25})
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1.25 {
		t.Errorf("ToFloat32() = %v", got)
	}
}
