package slep

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DenseFeatures serves a gonum matrix (one sample per row) to the losses
// without copying it.
type DenseFeatures struct {
	m *mat.Dense
}

// NewDenseFeatures wraps m. The matrix must not be modified while a
// training run reads it.
func NewDenseFeatures(m *mat.Dense) *DenseFeatures {
	return &DenseFeatures{m: m}
}

func (d *DenseFeatures) NumVectors() int {
	r, _ := d.m.Dims()
	return r
}

func (d *DenseFeatures) NumFeatures() int {
	_, c := d.m.Dims()
	return c
}

func (d *DenseFeatures) Project(i int, w []float64, out []float64) {
	row := d.m.RawRowView(i)
	k := len(out)
	if k == 1 {
		out[0] = floats.Dot(row, w)
		return
	}
	for c := range out {
		out[c] = 0
	}
	for j, v := range row {
		if v == 0 {
			continue
		}
		for c := 0; c < k; c++ {
			out[c] += w[j*k+c] * v
		}
	}
}

func (d *DenseFeatures) Accumulate(i int, coef []float64, dst []float64) {
	row := d.m.RawRowView(i)
	k := len(coef)
	if k == 1 {
		floats.AddScaled(dst, coef[0], row)
		return
	}
	for j, v := range row {
		if v == 0 {
			continue
		}
		for c := 0; c < k; c++ {
			dst[j*k+c] += coef[c] * v
		}
	}
}
