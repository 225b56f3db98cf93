package slep

import "fmt"

// Feature is one non-zero entry of a sparse instance. Indices are 1-based,
// as in LIBSVM files; feature index i maps to weight row i-1.
type Feature interface {
	GetIndex() int
	GetValue() float64
	SetValue(val float64)
}

// FeatureNode implements a Feature
type FeatureNode struct {
	index int
	value float64
}

// NewFeatureNode returns a new FeatureNode
func NewFeatureNode(index int, value float64) *FeatureNode {
	return &FeatureNode{
		index: index,
		value: value,
	}
}

func (f *FeatureNode) GetIndex() int { return f.index }

func (f *FeatureNode) GetValue() float64 { return f.value }

func (f *FeatureNode) SetValue(val float64) { f.value = val }

func (f *FeatureNode) String() string {
	return fmt.Sprintf("%d:%g", f.index, f.value)
}

// Features gives the losses read-only access to the sample matrix. Weight
// matrices are row-major NumFeatures() x K with K = len(out) or len(coef).
type Features interface {
	NumVectors() int
	NumFeatures() int
	// Project stores x_i^T W in out.
	Project(i int, w []float64, out []float64)
	// Accumulate adds x_i coef^T to dst.
	Accumulate(i int, coef []float64, dst []float64)
}

// Problem is a sparse training set. When Bias >= 0 every row carries a last
// feature with index N and value Bias.
type Problem struct {
	L    int
	N    int
	Y    []float64
	X    [][]Feature
	Bias float64
}

// NewProblem constructs a Problem
func NewProblem(l int, n int, y []float64, x [][]Feature, bias float64) *Problem {
	return &Problem{
		L:    l,
		N:    n,
		Y:    y,
		X:    x,
		Bias: bias,
	}
}

func (prob *Problem) NumVectors() int { return prob.L }

func (prob *Problem) NumFeatures() int { return prob.N }

func (prob *Problem) Project(i int, w []float64, out []float64) {
	k := len(out)
	if k == 1 {
		out[0] = SparseOperatorDot(w, prob.X[i])
		return
	}
	for c := range out {
		out[c] = 0
	}
	for _, f := range prob.X[i] {
		row := (f.GetIndex() - 1) * k
		v := f.GetValue()
		for c := 0; c < k; c++ {
			out[c] += w[row+c] * v
		}
	}
}

func (prob *Problem) Accumulate(i int, coef []float64, dst []float64) {
	k := len(coef)
	if k == 1 {
		SparseOperatorAxpy(coef[0], prob.X[i], dst)
		return
	}
	for _, f := range prob.X[i] {
		row := (f.GetIndex() - 1) * k
		v := f.GetValue()
		for c := 0; c < k; c++ {
			dst[row+c] += coef[c] * v
		}
	}
}

// checkSorted rejects rows whose feature indices are not strictly increasing
// or fall outside [1, N].
func (prob *Problem) checkSorted() error {
	for i, nodes := range prob.X {
		indexBefore := 0
		for _, n := range nodes {
			if n.GetIndex() <= indexBefore {
				return configErrorf(fmt.Sprintf("X[%d]", i), "feature nodes must be sorted by index in ascending order")
			}
			if n.GetIndex() > prob.N {
				return configErrorf(fmt.Sprintf("X[%d]", i), "feature index %d exceeds %d features", n.GetIndex(), prob.N)
			}
			indexBefore = n.GetIndex()
		}
	}
	return nil
}

// SparseOperatorNrm2Sq is the squared L2 norm of x.
func SparseOperatorNrm2Sq(x []Feature) float64 {
	var ret float64
	for _, feature := range x {
		ret += feature.GetValue() * feature.GetValue()
	}
	return ret
}

// SparseOperatorDot is s^T x.
func SparseOperatorDot(s []float64, x []Feature) float64 {
	var ret float64
	for _, feature := range x {
		ret += s[feature.GetIndex()-1] * feature.GetValue()
	}
	return ret
}

// SparseOperatorAxpy is y += a*x.
func SparseOperatorAxpy(a float64, x []Feature, y []float64) {
	for _, feature := range x {
		y[feature.GetIndex()-1] += a * feature.GetValue()
	}
}
