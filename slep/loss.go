package slep

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Function is a smooth loss over a flat weight vector. Multiclass losses
// use a row-major NumFeatures x K matrix of NumVariables() = NumFeatures*K
// entries. Implementations keep no state between calls.
type Function interface {
	Value(w []float64) float64

	// Gradient overwrites g with the gradient at w.
	Gradient(w []float64, g []float64)

	NumVariables() int
}

func unitCosts(c []float64, l int) []float64 {
	if c != nil {
		return c
	}
	c = make([]float64, l)
	for i := range c {
		c[i] = 1
	}
	return c
}

// logOnePlusExp computes log(1+exp(-yz)) without overflow.
func logOnePlusExp(yz float64) float64 {
	if yz >= 0 {
		return math.Log1p(math.Exp(-yz))
	}
	return -yz + math.Log1p(math.Exp(yz))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// BinaryLogisticLoss is sum_i c_i*log(1 + exp(-y_i*w^T x_i)) with y_i in {-1, +1}.
type BinaryLogisticLoss struct {
	x Features
	y []float64
	c []float64
}

// NewBinaryLogisticLoss builds the loss. c holds per-sample costs; nil means
// every sample costs 1.
func NewBinaryLogisticLoss(x Features, y []float64, c []float64) (*BinaryLogisticLoss, error) {
	if err := checkBinaryLabels(x, y, c); err != nil {
		return nil, err
	}
	return &BinaryLogisticLoss{x: x, y: y, c: unitCosts(c, len(y))}, nil
}

func checkBinaryLabels(x Features, y []float64, c []float64) error {
	if len(y) != x.NumVectors() {
		return configErrorf("labels", "%d labels for %d samples", len(y), x.NumVectors())
	}
	if c != nil && len(c) != len(y) {
		return configErrorf("costs", "%d costs for %d samples", len(c), len(y))
	}
	for i, yi := range y {
		if yi != 1 && yi != -1 {
			return configErrorf(fmt.Sprintf("labels[%d]", i), "binary label must be -1 or +1, got %g", yi)
		}
	}
	return nil
}

func (fn *BinaryLogisticLoss) NumVariables() int {
	return fn.x.NumFeatures()
}

func (fn *BinaryLogisticLoss) Value(w []float64) float64 {
	var f float64
	z := make([]float64, 1)
	for i, yi := range fn.y {
		fn.x.Project(i, w, z)
		f += fn.c[i] * logOnePlusExp(yi*z[0])
	}
	return f
}

func (fn *BinaryLogisticLoss) Gradient(w []float64, g []float64) {
	for j := range g {
		g[j] = 0
	}
	z := make([]float64, 1)
	for i, yi := range fn.y {
		fn.x.Project(i, w, z)
		z[0] = fn.c[i] * (sigmoid(yi*z[0]) - 1) * yi
		fn.x.Accumulate(i, z, g)
	}
}

// SquaredHingeLoss is sum_i c_i*max(0, 1 - y_i*w^T x_i)^2, the L2-loss SVC
// objective without its L2 term. It is smooth, so the proximal solver
// accepts it in place of the logistic loss.
type SquaredHingeLoss struct {
	x Features
	y []float64
	c []float64
}

// NewSquaredHingeLoss builds the loss; labels and costs follow
// NewBinaryLogisticLoss.
func NewSquaredHingeLoss(x Features, y []float64, c []float64) (*SquaredHingeLoss, error) {
	if err := checkBinaryLabels(x, y, c); err != nil {
		return nil, err
	}
	return &SquaredHingeLoss{x: x, y: y, c: unitCosts(c, len(y))}, nil
}

func (fn *SquaredHingeLoss) NumVariables() int {
	return fn.x.NumFeatures()
}

func (fn *SquaredHingeLoss) Value(w []float64) float64 {
	var f float64
	z := make([]float64, 1)
	for i, yi := range fn.y {
		fn.x.Project(i, w, z)
		if d := 1 - yi*z[0]; d > 0 {
			f += fn.c[i] * d * d
		}
	}
	return f
}

func (fn *SquaredHingeLoss) Gradient(w []float64, g []float64) {
	for j := range g {
		g[j] = 0
	}
	z := make([]float64, 1)
	for i, yi := range fn.y {
		fn.x.Project(i, w, z)
		yz := yi * z[0]
		if yz >= 1 {
			continue
		}
		z[0] = 2 * fn.c[i] * yi * (yz - 1)
		fn.x.Accumulate(i, z, g)
	}
}

// MulticlassLogisticLoss is the softmax cross-entropy of K linear models
// sharing a row-major NumFeatures x K weight matrix. Labels are class
// indices in [0, K).
type MulticlassLogisticLoss struct {
	x          Features
	y          []int
	c          []float64
	numClasses int
}

// NewMulticlassLogisticLoss builds the loss. c holds per-sample costs; nil
// means every sample costs 1.
func NewMulticlassLogisticLoss(x Features, y []int, numClasses int, c []float64) (*MulticlassLogisticLoss, error) {
	if numClasses < 2 {
		return nil, configErrorf("numClasses", "need at least 2 classes, got %d", numClasses)
	}
	if len(y) != x.NumVectors() {
		return nil, configErrorf("labels", "%d labels for %d samples", len(y), x.NumVectors())
	}
	if c != nil && len(c) != len(y) {
		return nil, configErrorf("costs", "%d costs for %d samples", len(c), len(y))
	}
	for i, yi := range y {
		if yi < 0 || yi >= numClasses {
			return nil, configErrorf(fmt.Sprintf("labels[%d]", i), "class %d out of range [0, %d)", yi, numClasses)
		}
	}
	return &MulticlassLogisticLoss{x: x, y: y, c: unitCosts(c, len(y)), numClasses: numClasses}, nil
}

func (fn *MulticlassLogisticLoss) NumVariables() int {
	return fn.x.NumFeatures() * fn.numClasses
}

// NumClasses returns K.
func (fn *MulticlassLogisticLoss) NumClasses() int {
	return fn.numClasses
}

func (fn *MulticlassLogisticLoss) Value(w []float64) float64 {
	var f float64
	s := make([]float64, fn.numClasses)
	for i, yi := range fn.y {
		fn.x.Project(i, w, s)
		f += fn.c[i] * (floats.LogSumExp(s) - s[yi])
	}
	return f
}

func (fn *MulticlassLogisticLoss) Gradient(w []float64, g []float64) {
	for j := range g {
		g[j] = 0
	}
	s := make([]float64, fn.numClasses)
	for i, yi := range fn.y {
		fn.x.Project(i, w, s)
		lse := floats.LogSumExp(s)
		for k := range s {
			s[k] = fn.c[i] * math.Exp(s[k]-lse)
		}
		s[yi] -= fn.c[i]
		fn.x.Accumulate(i, s, g)
	}
}
