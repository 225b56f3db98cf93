package slep

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func checkGradient(t *testing.T, fn Function, w []float64) {
	t.Helper()
	g := make([]float64, len(w))
	fn.Gradient(w, g)

	const h = 1e-6
	for j := range w {
		orig := w[j]
		w[j] = orig + h
		fp := fn.Value(w)
		w[j] = orig - h
		fm := fn.Value(w)
		w[j] = orig
		assert.InDelta(t, (fp-fm)/(2*h), g[j], 1e-4, "coordinate %d", j)
	}
}

func randomWeights(rng *rand.Rand, n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = rng.NormFloat64()
	}
	return w
}

func TestBinaryLossGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	y, rows := overlappingData(30, 1)
	prob := denseProblem(y, rows, 1)
	costs := make([]float64, len(y))
	for i := range costs {
		costs[i] = 0.5 + rng.Float64()
	}

	logistic, err := NewBinaryLogisticLoss(prob, y, costs)
	require.NoError(t, err)
	hinge, err := NewSquaredHingeLoss(prob, y, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, logistic.NumVariables())
	for trial := 0; trial < 3; trial++ {
		checkGradient(t, logistic, randomWeights(rng, 4))
		checkGradient(t, hinge, randomWeights(rng, 4))
	}
}

func TestMulticlassLossGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	prob := createRandomProblem(rng, 3)
	y := make([]int, prob.L)
	for i, v := range prob.Y {
		y[i] = int(v)
	}
	fn, err := NewMulticlassLogisticLoss(prob, y, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, prob.N*3, fn.NumVariables())
	assert.Equal(t, 3, fn.NumClasses())

	checkGradient(t, fn, randomWeights(rng, fn.NumVariables()))
}

func TestLogisticValueAtZero(t *testing.T) {
	y, rows := overlappingData(10, 2)
	fn, err := NewBinaryLogisticLoss(denseProblem(y, rows, -1), y, nil)
	require.NoError(t, err)
	assert.InDelta(t, 10*0.6931471805599453, fn.Value(make([]float64, 3)), 1e-12)

	hinge, err := NewSquaredHingeLoss(denseProblem(y, rows, -1), y, nil)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, hinge.Value(make([]float64, 3)), 1e-12)
}

func TestLogisticLossIsStableForLargeMargins(t *testing.T) {
	y := []float64{1, -1}
	prob := denseProblem(y, [][]float64{{1000}, {1000}}, -1)
	fn, err := NewBinaryLogisticLoss(prob, y, nil)
	require.NoError(t, err)

	// the second sample is misclassified by a margin of 1000
	assert.InDelta(t, 1000.0, fn.Value([]float64{1}), 1e-9)
	g := make([]float64, 1)
	fn.Gradient([]float64{1}, g)
	assert.InDelta(t, 1000.0, g[0], 1e-9)
}

func TestDenseAndSparseFeaturesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	y, rows := overlappingData(20, 3)
	prob := denseProblem(y, rows, -1)
	data := make([]float64, 0, 60)
	for _, r := range rows {
		data = append(data, r...)
	}
	dense := NewDenseFeatures(mat.NewDense(20, 3, data))
	assert.Equal(t, 20, dense.NumVectors())
	assert.Equal(t, 3, dense.NumFeatures())

	sparseFn, err := NewBinaryLogisticLoss(prob, y, nil)
	require.NoError(t, err)
	denseFn, err := NewBinaryLogisticLoss(dense, y, nil)
	require.NoError(t, err)

	w := randomWeights(rng, 3)
	assert.InDelta(t, sparseFn.Value(w), denseFn.Value(w), 1e-10)
	gs, gd := make([]float64, 3), make([]float64, 3)
	sparseFn.Gradient(w, gs)
	denseFn.Gradient(w, gd)
	assert.InDeltaSlice(t, gs, gd, 1e-10)

	labels := make([]int, 20)
	for i, v := range y {
		if v < 0 {
			labels[i] = 1
		}
	}
	sparseMC, err := NewMulticlassLogisticLoss(prob, labels, 2, nil)
	require.NoError(t, err)
	denseMC, err := NewMulticlassLogisticLoss(dense, labels, 2, nil)
	require.NoError(t, err)
	wm := randomWeights(rng, 6)
	assert.InDelta(t, sparseMC.Value(wm), denseMC.Value(wm), 1e-10)
	gs, gd = make([]float64, 6), make([]float64, 6)
	sparseMC.Gradient(wm, gs)
	denseMC.Gradient(wm, gd)
	assert.InDeltaSlice(t, gs, gd, 1e-10)
}

func TestLossConstructorErrors(t *testing.T) {
	prob := denseProblem([]float64{1, -1}, [][]float64{{1}, {2}}, -1)

	_, err := NewBinaryLogisticLoss(prob, []float64{1}, nil)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewBinaryLogisticLoss(prob, []float64{1, 0}, nil)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewSquaredHingeLoss(prob, []float64{1, -1}, []float64{1})
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewMulticlassLogisticLoss(prob, []int{0, 1}, 1, nil)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewMulticlassLogisticLoss(prob, []int{0, 2}, 2, nil)
	assert.ErrorIs(t, err, ErrConfig)
}
