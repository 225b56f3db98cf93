package slep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParameterDefaults(t *testing.T) {
	param := NewParameter(LOGISTIC, 0.1, 1e-3, 100)

	assert.Equal(t, OBJECTIVE_RELATIVE_CHANGE, param.Termination())
	assert.Equal(t, 1.0, param.LipschitzInit())
	assert.Equal(t, 2.0, param.LipschitzGrowth())
	assert.Equal(t, 50, param.MaxBacktracks())
	assert.NoError(t, param.Validate())
}

func TestSetWeights(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)

	assert.Empty(t, param.weight)
	assert.Equal(t, 0, param.GetNumWeights())

	require.NoError(t, param.SetWeight([]float64{0, 1, 2, 3, 4, 5}, []int{1, 1, 1, 1, 2, 3}))
	assert.Equal(t, 6, param.GetNumWeights())

	assert.ErrorIs(t, param.SetWeight([]float64{0, 1, 2, 3, 4, 5}, []int{1}), ErrConfig)
	assert.ErrorIs(t, param.SetWeight([]float64{-1}, []int{1}), ErrConfig)
	assert.ErrorIs(t, param.SetWeight([]float64{math.NaN()}, []int{1}), ErrConfig)
	assert.Equal(t, 6, param.GetNumWeights())
}

func TestGetWeights(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)
	weights := []float64{0, 1, 2, 3, 4, 5}
	weightLabels := []int{1, 1, 1, 1, 2, 3}

	require.NoError(t, param.SetWeight(weights, weightLabels))

	assert.Equal(t, weights, param.GetWeights())
	param.GetWeights()[0]++
	assert.Equal(t, weights, param.GetWeights())

	assert.Equal(t, weightLabels, param.GetWeightLabels())
	param.GetWeightLabels()[0]++
	assert.Equal(t, weightLabels, param.GetWeightLabels())
}

func TestSetZ(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)
	require.NoError(t, param.SetZ(0.0001))
	assert.Equal(t, 0.0001, param.Z())

	require.NoError(t, param.SetZ(0))
	assert.Equal(t, 0.0, param.Z())

	assert.ErrorIs(t, param.SetZ(-1), ErrConfig)
	assert.ErrorIs(t, param.SetZ(math.Inf(1)), ErrConfig)
	assert.ErrorIs(t, param.SetZ(math.NaN()), ErrConfig)
	assert.Equal(t, 0.0, param.Z())
}

func TestSetEps(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)
	require.NoError(t, param.SetEps(1e-6))
	assert.Equal(t, 1e-6, param.Eps())

	assert.ErrorIs(t, param.SetEps(0), ErrConfig)
	assert.ErrorIs(t, param.SetEps(-1), ErrConfig)
	assert.ErrorIs(t, param.SetEps(math.NaN()), ErrConfig)
}

func TestSetMaxIters(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)
	require.NoError(t, param.SetMaxIters(0))
	assert.Equal(t, 0, param.MaxIters())
	assert.ErrorIs(t, param.SetMaxIters(-1), ErrConfig)
}

func TestSetLossType(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)
	for _, lossType := range LossTypeValues() {
		require.NoError(t, param.SetLossType(lossType))
		assert.Equal(t, lossType, param.LossType())
	}

	var nilLossType *LossType
	assert.ErrorIs(t, param.SetLossType(nilLossType), ErrConfig)
}

func TestSetTermination(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)
	for _, term := range TerminationTypeValues() {
		require.NoError(t, param.SetTermination(term))
		assert.Equal(t, term, param.Termination())
	}
	assert.ErrorIs(t, param.SetTermination(nil), ErrConfig)
}

func TestSetLipschitz(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)
	require.NoError(t, param.SetLipschitz(0.5, 1.5))
	assert.Equal(t, 0.5, param.LipschitzInit())
	assert.Equal(t, 1.5, param.LipschitzGrowth())

	assert.ErrorIs(t, param.SetLipschitz(0, 2), ErrConfig)
	assert.ErrorIs(t, param.SetLipschitz(1, 1), ErrConfig)
	assert.ErrorIs(t, param.SetMaxBacktracks(0), ErrConfig)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, NewParameter(nil, 1, 1e-3, 10).Validate(), ErrConfig)
	assert.ErrorIs(t, NewParameter(LOGISTIC, -1, 1e-3, 10).Validate(), ErrConfig)
	assert.ErrorIs(t, NewParameter(LOGISTIC, 1, 0, 10).Validate(), ErrConfig)
	assert.ErrorIs(t, NewParameter(LOGISTIC, 1, 1e-3, -1).Validate(), ErrConfig)
}

func TestCopyIsDeep(t *testing.T) {
	param := NewParameter(LOGISTIC, 1, 1e-3, 1000)
	require.NoError(t, param.SetWeight([]float64{2}, []int{1}))
	param.InitSol = []float64{1, 2}

	c := param.Copy()
	c.weight[0] = 5
	c.InitSol[0] = 9
	require.NoError(t, c.SetZ(3))

	assert.Equal(t, []float64{2}, param.GetWeights())
	assert.Equal(t, []float64{1, 2}, param.InitSol)
	assert.Equal(t, 1.0, param.Z())
}

func TestRegistries(t *testing.T) {
	for _, l := range LossTypeValues() {
		assert.Equal(t, l, GetLossType(l.Name()))
	}
	assert.Nil(t, GetLossType("L2R_LR"))
	assert.True(t, MULTINOMIAL_LOGISTIC.IsLogistic())
	assert.False(t, SQUARED_HINGE.IsLogistic())

	for _, term := range TerminationTypeValues() {
		assert.Equal(t, term, GetTerminationType(term.String()))
	}
	assert.Nil(t, GetTerminationType("DUALITY_GAP"))
}

func TestTerminationRules(t *testing.T) {
	p := progress{prevObjective: 100, objective: 99.99, lipschitz: 4, stepNorm: 0.001}
	assert.False(t, OBJECTIVE_RELATIVE_CHANGE.done(p, 1e-5))
	assert.True(t, OBJECTIVE_RELATIVE_CHANGE.done(p, 1e-3))
	assert.False(t, GRADIENT_MAPPING_NORM.done(p, 1e-3))
	assert.True(t, GRADIENT_MAPPING_NORM.done(p, 1e-2))

	// small objectives are compared in absolute terms
	p = progress{prevObjective: 1e-3, objective: 0.5e-3}
	assert.True(t, OBJECTIVE_RELATIVE_CHANGE.done(p, 1e-3))
}
