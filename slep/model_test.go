package slep

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSaveModel(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	for _, lossType := range LossTypeValues() {
		model := createRandomModel(rng)
		model.LossType = lossType
		// three classes keep three weight columns for every loss
		require.Equal(t, 3, model.NrW())
		fName := filepath.Join(t.TempDir(), "modeltest-"+lossType.Name())

		require.NoError(t, SaveModelFile(fName, model))
		loadedModel, err := LoadModelFile(fName)
		require.NoError(t, err)
		assert.Equal(t, model, loadedModel)
	}
}

func TestLoadSaveBinaryModel(t *testing.T) {
	model := NewModel(-1, []int{1, -1}, 2, 3, LOGISTIC, []float64{0.25, 0, -1.5})
	var buf bytes.Buffer
	require.NoError(t, SaveModel(&buf, model))
	assert.Equal(t, "loss_type LOGISTIC\nnr_class 2\nlabel 1 -1\nnr_feature 3\nbias -1\nw\n0.25 \n0 \n-1.5 \n", buf.String())

	loaded, err := LoadModel(&buf)
	require.NoError(t, err)
	assert.Equal(t, model, loaded)
	assert.Equal(t, []float64{-1.5}, loaded.FeatureWeights(2))
}

func TestLoadEmptyModel(t *testing.T) {
	data := "loss_type LOGISTIC\nnr_class 2\nlabel 1 2\nnr_feature 0\nbias -1.0\nw\n"

	loadedModel, err := LoadModel(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, LOGISTIC, loadedModel.LossType)
	assert.Equal(t, []int{1, 2}, loadedModel.Label)
	assert.Equal(t, 2, loadedModel.NumClass)
	assert.Equal(t, 0, loadedModel.NumFeatures)
	assert.Empty(t, loadedModel.W)
	assert.Equal(t, -1.0, loadedModel.Bias)
}

func TestLoadMalformedModel(t *testing.T) {
	header := "loss_type LOGISTIC\nnr_class 2\nlabel 1 2\nnr_feature 2\nbias -1\n"
	tests := map[string]string{
		"unknown loss":        "loss_type L2R_LR\nnr_class 2\nw\n",
		"unknown header":      "solver_type L2R_LR\n",
		"label first":         "label 1 2\nnr_class 2\n",
		"label count":         "nr_class 3\nlabel 1 2\n",
		"bad nr_class":        "nr_class two\n",
		"missing weights":     header,
		"missing header":      "w\n1\n",
		"too few weights":     header + "w\n1\n",
		"too many weights":    header + "w\n1\n2\n3\n",
		"non-numeric weight":  header + "w\n1\nx\n",
		"malformed bias line": "bias\n",
		"no label line":       "loss_type LOGISTIC\nnr_class 2\nnr_feature 1\nbias -1\nw\n1\n",
		"single class":        "loss_type LOGISTIC\nnr_class 1\nlabel 1\nnr_feature 1\nbias -1\nw\n1\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadModel(strings.NewReader(data))
			assert.Error(t, err)
		})
	}
}

func TestModelNrW(t *testing.T) {
	assert.Equal(t, 1, NewModel(-1, []int{1, 2}, 2, 3, SQUARED_HINGE, nil).NrW())
	assert.Equal(t, 2, NewModel(-1, []int{1, 2}, 2, 3, MULTINOMIAL_LOGISTIC, nil).NrW())
	assert.Equal(t, 4, NewModel(-1, []int{1, 2, 3, 4}, 4, 3, LOGISTIC, nil).NrW())
	assert.False(t, NewModel(-1, []int{1, 2}, 2, 3, SQUARED_HINGE, nil).IsProbabilityModel())
}

func TestLoadModelFileMissing(t *testing.T) {
	_, err := LoadModelFile(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
