package main

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limhan.info/slep-go/slep"
	"limhan.info/slep-go/test"
)

// writeTrainingSet writes 40 samples whose first five features carry the
// label and whose last five are small noise.
func writeTrainingSet(t *testing.T) string {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	y := make([]float64, 40)
	rows := make([][]float64, 40)
	for i := range rows {
		y[i] = 1
		if i%2 == 1 {
			y[i] = -1
		}
		rows[i] = make([]float64, 10)
		for j := 0; j < 5; j++ {
			rows[i][j] = y[i] * (1 + rng.Float64())
		}
		for j := 5; j < 10; j++ {
			rows[i][j] = 0.2*rng.Float64() - 0.1
		}
	}
	path := filepath.Join(t.TempDir(), "train.libsvm")
	require.NoError(t, test.WriteLibSVM(path, y, rows))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-q"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTrainWritesModel(t *testing.T) {
	data := writeTrainingSet(t)
	modelFile := filepath.Join(t.TempDir(), "out.model")

	_, err := execute(t, "--z", "0.5", "--bias", "1", data, modelFile)
	require.NoError(t, err)

	model, err := slep.LoadModelFile(modelFile)
	require.NoError(t, err)
	assert.Equal(t, 10, model.NumFeatures)
	assert.Equal(t, 1.0, model.Bias)
	assert.Equal(t, []int{1, -1}, model.Label)
	assert.Equal(t, slep.LOGISTIC, model.LossType)
	assert.Len(t, model.W, 11)
}

func TestTrainDefaultModelName(t *testing.T) {
	data := writeTrainingSet(t)

	_, err := execute(t, data)
	require.NoError(t, err)
	_, err = os.Stat(data + ".model")
	assert.NoError(t, err)
}

func TestTrainWithGroupRelation(t *testing.T) {
	data := writeTrainingSet(t)
	dir := t.TempDir()
	relFile := filepath.Join(dir, "groups.yaml")
	require.NoError(t, test.WriteString(relFile, "kind: group\ngroups:\n  - range: [0, 5]\n  - range: [5, 10]\n"))
	modelFile := filepath.Join(dir, "group.model")

	_, err := execute(t, "--relation", relFile, "--z", "20", data, modelFile)
	require.NoError(t, err)

	model, err := slep.LoadModelFile(modelFile)
	require.NoError(t, err)
	for j := 5; j < 10; j++ {
		assert.Equal(t, 0.0, model.W[j])
	}
}

func TestTrainCrossValidation(t *testing.T) {
	out, err := execute(t, "--folds", "4", "--z", "1", writeTrainingSet(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Cross Validation Accuracy = 100%")
}

func TestTrainFindZ(t *testing.T) {
	out, err := execute(t, "--find-z", "--folds", "4", "--min-z", "0.5", writeTrainingSet(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Best z = ")
}

func TestTrainFindZStartsFromEnvZ(t *testing.T) {
	t.Setenv("SLEP_Z", "0.4")
	out, err := execute(t, "--find-z", "--folds", "4", "--min-z", "0.1", writeTrainingSet(t))
	require.NoError(t, err)

	i := strings.Index(out, "Best z = ")
	require.GreaterOrEqual(t, i, 0, out)
	var bestZ float64
	_, err = fmt.Sscanf(out[i:], "Best z = %g", &bestZ)
	require.NoError(t, err)
	assert.LessOrEqual(t, bestZ, 0.4)
	assert.GreaterOrEqual(t, bestZ, 0.1)
}

func TestTrainPathAndMetrics(t *testing.T) {
	data := writeTrainingSet(t)
	dir := t.TempDir()
	modelFile := filepath.Join(dir, "path.model")
	metricsFile := filepath.Join(dir, "slep.prom")

	_, err := execute(t, "--path", "4,1,0.25", "--parallelism", "2", "--metrics-file", metricsFile, data, modelFile)
	require.NoError(t, err)

	for _, suffix := range []string{".0", ".1", ".2"} {
		_, err := slep.LoadModelFile(modelFile + suffix)
		assert.NoError(t, err, suffix)
	}
	content, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "slep_solver_runs_total")
}

func TestTrainConfigFile(t *testing.T) {
	data := writeTrainingSet(t)
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "train.yaml")
	require.NoError(t, test.WriteString(cfgFile, "loss: squared_hinge\nbias: 1\nmax_iter: 300\n"))
	modelFile := filepath.Join(dir, "cfg.model")

	_, err := execute(t, "--config", cfgFile, data, modelFile)
	require.NoError(t, err)

	model, err := slep.LoadModelFile(modelFile)
	require.NoError(t, err)
	assert.Equal(t, slep.SQUARED_HINGE, model.LossType)
	assert.Equal(t, 1.0, model.Bias)
}

func TestTrainErrors(t *testing.T) {
	data := writeTrainingSet(t)

	_, err := execute(t, "--loss", "bogus", data)
	assert.ErrorIs(t, err, slep.ErrConfig)

	_, err = execute(t, "--relation", filepath.Join(t.TempDir(), "absent.yaml"), data)
	assert.Error(t, err)

	_, err = execute(t, filepath.Join(t.TempDir(), "absent.libsvm"))
	assert.Error(t, err)

	_, err = execute(t)
	assert.Error(t, err)
}
