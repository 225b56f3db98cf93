package slep

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Training holds everything one train command needs.
type Training struct {
	Bias             float64
	FindZ            bool
	ZSpecified       bool
	CrossValidation  bool
	InputFilename    string
	ModelFilename    string
	RelationFilename string
	NrFold           int
	MinZ             float64
	Param            *Parameter
	Prob             *Problem
	Rel              Relation
	Hooks            Hooks
}

// NewTraining creates a new training type
func NewTraining(bias float64, inputFile string, modelFile string, nrFold int, param *Parameter) *Training {
	return &Training{Bias: bias, InputFilename: inputFile, ModelFilename: modelFile, NrFold: nrFold, Param: param, MinZ: 1e-6}
}

// DoFindParameterZ searches for the z with the best cross validation accuracy.
func (t *Training) DoFindParameterZ() (*ParameterSearchResult, error) {
	startZ := -1.0
	if t.ZSpecified {
		startZ = t.Param.z
	}
	logInfo("doing parameter search", "folds", t.NrFold)
	result, err := FindParameterZ(t.Prob, t.Param, t.Rel, t.NrFold, startZ, t.MinZ)
	if err != nil {
		return nil, err
	}
	logInfo("best z", "z", result.BestZ, "accuracy", 100*result.BestRate)
	return result, nil
}

// DoCrossValidation returns the cross validation accuracy.
func (t *Training) DoCrossValidation() (float64, error) {
	target := make([]float64, t.Prob.L)
	start := time.Now()
	if err := CrossValidation(t.Prob, t.Param, t.Rel, t.NrFold, target); err != nil {
		return 0, err
	}
	totalCorrect := 0
	for i := 0; i < t.Prob.L; i++ {
		if target[i] == t.Prob.Y[i] {
			totalCorrect++
		}
	}
	accuracy := float64(totalCorrect) / float64(t.Prob.L)
	logInfo("cross validation", "correct", totalCorrect, "accuracy", 100*accuracy, "elapsed", time.Since(start))
	return accuracy, nil
}

// DoTrain fits the model and writes it to ModelFilename when that is set.
func (t *Training) DoTrain() (*Model, error) {
	model, err := TrainWithHooks(t.Prob, t.Param, t.Rel, t.Hooks)
	if err != nil {
		return nil, err
	}
	if t.ModelFilename != "" {
		if err := SaveModelFile(t.ModelFilename, model); err != nil {
			return nil, err
		}
	}
	return model, nil
}

// ReadProblem reads InputFilename into Prob.
func (t *Training) ReadProblem() error {
	f, err := os.Open(t.InputFilename)
	if err != nil {
		return errors.Wrap(err, "open training data")
	}
	defer f.Close()
	prob, err := ParseProblem(f, t.Bias)
	if err != nil {
		return errors.Wrap(err, t.InputFilename)
	}
	t.Prob = prob
	return nil
}

// ReadRelation reads RelationFilename into Rel. Without a file Rel stays nil.
func (t *Training) ReadRelation() error {
	if t.RelationFilename == "" {
		return nil
	}
	rel, err := LoadRelationFile(t.RelationFilename)
	if err != nil {
		return err
	}
	t.Rel = rel
	return nil
}

// ParseProblem reads LIBSVM formatted data ("label idx:val ..." per line,
// 1-based ascending indices). With bias >= 0 every row gets an extra
// feature one past the largest index, with value bias.
func ParseProblem(in io.Reader, bias float64) (*Problem, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var vy []float64
	var vx [][]Feature
	maxIndex := 0
	lineNr := 0

	for scanner.Scan() {
		lineNr++
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		y, err := strconv.ParseFloat(tokens[0], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: label", lineNr)
		}

		x := make([]Feature, 0, len(tokens))
		for _, tok := range tokens[1:] {
			key, val, ok := strings.Cut(tok, ":")
			if !ok {
				return nil, errors.Newf("line %d: token %q is not index:value", lineNr, tok)
			}
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: index", lineNr)
			}
			if idx < 1 {
				return nil, errors.Newf("line %d: index %d must be positive", lineNr, idx)
			}
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: value", lineNr)
			}
			x = append(x, NewFeatureNode(idx, v))
		}
		if m := len(x); m > 0 && x[m-1].GetIndex() > maxIndex {
			maxIndex = x[m-1].GetIndex()
		}
		vy = append(vy, y)
		vx = append(vx, x)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return constructProblem(vy, vx, maxIndex, bias), nil
}

func constructProblem(vy []float64, vx [][]Feature, maxIndex int, bias float64) *Problem {
	n := maxIndex
	if bias >= 0 {
		n++
		for i := range vx {
			vx[i] = append(vx[i], NewFeatureNode(maxIndex+1, bias))
		}
	}
	return NewProblem(len(vy), n, vy, vx, bias)
}
