package slep

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Model is a trained linear classifier. W is row-major with NrW() values per
// feature row; the bias row, when Bias >= 0, comes last.
type Model struct {
	Bias        float64
	Label       []int
	NumClass    int
	NumFeatures int
	LossType    *LossType
	W           []float64
}

func NewModel(bias float64, label []int, numClass int, numFeatures int, lossType *LossType, w []float64) *Model {
	return &Model{
		Bias:        bias,
		Label:       label,
		NumClass:    numClass,
		NumFeatures: numFeatures,
		LossType:    lossType,
		W:           w,
	}
}

// NrW is the number of weight columns: 1 for a binary model, NumClass
// otherwise.
func (m *Model) NrW() int {
	if m.NumClass == 2 && !m.LossType.IsMultinomial() {
		return 1
	}
	return m.NumClass
}

func (m *Model) wSize() int {
	if m.Bias >= 0 {
		return m.NumFeatures + 1
	}
	return m.NumFeatures
}

// IsProbabilityModel reports whether PredictProbability is supported.
func (m *Model) IsProbabilityModel() bool {
	return m.LossType.IsLogistic()
}

// FeatureWeights returns the weights of feature row j (0-based).
func (m *Model) FeatureWeights(j int) []float64 {
	nrW := m.NrW()
	return append([]float64(nil), m.W[j*nrW:(j+1)*nrW]...)
}

// SaveModel writes model in the text format read by LoadModel.
func SaveModel(out io.Writer, model *Model) error {
	w := bufio.NewWriter(out)
	nrW := model.NrW()

	fmt.Fprintf(w, "loss_type %s\n", model.LossType.Name())
	fmt.Fprintf(w, "nr_class %d\n", model.NumClass)
	if model.Label != nil {
		w.WriteString("label")
		for i := 0; i < model.NumClass; i++ {
			fmt.Fprintf(w, " %d", model.Label[i])
		}
		w.WriteString("\n")
	}
	fmt.Fprintf(w, "nr_feature %d\n", model.NumFeatures)
	fmt.Fprintf(w, "bias %.16g\n", model.Bias)

	w.WriteString("w\n")
	for i := 0; i < model.wSize(); i++ {
		for j := 0; j < nrW; j++ {
			value := model.W[i*nrW+j]
			if value == 0.0 {
				w.WriteString("0 ")
			} else {
				fmt.Fprintf(w, "%.16g ", value)
			}
		}
		w.WriteString("\n")
	}
	return w.Flush()
}

// SaveModelFile writes model to path.
func SaveModelFile(path string, model *Model) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create model file")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close model file")
		}
	}()
	return SaveModel(f, model)
}

// LoadModel parses a model written by SaveModel.
func LoadModel(in io.Reader) (*Model, error) {
	var (
		lossType   *LossType
		nrClass    = -1
		nrFeature  = -1
		bias       float64
		label      []int
		headerDone bool
		weights    []string
	)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNr := 0
	for scanner.Scan() {
		lineNr++
		fields := strings.Fields(scanner.Text())
		if headerDone {
			weights = append(weights, fields...)
			continue
		}
		if len(fields) == 0 {
			continue
		}
		var err error
		switch fields[0] {
		case "loss_type":
			if len(fields) != 2 {
				return nil, errors.Newf("line %d: malformed loss_type", lineNr)
			}
			if lossType = GetLossType(fields[1]); lossType == nil {
				return nil, errors.Newf("line %d: unknown loss type %q", lineNr, fields[1])
			}
		case "nr_class":
			nrClass, err = parseHeaderInt(fields)
		case "nr_feature":
			nrFeature, err = parseHeaderInt(fields)
		case "bias":
			if len(fields) != 2 {
				return nil, errors.Newf("line %d: malformed bias", lineNr)
			}
			bias, err = strconv.ParseFloat(fields[1], 64)
		case "label":
			if nrClass < 0 {
				return nil, errors.Newf("line %d: label before nr_class", lineNr)
			}
			if len(fields)-1 != nrClass {
				return nil, errors.Newf("line %d: %d labels for %d classes", lineNr, len(fields)-1, nrClass)
			}
			label = make([]int, nrClass)
			for i := range label {
				if label[i], err = strconv.Atoi(fields[i+1]); err != nil {
					break
				}
			}
		case "w":
			headerDone = true
		default:
			return nil, errors.Newf("line %d: unknown text in model file: %q", lineNr, scanner.Text())
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNr)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read model")
	}
	if !headerDone {
		return nil, errors.New("model file has no weights section")
	}
	if lossType == nil || nrClass < 0 || nrFeature < 0 {
		return nil, errors.New("model file header is incomplete")
	}
	if nrClass < 2 {
		return nil, errors.Newf("model file has %d classes, need at least 2", nrClass)
	}
	if label == nil {
		return nil, errors.New("model file has no label line")
	}

	model := NewModel(bias, label, nrClass, nrFeature, lossType, nil)
	size := model.wSize() * model.NrW()
	if len(weights) != size {
		return nil, errors.Newf("model file has %d weights, expected %d", len(weights), size)
	}
	model.W = make([]float64, size)
	for i, s := range weights {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "weight %d", i)
		}
		model.W[i] = v
	}
	return model, nil
}

func parseHeaderInt(fields []string) (int, error) {
	if len(fields) != 2 {
		return 0, errors.Newf("malformed %s", fields[0])
	}
	return strconv.Atoi(fields[1])
}

// LoadModelFile reads a model from path.
func LoadModelFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open model file")
	}
	defer f.Close()
	return LoadModel(f)
}
