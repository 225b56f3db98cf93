package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"limhan.info/slep-go/internal/logging"
	"limhan.info/slep-go/slep"
)

// PredictResult summarizes one DoPredict call.
type PredictResult struct {
	Correct int
	Total   int
}

// Accuracy is Correct/Total, or 0 without input.
func (r PredictResult) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}

// DoPredict reads LIBSVM lines from reader and writes one prediction per line
// to writer. With probability set, every line also carries the class
// probabilities, after a header line listing the labels.
func DoPredict(reader io.Reader, writer io.Writer, model *slep.Model, probability bool) (PredictResult, error) {
	var res PredictResult
	nrFeature := model.NumFeatures
	n := nrFeature
	if model.Bias >= 0 {
		n = nrFeature + 1
	}

	var probEstimates []float64
	if probability {
		if !model.IsProbabilityModel() {
			return res, slep.ErrNotProbabilistic
		}
		probEstimates = make([]float64, model.NumClass)
		io.WriteString(writer, "labels")
		for _, label := range model.Label {
			fmt.Fprintf(writer, " %d", label)
		}
		io.WriteString(writer, "\n")
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		line := res.Total + 1
		targetLabel, err := strconv.ParseFloat(tokens[0], 64)
		if err != nil {
			return res, errors.Wrapf(err, "wrong input format at line %d", line)
		}

		x := make([]slep.Feature, 0, len(tokens))
		for _, tok := range tokens[1:] {
			key, val, ok := strings.Cut(tok, ":")
			if !ok {
				return res, errors.Newf("wrong input format at line %d", line)
			}
			idx, err := strconv.Atoi(key)
			if err != nil {
				return res, errors.Newf("line %d: the index %q cannot be parsed", line, key)
			}
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return res, errors.Newf("line %d: the value %q cannot be parsed", line, val)
			}
			// features unseen in training are ignored
			if idx <= nrFeature {
				x = append(x, slep.NewFeatureNode(idx, v))
			}
		}
		if model.Bias >= 0 {
			x = append(x, slep.NewFeatureNode(n, model.Bias))
		}

		var predictLabel float64
		if probability {
			if predictLabel, err = slep.PredictProbability(model, x, probEstimates); err != nil {
				return res, err
			}
			fmt.Fprintf(writer, "%g", predictLabel)
			for _, p := range probEstimates {
				fmt.Fprintf(writer, " %g", p)
			}
			io.WriteString(writer, "\n")
		} else {
			predictLabel = slep.Predict(model, x)
			fmt.Fprintf(writer, "%g\n", predictLabel)
		}

		if predictLabel == targetLabel {
			res.Correct++
		}
		res.Total++
	}
	if err := scanner.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func newRootCmd() *cobra.Command {
	var probability, quiet bool
	cmd := &cobra.Command{
		Use:           "predict [flags] test_file model_file output_file",
		Short:         "Predict labels with a trained model",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(slog.LevelInfo)
			if quiet {
				log = logging.NewNop()
			}
			model, err := slep.LoadModelFile(args[1])
			if err != nil {
				return err
			}
			in, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open test file")
			}
			defer in.Close()
			out, err := os.Create(args[2])
			if err != nil {
				return errors.Wrap(err, "create output file")
			}
			w := bufio.NewWriter(out)
			res, err := DoPredict(in, w, model, probability)
			if err != nil {
				out.Close()
				return err
			}
			if err := w.Flush(); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			log.Info(fmt.Sprintf("Accuracy = %g%% (%d/%d)", 100*res.Accuracy(), res.Correct, res.Total))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&probability, "probability", "b", false, "output probability estimates (logistic models only)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (no outputs)")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
