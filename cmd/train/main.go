package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"limhan.info/slep-go/internal/config"
	"limhan.info/slep-go/internal/logging"
	"limhan.info/slep-go/slep"
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"z":                "z",
	"epsilon":          "epsilon",
	"max-iter":         "max_iter",
	"termination":      "termination",
	"loss":             "loss",
	"multinomial":      "multinomial",
	"relation":         "relation",
	"lipschitz-init":   "lipschitz_init",
	"lipschitz-growth": "lipschitz_growth",
	"max-backtracks":   "max_backtracks",
	"bias":             "bias",
	"weight":           "weights",
	"folds":            "folds",
	"find-z":           "find_z",
	"min-z":            "min_z",
	"path":             "path",
	"parallelism":      "parallelism",
	"quiet":            "quiet",
	"log-level":        "log_level",
	"metrics-file":     "metrics_file",
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "train [flags] training_set_file [model_file]",
		Short: "Train a structured-sparsity linear classifier",
		Long: "train fits a logistic (or squared hinge) model with a group, tree or row\n" +
			"penalty by accelerated proximal gradient. Data is in LIBSVM format; the\n" +
			"relation is a YAML file. Without a relation every feature is penalized on\n" +
			"its own.",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, v)
		},
	}

	f := cmd.Flags()
	f.String("config", "", "config file (yaml or toml)")
	f.Float64("z", 0.01, "regularization coefficient")
	f.Float64("epsilon", 1e-4, "tolerance of the termination criterion")
	f.Int("max-iter", 1000, "maximum number of iterations; 0 returns the initial weights")
	f.String("termination", slep.OBJECTIVE_RELATIVE_CHANGE.Name(), "OBJECTIVE_RELATIVE_CHANGE or GRADIENT_MAPPING_NORM")
	f.String("loss", slep.LOGISTIC.Name(), "LOGISTIC, MULTINOMIAL_LOGISTIC or SQUARED_HINGE")
	f.Bool("multinomial", false, "use the multinomial loss for two classes too")
	f.String("relation", "", "YAML relation file (group, tree or rows)")
	f.Float64("lipschitz-init", 1, "initial Lipschitz estimate")
	f.Float64("lipschitz-growth", 2, "Lipschitz growth factor of the line search")
	f.Int("max-backtracks", 50, "maximum Lipschitz increases per iteration")
	f.Float64("bias", -1, "if bias >= 0, instance x becomes [x; bias]; if < 0, no bias term added")
	f.StringSlice("weight", nil, "class weight as label=weight, repeatable")
	f.Int("folds", 0, "n-fold cross validation mode")
	f.Bool("find-z", false, "find the z with the best cross validation accuracy")
	f.Float64("min-z", 1e-6, "smallest z tried by --find-z")
	f.Float64Slice("path", nil, "train one model per z, concurrently")
	f.Int("parallelism", 0, "concurrent runs for --path (default GOMAXPROCS)")
	f.BoolP("quiet", "q", false, "quiet mode (no outputs)")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("metrics-file", "", "write solver metrics in Prometheus text format")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, f.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrap(err, "read config")
		}
	}
	v.SetEnvPrefix("SLEP")
	v.AutomaticEnv()
	return nil
}

func run(cmd *cobra.Command, args []string, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	log := logging.New(logging.ParseLevel(cfg.LogLevel))
	if cfg.Quiet {
		log = logging.NewNop()
	}
	slep.SetLogger(log)
	slep.SetQuiet(cfg.Quiet)

	param, err := cfg.Parameter()
	if err != nil {
		return err
	}

	modelFile := args[0] + ".model"
	if len(args) > 1 {
		modelFile = args[1]
	}
	training := slep.NewTraining(cfg.Bias, args[0], modelFile, cfg.Folds, param)
	training.RelationFilename = cfg.Relation
	training.MinZ = cfg.MinZ
	training.ZSpecified = zSpecified(cmd, v)
	training.FindZ = cfg.FindZ
	training.CrossValidation = cfg.Folds > 0

	var metrics *slep.Metrics
	if cfg.MetricsFile != "" {
		metrics = slep.NewMetrics()
	}
	training.Hooks = metrics.Hooks()
	if log.Enabled(cmd.Context(), slog.LevelDebug) {
		training.Hooks = slep.ChainHooks(training.Hooks, progressHooks(log))
	}

	if err := training.ReadProblem(); err != nil {
		return err
	}
	if err := training.ReadRelation(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case training.FindZ:
		if !training.CrossValidation {
			training.NrFold = 5
		}
		result, err := training.DoFindParameterZ()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Best z = %g  CV accuracy = %g%%\n", result.BestZ, 100*result.BestRate)
	case training.CrossValidation:
		accuracy, err := training.DoCrossValidation()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Cross Validation Accuracy = %g%%\n", 100*accuracy)
	case len(cfg.Path) > 0:
		models, err := slep.TrainPath(cmd.Context(), training.Prob, param, training.Rel, cfg.Path,
			slep.PathOptions{Parallelism: cfg.Parallelism, Hooks: training.Hooks})
		if err != nil {
			return err
		}
		for i, model := range models {
			path := fmt.Sprintf("%s.%d", modelFile, i)
			if err := slep.SaveModelFile(path, model); err != nil {
				return err
			}
			log.Info("model saved", "z", cfg.Path[i], "file", path)
		}
	default:
		if _, err := training.DoTrain(); err != nil {
			return err
		}
		log.Info("model saved", "file", modelFile)
	}

	if metrics != nil {
		if err := metrics.WriteToTextfile(cfg.MetricsFile); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}

// zSpecified reports whether z came from a flag, the config file or SLEP_Z
// rather than from the defaults.
func zSpecified(cmd *cobra.Command, v *viper.Viper) bool {
	if cmd.Flags().Changed("z") || v.InConfig("z") {
		return true
	}
	_, ok := os.LookupEnv("SLEP_Z")
	return ok
}

// progressHooks logs every solver iteration at debug level.
func progressHooks(log *slog.Logger) slep.Hooks {
	return slep.Hooks{
		OnIteration: func(e slep.IterationEvent) {
			log.Debug("iteration", "iter", e.Iteration, "objective", e.Objective,
				"lipschitz", e.Lipschitz, "backtracks", e.Backtracks, "accepted", e.Accepted)
		},
		OnFinish: func(e slep.FinishEvent) {
			if e.Err != nil {
				log.Debug("solver failed", "iterations", e.Iterations, "error", e.Err)
				return
			}
			log.Debug("solver done", "status", e.Status, "iterations", e.Iterations, "objective", e.Objective)
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
