package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"limhan.info/slep-go/slep"
)

// Config holds all settings of a train run.
// Values are populated from a config file, SLEP_* env vars, and CLI flags.
type Config struct {
	Z               float64   `mapstructure:"z"`
	Epsilon         float64   `mapstructure:"epsilon"`
	MaxIter         int       `mapstructure:"max_iter"`
	Termination     string    `mapstructure:"termination"`
	Loss            string    `mapstructure:"loss"`
	Multinomial     bool      `mapstructure:"multinomial"`
	Relation        string    `mapstructure:"relation"`
	LipschitzInit   float64   `mapstructure:"lipschitz_init"`
	LipschitzGrowth float64   `mapstructure:"lipschitz_growth"`
	MaxBacktracks   int       `mapstructure:"max_backtracks"`
	Bias            float64   `mapstructure:"bias"`
	Weights         []string  `mapstructure:"weights"`
	Folds           int       `mapstructure:"folds"`
	FindZ           bool      `mapstructure:"find_z"`
	MinZ            float64   `mapstructure:"min_z"`
	Path            []float64 `mapstructure:"path"`
	Parallelism     int       `mapstructure:"parallelism"`
	Quiet           bool      `mapstructure:"quiet"`
	LogLevel        string    `mapstructure:"log_level"`
	MetricsFile     string    `mapstructure:"metrics_file"`
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("z", 0.01)
	v.SetDefault("epsilon", 1e-4)
	v.SetDefault("max_iter", 1000)
	v.SetDefault("termination", slep.OBJECTIVE_RELATIVE_CHANGE.Name())
	v.SetDefault("loss", slep.LOGISTIC.Name())
	v.SetDefault("multinomial", false)
	v.SetDefault("relation", "")
	v.SetDefault("lipschitz_init", 1.0)
	v.SetDefault("lipschitz_growth", 2.0)
	v.SetDefault("max_backtracks", 50)
	v.SetDefault("bias", -1.0)
	v.SetDefault("weights", []string{})
	v.SetDefault("folds", 0)
	v.SetDefault("find_z", false)
	v.SetDefault("min_z", 1e-6)
	v.SetDefault("path", []float64{})
	v.SetDefault("parallelism", 0)
	v.SetDefault("quiet", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_file", "")
}

// Load reads configuration from v, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Parameter maps the solver settings to a slep.Parameter.
func (c Config) Parameter() (*slep.Parameter, error) {
	loss := slep.GetLossType(strings.ToUpper(c.Loss))
	if loss == nil {
		return nil, &slep.ConfigError{Field: "loss", Reason: fmt.Sprintf("unknown loss %q", c.Loss)}
	}
	if c.Multinomial {
		if !loss.IsLogistic() {
			return nil, &slep.ConfigError{Field: "multinomial", Reason: "only the logistic loss has a multinomial form"}
		}
		loss = slep.MULTINOMIAL_LOGISTIC
	}
	term := slep.GetTerminationType(strings.ToUpper(c.Termination))
	if term == nil {
		return nil, &slep.ConfigError{Field: "termination", Reason: fmt.Sprintf("unknown termination rule %q", c.Termination)}
	}

	param := slep.NewParameter(loss, c.Z, c.Epsilon, c.MaxIter)
	if err := param.SetTermination(term); err != nil {
		return nil, err
	}
	if err := param.SetLipschitz(c.LipschitzInit, c.LipschitzGrowth); err != nil {
		return nil, err
	}
	if err := param.SetMaxBacktracks(c.MaxBacktracks); err != nil {
		return nil, err
	}
	if len(c.Weights) > 0 {
		weights, labels, err := parseWeights(c.Weights)
		if err != nil {
			return nil, err
		}
		if err := param.SetWeight(weights, labels); err != nil {
			return nil, err
		}
	}
	if err := param.Validate(); err != nil {
		return nil, err
	}
	return param, nil
}

// parseWeights reads "label=weight" pairs.
func parseWeights(pairs []string) ([]float64, []int, error) {
	weights := make([]float64, 0, len(pairs))
	labels := make([]int, 0, len(pairs))
	for _, pair := range pairs {
		l, w, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, nil, &slep.ConfigError{Field: "weights", Reason: fmt.Sprintf("%q is not label=weight", pair)}
		}
		label, err := strconv.Atoi(strings.TrimSpace(l))
		if err != nil {
			return nil, nil, &slep.ConfigError{Field: "weights", Reason: "bad label", Cause: err}
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
		if err != nil {
			return nil, nil, &slep.ConfigError{Field: "weights", Reason: "bad weight", Cause: err}
		}
		labels = append(labels, label)
		weights = append(weights, weight)
	}
	return weights, labels, nil
}
