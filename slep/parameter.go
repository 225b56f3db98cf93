package slep

import (
	"fmt"
	"math"
)

const (
	defaultLipschitzInit   = 1.0
	defaultLipschitzGrowth = 2.0
	defaultMaxBacktracks   = 50
)

// Parameter contains the settings of one training run
type Parameter struct {
	z               float64
	eps             float64 // Stopping criteria
	maxIters        int
	lossType        *LossType
	termination     *TerminationType
	lipschitzInit   float64
	lipschitzGrowth float64
	maxBacktracks   int
	weight          []float64
	weightLabel     []int
	InitSol         []float64
}

// NewParameter constructs a Parameter with the objective-change stopping rule
// and the default line search settings. Values are checked by Validate.
func NewParameter(lossType *LossType, z float64, eps float64, maxIters int) *Parameter {
	return &Parameter{
		lossType:        lossType,
		z:               z,
		eps:             eps,
		maxIters:        maxIters,
		termination:     OBJECTIVE_RELATIVE_CHANGE,
		lipschitzInit:   defaultLipschitzInit,
		lipschitzGrowth: defaultLipschitzGrowth,
		maxBacktracks:   defaultMaxBacktracks,
	}
}

// Copy returns a Parameter that shares nothing mutable with p.
func (p *Parameter) Copy() *Parameter {
	c := *p
	c.weight = append([]float64(nil), p.weight...)
	c.weightLabel = append([]int(nil), p.weightLabel...)
	if p.InitSol != nil {
		c.InitSol = append([]float64(nil), p.InitSol...)
	}
	return &c
}

// Validate checks every setting. Setters already reject bad values, so this
// only fails for a Parameter built by NewParameter with bad arguments.
func (p *Parameter) Validate() error {
	if p.lossType == nil {
		return configErrorf("loss_type", "loss type must be set")
	}
	if p.termination == nil {
		return configErrorf("termination", "termination rule must be set")
	}
	if err := checkZ(p.z); err != nil {
		return err
	}
	if err := checkEps(p.eps); err != nil {
		return err
	}
	if p.maxIters < 0 {
		return configErrorf("max_iter", "must be non-negative, got %d", p.maxIters)
	}
	if err := checkLipschitz(p.lipschitzInit, p.lipschitzGrowth); err != nil {
		return err
	}
	if p.maxBacktracks < 1 {
		return configErrorf("max_backtracks", "must be positive, got %d", p.maxBacktracks)
	}
	return nil
}

func checkZ(z float64) error {
	if z < 0 || math.IsNaN(z) || math.IsInf(z, 0) {
		return configErrorf("z", "must be finite and non-negative, got %g", z)
	}
	return nil
}

func checkEps(eps float64) error {
	if !(eps > 0) || math.IsInf(eps, 0) {
		return configErrorf("epsilon", "must be positive and finite, got %g", eps)
	}
	return nil
}

func checkLipschitz(init, growth float64) error {
	if !(init > 0) || math.IsInf(init, 0) {
		return configErrorf("lipschitz_init", "must be positive and finite, got %g", init)
	}
	if !(growth > 1) || math.IsInf(growth, 0) {
		return configErrorf("lipschitz_growth", "must be finite and greater than 1, got %g", growth)
	}
	return nil
}

// Z returns the regularization coefficient.
func (p *Parameter) Z() float64 { return p.z }

// SetZ sets the regularization coefficient. Zero trains without penalty.
func (p *Parameter) SetZ(z float64) error {
	if err := checkZ(z); err != nil {
		return err
	}
	p.z = z
	return nil
}

func (p *Parameter) Eps() float64 { return p.eps }

func (p *Parameter) SetEps(eps float64) error {
	if err := checkEps(eps); err != nil {
		return err
	}
	p.eps = eps
	return nil
}

func (p *Parameter) MaxIters() int { return p.maxIters }

// SetMaxIters sets the iteration cap. Zero returns the initial weights.
func (p *Parameter) SetMaxIters(maxIters int) error {
	if maxIters < 0 {
		return configErrorf("max_iter", "must be non-negative, got %d", maxIters)
	}
	p.maxIters = maxIters
	return nil
}

func (p *Parameter) LossType() *LossType { return p.lossType }

func (p *Parameter) SetLossType(lossType *LossType) error {
	if lossType == nil {
		return configErrorf("loss_type", "loss type must be set")
	}
	p.lossType = lossType
	return nil
}

func (p *Parameter) Termination() *TerminationType { return p.termination }

func (p *Parameter) SetTermination(t *TerminationType) error {
	if t == nil {
		return configErrorf("termination", "termination rule must be set")
	}
	p.termination = t
	return nil
}

func (p *Parameter) LipschitzInit() float64 { return p.lipschitzInit }

func (p *Parameter) LipschitzGrowth() float64 { return p.lipschitzGrowth }

// SetLipschitz sets the first Lipschitz estimate and the factor it grows by
// on every rejected line search step.
func (p *Parameter) SetLipschitz(init float64, growth float64) error {
	if err := checkLipschitz(init, growth); err != nil {
		return err
	}
	p.lipschitzInit = init
	p.lipschitzGrowth = growth
	return nil
}

func (p *Parameter) MaxBacktracks() int { return p.maxBacktracks }

// SetMaxBacktracks bounds the Lipschitz growths within one iteration.
func (p *Parameter) SetMaxBacktracks(n int) error {
	if n < 1 {
		return configErrorf("max_backtracks", "must be positive, got %d", n)
	}
	p.maxBacktracks = n
	return nil
}

// GetNumWeights gets the number of class weights
func (p *Parameter) GetNumWeights() int {
	if p.weight == nil {
		return 0
	}
	return len(p.weight)
}

// SetWeight scales the loss of every sample of class weightLabel[i] by
// weight[i].
func (p *Parameter) SetWeight(weight []float64, weightLabel []int) error {
	if len(weight) != len(weightLabel) {
		return configErrorf("weight", "%d weights for %d labels", len(weight), len(weightLabel))
	}
	for i, w := range weight {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return configErrorf(fmt.Sprintf("weight[%d]", i), "must be finite and non-negative, got %g", w)
		}
	}
	p.weight = append([]float64(nil), weight...)
	p.weightLabel = append([]int(nil), weightLabel...)
	return nil
}

// GetWeights returns a copy of the class weights
func (p *Parameter) GetWeights() []float64 {
	return append([]float64(nil), p.weight...)
}

// GetWeightLabels returns a copy of the labels the class weights apply to
func (p *Parameter) GetWeightLabels() []int {
	return append([]int(nil), p.weightLabel...)
}
