package slep

import "math"

// OBJECTIVE_RELATIVE_CHANGE : stop when |F_t - F_{t-1}| / max(1, |F_{t-1}|) < eps
var OBJECTIVE_RELATIVE_CHANGE = NewTerminationType(0, "OBJECTIVE_RELATIVE_CHANGE", objectiveRelativeChange)

// GRADIENT_MAPPING_NORM : stop when L*||W_t - Z_t|| < eps
var GRADIENT_MAPPING_NORM = NewTerminationType(1, "GRADIENT_MAPPING_NORM", gradientMappingNorm)

var terminationTypeValues = []*TerminationType{
	OBJECTIVE_RELATIVE_CHANGE,
	GRADIENT_MAPPING_NORM,
}

// progress is what a stopping rule may look at after one iteration.
type progress struct {
	prevObjective float64
	objective     float64
	lipschitz     float64
	stepNorm      float64 // ||W_t - Z_t||
}

// TerminationType selects the stopping rule of the solver.
type TerminationType struct {
	name string
	id   int
	done func(p progress, eps float64) bool
}

// NewTerminationType returns a new TerminationType
func NewTerminationType(id int, name string, done func(p progress, eps float64) bool) *TerminationType {
	return &TerminationType{id: id, name: name, done: done}
}

// TerminationTypeValues lists the known stopping rules.
func TerminationTypeValues() []*TerminationType {
	return terminationTypeValues
}

func (t *TerminationType) Name() string { return t.name }

func (t *TerminationType) Id() int { return t.id }

func (t *TerminationType) String() string { return t.name }

// GetTerminationType looks a stopping rule up by name. It returns nil for an
// unknown name.
func GetTerminationType(name string) *TerminationType {
	for _, t := range terminationTypeValues {
		if t.name == name {
			return t
		}
	}
	return nil
}

func objectiveRelativeChange(p progress, eps float64) bool {
	return math.Abs(p.objective-p.prevObjective)/math.Max(1, math.Abs(p.prevObjective)) < eps
}

func gradientMappingNorm(p progress, eps float64) bool {
	return p.stepNorm*p.lipschitz < eps
}
