package slep

// LOGISTIC : logistic regression; more than two classes switch to the
// multinomial loss
var LOGISTIC = NewLossType(0, "LOGISTIC", true, false)

// MULTINOMIAL_LOGISTIC : softmax cross-entropy over all classes, also for two
var MULTINOMIAL_LOGISTIC = NewLossType(1, "MULTINOMIAL_LOGISTIC", true, true)

// SQUARED_HINGE : L2-loss support vector classification, one-vs-rest for more
// than two classes
var SQUARED_HINGE = NewLossType(2, "SQUARED_HINGE", false, false)

var lossTypeValues = []*LossType{
	LOGISTIC,
	MULTINOMIAL_LOGISTIC,
	SQUARED_HINGE,
}

// LossType describes the smooth part of the training objective.
type LossType struct {
	name        string
	id          int
	logistic    bool
	multinomial bool
}

// NewLossType returns a new LossType based on input fields
func NewLossType(id int, name string, logistic bool, multinomial bool) *LossType {
	return &LossType{
		id:          id,
		name:        name,
		logistic:    logistic,
		multinomial: multinomial,
	}
}

// LossTypeValues gives a list of LossTypes
func LossTypeValues() []*LossType {
	return lossTypeValues
}

func (l *LossType) Name() string { return l.name }

func (l *LossType) Id() int { return l.id }

func (l *LossType) String() string { return l.name }

// IsLogistic reports whether models trained with this loss give probability
// estimates.
func (l *LossType) IsLogistic() bool { return l.logistic }

// IsMultinomial reports whether all classes share one softmax model.
func (l *LossType) IsMultinomial() bool { return l.multinomial }

// GetLossType looks a loss up by name. It returns nil for an unknown name.
func GetLossType(name string) *LossType {
	for _, l := range lossTypeValues {
		if l.name == name {
			return l
		}
	}
	return nil
}
