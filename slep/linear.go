package slep

import (
	"math"
	"math/rand"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
)

// pathRatio is the factor between consecutive z of FindParameterZ.
const pathRatio = 0.5

var random = rand.New(rand.NewSource(0))

// ParameterSearchResult stores the result of the parameter search
type ParameterSearchResult struct {
	BestZ    float64
	BestRate float64
}

// Train fits a linear classifier on prob. rel organizes the non-bias features
// 0..NumFeatures-1; a nil rel penalizes every non-bias feature row on its own
// (L1 for binary models). The bias feature is never regularized.
func Train(prob *Problem, param *Parameter, rel Relation) (*Model, error) {
	return TrainWithHooks(prob, param, rel, Hooks{})
}

// TrainWithHooks is Train with observers attached to every solver run.
func TrainWithHooks(prob *Problem, param *Parameter, rel Relation, hooks Hooks) (*Model, error) {
	if prob.L == 0 || len(prob.X) != prob.L || len(prob.Y) != prob.L {
		return nil, configErrorf("problem", "need %d samples with labels, got %d rows and %d labels", prob.L, len(prob.X), len(prob.Y))
	}
	if err := prob.checkSorted(); err != nil {
		return nil, err
	}
	return TrainFeatures(prob, prob.Y, prob.Bias, param, rel, hooks)
}

// TrainFeatures fits a model on any Features provider, for example a
// DenseFeatures over a gonum matrix. With bias >= 0 the last column of x is
// the bias feature and stays out of rel.
func TrainFeatures(x Features, y []float64, bias float64, param *Parameter, rel Relation, hooks Hooks) (*Model, error) {
	if err := param.Validate(); err != nil {
		return nil, err
	}
	l, n := x.NumVectors(), x.NumFeatures()
	if l == 0 || len(y) != l {
		return nil, configErrorf("problem", "need %d samples with labels, got %d labels", l, len(y))
	}

	model := &Model{Bias: bias, NumFeatures: n}
	if bias >= 0 {
		model.NumFeatures = n - 1
	}
	rel, err := defaultRelation(rel, model.NumFeatures)
	if err != nil {
		return nil, err
	}
	if err := rel.Validate(model.NumFeatures); err != nil {
		return nil, err
	}

	perm := make([]int, l)
	groups := groupClasses(y, perm)
	nrClass := groups.nrClass
	if nrClass < 2 {
		return nil, configErrorf("labels", "training data holds %d class, need at least 2", nrClass)
	}
	model.NumClass = nrClass
	model.Label = append([]int(nil), groups.label...)

	weightedC, err := classCosts(param, groups)
	if err != nil {
		return nil, err
	}

	// samples sorted by class
	sub := &permutedFeatures{x: x, perm: perm}
	subY := make([]float64, l)
	costs := make([]float64, l)
	for k := 0; k < l; k++ {
		costs[k] = weightedC[groups.classOf(k)]
	}

	lossType := param.lossType
	if lossType == LOGISTIC && nrClass > 2 {
		lossType = MULTINOMIAL_LOGISTIC
	}
	model.LossType = lossType

	switch {
	case lossType.IsMultinomial():
		classes := make([]int, l)
		for k := range classes {
			classes[k] = groups.classOf(k)
		}
		fn, err := NewMulticlassLogisticLoss(sub, classes, nrClass, costs)
		if err != nil {
			return nil, err
		}
		res, err := runSolver(fn, rel, param, nrClass, hooks, param.InitSol)
		if err != nil {
			return nil, err
		}
		model.W = res.W

	case nrClass == 2:
		for k := 0; k < l; k++ {
			if k < groups.start[0]+groups.count[0] {
				subY[k] = 1
			} else {
				subY[k] = -1
			}
		}
		fn, err := newBinaryLoss(lossType, sub, subY, costs)
		if err != nil {
			return nil, err
		}
		res, err := runSolver(fn, rel, param, 1, hooks, param.InitSol)
		if err != nil {
			return nil, err
		}
		model.W = res.W

	default:
		// one-vs-rest
		model.W = make([]float64, n*nrClass)
		var w0 []float64
		if param.InitSol != nil {
			if len(param.InitSol) != n*nrClass {
				return nil, configErrorf("init_sol", "warm start has %d values, expected %d", len(param.InitSol), n*nrClass)
			}
			w0 = make([]float64, n)
		}
		for i := 0; i < nrClass; i++ {
			si := groups.start[i]
			ei := si + groups.count[i]
			for k := 0; k < l; k++ {
				if k >= si && k < ei {
					subY[k] = 1
				} else {
					subY[k] = -1
				}
			}
			if w0 != nil {
				for j := 0; j < n; j++ {
					w0[j] = param.InitSol[j*nrClass+i]
				}
			}
			fn, err := newBinaryLoss(lossType, sub, subY, costs)
			if err != nil {
				return nil, err
			}
			res, err := runSolver(fn, rel, param, 1, hooks, w0)
			if err != nil {
				return nil, errors.Wrapf(err, "class %d", groups.label[i])
			}
			for j := 0; j < n; j++ {
				model.W[j*nrClass+i] = res.W[j]
			}
		}
	}
	return model, nil
}

// permutedFeatures reads the samples of x in perm order.
type permutedFeatures struct {
	x    Features
	perm []int
}

func (p *permutedFeatures) NumVectors() int  { return len(p.perm) }
func (p *permutedFeatures) NumFeatures() int { return p.x.NumFeatures() }

func (p *permutedFeatures) Project(i int, w []float64, out []float64) {
	p.x.Project(p.perm[i], w, out)
}

func (p *permutedFeatures) Accumulate(i int, coef []float64, dst []float64) {
	p.x.Accumulate(p.perm[i], coef, dst)
}

// classCosts scales the loss of each class by its configured weights.
func classCosts(param *Parameter, groups *classGroups) ([]float64, error) {
	weightedC := make([]float64, groups.nrClass)
	for i := range weightedC {
		weightedC[i] = 1
	}
	for i := 0; i < param.GetNumWeights(); i++ {
		j := 0
		for ; j < groups.nrClass; j++ {
			if param.weightLabel[i] == groups.label[j] {
				break
			}
		}
		if j == groups.nrClass {
			return nil, configErrorf("weight", "class label %d specified in weight is not found", param.weightLabel[i])
		}
		weightedC[j] *= param.weight[i]
	}
	return weightedC, nil
}

// defaultRelation penalizes each of the first numFeatures rows when rel is nil.
func defaultRelation(rel Relation, numFeatures int) (Relation, error) {
	if rel != nil {
		return rel, nil
	}
	return NewRowRelation(numFeatures, nil)
}

func newBinaryLoss(lossType *LossType, x Features, y []float64, costs []float64) (Function, error) {
	if lossType == SQUARED_HINGE {
		return NewSquaredHingeLoss(x, y, costs)
	}
	return NewBinaryLogisticLoss(x, y, costs)
}

func runSolver(fn Function, rel Relation, param *Parameter, numClasses int, hooks Hooks, w0 []float64) (*Result, error) {
	p := param.Copy()
	p.InitSol = nil
	solver, err := NewSolver(fn, rel, p, numClasses)
	if err != nil {
		return nil, err
	}
	solver.SetHooks(hooks)
	res, err := solver.Solve(w0)
	if err != nil {
		return nil, err
	}
	if !res.Converged {
		logWarn("reaching max number of iterations", "iterations", res.Iterations, "objective", res.Objective)
	} else {
		logInfo("optimization finished", "iterations", res.Iterations, "objective", res.Objective)
	}
	return res, nil
}

// Predict uses the model to predict the label of the features x. When the
// model has a bias, x must end with the bias feature.
func Predict(model *Model, x []Feature) float64 {
	decValues := make([]float64, model.NrW())
	return PredictValues(model, x, decValues)
}

// PredictValues stores the decision values of x in decValues, which needs
// NrW() entries, and returns the predicted label.
func PredictValues(model *Model, x []Feature, decValues []float64) float64 {
	n := model.wSize()
	w := model.W
	nrW := model.NrW()

	for i := 0; i < nrW; i++ {
		decValues[i] = 0
	}
	for _, lx := range x {
		idx := lx.GetIndex()
		// the dimension of testing data may exceed that of training
		if idx <= n {
			for i := 0; i < nrW; i++ {
				decValues[i] += w[(idx-1)*nrW+i] * lx.GetValue()
			}
		}
	}

	if nrW == 1 {
		if decValues[0] > 0 {
			return float64(model.Label[0])
		}
		return float64(model.Label[1])
	}
	return float64(model.Label[floats.MaxIdx(decValues[:nrW])])
}

// ErrNotProbabilistic is returned by PredictProbability for models whose loss
// has no probabilistic reading.
var ErrNotProbabilistic = errors.New("probability output is only supported for logistic models")

// PredictProbability stores class probabilities of x in probEstimates, which
// needs NumClass entries, and returns the predicted label.
func PredictProbability(model *Model, x []Feature, probEstimates []float64) (float64, error) {
	if !model.IsProbabilityModel() {
		return 0, errors.Wrapf(ErrNotProbabilistic, "loss type %s", model.LossType.Name())
	}
	label := PredictValues(model, x, probEstimates)
	if model.NrW() == 1 {
		probEstimates[0] = sigmoid(probEstimates[0])
		probEstimates[1] = 1 - probEstimates[0]
		return label, nil
	}
	dec := probEstimates[:model.NumClass]
	lse := floats.LogSumExp(dec)
	for i := range dec {
		dec[i] = math.Exp(dec[i] - lse)
	}
	return label, nil
}

// CrossValidation trains on nrFold-1 folds and stores predictions for the
// held-out fold in target, for every fold.
func CrossValidation(prob *Problem, param *Parameter, rel Relation, nrFold int, target []float64) error {
	l := prob.L
	if nrFold < 2 {
		return configErrorf("folds", "need at least 2 folds, got %d", nrFold)
	}
	if nrFold > l {
		nrFold = l
		logWarn("# folds > # data. Will use # folds = # data instead (i.e., leave-one-out cross validation)")
	}
	perm, foldStart := foldPermutation(l, nrFold)

	for i := 0; i < nrFold; i++ {
		begin, end := foldStart[i], foldStart[i+1]
		subProb := foldProblem(prob, perm, begin, end)
		subModel, err := Train(subProb, param, rel)
		if err != nil {
			return errors.Wrapf(err, "fold %d", i)
		}
		for j := begin; j < end; j++ {
			target[perm[j]] = Predict(subModel, prob.X[perm[j]])
		}
	}
	return nil
}

func foldPermutation(l, nrFold int) ([]int, []int) {
	perm := make([]int, l)
	for i := range perm {
		perm[i] = i
	}
	random.Shuffle(l, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	foldStart := make([]int, nrFold+1)
	for i := 0; i <= nrFold; i++ {
		foldStart[i] = i * l / nrFold
	}
	return perm, foldStart
}

// foldProblem holds every sample except perm[begin:end].
func foldProblem(prob *Problem, perm []int, begin, end int) *Problem {
	subL := prob.L - (end - begin)
	sub := NewProblem(subL, prob.N, make([]float64, subL), make([][]Feature, subL), prob.Bias)
	k := 0
	for j := 0; j < begin; j++ {
		sub.X[k] = prob.X[perm[j]]
		sub.Y[k] = prob.Y[perm[j]]
		k++
	}
	for j := end; j < prob.L; j++ {
		sub.X[k] = prob.X[perm[j]]
		sub.Y[k] = prob.Y[perm[j]]
		k++
	}
	return sub
}

// FindParameterZ walks z down from startZ (CalcStartZ when startZ <= 0) by
// halving, warm starting every fold from its previous weights, and returns
// the z with the best cross validation accuracy. The walk stops below minZ
// or once the weights of every fold stop changing for three steps.
func FindParameterZ(prob *Problem, param *Parameter, rel Relation, nrFold int, startZ float64, minZ float64) (*ParameterSearchResult, error) {
	l := prob.L
	if nrFold < 2 {
		return nil, configErrorf("folds", "need at least 2 folds, got %d", nrFold)
	}
	if nrFold > l {
		nrFold = l
		logWarn("# folds > # data. Will use # folds = # data instead (i.e., leave-one-out cross validation)")
	}
	if !(minZ > 0) {
		return nil, configErrorf("min_z", "must be positive, got %g", minZ)
	}
	perm, foldStart := foldPermutation(l, nrFold)
	subProb := make([]*Problem, nrFold)
	for i := range subProb {
		subProb[i] = foldProblem(prob, perm, foldStart[i], foldStart[i+1])
	}

	if startZ <= 0 {
		var err error
		if startZ, err = CalcStartZ(prob, param, rel); err != nil {
			return nil, err
		}
	}

	target := make([]float64, l)
	prevW := make([][]float64, nrFold)
	numUnchangedW := 0
	best := &ParameterSearchResult{BestZ: math.NaN()}
	param1 := param.Copy()

	for z := startZ; z >= minZ; z *= pathRatio {
		if err := param1.SetZ(z); err != nil {
			return nil, err
		}
		for i := 0; i < nrFold; i++ {
			param1.InitSol = prevW[i]
			subModel, err := Train(subProb[i], param1, rel)
			if err != nil {
				return nil, errors.Wrapf(err, "z=%g fold %d", z, i)
			}
			if prevW[i] != nil && numUnchangedW >= 0 && floats.Distance(subModel.W, prevW[i], 2) > 1e-15 {
				numUnchangedW = -1
			}
			prevW[i] = subModel.W
			for j := foldStart[i]; j < foldStart[i+1]; j++ {
				target[perm[j]] = Predict(subModel, prob.X[perm[j]])
			}
		}

		totalCorrect := 0
		for i := 0; i < l; i++ {
			if target[i] == prob.Y[i] {
				totalCorrect++
			}
		}
		rate := float64(totalCorrect) / float64(l)
		if rate > best.BestRate {
			best.BestZ = z
			best.BestRate = rate
		}
		logInfo("parameter search", "log2z", math.Log2(z), "rate", 100*rate)

		numUnchangedW++
		if numUnchangedW == 3 {
			break
		}
	}
	return best, nil
}

// CalcStartZ returns the smallest power of two at or above the z where zero
// weights become optimal. The gradient is taken with every weight at zero,
// the bias too, so with a bias term the value is an estimate. Tree
// relations only look at their roots, which can overshoot.
func CalcStartZ(prob *Problem, param *Parameter, rel Relation) (float64, error) {
	if prob.L == 0 {
		return 0, configErrorf("problem", "no training data")
	}
	numFeatures := prob.N
	if prob.Bias >= 0 {
		numFeatures--
	}
	rel, err := defaultRelation(rel, numFeatures)
	if err != nil {
		return 0, err
	}
	if err := rel.Validate(numFeatures); err != nil {
		return 0, err
	}

	perm := make([]int, prob.L)
	groups := groupClasses(prob.Y, perm)
	nrClass := groups.nrClass
	if nrClass < 2 {
		return 0, configErrorf("labels", "training data holds %d class, need at least 2", nrClass)
	}
	weightedC, err := classCosts(param, groups)
	if err != nil {
		return 0, err
	}
	multinomial := param.lossType.IsMultinomial() || (param.lossType == LOGISTIC && nrClass > 2)

	// gradient at W = 0, one column per trained model
	var k int
	switch {
	case multinomial:
		k = nrClass
	case nrClass == 2:
		k = 1
	default:
		k = nrClass
	}
	g := make([]float64, prob.N*k)
	coef := make([]float64, k)
	for pos, i := range perm {
		c := groups.classOf(pos)
		switch {
		case multinomial:
			for j := range coef {
				coef[j] = 1 / float64(nrClass)
			}
			coef[c]--
		case k == 1:
			y := -1.0
			if c == 0 {
				y = 1
			}
			coef[0] = binaryGradientAtZero(param.lossType) * y
		default:
			for j := range coef {
				coef[j] = -binaryGradientAtZero(param.lossType)
			}
			coef[c] = binaryGradientAtZero(param.lossType)
		}
		floats.Scale(weightedC[c], coef)
		prob.Accumulate(i, coef, g)
	}

	zMax := dualNorm(g, k, rel)
	if zMax <= 0 {
		return 1, nil
	}
	return math.Pow(2, math.Ceil(math.Log2(zMax))), nil
}

// binaryGradientAtZero is -dl/dm at margin 0 for the binary losses.
func binaryGradientAtZero(lossType *LossType) float64 {
	if lossType == SQUARED_HINGE {
		return 2
	}
	return 0.5
}

// dualNorm bounds the dual of the penalty at the row-major d x k matrix g.
func dualNorm(g []float64, k int, rel Relation) float64 {
	var out float64
	col := make([]float64, 0, 16)
	gather := func(indices []int, c int) []float64 {
		col = col[:0]
		for _, j := range indices {
			col = append(col, g[j*k+c])
		}
		return col
	}
	switch r := rel.(type) {
	case *RowRelation:
		for j := 0; j < r.rows; j++ {
			if w := r.weight(j); w > 0 {
				out = math.Max(out, floats.Norm(g[j*k:(j+1)*k], 2)/w)
			}
		}
	case *TreeRelation:
		for _, n := range r.nodes {
			if n.Parent >= 0 || n.Weight == 0 {
				continue
			}
			idx := make([]int, 0, n.End-n.Start)
			for j := n.Start; j < n.End; j++ {
				idx = append(idx, j)
			}
			for c := 0; c < k; c++ {
				out = math.Max(out, floats.Norm(gather(idx, c), 2)/n.Weight)
			}
		}
	default:
		for b := range rel.Blocks() {
			if b.Weight == 0 {
				continue
			}
			p := math.Inf(1)
			if b.Q > 1 {
				p = b.Q / (b.Q - 1)
			}
			for c := 0; c < k; c++ {
				out = math.Max(out, normLq(gather(b.Indices, c), p)/b.Weight)
			}
		}
	}
	return out
}
