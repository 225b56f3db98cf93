package slep

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// lqMaxIter caps both bisection loops of the general-q group shrink.
	lqMaxIter = 100
	// lqTolerance is the relative width at which a bisection stops.
	lqTolerance = 1e-12
)

// proxFunc shrinks w in place. w is a row-major numFeatures x numClasses
// matrix and lambda is z*step.
type proxFunc func(w []float64, numClasses int, rel Relation, lambda float64) error

// penaltyFunc evaluates the structured norm of a row-major matrix.
type penaltyFunc func(w []float64, numClasses int, rel Relation) float64

var proxTable = map[RelationKind]proxFunc{
	GroupKind: proxGroups,
	TreeKind:  proxTree,
	RowKind:   proxRows,
}

var penaltyTable = map[RelationKind]penaltyFunc{
	GroupKind: penaltyGroups,
	TreeKind:  penaltyTree,
	RowKind:   penaltyRows,
}

// Prox returns the minimizer of (1/(2*step))*||w-v||^2 + z*Omega(w), where
// Omega is the penalty described by rel. v is not modified.
func Prox(v []float64, step float64, rel Relation, z float64) ([]float64, error) {
	return ProxMatrix(v, 1, step, rel, z)
}

// ProxMatrix is Prox for a row-major numFeatures x numClasses matrix. Group
// and tree relations penalize every class column on its own; a RowRelation
// couples the classes of each feature row.
func ProxMatrix(v []float64, numClasses int, step float64, rel Relation, z float64) ([]float64, error) {
	w := append([]float64(nil), v...)
	if err := proxInPlace(w, numClasses, step, rel, z); err != nil {
		return nil, err
	}
	return w, nil
}

func proxInPlace(w []float64, numClasses int, step float64, rel Relation, z float64) error {
	if numClasses < 1 || len(w)%numClasses != 0 {
		return configErrorf("numClasses", "%d values cannot be split into %d classes", len(w), numClasses)
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return numericalErrorf("prox", "step must be positive and finite, got %g", step)
	}
	if z < 0 || math.IsNaN(z) || math.IsInf(z, 0) {
		return configErrorf("z", "regularization coefficient must be finite and non-negative, got %g", z)
	}
	var fn proxFunc
	if rel != nil {
		var err error
		if fn, err = resolveProx(rel, len(w)/numClasses); err != nil {
			return err
		}
	}
	return shrink(fn, w, numClasses, step, rel, z)
}

// resolveProx validates rel for numFeatures rows and returns its proximal
// map. Solvers call it once and reuse the result through shrink.
func resolveProx(rel Relation, numFeatures int) (proxFunc, error) {
	if err := rel.Validate(numFeatures); err != nil {
		return nil, err
	}
	var ok bool
	switch rel.Kind() {
	case TreeKind:
		_, ok = rel.(*TreeRelation)
	case RowKind:
		_, ok = rel.(*RowRelation)
	default:
		ok = true
	}
	if !ok {
		return nil, configErrorf("relation", "%T reports kind %v but is not its implementation", rel, rel.Kind())
	}
	fn, ok := proxTable[rel.Kind()]
	if !ok {
		return nil, configErrorf("relation", "no proximal map for relation kind %v", rel.Kind())
	}
	return fn, nil
}

// shrink applies a resolved proximal map without validating rel again. A
// nil fn is the identity.
func shrink(fn proxFunc, w []float64, numClasses int, step float64, rel Relation, z float64) error {
	if !allFinite(w) {
		return numericalErrorf("prox", "input contains NaN or Inf")
	}
	if fn == nil || z == 0 {
		return nil
	}
	return fn(w, numClasses, rel, z*step)
}

// Penalty evaluates Omega(w) for a weight vector.
func Penalty(w []float64, rel Relation) float64 {
	return PenaltyMatrix(w, 1, rel)
}

// PenaltyMatrix evaluates Omega(W) for a row-major numFeatures x numClasses
// matrix. A nil relation has no penalty. A tree or row kind reported by a
// type other than TreeRelation or RowRelation gives NaN.
func PenaltyMatrix(w []float64, numClasses int, rel Relation) float64 {
	if rel == nil {
		return 0
	}
	fn, ok := penaltyTable[rel.Kind()]
	if !ok {
		return 0
	}
	return fn(w, numClasses, rel)
}

func allFinite(w []float64) bool {
	for _, x := range w {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func proxGroups(w []float64, numClasses int, rel Relation, lambda float64) error {
	buf := make([]float64, 0, 16)
	for b := range rel.Blocks() {
		thr := lambda * b.Weight
		if thr == 0 {
			continue
		}
		for k := 0; k < numClasses; k++ {
			buf = buf[:0]
			for _, j := range b.Indices {
				buf = append(buf, w[j*numClasses+k])
			}
			var err error
			switch b.Q {
			case 1:
				softThreshold(buf, thr)
			case 2:
				shrinkL2(buf, thr)
			default:
				err = shrinkLq(buf, b.Q, thr)
			}
			if err != nil {
				return err
			}
			for i, j := range b.Indices {
				w[j*numClasses+k] = buf[i]
			}
		}
	}
	return nil
}

func proxTree(w []float64, numClasses int, rel Relation, lambda float64) error {
	tree, ok := rel.(*TreeRelation)
	if !ok {
		return configErrorf("relation", "tree proximal map needs a *TreeRelation, got %T", rel)
	}
	buf := make([]float64, 0, 16)
	for _, i := range tree.postOrder {
		n := tree.nodes[i]
		thr := lambda * n.Weight
		if thr == 0 {
			continue
		}
		if numClasses == 1 {
			shrinkL2(w[n.Start:n.End], thr)
			continue
		}
		for k := 0; k < numClasses; k++ {
			buf = buf[:0]
			for j := n.Start; j < n.End; j++ {
				buf = append(buf, w[j*numClasses+k])
			}
			shrinkL2(buf, thr)
			for j := n.Start; j < n.End; j++ {
				w[j*numClasses+k] = buf[j-n.Start]
			}
		}
	}
	return nil
}

func proxRows(w []float64, numClasses int, rel Relation, lambda float64) error {
	rows, ok := rel.(*RowRelation)
	if !ok {
		return configErrorf("relation", "row proximal map needs a *RowRelation, got %T", rel)
	}
	for j := 0; j < rows.rows; j++ {
		row := w[j*numClasses : (j+1)*numClasses]
		if numClasses == 1 {
			softThreshold(row, lambda*rows.weight(j))
		} else {
			shrinkL2(row, lambda*rows.weight(j))
		}
	}
	return nil
}

func softThreshold(v []float64, thr float64) {
	for i, x := range v {
		switch {
		case x > thr:
			v[i] = x - thr
		case x < -thr:
			v[i] = x + thr
		default:
			v[i] = 0
		}
	}
}

// shrinkL2 is the block soft threshold: v is zeroed when ||v||_2 <= thr and
// scaled by 1 - thr/||v||_2 otherwise.
func shrinkL2(v []float64, thr float64) {
	n := floats.Norm(v, 2)
	if n <= thr {
		for i := range v {
			v[i] = 0
		}
		return
	}
	floats.Scale(1-thr/n, v)
}

// shrinkLq solves min_w 0.5*||w-v||^2 + thr*||w||_q for 1 < q, q != 2.
//
// With t = ||w||_q fixed, every magnitude x_i solves
// x_i + thr*(x_i/t)^(q-1) = |v_i|, which is monotone in x_i. The outer
// bisection finds the t with ||x(t)||_q = t. The group is zero exactly when
// the dual norm ||v||_p, p = q/(q-1), does not exceed thr.
//
// The map is positively homogeneous, so the work runs on v/max|v_i| and
// thr/max|v_i|. Without that |v_i|^p underflows for q close to 1.
func shrinkLq(v []float64, q, thr float64) error {
	if len(v) == 0 {
		return nil
	}
	a := make([]float64, len(v))
	for i, x := range v {
		a[i] = math.Abs(x)
	}
	scale := floats.Max(a)
	if scale > 0 {
		floats.Scale(1/scale, a)
		thr /= scale
	}
	p := q / (q - 1)
	if scale == 0 || normLq(a, p) <= thr {
		for i := range v {
			v[i] = 0
		}
		return nil
	}

	x := make([]float64, len(a))
	phi := func(t float64) float64 {
		for i, ai := range a {
			x[i] = lqCoordinate(ai, t, q, thr)
		}
		return normLq(x, q) - t
	}

	hi := normLq(a, q)
	lo := hi * lqTolerance
	fhi := phi(hi)
	if math.IsNaN(fhi) || fhi >= 0 {
		return numericalErrorf("prox", "Lq root search failed to bracket a sign change (q=%g)", q)
	}
	flo := phi(lo)
	if math.IsNaN(flo) {
		return numericalErrorf("prox", "Lq root search produced NaN (q=%g)", q)
	}
	if flo <= 0 {
		// the root lies below the resolution of the search
		for i := range v {
			v[i] = 0
		}
		return nil
	}

	for iter := 0; iter < lqMaxIter && hi-lo > lqTolerance*hi; iter++ {
		mid := 0.5 * (lo + hi)
		if phi(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	t := 0.5 * (lo + hi)
	for i, ai := range a {
		v[i] = math.Copysign(scale*lqCoordinate(ai, t, q, thr), v[i])
	}
	return nil
}

// normLq is ||x||_q evaluated on x/max|x_i|, so that |x_i|^q cannot
// underflow for large q.
func normLq(x []float64, q float64) float64 {
	if q == 1 || q == 2 || math.IsInf(q, 1) {
		return floats.Norm(x, q)
	}
	var m float64
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	if m == 0 || math.IsInf(m, 1) {
		return m
	}
	var sum float64
	for _, v := range x {
		sum += math.Pow(math.Abs(v)/m, q)
	}
	return m * math.Pow(sum, 1/q)
}

// lqCoordinate solves x + thr*(x/t)^(q-1) = a for x in [0, a].
func lqCoordinate(a, t, q, thr float64) float64 {
	if a == 0 {
		return 0
	}
	lo, hi := 0.0, a
	for iter := 0; iter < lqMaxIter && hi-lo > lqTolerance*a; iter++ {
		mid := 0.5 * (lo + hi)
		if mid+thr*math.Pow(mid/t, q-1) < a {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}

func penaltyGroups(w []float64, numClasses int, rel Relation) float64 {
	var total float64
	buf := make([]float64, 0, 16)
	for b := range rel.Blocks() {
		if b.Weight == 0 {
			continue
		}
		for k := 0; k < numClasses; k++ {
			buf = buf[:0]
			for _, j := range b.Indices {
				buf = append(buf, w[j*numClasses+k])
			}
			total += b.Weight * normLq(buf, b.Q)
		}
	}
	return total
}

func penaltyTree(w []float64, numClasses int, rel Relation) float64 {
	tree, ok := rel.(*TreeRelation)
	if !ok {
		return math.NaN()
	}
	var total float64
	buf := make([]float64, 0, 16)
	for _, n := range tree.nodes {
		if n.Weight == 0 {
			continue
		}
		for k := 0; k < numClasses; k++ {
			buf = buf[:0]
			for j := n.Start; j < n.End; j++ {
				buf = append(buf, w[j*numClasses+k])
			}
			total += n.Weight * floats.Norm(buf, 2)
		}
	}
	return total
}

func penaltyRows(w []float64, numClasses int, rel Relation) float64 {
	rows, ok := rel.(*RowRelation)
	if !ok {
		return math.NaN()
	}
	var total float64
	for j := 0; j < rows.rows; j++ {
		total += rows.weight(j) * floats.Norm(w[j*numClasses:(j+1)*numClasses], 2)
	}
	return total
}
