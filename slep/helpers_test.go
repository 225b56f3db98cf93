package slep

import (
	"math"
	"math/rand"
	"sort"
)

// denseProblem builds a sparse Problem from dense rows. With bias >= 0 the
// bias feature is appended after the last column.
func denseProblem(y []float64, rows [][]float64, bias float64) *Problem {
	n := 0
	if len(rows) > 0 {
		n = len(rows[0])
	}
	x := make([][]Feature, len(rows))
	for i, row := range rows {
		for j, v := range row {
			if v != 0 {
				x[i] = append(x[i], NewFeatureNode(j+1, v))
			}
		}
	}
	vy := append([]float64(nil), y...)
	return constructProblem(vy, x, n, bias)
}

// twoGroupData has features 0-4 aligned with the label and features 5-9 of
// small uniform noise.
func twoGroupData(l int, seed int64) ([]float64, [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	y := make([]float64, l)
	rows := make([][]float64, l)
	for i := range rows {
		y[i] = 1
		if i%2 == 1 {
			y[i] = -1
		}
		rows[i] = make([]float64, 10)
		for j := 0; j < 5; j++ {
			rows[i][j] = y[i] * (1 + rng.Float64())
		}
		for j := 5; j < 10; j++ {
			rows[i][j] = 0.2*rng.Float64() - 0.1
		}
	}
	return y, rows
}

// overlappingData is a binary set that is not linearly separable.
func overlappingData(l int, seed int64) ([]float64, [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	y := make([]float64, l)
	rows := make([][]float64, l)
	for i := range rows {
		y[i] = 1
		if i%2 == 1 {
			y[i] = -1
		}
		rows[i] = []float64{
			0.5*y[i] + rng.NormFloat64(),
			-0.3*y[i] + rng.NormFloat64(),
			rng.NormFloat64(),
		}
	}
	return y, rows
}

// createRandomProblem cycles the labels 0..numClasses-1 so that every class
// keeps at least a tenth of the samples.
func createRandomProblem(rng *rand.Rand, numClasses int) *Problem {
	l := rng.Intn(100) + 10*numClasses
	n := rng.Intn(100) + 1
	prob := NewProblem(l, n, make([]float64, l), make([][]Feature, l), -1.0)

	for i := 0; i < prob.L; i++ {
		prob.Y[i] = float64(i % numClasses)
		seen := make(map[int]struct{})
		num := rng.Intn(prob.N) + 1
		for j := 0; j < num; j++ {
			seen[rng.Intn(prob.N)+1] = struct{}{}
		}
		indices := make([]int, 0, len(seen))
		for k := range seen {
			indices = append(indices, k)
		}
		sort.Ints(indices)

		prob.X[i] = make([]Feature, len(indices))
		for j, idx := range indices {
			prob.X[i][j] = NewFeatureNode(idx, rng.Float64())
		}
	}
	return prob
}

// threeClassData puts class c on feature c with two weak noise features.
func threeClassData(l int, seed int64) ([]float64, [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	y := make([]float64, l)
	rows := make([][]float64, l)
	for i := range rows {
		c := i % 3
		y[i] = float64(c + 1)
		rows[i] = make([]float64, 5)
		rows[i][c] = 1 + rng.Float64()
		rows[i][3] = 0.2*rng.Float64() - 0.1
		rows[i][4] = 0.2*rng.Float64() - 0.1
	}
	return y, rows
}

func createRandomModel(rng *rand.Rand) *Model {
	label := []int{1, math.MaxInt32, 2}
	w := make([]float64, len(label)*300)
	for i := range w {
		w[i] = math.Round(rng.Float64()*100000) / 10000
	}
	w[rng.Intn(len(w))] = 0.0
	w[rng.Intn(len(w))] = math.Copysign(0, -1)

	numFeature := len(w)/len(label) - 1
	return NewModel(2, label, len(label), numFeature, MULTINOMIAL_LOGISTIC, w)
}

func norm2(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
