package slep

// classGroups is the result of sorting the training samples by class.
type classGroups struct {
	nrClass int
	label   []int
	start   []int
	count   []int
}

// groupClasses orders the labels y by first occurrence and fills perm so
// that perm[start[c]:start[c]+count[c]] lists the samples of class c.
func groupClasses(y []float64, perm []int) *classGroups {
	l := len(y)
	var label, count []int
	dataLabel := make([]int, l)

	for i := 0; i < l; i++ {
		thisLabel := int(y[i])
		j := 0
		for ; j < len(label); j++ {
			if thisLabel == label[j] {
				count[j]++
				break
			}
		}
		dataLabel[i] = j
		if j == len(label) {
			label = append(label, thisLabel)
			count = append(count, 1)
		}
	}
	nrClass := len(label)

	// For two-class sets with -1/+1 labels where -1 comes first, swap so that
	// the positive side of a binary model is the +1 class.
	if nrClass == 2 && label[0] == -1 && label[1] == 1 {
		label[0], label[1] = label[1], label[0]
		count[0], count[1] = count[1], count[0]
		for i := range dataLabel {
			dataLabel[i] = 1 - dataLabel[i]
		}
	}

	start := make([]int, nrClass)
	if nrClass == 0 {
		return &classGroups{}
	}
	for i := 1; i < nrClass; i++ {
		start[i] = start[i-1] + count[i-1]
	}
	for i := 0; i < l; i++ {
		perm[start[dataLabel[i]]] = i
		start[dataLabel[i]]++
	}
	start[0] = 0
	for i := 1; i < nrClass; i++ {
		start[i] = start[i-1] + count[i-1]
	}

	return &classGroups{nrClass: nrClass, label: label, start: start, count: count}
}

// classOf returns the class index of the k-th sample in perm order.
func (g *classGroups) classOf(k int) int {
	for c := g.nrClass - 1; c > 0; c-- {
		if k >= g.start[c] {
			return c
		}
	}
	return 0
}
