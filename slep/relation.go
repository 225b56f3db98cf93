package slep

import (
	"fmt"
	"iter"
	"math"
	"sort"
)

// RelationKind tags the structure a Relation describes. Proximal maps are
// dispatched on it.
type RelationKind int

const (
	// GroupKind is a flat list of weighted index groups (group-Lq penalty).
	GroupKind RelationKind = iota
	// TreeKind is a hierarchy of nested index spans (tree L1/L2 penalty).
	TreeKind
	// RowKind penalizes each feature row of the weight matrix with an L2
	// norm across classes. With a single class it is the plain L1 penalty.
	RowKind
)

var relationKindNames = [...]string{"group", "tree", "rows"}

func (k RelationKind) String() string {
	if k < 0 || int(k) >= len(relationKindNames) {
		return fmt.Sprintf("RelationKind(%d)", int(k))
	}
	return relationKindNames[k]
}

// ParseRelationKind is the inverse of RelationKind.String.
func ParseRelationKind(name string) (RelationKind, error) {
	for i, n := range relationKindNames {
		if n == name {
			return RelationKind(i), nil
		}
	}
	return 0, configErrorf("kind", "unknown relation kind %q", name)
}

// Block is one penalized unit of a relation. Q is 2 for tree and row blocks.
// Children holds node indices for tree blocks and is nil otherwise.
type Block struct {
	Indices  []int
	Weight   float64
	Q        float64
	Children []int
}

// Relation describes how feature indices are organized for regularization.
// Implementations are immutable once constructed and may be shared between
// concurrent training runs.
type Relation interface {
	Kind() RelationKind
	Validate(numFeatures int) error
	Blocks() iter.Seq[Block]
}

func checkWeight(field string, w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return configErrorf(field, "weight must be finite, got %g", w)
	}
	if w < 0 {
		return configErrorf(field, "weight must be non-negative, got %g", w)
	}
	return nil
}

// Group is a set of feature indices sharing one Lq norm in the penalty.
type Group struct {
	Indices []int
	Weight  float64
	Q       float64
}

// GroupRelation is an ordered list of groups. Groups are expected to be
// disjoint; overlapping groups are accepted but then the proximal map
// applies the group shrinks one after another and is no longer exact.
type GroupRelation struct {
	groups []Group
}

// NewGroupRelation copies groups and checks everything that does not depend
// on the number of features.
func NewGroupRelation(groups []Group) (*GroupRelation, error) {
	r := &GroupRelation{groups: make([]Group, len(groups))}
	for i, g := range groups {
		r.groups[i] = Group{
			Indices: append([]int(nil), g.Indices...),
			Weight:  g.Weight,
			Q:       g.Q,
		}
	}
	if err := r.Validate(math.MaxInt); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *GroupRelation) Kind() RelationKind { return GroupKind }

// NumGroups returns the number of groups.
func (r *GroupRelation) NumGroups() int { return len(r.groups) }

// Group returns a copy of group i.
func (r *GroupRelation) Group(i int) Group {
	g := r.groups[i]
	g.Indices = append([]int(nil), g.Indices...)
	return g
}

func (r *GroupRelation) Validate(numFeatures int) error {
	for i, g := range r.groups {
		field := fmt.Sprintf("groups[%d]", i)
		if err := checkWeight(field, g.Weight); err != nil {
			return err
		}
		if math.IsNaN(g.Q) || math.IsInf(g.Q, 0) || g.Q < 1 {
			return configErrorf(field, "norm exponent q must be a finite value >= 1, got %g", g.Q)
		}
		seen := make(map[int]struct{}, len(g.Indices))
		for _, idx := range g.Indices {
			if idx < 0 || idx >= numFeatures {
				return configErrorf(field, "index %d out of range [0, %d)", idx, numFeatures)
			}
			if _, dup := seen[idx]; dup {
				return configErrorf(field, "index %d listed twice", idx)
			}
			seen[idx] = struct{}{}
		}
	}
	return nil
}

func (r *GroupRelation) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for _, g := range r.groups {
			if !yield(Block{Indices: g.Indices, Weight: g.Weight, Q: g.Q}) {
				return
			}
		}
	}
}

// TreeNode is one node of a TreeRelation. The node covers feature indices
// [Start, End). Parent is the index of the parent node in the arena, or -1
// for a root.
type TreeNode struct {
	Start  int
	End    int
	Weight float64
	Depth  int
	Parent int
}

// TreeRelation stores the hierarchy as a flat arena of nodes with parent and
// children indices. The leaves-first traversal is computed once, at
// construction.
type TreeRelation struct {
	nodes     []TreeNode
	children  [][]int
	postOrder []int
}

// NewTreeRelation validates the hierarchy and caches its post-order.
func NewTreeRelation(nodes []TreeNode) (*TreeRelation, error) {
	r := &TreeRelation{
		nodes:    append([]TreeNode(nil), nodes...),
		children: make([][]int, len(nodes)),
	}

	for i, n := range r.nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if err := checkWeight(field, n.Weight); err != nil {
			return nil, err
		}
		if n.Start < 0 || n.End <= n.Start {
			return nil, configErrorf(field, "span [%d, %d) is empty or negative", n.Start, n.End)
		}
		if n.Parent < -1 || n.Parent >= len(r.nodes) {
			return nil, configErrorf(field, "parent %d does not exist", n.Parent)
		}
		if n.Parent == i {
			return nil, configErrorf(field, "node is its own parent")
		}
		if n.Parent >= 0 {
			r.children[n.Parent] = append(r.children[n.Parent], i)
		}
	}

	// every parent chain must reach a root within len(nodes) steps
	for i := range r.nodes {
		steps := 0
		for p := r.nodes[i].Parent; p >= 0; p = r.nodes[p].Parent {
			steps++
			if steps > len(r.nodes) {
				return nil, configErrorf(fmt.Sprintf("nodes[%d]", i), "parent chain contains a cycle")
			}
		}
	}

	for i, n := range r.nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if n.Parent < 0 {
			if n.Depth != 0 {
				return nil, configErrorf(field, "root depth must be 0, got %d", n.Depth)
			}
			continue
		}
		p := r.nodes[n.Parent]
		if n.Depth != p.Depth+1 {
			return nil, configErrorf(field, "depth %d does not follow parent depth %d", n.Depth, p.Depth)
		}
		if n.Start < p.Start || n.End > p.End {
			return nil, configErrorf(field, "span [%d, %d) is not contained in parent span [%d, %d)",
				n.Start, n.End, p.Start, p.End)
		}
	}

	var roots []int
	for i, n := range r.nodes {
		if n.Parent < 0 {
			roots = append(roots, i)
		}
	}
	if a, b, ok := r.overlapping(roots); ok {
		return nil, configErrorf("nodes", "roots %d and %d overlap", a, b)
	}
	for i, kids := range r.children {
		if a, b, ok := r.overlapping(kids); ok {
			return nil, configErrorf(fmt.Sprintf("nodes[%d]", i), "children %d and %d overlap", a, b)
		}
	}

	r.postOrder = r.buildPostOrder()
	return r, nil
}

// overlapping reports two nodes of ids whose spans intersect.
func (r *TreeRelation) overlapping(ids []int) (int, int, bool) {
	sorted := append([]int(nil), ids...)
	sort.Slice(sorted, func(a, b int) bool { return r.nodes[sorted[a]].Start < r.nodes[sorted[b]].Start })
	for k := 1; k < len(sorted); k++ {
		if r.nodes[sorted[k]].Start < r.nodes[sorted[k-1]].End {
			return sorted[k-1], sorted[k], true
		}
	}
	return 0, 0, false
}

// buildPostOrder walks every root in arena order and emits children before
// their parent.
func (r *TreeRelation) buildPostOrder() []int {
	type frame struct {
		node int
		next int
	}
	order := make([]int, 0, len(r.nodes))
	stack := make([]frame, 0, 8)
	for root, n := range r.nodes {
		if n.Parent >= 0 {
			continue
		}
		stack = append(stack, frame{node: root})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(r.children[top.node]) {
				child := r.children[top.node][top.next]
				top.next++
				stack = append(stack, frame{node: child})
				continue
			}
			order = append(order, top.node)
			stack = stack[:len(stack)-1]
		}
	}
	return order
}

func (r *TreeRelation) Kind() RelationKind { return TreeKind }

// NumNodes returns the arena size.
func (r *TreeRelation) NumNodes() int { return len(r.nodes) }

// Node returns node i.
func (r *TreeRelation) Node(i int) TreeNode { return r.nodes[i] }

// Children returns a copy of the child indices of node i.
func (r *TreeRelation) Children(i int) []int { return append([]int(nil), r.children[i]...) }

// PostOrder returns node indices with every child listed before its parent.
func (r *TreeRelation) PostOrder() []int { return append([]int(nil), r.postOrder...) }

func (r *TreeRelation) Validate(numFeatures int) error {
	for i, n := range r.nodes {
		if n.End > numFeatures {
			return configErrorf(fmt.Sprintf("nodes[%d]", i), "span [%d, %d) exceeds %d features", n.Start, n.End, numFeatures)
		}
	}
	return nil
}

func (r *TreeRelation) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for i, n := range r.nodes {
			idx := make([]int, 0, n.End-n.Start)
			for j := n.Start; j < n.End; j++ {
				idx = append(idx, j)
			}
			if !yield(Block{Indices: idx, Weight: n.Weight, Q: 2, Children: r.children[i]}) {
				return
			}
		}
	}
}

// RowRelation penalizes rows [0, Rows) of the d x K weight matrix, row j with
// weight Weights[j] (1 when Weights is nil). Rows past Rows, such as the bias
// row, are left unregularized.
type RowRelation struct {
	rows    int
	weights []float64
}

// NewRowRelation builds a row penalty over the first rows features.
func NewRowRelation(rows int, weights []float64) (*RowRelation, error) {
	if rows < 0 {
		return nil, configErrorf("rows", "row count must be non-negative, got %d", rows)
	}
	if weights != nil && len(weights) != rows {
		return nil, configErrorf("weights", "expected %d row weights, got %d", rows, len(weights))
	}
	for i, w := range weights {
		if err := checkWeight(fmt.Sprintf("weights[%d]", i), w); err != nil {
			return nil, err
		}
	}
	return &RowRelation{rows: rows, weights: append([]float64(nil), weights...)}, nil
}

func (r *RowRelation) Kind() RelationKind { return RowKind }

// Rows returns the number of penalized rows.
func (r *RowRelation) Rows() int { return r.rows }

func (r *RowRelation) weight(j int) float64 {
	if len(r.weights) == 0 {
		return 1
	}
	return r.weights[j]
}

func (r *RowRelation) Validate(numFeatures int) error {
	if r.rows > numFeatures {
		return configErrorf("rows", "%d penalized rows exceed %d features", r.rows, numFeatures)
	}
	return nil
}

func (r *RowRelation) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for j := 0; j < r.rows; j++ {
			if !yield(Block{Indices: []int{j}, Weight: r.weight(j), Q: 2}) {
				return
			}
		}
	}
}
