package slep

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type relationDoc struct {
	Kind    string     `yaml:"kind"`
	Groups  []groupDoc `yaml:"groups,omitempty"`
	Nodes   []nodeDoc  `yaml:"nodes,omitempty"`
	Rows    int        `yaml:"rows,omitempty"`
	Weights []float64  `yaml:"weights,omitempty,flow"`
}

type groupDoc struct {
	Indices []int    `yaml:"indices,omitempty,flow"`
	Range   []int    `yaml:"range,omitempty,flow"`
	Weight  *float64 `yaml:"weight,omitempty"`
	Q       *float64 `yaml:"q,omitempty"`
}

type nodeDoc struct {
	Start  int      `yaml:"start"`
	End    int      `yaml:"end"`
	Weight *float64 `yaml:"weight,omitempty"`
	Parent *int     `yaml:"parent,omitempty"`
	Depth  *int     `yaml:"depth,omitempty"`
}

func orDefault[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// LoadRelation reads a relation in YAML. Group weights default to 1 and q
// to 2; a node without parent is a root and its depth is derived from the
// parent chain when omitted.
func LoadRelation(in io.Reader) (Relation, error) {
	var doc relationDoc
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &ConfigError{Field: "relation", Reason: "cannot parse relation file", Cause: err}
	}
	kind, err := ParseRelationKind(doc.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case GroupKind:
		groups := make([]Group, len(doc.Groups))
		for i, g := range doc.Groups {
			idx, err := g.indices(i)
			if err != nil {
				return nil, err
			}
			groups[i] = Group{Indices: idx, Weight: orDefault(g.Weight, 1), Q: orDefault(g.Q, 2)}
		}
		return NewGroupRelation(groups)

	case TreeKind:
		nodes := make([]TreeNode, len(doc.Nodes))
		for i, n := range doc.Nodes {
			nodes[i] = TreeNode{
				Start:  n.Start,
				End:    n.End,
				Weight: orDefault(n.Weight, 1),
				Parent: orDefault(n.Parent, -1),
			}
		}
		if err := deriveDepths(nodes, doc.Nodes); err != nil {
			return nil, err
		}
		return NewTreeRelation(nodes)

	default:
		return NewRowRelation(doc.Rows, doc.Weights)
	}
}

func (g groupDoc) indices(i int) ([]int, error) {
	field := fmt.Sprintf("groups[%d]", i)
	switch {
	case g.Indices != nil && g.Range != nil:
		return nil, configErrorf(field, "give either indices or range, not both")
	case g.Range != nil:
		if len(g.Range) != 2 || g.Range[1] < g.Range[0] {
			return nil, configErrorf(field, "range must be [start, end) with start <= end")
		}
		idx := make([]int, 0, g.Range[1]-g.Range[0])
		for j := g.Range[0]; j < g.Range[1]; j++ {
			idx = append(idx, j)
		}
		return idx, nil
	default:
		return g.Indices, nil
	}
}

// deriveDepths fills depths missing from the file. Explicit depths are kept
// and checked by NewTreeRelation.
func deriveDepths(nodes []TreeNode, docs []nodeDoc) error {
	for i := range nodes {
		if docs[i].Depth != nil {
			nodes[i].Depth = *docs[i].Depth
			continue
		}
		depth := 0
		for p := nodes[i].Parent; p >= 0; p = nodes[p].Parent {
			if p >= len(nodes) {
				return configErrorf(fmt.Sprintf("nodes[%d]", i), "parent %d does not exist", p)
			}
			depth++
			if depth > len(nodes) {
				return configErrorf(fmt.Sprintf("nodes[%d]", i), "parent chain contains a cycle")
			}
		}
		nodes[i].Depth = depth
	}
	return nil
}

// SaveRelation writes rel in the format read by LoadRelation.
func SaveRelation(out io.Writer, rel Relation) error {
	doc := relationDoc{Kind: rel.Kind().String()}
	switch r := rel.(type) {
	case *GroupRelation:
		for _, g := range r.groups {
			w, q := g.Weight, g.Q
			doc.Groups = append(doc.Groups, groupDoc{Indices: g.Indices, Weight: &w, Q: &q})
		}
	case *TreeRelation:
		for _, n := range r.nodes {
			w, p, d := n.Weight, n.Parent, n.Depth
			doc.Nodes = append(doc.Nodes, nodeDoc{Start: n.Start, End: n.End, Weight: &w, Parent: &p, Depth: &d})
		}
	case *RowRelation:
		doc.Rows = r.rows
		doc.Weights = r.weights
	default:
		return configErrorf("relation", "cannot serialize relation kind %v", rel.Kind())
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return errors.Wrap(err, "encode relation")
	}
	return enc.Close()
}

// LoadRelationFile reads a relation from path.
func LoadRelationFile(path string) (Relation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open relation file")
	}
	defer f.Close()
	rel, err := LoadRelation(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return rel, nil
}
