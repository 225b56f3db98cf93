package slep

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limhan.info/slep-go/test"
)

func TestLoadGroupRelation(t *testing.T) {
	data := `
kind: group
groups:
  - range: [0, 3]
  - indices: [3, 5]
    weight: 0.5
    q: 1
`
	rel, err := LoadRelation(strings.NewReader(data))
	require.NoError(t, err)
	groups, ok := rel.(*GroupRelation)
	require.True(t, ok)
	require.Equal(t, 2, groups.NumGroups())
	assert.Equal(t, Group{Indices: []int{0, 1, 2}, Weight: 1, Q: 2}, groups.Group(0))
	assert.Equal(t, Group{Indices: []int{3, 5}, Weight: 0.5, Q: 1}, groups.Group(1))
}

func TestLoadTreeRelationDerivesDepths(t *testing.T) {
	data := `
kind: tree
nodes:
  - {start: 0, end: 6}
  - {start: 0, end: 3, parent: 0}
  - {start: 3, end: 6, parent: 0, weight: 2}
  - {start: 0, end: 1, parent: 1}
`
	rel, err := LoadRelation(strings.NewReader(data))
	require.NoError(t, err)
	tree := rel.(*TreeRelation)
	assert.Equal(t, 0, tree.Node(0).Depth)
	assert.Equal(t, -1, tree.Node(0).Parent)
	assert.Equal(t, 1, tree.Node(2).Depth)
	assert.Equal(t, 2.0, tree.Node(2).Weight)
	assert.Equal(t, 2, tree.Node(3).Depth)
	assert.Equal(t, []int{3, 1, 2, 0}, tree.PostOrder())
}

func TestLoadRowRelation(t *testing.T) {
	rel, err := LoadRelation(strings.NewReader("kind: rows\nrows: 2\nweights: [1, 3]\n"))
	require.NoError(t, err)
	rows := rel.(*RowRelation)
	assert.Equal(t, 2, rows.Rows())
	assert.Equal(t, 3.0, rows.weight(1))
}

func TestLoadRelationErrors(t *testing.T) {
	tests := map[string]string{
		"unknown kind":      "kind: graph\n",
		"unknown field":     "kind: group\ngroups:\n  - indices: [0]\n    size: 3\n",
		"range and indices": "kind: group\ngroups:\n  - {indices: [0], range: [0, 2]}\n",
		"reversed range":    "kind: group\ngroups:\n  - {range: [3, 1]}\n",
		"bad q":             "kind: group\ngroups:\n  - {indices: [0], q: 0.5}\n",
		"missing parent":    "kind: tree\nnodes:\n  - {start: 0, end: 2, parent: 4}\n",
		"wrong depth":       "kind: tree\nnodes:\n  - {start: 0, end: 2}\n  - {start: 0, end: 1, parent: 0, depth: 3}\n",
		"row weights":       "kind: rows\nrows: 2\nweights: [1]\n",
		"not yaml":          "kind: [group\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRelation(strings.NewReader(data))
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestSaveLoadRelation(t *testing.T) {
	tree, err := NewTreeRelation(threeLevelNodes())
	require.NoError(t, err)
	groups, err := NewGroupRelation([]Group{
		{Indices: []int{0, 2}, Weight: 1.5, Q: 3},
		{Indices: []int{1}, Weight: 0, Q: 2},
	})
	require.NoError(t, err)
	rows, err := NewRowRelation(3, []float64{1, 0, 2})
	require.NoError(t, err)

	for _, rel := range []Relation{tree, groups, rows} {
		var buf bytes.Buffer
		require.NoError(t, SaveRelation(&buf, rel))
		loaded, err := LoadRelation(&buf)
		require.NoError(t, err)
		assert.Equal(t, rel, loaded, rel.Kind().String())
	}
}

func TestLoadRelationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rel.yaml")
	require.NoError(t, test.WriteString(path, "kind: rows\nrows: 4\n"))

	rel, err := LoadRelationFile(path)
	require.NoError(t, err)
	assert.Equal(t, RowKind, rel.Kind())

	_, err = LoadRelationFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
