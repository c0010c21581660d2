package btio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
)

func sampleDef() *ast.Definition {
	return &ast.Definition{
		Root: 0,
		Nodes: []ast.Node{
			{ID: 0, Kind: ast.Seq, Children: []ast.NodeID{1, 2}},
			{ID: 1, Kind: ast.Cond, LeafName: "battery-ok"},
			{ID: 2, Kind: ast.Act, LeafName: "move", Args: []ast.ArgValue{ast.FloatArg(1.5), ast.StringArg("fast")}},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	def := sampleDef()
	path := filepath.Join(t.TempDir(), "tree.mbt")

	require.NoError(t, Save(def, path))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, def.Root, loaded.Root)
	require.Len(t, loaded.Nodes, 3)
	assert.Equal(t, "battery-ok", loaded.Nodes[1].LeafName)
	assert.Equal(t, ast.ArgFloat, loaded.Nodes[2].Args[0].Kind)
	assert.InDelta(t, 1.5, loaded.Nodes[2].Args[0].Float, 1e-9)
	assert.Equal(t, "fast", loaded.Nodes[2].Args[1].Text)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mbt")
	require.NoError(t, os.WriteFile(path, []byte("NOPE"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.mbt"))
	assert.Error(t, err)
}

func TestExportDOTIncludesNodesAndEdges(t *testing.T) {
	dot, err := ExportDOT(sampleDef())
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph bt")
	assert.Contains(t, dot, "n0 -> n1")
	assert.Contains(t, dot, "n0 -> n2")
	assert.Contains(t, dot, "battery-ok")
}
