package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfygo/commander/types"
)

func buildThreeNodeGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()

	prompt, err := g.AddNode(3, "CLIPTextEncode")
	require.NoError(t, err)
	prompt.SetName("Prompt")
	_, err = prompt.AddProperty("text", "a forest at dawn")
	require.NoError(t, err)

	sampler, err := g.AddNode(5, "KSampler")
	require.NoError(t, err)
	_, err = sampler.AddProperty("seed", 42)
	require.NoError(t, err)
	_, err = sampler.AddProperty("steps", 20)
	require.NoError(t, err)

	_, err = g.AddNode(9, "SaveImage")
	require.NoError(t, err)

	require.NoError(t, g.Connect(3, 0, 5, "positive"))
	require.NoError(t, g.Connect(5, 0, 9, "images"))
	return g
}

func TestGraph_NodeByID(t *testing.T) {
	g := buildThreeNodeGraph(t)

	n, err := g.Node(5)
	require.NoError(t, err)
	assert.Equal(t, 5, n.ID())
	assert.Equal(t, "KSampler", n.Type())

	_, err = g.Node(99)
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestGraph_NodeByName_Ambiguous(t *testing.T) {
	g := New()

	a, err := g.AddNode(3, "CLIPTextEncode")
	require.NoError(t, err)
	a.SetName("A")

	b, err := g.AddNode(7, "CLIPTextEncode")
	require.NoError(t, err)
	b.SetName("A")

	_, err = g.NodeByName("A")
	require.Error(t, err)
	assert.True(t, types.IsAmbiguous(err))

	// Lookup by id still resolves exactly.
	n, err := g.Node(3)
	require.NoError(t, err)
	assert.Equal(t, 3, n.ID())
}

func TestGraph_NodeByName(t *testing.T) {
	g := buildThreeNodeGraph(t)

	n, err := g.NodeByName("Prompt")
	require.NoError(t, err)
	assert.Equal(t, 3, n.ID())

	_, err = g.NodeByName("Missing")
	assert.True(t, types.IsNotFound(err))
}

func TestGraph_NodeByType(t *testing.T) {
	g := buildThreeNodeGraph(t)

	n, err := g.NodeByType("KSampler")
	require.NoError(t, err)
	assert.Equal(t, 5, n.ID())

	_, err = g.NodeByType("UnknownType")
	assert.True(t, types.IsNotFound(err))

	_, aerr := g.AddNode(6, "KSampler")
	require.NoError(t, aerr)
	_, err = g.NodeByType("KSampler")
	assert.True(t, types.IsAmbiguous(err))
}

func TestGraph_AddNode_DuplicateID(t *testing.T) {
	g := New()
	_, err := g.AddNode(1, "A")
	require.NoError(t, err)

	_, err = g.AddNode(1, "B")
	require.Error(t, err)
	assert.True(t, types.IsInvalidGraph(err))
}

func TestGraph_RemoveNode_StillLinked(t *testing.T) {
	g := buildThreeNodeGraph(t)

	// Node 5 feeds node 9; removing it must fail at the point of the edit.
	err := g.RemoveNode(5)
	require.Error(t, err)
	assert.True(t, types.IsInvalidGraph(err))

	// Node 9 has no dependents and can go.
	require.NoError(t, g.RemoveNode(9))
	assert.Equal(t, []int{3, 5}, g.NodeIDs())

	// Node 3 still feeds node 5.
	err = g.RemoveNode(3)
	assert.True(t, types.IsInvalidGraph(err))

	require.NoError(t, g.RemoveNode(5))
	require.NoError(t, g.RemoveNode(3))
	assert.Zero(t, g.Len())
}

func TestGraph_Connect_Invalid(t *testing.T) {
	g := buildThreeNodeGraph(t)

	assert.True(t, types.IsInvalidGraph(g.Connect(99, 0, 5, "positive")))
	assert.True(t, types.IsInvalidGraph(g.Connect(3, 0, 99, "positive")))
	assert.True(t, types.IsInvalidGraph(g.Connect(3, -1, 5, "positive")))
	assert.True(t, types.IsInvalidGraph(g.Connect(3, 0, 5, "")))
}

func TestGraph_Disconnect(t *testing.T) {
	g := buildThreeNodeGraph(t)

	require.NoError(t, g.Disconnect(9, "images"))
	n, err := g.Node(9)
	require.NoError(t, err)
	_, err = n.Property("images")
	assert.True(t, types.IsNotFound(err))

	// Disconnecting a plain value property is a structural error.
	err = g.Disconnect(5, "seed")
	assert.True(t, types.IsInvalidGraph(err))

	assert.True(t, types.IsNotFound(g.Disconnect(99, "x")))
	assert.True(t, types.IsNotFound(g.Disconnect(5, "missing")))
}

func TestGraph_Links(t *testing.T) {
	g := buildThreeNodeGraph(t)

	links := g.Links()
	require.Len(t, links, 2)
	assert.Contains(t, links, Link{From: 3, FromSlot: 0, To: 5, Input: "positive"})
	assert.Contains(t, links, Link{From: 5, FromSlot: 0, To: 9, Input: "images"})
}

func TestGraph_NodesDeclarationOrder(t *testing.T) {
	g := New()
	for _, id := range []int{5, 2, 9} {
		_, err := g.AddNode(id, "T")
		require.NoError(t, err)
	}
	assert.Equal(t, []int{5, 2, 9}, g.NodeIDs())
}
