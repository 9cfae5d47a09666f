package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfygo/commander/types"
)

// fixtureAPIWorkflow is a trimmed text-to-image workflow in API format,
// including fields the client does not model (is_changed, custom _meta keys).
const fixtureAPIWorkflow = `{
  "3": {
    "inputs": {
      "text": "cute fennec girl in a victorian mansion",
      "clip": ["30", 1]
    },
    "class_type": "CLIPTextEncode",
    "_meta": {"title": "Positive Prompt", "collapsed": false}
  },
  "5": {
    "inputs": {
      "seed": 760504419884169,
      "steps": 20,
      "cfg": 7.5,
      "sampler_name": "euler",
      "add_noise": true,
      "model": ["30", 0],
      "positive": ["3", 0]
    },
    "class_type": "KSampler",
    "_meta": {"title": "KSampler"},
    "is_changed": ["760504419884169"]
  },
  "9": {
    "inputs": {
      "filename_prefix": "ComfyUI",
      "images": ["5", 0]
    },
    "class_type": "SaveImage"
  },
  "30": {
    "inputs": {
      "ckpt_name": "flux1-dev-fp8.safetensors"
    },
    "class_type": "CheckpointLoaderSimple"
  }
}`

func TestParse_DeclarationOrderPreserved(t *testing.T) {
	g, err := Parse([]byte(fixtureAPIWorkflow))
	require.NoError(t, err)

	assert.Equal(t, []int{3, 5, 9, 30}, g.NodeIDs())
}

func TestParse_NodeFields(t *testing.T) {
	g, err := Parse([]byte(fixtureAPIWorkflow))
	require.NoError(t, err)

	n, err := g.Node(3)
	require.NoError(t, err)
	assert.Equal(t, "CLIPTextEncode", n.Type())
	assert.Equal(t, "Positive Prompt", n.Name())
	assert.Equal(t, []string{"text", "clip"}, n.Properties())

	text, err := n.MustProperty("text").String()
	require.NoError(t, err)
	assert.Equal(t, "cute fennec girl in a victorian mansion", text)

	ref, err := n.MustProperty("clip").Ref()
	require.NoError(t, err)
	assert.Equal(t, OutputRef{NodeID: 30, Slot: 1}, ref)

	sampler, err := g.Node(5)
	require.NoError(t, err)
	noise, err := sampler.MustProperty("add_noise").Bool()
	require.NoError(t, err)
	assert.True(t, noise)
}

func TestParse_LinksDerivedFromInputs(t *testing.T) {
	g, err := Parse([]byte(fixtureAPIWorkflow))
	require.NoError(t, err)

	links := g.Links()
	assert.Contains(t, links, Link{From: 30, FromSlot: 1, To: 3, Input: "clip"})
	assert.Contains(t, links, Link{From: 5, FromSlot: 0, To: 9, Input: "images"})
	assert.Len(t, links, 4)
}

func TestRoundTrip_StructurallyEqual(t *testing.T) {
	g, err := Parse([]byte(fixtureAPIWorkflow))
	require.NoError(t, err)

	out, err := g.MarshalAPI()
	require.NoError(t, err)

	// Zero mutations: content must be identical, field order aside.
	assert.JSONEq(t, fixtureAPIWorkflow, string(out))

	// And the law holds one level deeper.
	g2, err := Parse(out)
	require.NoError(t, err)
	out2, err := g2.MarshalAPI()
	require.NoError(t, err)
	assert.Equal(t, string(out), string(out2))
}

func TestRoundTrip_UnknownFieldsRetained(t *testing.T) {
	g, err := Parse([]byte(fixtureAPIWorkflow))
	require.NoError(t, err)

	out, err := g.MarshalAPI()
	require.NoError(t, err)

	// is_changed is not modeled by the client but must survive.
	assert.Contains(t, string(out), `"is_changed":["760504419884169"]`)
	// As must unmodeled _meta entries.
	assert.Contains(t, string(out), `"collapsed":false`)
}

func TestRoundTrip_LargeSeedNotMangled(t *testing.T) {
	g, err := Parse([]byte(fixtureAPIWorkflow))
	require.NoError(t, err)

	out, err := g.MarshalAPI()
	require.NoError(t, err)
	assert.Contains(t, string(out), "760504419884169")
	assert.NotContains(t, string(out), "e+14")
}

func TestMarshal_MutationVisible(t *testing.T) {
	g, err := Parse([]byte(fixtureAPIWorkflow))
	require.NoError(t, err)

	n, err := g.Node(3)
	require.NoError(t, err)
	require.NoError(t, n.MustProperty("text").Set("A beautiful woman with blonde hair"))

	out, err := g.MarshalAPI()
	require.NoError(t, err)
	assert.Contains(t, string(out), "A beautiful woman with blonde hair")
	assert.NotContains(t, string(out), "fennec")
}

func TestSnapshot_IsolatedFromLaterMutation(t *testing.T) {
	g, err := Parse([]byte(fixtureAPIWorkflow))
	require.NoError(t, err)

	snap, err := g.Snapshot()
	require.NoError(t, err)
	submitted := string(snap.Bytes())

	sampler, err := g.Node(5)
	require.NoError(t, err)
	require.NoError(t, sampler.MustProperty("seed").Set(1))

	// The in-flight snapshot must not move.
	assert.Equal(t, submitted, string(snap.Bytes()))
	assert.Contains(t, submitted, "760504419884169")

	// The live graph did move.
	live, err := g.MarshalAPI()
	require.NoError(t, err)
	assert.NotEqual(t, submitted, string(live))
	assert.Contains(t, string(live), `"seed":1`)
}

func TestSnapshot_NodeOrder(t *testing.T) {
	g := New()
	for _, id := range []int{5, 2, 9} {
		_, err := g.AddNode(id, "T")
		require.NoError(t, err)
	}
	snap, err := g.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2, 9}, snap.NodeOrder())

	// Mutating the returned slice must not corrupt the snapshot.
	order := snap.NodeOrder()
	order[0] = 99
	assert.Equal(t, []int{5, 2, 9}, snap.NodeOrder())
}

func TestParse_RejectsCanvasFormat(t *testing.T) {
	doc := `{"nodes": [{"id": 1}], "links": [], "version": 0.4}`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.True(t, types.IsInvalidGraph(err))
	assert.Contains(t, err.Error(), "API format")
}

func TestParse_RejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `not json {`,
		"root array":      `[1, 2]`,
		"non-int node id": `{"abc": {"class_type": "X", "inputs": {}}}`,
		"duplicate id":    `{"1": {"class_type": "X", "inputs": {}}, "1": {"class_type": "Y", "inputs": {}}}`,
		"node not object": `{"1": 42}`,
		"inputs not object": `{"1": {"class_type": "X", "inputs": []}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, types.IsInvalidGraph(err), "got: %v", err)
		})
	}
}

func TestParse_NonLinkArrayStaysOpaque(t *testing.T) {
	doc := `{"1": {"class_type": "X", "inputs": {"stops": [1, 2, 3], "pair": ["a", "b"]}}}`
	g, err := Parse([]byte(doc))
	require.NoError(t, err)

	out, err := g.MarshalAPI()
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(out))
}

func TestFromFile_And_SaveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "workflow_api.json")
	require.NoError(t, os.WriteFile(src, []byte(fixtureAPIWorkflow), 0o644))

	g, err := FromFile(src)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	dst := filepath.Join(dir, "saved.json")
	require.NoError(t, g.SaveFile(dst))

	saved, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.JSONEq(t, fixtureAPIWorkflow, string(saved))
}

func TestFromFile_Missing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
