package graph

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// genWorkflowDoc draws a random API-format workflow document.
func genWorkflowDoc(t *rapid.T) string {
	ids := rapid.SliceOfNDistinct(rapid.IntRange(1, 200), 1, 8, rapid.ID[int]).Draw(t, "ids")

	doc := "{"
	for i, id := range ids {
		if i > 0 {
			doc += ","
		}
		doc += strconv.Quote(strconv.Itoa(id)) + ":" + genNodeBody(t, ids, i)
	}
	doc += "}"
	return doc
}

func genNodeBody(t *rapid.T, ids []int, self int) string {
	body := `{"inputs":{`
	numProps := rapid.IntRange(0, 5).Draw(t, "numProps")
	names := rapid.SliceOfNDistinct(
		rapid.StringMatching(`[a-z_]{1,12}`), numProps, numProps, rapid.ID[string],
	).Draw(t, "propNames")
	for i, name := range names {
		if i > 0 {
			body += ","
		}
		body += strconv.Quote(name) + ":" + genValue(t, ids, self)
	}
	body += `},"class_type":` + strconv.Quote(rapid.StringMatching(`[A-Z][A-Za-z]{2,16}`).Draw(t, "classType"))
	if rapid.Bool().Draw(t, "hasTitle") {
		body += `,"_meta":{"title":` + strconv.Quote(rapid.StringMatching(`[A-Za-z ]{1,20}`).Draw(t, "title")) + `}`
	}
	body += "}"
	return body
}

func genValue(t *rapid.T, ids []int, self int) string {
	switch rapid.IntRange(0, 4).Draw(t, "valueKind") {
	case 0:
		return strconv.FormatInt(rapid.Int64().Draw(t, "intVal"), 10)
	case 1:
		return strconv.Quote(rapid.StringMatching(`[ -~]{0,30}`).Draw(t, "strVal"))
	case 2:
		if rapid.Bool().Draw(t, "boolVal") {
			return "true"
		}
		return "false"
	case 3:
		// A link to an earlier node, when one exists.
		if self == 0 {
			return "null"
		}
		from := ids[rapid.IntRange(0, self-1).Draw(t, "linkFrom")]
		slot := rapid.IntRange(0, 3).Draw(t, "linkSlot")
		return `[` + strconv.Quote(strconv.Itoa(from)) + `,` + strconv.Itoa(slot) + `]`
	default:
		return "null"
	}
}

// Round-trip law: parse, marshal with zero mutations, parse again — the two
// parses must agree field for field.
func TestRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := genWorkflowDoc(t)

		g, err := Parse([]byte(doc))
		require.NoError(t, err)

		out, err := g.MarshalAPI()
		require.NoError(t, err)
		assert.JSONEq(t, doc, string(out))

		g2, err := Parse(out)
		require.NoError(t, err)
		out2, err := g2.MarshalAPI()
		require.NoError(t, err)
		assert.Equal(t, string(out), string(out2))
	})
}
