package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/comfygo/commander/types"
)

// guiFormatKeys are top-level keys of the editor's canvas format, which this
// client does not execute directly. Detecting them lets Parse explain the
// problem instead of complaining about non-integer node ids.
var guiFormatKeys = map[string]bool{
	"nodes": true, "links": true, "groups": true,
	"config": true, "extra": true, "version": true,
}

// FromFile loads a graph from an API-format workflow file.
func FromFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	return Parse(data)
}

// SaveFile writes the graph to path in indented API format.
func (g *Graph) SaveFile(path string) error {
	data, err := g.MarshalAPI()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("indent workflow: %w", err)
	}
	buf.WriteByte('\n')
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write workflow file: %w", err)
	}
	return nil
}

// Parse decodes an API-format workflow document. Node declaration order is
// preserved, and node fields the client does not model are retained opaquely
// so that [Graph.MarshalAPI] reproduces them verbatim.
func Parse(data []byte) (*Graph, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, types.NewError(types.ErrInvalidGraph, "parse workflow").WithCause(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, types.NewError(types.ErrInvalidGraph, "workflow root must be a JSON object")
	}

	g := New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, types.NewError(types.ErrInvalidGraph, "parse workflow").WithCause(err)
		}
		key := keyTok.(string)

		id, err := strconv.Atoi(key)
		if err != nil {
			if guiFormatKeys[key] {
				return nil, types.NewError(types.ErrInvalidGraph,
					"document is a canvas-format workflow; export it in API format first")
			}
			return nil, types.Errorf(types.ErrInvalidGraph, "node id %q is not an integer", key)
		}
		if _, dup := g.nodes[id]; dup {
			return nil, types.Errorf(types.ErrInvalidGraph, "duplicate node id %d", id)
		}

		n, err := parseNode(g, id, dec)
		if err != nil {
			return nil, err
		}
		g.nodes[id] = n
		g.order = append(g.order, id)
	}
	if _, err := dec.Token(); err != nil {
		return nil, types.NewError(types.ErrInvalidGraph, "parse workflow").WithCause(err)
	}
	return g, nil
}

// parseNode decodes one node body from dec, which is positioned at the node's
// opening brace.
func parseNode(g *Graph, id int, dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidGraph, "node %d: parse", id).WithCause(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, types.Errorf(types.ErrInvalidGraph, "node %d must be a JSON object", id)
	}

	n := &Node{graph: g, id: id, props: newPropMap()}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, types.Errorf(types.ErrInvalidGraph, "node %d: parse", id).WithCause(err)
		}
		key := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, types.Errorf(types.ErrInvalidGraph, "node %d: field %q", id, key).WithCause(err)
		}

		switch key {
		case "class_type":
			if err := json.Unmarshal(raw, &n.class); err != nil {
				return nil, types.Errorf(types.ErrInvalidGraph, "node %d: class_type must be a string", id).WithCause(err)
			}
		case "inputs":
			if err := parseInputs(n, raw); err != nil {
				return nil, err
			}
		case "_meta":
			if err := parseMeta(n, raw); err != nil {
				return nil, err
			}
		default:
			if n.extra == nil {
				n.extra = make(map[string]json.RawMessage)
			}
			n.extra[key] = raw
			n.extraOrder = append(n.extraOrder, key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, types.Errorf(types.ErrInvalidGraph, "node %d: parse", id).WithCause(err)
	}
	return n, nil
}

// parseInputs decodes a node's inputs object preserving key order.
func parseInputs(n *Node, raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return types.Errorf(types.ErrInvalidGraph, "node %d: parse inputs", n.id).WithCause(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return types.Errorf(types.ErrInvalidGraph, "node %d: inputs must be a JSON object", n.id)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return types.Errorf(types.ErrInvalidGraph, "node %d: parse inputs", n.id).WithCause(err)
		}
		key := keyTok.(string)

		var valRaw json.RawMessage
		if err := dec.Decode(&valRaw); err != nil {
			return types.Errorf(types.ErrInvalidGraph, "node %d: input %q", n.id, key).WithCause(err)
		}
		n.props.set(key, decodeValue(valRaw))
	}
	return nil
}

// parseMeta decodes the _meta object, lifting the title into the node's
// display name and keeping everything else opaque.
func parseMeta(n *Node, raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return types.Errorf(types.ErrInvalidGraph, "node %d: parse _meta", n.id).WithCause(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return types.Errorf(types.ErrInvalidGraph, "node %d: _meta must be a JSON object", n.id)
	}
	n.hasMeta = true
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return types.Errorf(types.ErrInvalidGraph, "node %d: parse _meta", n.id).WithCause(err)
		}
		key := keyTok.(string)

		var valRaw json.RawMessage
		if err := dec.Decode(&valRaw); err != nil {
			return types.Errorf(types.ErrInvalidGraph, "node %d: _meta field %q", n.id, key).WithCause(err)
		}

		if key == "title" {
			var title string
			if err := json.Unmarshal(valRaw, &title); err == nil {
				n.title = title
				continue
			}
			// Non-string title: keep opaque rather than guessing.
		}
		if n.metaExtra == nil {
			n.metaExtra = make(map[string]json.RawMessage)
		}
		n.metaExtra[key] = valRaw
		n.metaOrder = append(n.metaOrder, key)
	}
	return nil
}

// decodeValue interprets one input value. Two-element [node-id, slot] arrays
// are links; numbers, strings, bools, and null map to their Go forms; any
// other shape is carried opaquely.
func decodeValue(raw json.RawMessage) any {
	if ref, ok := decodeOutputRef(raw); ok {
		return ref
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	switch v.(type) {
	case json.Number, string, bool, nil:
		return v
	default:
		return raw
	}
}

func decodeOutputRef(raw json.RawMessage) (OutputRef, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 2 {
		return OutputRef{}, false
	}
	var idStr string
	if err := json.Unmarshal(parts[0], &idStr); err != nil {
		return OutputRef{}, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return OutputRef{}, false
	}
	var slot int
	if err := json.Unmarshal(parts[1], &slot); err != nil {
		return OutputRef{}, false
	}
	return OutputRef{NodeID: id, Slot: slot}, true
}

// MarshalAPI renders the graph into the compact API format the submission
// endpoint expects, in node declaration order, with all retained opaque
// fields written back verbatim.
func (g *Graph) MarshalAPI() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, strconv.Itoa(id))
		buf.WriteByte(':')
		if err := g.nodes[id].marshalInto(&buf); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (n *Node) marshalInto(buf *bytes.Buffer) error {
	buf.WriteByte('{')

	buf.WriteString(`"inputs":`)
	if err := n.marshalInputs(buf); err != nil {
		return err
	}

	buf.WriteString(`,"class_type":`)
	writeJSONString(buf, n.class)

	if n.hasMeta {
		buf.WriteString(`,"_meta":{`)
		first := true
		if n.title != "" {
			buf.WriteString(`"title":`)
			writeJSONString(buf, n.title)
			first = false
		}
		for _, key := range n.metaOrder {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeJSONString(buf, key)
			buf.WriteByte(':')
			if err := writeRaw(buf, n.metaExtra[key]); err != nil {
				return types.Errorf(types.ErrInvalidGraph, "node %d: _meta field %q", n.id, key).WithCause(err)
			}
		}
		buf.WriteByte('}')
	}

	for _, key := range n.extraOrder {
		buf.WriteByte(',')
		writeJSONString(buf, key)
		buf.WriteByte(':')
		if err := writeRaw(buf, n.extra[key]); err != nil {
			return types.Errorf(types.ErrInvalidGraph, "node %d: field %q", n.id, key).WithCause(err)
		}
	}

	buf.WriteByte('}')
	return nil
}

func (n *Node) marshalInputs(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, name := range n.props.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, name)
		buf.WriteByte(':')
		if err := writeValue(buf, n.props.vals[name]); err != nil {
			return types.Errorf(types.ErrInvalidGraph, "node %d: input %q", n.id, name).WithCause(err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case json.Number:
		buf.WriteString(string(x))
	case string:
		writeJSONString(buf, x)
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case OutputRef:
		buf.WriteByte('[')
		writeJSONString(buf, strconv.Itoa(x.NodeID))
		buf.WriteByte(',')
		buf.WriteString(strconv.Itoa(x.Slot))
		buf.WriteByte(']')
	case json.RawMessage:
		return writeRaw(buf, x)
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

// writeRaw writes a retained raw value, compacted so output shape does not
// depend on the whitespace of the source document.
func writeRaw(buf *bytes.Buffer, raw json.RawMessage) error {
	return json.Compact(buf, raw)
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
