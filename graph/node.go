package graph

import (
	"encoding/json"
	"strconv"

	"github.com/comfygo/commander/types"
)

// OutputRef is a property value referencing another node's output slot.
type OutputRef struct {
	NodeID int
	Slot   int
}

// Node is one unit of work in a graph: a stable integer id, an opaque type
// tag interpreted by the server, an optional display name, and an ordered set
// of properties.
type Node struct {
	graph *Graph
	id    int
	class string
	title string

	props propMap

	// Unmodeled fields are carried verbatim so re-serialization is lossless.
	metaExtra  map[string]json.RawMessage // _meta entries other than title
	metaOrder  []string
	extra      map[string]json.RawMessage // unknown node-level fields
	extraOrder []string
	hasMeta    bool
}

// propMap keeps properties in declaration order.
type propMap struct {
	order []string
	vals  map[string]any
}

func newPropMap() propMap {
	return propMap{vals: make(map[string]any)}
}

func (p *propMap) get(name string) (any, bool) {
	v, ok := p.vals[name]
	return v, ok
}

func (p *propMap) set(name string, v any) {
	if _, ok := p.vals[name]; !ok {
		p.order = append(p.order, name)
	}
	p.vals[name] = v
}

func (p *propMap) delete(name string) {
	if _, ok := p.vals[name]; !ok {
		return
	}
	delete(p.vals, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// ID returns the node's id, unique within its graph.
func (n *Node) ID() int { return n.id }

// Type returns the node's type tag (the server-side behavior identifier).
func (n *Node) Type() string { return n.class }

// Name returns the node's display name, or "" if none was assigned.
func (n *Node) Name() string { return n.title }

// SetName assigns the node's display name. Display names are not required to
// be unique; name lookup fails loudly when they collide.
func (n *Node) SetName(name string) {
	n.title = name
	n.hasMeta = true
}

// Properties returns the node's property names in declaration order.
func (n *Node) Properties() []string {
	out := make([]string, len(n.props.order))
	copy(out, n.props.order)
	return out
}

// AddProperty declares a property with an initial value, returning its
// handle. Values are validated the same way as [Property.Set].
func (n *Node) AddProperty(name string, v any) (*Property, error) {
	if name == "" {
		return nil, types.Errorf(types.ErrInvalidGraph, "node %d: property name is empty", n.id)
	}
	p := &Property{node: n, name: name}
	if err := p.Set(v); err != nil {
		return nil, err
	}
	return p, nil
}

// Property resolves a handle to one property of the node.
func (n *Node) Property(name string) (*Property, error) {
	if _, ok := n.props.get(name); !ok {
		return nil, types.Errorf(types.ErrNotFound, "node %d has no property %q", n.id, name)
	}
	return &Property{node: n, name: name}, nil
}

// MustProperty is like Property but panics on a missing property. Intended
// for tests and static graphs where absence is a programming error.
func (n *Node) MustProperty(name string) *Property {
	p, err := n.Property(name)
	if err != nil {
		panic(err)
	}
	return p
}

// outputRefTo reports whether any property of n references node id.
func (n *Node) outputRefTo(id int) bool {
	for _, name := range n.props.order {
		if ref, ok := n.props.vals[name].(OutputRef); ok && ref.NodeID == id {
			return true
		}
	}
	return false
}

// numberFor renders a Go numeric as a JSON number token.
func numberFor(v any) (json.Number, bool) {
	switch x := v.(type) {
	case json.Number:
		return x, true
	case int:
		return json.Number(strconv.FormatInt(int64(x), 10)), true
	case int8:
		return json.Number(strconv.FormatInt(int64(x), 10)), true
	case int16:
		return json.Number(strconv.FormatInt(int64(x), 10)), true
	case int32:
		return json.Number(strconv.FormatInt(int64(x), 10)), true
	case int64:
		return json.Number(strconv.FormatInt(x, 10)), true
	case uint:
		return json.Number(strconv.FormatUint(uint64(x), 10)), true
	case uint8:
		return json.Number(strconv.FormatUint(uint64(x), 10)), true
	case uint16:
		return json.Number(strconv.FormatUint(uint64(x), 10)), true
	case uint32:
		return json.Number(strconv.FormatUint(uint64(x), 10)), true
	case uint64:
		return json.Number(strconv.FormatUint(x, 10)), true
	case float32:
		return json.Number(strconv.FormatFloat(float64(x), 'g', -1, 32)), true
	case float64:
		return json.Number(strconv.FormatFloat(x, 'g', -1, 64)), true
	}
	return "", false
}
