package graph

import (
	"encoding/json"

	"github.com/comfygo/commander/types"
)

// Property is a resolved handle to one property on one node. Reads reflect
// the node's current value; writes mutate the node in place and are visible
// to subsequent reads and serialization, but never to snapshots already
// taken.
type Property struct {
	node *Node
	name string
}

// Name returns the property's name.
func (p *Property) Name() string { return p.name }

// Node returns the node this property belongs to.
func (p *Property) Node() *Node { return p.node }

// Value returns the current value: a json.Number for numerics, string, bool,
// an [OutputRef] for links, nil for JSON null, or a json.RawMessage for
// structured values the client does not model.
func (p *Property) Value() any {
	v, _ := p.node.props.get(p.name)
	return v
}

// Set assigns a new value. Only coarse types are validated — numeric kinds,
// string, bool, and [OutputRef]; domain constraints are the server's job, so
// any caller-supplied value of an accepted kind passes through uninterpreted.
func (p *Property) Set(v any) error {
	switch x := v.(type) {
	case string:
		p.node.props.set(p.name, x)
		return nil
	case bool:
		p.node.props.set(p.name, x)
		return nil
	case OutputRef:
		p.node.props.set(p.name, x)
		return nil
	case *OutputRef:
		p.node.props.set(p.name, *x)
		return nil
	}
	if n, ok := numberFor(v); ok {
		p.node.props.set(p.name, n)
		return nil
	}
	return types.Errorf(types.ErrInvalidGraph,
		"property %q of node %d: unsupported value type %T (want number, string, bool, or OutputRef)",
		p.name, p.node.id, v)
}

// Int returns the value as int64.
func (p *Property) Int() (int64, error) {
	n, ok := p.Value().(json.Number)
	if !ok {
		return 0, types.Errorf(types.ErrInvalidGraph,
			"property %q of node %d is not numeric", p.name, p.node.id)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, types.Errorf(types.ErrInvalidGraph,
			"property %q of node %d is not an integer", p.name, p.node.id).WithCause(err)
	}
	return i, nil
}

// Float returns the value as float64.
func (p *Property) Float() (float64, error) {
	n, ok := p.Value().(json.Number)
	if !ok {
		return 0, types.Errorf(types.ErrInvalidGraph,
			"property %q of node %d is not numeric", p.name, p.node.id)
	}
	f, err := n.Float64()
	if err != nil {
		return 0, types.Errorf(types.ErrInvalidGraph,
			"property %q of node %d is not a float", p.name, p.node.id).WithCause(err)
	}
	return f, nil
}

// String returns the value as a string.
func (p *Property) String() (string, error) {
	s, ok := p.Value().(string)
	if !ok {
		return "", types.Errorf(types.ErrInvalidGraph,
			"property %q of node %d is not a string", p.name, p.node.id)
	}
	return s, nil
}

// Bool returns the value as a bool.
func (p *Property) Bool() (bool, error) {
	b, ok := p.Value().(bool)
	if !ok {
		return false, types.Errorf(types.ErrInvalidGraph,
			"property %q of node %d is not a bool", p.name, p.node.id)
	}
	return b, nil
}

// Ref returns the value as an output reference.
func (p *Property) Ref() (OutputRef, error) {
	r, ok := p.Value().(OutputRef)
	if !ok {
		return OutputRef{}, types.Errorf(types.ErrInvalidGraph,
			"property %q of node %d is not a link", p.name, p.node.id)
	}
	return r, nil
}
