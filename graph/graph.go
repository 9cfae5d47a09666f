package graph

import (
	"encoding/json"

	"github.com/comfygo/commander/types"
)

// Graph is an ordered collection of nodes plus the links between their
// slots. Node order follows declaration order in the source document (or
// insertion order for built graphs) and determines artifact ordering for
// multi-output runs.
type Graph struct {
	order []int
	nodes map[int]*Node
}

// Link is a directed connection from one node's output slot to a named input
// of another node.
type Link struct {
	From     int
	FromSlot int
	To       int
	Input    string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[int]*Node)}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// NodeIDs returns node ids in declaration order.
func (g *Graph) NodeIDs() []int {
	out := make([]int, len(g.order))
	copy(out, g.order)
	return out
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "no node with id %d", id)
	}
	return n, nil
}

// NodeByName returns the node whose display name matches exactly. Display
// names are human-assigned and not guaranteed unique, so a name matching more
// than one node fails with AMBIGUOUS rather than silently picking one.
func (g *Graph) NodeByName(name string) (*Node, error) {
	return g.findOne(name, func(n *Node) bool { return n.title == name }, "name")
}

// NodeByType returns the single node with the given type tag. Like name
// lookup, multiple matches fail with AMBIGUOUS.
func (g *Graph) NodeByType(classType string) (*Node, error) {
	return g.findOne(classType, func(n *Node) bool { return n.class == classType }, "type")
}

func (g *Graph) findOne(key string, match func(*Node) bool, kind string) (*Node, error) {
	var found *Node
	for _, id := range g.order {
		n := g.nodes[id]
		if !match(n) {
			continue
		}
		if found != nil {
			return nil, types.Errorf(types.ErrAmbiguous,
				"%s %q matches nodes %d and %d; look up by id instead", kind, key, found.id, n.id)
		}
		found = n
	}
	if found == nil {
		return nil, types.Errorf(types.ErrNotFound, "no node with %s %q", kind, key)
	}
	return found, nil
}

// AddNode adds a node with the given id and type tag. The id must be unique
// within the graph.
func (g *Graph) AddNode(id int, classType string) (*Node, error) {
	if _, ok := g.nodes[id]; ok {
		return nil, types.Errorf(types.ErrInvalidGraph, "node id %d already exists", id)
	}
	n := &Node{graph: g, id: id, class: classType, props: newPropMap()}
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n, nil
}

// RemoveNode removes the node with the given id. Removal fails if any other
// node still links to it; the offending edit is rejected here rather than at
// submission time.
func (g *Graph) RemoveNode(id int) error {
	if _, ok := g.nodes[id]; !ok {
		return types.Errorf(types.ErrNotFound, "no node with id %d", id)
	}
	for _, otherID := range g.order {
		if otherID == id {
			continue
		}
		if g.nodes[otherID].outputRefTo(id) {
			return types.Errorf(types.ErrInvalidGraph,
				"cannot remove node %d: node %d still links to it", id, otherID)
		}
	}
	delete(g.nodes, id)
	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// Connect links output slot fromSlot of node from to the named input of node
// to. Both endpoints must exist and the slot must be non-negative; violations
// fail immediately with INVALID_GRAPH.
func (g *Graph) Connect(from, fromSlot, to int, input string) error {
	if _, ok := g.nodes[from]; !ok {
		return types.Errorf(types.ErrInvalidGraph, "link source node %d does not exist", from)
	}
	target, ok := g.nodes[to]
	if !ok {
		return types.Errorf(types.ErrInvalidGraph, "link target node %d does not exist", to)
	}
	if fromSlot < 0 {
		return types.Errorf(types.ErrInvalidGraph, "negative output slot %d", fromSlot)
	}
	if input == "" {
		return types.Errorf(types.ErrInvalidGraph, "link target input name is empty")
	}
	target.props.set(input, OutputRef{NodeID: from, Slot: fromSlot})
	return nil
}

// Disconnect removes the link feeding the named input of node to. The input
// itself is removed from the node.
func (g *Graph) Disconnect(to int, input string) error {
	target, ok := g.nodes[to]
	if !ok {
		return types.Errorf(types.ErrNotFound, "no node with id %d", to)
	}
	v, ok := target.props.get(input)
	if !ok {
		return types.Errorf(types.ErrNotFound, "node %d has no property %q", to, input)
	}
	if _, isLink := v.(OutputRef); !isLink {
		return types.Errorf(types.ErrInvalidGraph,
			"property %q of node %d is not a link", input, to)
	}
	target.props.delete(input)
	return nil
}

// Links returns all links in the graph, ordered by target node declaration
// order and then by the target's property order.
func (g *Graph) Links() []Link {
	var out []Link
	for _, id := range g.order {
		n := g.nodes[id]
		for _, name := range n.props.order {
			if ref, ok := n.props.vals[name].(OutputRef); ok {
				out = append(out, Link{From: ref.NodeID, FromSlot: ref.Slot, To: id, Input: name})
			}
		}
	}
	return out
}

// Snapshot renders the graph into its immutable submission form. The
// snapshot is decoupled from the graph: later mutation does not affect it.
func (g *Graph) Snapshot() (*Snapshot, error) {
	data, err := g.MarshalAPI()
	if err != nil {
		return nil, err
	}
	order := make([]int, len(g.order))
	copy(order, g.order)
	return &Snapshot{data: data, order: order}, nil
}

// Snapshot is an immutable serialized graph, captured at submission time.
type Snapshot struct {
	data  []byte
	order []int
}

// Bytes returns a copy of the serialized graph.
func (s *Snapshot) Bytes() []byte {
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// NodeOrder returns the node ids in the order they were declared when the
// snapshot was taken. Result collections use this to order artifacts
// deterministically regardless of event arrival order.
func (s *Snapshot) NodeOrder() []int {
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}

// RawMessage returns the serialized graph as a json.RawMessage for direct
// embedding in a submission request body.
func (s *Snapshot) RawMessage() json.RawMessage {
	return json.RawMessage(s.Bytes())
}
