package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/comfygo/commander/client"
	"github.com/comfygo/commander/types"
)

// Artifact is one fetched output with its place in the result ordering.
type Artifact struct {
	NodeID    int
	Slot      int
	MediaType string
	Data      []byte
}

// Results is the ordered artifact collection of a finished session. Order is
// fixed when the session reaches its terminal state: producing node's
// declaration order in the submitted snapshot, then output slot index.
// Payload bytes are fetched lazily and cached; concurrent fetches of the
// same artifact share one transfer.
type Results struct {
	conn  client.Connection
	refs  []client.ArtifactRef
	group singleflight.Group

	mu    sync.Mutex
	cache map[string]*Artifact
}

func newResults(conn client.Connection, refs []client.ArtifactRef) *Results {
	return &Results{
		conn:  conn,
		refs:  refs,
		cache: make(map[string]*Artifact),
	}
}

// Len returns the number of artifacts.
func (r *Results) Len() int { return len(r.refs) }

// Refs returns the ordered artifact references without fetching payloads.
func (r *Results) Refs() []client.ArtifactRef {
	return append([]client.ArtifactRef(nil), r.refs...)
}

// Artifact fetches the i'th artifact. Out-of-range indexes are NOT_FOUND.
func (r *Results) Artifact(ctx context.Context, i int) (*Artifact, error) {
	if i < 0 || i >= len(r.refs) {
		return nil, types.Errorf(types.ErrNotFound, "artifact index %d out of range (have %d)", i, len(r.refs))
	}
	return r.fetch(ctx, r.refs[i])
}

// ByNode fetches the artifacts produced by one node, in slot order.
func (r *Results) ByNode(ctx context.Context, nodeID int) ([]*Artifact, error) {
	var out []*Artifact
	for _, ref := range r.refs {
		if ref.NodeID != nodeID {
			continue
		}
		a, err := r.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if out == nil {
		return nil, types.Errorf(types.ErrNotFound, "node %d produced no artifacts", nodeID)
	}
	return out, nil
}

// All fetches every artifact in order.
func (r *Results) All(ctx context.Context) ([]*Artifact, error) {
	out := make([]*Artifact, 0, len(r.refs))
	for _, ref := range r.refs {
		a, err := r.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Results) fetch(ctx context.Context, ref client.ArtifactRef) (*Artifact, error) {
	key := fmt.Sprintf("%d/%d/%s/%s/%s", ref.NodeID, ref.Slot, ref.Kind, ref.Subfolder, ref.Filename)

	r.mu.Lock()
	if a, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return a, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		payload, err := r.conn.FetchArtifact(ctx, ref)
		if err != nil {
			return nil, err
		}
		a := &Artifact{
			NodeID:    ref.NodeID,
			Slot:      ref.Slot,
			MediaType: payload.MediaType,
			Data:      payload.Data,
		}
		r.mu.Lock()
		r.cache[key] = a
		r.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}
