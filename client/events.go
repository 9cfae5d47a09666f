package client

import "fmt"

// EventType classifies a progress event.
type EventType string

const (
	// EventQueued reports queue position movement while the job waits.
	EventQueued EventType = "queued"
	// EventRunning reports that execution has started or moved to a node.
	EventRunning EventType = "running"
	// EventProgress reports a step counter within the currently running node.
	EventProgress EventType = "progress"
	// EventArtifact reports one output artifact becoming available.
	EventArtifact EventType = "artifact"
	// EventSucceeded, EventFailed, and EventCancelled are terminal.
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Event is one decoded progress event for a job.
type Event struct {
	Type  EventType
	JobID string

	// NodeID is the node currently executing (EventRunning) or the node
	// that produced the artifact (EventArtifact). Zero when not applicable.
	NodeID int

	// Value/Max carry the step counter for EventProgress.
	Value int
	Max   int

	// Ref is set for EventArtifact.
	Ref *ArtifactRef

	// Reason carries the server-reported failure reason for EventFailed.
	Reason string
}

func (e *Event) String() string {
	switch e.Type {
	case EventProgress:
		return fmt.Sprintf("progress %d/%d", e.Value, e.Max)
	case EventArtifact:
		return fmt.Sprintf("artifact node=%d slot=%d", e.NodeID, e.Ref.Slot)
	case EventFailed:
		return fmt.Sprintf("failed: %s", e.Reason)
	default:
		return string(e.Type)
	}
}

// ArtifactRef identifies one output artifact of a job. NodeID and Slot pin
// the artifact's place in the deterministic result ordering; the remaining
// fields locate the payload on the server.
type ArtifactRef struct {
	NodeID    int
	Slot      int
	Filename  string
	Subfolder string
	Kind      string // server-side location class, e.g. "output" or "temp"
}

// ArtifactPayload is a fetched artifact: raw bytes plus the declared media
// type. Persistence is the caller's responsibility.
type ArtifactPayload struct {
	Data      []byte
	MediaType string
}

// JobHandle identifies one submitted job. Handles are opaque to callers and
// independently trackable; two handles never share progress state.
type JobHandle struct {
	// ID is the submission id assigned by the server.
	ID string
	// ClientID is the progress-routing identity the job was submitted under.
	ClientID string
}
