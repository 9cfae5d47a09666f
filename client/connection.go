package client

import (
	"context"

	"github.com/comfygo/commander/graph"
)

// ProgressStream delivers a job's progress events in server order. Next
// blocks until an event arrives, the stream ends, or ctx is done; events for
// other jobs and event types the client does not recognize are skipped, not
// surfaced.
type ProgressStream interface {
	Next(ctx context.Context) (*Event, error)
	Close() error
}

// Connection is the transport capability shared by the local and remote
// variants. Implementations must tolerate concurrent Submit calls from
// independent sessions without cross-talk.
//
// Submit is at-most-once per call: implementations never retry it, since a
// blind retry could duplicate a job. FetchArtifact is idempotent and safely
// retryable.
type Connection interface {
	// Submit sends a serialized graph snapshot for execution and returns
	// the job handle assigned by the server.
	Submit(ctx context.Context, snap *graph.Snapshot) (JobHandle, error)

	// OpenProgress opens the ordered progress event stream for a job.
	OpenProgress(ctx context.Context, job JobHandle) (ProgressStream, error)

	// FetchArtifact retrieves one artifact's payload.
	FetchArtifact(ctx context.Context, ref ArtifactRef) (*ArtifactPayload, error)

	// Cancel requests cancellation of a job. Cancelling a job that already
	// reached a terminal state is a no-op, not an error.
	Cancel(ctx context.Context, job JobHandle) error

	// Close releases any resources held by the connection.
	Close() error
}
