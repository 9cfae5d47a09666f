// Package session drives one graph execution from submission to a terminal
// state and collects its output artifacts.
//
// A [Session] owns a single job: [Run] snapshots the graph, submits it, and
// opens the progress stream; [Session.Wait] then consumes events until the
// job succeeds, fails, or is cancelled. Sessions never poll — they block on
// the stream and resume on arrival. Multiple sessions may run concurrently
// over one shared connection; each owns its own stream and artifact cache.
//
// A failed job is not an error at this layer: Wait returns the (empty)
// result collection and the session exposes the server-reported reason via
// [Session.FailureReason]. Callers that want hard failure check
// [Session.State] explicitly.
package session
