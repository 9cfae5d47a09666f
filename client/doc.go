// Package client implements the transport layer for a graph execution
// server: submitting serialized graph snapshots, streaming progress events,
// fetching artifact payloads, and cancelling jobs.
//
// Two connection variants share the one [Connection] capability:
//
//   - [LocalConnection] talks directly to a known server address over HTTP
//     and WebSocket. Connection failures surface immediately as TRANSPORT
//     errors with no retry; the server is assumed reachable once configured.
//   - [RemoteConnection] first acquires a worker from a [Provisioner]
//     (start or attach to a remote instance), then proxies the same protocol
//     to it. Acquisition failures are PROVISIONING errors, distinct from
//     TRANSPORT, so callers can tell "couldn't get a machine" from "machine
//     unreachable".
//
// Submission is at-most-once per call: nothing in this package retries a
// submit. Artifact fetches are idempotent and are retried with backoff.
package client
