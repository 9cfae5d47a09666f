// Package types defines the shared error taxonomy used across the client.
//
// Errors carry a stable [ErrorCode] so callers can branch on failure class
// without string matching: graph resolution failures (NOT_FOUND, AMBIGUOUS,
// INVALID_GRAPH) are local and indicate the caller must fix the graph, while
// TRANSPORT, PROVISIONING, and TIMEOUT originate from the execution side.
package types
