// Package graph models a node-graph workload: nodes with typed properties,
// links between node slots, and a lossless (de)serialization of the server's
// API workflow format.
//
// A Graph is built by parsing a workflow file ([FromFile], [Parse]) or
// programmatically ([New], [Graph.AddNode], [Graph.Connect]). Nodes resolve
// by integer id or by display name, and properties mutate in place through
// [Property] handles. [Graph.Snapshot] freezes the current state into the
// immutable byte form that is submitted for execution; later mutation of the
// graph never affects a snapshot already taken.
//
// Fields the client does not model are retained opaquely per node and written
// back verbatim on serialization, so re-serializing never drops data the
// server needs.
//
// A Graph is not safe for concurrent use. Build and mutate it, then snapshot;
// mutating while a snapshot is being taken is a caller error.
package graph
