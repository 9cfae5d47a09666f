// Package testutil provides an in-process fake execution server for tests.
// It speaks just enough of the submission protocol — /prompt, the /ws event
// socket, /view, /interrupt, /queue — to drive the client end to end without
// a real server or GPU.
package testutil
