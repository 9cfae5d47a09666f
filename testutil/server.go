package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

// FakeServer is an in-process execution server for tests. It accepts graph
// submissions, replays a scripted event sequence over the progress socket,
// serves artifact bytes, and records cancellations and fetch counts so tests
// can assert on transport behavior.
type FakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	nextJobID    int
	script       []string // raw JSON frames replayed to each progress socket
	artifacts    map[string][]byte // filename -> payload
	mediaTypes   map[string]string // filename -> content type
	submissions  [][]byte          // raw "prompt" documents received
	fetchCounts  map[string]int
	interrupts   int
	queueDeletes []string
	failSubmit   bool
	fetchFailures map[string]int // filename -> number of 500s before success
}

// NewFakeServer starts a fake server; it is torn down with the test.
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()
	f := &FakeServer{
		t:             t,
		artifacts:     make(map[string][]byte),
		mediaTypes:    make(map[string]string),
		fetchCounts:   make(map[string]int),
		fetchFailures: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", f.handlePrompt)
	mux.HandleFunc("/ws", f.handleWS)
	mux.HandleFunc("/view", f.handleView)
	mux.HandleFunc("/interrupt", f.handleInterrupt)
	mux.HandleFunc("/queue", f.handleQueue)
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"system":{"os":"fake"}}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// URL returns the server's base URL.
func (f *FakeServer) URL() string { return f.srv.URL }

// Script sets the event frames replayed verbatim to every progress socket.
// Occurrences of the placeholder {{job}} are replaced with the job id of the
// most recent submission.
func (f *FakeServer) Script(frames ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = frames
}

// AddArtifact registers payload bytes served by /view for filename.
func (f *FakeServer) AddArtifact(filename, mediaType string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts[filename] = payload
	f.mediaTypes[filename] = mediaType
}

// FailFetches makes the next n fetches of filename return 500 before
// succeeding, to exercise idempotent retry.
func (f *FakeServer) FailFetches(filename string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchFailures[filename] = n
}

// RejectSubmissions makes /prompt return 400 for all future submissions.
func (f *FakeServer) RejectSubmissions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSubmit = true
}

// FetchCount reports how many /view requests hit filename.
func (f *FakeServer) FetchCount(filename string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCounts[filename]
}

// Interrupts reports how many /interrupt requests arrived.
func (f *FakeServer) Interrupts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupts
}

// QueueDeletes reports the job ids deleted from the queue.
func (f *FakeServer) QueueDeletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queueDeletes...)
}

// Submissions returns the raw graph documents received so far.
func (f *FakeServer) Submissions() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.submissions...)
}

// LastJobID returns the job id assigned to the most recent submission.
func (f *FakeServer) LastJobID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("job-%d", f.nextJobID)
}

func (f *FakeServer) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt   json.RawMessage `json:"prompt"`
		ClientID string          `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit {
		http.Error(w, `{"error":"invalid prompt"}`, http.StatusBadRequest)
		return
	}
	f.nextJobID++
	f.submissions = append(f.submissions, body.Prompt)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"prompt_id": fmt.Sprintf("job-%d", f.nextJobID),
		"number":    f.nextJobID,
	})
}

func (f *FakeServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	f.mu.Lock()
	frames := append([]string(nil), f.script...)
	jobID := fmt.Sprintf("job-%d", f.nextJobID)
	f.mu.Unlock()

	for _, frame := range frames {
		frame = strings.ReplaceAll(frame, "{{job}}", jobID)
		if err := conn.Write(r.Context(), websocket.MessageText, []byte(frame)); err != nil {
			return
		}
	}
	// Keep the socket open until the client goes away, like a real server.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (f *FakeServer) handleView(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")

	f.mu.Lock()
	f.fetchCounts[filename]++
	if f.fetchFailures[filename] > 0 {
		f.fetchFailures[filename]--
		f.mu.Unlock()
		http.Error(w, "worker busy", http.StatusInternalServerError)
		return
	}
	payload, ok := f.artifacts[filename]
	mediaType := f.mediaTypes[filename]
	f.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", mediaType)
	_, _ = w.Write(payload)
}

func (f *FakeServer) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.interrupts++
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *FakeServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte(`{"queue_running":[],"queue_pending":[]}`))
		return
	}
	var body struct {
		Delete []string `json:"delete"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		f.mu.Lock()
		f.queueDeletes = append(f.queueDeletes, body.Delete...)
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}
