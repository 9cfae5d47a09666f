package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/comfygo/commander/client"
	"github.com/comfygo/commander/graph"
	"github.com/comfygo/commander/internal/metrics"
	"github.com/comfygo/commander/types"
)

// State is an execution session's position in its lifecycle.
type State string

const (
	StateSubmitted State = "submitted"
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Session tracks one submitted job through to a terminal state.
type Session struct {
	conn    client.Connection
	job     client.JobHandle
	snap    *graph.Snapshot
	stream  client.ProgressStream
	logger  *zap.Logger
	metrics *metrics.Collector
	timeout time.Duration

	mu      sync.Mutex
	state   State
	reason  string
	refs    []client.ArtifactRef
	results *Results
}

// RunOption configures a session.
type RunOption func(*Session)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) RunOption {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics wires a prometheus collector into the session.
func WithMetrics(m *metrics.Collector) RunOption {
	return func(s *Session) { s.metrics = m }
}

// WithTimeout bounds the whole run. When it elapses, Wait issues a
// best-effort cancel, transitions the session to Cancelled locally, and
// returns a TIMEOUT error rather than blocking on the acknowledgment.
func WithTimeout(d time.Duration) RunOption {
	return func(s *Session) { s.timeout = d }
}

// Run snapshots g, submits it over conn, and opens the progress stream. The
// snapshot is immutable: mutating g afterwards does not affect this run.
func Run(ctx context.Context, conn client.Connection, g *graph.Graph, opts ...RunOption) (*Session, error) {
	snap, err := g.Snapshot()
	if err != nil {
		return nil, err
	}
	return RunSnapshot(ctx, conn, snap, opts...)
}

// RunSnapshot submits an already-captured snapshot. Useful for resubmitting
// the same frozen graph more than once.
func RunSnapshot(ctx context.Context, conn client.Connection, snap *graph.Snapshot, opts ...RunOption) (*Session, error) {
	s := &Session{
		conn:   conn,
		snap:   snap,
		logger: zap.NewNop(),
		state:  StateSubmitted,
	}
	for _, opt := range opts {
		opt(s)
	}

	job, err := conn.Submit(ctx, snap)
	if err != nil {
		return nil, err
	}
	s.job = job
	s.logger = s.logger.With(
		zap.String("component", "session"),
		zap.String("job_id", job.ID),
	)

	stream, err := conn.OpenProgress(ctx, job)
	if err != nil {
		return nil, err
	}
	s.stream = stream
	s.metrics.JobStarted()
	s.logger.Debug("session started")
	return s, nil
}

// Job returns the handle assigned at submission.
func (s *Session) Job() client.JobHandle { return s.job }

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FailureReason returns the server-reported reason after a Failed terminal
// state, or "" otherwise.
func (s *Session) FailureReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Wait consumes the progress stream until the job reaches a terminal state
// and returns the ordered result collection. A Failed job is not an error
// here; the collection is empty and the reason is retained. Wait returns a
// TIMEOUT error if the session's timeout elapses first.
func (s *Session) Wait(ctx context.Context) (*Results, error) {
	if done, res := s.alreadyTerminal(); done {
		return res, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for {
		ev, err := s.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.handleDeadline(ctx.Err())
			}
			return nil, err
		}
		s.metrics.Event(string(ev.Type))

		if terminal := s.apply(ev); terminal {
			s.metrics.JobFinished()
			_ = s.stream.Close()
			return s.buildResults(), nil
		}
	}
}

func (s *Session) alreadyTerminal() (bool, *Results) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return true, s.results
	}
	return false, nil
}

// apply maps one event to a state transition or artifact arrival. It returns
// true when the session reached a terminal state.
func (s *Session) apply(ev *client.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case client.EventQueued:
		if s.state == StateSubmitted {
			s.state = StateQueued
		}
	case client.EventRunning:
		if s.state == StateSubmitted || s.state == StateQueued {
			s.state = StateRunning
		}
		if ev.NodeID != 0 {
			s.logger.Debug("executing node", zap.Int("node_id", ev.NodeID))
		}
	case client.EventProgress:
		s.logger.Debug("progress", zap.Int("value", ev.Value), zap.Int("max", ev.Max))
	case client.EventArtifact:
		s.refs = append(s.refs, *ev.Ref)
		s.logger.Debug("artifact ready",
			zap.Int("node_id", ev.Ref.NodeID),
			zap.Int("slot", ev.Ref.Slot),
		)
	case client.EventSucceeded:
		s.state = StateSucceeded
	case client.EventFailed:
		s.state = StateFailed
		s.reason = ev.Reason
		s.logger.Warn("job failed", zap.String("reason", ev.Reason))
	case client.EventCancelled:
		s.state = StateCancelled
	}
	return s.state.Terminal()
}

// handleDeadline converts a context failure during Wait into the documented
// timeout behavior: best-effort cancel, local Cancelled state, TIMEOUT error.
func (s *Session) handleDeadline(cause error) error {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.conn.Cancel(cancelCtx, s.job); err != nil {
		s.logger.Warn("cancel after timeout failed", zap.Error(err))
	}

	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = StateCancelled
	}
	s.mu.Unlock()

	s.metrics.JobFinished()
	_ = s.stream.Close()
	return types.NewError(types.ErrTimeout, "job did not reach a terminal state in time").WithCause(cause)
}

// Cancel requests cooperative cancellation. On a session already in a
// terminal state this is a no-op, not an error.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	terminal := s.state.Terminal()
	s.mu.Unlock()
	if terminal {
		return nil
	}
	// The connection counts the cancellation.
	return s.conn.Cancel(ctx, s.job)
}

// buildResults freezes the collected artifact refs into the deterministic
// result order: producing node's snapshot declaration order, then slot.
// Arrival order over the stream is irrelevant.
func (s *Session) buildResults() *Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results != nil {
		return s.results
	}

	pos := make(map[int]int, len(s.snap.NodeOrder()))
	for i, id := range s.snap.NodeOrder() {
		pos[id] = i
	}
	refs := append([]client.ArtifactRef(nil), s.refs...)
	sort.SliceStable(refs, func(i, j int) bool {
		pi, pj := pos[refs[i].NodeID], pos[refs[j].NodeID]
		if pi != pj {
			return pi < pj
		}
		return refs[i].Slot < refs[j].Slot
	})

	s.results = newResults(s.conn, refs)
	return s.results
}
