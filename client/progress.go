package client

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/comfygo/commander/types"
)

// wsProgressStream adapts a websocket connection into a ProgressStream for
// one job. One server message can decode into several events (a node with
// multiple outputs), so decoded events queue in pending until consumed.
type wsProgressStream struct {
	conn   *websocket.Conn
	jobID  string
	logger *zap.Logger

	pending []*Event

	mu     sync.Mutex
	closed bool
}

func newWSProgressStream(conn *websocket.Conn, jobID string, logger *zap.Logger) *wsProgressStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &wsProgressStream{
		conn:   conn,
		jobID:  jobID,
		logger: logger.With(zap.String("component", "progress_stream"), zap.String("job_id", jobID)),
	}
}

// Next returns the next event for this stream's job, blocking until one
// arrives. Messages for other jobs and unrecognized message types are
// skipped for forward compatibility.
func (s *wsProgressStream) Next(ctx context.Context) (*Event, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}

		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, types.NewError(types.ErrTransport, "progress stream read").WithCause(err)
		}
		if typ != websocket.MessageText {
			// Binary frames carry live preview images; not modeled.
			continue
		}

		events := decodeServerMessage(data, s.jobID, s.logger)
		s.pending = append(s.pending, events...)
	}
}

// Close closes the underlying websocket. Safe to call more than once.
func (s *wsProgressStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close(websocket.StatusNormalClosure, "done")
}

// serverMessage is the envelope of every text frame on the event socket.
type serverMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// decodeServerMessage maps one raw server message to zero or more events for
// jobID. Unknown message types decode to nothing.
func decodeServerMessage(raw []byte, jobID string, logger *zap.Logger) []*Event {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Debug("skipping undecodable message", zap.Error(err))
		return nil
	}

	switch msg.Type {
	case "status":
		var d struct {
			Status struct {
				ExecInfo struct {
					QueueRemaining int `json:"queue_remaining"`
				} `json:"exec_info"`
			} `json:"status"`
		}
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return nil
		}
		// Status frames are per-client, not per-job; they signal queue
		// movement while our job waits.
		return []*Event{{
			Type:  EventQueued,
			JobID: jobID,
			Value: d.Status.ExecInfo.QueueRemaining,
		}}

	case "execution_start":
		var d struct {
			PromptID string `json:"prompt_id"`
		}
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != jobID {
			return nil
		}
		return []*Event{{Type: EventRunning, JobID: jobID}}

	case "executing":
		var d struct {
			Node     *string `json:"node"`
			PromptID string  `json:"prompt_id"`
		}
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != jobID {
			return nil
		}
		if d.Node == nil {
			// Legacy completion marker from servers that predate the
			// dedicated success message.
			return []*Event{{Type: EventSucceeded, JobID: jobID}}
		}
		nodeID, err := strconv.Atoi(*d.Node)
		if err != nil {
			return nil
		}
		return []*Event{{Type: EventRunning, JobID: jobID, NodeID: nodeID}}

	case "progress":
		var d struct {
			Value    int    `json:"value"`
			Max      int    `json:"max"`
			PromptID string `json:"prompt_id"`
		}
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return nil
		}
		if d.PromptID != "" && d.PromptID != jobID {
			return nil
		}
		return []*Event{{Type: EventProgress, JobID: jobID, Value: d.Value, Max: d.Max}}

	case "executed":
		var d struct {
			Node     string `json:"node"`
			PromptID string `json:"prompt_id"`
			Output   struct {
				Images []struct {
					Filename  string `json:"filename"`
					Subfolder string `json:"subfolder"`
					Type      string `json:"type"`
				} `json:"images"`
			} `json:"output"`
		}
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != jobID {
			return nil
		}
		nodeID, err := strconv.Atoi(d.Node)
		if err != nil {
			return nil
		}
		events := make([]*Event, 0, len(d.Output.Images))
		for slot, img := range d.Output.Images {
			events = append(events, &Event{
				Type:   EventArtifact,
				JobID:  jobID,
				NodeID: nodeID,
				Ref: &ArtifactRef{
					NodeID:    nodeID,
					Slot:      slot,
					Filename:  img.Filename,
					Subfolder: img.Subfolder,
					Kind:      img.Type,
				},
			})
		}
		return events

	case "execution_success":
		var d struct {
			PromptID string `json:"prompt_id"`
		}
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != jobID {
			return nil
		}
		return []*Event{{Type: EventSucceeded, JobID: jobID}}

	case "execution_error":
		var d struct {
			PromptID         string `json:"prompt_id"`
			NodeID           string `json:"node_id"`
			ExceptionMessage string `json:"exception_message"`
			ExceptionType    string `json:"exception_type"`
		}
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != jobID {
			return nil
		}
		reason := d.ExceptionMessage
		if reason == "" {
			reason = d.ExceptionType
		}
		nodeID, _ := strconv.Atoi(d.NodeID)
		return []*Event{{Type: EventFailed, JobID: jobID, NodeID: nodeID, Reason: reason}}

	case "execution_interrupted":
		var d struct {
			PromptID string `json:"prompt_id"`
		}
		if err := json.Unmarshal(msg.Data, &d); err != nil || d.PromptID != jobID {
			return nil
		}
		return []*Event{{Type: EventCancelled, JobID: jobID}}

	default:
		// Server-side additions are not fatal.
		logger.Debug("ignoring unrecognized message type", zap.String("type", msg.Type))
		return nil
	}
}
