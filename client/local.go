package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/comfygo/commander/graph"
	"github.com/comfygo/commander/internal/metrics"
	"github.com/comfygo/commander/internal/retry"
	"github.com/comfygo/commander/types"
)

// LocalConnection talks directly to an execution server at a known address.
// It is safe for concurrent use by independent sessions: every Submit is
// routed under a fresh client identity, so progress streams never cross.
type LocalConnection struct {
	baseURL     string
	httpc       *http.Client
	logger      *zap.Logger
	metrics     *metrics.Collector
	fetchPolicy *retry.Policy
	retryer     *retry.Retryer
	limiter     *rate.Limiter
	newID       func() string
}

// Option configures a connection.
type Option func(*LocalConnection)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *LocalConnection) { c.logger = logger }
}

// WithHTTPClient overrides the HTTP client used for submit, fetch, and
// cancel requests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *LocalConnection) { c.httpc = httpc }
}

// WithMetrics wires a prometheus collector into the connection.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *LocalConnection) { c.metrics = m }
}

// WithFetchPolicy overrides the backoff policy for artifact fetches.
// Submission is never retried regardless of this policy.
func WithFetchPolicy(p *retry.Policy) Option {
	return func(c *LocalConnection) { c.fetchPolicy = p }
}

// WithFetchRate caps artifact fetches at rps requests per second with the
// given burst.
func WithFetchRate(rps float64, burst int) Option {
	return func(c *LocalConnection) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewLocalConnection creates a connection to the server at baseURL, e.g.
// "http://127.0.0.1:8188".
func NewLocalConnection(baseURL string, opts ...Option) *LocalConnection {
	c := &LocalConnection{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 120 * time.Second},
		logger:  zap.NewNop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "local_connection"))

	// Fetches retry only errors marked transient; a 404 stays a 404.
	policy := retry.DefaultPolicy()
	if c.fetchPolicy != nil {
		cp := *c.fetchPolicy
		policy = &cp
	}
	if policy.Retryable == nil {
		policy.Retryable = types.IsRetryable
	}
	c.retryer = retry.New(policy, c.logger)
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return c
}

// Ping probes server availability.
func (c *LocalConnection) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return types.NewError(types.ErrTransport, "build ping request").WithCause(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return types.NewError(types.ErrTransport, "server unreachable").WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return types.Errorf(types.ErrTransport, "ping: status %d", resp.StatusCode)
	}
	return nil
}

// Submit sends the snapshot for execution. The call is at-most-once: any
// failure is reported without retry, since retrying could queue the job
// twice.
func (c *LocalConnection) Submit(ctx context.Context, snap *graph.Snapshot) (JobHandle, error) {
	clientID := c.newID()
	body, err := json.Marshal(map[string]any{
		"prompt":    snap.RawMessage(),
		"client_id": clientID,
	})
	if err != nil {
		return JobHandle{}, types.NewError(types.ErrTransport, "encode submission").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return JobHandle{}, types.NewError(types.ErrTransport, "build submission request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.metrics.Submission("error")
		return JobHandle{}, types.NewError(types.ErrTransport, "submit graph").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.metrics.Submission("error")
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return JobHandle{}, types.Errorf(types.ErrTransport,
			"submit rejected: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.metrics.Submission("error")
		return JobHandle{}, types.NewError(types.ErrTransport, "decode submission response").WithCause(err)
	}
	if out.PromptID == "" {
		c.metrics.Submission("error")
		return JobHandle{}, types.NewError(types.ErrTransport, "server returned no job id")
	}

	c.metrics.Submission("ok")
	c.logger.Debug("graph submitted",
		zap.String("job_id", out.PromptID),
		zap.String("client_id", clientID),
	)
	return JobHandle{ID: out.PromptID, ClientID: clientID}, nil
}

// OpenProgress opens the event socket for a job.
func (c *LocalConnection) OpenProgress(ctx context.Context, job JobHandle) (ProgressStream, error) {
	wsURL, err := c.websocketURL(job.ClientID)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, types.NewError(types.ErrTransport, "open progress stream").WithCause(err)
	}
	// Artifact payloads can be large and arrive interleaved with previews.
	conn.SetReadLimit(64 << 20)
	return newWSProgressStream(conn, job.ID, c.logger), nil
}

func (c *LocalConnection) websocketURL(clientID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", types.NewError(types.ErrTransport, "invalid server address").WithCause(err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()
	return u.String(), nil
}

// FetchArtifact retrieves one artifact's bytes. The request is idempotent:
// transient failures are retried with backoff, and the media type comes from
// the response Content-Type.
func (c *LocalConnection) FetchArtifact(ctx context.Context, ref ArtifactRef) (*ArtifactPayload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{
		"filename":  {ref.Filename},
		"subfolder": {ref.Subfolder},
		"type":      {ref.Kind},
	}
	fetchURL := c.baseURL + "/view?" + q.Encode()

	start := time.Now()
	var payload *ArtifactPayload
	err := c.retryer.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
		if err != nil {
			return types.NewError(types.ErrTransport, "build fetch request").WithCause(err)
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return types.NewError(types.ErrTransport, "fetch artifact").WithCause(err).WithRetryable(true)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return types.Errorf(types.ErrTransport, "fetch artifact: status %d", resp.StatusCode).
				WithRetryable(true)
		}
		if resp.StatusCode >= 400 {
			return types.Errorf(types.ErrTransport,
				"fetch artifact %q: status %d", ref.Filename, resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return types.NewError(types.ErrTransport, "read artifact body").WithCause(err).WithRetryable(true)
		}
		payload = &ArtifactPayload{
			Data:      data,
			MediaType: resp.Header.Get("Content-Type"),
		}
		return nil
	})
	if err != nil {
		c.metrics.Fetch("error", time.Since(start), 0)
		return nil, err
	}

	c.metrics.Fetch("ok", time.Since(start), len(payload.Data))
	return payload, nil
}

// Cancel removes the job from the queue and interrupts it if it is already
// running. The server treats both as no-ops for jobs it no longer tracks, so
// cancelling a finished job does not error.
func (c *LocalConnection) Cancel(ctx context.Context, job JobHandle) error {
	c.metrics.Cancellation()

	if err := c.postJSON(ctx, "/queue", map[string]any{"delete": []string{job.ID}}); err != nil {
		return err
	}
	return c.postJSON(ctx, "/interrupt", nil)
}

func (c *LocalConnection) postJSON(ctx context.Context, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return types.NewError(types.ErrTransport, "encode request").WithCause(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return types.NewError(types.ErrTransport, "build request").WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return types.Errorf(types.ErrTransport, "%s request", path).WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return types.Errorf(types.ErrTransport, "%s: status %d", path, resp.StatusCode)
	}
	return nil
}

// History recovers the artifact refs of a completed job from the server's
// execution history, ordered by producing node id and slot. Useful when a
// progress stream was lost after the job finished.
func (c *LocalConnection) History(ctx context.Context, job JobHandle) ([]ArtifactRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(job.ID), nil)
	if err != nil {
		return nil, types.NewError(types.ErrTransport, "build history request").WithCause(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrTransport, "fetch history").WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, types.Errorf(types.ErrTransport, "history: status %d", resp.StatusCode)
	}

	var doc map[string]struct {
		Outputs map[string]struct {
			Images []struct {
				Filename  string `json:"filename"`
				Subfolder string `json:"subfolder"`
				Type      string `json:"type"`
			} `json:"images"`
		} `json:"outputs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, types.NewError(types.ErrTransport, "decode history").WithCause(err)
	}

	entry, ok := doc[job.ID]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "no history for job %s", job.ID)
	}

	var refs []ArtifactRef
	for nodeKey, output := range entry.Outputs {
		nodeID, err := strconv.Atoi(nodeKey)
		if err != nil {
			continue
		}
		for slot, img := range output.Images {
			refs = append(refs, ArtifactRef{
				NodeID:    nodeID,
				Slot:      slot,
				Filename:  img.Filename,
				Subfolder: img.Subfolder,
				Kind:      img.Type,
			})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].NodeID != refs[j].NodeID {
			return refs[i].NodeID < refs[j].NodeID
		}
		return refs[i].Slot < refs[j].Slot
	})
	return refs, nil
}

// QueueStatus is a point-in-time snapshot of the server's queue depth.
type QueueStatus struct {
	Running int
	Pending int
}

// Queue reports how many jobs are running and pending on the server.
func (c *LocalConnection) Queue(ctx context.Context) (QueueStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/queue", nil)
	if err != nil {
		return QueueStatus{}, types.NewError(types.ErrTransport, "build queue request").WithCause(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return QueueStatus{}, types.NewError(types.ErrTransport, "fetch queue status").WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return QueueStatus{}, types.Errorf(types.ErrTransport, "queue: status %d", resp.StatusCode)
	}

	var doc struct {
		Running []json.RawMessage `json:"queue_running"`
		Pending []json.RawMessage `json:"queue_pending"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return QueueStatus{}, types.NewError(types.ErrTransport, "decode queue status").WithCause(err)
	}
	return QueueStatus{Running: len(doc.Running), Pending: len(doc.Pending)}, nil
}

// Close releases connection resources. Progress streams are closed by their
// owners; the shared HTTP client needs no teardown.
func (c *LocalConnection) Close() error {
	c.httpc.CloseIdleConnections()
	return nil
}

// BaseURL returns the server address this connection targets.
func (c *LocalConnection) BaseURL() string { return c.baseURL }

var _ Connection = (*LocalConnection)(nil)
