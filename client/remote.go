package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/comfygo/commander/graph"
	"github.com/comfygo/commander/internal/retry"
	"github.com/comfygo/commander/types"
)

// Worker is a provisioned remote instance running the execution server.
type Worker struct {
	ID       string
	Endpoint string // base URL of the server on the worker
}

// Provisioner acquires and releases remote workers. Authentication, billing,
// and teardown policy belong to the provisioner implementation; this client
// only consumes the capability.
type Provisioner interface {
	Acquire(ctx context.Context) (*Worker, error)
	Release(ctx context.Context, w *Worker) error
}

// RemoteConnection provisions (or attaches to) a remote worker on first use
// and then proxies the standard submission protocol to it. Worker
// acquisition failures are PROVISIONING errors — infrastructure lifecycle,
// not network I/O — so callers can distinguish them from TRANSPORT failures
// against an already-running server.
type RemoteConnection struct {
	prov   Provisioner
	opts   []Option
	logger *zap.Logger

	mu     sync.Mutex
	worker *Worker
	inner  *LocalConnection
}

// NewRemoteConnection creates a connection backed by prov. The given options
// are applied to the inner connection once a worker is acquired.
func NewRemoteConnection(prov Provisioner, opts ...Option) *RemoteConnection {
	logger := zap.NewNop()
	// Peek at the options for a logger so acquisition itself is logged too.
	probe := &LocalConnection{logger: logger}
	for _, opt := range opts {
		opt(probe)
	}
	return &RemoteConnection{
		prov:   prov,
		opts:   opts,
		logger: probe.logger.With(zap.String("component", "remote_connection")),
	}
}

// ensure acquires the worker exactly once. Concurrent callers share the
// acquisition.
func (r *RemoteConnection) ensure(ctx context.Context) (*LocalConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inner != nil {
		return r.inner, nil
	}

	w, err := r.prov.Acquire(ctx)
	if err != nil {
		if types.IsProvisioning(err) {
			return nil, err
		}
		return nil, types.NewError(types.ErrProvisioning, "acquire worker").WithCause(err)
	}

	r.logger.Info("worker acquired",
		zap.String("worker_id", w.ID),
		zap.String("endpoint", w.Endpoint),
	)
	r.worker = w
	r.inner = NewLocalConnection(w.Endpoint, r.opts...)
	return r.inner, nil
}

// Submit acquires a worker if needed, then submits. At-most-once: a submit
// that fails after the worker is up is not retried.
func (r *RemoteConnection) Submit(ctx context.Context, snap *graph.Snapshot) (JobHandle, error) {
	inner, err := r.ensure(ctx)
	if err != nil {
		return JobHandle{}, err
	}
	return inner.Submit(ctx, snap)
}

// OpenProgress opens the event stream on the acquired worker.
func (r *RemoteConnection) OpenProgress(ctx context.Context, job JobHandle) (ProgressStream, error) {
	inner, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return inner.OpenProgress(ctx, job)
}

// FetchArtifact fetches from the acquired worker.
func (r *RemoteConnection) FetchArtifact(ctx context.Context, ref ArtifactRef) (*ArtifactPayload, error) {
	inner, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return inner.FetchArtifact(ctx, ref)
}

// Cancel cancels on the acquired worker.
func (r *RemoteConnection) Cancel(ctx context.Context, job JobHandle) error {
	inner, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	return inner.Cancel(ctx, job)
}

// Close releases the worker back to the provisioner.
func (r *RemoteConnection) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worker == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := r.prov.Release(ctx, r.worker)
	if r.inner != nil {
		_ = r.inner.Close()
	}
	r.worker = nil
	r.inner = nil
	if err != nil {
		return types.NewError(types.ErrProvisioning, "release worker").WithCause(err)
	}
	return nil
}

var _ Connection = (*RemoteConnection)(nil)

// StaticProvisioner attaches to a worker that already exists at a fixed
// endpoint, waiting until its server answers readiness probes. It covers the
// rent-a-GPU flow where the instance is started out of band and the client
// only needs to wait for the server to come up.
type StaticProvisioner struct {
	Endpoint string
	WorkerID string

	// ReadyPolicy paces the readiness probes. Nil selects a patient default
	// suited to cold instance starts.
	ReadyPolicy *retry.Policy

	// HTTPClient overrides the probe client.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Acquire waits for the worker's server to answer, then hands it out.
func (p *StaticProvisioner) Acquire(ctx context.Context) (*Worker, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpc := p.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	policy := p.ReadyPolicy
	if policy == nil {
		policy = &retry.Policy{
			MaxRetries:   30,
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   1.5,
			Jitter:       true,
		}
	}

	probe := NewLocalConnection(p.Endpoint, WithHTTPClient(httpc))
	err := retry.New(policy, logger).Do(ctx, func() error {
		return probe.Ping(ctx)
	})
	if err != nil {
		return nil, types.Errorf(types.ErrProvisioning,
			"worker at %s never became ready", p.Endpoint).WithCause(err)
	}
	return &Worker{ID: p.WorkerID, Endpoint: p.Endpoint}, nil
}

// Release is a no-op: the instance's lifecycle is managed out of band.
func (p *StaticProvisioner) Release(ctx context.Context, w *Worker) error {
	return nil
}

var _ Provisioner = (*StaticProvisioner)(nil)
