// Package syncer replicates documents between the terminal's local store
// and the remote authoritative store. Sync is opportunistic: it degrades
// to offline mode instead of failing startup, and it never blocks the
// register.
package syncer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/kv"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
	"github.com/angelmondragon/tillpoint-terminal/pkg/metrics"
)

const (
	keyPullCheckpoint = "sync:pull_checkpoint"
	keyPushCheckpoint = "sync:push_checkpoint"
)

// RemoteStore is the slice of the remote client the synchronizer needs.
type RemoteStore interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, id string) (*docstore.Document, error)
	Put(ctx context.Context, doc docstore.Document) (*docstore.Document, error)
	Changes(ctx context.Context, since string) ([]docstore.Document, string, error)
	EnsureIndexes(ctx context.Context) error
}

// Result is what one sync run reports. It is a value, never a panic or a
// thrown error: callers branch on Success and log Err.
type Result struct {
	Success     bool   `json:"success"`
	DocsRead    int    `json:"docs_read"`
	DocsWritten int    `json:"docs_written"`
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
}

// Status is the synchronizer's externally visible state.
type Status struct {
	State      enums.SyncState `json:"state"`
	LastSyncAt time.Time       `json:"last_sync_at,omitzero"`
	LastError  string          `json:"last_error,omitempty"`
}

// Syncer coordinates pull and push replication for one terminal.
type Syncer struct {
	local       docstore.Replica
	remote      RemoteStore
	checkpoints kv.Store
	logg        *logger.Logger
	metrics     *metrics.SyncMetrics
	legTimeout  time.Duration

	mu         sync.Mutex
	inFlight   bool
	state      enums.SyncState
	lastSyncAt time.Time
	lastErr    error
}

// Params collects the synchronizer dependencies. Remote may be nil on a
// terminal configured for pure offline operation.
type Params struct {
	Local       docstore.Replica
	Remote      RemoteStore
	Checkpoints kv.Store
	Logger      *logger.Logger
	Metrics     *metrics.SyncMetrics
	LegTimeout  time.Duration
}

// New builds a synchronizer.
func New(params Params) (*Syncer, error) {
	if params.Local == nil {
		return nil, fmt.Errorf("local replica required")
	}
	if params.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint storage required")
	}

	legTimeout := params.LegTimeout
	if legTimeout <= 0 {
		legTimeout = 15 * time.Second
	}
	return &Syncer{
		local:       params.Local,
		remote:      params.Remote,
		checkpoints: params.Checkpoints,
		logg:        params.Logger,
		metrics:     params.Metrics,
		legTimeout:  legTimeout,
		state:       enums.SyncStateIdle,
	}, nil
}

// TestConnection probes both stores. It reports reachability and never
// returns an error: an unreachable remote is a normal operating mode.
func (s *Syncer) TestConnection(ctx context.Context) (localOK, remoteOK bool) {
	probeCtx, cancel := context.WithTimeout(ctx, s.legTimeout)
	defer cancel()

	localOK = s.local.Ping(probeCtx) == nil
	remoteOK = s.remote != nil && s.remote.Ping(probeCtx) == nil
	return localOK, remoteOK
}

// Status reports the current sync state.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{State: s.state, LastSyncAt: s.lastSyncAt}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

// PerformSync runs the requested replication legs, each bounded by the
// leg timeout, with no automatic retry. Overlapping runs against the
// same store pair are rejected; the caller sees that as a failed Result,
// not an exception.
func (s *Syncer) PerformSync(ctx context.Context, direction enums.SyncDirection) Result {
	if !direction.IsValid() {
		return s.failed(ctx, direction, pkgerrors.New(pkgerrors.CodeValidation, "unknown sync direction"))
	}
	if s.remote == nil {
		return s.failed(ctx, direction, pkgerrors.New(pkgerrors.CodeConfiguration, "no remote store configured"))
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		err := pkgerrors.New(pkgerrors.CodeStateConflict, "sync already in progress")
		return Result{Err: err, Error: err.Error()}
	}
	s.inFlight = true
	s.state = enums.SyncStateSyncing
	s.mu.Unlock()

	started := time.Now()
	result := s.run(ctx, direction)
	if s.metrics != nil {
		s.metrics.ObserveDuration(direction.String(), time.Since(started))
		s.metrics.AddDocsRead(direction.String(), result.DocsRead)
		s.metrics.AddDocsWritten(direction.String(), result.DocsWritten)
		if !result.Success {
			s.metrics.IncFailure(string(pkgerrors.As(result.Err).Code()))
		}
	}

	s.mu.Lock()
	s.inFlight = false
	if result.Success {
		s.state = enums.SyncStateSynced
		s.lastSyncAt = time.Now().UTC()
		s.lastErr = nil
	} else {
		s.state = enums.SyncStateError
		s.lastErr = result.Err
	}
	s.mu.Unlock()

	s.logResult(ctx, direction, result)
	return result
}

// Push replicates local changes outward. It exists so checkout can hand
// the synchronizer to the invoice manager as a best-effort pusher.
func (s *Syncer) Push(ctx context.Context) error {
	result := s.PerformSync(ctx, enums.SyncDirectionPush)
	return result.Err
}

func (s *Syncer) run(ctx context.Context, direction enums.SyncDirection) Result {
	var result Result

	if direction == enums.SyncDirectionPull || direction == enums.SyncDirectionBoth {
		read, err := s.pull(ctx)
		result.DocsRead = read
		if err != nil {
			result.Err = err
			result.Error = err.Error()
			return result
		}
	}
	if direction == enums.SyncDirectionPush || direction == enums.SyncDirectionBoth {
		written, err := s.push(ctx)
		result.DocsWritten = written
		if err != nil {
			result.Err = err
			result.Error = err.Error()
			return result
		}
	}

	result.Success = true
	return result
}

// pull drains the remote changes feed from the stored checkpoint and
// applies each document to the local replica. The checkpoint advances
// only after every document in the batch landed.
func (s *Syncer) pull(ctx context.Context) (int, error) {
	legCtx, cancel := context.WithTimeout(ctx, s.legTimeout)
	defer cancel()

	since, err := s.checkpoints.Get(legCtx, keyPullCheckpoint)
	if err != nil && !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return 0, err
	}

	docs, next, err := s.remote.Changes(legCtx, since)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range docs {
		if err := s.local.Apply(legCtx, docs[i]); err != nil {
			return applied, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "applying pulled document "+docs[i].ID)
		}
		applied++
	}

	if next != since {
		if err := s.checkpoints.Set(legCtx, keyPullCheckpoint, next); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// push sends locally written documents since the stored sequence to the
// remote. A revision conflict means the remote moved on; the local copy
// is rebased onto the remote revision and retried once, so the terminal's
// sale is never dropped.
func (s *Syncer) push(ctx context.Context) (int, error) {
	legCtx, cancel := context.WithTimeout(ctx, s.legTimeout)
	defer cancel()

	since, err := s.pushCheckpoint(legCtx)
	if err != nil {
		return 0, err
	}

	docs, next, err := s.local.Changes(legCtx, since)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range docs {
		if err := s.pushOne(legCtx, docs[i]); err != nil {
			return written, err
		}
		written++
	}

	if next != since {
		if err := s.checkpoints.Set(legCtx, keyPushCheckpoint, strconv.FormatInt(next, 10)); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (s *Syncer) pushOne(ctx context.Context, doc docstore.Document) error {
	_, err := s.remote.Put(ctx, doc)
	if err == nil {
		return nil
	}
	if !pkgerrors.Is(err, pkgerrors.CodeConflict) && !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return err
	}

	// The remote either never saw this document (first contact goes up
	// without a revision) or moved past our copy (rebase onto its
	// revision). One retry, then give up for this run.
	current, getErr := s.remote.Get(ctx, doc.ID)
	switch {
	case pkgerrors.Is(getErr, pkgerrors.CodeNotFound):
		doc.Rev = ""
	case getErr != nil:
		return err
	default:
		doc.Rev = current.Rev
	}
	_, err = s.remote.Put(ctx, doc)
	return err
}

func (s *Syncer) pushCheckpoint(ctx context.Context) (int64, error) {
	raw, err := s.checkpoints.Get(ctx, keyPushCheckpoint)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "corrupt push checkpoint")
	}
	return value, nil
}

func (s *Syncer) failed(ctx context.Context, direction enums.SyncDirection, err error) Result {
	s.mu.Lock()
	s.state = enums.SyncStateError
	s.lastErr = err
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncFailure(string(pkgerrors.As(err).Code()))
	}
	result := Result{Err: err, Error: err.Error()}
	s.logResult(ctx, direction, result)
	return result
}

// logResult classifies failures for the logs. The classes are purely
// diagnostic: control flow treats every failure the same way.
func (s *Syncer) logResult(ctx context.Context, direction enums.SyncDirection, result Result) {
	if s.logg == nil {
		return
	}

	ctx = s.logg.WithSyncOp(ctx, direction.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"docs_read":    result.DocsRead,
		"docs_written": result.DocsWritten,
	})
	if result.Success {
		s.logg.Info(ctx, "sync completed")
		return
	}

	ctx = s.logg.WithField(ctx, "failure_class", classifyFailure(result.Err))
	s.logg.Warn(ctx, "sync failed")
}

func classifyFailure(err error) string {
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden:
		return "auth"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeValidation, pkgerrors.CodeConflict, pkgerrors.CodeStateConflict:
		return "policy_rejection"
	case pkgerrors.CodeConnectivity:
		return "network_unreachable"
	default:
		return "other"
	}
}
