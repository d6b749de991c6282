package syncer

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore/memory"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/kv"
)

// fakeRemote is a scripted remote store. It records pushed documents and
// serves a canned changes feed.
type fakeRemote struct {
	mu          sync.Mutex
	docs        map[string]docstore.Document
	feed        []docstore.Document
	feedSeq     string
	unreachable bool
	conflictOn  map[string]int
	puts        int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:       make(map[string]docstore.Document),
		conflictOn: make(map[string]int),
	}
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	if f.unreachable {
		return pkgerrors.New(pkgerrors.CodeConnectivity, "remote store unreachable")
	}
	return nil
}

func (f *fakeRemote) Get(ctx context.Context, id string) (*docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	out := doc
	return &out, nil
}

func (f *fakeRemote) Put(ctx context.Context, doc docstore.Document) (*docstore.Document, error) {
	if f.unreachable {
		return nil, pkgerrors.New(pkgerrors.CodeConnectivity, "remote store unreachable")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++

	if remaining := f.conflictOn[doc.ID]; remaining > 0 {
		f.conflictOn[doc.ID] = remaining - 1
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "stale document revision")
	}
	if existing, ok := f.docs[doc.ID]; ok && doc.Rev != existing.Rev {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "stale document revision")
	}
	if _, ok := f.docs[doc.ID]; !ok && doc.Rev != "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "stale document revision")
	}

	doc.Rev = docstore.NextRev(doc.Rev)
	f.docs[doc.ID] = doc
	out := doc
	return &out, nil
}

func (f *fakeRemote) Changes(ctx context.Context, since string) ([]docstore.Document, string, error) {
	if f.unreachable {
		return nil, since, pkgerrors.New(pkgerrors.CodeConnectivity, "remote store unreachable")
	}
	if since == f.feedSeq {
		return nil, since, nil
	}
	return append([]docstore.Document(nil), f.feed...), f.feedSeq, nil
}

func (f *fakeRemote) EnsureIndexes(ctx context.Context) error {
	return nil
}

func newTestSyncer(t *testing.T, remote RemoteStore) (*Syncer, *memory.Store, kv.Store) {
	t.Helper()

	local := memory.New()
	checkpoints, err := kv.OpenFileStore(t.TempDir())
	require.NoError(t, err)

	s, err := New(Params{
		Local:       local,
		Remote:      remote,
		Checkpoints: checkpoints,
		LegTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return s, local, checkpoints
}

func remoteDoc(t *testing.T, id string, docType enums.DocType, payload any, gen int) docstore.Document {
	t.Helper()
	doc, err := docstore.NewDocument(id, docType, payload)
	require.NoError(t, err)
	for i := 0; i < gen; i++ {
		doc.Rev = docstore.NextRev(doc.Rev)
	}
	return doc
}

func TestPullAppliesRemoteChanges(t *testing.T) {
	remote := newFakeRemote()
	remote.feed = []docstore.Document{
		remoteDoc(t, "item:coffee", enums.DocTypeItem, docstore.Item{ID: "item:coffee", Name: "Coffee"}, 1),
		remoteDoc(t, "customer:walkin", enums.DocTypeCustomer, docstore.Customer{ID: "customer:walkin", Name: "Walk-in"}, 1),
	}
	remote.feedSeq = "2-abc"

	s, local, checkpoints := newTestSyncer(t, remote)
	result := s.PerformSync(context.Background(), enums.SyncDirectionPull)

	require.True(t, result.Success)
	require.Equal(t, 2, result.DocsRead)
	require.Equal(t, 2, local.Len())

	seq, err := checkpoints.Get(context.Background(), keyPullCheckpoint)
	require.NoError(t, err)
	require.Equal(t, "2-abc", seq)

	// Re-running from the checkpoint reads nothing new.
	result = s.PerformSync(context.Background(), enums.SyncDirectionPull)
	require.True(t, result.Success)
	require.Zero(t, result.DocsRead)
}

func TestPushSendsLocalWritesOnly(t *testing.T) {
	remote := newFakeRemote()
	s, local, _ := newTestSyncer(t, remote)
	ctx := context.Background()

	// One locally written doc, one replicated-in doc.
	localDoc, err := docstore.NewDocument("item:coffee", enums.DocTypeItem, docstore.Item{ID: "item:coffee", Name: "Coffee"})
	require.NoError(t, err)
	_, err = local.Put(ctx, localDoc)
	require.NoError(t, err)

	pulled := remoteDoc(t, "item:tea", enums.DocTypeItem, docstore.Item{ID: "item:tea", Name: "Tea"}, 1)
	require.NoError(t, local.Apply(ctx, pulled))

	result := s.PerformSync(ctx, enums.SyncDirectionPush)
	require.True(t, result.Success)
	require.Equal(t, 1, result.DocsWritten)

	_, ok := remote.docs["item:coffee"]
	require.True(t, ok)
	_, ok = remote.docs["item:tea"]
	require.False(t, ok, "replicated-in documents must never echo back")
}

func TestPushCheckpointPreventsResend(t *testing.T) {
	remote := newFakeRemote()
	s, local, _ := newTestSyncer(t, remote)
	ctx := context.Background()

	doc, err := docstore.NewDocument("item:coffee", enums.DocTypeItem, docstore.Item{ID: "item:coffee", Name: "Coffee"})
	require.NoError(t, err)
	_, err = local.Put(ctx, doc)
	require.NoError(t, err)

	require.True(t, s.PerformSync(ctx, enums.SyncDirectionPush).Success)
	require.True(t, s.PerformSync(ctx, enums.SyncDirectionPush).Success)

	// First contact costs a probe put plus the revision-free retry; the
	// second run must add nothing.
	remote.mu.Lock()
	defer remote.mu.Unlock()
	require.Equal(t, 2, remote.puts)
}

func TestPushRebasesOnConflict(t *testing.T) {
	remote := newFakeRemote()
	s, local, _ := newTestSyncer(t, remote)
	ctx := context.Background()

	// The remote already carries a newer revision of the document.
	upstream := remoteDoc(t, "item:coffee", enums.DocTypeItem, docstore.Item{ID: "item:coffee", Name: "Coffee (HQ)"}, 2)
	remote.docs["item:coffee"] = upstream

	doc, err := docstore.NewDocument("item:coffee", enums.DocTypeItem, docstore.Item{ID: "item:coffee", Name: "Coffee"})
	require.NoError(t, err)
	_, err = local.Put(ctx, doc)
	require.NoError(t, err)

	result := s.PerformSync(ctx, enums.SyncDirectionPush)
	require.True(t, result.Success)
	require.Equal(t, 1, result.DocsWritten)
	require.Equal(t, int64(3), docstore.RevGeneration(remote.docs["item:coffee"].Rev))
}

func TestBothRunsPullThenPush(t *testing.T) {
	remote := newFakeRemote()
	remote.feed = []docstore.Document{
		remoteDoc(t, "item:tea", enums.DocTypeItem, docstore.Item{ID: "item:tea", Name: "Tea"}, 1),
	}
	remote.feedSeq = "1-abc"

	s, local, _ := newTestSyncer(t, remote)
	ctx := context.Background()

	doc, err := docstore.NewDocument("item:coffee", enums.DocTypeItem, docstore.Item{ID: "item:coffee", Name: "Coffee"})
	require.NoError(t, err)
	_, err = local.Put(ctx, doc)
	require.NoError(t, err)

	result := s.PerformSync(ctx, enums.SyncDirectionBoth)
	require.True(t, result.Success)
	require.Equal(t, 1, result.DocsRead)
	require.Equal(t, 1, result.DocsWritten)
	require.Equal(t, enums.SyncStateSynced, s.Status().State)
}

func TestSyncFailureNeverPanicsAndSetsErrorState(t *testing.T) {
	remote := newFakeRemote()
	remote.unreachable = true

	s, _, _ := newTestSyncer(t, remote)
	result := s.PerformSync(context.Background(), enums.SyncDirectionBoth)

	require.False(t, result.Success)
	require.True(t, pkgerrors.Is(result.Err, pkgerrors.CodeConnectivity))

	status := s.Status()
	require.Equal(t, enums.SyncStateError, status.State)
	require.NotEmpty(t, status.LastError)
}

func TestOverlappingSyncRejected(t *testing.T) {
	remote := newFakeRemote()
	s, _, _ := newTestSyncer(t, remote)

	s.mu.Lock()
	s.inFlight = true
	s.mu.Unlock()

	result := s.PerformSync(context.Background(), enums.SyncDirectionPull)
	require.False(t, result.Success)
	require.True(t, pkgerrors.Is(result.Err, pkgerrors.CodeStateConflict))
}

func TestTestConnectionNeverErrors(t *testing.T) {
	remote := newFakeRemote()
	s, _, _ := newTestSyncer(t, remote)

	localOK, remoteOK := s.TestConnection(context.Background())
	require.True(t, localOK)
	require.True(t, remoteOK)

	remote.unreachable = true
	localOK, remoteOK = s.TestConnection(context.Background())
	require.True(t, localOK)
	require.False(t, remoteOK)
}

type profileStub struct {
	calls int
	err   error
}

func (p *profileStub) InitializePOSData(ctx context.Context, profileName string) error {
	p.calls++
	return p.err
}

func collectSteps(steps *[]string) StepReporter {
	return func(step string, status StepStatus, details string) {
		*steps = append(*steps, step+":"+string(status))
	}
}

func TestInitializeDatabaseHappyPath(t *testing.T) {
	remote := newFakeRemote()
	remote.feed = []docstore.Document{
		remoteDoc(t, "item:coffee", enums.DocTypeItem, docstore.Item{ID: "item:coffee", Name: "Coffee"}, 1),
	}
	remote.feedSeq = "1-abc"

	s, _, _ := newTestSyncer(t, remote)
	profiles := &profileStub{}
	var steps []string

	report := s.InitializeDatabase(context.Background(), InitOptions{
		SyncOnStartup: true,
		ProfileName:   "Front Register",
		Profiles:      profiles,
		Report:        collectSteps(&steps),
	})

	require.Nil(t, report.Failed)
	require.False(t, report.Offline)
	require.NotNil(t, report.SyncResult)
	require.True(t, report.SyncResult.Success)
	require.Equal(t, 1, report.Census["item"])
	require.Equal(t, 1, profiles.calls)

	require.Contains(t, steps, "connection_test:success")
	require.Contains(t, steps, "initial_sync:success")
	require.Contains(t, steps, "ensure_indexes:success")
	require.Contains(t, steps, "document_census:success")
	require.Contains(t, steps, "profile_init:success")
}

func TestInitializeDatabaseDegradesOffline(t *testing.T) {
	remote := newFakeRemote()
	remote.unreachable = true

	s, _, _ := newTestSyncer(t, remote)
	profiles := &profileStub{}
	var steps []string

	report := s.InitializeDatabase(context.Background(), InitOptions{
		SyncOnStartup: true,
		Profiles:      profiles,
		Report:        collectSteps(&steps),
	})

	// Unreachable remote degrades to offline mode; startup still succeeds.
	require.Nil(t, report.Failed)
	require.True(t, report.Offline)
	require.Nil(t, report.SyncResult)
	require.Equal(t, 1, profiles.calls)
	require.Contains(t, steps, "initial_sync:success")
}

func TestInitializeDatabaseProfileFailureIsSoft(t *testing.T) {
	remote := newFakeRemote()
	s, _, _ := newTestSyncer(t, remote)
	profiles := &profileStub{err: pkgerrors.New(pkgerrors.CodeConfiguration, "no POS profile selected")}

	report := s.InitializeDatabase(context.Background(), InitOptions{
		Profiles: profiles,
	})

	require.Nil(t, report.Failed)
	require.NotNil(t, report.SoftErrors)
	require.Contains(t, report.SoftDetails, "no POS profile selected")
}

func TestPushCheckpointStoredAsInteger(t *testing.T) {
	remote := newFakeRemote()
	s, local, checkpoints := newTestSyncer(t, remote)
	ctx := context.Background()

	doc, err := docstore.NewDocument("item:coffee", enums.DocTypeItem, docstore.Item{ID: "item:coffee", Name: "Coffee"})
	require.NoError(t, err)
	_, err = local.Put(ctx, doc)
	require.NoError(t, err)

	require.True(t, s.PerformSync(ctx, enums.SyncDirectionPush).Success)

	raw, err := checkpoints.Get(ctx, keyPushCheckpoint)
	require.NoError(t, err)
	_, err = strconv.ParseInt(raw, 10, 64)
	require.NoError(t, err)
}
