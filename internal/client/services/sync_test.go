package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/client/client"
	"github.com/dmitrijs2005/tasksync/internal/client/config"
	"github.com/dmitrijs2005/tasksync/internal/client/models"
	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	sc "github.com/dmitrijs2005/tasksync/internal/server/config"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/repomanager"
	serversvc "github.com/dmitrijs2005/tasksync/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback is a client.Client that hands requests straight to a server
// SyncService, encoding both directions with the wire codec.
type loopback struct {
	server  *serversvc.SyncService
	account string

	mu     sync.Mutex
	token  string
	err    error
	after  func(*proto.SyncResponse)
	calls  int
	closed bool
}

func (l *loopback) Sync(ctx context.Context, req *proto.SyncRequest) (*proto.SyncResponse, error) {
	l.mu.Lock()
	l.calls++
	err, after := l.err, l.after
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var wireReq proto.SyncRequest
	if err := roundTrip(req, &wireReq); err != nil {
		return nil, err
	}
	resp, err := l.server.Sync(ctx, l.account, &wireReq)
	if errors.Is(err, common.ErrBatchTooLarge) {
		return nil, fmt.Errorf("%w: %v", client.ErrBatchTooLarge, err)
	}
	if err != nil {
		return nil, err
	}
	var wireResp proto.SyncResponse
	if err := roundTrip(resp, &wireResp); err != nil {
		return nil, err
	}
	if after != nil {
		after(&wireResp)
	}
	return &wireResp, nil
}

func roundTrip(in, out any) error {
	b, err := proto.Codec{}.Marshal(in)
	if err != nil {
		return err
	}
	return proto.Codec{}.Unmarshal(b, out)
}

func (l *loopback) Ping(context.Context) error { return nil }

func (l *loopback) SetToken(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.token = token
}

func (l *loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

type testServer struct {
	svc     *serversvc.SyncService
	account string
}

func newTestServer(t *testing.T) *testServer {
	return newLimitedServer(t, 100)
}

func newLimitedServer(t *testing.T, maxBatch int) *testServer {
	t.Helper()
	m := repomanager.NewInMemoryRepositoryManager()
	a, err := m.Repos().Accounts.GetOrCreate(context.Background(), "acc-1", "alice")
	require.NoError(t, err)
	return &testServer{
		svc:     serversvc.NewSyncService(m, &sc.Config{MaxBatchSize: maxBatch}, logging.Discard()),
		account: a.ID,
	}
}

type device struct {
	records *recordService
	sync    *syncService
	store   *client.Store
	link    *loopback
}

func syncConfig() *config.Config {
	return &config.Config{ServerURL: "http://sync.test", Token: "tok", Transport: client.TransportHTTP, SyncEnabled: true}
}

func newDevice(t *testing.T, srv *testServer, opts ...SyncOption) *device {
	t.Helper()
	rs, store := newRecords(t)
	link := &loopback{server: srv.svc, account: srv.account}

	opts = append([]SyncOption{WithClientFactory(func(_, _, token string) (client.Client, error) {
		link.SetToken(token)
		return link, nil
	})}, opts...)
	ss, err := NewSyncService(store, rs, syncConfig(), logging.Discard(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	return &device{records: rs, sync: ss.(*syncService), store: store, link: link}
}

func (d *device) mustSync(t *testing.T) *SyncResult {
	t.Helper()
	res, err := d.sync.Sync(context.Background())
	require.NoError(t, err)
	return res
}

func (d *device) task(t *testing.T, id string) *models.Task {
	t.Helper()
	rec, err := d.store.Repos().Records.Get(context.Background(), proto.EntityTask, id)
	require.NoError(t, err)
	return rec.(*models.Task)
}

func (d *device) pending(t *testing.T) int {
	t.Helper()
	n, err := d.store.Repos().Outbox.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSync_NotConfigured(t *testing.T) {
	rs, store := newRecords(t)
	cfg := syncConfig()
	cfg.SyncEnabled = false

	ss, err := NewSyncService(store, rs, cfg, logging.Discard(),
		WithClientFactory(func(_, _, _ string) (client.Client, error) { return &loopback{}, nil }))
	require.NoError(t, err)

	_, err = ss.Sync(context.Background())
	assert.ErrorIs(t, err, client.ErrNotConfigured)
	_, err = ss.Resync(context.Background())
	assert.ErrorIs(t, err, client.ErrNotConfigured)

	st, err := ss.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Configured)
}

func TestSync_EmptyRound(t *testing.T) {
	srv := newTestServer(t)
	d := newDevice(t, srv)

	res := d.mustSync(t)
	assert.Zero(t, res.Sent)
	assert.Zero(t, res.Applied)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 1, d.link.calls)

	st, err := d.sync.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.False(t, st.LastSync.IsZero())
	assert.Empty(t, st.LastError)
	assert.False(t, st.Syncing)
}

func TestSync_TwoDevicesConverge(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	a, b := newDevice(t, srv), newDevice(t, srv)

	task, err := a.records.CreateTask(ctx, "buy milk", "")
	require.NoError(t, err)
	tag, err := a.records.CreateTag(ctx, "shop", "")
	require.NoError(t, err)
	require.NoError(t, a.records.TagTask(ctx, task.ID, tag.ID))

	res := a.mustSync(t)
	assert.Equal(t, 3, res.Sent)
	assert.Zero(t, res.Applied, "own changes are not echoed back")
	assert.Zero(t, a.pending(t))

	res = b.mustSync(t)
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, "buy milk", b.task(t, task.ID).Title)
	tags, err := b.records.TagsOfTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "shop", tags[0].Name)

	_, err = b.records.ToggleTask(ctx, task.ID)
	require.NoError(t, err)
	b.mustSync(t)

	res = a.mustSync(t)
	assert.Equal(t, 1, res.Applied)
	assert.True(t, a.task(t, task.ID).Completed)
	assert.Equal(t, b.sync.snapshotWatermark(t), a.sync.snapshotWatermark(t))
}

func (s *syncService) snapshotWatermark(t *testing.T) int64 {
	t.Helper()
	st, err := s.Status(context.Background())
	require.NoError(t, err)
	return st.Watermark
}

func TestSync_ConcurrentEdits_LaterStampWins(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	a, b := newDevice(t, srv), newDevice(t, srv)
	t0 := time.UnixMicro(1_000_000)
	a.records.now = fixedClock(t0)
	b.records.now = fixedClock(t0)

	task, err := a.records.CreateTask(ctx, "draft", "")
	require.NoError(t, err)
	a.mustSync(t)
	b.mustSync(t)

	a.records.now = fixedClock(t0.Add(20 * time.Microsecond))
	b.records.now = fixedClock(t0.Add(10 * time.Microsecond))
	require.NoError(t, a.records.Rename(ctx, proto.EntityTask, task.ID, "from a"))
	require.NoError(t, b.records.Rename(ctx, proto.EntityTask, task.ID, "from b"))

	a.mustSync(t)
	res := b.mustSync(t)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, proto.ReasonSuperseded, res.Conflicts[0].Reason)
	assert.Equal(t, task.ID, res.Conflicts[0].ID)
	assert.Equal(t, 1, res.Applied, "the winner comes back with the conflict")
	assert.Zero(t, b.pending(t), "superseded changes are confirmed too")

	a.mustSync(t)
	assert.Equal(t, "from a", a.task(t, task.ID).Title)
	assert.Equal(t, "from a", b.task(t, task.ID).Title)
}

func TestSync_DeleteAgainstOlderEdit(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	a, b := newDevice(t, srv), newDevice(t, srv)
	t0 := time.UnixMicro(2_000_000)
	a.records.now = fixedClock(t0)
	b.records.now = fixedClock(t0)

	task, err := a.records.CreateTask(ctx, "x", "")
	require.NoError(t, err)
	a.mustSync(t)
	b.mustSync(t)

	b.records.now = fixedClock(t0.Add(5 * time.Microsecond))
	a.records.now = fixedClock(t0.Add(9 * time.Microsecond))
	require.NoError(t, b.records.Rename(ctx, proto.EntityTask, task.ID, "edited"))
	require.NoError(t, a.records.Delete(ctx, proto.EntityTask, task.ID))

	b.mustSync(t)
	a.mustSync(t)
	b.mustSync(t)

	for _, d := range []*device{a, b} {
		_, err := d.store.Repos().Records.Get(ctx, proto.EntityTask, task.ID)
		assert.ErrorIs(t, err, common.ErrorNotFound)
		ts, err := d.store.Repos().Records.Tombstone(ctx, proto.EntityTask, task.ID)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(9*time.Microsecond).UnixMicro(), ts.DeletedAt)
	}
}

func TestSync_TransportFailureKeepsOutbox(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	d := newDevice(t, srv)

	_, err := d.records.CreateTask(ctx, "a", "")
	require.NoError(t, err)

	d.link.err = client.ErrUnavailable
	_, err = d.sync.Sync(ctx)
	assert.ErrorIs(t, err, client.ErrUnavailable)
	assert.Equal(t, 1, d.pending(t))

	st, err := d.sync.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, st.LastError, "unavailable")
	assert.Zero(t, st.Watermark)
	assert.True(t, st.LastSync.IsZero())

	d.link.err = nil
	res := d.mustSync(t)
	assert.Equal(t, 1, res.Sent)
	assert.Zero(t, d.pending(t))

	st, err = d.sync.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.LastError)
	assert.Positive(t, st.Watermark)
}

func TestSync_WatermarkRegression(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	d := newDevice(t, srv)

	_, err := d.records.CreateTask(ctx, "a", "")
	require.NoError(t, err)
	d.mustSync(t)
	wm := d.sync.snapshotWatermark(t)
	require.Positive(t, wm)

	_, err = d.records.CreateTask(ctx, "b", "")
	require.NoError(t, err)
	d.link.after = func(r *proto.SyncResponse) { r.NewWatermark = 0 }

	_, err = d.sync.Sync(ctx)
	assert.ErrorIs(t, err, client.ErrWatermarkRegression)
	assert.Equal(t, 1, d.pending(t), "nothing is confirmed")
	assert.Equal(t, wm, d.sync.snapshotWatermark(t))
}

func TestSync_CancelBeforeCommitChangesNothing(t *testing.T) {
	srv := newTestServer(t)
	d := newDevice(t, srv)

	_, err := d.records.CreateTask(context.Background(), "a", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	d.link.after = func(*proto.SyncResponse) { cancel() }

	_, err = d.sync.Sync(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, d.pending(t))
	assert.Zero(t, d.sync.snapshotWatermark(t))

	// The server already holds the change; a retry confirms it without
	// duplicating anything.
	d.link.after = nil
	res := d.mustSync(t)
	assert.Equal(t, 1, res.Sent)
	assert.Empty(t, res.Conflicts)
	assert.Zero(t, d.pending(t))
}

func TestSync_MalformedIncomingIsSkipped(t *testing.T) {
	srv := newTestServer(t)
	d := newDevice(t, srv)

	d.link.after = func(r *proto.SyncResponse) {
		r.Changes = append(r.Changes, proto.Change{Op: proto.OpUpsert, EntityType: proto.EntityTask, ID: "x", Timestamp: 5, OriginDeviceID: "d", Record: []byte(`{"id":"y","updated_at":5}`)})
	}
	res := d.mustSync(t)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Applied)
}

func TestSync_Batches(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	d := newDevice(t, srv, WithBatchSize(2))

	for _, title := range []string{"a", "b", "c"} {
		_, err := d.records.CreateTask(ctx, title, "")
		require.NoError(t, err)
	}

	res := d.mustSync(t)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, 1, d.pending(t))

	res = d.mustSync(t)
	assert.Equal(t, 1, res.Sent)
	assert.Zero(t, res.Remaining)
	assert.Zero(t, d.pending(t))
}

func TestSync_ShrinksBatchToServerLimit(t *testing.T) {
	ctx := context.Background()
	srv := newLimitedServer(t, 5)
	d := newDevice(t, srv)

	for i := 0; i < 6; i++ {
		_, err := d.records.CreateList(ctx, fmt.Sprintf("list-%d", i))
		require.NoError(t, err)
	}

	res := d.mustSync(t)
	assert.Equal(t, 3, res.Sent, "six changes are halved to three")
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, 3, d.pending(t))
	assert.Equal(t, 3, d.sync.batch)

	res = d.mustSync(t)
	assert.Equal(t, 3, res.Sent)
	assert.Zero(t, res.Remaining)
	assert.Zero(t, d.pending(t))

	require.NoError(t, d.sync.Reconfigure(&config.Config{
		ServerURL: "http://other.test", Token: "tok", Transport: client.TransportHTTP, SyncEnabled: true,
	}))
	assert.Equal(t, DefaultBatchSize, d.sync.batch, "a new server starts from the configured size")
}

func TestSync_SingleChangeTooLargeIsReturned(t *testing.T) {
	srv := newLimitedServer(t, 5)
	d := newDevice(t, srv)
	d.link.err = fmt.Errorf("%w: limit 0", client.ErrBatchTooLarge)

	_, err := d.records.CreateTask(context.Background(), "x", "")
	require.NoError(t, err)

	_, err = d.sync.Sync(context.Background())
	assert.ErrorIs(t, err, client.ErrRejected)
	assert.Equal(t, 1, d.link.calls)
	assert.Equal(t, 1, d.pending(t))
}

func TestSync_OutboxWrittenDuringRoundSurvives(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	d := newDevice(t, srv)

	_, err := d.records.CreateTask(ctx, "a", "")
	require.NoError(t, err)

	d.link.after = func(*proto.SyncResponse) {
		_, err := d.records.CreateTask(ctx, "written mid-round", "")
		require.NoError(t, err)
	}
	d.mustSync(t)
	assert.Equal(t, 1, d.pending(t))
}

func TestResync_RecoversFromServerLoss(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	a := newDevice(t, srv)

	task, err := a.records.CreateTask(ctx, "keep me", "")
	require.NoError(t, err)
	a.mustSync(t)

	// The server comes back empty.
	fresh := newTestServer(t)
	a.link.server, a.link.account = fresh.svc, fresh.account
	_, err = a.sync.Sync(ctx)
	require.ErrorIs(t, err, client.ErrWatermarkRegression)

	n, err := a.sync.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "inbox and task")
	assert.Zero(t, a.sync.snapshotWatermark(t))

	a.mustSync(t)
	b := newDevice(t, fresh)
	b.mustSync(t)
	assert.Equal(t, "keep me", b.task(t, task.ID).Title)
}

func TestApplyOrder(t *testing.T) {
	up := func(e proto.EntityType, id string) proto.Change {
		return proto.Change{Op: proto.OpUpsert, EntityType: e, ID: id}
	}
	del := func(e proto.EntityType, id string) proto.Change {
		return proto.NewDelete(e, id, 1, "d")
	}

	in := []proto.Change{
		del(proto.EntityList, "l2"),
		up(proto.EntityTaskTag, "x"),
		up(proto.EntityTask, "t1"),
		del(proto.EntityTaskTag, "y"),
		up(proto.EntityList, "l1"),
		up(proto.EntityTask, "t2"),
		up(proto.EntityTag, "g"),
	}
	var got []string
	for _, c := range applyOrder(in) {
		got = append(got, string(c.Op)+" "+c.Key())
	}
	assert.Equal(t, []string{
		"upsert list:l1",
		"upsert tag:g",
		"upsert task:t1",
		"upsert task:t2",
		"upsert task_tag:x",
		"delete task_tag:y",
		"delete list:l2",
	}, got)
	assert.Equal(t, "delete list:l2", string(in[0].Op)+" "+in[0].Key(), "input is not reordered")
}

type stubClient struct {
	token  string
	closed bool
}

func (s *stubClient) Sync(context.Context, *proto.SyncRequest) (*proto.SyncResponse, error) {
	return &proto.SyncResponse{}, nil
}
func (s *stubClient) Ping(context.Context) error { return nil }
func (s *stubClient) SetToken(token string)      { s.token = token }
func (s *stubClient) Close() error               { s.closed = true; return nil }

func TestReconfigure(t *testing.T) {
	rs, store := newRecords(t)
	var built []*stubClient
	factory := func(transport, server, token string) (client.Client, error) {
		c := &stubClient{token: token}
		built = append(built, c)
		return c, nil
	}

	cfg := syncConfig()
	ss, err := NewSyncService(store, rs, cfg, logging.Discard(), WithClientFactory(factory))
	require.NoError(t, err)
	require.Len(t, built, 1)

	next := *cfg
	next.Token = "rotated"
	require.NoError(t, ss.Reconfigure(&next))
	require.Len(t, built, 1, "a token change keeps the transport")
	assert.Equal(t, "rotated", built[0].token)

	moved := next
	moved.ServerURL = "http://elsewhere.test"
	require.NoError(t, ss.Reconfigure(&moved))
	require.Len(t, built, 2)
	assert.True(t, built[0].closed)
	assert.Equal(t, "rotated", built[1].token)

	off := moved
	off.ServerURL = ""
	require.NoError(t, ss.Reconfigure(&off))
	assert.True(t, built[1].closed)
	_, err = ss.Sync(context.Background())
	assert.ErrorIs(t, err, client.ErrNotConfigured)
}
