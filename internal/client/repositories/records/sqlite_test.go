package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/tasksync/internal/client/migrations"
	"github.com/dmitrijs2005/tasksync/internal/client/models"
	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))
	return db
}

func TestPutGet_AllKinds(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	recs := []models.Record{
		&models.List{Meta: models.Meta{ID: "l1", UpdatedAt: 1, Origin: "a"}, Name: "Work", Icon: "W", IsInbox: true, SortOrder: 3, CreatedAt: 1},
		&models.Tag{Meta: models.Meta{ID: "g1", UpdatedAt: 2, Origin: "a", Payload: json.RawMessage(`{"id":"g1","x":1}`)},
			Name: "urgent", Color: "red", CreatedAt: 2},
		&models.Task{Meta: models.Meta{ID: "t1", UpdatedAt: 3, Origin: "b"}, Title: "call", Priority: models.PriorityHigh,
			Completed: true, ListID: "l1", CreatedAt: 3, CompletedAt: 3, DueDate: 99, URL: "https://x"},
		&models.TaskTag{Meta: models.Meta{ID: "tt1", UpdatedAt: 4, Origin: "b", Payload: json.RawMessage(`{"id":"tt1"}`)},
			TaskID: "t1", TagID: "g1"},
	}

	for _, rec := range recs {
		require.NoError(t, r.Put(ctx, rec))
		got, err := r.Get(ctx, rec.Kind(), rec.Header().ID)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	}
}

func TestPut_Overwrites(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	task := &models.Task{Meta: models.Meta{ID: "t1", UpdatedAt: 1, Origin: "a"}, Title: "old", Priority: models.PriorityLow, ListID: "l"}
	require.NoError(t, r.Put(ctx, task))

	task.Title, task.UpdatedAt, task.Origin = "new", 2, "b"
	require.NoError(t, r.Put(ctx, task))

	got, err := r.Get(ctx, proto.EntityTask, "t1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.(*models.Task).Title)
	assert.Equal(t, "b", got.Header().Origin)
}

func TestPut_ReplacesPayload(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	list := &models.List{Meta: models.Meta{ID: "l1", UpdatedAt: 1, Origin: "a", Payload: json.RawMessage(`{"id":"l1","v":1}`)}, Name: "x"}
	require.NoError(t, r.Put(ctx, list))

	list.Payload = json.RawMessage(`{"id":"l1","v":2}`)
	require.NoError(t, r.Put(ctx, list))
	got, err := r.Get(ctx, proto.EntityList, "l1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"l1","v":2}`, string(got.Header().Payload))

	list.Payload = nil
	require.NoError(t, r.Put(ctx, list))
	got, err = r.Get(ctx, proto.EntityList, "l1")
	require.NoError(t, err)
	assert.Nil(t, got.Header().Payload)
}

func TestGet_NotFoundAndUnknownKind(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Get(ctx, proto.EntityTag, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = r.Get(ctx, "nope", "x")
	assert.ErrorIs(t, err, common.ErrInvalidChange)

	assert.ErrorIs(t, r.Remove(ctx, "nope", "x"), common.ErrInvalidChange)
}

func TestRemove(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, &models.Tag{Meta: models.Meta{ID: "g1", UpdatedAt: 1, Origin: "a"}, Name: "x"}))
	require.NoError(t, r.Remove(ctx, proto.EntityTag, "g1"))
	require.NoError(t, r.Remove(ctx, proto.EntityTag, "g1"))

	_, err := r.Get(ctx, proto.EntityTag, "g1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestTombstones(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Tombstone(ctx, proto.EntityTask, "t1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	ts := &models.Tombstone{EntityType: proto.EntityTask, ID: "t1", DeletedAt: 10, Origin: "a"}
	require.NoError(t, r.PutTombstone(ctx, ts))
	ts2 := &models.Tombstone{EntityType: proto.EntityTask, ID: "t1", DeletedAt: 20, Origin: "b"}
	require.NoError(t, r.PutTombstone(ctx, ts2))
	require.NoError(t, r.PutTombstone(ctx, &models.Tombstone{EntityType: proto.EntityList, ID: "l1", DeletedAt: 5, Origin: "a"}))

	got, err := r.Tombstone(ctx, proto.EntityTask, "t1")
	require.NoError(t, err)
	assert.Equal(t, ts2, got)

	all, err := r.Tombstones(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, proto.EntityList, all[0].EntityType)

	require.NoError(t, r.RemoveTombstone(ctx, proto.EntityTask, "t1"))
	_, err = r.Tombstone(ctx, proto.EntityTask, "t1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestQueries(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, &models.List{Meta: models.Meta{ID: "work", UpdatedAt: 1, Origin: "a"}, Name: "Work"}))
	require.NoError(t, r.Put(ctx, &models.List{Meta: models.Meta{ID: "inbox", UpdatedAt: 1, Origin: "a"}, Name: "Inbox", IsInbox: true}))
	require.NoError(t, r.Put(ctx, &models.Tag{Meta: models.Meta{ID: "g2", UpdatedAt: 1, Origin: "a"}, Name: "zeta"}))
	require.NoError(t, r.Put(ctx, &models.Tag{Meta: models.Meta{ID: "g1", UpdatedAt: 1, Origin: "a"}, Name: "alpha"}))
	for i, id := range []string{"t1", "t2", "t3"} {
		list := "work"
		if id == "t3" {
			list = "inbox"
		}
		require.NoError(t, r.Put(ctx, &models.Task{Meta: models.Meta{ID: id, UpdatedAt: 1, Origin: "a"}, Title: id,
			Priority: models.PriorityMedium, ListID: list, CreatedAt: int64(i)}))
	}
	require.NoError(t, r.Put(ctx, &models.TaskTag{Meta: models.Meta{ID: "x1", UpdatedAt: 1, Origin: "a"}, TaskID: "t1", TagID: "g1"}))
	require.NoError(t, r.Put(ctx, &models.TaskTag{Meta: models.Meta{ID: "x2", UpdatedAt: 1, Origin: "a"}, TaskID: "t2", TagID: "g1"}))

	lists, err := r.Lists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.True(t, lists[0].IsInbox, "inbox sorts first")

	tags, err := r.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "alpha", tags[0].Name)

	all, err := r.Tasks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	work, err := r.Tasks(ctx, "work")
	require.NoError(t, err)
	require.Len(t, work, 2)
	assert.Equal(t, "t1", work[0].ID)

	links, err := r.LinksOfTag(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, links, 2)

	links, err = r.LinksOfTask(ctx, "t2")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "x2", links[0].ID)

	allLinks, err := r.TaskTags(ctx)
	require.NoError(t, err)
	assert.Len(t, allLinks, 2)
}
