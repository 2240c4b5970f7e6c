package slots

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/memdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(memdb.New())

	_, err := repo.Get(ctx, "a1", proto.EntityTask, "t1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	rec := []byte(`{"id":"t1"}`)
	require.NoError(t, repo.Upsert(ctx, &models.Slot{AccountID: "a1", EntityType: proto.EntityTask, ID: "t1", Op: proto.OpUpsert, Record: rec, Seq: 1}))
	require.NoError(t, repo.Upsert(ctx, &models.Slot{AccountID: "a2", EntityType: proto.EntityTask, ID: "t1", Op: proto.OpUpsert, Seq: 1}))
	rec[0] = 'X'

	got, err := repo.Get(ctx, "a1", proto.EntityTask, "t1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"t1"}`, string(got.Record), "stored copy is isolated")

	require.NoError(t, repo.Upsert(ctx, &models.Slot{AccountID: "a1", EntityType: proto.EntityTask, ID: "t1", Op: proto.OpDelete, Seq: 2}))

	since, err := repo.SelectSince(ctx, "a1", 1)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, proto.OpDelete, since[0].Op)
	assert.Nil(t, since[0].Record)
}
