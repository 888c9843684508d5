package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-chopper/internal/models/entities"
)

func TestStore_Partitions(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	blog := s.AddCollection("blog", "Blog")
	live := s.AddRecords(blog.ID, "live", 3)
	s.AddRecords(blog.ID, "disabled", 2)

	count, err := s.CountByPartition(ctx, blog.ID, "live")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	statuses, err := s.DistinctStatuses(ctx, blog.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"disabled", "live"}, statuses)

	ids, err := s.IDsByPartition(ctx, blog.ID, "live")
	require.NoError(t, err)
	assert.Equal(t, live, ids)

	found, err := s.GetCollectionByHandle(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, blog, *found)

	missing, err := s.GetCollectionByHandle(ctx, "news")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_SoftDeleteHidesRecord(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	blog := s.AddCollection("blog", "Blog")
	ids := s.AddRecords(blog.ID, "live", 2)

	record, err := s.FindByID(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, record)

	deleted, err := s.Delete(ctx, record, false)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, trashed := s.State(ids[0])
	assert.True(t, exists)
	assert.True(t, trashed)

	record, err = s.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, record)

	count, err := s.CountByPartition(ctx, blog.ID, "live")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Повторное мягкое удаление ничего не меняет
	deleted, err = s.Delete(ctx, &entities.Record{ID: ids[0]}, false)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStore_HardDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	blog := s.AddCollection("blog", "Blog")
	ids := s.AddRecords(blog.ID, "live", 1)

	deleted, err := s.Delete(ctx, &entities.Record{ID: ids[0]}, true)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, _ := s.State(ids[0])
	assert.False(t, exists)

	deleted, err = s.Delete(ctx, &entities.Record{ID: ids[0]}, true)
	require.NoError(t, err)
	assert.False(t, deleted)
}
