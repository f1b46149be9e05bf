package companies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/companysync-backend/internal/data/repos/testutil"
	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
)

func TestRunLogRepo_CreateAndList(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	repo := NewRunLogRepo(db, testutil.Logger(t))

	start := time.Now().UTC().Add(-time.Minute)
	row := &types.ClassificationRunLog{
		CompaniesProcessed: 2,
		TotalImages:        5,
		SuccessfulImages:   4,
		TimedOutImages:     1,
		StartTime:          start,
		EndTime:            start.Add(time.Minute),
		ModelUsed:          "gpt-4o-mini",
	}
	require.NoError(t, repo.Create(dbctx.New(ctx), row))
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", row.ID.String())

	rows, err := repo.ListRecent(dbctx.New(ctx), 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].TotalImages)
}

func TestActorBatchRepo_Lifecycle(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	repo := NewActorBatchRepo(db, testutil.Logger(t))

	b := &types.ActorRunBatch{PhotosRunID: "photos-1", PageRunID: "page-1", CompanyCount: 3}
	require.NoError(t, repo.Create(dbctx.New(ctx), b))

	pending, err := repo.ListUnprocessed(dbctx.New(ctx))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "photos-1", pending[0].PhotosRunID)

	require.NoError(t, repo.MarkProcessed(dbctx.New(ctx), b.ID))

	pending, err = repo.ListUnprocessed(dbctx.New(ctx))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListingRepo_UndownloadedAndMark(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	repo := NewListingRepo(db, testutil.Logger(t))

	testutil.SeedListing(t, ctx, db, 1, "One")
	testutil.SeedListing(t, ctx, db, 2, "Two")

	rows, err := repo.ListUndownloaded(dbctx.New(ctx), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	n, err := repo.MarkDownloaded(dbctx.New(ctx), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err = repo.ListUndownloaded(dbctx.New(ctx), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].ScrapingID)

	indexed, err := repo.ListForIndex(dbctx.New(ctx), "CL")
	require.NoError(t, err)
	assert.Len(t, indexed, 2)
}

func TestChunkIDs(t *testing.T) {
	chunks := chunkIDs([]int64{1, 2, 3, 4, 5}, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int64{5}, chunks[2])
	assert.Nil(t, chunkIDs(nil, 2))
}
