package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	"github.com/yungbote/companysync-backend/internal/data/repos/testutil"
	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
)

func TestCreatedAtBackfill(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	set := repos.NewSet(db, testutil.Logger(t))

	testutil.SeedCompany(t, ctx, db, 1, "Con imagenes")
	testutil.SeedCompany(t, ctx, db, 2, "Sin imagenes")
	early := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	testutil.SeedImage(t, ctx, db, 1, types.ImageTypeCover, "cover", early.Add(time.Hour))
	testutil.SeedImage(t, ctx, db, 1, types.ImageTypeProfile, "profile", early)

	b := NewCreatedAt(testutil.Logger(t), set.Companies)

	dry, err := b.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dry.Candidates)
	assert.Zero(t, dry.Updated)

	c, err := set.Companies.GetByID(dbctx.New(ctx), 1)
	require.NoError(t, err)
	assert.Nil(t, c.CreatedAt, "dry run writes nothing")

	res, err := b.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Updated)

	c, err = set.Companies.GetByID(dbctx.New(ctx), 1)
	require.NoError(t, err)
	require.NotNil(t, c.CreatedAt)
	assert.True(t, early.Equal(c.CreatedAt.UTC()))

	other, err := set.Companies.GetByID(dbctx.New(ctx), 2)
	require.NoError(t, err)
	assert.Nil(t, other.CreatedAt)

	again, err := b.Run(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again.Candidates)
	assert.Zero(t, again.Updated)
}
