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

func TestCompanyRepo_InsertMissingSkipsExisting(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	repo := NewCompanyRepo(db, testutil.Logger(t))

	testutil.SeedCompany(t, ctx, db, 1, "Existing")

	inserted, err := repo.InsertMissing(dbctx.New(ctx), []*types.Company{
		{ScrapingID: 1, Title: "Changed"},
		{ScrapingID: 2, Title: "Fresh"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	existing, err := repo.GetByID(dbctx.New(ctx), 1)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "Existing", existing.Title)

	fresh, err := repo.GetByID(dbctx.New(ctx), 2)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, "Fresh", fresh.Title)
	assert.False(t, fresh.Migrated)
}

func TestCompanyRepo_InsertMissingIsIdempotent(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	repo := NewCompanyRepo(db, testutil.Logger(t))

	rows := []*types.Company{{ScrapingID: 10, Title: "A"}, {ScrapingID: 11, Title: "B"}}
	first, err := repo.InsertMissing(dbctx.New(ctx), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first)

	second, err := repo.InsertMissing(dbctx.New(ctx), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second)

	n, err := repo.Count(dbctx.New(ctx))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCompanyRepo_ExistingScrapingIDs(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	repo := NewCompanyRepo(db, testutil.Logger(t))

	testutil.SeedCompany(t, ctx, db, 5, "Five")
	testutil.SeedCompany(t, ctx, db, 7, "Seven")

	got, err := repo.ExistingScrapingIDs(dbctx.New(ctx), []int64{5, 6, 7})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, int64(5))
	assert.Contains(t, got, int64(7))
	assert.NotContains(t, got, int64(6))
}

func TestCompanyRepo_UpsertEnrichment(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	repo := NewCompanyRepo(db, testutil.Logger(t))

	testutil.SeedCompany(t, ctx, db, 3, "Old")
	_, err := repo.MarkMigrated(dbctx.New(ctx), []int64{3})
	require.NoError(t, err)

	long := make([]rune, 1200)
	for i := range long {
		long[i] = 'x'
	}
	_, err = repo.UpsertEnrichment(dbctx.New(ctx), []types.CompanyEnrichment{
		{ScrapingID: 3, Title: "New", Description: string(long), Phone: "+56 9"},
		{ScrapingID: 4, Title: "Brand new", Country: "PE"},
	})
	require.NoError(t, err)

	updated, err := repo.GetByID(dbctx.New(ctx), 3)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "New", updated.Title)
	assert.Len(t, []rune(updated.Description), 1000)
	assert.True(t, updated.Migrated, "flags survive enrichment")

	created, err := repo.GetByID(dbctx.New(ctx), 4)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "PE", created.Country)
	assert.NotNil(t, created.CreatedAt)
}

func TestCompanyRepo_BackfillCreatedAt(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	repo := NewCompanyRepo(db, testutil.Logger(t))

	testutil.SeedCompany(t, ctx, db, 1, "With images")
	testutil.SeedCompany(t, ctx, db, 2, "Without images")

	early := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	testutil.SeedImage(t, ctx, db, 1, types.ImageTypeCover, "cover", late)
	testutil.SeedImage(t, ctx, db, 1, types.ImageTypeProfile, "profile", early)

	pending, err := repo.BackfillCreatedAt(dbctx.New(ctx), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	c, err := repo.GetByID(dbctx.New(ctx), 1)
	require.NoError(t, err)
	assert.Nil(t, c.CreatedAt, "dry run leaves rows untouched")

	updated, err := repo.BackfillCreatedAt(dbctx.New(ctx), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	c, err = repo.GetByID(dbctx.New(ctx), 1)
	require.NoError(t, err)
	require.NotNil(t, c.CreatedAt)
	assert.True(t, c.CreatedAt.Equal(early))

	other, err := repo.GetByID(dbctx.New(ctx), 2)
	require.NoError(t, err)
	assert.Nil(t, other.CreatedAt)
}

func TestCompanyRepo_GetByIDMissing(t *testing.T) {
	db := testutil.SQLite(t)
	repo := NewCompanyRepo(db, testutil.Logger(t))

	c, err := repo.GetByID(dbctx.New(context.Background()), 404)
	require.NoError(t, err)
	assert.Nil(t, c)
}
