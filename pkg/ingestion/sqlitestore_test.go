package ingestion_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aigos/governor/pkg/ingestion"
)

func newSQLiteStore(t *testing.T) *ingestion.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := ingestion.NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStore_AppendAndFind(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	evt := mustEvent(t, "org-1", "asset-1", "a")

	require.NoError(t, store.Append(ctx, evt))

	found, err := store.FindByID(ctx, "org-1", evt.ID)
	require.NoError(t, err)
	assert.Equal(t, evt.Hash, found.Hash)

	_, err = store.FindByID(ctx, "org-2", evt.ID)
	assert.ErrorIs(t, err, ingestion.ErrNotFound)
}

func TestSQLiteStore_AppendManyRejectsBadHash(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	good := mustEvent(t, "org-1", "asset-1", "a")
	bad := mustEvent(t, "org-1", "asset-1", "b")
	bad.Hash = "sha256:tampered"

	results, err := store.AppendMany(ctx, []*ingestion.GovernanceEvent{good, bad})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)

	events, err := store.ListEvents(ctx, ingestion.Filter{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLiteStore_ListAssets(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, mustEvent(t, "org-1", "asset-1", "a")))
	require.NoError(t, store.Append(ctx, mustEvent(t, "org-1", "asset-1", "b")))

	summaries, err := store.ListAssets(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "asset-1", summaries[0].AssetID)
	assert.EqualValues(t, 2, summaries[0].EventCount)
	assert.Equal(t, "b", summaries[0].LatestType)
}
