package ingestion_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/ingestion"
)

func mustEvent(t *testing.T, orgID, assetID, typ string) *ingestion.GovernanceEvent {
	t.Helper()
	evt, err := ingestion.NewEvent(ingestion.Draft{Type: typ, OrgID: orgID, AssetID: assetID})
	require.NoError(t, err)
	return evt
}

func TestMemStore_AppendOrder(t *testing.T) {
	store := ingestion.NewMemStore()
	ctx := context.Background()
	e1 := mustEvent(t, "org-1", "asset-1", "a")
	e2 := mustEvent(t, "org-1", "asset-1", "b")
	e3 := mustEvent(t, "org-1", "asset-1", "c")

	require.NoError(t, store.Append(ctx, e1))
	require.NoError(t, store.Append(ctx, e2))
	require.NoError(t, store.Append(ctx, e3))

	events, err := store.ListEvents(ctx, ingestion.Filter{OrgID: "org-1"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{e1.ID, e2.ID, e3.ID}, []string{events[0].ID, events[1].ID, events[2].ID})
}

func TestMemStore_CrossOrgIsolation(t *testing.T) {
	store := ingestion.NewMemStore()
	ctx := context.Background()
	e1 := mustEvent(t, "org-1", "asset-1", "a")
	require.NoError(t, store.Append(ctx, e1))

	_, err := store.FindByID(ctx, "org-2", e1.ID)
	assert.ErrorIs(t, err, ingestion.ErrNotFound, "a lookup from a different org must behave as not-found, never forbidden")

	events, err := store.ListEvents(ctx, ingestion.Filter{OrgID: "org-2"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemStore_Pagination(t *testing.T) {
	store := ingestion.NewMemStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, mustEvent(t, "org-1", "asset-1", "t")))
	}

	page, err := store.ListEvents(ctx, ingestion.Filter{OrgID: "org-1", Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	tail, err := store.ListEvents(ctx, ingestion.Filter{OrgID: "org-1", Offset: 4, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, tail, 1)

	beyond, err := store.ListEvents(ctx, ingestion.Filter{OrgID: "org-1", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestMemStore_AssetSummary(t *testing.T) {
	store := ingestion.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, mustEvent(t, "org-1", "asset-1", "a")))
	require.NoError(t, store.Append(ctx, mustEvent(t, "org-1", "asset-1", "b")))
	require.NoError(t, store.Append(ctx, mustEvent(t, "org-1", "asset-2", "c")))

	summaries, err := store.ListAssets(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "asset-1", summaries[0].AssetID)
	assert.EqualValues(t, 2, summaries[0].EventCount)
	assert.Equal(t, "b", summaries[0].LatestType)
}

func TestMemStore_AppendMany_PartialFailure(t *testing.T) {
	store := ingestion.NewMemStore()
	ctx := context.Background()
	good := mustEvent(t, "org-1", "asset-1", "a")
	bad := mustEvent(t, "org-1", "asset-1", "b")
	bad.Hash = "sha256:tampered"

	results, err := store.AppendMany(ctx, []*ingestion.GovernanceEvent{good, bad})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, ingestion.ErrBadHash.Error(), results[1].Error)

	events, err := store.ListEvents(ctx, ingestion.Filter{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Len(t, events, 1, "only the well-formed event from the batch is retained")
}
