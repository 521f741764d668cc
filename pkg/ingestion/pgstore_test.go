package ingestion_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/ingestion"
)

func TestPGStore_AppendInsertsOneRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := ingestion.NewPGStore(db)
	evt := mustEvent(t, "org-1", "asset-1", "agent.spawned")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO governance_events")).
		WithArgs(evt.ID, evt.OrgID, evt.AssetID, evt.Type, evt.Category, string(evt.Criticality), evt.Source,
			evt.SpecVersion, evt.SchemaVersion, evt.ProducedAt, evt.Received, sqlmock.AnyArg(), evt.Hash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Append(context.Background(), evt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStore_AppendRejectsBadHashWithoutHittingDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := ingestion.NewPGStore(db)
	evt := mustEvent(t, "org-1", "asset-1", "agent.spawned")
	evt.Hash = "sha256:tampered"

	err = store.Append(context.Background(), evt)
	assert.ErrorIs(t, err, ingestion.ErrBadHash)
	require.NoError(t, mock.ExpectationsWereMet(), "a bad-hash event must never reach an INSERT")
}

func TestPGStore_FindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := ingestion.NewPGStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, org_id, asset_id, type, category, criticality, source")).
		WithArgs("org-2", "evt_missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "asset_id", "type", "category", "criticality", "source",
			"spec_version", "schema_version", "produced_at", "received", "golden_thread", "hash", "data",
		}))

	_, err = store.FindByID(context.Background(), "org-2", "evt_missing")
	assert.ErrorIs(t, err, ingestion.ErrNotFound)
}

func TestPGStore_ListAssets(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := ingestion.NewPGStore(db)

	rows := sqlmock.NewRows([]string{"asset_id", "max", "count", "latest_type"}).
		AddRow("asset-1", time.Now(), int64(2), "agent.spawned")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT asset_id, MAX(produced_at), COUNT(*)")).
		WithArgs("org-1").
		WillReturnRows(rows)

	summaries, err := store.ListAssets(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "asset-1", summaries[0].AssetID)
	assert.EqualValues(t, 2, summaries[0].EventCount)
}
