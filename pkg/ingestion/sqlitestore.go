package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is an embeddable Store for single-node deployments and
// tests that want a real SQL engine without a Postgres instance,
// grounded on the teacher's pkg/store/receipt_store_sqlite.go
// (modernc.org/sqlite, CREATE TABLE IF NOT EXISTS migrate-on-construct,
// ? positional placeholders).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-opened *sql.DB (driver "sqlite", via
// modernc.org/sqlite) and ensures its schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS governance_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	asset_id TEXT NOT NULL,
	type TEXT NOT NULL,
	category TEXT NOT NULL,
	criticality TEXT NOT NULL,
	source TEXT NOT NULL,
	spec_version TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	produced_at DATETIME NOT NULL,
	received DATETIME,
	golden_thread TEXT,
	hash TEXT NOT NULL,
	data TEXT,
	UNIQUE (org_id, id)
);
CREATE INDEX IF NOT EXISTS idx_governance_events_org_time ON governance_events(org_id, produced_at);
`

func (s *SQLiteStore) migrate() error {
	_, err := s.db.ExecContext(context.Background(), sqliteSchema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, evt *GovernanceEvent) error {
	if err := validateAppend(evt); err != nil {
		return err
	}
	return s.insert(ctx, s.db, evt)
}

func (s *SQLiteStore) insert(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}, evt *GovernanceEvent) error {
	gt, err := json.Marshal(evt.GoldenThread)
	if err != nil {
		return fmt.Errorf("ingestion: marshal golden_thread: %w", err)
	}
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("ingestion: marshal data: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO governance_events
			(id, org_id, asset_id, type, category, criticality, source,
			 spec_version, schema_version, produced_at, received, golden_thread, hash, data)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, evt.ID, evt.OrgID, evt.AssetID, evt.Type, evt.Category, string(evt.Criticality), evt.Source,
		evt.SpecVersion, evt.SchemaVersion, evt.ProducedAt, evt.Received, string(gt), evt.Hash, string(data))
	if err != nil {
		return fmt.Errorf("ingestion: insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendMany(ctx context.Context, evts []*GovernanceEvent) ([]ItemResult, error) {
	results := make([]ItemResult, len(evts))
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ingestion: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, evt := range evts {
		if err := validateAppend(evt); err != nil {
			results[i] = ItemResult{Error: err.Error()}
			continue
		}
		if err := s.insert(ctx, tx, evt); err != nil {
			results[i] = ItemResult{Error: ErrInternalStorage.Error()}
			continue
		}
		results[i] = ItemResult{ID: evt.ID, OK: true}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ingestion: commit batch: %w", err)
	}
	return results, nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, orgID, id string) (*GovernanceEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, asset_id, type, category, criticality, source,
		       spec_version, schema_version, produced_at, received, golden_thread, hash, data
		FROM governance_events WHERE org_id = ? AND id = ?
	`, orgID, id)
	evt, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return evt, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, f Filter) ([]*GovernanceEvent, error) {
	query := `
		SELECT id, org_id, asset_id, type, category, criticality, source,
		       spec_version, schema_version, produced_at, received, golden_thread, hash, data
		FROM governance_events
		WHERE org_id = ?
		  AND (? = '' OR asset_id = ?)
		  AND (? = '' OR type = ?)
		  AND (? = '' OR criticality = ?)
		  AND (? IS NULL OR produced_at >= ?)
		ORDER BY produced_at ASC, seq ASC
		LIMIT ? OFFSET ?
	`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var since interface{}
	if !f.Since.IsZero() {
		since = f.Since
	}
	rows, err := s.db.QueryContext(ctx, query,
		f.OrgID,
		f.AssetID, f.AssetID,
		f.Type, f.Type,
		string(f.Criticality), string(f.Criticality),
		since, since,
		limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("ingestion: list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*GovernanceEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAssetEvents(ctx context.Context, orgID, assetID string, f Filter) ([]*GovernanceEvent, error) {
	f.OrgID = orgID
	f.AssetID = assetID
	return s.ListEvents(ctx, f)
}

func (s *SQLiteStore) ListAssets(ctx context.Context, orgID string) ([]AssetSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, MAX(produced_at), COUNT(*)
		FROM governance_events
		WHERE org_id = ?
		GROUP BY asset_id
		ORDER BY asset_id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("ingestion: list assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AssetSummary
	for rows.Next() {
		var a AssetSummary
		if err := rows.Scan(&a.AssetID, &a.LastEventAt, &a.EventCount); err != nil {
			return nil, fmt.Errorf("ingestion: scan asset summary: %w", err)
		}
		a.LatestType, _ = s.latestType(ctx, orgID, a.AssetID)
		out = append(out, a)
	}
	return out, rows.Err()
}

// latestType fills AssetSummary.LatestType, since SQLite has no ARRAY_AGG
// equivalent as simple as Postgres's; one extra indexed lookup per asset
// is acceptable at the single-node scale this store targets.
func (s *SQLiteStore) latestType(ctx context.Context, orgID, assetID string) (string, error) {
	var typ string
	err := s.db.QueryRowContext(ctx, `
		SELECT type FROM governance_events
		WHERE org_id = ? AND asset_id = ?
		ORDER BY produced_at DESC, seq DESC LIMIT 1
	`, orgID, assetID).Scan(&typ)
	return typ, err
}

func (s *SQLiteStore) LeafHashesSince(ctx context.Context, orgID string, since time.Time) ([]string, time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, produced_at FROM governance_events
		WHERE org_id = ? AND produced_at >= ?
		ORDER BY produced_at ASC, seq ASC
	`, orgID, since)
	if err != nil {
		return nil, since, fmt.Errorf("ingestion: leaf hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	last := since
	var hashes []string
	for rows.Next() {
		var h string
		var producedAt time.Time
		if err := rows.Scan(&h, &producedAt); err != nil {
			return nil, since, fmt.Errorf("ingestion: scan leaf hash: %w", err)
		}
		hashes = append(hashes, h)
		if producedAt.After(last) {
			last = producedAt
		}
	}
	return hashes, last, rows.Err()
}
