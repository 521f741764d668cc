package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PGStore is the Postgres-backed Store implementation, for deployments that
// need a durable append-only log, grounded on the teacher's
// pkg/metering/postgres.go (prepared-statement batch insert inside one
// transaction, JSONB metadata column).
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an already-opened *sql.DB (driver "postgres", via
// github.com/lib/pq).
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS governance_events (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	asset_id TEXT NOT NULL,
	type TEXT NOT NULL,
	category TEXT NOT NULL,
	criticality TEXT NOT NULL,
	source TEXT NOT NULL,
	spec_version TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	produced_at TIMESTAMPTZ NOT NULL,
	received TIMESTAMPTZ,
	golden_thread JSONB,
	hash TEXT NOT NULL,
	data JSONB,
	UNIQUE (org_id, id)
);
CREATE INDEX IF NOT EXISTS idx_governance_events_org_time ON governance_events(org_id, produced_at);
CREATE INDEX IF NOT EXISTS idx_governance_events_org_asset ON governance_events(org_id, asset_id);
`

// Init creates the governance_events table if it does not already exist.
func (s *PGStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgSchema)
	return err
}

func (s *PGStore) Append(ctx context.Context, evt *GovernanceEvent) error {
	if err := validateAppend(evt); err != nil {
		return err
	}
	return s.insert(ctx, s.db, evt)
}

func (s *PGStore) insert(ctx context.Context, execer interface {
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, evt.ID, evt.OrgID, evt.AssetID, evt.Type, evt.Category, string(evt.Criticality), evt.Source,
		evt.SpecVersion, evt.SchemaVersion, evt.ProducedAt, evt.Received, gt, evt.Hash, data)
	if err != nil {
		return fmt.Errorf("ingestion: insert event: %w", err)
	}
	return nil
}

func (s *PGStore) AppendMany(ctx context.Context, evts []*GovernanceEvent) ([]ItemResult, error) {
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

func (s *PGStore) FindByID(ctx context.Context, orgID, id string) (*GovernanceEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, asset_id, type, category, criticality, source,
		       spec_version, schema_version, produced_at, received, golden_thread, hash, data
		FROM governance_events WHERE org_id = $1 AND id = $2
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

func (s *PGStore) ListEvents(ctx context.Context, f Filter) ([]*GovernanceEvent, error) {
	query := `
		SELECT id, org_id, asset_id, type, category, criticality, source,
		       spec_version, schema_version, produced_at, received, golden_thread, hash, data
		FROM governance_events
		WHERE org_id = $1
		  AND ($2 = '' OR asset_id = $2)
		  AND ($3 = '' OR type = $3)
		  AND ($4 = '' OR criticality = $4)
		  AND ($5::timestamptz IS NULL OR produced_at >= $5)
		ORDER BY produced_at ASC, seq ASC
		LIMIT $6 OFFSET $7
	`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var since interface{}
	if !f.Since.IsZero() {
		since = f.Since
	}
	rows, err := s.db.QueryContext(ctx, query, f.OrgID, f.AssetID, f.Type, string(f.Criticality), since, limit, f.Offset)
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

func (s *PGStore) GetAssetEvents(ctx context.Context, orgID, assetID string, f Filter) ([]*GovernanceEvent, error) {
	f.OrgID = orgID
	f.AssetID = assetID
	return s.ListEvents(ctx, f)
}

func (s *PGStore) ListAssets(ctx context.Context, orgID string) ([]AssetSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, MAX(produced_at), COUNT(*),
		       (ARRAY_AGG(type ORDER BY produced_at DESC))[1]
		FROM governance_events
		WHERE org_id = $1
		GROUP BY asset_id
		ORDER BY asset_id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("ingestion: list assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AssetSummary
	for rows.Next() {
		var s AssetSummary
		if err := rows.Scan(&s.AssetID, &s.LastEventAt, &s.EventCount, &s.LatestType); err != nil {
			return nil, fmt.Errorf("ingestion: scan asset summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *PGStore) LeafHashesSince(ctx context.Context, orgID string, since time.Time) ([]string, time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, produced_at FROM governance_events
		WHERE org_id = $1 AND produced_at >= $2
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

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*GovernanceEvent, error) {
	var evt GovernanceEvent
	var criticality string
	var gt, data []byte
	var received sql.NullTime
	if err := row.Scan(&evt.ID, &evt.OrgID, &evt.AssetID, &evt.Type, &evt.Category, &criticality, &evt.Source,
		&evt.SpecVersion, &evt.SchemaVersion, &evt.ProducedAt, &received, &gt, &evt.Hash, &data); err != nil {
		return nil, err
	}
	evt.Criticality = Criticality(criticality)
	if received.Valid {
		evt.Received = &received.Time
	}
	if len(gt) > 0 {
		_ = json.Unmarshal(gt, &evt.GoldenThread)
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &evt.Data)
	}
	return &evt, nil
}

// ErrInternalStorage is returned as a per-item batch error when a single
// insert fails for reasons other than a bad hash.
var ErrInternalStorage = fmt.Errorf("EVT_INTERNAL")
