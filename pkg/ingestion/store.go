package ingestion

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store lookups for a missing or cross-org id,
// per spec §4.6's "cross-org reads return NOT_FOUND, never 403".
var ErrNotFound = errors.New("EVT_NOT_FOUND")

// Filter selects events for a list query, scoped to the authenticated org.
type Filter struct {
	OrgID       string
	AssetID     string
	Type        string
	Criticality Criticality
	Since       time.Time
	Limit       int
	Offset      int
}

// AssetSummary is the per-asset rollup spec §4.6 names.
type AssetSummary struct {
	AssetID     string    `json:"asset_id"`
	LastEventAt time.Time `json:"last_event_at"`
	EventCount  int64     `json:"event_count"`
	LatestType  string    `json:"latest_type"`
}

// Store is the persistence capability the ingestion pipeline depends on,
// matching the `{store, storeMany, findById, listEvents, listAssets,
// getAssetEvents}` capability set named in spec §9.
type Store interface {
	Append(ctx context.Context, evt *GovernanceEvent) error
	AppendMany(ctx context.Context, evts []*GovernanceEvent) ([]ItemResult, error)
	FindByID(ctx context.Context, orgID, id string) (*GovernanceEvent, error)
	ListEvents(ctx context.Context, f Filter) ([]*GovernanceEvent, error)
	ListAssets(ctx context.Context, orgID string) ([]AssetSummary, error)
	GetAssetEvents(ctx context.Context, orgID, assetID string, f Filter) ([]*GovernanceEvent, error)
	// LeafHashesSince returns per-event hashes in time order for Merkle
	// sealing, plus the timestamp of the last leaf considered.
	LeafHashesSince(ctx context.Context, orgID string, since time.Time) ([]string, time.Time, error)
}

// ItemResult is the per-event outcome of a batch append, per spec §4.6's
// "partial batch failures return per-event status".
type ItemResult struct {
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// validateAppend recomputes an event's hash and rejects it with
// ErrBadHash if it does not match, per spec §8 scenario 5.
func validateAppend(evt *GovernanceEvent) error {
	ok, err := VerifyHash(evt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBadHash
	}
	return nil
}
