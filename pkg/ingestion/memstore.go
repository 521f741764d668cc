package ingestion

import (
	"context"
	"sort"
	"sync"
	"time"
)

// orgLog is one organization's append-only event list plus its asset
// rollups, guarded by its own mutex so appends are serialized per orgId
// without blocking other orgs (spec §5: "serializes appends per orgId").
type orgLog struct {
	mu     sync.Mutex
	events []*GovernanceEvent
	assets map[string]*AssetSummary
}

// MemStore is the in-memory reference Store implementation, always
// available regardless of which durable backend is configured, per
// SPEC_FULL.md §1.1's "an in-memory reference implementation always ships".
type MemStore struct {
	orgsMu sync.Mutex
	orgs   map[string]*orgLog
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{orgs: make(map[string]*orgLog)}
}

func (s *MemStore) orgFor(orgID string) *orgLog {
	s.orgsMu.Lock()
	defer s.orgsMu.Unlock()
	o, ok := s.orgs[orgID]
	if !ok {
		o = &orgLog{assets: make(map[string]*AssetSummary)}
		s.orgs[orgID] = o
	}
	return o
}

func (s *MemStore) Append(ctx context.Context, evt *GovernanceEvent) error {
	if err := validateAppend(evt); err != nil {
		return err
	}
	o := s.orgFor(evt.OrgID)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appendLocked(evt)
	return nil
}

func (o *orgLog) appendLocked(evt *GovernanceEvent) {
	o.events = append(o.events, evt)
	summary, ok := o.assets[evt.AssetID]
	if !ok {
		summary = &AssetSummary{AssetID: evt.AssetID}
		o.assets[evt.AssetID] = summary
	}
	summary.EventCount++
	summary.LastEventAt = evt.ProducedAt
	summary.LatestType = evt.Type
}

func (s *MemStore) AppendMany(ctx context.Context, evts []*GovernanceEvent) ([]ItemResult, error) {
	results := make([]ItemResult, len(evts))
	if len(evts) == 0 {
		return results, nil
	}

	byOrg := make(map[string][]int)
	for i, e := range evts {
		byOrg[e.OrgID] = append(byOrg[e.OrgID], i)
	}

	for orgID, idxs := range byOrg {
		o := s.orgFor(orgID)
		o.mu.Lock()
		for _, i := range idxs {
			if err := validateAppend(evts[i]); err != nil {
				results[i] = ItemResult{Error: err.Error()}
				continue
			}
			o.appendLocked(evts[i])
			results[i] = ItemResult{ID: evts[i].ID, OK: true}
		}
		o.mu.Unlock()
	}
	return results, nil
}

func (s *MemStore) FindByID(ctx context.Context, orgID, id string) (*GovernanceEvent, error) {
	o := s.orgFor(orgID)
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ListEvents(ctx context.Context, f Filter) ([]*GovernanceEvent, error) {
	o := s.orgFor(f.OrgID)
	o.mu.Lock()
	defer o.mu.Unlock()

	matched := make([]*GovernanceEvent, 0, len(o.events))
	for _, e := range o.events {
		if !matchesFilter(e, f) {
			continue
		}
		matched = append(matched, e)
	}
	return paginate(matched, f.Offset, f.Limit), nil
}

func (s *MemStore) GetAssetEvents(ctx context.Context, orgID, assetID string, f Filter) ([]*GovernanceEvent, error) {
	f.OrgID = orgID
	f.AssetID = assetID
	return s.ListEvents(ctx, f)
}

func (s *MemStore) ListAssets(ctx context.Context, orgID string) ([]AssetSummary, error) {
	o := s.orgFor(orgID)
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]AssetSummary, 0, len(o.assets))
	for _, summary := range o.assets {
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (s *MemStore) LeafHashesSince(ctx context.Context, orgID string, since time.Time) ([]string, time.Time, error) {
	o := s.orgFor(orgID)
	o.mu.Lock()
	defer o.mu.Unlock()

	var hashes []string
	last := since
	for _, e := range o.events {
		if e.ProducedAt.Before(since) {
			continue
		}
		hashes = append(hashes, e.Hash)
		if e.ProducedAt.After(last) {
			last = e.ProducedAt
		}
	}
	return hashes, last, nil
}

func matchesFilter(e *GovernanceEvent, f Filter) bool {
	if f.AssetID != "" && e.AssetID != f.AssetID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Criticality != "" && e.Criticality != f.Criticality {
		return false
	}
	if !f.Since.IsZero() && e.ProducedAt.Before(f.Since) {
		return false
	}
	return true
}

func paginate(events []*GovernanceEvent, offset, limit int) []*GovernanceEvent {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return []*GovernanceEvent{}
	}
	end := len(events)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return events[offset:end]
}
