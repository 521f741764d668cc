package ingestion

import (
	"fmt"

	"github.com/aigos/governor/pkg/canonicalize"
)

// NewEvent builds a GovernanceEvent from d: it assigns an id, copies
// ProducedAt from d as given (a zero value stays zero; the HTTP layer stamps
// it before calling in), computes the event's hash over the canonical JSON of
// the event minus the hash field (spec §4.6), and returns the event frozen.
func NewEvent(d Draft) (*GovernanceEvent, error) {
	evt := &GovernanceEvent{
		ID:            newEventID(),
		SpecVersion:   d.SpecVersion,
		SchemaVersion: d.SchemaVersion,
		Type:          d.Type,
		Category:      d.Category,
		Criticality:   d.Criticality,
		Source:        d.Source,
		OrgID:         d.OrgID,
		AssetID:       d.AssetID,
		ProducedAt:    d.ProducedAt,
		GoldenThread:  d.GoldenThread,
		Data:          d.Data,
	}
	hash, err := hashEvent(evt)
	if err != nil {
		return nil, err
	}
	evt.Hash = hash
	return evt, nil
}

// hashEvent computes sha256:<hex> over the lexically key-ordered canonical
// JSON of evt with the hash field removed.
func hashEvent(evt *GovernanceEvent) (string, error) {
	digest, err := canonicalize.HashExcluding(evt, "hash")
	if err != nil {
		return "", err
	}
	return "sha256:" + digest, nil
}

// VerifyHash recomputes evt's hash and compares it against the stored
// value, returning false on mismatch (spec §8 scenario 5: EVT_BAD_HASH).
func VerifyHash(evt *GovernanceEvent) (bool, error) {
	want, err := hashEvent(evt)
	if err != nil {
		return false, err
	}
	return want == evt.Hash, nil
}

// ErrBadHash is returned by Store.Append when an event's stored hash does
// not match its recomputed content hash.
var ErrBadHash = fmt.Errorf("EVT_BAD_HASH")
